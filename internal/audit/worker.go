package audit

import (
	"context"
	"log/slog"
)

// Anchorer submits an entry digest to an external anchoring service and
// returns the transaction reference.
type Anchorer interface {
	Anchor(ctx context.Context, e Entry) (txHash string, err error)
}

// AnchorWorker anchors entries asynchronously. The pipeline never blocks on
// anchoring; failed anchors are logged and dropped, the entry simply stays
// unanchored.
type AnchorWorker struct {
	store    Store
	anchorer Anchorer
	inbox    <-chan Entry
	logger   *slog.Logger
}

func NewAnchorWorker(store Store, anchorer Anchorer, inbox <-chan Entry, logger *slog.Logger) *AnchorWorker {
	return &AnchorWorker{store: store, anchorer: anchorer, inbox: inbox, logger: logger}
}

// Run consumes entries until the context ends.
func (w *AnchorWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case entry := <-w.inbox:
			w.anchorOne(ctx, entry)
		}
	}
}

func (w *AnchorWorker) anchorOne(ctx context.Context, entry Entry) {
	txHash, err := w.anchorer.Anchor(ctx, entry)
	if err != nil {
		w.logger.WarnContext(ctx, "anchor submission failed",
			"entry_id", entry.ID, "error", err)
		return
	}
	if err := w.store.MarkAnchored(ctx, entry.ID, txHash); err != nil {
		w.logger.ErrorContext(ctx, "anchor mark failed",
			"entry_id", entry.ID, "tx_hash", txHash, "error", err)
		return
	}
	w.logger.InfoContext(ctx, "audit entry anchored",
		"entry_id", entry.ID, "tx_hash", txHash)
}
