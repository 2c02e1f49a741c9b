// Package audit keeps the append-only, content-addressed record of every
// submission, decision, override, and registry event. Entries chain through
// their predecessor's digest so any retroactive edit is detectable.
package audit

import "time"

// Action classifies audit entries.
type Action string

const (
	ActionSubmit       Action = "submit"
	ActionScanComplete Action = "scan_complete"
	ActionDecision     Action = "decision"
	ActionOverride     Action = "override"
	ActionPublish      Action = "publish"
	ActionUnpublish    Action = "unpublish"
)

// Entry is one immutable audit record. Only ChainAnchored and AnchorTxHash
// may be set after the fact, by the anchor worker.
type Entry struct {
	ID              string            `json:"id"`
	TicketID        string            `json:"ticketId"`
	ManifestID      string            `json:"manifestId"`
	ManifestVersion string            `json:"manifestVersion"`
	Action          Action            `json:"action"`
	Actor           string            `json:"actor"`
	Timestamp       time.Time         `json:"timestamp"`
	Digest          string            `json:"digest"`
	PrevDigest      string            `json:"prevDigest,omitempty"`
	Details         map[string]string `json:"details,omitempty"`
	ChainAnchored   bool              `json:"chainAnchored"`
	AnchorTxHash    string            `json:"anchorTxHash,omitempty"`
}

// Record is the caller-supplied part of an entry; the service assigns ID,
// timestamp, and the digest chain.
type Record struct {
	TicketID        string
	ManifestID      string
	ManifestVersion string
	Action          Action
	Actor           string
	Details         map[string]string
}

// Filter narrows audit queries. Zero values match everything.
type Filter struct {
	TicketID   string
	ManifestID string
	Action     Action
	Actor      string
	Limit      int
}

// Matches reports whether the entry satisfies the filter.
func (f Filter) Matches(e Entry) bool {
	if f.TicketID != "" && e.TicketID != f.TicketID {
		return false
	}
	if f.ManifestID != "" && e.ManifestID != f.ManifestID {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.Actor != "" && e.Actor != f.Actor {
		return false
	}
	return true
}
