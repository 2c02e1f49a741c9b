package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"manifestgate/pkg/sentinel"
)

// PostgresStore persists entries in the audit_entries table. Appends rely on
// the table's insert-only grants; nothing here issues UPDATE except the
// anchor columns.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the audit table and indexes if they do not exist. The
// seq column gives appends a total order so the chain head is unambiguous
// even when timestamps collide.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS audit_entries (
			seq              BIGSERIAL PRIMARY KEY,
			id               TEXT NOT NULL UNIQUE,
			ticket_id        TEXT NOT NULL DEFAULT '',
			manifest_id      TEXT NOT NULL DEFAULT '',
			manifest_version TEXT NOT NULL DEFAULT '',
			action           TEXT NOT NULL,
			actor            TEXT NOT NULL DEFAULT '',
			timestamp        TIMESTAMPTZ NOT NULL,
			digest           TEXT NOT NULL,
			prev_digest      TEXT NOT NULL DEFAULT '',
			details          JSONB,
			chain_anchored   BOOLEAN NOT NULL DEFAULT FALSE,
			anchor_tx_hash   TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS audit_entries_ticket_idx ON audit_entries (ticket_id);
		CREATE INDEX IF NOT EXISTS audit_entries_manifest_idx ON audit_entries (manifest_id);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure audit schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, e Entry) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}

	query := `
		INSERT INTO audit_entries (
			id, ticket_id, manifest_id, manifest_version, action, actor,
			timestamp, digest, prev_digest, details, chain_anchored, anchor_tx_hash
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = s.db.ExecContext(ctx, query,
		e.ID, e.TicketID, e.ManifestID, e.ManifestVersion, string(e.Action), e.Actor,
		e.Timestamp, e.Digest, e.PrevDigest, details, e.ChainAnchored, e.AnchorTxHash,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, f Filter) ([]Entry, error) {
	query := `
		SELECT id, ticket_id, manifest_id, manifest_version, action, actor,
		       timestamp, digest, prev_digest, details, chain_anchored, anchor_tx_hash
		FROM audit_entries
		WHERE ($1 = '' OR ticket_id = $1)
		  AND ($2 = '' OR manifest_id = $2)
		  AND ($3 = '' OR action = $3)
		  AND ($4 = '' OR actor = $4)
		ORDER BY seq ASC
	`
	args := []any{f.TicketID, f.ManifestID, string(f.Action), f.Actor}
	if f.Limit > 0 {
		query += " LIMIT $5"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			action  string
			details []byte
		)
		if err := rows.Scan(
			&e.ID, &e.TicketID, &e.ManifestID, &e.ManifestVersion, &action, &e.Actor,
			&e.Timestamp, &e.Digest, &e.PrevDigest, &details, &e.ChainAnchored, &e.AnchorTxHash,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Action = Action(action)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("decode details: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

func (s *PostgresStore) LastDigest(ctx context.Context) (string, error) {
	var digest string
	err := s.db.QueryRowContext(ctx,
		`SELECT digest FROM audit_entries ORDER BY seq DESC LIMIT 1`,
	).Scan(&digest)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query chain head: %w", err)
	}
	return digest, nil
}

func (s *PostgresStore) MarkAnchored(ctx context.Context, id, txHash string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE audit_entries SET chain_anchored = TRUE, anchor_tx_hash = $2 WHERE id = $1`,
		id, txHash,
	)
	if err != nil {
		return fmt.Errorf("mark anchored: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark anchored rows: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
