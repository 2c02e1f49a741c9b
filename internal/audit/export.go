package audit

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// ExportJSON writes entries as a JSON array.
func ExportJSON(w io.Writer, entries []Entry) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if entries == nil {
		entries = []Entry{}
	}
	return enc.Encode(entries)
}

// ExportCSV writes entries with a fixed header row. Details flatten to
// key=value pairs joined with semicolons, keys sorted.
func ExportCSV(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)
	header := []string{
		"id", "ticket_id", "manifest_id", "manifest_version", "action",
		"actor", "timestamp", "digest", "prev_digest", "details",
		"chain_anchored", "anchor_tx_hash",
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("audit: write csv header: %w", err)
	}
	for _, e := range entries {
		row := []string{
			e.ID, e.TicketID, e.ManifestID, e.ManifestVersion, string(e.Action),
			e.Actor, e.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
			e.Digest, e.PrevDigest, flattenDetails(e.Details),
			strconv.FormatBool(e.ChainAnchored), e.AnchorTxHash,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("audit: write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func flattenDetails(details map[string]string) string {
	if len(details) == 0 {
		return ""
	}
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+details[k])
	}
	return strings.Join(pairs, ";")
}
