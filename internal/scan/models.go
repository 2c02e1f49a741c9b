// Package scan drives manifest submissions through analysis, scoring, and
// governance, persisting one ScanResult per completed ticket.
package scan

import (
	"time"

	"manifestgate/internal/analyzer"
	"manifestgate/internal/governance"
	"manifestgate/internal/heuristics"
	"manifestgate/internal/risk"
)

// TicketStatus is the processing state of one submission.
type TicketStatus string

const (
	StatusPending  TicketStatus = "pending"
	StatusScanning TicketStatus = "scanning"
	StatusComplete TicketStatus = "complete"
	StatusFailed   TicketStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s TicketStatus) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// Ticket tracks one submission attempt. Created pending by the gateway and
// mutated only by the orchestrator; resubmission creates a new ticket.
type Ticket struct {
	ID              string       `json:"id"`
	Status          TicketStatus `json:"status"`
	SubmittedAt     time.Time    `json:"submittedAt"`
	SubmittedBy     string       `json:"submittedBy"`
	ManifestID      string       `json:"manifestId"`
	ManifestVersion string       `json:"manifestVersion"`
	FailureReason   string       `json:"failureReason,omitempty"`
}

// Result is the canonical record of one completed scan, consumed by
// moderation tooling and the registry pipeline.
type Result struct {
	TicketID        string                    `json:"ticketId"`
	ManifestID      string                    `json:"manifestId"`
	ManifestVersion string                    `json:"manifestVersion"`
	Digest          string                    `json:"digest"`
	Analysis        analyzer.Result           `json:"analysis"`
	Heuristics      heuristics.Result         `json:"heuristics"`
	Risk            risk.Score                `json:"risk"`
	Decision        governance.DecisionResult `json:"decision"`
	ScannedAt       time.Time                 `json:"scannedAt"`
}

// ResultFilter narrows result listings. Zero values match everything.
type ResultFilter struct {
	Decision governance.Decision
	Limit    int
	Offset   int
}

// ApprovedSummary is the public listing shape for admitted manifests.
type ApprovedSummary struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Category    string   `json:"category,omitempty"`
	Permissions []string `json:"permissions"`
}
