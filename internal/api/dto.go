package api

import "github.com/starford/halosync/internal/ledger"

// Run is one sync batch as stored in the ledger.
type Run = ledger.Run

// Document is one document outcome as stored in the ledger.
type Document = ledger.Document

// RunListResponse wraps the recent runs listing.
type RunListResponse struct {
	Runs []Run `json:"runs" validate:"required"`
}

// RunDetail is a run with its document outcomes.
type RunDetail struct {
	Run       Run        `json:"run" validate:"required"`
	Documents []Document `json:"documents" validate:"required"`
}
