package zreports

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Triggers label how a report was requested.
const (
	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"
)

// Format selects a downloadable rendering.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatXLSX Format = "xlsx"
)

// GenerateInput requests a report for one calendar date. Opening and counted
// cash are required from operators; the scheduler leaves them nil.
type GenerateInput struct {
	TenantID    uuid.UUID
	ActorUserID uuid.UUID
	ReportDate  time.Time
	OpeningCash *decimal.Decimal
	CountedCash *decimal.Decimal
	Notes       *string
	Trigger     string
}

// ListFilters bound the report date range, inclusive.
type ListFilters struct {
	StartDate *time.Time
	EndDate   *time.Time
}

// Document is a rendered report ready to stream.
type Document struct {
	Filename    string
	ContentType string
	Content     []byte
}

// DeliveryResult is returned by SendEmail. A failed send is a result, not an error.
type DeliveryResult struct {
	ReportID   uuid.UUID `json:"reportId"`
	EmailSent  bool      `json:"emailSent"`
	EmailError string    `json:"emailError,omitempty"`
	Recipients []string  `json:"recipients"`
}
