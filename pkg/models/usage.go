package models

import "time"

// Operation names a kind of remote call.
type Operation string

const (
	OpTranslate  Operation = "translate"
	OpTranscribe Operation = "transcribe"
	OpDetect     Operation = "detect"
)

// UsageRecord tracks a single remote call.
type UsageRecord struct {
	ID             int64     `json:"id"`
	Provider       string    `json:"provider"`
	Operation      Operation `json:"operation"`
	KeyFingerprint string    `json:"key_fingerprint,omitempty"`
	Items          int       `json:"items"`
	StatusCode     int       `json:"status_code"`
	ErrorKind      string    `json:"error_kind,omitempty"`
	LatencyMs      int64     `json:"latency_ms"`
	CreatedAt      time.Time `json:"created_at"`
}

// UsageSummary aggregates calls per provider and operation.
type UsageSummary struct {
	Provider     string    `json:"provider"`
	Operation    Operation `json:"operation"`
	RequestCount int       `json:"request_count"`
	ErrorCount   int       `json:"error_count"`
	TotalItems   int       `json:"total_items"`
	AvgLatencyMs float64   `json:"avg_latency_ms"`
}
