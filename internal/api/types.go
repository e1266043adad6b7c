// Package api declares the kyc.v1.Verification gRPC service: wire messages,
// the JSON codec they travel in, the service descriptor and a typed client.
package api

import (
	"encoding/json"
	"time"
)

// Page selects a window of a listing. Zero values use server defaults.
type Page struct {
	Page  int `json:"page,omitempty"`
	Limit int `json:"limit,omitempty"`
}

type UploadRequest struct {
	Type     string `json:"verification_type"`
	Filename string `json:"filename"`
	Content  []byte `json:"content"`
}

type AcceptedRow struct {
	Row      int    `json:"row"`
	RecordID string `json:"record_id"`
	TaxID    string `json:"tax_id"`
}

type Rejection struct {
	Row        int    `json:"row"`
	NationalID string `json:"national_id,omitempty"`
	TaxID      string `json:"tax_id,omitempty"`
	Field      string `json:"field,omitempty"`
	Reason     string `json:"reason"`
}

type UploadResponse struct {
	BatchID    string        `json:"batch_id"`
	TotalRows  int           `json:"total_rows"`
	Accepted   []AcceptedRow `json:"accepted"`
	Rejections []Rejection   `json:"rejections"`
}

type VerifySingleRequest struct {
	Type         string `json:"verification_type"`
	NationalID   string `json:"national_id,omitempty"`
	TaxID        string `json:"tax_id"`
	Name         string `json:"name,omitempty"`
	GuardianName string `json:"guardian_name,omitempty"`
	DateOfBirth  string `json:"date_of_birth"`
}

type Record struct {
	ID            string          `json:"id"`
	BatchID       string          `json:"batch_id,omitempty"`
	Type          string          `json:"verification_type"`
	NationalID    string          `json:"national_id,omitempty"`
	TaxID         string          `json:"tax_id"`
	Name          string          `json:"name"`
	GuardianName  string          `json:"guardian_name"`
	DateOfBirth   string          `json:"date_of_birth"`
	Row           int             `json:"row,omitempty"`
	Status        string          `json:"status"`
	Result        json.RawMessage `json:"result,omitempty"`
	FailureReason string          `json:"failure_reason,omitempty"`
	RetryCount    int             `json:"retry_count"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type ListRecordsRequest struct {
	Page
}

type ListRecordsResponse struct {
	Records []Record `json:"records"`
	Total   int      `json:"total"`
}

type ListBatchRecordsRequest struct {
	BatchID string `json:"batch_id"`
	// Status is pending, processing, verified, failed, or all.
	Status string `json:"status,omitempty"`
	Page
}

type Batch struct {
	ID            string    `json:"id"`
	Type          string    `json:"verification_type"`
	Filename      string    `json:"filename"`
	SizeBytes     int64     `json:"size_bytes"`
	TotalRecords  int       `json:"total_records"`
	VerifiedCount int       `json:"verified_count"`
	FailedCount   int       `json:"failed_count"`
	PendingCount  int       `json:"pending_count"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type ListBatchesRequest struct {
	Page
}

type ListBatchesResponse struct {
	Batches []Batch `json:"batches"`
	Total   int     `json:"total"`
}

// BatchRequest addresses one batch.
type BatchRequest struct {
	BatchID string `json:"batch_id"`
}

type Counts struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Verified   int `json:"verified"`
	Failed     int `json:"failed"`
	Total      int `json:"total"`
}

type BatchStatsResponse struct {
	Batch  Batch  `json:"batch"`
	Counts Counts `json:"counts"`
}

type RetryFailedResponse struct {
	Requeued int `json:"requeued"`
}

type DeleteBatchResponse struct{}

type StatsRequest struct{}

type StatsResponse struct {
	ByType     map[string]Counts `json:"by_type"`
	Totals     Counts            `json:"totals"`
	ComputedAt time.Time         `json:"computed_at"`
}

type UsageRequest struct{}

type Usage struct {
	Provider  string    `json:"provider"`
	Calls     int64     `json:"calls"`
	UpdatedAt time.Time `json:"updated_at"`
}

type UsageResponse struct {
	Usage []Usage `json:"usage"`
}
