// Package model defines domain entities used by services and repositories.
package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
)

// NotAvailable is stored for optional name fields absent from the source file.
const NotAvailable = "Not Available"

// VerificationType selects the natural key, required columns and provider endpoint.
type VerificationType string

const (
	// TypePAN verifies a tax-ID against name and date of birth. Natural key: tax-ID.
	TypePAN VerificationType = "pan_kyc"
	// TypeAadhaarPAN verifies a national-ID/tax-ID linkage. Natural key: both IDs.
	TypeAadhaarPAN VerificationType = "aadhaar_pan"
)

// VerificationTypes lists every supported type in a stable order.
var VerificationTypes = []VerificationType{TypePAN, TypeAadhaarPAN}

// ParseVerificationType validates a wire value.
func ParseVerificationType(s string) (VerificationType, error) {
	switch VerificationType(s) {
	case TypePAN, TypeAadhaarPAN:
		return VerificationType(s), nil
	}
	return "", fmt.Errorf("unknown verification type %q", s)
}

// State is the verification lifecycle state of a record.
type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateVerified   State = "verified"
	StateFailed     State = "failed"
)

// ParseState validates a wire value.
func ParseState(s string) (State, error) {
	switch State(s) {
	case StatePending, StateProcessing, StateVerified, StateFailed:
		return State(s), nil
	}
	return "", fmt.Errorf("unknown state %q", s)
}

// Terminal reports whether no scheduler pass may move the record out of s.
func (s State) Terminal() bool { return s == StateVerified }

// Field is a canonical field name, independent of source headers.
type Field string

const (
	FieldNationalID  Field = "national_id"
	FieldTaxID       Field = "tax_id"
	FieldName        Field = "name"
	FieldGuardian    Field = "guardian_name"
	FieldDateOfBirth Field = "date_of_birth"
)

// Record is a persisted CanonicalRecord.
type Record struct {
	ID      uuid.UUID
	OwnerID uuid.UUID
	// BatchID is a weak reference, empty for single verifications.
	BatchID uuid.NullUUID
	Type    VerificationType

	NationalID   string // 12 digits; may be empty for pan_kyc
	TaxID        string // uppercased
	DisplayName  string
	GuardianName string
	DateOfBirth  time.Time // calendar date at UTC midnight
	RowIndex     int       // 1-based source row counting the header; 0 for single verifications

	State         State
	Payload       json.RawMessage // provider result, nil until resolved
	FailureReason string
	RetryCount    int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NaturalKey returns the owner-scoped uniqueness key for the record's type.
func (r Record) NaturalKey() string { return NaturalKey(r.Type, r.NationalID, r.TaxID) }

// NaturalKey builds the uniqueness key from identifiers.
func NaturalKey(t VerificationType, nationalID, taxID string) string {
	if t == TypeAadhaarPAN {
		return nationalID + "|" + taxID
	}
	return taxID
}

// BatchStatus is the processing status of an upload.
type BatchStatus string

const (
	BatchUploaded   BatchStatus = "uploaded"
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
)

// UploadBatch groups records originating from one file.
type UploadBatch struct {
	ID               uuid.UUID
	OwnerID          uuid.UUID
	Type             VerificationType
	OriginalFilename string
	SizeBytes        int64
	TotalRecords     int // data rows in the file, including rejected ones
	VerifiedCount    int
	FailedCount      int
	PendingCount     int // pending + processing
	Status           BatchStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// StateCounts mirrors record state counts.
type StateCounts struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Verified   int `json:"verified"`
	Failed     int `json:"failed"`
}

// Total sums every state.
func (c StateCounts) Total() int { return c.Pending + c.Processing + c.Verified + c.Failed }

// Add returns the element-wise sum.
func (c StateCounts) Add(o StateCounts) StateCounts {
	return StateCounts{
		Pending:    c.Pending + o.Pending,
		Processing: c.Processing + o.Processing,
		Verified:   c.Verified + o.Verified,
		Failed:     c.Failed + o.Failed,
	}
}

// Set stores n under state s; unknown states are ignored.
func (c *StateCounts) Set(s State, n int) {
	switch s {
	case StatePending:
		c.Pending = n
	case StateProcessing:
		c.Processing = n
	case StateVerified:
		c.Verified = n
	case StateFailed:
		c.Failed = n
	}
}

// UserStats is the derived per-owner aggregate. Always rebuildable from records.
type UserStats struct {
	OwnerID    uuid.UUID                        `json:"owner_id"`
	ByType     map[VerificationType]StateCounts `json:"by_type"`
	Totals     StateCounts                      `json:"totals"`
	ComputedAt time.Time                        `json:"computed_at"`
}

// RowRejection reports one excluded row.
type RowRejection struct {
	Row        int    // 1-based, header is row 1
	NationalID string // raw cell value, may be empty
	TaxID      string // raw cell value, may be empty
	Field      Field  // offending field, empty for duplicates
	Reason     string
}

// AcceptedRow links a source row to its new record.
type AcceptedRow struct {
	Row      int
	RecordID uuid.UUID
	TaxID    string
}

// UploadReport is returned to the uploader once ingestion is done.
type UploadReport struct {
	BatchID    uuid.UUID
	TotalRows  int
	Accepted   []AcceptedRow
	Rejections []RowRejection
}

// Page selects a window of a listing; Page is 1-based.
type Page struct {
	Page  int
	Limit int
}

// Offset returns the SQL offset for p.
func (p Page) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// APIUsage counts provider calls issued on behalf of an owner.
type APIUsage struct {
	OwnerID   uuid.UUID
	Provider  string
	Calls     int64
	UpdatedAt time.Time
}

// RecordRef identifies a record for background processing.
type RecordRef struct {
	ID      uuid.UUID
	OwnerID uuid.UUID
	BatchID uuid.NullUUID
}
