// Package provider is the client of the external identity verification service.
package provider

import (
	"context"
	"encoding/json"
	"time"

	"github.com/and161185/kyc-verifier/internal/model"
)

// Outcome is the provider's determination for one request.
type Outcome int

const (
	// OutcomePending means the request was accepted but not yet decided.
	OutcomePending Outcome = iota
	// OutcomeVerified is a positive determination.
	OutcomeVerified
	// OutcomeRejected is an explicit negative determination.
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeVerified:
		return "verified"
	case OutcomeRejected:
		return "rejected"
	default:
		return "pending"
	}
}

// Request is the normalized subject of one verification.
type Request struct {
	Type         model.VerificationType
	NationalID   string
	TaxID        string
	Name         string
	GuardianName string
	DateOfBirth  time.Time
}

// RequestFromRecord builds a request from a stored record.
func RequestFromRecord(r *model.Record) Request {
	return Request{
		Type:         r.Type,
		NationalID:   r.NationalID,
		TaxID:        r.TaxID,
		Name:         r.DisplayName,
		GuardianName: r.GuardianName,
		DateOfBirth:  r.DateOfBirth,
	}
}

// Result is a determination. Reason is set for rejections; RequestID for pending results.
type Result struct {
	Outcome   Outcome
	Reason    string
	RequestID string
	Payload   json.RawMessage
}

// Verifier is the provider contract used by the state machine.
// Errors are *Error values.
type Verifier interface {
	// Name identifies the provider in usage counters.
	Name() string
	// Verify submits one subject.
	Verify(ctx context.Context, req Request) (Result, error)
	// Status polls a previously accepted request.
	Status(ctx context.Context, requestID string) (Result, error)
}
