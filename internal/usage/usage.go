// Package usage counts provider calls issued on behalf of each owner.
package usage

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/kyc-verifier/internal/model"
)

// Counter records one logical verification request per call to Increment.
type Counter interface {
	// Increment bumps the owner's counter for provider and returns the new total.
	Increment(ctx context.Context, ownerID uuid.UUID, provider string) (int64, error)
	// List returns every provider counter of the owner.
	List(ctx context.Context, ownerID uuid.UUID) ([]model.APIUsage, error)
}
