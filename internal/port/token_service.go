package port

import (
	"context"

	"github.com/google/uuid"
)

type MintRequest struct {
	SagaID             uuid.UUID
	Owner              string
	PropertyIdentifier string
	SplitIdentifier    string
	DocRef             string
	ImageRef           string
}

type TransferRequest struct {
	SagaID   uuid.UUID
	TokenID  string
	NewOwner string
}

// TokenService dispatches requests to the external token issuer. Both calls
// return once the request is handed off; results arrive later through the
// marketplace callback entry points, keyed by SagaID.
type TokenService interface {
	Mint(ctx context.Context, req MintRequest) error
	Transfer(ctx context.Context, req TransferRequest) error
}
