package port

import "context"

type CallbackGuard interface {
	// Claim marks key as being processed, returns false if it was already claimed
	Claim(ctx context.Context, key string) (bool, error)

	// Release drops a claim so a redelivery can be processed (for rollback on failure)
	Release(ctx context.Context, key string) error
}
