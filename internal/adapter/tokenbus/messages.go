package tokenbus

import (
	"github.com/google/uuid"

	"github.com/rl1809/split-market/internal/core/domain"
)

const (
	DefaultCommandsExchange = "token.commands"
	DefaultResultsExchange  = "token.results"
	DefaultResultsQueue     = "marketplace.token.results"

	RoutingKeyMint     = "mint"
	RoutingKeyTransfer = "transfer"
	RoutingKeyResult   = "result"

	contentTypeJSON = "application/json"
)

type MintCommand struct {
	SagaID             uuid.UUID `json:"saga_id"`
	Owner              string    `json:"owner"`
	PropertyIdentifier string    `json:"property_identifier"`
	SplitIdentifier    string    `json:"split_identifier"`
	DocRef             string    `json:"doc_ref"`
	ImageRef           string    `json:"image_ref"`
}

type TransferCommand struct {
	SagaID   uuid.UUID `json:"saga_id"`
	TokenID  string    `json:"token_id"`
	NewOwner string    `json:"new_owner"`
}

// Result is what the token service reports back for one command. The saga id
// is echoed unchanged from the command.
type Result struct {
	SagaID   uuid.UUID           `json:"saga_id"`
	Kind     domain.SagaKind     `json:"kind"`
	Success  bool                `json:"success"`
	Reason   string              `json:"reason,omitempty"`
	Token    *domain.TokenHandle `json:"token,omitempty"`
	NewOwner string              `json:"new_owner,omitempty"`
}
