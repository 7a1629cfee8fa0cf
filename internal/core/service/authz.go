package service

import (
	"errors"
	"fmt"

	"github.com/rl1809/split-market/internal/core/domain"
	"github.com/rl1809/split-market/internal/port"
)

func requireMarketplaceOwner(tx port.Tx, caller domain.Caller) error {
	owner, err := marketplaceOwner(tx)
	if err != nil {
		return err
	}
	if caller.Account == "" || caller.Account != owner {
		return fmt.Errorf("%w: marketplace owner required", domain.ErrUnauthorized)
	}
	return nil
}

// requireSeller passes for the marketplace owner before the primary sale and
// for the split owner afterwards.
func requireSeller(tx port.Tx, caller domain.Caller, split domain.Split) error {
	owner, err := marketplaceOwner(tx)
	if err != nil {
		return err
	}
	if caller.Account == "" || caller.Account != split.Seller(owner) {
		return fmt.Errorf("%w: not allowed to sell split %d", domain.ErrUnauthorized, split.ID)
	}
	return nil
}

func requireBuyer(tx port.Tx, caller domain.Caller, split domain.Split) error {
	owner, err := marketplaceOwner(tx)
	if err != nil {
		return err
	}
	if caller.Account == "" || caller.Account == owner || caller.Account == split.Owner {
		return fmt.Errorf("%w: owners cannot buy split %d", domain.ErrUnauthorized, split.ID)
	}
	return nil
}

func requireRuntime(caller domain.Caller) error {
	if !caller.IsRuntime() {
		return fmt.Errorf("%w: callbacks are reserved for the orchestration runtime", domain.ErrUnauthorized)
	}
	return nil
}

// marketplaceOwner reads the owner; an unset owner matches no caller.
func marketplaceOwner(tx port.Tx) (string, error) {
	owner, err := tx.MarketplaceOwner()
	if errors.Is(err, domain.ErrNotFound) {
		return "", nil
	}
	return owner, err
}
