package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/rl1809/split-market/internal/core/domain"
	"github.com/rl1809/split-market/internal/port"
)

type CreatePropertyInput struct {
	Name       string
	Image      string
	Identifier string
	Valuation  decimal.Decimal
	Docs       []string
}

func (in CreatePropertyInput) validate() error {
	if len(in.Docs) == 0 {
		return fmt.Errorf("%w: at least one document is required", domain.ErrInvalidInput)
	}
	if len(in.Docs) > domain.MaxSplitsPerProperty {
		return fmt.Errorf("%w: at most %d documents per property", domain.ErrInvalidInput, domain.MaxSplitsPerProperty)
	}
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Identifier) == "" {
		return fmt.Errorf("%w: name and identifier are required", domain.ErrInvalidInput)
	}
	for i, doc := range in.Docs {
		if strings.TrimSpace(doc) == "" {
			return fmt.Errorf("%w: document %d is empty", domain.ErrInvalidInput, i+1)
		}
	}
	return domain.ValidateAmount(in.Valuation)
}

type CreatePropertyResult struct {
	PropertyID uint64
	Sagas      []domain.Saga
}

type PropertyRegistry struct {
	c     *core
	mints *MintOrchestrator
}

// CreateProperty registers the property and starts one mint saga per
// document. It returns before any split exists; splits appear as the mint
// callbacks arrive.
func (r *PropertyRegistry) CreateProperty(ctx context.Context, caller domain.Caller, in CreatePropertyInput) (*CreatePropertyResult, error) {
	result := &CreatePropertyResult{}
	err := r.c.atomically(ctx, func(tx port.Tx) error {
		if err := requireMarketplaceOwner(tx, caller); err != nil {
			return err
		}
		if err := in.validate(); err != nil {
			return err
		}

		id, err := tx.NextPropertyID()
		if err != nil {
			return fmt.Errorf("next property id: %w", err)
		}
		property := domain.Property{
			ID:         id,
			Name:       in.Name,
			Image:      in.Image,
			Identifier: in.Identifier,
			Valuation:  in.Valuation,
			CreatedBy:  caller.Account,
			CreatedAt:  r.c.now(),
		}
		if err := tx.InsertProperty(property); err != nil {
			return fmt.Errorf("insert property: %w", err)
		}
		result.PropertyID = id

		for i, doc := range in.Docs {
			saga, err := r.mints.record(tx, domain.MintContext{
				PropertyID:         id,
				PropertyIdentifier: in.Identifier,
				SplitIdentifier:    domain.SplitIdentifier(in.Identifier, i+1),
				Owner:              caller.Account,
				DocRef:             doc,
				ImageRef:           in.Image,
			})
			if err != nil {
				return err
			}
			result.Sagas = append(result.Sagas, saga)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.c.log.WithFields(logrus.Fields{
		"property_id": result.PropertyID,
		"splits":      len(result.Sagas),
	}).Info("property created, dispatching mints")

	for i := range result.Sagas {
		result.Sagas[i] = r.mints.dispatch(ctx, result.Sagas[i])
	}
	return result, nil
}

func (r *PropertyRegistry) SetValuation(ctx context.Context, caller domain.Caller, propertyID uint64, value decimal.Decimal) error {
	return r.c.atomically(ctx, func(tx port.Tx) error {
		if err := requireMarketplaceOwner(tx, caller); err != nil {
			return err
		}
		if err := domain.ValidateAmount(value); err != nil {
			return err
		}
		if _, err := tx.GetProperty(propertyID); err != nil {
			return fmt.Errorf("property %d: %w", propertyID, err)
		}
		return tx.UpdatePropertyValuation(propertyID, value)
	})
}

// SplitValue prices one split of its property at the current valuation.
func (r *PropertyRegistry) SplitValue(ctx context.Context, splitID uint64) (decimal.Decimal, error) {
	var value decimal.Decimal
	err := r.c.atomically(ctx, func(tx port.Tx) error {
		split, err := tx.GetSplit(splitID)
		if err != nil {
			return fmt.Errorf("split %d: %w", splitID, err)
		}
		value, err = r.splitValue(tx, *split)
		return err
	})
	return value, err
}

func (r *PropertyRegistry) splitValue(tx port.Tx, split domain.Split) (decimal.Decimal, error) {
	property, err := tx.GetProperty(split.PropertyID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("property %d: %w", split.PropertyID, err)
	}
	return domain.SplitValue(property.Valuation, len(property.SplitIDs))
}

// TransferMarketplaceOwnership hands the marketplace owner role to newOwner.
// Only the current owner may do this.
func (r *PropertyRegistry) TransferMarketplaceOwnership(ctx context.Context, caller domain.Caller, newOwner string) error {
	if strings.TrimSpace(newOwner) == "" {
		return fmt.Errorf("%w: new owner is required", domain.ErrInvalidInput)
	}
	return r.c.atomically(ctx, func(tx port.Tx) error {
		if err := requireMarketplaceOwner(tx, caller); err != nil {
			return err
		}
		r.c.log.WithFields(logrus.Fields{"from": caller.Account, "to": newOwner}).Warn("marketplace ownership transferred")
		return tx.SetMarketplaceOwner(newOwner)
	})
}
