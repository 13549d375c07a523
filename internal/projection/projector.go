package projection

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/example/ledger-event-driven/internal/domain/account"
	"github.com/example/ledger-event-driven/internal/domain/transfer"
	"github.com/example/ledger-event-driven/internal/infrastructure/store"
	"github.com/example/ledger-event-driven/internal/readmodel"
)

// Projector folds committed events into the read models. Handlers are
// idempotent: account and transfer rows carry the last applied version and
// drop anything at or below it, transaction rows are keyed by event ID.
// Events for one aggregate must arrive in version order (Kafka partitions by
// aggregate ID, ReadAll replays in global order); no cross-aggregate ordering
// is assumed.
type Projector struct {
	readStore store.ReadStoreInterface
}

func NewProjector(readStore store.ReadStoreInterface) *Projector {
	return &Projector{readStore: readStore}
}

// HandleEvent consumes one Kafka message
func (p *Projector) HandleEvent(ctx context.Context, key, value []byte) error {
	var event store.Event
	if err := json.Unmarshal(value, &event); err != nil {
		return err
	}
	return p.Project(event)
}

// Project applies one committed event to the read models
func (p *Projector) Project(event store.Event) error {
	log.Printf("[Projector] Received event: %s (aggregate: %s, version: %d)",
		event.EventType, event.AggregateType, event.Version)

	switch event.AggregateType {
	case account.AggregateType:
		return p.handleAccountEvent(event)
	case transfer.AggregateType:
		return p.handleTransferEvent(event)
	}
	return nil
}

func (p *Projector) handleAccountEvent(event store.Event) error {
	switch event.EventType {
	case account.EventAccountOpened:
		var e account.AccountOpened
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		// Redelivery of the open event must not reset a populated row
		if existing, ok, err := p.readStore.Get(store.CollectionAccounts, e.AccountID); err != nil {
			return err
		} else if ok && existing.(*readmodel.AccountReadModel).Version >= event.Version {
			return nil
		}
		return p.readStore.Set(store.CollectionAccounts, e.AccountID, &readmodel.AccountReadModel{
			ID:        e.AccountID,
			OwnerID:   e.OwnerID,
			Currency:  e.Currency,
			Balance:   0,
			Limit:     e.Limit,
			Status:    readmodel.AccountStatusActive,
			Version:   event.Version,
			CreatedAt: e.OpenedAt,
			UpdatedAt: e.OpenedAt,
		})

	case account.EventMoneyAdded:
		var e account.MoneyAdded
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		if err := p.applyToAccount(event, func(a *readmodel.AccountReadModel) {
			a.Balance += e.Amount
			a.UpdatedAt = e.AddedAt
		}); err != nil {
			return err
		}
		return p.recordTransaction(event, e.AccountID, readmodel.TransactionTypeDeposit, e.Amount, e.Description, e.Hash, e.AddedAt)

	case account.EventMoneySubtracted:
		var e account.MoneySubtracted
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		if err := p.applyToAccount(event, func(a *readmodel.AccountReadModel) {
			a.Balance -= e.Amount
			a.UpdatedAt = e.SubtractedAt
		}); err != nil {
			return err
		}
		return p.recordTransaction(event, e.AccountID, readmodel.TransactionTypeWithdrawal, e.Amount, e.Description, e.Hash, e.SubtractedAt)

	case account.EventAccountLimitHit:
		var e account.AccountLimitHit
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		// Balance is untouched; keep the breach in the history view
		if err := p.applyToAccount(event, func(a *readmodel.AccountReadModel) {
			a.UpdatedAt = e.HitAt
		}); err != nil {
			return err
		}
		return p.recordTransaction(event, e.AccountID, readmodel.TransactionTypeLimitHit, e.Attempted, "limit hit", "", e.HitAt)

	case account.EventAccountFrozen:
		var e account.AccountFrozen
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		return p.applyToAccount(event, func(a *readmodel.AccountReadModel) {
			a.Status = readmodel.AccountStatusFrozen
			a.UpdatedAt = e.FrozenAt
		})

	case account.EventAccountUnfrozen:
		var e account.AccountUnfrozen
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		return p.applyToAccount(event, func(a *readmodel.AccountReadModel) {
			a.Status = readmodel.AccountStatusActive
			a.UpdatedAt = e.UnfrozenAt
		})

	case account.EventAccountClosed:
		var e account.AccountClosed
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		return p.applyToAccount(event, func(a *readmodel.AccountReadModel) {
			a.Status = readmodel.AccountStatusClosed
			a.UpdatedAt = e.ClosedAt
		})
	}

	return nil
}

// applyToAccount updates the account row unless the event was already applied
func (p *Projector) applyToAccount(event store.Event, apply func(*readmodel.AccountReadModel)) error {
	found, err := p.readStore.Update(store.CollectionAccounts, event.AggregateID, func(current any) any {
		a := current.(*readmodel.AccountReadModel)
		if event.Version <= a.Version {
			return a // duplicate delivery
		}
		apply(a)
		a.Version = event.Version
		return a
	})
	if err != nil {
		return err
	}
	if !found {
		// Surface the gap so the consumer retries; the row appears once the
		// AccountOpened event lands
		return fmt.Errorf("account %s not in read store yet, cannot apply %s at version %d",
			event.AggregateID, event.EventType, event.Version)
	}
	return nil
}

// recordTransaction upserts one history row keyed by the event ID
func (p *Projector) recordTransaction(event store.Event, accountID, txType string, amount int64, description, hash string, at time.Time) error {
	return p.readStore.Set(store.CollectionTransactions, event.ID, &readmodel.TransactionReadModel{
		ID:          event.ID,
		AccountID:   accountID,
		Type:        txType,
		Amount:      amount,
		Description: description,
		Hash:        hash,
		Version:     event.Version,
		RecordedAt:  at,
	})
}

func (p *Projector) handleTransferEvent(event store.Event) error {
	switch event.EventType {
	case transfer.EventTransferInitiated:
		var e transfer.TransferInitiated
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		if existing, ok, err := p.readStore.Get(store.CollectionTransfers, e.TransferID); err != nil {
			return err
		} else if ok && existing.(*readmodel.TransferReadModel).Version >= event.Version {
			return nil
		}
		return p.readStore.Set(store.CollectionTransfers, e.TransferID, &readmodel.TransferReadModel{
			ID:            e.TransferID,
			FromAccountID: e.FromAccountID,
			ToAccountID:   e.ToAccountID,
			Amount:        e.Amount,
			Status:        string(transfer.StatusPending),
			Version:       event.Version,
			CreatedAt:     e.InitiatedAt,
			UpdatedAt:     e.InitiatedAt,
		})

	case transfer.EventTransferCompleted:
		var e transfer.TransferCompleted
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		return p.applyToTransfer(event, func(t *readmodel.TransferReadModel) {
			t.Status = string(transfer.StatusCompleted)
			t.UpdatedAt = e.CompletedAt
		})

	case transfer.EventTransferFailed:
		var e transfer.TransferFailed
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		return p.applyToTransfer(event, func(t *readmodel.TransferReadModel) {
			t.Status = string(transfer.StatusFailed)
			t.Reason = e.Reason
			t.UpdatedAt = e.FailedAt
		})
	}

	return nil
}

func (p *Projector) applyToTransfer(event store.Event, apply func(*readmodel.TransferReadModel)) error {
	_, err := p.readStore.Update(store.CollectionTransfers, event.AggregateID, func(current any) any {
		t := current.(*readmodel.TransferReadModel)
		if event.Version <= t.Version {
			return t // duplicate delivery
		}
		apply(t)
		t.Version = event.Version
		return t
	})
	return err
}
