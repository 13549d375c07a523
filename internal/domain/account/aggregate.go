package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/example/ledger-event-driven/internal/domain/aggregate"
	"github.com/example/ledger-event-driven/internal/infrastructure/store"
	"github.com/google/uuid"
)

const AggregateType = "Account"

type Status string

const (
	StatusActive Status = "active"
	StatusFrozen Status = "frozen"
	StatusClosed Status = "closed" // terminal
)

var (
	ErrAccountNotFound        = errors.New("account not found")
	ErrInvalidAmount          = errors.New("amount must be positive")
	ErrInsufficientFunds      = errors.New("insufficient funds: debit would breach the account limit")
	ErrInvalidStateTransition = errors.New("invalid account state transition")
	ErrAccountClosed          = errors.New("account is closed")
	ErrAccountFrozen          = errors.New("account is frozen")
)

// Account is the event-sourced ledger account. Balance and status are derived
// exclusively from the event stream; commands never mutate state directly.
//
// Frozen/closed gating for balance commands is deliberately NOT enforced here:
// the command handler checks the read model before invoking Credit/Debit. The
// aggregate enforces the balance limit only.
type Account struct {
	aggregate.Root `json:"-"`

	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Currency  string    `json:"currency"`
	Balance   int64     `json:"balance"`
	Limit     int64     `json:"limit"` // lowest balance a debit may leave behind
	Status    Status    `json:"status"`
	LastHash  string    `json:"last_hash"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int       `json:"version"` // Current event version
}

// Aggregate interface implementation
func (a *Account) GetID() string   { return a.ID }
func (a *Account) GetVersion() int { return a.Version }

// Open records the creation event. Valid only on a fresh instance.
func (a *Account) Open(id, ownerID, currency string, limit int64) error {
	if a.Version > 0 || len(a.PendingEvents()) > 0 {
		return fmt.Errorf("%w: account %s already opened", ErrInvalidStateTransition, a.ID)
	}
	a.ID = id // stream identity, needed before the first persist
	a.RecordThat(EventAccountOpened, AccountOpened{
		AccountID: id,
		OwnerID:   ownerID,
		Currency:  currency,
		Limit:     limit,
		OpenedAt:  time.Now(),
	})
	return nil
}

// Credit records a deposit
func (a *Account) Credit(amount int64, description string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	a.RecordThat(EventMoneyAdded, MoneyAdded{
		AccountID:   a.ID,
		Amount:      amount,
		Description: description,
		Hash:        chainHash(a.LastHash, a.ID, "credit", amount),
		AddedAt:     time.Now(),
	})
	return nil
}

// Debit records a withdrawal. When the debit would take the balance below the
// account limit it records an AccountLimitHit marker instead and returns
// ErrInsufficientFunds — the marker is persisted by the service even though
// the command fails, keeping an audit trail of limit breaches.
func (a *Account) Debit(amount int64, description string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if a.Balance-amount < a.Limit {
		a.RecordThat(EventAccountLimitHit, AccountLimitHit{
			AccountID: a.ID,
			Attempted: amount,
			Balance:   a.Balance,
			Limit:     a.Limit,
			HitAt:     time.Now(),
		})
		return fmt.Errorf("%w: balance %d, attempted %d, limit %d",
			ErrInsufficientFunds, a.Balance, amount, a.Limit)
	}
	a.RecordThat(EventMoneySubtracted, MoneySubtracted{
		AccountID:    a.ID,
		Amount:       amount,
		Description:  description,
		Hash:         chainHash(a.LastHash, a.ID, "debit", amount),
		SubtractedAt: time.Now(),
	})
	return nil
}

// Freeze suspends the account (administrative)
func (a *Account) Freeze(reason string) error {
	switch a.Status {
	case StatusActive:
		a.RecordThat(EventAccountFrozen, AccountFrozen{
			AccountID: a.ID,
			Reason:    reason,
			FrozenAt:  time.Now(),
		})
		return nil
	case StatusClosed:
		return fmt.Errorf("%w: cannot freeze a closed account", ErrInvalidStateTransition)
	default:
		return fmt.Errorf("%w: account already frozen", ErrInvalidStateTransition)
	}
}

// Unfreeze reactivates a frozen account
func (a *Account) Unfreeze() error {
	if a.Status != StatusFrozen {
		return fmt.Errorf("%w: cannot unfreeze account in status %s", ErrInvalidStateTransition, a.Status)
	}
	a.RecordThat(EventAccountUnfrozen, AccountUnfrozen{
		AccountID:  a.ID,
		UnfrozenAt: time.Now(),
	})
	return nil
}

// Close terminates the account. Terminal: no further transitions.
func (a *Account) Close(reason string) error {
	if a.Status == StatusClosed {
		return fmt.Errorf("%w: account already closed", ErrInvalidStateTransition)
	}
	a.RecordThat(EventAccountClosed, AccountClosed{
		AccountID: a.ID,
		Reason:    reason,
		ClosedAt:  time.Now(),
	})
	return nil
}

// ApplyEvent applies a single event to the account state (implements aggregate.Aggregate)
func (a *Account) ApplyEvent(event store.Event) error {
	switch event.EventType {
	case EventAccountOpened:
		var data AccountOpened
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		a.ID = data.AccountID
		a.OwnerID = data.OwnerID
		a.Currency = data.Currency
		a.Limit = data.Limit
		a.Status = StatusActive
		a.CreatedAt = data.OpenedAt
		a.UpdatedAt = data.OpenedAt
	case EventMoneyAdded:
		var data MoneyAdded
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		a.Balance += data.Amount
		a.LastHash = data.Hash
		a.UpdatedAt = data.AddedAt
	case EventMoneySubtracted:
		var data MoneySubtracted
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		a.Balance -= data.Amount
		a.LastHash = data.Hash
		a.UpdatedAt = data.SubtractedAt
	case EventAccountLimitHit:
		var data AccountLimitHit
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		// Marker only: balance is untouched
		a.UpdatedAt = data.HitAt
	case EventAccountFrozen:
		var data AccountFrozen
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		a.Status = StatusFrozen
		a.UpdatedAt = data.FrozenAt
	case EventAccountUnfrozen:
		var data AccountUnfrozen
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		a.Status = StatusActive
		a.UpdatedAt = data.UnfrozenAt
	case EventAccountClosed:
		var data AccountClosed
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		a.Status = StatusClosed
		a.UpdatedAt = data.ClosedAt
	}
	a.Version = event.Version
	return nil
}

type Service struct {
	eventStore store.EventStoreInterface
}

func NewService(es store.EventStoreInterface) *Service {
	return &Service{eventStore: es}
}

// loadAccount hydrates an account by replaying events, using a snapshot if available
func (s *Service) loadAccount(ctx context.Context, accountID string) (*Account, error) {
	acct, found, err := aggregate.Load(ctx, s.eventStore, accountID, func() *Account {
		return &Account{}
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrAccountNotFound
	}
	return acct, nil
}

// Open creates a new ledger account
func (s *Service) Open(ctx context.Context, ownerID, currency string, limit int64) (*Account, error) {
	accountID := uuid.New().String()

	acct := &Account{}
	if err := acct.Open(accountID, ownerID, currency, limit); err != nil {
		return nil, err
	}

	if _, err := aggregate.Persist(ctx, s.eventStore, acct, AggregateType); err != nil {
		return nil, err
	}
	return acct, nil
}

// Credit deposits into an account
func (s *Service) Credit(ctx context.Context, accountID string, amount int64, description string) (*Account, error) {
	acct, err := s.loadAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if err := acct.Credit(amount, description); err != nil {
		return nil, err
	}
	if _, err := aggregate.Persist(ctx, s.eventStore, acct, AggregateType); err != nil {
		return nil, err
	}
	return acct, nil
}

// Debit withdraws from an account. On a limit breach the AccountLimitHit
// marker is still persisted (advancing the stream version) and the original
// ErrInsufficientFunds is returned to the caller.
func (s *Service) Debit(ctx context.Context, accountID string, amount int64, description string) (*Account, error) {
	acct, err := s.loadAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	debitErr := acct.Debit(amount, description)
	if debitErr != nil && !errors.Is(debitErr, ErrInsufficientFunds) {
		return nil, debitErr
	}

	if _, err := aggregate.Persist(ctx, s.eventStore, acct, AggregateType); err != nil {
		return nil, err
	}
	if debitErr != nil {
		return nil, debitErr
	}
	return acct, nil
}

// Freeze suspends an account
func (s *Service) Freeze(ctx context.Context, accountID, reason string) error {
	acct, err := s.loadAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if err := acct.Freeze(reason); err != nil {
		return err
	}
	_, err = aggregate.Persist(ctx, s.eventStore, acct, AggregateType)
	return err
}

// Unfreeze reactivates a frozen account
func (s *Service) Unfreeze(ctx context.Context, accountID string) error {
	acct, err := s.loadAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if err := acct.Unfreeze(); err != nil {
		return err
	}
	_, err = aggregate.Persist(ctx, s.eventStore, acct, AggregateType)
	return err
}

// Close terminates an account
func (s *Service) Close(ctx context.Context, accountID, reason string) error {
	acct, err := s.loadAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if err := acct.Close(reason); err != nil {
		return err
	}
	_, err = aggregate.Persist(ctx, s.eventStore, acct, AggregateType)
	return err
}
