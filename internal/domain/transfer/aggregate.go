package transfer

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

const AggregateType = "Transfer"

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed" // terminal
	StatusFailed    Status = "failed"    // terminal
)

var (
	ErrTransferNotFound = errors.New("transfer not found")
	ErrInvalidTransfer  = errors.New("invalid transfer")
	ErrInvalidStatus    = errors.New("invalid transfer status transition")
)

// Transfer tracks the lifecycle of a money movement between two accounts.
// The account debits/credits themselves are separate aggregate streams; the
// transfer workflow coordinates them and settles this aggregate last.
type Transfer struct {
	aggregate.Root `json:"-"`

	ID            string    `json:"id"`
	FromAccountID string    `json:"from_account_id"`
	ToAccountID   string    `json:"to_account_id"`
	Amount        int64     `json:"amount"`
	Description   string    `json:"description"`
	Status        Status    `json:"status"`
	Reason        string    `json:"reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	Version       int       `json:"version"`
}

func (t *Transfer) GetID() string   { return t.ID }
func (t *Transfer) GetVersion() int { return t.Version }

// Initiate records the transfer creation event
func (t *Transfer) Initiate(id, fromAccountID, toAccountID string, amount int64, description string) error {
	if t.Version > 0 || len(t.PendingEvents()) > 0 {
		return fmt.Errorf("%w: transfer %s already initiated", ErrInvalidStatus, t.ID)
	}
	if fromAccountID == toAccountID {
		return fmt.Errorf("%w: source and destination are the same account", ErrInvalidTransfer)
	}
	if amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidTransfer)
	}
	t.ID = id
	t.RecordThat(EventTransferInitiated, TransferInitiated{
		TransferID:    id,
		FromAccountID: fromAccountID,
		ToAccountID:   toAccountID,
		Amount:        amount,
		Description:   description,
		InitiatedAt:   time.Now(),
	})
	return nil
}

// Complete marks the transfer as settled
func (t *Transfer) Complete() error {
	if t.Status != StatusPending {
		return fmt.Errorf("%w: cannot complete transfer in status %s", ErrInvalidStatus, t.Status)
	}
	t.RecordThat(EventTransferCompleted, TransferCompleted{
		TransferID:  t.ID,
		CompletedAt: time.Now(),
	})
	return nil
}

// Fail marks the transfer as failed
func (t *Transfer) Fail(reason string) error {
	if t.Status != StatusPending {
		return fmt.Errorf("%w: cannot fail transfer in status %s", ErrInvalidStatus, t.Status)
	}
	t.RecordThat(EventTransferFailed, TransferFailed{
		TransferID: t.ID,
		Reason:     reason,
		FailedAt:   time.Now(),
	})
	return nil
}

// ApplyEvent applies a single event to the transfer state (implements aggregate.Aggregate)
func (t *Transfer) ApplyEvent(event store.Event) error {
	switch event.EventType {
	case EventTransferInitiated:
		var data TransferInitiated
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		t.ID = data.TransferID
		t.FromAccountID = data.FromAccountID
		t.ToAccountID = data.ToAccountID
		t.Amount = data.Amount
		t.Description = data.Description
		t.Status = StatusPending
		t.CreatedAt = data.InitiatedAt
		t.UpdatedAt = data.InitiatedAt
	case EventTransferCompleted:
		var data TransferCompleted
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		t.Status = StatusCompleted
		t.UpdatedAt = data.CompletedAt
	case EventTransferFailed:
		var data TransferFailed
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		t.Status = StatusFailed
		t.Reason = data.Reason
		t.UpdatedAt = data.FailedAt
	}
	t.Version = event.Version
	return nil
}

type Service struct {
	eventStore store.EventStoreInterface
}

func NewService(es store.EventStoreInterface) *Service {
	return &Service{eventStore: es}
}

func (s *Service) loadTransfer(ctx context.Context, transferID string) (*Transfer, error) {
	t, found, err := aggregate.Load(ctx, s.eventStore, transferID, func() *Transfer {
		return &Transfer{}
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrTransferNotFound
	}
	return t, nil
}

// Initiate creates a new pending transfer
func (s *Service) Initiate(ctx context.Context, fromAccountID, toAccountID string, amount int64, description string) (*Transfer, error) {
	transferID := uuid.New().String()

	t := &Transfer{}
	if err := t.Initiate(transferID, fromAccountID, toAccountID, amount, description); err != nil {
		return nil, err
	}
	if _, err := aggregate.Persist(ctx, s.eventStore, t, AggregateType); err != nil {
		return nil, err
	}
	return t, nil
}

// Complete settles a pending transfer
func (s *Service) Complete(ctx context.Context, transferID string) error {
	t, err := s.loadTransfer(ctx, transferID)
	if err != nil {
		return err
	}
	if err := t.Complete(); err != nil {
		return err
	}
	_, err = aggregate.Persist(ctx, s.eventStore, t, AggregateType)
	return err
}

// Fail marks a pending transfer as failed
func (s *Service) Fail(ctx context.Context, transferID, reason string) error {
	t, err := s.loadTransfer(ctx, transferID)
	if err != nil {
		return err
	}
	if err := t.Fail(reason); err != nil {
		return err
	}
	_, err = aggregate.Persist(ctx, s.eventStore, t, AggregateType)
	return err
}
