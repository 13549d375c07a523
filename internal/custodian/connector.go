package custodian

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
)

// TransferState is the custodian-side lifecycle of an initiated transfer
type TransferState string

const (
	TransferPending  TransferState = "pending"
	TransferSettled  TransferState = "settled"
	TransferReversed TransferState = "reversed"
	TransferRejected TransferState = "rejected"
)

var ErrTransferUnknown = errors.New("custodian transfer not found")

// Connector is the contract with the external custodian. Initiate and Reverse
// are idempotent on the custodian side; Status is a cheap poll.
type Connector interface {
	Initiate(ctx context.Context, accountID string, amount int64, reference string) (transferID string, err error)
	Status(ctx context.Context, transferID string) (TransferState, error)
	Reverse(ctx context.Context, transferID string) error
	Payout(ctx context.Context, accountID string, amount int64, reference string) (payoutID string, err error)
}

// Simulator is the in-process custodian used by tests and local development.
// Transfers settle after SettleAfterPolls status calls; set it high to force
// verification timeouts, or zero to settle immediately.
type Simulator struct {
	mu               sync.Mutex
	transfers        map[string]*simTransfer
	SettleAfterPolls int
	FailInitiate     error // returned by Initiate when set
	ReverseCalls     int
}

type simTransfer struct {
	state TransferState
	polls int
}

func NewSimulator() *Simulator {
	return &Simulator{transfers: make(map[string]*simTransfer)}
}

func (s *Simulator) Initiate(ctx context.Context, accountID string, amount int64, reference string) (string, error) {
	if s.FailInitiate != nil {
		return "", s.FailInitiate
	}
	id := uuid.New().String()
	s.mu.Lock()
	s.transfers[id] = &simTransfer{state: TransferPending}
	s.mu.Unlock()
	log.Printf("[Custodian] Initiated transfer %s (account %s, amount %d, ref %s)", id, accountID, amount, reference)
	return id, nil
}

func (s *Simulator) Status(ctx context.Context, transferID string) (TransferState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transfers[transferID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrTransferUnknown, transferID)
	}
	if t.state == TransferPending {
		t.polls++
		if t.polls >= s.SettleAfterPolls {
			t.state = TransferSettled
		}
	}
	return t.state, nil
}

func (s *Simulator) Reverse(ctx context.Context, transferID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transfers[transferID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTransferUnknown, transferID)
	}
	t.state = TransferReversed
	s.ReverseCalls++
	log.Printf("[Custodian] Reversed transfer %s", transferID)
	return nil
}

func (s *Simulator) Payout(ctx context.Context, accountID string, amount int64, reference string) (string, error) {
	id := uuid.New().String()
	log.Printf("[Custodian] Payout %s (account %s, amount %d, ref %s)", id, accountID, amount, reference)
	return id, nil
}
