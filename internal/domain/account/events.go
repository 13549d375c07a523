package account

import (
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/sha3"
)

const (
	EventAccountOpened   = "AccountOpened"
	EventMoneyAdded      = "MoneyAdded"
	EventMoneySubtracted = "MoneySubtracted"
	EventAccountLimitHit = "AccountLimitHit"
	EventAccountFrozen   = "AccountFrozen"
	EventAccountUnfrozen = "AccountUnfrozen"
	EventAccountClosed   = "AccountClosed"
)

type AccountOpened struct {
	AccountID string    `json:"account_id"`
	OwnerID   string    `json:"owner_id"`
	Currency  string    `json:"currency"`
	Limit     int64     `json:"limit"`
	OpenedAt  time.Time `json:"opened_at"`
}

type MoneyAdded struct {
	AccountID   string    `json:"account_id"`
	Amount      int64     `json:"amount"`
	Description string    `json:"description"`
	Hash        string    `json:"hash"`
	AddedAt     time.Time `json:"added_at"`
}

type MoneySubtracted struct {
	AccountID    string    `json:"account_id"`
	Amount       int64     `json:"amount"`
	Description  string    `json:"description"`
	Hash         string    `json:"hash"`
	SubtractedAt time.Time `json:"subtracted_at"`
}

// AccountLimitHit is the audit marker recorded when a debit is rejected for
// insufficient funds. It is committed even though the debit itself fails.
type AccountLimitHit struct {
	AccountID string    `json:"account_id"`
	Attempted int64     `json:"attempted"`
	Balance   int64     `json:"balance"`
	Limit     int64     `json:"limit"`
	HitAt     time.Time `json:"hit_at"`
}

type AccountFrozen struct {
	AccountID string    `json:"account_id"`
	Reason    string    `json:"reason"`
	FrozenAt  time.Time `json:"frozen_at"`
}

type AccountUnfrozen struct {
	AccountID  string    `json:"account_id"`
	UnfrozenAt time.Time `json:"unfrozen_at"`
}

type AccountClosed struct {
	AccountID string    `json:"account_id"`
	Reason    string    `json:"reason"`
	ClosedAt  time.Time `json:"closed_at"`
}

// chainHash links a money movement to the one before it. Each MoneyAdded and
// MoneySubtracted event carries the SHA3-256 of (previous hash, account,
// direction, amount), giving the transaction history tamper evidence.
func chainHash(previous, accountID, direction string, amount int64) string {
	h := sha3.New256()
	fmt.Fprintf(h, "%s|%s|%s|%d", previous, accountID, direction, amount)
	return hex.EncodeToString(h.Sum(nil))
}
