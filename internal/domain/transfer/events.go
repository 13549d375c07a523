package transfer

import "time"

const (
	EventTransferInitiated = "TransferInitiated"
	EventTransferCompleted = "TransferCompleted"
	EventTransferFailed    = "TransferFailed"
)

type TransferInitiated struct {
	TransferID    string    `json:"transfer_id"`
	FromAccountID string    `json:"from_account_id"`
	ToAccountID   string    `json:"to_account_id"`
	Amount        int64     `json:"amount"`
	Description   string    `json:"description"`
	InitiatedAt   time.Time `json:"initiated_at"`
}

type TransferCompleted struct {
	TransferID  string    `json:"transfer_id"`
	CompletedAt time.Time `json:"completed_at"`
}

type TransferFailed struct {
	TransferID string    `json:"transfer_id"`
	Reason     string    `json:"reason"`
	FailedAt   time.Time `json:"failed_at"`
}
