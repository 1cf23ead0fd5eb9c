package mappings

import "time"

// AccountMapping links an integration module/key pair to a ledger account.
type AccountMapping struct {
	Module    string    `json:"module"`
	Key       string    `json:"key"`
	AccountID int64     `json:"account_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
