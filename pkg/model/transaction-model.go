package model

import (
	"github.com/shopspring/decimal"
)

// Transaction model
//
// One row per ledger entry. Deposits and withdrawals reference an on-chain
// transaction through (address, txid); the unique index on that pair is what
// makes external notifications idempotent. A move between two accounts is two
// rows sharing a txid base, suffixed -send and -receive.
type Transaction struct {
	ID int64 `json:"-" gorm:"omitempty; primaryKey;"`

	Category string `json:"category" gorm:"omitempty; not null; default:''; type:varchar(8);"` // deposit, withdraw, move

	Account      int64  `json:"account" gorm:"omitempty; not null; default:0; index;"`
	OtherAccount *int64 `json:"otherAccount" gorm:"omitempty;"` // counterpart account, moves only

	Address string `json:"address" gorm:"omitempty; not null; default:''; type:varchar(255); uniqueindex:idx_tx_address_txid;"`
	TxID    string `json:"txid" gorm:"omitempty; not null; default:''; type:varchar(255); uniqueindex:idx_tx_address_txid; index;"`
	Symbol  string `json:"symbol" gorm:"omitempty; not null; default:''; type:varchar(8); index;"`

	Amount decimal.Decimal `json:"amount" gorm:"omitempty; not null; default:0; type:decimal(36,18);"` // signed, debit legs negative, net of fee
	Fee    decimal.Decimal `json:"fee" gorm:"omitempty; not null; default:0; type:decimal(36,18);"`    // charged to the initiating side only

	Comment string `json:"comment" gorm:"omitempty; type:text;"`

	Confirmations int64 `json:"confirmations" gorm:"omitempty; not null; default:0;"` // meaningless for moves

	Model
}

const (
	CategoryDeposit  = "deposit"
	CategoryWithdraw = "withdraw"
	CategoryMove     = "move"
)
