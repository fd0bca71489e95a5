package ingress

import (
	"walletd/pkg/ledger"

	"github.com/shopspring/decimal"
)

// WithdrawReq asks the teller to send funds out, published to
// WALLETD.<SYMBOL>.Withdraw as a request-reply.
type WithdrawReq struct {
	Account   int64           `json:"account"`
	Symbol    string          `json:"symbol"`
	Address   string          `json:"address"`
	Amount    decimal.Decimal `json:"amount"`
	Comment   string          `json:"comment,omitempty"`
	CommentTo string          `json:"commentTo,omitempty"`
}

// MoveReq asks the teller to transfer funds between two accounts, published
// to WALLETD.<SYMBOL>.Move as a request-reply.
type MoveReq struct {
	From    int64           `json:"from"`
	To      int64           `json:"to"`
	Symbol  string          `json:"symbol"`
	Amount  decimal.Decimal `json:"amount"`
	Comment string          `json:"comment,omitempty"`
}

// AddressReq asks the registry for the account's deposit address, allocating
// one on first use. Published to WALLETD.<SYMBOL>.Address as a request-reply.
type AddressReq struct {
	Account int64  `json:"account"`
	Symbol  string `json:"symbol"`
}

// ListReq asks for a page of the account's transactions, published to
// WALLETD.<SYMBOL>.List as a request-reply. Confirmation filtering uses the
// adapter's minconf.
type ListReq struct {
	Account int64  `json:"account"`
	Symbol  string `json:"symbol"`
	Limit   int    `json:"limit,omitempty"`
	Offset  int    `json:"offset,omitempty"`
}

type Reply struct {
	OK      bool   `json:"ok"`
	TxID    string `json:"txid,omitempty"`
	Address string `json:"address,omitempty"`
	Error   string `json:"error,omitempty"`
}

type ListReply struct {
	OK      bool           `json:"ok"`
	Entries []ledger.Entry `json:"entries,omitempty"`
	Error   string         `json:"error,omitempty"`
}
