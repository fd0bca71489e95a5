// Package adapter defines the contract between walletd and the per-currency
// wallet backends.
package adapter

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var ErrUnknownCurrency = errors.New("no adapter for currency")

// Adapter is one currency backend. Fee and minconf policy is the adapter's;
// the ledger only consumes it.
type Adapter interface {
	Symbol() string
	MinConf() int64
	WithdrawFee() decimal.Decimal
	MoveFee() decimal.Decimal

	// Send moves funds on the external network and must return its txid.
	Send(address string, amount decimal.Decimal, comment, commentTo string) (txid string, err error)
	NewAddress() (address string, err error)
}

// Poller is the optional periodic reconciliation capability. Push-only
// adapters simply don't implement it; the cron driver only ever sees
// adapters registered as Pollers.
type Poller interface {
	Adapter
	Poll() error
}

// TxNotice is what a backend reports about an external transaction, either
// pushed over nats or discovered by polling. Account is set only when the
// notice originates from our own withdrawal call; notices found by polling
// carry none.
type TxNotice struct {
	Category string `json:"category"`

	Account      *int64 `json:"account,omitempty"`
	OtherAccount *int64 `json:"otherAccount,omitempty"`

	Address string `json:"address"`
	TxID    string `json:"txid"`
	Symbol  string `json:"symbol"`

	Amount decimal.Decimal `json:"amount"`
	Fee    decimal.Decimal `json:"fee"`

	Comment string `json:"comment,omitempty"`

	Confirmations int64     `json:"confirmations"`
	CreatedTime   time.Time `json:"createdTime"`
}

// Set is the collection of registered adapters, keyed by upper-case symbol.
// Built once at process start and passed to whoever needs currency policy.
type Set struct {
	adapters map[string]Adapter
}

func NewSet() *Set {
	return &Set{
		adapters: map[string]Adapter{},
	}
}

func (s *Set) Register(a Adapter) {
	s.adapters[strings.ToUpper(a.Symbol())] = a
}

func (s *Set) Get(symbol string) (Adapter, error) {
	a, ok := s.adapters[strings.ToUpper(symbol)]
	if !ok {
		return nil, ErrUnknownCurrency
	}
	return a, nil
}

func (s *Set) All() []Adapter {
	out := make([]Adapter, 0, len(s.adapters))
	for _, a := range s.adapters {
		out = append(out, a)
	}
	return out
}
