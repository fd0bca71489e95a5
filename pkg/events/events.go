// Package events carries the domain events the out-of-process notifier
// consumes. Emission is strictly post-commit and post-unlock: a slow
// subscriber must never hold up a transfer.
package events

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const (
	KindDeposit     = "deposit"
	KindWithdraw    = "withdraw"
	KindMoveSend    = "move-send"
	KindMoveReceive = "move-receive"
	KindAddress     = "address"
)

// Event is the finalized row as the recipient should see it: account ids
// resolved to names, no internal primary key, and no fee on the receiving
// leg of a move since the fee was charged to the sender only.
type Event struct {
	Kind string `json:"kind"`

	Account      string `json:"account"`
	OtherAccount string `json:"otherAccount,omitempty"`

	Address string `json:"address,omitempty"`
	TxID    string `json:"txid,omitempty"`
	Symbol  string `json:"symbol"`

	Amount decimal.Decimal  `json:"amount"`
	Fee    *decimal.Decimal `json:"fee,omitempty"`

	Comment string `json:"comment,omitempty"`

	Confirmations int64     `json:"confirmations"`
	CreatedTime   time.Time `json:"createdTime"`
}

type Emitter interface {
	Emit(e Event)
}

// LogEmitter writes each event to the log and keeps nothing. The fallback
// sink for daemons running without nats.
type LogEmitter struct{}

func (LogEmitter) Emit(e Event) {
	logger.Infof("event %s: account:%s symbol:%s amount:%s txid:%s confirmations:%d",
		e.Kind, e.Account, e.Symbol, e.Amount, e.TxID, e.Confirmations)
}

// Recorder keeps emitted events in memory, for tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *Recorder) ByKind(kind string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
