package events_test

import (
	"testing"

	"walletd/pkg/events"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestRecorderByKind(t *testing.T) {
	rec := events.NewRecorder()
	rec.Emit(events.Event{Kind: events.KindDeposit, TxID: "tx1"})
	rec.Emit(events.Event{Kind: events.KindWithdraw, TxID: "tx2"})
	rec.Emit(events.Event{Kind: events.KindDeposit, TxID: "tx3"})

	require.Len(t, rec.Events(), 3)
	require.Len(t, rec.ByKind(events.KindDeposit), 2)
	require.Empty(t, rec.ByKind(events.KindMoveSend))
}

func TestLogEmitter(t *testing.T) {
	var e events.Emitter = events.LogEmitter{}

	// every field populated and every field zero both just log
	fee := decimal.NewFromFloat(0.1)
	e.Emit(events.Event{
		Kind:    events.KindWithdraw,
		Account: "alice",
		TxID:    "tx1",
		Symbol:  "BTC",
		Amount:  decimal.NewFromInt(-1),
		Fee:     &fee,
	})
	e.Emit(events.Event{})
}
