// Package teller executes withdrawals and account-to-account moves as
// check-then-act sequences under the per-(account, symbol) exclusive scope.
//
// The balance check is only meaningful while the lock is held, so every code
// path in here releases the lock before doing anything slow: events fire
// strictly after the row is durable and the scope is gone.
package teller

import (
	"errors"
	"fmt"

	"walletd/pkg/adapter"
	"walletd/pkg/events"
	"walletd/pkg/ledger"
	"walletd/pkg/locks"
	"walletd/pkg/model"
	"walletd/pkg/xlog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var logger = xlog.GetLogger()

var (
	ErrInvalidAmount = errors.New("amount must not be negative")

	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrAdapterProtocol means the backend accepted a send but returned no
	// txid. Funds may already have left the network wallet, this must reach
	// an operator, never a silent retry.
	ErrAdapterProtocol = errors.New("adapter returned no txid for send")
)

// InsufficientFundsError carries the figures for diagnostics.
// errors.Is(err, ErrInsufficientFunds) matches it.
type InsufficientFundsError struct {
	Amount  decimal.Decimal
	Fee     decimal.Decimal
	Balance decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: %s + %s fees > %s", e.Amount, e.Fee, e.Balance)
}

func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

type Teller struct {
	adapters *adapter.Set
	ldg      *ledger.Ledger
	keyed    locks.Keyed
	emitter  events.Emitter
}

func New(adapters *adapter.Set, ldg *ledger.Ledger, keyed locks.Keyed, emitter events.Emitter) *Teller {
	return &Teller{
		adapters: adapters,
		ldg:      ldg,
		keyed:    keyed,
		emitter:  emitter,
	}
}

// Withdraw sends amount to an external address, debiting amount plus the
// adapter's withdrawal fee from the account. Returns the network txid.
func (t *Teller) Withdraw(account int64, symbol, address string, amount decimal.Decimal, comment, commentTo string) (txid string, err error) {
	a, err := t.adapters.Get(symbol)
	if err != nil {
		return "", err
	}
	if amount.IsNegative() {
		return "", ErrInvalidAmount
	}

	row, err := t.withdrawLocked(a, account, address, amount, comment, commentTo)
	if err != nil {
		return "", err
	}

	// lock released, row committed
	t.emit(events.KindWithdraw, row)

	return row.TxID, nil
}

func (t *Teller) withdrawLocked(a adapter.Adapter, account int64, address string, amount decimal.Decimal, comment, commentTo string) (row *model.Transaction, err error) {
	release, err := t.keyed.Acquire(locks.AccountKey(account, a.Symbol()), locks.DefaultWait)
	if err != nil {
		return nil, err
	}
	defer release()

	fee := a.WithdrawFee()
	required := amount.Add(fee)

	balance, err := t.ldg.Balance(account, a.Symbol(), a.MinConf())
	if err != nil {
		return nil, err
	}
	if balance.LessThan(required) {
		return nil, &InsufficientFundsError{Amount: amount, Fee: fee, Balance: balance}
	}

	txid, err := a.Send(address, amount, comment, commentTo)
	if err != nil {
		logger.Errorf("withdraw send failed for account:%d %s %s, err:%s", account, amount, a.Symbol(), err)
		return nil, err
	}
	if txid == "" {
		logger.Errorf("withdraw send returned no txid for account:%d %s %s, manual check required", account, amount, a.Symbol())
		return nil, ErrAdapterProtocol
	}

	row = &model.Transaction{
		Category: model.CategoryWithdraw,
		Account:  account,
		Address:  address,
		TxID:     txid,
		Symbol:   a.Symbol(),
		Amount:   required.Neg(),
		Fee:      fee,
		Comment:  comment,
	}

	err = t.ldg.AppendWithdrawal(row)
	if err != nil {
		return nil, err
	}

	return row, nil
}

// Move transfers amount between two accounts inside the ledger, never
// touching the network. The sender is debited amount plus the move fee, the
// recipient is credited amount; the fee is retained by neither side.
func (t *Teller) Move(from, to int64, symbol string, amount decimal.Decimal, comment string) (err error) {
	a, err := t.adapters.Get(symbol)
	if err != nil {
		return err
	}
	if amount.IsNegative() {
		return ErrInvalidAmount
	}

	send, recv, err := t.moveLocked(a, from, to, amount, comment)
	if err != nil {
		return err
	}

	t.emit(events.KindMoveSend, send)
	t.emit(events.KindMoveReceive, recv)

	return nil
}

func (t *Teller) moveLocked(a adapter.Adapter, from, to int64, amount decimal.Decimal, comment string) (send, recv *model.Transaction, err error) {
	release, err := t.keyed.Acquire(locks.AccountKey(from, a.Symbol()), locks.DefaultWait)
	if err != nil {
		return nil, nil, err
	}
	defer release()

	fee := a.MoveFee()
	required := amount.Add(fee)

	balance, err := t.ldg.Balance(from, a.Symbol(), a.MinConf())
	if err != nil {
		return nil, nil, err
	}
	if balance.LessThan(required) {
		return nil, nil, &InsufficientFundsError{Amount: amount, Fee: fee, Balance: balance}
	}

	base := "move-" + uuid.New().String()

	send = &model.Transaction{
		Category:     model.CategoryMove,
		Account:      from,
		OtherAccount: &to,
		TxID:         base + "-send",
		Symbol:       a.Symbol(),
		Amount:       required.Neg(),
		Fee:          fee,
		Comment:      comment,
	}
	recv = &model.Transaction{
		Category:     model.CategoryMove,
		Account:      to,
		OtherAccount: &from,
		TxID:         base + "-receive",
		Symbol:       a.Symbol(),
		Amount:       amount,
		Comment:      comment,
	}

	err = t.ldg.AppendTransferPair(send, recv)
	if err != nil {
		return nil, nil, err
	}

	return send, recv, nil
}

func (t *Teller) emit(kind string, row *model.Transaction) {
	if t.emitter == nil {
		return
	}

	e := events.Event{
		Kind:          kind,
		Account:       model.AccountName(t.ldg.DB(), row.Account),
		Address:       row.Address,
		TxID:          row.TxID,
		Symbol:        row.Symbol,
		Amount:        row.Amount,
		Comment:       row.Comment,
		Confirmations: row.Confirmations,
		CreatedTime:   row.CreatedAt,
	}
	if row.OtherAccount != nil {
		e.OtherAccount = model.AccountName(t.ldg.DB(), *row.OtherAccount)
	}
	// the receiving leg of a move carries no fee, it was charged to the sender
	if kind != events.KindMoveReceive {
		fee := row.Fee
		e.Fee = &fee
	}

	t.emitter.Emit(e)
}
