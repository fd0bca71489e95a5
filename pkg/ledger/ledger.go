// Package ledger owns the transaction table: appends from the teller,
// idempotent upserts from the reconciler, and the balance rule.
//
// Rows are append-mostly. After creation only updated_time and confirmations
// ever change, and nothing is ever deleted. The unique (address, txid) index
// is the arbiter of first-vs-duplicate for external notifications, so upserts
// are safe to run concurrently without any lock.
package ledger

import (
	"errors"
	"fmt"

	"walletd/pkg/journal"
	"walletd/pkg/model"
	"walletd/pkg/xlog"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var logger = xlog.GetLogger()

var ErrWriteFailed = errors.New("ledger write failed")

// Outcome reports whether an upsert saw the row for the first time.
type Outcome int

const (
	Inserted Outcome = iota + 1
	Updated
)

type Ledger struct {
	db  *gorm.DB
	jrn *journal.Journal
}

func New(db *gorm.DB, jrn *journal.Journal) *Ledger {
	return &Ledger{
		db:  db,
		jrn: jrn,
	}
}

func (l *Ledger) DB() *gorm.DB {
	return l.db
}

// Balance sums signed amounts for one account and currency. Deposits count
// only at or above minconf; withdrawals and moves always count, whatever
// their confirmation state, so spent funds can never be spent again while
// the network catches up.
//
// Summation happens here with exact decimals rather than in SQL. A balance
// read is only authoritative inside the teller's exclusive scope; anywhere
// else it is a best-effort snapshot.
func (l *Ledger) Balance(account int64, symbol string, minconf int64) (sum decimal.Decimal, err error) {
	var txs []model.Transaction
	err = l.db.Model(model.Transaction{}).
		Where("`account`=? AND `symbol`=?", account, symbol).
		Where("`confirmations`>=? OR `category`!=?", minconf, model.CategoryDeposit).
		Find(&txs).Error
	if err != nil {
		logger.Errorf("Balance(%d, %s) failed with err:%s", account, symbol, err)
		return
	}

	for _, tx := range txs {
		sum = sum.Add(tx.Amount)
	}

	return
}

// AppendWithdrawal records the debit row the teller creates after a
// successful adapter send. The caller holds the account's exclusive scope.
func (l *Ledger) AppendWithdrawal(tx *model.Transaction) (err error) {
	err = l.db.Create(tx).Error
	if err != nil {
		logger.Errorf("AppendWithdrawal failed with err:%s, row:%+v", err, tx)
		l.record(journal.KindWriteFailed, tx)
		return fmt.Errorf("%w: %s", ErrWriteFailed, err)
	}

	l.record(journal.KindWithdraw, tx)

	return
}

// AppendTransferPair records both legs of a move. If the receiver leg fails
// after the sender leg committed, the failure is journaled with the full row
// for manual reconciliation instead of rolling back the committed debit:
// blindly undoing a debit that another transfer may already have observed is
// worse than an operator fixing one credit by hand.
func (l *Ledger) AppendTransferPair(send, recv *model.Transaction) (err error) {
	err = l.db.Create(send).Error
	if err != nil {
		logger.Errorf("AppendTransferPair send leg failed with err:%s, row:%+v", err, send)
		l.record(journal.KindWriteFailed, send)
		return fmt.Errorf("%w: %s", ErrWriteFailed, err)
	}
	l.record(journal.KindMoveSend, send)

	err = l.db.Create(recv).Error
	if err != nil {
		logger.Errorf("AppendTransferPair receive leg failed with err:%s, row:%+v", err, recv)
		l.record(journal.KindWriteFailed, recv)
		return fmt.Errorf("%w: %s", ErrWriteFailed, err)
	}
	l.record(journal.KindMoveReceive, recv)

	return
}

// UpsertDeposit applies a deposit notification. First sight of an
// (address, txid) pair inserts the row and reports Inserted; every
// redelivery only refreshes updated_time and confirmations. Amount, account
// and category are never altered once the row exists.
func (l *Ledger) UpsertDeposit(tx *model.Transaction) (outcome Outcome, err error) {
	err = l.db.Create(tx).Error
	if err == nil {
		l.record(journal.KindDepositInsert, tx)
		return Inserted, nil
	}

	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		logger.Errorf("UpsertDeposit insert failed with err:%s, row:%+v", err, tx)
		l.record(journal.KindWriteFailed, tx)
		return 0, fmt.Errorf("%w: %s", ErrWriteFailed, err)
	}

	_, err = l.UpdateConfirmations(tx.Address, tx.TxID, tx.Confirmations)
	if err != nil {
		return 0, err
	}
	l.record(journal.KindDepositUpdate, tx)

	return Updated, nil
}

// UpsertWithdrawal applies a withdrawal notification that names its
// initiating account: try to record it as a new row, and when the row
// already exists (the teller or an earlier notice got there first) fall back
// to a confirmation refresh. A fresh row starts at zero confirmations
// whatever the notice claims; confirmations only ever arrive via updates.
func (l *Ledger) UpsertWithdrawal(tx *model.Transaction, confirmations int64) (outcome Outcome, err error) {
	tx.Confirmations = 0
	err = l.db.Create(tx).Error
	if err == nil {
		l.record(journal.KindWithdrawNotice, tx)
		return Inserted, nil
	}

	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		logger.Errorf("UpsertWithdrawal insert failed with err:%s, row:%+v", err, tx)
		l.record(journal.KindWriteFailed, tx)
		return 0, fmt.Errorf("%w: %s", ErrWriteFailed, err)
	}

	_, err = l.UpdateConfirmations(tx.Address, tx.TxID, confirmations)
	if err != nil {
		return 0, err
	}

	return Updated, nil
}

// UpdateConfirmations refreshes the confirmation count of an existing
// deposit or withdrawal row. Matching no row is not an error: polling can
// rediscover transactions this system never initiated, those are journaled
// and skipped.
func (l *Ledger) UpdateConfirmations(address, txid string, confirmations int64) (matched int64, err error) {
	res := l.db.Model(model.Transaction{}).
		Where("`address`=? AND `tx_id`=?", address, txid).
		Updates(map[string]interface{}{"confirmations": confirmations})
	if res.Error != nil {
		logger.Errorf("UpdateConfirmations(%s, %s) failed with err:%s", address, txid, res.Error)
		return 0, fmt.Errorf("%w: %s", ErrWriteFailed, res.Error)
	}

	matched = res.RowsAffected
	if matched == 0 {
		logger.Warningf("UpdateConfirmations(%s, %s) matched no row, skipped", address, txid)
		l.record(journal.KindOrphanNotice, map[string]interface{}{
			"address":       address,
			"txid":          txid,
			"confirmations": confirmations,
		})
	}

	return
}

func (l *Ledger) record(kind string, data interface{}) {
	if l.jrn == nil {
		return
	}
	err := l.jrn.Record(kind, data)
	if err != nil {
		logger.Errorf("journal record(%s) failed with err:%s", kind, err)
	}
}
