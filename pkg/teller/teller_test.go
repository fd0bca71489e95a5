package teller_test

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"walletd/pkg/adapter"
	"walletd/pkg/events"
	"walletd/pkg/journal"
	"walletd/pkg/ledger"
	"walletd/pkg/locks"
	"walletd/pkg/model"
	"walletd/pkg/teller"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

type fakeAdapter struct {
	symbol      string
	minconf     int64
	withdrawFee decimal.Decimal
	moveFee     decimal.Decimal

	sends   int32
	news    int32
	sendErr error
	noTxID  bool
}

func (f *fakeAdapter) Symbol() string               { return f.symbol }
func (f *fakeAdapter) MinConf() int64               { return f.minconf }
func (f *fakeAdapter) WithdrawFee() decimal.Decimal { return f.withdrawFee }
func (f *fakeAdapter) MoveFee() decimal.Decimal     { return f.moveFee }

func (f *fakeAdapter) Send(address string, amount decimal.Decimal, comment, commentTo string) (string, error) {
	n := atomic.AddInt32(&f.sends, 1)
	if f.sendErr != nil {
		return "", f.sendErr
	}
	if f.noTxID {
		return "", nil
	}
	return fmt.Sprintf("tx-fake-%d", n), nil
}

func (f *fakeAdapter) NewAddress() (string, error) {
	return fmt.Sprintf("addr-fake-%d", atomic.AddInt32(&f.news, 1)), nil
}

type fixture struct {
	ldg *ledger.Ledger
	tlr *teller.Teller
	rec *events.Recorder
	fa  *fakeAdapter
}

func setup(t *testing.T) *fixture {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		TranslateError: true,
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
	})
	require.Nil(t, err)
	require.Nil(t, model.Migrate(db))

	jrn, err := journal.New(filepath.Join(t.TempDir(), "ledger.log"))
	require.Nil(t, err)
	t.Cleanup(func() { jrn.Close() })

	fa := &fakeAdapter{
		symbol:      "BTC",
		withdrawFee: dec("0.1"),
		moveFee:     dec("0.01"),
	}
	set := adapter.NewSet()
	set.Register(fa)

	ldg := ledger.New(db, jrn)
	rec := events.NewRecorder()

	return &fixture{
		ldg: ldg,
		tlr: teller.New(set, ldg, locks.NewLocal(), rec),
		rec: rec,
		fa:  fa,
	}
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (f *fixture) fund(t *testing.T, account int64, amount string) {
	_, err := f.ldg.UpsertDeposit(&model.Transaction{
		Category:      model.CategoryDeposit,
		Account:       account,
		Address:       fmt.Sprintf("1fund%d", account),
		TxID:          fmt.Sprintf("tx-fund-%d-%s", account, amount),
		Symbol:        "BTC",
		Amount:        dec(amount),
		Confirmations: 6,
	})
	require.Nil(t, err)
}

func TestWithdraw(t *testing.T) {
	f := setup(t)
	f.fund(t, 1, "2")

	txid, err := f.tlr.Withdraw(1, "BTC", "1dst", dec("1"), "rent", "")
	require.Nil(t, err)
	require.NotEmpty(t, txid)

	// the row debits amount plus fee
	balance, err := f.ldg.Balance(1, "BTC", 0)
	require.Nil(t, err)
	require.True(t, balance.Equal(dec("0.9")), "balance was %s", balance)

	var row model.Transaction
	err = f.ldg.DB().Where("`tx_id`=?", txid).First(&row).Error
	require.Nil(t, err)
	require.True(t, row.Amount.Equal(dec("-1.1")), "amount was %s", row.Amount)
	require.True(t, row.Fee.Equal(dec("0.1")))
	require.EqualValues(t, 0, row.Confirmations)

	got := f.rec.ByKind(events.KindWithdraw)
	require.Len(t, got, 1)
	require.Equal(t, txid, got[0].TxID)
	require.NotNil(t, got[0].Fee)
}

func TestWithdrawInsufficientFunds(t *testing.T) {
	f := setup(t)
	f.fund(t, 1, "1")

	// 1 + 0.1 fee > 1
	_, err := f.tlr.Withdraw(1, "BTC", "1dst", dec("1"), "", "")
	require.ErrorIs(t, err, teller.ErrInsufficientFunds)

	var ife *teller.InsufficientFundsError
	require.True(t, errors.As(err, &ife))
	require.True(t, ife.Balance.Equal(dec("1")))

	// nothing sent, nothing recorded
	require.EqualValues(t, 0, f.fa.sends)
	balance, err := f.ldg.Balance(1, "BTC", 0)
	require.Nil(t, err)
	require.True(t, balance.Equal(dec("1")))
	require.Empty(t, f.rec.Events())

	// the scope is released on failure, a viable retry goes through
	_, err = f.tlr.Withdraw(1, "BTC", "1dst", dec("0.5"), "", "")
	require.Nil(t, err)
}

func TestWithdrawRejections(t *testing.T) {
	f := setup(t)
	f.fund(t, 1, "5")

	_, err := f.tlr.Withdraw(1, "XYZ", "1dst", dec("1"), "", "")
	require.ErrorIs(t, err, adapter.ErrUnknownCurrency)

	_, err = f.tlr.Withdraw(1, "BTC", "1dst", dec("-1"), "", "")
	require.ErrorIs(t, err, teller.ErrInvalidAmount)

	require.EqualValues(t, 0, f.fa.sends)
}

func TestWithdrawNoTxID(t *testing.T) {
	f := setup(t)
	f.fund(t, 1, "5")
	f.fa.noTxID = true

	_, err := f.tlr.Withdraw(1, "BTC", "1dst", dec("1"), "", "")
	require.ErrorIs(t, err, teller.ErrAdapterProtocol)

	// the send happened but nothing was credited or debited
	require.EqualValues(t, 1, f.fa.sends)
	balance, err := f.ldg.Balance(1, "BTC", 0)
	require.Nil(t, err)
	require.True(t, balance.Equal(dec("5")))
}

func TestWithdrawConcurrent(t *testing.T) {
	f := setup(t)
	// room for exactly one 1 + 0.1 withdrawal
	f.fund(t, 1, "1.2")

	const n = 8
	var ok, insufficient int32
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := f.tlr.Withdraw(1, "BTC", "1dst", dec("1"), "", "")
			if err == nil {
				atomic.AddInt32(&ok, 1)
				return
			}
			if errors.Is(err, teller.ErrInsufficientFunds) {
				atomic.AddInt32(&insufficient, 1)
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, ok)
	require.EqualValues(t, n-1, insufficient)
	require.EqualValues(t, 1, f.fa.sends)

	balance, err := f.ldg.Balance(1, "BTC", 0)
	require.Nil(t, err)
	require.True(t, balance.Equal(dec("0.1")), "balance was %s", balance)
}

func TestMove(t *testing.T) {
	f := setup(t)
	f.fund(t, 1, "2")
	require.Nil(t, f.ldg.DB().Create(&model.Account{ID: 2, Name: "carol"}).Error)

	err := f.tlr.Move(1, 2, "BTC", dec("1"), "split the bill")
	require.Nil(t, err)

	from, err := f.ldg.Balance(1, "BTC", 0)
	require.Nil(t, err)
	require.True(t, from.Equal(dec("0.99")), "sender balance was %s", from)

	to, err := f.ldg.Balance(2, "BTC", 0)
	require.Nil(t, err)
	require.True(t, to.Equal(dec("1")), "recipient balance was %s", to)

	// nothing touched the network
	require.EqualValues(t, 0, f.fa.sends)

	sent := f.rec.ByKind(events.KindMoveSend)
	require.Len(t, sent, 1)
	require.Equal(t, "carol", sent[0].OtherAccount)
	require.NotNil(t, sent[0].Fee)

	recv := f.rec.ByKind(events.KindMoveReceive)
	require.Len(t, recv, 1)
	require.Equal(t, "carol", recv[0].Account)
	require.Nil(t, recv[0].Fee)

	// the two legs share a txid base
	require.Equal(t, sent[0].TxID[:len(sent[0].TxID)-len("-send")],
		recv[0].TxID[:len(recv[0].TxID)-len("-receive")])
}

func TestMoveInsufficientFunds(t *testing.T) {
	f := setup(t)
	f.fund(t, 1, "1")

	err := f.tlr.Move(1, 2, "BTC", dec("1"), "")
	require.ErrorIs(t, err, teller.ErrInsufficientFunds)

	// neither side changed
	from, err := f.ldg.Balance(1, "BTC", 0)
	require.Nil(t, err)
	require.True(t, from.Equal(dec("1")))

	to, err := f.ldg.Balance(2, "BTC", 0)
	require.Nil(t, err)
	require.True(t, to.IsZero())
	require.Empty(t, f.rec.Events())
}
