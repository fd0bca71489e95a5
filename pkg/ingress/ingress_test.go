package ingress

import (
	"fmt"
	"path/filepath"
	"testing"

	"walletd/pkg/adapter"
	"walletd/pkg/ledger"
	"walletd/pkg/locks"
	"walletd/pkg/model"
	"walletd/pkg/registry"
	"walletd/pkg/teller"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

type fakeAdapter struct {
	nextAddress int
}

func (f *fakeAdapter) Symbol() string               { return "BTC" }
func (f *fakeAdapter) MinConf() int64               { return 2 }
func (f *fakeAdapter) WithdrawFee() decimal.Decimal { return decimal.NewFromFloat(0.1) }
func (f *fakeAdapter) MoveFee() decimal.Decimal     { return decimal.Zero }

func (f *fakeAdapter) Send(address string, amount decimal.Decimal, comment, commentTo string) (string, error) {
	return "tx-fake", nil
}

func (f *fakeAdapter) NewAddress() (string, error) {
	f.nextAddress++
	return fmt.Sprintf("1fake%d", f.nextAddress), nil
}

func testWorker(t *testing.T) *Worker {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		TranslateError: true,
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
	})
	require.Nil(t, err)
	require.Nil(t, model.Migrate(db))

	set := adapter.NewSet()
	set.Register(&fakeAdapter{})

	keyed := locks.NewLocal()
	ldg := ledger.New(db, nil)

	return &Worker{
		tlr:      teller.New(set, ldg, keyed, nil),
		reg:      registry.New(db, keyed, nil, nil),
		ldg:      ldg,
		adapters: set,
	}
}

func TestAddressRequest(t *testing.T) {
	w := testWorker(t)

	reply := w.address(AddressReq{Account: 7, Symbol: "btc"})
	require.True(t, reply.OK, "error was %q", reply.Error)
	require.Equal(t, "1fake1", reply.Address)

	// same account asks again, same binding comes back
	again := w.address(AddressReq{Account: 7, Symbol: "BTC"})
	require.True(t, again.OK)
	require.Equal(t, reply.Address, again.Address)

	// and a deposit to it now resolves
	account, ok, err := w.reg.ResolveAccount("BTC", reply.Address)
	require.Nil(t, err)
	require.True(t, ok)
	require.EqualValues(t, 7, account)
}

func TestAddressRequestUnknownCurrency(t *testing.T) {
	w := testWorker(t)

	reply := w.address(AddressReq{Account: 7, Symbol: "DOGE"})
	require.False(t, reply.OK)
	require.NotEmpty(t, reply.Error)
}

func TestListRequest(t *testing.T) {
	w := testWorker(t)

	_, err := w.ldg.UpsertDeposit(&model.Transaction{
		Category:      model.CategoryDeposit,
		Account:       7,
		Address:       "1dep",
		TxID:          "tx1",
		Symbol:        "BTC",
		Amount:        decimal.NewFromInt(2),
		Confirmations: 6,
	})
	require.Nil(t, err)
	_, err = w.ldg.UpsertDeposit(&model.Transaction{
		Category: model.CategoryDeposit,
		Account:  7,
		Address:  "1dep",
		TxID:     "tx2",
		Symbol:   "BTC",
		Amount:   decimal.NewFromInt(1),
	})
	require.Nil(t, err)

	// the adapter's minconf hides the unconfirmed deposit
	reply := w.list(ListReq{Account: 7, Symbol: "BTC"})
	require.True(t, reply.OK, "error was %q", reply.Error)
	require.Len(t, reply.Entries, 1)
	require.Equal(t, "tx1", reply.Entries[0].TxID)

	bad := w.list(ListReq{Account: 7, Symbol: "XYZ"})
	require.False(t, bad.OK)
	require.NotEmpty(t, bad.Error)
}

func TestWithdrawRequest(t *testing.T) {
	w := testWorker(t)

	_, err := w.ldg.UpsertDeposit(&model.Transaction{
		Category:      model.CategoryDeposit,
		Account:       7,
		Address:       "1dep",
		TxID:          "tx1",
		Symbol:        "BTC",
		Amount:        decimal.NewFromInt(2),
		Confirmations: 6,
	})
	require.Nil(t, err)

	reply := w.withdraw(WithdrawReq{Account: 7, Symbol: "BTC", Address: "1dst", Amount: decimal.NewFromInt(1)})
	require.True(t, reply.OK, "error was %q", reply.Error)
	require.Equal(t, "tx-fake", reply.TxID)

	// over-withdraw comes back as an error reply, never a dropped message
	broke := w.withdraw(WithdrawReq{Account: 7, Symbol: "BTC", Address: "1dst", Amount: decimal.NewFromInt(5)})
	require.False(t, broke.OK)
	require.NotEmpty(t, broke.Error)
}

func TestMoveRequest(t *testing.T) {
	w := testWorker(t)

	_, err := w.ldg.UpsertDeposit(&model.Transaction{
		Category:      model.CategoryDeposit,
		Account:       7,
		Address:       "1dep",
		TxID:          "tx1",
		Symbol:        "BTC",
		Amount:        decimal.NewFromInt(2),
		Confirmations: 6,
	})
	require.Nil(t, err)

	reply := w.move(MoveReq{From: 7, To: 8, Symbol: "BTC", Amount: decimal.NewFromInt(1)})
	require.True(t, reply.OK, "error was %q", reply.Error)

	balance, err := w.ldg.Balance(8, "BTC", 0)
	require.Nil(t, err)
	require.True(t, balance.Equal(decimal.NewFromInt(1)))
}
