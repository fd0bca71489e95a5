// Package bitcoin adapts a bitcoind-compatible wallet daemon (bitcoind,
// litecoind, dogecoind and friends speak the same JSON-RPC) to the walletd
// adapter contract.
package bitcoin

import (
	"fmt"
	"time"

	"walletd/pkg/adapter"
	"walletd/pkg/config"
	"walletd/pkg/model"
	"walletd/pkg/xlog"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/shopspring/decimal"
)

var logger = xlog.GetLogger()

// how far back listtransactions looks on each poll; deep enough to re-cover
// anything a missed push notification could have skipped
const pollDepth = 100

type Adapter struct {
	client *rpcclient.Client
	params *chaincfg.Params

	symbol      string
	minconf     int64
	withdrawFee decimal.Decimal
	moveFee     decimal.Decimal

	// notify hands discovered transactions to the reconciler
	notify func(adapter.TxNotice) error
}

func New(cfg config.Coin, notify func(adapter.TxNotice) error) (a *Adapter, err error) {
	client, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		User:         cfg.User,
		Pass:         cfg.Pass,
		HTTPPostMode: true, // wallet daemons only speak HTTP POST
		DisableTLS:   true,
	}, nil)
	if err != nil {
		return
	}

	withdrawFee, err := parseFee(cfg.WithdrawFee)
	if err != nil {
		return nil, fmt.Errorf("bad withdraw_fee for %s: %w", cfg.Symbol, err)
	}
	moveFee, err := parseFee(cfg.MoveFee)
	if err != nil {
		return nil, fmt.Errorf("bad move_fee for %s: %w", cfg.Symbol, err)
	}

	a = &Adapter{
		client:      client,
		params:      &chaincfg.MainNetParams,
		symbol:      cfg.Symbol,
		minconf:     int64(cfg.MinConf),
		withdrawFee: withdrawFee,
		moveFee:     moveFee,
		notify:      notify,
	}
	return
}

func parseFee(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func (a *Adapter) Symbol() string {
	return a.symbol
}

func (a *Adapter) MinConf() int64 {
	return a.minconf
}

func (a *Adapter) WithdrawFee() decimal.Decimal {
	return a.withdrawFee
}

func (a *Adapter) MoveFee() decimal.Decimal {
	return a.moveFee
}

func (a *Adapter) Send(address string, amount decimal.Decimal, comment, commentTo string) (txid string, err error) {
	addr, err := btcutil.DecodeAddress(address, a.params)
	if err != nil {
		return "", fmt.Errorf("bad %s address %q: %w", a.symbol, address, err)
	}

	amt, err := btcutil.NewAmount(amount.InexactFloat64())
	if err != nil {
		return "", err
	}

	hash, err := a.client.SendToAddressComment(addr, amt, comment, commentTo)
	if err != nil {
		return "", err
	}

	return hash.String(), nil
}

func (a *Adapter) NewAddress() (address string, err error) {
	addr, err := a.client.GetNewAddress("")
	if err != nil {
		return
	}

	return addr.EncodeAddress(), nil
}

// Poll re-reads the wallet's recent transactions and feeds each one to the
// reconciler as a notice. Every transaction is re-reported on every tick;
// the ledger's idempotent upsert turns redeliveries into confirmation
// refreshes.
func (a *Adapter) Poll() (err error) {
	results, err := a.client.ListTransactionsCountFrom("*", pollDepth, 0)
	if err != nil {
		return
	}

	for _, r := range results {
		var category string
		switch r.Category {
		case "receive":
			category = model.CategoryDeposit
		case "send":
			category = model.CategoryWithdraw
		default:
			continue // generate, orphan etc. are not ledger events
		}

		n := adapter.TxNotice{
			Category:      category,
			Address:       r.Address,
			TxID:          r.TxID,
			Symbol:        a.symbol,
			Amount:        decimal.NewFromFloat(r.Amount),
			Confirmations: r.Confirmations,
			CreatedTime:   time.Unix(r.Time, 0),
		}
		if r.Fee != nil {
			n.Fee = decimal.NewFromFloat(*r.Fee).Abs()
		}

		nerr := a.notify(n)
		if nerr != nil {
			logger.Errorf("poll notice %s/%s failed with err:%s", a.symbol, r.TxID, nerr)
		}
	}

	return nil
}

func (a *Adapter) Close() {
	a.client.Shutdown()
}
