// Package registry owns the account-address bindings that attribute inbound
// deposits. One address has one owner per currency, first write wins.
package registry

import (
	"errors"
	"fmt"
	"time"

	"walletd/pkg/adapter"
	"walletd/pkg/events"
	"walletd/pkg/journal"
	"walletd/pkg/locks"
	"walletd/pkg/model"
	"walletd/pkg/xlog"

	"gorm.io/gorm"
)

var logger = xlog.GetLogger()

var (
	// ErrAddressCollision means the backend handed out an address that is
	// already bound to another account. Surfaced, never papered over:
	// returning someone else's deposit address would misroute funds.
	ErrAddressCollision = errors.New("address already bound to another account")

	ErrWriteFailed = errors.New("address binding write failed")
)

type Registry struct {
	db      *gorm.DB
	keyed   locks.Keyed
	jrn     *journal.Journal
	emitter events.Emitter
}

func New(db *gorm.DB, keyed locks.Keyed, jrn *journal.Journal, emitter events.Emitter) *Registry {
	return &Registry{
		db:      db,
		keyed:   keyed,
		jrn:     jrn,
		emitter: emitter,
	}
}

// GetOrCreate returns the account's current deposit address for one
// currency, asking the backend for a fresh one only when no binding exists
// yet. It takes the same per-(account, symbol) lock as the teller so a
// transfer and a first-time allocation can't interleave.
func (r *Registry) GetOrCreate(account int64, symbol string, a adapter.Adapter) (address string, err error) {
	release, err := r.keyed.Acquire(locks.AccountKey(account, symbol), locks.DefaultWait)
	if err != nil {
		return "", err
	}
	defer release()

	var row model.Address
	err = r.db.Model(model.Address{}).
		Where("`account`=? AND `symbol`=?", account, symbol).
		Order("created_at desc").
		Limit(1).
		Find(&row).Error
	if err != nil {
		logger.Errorf("GetOrCreate(%d, %s) lookup failed with err:%s", account, symbol, err)
		return "", fmt.Errorf("%w: %s", ErrWriteFailed, err)
	}
	if row.Address != "" {
		// idempotent reuse, the backend is not consulted again
		return row.Address, nil
	}

	address, err = a.NewAddress()
	if err != nil {
		logger.Errorf("GetOrCreate(%d, %s) adapter NewAddress failed with err:%s", account, symbol, err)
		return "", err
	}

	row = model.Address{
		Account: account,
		Symbol:  symbol,
		Address: address,
	}
	err = r.db.Create(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			logger.Errorf("GetOrCreate(%d, %s) address %s already bound", account, symbol, address)
			return "", ErrAddressCollision
		}
		logger.Errorf("GetOrCreate(%d, %s) insert failed with err:%s", account, symbol, err)
		return "", fmt.Errorf("%w: %s", ErrWriteFailed, err)
	}

	if r.jrn != nil {
		if jerr := r.jrn.Record(journal.KindAddressBound, row); jerr != nil {
			logger.Errorf("journal record(address) failed with err:%s", jerr)
		}
	}
	if r.emitter != nil {
		r.emitter.Emit(events.Event{
			Kind:        events.KindAddress,
			Account:     model.AccountName(r.db, account),
			Address:     address,
			Symbol:      symbol,
			CreatedTime: time.Now(),
		})
	}

	logger.Infof("bound address %s to account %d for %s", address, account, symbol)

	return address, nil
}

// ResolveAccount maps an address back to its owner for one currency, using
// the most recently created binding. ok is false for addresses this system
// has never handed out.
func (r *Registry) ResolveAccount(symbol, address string) (account int64, ok bool, err error) {
	var row model.Address
	err = r.db.Model(model.Address{}).
		Where("`symbol`=? AND `address`=?", symbol, address).
		Order("created_at desc").
		Limit(1).
		Find(&row).Error
	if err != nil {
		logger.Errorf("ResolveAccount(%s, %s) failed with err:%s", symbol, address, err)
		return 0, false, err
	}
	if row.ID == 0 {
		return 0, false, nil
	}

	return row.Account, true, nil
}
