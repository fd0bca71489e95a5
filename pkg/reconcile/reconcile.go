// Package reconcile turns external transaction notices into idempotent
// ledger writes. Notices arrive out of order, duplicated, and partial; the
// ledger's (address, txid) uniqueness does the dedup, so processing is safe
// to run concurrently with itself and with transfers.
package reconcile

import (
	"errors"

	"walletd/pkg/adapter"
	"walletd/pkg/events"
	"walletd/pkg/ledger"
	"walletd/pkg/model"
	"walletd/pkg/registry"
	"walletd/pkg/xlog"
)

var logger = xlog.GetLogger()

type Reconciler struct {
	adapters *adapter.Set
	ldg      *ledger.Ledger
	reg      *registry.Registry
	emitter  events.Emitter
}

func New(adapters *adapter.Set, ldg *ledger.Ledger, reg *registry.Registry, emitter events.Emitter) *Reconciler {
	return &Reconciler{
		adapters: adapters,
		ldg:      ldg,
		reg:      reg,
		emitter:  emitter,
	}
}

// OnNotice applies one notice. Notices for unknown currencies, unknown
// categories, or deposit addresses this system never handed out are dropped
// without error: backends report everything their wallet sees, most of which
// is not ours to record.
func (r *Reconciler) OnNotice(n adapter.TxNotice) (err error) {
	a, err := r.adapters.Get(n.Symbol)
	if err != nil {
		if errors.Is(err, adapter.ErrUnknownCurrency) {
			logger.Debugf("notice for unregistered currency %s ignored", n.Symbol)
			return nil
		}
		return err
	}

	switch n.Category {
	case model.CategoryDeposit:
		return r.onDeposit(a, n)
	case model.CategoryWithdraw:
		return r.onWithdraw(n)
	default:
		logger.Debugf("notice category %q ignored", n.Category)
		return nil
	}
}

func (r *Reconciler) onDeposit(a adapter.Adapter, n adapter.TxNotice) (err error) {
	account, ok, err := r.reg.ResolveAccount(a.Symbol(), n.Address)
	if err != nil {
		return err
	}
	if !ok {
		// not one of ours: stale address or another wallet on the same node
		logger.Debugf("deposit to unknown %s address %s ignored", n.Symbol, n.Address)
		return nil
	}

	row := model.Transaction{
		Category:      model.CategoryDeposit,
		Account:       account,
		Address:       n.Address,
		TxID:          n.TxID,
		Symbol:        a.Symbol(),
		Amount:        n.Amount,
		Comment:       n.Comment,
		Confirmations: n.Confirmations,
	}
	if !n.CreatedTime.IsZero() {
		row.CreatedAt = n.CreatedTime
	}

	outcome, err := r.ldg.UpsertDeposit(&row)
	if err != nil {
		return err
	}

	// only the first sight announces the deposit, confirmation refreshes stay quiet
	if outcome == ledger.Inserted && r.emitter != nil {
		r.emitter.Emit(events.Event{
			Kind:          events.KindDeposit,
			Account:       model.AccountName(r.ldg.DB(), account),
			Address:       row.Address,
			TxID:          row.TxID,
			Symbol:        row.Symbol,
			Amount:        row.Amount,
			Confirmations: row.Confirmations,
			CreatedTime:   row.CreatedAt,
		})
	}

	return nil
}

func (r *Reconciler) onWithdraw(n adapter.TxNotice) (err error) {
	if n.Account == nil {
		// rediscovered by polling: the initiating call already recorded the
		// row, this can only be a confirmation refresh
		_, err = r.ldg.UpdateConfirmations(n.Address, n.TxID, n.Confirmations)
		return err
	}

	row := model.Transaction{
		Category: model.CategoryWithdraw,
		Account:  *n.Account,
		Address:  n.Address,
		TxID:     n.TxID,
		Symbol:   n.Symbol,
		Amount:   n.Amount,
		Fee:      n.Fee,
		Comment:  n.Comment,
	}
	if !n.CreatedTime.IsZero() {
		row.CreatedAt = n.CreatedTime
	}

	_, err = r.ldg.UpsertWithdrawal(&row, n.Confirmations)
	return err
}
