package ledger

import (
	"time"

	"walletd/pkg/model"

	"github.com/shopspring/decimal"
)

// Entry is one row of an account statement. The internal primary key stays
// internal, and the counterpart is a display name, never a bare numeric id.
type Entry struct {
	Category string `json:"category"`

	Account      int64  `json:"account"`
	OtherAccount string `json:"otherAccount,omitempty"` // counterpart name, moves only

	Address string `json:"address,omitempty"`
	TxID    string `json:"txid"`
	Symbol  string `json:"symbol"`

	Amount decimal.Decimal `json:"amount"`
	Fee    decimal.Decimal `json:"fee"`

	Comment string `json:"comment,omitempty"`

	Confirmations int64     `json:"confirmations"`
	CreatedTime   time.Time `json:"createdTime"`
	UpdatedTime   time.Time `json:"updatedTime"`
}

// List returns an account's transactions for one currency in creation order.
// Moves appear at every confirmation level; deposits and withdrawals only at
// or above minconf.
func (l *Ledger) List(account int64, symbol string, minconf int64, limit, offset int) (entries []Entry, err error) {
	var txs []model.Transaction
	err = l.db.Model(model.Transaction{}).
		Where("`account`=? AND `symbol`=?", account, symbol).
		Where("`confirmations`>=? OR `category`=?", minconf, model.CategoryMove).
		Order("created_at asc").
		Limit(limit).
		Offset(offset).
		Find(&txs).Error
	if err != nil {
		logger.Errorf("List(%d, %s) failed with err:%s", account, symbol, err)
		return
	}

	names := map[int64]string{}
	entries = make([]Entry, 0, len(txs))
	for _, tx := range txs {
		e := Entry{
			Category:      tx.Category,
			Account:       tx.Account,
			Address:       tx.Address,
			TxID:          tx.TxID,
			Symbol:        tx.Symbol,
			Amount:        tx.Amount,
			Fee:           tx.Fee,
			Comment:       tx.Comment,
			Confirmations: tx.Confirmations,
			CreatedTime:   tx.CreatedAt,
			UpdatedTime:   tx.UpdatedAt,
		}
		if tx.OtherAccount != nil {
			name, ok := names[*tx.OtherAccount]
			if !ok {
				name = model.AccountName(l.db, *tx.OtherAccount)
				names[*tx.OtherAccount] = name
			}
			e.OtherAccount = name
		}
		entries = append(entries, e)
	}

	return
}
