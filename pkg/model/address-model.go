package model

// Address model
//
// Binds a deposit address to an account for one currency. An address belongs
// to exactly one account per currency (unique on address+symbol); an account
// may accumulate several addresses over time, the newest one is current.
// Rows are written once and never mutated.
type Address struct {
	ID int64 `json:"-" gorm:"omitempty; primaryKey;"`

	Account int64  `json:"account" gorm:"omitempty; not null; default:0; index:idx_a_account_symbol;"`
	Symbol  string `json:"symbol" gorm:"omitempty; not null; default:''; type:varchar(8); index:idx_a_account_symbol; uniqueindex:idx_a_address_symbol;"`
	Address string `json:"address" gorm:"omitempty; not null; default:''; type:varchar(255); index; uniqueindex:idx_a_address_symbol;"`

	Model
}
