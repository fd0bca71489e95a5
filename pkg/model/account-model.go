package model

import (
	"strconv"

	"gorm.io/gorm"
)

// Account model
//
// Minimal identity record. Authentication lives elsewhere; walletd only needs
// a display name so listings and outbound events never leak raw numeric ids.
type Account struct {
	ID int64 `json:"id" gorm:"omitempty; primaryKey;"`

	Name  string `json:"name" gorm:"omitempty; not null; type:varchar(48); unique;"`
	Email string `json:"email" gorm:"omitempty; not null; type:varchar(64); default:'';"`

	Model
}

// AccountName resolves an account id to its display name, falling back to the
// formatted id for accounts that have no record.
func AccountName(db *gorm.DB, id int64) string {
	var acc Account
	err := db.Model(Account{}).Where("`id`=?", id).Limit(1).Find(&acc).Error
	if err != nil || acc.Name == "" {
		return "account:" + strconv.FormatInt(id, 10)
	}
	return acc.Name
}
