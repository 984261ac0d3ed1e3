// Package repository provides data access interfaces and implementations
// for the off-chain ledger
package repository

import (
	"errors"

	"gorm.io/gorm"
)

var (
	// ErrNotFound no row matched
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate a unique key (token+contract, listing sale record) already exists
	ErrDuplicate = errors.New("record already exists")
)

// translate maps gorm errors onto repository sentinels
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return err
	}
}
