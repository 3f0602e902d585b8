package repo

import (
	"context"

	"gorm.io/gorm"
)

// Base is embedded by the domain repositories so they share one way of
// binding queries to a request context. A repository scoped to a
// transaction is just a Base built from the transaction handle.
type Base struct {
	db *gorm.DB
}

// NewBase wraps a GORM connection or transaction handle.
func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB returns the connection bound to ctx. A nil context returns the raw
// handle unchanged.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}
