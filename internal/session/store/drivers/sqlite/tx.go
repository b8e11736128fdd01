package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/aussiebroadwan/passport/internal/session/store"
)

// storeTx scopes a Store to a single transaction. The embedded Store's q is
// the *sql.Tx, so every repository call runs inside it.
type storeTx struct {
	Store
	tx *sql.Tx
}

func (t *storeTx) Commit() error   { return t.tx.Commit() }
func (t *storeTx) Rollback() error { return t.tx.Rollback() }

// Nested transactions are not supported; the interface requires these but
// calling them inside a Tx is a programming error.
func (t *storeTx) Tx(context.Context) (store.Tx, error) {
	return nil, errors.New("sqlite: nested transactions are not supported")
}

func (t *storeTx) WithTx(context.Context, func(tx store.Tx) error) error {
	return errors.New("sqlite: nested transactions are not supported")
}

func (t *storeTx) ApplyMigrations() error {
	return errors.New("sqlite: cannot migrate inside a transaction")
}

func (t *storeTx) Close() error { return nil }
