package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDriver struct {
	commits   int
	rollbacks int
}

func (d *stubDriver) Open(_ string) (driver.Conn, error) { return &stubConn{d: d}, nil }

type stubConn struct {
	d *stubDriver
}

func (c *stubConn) Prepare(_ string) (driver.Stmt, error) { return nil, errors.New("not supported") }
func (c *stubConn) Close() error                          { return nil }
func (c *stubConn) Begin() (driver.Tx, error)             { return &stubTx{d: c.d}, nil }

type stubTx struct {
	d *stubDriver
}

func (t *stubTx) Commit() error {
	t.d.commits++
	return nil
}

func (t *stubTx) Rollback() error {
	t.d.rollbacks++
	return nil
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func newStubDB(t *testing.T) (DB, *stubDriver) {
	t.Helper()
	drv := &stubDriver{}
	name := "stub-" + t.Name()
	sql.Register(name, drv)
	sqldb, err := sql.Open(name, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqldb.Close() })
	return NewDatabaseInstance(sqlx.NewDb(sqldb, name), testLogger()), drv
}

func TestTransactionRollbackReachesDriver(t *testing.T) {
	db, drv := newStubDB(t)

	ctxTx, tx, err := db.GetTx(context.Background(), &sql.TxOptions{})
	require.NoError(t, err)
	require.True(t, tx.IsOpen())

	// the owner's deferred rollback must release the transaction even
	// though the context carries the open-transaction marker
	require.NoError(t, tx.Rollback(ctxTx))
	assert.Equal(t, 1, drv.rollbacks)
	assert.False(t, tx.IsOpen())
}

func TestTransactionRollbackAfterCommitIsNoop(t *testing.T) {
	db, drv := newStubDB(t)

	ctxTx, tx, err := db.GetTx(context.Background(), &sql.TxOptions{})
	require.NoError(t, err)

	require.NoError(t, tx.Commit(ctxTx))
	require.NoError(t, tx.Rollback(ctxTx))

	assert.Equal(t, 1, drv.commits)
	assert.Equal(t, 0, drv.rollbacks)
}

func TestNestedTransactionDoesNotCloseOwner(t *testing.T) {
	db, drv := newStubDB(t)

	ctxTx, outer, err := db.GetTx(context.Background(), &sql.TxOptions{})
	require.NoError(t, err)

	// a repository call inside the transaction joins it
	nestedCtx, inner, err := db.GetTx(ctxTx, &sql.TxOptions{})
	require.NoError(t, err)

	require.NoError(t, inner.Rollback(nestedCtx))
	require.NoError(t, inner.Commit(nestedCtx))
	assert.Equal(t, 0, drv.rollbacks)
	assert.Equal(t, 0, drv.commits)
	assert.True(t, outer.IsOpen())

	require.NoError(t, outer.Commit(ctxTx))
	assert.Equal(t, 1, drv.commits)
}
