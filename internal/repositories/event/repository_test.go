package event_test

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biximilien/Radiant-Sands/internal/repositories/event"
	"github.com/biximilien/Radiant-Sands/pkg/database"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type execRecorder struct {
	database.DB
	queries []string
	args    [][]any
}

func (r *execRecorder) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	r.queries = append(r.queries, query)
	r.args = append(r.args, args)
	return driver.RowsAffected(1), nil
}

func TestRepointDependentsDropsSharedTagsBeforeMoving(t *testing.T) {
	db := &execRecorder{}
	repo := event.NewRepository(db, testLogger())

	counts, err := repo.RepointDependents(context.Background(), "master-1", []string{"dup-1"})
	require.NoError(t, err)

	require.Len(t, db.queries, 2)

	del := db.queries[0]
	assert.Contains(t, del, "DELETE FROM taggings")
	assert.Contains(t, del, "SELECT tag FROM taggings")
	assert.Contains(t, db.args[0], "master-1")
	assert.Contains(t, db.args[0], "dup-1")

	assert.Contains(t, db.queries[1], "UPDATE taggings")
	assert.Equal(t, map[string]int{"taggings": 1}, counts)
}
