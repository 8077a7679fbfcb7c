package venue_test

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"strings"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biximilien/Radiant-Sands/internal/repositories/venue"
	"github.com/biximilien/Radiant-Sands/pkg/database"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

// execRecorder captures every write statement a repository issues. Only
// ExecContext is implemented; anything else panics through the nil embed.
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
	repo := venue.NewRepository(db, testLogger())

	counts, err := repo.RepointDependents(context.Background(), "master-1", []string{"dup-1", "dup-2"})
	require.NoError(t, err)

	// events move, conflicting taggings are deleted, the rest are moved
	require.Len(t, db.queries, 3)
	assert.Contains(t, db.queries[0], "UPDATE events")

	del := db.queries[1]
	assert.Contains(t, del, "DELETE FROM taggings")
	assert.Contains(t, del, "SELECT tag FROM taggings")
	assert.Contains(t, db.args[1], "master-1")
	assert.Contains(t, db.args[1], "dup-1")

	upd := db.queries[2]
	assert.Contains(t, upd, "UPDATE taggings")
	assert.True(t, strings.Contains(upd, "taggable_id IN"))

	assert.Equal(t, 1, counts["events"])
	assert.Equal(t, 1, counts["taggings"])
}
