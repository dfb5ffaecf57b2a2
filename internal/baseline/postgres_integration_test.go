package baseline

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunsync/sunsync/internal/catalog"
)

var postgresIntegrationCounter uint64

func TestPostgresIntegrationRoundTrip(t *testing.T) {
	dsn := postgresIntegrationDSN(t)

	store, err := NewPostgresStore(dsn)
	require.NoError(t, err)
	store.tableName = postgresIntegrationTableName("sunsync_baseline_it")
	t.Cleanup(func() {
		_ = store.Close()
		postgresIntegrationDropTable(t, dsn, store.tableName)
	})

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, loaded)

	snap := New([]catalog.Entry{{Name: "Portal", Cmd: "run"}}, 99)
	require.NoError(t, store.Save(snap))

	loaded, err = store.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.NoError(t, loaded.Verify())
	assert.Equal(t, int64(99), loaded.Timestamp)
	require.Len(t, loaded.Apps, 1)
	assert.Equal(t, "Portal", loaded.Apps[0].Name)

	// Save again to exercise the upsert path.
	require.NoError(t, store.Save(New(nil, 100)))
	loaded, err = store.Load()
	require.NoError(t, err)
	assert.Equal(t, int64(100), loaded.Timestamp)

	require.NoError(t, store.Clear())
	loaded, err = store.Load()
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func postgresIntegrationDSN(t *testing.T) string {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("SUNSYNC_TEST_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("set SUNSYNC_TEST_POSTGRES_DSN to run Postgres integration tests")
	}
	return dsn
}

func postgresIntegrationTableName(prefix string) string {
	n := atomic.AddUint64(&postgresIntegrationCounter, 1)
	return fmt.Sprintf("%s_%d_%d", prefix, time.Now().UnixNano(), n)
}

func postgresIntegrationDropTable(t *testing.T, dsn, tableName string) {
	t.Helper()
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open postgres for cleanup failed: %v", err)
	}
	defer db.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	query := fmt.Sprintf("DROP TABLE IF EXISTS %s", quoteIdentifier(tableName))
	if _, err := db.ExecContext(ctx, query); err != nil {
		t.Fatalf("drop cleanup table %q failed: %v", tableName, err)
	}
}
