package catalog

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tickermind/tickermind/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestStore opens a store against a throwaway database.
// In CI (when CI_DATABASE_URL is set): connects to an external PostgreSQL
// service container. In local dev: spins up a testcontainer.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	connStr := os.Getenv("CI_DATABASE_URL")
	if connStr != "" {
		t.Log("Using external PostgreSQL from CI_DATABASE_URL")
	} else {
		t.Log("Using testcontainers for PostgreSQL")
		pgContainer, err := postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("tickermind_test"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		require.NoError(t, err)

		t.Cleanup(func() {
			if err := testcontainers.TerminateContainer(pgContainer); err != nil {
				t.Logf("failed to terminate container: %v", err)
			}
		})

		connStr, err = pgContainer.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err)
	}

	store, err := Open(ctx, connStr, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() {
		// Shared CI databases persist between packages, so clear our tables.
		_, _ = store.db.ExecContext(context.Background(), "TRUNCATE analysis_history, stocks")
		require.NoError(t, store.Close())
	})
	return store
}

func terminalSnapshot(id, symbol string, status models.SessionStatus, decision string) *models.SessionSnapshot {
	created := time.Now().Add(-time.Minute).UTC().Truncate(time.Millisecond)
	ended := time.Now().UTC().Truncate(time.Millisecond)
	snap := &models.SessionSnapshot{
		ID:        id,
		Symbol:    symbol,
		Status:    status,
		CreatedAt: created,
		EndedAt:   &ended,
	}
	if decision != "" {
		snap.Records = []*models.AgentRecord{
			{AgentID: "decision", Stage: 4, Status: models.AgentStatusCompleted, Output: decision},
		}
	}
	return snap
}

func TestStoreUpsertAndLookup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertStock(ctx, StockInfo{Symbol: "600519", Name: "Kweichow Moutai", Exchange: "SSE"}))

	got, err := store.Lookup(ctx, "600519")
	require.NoError(t, err)
	assert.Equal(t, "Kweichow Moutai", got.Name)
	assert.Equal(t, "SSE", got.Exchange)
	assert.False(t, got.UpdatedAt.IsZero())

	// Upsert refreshes the row in place.
	require.NoError(t, store.UpsertStock(ctx, StockInfo{Symbol: "600519", Name: "Kweichow Moutai Co", Exchange: "SSE", Sector: "Consumer"}))
	got, err = store.Lookup(ctx, "600519")
	require.NoError(t, err)
	assert.Equal(t, "Kweichow Moutai Co", got.Name)
	assert.Equal(t, "Consumer", got.Sector)
}

func TestStoreLookupUnknownSymbol(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Lookup(context.Background(), "999999")
	assert.ErrorIs(t, err, ErrStockNotFound)
}

func TestStoreSearch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seed := []StockInfo{
		{Symbol: "600519", Name: "Kweichow Moutai", Exchange: "SSE"},
		{Symbol: "600036", Name: "China Merchants Bank", Exchange: "SSE"},
		{Symbol: "000001", Name: "Ping An Bank", Exchange: "SZSE"},
	}
	for _, info := range seed {
		require.NoError(t, store.UpsertStock(ctx, info))
	}

	bySymbol, err := store.Search(ctx, "600", 10)
	require.NoError(t, err)
	require.Len(t, bySymbol, 2)
	assert.Equal(t, "600036", bySymbol[0].Symbol, "results sorted by symbol")
	assert.Equal(t, "600519", bySymbol[1].Symbol)

	byName, err := store.Search(ctx, "Ping", 10)
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, "000001", byName[0].Symbol)

	limited, err := store.Search(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestStoreRecordSessionAndHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := terminalSnapshot("sess-1", "600519", models.SessionStatusSuccess, "HOLD with tight stop")
	second := terminalSnapshot("sess-2", "600519", models.SessionStatusPartial, "")
	other := terminalSnapshot("sess-3", "000001", models.SessionStatusError, "")
	later := time.Now().Add(time.Second).UTC().Truncate(time.Millisecond)
	second.EndedAt = &later

	require.NoError(t, store.RecordSession(ctx, first))
	require.NoError(t, store.RecordSession(ctx, second))
	require.NoError(t, store.RecordSession(ctx, other))

	// Replays of the same session are ignored.
	require.NoError(t, store.RecordSession(ctx, first))

	entries, err := store.History(ctx, "600519", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "sess-2", entries[0].SessionID, "newest first")
	assert.Equal(t, "sess-1", entries[1].SessionID)
	assert.Equal(t, "HOLD with tight stop", entries[1].Decision)
	assert.Equal(t, string(models.SessionStatusPartial), entries[0].Status)

	all, err := store.History(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestStoreRecordSessionRequiresEndedAt(t *testing.T) {
	store := newTestStore(t)

	snap := &models.SessionSnapshot{ID: "sess-open", Symbol: "600519", Status: models.SessionStatusRunning, CreatedAt: time.Now()}
	assert.Error(t, store.RecordSession(context.Background(), snap))
}

func TestStoreArchive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	snap := terminalSnapshot("sess-arch", "600519", models.SessionStatusSuccess, "BUY on pullback")
	snap.Stock = &models.StockContext{Symbol: "600519", Name: "Kweichow Moutai"}
	require.NoError(t, store.Archive(ctx, snap))

	info, err := store.Lookup(ctx, "600519")
	require.NoError(t, err)
	assert.Equal(t, "Kweichow Moutai", info.Name)
	assert.Equal(t, "SSE", info.Exchange)

	entries, err := store.History(ctx, "600519", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "BUY on pullback", entries[0].Decision)
}

func TestStoreHealth(t *testing.T) {
	store := newTestStore(t)

	status, err := store.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", status.Status)
	assert.GreaterOrEqual(t, status.OpenConnections, 0)
}

func TestExchangeFor(t *testing.T) {
	assert.Equal(t, "SSE", exchangeFor("600519"))
	assert.Equal(t, "SSE", exchangeFor("900001"))
	assert.Equal(t, "SZSE", exchangeFor("000001"))
	assert.Equal(t, "SZSE", exchangeFor("300750"))
}
