package telemetry

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/creality-bridge/internal/infrastructure/config"
	"github.com/nerrad567/creality-bridge/internal/infrastructure/database"
	"github.com/nerrad567/creality-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/creality-bridge/migrations"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db.DB
}

// insertEntry satisfies the state_history foreign key.
func insertEntry(t *testing.T, db *sql.DB, id, ip string) {
	t.Helper()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := db.Exec(
		`INSERT INTO entries (id, ip, port, password, name, source, created_at, updated_at) VALUES (?, ?, 9999, '', '', 'config', ?, ?)`,
		id, ip, now, now)
	if err != nil {
		t.Fatalf("inserting entry: %v", err)
	}
}

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error"}, "test")
}

type metricPoint struct {
	entryID string
	key     string
	value   any
}

type statusPoint struct {
	entryID   string
	status    string
	connected bool
}

type fakeMetrics struct {
	mu       sync.Mutex
	metrics  []metricPoint
	statuses []statusPoint
}

func (f *fakeMetrics) WritePrinterMetric(entryID, key string, value any, _ time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metrics = append(f.metrics, metricPoint{entryID, key, value})
	return true
}

func (f *fakeMetrics) WritePrinterStatus(entryID, status string, connected bool, _ time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, statusPoint{entryID, status, connected})
}

func (f *fakeMetrics) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.metrics), len(f.statuses)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
