package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/loykin/relaunchr/internal/history"
)

// setupClickHouseContainer starts a ClickHouse container for testing
func setupClickHouseContainer(ctx context.Context, t *testing.T) (testcontainers.Container, string) {
	t.Helper()

	clickHouseContainer, err := clickhouse.Run(ctx,
		"clickhouse/clickhouse-server:24.3.2.23",
		clickhouse.WithUsername("default"),
		clickhouse.WithPassword(""),
		clickhouse.WithDatabase("default"),
		testcontainers.WithWaitStrategy(
			wait.ForHTTP("/ping").
				WithPort("8123/tcp").
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start ClickHouse container: %v", err)
	}

	host, err := clickHouseContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := clickHouseContainer.MappedPort(ctx, "9000")
	if err != nil {
		t.Fatalf("Failed to get mapped port: %v", err)
	}
	return clickHouseContainer, host + ":" + port.Port()
}

func TestClickHouseSink_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	container, addr := setupClickHouseContainer(ctx, t)
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate ClickHouse container: %v", err)
		}
	}()

	sink, err := New(Options{Addr: addr})
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("Failed to close sink: %v", err)
		}
	}()

	now := time.Now().UTC()
	rec := history.Record{
		RunID:        "ch-run",
		StartedAt:    now.Add(-3 * time.Second),
		FinishedAt:   now,
		Outcome:      "failed",
		Message:      "manifest: authentication failed (401 Unauthorized); check the access token",
		LocalVersion: "1.0.0",
		ErrorKind:    "remote",
	}
	for i := 0; i < 2; i++ {
		if err := sink.Send(ctx, history.Event{Type: history.EventUpdate, OccurredAt: now, Record: rec}); err != nil {
			t.Fatalf("Failed to send event: %v", err)
		}
	}

	row := sink.conn.QueryRow(ctx, "SELECT COUNT(*) FROM update_history WHERE run_id = ?", rec.RunID)
	var count uint64
	if err := row.Scan(&count); err != nil {
		t.Fatalf("Failed to query count: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 events, got %d", count)
	}
}

func TestClickHouseSink_InvalidTable(t *testing.T) {
	if _, err := New(Options{Addr: "localhost:9000", Table: "x; DROP TABLE y"}); err == nil {
		t.Fatal("expected error for invalid table name")
	}
}

func TestClickHouseSink_ConnectionError(t *testing.T) {
	if testing.Short() {
		t.Skip("dials the network")
	}
	if _, err := New(Options{Addr: "invalid-host.invalid:9000"}); err == nil {
		t.Error("Expected error with invalid connection, got nil")
	}
}
