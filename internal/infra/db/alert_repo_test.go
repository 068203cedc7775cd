package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dperri/crossalert/internal/config"
	"github.com/dperri/crossalert/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRepo(t *testing.T) *AlertRepository {
	t.Helper()

	cfg := config.Config{
		DBDriver: "sqlite",
		DBPath:   filepath.Join(t.TempDir(), "alerts.db"),
	}
	conn, err := Open(cfg, zap.NewNop())
	require.NoError(t, err)

	t.Cleanup(func() {
		sqlDB, err := conn.DB()
		require.NoError(t, err)
		_ = sqlDB.Close()
	})

	return NewAlertRepository(conn)
}

func testAlert(symbol string) *domain.Alert {
	return &domain.Alert{
		DeviceID:    "dev-1",
		Destination: domain.Destination{BotToken: "token", ChatID: "42"},
		Exchange:    domain.ExchangeBybit,
		Symbol:      symbol,
		TargetPrice: decimal.RequireFromString("50000"),
		Condition:   "cross",
		Status:      domain.StatusActive,
	}
}

func TestUpsertCreatesAndOverwrites(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	alert := testAlert("BTCUSDT")
	require.NoError(t, repo.Upsert(ctx, alert))
	require.NotZero(t, alert.ID)

	// Same key again: no second row, target and destination overwritten.
	updated := testAlert("BTCUSDT")
	updated.TargetPrice = decimal.RequireFromString("60000")
	updated.Destination.ChatID = "43"
	require.NoError(t, repo.Upsert(ctx, updated))

	require.Equal(t, alert.ID, updated.ID)

	rows, err := repo.ListByDevice(ctx, "dev-1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.True(t, rows[0].TargetPrice.Equal(decimal.RequireFromString("60000")))
	require.Equal(t, "43", rows[0].Destination.ChatID)
	require.Equal(t, domain.StatusActive, rows[0].Status)
}

func TestUpsertResurrectsTriggeredAlert(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	alert := testAlert("BTCUSDT")
	require.NoError(t, repo.Upsert(ctx, alert))

	won, err := repo.MarkTriggered(ctx, alert.ID, time.Now())
	require.NoError(t, err)
	require.True(t, won)

	require.NoError(t, repo.Upsert(ctx, testAlert("BTCUSDT")))

	rows, err := repo.ListByDevice(ctx, "dev-1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, domain.StatusActive, rows[0].Status)
	require.Nil(t, rows[0].TriggeredAt)
}

func TestUpsertSeparateKeysSeparateRows(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, testAlert("BTCUSDT")))
	require.NoError(t, repo.Upsert(ctx, testAlert("ETHUSDT")))

	other := testAlert("BTCUSDT")
	other.DeviceID = "dev-2"
	require.NoError(t, repo.Upsert(ctx, other))

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 3)
}

func TestMarkTriggeredWinsOnlyOnce(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	alert := testAlert("BTCUSDT")
	require.NoError(t, repo.Upsert(ctx, alert))

	at := time.Now()
	won, err := repo.MarkTriggered(ctx, alert.ID, at)
	require.NoError(t, err)
	require.True(t, won)

	// Second transition loses: a concurrent pass must suppress its
	// notification.
	won, err = repo.MarkTriggered(ctx, alert.ID, at)
	require.NoError(t, err)
	require.False(t, won)

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Empty(t, active)

	rows, err := repo.ListByDevice(ctx, "dev-1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, domain.StatusTriggered, rows[0].Status)
	require.NotNil(t, rows[0].TriggeredAt)
}

func TestCancelIsIdempotentAndSoft(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	// Cancelling a key with no row is a no-op.
	require.NoError(t, repo.Cancel(ctx, "dev-1", domain.ExchangeBybit, "BTCUSDT"))

	alert := testAlert("BTCUSDT")
	require.NoError(t, repo.Upsert(ctx, alert))
	require.NoError(t, repo.Cancel(ctx, "dev-1", domain.ExchangeBybit, "BTCUSDT"))
	require.NoError(t, repo.Cancel(ctx, "dev-1", domain.ExchangeBybit, "BTCUSDT"))

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Empty(t, active)

	rows, err := repo.ListByDevice(ctx, "dev-1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, domain.StatusCancelled, rows[0].Status)
}

func TestListActiveFiltersTerminalStates(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	btc := testAlert("BTCUSDT")
	require.NoError(t, repo.Upsert(ctx, btc))
	require.NoError(t, repo.Upsert(ctx, testAlert("ETHUSDT")))
	require.NoError(t, repo.Upsert(ctx, testAlert("SOLUSDT")))

	won, err := repo.MarkTriggered(ctx, btc.ID, time.Now())
	require.NoError(t, err)
	require.True(t, won)
	require.NoError(t, repo.Cancel(ctx, "dev-1", domain.ExchangeBybit, "ETHUSDT"))

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "SOLUSDT", active[0].Symbol)
}

func TestHorizPriceRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	horiz := decimal.RequireFromString("49500.5")
	alert := testAlert("BTCUSDT")
	alert.HorizPrice = &horiz
	require.NoError(t, repo.Upsert(ctx, alert))

	rows, err := repo.ListByDevice(ctx, "dev-1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].HorizPrice)
	require.True(t, rows[0].HorizPrice.Equal(horiz))
}
