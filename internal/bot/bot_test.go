package bot

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"predictions/internal/market"
	"predictions/internal/store/memory"
)

func newTestBot(t *testing.T) *Bot {
	t.Helper()
	engine := market.NewService(memory.New(), market.DefaultParams(time.UTC), slog.New(slog.NewTextHandler(io.Discard, nil)))
	return &Bot{
		engine: engine,
		prefix: "!predict",
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestSplitArgs(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"list", []string{"list"}},
		{"buy rain YES 100", []string{"buy", "rain", "YES", "100"}},
		{`create rain "will it rain?" +48h YES,NO`, []string{"create", "rain", "will it rain?", "+48h", "YES,NO"}},
		{`show  "two  spaces"`, []string{"show", "two  spaces"}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, splitArgs(tc.in), "input %q", tc.in)
	}
}

func TestParseLockDuration(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"15m", 15 * time.Minute},
		{"2h", 2 * time.Hour},
		{"1d", 24 * time.Hour},
		{" 10 M ", 10 * time.Minute},
	}
	for _, tc := range cases {
		got, err := parseLockDuration(tc.in)
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
	for _, bad := range []string{"", "d", "15", "2w", "h2"} {
		_, err := parseLockDuration(bad)
		require.Error(t, err, "input %q", bad)
	}
}

func TestParseEventTime(t *testing.T) {
	now := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)

	got, err := parseEventTime("+48h", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(48*time.Hour), got)

	got, err = parseEventTime("2026-09-01T10:00:00Z", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC), got)

	got, err = parseEventTime("2026-09-01 10:00", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC), got)

	_, err = parseEventTime("next tuesday", now)
	require.Error(t, err)
}

func TestDispatchFlow(t *testing.T) {
	b := newTestBot(t)
	ctx := context.Background()

	reply := b.dispatch(ctx, "u1", "bogus", nil)
	assert.Contains(t, reply, "unknown command")

	reply = b.dispatch(ctx, "u1", "list", nil)
	assert.Equal(t, "no active markets", reply)

	reply = b.dispatch(ctx, "u1", "create",
		[]string{"derby", "who wins the derby?", "+72h", "HOME,AWAY,DRAW"})
	assert.Contains(t, reply, "Created market derby")

	reply = b.dispatch(ctx, "u2", "buy", []string{"derby", "home", "50"})
	assert.Contains(t, reply, "Bought")

	reply = b.dispatch(ctx, "u2", "show", []string{"derby"})
	assert.Contains(t, reply, "who wins the derby?")
	assert.Contains(t, reply, "Your position:")

	// Only the creator can resolve.
	reply = b.dispatch(ctx, "u2", "resolve", []string{"derby", "HOME"})
	assert.Contains(t, reply, "error:")
	reply = b.dispatch(ctx, "u1", "resolve", []string{"derby", "HOME"})
	assert.Contains(t, reply, "Resolved derby as HOME")

	reply = b.dispatch(ctx, "u2", "balance", nil)
	assert.Contains(t, reply, "balance")

	reply = b.dispatch(ctx, "u2", "leaderboard", nil)
	assert.True(t, strings.Contains(reply, "u1") || strings.Contains(reply, "u2"))
}

func TestDispatchUsageErrors(t *testing.T) {
	b := newTestBot(t)
	ctx := context.Background()

	for _, c := range [][]string{
		{"show"},
		{"buy", "derby"},
		{"sell", "derby", "YES"},
		{"resolve", "derby"},
		{"cancel"},
		{"create", "derby"},
	} {
		reply := b.dispatch(ctx, "u1", c[0], c[1:])
		assert.Contains(t, reply, "usage:", "command %v", c)
	}
}
