package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sable/internal/market"
)

func TestParseIntervalDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"30s": 30 * time.Second,
		"1m":  time.Minute,
		"15m": 15 * time.Minute,
		"1h":  time.Hour,
		"4h":  4 * time.Hour,
		"1d":  24 * time.Hour,
		"1w":  7 * 24 * time.Hour,
	}
	for in, want := range cases {
		got, ok := ParseIntervalDuration(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "m", "0m", "-1h", "5x", "abc"} {
		_, ok := ParseIntervalDuration(bad)
		assert.False(t, ok, bad)
	}
}

func TestDropUnclosedKline(t *testing.T) {
	interval := time.Minute
	now := time.UnixMilli(10 * 60_000)

	mk := func(opens ...int64) []market.Candle {
		out := make([]market.Candle, 0, len(opens))
		for _, o := range opens {
			out = append(out, market.Candle{OpenTime: o})
		}
		return out
	}

	t.Run("in-progress last candle dropped", func(t *testing.T) {
		// 最后一根 9:30 开盘，10:30 前（含宽限期）仍算未收盘
		ks := mk(8*60_000, 9*60_000+30_000)
		got := dropUnclosedKlineAt(ks, interval, now, 10*time.Second)
		assert.Len(t, got, 1)
	})

	t.Run("closed candle kept", func(t *testing.T) {
		ks := mk(7*60_000, 8*60_000)
		got := dropUnclosedKlineAt(ks, interval, now, 10*time.Second)
		assert.Len(t, got, 2)
	})

	t.Run("grace period keeps freshly closed candle pending", func(t *testing.T) {
		// 9:00 开盘 10:00 收盘；now=10:00:05 在 10 秒宽限内仍按未收盘处理
		ks := mk(8*60_000, 9*60_000)
		got := dropUnclosedKlineAt(ks, interval, time.UnixMilli(10*60_000+5_000), 10*time.Second)
		assert.Len(t, got, 1)
	})

	t.Run("edge cases", func(t *testing.T) {
		assert.Empty(t, dropUnclosedKlineAt(nil, interval, now, 0))
		assert.Len(t, dropUnclosedKlineAt(mk(5*60_000), 0, now, 0), 1)
		assert.Len(t, dropUnclosedKlineAt(mk(0), interval, now, 0), 1)
	})
}

func TestAlignedSchedulerNextTimes(t *testing.T) {
	s := &AlignedScheduler{Interval: time.Minute, Offset: 10 * time.Second}
	now := time.Date(2025, 3, 1, 12, 30, 25, 0, time.UTC)

	nextClose, wakeAt, wait := s.nextTimes(now)
	assert.Equal(t, time.Date(2025, 3, 1, 12, 31, 0, 0, time.UTC), nextClose)
	assert.Equal(t, time.Date(2025, 3, 1, 12, 31, 10, 0, time.UTC), wakeAt)
	assert.Equal(t, 45*time.Second, wait)
}
