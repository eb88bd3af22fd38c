package circuit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerOpensAtThreshold(t *testing.T) {
	b := NewBreaker("test", 2, time.Hour)
	boom := errors.New("boom")

	require.ErrorIs(t, b.Do(func() error { return boom }), boom)
	assert.Equal(t, StateClosed, b.State())

	require.ErrorIs(t, b.Do(func() error { return boom }), boom)
	assert.Equal(t, StateOpen, b.State())

	// 打开状态短路，fn 不被调用
	called := false
	err := b.Do(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	b := NewBreaker("test", 2, time.Hour)
	boom := errors.New("boom")

	_ = b.Do(func() error { return boom })
	require.NoError(t, b.Do(func() error { return nil }))
	_ = b.Do(func() error { return boom })
	assert.Equal(t, StateClosed, b.State(), "成功应清零连续失败计数")
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	b := NewBreaker("test", 1, 10*time.Millisecond)
	boom := errors.New("boom")

	_ = b.Do(func() error { return boom })
	require.Equal(t, StateOpen, b.State())

	time.Sleep(20 * time.Millisecond)

	// 冷却后放行探测；探测成功则闭合
	require.NoError(t, b.Do(func() error { return nil }))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker("test", 1, 10*time.Millisecond)
	boom := errors.New("boom")

	_ = b.Do(func() error { return boom })
	time.Sleep(20 * time.Millisecond)
	_ = b.Do(func() error { return boom })
	assert.Equal(t, StateOpen, b.State())
}
