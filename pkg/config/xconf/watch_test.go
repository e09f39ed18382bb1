package xconf

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatch_ReloadOnWrite(t *testing.T) {
	path := createTempFile(t, "function.properties", "PULSAR_NAMESPACE=public/default\n")
	cfg, err := New(path)
	require.NoError(t, err)

	var reloads atomic.Int32
	w, err := Watch(cfg, func(c Config, err error) {
		if err == nil {
			reloads.Add(1)
		}
	}, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("PULSAR_NAMESPACE=workshop/orders\n"), 0o600))

	assert.Eventually(t, func() bool { return reloads.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "workshop/orders", cfg.Client().String("PULSAR_NAMESPACE"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run 未在 ctx 取消后退出")
	}
}

func TestWatch_IgnoresOtherFiles(t *testing.T) {
	path := createTempFile(t, "function.properties", "a=1\n")
	cfg, err := New(path)
	require.NoError(t, err)

	var calls atomic.Int32
	w, err := Watch(cfg, func(Config, error) { calls.Add(1) }, WithDebounce(10*time.Millisecond))
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	other := filepath.Join(filepath.Dir(path), "other.properties")
	require.NoError(t, os.WriteFile(other, []byte("b=2\n"), 0o600))

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestWatch_Errors(t *testing.T) {
	t.Run("bytes 配置", func(t *testing.T) {
		cfg, err := NewFromBytes([]byte("a=1"), FormatProperties)
		require.NoError(t, err)
		_, err = Watch(cfg, nil)
		assert.ErrorIs(t, err, ErrReloadBytes)
	})

	t.Run("Stop 可重复调用", func(t *testing.T) {
		path := createTempFile(t, "a.properties", "a=1\n")
		cfg, err := New(path)
		require.NoError(t, err)
		w, err := Watch(cfg, nil)
		require.NoError(t, err)
		assert.NoError(t, w.Stop())
		assert.NoError(t, w.Stop())
	})
}
