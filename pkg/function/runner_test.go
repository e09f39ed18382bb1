package function

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xworkshop/internal/mqcore"
	"github.com/omeyang/xworkshop/internal/pulsartest"
	"github.com/omeyang/xworkshop/pkg/config/xconf"
	"github.com/omeyang/xworkshop/pkg/mq/xpulsar"
	"github.com/omeyang/xworkshop/pkg/observability/xmetrics"
	"github.com/omeyang/xworkshop/pkg/resilience/xretry"
)

func newClient(t *testing.T) (xpulsar.Client, *pulsartest.Broker) {
	t.Helper()
	fake := pulsartest.NewClient()
	c, err := xpulsar.Wrap(fake)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, fake.Broker()
}

func publish(t *testing.T, c xpulsar.Client, topic string, msgs ...*pulsar.ProducerMessage) {
	t.Helper()
	p, err := c.CreateProducer(pulsar.ProducerOptions{Topic: topic})
	require.NoError(t, err)
	defer p.Close()
	for _, m := range msgs {
		_, err := p.Send(context.Background(), m)
		require.NoError(t, err)
	}
}

func TestNewRunner_Errors(t *testing.T) {
	c, _ := newClient(t)
	fn := NewAddMetadata()

	_, err := NewRunner(nil, fn, Config{Inputs: []string{"in"}})
	assert.ErrorIs(t, err, ErrNilClient)
	_, err = NewRunner(c, nil, Config{Inputs: []string{"in"}})
	assert.ErrorIs(t, err, ErrNilFunction)
	_, err = NewRunner(c, fn, Config{Name: "f"})
	assert.ErrorIs(t, err, ErrNoInputs)
}

func TestRunner_AddMetadata(t *testing.T) {
	c, broker := newClient(t)
	reg := xmetrics.NewRegistry()
	r, err := NewRunner(c, NewAddMetadata(), Config{
		Name:   "add-metadata",
		Inputs: []string{"persistent://public/default/in"},
		Output: "persistent://public/default/out",
	}, WithMetrics(reg))
	require.NoError(t, err)
	defer r.Close()

	publish(t, c, "persistent://public/default/in",
		&pulsar.ProducerMessage{Key: "k1", Payload: []byte("hello"), Properties: map[string]string{"origin": "test"}},
		&pulsar.ProducerMessage{Key: "k2", Payload: []byte("world")},
	)

	require.NoError(t, r.Run(context.Background(), mqcore.NewBudget(2)))

	out := broker.Messages("persistent://public/default/out")
	require.Len(t, out, 2)
	assert.Equal(t, "k1", out[0].Key())
	assert.Equal(t, "hello", string(out[0].Payload()))
	assert.Equal(t, "test", out[0].Properties()["origin"])
	prop := out[0].Properties()[CustomPropKey]
	word, _, ok := strings.Cut(prop, "-")
	require.True(t, ok, prop)
	assert.Contains(t, niceWords, word)
	assert.Equal(t, "world", string(out[1].Payload()))
	assert.Contains(t, out[1].Properties(), CustomPropKey)

	families, err := reg.Gatherer().Gather()
	require.NoError(t, err)
	var found bool
	for _, f := range families {
		if f.GetName() == "xworkshop_function_records_total" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRunner_NackAndRetry(t *testing.T) {
	c, broker := newClient(t)
	var calls atomic.Int32
	fn := Func(func(_ context.Context, _ *Context, rec Record) (*Output, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("transient")
		}
		return &Output{Payload: rec.Payload}, nil
	})
	r, err := NewRunner(c, fn, Config{Name: "retry", Inputs: []string{"in"}, Output: "out"},
		WithErrorBackoff(xretry.NewFixedBackoff(time.Millisecond)))
	require.NoError(t, err)
	defer r.Close()

	publish(t, c, "in", &pulsar.ProducerMessage{Payload: []byte("x")})
	require.NoError(t, r.Run(context.Background(), mqcore.NewBudget(1)))

	assert.Equal(t, int32(2), calls.Load())
	out := broker.Messages("out")
	require.Len(t, out, 1)
	assert.Equal(t, "x", string(out[0].Payload()))
}

func TestRunner_OutputRouting(t *testing.T) {
	c, broker := newClient(t)
	fn := Func(func(_ context.Context, _ *Context, rec Record) (*Output, error) {
		switch rec.Key {
		case "drop":
			return nil, nil
		case "route":
			return &Output{Topic: "routed", Payload: rec.Payload}, nil
		}
		return &Output{Payload: rec.Payload}, nil
	})
	r, err := NewRunner(c, fn, Config{Name: "router", Inputs: []string{"in"}})
	require.NoError(t, err)
	defer r.Close()

	publish(t, c, "in",
		&pulsar.ProducerMessage{Key: "drop"},
		&pulsar.ProducerMessage{Key: "route", Payload: []byte("r")},
		&pulsar.ProducerMessage{Key: "default", Payload: []byte("d")},
	)
	require.NoError(t, r.Run(context.Background(), mqcore.NewBudget(3)))

	assert.Len(t, broker.Messages("routed"), 1)
	// 没有输出 topic 时丢弃
	assert.Equal(t, []string{"in", "routed"}, broker.Topics())
}

func TestRunner_StopsOnCancel(t *testing.T) {
	c, _ := newClient(t)
	r, err := NewRunner(c, NewAddMetadata(), Config{Name: "idle", Inputs: []string{"in"}})
	require.NoError(t, err)
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, nil) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestContext_Publish(t *testing.T) {
	c, broker := newClient(t)
	fctx, err := NewContext(c, Config{Name: "ctx", Inputs: []string{"a", "b"}, Output: "o"})
	require.NoError(t, err)
	defer fctx.Close()

	assert.Equal(t, "ctx", fctx.FunctionName())
	assert.Equal(t, []string{"a", "b"}, fctx.InputTopics())
	assert.Equal(t, "o", fctx.OutputTopic())

	ctx := context.Background()
	for range 2 {
		_, err := fctx.Publish(ctx, "dyn-1", &pulsar.ProducerMessage{Payload: []byte("x")})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, fctx.producers.Len())

	var wg sync.WaitGroup
	wg.Add(1)
	fctx.PublishAsync(ctx, "dyn-2", &pulsar.ProducerMessage{Payload: []byte("y")}, func(id pulsar.MessageID, err error) {
		defer wg.Done()
		assert.NoError(t, err)
		assert.NotNil(t, id)
	})
	wg.Wait()

	assert.Len(t, broker.Messages("dyn-1"), 2)
	assert.Len(t, broker.Messages("dyn-2"), 1)
	assert.Equal(t, 2, c.Stats().ProducersCount)
	fctx.Close()
	assert.Equal(t, 0, c.Stats().ProducersCount)
}

func TestContext_UserConfig(t *testing.T) {
	c, _ := newClient(t)
	fctx, err := NewContext(c, Config{Name: "cfg", UserConfig: map[string]string{NamespaceKey: "public/a", "x": "1"}})
	require.NoError(t, err)
	defer fctx.Close()

	assert.Equal(t, "public/a", fctx.Namespace())
	v, ok := fctx.UserConfigValue("x")
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	cfg := fctx.UserConfig()
	cfg["x"] = "changed"
	v, _ = fctx.UserConfigValue("x")
	assert.Equal(t, "1", v)

	fctx.SetUserConfig(map[string]string{NamespaceKey: "public/b"})
	assert.Equal(t, "public/b", fctx.Namespace())
	_, ok = fctx.UserConfigValue("x")
	assert.False(t, ok)
}

func TestContext_WatchUserConfig(t *testing.T) {
	c, _ := newClient(t)
	fctx, err := NewContext(c, Config{Name: "watch"})
	require.NoError(t, err)
	defer fctx.Close()

	path := filepath.Join(t.TempDir(), "function.properties")
	require.NoError(t, os.WriteFile(path, []byte("PULSAR_NAMESPACE=public/a\n"), 0o600))

	cfg, values, err := LoadUserConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "public/a", values[NamespaceKey])

	w, err := fctx.WatchUserConfig(cfg, xconf.WithDebounce(10*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, "public/a", fctx.Namespace())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.NoError(t, os.WriteFile(path, []byte("PULSAR_NAMESPACE=public/b\n"), 0o600))
	assert.Eventually(t, func() bool { return fctx.Namespace() == "public/b" }, 5*time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestLoadUserConfig_Missing(t *testing.T) {
	_, _, err := LoadUserConfig(filepath.Join(t.TempDir(), "missing.properties"))
	assert.Error(t, err)
}
