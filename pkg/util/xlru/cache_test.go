package xlru

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNew(t *testing.T) {
	_, err := New[string, int](Config{Size: 0})
	assert.ErrorIs(t, err, ErrInvalidSize)
	_, err = New[string, int](Config{Size: maxSize + 1})
	assert.ErrorIs(t, err, ErrSizeExceedsMax)
	_, err = New[string, int](Config{Size: 1, TTL: -time.Second})
	assert.ErrorIs(t, err, ErrInvalidTTL)
}

func TestCache_Eviction(t *testing.T) {
	var evicted []string
	c, err := New(Config{Size: 2}, WithOnEvicted(func(k string, _ int) {
		evicted = append(evicted, k)
	}))
	require.NoError(t, err)
	defer c.Close()

	c.Set("a", 1)
	c.Set("b", 2)
	_, ok := c.Get("a")
	require.True(t, ok)
	c.Set("c", 3)

	assert.Equal(t, []string{"b"}, evicted)
	assert.Equal(t, []string{"a", "c"}, c.Keys())
	assert.True(t, c.Delete("a"))
	assert.Equal(t, []string{"b", "a"}, evicted)
	assert.Equal(t, 1, c.Len())
}

func TestCache_GetOrCreate(t *testing.T) {
	c, err := New[string, int](Config{Size: 4})
	require.NoError(t, err)
	defer c.Close()

	created := 0
	create := func(string) (int, error) {
		created++
		return 7, nil
	}
	v, err := c.GetOrCreate("persistent://public/default/a", create)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	_, err = c.GetOrCreate("persistent://public/default/a", create)
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	boom := errors.New("boom")
	_, err = c.GetOrCreate("b", func(string) (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, c.Len())
}

func TestCache_Close(t *testing.T) {
	var evicted int
	c, err := New(Config{Size: 4, TTL: time.Minute}, WithOnEvicted(func(string, int) { evicted++ }))
	require.NoError(t, err)
	c.Set("a", 1)
	c.Set("b", 2)

	c.Close()
	c.Close()
	assert.Equal(t, 2, evicted)
	assert.Equal(t, 0, c.Len())
	assert.False(t, c.Set("c", 3))
	_, ok := c.Get("a")
	assert.False(t, ok)
	_, err = c.GetOrCreate("c", func(string) (int, error) { return 3, nil })
	assert.ErrorIs(t, err, ErrClosed)
}
