package xid

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientName(t *testing.T) {
	name := ClientName(PrefixProducer)
	require.True(t, strings.HasPrefix(name, "[P]"))
	id, err := uuid.Parse(strings.TrimPrefix(name, "[P]"))
	require.NoError(t, err)
	assert.Contains(t, []uuid.Version{1, 4}, id.Version())
	assert.NotEqual(t, name, ClientName(PrefixProducer))
}

func TestGenerator(t *testing.T) {
	g, err := NewGenerator(WithMachineID(func() (uint16, error) { return 42, nil }))
	require.NoError(t, err)

	seen := make(map[int64]struct{})
	var last int64
	for range 1000 {
		id, err := g.New()
		require.NoError(t, err)
		assert.Greater(t, id, last)
		last = id
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, 1000)

	s, err := g.NewString()
	require.NoError(t, err)
	back, err := Parse(s)
	require.NoError(t, err)
	assert.Greater(t, back, last)
}

func TestGenerator_Errors(t *testing.T) {
	var g *Generator
	_, err := g.New()
	assert.ErrorIs(t, err, ErrNilGenerator)

	_, err = NewGenerator(WithMachineID(func() (uint16, error) { return 0, errors.New("no id") }))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Parse("!!")
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestDefaultMachineID(t *testing.T) {
	t.Run("环境变量", func(t *testing.T) {
		t.Setenv(EnvMachineID, "513")
		id, err := DefaultMachineID()
		require.NoError(t, err)
		assert.Equal(t, uint16(513), id)
	})

	t.Run("环境变量越界", func(t *testing.T) {
		t.Setenv(EnvMachineID, "70000")
		_, err := DefaultMachineID()
		assert.Error(t, err)
	})

	t.Run("HOSTNAME 哈希", func(t *testing.T) {
		t.Setenv(EnvMachineID, "")
		t.Setenv(EnvHostname, "workshop-0")
		id, err := DefaultMachineID()
		require.NoError(t, err)
		assert.Equal(t, hashToMachineID("workshop-0"), id)
	})

	t.Run("os.Hostname 失败", func(t *testing.T) {
		t.Setenv(EnvMachineID, "")
		t.Setenv(EnvHostname, "")
		orig := osHostname
		osHostname = func() (string, error) { return "", errors.New("denied") }
		defer func() { osHostname = orig }()
		_, err := DefaultMachineID()
		assert.Error(t, err)
	})
}

func TestNewString_Default(t *testing.T) {
	t.Setenv(EnvMachineID, "7")
	s, err := NewString()
	require.NoError(t, err)
	assert.NotEmpty(t, s)
}
