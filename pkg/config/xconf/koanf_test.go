package xconf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serverConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

const testYAMLContent = `
client:
  operationTimeoutMs: 30000
server:
  host: localhost
  port: 8080
`

const testPropertiesContent = `
# workshop client config
client.operationTimeoutMs=30000
client.useTcpNoDelay = true
consumer.deadLetterPolicy={"maxRedeliverCount":"5","deadLetterTopic":"persistent://public/default/dlq"}
server.host=localhost
server.port=8080
brokerServiceUrl=pulsar://localhost:6650
`

func createTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNew(t *testing.T) {
	t.Run("yaml", func(t *testing.T) {
		path := createTempFile(t, "config.yaml", testYAMLContent)
		cfg, err := New(path)
		require.NoError(t, err)
		assert.Equal(t, FormatYAML, cfg.Format())
		assert.Equal(t, path, cfg.Path())
		assert.Equal(t, 30000, cfg.Client().Int("client.operationTimeoutMs"))
	})

	t.Run("properties", func(t *testing.T) {
		path := createTempFile(t, "client.properties", testPropertiesContent)
		cfg, err := New(path)
		require.NoError(t, err)
		assert.Equal(t, FormatProperties, cfg.Format())

		k := cfg.Client()
		assert.Equal(t, "30000", k.String("client.operationTimeoutMs"))
		assert.Equal(t, "true", k.String("client.useTcpNoDelay"))
		assert.Equal(t, "pulsar://localhost:6650", k.String("brokerServiceUrl"))
		// JSON 值原样保留，不做 ${} 展开
		assert.Contains(t, k.String("consumer.deadLetterPolicy"), `"maxRedeliverCount":"5"`)
	})

	t.Run("conf 扩展名按 properties 解析", func(t *testing.T) {
		path := createTempFile(t, "rabbitmq.conf", "host=localhost\nport=5672\n")
		cfg, err := New(path)
		require.NoError(t, err)
		assert.Equal(t, FormatProperties, cfg.Format())
		assert.Equal(t, "5672", cfg.Client().String("port"))
	})

	t.Run("空路径", func(t *testing.T) {
		_, err := New("")
		assert.ErrorIs(t, err, ErrEmptyPath)
	})

	t.Run("未知扩展名", func(t *testing.T) {
		_, err := New("config.toml")
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("文件不存在", func(t *testing.T) {
		_, err := New(filepath.Join(t.TempDir(), "missing.properties"))
		assert.ErrorIs(t, err, ErrLoadFailed)
	})

	t.Run("yaml 语法错误", func(t *testing.T) {
		path := createTempFile(t, "bad.yaml", "a: [1, 2")
		_, err := New(path)
		assert.ErrorIs(t, err, ErrParseFailed)
	})
}

func TestNewFromBytes(t *testing.T) {
	t.Run("properties", func(t *testing.T) {
		cfg, err := NewFromBytes([]byte(testPropertiesContent), FormatProperties)
		require.NoError(t, err)
		assert.Empty(t, cfg.Path())

		var server serverConfig
		require.NoError(t, cfg.Unmarshal("server", &server))
		assert.Equal(t, "localhost", server.Host)
		assert.Equal(t, 8080, server.Port)
	})

	t.Run("空数据", func(t *testing.T) {
		cfg, err := NewFromBytes(nil, FormatProperties)
		require.NoError(t, err)
		assert.Empty(t, cfg.Flat())
	})

	t.Run("不支持的格式", func(t *testing.T) {
		_, err := NewFromBytes([]byte("a=b"), Format("ini"))
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("bytes 配置不能重载", func(t *testing.T) {
		cfg, err := NewFromBytes([]byte("a=b"), FormatProperties)
		require.NoError(t, err)
		assert.ErrorIs(t, cfg.Reload(), ErrReloadBytes)
	})
}

func TestFlat(t *testing.T) {
	cfg, err := NewFromBytes([]byte(testPropertiesContent), FormatProperties)
	require.NoError(t, err)

	flat := cfg.Flat()
	assert.Equal(t, "30000", flat["client.operationTimeoutMs"])
	assert.Equal(t, "pulsar://localhost:6650", flat["brokerServiceUrl"])
	assert.Len(t, flat, 6)
}

func TestReload(t *testing.T) {
	path := createTempFile(t, "client.properties", "client.operationTimeoutMs=1000\n")
	cfg, err := New(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("client.operationTimeoutMs=2000\n"), 0o600))
	require.NoError(t, cfg.Reload())
	assert.Equal(t, "2000", cfg.Client().String("client.operationTimeoutMs"))

	// 重载失败时保留旧配置
	require.NoError(t, os.Remove(path))
	assert.ErrorIs(t, cfg.Reload(), ErrLoadFailed)
	assert.Equal(t, "2000", cfg.Client().String("client.operationTimeoutMs"))
}

func TestMustUnmarshal(t *testing.T) {
	cfg, err := NewFromBytes([]byte(testPropertiesContent), FormatProperties)
	require.NoError(t, err)

	var server serverConfig
	assert.NotPanics(t, func() { MustUnmarshal(cfg, "server", &server) })
	assert.Equal(t, 8080, server.Port)

	var wrong struct {
		Port map[string]int `koanf:"port"`
	}
	assert.Panics(t, func() { MustUnmarshal(cfg, "server", &wrong) })
}

func TestToString(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"string", "abc", "abc"},
		{"int", 42, "42"},
		{"bool", true, "true"},
		{"map", map[string]any{"maxRedeliverCount": 5}, `{"maxRedeliverCount":5}`},
		{"slice", []any{"a", 1}, `["a",1]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToString(tt.in))
		})
	}
}

func TestPropertiesParser_Marshal(t *testing.T) {
	p := Properties(".")
	out, err := p.Marshal(map[string]any{
		"client": map[string]any{"operationTimeoutMs": "30000"},
		"host":   "localhost",
	})
	require.NoError(t, err)
	assert.Contains(t, string(out), "client.operationTimeoutMs = 30000")
	assert.Contains(t, string(out), "host = localhost")

	back, err := p.Unmarshal(out)
	require.NoError(t, err)
	assert.Equal(t, "localhost", back["host"])

	_, err = p.Marshal(nil)
	assert.Error(t, err)
}
