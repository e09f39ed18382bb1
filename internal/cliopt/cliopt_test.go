package cliopt

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xworkshop/pkg/config/pulsarconf"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "client.properties")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		role     Role
		opts     Options
		wantCode int
	}{
		{"producer 正常", Producer, Options{NumMsg: 10, ServiceURL: "pulsar://localhost:6650", Topics: []string{"t"}}, 0},
		{"消息数为 0", Producer, Options{NumMsg: 0, ServiceURL: "pulsar://x", Topics: []string{"t"}}, CodeMsgNum},
		{"消息数为 -2", Producer, Options{NumMsg: -2, ServiceURL: "pulsar://x", Topics: []string{"t"}}, CodeMsgNum},
		{"消息数为 -1", Producer, Options{NumMsg: AllMessages, ServiceURL: "pulsar://x", Topics: []string{"t"}}, 0},
		{"缺少地址", Producer, Options{NumMsg: 1, Topics: []string{"t"}}, CodeServiceURL},
		{"producer 多个 topic", Producer, Options{NumMsg: 1, ServiceURL: "pulsar://x", Topics: []string{"a", "b"}}, CodeProducerTopic},
		{"producer topic 含逗号", Producer, Options{NumMsg: 1, ServiceURL: "pulsar://x", Topics: []string{"a,b"}}, CodeProducerTopic},
		{"reader 缺少 topic", Reader, Options{NumMsg: 5, ServiceURL: "pulsar://x"}, CodeProducerTopic},
		{"consumer 缺少 topic", Consumer, Options{NumMsg: 1, ServiceURL: "pulsar://x", SubscriptionName: "s"}, CodeConsumerTopic},
		{"consumer 非法 pattern", Consumer, Options{NumMsg: 1, ServiceURL: "pulsar://x", TopicPattern: "orders-[", SubscriptionName: "s"}, CodeTopicPattern},
		{"consumer 缺少订阅名", Consumer, Options{NumMsg: 1, ServiceURL: "pulsar://x", Topics: []string{"t"}}, CodeSubscriptionName},
		{"consumer 非法订阅类型", Consumer, Options{NumMsg: 1, ServiceURL: "pulsar://x", Topics: []string{"t"}, SubscriptionName: "s", SubscriptionType: "Broadcast"}, CodeSubscriptionType},
		{"consumer pattern", Consumer, Options{NumMsg: 1, ServiceURL: "pulsar://x", TopicPattern: "orders-.*", SubscriptionName: "s", SubscriptionType: "shared"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := tt.opts
			err := opts.Validate(tt.role)
			if tt.wantCode == 0 {
				assert.NoError(t, err)
				return
			}
			var pe *ParamError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.wantCode, pe.ExitCode())
		})
	}
}

func TestValidate_ConfigFile(t *testing.T) {
	t.Run("地址来自配置文件", func(t *testing.T) {
		opts := Options{
			ConfigFile: writeConfig(t, "brokerServiceUrl=pulsar://broker:6650\n"),
			NumMsg:     1,
			Topics:     []string{"t"},
		}
		require.NoError(t, opts.Validate(Producer))
		assert.Equal(t, "pulsar://broker:6650", opts.ServiceURL)
		assert.NotNil(t, opts.Conf)
	})

	t.Run("命令行地址优先", func(t *testing.T) {
		opts := Options{
			ConfigFile: writeConfig(t, "brokerServiceUrl=pulsar://broker:6650\n"),
			NumMsg:     1,
			ServiceURL: "pulsar://cli:6650",
			Topics:     []string{"t"},
		}
		require.NoError(t, opts.Validate(Producer))
		assert.Equal(t, "pulsar://cli:6650", opts.ServiceURL)
	})

	t.Run("文件不存在", func(t *testing.T) {
		opts := Options{ConfigFile: filepath.Join(t.TempDir(), "missing.properties"), NumMsg: 1}
		var pe *ParamError
		require.ErrorAs(t, opts.Validate(Producer), &pe)
		assert.Equal(t, CodeConfigFile, pe.ExitCode())
	})

	t.Run("配置值非法", func(t *testing.T) {
		opts := Options{ConfigFile: writeConfig(t, "producer.batchingEnabled=maybe\n"), NumMsg: 1}
		err := opts.Validate(Producer)
		assert.ErrorIs(t, err, pulsarconf.ErrInvalidConfig)
		var pe *ParamError
		assert.False(t, errors.As(err, &pe))
	})
}

func TestValidate_TopicListWinsOverPattern(t *testing.T) {
	opts := Options{NumMsg: 1, ServiceURL: "pulsar://x", Topics: []string{"a", "b"}, TopicPattern: "[", SubscriptionName: "s"}
	require.NoError(t, opts.Validate(Consumer))
	assert.Empty(t, opts.TopicPattern)
	assert.Equal(t, pulsar.Exclusive, opts.SubType())
}

func TestParamError(t *testing.T) {
	assert.Equal(t, 2, (&ParamError{Reason: "x"}).ExitCode())
	assert.Equal(t, "x", (&ParamError{Reason: "x"}).Error())
	assert.Equal(t, "invalid option -n: bad", (&ParamError{Option: "-n", Reason: "bad", Code: CodeMsgNum}).Error())
}

func TestParseSubscriptionType(t *testing.T) {
	tests := map[string]pulsar.SubscriptionType{
		"":           pulsar.Exclusive,
		"Exclusive":  pulsar.Exclusive,
		"FAILOVER":   pulsar.Failover,
		"shared":     pulsar.Shared,
		"Key_Shared": pulsar.KeyShared,
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			got, err := ParseSubscriptionType(in)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
	_, err := ParseSubscriptionType("KeyShared")
	assert.Error(t, err)
}

func TestSplitTopics(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, SplitTopics(" a, ,b "))
	assert.Nil(t, SplitTopics(""))
}

func TestRole_String(t *testing.T) {
	assert.Equal(t, "producer", Producer.String())
	assert.Equal(t, "consumer", Consumer.String())
	assert.Equal(t, "reader", Reader.String())
}
