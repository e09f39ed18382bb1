package pulsarconf

import (
	"testing"
	"time"

	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientOptions(t *testing.T) {
	c, err := Parse([]byte(sampleProperties))
	require.NoError(t, err)

	t.Run("普通地址", func(t *testing.T) {
		opts, err := c.ClientOptions("pulsar://localhost:6650")
		require.NoError(t, err)
		assert.Equal(t, "pulsar://localhost:6650", opts.URL)
		assert.Equal(t, 30*time.Second, opts.OperationTimeout)
		assert.Equal(t, 2, opts.MaxConnectionsPerBroker)
		assert.Equal(t, "internal", opts.ListenerName)
		assert.NotNil(t, opts.Authentication)
		assert.False(t, opts.TLSAllowInsecureConnection)
	})

	t.Run("TLS 地址", func(t *testing.T) {
		opts, err := c.ClientOptions("pulsar+ssl://localhost:6651")
		require.NoError(t, err)
		assert.True(t, opts.TLSAllowInsecureConnection)
	})

	t.Run("只有认证插件", func(t *testing.T) {
		c, err := FromMap(map[string]string{"client.authPluginClassName": "token"})
		require.NoError(t, err)
		opts, err := c.ClientOptions("pulsar://localhost:6650")
		require.NoError(t, err)
		assert.Nil(t, opts.Authentication)
	})

	t.Run("未知认证插件", func(t *testing.T) {
		c, err := FromMap(map[string]string{
			"client.authPluginClassName": "com.example.Unknown",
			"client.authParams":          "{}",
		})
		require.NoError(t, err)
		_, err = c.ClientOptions("pulsar://localhost:6650")
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("TLS 布尔值非法", func(t *testing.T) {
		c, err := FromMap(map[string]string{"client.tlsHostnameVerificationEnable": "on"})
		require.NoError(t, err)
		_, err = c.ClientOptions("pulsar://localhost:6650")
		require.NoError(t, err, "非 TLS 地址不读取 TLS 设置")
		_, err = c.ClientOptions("pulsar+ssl://localhost:6651")
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestProducerOptions(t *testing.T) {
	c, err := Parse([]byte(sampleProperties))
	require.NoError(t, err)

	opts, err := c.ProducerOptions("persistent://public/default/orders")
	require.NoError(t, err)
	assert.Equal(t, "persistent://public/default/orders", opts.Topic)
	assert.True(t, opts.DisableBatching)
	assert.Equal(t, pulsar.LZ4, opts.CompressionType)
	assert.Equal(t, pulsar.Murmur3_32Hash, opts.HashingScheme)

	t.Run("分块关闭批量", func(t *testing.T) {
		c, err := FromMap(map[string]string{
			"producer.batchingEnabled":               "true",
			"producer.chunkingEnabled":               "true",
			"producer.sendTimeoutMs":                 "1500",
			"producer.batchingMaxPublishDelayMicros": "2000",
			"producer.blockIfQueueFull":              "false",
		})
		require.NoError(t, err)
		opts, err := c.ProducerOptions("t")
		require.NoError(t, err)
		assert.True(t, opts.EnableChunking)
		assert.True(t, opts.DisableBatching)
		assert.True(t, opts.DisableBlockIfQueueFull)
		assert.Equal(t, 1500*time.Millisecond, opts.SendTimeout)
		assert.Equal(t, 2*time.Millisecond, opts.BatchingMaxPublishDelay)
	})

	t.Run("SNAPPY 不受支持", func(t *testing.T) {
		c, err := FromMap(map[string]string{"producer.compressionType": "SNAPPY"})
		require.NoError(t, err)
		_, err = c.ProducerOptions("t")
		var ce *ConfigError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "compressionType", ce.Key)
		assert.Equal(t, "SNAPPY", ce.Value)
	})
}

func TestConsumerOptions(t *testing.T) {
	c, err := Parse([]byte(sampleProperties))
	require.NoError(t, err)

	opts := c.ConsumerOptions([]string{"a"}, "ignored.*", "sub", pulsar.Shared)
	assert.Equal(t, "a", opts.Topic)
	assert.Empty(t, opts.TopicsPattern)
	assert.Equal(t, "sub", opts.SubscriptionName)
	assert.Equal(t, pulsar.Shared, opts.Type)
	assert.Equal(t, 500, opts.ReceiverQueueSize)
	assert.Equal(t, pulsar.SubscriptionPositionEarliest, opts.SubscriptionInitialPosition)
	assert.Equal(t, "workshop", opts.Properties["team"])
	require.NotNil(t, opts.DLQ)
	assert.Equal(t, uint32(5), opts.DLQ.MaxDeliveries)
	assert.Equal(t, "persistent://public/default/dlq", opts.DLQ.DeadLetterTopic)
	require.NotNil(t, opts.NackBackoffPolicy)
	assert.Equal(t, time.Second, opts.NackBackoffPolicy.Next(0))
	assert.Equal(t, 2*time.Second, opts.NackBackoffPolicy.Next(1))
	assert.Equal(t, 10*time.Second, opts.NackBackoffPolicy.Next(20))

	t.Run("多个 topic", func(t *testing.T) {
		opts := c.ConsumerOptions([]string{"a", "b"}, "", "sub", pulsar.Exclusive)
		assert.Equal(t, []string{"a", "b"}, opts.Topics)
	})

	t.Run("pattern", func(t *testing.T) {
		opts := c.ConsumerOptions(nil, "persistent://public/default/orders-.*", "sub", pulsar.Failover)
		assert.Equal(t, "persistent://public/default/orders-.*", opts.TopicsPattern)
		assert.Empty(t, opts.Topic)
	})

	t.Run("空配置", func(t *testing.T) {
		c, err := FromMap(nil)
		require.NoError(t, err)
		opts := c.ConsumerOptions([]string{"a"}, "", "sub", pulsar.Exclusive)
		assert.Nil(t, opts.DLQ)
		assert.Nil(t, opts.NackBackoffPolicy)
		assert.Equal(t, pulsar.Exclusive, opts.Type)
	})
}

func TestReaderOptions(t *testing.T) {
	c, err := FromMap(map[string]string{
		"reader.readerName":              "r1",
		"reader.receiverQueueSize":       "10",
		"reader.startMessageIdInclusive": "true",
	})
	require.NoError(t, err)

	opts := c.ReaderOptions("t", pulsar.EarliestMessageID())
	assert.Equal(t, "t", opts.Topic)
	assert.Equal(t, "r1", opts.Name)
	assert.Equal(t, 10, opts.ReceiverQueueSize)
	assert.True(t, opts.StartMessageIDInclusive)
	assert.NotNil(t, opts.StartMessageID)
}

func TestSchema(t *testing.T) {
	tests := []struct {
		name    string
		props   map[string]string
		wantNil bool
		wantErr bool
	}{
		{"未设置", nil, true, false},
		{"bytes", map[string]string{"schema.type": "bytes"}, false, false},
		{"string", map[string]string{"schema.type": "STRING"}, false, false},
		{"json", map[string]string{
			"schema.type":       "json",
			"schema.definition": `{"type":"record","name":"Order","fields":[{"name":"id","type":"int"}]}`,
		}, false, false},
		{"json 缺少定义", map[string]string{"schema.type": "json"}, true, true},
		{"未知类型", map[string]string{"schema.type": "protobuf"}, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := FromMap(tt.props)
			require.NoError(t, err)
			s, err := c.Schema()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
			if tt.wantNil {
				assert.Nil(t, s)
			} else {
				assert.NotNil(t, s)
			}
		})
	}
}

func TestDeadLetterSpec_Builder(t *testing.T) {
	p := DeadLetterSpec{
		MaxRedeliverCount:       7,
		RetryLetterTopic:        "retry",
		DeadLetterTopic:         "dlq",
		InitialSubscriptionName: "init",
	}.Builder().Build()
	assert.Equal(t, uint32(7), p.MaxDeliveries)
	assert.Equal(t, "retry", p.RetryLetterTopic)
	assert.Equal(t, "dlq", p.DeadLetterTopic)
	assert.Equal(t, "init", p.InitialSubscriptionName)
}

func TestBackoffSpec_Policy(t *testing.T) {
	tests := []struct {
		name string
		json string
		want []time.Duration
	}{
		{"全零", `{"minDelayMs":0,"maxDelayMs":0,"multiplier":1}`, []time.Duration{0, 0, 0}},
		{"零起始不超过上限", `{"minDelayMs":0,"maxDelayMs":50,"multiplier":2}`, []time.Duration{0, 0, 0}},
		{"倍增到上限", `{"minDelayMs":10,"maxDelayMs":50,"multiplier":2}`,
			[]time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond, 50 * time.Millisecond}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := FromMap(map[string]string{"consumer.negativeAckRedeliveryBackoff": tt.json})
			require.NoError(t, err)
			spec, ok := c.NackBackoff()
			require.True(t, ok)
			policy := spec.Policy()
			for i, want := range tt.want {
				got := policy.NextDelay(i + 1)
				assert.Equal(t, want, got, "attempt %d", i+1)
				assert.LessOrEqual(t, got, time.Duration(spec.MaxDelayMs)*time.Millisecond)
			}
		})
	}
}

func TestPartitionsAndAckGrouping(t *testing.T) {
	t.Run("开启分区发现与分组确认", func(t *testing.T) {
		c, err := FromMap(map[string]string{
			"producer.autoUpdatePartitions":            "true",
			"consumer.autoUpdatePartitions":            "true",
			"consumer.acknowledgementsGroupTimeMicros": "5000",
		})
		require.NoError(t, err)

		popts, err := c.ProducerOptions("t")
		require.NoError(t, err)
		assert.Equal(t, time.Minute, popts.PartitionsAutoDiscoveryInterval)

		copts := c.ConsumerOptions([]string{"t"}, "", "sub", pulsar.Shared)
		assert.Equal(t, time.Minute, copts.AutoDiscoveryPeriod)
		require.NotNil(t, copts.AckGroupingOptions)
		assert.Equal(t, 5*time.Millisecond, copts.AckGroupingOptions.MaxTime)
		assert.Equal(t, uint32(ackGroupingMaxSize), copts.AckGroupingOptions.MaxSize)
	})

	t.Run("分组时间为 0 时立即确认", func(t *testing.T) {
		c, err := FromMap(map[string]string{"consumer.acknowledgementsGroupTimeMicros": "0"})
		require.NoError(t, err)
		copts := c.ConsumerOptions([]string{"t"}, "", "sub", pulsar.Shared)
		require.NotNil(t, copts.AckGroupingOptions)
		assert.Equal(t, uint32(1), copts.AckGroupingOptions.MaxSize)
		assert.Zero(t, copts.AckGroupingOptions.MaxTime)
	})

	t.Run("关闭时保持 SDK 默认", func(t *testing.T) {
		c, err := FromMap(map[string]string{"consumer.autoUpdatePartitions": "false"})
		require.NoError(t, err)
		copts := c.ConsumerOptions([]string{"t"}, "", "sub", pulsar.Shared)
		assert.Zero(t, copts.AutoDiscoveryPeriod)
		assert.Nil(t, copts.AckGroupingOptions)
	})
}
