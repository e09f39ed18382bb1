package pulsarconf

import (
	"strings"
	"time"

	"github.com/apache/pulsar-client-go/pulsar"

	"github.com/omeyang/xworkshop/pkg/mq/xpulsar"
	"github.com/omeyang/xworkshop/pkg/resilience/xretry"
)

// Auth 返回配置文件中的认证插件与参数，两者都非空时 ok 为 true。
func (c *Conf) Auth() (plugin, params string, ok bool) {
	plugin = c.Raw(CategoryClient, "authPluginClassName")
	params = c.Raw(CategoryClient, "authParams")
	return plugin, params, plugin != "" && params != ""
}

// TLSSettings client 分类中的 TLS 设置。
type TLSSettings struct {
	TrustCertsFilePath string
	AllowInsecure      bool
	ValidateHostname   bool
}

// TLS 解析 TLS 相关的键。
func (c *Conf) TLS() (TLSSettings, error) {
	s := TLSSettings{TrustCertsFilePath: c.Raw(CategoryClient, "tlsTrustCertsFilePath")}
	for key, dst := range map[string]*bool{
		"tlsAllowInsecureConnection":    &s.AllowInsecure,
		"tlsHostnameVerificationEnable": &s.ValidateHostname,
	} {
		v := c.Raw(CategoryClient, key)
		if v == "" {
			continue
		}
		b, err := parseBool(v)
		if err != nil {
			return TLSSettings{}, invalid(CategoryClient, key, v, expected(kindBool))
		}
		*dst = b
	}
	return s, nil
}

// ClientOptions 映射 client 分类。认证需要插件和参数同时存在；
// TLS 设置只在 serviceURL 使用 pulsar+ssl 时生效。
func (c *Conf) ClientOptions(serviceURL string) (pulsar.ClientOptions, error) {
	opts := pulsar.ClientOptions{URL: serviceURL}
	const cat = CategoryClient

	if v, ok := c.int64Value(cat, "operationTimeoutMs"); ok {
		opts.OperationTimeout = time.Duration(v) * time.Millisecond
	}
	if v, ok := c.intValue(cat, "connectionTimeoutMs"); ok {
		opts.ConnectionTimeout = time.Duration(v) * time.Millisecond
	}
	if v, ok := c.intValue(cat, "connectionsPerBroker"); ok {
		opts.MaxConnectionsPerBroker = v
	}
	if v, ok := c.int64Value(cat, "memoryLimitBytes"); ok {
		opts.MemoryLimitBytes = v
	}
	if v, ok := c.intValue(cat, "keepAliveIntervalSeconds"); ok {
		opts.KeepAliveInterval = time.Duration(v) * time.Second
	}
	if v, ok := c.intValue(cat, "connectionMaxIdleSeconds"); ok {
		opts.ConnectionMaxIdleTime = time.Duration(v) * time.Second
	}
	if v, ok := c.stringValue(cat, "listenerName"); ok {
		opts.ListenerName = v
	}

	if plugin, params, ok := c.Auth(); ok {
		auth, err := pulsar.NewAuthentication(plugin, params)
		if err != nil {
			return pulsar.ClientOptions{}, invalid(cat, "authPluginClassName", plugin, "a supported authentication plugin")
		}
		opts.Authentication = auth
	}

	if strings.Contains(serviceURL, "pulsar+ssl") {
		tls, err := c.TLS()
		if err != nil {
			return pulsar.ClientOptions{}, err
		}
		opts.TLSTrustCertsFilePath = tls.TrustCertsFilePath
		opts.TLSAllowInsecureConnection = tls.AllowInsecure
		opts.TLSValidateHostname = tls.ValidateHostname
	}
	return opts, nil
}

// ProducerOptions 映射 producer 分类。启用分块时关闭批量发送。
func (c *Conf) ProducerOptions(topic string) (pulsar.ProducerOptions, error) {
	opts := pulsar.ProducerOptions{Topic: topic}
	const cat = CategoryProducer

	if v, ok := c.int64Value(cat, "sendTimeoutMs"); ok {
		opts.SendTimeout = time.Duration(v) * time.Millisecond
	}
	if v, ok := c.boolValue(cat, "blockIfQueueFull"); ok {
		opts.DisableBlockIfQueueFull = !v
	}
	if v, ok := c.intValue(cat, "maxPendingMessages"); ok {
		opts.MaxPendingMessages = v
	}
	if v, ok := c.int64Value(cat, "batchingMaxPublishDelayMicros"); ok {
		opts.BatchingMaxPublishDelay = time.Duration(v) * time.Microsecond
	}
	if v, ok := c.intValue(cat, "batchingMaxMessages"); ok && v > 0 {
		opts.BatchingMaxMessages = uint(v)
	}
	if v, ok := c.intValue(cat, "batchingMaxBytes"); ok && v > 0 {
		opts.BatchingMaxSize = uint(v)
	}
	if v, ok := c.boolValue(cat, "batchingEnabled"); ok {
		opts.DisableBatching = !v
	}
	if v, ok := c.boolValue(cat, "chunkingEnabled"); ok && v {
		opts.EnableChunking = true
		opts.DisableBatching = true
	}
	if v, ok := c.typed[cat]["compressionType"].(Compression); ok {
		switch v {
		case CompressionNone:
			opts.CompressionType = pulsar.NoCompression
		case CompressionLZ4:
			opts.CompressionType = pulsar.LZ4
		case CompressionZLib:
			opts.CompressionType = pulsar.ZLib
		case CompressionZSTD:
			opts.CompressionType = pulsar.ZSTD
		default:
			return pulsar.ProducerOptions{}, invalid(cat, "compressionType", string(v), "NONE, LZ4, ZLIB, ZSTD")
		}
	}
	if v, ok := c.boolValue(cat, "autoUpdatePartitions"); ok && v {
		opts.PartitionsAutoDiscoveryInterval = partitionsDiscoveryInterval
	}
	if v, ok := c.typed[cat]["hashingScheme"].(HashingScheme); ok {
		if v == HashingMurmur3 {
			opts.HashingScheme = pulsar.Murmur3_32Hash
		} else {
			opts.HashingScheme = pulsar.JavaStringHash
		}
	}
	return opts, nil
}

// partitionsDiscoveryInterval autoUpdatePartitions=true 时的分区发现间隔，与 Java 客户端默认值一致。
const partitionsDiscoveryInterval = time.Minute

// ackGroupingMaxSize 分组确认的默认批量上限，与 SDK 默认值一致。
const ackGroupingMaxSize = 1000

// ackGrouping 0 表示逐条立即确认。
func ackGrouping(d time.Duration) *pulsar.AckGroupingOptions {
	if d <= 0 {
		return &pulsar.AckGroupingOptions{MaxSize: 1}
	}
	return &pulsar.AckGroupingOptions{MaxSize: ackGroupingMaxSize, MaxTime: d}
}

// ConsumerOptions 映射 consumer 分类。topics 非空时忽略 pattern。
func (c *Conf) ConsumerOptions(topics []string, pattern, subscription string, subType pulsar.SubscriptionType) pulsar.ConsumerOptions {
	base := pulsar.ConsumerOptions{
		SubscriptionName: subscription,
		Type:             subType,
	}
	switch {
	case len(topics) == 1:
		base.Topic = topics[0]
	case len(topics) > 1:
		base.Topics = topics
	default:
		base.TopicsPattern = pattern
	}

	const cat = CategoryConsumer
	if v, ok := c.intValue(cat, "receiverQueueSize"); ok {
		base.ReceiverQueueSize = v
	}
	if v, ok := c.boolValue(cat, "readCompacted"); ok {
		base.ReadCompacted = v
	}
	if v, ok := c.boolValue(cat, "replicateSubscriptionState"); ok {
		base.ReplicateSubscriptionState = v
	}
	if v, ok := c.boolValue(cat, "autoAckOldestChunkedMessageOnQueueFull"); ok {
		base.AutoAckIncompleteChunk = v
	}
	if v, ok := c.intValue(cat, "maxPendingChunkedMessage"); ok {
		base.MaxPendingChunkedMessage = v
	}
	if v, ok := c.int64Value(cat, "expireTimeOfIncompleteChunkedMessageMillis"); ok {
		base.ExpireTimeOfIncompleteChunk = time.Duration(v) * time.Millisecond
	}
	if v, ok := c.boolValue(cat, "autoUpdatePartitions"); ok && v {
		base.AutoDiscoveryPeriod = partitionsDiscoveryInterval
	}
	if v, ok := c.int64Value(cat, "acknowledgementsGroupTimeMicros"); ok {
		base.AckGroupingOptions = ackGrouping(time.Duration(v) * time.Microsecond)
	}
	if v, ok := c.typed[cat]["properties"].(map[string]string); ok {
		base.Properties = v
	}
	if v, ok := c.typed[cat]["subscriptionInitialPosition"].(pulsar.SubscriptionInitialPosition); ok {
		base.SubscriptionInitialPosition = v
	}

	b := xpulsar.NewConsumerOptionsBuilder("", "").From(base)
	if v, ok := c.boolValue(cat, "retryEnable"); ok {
		b.WithRetryEnable(v)
	}
	if v, ok := c.int64Value(cat, "negativeAckRedeliveryDelayMicros"); ok {
		b.WithNackRedeliveryDelay(time.Duration(v) * time.Microsecond)
	}
	if dl, ok := c.DeadLetter(); ok {
		b.WithDLQ(dl.Builder())
	}
	if bo, ok := c.NackBackoff(); ok {
		b.WithNackBackoff(bo.Policy())
	}
	return b.Build()
}

// ReaderOptions 映射 reader 分类。
func (c *Conf) ReaderOptions(topic string, start pulsar.MessageID) pulsar.ReaderOptions {
	opts := pulsar.ReaderOptions{Topic: topic, StartMessageID: start}
	const cat = CategoryReader
	if v, ok := c.stringValue(cat, "readerName"); ok {
		opts.Name = v
	}
	if v, ok := c.stringValue(cat, "subscriptionRolePrefix"); ok {
		opts.SubscriptionRolePrefix = v
	}
	if v, ok := c.intValue(cat, "receiverQueueSize"); ok {
		opts.ReceiverQueueSize = v
	}
	if v, ok := c.boolValue(cat, "readCompacted"); ok {
		opts.ReadCompacted = v
	}
	if v, ok := c.boolValue(cat, "startMessageIdInclusive"); ok {
		opts.StartMessageIDInclusive = v
	}
	return opts
}

// Schema 按 schema.type 构造 SDK schema，未设置时返回 nil。
func (c *Conf) Schema() (pulsar.Schema, error) {
	t := c.Raw(CategorySchema, "type")
	if t == "" {
		return nil, nil
	}
	switch strings.ToLower(t) {
	case "bytes":
		return pulsar.NewBytesSchema(nil), nil
	case "string":
		return pulsar.NewStringSchema(nil), nil
	case "json":
		def := c.Raw(CategorySchema, "definition")
		if def == "" {
			return nil, invalid(CategorySchema, "definition", def, "<avro_json_schema_definition>")
		}
		return pulsar.NewJSONSchema(def, nil), nil
	}
	return nil, invalid(CategorySchema, "type", t, "bytes, string, json")
}

// Builder 转换为 DLQ 构建器。
func (d DeadLetterSpec) Builder() *xpulsar.DLQBuilder {
	return xpulsar.NewDLQBuilder().
		WithMaxDeliveries(d.MaxRedeliverCount).
		WithDeadLetterTopic(d.DeadLetterTopic).
		WithRetryLetterTopic(d.RetryLetterTopic).
		WithInitialSubscription(d.InitialSubscriptionName)
}

// Policy 转换为乘数退避策略。
func (b BackoffSpec) Policy() *xretry.ExponentialBackoff {
	return xpulsar.MultiplierBackoff(
		time.Duration(b.MinDelayMs)*time.Millisecond,
		time.Duration(b.MaxDelayMs)*time.Millisecond,
		b.Multiplier,
	)
}
