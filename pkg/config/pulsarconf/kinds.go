package pulsarconf

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/apache/pulsar-client-go/pulsar"
)

type kind int

const (
	kindString kind = iota
	kindInt
	kindLong
	kindBool
	kindDouble
	kindCompression
	kindHashing
	kindJSONMap
	kindInitialPosition
	kindRegexMode
	kindDeadLetter
	kindBackoff
)

var keyKinds = map[Category]map[string]kind{
	CategoryClient: {
		"operationTimeoutMs":                      kindLong,
		"statsIntervalSeconds":                    kindLong,
		"numIoThreads":                            kindInt,
		"numListenerThreads":                      kindInt,
		"connectionsPerBroker":                    kindInt,
		"useTcpNoDelay":                           kindBool,
		"memoryLimitBytes":                        kindLong,
		"concurrentLookupRequest":                 kindInt,
		"maxLookupRequest":                        kindInt,
		"maxLookupRedirects":                      kindInt,
		"maxNumberOfRejectedRequestPerConnection": kindInt,
		"keepAliveIntervalSeconds":                kindInt,
		"connectionTimeoutMs":                     kindInt,
		"requestTimeoutMs":                        kindInt,
		"initialBackoffIntervalNanos":             kindLong,
		"maxBackoffIntervalNanos":                 kindLong,
		"connectionMaxIdleSeconds":                kindInt,
		"listenerName":                            kindString,
	},
	CategoryProducer: {
		"sendTimeoutMs":                      kindLong,
		"blockIfQueueFull":                   kindBool,
		"maxPendingMessages":                 kindInt,
		"maxPendingMessagesAcrossPartitions": kindInt,
		"batchingMaxPublishDelayMicros":      kindLong,
		"batchingMaxMessages":                kindInt,
		"batchingMaxBytes":                   kindInt,
		"batchingEnabled":                    kindBool,
		"chunkingEnabled":                    kindBool,
		"compressionType":                    kindCompression,
		"hashingScheme":                      kindHashing,
		"initialSequenceId":                  kindLong,
		"autoUpdatePartitions":               kindBool,
	},
	CategoryConsumer: {
		"receiverQueueSize":                          kindInt,
		"maxTotalReceiverQueueSizeAcrossPartitions":  kindInt,
		"acknowledgementsGroupTimeMicros":            kindLong,
		"negativeAckRedeliveryDelayMicros":           kindLong,
		"ackTimeoutMillis":                           kindLong,
		"tickDurationMillis":                         kindLong,
		"priorityLevel":                              kindInt,
		"maxPendingChunkedMessage":                   kindInt,
		"expireTimeOfIncompleteChunkedMessageMillis": kindLong,
		"readCompacted":                              kindBool,
		"autoUpdatePartitions":                       kindBool,
		"replicateSubscriptionState":                 kindBool,
		"retryEnable":                                kindBool,
		"autoAckOldestChunkedMessageOnQueueFull":     kindBool,
		"properties":                                 kindJSONMap,
		"subscriptionInitialPosition":                kindInitialPosition,
		"regexSubscriptionMode":                      kindRegexMode,
		"deadLetterPolicy":                           kindDeadLetter,
		"negativeAckRedeliveryBackoff":               kindBackoff,
		"ackTimeoutRedeliveryBackoff":                kindBackoff,
	},
	CategoryReader: {
		"readerName":              kindString,
		"subscriptionRolePrefix":  kindString,
		"receiverQueueSize":       kindInt,
		"readCompacted":           kindBool,
		"startMessageIdInclusive": kindBool,
	},
}

// Compression producer.compressionType 的取值。
type Compression string

const (
	CompressionNone   Compression = "NONE"
	CompressionLZ4    Compression = "LZ4"
	CompressionZLib   Compression = "ZLIB"
	CompressionZSTD   Compression = "ZSTD"
	CompressionSnappy Compression = "SNAPPY"
)

// HashingScheme producer.hashingScheme 的取值。
type HashingScheme string

const (
	HashingJavaString HashingScheme = "JavaStringHash"
	HashingMurmur3    HashingScheme = "Murmur3_32Hash"
)

// RegexSubscriptionMode consumer.regexSubscriptionMode 的取值。
type RegexSubscriptionMode string

const (
	RegexPersistentOnly    RegexSubscriptionMode = "PersistentOnly"
	RegexNonPersistentOnly RegexSubscriptionMode = "NonPersistentOnly"
	RegexAllTopics         RegexSubscriptionMode = "AllTopics"
)

// BackoffSpec 乘数重投退避。
type BackoffSpec struct {
	MinDelayMs int64
	MaxDelayMs int64
	Multiplier float64
}

// DeadLetterSpec 死信策略。
type DeadLetterSpec struct {
	MaxRedeliverCount       uint32
	RetryLetterTopic        string
	DeadLetterTopic         string
	InitialSubscriptionName string
}

var (
	compressions   = []string{string(CompressionNone), string(CompressionLZ4), string(CompressionZLib), string(CompressionZSTD), string(CompressionSnappy)}
	hashings       = []string{string(HashingJavaString), string(HashingMurmur3)}
	positions      = []string{"Earliest", "Latest"}
	regexModes     = []string{string(RegexPersistentOnly), string(RegexNonPersistentOnly), string(RegexAllTopics)}
	deadLetterKeys = []string{"maxRedeliverCount", "retryLetterTopic", "deadLetterTopic", "initialSubscriptionName"}
	backoffKeys    = []string{"minDelayMs", "maxDelayMs", "multiplier"}
)

const (
	expectedJSONMap    = `{"property1":"value1", "property2":"value2"}, ...`
	expectedDeadLetter = `{"maxRedeliverCount":"<int_value>" (mandatory),"retryLetterTopic":"<topic_name>","deadLetterTopic":"<topic_name>","initialSubscriptionName":"<sub_name>"}`
	expectedBackoff    = `{"minDelayMs":"<int_value>","maxDelayMs":"<int_value>","multiplier":"<double_value>"}`
)

func expected(k kind) string {
	switch k {
	case kindInt:
		return "<int_value>"
	case kindLong:
		return "<long_value>"
	case kindBool:
		return "true, false"
	case kindDouble:
		return "<double_value>"
	case kindCompression:
		return strings.Join(compressions, ", ")
	case kindHashing:
		return strings.Join(hashings, ", ")
	case kindJSONMap:
		return expectedJSONMap
	case kindInitialPosition:
		return strings.Join(positions, ", ")
	case kindRegexMode:
		return strings.Join(regexModes, ", ")
	case kindDeadLetter:
		return expectedDeadLetter
	case kindBackoff:
		return expectedBackoff
	}
	return "<string>"
}

// errEmpty 表示 JSON 值为空对象，按未设置处理。
var errEmpty = fmt.Errorf("empty json object")

// convert 把原始字符串转换为 kind 对应的 Go 值。
func convert(k kind, v string) (any, error) {
	switch k {
	case kindInt:
		n, err := strconv.ParseInt(v, 10, 32)
		return int(n), err
	case kindLong:
		return strconv.ParseInt(v, 10, 64)
	case kindBool:
		return parseBool(v)
	case kindDouble:
		return strconv.ParseFloat(v, 64)
	case kindCompression:
		s, err := matchEnum(v, compressions)
		return Compression(s), err
	case kindHashing:
		s, err := matchEnum(v, hashings)
		return HashingScheme(s), err
	case kindInitialPosition:
		s, err := matchEnum(v, positions)
		if err != nil {
			return nil, err
		}
		if s == "Earliest" {
			return pulsar.SubscriptionPositionEarliest, nil
		}
		return pulsar.SubscriptionPositionLatest, nil
	case kindRegexMode:
		s, err := matchEnum(v, regexModes)
		return RegexSubscriptionMode(s), err
	case kindJSONMap:
		return parseStringMap(v)
	case kindDeadLetter:
		return parseDeadLetter(v)
	case kindBackoff:
		return parseBackoff(v)
	}
	return v, nil
}

// parseBool 只接受 true/false，不区分大小写。
func parseBool(v string) (bool, error) {
	switch {
	case strings.EqualFold(v, "true"):
		return true, nil
	case strings.EqualFold(v, "false"):
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", v)
}

// matchEnum 忽略大小写匹配，返回规范写法。
func matchEnum(v string, values []string) (string, error) {
	for _, s := range values {
		if strings.EqualFold(v, s) {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown value %q", v)
}

// decodeObject 解析 JSON 对象，值只允许字符串或数字，统一转为字符串。
func decodeObject(v string) (map[string]string, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(v)))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after json object")
	}
	out := make(map[string]string, len(raw))
	for k, val := range raw {
		switch x := val.(type) {
		case string:
			out[k] = x
		case json.Number:
			out[k] = x.String()
		default:
			return nil, fmt.Errorf("value of %q must be a string or number", k)
		}
	}
	return out, nil
}

func parseStringMap(v string) (any, error) {
	m, err := decodeObject(v)
	if err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, errEmpty
	}
	return m, nil
}

// canonicalKeys 忽略大小写把键映射为规范写法，出现未知键时报错。
func canonicalKeys(m map[string]string, allowed []string) (map[string]string, error) {
	out := make(map[string]string, len(m))
	for k, v := range m {
		name, err := matchEnum(k, allowed)
		if err != nil {
			return nil, fmt.Errorf("unknown key %q", k)
		}
		out[name] = strings.TrimSpace(v)
	}
	return out, nil
}

func parseDeadLetter(v string) (any, error) {
	raw, err := decodeObject(v)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, errEmpty
	}
	m, err := canonicalKeys(raw, deadLetterKeys)
	if err != nil {
		return nil, err
	}
	countStr, ok := m["maxRedeliverCount"]
	if !ok {
		return nil, fmt.Errorf("maxRedeliverCount is mandatory")
	}
	count, err := strconv.ParseUint(countStr, 10, 32)
	if err != nil || count == 0 {
		return nil, fmt.Errorf("maxRedeliverCount must be a positive integer")
	}
	return DeadLetterSpec{
		MaxRedeliverCount:       uint32(count),
		RetryLetterTopic:        m["retryLetterTopic"],
		DeadLetterTopic:         m["deadLetterTopic"],
		InitialSubscriptionName: m["initialSubscriptionName"],
	}, nil
}

func parseBackoff(v string) (any, error) {
	raw, err := decodeObject(v)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, errEmpty
	}
	m, err := canonicalKeys(raw, backoffKeys)
	if err != nil {
		return nil, err
	}
	for _, k := range backoffKeys {
		if _, ok := m[k]; !ok {
			return nil, fmt.Errorf("%s is mandatory", k)
		}
	}
	minDelay, err := strconv.ParseInt(m["minDelayMs"], 10, 64)
	if err != nil || minDelay < 0 {
		return nil, fmt.Errorf("minDelayMs must be a non-negative integer")
	}
	maxDelay, err := strconv.ParseInt(m["maxDelayMs"], 10, 64)
	if err != nil || maxDelay < minDelay {
		return nil, fmt.Errorf("maxDelayMs must be an integer not less than minDelayMs")
	}
	mult, err := strconv.ParseFloat(m["multiplier"], 64)
	if err != nil || mult < 1 {
		return nil, fmt.Errorf("multiplier must be a number >= 1")
	}
	return BackoffSpec{MinDelayMs: minDelay, MaxDelayMs: maxDelay, Multiplier: mult}, nil
}
