package pulsartest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/apache/pulsar-client-go/pulsar"
)

// MessageID 假 broker 的消息 ID：ledger 为 topic 编号，entry 为日志下标。
type MessageID struct {
	pulsar.MessageID
	ledger int64
	entry  int64
}

func (id MessageID) LedgerID() int64     { return id.ledger }
func (id MessageID) EntryID() int64      { return id.entry }
func (id MessageID) BatchIdx() int32     { return -1 }
func (id MessageID) PartitionIdx() int32 { return -1 }
func (id MessageID) BatchSize() int32    { return 0 }
func (id MessageID) String() string      { return fmt.Sprintf("%d:%d:-1", id.ledger, id.entry) }
func (id MessageID) Serialize() []byte   { return []byte(id.String()) }

// Message 实现 pulsar.Message。
type Message struct {
	topic        string
	id           MessageID
	key          string
	orderingKey  string
	payload      []byte
	props        map[string]string
	eventTime    time.Time
	publishTime  time.Time
	producerName string
	redelivery   uint32
}

// NewMessage 创建一条独立消息，用于直接驱动处理函数的测试。
func NewMessage(topic, key string, payload []byte, props map[string]string) *Message {
	return &Message{
		topic:       topic,
		key:         key,
		payload:     payload,
		props:       props,
		publishTime: time.Now(),
	}
}

// WithRedeliveryCount 返回重投次数为 n 的副本。
func (m *Message) WithRedeliveryCount(n uint32) *Message {
	cp := *m
	cp.redelivery = n
	return &cp
}

func (m *Message) Topic() string                 { return m.topic }
func (m *Message) Properties() map[string]string { return m.props }
func (m *Message) Payload() []byte               { return m.payload }
func (m *Message) ID() pulsar.MessageID          { return m.id }
func (m *Message) PublishTime() time.Time        { return m.publishTime }
func (m *Message) EventTime() time.Time          { return m.eventTime }
func (m *Message) Key() string                   { return m.key }
func (m *Message) OrderingKey() string           { return m.orderingKey }
func (m *Message) RedeliveryCount() uint32       { return m.redelivery }
func (m *Message) IsReplicated() bool            { return false }
func (m *Message) GetReplicatedFrom() string     { return "" }
func (m *Message) ProducerName() string          { return m.producerName }
func (m *Message) SchemaVersion() []byte         { return nil }
func (m *Message) Index() *uint64                { return nil }
func (m *Message) BrokerPublishTime() *time.Time { return nil }

func (m *Message) GetEncryptionContext() *pulsar.EncryptionContext { return nil }

// GetSchemaValue 按 JSON 解码 payload。
func (m *Message) GetSchemaValue(v interface{}) error {
	return json.Unmarshal(m.payload, v)
}

func (m *Message) redeliver() *Message {
	return m.WithRedeliveryCount(m.redelivery + 1)
}

var (
	_ pulsar.Message   = (*Message)(nil)
	_ pulsar.MessageID = MessageID{}
)
