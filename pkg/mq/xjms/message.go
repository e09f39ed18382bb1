package xjms

import (
	"maps"
	"time"

	"github.com/apache/pulsar-client-go/pulsar"
)

// 消息头属性。
const (
	PropMessageID     = "JMSMessageID"
	PropReplyTo       = "JMSReplyTo"
	PropCorrelationID = "JMSCorrelationID"
)

// messageIDPrefix JMSMessageID 的固定前缀。
const messageIDPrefix = "ID:"

// Message 接收到的消息。Properties 包含全部用户属性。
type Message struct {
	ID            pulsar.MessageID
	MessageID     string
	Topic         string
	Body          []byte
	Properties    map[string]string
	ReplyTo       string
	CorrelationID string
	Redelivered   bool
	Timestamp     time.Time
}

func (m *Message) Text() string { return string(m.Body) }

// Property 返回属性值。
func (m *Message) Property(name string) (string, bool) {
	v, ok := m.Properties[name]
	return v, ok
}

func fromPulsar(msg pulsar.Message) *Message {
	props := maps.Clone(msg.Properties())
	if props == nil {
		props = map[string]string{}
	}
	ts := msg.EventTime()
	if ts.IsZero() {
		ts = msg.PublishTime()
	}
	return &Message{
		ID:            msg.ID(),
		Topic:         msg.Topic(),
		Body:          msg.Payload(),
		Properties:    props,
		MessageID:     props[PropMessageID],
		ReplyTo:       props[PropReplyTo],
		CorrelationID: props[PropCorrelationID],
		Redelivered:   msg.RedeliveryCount() > 0,
		Timestamp:     ts,
	}
}
