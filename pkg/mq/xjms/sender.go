package xjms

import (
	"context"
	"maps"

	"github.com/apache/pulsar-client-go/pulsar"

	"github.com/omeyang/xworkshop/pkg/mq/xpulsar"
	"github.com/omeyang/xworkshop/pkg/util/xid"
)

// Sender 向目的地发送消息。
type Sender struct {
	dest     Destination
	producer *xpulsar.TracingProducer
	ids      *xid.Generator
}

// CreateSender 创建发送者。
func (s *Session) CreateSender(dest Destination) (*Sender, error) {
	if err := dest.validate(); err != nil {
		return nil, err
	}
	opts, err := s.conf.ProducerOptions(dest.Name)
	if err != nil {
		return nil, err
	}
	p, err := xpulsar.NewTracingProducer(s.client, opts)
	if err != nil {
		return nil, err
	}
	return &Sender{dest: dest, producer: p, ids: s.ids}, nil
}

func (s *Sender) Destination() Destination { return s.dest }

// Send 发送消息体与属性。props 不会被修改；
// 未设置 JMSMessageID 时分配一个按时间递增的 ID。
func (s *Sender) Send(ctx context.Context, body []byte, props map[string]string) (pulsar.MessageID, error) {
	out := maps.Clone(props)
	if out == nil {
		out = make(map[string]string, 1)
	}
	if out[PropMessageID] == "" {
		id, err := s.nextMessageID()
		if err != nil {
			return nil, err
		}
		out[PropMessageID] = id
	}
	return s.producer.Send(ctx, &pulsar.ProducerMessage{
		Payload:    body,
		Properties: out,
	})
}

func (s *Sender) nextMessageID() (string, error) {
	id, err := s.ids.NewString()
	if err != nil {
		return "", err
	}
	return messageIDPrefix + id, nil
}

func (s *Sender) Close() { s.producer.Close() }
