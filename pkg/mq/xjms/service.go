package xjms

import (
	"context"

	"github.com/apache/pulsar-client-go/pulsar"

	"github.com/omeyang/xworkshop/internal/mqcore"
	"github.com/omeyang/xworkshop/pkg/mq/xpulsar"
	"github.com/omeyang/xworkshop/pkg/observability/xlog"
	"github.com/omeyang/xworkshop/pkg/util/xlru"
)

// DefaultReplyProducers Service 缓存的应答生产者数量。
const DefaultReplyProducers = 64

// ServiceHandler 处理请求并返回应答消息体。
type ServiceHandler func(ctx context.Context, req *Message) ([]byte, error)

// Service 从 queue 接收请求，把应答发往请求的 JMSReplyTo。
type Service struct {
	session   *Session
	requests  *Receiver
	producers *xlru.Cache[string, *xpulsar.TracingProducer]
}

// CreateService 创建应答服务，只能用于 queue。
func (s *Session) CreateService(dest Destination) (*Service, error) {
	if err := dest.validate(); err != nil {
		return nil, err
	}
	if !dest.IsQueue() {
		return nil, ErrQueueRequired
	}
	producers, err := xlru.New(xlru.Config{Size: DefaultReplyProducers},
		xlru.WithOnEvicted(func(_ string, p *xpulsar.TracingProducer) { p.Close() }))
	if err != nil {
		return nil, err
	}
	requests, err := s.CreateReceiver(dest, "")
	if err != nil {
		producers.Close()
		return nil, err
	}
	return &Service{session: s, requests: requests, producers: producers}, nil
}

// Serve 循环处理请求直到 ctx 结束，ctx 结束时返回 nil。
// 处理失败或没有 JMSReplyTo 的请求只记录日志。
func (s *Service) Serve(ctx context.Context, handler ServiceHandler) error {
	return s.ServeBudget(ctx, nil, handler)
}

// ServeBudget 同 Serve，budget 耗尽后返回 nil。每个收到的请求占用一个名额。
func (s *Service) ServeBudget(ctx context.Context, budget *mqcore.Budget, handler ServiceHandler) error {
	if handler == nil {
		return ErrNilHandler
	}
	for !budget.Exhausted() {
		req, err := s.requests.Receive(ctx, 0)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := s.handle(ctx, req, handler); err != nil {
			xlog.Warn(ctx, "request not answered",
				xlog.Topic(req.Topic), xlog.MessageID(req.ID), xlog.Err(err))
		}
		budget.Take()
	}
	return nil
}

func (s *Service) handle(ctx context.Context, req *Message, handler ServiceHandler) error {
	if req.ReplyTo == "" {
		return ErrNoReplyTo
	}
	body, err := handler(ctx, req)
	if err != nil {
		return err
	}
	p, err := s.producers.GetOrCreate(req.ReplyTo, func(topic string) (*xpulsar.TracingProducer, error) {
		opts, err := s.session.conf.ProducerOptions(topic)
		if err != nil {
			return nil, err
		}
		return xpulsar.NewTracingProducer(s.session.client, opts)
	})
	if err != nil {
		return err
	}
	id, err := s.session.ids.NewString()
	if err != nil {
		return err
	}
	props := map[string]string{PropMessageID: messageIDPrefix + id}
	if req.CorrelationID != "" {
		props[PropCorrelationID] = req.CorrelationID
	}
	if _, err = p.Send(ctx, &pulsar.ProducerMessage{Payload: body, Properties: props}); err != nil {
		// 下一次请求重新创建生产者
		s.producers.Delete(req.ReplyTo)
	}
	return err
}

// Close 关闭请求接收者与全部应答生产者。
func (s *Service) Close() {
	s.requests.Close()
	s.producers.Close()
}
