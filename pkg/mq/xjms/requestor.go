package xjms

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/omeyang/xworkshop/pkg/observability/xlog"
)

// Requestor 发送请求并等待带相同 JMSCorrelationID 的应答。
// 应答 topic 上的订阅在首次发送前建立，避免漏掉应答。
type Requestor struct {
	mu      sync.Mutex
	sender  *Sender
	replies *Receiver
	replyTo string
}

// CreateRequestor 创建请求者。replyTopic 为应答目的地。
func (s *Session) CreateRequestor(dest Destination, replyTopic string) (*Requestor, error) {
	replyDest := NewTopic(replyTopic)
	if err := replyDest.validate(); err != nil {
		return nil, err
	}
	replies, err := s.CreateReceiver(replyDest, "")
	if err != nil {
		return nil, err
	}
	sender, err := s.CreateSender(dest)
	if err != nil {
		replies.Close()
		return nil, err
	}
	return &Requestor{sender: sender, replies: replies, replyTo: replyTopic}, nil
}

func (r *Requestor) ReplyTo() string { return r.replyTo }

// Request 发送请求并等待应答，超时返回 ErrReceiveTimeout。
// 请求的 JMSMessageID 同时作为 JMSCorrelationID；
// 关联 ID 不匹配的应答（例如上一次超时请求的迟到应答）被丢弃。
func (r *Requestor) Request(ctx context.Context, body []byte, timeout time.Duration) (*Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	corrID, err := r.sender.nextMessageID()
	if err != nil {
		return nil, err
	}
	if _, err := r.sender.Send(ctx, body, map[string]string{
		PropMessageID:     corrID,
		PropReplyTo:       r.replyTo,
		PropCorrelationID: corrID,
	}); err != nil {
		return nil, err
	}

	wctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	for {
		reply, err := r.replies.Receive(wctx, 0)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				return nil, ErrReceiveTimeout
			}
			return nil, err
		}
		if reply.CorrelationID == corrID {
			return reply, nil
		}
		xlog.Debug(ctx, "discard reply with stale correlation id",
			xlog.Topic(r.replyTo), xlog.Key(reply.CorrelationID))
	}
}

func (r *Requestor) Close() {
	r.sender.Close()
	r.replies.Close()
}
