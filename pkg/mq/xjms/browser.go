package xjms

import (
	"context"

	"github.com/apache/pulsar-client-go/pulsar"
)

// Browser 非破坏地查看 queue 中的消息。
type Browser struct {
	session  *Session
	dest     Destination
	selector *Selector
}

// CreateBrowser 只能用于 queue。
func (s *Session) CreateBrowser(dest Destination, selector string) (*Browser, error) {
	if err := dest.validate(); err != nil {
		return nil, err
	}
	if !dest.IsQueue() {
		return nil, ErrQueueRequired
	}
	sel, err := ParseSelector(selector)
	if err != nil {
		return nil, err
	}
	return &Browser{session: s, dest: dest, selector: sel}, nil
}

// Browse 从最早位置读到当前末尾，返回至多 limit 条满足选择器的消息；
// limit <= 0 表示不限。每次调用都重新从头读取。
func (b *Browser) Browse(ctx context.Context, limit int) ([]*Message, error) {
	opts := b.session.conf.ReaderOptions(b.dest.Name, pulsar.EarliestMessageID())
	reader, err := b.session.client.CreateReader(opts)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	var out []*Message
	for reader.HasNext() {
		if limit > 0 && len(out) >= limit {
			break
		}
		msg, err := reader.Next(ctx)
		if err != nil {
			return out, err
		}
		m := fromPulsar(msg)
		if b.selector.Matches(m.Properties) {
			out = append(out, m)
		}
	}
	return out, nil
}
