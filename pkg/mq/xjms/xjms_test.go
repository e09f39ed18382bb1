package xjms

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/omeyang/xworkshop/internal/mqcore"
	"github.com/omeyang/xworkshop/internal/pulsartest"
	"github.com/omeyang/xworkshop/pkg/config/pulsarconf"
	"github.com/omeyang/xworkshop/pkg/mq/xpulsar"
	"github.com/omeyang/xworkshop/pkg/util/xid"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newSession(t *testing.T, opts ...Option) (*Session, *pulsartest.Broker) {
	t.Helper()
	fake := pulsartest.NewClient()
	c, err := xpulsar.Wrap(fake)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	s, err := NewSession(c, append([]Option{WithNackDelay(5 * time.Millisecond)}, opts...)...)
	require.NoError(t, err)
	return s, fake.Broker()
}

func sendSeq(t *testing.T, s *Session, dest Destination, n int, extra map[string]string) {
	t.Helper()
	sender, err := s.CreateSender(dest)
	require.NoError(t, err)
	defer sender.Close()
	for i := range n {
		props := map[string]string{"sequence_id": strconv.Itoa(i)}
		for k, v := range extra {
			props[k] = v
		}
		_, err := sender.Send(context.Background(), []byte("msg-"+strconv.Itoa(i)), props)
		require.NoError(t, err)
	}
}

func TestNewSession(t *testing.T) {
	t.Run("nil 客户端", func(t *testing.T) {
		_, err := NewSession(nil)
		assert.ErrorIs(t, err, ErrNilClient)
	})
	t.Run("默认 queue 订阅", func(t *testing.T) {
		s, _ := newSession(t)
		assert.Equal(t, DefaultQueueSubscription, s.QueueSubscription())
	})
	t.Run("配置文件覆盖 queue 订阅", func(t *testing.T) {
		conf, err := pulsarconf.FromMap(map[string]string{"jms.queueSubscriptionName": "orders-sub"})
		require.NoError(t, err)
		s, _ := newSession(t, WithConf(conf))
		assert.Equal(t, "orders-sub", s.QueueSubscription())
	})
	t.Run("选项优先于配置文件", func(t *testing.T) {
		conf, err := pulsarconf.FromMap(map[string]string{"jms.queueSubscriptionName": "orders-sub"})
		require.NoError(t, err)
		s, _ := newSession(t, WithConf(conf), WithQueueSubscription("explicit"))
		assert.Equal(t, "explicit", s.QueueSubscription())
	})
}

func TestSender_MessageID(t *testing.T) {
	gen, err := xid.NewGenerator(xid.WithMachineID(func() (uint16, error) { return 7, nil }))
	require.NoError(t, err)
	s, broker := newSession(t, WithIDGenerator(gen))

	t.Run("按时间递增分配", func(t *testing.T) {
		sendSeq(t, s, NewQueue("q-ids"), 5, nil)
		msgs := broker.Messages("q-ids")
		require.Len(t, msgs, 5)
		var last int64 = -1
		for _, m := range msgs {
			raw := m.Properties()[PropMessageID]
			require.True(t, strings.HasPrefix(raw, messageIDPrefix), raw)
			id, err := xid.Parse(strings.TrimPrefix(raw, messageIDPrefix))
			require.NoError(t, err)
			assert.Greater(t, id, last)
			last = id
		}
	})

	t.Run("保留调用方指定的 ID", func(t *testing.T) {
		sendSeq(t, s, NewQueue("q-fixed"), 1, map[string]string{PropMessageID: "ID:custom"})
		msgs := broker.Messages("q-fixed")
		require.Len(t, msgs, 1)
		assert.Equal(t, "ID:custom", msgs[0].Properties()[PropMessageID])
	})

	t.Run("接收端可见", func(t *testing.T) {
		r, err := s.CreateReceiver(NewQueue("q-ids"), "")
		require.NoError(t, err)
		defer r.Close()
		m, err := r.Receive(context.Background(), time.Second)
		require.NoError(t, err)
		assert.Equal(t, broker.Messages("q-ids")[0].Properties()[PropMessageID], m.MessageID)
	})
}

func TestDestination(t *testing.T) {
	k, err := ParseKind("Queue")
	require.NoError(t, err)
	assert.Equal(t, Queue, k)
	k, err = ParseKind("TOPIC")
	require.NoError(t, err)
	assert.Equal(t, Topic, k)
	_, err = ParseKind("stream")
	assert.ErrorIs(t, err, ErrInvalidKind)

	assert.Equal(t, "queue://q1", NewQueue("q1").String())
	assert.True(t, NewQueue("q1").IsQueue())
	assert.False(t, NewTopic("t1").IsQueue())
	assert.ErrorIs(t, Destination{Kind: Queue}.validate(), ErrEmptyName)
	assert.ErrorIs(t, Destination{Name: "x"}.validate(), ErrInvalidKind)
}

func TestConsumerMode(t *testing.T) {
	m, err := ParseConsumerMode("sharedDurableConsumer")
	require.NoError(t, err)
	assert.Equal(t, ModeSharedDurable, m)
	assert.Equal(t, "SharedDurableConsumer", m.String())
	_, err = ParseConsumerMode("Producer")
	assert.ErrorIs(t, err, ErrInvalidMode)

	tests := []struct {
		name string
		mode ConsumerMode
		dest Destination
		sub  string
		want error
	}{
		{"普通消费者无需订阅名", ModeConsumer, NewQueue("q"), "", nil},
		{"共享消费者需要订阅名", ModeShared, NewTopic("t"), "", ErrSubscriptionRequired},
		{"持久消费者只能用于 topic", ModeDurable, NewQueue("q"), "s", ErrTopicRequired},
		{"共享持久消费者", ModeSharedDurable, NewTopic("t"), "s", nil},
		{"未知模式", ConsumerMode(42), NewTopic("t"), "s", ErrInvalidMode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMode(tt.mode, tt.dest, tt.sub)
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestQueue_SendReceive(t *testing.T) {
	s, broker := newSession(t)
	dest := NewQueue("persistent://public/default/q1")
	sendSeq(t, s, dest, 3, nil)

	r, err := s.CreateReceiver(dest, "")
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, DefaultQueueSubscription, r.Subscription())

	// queue 从最早位置消费
	for i := range 3 {
		m, err := r.Receive(context.Background(), time.Second)
		require.NoError(t, err)
		assert.Equal(t, "msg-"+strconv.Itoa(i), m.Text())
		v, ok := m.Property("sequence_id")
		assert.True(t, ok)
		assert.Equal(t, strconv.Itoa(i), v)
		assert.False(t, m.Redelivered)
	}
	assert.Len(t, broker.Messages(dest.Name), 3)
}

func TestQueue_SelectorNacksForOtherReceivers(t *testing.T) {
	s, _ := newSession(t)
	dest := NewQueue("q-colors")

	sender, err := s.CreateSender(dest)
	require.NoError(t, err)
	defer sender.Close()
	ctx := context.Background()
	_, err = sender.Send(ctx, []byte("r"), map[string]string{"color": "red"})
	require.NoError(t, err)
	_, err = sender.Send(ctx, []byte("b"), map[string]string{"color": "blue"})
	require.NoError(t, err)

	blue, err := s.CreateReceiver(dest, "color = 'blue'")
	require.NoError(t, err)
	defer blue.Close()
	red, err := s.CreateReceiver(dest, "color = 'red'")
	require.NoError(t, err)
	defer red.Close()

	m, err := blue.Receive(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "b", m.Text())

	// 红色消息被 blue nack 后重新投递给同一订阅
	m, err = red.Receive(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "r", m.Text())
	assert.True(t, m.Redelivered)
}

func TestTopic_SelectorAcksNonMatching(t *testing.T) {
	s, _ := newSession(t)
	dest := NewTopic("t-colors")

	r, err := s.CreateReceiver(dest, "sequence_id >= 3 and sequence_id < 6")
	require.NoError(t, err)
	defer r.Close()

	sendSeq(t, s, dest, 8, nil)

	var got []string
	for range 3 {
		m, err := r.Receive(context.Background(), time.Second)
		require.NoError(t, err)
		got = append(got, m.Properties["sequence_id"])
	}
	assert.Equal(t, []string{"3", "4", "5"}, got)

	_, err = r.Receive(context.Background(), 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrReceiveTimeout)
}

func TestTopic_ConsumerStartsAtLatest(t *testing.T) {
	s, _ := newSession(t)
	dest := NewTopic("t-latest")
	sendSeq(t, s, dest, 2, nil)

	r, err := s.CreateReceiver(dest, "")
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Receive(context.Background(), 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrReceiveTimeout)
}

func TestReceive_ContextCanceled(t *testing.T) {
	s, _ := newSession(t)
	r, err := s.CreateReceiver(NewTopic("t-cancel"), "")
	require.NoError(t, err)
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Receive(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCreateConsumer_Modes(t *testing.T) {
	s, _ := newSession(t)
	dest := NewTopic("t-modes")

	t.Run("持久独占订阅只允许一个消费者", func(t *testing.T) {
		r, err := s.CreateConsumer(dest, ModeDurable, "durable-sub", "")
		require.NoError(t, err)
		defer r.Close()
		assert.Equal(t, "durable-sub", r.Subscription())

		_, err = s.CreateConsumer(dest, ModeDurable, "durable-sub", "")
		assert.ErrorIs(t, err, pulsartest.ErrExclusiveBusy)
	})

	t.Run("共享订阅允许多个消费者", func(t *testing.T) {
		r1, err := s.CreateConsumer(dest, ModeSharedDurable, "shared-sub", "")
		require.NoError(t, err)
		defer r1.Close()
		r2, err := s.CreateConsumer(dest, ModeShared, "shared-sub-2", "")
		require.NoError(t, err)
		defer r2.Close()
		r3, err := s.CreateConsumer(dest, ModeShared, "shared-sub-2", "")
		require.NoError(t, err)
		defer r3.Close()
	})

	t.Run("普通消费者使用随机订阅名", func(t *testing.T) {
		r1, err := s.CreateReceiver(dest, "")
		require.NoError(t, err)
		defer r1.Close()
		r2, err := s.CreateReceiver(dest, "")
		require.NoError(t, err)
		defer r2.Close()
		assert.NotEqual(t, r1.Subscription(), r2.Subscription())
	})

	t.Run("参数错误", func(t *testing.T) {
		_, err := s.CreateConsumer(dest, ModeShared, "", "")
		assert.ErrorIs(t, err, ErrSubscriptionRequired)
		_, err = s.CreateConsumer(NewQueue("q"), ModeShared, "s", "")
		assert.ErrorIs(t, err, ErrTopicRequired)
		_, err = s.CreateConsumer(dest, ModeConsumer, "", "a =")
		var se *SelectorError
		assert.ErrorAs(t, err, &se)
	})
}

func TestBrowser(t *testing.T) {
	s, _ := newSession(t)
	dest := NewQueue("q-browse")
	sendSeq(t, s, dest, 8, nil)

	b, err := s.CreateBrowser(dest, "sequence_id >= 3 and sequence_id < 6")
	require.NoError(t, err)

	t.Run("按选择器浏览", func(t *testing.T) {
		msgs, err := b.Browse(context.Background(), 0)
		require.NoError(t, err)
		require.Len(t, msgs, 3)
		assert.Equal(t, "msg-3", msgs[0].Text())
	})

	t.Run("限制条数", func(t *testing.T) {
		msgs, err := b.Browse(context.Background(), 2)
		require.NoError(t, err)
		assert.Len(t, msgs, 2)
	})

	t.Run("浏览不消费消息", func(t *testing.T) {
		r, err := s.CreateReceiver(dest, "")
		require.NoError(t, err)
		defer r.Close()
		m, err := r.Receive(context.Background(), time.Second)
		require.NoError(t, err)
		assert.Equal(t, "msg-0", m.Text())
	})

	t.Run("只能用于 queue", func(t *testing.T) {
		_, err := s.CreateBrowser(NewTopic("t"), "")
		assert.ErrorIs(t, err, ErrQueueRequired)
	})
}

func TestRequestorService(t *testing.T) {
	s, broker := newSession(t)
	dest := NewQueue("q-requests")

	svc, err := s.CreateService(dest)
	require.NoError(t, err)
	defer svc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	var serveErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		serveErr = svc.Serve(ctx, func(_ context.Context, req *Message) ([]byte, error) {
			n, err := strconv.Atoi(req.Text())
			if err != nil {
				return nil, err
			}
			return []byte(strconv.Itoa(n * 100)), nil
		})
	}()

	req, err := s.CreateRequestor(dest, "persistent://public/default/reply")
	require.NoError(t, err)
	defer req.Close()
	assert.Equal(t, "persistent://public/default/reply", req.ReplyTo())

	for _, n := range []int{7, 3} {
		reply, err := req.Request(context.Background(), []byte(strconv.Itoa(n)), time.Second)
		require.NoError(t, err)
		assert.Equal(t, strconv.Itoa(n*100), reply.Text())
		assert.True(t, strings.HasPrefix(reply.CorrelationID, messageIDPrefix))
		assert.NotEmpty(t, reply.MessageID)
	}

	// 请求的 JMSMessageID 即关联 ID
	for _, m := range broker.Messages("q-requests") {
		assert.Equal(t, m.Properties()[PropMessageID], m.Properties()[PropCorrelationID])
	}

	// 处理失败的请求没有应答
	_, err = req.Request(context.Background(), []byte("x"), 30*time.Millisecond)
	assert.ErrorIs(t, err, ErrReceiveTimeout)

	cancel()
	wg.Wait()
	assert.NoError(t, serveErr)
}

func TestService_Errors(t *testing.T) {
	s, _ := newSession(t)
	_, err := s.CreateService(NewTopic("t"))
	assert.ErrorIs(t, err, ErrQueueRequired)

	svc, err := s.CreateService(NewQueue("q-svc"))
	require.NoError(t, err)
	defer svc.Close()
	assert.ErrorIs(t, svc.Serve(context.Background(), nil), ErrNilHandler)
	assert.ErrorIs(t, svc.handle(context.Background(), &Message{}, nil), ErrNoReplyTo)
}

func TestService_ServeBudget(t *testing.T) {
	s, _ := newSession(t)
	dest := NewQueue("q-budget")

	svc, err := s.CreateService(dest)
	require.NoError(t, err)
	defer svc.Close()

	done := make(chan error, 1)
	go func() {
		done <- svc.ServeBudget(context.Background(), mqcore.NewBudget(2), func(_ context.Context, req *Message) ([]byte, error) {
			return []byte("re:" + req.Text()), nil
		})
	}()

	req, err := s.CreateRequestor(dest, "persistent://public/default/budget-reply")
	require.NoError(t, err)
	defer req.Close()

	for _, body := range []string{"a", "b"} {
		reply, err := req.Request(context.Background(), []byte(body), time.Second)
		require.NoError(t, err)
		assert.Equal(t, "re:"+body, reply.Text())
	}
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("服务在预算用完后没有返回")
	}
}
