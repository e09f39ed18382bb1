package xjms

import (
	"fmt"
	"strings"
)

// Kind 目的地类型。
type Kind int

const (
	Queue Kind = iota + 1
	Topic
)

func (k Kind) String() string {
	switch k {
	case Queue:
		return "queue"
	case Topic:
		return "topic"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind 大小写不敏感。
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "queue":
		return Queue, nil
	case "topic":
		return Topic, nil
	}
	return 0, fmt.Errorf("%w: %q, expecting queue or topic", ErrInvalidKind, s)
}

// Destination 消息目的地，Name 为 Pulsar topic 名。
type Destination struct {
	Name string
	Kind Kind
}

func NewQueue(name string) Destination { return Destination{Name: name, Kind: Queue} }

func NewTopic(name string) Destination { return Destination{Name: name, Kind: Topic} }

func (d Destination) IsQueue() bool { return d.Kind == Queue }

func (d Destination) String() string { return d.Kind.String() + "://" + d.Name }

func (d Destination) validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return ErrEmptyName
	}
	if d.Kind != Queue && d.Kind != Topic {
		return fmt.Errorf("%w: %d", ErrInvalidKind, int(d.Kind))
	}
	return nil
}

// ConsumerMode 消费模式，对应 JMS 2.0 的四种消费者。
type ConsumerMode int

const (
	// ModeConsumer 普通消费者：topic 上为独占的非持久订阅。
	ModeConsumer ConsumerMode = iota
	// ModeShared 共享非持久订阅。
	ModeShared
	// ModeDurable 独占持久订阅。
	ModeDurable
	// ModeSharedDurable 共享持久订阅。
	ModeSharedDurable
)

var modeNames = map[ConsumerMode]string{
	ModeConsumer:      "Consumer",
	ModeShared:        "SharedConsumer",
	ModeDurable:       "DurableConsumer",
	ModeSharedDurable: "SharedDurableConsumer",
}

func (m ConsumerMode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("ConsumerMode(%d)", int(m))
}

// ParseConsumerMode 接受 Consumer、SharedConsumer、DurableConsumer、
// SharedDurableConsumer，大小写不敏感。
func ParseConsumerMode(s string) (ConsumerMode, error) {
	for m, name := range modeNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// NeedsSubscription 共享或持久模式需要订阅名且只能用于 topic。
func (m ConsumerMode) NeedsSubscription() bool { return m != ModeConsumer }

func (m ConsumerMode) shared() bool { return m == ModeShared || m == ModeSharedDurable }

func (m ConsumerMode) durable() bool { return m == ModeDurable || m == ModeSharedDurable }

// ValidateMode 检查模式、目的地与订阅名的组合。
func ValidateMode(m ConsumerMode, dest Destination, subscription string) error {
	if _, ok := modeNames[m]; !ok {
		return fmt.Errorf("%w: %d", ErrInvalidMode, int(m))
	}
	if !m.NeedsSubscription() {
		return nil
	}
	if dest.Kind != Topic {
		return fmt.Errorf("%w: %s", ErrTopicRequired, m)
	}
	if strings.TrimSpace(subscription) == "" {
		return fmt.Errorf("%w: %s", ErrSubscriptionRequired, m)
	}
	return nil
}
