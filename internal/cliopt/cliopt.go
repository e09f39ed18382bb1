// Package cliopt 校验 workshop 各子命令共用的命令行参数。
package cliopt

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/apache/pulsar-client-go/pulsar"

	"github.com/omeyang/xworkshop/pkg/config/pulsarconf"
)

// 参数错误码，作为进程退出码使用。
const (
	CodeParse            = 10
	CodeConfigFile       = 20
	CodeMsgNum           = 30
	CodeServiceURL       = 40
	CodeProducerTopic    = 60
	CodeConsumerTopic    = 70
	CodeTopicPattern     = 80
	CodeSubscriptionName = 90
	CodeSubscriptionType = 100
)

// AllMessages 表示不限制消息数量。
const AllMessages = -1

// ParamError 非法的命令行参数。
type ParamError struct {
	Option string
	Reason string
	// Code 为 0 时退出码为 2。
	Code int
}

func (e *ParamError) Error() string {
	if e.Option == "" {
		return e.Reason
	}
	return fmt.Sprintf("invalid option %s: %s", e.Option, e.Reason)
}

// ExitCode 返回进程退出码。
func (e *ParamError) ExitCode() int {
	if e.Code == 0 {
		return 2
	}
	return e.Code
}

// Role 子命令的客户端角色。
type Role int

const (
	Producer Role = iota
	Consumer
	Reader
)

func (r Role) String() string {
	switch r {
	case Producer:
		return "producer"
	case Consumer:
		return "consumer"
	case Reader:
		return "reader"
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// Options 子命令的公共参数。
type Options struct {
	ConfigFile       string
	NumMsg           int
	ServiceURL       string
	ClientName       string
	Topics           []string
	TopicPattern     string
	SubscriptionName string
	SubscriptionType string
	WorkloadFile     string

	// Conf 由 Validate 从 ConfigFile 加载。
	Conf *pulsarconf.Conf
}

// SplitTopics 按逗号拆分 topic 列表，忽略空项。
func SplitTopics(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Validate 加载配置文件并按角色校验参数。ServiceURL 为空时取配置文件中的地址。
// 配置值非法时返回的错误匹配 pulsarconf.ErrInvalidConfig。
func (o *Options) Validate(role Role) error {
	if o.Conf == nil {
		conf, err := pulsarconf.Load(o.ConfigFile)
		if err != nil {
			if errors.Is(err, pulsarconf.ErrInvalidConfig) {
				return err
			}
			return &ParamError{Option: "--config", Reason: err.Error(), Code: CodeConfigFile}
		}
		o.Conf = conf
	}

	if o.NumMsg <= 0 && o.NumMsg != AllMessages {
		return &ParamError{Option: "--num-msg", Reason: "must be a positive number or -1 for all messages", Code: CodeMsgNum}
	}

	if o.ServiceURL == "" {
		o.ServiceURL = o.Conf.ServiceURL()
	}
	if o.ServiceURL == "" {
		return &ParamError{Option: "--service-url", Reason: "must be provided on the command line or in the config file", Code: CodeServiceURL}
	}

	switch role {
	case Producer, Reader:
		if len(o.Topics) != 1 || strings.Contains(o.Topics[0], ",") {
			return &ParamError{Option: "--topic", Reason: "exactly one topic name is required", Code: CodeProducerTopic}
		}
	case Consumer:
		return o.validateConsumer()
	}
	return nil
}

func (o *Options) validateConsumer() error {
	if len(o.Topics) == 0 && o.TopicPattern == "" {
		return &ParamError{Option: "--topic", Reason: "a topic list or a topic pattern is required", Code: CodeConsumerTopic}
	}
	if len(o.Topics) > 0 {
		o.TopicPattern = ""
	} else if _, err := regexp.Compile(o.TopicPattern); err != nil {
		return &ParamError{Option: "--topic-pattern", Reason: err.Error(), Code: CodeTopicPattern}
	}
	if o.SubscriptionName == "" {
		return &ParamError{Option: "--sub-name", Reason: "subscription name is required", Code: CodeSubscriptionName}
	}
	if _, err := ParseSubscriptionType(o.SubscriptionType); err != nil {
		return &ParamError{Option: "--sub-type", Reason: err.Error(), Code: CodeSubscriptionType}
	}
	return nil
}

// SubType 返回已校验的订阅类型。
func (o *Options) SubType() pulsar.SubscriptionType {
	t, _ := ParseSubscriptionType(o.SubscriptionType)
	return t
}

// ParseSubscriptionType 忽略大小写解析订阅类型，空串为 Exclusive。
func ParseSubscriptionType(s string) (pulsar.SubscriptionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "exclusive":
		return pulsar.Exclusive, nil
	case "failover":
		return pulsar.Failover, nil
	case "shared":
		return pulsar.Shared, nil
	case "key_shared":
		return pulsar.KeyShared, nil
	}
	return pulsar.Exclusive, fmt.Errorf("unknown subscription type %q, expecting Exclusive, Failover, Shared or Key_Shared", s)
}
