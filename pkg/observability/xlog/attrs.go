package xlog

import (
	"log/slog"
	"time"
)

// 常用属性 key。
const (
	KeyError        = "error"
	KeyDuration     = "duration"
	KeyCount        = "count"
	KeyComponent    = "component"
	KeyOperation    = "operation"
	KeyTopic        = "topic"
	KeySubscription = "subscription"
	KeyMessageID    = "message_id"
	KeyKey          = "key"
)

// Err 错误属性，nil 返回空属性（slog 会忽略）。
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

func Duration(d time.Duration) slog.Attr { return slog.String(KeyDuration, d.String()) }

func Count(n int64) slog.Attr { return slog.Int64(KeyCount, n) }

func Component(name string) slog.Attr { return slog.String(KeyComponent, name) }

func Operation(name string) slog.Attr { return slog.String(KeyOperation, name) }

func Topic(name string) slog.Attr { return slog.String(KeyTopic, name) }

func Subscription(name string) slog.Attr { return slog.String(KeySubscription, name) }

// MessageID 消息 ID 属性，接受任意实现 fmt.Stringer 的 ID。
func MessageID(id interface{ String() string }) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.String(KeyMessageID, id.String())
}

func Key(k string) slog.Attr { return slog.String(KeyKey, k) }
