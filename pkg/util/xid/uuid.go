package xid

import "github.com/google/uuid"

// 客户端名称前缀。
const (
	PrefixProducer = "[P]"
	PrefixConsumer = "[C]"
	PrefixReader   = "[R]"
)

// NewTimeUUID 返回时间型 UUID（v1）字符串。
// 节点信息不可用时退化为随机 UUID（v4）。
func NewTimeUUID() string {
	id, err := uuid.NewUUID()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// ClientName 返回 prefix + 时间型 UUID，例如 "[P]6c84fb90-12c4-11e1-840d-7b25c5ee775a"。
func ClientName(prefix string) string {
	return prefix + NewTimeUUID()
}
