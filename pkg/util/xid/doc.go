// Package xid 生成 workshop 使用的标识符。
//
//   - NewTimeUUID / ClientName：基于 google/uuid 的时间型 UUID（v1），
//     用于 "[P]<uuid>"、"[C]<uuid>" 这类客户端、producer、consumer 名称。
//   - Generator：基于 sony/sonyflake/v2 的 64 位有序 ID，
//     用于 JMS 请求/应答的关联 ID 与 CDC 写入的版本号。
//
// 机器 ID 优先取 XID_MACHINE_ID 环境变量，其次为 HOSTNAME 或 os.Hostname 的哈希。
package xid
