// Package util 提供通用工具相关的子包。
//
// 子包列表：
//   - xid: 客户端名称、消息 ID 与 UUID 生成
//   - xlru: LRU 缓存，泛型支持、自动 TTL 过期
package util
