// Package storage 提供数据存储相关的子包。
//
// 子包列表：
//   - xcache: 变更表存储，支持 Redis 和进程内缓存
package storage
