// Package xcache 提供 CDC 变更表的存储：按订单号保存最新一条 DeliveryChange。
//
// 两种实现：
//
//   - NewRedisChangeStore：key 为 changes_by_order_id:<order_id>，值为 JSON，
//     配合 Redis.Lock 实现按订单号的分布式互斥写入。
//   - NewMemoryChangeStore：基于 ristretto 的进程内实现，用于单机演示和测试。
//
// Redis 包装只提供 go-redis 原生不具备的能力（SET NX + Lua 解锁），
// 其他操作通过 Client() 直接使用 go-redis。
package xcache
