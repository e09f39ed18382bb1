// Package pulsartest 提供进程内的 Pulsar 假 broker，实现 pulsar.Client，
// 供 xpulsar、xjms、function 的单元测试使用。
//
// 支持的语义是真实 broker 的一个子集：
//
//   - 每个 topic 一条追加日志，订阅持有游标和待重投队列；
//   - 同一订阅的多个消费者分摊消息（Shared），Exclusive 订阅只允许一个消费者；
//   - Nack/ReconsumeLater 按 NackRedeliveryDelay 延迟重投（为 0 时立即）并累加 RedeliveryCount，
//     配置了 DLQPolicy 时超过 MaxDeliveries 的消息转入死信 topic；
//   - Reader 从任意 MessageID（含 Earliest/Latest）开始顺序读取。
//
// 不模拟网络、分区、批量和 schema 校验。
package pulsartest
