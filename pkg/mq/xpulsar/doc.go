// Package xpulsar 封装 github.com/apache/pulsar-client-go/pulsar。
//
// 在原生客户端之外提供：
//   - 客户端管理：健康检查、生产者/消费者/Reader 计数、幂等关闭；
//   - 追踪：TracingProducer/TracingConsumer 在消息 properties 中注入和提取
//     W3C traceparent，并通过 xmetrics.Observer 记录每次收发；
//   - 重投策略：DLQBuilder 构建 pulsar.DLQPolicy，ToPulsarNackBackoff 把
//     xretry.BackoffPolicy 适配为 pulsar.NackBackoffPolicy，MultiplierBackoff
//     对应 "minDelayMs / maxDelayMs / multiplier" 三元组。
//
// 基础连接参数可以来自配置文件：pulsarconf 生成 pulsar.ClientOptions 后
// 通过 WithBaseOptions 传入，其余选项在其上覆盖。
//
// Client() 返回原生 pulsar.Client，Schema、事务等能力直接使用原生 API。
package xpulsar
