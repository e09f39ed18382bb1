// Package mq 提供消息队列相关的子包。
//
// 子包列表：
//   - xpulsar: Pulsar 客户端封装，追踪传播、DLQ 策略、集成测试
//   - xrabbit: RabbitMQ (AMQP 0-9-1) 发布确认与自动确认消费
//   - xjms: 基于 Pulsar 的 JMS 风格 queue/topic 会话、选择器、请求应答
//
// 内部包：
//   - internal/mqcore: 消息预算、接收循环与追踪注入
package mq
