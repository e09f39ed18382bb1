// Package xjms 在 Pulsar 之上提供 JMS 风格的消息接口。
//
// 目的地分为 Queue 与 Topic：
//   - Queue 的所有接收者共享同一个 Shared 持久订阅（默认 "jms-queue"），
//     从最早位置开始消费，不满足选择器的消息被 nack 留给其他接收者；
//   - Topic 按 ConsumerMode 决定订阅类型与持久性，不满足选择器的消息直接 ack。
//
// Browser 通过 Reader 从最早位置读取，不改变任何订阅游标。
// Requestor 与 Service 通过 JMSReplyTo / JMSCorrelationID 两个消息属性
// 完成请求应答。
//
// 选择器是 SQL92 条件表达式的子集，见 ParseSelector。
package xjms
