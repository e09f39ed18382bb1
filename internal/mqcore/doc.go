// Package mqcore 是 xpulsar、xjms、xrabbit 共享的消息内核：
// 公共错误、消息头中的 W3C 追踪上下文传播、带退避的消费循环，
// 以及 "-n 条消息，-1 表示不限" 的计数预算。
package mqcore
