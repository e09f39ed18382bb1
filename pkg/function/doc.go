// Package function 以 Pulsar Function 的方式运行消息处理函数。
//
// Runner 订阅输入 topic，对每条消息调用 Function.Process：
// 成功时把返回的 Output 发往输出 topic 并 ack，失败时 nack。
// Function 可以通过 Context.Publish 向任意 topic 发送消息，
// 对应的生产者缓存在 LRU 中。
//
// 内置函数：
//   - AddMetadata：原样转发消息，附加 MyCustomProp 属性；
//   - CdcRouter：按 new_order_status 把变更记录路由到 <namespace>/<status>；
//   - ChangeWriter：把 DeliveryStatus 合并为变更行写入 xcache.ChangeStore。
package function
