// Package xrabbit 通过 AMQP 0-9-1 协议访问 RabbitMQ 兼容端点（例如 Starlight for RabbitMQ）。
//
// 连接参数从 rabbitmq.conf 风格的 properties 文件读取：
//
//	host=localhost
//	port=5672
//	username=guest
//	password=guest
//	virtual_host=/
//	amqp_URI=amqps://...   # 设置后忽略上面各项
//
// Client 维护一个启用 publisher confirm 的 channel，连接或 channel 关闭后
// 按 xretry 退避策略自动重连。Publisher 每条消息等待 broker 确认；
// Consumer 以自动确认模式消费指定数量的消息。
package xrabbit
