// Package pulsarconf 把 Java 风格的 client.properties 拆分为分类的类型化配置，
// 并映射为 pulsar-client-go 的 ClientOptions/ProducerOptions/ConsumerOptions/ReaderOptions。
//
// # 分类
//
// 键按第一个 "." 拆分：client.operationTimeoutMs 属于 client 分类，键为
// operationTimeoutMs。已知分类为 schema、client、producer、consumer、reader、jms，
// 其余键（如 brokerServiceUrl）原样放入 misc。值去除首尾空白后为空的键被丢弃。
//
// # 类型化
//
// 每个分类有一张键类型表（int、long、bool、double、枚举、JSON）。表外的键保留为字符串；
// 由命令行参数负责的键（serviceUrl、topicName、subscriptionName 等）不进入类型化结果，
// 认证与 TLS 相关的键仍可通过 Auth/TLS 读取。
//
// 按分类顺序、分类内按键名排序依次转换，第一个非法值返回 *ConfigError，
// errors.Is(err, ErrInvalidConfig) 成立。
//
// # Go SDK 的映射
//
// pulsar-client-go 没有的设置（如 ackTimeoutMillis、priorityLevel、
// regexSubscriptionMode、numIoThreads）仍做类型校验，但不映射到 SDK 选项。
// autoUpdatePartitions=true 设置 1 分钟的分区发现间隔；Go SDK 无法关闭分区发现，
// false 保持 SDK 默认行为。acknowledgementsGroupTimeMicros 映射为分组确认的时间窗口，
// 0 表示逐条立即确认。
// compressionType=SNAPPY 在 Go SDK 中没有对应实现，ProducerOptions 返回 ConfigError。
package pulsarconf
