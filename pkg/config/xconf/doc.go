// Package xconf 提供基于 koanf 的配置加载、重载与文件监视。
//
// # 支持的格式
//
//   - YAML：.yaml, .yml
//   - JSON：.json
//   - Java properties：.properties, .conf, .cfg（基于 magiconair/properties）
//
// properties 键按分隔符展开为嵌套结构，因此以下两种写法等价：
//
//	client.operationTimeoutMs=30000
//
//	client:
//	  operationTimeoutMs: 30000
//
// xconf 只负责"读进来"，不做必填校验和类型转换；
// 分类、类型表和错误信息由 pulsarconf 等上层包实现。
//
// # 配置监视
//
// Watch 基于 fsnotify 监视配置文件所在目录（兼容编辑器的原子写入），
// 内置防抖。Stop() 返回后不再有回调执行。
package xconf
