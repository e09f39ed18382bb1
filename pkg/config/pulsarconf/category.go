package pulsarconf

import "strings"

// Category 配置分类，即属性键第一个 "." 之前的部分。
type Category string

const (
	CategorySchema   Category = "schema"
	CategoryClient   Category = "client"
	CategoryProducer Category = "producer"
	CategoryConsumer Category = "consumer"
	CategoryReader   Category = "reader"
	CategoryJMS      Category = "jms"
	// CategoryMisc 不带已知前缀的键，键名保持完整。
	CategoryMisc Category = "misc"
)

// Categories 返回已知分类，顺序即类型化转换的顺序。
func Categories() []Category {
	return []Category{CategorySchema, CategoryClient, CategoryProducer, CategoryConsumer, CategoryReader, CategoryJMS}
}

// splitKey 按第一个 "." 拆分；前缀不是已知分类或点后为空时归入 misc。
func splitKey(full string) (Category, string) {
	prefix, rest, ok := strings.Cut(full, ".")
	if !ok || rest == "" {
		return CategoryMisc, full
	}
	for _, c := range Categories() {
		if string(c) == prefix {
			return c, rest
		}
	}
	return CategoryMisc, full
}

// cliKeys 由命令行参数负责的键，不进入类型化结果。
var cliKeys = map[Category]map[string]struct{}{
	CategoryClient: set("serviceUrl", "authPluginClassName", "authParams", "enableTls",
		"tlsTrustCertsFilePath", "tlsHostnameVerificationEnable", "tlsAllowInsecureConnection"),
	CategoryProducer: set("topicName", "producerName"),
	CategoryConsumer: set("topicNames", "topicsPattern", "subscriptionName", "subscriptionType", "consumerName"),
}

func isCLIKey(c Category, key string) bool {
	if _, ok := cliKeys[c][key]; ok {
		return true
	}
	return c == CategoryClient && strings.HasPrefix(key, "tls")
}

func set(keys ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		m[k] = struct{}{}
	}
	return m
}
