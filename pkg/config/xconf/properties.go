package xconf

import (
	"errors"
	"sort"
	"strings"

	"github.com/knadh/koanf/maps"
	"github.com/magiconair/properties"
)

// PropertiesParser 是 Java .properties 格式的 koanf.Parser 实现。
//
// 键按 delim 展开为嵌套结构，使 "client.operationTimeoutMs" 可以通过
// koanf 的路径语法访问。值一律保留为 string，类型转换交给上层。
// ${...} 引用展开被关闭：workshop 配置中的 JSON 值不应被改写。
type PropertiesParser struct {
	delim string
}

// Properties 返回使用 delim 分隔键的解析器。
func Properties(delim string) *PropertiesParser {
	if delim == "" {
		delim = "."
	}
	return &PropertiesParser{delim: delim}
}

// Unmarshal 解析 .properties 字节数据。
func (p *PropertiesParser) Unmarshal(b []byte) (map[string]any, error) {
	loader := &properties.Loader{
		Encoding:         properties.UTF8,
		DisableExpansion: true,
	}
	props, err := loader.LoadBytes(b)
	if err != nil {
		return nil, err
	}

	flat := make(map[string]any, props.Len())
	for _, key := range props.Keys() {
		value, _ := props.Get(key)
		flat[key] = value
	}
	return maps.Unflatten(flat, p.delim), nil
}

// Marshal 将嵌套配置输出为 .properties 文本，键按字典序排列。
func (p *PropertiesParser) Marshal(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, errors.New("xconf: nil properties map")
	}
	flat, _ := maps.Flatten(m, nil, p.delim)

	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	props := properties.NewProperties()
	props.DisableExpansion = true
	for _, k := range keys {
		if _, _, err := props.Set(k, toString(flat[k])); err != nil {
			return nil, err
		}
	}

	var sb strings.Builder
	if _, err := props.Write(&sb, properties.UTF8); err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}
