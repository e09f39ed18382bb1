package pulsarconf

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/omeyang/xworkshop/pkg/config/xconf"
)

// Conf 分类后的 Pulsar 客户端配置。
//
// 创建后只读，可以在多个 goroutine 间共享。
type Conf struct {
	raw   map[Category]map[string]string
	typed map[Category]map[string]any
}

// Load 从 properties 文件加载配置。path 为空时返回空配置。
func Load(path string) (*Conf, error) {
	if path == "" {
		return FromMap(nil)
	}
	cfg, err := xconf.New(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	return fromConfig(cfg)
}

// Parse 从 properties 格式的内容解析配置。
func Parse(data []byte) (*Conf, error) {
	cfg, err := xconf.NewFromBytes(data, xconf.FormatProperties)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	return fromConfig(cfg)
}

func fromConfig(cfg xconf.Config) (*Conf, error) {
	flat := cfg.Flat()
	m := make(map[string]string, len(flat))
	for k, v := range flat {
		m[k] = xconf.ToString(v)
	}
	return FromMap(m)
}

// FromMap 从完整键值对构造配置。
func FromMap(props map[string]string) (*Conf, error) {
	c := &Conf{
		raw:   make(map[Category]map[string]string),
		typed: make(map[Category]map[string]any),
	}
	for full, v := range props {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		cat, key := splitKey(strings.TrimSpace(full))
		if c.raw[cat] == nil {
			c.raw[cat] = make(map[string]string)
		}
		c.raw[cat][key] = v
	}

	for _, cat := range Categories() {
		typed, err := typeCategory(cat, c.raw[cat])
		if err != nil {
			return nil, err
		}
		c.typed[cat] = typed
	}
	return c, nil
}

func typeCategory(cat Category, raw map[string]string) (map[string]any, error) {
	typed := make(map[string]any, len(raw))
	for _, key := range slices.Sorted(maps.Keys(raw)) {
		if isCLIKey(cat, key) {
			continue
		}
		v := raw[key]
		k, ok := keyKinds[cat][key]
		if !ok {
			typed[key] = v
			continue
		}
		out, err := convert(k, v)
		if errors.Is(err, errEmpty) {
			continue
		}
		if err != nil {
			return nil, invalid(cat, key, v, expected(k))
		}
		typed[key] = out
	}
	return typed, nil
}

// Category 返回分类的类型化配置副本，不含由命令行负责的键。
func (c *Conf) Category(cat Category) map[string]any {
	if cat == CategoryMisc {
		out := make(map[string]any, len(c.raw[CategoryMisc]))
		for k, v := range c.raw[CategoryMisc] {
			out[k] = v
		}
		return out
	}
	return maps.Clone(c.typed[cat])
}

// Value 返回单个类型化配置值。
func (c *Conf) Value(cat Category, key string) (any, bool) {
	v, ok := c.typed[cat][key]
	return v, ok
}

// Raw 返回原始字符串值，包含由命令行负责的键。
func (c *Conf) Raw(cat Category, key string) string {
	return c.raw[cat][key]
}

// Misc 返回不属于已知分类的键值对副本。
func (c *Conf) Misc() map[string]string {
	return maps.Clone(c.raw[CategoryMisc])
}

// ServiceURL 返回配置文件中的 broker 地址：client.serviceUrl 优先，其次 brokerServiceUrl。
func (c *Conf) ServiceURL() string {
	if u := c.Raw(CategoryClient, "serviceUrl"); u != "" {
		return u
	}
	return c.Raw(CategoryMisc, "brokerServiceUrl")
}

// DeadLetter 返回 consumer.deadLetterPolicy。
func (c *Conf) DeadLetter() (DeadLetterSpec, bool) {
	v, ok := c.typed[CategoryConsumer]["deadLetterPolicy"].(DeadLetterSpec)
	return v, ok
}

// NackBackoff 返回 consumer.negativeAckRedeliveryBackoff。
func (c *Conf) NackBackoff() (BackoffSpec, bool) {
	v, ok := c.typed[CategoryConsumer]["negativeAckRedeliveryBackoff"].(BackoffSpec)
	return v, ok
}

func (c *Conf) intValue(cat Category, key string) (int, bool) {
	v, ok := c.typed[cat][key].(int)
	return v, ok
}

func (c *Conf) int64Value(cat Category, key string) (int64, bool) {
	v, ok := c.typed[cat][key].(int64)
	return v, ok
}

func (c *Conf) boolValue(cat Category, key string) (bool, bool) {
	v, ok := c.typed[cat][key].(bool)
	return v, ok
}

func (c *Conf) stringValue(cat Category, key string) (string, bool) {
	v, ok := c.typed[cat][key].(string)
	return v, ok
}
