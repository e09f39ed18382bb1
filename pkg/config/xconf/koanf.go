package xconf

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// koanfConfig 是 Config 接口的 koanf 实现。
type koanfConfig struct {
	k       *koanf.Koanf
	path    string
	format  Format
	opts    *Options
	mu      sync.RWMutex
	isBytes bool
}

var _ Config = (*koanfConfig)(nil)

// New 从文件路径创建配置实例。
// 根据扩展名检测格式：.yaml/.yml、.json、.properties/.conf。
func New(path string, opts ...Option) (Config, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}

	options := applyOptions(opts)
	k := koanf.New(options.Delim)
	if err := loadData(k, data, format, options.Delim); err != nil {
		return nil, err
	}

	return &koanfConfig{
		k:      k,
		path:   path,
		format: format,
		opts:   options,
	}, nil
}

// NewFromBytes 从字节数据创建配置实例，需要显式指定格式。
// 空数据会得到一个空配置。
func NewFromBytes(data []byte, format Format, opts ...Option) (Config, error) {
	if !isValidFormat(format) {
		return nil, ErrUnsupportedFormat
	}

	options := applyOptions(opts)
	k := koanf.New(options.Delim)
	if len(data) > 0 {
		if err := loadData(k, data, format, options.Delim); err != nil {
			return nil, err
		}
	}

	return &koanfConfig{
		k:       k,
		format:  format,
		opts:    options,
		isBytes: true,
	}, nil
}

func (c *koanfConfig) Client() *koanf.Koanf {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.k
}

func (c *koanfConfig) Unmarshal(path string, target any) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.k.UnmarshalWithConf(path, target, koanf.UnmarshalConf{
		Tag: c.opts.Tag,
	}); err != nil {
		return fmt.Errorf("%w: %w", ErrUnmarshalFailed, err)
	}
	return nil
}

func (c *koanfConfig) Flat() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.k.All()
}

// Reload 重新读取文件，解析成功后才替换当前实例，失败时保留旧配置。
func (c *koanfConfig) Reload() error {
	if c.isBytes {
		return ErrReloadBytes
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}

	newK := koanf.New(c.opts.Delim)
	if err := loadData(newK, data, c.format, c.opts.Delim); err != nil {
		return err
	}

	c.mu.Lock()
	c.k = newK
	c.mu.Unlock()
	return nil
}

func (c *koanfConfig) Path() string {
	return c.path
}

func (c *koanfConfig) Format() Format {
	return c.format
}

// MustUnmarshal 与 Config.Unmarshal 相同，但失败时 panic。
// 仅用于启动阶段的必要配置。
func MustUnmarshal(cfg Config, path string, target any) {
	if err := cfg.Unmarshal(path, target); err != nil {
		panic(err)
	}
}

// =============================================================================
// 内部辅助函数
// =============================================================================

// DetectFormat 根据文件扩展名检测配置格式。
func DetectFormat(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".properties", ".conf", ".cfg":
		return FormatProperties, nil
	default:
		return "", fmt.Errorf("%w: unknown extension %q", ErrUnsupportedFormat, ext)
	}
}

func isValidFormat(format Format) bool {
	switch format {
	case FormatYAML, FormatJSON, FormatProperties:
		return true
	default:
		return false
	}
}

func loadData(k *koanf.Koanf, data []byte, format Format, delim string) error {
	var parser koanf.Parser
	switch format {
	case FormatYAML:
		parser = yaml.Parser()
	case FormatJSON:
		parser = kjson.Parser()
	case FormatProperties:
		parser = Properties(delim)
	default:
		return ErrUnsupportedFormat
	}

	if err := k.Load(rawbytes.Provider(data), parser); err != nil {
		return fmt.Errorf("%w: %w", ErrParseFailed, err)
	}
	return nil
}

// toString 把解析器给出的值转为字符串。
// map 和 slice 编码为 JSON，使 YAML 中嵌套书写的 JSON 类配置项与
// properties 中的单行 JSON 等价。
func toString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case map[string]any, []any:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	default:
		return fmt.Sprint(val)
	}
}

// ToString 是 toString 的导出版本，供上层做类型转换前的统一取值。
func ToString(v any) string {
	return toString(v)
}
