package pulsarconf

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig 配置值不合法，所有 *ConfigError 都匹配它。
	ErrInvalidConfig = errors.New("pulsarconf: invalid config parameter")

	// ErrLoad 读取或解析配置文件失败。
	ErrLoad = errors.New("pulsarconf: load config")
)

// ConfigError 描述一个非法配置项。
type ConfigError struct {
	Category Category
	Key      string
	Value    string
	// Expected 期望的取值或格式说明。
	Expected string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("Incorrect value %q for Pulsar %s configuration item of %q. Expecting the following value (format): %s",
		e.Value, e.Category, e.Key, e.Expected)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }

func invalid(c Category, key, value, expected string) *ConfigError {
	return &ConfigError{Category: c, Key: key, Value: value, Expected: expected}
}
