// Package xbreaker 基于 sony/gobreaker/v2 提供熔断器。
//
// 熔断器打开时返回的 *BreakerError 被 xretry 视为永久性错误，
// 因此 BreakerRetryer 组合使用时不会在熔断期间继续退避重试。
package xbreaker
