// Package xretry 提供重试策略、退避策略以及基于 avast/retry-go/v5 的执行器。
//
// RetryPolicy 决定"是否继续"，BackoffPolicy 决定"等多久"：
//
//	r := xretry.NewRetryer(
//	    xretry.WithRetryPolicy(xretry.NewFixedRetry(5)),
//	    xretry.WithBackoffPolicy(xretry.NewExponentialBackoff(xretry.WithMaxDelay(10*time.Second))),
//	)
//	err := r.Do(ctx, func(ctx context.Context) error { return dial(ctx) })
//
// BackoffPolicy 同时被 mq 消费循环与 Pulsar nack 重投退避复用。
// 用 NewPermanentError 包装的错误不会被重试。
package xretry
