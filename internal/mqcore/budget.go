package mqcore

import "sync/atomic"

// Unlimited 表示不限数量（命令行 -n -1）。
const Unlimited = -1

// Budget 消息数量预算，并发安全。nil 或 Unlimited 的 Budget 永不耗尽。
type Budget struct {
	limit int64
	used  atomic.Int64
}

// NewBudget 创建预算，n < 0 视为不限。
func NewBudget(n int) *Budget {
	if n < 0 {
		n = Unlimited
	}
	return &Budget{limit: int64(n)}
}

// Take 占用一个名额，返回占用后是否仍在预算内。
func (b *Budget) Take() bool {
	if b == nil || b.limit == Unlimited {
		return true
	}
	return b.used.Add(1) <= b.limit
}

// Exhausted 报告预算是否已用完。
func (b *Budget) Exhausted() bool {
	if b == nil || b.limit == Unlimited {
		return false
	}
	return b.used.Load() >= b.limit
}

// Used 返回已占用数量。
func (b *Budget) Used() int64 {
	if b == nil {
		return 0
	}
	return b.used.Load()
}

// Limit 返回上限，不限时为 Unlimited。
func (b *Budget) Limit() int64 {
	if b == nil {
		return Unlimited
	}
	return b.limit
}
