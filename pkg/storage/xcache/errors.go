package xcache

import "errors"

var (
	// ErrNilClient 传入的客户端为 nil。
	ErrNilClient = errors.New("xcache: nil client")

	// ErrClosed 缓存已关闭。
	ErrClosed = errors.New("xcache: closed")

	// ErrEmptyKey key 为空。
	ErrEmptyKey = errors.New("xcache: empty key")

	// ErrNilChange 写入的变更为 nil。
	ErrNilChange = errors.New("xcache: nil change")

	// ErrMissingOrderID 变更缺少 new_order_id，无法定位行。
	ErrMissingOrderID = errors.New("xcache: change has no new_order_id")

	// ErrCorrupted 存储中的值无法解码。
	ErrCorrupted = errors.New("xcache: corrupted change record")
)

var (
	// ErrLockFailed 获取分布式锁失败。
	ErrLockFailed = errors.New("xcache: failed to acquire lock")

	// ErrLockExpired 锁已过期或被其他持有者抢走。
	ErrLockExpired = errors.New("xcache: lock expired or stolen")

	// ErrInvalidLockTTL 锁的 TTL 必须为正。
	ErrInvalidLockTTL = errors.New("xcache: lock TTL must be positive")
)
