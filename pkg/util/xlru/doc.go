// Package xlru 基于 hashicorp/golang-lru/v2 expirable 的泛型 LRU 缓存。
//
// 淘汰（容量、过期、Delete、Close）都会触发 WithOnEvicted 回调，
// 适合缓存需要显式关闭的资源，例如按 topic 缓存的 Pulsar producer。
package xlru
