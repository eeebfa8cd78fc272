package contract

import "context"

// CounterStore: 持久化的前缀计数器（"<task>-<cat>" → 最后分配的序号）。
// 约束：
// 1) GetAndIncrement 原子地读-加-写，返回递增后的值（首次为 1）；
// 2) 返回前已落盘（先 flush 后返回）；
// 3) 并发安全；跨进程重启保留。
type CounterStore interface {
	GetAndIncrement(ctx context.Context, key string) (int, error)
	Snapshot(ctx context.Context) (map[string]int, error)
	Close() error
}
