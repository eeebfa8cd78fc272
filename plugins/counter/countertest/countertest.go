// Package countertest 提供 contract.CounterStore 实现共用的一致性测试。
package countertest

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rfpreq/pkg/contract"
)

// Opener 在 dir 上打开（或重新打开）存储；同一用例内 dir 不变。
type Opener func(t *testing.T, dir string) contract.CounterStore

// Run 执行全部一致性用例。
func Run(t *testing.T, open Opener) {
	cases := []struct {
		name string
		fn   func(t *testing.T, open func() contract.CounterStore)
	}{
		{"FirstIsOne", firstIsOne},
		{"PersistAcrossReopen", persistAcrossReopen},
		{"ConcurrentConsecutive", concurrentConsecutive},
		{"Cancelled", cancelled},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			dir := t.TempDir()
			c.fn(t, func() contract.CounterStore { return open(t, dir) })
		})
	}
}

func firstIsOne(t *testing.T, open func() contract.CounterStore) {
	s := open()
	defer s.Close()
	n, err := s.GetAndIncrement(context.Background(), "NEW-KEY")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// 5 次递增后关闭，重新打开再递增得到 6。
func persistAcrossReopen(t *testing.T, open func() contract.CounterStore) {
	s := open()
	for i := 1; i <= 5; i++ {
		n, err := s.GetAndIncrement(context.Background(), "AUT-SEC")
		require.NoError(t, err)
		require.Equal(t, i, n)
	}
	_, err := s.GetAndIncrement(context.Background(), "LMS-EDU")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s = open()
	defer s.Close()
	n, err := s.GetAndIncrement(context.Background(), "AUT-SEC")
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, snap["AUT-SEC"])
	assert.Equal(t, 1, snap["LMS-EDU"])
}

func concurrentConsecutive(t *testing.T, open func() contract.CounterStore) {
	s := open()
	defer s.Close()
	const n = 40
	got := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := s.GetAndIncrement(context.Background(), "SYS-ERR")
			if err != nil {
				t.Errorf("increment: %v", err)
			}
			got[i] = v
		}(i)
	}
	wg.Wait()
	sort.Ints(got)
	for i, v := range got {
		require.Equal(t, i+1, v, "序号必须连续且唯一")
	}
}

func cancelled(t *testing.T, open func() contract.CounterStore) {
	s := open()
	defer s.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.GetAndIncrement(ctx, "X-Y")
	require.Error(t, err)
	n, err := s.GetAndIncrement(context.Background(), "X-Y")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "取消的调用不得消耗序号")
}
