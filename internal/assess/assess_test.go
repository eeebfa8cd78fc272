package assess

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"rfpreq/pkg/contract"
)

func TestMain(m *testing.M) { goleak.VerifyTestMain(m) }

type routeOracle map[contract.Kind]func() (string, error)

func (r routeOracle) Call(ctx context.Context, req contract.Request) (contract.Response, error) {
	fn, ok := r[req.Kind]
	if !ok {
		return contract.Response{}, contract.ErrOracle
	}
	s, err := fn()
	return contract.Response{Text: s}, err
}

func ok(s string) func() (string, error) { return func() (string, error) { return s, nil } }

var draft = contract.Draft{Name: "사용자 인증", Description: "SSO", TargetTask: "인증"}

// UT-ASM-01: 三维度全部成功
func TestAssessHappyPath(t *testing.T) {
	o := routeOracle{
		contract.KindClassify:   ok("대분류: 보안\n중분류: 인증\n소분류: 해당 없음"),
		contract.KindImportance: ok("중요도: 상"),
		contract.KindDifficulty: ok("**난이도**: 중"),
	}
	got := New(o, nil).Assess(context.Background(), draft)
	assert.Equal(t, Assessment{
		CategoryLarge: "보안", CategoryMedium: "인증", CategorySmall: contract.SentinelNA,
		Importance: contract.LevelHigh, Difficulty: contract.LevelMedium,
	}, got)
}

// UT-ASM-02: 重要度恒失败 → Error，其余维度保留
func TestImportanceFailure(t *testing.T) {
	o := routeOracle{
		contract.KindClassify:   ok("대분류: 학습\n중분류: 강의"),
		contract.KindImportance: func() (string, error) { return "", contract.ErrOracle },
		contract.KindDifficulty: ok("난이도: 하"),
	}
	got := New(o, nil).Assess(context.Background(), draft)
	assert.Equal(t, contract.LevelError, got.Importance)
	assert.Equal(t, contract.LevelLow, got.Difficulty)
	assert.Equal(t, "학습", got.CategoryLarge)
	assert.Equal(t, contract.SentinelUnclassified, got.CategorySmall)
	require.Len(t, got.Failures, 1)
	assert.True(t, strings.HasPrefix(got.Failures[0], "importance:"))
}

// UT-ASM-03: 分类失败三级均为 Error；无法解析的等级为 Error；panic 被隔离
func TestClassificationFailureAndPanic(t *testing.T) {
	o := routeOracle{
		contract.KindClassify:   func() (string, error) { return "", contract.ErrOracle },
		contract.KindImportance: ok("중요도: 매우 높음"),
		contract.KindDifficulty: func() (string, error) { panic("boom") },
	}
	got := New(o, nil).Assess(context.Background(), draft)
	assert.Equal(t, contract.SentinelError, got.CategoryLarge)
	assert.Equal(t, contract.SentinelError, got.CategorySmall)
	assert.Equal(t, contract.LevelError, got.Importance)
	assert.Equal(t, contract.LevelError, got.Difficulty)
	assert.Len(t, got.Failures, 3)
}

// UT-ASM-04: 三次调用并发执行
func TestAssessConcurrent(t *testing.T) {
	var inflight, peak atomic.Int32
	slow := func(s string) func() (string, error) {
		return func() (string, error) {
			n := inflight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(30 * time.Millisecond)
			inflight.Add(-1)
			return s, nil
		}
	}
	o := routeOracle{
		contract.KindClassify:   slow("대분류: a\n중분류: b\n소분류: c"),
		contract.KindImportance: slow("중요도: 하"),
		contract.KindDifficulty: slow("난이도: 하"),
	}
	New(o, nil).Assess(context.Background(), draft)
	assert.Equal(t, int32(3), peak.Load())
}

func TestParseLevelVariants(t *testing.T) {
	for in, want := range map[string]contract.Level{
		"중요도: 상 (Critical)": contract.LevelHigh,
		"- 중요도：중":           contract.LevelMedium,
		"설명\n중요도: <하>":      contract.LevelLow,
	} {
		lv, ok := ParseLevel(in, "중요도")
		require.True(t, ok, in)
		assert.Equal(t, want, lv, in)
	}
	_, ok := ParseLevel("난이도: 상", "중요도")
	assert.False(t, ok)
}
