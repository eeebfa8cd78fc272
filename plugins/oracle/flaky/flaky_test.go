package flaky

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rfpreq/internal/prompt"
	"rfpreq/pkg/contract"
)

// TestDefaultSchedule 限流 → 乱码 → 正常
func TestDefaultSchedule(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "flaky.log")
	c, err := New(json.RawMessage(`{"log_path":"` + filepath.ToSlash(logPath) + `"}`))
	require.NoError(t, err)
	req := prompt.Importance(contract.Draft{Name: "n"})

	_, err = c.Call(context.Background(), req)
	require.ErrorIs(t, err, contract.ErrRateLimited)
	resp, err := c.Call(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "~~~~~~~~", resp.Text)
	resp, err = c.Call(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "중요도: 중", resp.Text)
	assert.Equal(t, int64(3), c.Calls())

	b, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(b), "\n"))
}

// TestCustomSchedule 自定义序列与非法步骤
func TestCustomSchedule(t *testing.T) {
	c, err := New(json.RawMessage(`{"schedule":["pass","fail"],"mock":{"difficulty":"상"}}`))
	require.NoError(t, err)
	req := prompt.Difficulty(contract.Draft{})
	resp, err := c.Call(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "난이도: 상", resp.Text)
	_, err = c.Call(context.Background(), req)
	require.Error(t, err)

	_, err = New(json.RawMessage(`{"schedule":["boom"]}`))
	require.ErrorIs(t, err, contract.ErrInvalidInput)
}
