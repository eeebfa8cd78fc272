package mock

import (
	"context"
	"encoding/json"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rfpreq/internal/prompt"
	"rfpreq/pkg/contract"
)

func newMock(t *testing.T, raw string) *Client {
	t.Helper()
	c, err := New(json.RawMessage(raw))
	require.NoError(t, err)
	return c
}

// TestExtractByKeyword 关键词行即候选
func TestExtractByKeyword(t *testing.T) {
	c := newMock(t, `{}`)
	chunk := "사업 개요\n시스템은 SSO 로그인을 지원해야 한다.\n배경 설명\n관리자는 권한을 변경할 수 있어야 한다."
	resp, err := c.Call(context.Background(), prompt.Extract(chunk))
	require.NoError(t, err)
	lines := strings.Split(resp.Text, "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "시스템은 SSO 로그인을 지원해야 한다.", lines[0])

	resp, err = c.Call(context.Background(), prompt.Extract("배경 설명만 있음"))
	require.NoError(t, err)
	assert.Equal(t, prompt.NoRequirements, resp.Text)
	assert.Equal(t, 2, c.Calls(contract.KindExtract))
}

// TestRefineJSON 精炼输出为严格 JSON 且保留原句
func TestRefineJSON(t *testing.T) {
	c := newMock(t, `{"target_task":"인증"}`)
	s := "시스템은 SSO 로그인을 지원해야 한다."
	resp, err := c.Call(context.Background(), prompt.Refine(s, "청크 "+s, 7))
	require.NoError(t, err)
	var obj map[string]any
	require.NoError(t, json.Unmarshal([]byte(resp.Text), &obj))
	assert.Equal(t, "인증", obj["대상업무"])
	assert.Equal(t, s, obj["출처 문장"])
	assert.Equal(t, float64(7), obj["RFP"])
}

// TestAssessAndCode 分类/评估/代码
func TestAssessAndCode(t *testing.T) {
	c := newMock(t, `{"classification":"보안/인증/해당 없음","importance":"상","codes":{"인증":"AUT"}}`)
	d := contract.Draft{Name: "SSO", Description: "로그인", TargetTask: "인증"}
	resp, err := c.Call(context.Background(), prompt.Classify(d))
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "대분류: 보안")
	assert.Contains(t, resp.Text, "소분류: 해당 없음")

	resp, err = c.Call(context.Background(), prompt.Importance(d))
	require.NoError(t, err)
	assert.Equal(t, "중요도: 상", resp.Text)

	resp, err = c.Call(context.Background(), prompt.Code("인증"))
	require.NoError(t, err)
	assert.Equal(t, "AUT", resp.Text)
	resp, err = c.Call(context.Background(), prompt.Code("기타"))
	require.NoError(t, err)
	assert.Equal(t, "SYS", resp.Text)
}

// TestFailKindsAndLatency 故障注入与延迟
func TestFailKindsAndLatency(t *testing.T) {
	c := newMock(t, `{"fail_kinds":["importance"],"latency_ms":50}`)
	_, err := c.Call(context.Background(), prompt.Importance(contract.Draft{}))
	var ne net.Error
	require.ErrorAs(t, err, &ne)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, err = c.Call(ctx, prompt.Difficulty(contract.Draft{}))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

// TestOptionsValidation 未知字段与非法分类
func TestOptionsValidation(t *testing.T) {
	_, err := New(json.RawMessage(`{"nope":1}`))
	require.Error(t, err)
	_, err = New(json.RawMessage(`{"classification":"a/b"}`))
	require.ErrorIs(t, err, contract.ErrInvalidInput)
	_, err = newMock(t, `{}`).Call(context.Background(), contract.Request{Kind: "x"})
	require.ErrorIs(t, err, contract.ErrInvalidInput)
}
