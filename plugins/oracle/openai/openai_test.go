package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rfpreq/pkg/contract"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	raw := json.RawMessage(fmt.Sprintf(`{"base_url":%q,"api_key":"k","model":"gpt-4o","extra_headers":{"X-Trace":"1"}}`, srv.URL))
	c, err := New(raw)
	require.NoError(t, err)
	return c
}

// UT-OAI-01: 请求体包含 system/user、温度、JSON 模式与 max_tokens
func TestCallEncodesRequest(t *testing.T) {
	var got oaReq
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		assert.Equal(t, "1", r.Header.Get("X-Trace"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"요구사항명\":\"인증\"}"}}]}`))
	})
	resp, err := c.Call(context.Background(), contract.Request{
		System: "sys", User: "user", WantJSON: true, Temperature: 0, MaxTokens: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"요구사항명":"인증"}`, resp.Text)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	require.NotNil(t, got.Temperature)
	assert.Equal(t, 0.0, *got.Temperature)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
	assert.Equal(t, 10, got.MaxTokens)
}

// UT-OAI-02: 状态码映射
func TestCallStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		check  func(t *testing.T, err error)
	}{
		{http.StatusTooManyRequests, func(t *testing.T, err error) { require.ErrorIs(t, err, contract.ErrRateLimited) }},
		{http.StatusBadRequest, func(t *testing.T, err error) { require.ErrorIs(t, err, contract.ErrInvalidInput) }},
		{http.StatusBadGateway, func(t *testing.T, err error) {
			var ne net.Error
			require.True(t, errors.As(err, &ne), "5xx 应归为网络类")
			var ue contract.UpstreamError
			require.True(t, errors.As(err, &ue))
			assert.Equal(t, http.StatusBadGateway, ue.UpstreamStatus())
		}},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "upstream detail", tc.status)
			})
			_, err := c.Call(context.Background(), contract.Request{User: "u"})
			tc.check(t, err)
		})
	}
}

// UT-OAI-03: 空 choices 与坏 JSON 为响应无效
func TestCallInvalidResponse(t *testing.T) {
	for _, body := range []string{`{"choices":[]}`, `not json`, `{"choices":[{"message":{"content":"  "}}]}`} {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(body)) })
		_, err := c.Call(context.Background(), contract.Request{User: "u"})
		require.ErrorIs(t, err, contract.ErrResponseInvalid, body)
	}
}

// UT-OAI-04: 选项校验
func TestNewOptions(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := New(json.RawMessage(`{}`))
	require.ErrorIs(t, err, contract.ErrInvalidInput)
	_, err = New(json.RawMessage(`{"api_key":"k","unknown":1}`))
	require.Error(t, err)
	c, err := New(json.RawMessage(`{"disable_default_auth":true,"endpoint_path":"http://local/v1/chat"}`))
	require.NoError(t, err)
	assert.Equal(t, "http://local/v1/chat", c.url)
	_, err = c.Call(context.Background(), contract.Request{User: " "})
	require.ErrorIs(t, err, contract.ErrInvalidInput)
}
