package gemini

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"rfpreq/pkg/contract"
)

// UT-GMI-01: 缺少凭据与未知字段
func TestNewOptions(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "")
	_, err := New(json.RawMessage(`{}`))
	require.ErrorIs(t, err, contract.ErrInvalidInput)
	_, err = New(json.RawMessage(`{"api_key":"k","x":1}`))
	require.Error(t, err)
	c, err := New(json.RawMessage(`{"api_key":"k"}`))
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-flash", c.model)
}

// UT-GMI-02: 请求配置映射
func TestConfigMapping(t *testing.T) {
	c := &Client{respMIME: "application/json"}
	cfg := c.config(contract.Request{System: "sys", User: "u", WantJSON: true, Temperature: 0.1, MaxTokens: 10})
	require.NotNil(t, cfg.SystemInstruction)
	require.NotNil(t, cfg.Temperature)
	assert.InDelta(t, 0.1, *cfg.Temperature, 1e-6)
	assert.Equal(t, int32(10), cfg.MaxOutputTokens)
	assert.Equal(t, "application/json", cfg.ResponseMIMEType)

	cfg = c.config(contract.Request{User: "u", Temperature: -1})
	assert.Nil(t, cfg.SystemInstruction)
	assert.Nil(t, cfg.Temperature)
	assert.Empty(t, cfg.ResponseMIMEType)
}

// UT-GMI-03: 上游错误分类
func TestClassify(t *testing.T) {
	err := classify(fmt.Errorf("wrap: %w", genai.APIError{Code: 429, Message: "quota"}))
	require.ErrorIs(t, err, contract.ErrRateLimited)
	var ue contract.UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, 429, ue.UpstreamStatus())

	err = classify(genai.APIError{Code: 503, Message: "unavailable"})
	var ne net.Error
	require.True(t, errors.As(err, &ne))

	err = classify(genai.APIError{Code: 400, Message: "bad"})
	require.ErrorIs(t, err, contract.ErrInvalidInput)

	plain := errors.New("dial")
	assert.Equal(t, plain, classify(plain))
}
