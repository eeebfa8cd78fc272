package rate

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
)

// DeriveKeyFromProviderOptions 从 oracle 后端标识与其原样 Options JSON 中提取 API Key，
// 并返回按 client+sha256(key) 构造的限流分组键。同一凭据的多个 provider 共享额度。
// 离线后端（mock/flaky）使用固定键。
func DeriveKeyFromProviderOptions(client string, raw json.RawMessage) (LimitKey, error) {
	switch client {
	case "mock", "flaky":
		return LimitKey(client + ":offline"), nil
	}
	var obj struct {
		APIKey    string `json:"api_key"`
		APIKeyEnv string `json:"api_key_env"`
	}
	// 仅提取凭据字段；其余键由各后端严格解析
	_ = json.Unmarshal(raw, &obj)
	key := obj.APIKey
	if key == "" && obj.APIKeyEnv != "" {
		key = os.Getenv(obj.APIKeyEnv)
	}
	if key == "" {
		return "", fmt.Errorf("rate: missing api key for client %s", client)
	}
	sum := sha256.Sum256([]byte(key))
	return LimitKey(fmt.Sprintf("%s:%x", client, sum[:8])), nil
}
