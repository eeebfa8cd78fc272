package contract

import (
	"path"
	"strings"
)

// NormalizeFileID 规范化路径，统一为跨平台稳定的 FileID。
// 规则：
// - 使用正斜杠分隔符
// - 清理多余分隔符与路径片段（.、..）
// - 保留相对/绝对语义，不做隐式绝对化
func NormalizeFileID(p string) FileID {
	return FileID(path.Clean(strings.ReplaceAll(p, "\\", "/")))
}

// ArtifactFor 由输入 FileID 与扩展名推导输出工件标识：替换（或追加）扩展名。
func ArtifactFor(id FileID, ext string) ArtifactID {
	s := string(id)
	if s == "-" || s == "" || s == "." {
		s = "stdin"
	}
	base := path.Base(s)
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		s = strings.TrimSuffix(s, base[i:])
	}
	return ArtifactID(s + "." + strings.TrimPrefix(ext, "."))
}
