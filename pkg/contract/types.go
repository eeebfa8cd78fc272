package contract

import "strings"

// FileID: 逻辑文档ID（通常为路径，需规范化，跨平台一致）。
type FileID string

// Page: 外部文本抽取组件提供的单页文本（页码自 1 起）。
// 文本可能为空（空页由 Chunker 跳过）。
type Page struct {
	Number int
	Text   string
}

// Chunk: 单页文本内的有界窗口。
// 约束：
// - Text == 页文本[Start:End]（字节偏移），不做任何清洗；
// - 相邻 Chunk 的重叠不超过配置的 overlap；
// - 不为空、不为纯空白。
type Chunk struct {
	Index      int
	Text       string
	SourcePage int
	Start      int
	End        int
}

// Candidate: Sentence Extractor 产出的候选需求句。
type Candidate struct {
	Text string
}

// Draft: 分类与编号之前的需求草稿。
// SourcePage/RawText 为溯源字段，在进入 Assessor 前已确定。
type Draft struct {
	Name             string
	Type             RequirementType
	Description      string
	TargetTask       string
	ProcessingDetail string
	SourcePage       int
	// RFPPage: Oracle 回报的页码，仅用于诊断；溯源以 SourcePage 为准。
	RFPPage string
	RawText string
}

// RequirementType: 기능/비기능。空值表示未分类。
type RequirementType string

const (
	TypeFunctional    RequirementType = "Functional"
	TypeNonFunctional RequirementType = "NonFunctional"
)

// ParseRequirementType 将 Oracle 返回的类型文本映射为枚举；无法识别返回空值。
func ParseRequirementType(s string) RequirementType {
	v := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
	switch v {
	case "기능", "기능요구사항", "functional":
		return TypeFunctional
	case "비기능", "비기능요구사항", "nonfunctional", "non-functional":
		return TypeNonFunctional
	default:
		return ""
	}
}

// Level: 重要度/难度的三级序数；LevelError 为失败哨兵。
type Level string

const (
	LevelHigh   Level = "High"
	LevelMedium Level = "Medium"
	LevelLow    Level = "Low"
	LevelError  Level = Level(SentinelError)
)

// ParseLevel 接受 상/중/하 或英文名；无法识别返回 false。
func ParseLevel(s string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "상", "high":
		return LevelHigh, true
	case "중", "medium":
		return LevelMedium, true
	case "하", "low":
		return LevelLow, true
	default:
		return "", false
	}
}

// 哨兵值：用于标识已恢复的失败，而不是留空。
const (
	SentinelError        = "Error"
	SentinelUnclassified = "미분류"
	SentinelNA           = "N/A"
	// SentinelCode: ID 片段推导失败。
	SentinelCode = "ERR"
	// SentinelEmptyCode: 输入文本为空时的 ID 片段。
	SentinelEmptyCode = "XXX"
	// SentinelID: ID 生成从未执行（Oracle 整体不可用或图实例失败）。
	SentinelID = "REQ-ERR-ERR-0000"
)

// Requirement: 最终需求记录（不可变，由 combine 产出）。
type Requirement struct {
	ID               string          `json:"id"`
	Type             RequirementType `json:"type,omitempty"`
	Name             string          `json:"name"`
	Description      string          `json:"description"`
	TargetTask       string          `json:"target_task"`
	ProcessingDetail string          `json:"processing_detail"`
	SourcePage       int             `json:"source_page"`
	RawText          string          `json:"raw_text"`
	CategoryLarge    string          `json:"category_large"`
	CategoryMedium   string          `json:"category_medium"`
	CategorySmall    string          `json:"category_small"`
	Importance       Level           `json:"importance"`
	Difficulty       Level           `json:"difficulty"`
	ErrorProcessing  string          `json:"error_processing,omitempty"`
}

// Degraded 报告记录是否携带任一失败哨兵。
func (r Requirement) Degraded() bool {
	if r.ErrorProcessing != "" || r.ID == SentinelID || strings.Contains(r.ID, "-"+SentinelCode+"-") {
		return true
	}
	for _, v := range []string{r.CategoryLarge, r.CategoryMedium, r.CategorySmall, string(r.Importance), string(r.Difficulty)} {
		if v == SentinelError || v == SentinelUnclassified {
			return true
		}
	}
	return false
}
