package contract

import (
	"fmt"
	"regexp"
	"strings"
)

var idPattern = regexp.MustCompile(`^REQ-[A-Z]{3}-[A-Z]{3}-\d{4}$`)

// ValidID 报告 id 是否满足 REQ-<TASK3>-<CAT3>-<NNNN> 格式（哨兵 ID 亦满足）。
func ValidID(id string) bool { return idPattern.MatchString(id) }

// FormatID 组装最终 ID；seq 以 4 位零填充。
func FormatID(taskCode, catCode string, seq int) string {
	return fmt.Sprintf("REQ-%s-%s-%04d", taskCode, catCode, seq)
}

// Prefix 返回计数器键 "<task>-<cat>"。
func Prefix(taskCode, catCode string) string { return taskCode + "-" + catCode }

// ValidateRequirements 校验一批最终记录的不变量（纯函数，无 I/O）：
// - ID 格式合法；
// - 非哨兵 ID 不重复；
// - 溯源字段已设置；
// - 评估字段不为空（失败必须以哨兵表示）。
func ValidateRequirements(reqs []Requirement) error {
	seen := make(map[string]int, len(reqs))
	for i, r := range reqs {
		if !ValidID(r.ID) {
			return fmt.Errorf("%w: record %d id %q", ErrInvariantViolation, i, r.ID)
		}
		if r.ID != SentinelID {
			if j, dup := seen[r.ID]; dup {
				return fmt.Errorf("%w: duplicate id %q at %d and %d", ErrInvariantViolation, r.ID, j, i)
			}
			seen[r.ID] = i
		}
		if r.SourcePage <= 0 || strings.TrimSpace(r.RawText) == "" {
			return fmt.Errorf("%w: record %d missing provenance", ErrInvariantViolation, i)
		}
		if r.CategoryLarge == "" || r.CategoryMedium == "" || r.CategorySmall == "" || r.Importance == "" || r.Difficulty == "" {
			return fmt.Errorf("%w: record %d has empty assessed field", ErrInvariantViolation, i)
		}
	}
	return nil
}
