package refine

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rfpreq/pkg/contract"
)

func fixed(text string, err error) contract.Oracle {
	return contract.OracleFunc(func(ctx context.Context, req contract.Request) (contract.Response, error) {
		if !req.WantJSON || req.Kind != contract.KindRefine {
			return contract.Response{}, contract.ErrInvalidInput
		}
		return contract.Response{Text: text}, err
	})
}

var (
	cand  = contract.Candidate{Text: "시스템은 사용자 인증을 지원해야 한다."}
	chunk = contract.Chunk{Index: 1, SourcePage: 12, Text: "... 시스템은 사용자 인증을 지원해야 한다. ..."}
)

// UT-REF-01: 正常 JSON，溯源字段取自输入
func TestRefineHappyPath(t *testing.T) {
	resp := `{"요구사항명":"사용자 인증","type":"기능","요구사항 상세설명":"SSO 기반 인증","대상업무":"인증","RFP":3,"요건처리 상세":"로그인 흐름","출처 문장":"다른 문장"}`
	got, err := New(fixed(resp, nil), nil).Refine(context.Background(), cand, chunk)
	require.NoError(t, err)
	want := contract.Draft{
		Name:             "사용자 인증",
		Type:             contract.TypeFunctional,
		Description:      "SSO 기반 인증",
		TargetTask:       "인증",
		ProcessingDetail: "로그인 흐름",
		SourcePage:       12,
		RFPPage:          "3",
		RawText:          cand.Text,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("draft mismatch (-want +got):\n%s", diff)
	}
}

// UT-REF-02: 代码围栏与单元素数组
func TestRefineFenceAndArray(t *testing.T) {
	resp := "```json\n[{\"요구사항명\":\"a\",\"type\":\"비기능\",\"요구사항 상세설명\":\"b\",\"대상업무\":\"c\",\"RFP\":null}]\n```"
	got, err := New(fixed(resp, nil), nil).Refine(context.Background(), cand, chunk)
	require.NoError(t, err)
	assert.Equal(t, contract.TypeNonFunctional, got.Type)
	assert.Equal(t, "", got.RFPPage)
	assert.Equal(t, "c", got.TargetTask)
}

// UT-REF-03: 失败一律 ErrRequirementDropped
func TestRefineDropped(t *testing.T) {
	cases := map[string]contract.Oracle{
		"oracle":     fixed("", contract.ErrOracle),
		"not json":   fixed("요구사항명: a", nil),
		"missing":    fixed(`{"요구사항명":"a","요구사항 상세설명":"b"}`, nil),
		"blank":      fixed(`{"요구사항명":" ","요구사항 상세설명":"b","대상업무":"c"}`, nil),
		"multi":      fixed(`[{"요구사항명":"a"},{"요구사항명":"b"}]`, nil),
		"empty resp": fixed("  ", nil),
	}
	for name, o := range cases {
		_, err := New(o, nil).Refine(context.Background(), cand, chunk)
		require.ErrorIs(t, err, contract.ErrRequirementDropped, name)
	}
	_, err := New(fixed("", contract.ErrOracle), nil).Refine(context.Background(), cand, chunk)
	require.ErrorIs(t, err, contract.ErrOracle)
}

func TestParseScalars(t *testing.T) {
	m, err := Parse(`{"a":1.5,"b":true,"c":["x"],"d":"s"}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1.5", "b": "true", "c": `["x"]`, "d": "s"}, m)
}
