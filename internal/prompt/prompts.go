package prompt

import (
	"embed"
	"strings"
	"text/template"

	"rfpreq/pkg/contract"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var tmpls = template.Must(template.New("prompts").ParseFS(templateFS, "templates/*.tmpl"))

// 各阶段温度（与上游调优保持一致）。
const (
	TempExtract    = 0.0
	TempRefine     = 0.0
	TempClassify   = 0.3
	TempImportance = 0.4
	TempDifficulty = 0.3
	TempCode       = 0.1
	// CodeMaxTokens: 三字母代码只需极少输出。
	CodeMaxTokens = 10
)

// 固定 system 指令。
const (
	systemExtract = `당신은 주어진 텍스트에서 시스템 구축과 관련된 요구사항을 나타내는 핵심 문장들만을 정확히 식별하는 전문가입니다.
설명, 배경, 일반적인 내용이 아닌, 구체적인 행위, 기능, 제약조건 등을 명시하는 문장을 추출하세요.
각 요구사항 문장을 한 줄에 하나씩 명확히 구분하여 응답하세요.
한 문장에 두 가지 이상의 요구사항이 있다고 판단되면, 각각 구분하여 작성해야 합니다.
만약 식별된 요구사항 문장이 없다면 "No requirements found."라고 응답하세요.`
	systemRefine     = `당신은 RFP 문서에서 요구사항을 정의하는 시스템 분석 전문가입니다. 반드시 지정된 키를 가진 JSON 객체 하나만 응답하세요.`
	systemClassify   = `당신은 소프트웨어 분석 및 분류 전문가입니다.`
	systemImportance = `당신은 소프트웨어 분석 전문가입니다.`
	systemDifficulty = `당신은 소프트웨어 구현 난이도를 평가하는 아키텍트입니다.`
	systemCode       = `당신은 한글 업무 용어를 3글자 영문 대문자 약어로 변환하는 전문가입니다.`
)

// NoRequirements: 抽取阶段“无需求”哨兵响应。
const NoRequirements = "No requirements found."

type draftView struct {
	Name        string
	Description string
	TargetTask  string
}

func view(d contract.Draft) draftView {
	v := draftView{Name: d.Name, Description: d.Description, TargetTask: d.TargetTask}
	if strings.TrimSpace(v.Name) == "" {
		v.Name = "요구사항명 없음"
	}
	if strings.TrimSpace(v.TargetTask) == "" {
		v.TargetTask = "담당 모듈 미지정"
	}
	return v
}

func render(name string, data any) string {
	var b strings.Builder
	// 模板在包初始化时已校验，执行期仅可能因数据缺字段失败
	if err := tmpls.ExecuteTemplate(&b, name, data); err != nil {
		return ""
	}
	return b.String()
}

// Extract 构造候选句抽取请求。
func Extract(chunkText string) contract.Request {
	return contract.Request{
		Kind:        contract.KindExtract,
		System:      systemExtract,
		User:        render("extract.tmpl", struct{ Text string }{chunkText}),
		Temperature: TempExtract,
	}
}

// Refine 构造结构化草稿请求（严格 JSON）。
func Refine(sentence, chunkText string, page int) contract.Request {
	return contract.Request{
		Kind:   contract.KindRefine,
		System: systemRefine,
		User: render("refine.tmpl", struct {
			Sentence string
			Chunk    string
			Page     int
		}{sentence, chunkText, page}),
		WantJSON:    true,
		Temperature: TempRefine,
	}
}

// Classify 构造三级分类请求。
func Classify(d contract.Draft) contract.Request {
	return contract.Request{
		Kind:        contract.KindClassify,
		System:      systemClassify,
		User:        render("classify.tmpl", view(d)),
		Temperature: TempClassify,
	}
}

// Importance 构造保守策略的重要度请求。
func Importance(d contract.Draft) contract.Request {
	return contract.Request{
		Kind:        contract.KindImportance,
		System:      systemImportance,
		User:        render("importance.tmpl", view(d)),
		Temperature: TempImportance,
	}
}

// Difficulty 构造难度请求。
func Difficulty(d contract.Draft) contract.Request {
	return contract.Request{
		Kind:        contract.KindDifficulty,
		System:      systemDifficulty,
		User:        render("difficulty.tmpl", view(d)),
		Temperature: TempDifficulty,
	}
}

// Code 构造三字母代码请求。
func Code(text string) contract.Request {
	return contract.Request{
		Kind:        contract.KindCode,
		System:      systemCode,
		User:        render("code.tmpl", struct{ Text string }{text}),
		Temperature: TempCode,
		MaxTokens:   CodeMaxTokens,
	}
}
