package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path"
	"strings"

	"rfpreq/pkg/contract"
	crec "rfpreq/plugins/chunker/recursive"
	kbdg "rfpreq/plugins/counter/badger"
	kjf "rfpreq/plugins/counter/jsonfile"
	ksql "rfpreq/plugins/counter/sqlite"
	ccsv "rfpreq/plugins/exporter/csvout"
	cjl "rfpreq/plugins/exporter/jsonl"
	cjs "rfpreq/plugins/exporter/jsonout"
	oflk "rfpreq/plugins/oracle/flaky"
	ogmi "rfpreq/plugins/oracle/gemini"
	omck "rfpreq/plugins/oracle/mock"
	oai "rfpreq/plugins/oracle/openai"
	pjs "rfpreq/plugins/pages/jsonpages"
	ptxt "rfpreq/plugins/pages/text"
	rfs "rfpreq/plugins/reader/filesystem"
	wfs "rfpreq/plugins/writer/filesystem"
	wmio "rfpreq/plugins/writer/minio"
)

// strictUnmarshal: 使用 DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		// 保持零值（默认选项）
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

type (
	NewReader     func(raw json.RawMessage) (contract.Reader, error)
	NewPageSource func(raw json.RawMessage) (contract.PageSource, error)
	NewChunker    func(raw json.RawMessage) (contract.Chunker, error)
	NewOracle     func(raw json.RawMessage) (contract.Oracle, error)
	NewCounter    func(raw json.RawMessage) (contract.CounterStore, error)
	NewExporter   func(raw json.RawMessage) (contract.Exporter, error)
	NewWriter     func(raw json.RawMessage) (contract.Writer, error)
)

// Reader 工厂注册表（显式、零反射）。
var Reader = map[string]NewReader{
	"fs": func(raw json.RawMessage) (contract.Reader, error) {
		var opts rfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return rfs.New(&opts), nil
	},
}

// Pages 工厂注册表。auto 按 FileID 扩展名分派：.json → jsonpages，其余 → text。
var Pages = map[string]NewPageSource{
	"text": func(raw json.RawMessage) (contract.PageSource, error) {
		var opts ptxt.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return ptxt.New(&opts), nil
	},
	"json": func(raw json.RawMessage) (contract.PageSource, error) {
		var none struct{}
		if err := strictUnmarshal(raw, &none); err != nil {
			return nil, err
		}
		return pjs.New(), nil
	},
	"auto": func(raw json.RawMessage) (contract.PageSource, error) {
		var opts ptxt.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return byExt{text: ptxt.New(&opts), json: pjs.New()}, nil
	},
}

type byExt struct {
	text contract.PageSource
	json contract.PageSource
}

func (b byExt) Pages(ctx context.Context, fileID contract.FileID, r io.Reader) ([]contract.Page, error) {
	if strings.EqualFold(path.Ext(string(fileID)), ".json") {
		return b.json.Pages(ctx, fileID, r)
	}
	return b.text.Pages(ctx, fileID, r)
}

// Chunker 工厂注册表。
var Chunker = map[string]NewChunker{
	"recursive": func(raw json.RawMessage) (contract.Chunker, error) {
		var opts crec.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return crec.New(&opts)
	},
}

// Oracle 工厂注册表：各后端自行严格解析 Options。
var Oracle = map[string]NewOracle{
	"openai": func(raw json.RawMessage) (contract.Oracle, error) { return oai.New(raw) },
	"gemini": func(raw json.RawMessage) (contract.Oracle, error) { return ogmi.New(raw) },
	"mock":   func(raw json.RawMessage) (contract.Oracle, error) { return omck.New(raw) },
	"flaky":  func(raw json.RawMessage) (contract.Oracle, error) { return oflk.New(raw) },
}

// Counter 工厂注册表。
var Counter = map[string]NewCounter{
	"jsonfile": func(raw json.RawMessage) (contract.CounterStore, error) {
		var opts kjf.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return kjf.Open(&opts)
	},
	"badger": func(raw json.RawMessage) (contract.CounterStore, error) {
		var opts kbdg.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return kbdg.Open(&opts)
	},
	"sqlite": func(raw json.RawMessage) (contract.CounterStore, error) {
		var opts ksql.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return ksql.Open(&opts)
	},
}

// Exporter 工厂注册表。
var Exporter = map[string]NewExporter{
	"json": func(raw json.RawMessage) (contract.Exporter, error) {
		var opts cjs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return cjs.New(&opts), nil
	},
	"csv": func(raw json.RawMessage) (contract.Exporter, error) {
		var opts ccsv.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return ccsv.New(&opts), nil
	},
	"jsonl": func(raw json.RawMessage) (contract.Exporter, error) {
		var none struct{}
		if err := strictUnmarshal(raw, &none); err != nil {
			return nil, err
		}
		return cjl.New(), nil
	},
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	// fs: 本地文件（原子替换可配置）
	"fs": func(raw json.RawMessage) (contract.Writer, error) {
		var opts wfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wfs.New(&opts)
	},
	// minio: S3 兼容对象存储
	"minio": func(raw json.RawMessage) (contract.Writer, error) {
		var opts wmio.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wmio.New(&opts)
	},
}
