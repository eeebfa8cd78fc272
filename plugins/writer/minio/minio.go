package minio

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"rfpreq/pkg/contract"
)

// Options: 对象存储输出配置。
type Options struct {
	Endpoint string `json:"endpoint"`
	Bucket   string `json:"bucket"`
	// Prefix: 对象键前缀（如 "rfp/2026"）。
	Prefix string `json:"prefix,omitempty"`
	// AccessKey/SecretKey 为空时从 *_env 指定的环境变量读取。
	AccessKey    string `json:"access_key,omitempty"`
	SecretKey    string `json:"secret_key,omitempty"`
	AccessKeyEnv string `json:"access_key_env,omitempty"`
	SecretKeyEnv string `json:"secret_key_env,omitempty"`
	UseSSL       bool   `json:"use_ssl,omitempty"`
	Region       string `json:"region,omitempty"`
	// CreateBucket: 首次写入前确保 bucket 存在。
	CreateBucket bool `json:"create_bucket,omitempty"`
}

const (
	defaultAccessEnv = "MINIO_ACCESS_KEY"
	defaultSecretEnv = "MINIO_SECRET_KEY"
)

type Writer struct {
	client *minio.Client
	bucket string
	prefix string
	region string
	create bool

	once    sync.Once
	ensured error
}

// New 创建对象存储 Writer；不做网络连通性探测。
func New(opts *Options) (*Writer, error) {
	if opts == nil || strings.TrimSpace(opts.Endpoint) == "" || strings.TrimSpace(opts.Bucket) == "" {
		return nil, fmt.Errorf("%w: endpoint and bucket are required", contract.ErrInvalidInput)
	}
	ak, sk := opts.AccessKey, opts.SecretKey
	if ak == "" {
		ak = os.Getenv(orDefault(opts.AccessKeyEnv, defaultAccessEnv))
	}
	if sk == "" {
		sk = os.Getenv(orDefault(opts.SecretKeyEnv, defaultSecretEnv))
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(ak, sk, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: minio client: %v", contract.ErrInvalidInput, err)
	}
	return &Writer{
		client: client,
		bucket: opts.Bucket,
		prefix: strings.Trim(opts.Prefix, "/"),
		region: opts.Region,
		create: opts.CreateBucket,
	}, nil
}

var _ contract.Writer = (*Writer)(nil)

// Write 以流式上传（size=-1 分片）写入对象。
func (w *Writer) Write(ctx context.Context, id contract.ArtifactID, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := w.objectKey(id)
	if err != nil {
		return err
	}
	if err := w.ensureBucket(ctx); err != nil {
		return err
	}
	_, err = w.client.PutObject(ctx, w.bucket, key, r, -1, minio.PutObjectOptions{
		ContentType: contentType(key),
	})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", w.bucket, key, err)
	}
	return nil
}

func (w *Writer) ensureBucket(ctx context.Context) error {
	if !w.create {
		return nil
	}
	w.once.Do(func() {
		exists, err := w.client.BucketExists(ctx, w.bucket)
		if err != nil {
			w.ensured = fmt.Errorf("check bucket: %w", err)
			return
		}
		if !exists {
			if err := w.client.MakeBucket(ctx, w.bucket, minio.MakeBucketOptions{Region: w.region}); err != nil {
				w.ensured = fmt.Errorf("create bucket: %w", err)
			}
		}
	})
	return w.ensured
}

// objectKey: 前缀 + 规范化的相对键；拒绝逃逸。
func (w *Writer) objectKey(id contract.ArtifactID) (string, error) {
	rel := path.Clean(strings.ReplaceAll(string(id), "\\", "/"))
	rel = strings.TrimPrefix(rel, "/")
	if rel == "" || rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", contract.ErrPathInvalid
	}
	if w.prefix == "" {
		return rel, nil
	}
	return w.prefix + "/" + rel, nil
}

func contentType(key string) string {
	switch path.Ext(key) {
	case ".json":
		return "application/json; charset=utf-8"
	case ".jsonl":
		return "application/x-ndjson; charset=utf-8"
	case ".csv":
		return "text/csv; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
