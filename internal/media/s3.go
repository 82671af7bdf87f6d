package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// S3Config はS3互換ストレージの接続設定。
type S3Config struct {
	Bucket string
	Region string
	// Endpoint はMinIOなどS3互換サービスのURL。指定した場合はパス形式でアクセスする。
	Endpoint string
	// AccessKey とSecretKey が空の場合はAWS SDKの既定の認証情報を使う。
	AccessKey string
	SecretKey string
	// PublicBaseURL は公開URLの接頭辞。空の場合はエンドポイントとバケット名から組み立てる。
	PublicBaseURL string
}

// Validate は必須項目をすべて検査する。
func (c S3Config) Validate() error {
	var errs []error
	if c.Bucket == "" {
		errs = append(errs, errors.New("S3_BUCKETが設定されていません"))
	}
	if c.Region == "" {
		errs = append(errs, errors.New("S3_REGIONが設定されていません"))
	}
	if (c.AccessKey == "") != (c.SecretKey == "") {
		errs = append(errs, errors.New("S3_ACCESS_KEYとS3_SECRET_KEYは両方指定してください"))
	}
	return errors.Join(errs...)
}

// S3Host はS3互換ストレージに画像を保存するHost。
type S3Host struct {
	client *awss3.Client
	cfg    S3Config
	folder string
	newKey func() string
}

// NewS3Host はAWS SDKの設定を読み込んでS3Hostを生成する。
func NewS3Host(ctx context.Context, cfg S3Config, folder string) (*S3Host, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("AWS設定の読み込みに失敗: %w", err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Host(client, cfg, folder), nil
}

func newS3Host(client *awss3.Client, cfg S3Config, folder string) *S3Host {
	return &S3Host{
		client: client,
		cfg:    cfg,
		folder: folder,
		newKey: uuid.NewString,
	}
}

// Upload は画像を"<folder>/<uuid><拡張子>"のキーで保存する。識別子はキーになる。
func (h *S3Host) Upload(ctx context.Context, img Image) (Asset, error) {
	key := path.Join(h.folder, h.newKey()+img.Extension())
	_, err := h.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:        aws.String(h.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(img.Data),
		ContentType:   aws.String(img.ContentType()),
		ContentLength: aws.Int64(int64(len(img.Data))),
	})
	if err != nil {
		return Asset{}, fmt.Errorf("S3へのアップロードに失敗: %w", err)
	}
	return Asset{URL: h.publicURL(key), ID: key}, nil
}

// Delete はキーのオブジェクトを削除する。S3は存在しないキーの削除も成功として返す。
func (h *S3Host) Delete(ctx context.Context, id string) error {
	_, err := h.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(h.cfg.Bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		return fmt.Errorf("S3からの削除に失敗: %w", err)
	}
	return nil
}

func (h *S3Host) publicURL(key string) string {
	if h.cfg.PublicBaseURL != "" {
		return strings.TrimRight(h.cfg.PublicBaseURL, "/") + "/" + key
	}
	opts := h.client.Options()
	if opts.BaseEndpoint != nil && *opts.BaseEndpoint != "" {
		return strings.TrimRight(*opts.BaseEndpoint, "/") + "/" + h.cfg.Bucket + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", h.cfg.Bucket, opts.Region, key)
}
