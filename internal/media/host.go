// Package media は廃棄記録に添付する画像を外部のメディアホストに保存する。
//
// 保存先はCloudinaryまたはS3互換ストレージから設定で選択する。
// どちらも設定されていない場合は、アップロードを受け付けないDisabledを使う。
package media

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	// ProviderNone は画像アップロードを無効にする。
	ProviderNone = "none"
	// ProviderCloudinary はCloudinaryに保存する。
	ProviderCloudinary = "cloudinary"
	// ProviderS3 はS3互換ストレージに保存する。
	ProviderS3 = "s3"
)

var (
	// ErrNotConfigured はメディアホストが設定されていないことを表す。
	ErrNotConfigured = errors.New("media: host is not configured")
	// ErrUnsupportedType は画像以外のファイルが渡されたことを表す。
	ErrUnsupportedType = errors.New("media: only image files are accepted")
	// ErrEmptyImage は中身の無いファイルが渡されたことを表す。
	ErrEmptyImage = errors.New("media: image is empty")
)

// Image はアップロードする画像。
type Image struct {
	// Filename はクライアントが送ったファイル名。
	Filename string
	// Data は画像の中身。
	Data []byte
	// mime はDetectで判定した形式。
	mime *mimetype.MIME
}

// NewImage は中身から形式を判定してImageを生成する。
// 画像でない場合はErrUnsupportedType、空の場合はErrEmptyImageを返す。
func NewImage(filename string, data []byte) (Image, error) {
	if len(data) == 0 {
		return Image{}, ErrEmptyImage
	}
	mime := mimetype.Detect(data)
	if !strings.HasPrefix(mime.String(), "image/") {
		return Image{}, fmt.Errorf("%w: %s", ErrUnsupportedType, mime.String())
	}
	return Image{Filename: filename, Data: data, mime: mime}, nil
}

// ContentType は判定したMIMEタイプを返す。
func (i Image) ContentType() string {
	if i.mime == nil {
		return mimetype.Detect(i.Data).String()
	}
	return i.mime.String()
}

// Extension は判定した形式の拡張子（".png"など）を返す。
func (i Image) Extension() string {
	if i.mime == nil {
		return mimetype.Detect(i.Data).Extension()
	}
	return i.mime.Extension()
}

// Asset は保存済みの画像。
type Asset struct {
	// URL は画像の公開URL。
	URL string
	// ID はメディアホスト上の識別子。削除に使う。
	ID string
}

// Host は画像の保存先。
type Host interface {
	// Upload は画像を保存して公開URLと識別子を返す。
	Upload(ctx context.Context, img Image) (Asset, error)
	// Delete は識別子の画像を削除する。存在しない場合はエラーにしない。
	Delete(ctx context.Context, id string) error
}

// Config はメディアホストの設定。
type Config struct {
	// Provider はProviderNone、ProviderCloudinary、ProviderS3のいずれか。
	Provider string
	// Folder は保存先のフォルダ（キーの接頭辞）。
	Folder string
	// Cloudinary はProviderCloudinaryの場合の設定。
	Cloudinary CloudinaryConfig
	// S3 はProviderS3の場合の設定。
	S3 S3Config
}

// NewHost は設定に応じたHostを生成する。
func NewHost(ctx context.Context, cfg Config) (Host, error) {
	switch cfg.Provider {
	case "", ProviderNone:
		return Disabled{}, nil
	case ProviderCloudinary:
		return NewCloudinaryHost(cfg.Cloudinary, cfg.Folder)
	case ProviderS3:
		return NewS3Host(ctx, cfg.S3, cfg.Folder)
	default:
		return nil, fmt.Errorf("未対応のメディアプロバイダです: %q", cfg.Provider)
	}
}

// Disabled は画像アップロードが無効な場合のHost。
type Disabled struct{}

// Upload は常にErrNotConfiguredを返す。
func (Disabled) Upload(context.Context, Image) (Asset, error) {
	return Asset{}, ErrNotConfigured
}

// Delete は常にErrNotConfiguredを返す。
func (Disabled) Delete(context.Context, string) error {
	return ErrNotConfigured
}
