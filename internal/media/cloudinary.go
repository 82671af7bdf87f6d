package media

import (
	"context"
	"crypto/sha1" //nolint:gosec
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/foodhero/pkg/httpclient"
)

// DefaultCloudinaryBaseURL はCloudinary Upload APIのベースURL。
const DefaultCloudinaryBaseURL = "https://api.cloudinary.com"

// CloudinaryConfig はCloudinaryの接続設定。
type CloudinaryConfig struct {
	CloudName string
	APIKey    string
	APISecret string
	// BaseURL は空の場合DefaultCloudinaryBaseURLを使う。
	BaseURL string
}

// Validate は必須項目をすべて検査する。
func (c CloudinaryConfig) Validate() error {
	var errs []error
	if c.CloudName == "" {
		errs = append(errs, errors.New("CLOUDINARY_CLOUD_NAMEが設定されていません"))
	}
	if c.APIKey == "" {
		errs = append(errs, errors.New("CLOUDINARY_API_KEYが設定されていません"))
	}
	if c.APISecret == "" {
		errs = append(errs, errors.New("CLOUDINARY_API_SECRETが設定されていません"))
	}
	return errors.Join(errs...)
}

// CloudinaryHost はCloudinaryのUpload APIに画像を保存するHost。
type CloudinaryHost struct {
	client *httpclient.Client
	cfg    CloudinaryConfig
	folder string
	now    func() time.Time
}

// CloudinaryOption はCloudinaryHostの生成オプション。
type CloudinaryOption func(*CloudinaryHost)

// WithCloudinaryClock は署名のタイムスタンプに使う時計を差し替える。
func WithCloudinaryClock(now func() time.Time) CloudinaryOption {
	return func(h *CloudinaryHost) { h.now = now }
}

// NewCloudinaryHost は新しいCloudinaryHostを生成する。
func NewCloudinaryHost(cfg CloudinaryConfig, folder string, opts ...CloudinaryOption) (*CloudinaryHost, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultCloudinaryBaseURL
	}
	h := &CloudinaryHost{
		client: httpclient.New(cfg.BaseURL),
		cfg:    cfg,
		folder: folder,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// cloudinaryUploadResponse はUpload APIのレスポンスのうち使用する項目。
type cloudinaryUploadResponse struct {
	SecureURL string `json:"secure_url"`
	PublicID  string `json:"public_id"`
}

// cloudinaryDestroyResponse はDestroy APIのレスポンス。
type cloudinaryDestroyResponse struct {
	Result string `json:"result"`
}

// Upload は画像をdata URIとして署名付きでアップロードする。
func (h *CloudinaryHost) Upload(ctx context.Context, img Image) (Asset, error) {
	params := url.Values{}
	if h.folder != "" {
		params.Set("folder", h.folder)
	}
	form := h.signed(params)
	form.Set("file", "data:"+img.ContentType()+";base64,"+base64.StdEncoding.EncodeToString(img.Data))

	var resp cloudinaryUploadResponse
	if err := h.client.PostForm(ctx, h.endpoint("upload"), form, &resp); err != nil {
		return Asset{}, fmt.Errorf("Cloudinaryへのアップロードに失敗: %w", err)
	}
	if resp.SecureURL == "" || resp.PublicID == "" {
		return Asset{}, errors.New("Cloudinaryのレスポンスにsecure_urlまたはpublic_idがありません")
	}
	return Asset{URL: resp.SecureURL, ID: resp.PublicID}, nil
}

// Delete は画像を削除する。既に存在しない場合は成功として扱う。
func (h *CloudinaryHost) Delete(ctx context.Context, id string) error {
	form := h.signed(url.Values{"public_id": {id}})

	var resp cloudinaryDestroyResponse
	if err := h.client.PostForm(ctx, h.endpoint("destroy"), form, &resp); err != nil {
		return fmt.Errorf("Cloudinaryからの削除に失敗: %w", err)
	}
	switch resp.Result {
	case "ok", "not found":
		return nil
	default:
		return fmt.Errorf("Cloudinaryからの削除に失敗: result=%q", resp.Result)
	}
}

func (h *CloudinaryHost) endpoint(action string) string {
	return "/v1_1/" + url.PathEscape(h.cfg.CloudName) + "/image/" + action
}

// signed はparamsにtimestamp、api_key、signatureを加えたフォームを返す。
func (h *CloudinaryHost) signed(params url.Values) url.Values {
	form := url.Values{}
	for k, v := range params {
		form[k] = v
	}
	form.Set("timestamp", strconv.FormatInt(h.now().Unix(), 10))
	form.Set("signature", cloudinarySignature(form, h.cfg.APISecret))
	form.Set("api_key", h.cfg.APIKey)
	return form
}

// cloudinarySignature はCloudinaryの署名を計算する。
// file、api_key、resource_type、cloud_nameを除くパラメータを名前順に"k=v"で&連結し、
// 末尾にAPIシークレットを付けたSHA-1の16進表現になる。
func cloudinarySignature(params url.Values, secret string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		switch k {
		case "file", "api_key", "resource_type", "cloud_name", "signature":
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+strings.Join(params[k], ","))
	}
	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + secret)) //nolint:gosec
	return hex.EncodeToString(sum[:])
}
