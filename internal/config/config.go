// Package config はアプリケーションの設定を環境変数・.envファイル・設定ファイルから読み込む。
//
// 優先順位は 環境変数 > .envファイル > 設定ファイル > 既定値 の順になる。
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/nao1215/foodhero/internal/media"
	"github.com/nao1215/foodhero/pkg/logger"
	"github.com/nao1215/foodhero/pkg/middleware"
)

// 設定キー。環境変数名と同じ。
const (
	KeyPort                = "PORT"
	KeyJWTSecret           = "JWT_SECRET"
	KeyDatabasePath        = "DATABASE_PATH"
	KeyBcryptCost          = "BCRYPT_COST"
	KeyCORSAllowedOrigins  = "CORS_ALLOWED_ORIGINS"
	KeyBodyLimitBytes      = "BODY_LIMIT_BYTES"
	KeyLogLevel            = "LOG_LEVEL"
	KeyLogFormat           = "LOG_FORMAT"
	KeyMediaProvider       = "MEDIA_PROVIDER"
	KeyMediaFolder         = "MEDIA_FOLDER"
	KeyCloudinaryCloudName = "CLOUDINARY_CLOUD_NAME"
	KeyCloudinaryAPIKey    = "CLOUDINARY_API_KEY"
	KeyCloudinaryAPISecret = "CLOUDINARY_API_SECRET"
	KeyCloudinaryBaseURL   = "CLOUDINARY_BASE_URL"
	KeyS3Bucket            = "S3_BUCKET"
	KeyS3Region            = "S3_REGION"
	KeyS3Endpoint          = "S3_ENDPOINT"
	KeyS3AccessKey         = "S3_ACCESS_KEY"
	KeyS3SecretKey         = "S3_SECRET_KEY"
	KeyS3PublicBaseURL     = "S3_PUBLIC_BASE_URL"
)

// keys は読み込み対象のすべてのキー。
var keys = []string{
	KeyPort, KeyJWTSecret, KeyDatabasePath, KeyBcryptCost, KeyCORSAllowedOrigins, KeyBodyLimitBytes,
	KeyLogLevel, KeyLogFormat, KeyMediaProvider, KeyMediaFolder,
	KeyCloudinaryCloudName, KeyCloudinaryAPIKey, KeyCloudinaryAPISecret, KeyCloudinaryBaseURL,
	KeyS3Bucket, KeyS3Region, KeyS3Endpoint, KeyS3AccessKey, KeyS3SecretKey, KeyS3PublicBaseURL,
}

// DefaultMediaFolder は画像の保存先フォルダの既定値。
const DefaultMediaFolder = "phuket_food_hero_waste_images"

// Config はアプリケーションの設定。
type Config struct {
	// Port はHTTPサーバーのリッスンポート。
	Port string
	// JWTSecret はセッショントークンの署名鍵。必須。
	JWTSecret string
	// DatabasePath はSQLiteデータベースファイルのパス。
	DatabasePath string
	// BcryptCost はパスワードハッシュのコスト。
	BcryptCost int
	// CORSAllowedOrigins はCORSで許可するオリジン。空の場合はすべて許可する。
	CORSAllowedOrigins []string
	// BodyLimitBytes はリクエストボディの上限バイト数。
	BodyLimitBytes int64
	// Log はロガーの設定。
	Log logger.Config
	// Media は画像の保存先の設定。
	Media media.Config
}

// options はLoadの動作を変更する設定。
type options struct {
	envFile    string
	configFile string
}

// Option はLoadのオプション。
type Option func(*options)

// WithEnvFile は読み込む.envファイルを指定する。既定は".env"。
// ファイルが存在しない場合は無視する。
func WithEnvFile(path string) Option {
	return func(o *options) { o.envFile = path }
}

// WithConfigFile は読み込む設定ファイル（YAMLなど）を指定する。
func WithConfigFile(path string) Option {
	return func(o *options) { o.configFile = path }
}

// Load は設定を読み込み、検証する。
func Load(opts ...Option) (Config, error) {
	o := options{envFile: ".env"}
	for _, opt := range opts {
		opt(&o)
	}

	v := viper.New()
	setDefaults(v)

	if o.configFile != "" {
		v.SetConfigFile(o.configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
	}

	if err := applyEnvFile(v, o.envFile); err != nil {
		return Config{}, err
	}

	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("環境変数%sのバインドに失敗: %w", key, err)
		}
	}

	cfg, err := fromViper(v)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyPort, "5000")
	v.SetDefault(KeyDatabasePath, "foodhero.db")
	v.SetDefault(KeyBcryptCost, 10)
	v.SetDefault(KeyCORSAllowedOrigins, "")
	v.SetDefault(KeyBodyLimitBytes, middleware.DefaultBodyLimit)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, logger.FormatConsole)
	v.SetDefault(KeyMediaProvider, media.ProviderNone)
	v.SetDefault(KeyMediaFolder, DefaultMediaFolder)
	v.SetDefault(KeyCloudinaryBaseURL, media.DefaultCloudinaryBaseURL)
}

// applyEnvFile は.envファイルの値を、同名の環境変数が無いキーに限って反映する。
// プロセスの環境変数は書き換えない。
func applyEnvFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	values, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf(".envファイルの読み込みに失敗: %w", err)
	}
	for k, val := range values {
		if _, set := os.LookupEnv(k); set {
			continue
		}
		v.Set(k, val)
	}
	return nil
}

func fromViper(v *viper.Viper) (Config, error) {
	var errs []error

	bcryptCost, err := strconv.Atoi(v.GetString(KeyBcryptCost))
	if err != nil {
		errs = append(errs, fmt.Errorf("%sは整数で指定してください: %q", KeyBcryptCost, v.GetString(KeyBcryptCost)))
	}
	bodyLimit, err := strconv.ParseInt(v.GetString(KeyBodyLimitBytes), 10, 64)
	if err != nil {
		errs = append(errs, fmt.Errorf("%sは整数で指定してください: %q", KeyBodyLimitBytes, v.GetString(KeyBodyLimitBytes)))
	}
	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}

	return Config{
		Port:               strings.TrimSpace(v.GetString(KeyPort)),
		JWTSecret:          v.GetString(KeyJWTSecret),
		DatabasePath:       v.GetString(KeyDatabasePath),
		BcryptCost:         bcryptCost,
		CORSAllowedOrigins: splitList(v.GetString(KeyCORSAllowedOrigins)),
		BodyLimitBytes:     bodyLimit,
		Log: logger.Config{
			Level:   v.GetString(KeyLogLevel),
			Format:  strings.ToLower(v.GetString(KeyLogFormat)),
			Service: "foodhero",
		},
		Media: media.Config{
			Provider: strings.ToLower(v.GetString(KeyMediaProvider)),
			Folder:   v.GetString(KeyMediaFolder),
			Cloudinary: media.CloudinaryConfig{
				CloudName: v.GetString(KeyCloudinaryCloudName),
				APIKey:    v.GetString(KeyCloudinaryAPIKey),
				APISecret: v.GetString(KeyCloudinaryAPISecret),
				BaseURL:   v.GetString(KeyCloudinaryBaseURL),
			},
			S3: media.S3Config{
				Bucket:        v.GetString(KeyS3Bucket),
				Region:        v.GetString(KeyS3Region),
				Endpoint:      v.GetString(KeyS3Endpoint),
				AccessKey:     v.GetString(KeyS3AccessKey),
				SecretKey:     v.GetString(KeyS3SecretKey),
				PublicBaseURL: v.GetString(KeyS3PublicBaseURL),
			},
		},
	}, nil
}

// splitList はカンマ区切りの文字列を空要素を除いて分割する。
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate は設定値をすべて検査し、問題をまとめて返す。
func (c Config) Validate() error {
	var errs []error

	if c.JWTSecret == "" {
		errs = append(errs, fmt.Errorf("%sが設定されていません", KeyJWTSecret))
	}
	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Errorf("%sは1〜65535の整数で指定してください: %q", KeyPort, c.Port))
	}
	if c.DatabasePath == "" {
		errs = append(errs, fmt.Errorf("%sが設定されていません", KeyDatabasePath))
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("%sは%d〜%dの範囲で指定してください: %d", KeyBcryptCost, bcrypt.MinCost, bcrypt.MaxCost, c.BcryptCost))
	}
	if c.BodyLimitBytes <= 0 {
		errs = append(errs, fmt.Errorf("%sは正の整数で指定してください: %d", KeyBodyLimitBytes, c.BodyLimitBytes))
	}
	switch c.Log.Format {
	case logger.FormatConsole, logger.FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("%sはconsoleまたはjsonで指定してください: %q", KeyLogFormat, c.Log.Format))
	}

	switch c.Media.Provider {
	case media.ProviderNone:
	case media.ProviderCloudinary:
		if err := c.Media.Cloudinary.Validate(); err != nil {
			errs = append(errs, err)
		}
	case media.ProviderS3:
		if err := c.Media.S3.Validate(); err != nil {
			errs = append(errs, err)
		}
	default:
		errs = append(errs, fmt.Errorf("%sはnone、cloudinary、s3のいずれかで指定してください: %q", KeyMediaProvider, c.Media.Provider))
	}

	return errors.Join(errs...)
}

// Addr はHTTPサーバーのリッスンアドレスを返す。
func (c Config) Addr() string {
	return ":" + c.Port
}
