// Package token はセッショントークン（署名付きJWT）の発行と検証を提供する。
//
// トークンはサーバーが保持する秘密鍵でHS256署名され、発行から1時間で失効する。
// サーバー側には保存しないため、失効以外に無効化の手段はない。
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Lifetime はトークンの有効期間。発行時刻からこの時間が経過すると失効する。
const Lifetime = time.Hour

var (
	// ErrInvalidToken は署名不一致・形式不正などで検証できないトークンを表す。
	ErrInvalidToken = errors.New("token: invalid token")
	// ErrExpired は有効期限を過ぎたトークンを表す。
	ErrExpired = errors.New("token: expired")
	// ErrEmptySecret は署名用の秘密鍵が設定されていないことを表す。
	ErrEmptySecret = errors.New("token: signing secret is empty")
)

// Claims はトークンのクレーム（ペイロード）を表す。
type Claims struct {
	jwt.RegisteredClaims
	// SubjectID はトークンの持ち主であるユーザーのID。
	SubjectID string `json:"id"`
}

// Config はCodecの設定。
type Config struct {
	// Secret はHS256署名に使用する秘密鍵。
	Secret string
}

// Codec はトークンの発行と検証を行う。
// 状態を持たないため、複数のゴルーチンから同時に使用できる。
type Codec struct {
	secret []byte
	now    func() time.Time
}

// Option はCodecの生成オプション。
type Option func(*Codec)

// WithClock は現在時刻の取得関数を差し替える。テストで使用する。
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

// NewCodec は新しいCodecを生成する。秘密鍵が空の場合はエラーを返す。
func NewCodec(cfg Config, opts ...Option) (*Codec, error) {
	if cfg.Secret == "" {
		return nil, ErrEmptySecret
	}
	c := &Codec{
		secret: []byte(cfg.Secret),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue はsubjectIDを埋め込んだ署名付きトークンを発行する。
// 有効期限は発行時刻のちょうどLifetime後になる。
func (c *Codec) Issue(subjectID string) (string, error) {
	issuedAt := c.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(Lifetime)),
		},
		SubjectID: subjectID,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("トークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// Verify はトークンを検証し、埋め込まれたsubjectIDを返す。
// 期限切れの場合はErrExpired、それ以外の検証失敗はErrInvalidTokenを返す。
func (c *Codec) Verify(tokenString string) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, c.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpired
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.SubjectID == "" {
		return "", ErrInvalidToken
	}
	return claims.SubjectID, nil
}

// keyFunc は署名アルゴリズムがHS256であることを確認して秘密鍵を返す。
func (c *Codec) keyFunc(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("想定外の署名アルゴリズム: %s", t.Method.Alg())
	}
	return c.secret, nil
}
