// Package account は利用者（学校・農家）のアカウント情報と認証情報を管理する。
//
// ロールごとに必要な属性はProfileの具象型で表現し、
// Identityの生成時にまとめて検証する。ロールはProfileから導出されるため、
// ロールと属性が食い違った状態のIdentityは存在しない。
package account

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Role は利用者のロール。
type Role string

const (
	// RoleSchool は廃棄記録を投稿する学校。
	RoleSchool Role = "school"
	// RoleFarmer は廃棄記録を閲覧・検索する農家。
	RoleFarmer Role = "farmer"
)

// ErrUnknownRole は未定義のロール文字列を表す。
var ErrUnknownRole = errors.New("account: unknown role")

// ParseRole は文字列をRoleに変換する。schoolとfarmer以外はエラーになる。
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleSchool, RoleFarmer:
		return Role(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
}

// String はロール名を返す。
func (r Role) String() string {
	return string(r)
}

// Profile はロール固有の属性。SchoolProfileとFarmerProfile以外は実装できない。
type Profile interface {
	// Role はこのプロフィールに対応するロールを返す。
	Role() Role
	validate() error
}

// SchoolProfile は学校アカウントの属性。
type SchoolProfile struct {
	// InstituteName は学校名。
	InstituteName string
	// Address は学校の所在地。
	Address string
}

// Role はRoleSchoolを返す。
func (SchoolProfile) Role() Role { return RoleSchool }

func (p SchoolProfile) validate() error {
	if strings.TrimSpace(p.InstituteName) == "" {
		return &ValidationError{Field: "instituteName"}
	}
	if strings.TrimSpace(p.Address) == "" {
		return &ValidationError{Field: "address"}
	}
	return nil
}

// FarmerProfile は農家アカウントの属性。
type FarmerProfile struct {
	// Name は農家の氏名。
	Name string
	// Purpose は廃棄食品の利用目的。
	Purpose string
	// OtherPurpose はPurposeで表せない場合の補足。省略可。
	OtherPurpose string
}

// Role はRoleFarmerを返す。
func (FarmerProfile) Role() Role { return RoleFarmer }

func (p FarmerProfile) validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return &ValidationError{Field: "name"}
	}
	if strings.TrimSpace(p.Purpose) == "" {
		return &ValidationError{Field: "purpose"}
	}
	return nil
}

// ValidationError はIdentityの必須項目が欠けていることを表す。
type ValidationError struct {
	// Field は欠けている項目名（JSONのキー名）。
	Field string
}

// Error はエラーメッセージを返す。
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%sは必須です", e.Field)
}

// Identity は認証済みの利用者を表す。パスワードハッシュは含まない。
type Identity struct {
	// ID は利用者ID（UUID）。
	ID string
	// Email はログインに使うメールアドレス。大文字小文字を区別して完全一致で扱う。
	Email string
	// ContactNumber は連絡先電話番号。
	ContactNumber string
	// Profile はロール固有の属性。
	Profile Profile
	// CreatedAt は登録日時。
	CreatedAt time.Time
}

// NewIdentity は各項目を検証してIdentityを生成する。
// 欠けている項目があれば*ValidationErrorを返す。
func NewIdentity(id, email, contactNumber string, profile Profile, createdAt time.Time) (Identity, error) {
	if id == "" {
		return Identity{}, &ValidationError{Field: "_id"}
	}
	if strings.TrimSpace(email) == "" {
		return Identity{}, &ValidationError{Field: "email"}
	}
	if strings.TrimSpace(contactNumber) == "" {
		return Identity{}, &ValidationError{Field: "contactNumber"}
	}
	if profile == nil {
		return Identity{}, &ValidationError{Field: "role"}
	}
	if err := profile.validate(); err != nil {
		return Identity{}, err
	}
	return Identity{
		ID:            id,
		Email:         email,
		ContactNumber: contactNumber,
		Profile:       profile,
		CreatedAt:     createdAt,
	}, nil
}

// Role はプロフィールから導出したロールを返す。
func (i Identity) Role() Role {
	if i.Profile == nil {
		return ""
	}
	return i.Profile.Role()
}

// Credential はログイン照合用にIdentityとパスワードハッシュを組にしたもの。
type Credential struct {
	Identity
	// PasswordHash はbcryptでハッシュ化したパスワード。
	PasswordHash string
}
