package account

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidCredentials はメールアドレスまたはパスワードが一致しないことを表す。
// どちらが誤っているかは区別しない。
var ErrInvalidCredentials = errors.New("account: invalid credentials")

// dummyPassword は存在しないメールアドレスでログインされた際の照合に使う。
const dummyPassword = "foodhero-timing-equalizer"

// credentialStore はServiceが必要とする永続化操作。
type credentialStore interface {
	FindByEmail(ctx context.Context, email string) (Credential, error)
	Create(ctx context.Context, identity Identity, passwordHash string) error
}

// TokenIssuer はセッショントークンを発行する。
type TokenIssuer interface {
	Issue(subjectID string) (string, error)
}

// Registration は新規登録の入力。
type Registration struct {
	Email         string
	Password      string
	ContactNumber string
	Role          Role
	// InstituteName とAddress は学校の場合に必須。
	InstituteName string
	Address       string
	// Name とPurpose は農家の場合に必須。OtherPurposeは任意。
	Name         string
	Purpose      string
	OtherPurpose string
}

// profile はロールに応じたProfileを組み立てる。
func (r Registration) profile() (Profile, error) {
	switch r.Role {
	case RoleSchool:
		return SchoolProfile{InstituteName: r.InstituteName, Address: r.Address}, nil
	case RoleFarmer:
		return FarmerProfile{Name: r.Name, Purpose: r.Purpose, OtherPurpose: r.OtherPurpose}, nil
	default:
		return nil, &ValidationError{Field: "role"}
	}
}

// Session は登録・ログインに成功した利用者と発行したトークン。
type Session struct {
	Identity Identity
	Token    string
}

// Service はアカウント登録とログインを扱う。
type Service struct {
	store  credentialStore
	hasher Hasher
	tokens TokenIssuer
	now    func() time.Time
	newID  func() string

	dummyHash func() string
}

// ServiceOption はServiceの生成オプション。
type ServiceOption func(*Service)

// WithServiceClock は登録日時に使う時計を差し替える。
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator はアカウントIDの生成関数を差し替える。
func WithIDGenerator(newID func() string) ServiceOption {
	return func(s *Service) { s.newID = newID }
}

// NewService は新しいServiceを生成する。
func NewService(store credentialStore, hasher Hasher, tokens TokenIssuer, opts ...ServiceOption) *Service {
	s := &Service{
		store:  store,
		hasher: hasher,
		tokens: tokens,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.dummyHash = sync.OnceValue(func() string {
		h, err := hasher.Hash(dummyPassword)
		if err != nil {
			return ""
		}
		return h
	})
	return s
}

// Register はアカウントを登録してトークンを発行する。
// 入力の不足は*ValidationError、メールアドレスの重複はErrDuplicateEmailを返す。
func (s *Service) Register(ctx context.Context, r Registration) (Session, error) {
	profile, err := r.profile()
	if err != nil {
		return Session{}, err
	}
	if r.Password == "" {
		return Session{}, &ValidationError{Field: "password"}
	}

	identity, err := NewIdentity(s.newID(), r.Email, r.ContactNumber, profile, s.now().UTC())
	if err != nil {
		return Session{}, err
	}

	hash, err := s.hasher.Hash(r.Password)
	if err != nil {
		return Session{}, err
	}
	if err := s.store.Create(ctx, identity, hash); err != nil {
		return Session{}, err
	}

	token, err := s.tokens.Issue(identity.ID)
	if err != nil {
		return Session{}, fmt.Errorf("トークンの発行に失敗: %w", err)
	}
	return Session{Identity: identity, Token: token}, nil
}

// Login はメールアドレスとパスワードを照合してトークンを発行する。
// 照合に失敗した場合は理由を問わずErrInvalidCredentialsを返す。
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	cred, err := s.store.FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		// 存在しないメールアドレスでも照合と同程度の時間をかける
		s.hasher.Verify(password, s.dummyHash())
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}

	if !s.hasher.Verify(password, cred.PasswordHash) {
		return Session{}, ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(cred.ID)
	if err != nil {
		return Session{}, fmt.Errorf("トークンの発行に失敗: %w", err)
	}
	return Session{Identity: cred.Identity, Token: token}, nil
}
