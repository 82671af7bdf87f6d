package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nao1215/foodhero/internal/store"
)

var (
	// ErrNotFound は該当するアカウントが存在しないことを表す。
	ErrNotFound = errors.New("account: not found")
	// ErrDuplicateEmail はメールアドレスが既に登録済みであることを表す。
	ErrDuplicateEmail = errors.New("account: email already registered")
)

// identityColumns はIdentityの組み立てに使う列。password_hashは含まない。
const identityColumns = `id, email, contact_number, role, institute_name, address, name, purpose, other_purpose, created_at`

// Store はSQLiteに保存されたアカウントを読み書きする。
type Store struct {
	db *sql.DB
}

// NewStore は新しいStoreを生成する。
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// FindByEmail はメールアドレスが完全一致するアカウントをパスワードハッシュ付きで返す。
func (s *Store) FindByEmail(ctx context.Context, email string) (Credential, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+`, password_hash FROM users WHERE email = ?`, email)

	var hash string
	identity, err := scanIdentity(row, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return Credential{}, ErrNotFound
	}
	if err != nil {
		return Credential{}, fmt.Errorf("アカウントの取得に失敗: %w", err)
	}
	return Credential{Identity: identity, PasswordHash: hash}, nil
}

// FindByID はIDに一致するアカウントを返す。パスワードハッシュは読み込まない。
func (s *Store) FindByID(ctx context.Context, id string) (Identity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM users WHERE id = ?`, id)

	identity, err := scanIdentity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Identity{}, ErrNotFound
	}
	if err != nil {
		return Identity{}, fmt.Errorf("アカウントの取得に失敗: %w", err)
	}
	return identity, nil
}

// Create はアカウントを登録する。
// メールアドレスの重複はUNIQUE制約で検出し、ErrDuplicateEmailを返す。
func (s *Store) Create(ctx context.Context, identity Identity, passwordHash string) error {
	var school SchoolProfile
	var farmer FarmerProfile
	switch p := identity.Profile.(type) {
	case SchoolProfile:
		school = p
	case FarmerProfile:
		farmer = p
	default:
		return &ValidationError{Field: "role"}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (
			id, email, password_hash, role, contact_number,
			institute_name, address, name, purpose, other_purpose, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		identity.ID, identity.Email, passwordHash, identity.Role().String(), identity.ContactNumber,
		school.InstituteName, school.Address, farmer.Name, farmer.Purpose, farmer.OtherPurpose,
		identity.CreatedAt.UnixMilli(),
	)
	if store.IsUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("アカウントの登録に失敗: %w", err)
	}
	return nil
}

// scanIdentity は1行をIdentityに変換する。extraにはidentityColumnsの後ろに続く列を渡す。
func scanIdentity(row *sql.Row, extra ...any) (Identity, error) {
	var (
		i         Identity
		role      string
		createdAt int64
	)
	var instituteName, address, name, purpose, otherPurpose string
	dest := []any{
		&i.ID, &i.Email, &i.ContactNumber, &role,
		&instituteName, &address, &name, &purpose, &otherPurpose, &createdAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return Identity{}, err
	}

	r, err := ParseRole(role)
	if err != nil {
		return Identity{}, err
	}
	switch r {
	case RoleSchool:
		i.Profile = SchoolProfile{InstituteName: instituteName, Address: address}
	case RoleFarmer:
		i.Profile = FarmerProfile{Name: name, Purpose: purpose, OtherPurpose: otherPurpose}
	}
	i.CreatedAt = time.UnixMilli(createdAt).UTC()
	return i, nil
}
