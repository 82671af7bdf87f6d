package account

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/nao1215/foodhero/pkg/token"
)

// brokenStore は常に失敗するcredentialStore。
type brokenStore struct{ err error }

func (b brokenStore) FindByEmail(context.Context, string) (Credential, error) {
	return Credential{}, b.err
}

func (b brokenStore) Create(context.Context, Identity, string) error { return b.err }

// setupTestService はテスト用のServiceとトークンCodecを構築する。
func setupTestService(t *testing.T) (*Service, *token.Codec) {
	t.Helper()

	hasher, err := NewBcryptHasher(bcrypt.MinCost)
	require.NoError(t, err)
	codec, err := token.NewCodec(token.Config{Secret: "service-test-secret"})
	require.NoError(t, err)

	svc := NewService(setupTestStore(t), hasher, codec,
		WithServiceClock(func() time.Time { return time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC) }))
	return svc, codec
}

func schoolRegistration(email string) Registration {
	return Registration{
		Email:         email,
		Password:      "s3cret-pass",
		ContactNumber: "0811111111",
		Role:          RoleSchool,
		InstituteName: "Kathu School",
		Address:       "Kathu, Phuket",
	}
}

// TestService_Register は新規登録を検証する。
func TestService_Register(t *testing.T) {
	t.Parallel()

	t.Run("登録に成功するとIdentityと検証可能なトークンが返ること", func(t *testing.T) {
		t.Parallel()

		svc, codec := setupTestService(t)
		session, err := svc.Register(t.Context(), schoolRegistration("new@example.com"))
		require.NoError(t, err)

		assert.NotEmpty(t, session.Identity.ID)
		assert.Equal(t, "new@example.com", session.Identity.Email)
		assert.Equal(t, RoleSchool, session.Identity.Role())
		assert.Equal(t, time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC), session.Identity.CreatedAt)

		subject, err := codec.Verify(session.Token)
		require.NoError(t, err)
		assert.Equal(t, session.Identity.ID, subject)
	})

	t.Run("農家はOtherPurposeなしで登録できること", func(t *testing.T) {
		t.Parallel()

		svc, _ := setupTestService(t)
		session, err := svc.Register(t.Context(), Registration{
			Email:         "farmer@example.com",
			Password:      "pw",
			ContactNumber: "0822222222",
			Role:          RoleFarmer,
			Name:          "Somchai",
			Purpose:       "animal feed",
		})
		require.NoError(t, err)
		assert.Equal(t, RoleFarmer, session.Identity.Role())
	})

	t.Run("ロールに必要な項目が無い場合はValidationErrorになること", func(t *testing.T) {
		t.Parallel()

		svc, _ := setupTestService(t)
		r := schoolRegistration("school@example.com")
		r.InstituteName = ""

		_, err := svc.Register(t.Context(), r)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "instituteName", verr.Field)
	})

	t.Run("未定義のロールはValidationErrorになること", func(t *testing.T) {
		t.Parallel()

		svc, _ := setupTestService(t)
		r := schoolRegistration("role@example.com")
		r.Role = "admin"

		_, err := svc.Register(t.Context(), r)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "role", verr.Field)
	})

	t.Run("パスワードが空の場合はValidationErrorになること", func(t *testing.T) {
		t.Parallel()

		svc, _ := setupTestService(t)
		r := schoolRegistration("nopass@example.com")
		r.Password = ""

		_, err := svc.Register(t.Context(), r)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "password", verr.Field)
	})

	t.Run("登録済みのメールアドレスはErrDuplicateEmailになること", func(t *testing.T) {
		t.Parallel()

		svc, _ := setupTestService(t)
		_, err := svc.Register(t.Context(), schoolRegistration("taken@example.com"))
		require.NoError(t, err)

		_, err = svc.Register(t.Context(), schoolRegistration("taken@example.com"))
		require.ErrorIs(t, err, ErrDuplicateEmail)
	})
}

// TestService_Login はログインを検証する。
func TestService_Login(t *testing.T) {
	t.Parallel()

	t.Run("登録時のパスワードでログインでき同じ利用者のトークンが返ること", func(t *testing.T) {
		t.Parallel()

		svc, codec := setupTestService(t)
		registered, err := svc.Register(t.Context(), schoolRegistration("login@example.com"))
		require.NoError(t, err)

		session, err := svc.Login(t.Context(), "login@example.com", "s3cret-pass")
		require.NoError(t, err)
		assert.Equal(t, registered.Identity, session.Identity)

		subject, err := codec.Verify(session.Token)
		require.NoError(t, err)
		assert.Equal(t, registered.Identity.ID, subject)
	})

	t.Run("パスワードが誤っている場合はErrInvalidCredentialsになること", func(t *testing.T) {
		t.Parallel()

		svc, _ := setupTestService(t)
		_, err := svc.Register(t.Context(), schoolRegistration("wrong@example.com"))
		require.NoError(t, err)

		_, err = svc.Login(t.Context(), "wrong@example.com", "not-the-password")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("存在しないメールアドレスはErrInvalidCredentialsになること", func(t *testing.T) {
		t.Parallel()

		svc, _ := setupTestService(t)
		_, err := svc.Login(t.Context(), "nobody@example.com", "whatever")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("ストアの障害はそのまま返ること", func(t *testing.T) {
		t.Parallel()

		hasher, err := NewBcryptHasher(bcrypt.MinCost)
		require.NoError(t, err)
		codec, err := token.NewCodec(token.Config{Secret: "x"})
		require.NoError(t, err)

		boom := errors.New("disk I/O error")
		svc := NewService(brokenStore{err: boom}, hasher, codec)

		_, err = svc.Login(t.Context(), "a@example.com", "pw")
		require.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, ErrInvalidCredentials)
	})
}
