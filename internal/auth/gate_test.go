package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nao1215/foodhero/internal/account"
	"github.com/nao1215/foodhero/pkg/token"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testSecret = "auth-test-secret"

// fakeResolver はmapで利用者を返すIdentityResolver。
type fakeResolver struct {
	identities map[string]account.Identity
	err        error
}

func (f fakeResolver) FindByID(_ context.Context, id string) (account.Identity, error) {
	if f.err != nil {
		return account.Identity{}, f.err
	}
	identity, ok := f.identities[id]
	if !ok {
		return account.Identity{}, account.ErrNotFound
	}
	return identity, nil
}

// panicVerifier は検証中にパニックするTokenVerifier。
type panicVerifier struct{}

func (panicVerifier) Verify(string) (string, error) { panic("corrupted key material") }

var (
	testSchool = account.Identity{
		ID:            "school-1",
		Email:         "school@example.com",
		ContactNumber: "0811111111",
		Profile:       account.SchoolProfile{InstituteName: "Patong School", Address: "Patong"},
	}
	testFarmer = account.Identity{
		ID:            "farmer-1",
		Email:         "farmer@example.com",
		ContactNumber: "0822222222",
		Profile:       account.FarmerProfile{Name: "Somchai", Purpose: "feed"},
	}
)

func newTestCodec(t *testing.T, opts ...token.Option) *token.Codec {
	t.Helper()

	c, err := token.NewCodec(token.Config{Secret: testSecret}, opts...)
	require.NoError(t, err)
	return c
}

func issue(t *testing.T, c *token.Codec, subject string) string {
	t.Helper()

	s, err := c.Issue(subject)
	require.NoError(t, err)
	return s
}

func defaultResolver() fakeResolver {
	return fakeResolver{identities: map[string]account.Identity{
		testSchool.ID: testSchool,
		testFarmer.ID: testFarmer,
	}}
}

// setupRouter はGateで保護されたテスト用ルーターを構築する。
// ハンドラが呼ばれた回数をcalledに記録する。
func setupRouter(gate *Gate, called *int) *gin.Engine {
	router := gin.New()
	router.GET("/protected", gate.Protect(), func(c *gin.Context) {
		*called++
		identity := MustIdentity(c)
		fromCtx, ok := FromContext(c.Request.Context())
		if !ok || fromCtx.ID != identity.ID {
			c.JSON(http.StatusInternalServerError, gin.H{"msg": "context mismatch"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": identity.ID, "role": identity.Role()})
	})
	return router
}

func doGet(router *gin.Engine, path, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// decodeSingle はレスポンスボディがJSONオブジェクト1つだけであることを確認して返す。
func decodeSingle(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), "body = %s", w.Body.String())
	return body
}

// TestGate_Protect は認証ミドルウェアを検証する。
func TestGate_Protect(t *testing.T) {
	t.Parallel()

	t.Run("有効なトークンで利用者がコンテキストに設定されハンドラが実行されること", func(t *testing.T) {
		t.Parallel()

		codec := newTestCodec(t)
		called := 0
		router := setupRouter(NewGate(codec, defaultResolver(), zerolog.Nop()), &called)

		w := doGet(router, "/protected", "Bearer "+issue(t, codec, testSchool.ID))

		require.Equal(t, http.StatusOK, w.Code)
		body := decodeSingle(t, w)
		assert.Equal(t, testSchool.ID, body["id"])
		assert.Equal(t, "school", body["role"])
		assert.Equal(t, 1, called)
	})

	unauthorized := []struct {
		name          string
		authorization func(t *testing.T) string
		wantMsg       string
	}{
		{
			name:          "Authorizationヘッダーが無い",
			authorization: func(*testing.T) string { return "" },
			wantMsg:       "認証トークンがありません",
		},
		{
			name:          "Bearer以外のスキーム",
			authorization: func(*testing.T) string { return "Basic dXNlcjpwYXNz" },
			wantMsg:       "認証トークンがありません",
		},
		{
			name:          "小文字のbearer",
			authorization: func(t *testing.T) string { return "bearer " + issue(t, newTestCodec(t), testSchool.ID) },
			wantMsg:       "認証トークンがありません",
		},
		{
			name:          "Bearerのみでトークンが空",
			authorization: func(*testing.T) string { return "Bearer   " },
			wantMsg:       "認証トークンがありません",
		},
		{
			name:          "形式不正なトークン",
			authorization: func(*testing.T) string { return "Bearer garbage" },
			wantMsg:       "認証トークンが無効です",
		},
		{
			name: "別の秘密鍵で署名されたトークン",
			authorization: func(t *testing.T) string {
				other, err := token.NewCodec(token.Config{Secret: "another-secret"})
				require.NoError(t, err)
				return "Bearer " + issue(t, other, testSchool.ID)
			},
			wantMsg: "認証トークンが無効です",
		},
		{
			name: "有効期限切れのトークン",
			authorization: func(t *testing.T) string {
				past := time.Now().Add(-2 * time.Hour)
				old := newTestCodec(t, token.WithClock(func() time.Time { return past }))
				return "Bearer " + issue(t, old, testSchool.ID)
			},
			wantMsg: "認証トークンの有効期限が切れています",
		},
		{
			name:          "存在しない利用者のトークン",
			authorization: func(t *testing.T) string { return "Bearer " + issue(t, newTestCodec(t), "deleted-user") },
			wantMsg:       "トークンの利用者が見つかりません",
		},
	}
	for _, tt := range unauthorized {
		t.Run(tt.name+"場合は401を1回だけ返しハンドラが実行されないこと", func(t *testing.T) {
			t.Parallel()

			called := 0
			router := setupRouter(NewGate(newTestCodec(t), defaultResolver(), zerolog.Nop()), &called)

			w := doGet(router, "/protected", tt.authorization(t))

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			body := decodeSingle(t, w)
			assert.Equal(t, tt.wantMsg, body["msg"])
			assert.Equal(t, 0, called)
		})
	}

	t.Run("トークン検証中のパニックは401として扱われること", func(t *testing.T) {
		t.Parallel()

		called := 0
		router := setupRouter(NewGate(panicVerifier{}, defaultResolver(), zerolog.Nop()), &called)

		w := doGet(router, "/protected", "Bearer anything")

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "認証トークンが無効です", decodeSingle(t, w)["msg"])
		assert.Equal(t, 0, called)
	})

	t.Run("利用者の取得で障害が起きた場合は500を返すこと", func(t *testing.T) {
		t.Parallel()

		codec := newTestCodec(t)
		called := 0
		resolver := fakeResolver{err: errors.New("database is locked")}
		router := setupRouter(NewGate(codec, resolver, zerolog.Nop()), &called)

		w := doGet(router, "/protected", "Bearer "+issue(t, codec, testSchool.ID))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		body := decodeSingle(t, w)
		assert.Equal(t, "内部サーバーエラーが発生しました", body["msg"])
		assert.NotContains(t, w.Body.String(), "database is locked")
		assert.Equal(t, 0, called)
	})
}

// TestGate_authenticate はエラーの分類を検証する。
func TestGate_authenticate(t *testing.T) {
	t.Parallel()

	codec := newTestCodec(t)
	gate := NewGate(codec, defaultResolver(), zerolog.Nop())

	t.Run("期限切れはErrInvalidTokenとtoken.ErrExpiredの両方に該当すること", func(t *testing.T) {
		t.Parallel()

		past := time.Now().Add(-3 * time.Hour)
		old := newTestCodec(t, token.WithClock(func() time.Time { return past }))

		_, err := gate.authenticate(t.Context(), "Bearer "+issue(t, old, testFarmer.ID))
		require.ErrorIs(t, err, ErrInvalidToken)
		require.ErrorIs(t, err, token.ErrExpired)
	})

	t.Run("成功時は利用者を返すこと", func(t *testing.T) {
		t.Parallel()

		identity, err := gate.authenticate(t.Context(), "Bearer "+issue(t, codec, testFarmer.ID))
		require.NoError(t, err)
		assert.Equal(t, testFarmer, identity)
	})

	t.Run("存在しない利用者はErrUnknownSubjectになること", func(t *testing.T) {
		t.Parallel()

		_, err := gate.authenticate(t.Context(), "Bearer "+issue(t, codec, "ghost"))
		require.ErrorIs(t, err, ErrUnknownSubject)
	})
}
