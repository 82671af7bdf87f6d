package server

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/nao1215/foodhero/internal/account"
	"github.com/nao1215/foodhero/internal/waste"
	"github.com/nao1215/foodhero/pkg/middleware"
)

// msgBodyTooLarge はボディが上限を超えた場合のメッセージ。
const msgBodyTooLarge = "リクエストボディが大きすぎます"

// identityResponse は利用者のJSONレスポンス構造。パスワードハッシュは含まない。
type identityResponse struct {
	ID            string    `json:"_id"`
	Email         string    `json:"email"`
	Role          string    `json:"role"`
	ContactNumber string    `json:"contactNumber"`
	InstituteName string    `json:"instituteName,omitempty"`
	Address       string    `json:"address,omitempty"`
	Name          string    `json:"name,omitempty"`
	Purpose       string    `json:"purpose,omitempty"`
	OtherPurpose  string    `json:"otherPurpose,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// sessionResponse は登録・ログイン成功時のJSONレスポンス構造。
type sessionResponse struct {
	ID    string `json:"_id"`
	Email string `json:"email"`
	Role  string `json:"role"`
	Token string `json:"token"`
}

// schoolResponse は廃棄記録に埋め込む学校の概要。
type schoolResponse struct {
	ID            string `json:"_id"`
	InstituteName string `json:"instituteName"`
	ContactNumber string `json:"contactNumber"`
	Email         string `json:"email"`
	Address       string `json:"address"`
}

// entryResponse は廃棄記録のJSONレスポンス構造。
// schoolは学校の概要が読み込まれている場合はオブジェクト、そうでなければ学校のID。
type entryResponse struct {
	ID       string    `json:"_id"`
	School   any       `json:"school"`
	Menu     string    `json:"menu"`
	Weight   float64   `json:"weight"`
	Date     time.Time `json:"date"`
	ImageURL *string   `json:"imageUrl"`
	PostedAt time.Time `json:"postedAt"`
}

// analysisResponse はメニュー別集計のJSONレスポンス構造。
type analysisResponse struct {
	Analysis []menuTotalResponse `json:"analysis"`
	RawData  []entryResponse     `json:"rawData"`
}

type menuTotalResponse struct {
	Menu        string  `json:"menu"`
	TotalWeight float64 `json:"totalWeight"`
}

func toIdentityResponse(i account.Identity) identityResponse {
	resp := identityResponse{
		ID:            i.ID,
		Email:         i.Email,
		Role:          i.Role().String(),
		ContactNumber: i.ContactNumber,
		CreatedAt:     i.CreatedAt,
	}
	switch p := i.Profile.(type) {
	case account.SchoolProfile:
		resp.InstituteName = p.InstituteName
		resp.Address = p.Address
	case account.FarmerProfile:
		resp.Name = p.Name
		resp.Purpose = p.Purpose
		resp.OtherPurpose = p.OtherPurpose
	}
	return resp
}

func toSessionResponse(s account.Session) sessionResponse {
	return sessionResponse{
		ID:    s.Identity.ID,
		Email: s.Identity.Email,
		Role:  s.Identity.Role().String(),
		Token: s.Token,
	}
}

func toEntryResponse(e waste.Entry) entryResponse {
	resp := entryResponse{
		ID:       e.ID,
		School:   e.SchoolID,
		Menu:     e.Menu,
		Weight:   e.Weight,
		Date:     e.Date,
		PostedAt: e.PostedAt,
	}
	if e.School != nil {
		resp.School = schoolResponse{
			ID:            e.School.ID,
			InstituteName: e.School.InstituteName,
			ContactNumber: e.School.ContactNumber,
			Email:         e.School.Email,
			Address:       e.School.Address,
		}
	}
	if e.ImageURL != "" {
		url := e.ImageURL
		resp.ImageURL = &url
	}
	return resp
}

func toEntryResponses(entries []waste.Entry) []entryResponse {
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryResponse(e))
	}
	return out
}

func toAnalysisResponse(totals []waste.MenuTotal, entries []waste.Entry) analysisResponse {
	analysis := make([]menuTotalResponse, 0, len(totals))
	for _, t := range totals {
		analysis = append(analysis, menuTotalResponse{Menu: t.Menu, TotalWeight: t.TotalWeight})
	}
	return analysisResponse{Analysis: analysis, RawData: toEntryResponses(entries)}
}

// abortWithMsg はエラーレスポンスを {"msg": ...} の形で返す。
func abortWithMsg(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"msg": msg})
}

// internalError は障害の詳細をログに残し、クライアントには汎用のメッセージを返す。
func (s *Server) internalError(c *gin.Context, err error, msg string) {
	s.log.Error().
		Err(err).
		Str("request_id", c.GetString(middleware.RequestIDKey)).
		Str("path", c.Request.URL.Path).
		Msg(msg)
	abortWithMsg(c, http.StatusInternalServerError, middleware.InternalErrorMessage)
}

// abortBindError はリクエストのバインドエラーを応答する。
func abortBindError(c *gin.Context, err error) {
	status, msg := bindFailure(err)
	abortWithMsg(c, status, msg)
}

// bindFailure はリクエストのバインドエラーをステータスとメッセージに変換する。
func bindFailure(err error) (int, string) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge, msgBodyTooLarge
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return http.StatusBadRequest, fieldMessage(verrs[0])
	}
	return http.StatusBadRequest, "リクエストの形式が正しくありません"
}

// fieldMessage は検証エラーを項目名を含むメッセージに変換する。
func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%sは必須です", fe.Field())
	case "email":
		return fmt.Sprintf("%sの形式が正しくありません", fe.Field())
	case "oneof":
		return fmt.Sprintf("%sは%sのいずれかで指定してください", fe.Field(), strings.ReplaceAll(fe.Param(), " ", "、"))
	case "gte":
		return fmt.Sprintf("%sは%s以上で指定してください", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%sは%s文字以内で指定してください", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%sが不正です", fe.Field())
	}
}

var registerTagNameOnce sync.Once

// registerTagName は検証エラーの項目名にJSONまたはフォームのキー名を使うよう設定する。
func registerTagName() {
	registerTagNameOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
				if name != "" && name != "-" {
					return name
				}
			}
			return f.Name
		})
	})
}
