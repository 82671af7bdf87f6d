package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/foodhero/internal/account"
	"github.com/nao1215/foodhero/internal/auth"
)

// maxPasswordBytes はbcryptが扱えるパスワードの最大バイト数。
const maxPasswordBytes = 72

// registerRequest は新規登録リクエストのJSON構造。
type registerRequest struct {
	Email         string `json:"email" binding:"required,email"`
	Password      string `json:"password" binding:"required"`
	Role          string `json:"role" binding:"required,oneof=school farmer"`
	ContactNumber string `json:"contactNumber" binding:"required"`
	// InstituteName とAddress は学校の場合に必須。
	InstituteName string `json:"instituteName"`
	Address       string `json:"address"`
	// Name とPurpose は農家の場合に必須。
	Name         string `json:"name"`
	Purpose      string `json:"purpose"`
	OtherPurpose string `json:"otherPurpose"`
}

// loginRequest はログインリクエストのJSON構造。
type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// handleRegister は新規登録を処理するハンドラを返す。
// 登録に成功するとその場でトークンを発行する。
func (s *Server) handleRegister() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortBindError(c, err)
			return
		}
		if len(req.Password) > maxPasswordBytes {
			abortWithMsg(c, http.StatusBadRequest, fmt.Sprintf("passwordは%dバイト以内で指定してください", maxPasswordBytes))
			return
		}
		role, err := account.ParseRole(req.Role)
		if err != nil {
			abortWithMsg(c, http.StatusBadRequest, "roleはschoolまたはfarmerで指定してください")
			return
		}

		session, err := s.accounts.Register(c.Request.Context(), account.Registration{
			Email:         req.Email,
			Password:      req.Password,
			ContactNumber: req.ContactNumber,
			Role:          role,
			InstituteName: req.InstituteName,
			Address:       req.Address,
			Name:          req.Name,
			Purpose:       req.Purpose,
			OtherPurpose:  req.OtherPurpose,
		})
		var verr *account.ValidationError
		switch {
		case errors.As(err, &verr):
			abortWithMsg(c, http.StatusBadRequest, verr.Error())
			return
		case errors.Is(err, account.ErrDuplicateEmail):
			abortWithMsg(c, http.StatusBadRequest, "このメールアドレスは既に登録されています")
			return
		case err != nil:
			s.internalError(c, err, "アカウント登録に失敗")
			return
		}

		s.log.Info().Str("user_id", session.Identity.ID).Str("role", role.String()).Msg("アカウントを登録しました")
		c.JSON(http.StatusCreated, toSessionResponse(session))
	}
}

// handleLogin はログインを処理するハンドラを返す。
// メールアドレスとパスワードのどちらが誤っているかは応答で区別しない。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortBindError(c, err)
			return
		}

		session, err := s.accounts.Login(c.Request.Context(), req.Email, req.Password)
		if errors.Is(err, account.ErrInvalidCredentials) {
			abortWithMsg(c, http.StatusBadRequest, "メールアドレスまたはパスワードが正しくありません")
			return
		}
		if err != nil {
			s.internalError(c, err, "ログインに失敗")
			return
		}

		c.JSON(http.StatusOK, toSessionResponse(session))
	}
}

// handleMe はログイン中の利用者を返すハンドラを返す。
func (s *Server) handleMe() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, toIdentityResponse(auth.MustIdentity(c)))
	}
}
