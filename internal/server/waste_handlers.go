package server

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/foodhero/internal/auth"
	"github.com/nao1215/foodhero/internal/media"
	"github.com/nao1215/foodhero/internal/waste"
)

// imageField は廃棄記録に添付する画像のマルチパートのフィールド名。
const imageField = "wasteImage"

// addEntryRequest は廃棄記録投稿リクエストの構造。JSONとフォームの両方を受け付ける。
type addEntryRequest struct {
	Menu   string   `json:"menu" form:"menu" binding:"required"`
	Weight *float64 `json:"weight" form:"weight" binding:"required,gte=0"`
	Date   string   `json:"date" form:"date" binding:"required"`
}

// filterQuery は農家向け検索のクエリパラメータ。
type filterQuery struct {
	WeightMin  string `form:"weightMin"`
	WeightMax  string `form:"weightMax"`
	Menu       string `form:"menu"`
	Date       string `form:"date"`
	SchoolName string `form:"schoolName"`
}

// handleAddEntry は廃棄記録の投稿を処理するハンドラを返す。
// マルチパートでwasteImageが送られた場合は画像をメディアホストに保存してから記録する。
func (s *Server) handleAddEntry() gin.HandlerFunc {
	return func(c *gin.Context) {
		school := auth.MustIdentity(c)

		var req addEntryRequest
		if err := c.ShouldBind(&req); err != nil {
			abortBindError(c, err)
			return
		}
		date, err := waste.ParseDate(req.Date)
		if err != nil {
			abortWithMsg(c, http.StatusBadRequest, "dateはYYYY-MM-DDまたはRFC3339形式で指定してください")
			return
		}

		img, ok := s.readImage(c)
		if !ok {
			return
		}

		var asset media.Asset
		if img != nil {
			asset, err = s.media.Upload(c.Request.Context(), *img)
			if errors.Is(err, media.ErrNotConfigured) {
				abortWithMsg(c, http.StatusServiceUnavailable, "画像のアップロードは無効です")
				return
			}
			if err != nil {
				s.log.Error().Err(err).Str("user_id", school.ID).Msg("画像のアップロードに失敗")
				abortWithMsg(c, http.StatusBadGateway, "画像の保存に失敗しました")
				return
			}
		}

		entry, err := s.waste.Create(c.Request.Context(), waste.Draft{
			SchoolID: school.ID,
			Menu:     req.Menu,
			Weight:   *req.Weight,
			Date:     date,
			ImageURL: asset.URL,
			ImageID:  asset.ID,
		})
		if err != nil {
			if asset.ID != "" {
				s.deleteImage(c, asset.ID)
			}
			if errors.Is(err, waste.ErrInvalidEntry) {
				abortWithMsg(c, http.StatusBadRequest, strings.TrimPrefix(err.Error(), waste.ErrInvalidEntry.Error()+": "))
				return
			}
			s.internalError(c, err, "廃棄記録の登録に失敗")
			return
		}

		c.JSON(http.StatusCreated, gin.H{"msg": "廃棄記録を登録しました", "wasteEntry": toEntryResponse(entry)})
	}
}

// readImage はマルチパートの画像を読み込む。画像が無い場合はnilを返す。
// 応答済みの場合はfalseを返す。
func (s *Server) readImage(c *gin.Context) (*media.Image, bool) {
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		return nil, true
	}
	header, err := c.FormFile(imageField)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, true
	}
	if err != nil {
		abortBindError(c, err)
		return nil, false
	}

	f, err := header.Open()
	if err != nil {
		s.internalError(c, err, "アップロードされた画像を開けません")
		return nil, false
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		s.internalError(c, err, "アップロードされた画像を読み込めません")
		return nil, false
	}

	img, err := media.NewImage(header.Filename, data)
	if errors.Is(err, media.ErrUnsupportedType) || errors.Is(err, media.ErrEmptyImage) {
		abortWithMsg(c, http.StatusBadRequest, fmt.Sprintf("%sには画像ファイルを指定してください", imageField))
		return nil, false
	}
	if err != nil {
		s.internalError(c, err, "画像の判定に失敗")
		return nil, false
	}
	return &img, true
}

// deleteImage はメディアホストの画像を削除する。失敗はログに残すだけでリクエストは失敗させない。
func (s *Server) deleteImage(c *gin.Context, id string) {
	if err := s.media.Delete(c.Request.Context(), id); err != nil {
		s.log.Warn().Err(err).Str("image_id", id).Msg("画像の削除に失敗")
	}
}

// handleDeleteEntry は廃棄記録の削除を処理するハンドラを返す。
// 投稿した学校以外からの削除は401を返す。
func (s *Server) handleDeleteEntry() gin.HandlerFunc {
	return func(c *gin.Context) {
		school := auth.MustIdentity(c)

		entry, err := s.waste.FindByID(c.Request.Context(), c.Param("id"))
		if errors.Is(err, waste.ErrNotFound) {
			abortWithMsg(c, http.StatusNotFound, "削除する廃棄記録が見つかりません")
			return
		}
		if err != nil {
			s.internalError(c, err, "廃棄記録の取得に失敗")
			return
		}

		if entry.SchoolID != school.ID {
			abortWithMsg(c, http.StatusUnauthorized, "この廃棄記録を削除する権限がありません")
			return
		}

		if entry.ImageID != "" {
			s.deleteImage(c, entry.ImageID)
		}

		err = s.waste.DeleteByID(c.Request.Context(), entry.ID)
		if errors.Is(err, waste.ErrNotFound) {
			abortWithMsg(c, http.StatusNotFound, "削除する廃棄記録が見つかりません")
			return
		}
		if err != nil {
			s.internalError(c, err, "廃棄記録の削除に失敗")
			return
		}

		c.JSON(http.StatusOK, gin.H{"msg": "廃棄記録を削除しました"})
	}
}

// handleListEntries はすべての廃棄記録を新しい投稿順に返すハンドラを返す。
func (s *Server) handleListEntries() gin.HandlerFunc {
	return func(c *gin.Context) {
		entries, err := s.waste.Find(c.Request.Context(), waste.Filter{})
		if err != nil {
			s.internalError(c, err, "廃棄記録一覧の取得に失敗")
			return
		}
		c.JSON(http.StatusOK, toEntryResponses(entries))
	}
}

// handleGetEntry は廃棄記録の詳細を返すハンドラを返す。
func (s *Server) handleGetEntry() gin.HandlerFunc {
	return func(c *gin.Context) {
		entry, err := s.waste.FindByID(c.Request.Context(), c.Param("id"))
		if errors.Is(err, waste.ErrNotFound) {
			abortWithMsg(c, http.StatusNotFound, "廃棄記録が見つかりません")
			return
		}
		if err != nil {
			s.internalError(c, err, "廃棄記録の取得に失敗")
			return
		}
		c.JSON(http.StatusOK, toEntryResponse(entry))
	}
}

// handleAnalyze はログイン中の学校の記録を日付順に先頭から集計するハンドラを返す。
func (s *Server) handleAnalyze() gin.HandlerFunc {
	return func(c *gin.Context) {
		school := auth.MustIdentity(c)

		entries, err := s.waste.ListBySchool(c.Request.Context(), school.ID, waste.AnalysisWindow)
		if err != nil {
			s.internalError(c, err, "集計対象の取得に失敗")
			return
		}
		c.JSON(http.StatusOK, toAnalysisResponse(waste.Analyze(entries), entries))
	}
}

// handleFilter は条件に一致する廃棄記録を返すハンドラを返す。
func (s *Server) handleFilter() gin.HandlerFunc {
	return func(c *gin.Context) {
		var q filterQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			abortBindError(c, err)
			return
		}
		filter, msg := q.toFilter()
		if msg != "" {
			abortWithMsg(c, http.StatusBadRequest, msg)
			return
		}

		entries, err := s.waste.Find(c.Request.Context(), filter)
		if err != nil {
			s.internalError(c, err, "廃棄記録の検索に失敗")
			return
		}
		c.JSON(http.StatusOK, toEntryResponses(entries))
	}
}

// toFilter はクエリパラメータを検索条件に変換する。不正な値がある場合はメッセージを返す。
func (q filterQuery) toFilter() (waste.Filter, string) {
	f := waste.Filter{
		Menu:       strings.TrimSpace(q.Menu),
		SchoolName: strings.TrimSpace(q.SchoolName),
	}

	var ok bool
	if f.WeightMin, ok = parseBound(q.WeightMin); !ok {
		return waste.Filter{}, "weightMinは数値で指定してください"
	}
	if f.WeightMax, ok = parseBound(q.WeightMax); !ok {
		return waste.Filter{}, "weightMaxは数値で指定してください"
	}

	if strings.TrimSpace(q.Date) != "" {
		d, err := waste.ParseDate(q.Date)
		if err != nil {
			return waste.Filter{}, "dateはYYYY-MM-DDまたはRFC3339形式で指定してください"
		}
		f.Date = &d
	}
	return f, ""
}

// parseBound は廃棄量の境界値を解釈する。空の場合はnilを返す。
func parseBound(raw string) (*float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, false
	}
	return &v, true
}
