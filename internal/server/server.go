// Package server はFood HeroのHTTP APIを提供する。
//
// 認証（/api/auth）と食品廃棄記録（/api/waste）のルーティングを持ち、
// 保護されたルートはauth.Gateとauth.Authorizeを通過した利用者だけが呼び出せる。
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/nao1215/foodhero/internal/account"
	"github.com/nao1215/foodhero/internal/auth"
	"github.com/nao1215/foodhero/internal/media"
	"github.com/nao1215/foodhero/internal/waste"
	"github.com/nao1215/foodhero/pkg/middleware"
)

// ServiceName はヘルスチェックとログに使うサービス名。
const ServiceName = "foodhero"

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// accountService は登録とログインを行う。
type accountService interface {
	Register(ctx context.Context, r account.Registration) (account.Session, error)
	Login(ctx context.Context, email, password string) (account.Session, error)
}

// wasteStore は廃棄記録の永続化を行う。
type wasteStore interface {
	Create(ctx context.Context, d waste.Draft) (waste.Entry, error)
	FindByID(ctx context.Context, id string) (waste.Entry, error)
	Find(ctx context.Context, f waste.Filter) ([]waste.Entry, error)
	ListBySchool(ctx context.Context, schoolID string, limit int) ([]waste.Entry, error)
	DeleteByID(ctx context.Context, id string) error
}

// Config はServerの動作設定。
type Config struct {
	// Addr はリッスンアドレス（":5000"など）。
	Addr string
	// CORSAllowedOrigins はCORSで許可するオリジン。空の場合はすべて許可する。
	CORSAllowedOrigins []string
	// BodyLimitBytes はリクエストボディの上限。0以下の場合はmiddleware.DefaultBodyLimit。
	BodyLimitBytes int64
}

// Deps はServerが利用するコンポーネント。
type Deps struct {
	Accounts accountService
	Gate     *auth.Gate
	Waste    wasteStore
	Media    media.Host
	Log      zerolog.Logger
}

// Server はFood HeroのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// httpServer はrouterを公開するHTTPサーバー。
	httpServer *http.Server
	accounts   accountService
	gate       *auth.Gate
	waste      wasteStore
	media      media.Host
	log        zerolog.Logger
	bodyLimit  int64
}

// NewServer は新しいServerを生成してルーティングを設定する。
func NewServer(cfg Config, deps Deps) (*Server, error) {
	var errs []error
	if deps.Accounts == nil {
		errs = append(errs, errors.New("Accountsが指定されていません"))
	}
	if deps.Gate == nil {
		errs = append(errs, errors.New("Gateが指定されていません"))
	}
	if deps.Waste == nil {
		errs = append(errs, errors.New("Wasteが指定されていません"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	host := deps.Media
	if host == nil {
		host = media.Disabled{}
	}
	bodyLimit := cfg.BodyLimitBytes
	if bodyLimit <= 0 {
		bodyLimit = middleware.DefaultBodyLimit
	}

	registerTagName()

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(deps.Log))
	router.Use(middleware.Recovery(deps.Log))
	router.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	router.Use(middleware.BodyLimit(bodyLimit))

	s := &Server{
		router:    router,
		accounts:  deps.Accounts,
		gate:      deps.Gate,
		waste:     deps.Waste,
		media:     host,
		log:       deps.Log,
		bodyLimit: bodyLimit,
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	s.setupRoutes()
	return s, nil
}

// Handler はルーティング済みのhttp.Handlerを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされたらグレースフルに停止する。
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("%sのリッスンに失敗: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve はlistenerで待ち受け、ctxがキャンセルされたらグレースフルに停止する。
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", listener.Addr().String()).Msg("HTTPサーバーを起動しました")
		errCh <- s.httpServer.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTPサーバーが異常終了しました: %w", err)
	case <-ctx.Done():
	}

	s.log.Info().Msg("HTTPサーバーを停止します")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTPサーバーの停止に失敗: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTPサーバーが異常終了しました: %w", err)
	}
	s.log.Info().Msg("HTTPサーバーを停止しました")
	return nil
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	schoolOnly := auth.Authorize(auth.NewRoleSet(account.RoleSchool))
	farmerOnly := auth.Authorize(auth.NewRoleSet(account.RoleFarmer))

	authGroup := s.router.Group("/api/auth")
	{
		// 新規登録
		authGroup.POST("/register", s.handleRegister())
		// ログイン
		authGroup.POST("/login", s.handleLogin())
		// ログイン中の利用者の取得
		authGroup.GET("/me", s.gate.Protect(), s.handleMe())
	}

	wasteGroup := s.router.Group("/api/waste", s.gate.Protect())
	{
		// 廃棄記録の投稿（学校のみ）
		wasteGroup.POST("/add", schoolOnly, s.handleAddEntry())
		// 廃棄記録の削除（投稿した学校のみ）
		wasteGroup.DELETE("/:id", schoolOnly, s.handleDeleteEntry())
		// 廃棄記録の一覧
		wasteGroup.GET("/posts", s.handleListEntries())
		// 廃棄記録の詳細
		wasteGroup.GET("/posts/:id", s.handleGetEntry())
		// メニューごとの集計（学校のみ）
		wasteGroup.GET("/analyze", schoolOnly, s.handleAnalyze())
		// 条件検索（農家のみ）
		wasteGroup.GET("/filter", farmerOnly, s.handleFilter())
	}

	s.router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "API is running...")
	})
	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": ServiceName})
	})

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"msg": fmt.Sprintf("エンドポイントが見つかりません: %s %s", c.Request.Method, c.Request.URL.Path)})
	})
}
