// Food Hero APIのエントリポイント。
// 学校が投稿する食品廃棄記録を農家が検索できるREST APIを提供する。
// 設定は環境変数・.envファイル・設定ファイルから読み込む。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/foodhero/internal/account"
	"github.com/nao1215/foodhero/internal/auth"
	"github.com/nao1215/foodhero/internal/config"
	"github.com/nao1215/foodhero/internal/media"
	"github.com/nao1215/foodhero/internal/server"
	"github.com/nao1215/foodhero/internal/store"
	"github.com/nao1215/foodhero/internal/waste"
	"github.com/nao1215/foodhero/pkg/logger"
	"github.com/nao1215/foodhero/pkg/token"
)

func main() {
	configFile := flag.String("config", "", "設定ファイルのパス（省略可）")
	envFile := flag.String("env-file", ".env", ".envファイルのパス")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configFile, *envFile); err != nil {
		fmt.Fprintf(os.Stderr, "foodhero: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configFile, envFile string) error {
	cfg, err := config.Load(config.WithConfigFile(configFile), config.WithEnvFile(envFile))
	if err != nil {
		return fmt.Errorf("設定の読み込みに失敗: %w", err)
	}

	log := logger.New(cfg.Log)
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	log.Info().
		Str("addr", cfg.Addr()).
		Str("database", cfg.DatabasePath).
		Str("media_provider", cfg.Media.Provider).
		Msg("Food Hero APIを起動します")

	db, err := store.Open(ctx, cfg.DatabasePath, log)
	if err != nil {
		return fmt.Errorf("データベースの初期化に失敗: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error().Err(err).Msg("データベースのクローズに失敗")
		}
	}()

	codec, err := token.NewCodec(token.Config{Secret: cfg.JWTSecret})
	if err != nil {
		return fmt.Errorf("トークンコーデックの初期化に失敗: %w", err)
	}
	hasher, err := account.NewBcryptHasher(cfg.BcryptCost)
	if err != nil {
		return err
	}
	host, err := media.NewHost(ctx, cfg.Media)
	if err != nil {
		return fmt.Errorf("メディアホストの初期化に失敗: %w", err)
	}

	accounts := account.NewStore(db)
	srv, err := server.NewServer(server.Config{
		Addr:               cfg.Addr(),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		BodyLimitBytes:     cfg.BodyLimitBytes,
	}, server.Deps{
		Accounts: account.NewService(accounts, hasher, codec),
		Gate:     auth.NewGate(codec, accounts, log.With().Str("component", "auth").Logger()),
		Waste:    waste.NewStore(db),
		Media:    host,
		Log:      log,
	})
	if err != nil {
		return fmt.Errorf("サーバーの初期化に失敗: %w", err)
	}

	if err := srv.Run(ctx); err != nil {
		return err
	}
	log.Info().Msg("Food Hero APIを停止しました")
	return nil
}
