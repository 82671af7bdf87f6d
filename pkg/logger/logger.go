// Package logger はzerologベースの構造化ロガーを設定から生成する。
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	// FormatConsole は人間向けの色付きコンソール出力。
	FormatConsole = "console"
	// FormatJSON は1行1JSONの出力。
	FormatJSON = "json"
)

// Config はロガーの設定。
type Config struct {
	// Level はログレベル（debug, info, warn, error）。不正な値はinfoとして扱う。
	Level string
	// Format はFormatConsoleまたはFormatJSON。
	Format string
	// Output は出力先。nilの場合は標準エラー出力。
	Output io.Writer
	// Service はすべてのログに付与するサービス名。
	Service string
}

// New は設定からロガーを生成する。
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var out io.Writer = os.Stderr
	if cfg.Output != nil {
		out = cfg.Output
	}
	if strings.ToLower(cfg.Format) != FormatJSON {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
			NoColor:    cfg.Output != nil,
		}
	}

	zc := zerolog.New(out).Level(level).With().Timestamp()
	if cfg.Service != "" {
		zc = zc.Str("service", cfg.Service)
	}
	return zc.Logger()
}

// Nop は何も出力しないロガーを返す。テストで使用する。
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
