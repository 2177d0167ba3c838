// 開発用通知バックエンドのエントリポイント。
// 通知APIとSTOMPによるプッシュ配信をローカルで提供する。
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/nao1215/notifysync/internal/config"
	"github.com/nao1215/notifysync/internal/devserver"
	"github.com/nao1215/notifysync/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}

	zl, err := logger.New(logger.Config{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		log.Fatalf("ロガーの初期化に失敗: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	server, err := devserver.NewServer(devserver.Config{
		Port:           cfg.Port,
		DBPath:         cfg.DBPath,
		TokenSecret:    cfg.TokenSecret,
		AllowedOrigins: cfg.AllowedOrigins,
		Seed:           true,
		Logger:         zl,
	})
	if err != nil {
		zl.Fatal("通知バックエンドの初期化に失敗", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zl.Warn("shutdown incomplete", zap.Error(err))
		}
	}()

	zl.Info("通知バックエンドを起動します", zap.String("addr", ":"+cfg.Port))
	if err := server.Run(); err != nil {
		zl.Fatal("通知バックエンドの起動に失敗", zap.Error(err))
	}
}
