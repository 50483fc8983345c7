// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	internal_bot "github.com/rapidaai/callbridge/api/call-api/internal/bot"
	internal_recording "github.com/rapidaai/callbridge/api/call-api/internal/recording"
	internal_registry "github.com/rapidaai/callbridge/api/call-api/internal/registry"
	internal_vobiz "github.com/rapidaai/callbridge/api/call-api/internal/telephony/vobiz"
	call_routers "github.com/rapidaai/callbridge/api/call-api/router"
	"github.com/rapidaai/callbridge/config"
	"github.com/rapidaai/callbridge/pkg/commons"
	"github.com/rapidaai/callbridge/pkg/utils"
)

func main() {
	v, err := config.InitConfig()
	if err != nil {
		log.Fatalf("failed to initialize configuration: %v", err)
	}
	cfg, err := config.GetApplicationConfig(v)
	if err != nil {
		log.Fatalf("failed to load application configuration: %v", err)
	}

	logger, err := commons.NewApplicationLogger(
		commons.Name(cfg.Name),
		commons.Path(cfg.LogPath),
		commons.Level(cfg.LogLevel),
	)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if cfg.DeploymentEnvironment() == utils.PRODUCTION {
		gin.SetMode(gin.ReleaseMode)
	}

	registry := internal_registry.NewRegistry(logger)
	carrier := internal_vobiz.NewClient(cfg.VobizAPIURL, cfg.VobizAuthID, cfg.VobizAuthToken, logger)
	downloader := internal_recording.NewDownloader(carrier, cfg.RecordingsDir, logger)
	bot := internal_bot.NewHandler(cfg.BotWebsocketURL, logger)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:          12 * time.Hour,
	}))

	call_routers.HealthCheckRoutes(cfg, engine, logger)
	call_routers.CallApiRoutes(cfg, engine, logger, registry, carrier, downloader, bot)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("call-control server listening", "addr", srv.Addr, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down call-control server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Fatalf("server terminated: %v", err)
	}
}
