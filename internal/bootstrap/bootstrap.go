package bootstrap

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/radubobirnac/vocallocal-sub003/internal/domain/audio"
	"github.com/radubobirnac/vocallocal-sub003/internal/domain/transcribe"
	"github.com/radubobirnac/vocallocal-sub003/internal/domain/usage"
	usagestore "github.com/radubobirnac/vocallocal-sub003/internal/domain/usage/store"
	platformconfig "github.com/radubobirnac/vocallocal-sub003/internal/platform/config"
	platformerrors "github.com/radubobirnac/vocallocal-sub003/internal/platform/errors"
	platformlogging "github.com/radubobirnac/vocallocal-sub003/internal/platform/logging"
	platformstorage "github.com/radubobirnac/vocallocal-sub003/internal/platform/storage"
	httptransport "github.com/radubobirnac/vocallocal-sub003/internal/transport/http"
	httpwebapi "github.com/radubobirnac/vocallocal-sub003/internal/transport/http/webapi"
)

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

type appState struct {
	config     *platformconfig.Config
	logger     *platformlogging.Logger
	db         *gorm.DB
	ledger     *platformstorage.Ledger
	usageStore usagestore.Store
	meter      *usage.Meter
	provider   transcribe.Transcriber
	pipeline   *transcribe.Pipeline
}

// Run starts the whole service lifecycle: configuration, dependency
// initialisation, the HTTP server and graceful shutdown.
func Run(ctx context.Context) error {
	state := &appState{}

	steps := InitGraph()
	if err := executeInitSteps(ctx, steps, state); err != nil {
		return err
	}

	config := state.config
	logger := state.logger
	if config == nil || logger == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"bootstrap state validation",
			"config/logger not initialised",
		)
	}
	if state.pipeline == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"bootstrap state validation",
			"pipeline not initialised",
		)
	}

	logBootstrapGraph(steps, logger)

	defer func() {
		if state.usageStore != nil {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := state.usageStore.Close(closeCtx); err != nil {
				logger.WarnTag("BOOT", "usage store did not close cleanly: %v", err)
			}
		}
	}()

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)

	if _, err := startHTTPServer(state, group, groupCtx); err != nil {
		cancel()
		return err
	}

	if err := waitForShutdown(signalCtx, cancel, logger, group); err != nil {
		return err
	}

	logger.InfoTag("BOOT", "service stopped")
	logger.Close()
	return nil
}

func logBootstrapGraph(steps []initStep, logger *platformlogging.Logger) {
	if logger == nil {
		return
	}
	for _, step := range steps {
		logger.InfoTag("BOOT", "init: %s", step.Title)
	}
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"execute init steps",
			"nil bootstrap state",
		)
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return platformerrors.New(
					platformerrors.KindBootstrap,
					step.ID,
					fmt.Sprintf("dependency %s not satisfied", dep),
				)
			}
		}
		if step.Execute == nil {
			return platformerrors.New(
				platformerrors.KindBootstrap,
				step.ID,
				"missing execute function",
			)
		}
		if err := step.Execute(ctx, state); err != nil {
			var typed *platformerrors.Error
			if stderrors.As(err, &typed) {
				return err
			}

			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

// InitGraph declares the initialisation steps in dependency order.
func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init",
			Title:     "Initialise logging",
			DependsOn: []string{"config:load"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initLoggingStep,
		},
		{
			ID:        "storage:init-database",
			Title:     "Initialise usage ledger database",
			DependsOn: []string{"config:load", "logging:init"},
			Kind:      platformerrors.KindStorage,
			Execute:   initStorageStep,
		},
		{
			ID:        "usage:init-store",
			Title:     "Initialise usage counter store",
			DependsOn: []string{"config:load", "logging:init"},
			Kind:      platformerrors.KindStorage,
			Execute:   initUsageStoreStep,
		},
		{
			ID:        "usage:init-meter",
			Title:     "Initialise usage meter",
			DependsOn: []string{"storage:init-database", "usage:init-store"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initMeterStep,
		},
		{
			ID:        "provider:init",
			Title:     "Initialise transcription provider",
			DependsOn: []string{"config:load", "logging:init"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initProviderStep,
		},
		{
			ID:        "pipeline:init",
			Title:     "Initialise transcription pipeline",
			DependsOn: []string{"usage:init-meter", "provider:init"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initPipelineStep,
		},
	}
}

func loadConfigStep(_ context.Context, state *appState) error {
	config, err := platformconfig.NewLoader().Load()
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindConfig, "config:load", "failed to load configuration", err)
	}
	state.config = config
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	if state.config == nil {
		return platformerrors.New(platformerrors.KindBootstrap, "logging:init", "config not loaded")
	}

	logger, err := platformlogging.New(platformlogging.Config{
		Level:    state.config.Log.Level,
		Dir:      state.config.Log.Dir,
		Filename: state.config.Log.File,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "logging:init", "failed to initialise logging", err)
	}

	state.logger = logger
	logger.InfoTag("BOOT", "logging ready [%s]", state.config.Log.Level)
	return nil
}

func initStorageStep(_ context.Context, state *appState) error {
	dsn := state.config.Storage.DSN
	if dir := filepath.Dir(dsn); dir != "." && !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return platformerrors.Wrap(platformerrors.KindStorage, "storage:init-database", "failed to create data directory", err)
		}
	}

	db, err := platformstorage.Open(dsn)
	if err != nil {
		return err
	}
	state.db = db
	state.ledger = platformstorage.NewLedger(db)
	return nil
}

func initUsageStoreStep(_ context.Context, state *appState) error {
	cfg := usagestore.Config{
		Driver: state.config.Usage.Store.Type,
	}
	if redisCfg := state.config.Usage.Store.Redis; redisCfg != nil {
		cfg.Redis = &usagestore.RedisConfig{
			Addr:     redisCfg.Addr,
			Username: redisCfg.Username,
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
			Prefix:   redisCfg.Prefix,
		}
	}

	counterStore, err := usagestore.New(cfg)
	if err != nil {
		return err
	}
	state.usageStore = counterStore
	state.logger.InfoTag("BOOT", "usage store ready [%s]", state.config.Usage.Store.Type)
	return nil
}

func initMeterStep(_ context.Context, state *appState) error {
	state.meter = usage.NewMeter(state.config.Usage, state.usageStore, state.ledger, state.logger)
	return nil
}

func initProviderStep(_ context.Context, state *appState) error {
	if state.config.Provider.TestMode {
		// Sandbox mode: never call out, never bill.
		state.provider = transcribe.TranscribeFunc(func(context.Context, []byte, string, string) (string, error) {
			return "This is a test transcription.", nil
		})
		state.logger.WarnTag("BOOT", "provider running in test mode, transcripts are canned")
		return nil
	}

	provider, err := transcribe.NewOpenAIProvider(state.config.Provider)
	if err != nil {
		return err
	}
	state.provider = provider
	return nil
}

func initPipelineStep(_ context.Context, state *appState) error {
	pipelineCfg := state.config.Pipeline

	if err := os.MkdirAll(pipelineCfg.WorkspaceRoot, 0o755); err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "pipeline:init", "failed to create workspace root", err)
	}

	resolver := audio.NewResolver(state.logger, pipelineCfg.ProbeTimeout, pipelineCfg.WordsPerMinute)
	extractor := audio.NewExtractor(state.logger, pipelineCfg.ToleranceSecond)

	state.pipeline = transcribe.NewPipeline(
		pipelineCfg,
		resolver,
		extractor,
		state.meter,
		state.provider,
		state.logger,
	)
	return nil
}

func startHTTPServer(state *appState, g *errgroup.Group, groupCtx context.Context) (*http.Server, error) {
	config := state.config
	logger := state.logger

	httpRouter, err := httptransport.Build(httptransport.Options{
		Config: config,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	router := httpRouter.Engine

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.JSON(http.StatusNotFound, httptransport.APIResponse{
				Success: false,
				Data:    gin.H{},
				Message: "not found",
				Code:    http.StatusNotFound,
			})
			return
		}
		c.Status(http.StatusNotFound)
	})

	apiService, err := httpwebapi.NewService(config, state.pipeline, state.meter, logger)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransport, "webapi:new-service", "failed to create api service", err)
	}
	if err := apiService.Register(groupCtx, httpRouter.API); err != nil {
		return nil, err
	}

	httpServer := &http.Server{
		Addr:    config.Server.IP + ":" + strconv.Itoa(config.Server.Port),
		Handler: router,
	}

	g.Go(func() error {
		logger.InfoTag("HTTP", "listening on http://%s", httpServer.Addr)

		go func() {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("[HTTP] shutdown failed: %v", err)
			} else {
				logger.InfoTag("HTTP", "server shut down cleanly")
			}
		}()

		if err := httpServer.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			logger.Error("[HTTP] server failed: %v", err)
			return err
		}
		return nil
	})

	return httpServer, nil
}

func waitForShutdown(
	ctx context.Context,
	cancel context.CancelFunc,
	logger *platformlogging.Logger,
	g *errgroup.Group,
) error {
	<-ctx.Done()
	logger.InfoTag("BOOT", "shutdown signal received, cleaning up")

	cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("[BOOT] error during shutdown: %v", err)
			return err
		}
		logger.InfoTag("BOOT", "all services stopped")
	case <-time.After(15 * time.Second):
		logger.Error("[BOOT] shutdown timed out, forcing exit")
		return stderrors.New("shutdown timed out")
	}
	return nil
}
