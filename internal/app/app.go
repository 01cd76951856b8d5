package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jgivc/mediafetch/internal/adapter/fsadapter"
	"github.com/jgivc/mediafetch/internal/adapter/mdadapter"
	"github.com/jgivc/mediafetch/internal/adapter/ytdlp"
	"github.com/jgivc/mediafetch/internal/config"
	httphandler "github.com/jgivc/mediafetch/internal/handler/http"
	"github.com/jgivc/mediafetch/internal/repository/cleanup"
	"github.com/jgivc/mediafetch/internal/repository/progress"
	"github.com/jgivc/mediafetch/internal/runner"
	scleanup "github.com/jgivc/mediafetch/internal/service/cleanup"
	srvdownload "github.com/jgivc/mediafetch/internal/service/download"
	"github.com/jgivc/mediafetch/internal/service/info"
	"github.com/jgivc/mediafetch/internal/service/page"
	"github.com/jgivc/mediafetch/internal/util"
	"github.com/jgivc/mediafetch/internal/worker"
	"github.com/redis/go-redis/v9"
)

const (
	sweepTimeout    = 30 * time.Second
	shutdownTimeout = 5 * time.Second
)

type Pool interface {
	Start()
	Stop()
	Submit(task worker.Task) error
}

type App struct {
	cfgPath string
	cfg     *config.Config
	srv     *http.Server
	rdb     *redis.Client
	pool    Pool
	sweeper *scleanup.SweeperService
	pages   interface{ Reload() error }
	cancel  context.CancelFunc
	log     *slog.Logger
}

func New(cfgPath string) *App {
	return &App{
		cfgPath: cfgPath,
	}
}

func (a *App) Start() {
	a.cfg = config.MustLoad(a.cfgPath)

	lo := &slog.HandlerOptions{}
	switch a.cfg.LogLevel {
	case config.LogLevelInfo:
		lo.Level = slog.LevelInfo
	case config.LogLevelWarn:
		lo.Level = slog.LevelWarn
	case config.LogLevelError:
		lo.Level = slog.LevelError
	case config.LogLevelDebug:
		lo.Level = slog.LevelDebug
	default:
		panic("unknown log level")
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, lo))
	a.log = log

	var (
		store    srvdownload.ProgressStore
		expirer  scleanup.Expirer
		schedule interface {
			srvdownload.CleanupSchedule
			scleanup.Schedule
		}
	)

	if a.cfg.RedisURL != "" {
		opt, err := redis.ParseURL(a.cfg.RedisURL)
		if err != nil {
			panic(err)
		}

		a.rdb = redis.NewClient(opt)
		if _, err := a.rdb.Ping(context.Background()).Result(); err != nil {
			panic(err)
		}

		store = progress.NewRedisStore(a.rdb, log)
		schedule = cleanup.NewRedisSchedule(a.rdb, log)
		log.Info("Using redis stores")
	} else {
		mem := progress.NewMemoryStore()
		store, expirer = mem, mem
		schedule = cleanup.NewMemorySchedule()
		log.Info("Using in-memory stores")
	}

	dcfg := &a.cfg.Downloader

	files, err := fsadapter.NewFSAdapter(dcfg, log)
	if err != nil {
		panic(err)
	}

	procRunner := runner.NewProcessRunner(dcfg.PollInterval, log)
	client := ytdlp.NewClient(dcfg, procRunner, log)
	if err := client.CheckTool(); err != nil {
		log.Warn("Downloads will fail until the tool is installed", slog.Any("error", err))
	}

	pool := worker.NewPool(dcfg.Workers, dcfg.QueueSize, log)
	pool.Start()
	a.pool = pool

	if a.cfg.Secret == "" {
		log.Warn("Secret is not set, download links will not survive a restart")
	}

	dSrv := srvdownload.NewDownloadService(dcfg, a.cfg.URL, srvdownload.Deps{
		Store:      store,
		Cleanup:    schedule,
		Scheduler:  pool,
		Downloader: client,
		Runner:     procRunner,
		Files:      files,
		Signer:     util.NewTokenSigner(a.cfg.Secret, dcfg.Retention),
	}, log)
	iSrv := info.NewInfoService(client, log)

	renderer, err := mdadapter.NewPageRenderer(a.cfg.URL, dcfg.AllowedFormats, log)
	if err != nil {
		panic(err)
	}
	pSrv := page.NewPageService(renderer, a.cfg.Page.File, log)
	a.pages = pSrv

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.sweeper = scleanup.NewSweeperService(schedule, files, log)
	if expirer != nil {
		a.sweeper.WithExpirer(expirer)
	}
	go a.sweeper.Run(ctx, scleanup.DefaultInterval)

	limiter := httphandler.NewRateLimiter(a.cfg.RateLimit.RPS, a.cfg.RateLimit.Burst, log)

	mux := http.NewServeMux()
	mux.Handle("GET /{$}", httphandler.NewPageHandler(pSrv, log))
	mux.Handle("GET /health", httphandler.NewHealthHandler())
	mux.Handle("POST /api/info", limiter.Wrap(httphandler.NewInfoHandler(iSrv, log)))
	mux.Handle("POST /api/download", limiter.Wrap(httphandler.NewStartHandler(dSrv, log)))
	mux.Handle("GET /api/progress/{id}", httphandler.NewProgressHandler(dSrv, log))
	mux.Handle("DELETE /api/progress/{id}", httphandler.NewCancelHandler(dSrv, log))
	mux.Handle("GET /file/{job}/{name}", httphandler.NewFileHandler(dSrv, log))

	a.srv = &http.Server{
		Addr:              a.cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Start listen", slog.String("addr", a.cfg.Listen), slog.String("url", a.cfg.URL))

		if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Could not serve", slog.String("listen_addr", a.cfg.Listen), slog.Any("error", err))
			os.Exit(2)
		}
	}()
}

// Sweep removes expired job directories right away.
func (a *App) Sweep() {
	if a.sweeper == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	removed, err := a.sweeper.Sweep(ctx)
	if err != nil {
		fmt.Printf("Cannot sweep: %s\n", err)

		return
	}

	fmt.Printf("Removed %d expired job dirs\n", removed)
}

// ReloadPage renders the landing page file again.
func (a *App) ReloadPage() {
	if a.pages == nil {
		return
	}

	if err := a.pages.Reload(); err != nil {
		fmt.Printf("Cannot reload page: %s\n", err)
	}
}

func (a *App) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.srv != nil {
		if err := a.srv.Shutdown(ctx); err != nil {
			a.log.Error("Cannot shutdown server", slog.Any("error", err))
		}
	}

	if a.cancel != nil {
		a.cancel()
	}

	if a.pool != nil {
		a.pool.Stop()
	}

	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.Error("Cannot close redis client", slog.Any("error", err))
		}
	}
}
