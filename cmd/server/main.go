package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/wfunc/emojirades/internal/api"
	"github.com/wfunc/emojirades/internal/bot"
	"github.com/wfunc/emojirades/internal/chat"
	"github.com/wfunc/emojirades/internal/command"
	"github.com/wfunc/emojirades/internal/config"
	"github.com/wfunc/emojirades/internal/database"
	apperrors "github.com/wfunc/emojirades/internal/errors"
	"github.com/wfunc/emojirades/internal/logger"
	"github.com/wfunc/emojirades/internal/repository"
	"github.com/wfunc/emojirades/internal/storage"
	twitchtransport "github.com/wfunc/emojirades/internal/transport/twitch"
	wstransport "github.com/wfunc/emojirades/internal/transport/websocket"
	"github.com/wfunc/emojirades/internal/utils"
)

// Build info
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Server the running process: workspaces, storage and the HTTP server.
type Server struct {
	loader *config.Loader
	cfg    *config.Config
	log    *logger.Logger
	logger *zap.Logger

	db      *gorm.DB
	history api.HistoryStore
	catalog *command.Catalog
	bot     *bot.Bot
	ws      *api.WebSocketHandler
	http    *http.Server
}

func main() {
	var (
		configPath  = flag.String("config", "", "config file path")
		showVersion = flag.Bool("version", false, "print version and exit")
		showHelp    = flag.Bool("help", false, "print usage and exit")
		tokenFor    = flag.String("token", "", "print an admin API token for this subject and exit")
	)
	flag.Parse()

	if *showVersion {
		printVersion()
		return
	}
	if *showHelp {
		printHelp()
		return
	}

	loader, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	cfg := loader.Get()

	if *tokenFor != "" {
		token, err := newJWTManager(cfg).GenerateToken(*tokenFor, utils.RoleAdmin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "generate token: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	log, err := logger.New(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := NewServer(loader, log)
	if err := server.Start(ctx); err != nil {
		log.Error("server start failed", zap.Error(err))
		server.Close()
		os.Exit(1)
	}

	err = server.Run(ctx)
	server.Close()
	if err != nil {
		log.Error("server stopped", zap.Error(err))
		log.Sync()
		os.Exit(1)
	}
	log.Info("server stopped")
}

// NewServer creates a server from the loaded configuration.
func NewServer(loader *config.Loader, log *logger.Logger) *Server {
	return &Server{
		loader:  loader,
		cfg:     loader.Get(),
		log:     log,
		logger:  log.Module("server"),
		catalog: command.NewCatalog(),
		bot:     bot.New(log.Module("bot")),
	}
}

// Start builds every workspace and restores its persisted state.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("starting emojirades",
		zap.String("version", Version),
		zap.String("storage", s.cfg.Storage.Driver),
		zap.Int("workspaces", len(s.cfg.Workspaces)))

	persisterFor, err := s.initStorage(ctx)
	if err != nil {
		return err
	}

	s.ws = api.NewWebSocketHandler(s.cfg.WebSocket, s.log.Module("websocket"))
	for _, wc := range s.cfg.Workspaces {
		transport, err := s.newTransport(wc)
		if err != nil {
			return err
		}
		w := bot.NewWorkspace(wc, transport, persisterFor(wc.ID), s.catalog, s.log.Module("workspace"))
		if err := s.bot.Add(w); err != nil {
			return err
		}
	}

	if err := s.bot.Load(ctx); err != nil {
		return err
	}

	s.loader.Watch(s.reloadConfig, func(err error) {
		s.logger.Warn("config reload rejected", zap.Error(err))
	})

	s.initHTTP()
	return nil
}

// initStorage returns the persister factory for the configured driver.
func (s *Server) initStorage(ctx context.Context) (func(workspace string) bot.Persister, error) {
	switch s.cfg.Storage.Driver {
	case config.StorageFile:
		backend := storage.NewFileBackend(s.cfg.Storage.Path)
		return documents(backend), nil

	case config.StorageS3:
		backend, err := storage.NewS3Backend(ctx, s.cfg.Storage.S3)
		if err != nil {
			return nil, err
		}
		return documents(backend), nil

	case config.StorageDatabase:
		db, err := database.Open(&s.cfg.Database, s.log.Module("database"))
		if err != nil {
			return nil, err
		}
		s.db = db
		if s.cfg.Database.AutoMigrate {
			if err := database.Migrate(db, s.log.Module("database")); err != nil {
				return nil, err
			}
		}
		repos := repository.NewManager(db)
		s.history = repos
		return func(workspace string) bot.Persister { return repos.Persister(workspace) }, nil

	default:
		return nil, apperrors.Newf(apperrors.ErrConfigValidate, "unknown storage driver %q", s.cfg.Storage.Driver)
	}
}

func documents(backend storage.Backend) func(string) bot.Persister {
	return func(workspace string) bot.Persister {
		return storage.NewDocumentPersister(backend, workspace)
	}
}

func (s *Server) newTransport(wc config.WorkspaceConfig) (chat.Transport, error) {
	switch wc.Transport {
	case config.TransportWebSocket:
		t := wstransport.New(s.cfg.WebSocket, wc.BotID, wc.BotName,
			s.log.Module("websocket").With(zap.String("workspace", wc.ID)))
		s.ws.Add(wc.ID, t)
		return t, nil
	case config.TransportTwitch:
		return twitchtransport.New(wc, s.log.Module("twitch").With(zap.String("workspace", wc.ID))), nil
	default:
		return nil, apperrors.Newf(apperrors.ErrConfigValidate, "workspace %s: unknown transport %q", wc.ID, wc.Transport)
	}
}

func (s *Server) initHTTP() {
	switch s.cfg.Server.Mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
		gin.SetMode(s.cfg.Server.Mode)
	}

	jwt := newJWTManager(s.cfg)
	if s.cfg.Security.JWT.Secret == "" {
		s.logger.Warn("security.jwt.secret is empty, the admin API rejects every request")
	}

	router := api.NewRouter(s.bot, s.catalog, jwt, s.ws, s.log.Module("http"))
	if s.history != nil {
		router.UseHistoryStore(s.history)
	}
	s.http = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      router.Handler(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}
}

// Run serves HTTP and runs every workspace until ctx is done or a
// workspace fails fatally.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.bot.Run(ctx)
	})

	g.Go(func() error {
		s.logger.Info("http listening", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return apperrors.Wrap(err, apperrors.ErrUnknown, "http server")
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		timeout := s.cfg.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		s.logger.Info("shutting down http server")
		return s.http.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Close releases storage.
func (s *Server) Close() {
	if s.db != nil {
		if err := database.Close(s.db); err != nil {
			s.logger.Error("close database", zap.Error(err))
		}
	}
}

// reloadConfig applies admin lists and the log level. Other changes need a
// restart.
func (s *Server) reloadConfig(newCfg *config.Config) {
	s.bot.ApplyConfig(newCfg)
	s.log.SetLevel(newCfg.Log.Level)
	s.logger.Info("config reloaded", zap.String("log_level", newCfg.Log.Level))
}

func newJWTManager(cfg *config.Config) *utils.JWTManager {
	return utils.NewJWTManager(cfg.Security.JWT.Secret, cfg.Security.JWT.Issuer,
		time.Duration(cfg.Security.JWT.ExpireHours)*time.Hour)
}

func printVersion() {
	fmt.Printf("emojirades %s\n", Version)
	fmt.Printf("build time: %s\n", BuildTime)
	fmt.Printf("git commit: %s\n", GitCommit)
	fmt.Printf("go: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

func printHelp() {
	fmt.Println("emojirades - the emoji guessing game bot")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  emojirades [options]")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Printf("  %s_*    overrides any config key, e.g. %s_SERVER_PORT=9000\n", config.EnvPrefix, config.EnvPrefix)
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  emojirades -config=/etc/emojirades/config.yaml")
	fmt.Println("  emojirades -token=ops")
}
