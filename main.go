package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/back2front/back2front-go/assets"
	"github.com/back2front/back2front-go/compiler"
	"github.com/back2front/back2front-go/config"
	"github.com/back2front/back2front-go/fsutil"
	"github.com/back2front/back2front-go/manifest"
	"github.com/back2front/back2front-go/renderer"
	"github.com/back2front/back2front-go/route"
	"github.com/back2front/back2front-go/server"
	"github.com/back2front/back2front-go/site"
	"github.com/back2front/back2front-go/templatex"
)

func main() {
	cfgPath := flag.String("config", "config.json", "path to configuration file")
	envFlag := flag.String("env", "", "environment: local, dev, test, pre or prod")
	flag.Parse()

	env := *envFlag
	if env == "" {
		env = os.Getenv("BACK2FRONT_ENV")
	}
	cfg, err := loadConfig(*cfgPath, env)
	if err != nil {
		panic(err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("starting", "version", serverSignature(), "env", cfg.Env, "production", cfg.IsProduction())

	// No manifest means the assets have not been built: serve and compile
	// sources directly.
	bundle, err := manifest.Load(cfg.ManifestPath, cfg.MD5MapPath)
	if err != nil {
		logger.Error("manifest", "error", err)
		os.Exit(1)
	}
	development := bundle == nil

	engine, err := templatex.New(engineOptions(cfg, bundle, logger))
	if err != nil {
		logger.Error("templates", "error", err)
		os.Exit(1)
	}

	router, err := site.NewRouter(cfg.Env, route.NewFactory(engine, bundle), site.Groups())
	if err != nil {
		logger.Error("routes", "error", err)
		os.Exit(1)
	}

	opts := server.Options{
		Config:       cfg,
		Router:       router,
		Development:  development,
		Logger:       logger,
		ServerHeader: serverSignature(),
	}
	var sass *compiler.DartSass
	if development {
		sass = compiler.NewDartSass()
		registry := compiler.Default(compiler.Options{
			AssetDirname: cfg.AssetDirname,
			TemplateExt:  cfg.TemplateExt,
			SassConfig:   cfg.SassConfig,
			Sass:         sass,
		})
		opts.Assets = assets.New(cfg.StaticDir, registry, assets.NewMtimeCache(), logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(opts)
	serveErr := srv.Start(ctx)

	if development {
		if err := sass.Close(); err != nil {
			logger.Warn("sass", "error", err)
		}
		removed, err := fsutil.PurgeShadowDirs(cfg.StaticDir)
		if err != nil {
			logger.Warn("purge compiled assets", "error", err)
		} else if len(removed) > 0 {
			logger.Info("purged compiled assets", "dirs", removed)
		}
	}

	if serveErr != nil {
		logger.Error("server", "error", serveErr)
		os.Exit(1)
	}
}

// engineOptions configures the template engine. Templates are cached only
// when a manifest was loaded, so edits show up while sources are compiled on
// request.
func engineOptions(cfg *config.Config, bundle *manifest.Manifest, logger *slog.Logger) templatex.Options {
	opts := templatex.Options{
		Root:         cfg.AssetRoot(),
		AssetDirname: cfg.AssetDirname,
		Ext:          cfg.TemplateExt,
		Manifest:     bundle,
		Cache:        bundle != nil,
		Logger:       logger,
	}
	if cfg.IsProduction() {
		opts.Minifier = renderer.NewMinifier()
	}
	return opts
}

func loadConfig(path, env string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) || path != "config.json" {
			return nil, err
		}
		cfg = config.Default()
	}
	if env != "" {
		cfg.Env = env
		if err := cfg.Finalize(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
