package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/df07/go-schwarzschild-raytracer/web/server"
)

// loadConfig reads the server settings from the environment. Invalid values
// are logged and replaced by the defaults.
func loadConfig(getenv func(string) string, logger *slog.Logger) (server.Config, slog.Level) {
	config := server.DefaultConfig()
	level := slog.LevelInfo

	if addr := getenv("BLACKHOLE_HTTP_ADDR"); addr != "" {
		config.Addr = addr
	}

	if v := getenv("BLACKHOLE_LOG_LEVEL"); v != "" {
		switch strings.ToLower(v) {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn", "warning":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			logger.Warn("invalid BLACKHOLE_LOG_LEVEL, using info", "value", v)
		}
	}

	if v := getenv("BLACKHOLE_FRAME_RATE"); v != "" {
		rate, err := strconv.Atoi(v)
		if err != nil || rate < 1 || rate > 120 {
			logger.Warn("invalid BLACKHOLE_FRAME_RATE, using default", "value", v, "default", config.FrameRate)
		} else {
			config.FrameRate = rate
		}
	}

	if v := getenv("BLACKHOLE_MAX_SESSIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid BLACKHOLE_MAX_SESSIONS, using default", "value", v, "default", config.MaxSessions)
		} else {
			config.MaxSessions = n
		}
	}

	return config, level
}

func main() {
	staticDir := flag.String("static", "", "Directory with the browser client (overrides the default)")
	flag.Parse()

	levelVar := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: levelVar}))
	slog.SetDefault(logger)

	config, level := loadConfig(os.Getenv, logger)
	levelVar.Set(level)
	if *staticDir != "" {
		config.StaticDir = *staticDir
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.NewServer(config, logger)
	if err := srv.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
