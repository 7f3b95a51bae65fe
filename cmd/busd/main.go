// busd is an example daemon built on ProcessBus: it wires every optional
// collaborator behind a config nil-check, starts serving, and blocks on the
// main goroutine until asked to exit.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/cherrypy/magicbus"
	"github.com/cherrypy/magicbus/internal/config"
	"github.com/cherrypy/magicbus/plugins"
	"github.com/cherrypy/magicbus/plugins/diagnostics"
	"github.com/cherrypy/magicbus/plugins/loggers"
	"github.com/cherrypy/magicbus/plugins/opsys"
	"github.com/cherrypy/magicbus/plugins/pgsink"
	"github.com/cherrypy/magicbus/plugins/s3sink"
	"github.com/cherrypy/magicbus/plugins/servers"
	"github.com/cherrypy/magicbus/plugins/signalhandler"
	"github.com/cherrypy/magicbus/plugins/tasks"
	"github.com/cherrypy/magicbus/processbus"
)

// validateEnv checks critical environment variables before anything gets
// wired up.
func validateEnv() []string {
	var errs []string
	if addr := os.Getenv("BUS_HTTP_ADDR"); addr != "" {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			errs = append(errs, fmt.Sprintf("BUS_HTTP_ADDR=%q: must be host:port (%v)", addr, err))
		}
	}
	if dsn := os.Getenv("BUS_POSTGRES_DSN"); dsn != "" {
		if _, err := url.Parse(dsn); err != nil {
			errs = append(errs, fmt.Sprintf("BUS_POSTGRES_DSN: invalid URL (%v)", err))
		}
	}
	return errs
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if errs := validateEnv(); len(errs) > 0 {
		for _, e := range errs {
			slog.Error("invalid environment variable", "error", e)
		}
		os.Exit(1)
	}

	configPath := config.ResolvePath()
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "path", configPath, "error", err)
		os.Exit(1)
	}
	if configPath != "" {
		slog.Info("config loaded", "path", configPath)
	}

	bus := processbus.New()
	defer bus.ArmCleanExit().Close()

	collaborators := plugins.New().On(magicbus.LogChannel, loggers.NewSlogSink(logger).Listener())

	var (
		teardown []func()
		pool     *pgxpool.Pool
		recorder *diagnostics.Recorder
	)

	if cfg.Postgres != nil {
		ctx := context.Background()
		pool, err = pgxpool.New(ctx, cfg.Postgres.DSN)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		table := cfg.Postgres.LogTable
		if table == "" {
			table = "bus_log"
		}
		sink := pgsink.NewSink(pool, table, cfg.Postgres.BufferSize)
		if err := sink.EnsureSchema(ctx); err != nil {
			slog.Error("failed to create postgres log table", "error", err)
			os.Exit(1)
		}
		collaborators.On(magicbus.LogChannel, sink.Listener())
		teardown = append(teardown, func() {
			sink.Close()
			pool.Close()
			slog.Info("postgres sink stopped")
		})
		slog.Info("postgres log archival enabled", "table", table)
	}

	if cfg.S3 != nil {
		client, err := minio.New(cfg.S3.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.S3.AccessKey, cfg.S3.SecretKey, ""),
			Secure: cfg.S3.UseSSL,
		})
		if err != nil {
			slog.Error("failed to create s3 client", "error", err)
			os.Exit(1)
		}
		sink := s3sink.NewSink(client, cfg.S3.Bucket, cfg.S3.Prefix, cfg.S3.FlushEvery)
		collaborators.On(magicbus.LogChannel, sink.Listener())
		collaborators.On(string(processbus.Stop), sink.StopListener())
		teardown = append(teardown, func() {
			sink.Close()
			slog.Info("s3 sink stopped")
		})
		slog.Info("s3 log archival enabled", "bucket", cfg.S3.Bucket, "endpoint", cfg.S3.Endpoint)
	}

	if cfg.Diagnostics != nil {
		recorder = diagnostics.NewRecorder(cfg.Diagnostics.MaxRows)
		recorder.Attach(bus.Bus)
		slog.Info("transition-history recorder enabled")
	}

	if cfg.Privileges != nil {
		// Priority 77 runs after the default-priority START listeners, so
		// the HTTP server has bound its socket before privileges drop.
		collaborators.On(string(processbus.Start), opsys.DropPrivileges(cfg.Privileges.Umask, cfg.Privileges.Group, cfg.Privileges.User), magicbus.Priority(77))
	}

	for _, taskCfg := range cfg.CronTasks {
		channel := taskCfg.Channel
		task, err := tasks.NewCronTask(taskCfg.Schedule, func() { bus.Publish(channel) })
		if err != nil {
			slog.Error("invalid cron task", "name", taskCfg.Name, "error", err)
			os.Exit(1)
		}
		collaborators.On(string(processbus.Start), task.StartListener())
		collaborators.On(string(processbus.Stop), task.StopListener())
		slog.Info("cron task registered", "name", taskCfg.Name, "schedule", taskCfg.Schedule)
	}

	if cfg.HTTP != nil {
		httpServer := servers.NewServer(cfg.HTTP.Addr,
			servers.WithAllowedOrigins(cfg.HTTP.CORSOrigins...),
			servers.WithLogFunc(bus.Log),
		)
		if recorder != nil {
			httpServer.Router().Get("/diagnostics", func(w http.ResponseWriter, r *http.Request) {
				data, err := recorder.Export()
				if err != nil {
					w.WriteHeader(http.StatusInternalServerError)
					return
				}
				w.Header().Set("Content-Type", "application/vnd.apache.arrow.stream")
				w.Write(data)
			})
		}
		collaborators.On(string(processbus.Start), httpServer.StartListener())
		collaborators.On(string(processbus.Stop), httpServer.StopListener())
		slog.Info("http server plugin wired", "addr", cfg.HTTP.Addr)
	}

	collaborators.Subscribe(bus.Bus)

	sigHandler := signalhandler.New(bus, signalhandler.WithInteractive(cfg.Signals.Interactive))
	sigHandler.Start()
	defer sigHandler.Stop()

	bus.Graceful()
	slog.Info("busd running", "state", bus.State())

	bus.Block(time.Second, false)

	for _, fn := range teardown {
		fn()
	}
	slog.Info("busd shutdown complete")
}
