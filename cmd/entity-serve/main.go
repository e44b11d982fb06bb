package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/always-cache/entityserve"
	"github.com/always-cache/entityserve/pkg/compression"
)

var (
	// CLI flags
	configFilenameFlag string
	addrFlag           string
	providerFlag       string
	dbFilenameFlag     string
	verbosityTraceFlag bool
	logFilenameFlag    string

	// this is set by goreleaser
	version string
)

func init() {
	flag.StringVar(&configFilenameFlag, "config", "", "Path to config file")
	flag.StringVar(&addrFlag, "addr", "", "Address to listen on (overrides config)")
	flag.StringVar(&providerFlag, "provider", "", "Store to serve from: memory, dir, sqlite, blob, s3, redis, postgres (overrides config)")
	flag.StringVar(&dbFilenameFlag, "db", "", "SQLite file name (use 'memory' for in-memory db) or root directory for the dir provider")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	flag.StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stdout)")

	if version == "" {
		version = "DEV"
	}
}

func main() {
	flag.Parse()

	// set log level
	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}

	// set up log output to stdout
	// also output to logfile if specified
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stdout})
	if logFilenameFlag != "" {
		if logFileOutput, err := os.OpenFile(logFilenameFlag, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644); err != nil {
			log.Fatal().Err(err).Msg("Cannot open log file")
		} else {
			logOutputs = append(logOutputs, logFileOutput)
		}
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Str("version", version).Logger()

	config := Default()
	if configFilenameFlag != "" {
		var err error
		if config, err = getConfig(configFilenameFlag); err != nil {
			log.Fatal().Err(err).Msg("Cannot read config")
		}
	}
	if err := applyEnv(&config); err != nil {
		log.Fatal().Err(err).Msg("Cannot read environment")
	}
	if addrFlag != "" {
		config.Addr = addrFlag
	}
	if providerFlag != "" {
		config.Provider = providerFlag
	}
	if dbFilenameFlag != "" {
		config.DB = dbFilenameFlag
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, config, &log.Logger)
	if err != nil {
		log.Fatal().Err(err).Str("provider", config.Provider).Msg("Cannot open store")
	}
	defer closeStore()

	var compressors []compression.Compressor
	for _, name := range config.Compression {
		c := compression.ByName(name)
		if c == nil {
			log.Fatal().Str("coding", name).Msg("Unknown content-coding")
		}
		compressors = append(compressors, c)
	}

	srv := entityserve.New(entityserve.Config{
		Logger:        &log.Logger,
		Compressors:   compressors,
		MaxRangeParts: config.MaxRangeParts,
	})
	httpServer := &http.Server{
		Addr:              config.Addr,
		Handler:           newRouter(srv, throttle(store, config.RateLimit), log.Logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Info().Str("provider", config.Provider).Msgf("Serving entities on %s", config.Addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("Server failed")
	}
}
