package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	zaplogfmt "github.com/sykesm/zap-logfmt"
	"github.com/thecodeteam/goodbye"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/simplesurance/stagecoord/internal/audit"
	"github.com/simplesurance/stagecoord/internal/buildclt"
	"github.com/simplesurance/stagecoord/internal/cfg"
	"github.com/simplesurance/stagecoord/internal/logfields"
	"github.com/simplesurance/stagecoord/internal/provider"
	"github.com/simplesurance/stagecoord/internal/provider/github"
	"github.com/simplesurance/stagecoord/internal/request"
	"github.com/simplesurance/stagecoord/internal/scmclt"
	"github.com/simplesurance/stagecoord/internal/staging"
	"github.com/simplesurance/stagecoord/internal/store"
	"github.com/simplesurance/stagecoord/internal/subscription"
	"github.com/simplesurance/stagecoord/internal/workflow"
)

const appName = "stagecoord"

var logger *zap.Logger

// Version is set via a ldflag on compilation
var Version = "unknown"

const defCheckResultEndpoint = "/api/check-results"

func exitOnErr(msg string, err error) {
	if err == nil {
		return
	}

	fmt.Fprintln(os.Stderr, "ERROR:", msg+", error:", err.Error())
	os.Exit(1)
}

func panicHandler() {
	if r := recover(); r != nil {
		logger.Info(
			"panic caught, terminating gracefully",
			zap.String("panic", fmt.Sprintf("%v", r)),
			zap.StackSkip("stacktrace", 1),
		)

		ctx, cancelFn := context.WithTimeout(context.Background(), time.Minute)
		defer cancelFn()

		goodbye.Exit(ctx, 1)
	}
}

func startHTTPSServer(listenAddr string, certFile, keyFile string, mux *http.ServeMux) {
	httpsServer := http.Server{
		Addr:    listenAddr,
		Handler: mux,
	}

	goodbye.Register(func(context.Context, os.Signal) {
		const shutdownTimeout = 30 * time.Second
		ctx, cancelFn := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelFn()

		logger.Debug(
			"terminating https server",
			logfields.Event("https_server_terminating"),
			zap.Duration("shutdown_timeout", shutdownTimeout),
		)

		err := httpsServer.Shutdown(ctx)
		if err != nil {
			logger.Warn(
				"shutting down https server failed",
				logfields.Event("https_server_termination_failed"),
				zap.Error(err),
			)
		}
	})

	go func() {
		defer panicHandler()

		logger.Info(
			"https server started",
			logfields.Event("https_server_started"),
			zap.String("listenAddr", listenAddr),
		)

		err := httpsServer.ListenAndServeTLS(certFile, keyFile)
		if errors.Is(err, http.ErrServerClosed) {
			logger.Info("https server terminated", logfields.Event("https_server_terminated"))
			return
		}

		logger.Fatal(
			"https server terminated unexpectedly",
			logfields.Event("https_server_terminated_unexpectedly"),
			zap.Error(err),
		)
	}()
}

func startHTTPServer(listenAddr string, mux *http.ServeMux) {
	httpServer := http.Server{
		Addr:    listenAddr,
		Handler: mux,
	}

	goodbye.Register(func(context.Context, os.Signal) {
		const shutdownTimeout = 30 * time.Second
		ctx, cancelFn := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelFn()

		logger.Debug(
			"terminating http server",
			logfields.Event("http_server_terminating"),
			zap.Duration("shutdown_timeout", shutdownTimeout),
		)

		err := httpServer.Shutdown(ctx)
		if err != nil {
			logger.Warn(
				"shutting down http server failed",
				logfields.Event("http_server_termination_failed"),
				zap.Error(err),
			)
		}
	})

	go func() {
		defer panicHandler()

		logger.Info(
			"http server started",
			logfields.Event("http_server_started"),
			zap.String("listenAddr", listenAddr),
		)

		err := httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			logger.Info("http server terminated", logfields.Event("http_server_terminated"))
			return
		}

		logger.Fatal(
			"http server terminated unexpectedly",
			logfields.Event("http_server_terminated_unexpectedly"),
			zap.Error(err),
		)
	}()
}

type arguments struct {
	Verbose     *bool
	ConfigFile  *string
	ShowVersion *bool
}

var args arguments

const defConfigFile = "/etc/stagecoord/config.toml"

func mustParseCommandlineParams() {
	args = arguments{
		Verbose: pflag.BoolP(
			"verbose",
			"v",
			false,
			"enable verbose logging",
		),
		ConfigFile: pflag.StringP(
			"cfg-file",
			"c",
			defConfigFile,
			"path to the stagecoord configuration file",
		),
		ShowVersion: pflag.Bool(
			"version",
			false,
			"print the version and exit",
		),
	}

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTION]\nCoordinate change requests, staging batches and SCM-triggered automation.\n", appName)
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		pflag.PrintDefaults()
	}

	pflag.Parse()
}

func mustParseCfg() *cfg.Config {
	// we use exitOnErr in this function instead of logger.Fatal() because
	// the logger is not initialized yet

	file, err := os.Open(*args.ConfigFile)
	exitOnErr("could not open configuration file", err)
	defer file.Close()

	config, err := cfg.Load(file)
	if err != nil {
		exitOnErr(fmt.Sprintf("could not load configuration file: %s", *args.ConfigFile), err)
	}

	exitOnErr("invalid configuration", config.Validate())

	return config
}

func initLogFmtLogger(config *cfg.Config, logLevel zapcore.Level) *zap.Logger {
	cfg := zapEncoderConfig(config)

	logger := zap.New(zapcore.NewCore(
		zaplogfmt.NewEncoder(cfg),
		os.Stdout,
		logLevel),
	)

	return logger
}

func zapEncoderConfig(config *cfg.Config) zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()

	cfg.LevelKey = "loglevel"
	cfg.TimeKey = config.LogTimeKey
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeDuration = zapcore.StringDurationEncoder

	return cfg
}

func mustInitZapFormatLogger(config *cfg.Config, logLevel zapcore.Level) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Sampling = nil
	cfg.EncoderConfig = zapEncoderConfig(config)
	cfg.OutputPaths = []string{"stdout"}
	cfg.Encoding = config.LogFormat
	cfg.Level = zap.NewAtomicLevelAt(logLevel)

	logger, err := cfg.Build()
	exitOnErr("could not initialize logger", err)

	return logger
}

func mustInitLogger(config *cfg.Config) {
	var logLevel zapcore.Level
	if *args.Verbose {
		logLevel = zapcore.DebugLevel
	} else {
		if err := (&logLevel).Set(config.LogLevel); err != nil {
			fmt.Fprintf(os.Stderr, "can not set log level to %q: %s \n", config.LogLevel, err)
			os.Exit(2)
		}
	}

	switch config.LogFormat {
	case "logfmt":
		logger = initLogFmtLogger(config, logLevel)
	case "console", "json":
		logger = mustInitZapFormatLogger(config, logLevel)
	default:
		fmt.Fprintf(os.Stderr, "unsupported log-format argument: %q\n", config.LogFormat)
		os.Exit(2)
	}

	logger = logger.Named("main")
	zap.ReplaceGlobals(logger)

	goodbye.Register(func(context.Context, os.Signal) {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "flushing logs failed: %s\n", err)
		}
	})
}

func hide(in string) string {
	if in == "" {
		return in
	}

	return "**hidden**"
}

// permissiveAuthorizer grants every action.
// Policy evaluation happens in the external policy service in front of the
// actor API, the process itself does not restrict actors further.
type permissiveAuthorizer struct{}

func (permissiveAuthorizer) Authorize(context.Context, string, string, string) error {
	return nil
}

func mustInitStore(config *cfg.Config) *store.DB {
	db, err := store.Open(config.Database.URL)
	exitOnErr("could not open database", err)

	ctx, cancelFn := context.WithTimeout(context.Background(), time.Minute)
	defer cancelFn()

	exitOnErr("could not reach database", db.Ping(ctx))
	exitOnErr("could not apply database schema", db.Migrate(ctx))

	goodbye.Register(func(context.Context, os.Signal) {
		if err := db.Close(); err != nil {
			logger.Warn(
				"closing database failed",
				logfields.Event("database_close_failed"),
				zap.Error(err),
			)
		}
	})

	return db
}

func mustInitSubscriptions(config *cfg.Config) *subscription.Registry {
	if config.Redis.Addr == "" {
		exitOnErr("invalid configuration", errors.New("missing field: 'redis.addr'"))
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
	})

	goodbye.Register(func(context.Context, os.Signal) {
		if err := rdb.Close(); err != nil {
			logger.Warn(
				"closing redis client failed",
				logfields.Event("redis_close_failed"),
				zap.Error(err),
			)
		}
	})

	return subscription.NewRegistry(rdb)
}

func initAuditPublisher(config *cfg.Config) *audit.Publisher {
	if len(config.Audit.Brokers) == 0 {
		return nil
	}

	publisher, err := audit.NewPublisher(config.Audit.Brokers, config.Audit.Topic)
	exitOnErr("could not create audit publisher", err)

	goodbye.Register(func(context.Context, os.Signal) {
		if err := publisher.Close(); err != nil {
			logger.Warn(
				"closing audit publisher failed",
				logfields.Event("audit_publisher_close_failed"),
				zap.Error(err),
			)
		}
	})

	return publisher
}

func main() {
	defer panicHandler()

	defer goodbye.Exit(context.Background(), 1)
	goodbye.Notify(context.Background())

	mustParseCommandlineParams()

	if *args.ShowVersion {
		fmt.Printf("%s %s\n", appName, Version)
		os.Exit(0) // nolint:gocritic // defer functions won't run
	}

	config := mustParseCfg()

	mustInitLogger(config)

	db := mustInitStore(config)
	subscriptions := mustInitSubscriptions(config)

	scmClient, err := scmclt.New(
		config.GithubAPIToken,
		scmclt.WithAPIEndpoint(config.GithubAPIEndpoint),
	)
	exitOnErr("could not create scm client", err)
	buildClient := buildclt.New(
		config.BuildBackend.URL,
		config.BuildBackend.User,
		config.BuildBackend.Password,
	)

	requestService := request.NewService(db, permissiveAuthorizer{})
	stagingService := staging.NewService(db, db, buildClient)

	workflows, err := workflow.WorkflowsFromCfg(config, &workflow.StepDeps{
		BuildClient:   buildClient,
		Reporter:      scmClient,
		Subscriptions: subscriptions,
		MergeChecker:  scmClient,
		Requests:      requestService,
	})
	exitOnErr(fmt.Sprintf("could not parse workflows from configuration file: %s", *args.ConfigFile), err)

	if len(workflows) == 0 {
		fmt.Fprintf(os.Stderr, "ERROR: config file %s does not define any workflows, nothing to do\n", *args.ConfigFile)
		os.Exit(1)
	}

	checkResultEndpoint := config.HTTPCheckResultEndpoint
	if checkResultEndpoint == "" {
		checkResultEndpoint = defCheckResultEndpoint
	}

	logger.Info(
		"loaded cfg file",
		logfields.Event("cfg_loaded"),
		zap.String("cfg_file", *args.ConfigFile),
		zap.String("http_server_listen_addr", config.HTTPListenAddr),
		zap.String("https_server_listen_addr", config.HTTPSListenAddr),
		zap.String("github_webhook_endpoint", config.HTTPGithubWebhookEndpoint),
		zap.String("check_result_endpoint", checkResultEndpoint),
		zap.String("github_webhook_secret", hide(config.GithubWebHookSecret)),
		zap.String("github_api_token", hide(config.GithubAPIToken)),
		zap.String("build_backend_url", config.BuildBackend.URL),
		zap.String("log_format", config.LogFormat),
		zap.String("log_time_key", config.LogTimeKey),
		zap.String("log_level", config.LogLevel),
		zap.String("workflows", workflows.String()),
	)

	goodbye.Register(func(_ context.Context, sig os.Signal) {
		logger.Info(fmt.Sprintf("terminating, received signal %s", sig.String()))
	})

	engineOpts := []func(*workflow.Engine){
		workflow.WithRunRoutineDeferFunc(panicHandler),
	}

	if config.StatusTargetURL != "" {
		engineOpts = append(engineOpts, workflow.WithStatusTargetURL(config.StatusTargetURL))
	}

	if publisher := initAuditPublisher(config); publisher != nil {
		engineOpts = append(engineOpts, workflow.WithAuditPublisher(publisher))
	}

	engine := workflow.NewEngine(workflows, db, scmClient, engineOpts...)

	go engine.Start()

	goodbye.Register(func(context.Context, os.Signal) {
		logger.Debug(
			"stopping workflow engine",
			logfields.Event("engine_stopping"),
		)

		engine.Stop()
	})

	gh := github.New(
		[]chan<- *provider.Event{engine.C()},
		github.WithPayloadSecret(config.GithubWebHookSecret),
		github.WithAPIEndpoint(config.GithubAPIEndpoint),
	)

	mux := http.NewServeMux()

	mux.HandleFunc(config.HTTPGithubWebhookEndpoint, gh.HTTPHandler)
	logger.Info(
		"registered github webhook event http endpoint",
		logfields.Event("github_http_handler_registered"),
		zap.String("endpoint", config.HTTPGithubWebhookEndpoint),
	)

	mux.HandleFunc(checkResultEndpoint, stagingService.CheckResultHandler())
	logger.Info(
		"registered check result ingestion http endpoint",
		logfields.Event("check_result_http_handler_registered"),
		zap.String("endpoint", checkResultEndpoint),
	)

	mux.Handle("/metrics", promhttp.Handler())

	if config.HTTPListenAddr != "" {
		startHTTPServer(config.HTTPListenAddr, mux)
	}

	if config.HTTPSListenAddr != "" {
		startHTTPSServer(
			config.HTTPSListenAddr,
			config.HTTPSCertFile,
			config.HTTPSKeyFile,
			mux,
		)
	}

	select {} // TODO: refactor this, allow clean shutdown
}
