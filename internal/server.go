package internal

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/2beens/fittracker/internal/config"
	"github.com/2beens/fittracker/internal/fitness"
	"github.com/2beens/fittracker/internal/gemini"
	"github.com/2beens/fittracker/internal/middleware"
	"github.com/2beens/fittracker/internal/misc"
	"github.com/2beens/fittracker/internal/telemetry/metrics"
	"github.com/2beens/fittracker/internal/telemetry/tracing"
	"github.com/2beens/fittracker/pkg"

	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redis_rate/v9"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Server struct {
	httpServer        *http.Server
	metricsHttpServer *http.Server
	versionInfo       string

	config        *config.Config
	storage       *fitness.Storage
	geminiClient  *gemini.Client // nil when no API key is configured
	quotesManager *misc.QuotesManager

	redisClient *redis.Client

	// telemetry
	metricsManager *metrics.Manager
	promRegistry   *prometheus.Registry
	otelShutdown   func()
}

type NewServerParams struct {
	Config                  *config.Config
	GeminiAPIKey            string
	VersionInfo             string
	RedisPassword           string
	HoneycombTracingEnabled bool
}

func NewServer(
	ctx context.Context,
	params NewServerParams,
) (*Server, error) {
	storage, err := fitness.NewStorage(params.Config.DataDirPath)
	if err != nil {
		return nil, fmt.Errorf("new storage: %w", err)
	}

	promRegistry := metrics.SetupPrometheus()
	metricsManager := metrics.NewManager("backend", "main", promRegistry)
	metricsManager.GaugeLifeSignal.Set(0) // will be set to 1 when all is set and ran

	rdb := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(params.Config.RedisHost, params.Config.RedisPort),
		Password: params.RedisPassword,
		DB:       0, // use default DB
	})

	rdbStatus := rdb.Ping(ctx)
	if err := rdbStatus.Err(); err != nil {
		log.Errorf("--> failed to ping redis: %s", err)
	} else {
		log.Debugf("redis ping: %s", rdbStatus.Val())
	}

	// use honeycomb distro to setup OpenTelemetry SDK
	otelShutdown, err := tracing.HoneycombSetup(params.HoneycombTracingEnabled, "fittracker-backend", rdb)
	if err != nil {
		return nil, err
	}

	tracedHttpClient := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   time.Minute, // model calls can be slow
	}

	// the service starts degraded without the API key: generation endpoints
	// return 503, everything else works
	var geminiClient *gemini.Client
	geminiClient, err = gemini.NewClient(params.GeminiAPIKey, tracedHttpClient)
	if err != nil {
		log.Errorf("gemini client not created, workout generation disabled: %s", err)
		geminiClient = nil
	}

	s := &Server{
		config:       params.Config,
		storage:      storage,
		geminiClient: geminiClient,
		versionInfo:  params.VersionInfo,

		redisClient: rdb,

		// telemetry
		metricsManager: metricsManager,
		promRegistry:   promRegistry,
		otelShutdown:   otelShutdown,
	}

	quotesCsvFile, err := os.Open(params.Config.QuotesCsvPath)
	if err != nil {
		return nil, fmt.Errorf("open quotes file: %w", err)
	}
	defer func() {
		if err := quotesCsvFile.Close(); err != nil {
			log.Warnf("close quotes csv file: %s", err)
		}
	}()

	s.quotesManager, err = misc.NewQuoteManager(csv.NewReader(quotesCsvFile))
	if err != nil {
		return nil, fmt.Errorf("failed to create quote manager: %s", err)
	}

	return s, nil
}

func (s *Server) routerSetup() (*mux.Router, error) {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware("main-router"))

	miscHandler := misc.NewHandler(s.quotesManager, s.versionInfo)
	miscHandler.SetupRoutes(r)

	r.HandleFunc("/health", s.handleHealth).Methods("GET").Name("health")

	fitnessHandler := fitness.NewHandler(s.storage)
	fitnessHandler.SetupRoutes(r)

	reqRateLimiter := redis_rate.NewLimiter(s.redisClient)
	var geminiHandler *gemini.Handler
	if s.geminiClient != nil {
		geminiHandler = gemini.NewHandler(
			gemini.NewGenerator(s.geminiClient),
			s.storage,
			s.metricsManager,
		)
	} else {
		geminiHandler = gemini.NewHandler(nil, s.storage, s.metricsManager)
	}
	geminiHandler.SetupRoutes(r, reqRateLimiter, s.config.GenerateRateLimitAllowedPerMin)

	// all the rest - unhandled paths
	r.HandleFunc("/{unknown}", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}).Methods("GET", "POST", "PUT", "OPTIONS").Name("unknown")

	r.Use(middleware.PanicRecovery(s.metricsManager))
	r.Use(middleware.LogRequest())
	r.Use(middleware.RequestMetrics(s.metricsManager))
	r.Use(middleware.Cors())
	r.Use(middleware.DrainAndCloseRequest())

	return r, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	geminiStatus := "ok"
	if s.geminiClient == nil {
		geminiStatus = "not configured"
	}
	pkg.WriteJSONResponseOK(w, fmt.Sprintf(
		`{"status":"ok","storage":"ok","gemini":"%s"}`,
		geminiStatus,
	))
}

func (s *Server) Serve(_ context.Context, host string, port int) {
	router, err := s.routerSetup()
	if err != nil {
		log.Fatalf("failed to setup router: %s", err)
	}

	ipAndPort := net.JoinHostPort(host, strconv.Itoa(port))
	s.httpServer = &http.Server{
		Handler:      router,
		Addr:         ipAndPort,
		WriteTimeout: 2 * time.Minute, // generation requests wait on the model
		ReadTimeout:  time.Minute,
		ConnState:    s.connStateMetrics,
	}

	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.HandlerFor(
		s.promRegistry,
		promhttp.HandlerOpts{},
	))
	metricsAddr := net.JoinHostPort(s.config.PrometheusMetricsHost, s.config.PrometheusMetricsPort)
	s.metricsHttpServer = &http.Server{
		Addr:    metricsAddr,
		Handler: metricsRouter,
	}

	go func() {
		log.Infof(" > server listening on: [%s]", ipAndPort)
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("main service, listen and serve: %s", err)
		}
	}()

	go func() {
		log.Debugf(" > metrics listening on: [%s]", metricsAddr)
		err := s.metricsHttpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("metrics service, listen and serve: %s", err)
		}
	}()

	s.metricsManager.GaugeLifeSignal.Set(1)
}

func (s *Server) GracefulShutdown() {
	log.Debug("graceful shutdown initiated ...")

	s.metricsManager.GaugeLifeSignal.Set(0)

	s.otelShutdown()
	log.Trace("otel shut down ...")

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			log.Errorf("failed to close redis client conn: %s", err)
		}
	}

	if ok := sentry.Flush(5 * time.Second); ok {
		log.Debugf("sentry flush ok: %t", ok)
	}

	maxWaitDuration := time.Second * 15
	ctx, timeoutCancel := context.WithTimeout(context.Background(), maxWaitDuration)
	defer timeoutCancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Error(" >>> failed to gracefully shutdown http server")
	}
	log.Warnln("server shut down")

	if err := s.metricsHttpServer.Shutdown(ctx); err != nil {
		log.Error(" >>> failed to gracefully shutdown metrics http server")
	}
	log.Warnln("metrics server shut down")
}

func (s *Server) connStateMetrics(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		s.metricsManager.GaugeRequests.Add(1)
	case http.StateClosed:
		s.metricsManager.GaugeRequests.Add(-1)
	default:
		// do nothing
	}
}
