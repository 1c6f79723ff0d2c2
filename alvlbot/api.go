package alvlbot

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	ginPprof "github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

const (
	apiHealthCheck = "/healthz"
	apiPathStatus  = "/api/status"
	apiPathTickets = "/api/tickets"
	pprofPrefix    = "/debug"

	xRequestIDHeader = "X-Request-ID"
)

var structValidator = validator.New()

func init() {
	// config structs use `binding` tags so validation reads the same
	// tags gin uses
	structValidator.SetTagName("binding")
}

// API is the read-only status HTTP server. It exposes health, bot state,
// and ticket listings; it never mutates anything.
type API struct {
	config           *APIConfig
	engine           *gin.Engine
	httpServer       *http.Server
	listener         net.Listener
	logger           *slog.Logger
	bot              *AlvlBot
	requestMetrics   map[string]int
	requestMetricsMu sync.Mutex
}

// newAPI creates the API server and wires up its routes and middleware.
func newAPI(b *AlvlBot, config *APIConfig) (*API, error) {
	if config == nil {
		return nil, fmt.Errorf("nil API config")
	}
	if !b.config.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	api := &API{
		config:         config,
		engine:         r,
		bot:            b,
		requestMetrics: map[string]int{},
	}
	api.logger = slog.New(b.logHandler).With(loggerNameKey, "api")

	api.httpServer = &http.Server{
		Addr:              config.Listen,
		Handler:           r,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}

	corsConfig := cors.DefaultConfig()
	if b.config.Development {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = []string{"http://" + config.Listen}
	}

	if !b.config.Development {
		r.Use(gin.Recovery())
	}
	r.Use(
		requestIDMiddleware(),
		ginLoggingMiddleware(),
		metricMiddleware(api),
		cors.New(corsConfig),
	)

	r.GET(apiHealthCheck, api.healthCheck)
	r.GET(apiPathStatus, api.getStatus)
	r.GET(apiPathTickets, api.getTickets)

	if b.config.Development {
		ginPprof.Register(r, pprofPrefix)
		runtime.SetMutexProfileFraction(1)
		runtime.SetBlockProfileRate(1)
	}

	return api, nil
}

func (a *API) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// botStatus is the /api/status response payload.
type botStatus struct {
	StartedAt        time.Time      `json:"started_at"`
	Uptime           string         `json:"uptime"`
	DiscordConnected bool           `json:"discord_connected"`
	Connects         int64          `json:"connects"`
	Disconnects      int64          `json:"disconnects"`
	Tables           map[string]int `json:"tables"`
	OpenTickets      int64          `json:"open_tickets"`
	RequestMetrics   map[string]int `json:"request_metrics"`
}

func (a *API) getStatus(c *gin.Context) {
	var openTickets int64
	if err := a.bot.db.DB().Model(&Ticket{}).Where(
		"closed_at = 0",
	).Count(&openTickets).Error; err != nil {
		ginContextLogger(c).Error("error counting open tickets", "error", err)
		c.AbortWithStatusJSON(
			http.StatusInternalServerError,
			gin.H{"error": "internal error"},
		)
		return
	}

	a.requestMetricsMu.Lock()
	metrics := make(map[string]int, len(a.requestMetrics))
	for k, v := range a.requestMetrics {
		metrics[k] = v
	}
	a.requestMetricsMu.Unlock()

	c.JSON(
		http.StatusOK, botStatus{
			StartedAt:        a.bot.startedAt,
			Uptime:           time.Since(a.bot.startedAt).String(),
			DiscordConnected: a.bot.discord.connected.Load(),
			Connects:         a.bot.discord.metricConnects.Load(),
			Disconnects:      a.bot.discord.metricDisconnects.Load(),
			Tables:           a.bot.store.TableSizes(),
			OpenTickets:      openTickets,
			RequestMetrics:   metrics,
		},
	)
}

func (a *API) getTickets(c *gin.Context) {
	var tickets []Ticket
	query := a.bot.db.DB().Order("created_at desc").Limit(100)
	if c.Query("open") == "true" {
		query = query.Where("closed_at = 0")
	}
	if err := query.Find(&tickets).Error; err != nil {
		ginContextLogger(c).Error("error listing tickets", "error", err)
		c.AbortWithStatusJSON(
			http.StatusInternalServerError,
			gin.H{"error": "internal error"},
		)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tickets": tickets})
}

// serve listens and serves until the server is shut down.
func (a *API) serve() error {
	if a.listener == nil {
		ln, err := net.Listen(a.config.ListenNetwork, a.config.Listen)
		if err != nil {
			return fmt.Errorf("error listening on %s: %w", a.config.Listen, err)
		}
		a.listener = ln
	}
	a.logger.Info("api listening", "listen", a.config.Listen)
	return a.httpServer.Serve(a.listener)
}

// requestIDMiddleware generates a Gin middleware function that assigns a
// unique request ID to each incoming request.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := generateRandomHexString(32)
		if err != nil {
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		c.Set(xRequestIDHeader, id)
		if requestID, exists := c.Get(xRequestIDHeader); exists {
			c.Header(xRequestIDHeader, requestID.(string))
		}
		c.Next()
	}
}

// ginContextLogger returns the slog.Logger from the given gin context,
// or, if it doesn't exist, creates a logger with request details included,
// and sets the logger in the context so the next call to ginContextLogger
// will return the new logger.
func ginContextLogger(c *gin.Context) *slog.Logger {
	var requestLogger *slog.Logger
	logger, ok := c.Get(string(loggerContextKey))
	if ok {
		requestLogger, ok = logger.(*slog.Logger)
		if ok {
			return requestLogger
		}
	}
	requestLogger = slog.Default()
	requestID, _ := c.Get(xRequestIDHeader)
	path := c.Request.URL.Path
	raw := c.Request.URL.RawQuery
	if raw != "" {
		path = path + "?" + raw
	}

	requestLogger = requestLogger.With(
		slog.Group(
			"request",
			"method", c.Request.Method,
			"path", path,
			"remote_addr", c.Request.RemoteAddr,
			"remote_ip", c.RemoteIP(),
			"user_agent", c.Request.UserAgent(),
			"referer", c.Request.Referer(),
		),
		slog.Any(xRequestIDHeader, requestID),
	)
	c.Set(string(loggerContextKey), requestLogger)
	return requestLogger
}

// ginLoggingMiddleware returns a Gin middleware function for logging HTTP
// requests, including duration and response status.
func ginLoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestLogger := ginContextLogger(c)
		c.Next()
		latency := time.Since(start)

		var errs []error
		for _, e := range c.Errors.ByType(gin.ErrorTypePrivate) {
			errs = append(errs, *e)
		}
		if len(errs) > 0 {
			requestLogger.Error(
				fmt.Sprintf(
					"%s %s finished with errors",
					c.Request.Method,
					c.Request.URL,
				),
				"duration", latency,
				"errors", errs,
				slog.Group(
					"response",
					"status_code", c.Writer.Status(),
					"body_size", c.Writer.Size(),
				),
			)
		} else {
			requestLogger.Info(
				fmt.Sprintf("%s %s finished", c.Request.Method, c.Request.URL),
				"duration", latency,
				slog.Group(
					"response",
					"status_code", c.Writer.Status(),
					"body_size", c.Writer.Size(),
				),
			)
		}
	}
}

// metricMiddleware returns a Gin middleware function that increments the
// request count for each unique combination of method and path.
func metricMiddleware(a *API) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer c.Next()

		a.requestMetricsMu.Lock()
		defer a.requestMetricsMu.Unlock()

		key := fmt.Sprintf("%s %s", c.Request.Method, c.Request.URL.Path)
		a.requestMetrics[key]++
	}
}
