// ABOUTME: HTTP API server exposing cache, scheduler, monitor, and notification-config operations
// ABOUTME: Thin pass-through over the core components with a uniform JSON envelope
package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/harperreed/fieldwatch/cache"
	"github.com/harperreed/fieldwatch/db"
	"github.com/harperreed/fieldwatch/monitor"
	"github.com/harperreed/fieldwatch/notify"
	"github.com/harperreed/fieldwatch/scheduler"
	"github.com/harperreed/fieldwatch/upstream"
)

// bulkAccountLimit caps the number of account ids accepted per bulk job-list
// call.
const bulkAccountLimit = 100

// Server wires the HTTP boundary to the core components.
type Server struct {
	cache   *cache.SyncCache
	client  upstream.Client
	sched   *scheduler.Scheduler
	mon     *monitor.Monitor
	engine  *notify.Engine
	store   *db.JobStore // optional
	log     *zap.Logger
	httpSrv *http.Server
}

// NewServer assembles the API server. store may be nil when no database is
// configured.
func NewServer(c *cache.SyncCache, client upstream.Client, sched *scheduler.Scheduler,
	mon *monitor.Monitor, engine *notify.Engine, store *db.JobStore, log *zap.Logger) *Server {
	return &Server{
		cache:  c,
		client: client,
		sched:  sched,
		mon:    mon,
		engine: engine,
		store:  store,
		log:    log.Named("web"),
	}
}

// Routes builds the API mux.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("GET /api/jobs/{accountID}", s.handleListJobs)
	mux.HandleFunc("POST /api/jobs/bulk", s.handleBulkJobs)
	mux.HandleFunc("GET /api/jobs/{accountID}/{jobID}", s.handleJobDetail)
	mux.HandleFunc("GET /api/jobs/{accountID}/{jobID}/geometry", s.handleGeometry)
	mux.HandleFunc("GET /api/jobs/{accountID}/{jobID}/history", s.handleJobHistory)

	mux.HandleFunc("GET /api/cache/stats/{accountID}", s.handleCacheStats)
	mux.HandleFunc("POST /api/cache/clear", s.handleCacheClear)

	mux.HandleFunc("GET /api/scheduler/status", s.handleSchedulerStatus)
	mux.HandleFunc("POST /api/scheduler/sync", s.handleSchedulerSync)

	mux.HandleFunc("GET /api/notifications/config", s.handleGetConfig)
	mux.HandleFunc("PUT /api/notifications/config", s.handlePutConfig)
	mux.HandleFunc("POST /api/notifications/recipients", s.handleAddRecipient)
	mux.HandleFunc("DELETE /api/notifications/recipients/{email}", s.handleRemoveRecipient)
	mux.HandleFunc("PUT /api/notifications/contractors/{name}", s.handleSetContractor)
	mux.HandleFunc("DELETE /api/notifications/contractors/{name}", s.handleRemoveContractor)
	mux.HandleFunc("PUT /api/notifications/messages/{trigger}", s.handleSetMessage)
	mux.HandleFunc("DELETE /api/notifications/messages/{trigger}", s.handleClearMessage)
	mux.HandleFunc("GET /api/notifications/log/{accountID}", s.handleNotificationLog)

	mux.HandleFunc("GET /api/monitor/status", s.handleMonitorStatus)
	mux.HandleFunc("POST /api/monitor/start", s.handleMonitorStart)
	mux.HandleFunc("POST /api/monitor/stop", s.handleMonitorStop)
	mux.HandleFunc("POST /api/monitor/reset", s.handleMonitorReset)

	return s.logRequests(mux)
}

// Start serves the API until the listener fails or Shutdown is called.
func (s *Server) Start(port int) error {
	s.httpSrv = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.Routes(),
	}
	s.log.Info("http server listening", zap.Int("port", port))
	return s.httpSrv.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, map[string]string{"status": "ok"})
}
