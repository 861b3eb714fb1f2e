// ABOUTME: Administrative HTTP handlers for cache, scheduler, and monitor control
// ABOUTME: Exposes stats, clear, manual sync, and monitor lifecycle operations
package web

import (
	"context"
	"net/http"
)

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	accountID := r.PathValue("accountID")
	writeData(w, http.StatusOK, s.cache.Stats(accountID))
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("account_id")
	if accountID == "" {
		s.cache.ClearAll()
		writeData(w, http.StatusOK, map[string]string{"cleared": "all"})
		return
	}
	s.cache.Clear(accountID)
	writeData(w, http.StatusOK, map[string]string{"cleared": accountID})
}

func (s *Server) handleSchedulerStatus(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, s.sched.Status())
}

func (s *Server) handleSchedulerSync(w http.ResponseWriter, r *http.Request) {
	result := s.sched.Sync(r.Context())
	// A skip is a non-fatal outcome, not an error.
	writeData(w, http.StatusOK, result)
}

func (s *Server) handleMonitorStatus(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, s.mon.Status())
}

func (s *Server) handleMonitorStart(w http.ResponseWriter, r *http.Request) {
	s.mon.Start(context.WithoutCancel(r.Context()))
	writeData(w, http.StatusOK, s.mon.Status())
}

func (s *Server) handleMonitorStop(w http.ResponseWriter, _ *http.Request) {
	s.mon.Stop()
	writeData(w, http.StatusOK, s.mon.Status())
}

func (s *Server) handleMonitorReset(w http.ResponseWriter, _ *http.Request) {
	s.mon.Reset()
	writeData(w, http.StatusOK, s.mon.Status())
}
