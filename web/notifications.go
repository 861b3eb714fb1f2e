// ABOUTME: Notification-config CRUD handlers
// ABOUTME: Mutates recipients, contractor mappings, trigger messages, and the full config document
package web

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/cockroachdb/errors"

	"github.com/harperreed/fieldwatch/notify"
)

func (s *Server) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, s.engine.Config())
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var cfg notify.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(err, "decode config"))
		return
	}
	if err := s.engine.Update(&cfg); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeData(w, http.StatusOK, s.engine.Config())
}

type recipientRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleAddRecipient(w http.ResponseWriter, r *http.Request) {
	var req recipientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(err, "decode request body"))
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, errors.New("email is required"))
		return
	}
	if err := s.engine.AddRecipient(req.Email); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeData(w, http.StatusOK, s.engine.Config())
}

func (s *Server) handleRemoveRecipient(w http.ResponseWriter, r *http.Request) {
	email, err := url.PathUnescape(r.PathValue("email"))
	if err != nil || email == "" {
		writeError(w, http.StatusBadRequest, errors.New("email is required"))
		return
	}
	if err := s.engine.RemoveRecipient(email); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeData(w, http.StatusOK, s.engine.Config())
}

func (s *Server) handleSetContractor(w http.ResponseWriter, r *http.Request) {
	name, err := url.PathUnescape(r.PathValue("name"))
	if err != nil || name == "" {
		writeError(w, http.StatusBadRequest, errors.New("contractor name is required"))
		return
	}

	var req recipientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(err, "decode request body"))
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, errors.New("email is required"))
		return
	}
	if err := s.engine.SetContractorEmail(name, req.Email); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeData(w, http.StatusOK, s.engine.Config())
}

func (s *Server) handleRemoveContractor(w http.ResponseWriter, r *http.Request) {
	name, err := url.PathUnescape(r.PathValue("name"))
	if err != nil || name == "" {
		writeError(w, http.StatusBadRequest, errors.New("contractor name is required"))
		return
	}
	if err := s.engine.RemoveContractorEmail(name); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeData(w, http.StatusOK, s.engine.Config())
}

type messageRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleSetMessage(w http.ResponseWriter, r *http.Request) {
	trigger := r.PathValue("trigger")
	if !notify.ValidTrigger(trigger) {
		writeError(w, http.StatusBadRequest, errors.Newf("unknown trigger type %q", trigger))
		return
	}

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(err, "decode request body"))
		return
	}
	if err := s.engine.SetMessage(notify.TriggerType(trigger), req.Message); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeData(w, http.StatusOK, s.engine.Config())
}

func (s *Server) handleClearMessage(w http.ResponseWriter, r *http.Request) {
	trigger := r.PathValue("trigger")
	if !notify.ValidTrigger(trigger) {
		writeError(w, http.StatusBadRequest, errors.Newf("unknown trigger type %q", trigger))
		return
	}
	if err := s.engine.ClearMessage(notify.TriggerType(trigger)); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeData(w, http.StatusOK, s.engine.Config())
}

func (s *Server) handleNotificationLog(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotImplemented, errors.New("notification log store not configured"))
		return
	}

	accountID := r.PathValue("accountID")
	records, err := s.store.ListNotifications(accountID, 100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeData(w, http.StatusOK, records)
}
