package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/mixelka/inboxrelay/internal/monitor"
)

const (
	msgMissingFields  = "Missing required fields"
	msgChatIDRequired = "chat_id required"
	msgUserNotFound   = "User not found"
	msgInvalidChatID  = "invalid chat_id"
)

// handleRegister handles POST /register-user
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, msgMissingFields)
		return
	}

	err := s.monitors.Start(monitor.Registration{
		UserID:      int64(req.ChatID),
		MailAddress: req.Email,
		Token:       req.Token,
		Secret:      req.Password,
	})
	if errors.Is(err, monitor.ErrInvalidRegistration) {
		s.writeError(w, http.StatusBadRequest, msgMissingFields)
		return
	}
	if errors.Is(err, monitor.ErrClosed) {
		s.writeError(w, http.StatusServiceUnavailable, "Shutting down")
		return
	}
	if err != nil {
		s.logger.Error("failed to register user", "chat_id", req.ChatID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to register user")
		return
	}

	s.logger.Info("user registered", "chat_id", req.ChatID, "email", req.Email)
	s.writeJSON(w, http.StatusOK, successResponse{Success: true, Message: "User registered for monitoring"})
}

// handleStop handles POST /stop-monitoring
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	chatID, ok := s.decodeChatID(w, r)
	if !ok {
		return
	}

	s.monitors.Stop(chatID)
	s.writeJSON(w, http.StatusOK, successResponse{Success: true, Message: "Monitoring stopped"})
}

// handleStatus handles GET /status/{chat_id}
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	chatID, err := strconv.ParseInt(r.PathValue("chat_id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, msgInvalidChatID)
		return
	}

	status := s.monitors.Status(chatID)
	resp := statusResponse{
		Monitoring:   status.Active,
		MessageCount: status.MessageCount,
	}
	if status.Active {
		resp.Email = &status.MailAddress
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleActiveUsers handles GET /active-users
func (s *Server) handleActiveUsers(w http.ResponseWriter, r *http.Request) {
	active := s.monitors.ListActive()

	users := make([]activeUser, 0, len(active))
	for _, m := range active {
		users = append(users, activeUser{ChatID: m.UserID, Email: m.MailAddress, Monitoring: m.Active})
	}
	s.writeJSON(w, http.StatusOK, activeUsersResponse{Users: users, Count: len(users)})
}

// handleCheckInbox handles POST /check-inbox
func (s *Server) handleCheckInbox(w http.ResponseWriter, r *http.Request) {
	chatID, ok := s.decodeChatID(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.checkTimeout)
	defer cancel()

	err := s.monitors.ForcePoll(ctx, chatID)
	if errors.Is(err, monitor.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, msgUserNotFound)
		return
	}
	if err != nil {
		s.logger.Warn("forced check failed", "chat_id", chatID, "error", err)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to check inbox", Details: err.Error()})
		return
	}

	s.writeJSON(w, http.StatusOK, successResponse{Success: true, Message: "Inbox checked"})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:      "running",
		ActiveUsers: s.monitors.Count(),
		Uptime:      time.Since(s.started).Seconds(),
	})
}

// handleDeliveries handles GET /deliveries/{chat_id}?limit=N
func (s *Server) handleDeliveries(w http.ResponseWriter, r *http.Request) {
	if s.deliveries == nil {
		s.writeError(w, http.StatusNotFound, "Delivery journal disabled")
		return
	}

	chatID, err := strconv.ParseInt(r.PathValue("chat_id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, msgInvalidChatID)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
	}

	list, err := s.deliveries.ListDeliveries(r.Context(), chatID, limit)
	if err != nil {
		s.logger.Error("failed to list deliveries", "chat_id", chatID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to list deliveries")
		return
	}

	s.writeJSON(w, http.StatusOK, deliveriesResponse{Deliveries: list, Count: len(list)})
}

// decodeChatID reads {chat_id} from the body, answering 400 when absent
func (s *Server) decodeChatID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ChatID == 0 {
		s.writeError(w, http.StatusBadRequest, msgChatIDRequired)
		return 0, false
	}
	return int64(req.ChatID), true
}
