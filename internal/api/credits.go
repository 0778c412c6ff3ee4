package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/jmbento/omnicall-ai/internal/models"
)

const defaultCallLimit = 50

type balanceResponse struct {
	UserID    string    `json:"userId"`
	Balance   int       `json:"balance"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (s *Server) handleGetCredits(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		Error(w, http.StatusBadRequest, "userId is required")
		return
	}
	credit, err := s.deps.Credits.Balance(r.Context(), userID)
	if err != nil {
		s.fail(w, r, err, "Failed to fetch credits")
		return
	}
	JSON(w, http.StatusOK, balanceResponse{UserID: userID, Balance: credit.Balance, UpdatedAt: credit.UpdatedAt})
}

type creditsRequest struct {
	UserID string `json:"userId"`
	Action string `json:"action"`
	Amount int    `json:"amount"`
	Reason string `json:"reason"`
}

func (s *Server) handlePostCredits(w http.ResponseWriter, r *http.Request) {
	var req creditsRequest
	if err := decodeJSON(w, r, &req); err != nil || req.UserID == "" {
		Error(w, http.StatusBadRequest, "userId and amount are required")
		return
	}
	switch req.Action {
	case "add":
		credit, err := s.deps.Credits.Add(r.Context(), req.UserID, req.Amount)
		if err != nil {
			s.fail(w, r, err, "Failed to add credits")
			return
		}
		JSON(w, http.StatusOK, map[string]any{
			"success":      true,
			"creditsAdded": req.Amount,
			"newBalance":   credit.Balance,
		})
	case "deduct":
		s.deduct(w, r, req)
	default:
		Error(w, http.StatusBadRequest, "Invalid action")
	}
}

func (s *Server) handleDeductCredits(w http.ResponseWriter, r *http.Request) {
	var req creditsRequest
	if err := decodeJSON(w, r, &req); err != nil || req.UserID == "" {
		Error(w, http.StatusBadRequest, "userId and amount are required")
		return
	}
	s.deduct(w, r, req)
}

func (s *Server) deduct(w http.ResponseWriter, r *http.Request, req creditsRequest) {
	credit, err := s.deps.Credits.Deduct(r.Context(), req.UserID, req.Amount)
	if err != nil {
		if statusFor(err) == http.StatusPaymentRequired {
			Error(w, http.StatusPaymentRequired, "Insufficient credits")
			return
		}
		s.fail(w, r, err, "Failed to deduct credits")
		return
	}
	JSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"deducted":   req.Amount,
		"reason":     req.Reason,
		"newBalance": credit.Balance,
	})
}

type callStats struct {
	Total         int            `json:"total"`
	TotalDuration int            `json:"totalDuration"`
	AvgDuration   int            `json:"avgDuration"`
	CreditsUsed   int            `json:"creditsUsed"`
	ByChannel     map[string]int `json:"byChannel"`
}

type callsResponse struct {
	Calls []models.Call `json:"calls"`
	Stats callStats     `json:"stats"`
}

func (s *Server) handleListCalls(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := q.Get("userId")
	if userID == "" {
		Error(w, http.StatusBadRequest, "userId is required")
		return
	}
	limit := defaultCallLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	calls, err := s.deps.Store.ListCalls(r.Context(), userID, limit)
	if err != nil {
		s.fail(w, r, err, "Failed to fetch calls")
		return
	}
	JSON(w, http.StatusOK, callsResponse{Calls: calls, Stats: summarize(calls)})
}

func summarize(calls []models.Call) callStats {
	stats := callStats{Total: len(calls), ByChannel: map[string]int{}}
	for _, c := range calls {
		stats.TotalDuration += c.DurationSeconds
		stats.CreditsUsed += c.CreditsUsed
		stats.ByChannel[string(c.Channel)]++
	}
	if stats.Total > 0 {
		stats.AvgDuration = stats.TotalDuration / stats.Total
	}
	return stats
}

type createCallRequest struct {
	UserID          string `json:"userId"`
	SessionID       string `json:"sessionId"`
	CartridgeID     string `json:"cartridgeId"`
	Channel         string `json:"channel"`
	CreditsUsed     int    `json:"creditsUsed"`
	DurationSeconds int    `json:"durationSeconds"`
}

func (s *Server) handleCreateCall(w http.ResponseWriter, r *http.Request) {
	var req createCallRequest
	if err := decodeJSON(w, r, &req); err != nil || req.UserID == "" || req.CartridgeID == "" {
		Error(w, http.StatusBadRequest, "userId and cartridgeId are required")
		return
	}
	channel := models.Channel(req.Channel)
	if channel == "" {
		channel = models.ChannelWeb
	}
	id, err := s.deps.Store.CreateCall(r.Context(), models.CallInput{
		UserID:          req.UserID,
		SessionID:       req.SessionID,
		CartridgeID:     req.CartridgeID,
		Channel:         channel,
		CreditsUsed:     req.CreditsUsed,
		DurationSeconds: req.DurationSeconds,
	})
	if err != nil {
		s.fail(w, r, err, "Failed to create call")
		return
	}
	JSON(w, http.StatusCreated, map[string]any{"success": true, "id": id})
}
