package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/jmbento/omnicall-ai/internal/cartridge"
	"github.com/jmbento/omnicall-ai/internal/llm"
	"github.com/jmbento/omnicall-ai/internal/models"
)

// chatCredits is charged per answered text message.
const chatCredits = 1

type chatRequest struct {
	UserID      string `json:"userId"`
	CartridgeID string `json:"cartridgeId"`
	SessionID   string `json:"sessionId"`
	Message     string `json:"message"`
	Analyze     bool   `json:"analyze"`
}

type chatResponse struct {
	SessionID string      `json:"sessionId"`
	Reply     string      `json:"reply"`
	Intent    *llm.Intent `json:"intent,omitempty"`
	Balance   int         `json:"balance"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.UserID == "" || req.Message == "" {
		Error(w, http.StatusBadRequest, "userId and message are required")
		return
	}
	if req.CartridgeID == "" {
		req.CartridgeID = cartridge.DefaultID
	}
	if _, err := s.deps.Catalog.Get(req.CartridgeID); err != nil {
		s.fail(w, r, err, "Failed to load cartridge")
		return
	}

	ctx := r.Context()
	if err := s.deps.Credits.EnsureCanStart(ctx, req.UserID); err != nil {
		s.fail(w, r, err, "Failed to check credits")
		return
	}

	if req.SessionID == "" {
		id, err := s.deps.Store.CreateSession(ctx, req.UserID, req.CartridgeID, models.ChannelWeb)
		if err != nil {
			s.fail(w, r, err, "Failed to create session")
			return
		}
		req.SessionID = id
		s.recordCall(ctx, req)
	}

	s.saveMessage(ctx, req.SessionID, models.RoleUser, req.Message)

	reply, err := s.deps.Chat.Reply(ctx, req.CartridgeID, req.SessionID, req.Message)
	if err != nil {
		s.fail(w, r, err, "Failed to generate reply")
		return
	}
	s.saveMessage(ctx, req.SessionID, models.RoleModel, reply)

	resp := chatResponse{SessionID: req.SessionID, Reply: reply}
	if req.Analyze {
		intent := s.deps.Chat.Intent(ctx, req.CartridgeID, req.Message)
		resp.Intent = &intent
	}

	credit, err := s.deps.Credits.Deduct(ctx, req.UserID, chatCredits)
	if err != nil {
		s.logger.Warn("deduct chat credit failed", "user", req.UserID, "error", err)
		if credit, err = s.deps.Credits.Balance(ctx, req.UserID); err != nil {
			s.logger.Warn("read balance failed", "user", req.UserID, "error", err)
		}
	}
	resp.Balance = credit.Balance
	JSON(w, http.StatusOK, resp)
}

func (s *Server) recordCall(ctx context.Context, req chatRequest) {
	_, err := s.deps.Store.CreateCall(ctx, models.CallInput{
		UserID:      req.UserID,
		SessionID:   req.SessionID,
		CartridgeID: req.CartridgeID,
		Channel:     models.ChannelWeb,
		CreditsUsed: chatCredits,
	})
	if err != nil {
		s.logger.Warn("record call failed", "session", req.SessionID, "error", err)
	}
}

func (s *Server) saveMessage(ctx context.Context, sessionID string, role models.Role, content string) {
	if err := s.deps.Store.InsertMessage(ctx, sessionID, role, content); err != nil {
		s.logger.Warn("save message failed", "session", sessionID, "role", role, "error", err)
	}
}
