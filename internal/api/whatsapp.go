package api

import (
	"io"
	"net/http"

	"github.com/jmbento/omnicall-ai/internal/whatsapp"
)

const maxWebhookBytes = 1 << 20

func (s *Server) handleWhatsAppVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	challenge, ok := whatsapp.Verify(q.Get("hub.mode"), q.Get("hub.verify_token"), q.Get("hub.challenge"), s.deps.VerifyToken)
	if !ok {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, challenge)
}

func (s *Server) handleWhatsAppWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		Error(w, http.StatusBadRequest, "could not read body")
		return
	}
	msgs, err := whatsapp.ParseWebhook(body)
	if err != nil {
		s.logger.Warn("malformed webhook", "error", err)
		Error(w, http.StatusInternalServerError, "Processing failed")
		return
	}
	if len(msgs) == 0 {
		JSON(w, http.StatusOK, map[string]string{"status": "no_messages"})
		return
	}
	if s.deps.WhatsApp == nil {
		Error(w, http.StatusInternalServerError, "Processing failed")
		return
	}
	if err := s.deps.WhatsApp.Handle(r.Context(), msgs); err != nil {
		s.logger.Error("whatsapp processing failed", "error", err)
		Error(w, http.StatusInternalServerError, "Processing failed")
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"success": true})
}
