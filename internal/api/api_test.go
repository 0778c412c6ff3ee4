package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmbento/omnicall-ai/internal/llm"
	"github.com/jmbento/omnicall-ai/internal/models"
	"github.com/jmbento/omnicall-ai/internal/service"
	"github.com/jmbento/omnicall-ai/internal/store"
)

const hotelDoc = `# Grand Hotel

Breakfast is served every morning from seven until eleven in the main hall.

The swimming pool on the roof is open to guests from nine in the morning until ten at night.`

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUploadAndRetrieve(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.upload(t, map[string]string{"userId": "u1", "cartridgeId": "h-concierge-1"}, "hotel.md", hotelDoc)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	up := decode[map[string]any](t, rec)
	assert.Equal(t, true, up["success"])
	assert.Equal(t, "hotel.md", up["filename"])
	assert.Equal(t, "h-concierge-1", up["cartridgeId"])

	rec = ts.do(t, http.MethodGet, "/api/embeddings?cartridgeId=h-concierge-1&query=swimming+pool+on+the+roof", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[retrieveResponse](t, rec)
	require.NotEmpty(t, got.Chunks)
	assert.Contains(t, got.Chunks[0].Text, "swimming pool")
	assert.Contains(t, got.Context, "swimming pool")

	// Retrieval is scoped to the cartridge.
	rec = ts.do(t, http.MethodGet, "/api/embeddings?cartridgeId=f-bank-1&query=swimming+pool", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[retrieveResponse](t, rec).Chunks)
}

func TestUploadValidation(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.upload(t, map[string]string{"userId": "u1"}, "hotel.md", hotelDoc)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.upload(t, map[string]string{"userId": "u1", "cartridgeId": "h-concierge-1"}, "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.upload(t, map[string]string{"userId": "u1", "cartridgeId": "h-concierge-1"}, "empty.md", "   ")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRetrieveValidation(t *testing.T) {
	ts := newTestServer(t)

	for _, target := range []string{
		"/api/embeddings?query=pool",
		"/api/embeddings?cartridgeId=h-concierge-1",
		"/api/embeddings?cartridgeId=h-concierge-1&query=pool&limit=zero",
	} {
		rec := ts.do(t, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestAsyncUploadJob(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.upload(t, map[string]string{"userId": "u1", "cartridgeId": "h-concierge-1", "async": "true"}, "hotel.md", hotelDoc)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	up := decode[struct {
		Job struct {
			ID string `json:"id"`
		} `json:"job"`
	}](t, rec)
	require.NotEmpty(t, up.Job.ID)

	require.Eventually(t, func() bool {
		rec := ts.do(t, http.MethodGet, "/api/jobs/"+up.Job.ID, nil)
		if rec.Code != http.StatusOK {
			return false
		}
		return decode[map[string]any](t, rec)["status"] == string(service.JobStatusCompleted)
	}, 2*time.Second, 10*time.Millisecond)

	rec = ts.do(t, http.MethodGet, "/api/jobs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 1)

	rec = ts.do(t, http.MethodGet, "/api/jobs/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCredits(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/credits?userId=u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[balanceResponse](t, rec).Balance)

	rec = ts.do(t, http.MethodPost, "/api/credits", map[string]any{"userId": "u1", "action": "add", "amount": 5})
	require.Equal(t, http.StatusOK, rec.Code)
	added := decode[map[string]any](t, rec)
	assert.Equal(t, true, added["success"])
	assert.EqualValues(t, 5, added["creditsAdded"])
	assert.EqualValues(t, 5, added["newBalance"])

	rec = ts.do(t, http.MethodPatch, "/api/credits", map[string]any{"userId": "u1", "amount": 2, "reason": "call"})
	require.Equal(t, http.StatusOK, rec.Code)
	deducted := decode[map[string]any](t, rec)
	assert.EqualValues(t, 2, deducted["deducted"])
	assert.Equal(t, "call", deducted["reason"])
	assert.EqualValues(t, 3, deducted["newBalance"])

	rec = ts.do(t, http.MethodPatch, "/api/credits", map[string]any{"userId": "u1", "amount": 10})
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, "Insufficient credits", decode[map[string]string](t, rec)["error"])

	rec = ts.do(t, http.MethodPost, "/api/credits", map[string]any{"userId": "u1", "action": "deduct", "amount": 1})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decode[map[string]any](t, rec)["newBalance"])

	rec = ts.do(t, http.MethodPost, "/api/credits", map[string]any{"userId": "u1", "action": "gift", "amount": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/credits", map[string]any{"userId": "u1", "action": "add", "amount": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/credits", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCalls(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/calls", map[string]any{"userId": "u1", "cartridgeId": "h-concierge-1", "durationSeconds": 30, "creditsUsed": 1})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = ts.do(t, http.MethodPost, "/api/calls", map[string]any{"userId": "u1", "cartridgeId": "f-bank-1", "channel": "voice", "durationSeconds": 90, "creditsUsed": 2})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = ts.do(t, http.MethodPost, "/api/calls", map[string]any{"userId": "u1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/calls?userId=u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[callsResponse](t, rec)
	require.Len(t, got.Calls, 2)
	assert.Equal(t, 2, got.Stats.Total)
	assert.Equal(t, 120, got.Stats.TotalDuration)
	assert.Equal(t, 60, got.Stats.AvgDuration)
	assert.Equal(t, 3, got.Stats.CreditsUsed)
	assert.Equal(t, map[string]int{"web": 1, "voice": 1}, got.Stats.ByChannel)

	rec = ts.do(t, http.MethodGet, "/api/calls?userId=u1&limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[callsResponse](t, rec).Calls, 1)
}

func TestCartridges(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/cartridges", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]models.Cartridge](t, rec)
	require.NotEmpty(t, list)
	assert.Equal(t, "h-concierge-1", list[0].ID)

	rec = ts.do(t, http.MethodGet, "/api/cartridges/f-bank-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.VerticalBank, decode[models.Cartridge](t, rec).Vertical)

	rec = ts.do(t, http.MethodGet, "/api/cartridges/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChat(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	rec := ts.do(t, http.MethodPost, "/api/chat", map[string]any{"userId": "u1", "cartridgeId": "h-concierge-1", "message": "Any rooms?"})
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	_, err := ts.store.AddCredits(ctx, "u1", 2)
	require.NoError(t, err)

	rec = ts.do(t, http.MethodPost, "/api/chat", map[string]any{"userId": "u1", "cartridgeId": "h-concierge-1", "message": "  Any rooms?  "})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[chatResponse](t, rec)
	assert.Equal(t, "We have rooms available.", got.Reply)
	assert.Equal(t, 1, got.Balance)
	require.NotEmpty(t, got.SessionID)

	rec = ts.do(t, http.MethodGet, "/api/sessions/"+got.SessionID+"/messages", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	msgs := decode[struct {
		Messages []models.Message `json:"messages"`
	}](t, rec).Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleUser, msgs[0].Role)
	assert.Equal(t, "Any rooms?", msgs[0].Content)
	assert.Equal(t, models.RoleModel, msgs[1].Role)

	// Continuing the session does not record a second call.
	rec = ts.do(t, http.MethodPost, "/api/chat", map[string]any{"userId": "u1", "cartridgeId": "h-concierge-1", "sessionId": got.SessionID, "message": "Thanks"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[chatResponse](t, rec).Balance)

	calls, err := ts.store.ListCalls(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, models.ChannelWeb, calls[0].Channel)
}

func TestChatValidation(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/chat", map[string]any{"userId": "u1", "message": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/chat", map[string]any{"userId": "u1", "cartridgeId": "nope", "message": "hi"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWhatsAppVerify(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/whatsapp?hub.mode=subscribe&hub.verify_token=secret&hub.challenge=42", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "42", rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/whatsapp?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=42", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWhatsAppWebhook(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/whatsapp", map[string]any{"entry": []any{}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no_messages", decode[map[string]string](t, rec)["status"])

	_, err := ts.store.AddCredits(context.Background(), "whatsapp_5511999", 1)
	require.NoError(t, err)

	payload := map[string]any{"entry": []any{map[string]any{"changes": []any{map[string]any{"value": map[string]any{
		"messages": []any{map[string]any{"from": "5511999", "id": "wamid.1", "type": "text", "text": map[string]any{"body": "Do you have rooms?"}}},
	}}}}}}
	rec = ts.do(t, http.MethodPost, "/api/whatsapp", payload)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	sent := ts.sender.Sent()
	require.Len(t, sent, 1)
	assert.True(t, strings.HasPrefix(sent[0], "5511999: "))

	credit, err := ts.store.GetCredits(context.Background(), "whatsapp_5511999")
	require.NoError(t, err)
	assert.Equal(t, 0, credit.Balance)
}

func TestWhatsAppWebhookMalformed(t *testing.T) {
	ts := newTestServer(t)

	req := strings.NewReader("{not json")
	rec := ts.doRaw(t, http.MethodPost, "/api/whatsapp", req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Processing failed", decode[map[string]string](t, rec)["error"])
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(service.ErrMissingField))
	assert.Equal(t, http.StatusPaymentRequired, statusFor(service.ErrNoCredits))
	assert.Equal(t, http.StatusNotFound, statusFor(fmt.Errorf("get: %w", store.ErrNotFound)))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(fmt.Errorf("reply: %w", llm.ErrProviderRejected)))
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}
