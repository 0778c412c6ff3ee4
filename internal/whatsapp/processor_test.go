package whatsapp

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmbento/omnicall-ai/internal/models"
	"github.com/jmbento/omnicall-ai/internal/service"
	"github.com/jmbento/omnicall-ai/internal/store"
)

type sentMessage struct{ to, body string }

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (f *fakeSender) SendText(_ context.Context, to, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{to, body})
	return f.err
}

type fakeReplier struct {
	reply   string
	err     error
	session string
}

func (f *fakeReplier) Reply(_ context.Context, _, sessionID, _ string) (string, error) {
	f.session = sessionID
	return f.reply, f.err
}

func inbound(from, body string) Message {
	m := Message{ID: "wamid", From: from, Type: "text"}
	m.Text = &struct {
		Body string `json:"body"`
	}{Body: body}
	return m
}

func newProcessor(t *testing.T, reply *fakeReplier, sender *fakeSender) (*Processor, *store.Memory, *service.Credits) {
	t.Helper()
	st := store.NewMemory()
	credits := service.NewCredits(st)
	return NewProcessor(credits, st, reply, sender, "default", nil), st, credits
}

func TestProcessorAnswersAndCharges(t *testing.T) {
	reply := &fakeReplier{reply: "Check-in is at 3pm."}
	sender := &fakeSender{}
	p, st, credits := newProcessor(t, reply, sender)
	_, err := credits.Add(t.Context(), "whatsapp_5511", 3)
	require.NoError(t, err)

	require.NoError(t, p.Handle(t.Context(), []Message{inbound("5511", "when is check-in?")}))

	assert.Equal(t, []sentMessage{{"5511", "Check-in is at 3pm."}}, sender.sent)

	bal, err := credits.Balance(t.Context(), "whatsapp_5511")
	require.NoError(t, err)
	assert.Equal(t, 2, bal.Balance)

	calls, err := st.ListCalls(t.Context(), "whatsapp_5511", 10)
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, models.ChannelWhatsApp, calls[0].Channel)
	assert.Equal(t, 1, calls[0].CreditsUsed)
	assert.Equal(t, "default", calls[0].CartridgeID)

	require.NotEmpty(t, reply.session)
	msgs, err := st.ListMessages(t.Context(), reply.session)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleUser, msgs[0].Role)
	assert.Equal(t, "when is check-in?", msgs[0].Content)
	assert.Equal(t, models.RoleModel, msgs[1].Role)
}

func TestProcessorOutOfCredits(t *testing.T) {
	reply := &fakeReplier{reply: "unused"}
	sender := &fakeSender{}
	p, st, _ := newProcessor(t, reply, sender)

	require.NoError(t, p.Handle(t.Context(), []Message{inbound("77", "hi")}))

	require.Len(t, sender.sent, 1)
	assert.Equal(t, noCreditsNotice, sender.sent[0].body)
	assert.Empty(t, reply.session, "no reply generated")
	calls, _ := st.ListCalls(t.Context(), "whatsapp_77", 10)
	assert.Empty(t, calls)
}

func TestProcessorNonText(t *testing.T) {
	sender := &fakeSender{}
	p, _, _ := newProcessor(t, &fakeReplier{}, sender)

	require.NoError(t, p.Handle(t.Context(), []Message{{From: "1", Type: "audio"}}))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, textOnlyNotice, sender.sent[0].body)
}

func TestProcessorReplyFailure(t *testing.T) {
	sender := &fakeSender{}
	p, _, credits := newProcessor(t, &fakeReplier{err: errors.New("model down")}, sender)
	_, err := credits.Add(t.Context(), "whatsapp_9", 1)
	require.NoError(t, err)

	err = p.Handle(t.Context(), []Message{inbound("9", "hi")})
	assert.ErrorContains(t, err, "model down")
	assert.Empty(t, sender.sent)

	bal, _ := credits.Balance(t.Context(), "whatsapp_9")
	assert.Equal(t, 1, bal.Balance, "not charged without a reply")
}

func TestProcessorSendFailureStillCharges(t *testing.T) {
	sender := &fakeSender{err: ErrNotConfigured}
	p, _, credits := newProcessor(t, &fakeReplier{reply: "ok"}, sender)
	_, err := credits.Add(t.Context(), "whatsapp_5", 2)
	require.NoError(t, err)

	require.NoError(t, p.Handle(t.Context(), []Message{inbound("5", "hi")}))
	bal, _ := credits.Balance(t.Context(), "whatsapp_5")
	assert.Equal(t, 1, bal.Balance)
}
