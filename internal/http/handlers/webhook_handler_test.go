package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-report-bot/internal/bot"
)

type recordingSink struct {
	mu  sync.Mutex
	got []bot.Update
}

func (s *recordingSink) Submit(u bot.Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, u)
}

func postUpdate(r *gin.Engine, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/hook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func newWebhookEngine(sink UpdateSink) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := New(&fakeStats{}, sink)
	r := gin.New()
	r.POST("/hook", h.Webhook)
	return r
}

const textUpdate = `{"update_id":10,"message":{"message_id":5,"date":0,
	"chat":{"id":42,"type":"private"},
	"from":{"id":7,"is_bot":false,"first_name":"Al","username":"al"},
	"text":"bob@example.com"}}`

func TestWebhook_DispatchesMessage(t *testing.T) {
	sink := &recordingSink{}
	r := newWebhookEngine(sink)

	if w := postUpdate(r, textUpdate); w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if len(sink.got) != 1 || sink.got[0].Message == nil {
		t.Fatalf("updates = %+v", sink.got)
	}
	m := sink.got[0].Message
	if m.ChatID != 42 || m.MessageID != 5 || m.UserID != 7 || m.Username != "al" || m.Text != "bob@example.com" {
		t.Fatalf("message = %+v", m)
	}
}

func TestWebhook_DropsRedelivery(t *testing.T) {
	sink := &recordingSink{}
	r := newWebhookEngine(sink)

	postUpdate(r, textUpdate)
	if w := postUpdate(r, textUpdate); w.Code != http.StatusOK {
		t.Fatalf("redelivery must be acknowledged, got %d", w.Code)
	}
	if len(sink.got) != 1 {
		t.Fatalf("redelivery dispatched again: %d", len(sink.got))
	}
}

func TestWebhook_Callback(t *testing.T) {
	sink := &recordingSink{}
	r := newWebhookEngine(sink)

	body := `{"update_id":11,"callback_query":{"id":"cb-1","data":"/page 12 1",
		"from":{"id":7,"is_bot":false,"first_name":"Al"},
		"message":{"message_id":9,"date":0,"chat":{"id":42,"type":"private"}}}}`
	if w := postUpdate(r, body); w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if len(sink.got) != 1 || sink.got[0].Callback == nil {
		t.Fatalf("updates = %+v", sink.got)
	}
	cq := sink.got[0].Callback
	if cq.ID != "cb-1" || cq.ChatID != 42 || cq.MessageID != 9 || cq.Data != "/page 12 1" {
		t.Fatalf("callback = %+v", cq)
	}
}

func TestWebhook_UnhandledAndInvalid(t *testing.T) {
	sink := &recordingSink{}
	r := newWebhookEngine(sink)

	// edited_message is not subscribed to and carries no message.
	if w := postUpdate(r, `{"update_id":12,"edited_message":{"message_id":1,"date":0,"chat":{"id":1,"type":"private"},"text":"x"}}`); w.Code != http.StatusOK {
		t.Fatalf("unhandled update status=%d", w.Code)
	}
	if len(sink.got) != 0 {
		t.Fatalf("unhandled update dispatched: %+v", sink.got)
	}

	if w := postUpdate(r, `{"update_id":`); w.Code != http.StatusBadRequest {
		t.Fatalf("invalid JSON status=%d; want 400", w.Code)
	}
}

func TestWebhook_NilSinkAcknowledges(t *testing.T) {
	r := newWebhookEngine(nil)
	if w := postUpdate(r, textUpdate); w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
}
