package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	chatmodel "github.com/qrchat-dev/qrchat/backend/internal/model/chat"
	"github.com/qrchat-dev/qrchat/backend/internal/store"
)

func newTestRouter(t *testing.T) (*chi.Mux, *store.Store, chatmodel.Host) {
	t.Helper()

	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	host, err := s.CreateHost(context.Background(), "front desk", "zh")
	if err != nil {
		t.Fatalf("create host: %v", err)
	}

	r := chi.NewRouter()
	New(s).RegisterRoutes(r)
	return r, s, host
}

func doJSON(t *testing.T, r http.Handler, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSessionCreateAndReuse(t *testing.T) {
	r, _, host := newTestRouter(t)

	payload := map[string]string{"host_id": host.ID, "guest_id": "guest-1"}

	w := doJSON(t, r, http.MethodPost, "/session", payload)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var first struct {
		Session      chatmodel.Session `json:"session"`
		IsNewSession bool              `json:"is_new_session"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &first); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !first.IsNewSession || first.Session.ID == "" {
		t.Fatalf("expected new session, got %+v", first)
	}

	// 同一对 host+guest 再次扫码复用会话
	w = doJSON(t, r, http.MethodPost, "/session", payload)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on reuse, got %d", w.Code)
	}
	var second struct {
		Session      chatmodel.Session `json:"session"`
		IsNewSession bool              `json:"is_new_session"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &second); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if second.IsNewSession || second.Session.ID != first.Session.ID {
		t.Fatalf("expected same session, got %+v", second)
	}
}

func TestSessionUnknownHost(t *testing.T) {
	r, _, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/session", map[string]string{
		"host_id":  "nope",
		"guest_id": "guest-1",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown host, got %d", w.Code)
	}
}

func TestSendAndListMessages(t *testing.T) {
	r, s, host := newTestRouter(t)

	session, _, err := s.GetOrCreateSession(context.Background(), host.ID, "guest-1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	w := doJSON(t, r, http.MethodPost, "/messages", map[string]string{
		"session_id": session.ID,
		"content":    "Hello",
		"sender":     chatmodel.SenderHost,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var hostMsg chatmodel.Message
	if err := json.Unmarshal(w.Body.Bytes(), &hostMsg); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if hostMsg.TranslationStatus != chatmodel.TranslationPending {
		t.Fatalf("host message should start pending, got %q", hostMsg.TranslationStatus)
	}

	w = doJSON(t, r, http.MethodPost, "/messages", map[string]string{
		"session_id": session.ID,
		"content":    "你好",
		"sender":     chatmodel.SenderGuest,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	var guestMsg chatmodel.Message
	if err := json.Unmarshal(w.Body.Bytes(), &guestMsg); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if guestMsg.TranslationStatus != "" {
		t.Fatalf("guest message must not enter the translation pipeline, got %q", guestMsg.TranslationStatus)
	}

	req := httptest.NewRequest(http.MethodGet, "/messages?session_id="+session.ID, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var listed struct {
		Messages []chatmodel.Message `json:"messages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed.Messages) != 2 || listed.Messages[0].ID != hostMsg.ID {
		t.Fatalf("expected 2 messages in creation order, got %+v", listed.Messages)
	}

	// since_id 游标只返回之后的消息
	req = httptest.NewRequest(http.MethodGet, "/messages?session_id="+session.ID+"&since_id="+hostMsg.ID, nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed.Messages) != 1 || listed.Messages[0].ID != guestMsg.ID {
		t.Fatalf("since_id cursor returned %+v", listed.Messages)
	}
}

func TestSendMessageValidation(t *testing.T) {
	r, s, host := newTestRouter(t)
	session, _, _ := s.GetOrCreateSession(context.Background(), host.ID, "guest-1")

	w := doJSON(t, r, http.MethodPost, "/messages", map[string]string{
		"session_id": session.ID,
		"sender":     chatmodel.SenderHost,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty content, got %d", w.Code)
	}

	w = doJSON(t, r, http.MethodPost, "/messages", map[string]string{
		"session_id": session.ID,
		"content":    "hi",
		"sender":     "robot",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad sender, got %d", w.Code)
	}

	w = doJSON(t, r, http.MethodPost, "/messages", map[string]string{
		"session_id": "missing",
		"content":    "hi",
		"sender":     chatmodel.SenderGuest,
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", w.Code)
	}
}

func TestSaveTranslationOneWay(t *testing.T) {
	r, s, host := newTestRouter(t)
	session, _, _ := s.GetOrCreateSession(context.Background(), host.ID, "guest-1")
	msg, err := s.InsertMessage(context.Background(), session.ID, chatmodel.SenderHost, "Hello", "en")
	if err != nil {
		t.Fatalf("insert message: %v", err)
	}

	w := doJSON(t, r, http.MethodPost, "/messages/"+msg.ID+"/translation", map[string]string{
		"translated_text": "你好",
		"status":          chatmodel.TranslationCompleted,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// 已终态的消息重复提交返回 unchanged，不覆盖
	w = doJSON(t, r, http.MethodPost, "/messages/"+msg.ID+"/translation", map[string]string{
		"translated_text": "哈喽",
		"status":          chatmodel.TranslationError,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on repeat, got %d", w.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "unchanged" {
		t.Fatalf("expected unchanged, got %q", resp["status"])
	}

	msgs, err := s.ListMessagesSince(context.Background(), session.ID, "")
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if msgs[0].TranslatedContent != "你好" || msgs[0].TranslationStatus != chatmodel.TranslationCompleted {
		t.Fatalf("first result must stick: %+v", msgs[0])
	}
}

func TestSaveTranslationValidation(t *testing.T) {
	r, _, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/messages/none/translation", map[string]string{
		"translated_text": "x",
		"status":          "pending",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-final status, got %d", w.Code)
	}

	w = doJSON(t, r, http.MethodPost, "/messages/none/translation", map[string]string{
		"translated_text": "x",
		"status":          chatmodel.TranslationCompleted,
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown message, got %d", w.Code)
	}
}
