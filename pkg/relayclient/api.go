package relayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/qrchat-dev/qrchat/backend/internal/model/chat"
)

// API is the HTTP client for the fallback path and the message sync
// endpoints.
type API struct {
	baseURL    string
	httpClient *http.Client
}

// NewAPI builds an API client for the backend base URL, e.g.
// "http://localhost:8080".
func NewAPI(baseURL string) *API {
	return &API{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// CreateSession fetches or creates the session for a host+guest pair.
func (a *API) CreateSession(ctx context.Context, hostID, guestID string) (chat.Session, bool, error) {
	var result struct {
		Session      chat.Session `json:"session"`
		IsNewSession bool         `json:"is_new_session"`
	}
	err := a.post(ctx, "/api/session", map[string]string{
		"host_id":  hostID,
		"guest_id": guestID,
	}, &result)
	if err != nil {
		return chat.Session{}, false, err
	}
	return result.Session, result.IsNewSession, nil
}

// ListMessages returns session messages with id greater than sinceID,
// ascending. An empty sinceID returns the full history.
func (a *API) ListMessages(ctx context.Context, sessionID, sinceID string) ([]chat.Message, error) {
	params := url.Values{}
	params.Set("session_id", sessionID)
	if sinceID != "" {
		params.Set("since_id", sinceID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/api/messages?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Messages []chat.Message `json:"messages"`
	}
	if err := a.do(req, &result); err != nil {
		return nil, err
	}
	return result.Messages, nil
}

// SendMessage persists a new message.
func (a *API) SendMessage(ctx context.Context, sessionID, content, sender, sourceLanguage string) (chat.Message, error) {
	var msg chat.Message
	err := a.post(ctx, "/api/messages", map[string]string{
		"session_id":      sessionID,
		"content":         content,
		"sender":          sender,
		"source_language": sourceLanguage,
	}, &msg)
	return msg, err
}

// Translate is the request/response fallback translation call.
func (a *API) Translate(ctx context.Context, text, sourceLanguage, targetLanguage string) (string, error) {
	var result struct {
		TranslatedText string `json:"translated_text"`
	}
	err := a.post(ctx, "/api/translate", map[string]string{
		"text":            text,
		"source_language": sourceLanguage,
		"target_language": targetLanguage,
	}, &result)
	if err != nil {
		return "", err
	}
	return result.TranslatedText, nil
}

// SaveTranslation persists a translation outcome for a message.
func (a *API) SaveTranslation(ctx context.Context, messageID, translatedText, status string) error {
	return a.post(ctx, "/api/messages/"+messageID+"/translation", map[string]string{
		"translated_text": translatedText,
		"status":          status,
	}, nil)
}

func (a *API) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return a.do(req, out)
}

func (a *API) do(req *http.Request, out any) error {
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("api %s: %s (status %d)", req.URL.Path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("api %s: unexpected status %d", req.URL.Path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
