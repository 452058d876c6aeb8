// Package relay defines the JSON frame protocol spoken between the chat
// client and the relay websocket endpoint. Both sides exchange single-line
// JSON objects dispatched on an "action" tag.
package relay

import (
	"encoding/json"
	"fmt"
)

// Client -> server actions.
const (
	ActionConnect   = "connect"
	ActionHeartbeat = "heartbeat"
	ActionTranslate = "translate"
)

// Server -> client actions.
const (
	ActionConnectResult   = "connect_result"
	ActionStatus          = "status"
	ActionTranslateResult = "translate_result"
)

// Result statuses carried by server frames.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Frame is the tagged union over the client frame kinds. Exactly one of
// ConnectFrame, HeartbeatFrame, TranslateFrame or UnknownFrame comes out of
// ParseClientFrame.
type Frame interface {
	isFrame()
}

// ConnectFrame is the handshake, first frame on every connection.
type ConnectFrame struct {
	SessionID    string `json:"session_id"`
	UserLanguage string `json:"user_language"`
}

// HeartbeatFrame keeps the connection alive; the server echoes it.
type HeartbeatFrame struct{}

// TranslateFrame requests a translation for one message.
type TranslateFrame struct {
	MessageID      string `json:"message_id"`
	SourceText     string `json:"source_text"`
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language"`
}

// UnknownFrame carries an unrecognized action so the boundary can log and
// ignore it without closing the connection.
type UnknownFrame struct {
	Action string
}

func (ConnectFrame) isFrame()   {}
func (HeartbeatFrame) isFrame() {}
func (TranslateFrame) isFrame() {}
func (UnknownFrame) isFrame()   {}

// clientEnvelope 客户端帧的完整字段集合，解析时先读 action 再落到具体类型
type clientEnvelope struct {
	Action         string `json:"action"`
	SessionID      string `json:"session_id,omitempty"`
	UserLanguage   string `json:"user_language,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
	SourceText     string `json:"source_text,omitempty"`
	SourceLanguage string `json:"source_language,omitempty"`
	TargetLanguage string `json:"target_language,omitempty"`
}

// ParseClientFrame decodes a client frame into its concrete type.
func ParseClientFrame(data []byte) (Frame, error) {
	var env clientEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}

	switch env.Action {
	case ActionConnect:
		return ConnectFrame{SessionID: env.SessionID, UserLanguage: env.UserLanguage}, nil
	case ActionHeartbeat:
		return HeartbeatFrame{}, nil
	case ActionTranslate:
		return TranslateFrame{
			MessageID:      env.MessageID,
			SourceText:     env.SourceText,
			SourceLanguage: env.SourceLanguage,
			TargetLanguage: env.TargetLanguage,
		}, nil
	default:
		return UnknownFrame{Action: env.Action}, nil
	}
}

// EncodeClientFrame renders a client frame back into its wire shape.
func EncodeClientFrame(f Frame) ([]byte, error) {
	var env clientEnvelope
	switch fr := f.(type) {
	case ConnectFrame:
		env = clientEnvelope{Action: ActionConnect, SessionID: fr.SessionID, UserLanguage: fr.UserLanguage}
	case HeartbeatFrame:
		env = clientEnvelope{Action: ActionHeartbeat}
	case TranslateFrame:
		env = clientEnvelope{
			Action:         ActionTranslate,
			MessageID:      fr.MessageID,
			SourceText:     fr.SourceText,
			SourceLanguage: fr.SourceLanguage,
			TargetLanguage: fr.TargetLanguage,
		}
	default:
		return nil, fmt.Errorf("unencodable frame type %T", f)
	}
	return json.Marshal(env)
}

// ServerFrame is the single server->client frame shape; Action selects which
// optional fields are meaningful.
type ServerFrame struct {
	Action         string `json:"action"`
	Status         string `json:"status,omitempty"`
	SessionID      string `json:"session_id,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
	TranslatedText string `json:"translated_text,omitempty"`
	SourceLanguage string `json:"source_language,omitempty"`
	TargetLanguage string `json:"target_language,omitempty"`
	Message        string `json:"message,omitempty"`
	Error          string `json:"error,omitempty"`
}
