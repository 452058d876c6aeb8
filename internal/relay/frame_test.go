package relay

import "testing"

func TestParseClientFrameConnect(t *testing.T) {
	data := []byte(`{"action":"connect","session_id":"s1","user_language":"zh"}`)

	frame, err := ParseClientFrame(data)
	if err != nil {
		t.Fatalf("ParseClientFrame err: %v", err)
	}

	connect, ok := frame.(ConnectFrame)
	if !ok {
		t.Fatalf("expected ConnectFrame, got %T", frame)
	}
	if connect.SessionID != "s1" {
		t.Fatalf("unexpected session id: %s", connect.SessionID)
	}
	if connect.UserLanguage != "zh" {
		t.Fatalf("unexpected language: %s", connect.UserLanguage)
	}
}

func TestParseClientFrameTranslate(t *testing.T) {
	data := []byte(`{"action":"translate","message_id":"m1","source_text":"Hello","source_language":"en","target_language":"zh"}`)

	frame, err := ParseClientFrame(data)
	if err != nil {
		t.Fatalf("ParseClientFrame err: %v", err)
	}

	tr, ok := frame.(TranslateFrame)
	if !ok {
		t.Fatalf("expected TranslateFrame, got %T", frame)
	}
	if tr.MessageID != "m1" || tr.SourceText != "Hello" {
		t.Fatalf("unexpected translate frame: %+v", tr)
	}
}

func TestParseClientFrameUnknownAction(t *testing.T) {
	frame, err := ParseClientFrame([]byte(`{"action":"presence"}`))
	if err != nil {
		t.Fatalf("ParseClientFrame err: %v", err)
	}
	unknown, ok := frame.(UnknownFrame)
	if !ok {
		t.Fatalf("expected UnknownFrame, got %T", frame)
	}
	if unknown.Action != "presence" {
		t.Fatalf("unexpected action: %s", unknown.Action)
	}
}

func TestParseClientFrameMalformed(t *testing.T) {
	if _, err := ParseClientFrame([]byte(`{"action":`)); err == nil {
		t.Fatal("expected error for malformed frame")
	}
}

func TestEncodeClientFrameRoundTrip(t *testing.T) {
	encoded, err := EncodeClientFrame(TranslateFrame{
		MessageID:      "m2",
		SourceText:     "hi",
		SourceLanguage: "auto",
		TargetLanguage: "fr",
	})
	if err != nil {
		t.Fatalf("EncodeClientFrame err: %v", err)
	}

	frame, err := ParseClientFrame(encoded)
	if err != nil {
		t.Fatalf("ParseClientFrame err: %v", err)
	}
	tr, ok := frame.(TranslateFrame)
	if !ok {
		t.Fatalf("expected TranslateFrame, got %T", frame)
	}
	if tr.TargetLanguage != "fr" {
		t.Fatalf("unexpected target language: %s", tr.TargetLanguage)
	}
}
