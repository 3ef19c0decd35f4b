package decode

import (
	"encoding/json"
	"testing"
)

type typingPayload struct {
	IsTyping bool   `json:"is_typing"`
	Room     string `json:"room"`
}

type limitPayload struct {
	Limit int64 `json:"limit"`
}

func TestDecodeMapJSONTags(t *testing.T) {
	var m map[string]any
	if err := json.Unmarshal([]byte(`{"type":"typing","is_typing":true,"room":"channel:c1"}`), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	p, err := DecodeMap[typingPayload](m)
	if err != nil {
		t.Fatalf("DecodeMap: %v", err)
	}
	if !p.IsTyping || p.Room != "channel:c1" {
		t.Fatalf("decoded = %+v", p)
	}
}

func TestDecodeMapWeakTyping(t *testing.T) {
	// JSON 数字统一是 float64, 宽松解码要落回 int64
	var m map[string]any
	_ = json.Unmarshal([]byte(`{"limit":25}`), &m)
	p, err := DecodeMap[limitPayload](m)
	if err != nil {
		t.Fatalf("DecodeMap: %v", err)
	}
	if p.Limit != 25 {
		t.Fatalf("limit = %d, want 25", p.Limit)
	}

	// "true" 字符串也可落到 bool
	m = map[string]any{"is_typing": "true"}
	tp, err := DecodeMap[typingPayload](m)
	if err != nil {
		t.Fatalf("DecodeMap: %v", err)
	}
	if !tp.IsTyping {
		t.Fatalf("weak bool decode failed")
	}
}

func TestReadString(t *testing.T) {
	m := map[string]any{"type": "message", "n": 1}
	s, err := ReadString(m, "type")
	if err != nil || s != "message" {
		t.Fatalf("ReadString = %q, %v", s, err)
	}
	if _, err := ReadString(m, "missing"); err == nil {
		t.Fatalf("missing key should error")
	}
	if _, err := ReadString(m, "n"); err == nil {
		t.Fatalf("non-string should error")
	}
}
