package protocol

import (
	"testing"
)

func TestEncodeDecode_ChatAccepted(t *testing.T) {
	raw, err := Encode(TypeChatAccepted, ChatAccepted{SessionID: "s7", AgentID: "a1"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	env, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Type != TypeChatAccepted {
		t.Fatalf("type = %q", env.Type)
	}
	var p ChatAccepted
	if err := DecodeData(env, &p); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if p.SessionID != "s7" || p.AgentID != "a1" {
		t.Fatalf("payload = %+v", p)
	}
}

func TestDecode_MissingType(t *testing.T) {
	if _, err := Decode([]byte(`{"data":{}}`)); err == nil {
		t.Fatal("expected error for missing type")
	}
	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestEncodeChatMessage_InlineFields(t *testing.T) {
	raw, err := EncodeChatMessage("s1", "visitor", "v-9", "hello there", "text")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	env, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Type != TypeChatMessage || env.SessionID != "s1" || env.SenderID != "v-9" || env.Text != "hello there" {
		t.Fatalf("env = %+v", env)
	}
}

func TestDispatcher_RoutesByType(t *testing.T) {
	var got []string
	d := NewDispatcher().
		On(TypeChatMessage, func(env Envelope) { got = append(got, "msg:"+env.Text) }).
		On(TypePing, func(Envelope) { got = append(got, "ping") }).
		OnUnknown(func(env Envelope) { got = append(got, "unknown:"+env.Type) })

	frames := [][]byte{
		[]byte(`{"type":"chat_message","text":"hi"}`),
		[]byte(`{"type":"ping"}`),
		[]byte(`{"type":"mystery"}`),
		[]byte(`garbage`),
	}
	for _, f := range frames {
		d.Dispatch(f)
	}

	want := []string{"msg:hi", "ping", "unknown:mystery", "unknown:"}
	if len(got) != len(want) {
		t.Fatalf("dispatched %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("dispatched %v, want %v", got, want)
		}
	}
}

func TestDispatcher_UnhandledWithoutCatchAll(t *testing.T) {
	d := NewDispatcher()
	// must not panic
	d.Dispatch([]byte(`{"type":"ping"}`))
}
