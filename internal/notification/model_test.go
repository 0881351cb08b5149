package notification

import (
	"encoding/json"
	"testing"
)

func TestEnvelopeWireShape(t *testing.T) {
	env := NewConversation(ConversationPayload{ID: 12, Name: "alice & bob", IsDirect: true})
	data, err := env.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(raw["type"]) != `"NEW_CONVERSATION"` {
		t.Fatalf("type field %s", raw["type"])
	}

	var payload ConversationPayload
	if err := json.Unmarshal(raw["payload"], &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.ID != 12 || !payload.IsDirect {
		t.Fatalf("payload %+v", payload)
	}
}

func TestNotificationTypesAreClosed(t *testing.T) {
	for _, typ := range []Type{TypeNewPost, TypeNewConversation, TypeNewMessage} {
		var env Envelope
		switch typ {
		case TypeNewPost:
			env = NewPost(PostPayload{})
		case TypeNewConversation:
			env = NewConversation(ConversationPayload{})
		case TypeNewMessage:
			env = NewMessage(MessagePayload{})
		}
		if env.Type != typ {
			t.Fatalf("constructor for %q produced %q", typ, env.Type)
		}
	}
}
