package realtime

import "testing"

func TestTopicDerivation(t *testing.T) {
	tests := []struct {
		key  ChannelKey
		want string
	}{
		{GroupChannel(7), "chat:7"},
		{GroupChannel(123456), "chat:123456"},
		{UserChannel(42), "notifications:42"},
	}
	for _, tt := range tests {
		if got := tt.key.Topic(); got != tt.want {
			t.Errorf("Topic(%v) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestChannelKeyEquality(t *testing.T) {
	if GroupChannel(1) != GroupChannel(1) {
		t.Fatal("identical group keys not equal")
	}
	if GroupChannel(1) == UserChannel(1) {
		t.Fatal("group and user keys with the same id compare equal")
	}

	m := map[ChannelKey]int{GroupChannel(1): 1}
	if m[GroupChannel(1)] != 1 {
		t.Fatal("map lookup by reconstructed key failed")
	}
}
