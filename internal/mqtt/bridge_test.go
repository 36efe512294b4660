package mqtt

import "testing"

func TestExtractSessionID(t *testing.T) {
	cases := []struct {
		topic string
		want  string
	}{
		{"session/3f2b1c70-9a1e-4f6e-8a52-0c9b1a2d3e4f/features", "3f2b1c70-9a1e-4f6e-8a52-0c9b1a2d3e4f"},
		{"session/abc/features", "abc"},
		{"session", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := extractSessionID(tc.topic); got != tc.want {
			t.Fatalf("extractSessionID(%q) = %q, want %q", tc.topic, got, tc.want)
		}
	}
}

func TestFormatTopic(t *testing.T) {
	got := formatTopic("session/{session_id}/prediction", "abc-123")
	if got != "session/abc-123/prediction" {
		t.Fatalf("formatTopic = %q", got)
	}
}
