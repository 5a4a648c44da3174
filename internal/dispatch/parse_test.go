package dispatch_test

import (
	"reflect"
	"testing"

	"github.com/MrWong99/tomescry/internal/dispatch"
)

func TestParseCall(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		text     string
		wantFn   string
		wantArgs map[string]any
	}{
		{
			name:     "bare block",
			text:     `<CALL>{"fn":"look_monster_table","args":{"query":"Zombie","limit":10}}</CALL>`,
			wantFn:   "look_monster_table",
			wantArgs: map[string]any{"query": "Zombie", "limit": float64(10)},
		},
		{
			name:     "block embedded in prose",
			text:     "Let me check.\n<CALL>{\"fn\":\"search_table\",\"args\":{\"type\":\"spells\",\"name_or_slug\":\"Fireball\"}}</CALL>\nOne moment.",
			wantFn:   "search_table",
			wantArgs: map[string]any{"type": "spells", "name_or_slug": "Fireball"},
		},
		{
			name:     "lowercase delimiters",
			text:     `<call>{"fn":"fetch_and_cache","args":{"type":"monsters","slug":"goblin"}}</call>`,
			wantFn:   "fetch_and_cache",
			wantArgs: map[string]any{"type": "monsters", "slug": "goblin"},
		},
		{
			name:     "payload spanning lines",
			text:     "<CALL>\n{\"fn\": \"look_table\",\n \"args\": {\"query\": \"dragon\"}}\n</CALL>",
			wantFn:   "look_table",
			wantArgs: map[string]any{"query": "dragon"},
		},
		{
			name:     "first of two blocks wins",
			text:     `<CALL>{"fn":"look_table","args":{"query":"a"}}</CALL> <CALL>{"fn":"look_table","args":{"query":"b"}}</CALL>`,
			wantFn:   "look_table",
			wantArgs: map[string]any{"query": "a"},
		},
		{
			name:     "missing args defaults to empty",
			text:     `<CALL>{"fn":"look_monster_table"}</CALL>`,
			wantFn:   "look_monster_table",
			wantArgs: map[string]any{},
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			call, ok := dispatch.ParseCall(tc.text)
			if !ok {
				t.Fatalf("ParseCall(%q): no call detected", tc.text)
			}
			if call.Fn != tc.wantFn {
				t.Errorf("Fn = %q, want %q", call.Fn, tc.wantFn)
			}
			if !reflect.DeepEqual(call.Args, tc.wantArgs) {
				t.Errorf("Args = %#v, want %#v", call.Args, tc.wantArgs)
			}
		})
	}
}

func TestParseCallNone(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
	}{
		{"plain answer", "A goblin has 7 hit points."},
		{"empty text", ""},
		{"unterminated block", `<CALL>{"fn":"look_table","args":{}}`},
		{"invalid JSON payload", `<CALL>{"fn": look_table}</CALL>`},
		{"payload without fn", `<CALL>{"args":{"query":"goblin"}}</CALL>`},
		{"fn is not a string", `<CALL>{"fn":42,"args":{}}</CALL>`},
		{"payload is an array", `<CALL>["look_table"]</CALL>`},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if call, ok := dispatch.ParseCall(tc.text); ok {
				t.Fatalf("ParseCall(%q) = %+v, want no call", tc.text, call)
			}
		})
	}
}
