package server

import (
	"reflect"
	"testing"
)

func TestParseChat(t *testing.T) {
	cases := []struct {
		name string
		text string
		cmd  bool
		kind string
		args []string
	}{
		{"plain text", "hello there", false, "", nil},
		{"marker mid-sentence", "say !cmd mute U", false, "", nil},
		{"marker prefix without space", "!cmdmute U", false, "", nil},
		{"bare marker", "!cmd", true, "", nil},
		{"command no args", "!cmd clear", true, "clear", []string{}},
		{"command one arg", "!cmd mute U", true, "mute", []string{"U"}},
		{"command extra args", "!cmd kick U now", true, "kick", []string{"U", "now"}},
		{"extra whitespace", "!cmd   ban   U ", true, "ban", []string{"U"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := parseChat(tc.text)
			if in.text != tc.text {
				t.Fatalf("original text not preserved: %q", in.text)
			}
			if in.isCommand() != tc.cmd {
				t.Fatalf("isCommand = %v, want %v", in.isCommand(), tc.cmd)
			}
			if !tc.cmd {
				return
			}
			if in.cmd.kind != tc.kind {
				t.Fatalf("kind = %q, want %q", in.cmd.kind, tc.kind)
			}
			if len(tc.args) == 0 && len(in.cmd.args) == 0 {
				return
			}
			if !reflect.DeepEqual(in.cmd.args, tc.args) {
				t.Fatalf("args = %v, want %v", in.cmd.args, tc.args)
			}
		})
	}
}

func TestUserArg(t *testing.T) {
	if _, ok := (&moderationCommand{kind: cmdMute}).userArg(); ok {
		t.Fatal("missing argument should not validate")
	}
	if _, ok := (&moderationCommand{kind: cmdMute, args: []string{"a", "b"}}).userArg(); ok {
		t.Fatal("extra arguments should not validate")
	}
	user, ok := (&moderationCommand{kind: cmdMute, args: []string{"U"}}).userArg()
	if !ok || user != "U" {
		t.Fatalf("expected U, got %q ok=%v", user, ok)
	}
}
