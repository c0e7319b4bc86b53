package server

import "strings"

// CommandMarker prefixes in-band moderation commands inside chat text.
const CommandMarker = "!cmd"

// Moderation command kinds.
const (
	cmdMute     = "mute"
	cmdUnmute   = "unmute"
	cmdKick     = "kick"
	cmdBan      = "ban"
	cmdClear    = "clear"
	cmdShutdown = "shutdown"
	cmdPrivate  = "private"
	cmdPublic   = "public"
	cmdHelp     = "help"
	cmdHelpAll  = "all"
)

const helpText = "Commands: !cmd mute <user> | unmute <user> | kick <user> | ban <user> | clear | shutdown | private | public | help"

// chatInput is the parse result of one chat_message text: either a plain
// message or a moderation command. The decision is made once at the gateway
// boundary and never re-parsed downstream. Text is always the full original
// input so a command issued by a non-host can fall back to a plain message.
type chatInput struct {
	text string
	cmd  *moderationCommand
}

type moderationCommand struct {
	kind string
	args []string
}

func (in chatInput) isCommand() bool { return in.cmd != nil }

// parseChat splits chat text into the plain/command variant. Anything after
// the marker is whitespace-split: the first token selects the command, the
// rest are positional arguments. A bare marker parses as a command with an
// empty kind, which the interpreter rejects as unknown.
func parseChat(text string) chatInput {
	in := chatInput{text: text}
	if text != CommandMarker && !strings.HasPrefix(text, CommandMarker+" ") {
		return in
	}
	fields := strings.Fields(strings.TrimPrefix(text, CommandMarker))
	cmd := &moderationCommand{}
	if len(fields) > 0 {
		cmd.kind = fields[0]
		cmd.args = fields[1:]
	}
	in.cmd = cmd
	return in
}

// userArg returns the single username argument of a user-targeting command.
func (c *moderationCommand) userArg() (string, bool) {
	if len(c.args) != 1 || c.args[0] == "" {
		return "", false
	}
	return c.args[0], true
}
