package ui

import "strings"

// CommandKind identifies a slash command typed into the input line.
type CommandKind int

const (
	CmdChat CommandKind = iota
	CmdMute
	CmdVideo
	CmdShare
	CmdUnshare
	CmdHand
	CmdReact
	CmdPeers
	CmdHelp
	CmdQuit
	CmdUnknown
)

// Command is a parsed input line.
type Command struct {
	Kind CommandKind
	Arg  string
}

const helpText = "/mute  /video  /share  /unshare  /hand  /react <emoji>  /peers  /quit"

var commandNames = map[string]CommandKind{
	"mute":    CmdMute,
	"video":   CmdVideo,
	"share":   CmdShare,
	"unshare": CmdUnshare,
	"hand":    CmdHand,
	"react":   CmdReact,
	"peers":   CmdPeers,
	"help":    CmdHelp,
	"quit":    CmdQuit,
	"exit":    CmdQuit,
}

// ParseCommand turns an input line into a Command. Lines not starting with
// "/" are chat; "//" escapes a literal leading slash.
func ParseCommand(line string) Command {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") || strings.HasPrefix(line, "//") {
		return Command{Kind: CmdChat, Arg: strings.TrimPrefix(line, "/")}
	}

	name, arg, _ := strings.Cut(line[1:], " ")
	kind, ok := commandNames[strings.ToLower(name)]
	if !ok {
		return Command{Kind: CmdUnknown, Arg: name}
	}
	return Command{Kind: kind, Arg: strings.TrimSpace(arg)}
}
