package commands

import (
	"context"
	"flag"
	"fmt"
	"io"

	"doit/internal/config"
	"doit/internal/exitcode"
)

func init() {
	Register(&HelpCmd{})
}

// HelpCmd implements the help command.
type HelpCmd struct{}

func (c *HelpCmd) Name() string      { return "help" }
func (c *HelpCmd) Aliases() []string { return nil }
func (c *HelpCmd) Synopsis() string  { return "Print usage" }
func (c *HelpCmd) Usage() string     { return "doit help [command]" }
func (c *HelpCmd) NeedsAuth() bool   { return false }
func (c *HelpCmd) Offline() bool     { return true }

func (c *HelpCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *HelpCmd) Run(ctx context.Context, cfg *config.Config, deps *Deps, args []string, out, errOut io.Writer) int {
	if len(args) == 1 {
		cmd, found := DefaultRegistry.Find(args[0])
		if !found {
			fmt.Fprintf(errOut, "error: unknown command: %s\n", args[0])
			return exitcode.UserError
		}
		fmt.Fprintf(out, "%s\n\n  %s\n", cmd.Synopsis(), cmd.Usage())
		return exitcode.Success
	}
	fmt.Fprint(out, helpText)
	return exitcode.Success
}

const helpText = `Usage:
  doit                                         Browse open tasks
  doit tasks [--search <text>] [--category <name>] [--status <status>]
  doit mytasks [--filter <all|created|applied|completed>]
  doit task <task-id>
  doit post --title <title> [--description <text>] [--category <name>]
            [--location <address> | --here] [--budget <eur>]
            [--deadline <YYYY-MM-DD>] [--time <text>] [--flexible]
            [--image <file>]... [--preview]
  doit apply [--price <eur>] <task-id> [message...]
  doit accept <application-id>
  doit complete <task-id>
  doit review <task-id> <1-5> [comment...]
  doit chats
  doit chat <task-id>
  doit messages <chat-id>
  doit send <chat-id> <text...>
  doit send --image <file> <chat-id>
  doit notifications [--unread]
  doit read <notification-id>
  doit readall
  doit rmnotif <notification-id>
  doit watch [--interval <duration>]
  doit places [--resolve] <text...>
  doit places --here
  doit profile [uid]
  doit editprofile [--name <name>] [--bio <text>] [--location <text>]
  doit avatar <image-file>
  doit signup [--name <display-name>] [--password <pw>] <email>
  doit login [--password <pw>] <email>
  doit logout
  doit whoami
  doit help [command]
  doit version [--verbose]

Common flags:
  --config <dir>   Override config directory
  --quiet          Suppress informational output
  --debug          Print debug logs to stderr
`
