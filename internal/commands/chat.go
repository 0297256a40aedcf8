package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"doit/internal/config"
	"doit/internal/exitcode"
	"doit/internal/media"
	"doit/internal/output"
	"doit/internal/views"
)

func init() {
	Register(&ChatsCmd{})
	Register(&ChatCmd{})
	Register(&MessagesCmd{})
	Register(&SendCmd{})
}

// ChatsCmd implements the chats command.
type ChatsCmd struct{}

func (c *ChatsCmd) Name() string      { return "chats" }
func (c *ChatsCmd) Aliases() []string { return nil }
func (c *ChatsCmd) Synopsis() string  { return "List your conversations" }
func (c *ChatsCmd) Usage() string     { return "doit chats [common flags]" }
func (c *ChatsCmd) NeedsAuth() bool   { return true }

func (c *ChatsCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *ChatsCmd) Run(ctx context.Context, cfg *config.Config, deps *Deps, args []string, out, errOut io.Writer) int {
	view := views.NewChatView(deps.Service, deps.Media, deps.Viewer(), deps.logger())
	defer view.Close()

	chats, err := view.Conversations(ctx)
	if err != nil {
		return fail(errOut, err)
	}
	if len(chats) == 0 {
		return ok(out, cfg.Quiet, "no conversations")
	}
	for _, ch := range chats {
		output.FormatChat(out, ch, deps.Viewer())
	}
	return exitcode.Success
}

// ChatCmd implements the chat command: it opens (or creates) the
// conversation for a matched task and prints its history.
type ChatCmd struct{}

func (c *ChatCmd) Name() string      { return "chat" }
func (c *ChatCmd) Aliases() []string { return nil }
func (c *ChatCmd) Synopsis() string  { return "Open the conversation for a matched task" }
func (c *ChatCmd) Usage() string     { return "doit chat <task-id>" }
func (c *ChatCmd) NeedsAuth() bool   { return true }

func (c *ChatCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *ChatCmd) Run(ctx context.Context, cfg *config.Config, deps *Deps, args []string, out, errOut io.Writer) int {
	if len(args) != 1 {
		return usage(errOut, c)
	}
	task, err := deps.Service.GetTask(ctx, args[0])
	if err != nil {
		return fail(errOut, err)
	}

	view := views.NewChatView(deps.Service, deps.Media, deps.Viewer(), deps.logger())
	defer view.Close()

	chatID, err := view.StartForTask(ctx, task)
	if err != nil {
		return fail(errOut, err)
	}
	if !cfg.Quiet {
		fmt.Fprintf(out, "chat %s\n", chatID)
	}
	printHistory(out, view, deps.Viewer())
	return exitcode.Success
}

// MessagesCmd implements the messages command.
type MessagesCmd struct{}

func (c *MessagesCmd) Name() string      { return "messages" }
func (c *MessagesCmd) Aliases() []string { return []string{"history"} }
func (c *MessagesCmd) Synopsis() string  { return "Print a conversation's history" }
func (c *MessagesCmd) Usage() string     { return "doit messages <chat-id>" }
func (c *MessagesCmd) NeedsAuth() bool   { return true }

func (c *MessagesCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *MessagesCmd) Run(ctx context.Context, cfg *config.Config, deps *Deps, args []string, out, errOut io.Writer) int {
	if len(args) != 1 {
		return usage(errOut, c)
	}
	view := views.NewChatView(deps.Service, deps.Media, deps.Viewer(), deps.logger())
	defer view.Close()

	if err := view.Open(ctx, args[0]); err != nil {
		return fail(errOut, err)
	}
	if len(view.Messages()) == 0 {
		return ok(out, cfg.Quiet, "no messages")
	}
	printHistory(out, view, deps.Viewer())
	return exitcode.Success
}

// SendCmd implements the send command.
type SendCmd struct {
	image string
}

func (c *SendCmd) Name() string      { return "send" }
func (c *SendCmd) Aliases() []string { return nil }
func (c *SendCmd) Synopsis() string  { return "Send a text or image message" }
func (c *SendCmd) Usage() string {
	return "doit send <chat-id> <text...> | doit send --image <file> <chat-id>"
}
func (c *SendCmd) NeedsAuth() bool { return true }

func (c *SendCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.image, "image", "", "")
}

func (c *SendCmd) Run(ctx context.Context, cfg *config.Config, deps *Deps, args []string, out, errOut io.Writer) int {
	if len(args) < 1 || (c.image == "" && len(args) < 2) {
		return usage(errOut, c)
	}

	var file media.File
	if c.image != "" {
		if len(args) != 1 {
			return usage(errOut, c)
		}
		f, err := media.Open(c.image)
		if err != nil {
			fmt.Fprintf(errOut, "error: %v\n", err)
			return exitcode.UserError
		}
		if err := media.Validate(f); err != nil {
			return fail(errOut, err)
		}
		file = f
	}

	view := views.NewChatView(deps.Service, deps.Media, deps.Viewer(), deps.logger())
	defer view.Close()

	if err := view.Open(ctx, args[0]); err != nil {
		return fail(errOut, err)
	}

	var err error
	if c.image != "" {
		err = view.SendImage(ctx, file)
	} else {
		err = view.SendText(ctx, strings.Join(args[1:], " "))
	}
	if err != nil {
		return fail(errOut, err)
	}

	if !cfg.Quiet {
		printHistory(out, view, deps.Viewer())
	}
	return exitcode.Success
}

func printHistory(out io.Writer, view *views.ChatView, viewer string) {
	for _, m := range view.Messages() {
		output.FormatMessage(out, m, viewer)
	}
}
