package commands

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"doit/internal/config"
	"doit/internal/exitcode"
	"doit/internal/service"
	"doit/internal/session"
)

func init() {
	Register(&LoginCmd{})
	Register(&SignupCmd{})
}

// LoginCmd implements the login command.
type LoginCmd struct {
	password string
}

func (c *LoginCmd) Name() string      { return "login" }
func (c *LoginCmd) Aliases() []string { return nil }
func (c *LoginCmd) Synopsis() string  { return "Sign in with email and password" }
func (c *LoginCmd) Usage() string     { return "doit login [--password <pw>] <email>" }
func (c *LoginCmd) NeedsAuth() bool   { return false }

func (c *LoginCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.password, "password", "", "")
}

func (c *LoginCmd) Run(ctx context.Context, cfg *config.Config, deps *Deps, args []string, out, errOut io.Writer) int {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return usage(errOut, c)
	}
	if deps == nil || deps.Identity == nil {
		fmt.Fprintf(errOut, "error: %s\n", session.Message(session.ErrUnavailable))
		return exitcode.AuthError
	}

	password, code := promptPassword(c.password, deps.In, errOut)
	if code != exitcode.Success {
		return code
	}

	if err := cfg.EnsureDir(); err != nil {
		fmt.Fprintf(errOut, "error: failed to create config directory: %v\n", err)
		return exitcode.AuthError
	}

	u, err := deps.Identity.SignIn(ctx, strings.TrimSpace(args[0]), password)
	if err != nil {
		deps.logger().Debug("sign-in failed", "error", err)
		fmt.Fprintf(errOut, "error: login failed: %s\n", session.Message(err))
		return exitcode.AuthError
	}

	if !cfg.Quiet {
		fmt.Fprintf(out, "logged in as %s\n", displayName(u))
	}
	return exitcode.Success
}

// SignupCmd implements the signup command.
type SignupCmd struct {
	password string
	name     string
}

func (c *SignupCmd) Name() string      { return "signup" }
func (c *SignupCmd) Aliases() []string { return []string{"register"} }
func (c *SignupCmd) Synopsis() string  { return "Create an account" }
func (c *SignupCmd) Usage() string {
	return "doit signup [--name <display-name>] [--password <pw>] <email>"
}
func (c *SignupCmd) NeedsAuth() bool { return false }

func (c *SignupCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.password, "password", "", "")
	fs.StringVar(&c.name, "name", "", "")
}

func (c *SignupCmd) Run(ctx context.Context, cfg *config.Config, deps *Deps, args []string, out, errOut io.Writer) int {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return usage(errOut, c)
	}
	if deps == nil || deps.Identity == nil {
		fmt.Fprintf(errOut, "error: %s\n", session.Message(session.ErrUnavailable))
		return exitcode.AuthError
	}

	email := strings.TrimSpace(args[0])
	name := strings.TrimSpace(c.name)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}

	password, code := promptPassword(c.password, deps.In, errOut)
	if code != exitcode.Success {
		return code
	}

	if err := cfg.EnsureDir(); err != nil {
		fmt.Fprintf(errOut, "error: failed to create config directory: %v\n", err)
		return exitcode.AuthError
	}

	u, err := deps.Identity.SignUp(ctx, email, password, name)
	if err != nil {
		deps.logger().Debug("sign-up failed", "error", err)
		fmt.Fprintf(errOut, "error: signup failed: %s\n", session.Message(err))
		return exitcode.AuthError
	}

	// The account exists at the provider from here on; a failed backend
	// registration is reported but the session stays open.
	username, _, _ := strings.Cut(u.Email, "@")
	if deps.Service == nil {
		return ok(out, cfg.Quiet, "signed up as "+displayName(u))
	}
	if err := deps.Service.Register(ctx, service.RegisterInput{
		UID:         u.UID,
		Email:       u.Email,
		Username:    username,
		DisplayName: name,
	}); err != nil {
		return fail(errOut, err)
	}

	if !cfg.Quiet {
		fmt.Fprintf(out, "signed up as %s\n", displayName(u))
	}
	return exitcode.Success
}

// promptPassword returns flagValue or reads one line from in.
func promptPassword(flagValue string, in io.Reader, errOut io.Writer) (string, int) {
	if flagValue != "" {
		return flagValue, exitcode.Success
	}
	fmt.Fprint(errOut, "Password: ")
	pw, err := readLine(in)
	if err != nil && !errors.Is(err, io.EOF) {
		fmt.Fprintf(errOut, "\nerror: failed to read password: %v\n", err)
		return "", exitcode.UserError
	}
	if pw == "" {
		fmt.Fprintln(errOut, "\nerror: password required")
		return "", exitcode.UserError
	}
	return pw, exitcode.Success
}

func displayName(u *service.User) string {
	if u == nil {
		return ""
	}
	if u.DisplayName != "" && u.DisplayName != u.Email {
		return fmt.Sprintf("%s <%s>", u.DisplayName, u.Email)
	}
	return u.Email
}
