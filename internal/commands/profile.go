package commands

import (
	"context"
	"flag"
	"fmt"
	"io"

	"doit/internal/config"
	"doit/internal/exitcode"
	"doit/internal/media"
	"doit/internal/output"
	"doit/internal/service"
	"doit/internal/views"
)

func init() {
	Register(&ProfileCmd{})
	Register(&EditProfileCmd{})
	Register(&AvatarCmd{})
}

// ProfileCmd implements the profile command.
type ProfileCmd struct{}

func (c *ProfileCmd) Name() string      { return "profile" }
func (c *ProfileCmd) Aliases() []string { return nil }
func (c *ProfileCmd) Synopsis() string  { return "Show a profile with its reviews" }
func (c *ProfileCmd) Usage() string     { return "doit profile [uid]" }
func (c *ProfileCmd) NeedsAuth() bool   { return true }

func (c *ProfileCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *ProfileCmd) Run(ctx context.Context, cfg *config.Config, deps *Deps, args []string, out, errOut io.Writer) int {
	if len(args) > 1 {
		return usage(errOut, c)
	}
	uid := deps.Viewer()
	if len(args) == 1 {
		uid = args[0]
	}

	view := views.NewProfileView(deps.Service, deps.Media, uid)
	if err := view.Load(ctx); err != nil {
		return fail(errOut, err)
	}
	printProfile(out, view)
	return exitcode.Success
}

// EditProfileCmd implements the editprofile command.
type EditProfileCmd struct {
	name     optString
	bio      optString
	location optString
}

func (c *EditProfileCmd) Name() string      { return "editprofile" }
func (c *EditProfileCmd) Aliases() []string { return nil }
func (c *EditProfileCmd) Synopsis() string  { return "Change your display name, bio or location" }
func (c *EditProfileCmd) Usage() string {
	return "doit editprofile [--name <name>] [--bio <text>] [--location <text>]"
}
func (c *EditProfileCmd) NeedsAuth() bool { return true }

func (c *EditProfileCmd) RegisterFlags(fs *flag.FlagSet) {
	c.name, c.bio, c.location = optString{}, optString{}, optString{}
	fs.Var(&c.name, "name", "")
	fs.Var(&c.bio, "bio", "")
	fs.Var(&c.location, "location", "")
}

func (c *EditProfileCmd) Run(ctx context.Context, cfg *config.Config, deps *Deps, args []string, out, errOut io.Writer) int {
	in := service.ProfileUpdate{
		DisplayName: c.name.ptr(),
		Bio:         c.bio.ptr(),
		Location:    c.location.ptr(),
	}
	if in.DisplayName == nil && in.Bio == nil && in.Location == nil {
		fmt.Fprintln(errOut, "error: nothing to change")
		return exitcode.UserError
	}
	if in.DisplayName != nil && *in.DisplayName == "" {
		fmt.Fprintln(errOut, "error: name must not be empty")
		return exitcode.UserError
	}

	view := views.NewProfileView(deps.Service, deps.Media, deps.Viewer())
	if err := view.Update(ctx, in); err != nil {
		return fail(errOut, err)
	}
	if !cfg.Quiet {
		printProfile(out, view)
	}
	return exitcode.Success
}

// AvatarCmd implements the avatar command.
type AvatarCmd struct{}

func (c *AvatarCmd) Name() string      { return "avatar" }
func (c *AvatarCmd) Aliases() []string { return nil }
func (c *AvatarCmd) Synopsis() string  { return "Upload a new profile picture" }
func (c *AvatarCmd) Usage() string     { return "doit avatar <image-file>" }
func (c *AvatarCmd) NeedsAuth() bool   { return true }

func (c *AvatarCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *AvatarCmd) Run(ctx context.Context, cfg *config.Config, deps *Deps, args []string, out, errOut io.Writer) int {
	if len(args) != 1 {
		return usage(errOut, c)
	}
	f, err := media.Open(args[0])
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.UserError
	}

	view := views.NewProfileView(deps.Service, deps.Media, deps.Viewer())
	url, err := view.UploadAvatar(ctx, f)
	if err != nil {
		return fail(errOut, err)
	}
	return ok(out, cfg.Quiet, url)
}

func printProfile(out io.Writer, view *views.ProfileView) {
	output.FormatProfile(out, view.Profile(), view.Stats())
	reviews := view.Reviews()
	if len(reviews) == 0 {
		return
	}
	fmt.Fprintln(out)
	for _, r := range reviews {
		output.FormatReview(out, r)
	}
}
