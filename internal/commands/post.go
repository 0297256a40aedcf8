package commands

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"slices"
	"strings"

	"doit/internal/config"
	"doit/internal/exitcode"
	"doit/internal/location"
	"doit/internal/media"
	"doit/internal/service"
	"doit/internal/views"
)

// defaultCategory is used when --category is omitted.
const defaultCategory = "Sonstiges"

func init() {
	Register(&PostCmd{})
}

// PostCmd implements the post command.
type PostCmd struct {
	title       string
	description string
	category    string
	location    string
	here        bool
	budget      optFloat
	deadline    optDate
	when        string
	flexible    bool
	images      stringList
	preview     bool
}

func (c *PostCmd) Name() string      { return "post" }
func (c *PostCmd) Aliases() []string { return []string{"add"} }
func (c *PostCmd) Synopsis() string  { return "Post a new task" }
func (c *PostCmd) Usage() string {
	return "doit post --title <title> [--description <text>] [--category <name>] " +
		"[--location <address> | --here] [--budget <eur>] [--deadline <YYYY-MM-DD>] " +
		"[--time <text>] [--flexible] [--image <file>]... [--preview]"
}
func (c *PostCmd) NeedsAuth() bool { return true }

func (c *PostCmd) RegisterFlags(fs *flag.FlagSet) {
	c.budget = optFloat{}
	c.deadline = optDate{}
	c.images = nil
	fs.StringVar(&c.title, "title", "", "")
	fs.StringVar(&c.title, "t", "", "")
	fs.StringVar(&c.description, "description", "", "")
	fs.StringVar(&c.description, "d", "", "")
	fs.StringVar(&c.category, "category", defaultCategory, "")
	fs.StringVar(&c.location, "location", "", "")
	fs.BoolVar(&c.here, "here", false, "")
	fs.Var(&c.budget, "budget", "")
	fs.Var(&c.deadline, "deadline", "")
	fs.StringVar(&c.when, "time", "", "")
	fs.BoolVar(&c.flexible, "flexible", false, "")
	fs.Var(&c.images, "image", "")
	fs.BoolVar(&c.preview, "preview", false, "")
}

func (c *PostCmd) Run(ctx context.Context, cfg *config.Config, deps *Deps, args []string, out, errOut io.Writer) int {
	title := c.title
	if title == "" && len(args) > 0 {
		title = strings.Join(args, " ")
	}
	if strings.TrimSpace(title) == "" {
		fmt.Fprintln(errOut, "error: title required")
		return exitcode.UserError
	}
	if !slices.Contains(service.Categories, c.category) {
		fmt.Fprintf(errOut, "error: unknown category: %s (one of %s)\n", c.category, strings.Join(service.Categories, ", "))
		return exitcode.UserError
	}
	if c.here && c.location != "" {
		fmt.Fprintln(errOut, "error: --here and --location are mutually exclusive")
		return exitcode.UserError
	}

	if len(c.images) > views.MaxTaskImages {
		return fail(errOut, views.ErrTooManyImages)
	}
	files := make([]media.File, 0, len(c.images))
	for _, path := range c.images {
		f, err := media.Open(path)
		if err != nil {
			fmt.Fprintf(errOut, "error: %v\n", err)
			return exitcode.UserError
		}
		if err := media.Validate(f); err != nil {
			return fail(errOut, err)
		}
		files = append(files, f)
	}

	in := service.TaskInput{
		Title:         strings.TrimSpace(title),
		Description:   strings.TrimSpace(c.description),
		Category:      c.category,
		Budget:        c.budget.value,
		PreferredTime: strings.TrimSpace(c.when),
		TimeFlexible:  c.flexible,
	}
	if c.deadline.value != nil {
		in.Deadline = &service.Timestamp{Time: *c.deadline.value}
	}

	place, err := c.resolvePlace(ctx, deps)
	if err != nil {
		return fail(errOut, err)
	}
	in.Location = place.Address
	in.Latitude, in.Longitude = place.Lat, place.Lon

	if c.preview && len(files) > 0 {
		if code := confirmPreviews(deps, files, out, errOut); code != exitcode.Success {
			return code
		}
	}

	board := views.NewTaskBoard(deps.Service, deps.Media, deps.Viewer(), deps.logger())
	task, err := board.Create(ctx, in, files)
	if err != nil {
		return fail(errOut, err)
	}

	if !cfg.Quiet {
		fmt.Fprintf(out, "created %s\n", task.ID)
	}
	return exitcode.Success
}

// resolvePlace turns the location flags into an address with optional
// coordinates. Free text is kept as typed when nothing better is found.
func (c *PostCmd) resolvePlace(ctx context.Context, deps *Deps) (location.Place, error) {
	if c.here {
		if deps.Location == nil {
			return location.Place{}, location.ErrPositionUnavailable
		}
		return deps.Location.CurrentPosition(ctx)
	}

	text := strings.TrimSpace(c.location)
	if text == "" || deps.Location == nil {
		return location.Place{Address: text}, nil
	}
	candidates, err := deps.Location.Suggest(ctx, text)
	if err != nil {
		deps.logger().Warn("address suggestions failed", "error", err)
		return location.Place{Address: text}, nil
	}
	if len(candidates) == 0 {
		return location.Place{Address: text}, nil
	}
	place, err := deps.Location.Resolve(ctx, candidates[0])
	if err != nil {
		deps.logger().Warn("geocoding failed", "error", err)
		return location.Place{Address: text}, nil
	}
	return place, nil
}

// confirmPreviews serves files on the loopback preview server and waits
// for the user to confirm. Previews are released before returning.
func confirmPreviews(deps *Deps, files []media.File, out, errOut io.Writer) int {
	if deps.Previews == nil {
		fmt.Fprintln(errOut, "error: previews not available")
		return exitcode.UserError
	}
	var urls []string
	defer func() {
		for _, u := range urls {
			deps.Previews.Release(u)
		}
	}()
	for _, f := range files {
		u, err := deps.Previews.Create(f)
		if err != nil {
			return fail(errOut, err)
		}
		urls = append(urls, u)
		fmt.Fprintf(out, "preview: %s  %s\n", f.Name, u)
	}

	fmt.Fprint(errOut, "Post this task? [y/N] ")
	answer, err := readLine(deps.In)
	if err != nil && !errors.Is(err, io.EOF) {
		return fail(errOut, err)
	}
	if a := strings.ToLower(answer); a != "y" && a != "yes" {
		fmt.Fprintln(errOut, "cancelled")
		return exitcode.UserError
	}
	return exitcode.Success
}
