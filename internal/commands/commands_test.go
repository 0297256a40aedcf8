package commands_test

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"doit/internal/commands"
	"doit/internal/config"
	"doit/internal/exitcode"
	"doit/internal/location"
	"doit/internal/media"
	"doit/internal/service"
	"doit/internal/session"
	"doit/internal/testutil"
)

func f64(v float64) *float64 { return &v }

func at(minute int) service.Timestamp {
	return service.Timestamp{Time: time.Date(2024, 5, 1, 12, minute, 0, 0, time.UTC)}
}

// runCommand parses args with the command's flags and runs it.
func runCommand(t *testing.T, cmd commands.Command, deps *commands.Deps, args []string, quiet bool) (stdout, stderr string, code int) {
	t.Helper()
	cfg := &config.Config{
		Dir:   t.TempDir(),
		Quiet: quiet,
	}
	return runWithConfig(t, context.Background(), cfg, cmd, deps, args)
}

func runWithConfig(t *testing.T, ctx context.Context, cfg *config.Config, cmd commands.Command, deps *commands.Deps, args []string) (stdout, stderr string, code int) {
	t.Helper()

	fs := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	cmd.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("failed to parse flags %v: %v", args, err)
	}

	var outBuf, errBuf bytes.Buffer
	code = cmd.Run(ctx, cfg, deps, fs.Args(), &outBuf, &errBuf)
	return outBuf.String(), errBuf.String(), code
}

// signedIn returns deps with a started session for uid, acting on svc.
func signedIn(t *testing.T, svc *testutil.FakeService, uid string) *commands.Deps {
	t.Helper()
	idp := testutil.NewFakeIdentity()
	idp.SetCurrent(&service.User{UID: uid, Email: uid + "@example.com"})

	store := session.NewStore(idp, nil)
	store.Start(context.Background())
	t.Cleanup(store.Close)
	if _, err := store.Wait(context.Background()); err != nil {
		t.Fatalf("session did not settle: %v", err)
	}

	svc.SetUser(uid)
	return &commands.Deps{Service: svc, Identity: idp, Session: store}
}

func writePNG(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, testutil.PNG(t, 64, 48), 0600); err != nil {
		t.Fatalf("failed to write image: %v", err)
	}
	return path
}

func seedBoard(svc *testutil.FakeService) {
	svc.AddTask(service.Task{ID: "t1", Title: "Rasen mähen", Category: "Garten", Status: service.StatusOpen, Budget: f64(25), CreatorUID: "U1"})
	svc.AddTask(service.Task{ID: "t2", Title: "Umzug", Category: "Transport", Status: service.StatusMatched, CreatorUID: "U2", TaskerUID: "U1"})
}

// Tests for version command
func TestVersionCommand(t *testing.T) {
	cmd := &commands.VersionCmd{}

	stdout, stderr, code := runCommand(t, cmd, nil, nil, false)

	if code != exitcode.Success {
		t.Errorf("expected exit code %d, got %d", exitcode.Success, code)
	}
	if stderr != "" {
		t.Errorf("expected no stderr, got %q", stderr)
	}
	if stdout != "doit 0.1.0\n" {
		t.Errorf("expected version output, got %q", stdout)
	}
}

// Tests for help command
func TestHelpCommand(t *testing.T) {
	cmd := &commands.HelpCmd{}

	stdout, stderr, code := runCommand(t, cmd, nil, nil, false)

	if code != exitcode.Success {
		t.Errorf("expected exit code %d, got %d", exitcode.Success, code)
	}
	if stderr != "" {
		t.Errorf("expected no stderr, got %q", stderr)
	}
	if !strings.Contains(stdout, "Usage:") {
		t.Error("help output should contain 'Usage:'")
	}
	for _, c := range commands.DefaultRegistry.All() {
		if !strings.Contains(stdout, "doit "+c.Name()) {
			t.Errorf("help output should mention %q", c.Name())
		}
	}
}

func TestHelpCommand_SingleCommand(t *testing.T) {
	stdout, _, code := runCommand(t, &commands.HelpCmd{}, nil, []string{"post"}, false)

	if code != exitcode.Success {
		t.Fatalf("expected exit code %d, got %d", exitcode.Success, code)
	}
	if !strings.HasPrefix(stdout, "Post a new task\n") || !strings.Contains(stdout, "doit post --title") {
		t.Errorf("unexpected help output %q", stdout)
	}

	_, stderr, code := runCommand(t, &commands.HelpCmd{}, nil, []string{"nope"}, false)
	if code != exitcode.UserError || stderr != "error: unknown command: nope\n" {
		t.Errorf("expected unknown command error, got %d %q", code, stderr)
	}
}

// Tests for tasks command
func TestTasksCommand_ListsBoard(t *testing.T) {
	svc := testutil.NewFakeService("")
	seedBoard(svc)

	stdout, stderr, code := runCommand(t, &commands.TasksCmd{}, &commands.Deps{Service: svc}, nil, false)

	if code != exitcode.Success {
		t.Errorf("expected exit code %d, got %d", exitcode.Success, code)
	}
	if stderr != "" {
		t.Errorf("expected no stderr, got %q", stderr)
	}
	expected := "t1  open       Garten      Rasen mähen  25.00 EUR\n" +
		"t2  matched    Transport   Umzug\n"
	if stdout != expected {
		t.Errorf("expected %q, got %q", expected, stdout)
	}
}

func TestTasksCommand_Filters(t *testing.T) {
	svc := testutil.NewFakeService("")
	seedBoard(svc)
	deps := &commands.Deps{Service: svc}

	stdout, _, _ := runCommand(t, &commands.TasksCmd{}, deps, []string{"--category", "Garten"}, false)
	if !strings.HasPrefix(stdout, "t1 ") || strings.Contains(stdout, "t2") {
		t.Errorf("expected only t1, got %q", stdout)
	}

	stdout, _, _ = runCommand(t, &commands.TasksCmd{}, deps, []string{"--status", "matched"}, false)
	if !strings.HasPrefix(stdout, "t2 ") || strings.Contains(stdout, "t1") {
		t.Errorf("expected only t2, got %q", stdout)
	}

	stdout, _, _ = runCommand(t, &commands.TasksCmd{}, deps, []string{"--search", "RASEN"}, false)
	if !strings.HasPrefix(stdout, "t1 ") {
		t.Errorf("expected search to match t1, got %q", stdout)
	}

	stdout, _, _ = runCommand(t, &commands.TasksCmd{}, deps, []string{"umzug"}, false)
	if !strings.HasPrefix(stdout, "t2 ") {
		t.Errorf("expected positional search to match t2, got %q", stdout)
	}
}

func TestTasksCommand_InvalidFilters(t *testing.T) {
	svc := testutil.NewFakeService("")
	deps := &commands.Deps{Service: svc}

	_, stderr, code := runCommand(t, &commands.TasksCmd{}, deps, []string{"--status", "bogus"}, false)
	if code != exitcode.UserError || stderr != "error: unknown status: bogus\n" {
		t.Errorf("expected status error, got %d %q", code, stderr)
	}

	_, stderr, code = runCommand(t, &commands.TasksCmd{}, deps, []string{"--category", "Kochen"}, false)
	if code != exitcode.UserError || !strings.HasPrefix(stderr, "error: unknown category: Kochen") {
		t.Errorf("expected category error, got %d %q", code, stderr)
	}
	if svc.CallCount("ListTasks") != 0 {
		t.Error("invalid filters must not reach the backend")
	}
}

func TestTasksCommand_Empty(t *testing.T) {
	svc := testutil.NewFakeService("")

	stdout, _, code := runCommand(t, &commands.TasksCmd{}, &commands.Deps{Service: svc}, nil, false)
	if code != exitcode.Success || stdout != "no tasks found\n" {
		t.Errorf("expected empty message, got %d %q", code, stdout)
	}

	// Quiet mode should suppress "no tasks found"
	stdout, _, _ = runCommand(t, &commands.TasksCmd{}, &commands.Deps{Service: svc}, nil, true)
	if stdout != "" {
		t.Errorf("expected empty stdout in quiet mode, got %q", stdout)
	}
}

func TestTasksCommand_BackendError(t *testing.T) {
	svc := testutil.NewFakeService("")
	svc.ListTasksErr = errors.New("connection refused")

	stdout, stderr, code := runCommand(t, &commands.TasksCmd{}, &commands.Deps{Service: svc}, nil, false)

	if code != exitcode.BackendError {
		t.Errorf("expected exit code %d, got %d", exitcode.BackendError, code)
	}
	if stdout != "" {
		t.Errorf("expected no stdout, got %q", stdout)
	}
	if stderr != "error: backend error: connection refused\n" {
		t.Errorf("unexpected stderr %q", stderr)
	}
}

func TestTasksCommand_UnauthorizedPrintsNothing(t *testing.T) {
	svc := testutil.NewFakeService("")
	svc.ListTasksErr = service.ErrUnauthorized

	stdout, stderr, code := runCommand(t, &commands.TasksCmd{}, &commands.Deps{Service: svc}, nil, false)

	if code != exitcode.AuthError {
		t.Errorf("expected exit code %d, got %d", exitcode.AuthError, code)
	}
	if stdout != "" || stderr != "" {
		t.Errorf("expected no output, got %q / %q", stdout, stderr)
	}
}

// Tests for mytasks command
func TestMyTasksCommand_Scopes(t *testing.T) {
	svc := testutil.NewFakeService("U1")
	seedBoard(svc)
	deps := signedIn(t, svc, "U1")

	stdout, _, code := runCommand(t, &commands.MyTasksCmd{}, deps, nil, false)
	if code != exitcode.Success {
		t.Fatalf("expected exit code %d, got %d", exitcode.Success, code)
	}
	if !strings.Contains(stdout, "t1 ") || !strings.Contains(stdout, "t2 ") {
		t.Errorf("expected both tasks, got %q", stdout)
	}

	stdout, _, _ = runCommand(t, &commands.MyTasksCmd{}, deps, []string{"--filter", "created"}, false)
	if !strings.HasPrefix(stdout, "t1 ") || strings.Contains(stdout, "t2") {
		t.Errorf("expected only created task, got %q", stdout)
	}

	_, stderr, code := runCommand(t, &commands.MyTasksCmd{}, deps, []string{"--filter", "archived"}, false)
	if code != exitcode.UserError || stderr != "error: unknown filter: archived\n" {
		t.Errorf("expected filter error, got %d %q", code, stderr)
	}
}

// Tests for task command
func TestTaskCommand_ShowsActions(t *testing.T) {
	svc := testutil.NewFakeService("U2")
	seedBoard(svc)
	deps := signedIn(t, svc, "U2")

	stdout, stderr, code := runCommand(t, &commands.TaskCmd{}, deps, []string{"t1"}, false)

	if code != exitcode.Success {
		t.Fatalf("expected exit code %d, got %d (%s)", exitcode.Success, code, stderr)
	}
	if !strings.Contains(stdout, "id:        t1\n") || !strings.HasSuffix(stdout, "actions: apply\n") {
		t.Errorf("unexpected detail %q", stdout)
	}
}

func TestTaskCommand_NotFound(t *testing.T) {
	svc := testutil.NewFakeService("")

	stdout, stderr, code := runCommand(t, &commands.TaskCmd{}, &commands.Deps{Service: svc}, []string{"missing"}, false)

	if code != exitcode.UserError {
		t.Errorf("expected exit code %d, got %d", exitcode.UserError, code)
	}
	if stdout != "" {
		t.Errorf("expected no stdout, got %q", stdout)
	}
	if stderr != "error: not found\n" {
		t.Errorf("unexpected stderr %q", stderr)
	}
}

func TestTaskCommand_Usage(t *testing.T) {
	_, stderr, code := runCommand(t, &commands.TaskCmd{}, &commands.Deps{}, nil, false)
	if code != exitcode.UserError || stderr != "usage: doit task <task-id>\n" {
		t.Errorf("expected usage, got %d %q", code, stderr)
	}
}

// Tests for apply, accept, complete and review
func TestApplyCommand_Success(t *testing.T) {
	svc := testutil.NewFakeService("U2")
	seedBoard(svc)
	deps := signedIn(t, svc, "U2")

	stdout, stderr, code := runCommand(t, &commands.ApplyCmd{}, deps, []string{"--price", "20", "t1", "Gern", "morgen"}, false)

	if code != exitcode.Success {
		t.Fatalf("expected exit code %d, got %d (%s)", exitcode.Success, code, stderr)
	}
	if stdout != "ok\n" {
		t.Errorf("expected ok, got %q", stdout)
	}

	svc.SetUser("U1")
	task, err := svc.GetTask(context.Background(), "t1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(task.Applications) != 1 {
		t.Fatalf("expected one application, got %d", len(task.Applications))
	}
	a := task.Applications[0]
	if a.Message != "Gern morgen" || a.OfferedPrice == nil || *a.OfferedPrice != 20 {
		t.Errorf("unexpected application %+v", a)
	}
}

func TestApplyCommand_OwnTask(t *testing.T) {
	svc := testutil.NewFakeService("U1")
	seedBoard(svc)
	deps := signedIn(t, svc, "U1")

	_, stderr, code := runCommand(t, &commands.ApplyCmd{}, deps, []string{"t1"}, false)

	if code != exitcode.UserError {
		t.Errorf("expected exit code %d, got %d", exitcode.UserError, code)
	}
	if stderr != "error: action not available for this task\n" {
		t.Errorf("unexpected stderr %q", stderr)
	}
	if svc.CallCount("Apply") != 0 {
		t.Error("expected no application to be sent")
	}
}

func TestTaskLifecycle_AcceptCompleteReview(t *testing.T) {
	svc := testutil.NewFakeService("U2")
	svc.AddTask(service.Task{ID: "t1", Title: "Rasen mähen", Category: "Garten", Status: service.StatusOpen, CreatorUID: "U1"})
	app, err := svc.Apply(context.Background(), service.ApplicationInput{TaskID: "t1", Message: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	deps := signedIn(t, svc, "U1")

	if _, stderr, code := runCommand(t, &commands.AcceptCmd{}, deps, []string{app.ID}, false); code != exitcode.Success {
		t.Fatalf("accept failed: %d %s", code, stderr)
	}
	task, _ := svc.StoredTask("t1")
	if task.Status != service.StatusMatched || task.TaskerUID != "U2" {
		t.Fatalf("expected matched with U2, got %+v", task)
	}

	_, stderr, code := runCommand(t, &commands.ReviewCmd{}, deps, []string{"t1", "5"}, false)
	if code != exitcode.UserError || stderr != "error: action not available for this task\n" {
		t.Errorf("expected review before completion to be refused, got %d %q", code, stderr)
	}

	if _, stderr, code := runCommand(t, &commands.CompleteCmd{}, deps, []string{"t1"}, false); code != exitcode.Success {
		t.Fatalf("complete failed: %d %s", code, stderr)
	}
	task, _ = svc.StoredTask("t1")
	if task.Status != service.StatusCompleted {
		t.Fatalf("expected completed, got %s", task.Status)
	}

	if _, stderr, code := runCommand(t, &commands.ReviewCmd{}, deps, []string{"t1", "5", "Sehr", "zuverlässig"}, false); code != exitcode.Success {
		t.Fatalf("review failed: %d %s", code, stderr)
	}
	reviews := svc.StoredReviews()
	if len(reviews) != 1 || reviews[0].ReviewedID != "U2" || reviews[0].Comment != "Sehr zuverlässig" {
		t.Errorf("unexpected reviews %+v", reviews)
	}
}

func TestReviewCommand_InvalidRating(t *testing.T) {
	svc := testutil.NewFakeService("U1")
	deps := signedIn(t, svc, "U1")

	_, stderr, code := runCommand(t, &commands.ReviewCmd{}, deps, []string{"t1", "x"}, false)
	if code != exitcode.UserError || stderr != "error: invalid rating: x\n" {
		t.Errorf("expected parse error, got %d %q", code, stderr)
	}

	_, stderr, code = runCommand(t, &commands.ReviewCmd{}, deps, []string{"t1", "7"}, false)
	if code != exitcode.UserError || stderr != "error: rating must be between 1 and 5\n" {
		t.Errorf("expected range error, got %d %q", code, stderr)
	}
	if len(svc.Calls()) != 0 {
		t.Errorf("expected no backend calls, got %v", svc.Calls())
	}
}

func TestCompleteCommand_NotCreator(t *testing.T) {
	svc := testutil.NewFakeService("U1")
	seedBoard(svc)
	deps := signedIn(t, svc, "U1")

	// t2 was posted by U2; U1 is only the tasker.
	_, stderr, code := runCommand(t, &commands.CompleteCmd{}, deps, []string{"t2"}, false)
	if code != exitcode.UserError || stderr != "error: action not available for this task\n" {
		t.Errorf("expected refusal, got %d %q", code, stderr)
	}
}

// Tests for post command
func TestPostCommand_TitleRequired(t *testing.T) {
	svc := testutil.NewFakeService("U1")
	deps := signedIn(t, svc, "U1")

	stdout, stderr, code := runCommand(t, &commands.PostCmd{}, deps, []string{"--title", "   "}, false)

	if code != exitcode.UserError {
		t.Errorf("expected exit code %d, got %d", exitcode.UserError, code)
	}
	if stdout != "" {
		t.Errorf("expected no stdout, got %q", stdout)
	}
	if stderr != "error: title required\n" {
		t.Errorf("unexpected stderr %q", stderr)
	}
}

func TestPostCommand_UnknownCategory(t *testing.T) {
	svc := testutil.NewFakeService("U1")
	deps := signedIn(t, svc, "U1")

	_, stderr, code := runCommand(t, &commands.PostCmd{}, deps, []string{"--title", "Hilfe", "--category", "Kochen"}, false)
	if code != exitcode.UserError || !strings.HasPrefix(stderr, "error: unknown category: Kochen") {
		t.Errorf("expected category error, got %d %q", code, stderr)
	}
}

func TestPostCommand_ResolvesLocationAndUploadsImages(t *testing.T) {
	svc := testutil.NewFakeService("U1")
	store := testutil.NewFakeStorage()
	deps := signedIn(t, svc, "U1")
	deps.Media = media.NewPipeline(store, nil)
	deps.Location = location.NewResolver(&testutil.FakePlaces{
		Candidates: []location.Candidate{{Description: "Berlin, Deutschland", PlaceID: "p1"}},
		Geocoded:   map[string]location.Place{"Berlin, Deutschland": {Address: "Berlin, Deutschland", Lat: f64(52.52), Lon: f64(13.405)}},
	}, nil, location.Options{})

	img := writePNG(t, "garten.png")
	args := []string{
		"--title", "Rasen mähen", "--category", "Garten", "--location", "Berlin",
		"--budget", "25,50", "--deadline", "2024-06-01", "--image", img, "--image", img,
	}
	stdout, stderr, code := runCommand(t, &commands.PostCmd{}, deps, args, false)

	if code != exitcode.Success {
		t.Fatalf("expected exit code %d, got %d (%s)", exitcode.Success, code, stderr)
	}
	if stdout != "created t1\n" {
		t.Errorf("expected created line, got %q", stdout)
	}

	task, ok := svc.StoredTask("t1")
	if !ok {
		t.Fatal("expected task to be stored")
	}
	if task.Location != "Berlin, Deutschland" || task.Latitude == nil || *task.Latitude != 52.52 {
		t.Errorf("expected geocoded location, got %q %v", task.Location, task.Latitude)
	}
	if task.Budget == nil || *task.Budget != 25.5 {
		t.Errorf("expected budget 25.5, got %v", task.Budget)
	}
	if task.Deadline == nil || task.Deadline.Format("2006-01-02") != "2024-06-01" {
		t.Errorf("unexpected deadline %v", task.Deadline)
	}
	if len(task.Images) != 2 {
		t.Fatalf("expected two images, got %v", task.Images)
	}
	for i, u := range task.Images {
		want := "https://storage.test/tasks/U1/t1/task_t1_" + string(rune('0'+i)) + "_"
		if !strings.HasPrefix(u, want) {
			t.Errorf("image %d: expected prefix %q, got %q", i, want, u)
		}
	}
}

func TestPostCommand_InvalidImageNeverCreatesTask(t *testing.T) {
	svc := testutil.NewFakeService("U1")
	deps := signedIn(t, svc, "U1")
	deps.Media = media.NewPipeline(testutil.NewFakeStorage(), nil)

	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("hello"), 0600); err != nil {
		t.Fatal(err)
	}

	_, stderr, code := runCommand(t, &commands.PostCmd{}, deps, []string{"--title", "Hilfe", "--image", path}, false)

	if code != exitcode.UserError {
		t.Errorf("expected exit code %d, got %d", exitcode.UserError, code)
	}
	if stderr != "error: notes.txt: only JPEG, PNG and WebP images are allowed\n" {
		t.Errorf("unexpected stderr %q", stderr)
	}
	if svc.CallCount("CreateTask") != 0 {
		t.Error("expected no task to be created")
	}
}

func TestPostCommand_TooManyImages(t *testing.T) {
	svc := testutil.NewFakeService("U1")
	deps := signedIn(t, svc, "U1")
	deps.Media = media.NewPipeline(testutil.NewFakeStorage(), nil)

	args := []string{"--title", "Hilfe"}
	for i := 0; i < 4; i++ {
		args = append(args, "--image", writePNG(t, "photo.png"))
	}
	_, stderr, code := runCommand(t, &commands.PostCmd{}, deps, args, false)

	if code != exitcode.UserError {
		t.Errorf("expected exit code %d, got %d", exitcode.UserError, code)
	}
	if stderr != "error: at most 3 images per task\n" {
		t.Errorf("unexpected stderr %q", stderr)
	}
	if svc.CallCount("CreateTask") != 0 {
		t.Error("expected no task to be created")
	}
}

func TestPostCommand_Here(t *testing.T) {
	svc := testutil.NewFakeService("U1")
	deps := signedIn(t, svc, "U1")
	fixed, err := location.ParseFixed("52.52,13.405")
	if err != nil {
		t.Fatal(err)
	}
	deps.Location = location.NewResolver(&testutil.FakePlaces{Reverse: "Alexanderplatz, Berlin"}, fixed, location.Options{})

	if _, stderr, code := runCommand(t, &commands.PostCmd{}, deps, []string{"--title", "Hilfe", "--here"}, false); code != exitcode.Success {
		t.Fatalf("post failed: %d %s", code, stderr)
	}
	task, _ := svc.StoredTask("t1")
	if task.Location != "Alexanderplatz, Berlin" || task.Longitude == nil || *task.Longitude != 13.405 {
		t.Errorf("unexpected location %q %v", task.Location, task.Longitude)
	}
}

func TestPostCommand_HereDenied(t *testing.T) {
	svc := testutil.NewFakeService("U1")
	deps := signedIn(t, svc, "U1")
	deps.Location = location.NewResolver(nil, location.DisabledLocator{}, location.Options{})

	_, stderr, code := runCommand(t, &commands.PostCmd{}, deps, []string{"--title", "Hilfe", "--here"}, false)

	if code != exitcode.UserError {
		t.Errorf("expected exit code %d, got %d", exitcode.UserError, code)
	}
	if stderr != "error: "+location.Message(location.ErrPermissionDenied)+"\n" {
		t.Errorf("unexpected stderr %q", stderr)
	}
	if svc.CallCount("CreateTask") != 0 {
		t.Error("expected no task to be created")
	}
}

func TestPostCommand_PreviewConfirmAndRelease(t *testing.T) {
	svc := testutil.NewFakeService("U1")
	deps := signedIn(t, svc, "U1")
	deps.Media = media.NewPipeline(testutil.NewFakeStorage(), nil)
	deps.Previews = media.NewPreviews(nil)
	t.Cleanup(func() { deps.Previews.Close(context.Background()) })
	deps.In = strings.NewReader("y\n")

	img := writePNG(t, "garten.png")
	stdout, stderr, code := runCommand(t, &commands.PostCmd{}, deps, []string{"--title", "Hilfe", "--image", img, "--preview"}, false)

	if code != exitcode.Success {
		t.Fatalf("expected exit code %d, got %d (%s)", exitcode.Success, code, stderr)
	}
	if !strings.HasPrefix(stdout, "preview: garten.png  http://127.0.0.1:") {
		t.Errorf("expected preview url, got %q", stdout)
	}
	if deps.Previews.Len() != 0 {
		t.Errorf("expected previews released, %d live", deps.Previews.Len())
	}
}

func TestPostCommand_PreviewDeclined(t *testing.T) {
	svc := testutil.NewFakeService("U1")
	deps := signedIn(t, svc, "U1")
	deps.Media = media.NewPipeline(testutil.NewFakeStorage(), nil)
	deps.Previews = media.NewPreviews(nil)
	t.Cleanup(func() { deps.Previews.Close(context.Background()) })
	deps.In = strings.NewReader("n\n")

	img := writePNG(t, "garten.png")
	_, _, code := runCommand(t, &commands.PostCmd{}, deps, []string{"--title", "Hilfe", "--image", img, "--preview"}, false)

	if code != exitcode.UserError {
		t.Errorf("expected exit code %d, got %d", exitcode.UserError, code)
	}
	if svc.CallCount("CreateTask") != 0 {
		t.Error("expected no task to be created")
	}
	if deps.Previews.Len() != 0 {
		t.Errorf("expected previews released, %d live", deps.Previews.Len())
	}
}

// Tests for chat commands
func TestChatCommand_StartAndSend(t *testing.T) {
	svc := testutil.NewFakeService("U1")
	svc.AddTask(service.Task{ID: "t1", Title: "Umzug", Status: service.StatusMatched, CreatorUID: "U1", TaskerUID: "U2"})
	deps := signedIn(t, svc, "U1")

	stdout, stderr, code := runCommand(t, &commands.ChatCmd{}, deps, []string{"t1"}, false)
	if code != exitcode.Success {
		t.Fatalf("chat failed: %d %s", code, stderr)
	}
	if stdout != "chat c1\n" {
		t.Errorf("expected chat id, got %q", stdout)
	}

	stdout, stderr, code = runCommand(t, &commands.SendCmd{}, deps, []string{"c1", "Hallo", "du"}, false)
	if code != exitcode.Success {
		t.Fatalf("send failed: %d %s", code, stderr)
	}
	if stdout != "[2024-05-01 12:02] me: Hallo du\n" {
		t.Errorf("unexpected history %q", stdout)
	}

	// A second chat for the same task reuses the conversation.
	stdout, _, _ = runCommand(t, &commands.ChatCmd{}, deps, []string{"t1"}, false)
	if !strings.HasPrefix(stdout, "chat c1\n") {
		t.Errorf("expected existing chat, got %q", stdout)
	}
}

func TestChatCommand_OpenTaskRefused(t *testing.T) {
	svc := testutil.NewFakeService("U1")
	seedBoard(svc)
	deps := signedIn(t, svc, "U1")

	_, stderr, code := runCommand(t, &commands.ChatCmd{}, deps, []string{"t1"}, false)
	if code != exitcode.UserError || stderr != "error: action not available for this task\n" {
		t.Errorf("expected refusal, got %d %q", code, stderr)
	}
	if svc.CallCount("StartChat") != 0 {
		t.Error("expected no chat to be started")
	}
}

func TestMessagesCommand_SortsHistory(t *testing.T) {
	svc := testutil.NewFakeService("U1")
	svc.AddMessage(service.Message{ID: "m2", ChatID: "c9", SenderUID: "U2", Content: "zweite", MessageType: service.MessageText, CreatedAt: at(5)})
	svc.AddMessage(service.Message{ID: "m1", ChatID: "c9", SenderUID: "U1", Content: "erste", MessageType: service.MessageText, CreatedAt: at(1)})
	deps := signedIn(t, svc, "U1")

	stdout, _, code := runCommand(t, &commands.MessagesCmd{}, deps, []string{"c9"}, false)

	if code != exitcode.Success {
		t.Fatalf("expected exit code %d, got %d", exitcode.Success, code)
	}
	expected := "[2024-05-01 12:01] me: erste\n[2024-05-01 12:05] U2: zweite\n"
	if stdout != expected {
		t.Errorf("expected %q, got %q", expected, stdout)
	}
}

func TestSendCommand_EmptyMessage(t *testing.T) {
	svc := testutil.NewFakeService("U1")
	deps := signedIn(t, svc, "U1")

	_, stderr, code := runCommand(t, &commands.SendCmd{}, deps, []string{"c9", "  "}, false)
	if code != exitcode.UserError || stderr != "error: message is empty\n" {
		t.Errorf("expected validation error, got %d %q", code, stderr)
	}
	if svc.CallCount("SendMessage") != 0 {
		t.Error("expected nothing sent")
	}
}

func TestSendCommand_Image(t *testing.T) {
	svc := testutil.NewFakeService("U1")
	deps := signedIn(t, svc, "U1")
	deps.Media = media.NewPipeline(testutil.NewFakeStorage(), nil)
	img := writePNG(t, "foto.png")

	_, stderr, code := runCommand(t, &commands.SendCmd{}, deps, []string{"--image", img, "c9"}, true)
	if code != exitcode.Success {
		t.Fatalf("send failed: %d %s", code, stderr)
	}
	msgs := svc.StoredMessages("c9")
	if len(msgs) != 1 || msgs[0].MessageType != service.MessageImage ||
		!strings.HasPrefix(msgs[0].ImageURL, "https://storage.test/chats/c9/chat_") {
		t.Errorf("unexpected messages %+v", msgs)
	}
}

func TestChatsCommand(t *testing.T) {
	svc := testutil.NewFakeService("U1")
	deps := signedIn(t, svc, "U1")

	stdout, _, _ := runCommand(t, &commands.ChatsCmd{}, deps, nil, false)
	if stdout != "no conversations\n" {
		t.Errorf("expected empty message, got %q", stdout)
	}

	if _, err := svc.StartChat(context.Background(), "t1", "U2"); err != nil {
		t.Fatal(err)
	}
	stdout, _, _ = runCommand(t, &commands.ChatsCmd{}, deps, nil, false)
	if stdout != "c1  task t1  with U2  2024-05-01 12:01\n" {
		t.Errorf("unexpected chats %q", stdout)
	}
}

// Tests for notification commands
func seedNotifications(svc *testutil.FakeService) {
	svc.AddNotification(service.Notification{ID: "n1", Type: service.NotifyNewApplication, Title: "Neue Bewerbung", Message: "U2 hat sich beworben"})
	svc.AddNotification(service.Notification{ID: "n2", Type: service.NotifyTaskCompleted, Title: "Fertig", Read: true})
}

func TestNotificationsCommand(t *testing.T) {
	svc := testutil.NewFakeService("U1")
	seedNotifications(svc)
	deps := signedIn(t, svc, "U1")

	stdout, _, code := runCommand(t, &commands.NotificationsCmd{}, deps, nil, false)
	if code != exitcode.Success {
		t.Fatalf("expected exit code %d, got %d", exitcode.Success, code)
	}
	expected := "* n1  Neue Bewerbung: U2 hat sich beworben\n  n2  Fertig\n1 unread\n"
	if stdout != expected {
		t.Errorf("expected %q, got %q", expected, stdout)
	}

	stdout, _, _ = runCommand(t, &commands.NotificationsCmd{}, deps, []string{"--unread"}, true)
	if stdout != "* n1  Neue Bewerbung: U2 hat sich beworben\n" {
		t.Errorf("unexpected unread listing %q", stdout)
	}
}

func TestReadCommand_UpdatesLocallyWithoutRefetch(t *testing.T) {
	svc := testutil.NewFakeService("U1")
	seedNotifications(svc)
	deps := signedIn(t, svc, "U1")

	stdout, _, code := runCommand(t, &commands.ReadCmd{}, deps, []string{"n1"}, false)

	if code != exitcode.Success {
		t.Fatalf("expected exit code %d, got %d", exitcode.Success, code)
	}
	if stdout != "ok, 0 unread\n" {
		t.Errorf("unexpected output %q", stdout)
	}
	if n := svc.CallCount("Notifications"); n != 1 {
		t.Errorf("expected a single fetch, got %d", n)
	}
}

func TestRmNotifAndReadAll(t *testing.T) {
	svc := testutil.NewFakeService("U1")
	seedNotifications(svc)
	deps := signedIn(t, svc, "U1")

	stdout, _, _ := runCommand(t, &commands.RmNotifCmd{}, deps, []string{"n2"}, false)
	if stdout != "ok, 1 unread\n" {
		t.Errorf("unexpected rmnotif output %q", stdout)
	}
	stdout, _, _ = runCommand(t, &commands.ReadAllCmd{}, deps, nil, false)
	if stdout != "ok, 0 unread\n" {
		t.Errorf("unexpected readall output %q", stdout)
	}
}

func TestReadCommand_Errors(t *testing.T) {
	svc := testutil.NewFakeService("U1")
	deps := signedIn(t, svc, "U1")

	_, stderr, code := runCommand(t, &commands.ReadCmd{}, deps, []string{"nope"}, false)
	if code != exitcode.UserError || stderr != "error: not found\n" {
		t.Errorf("expected not found, got %d %q", code, stderr)
	}

	svc.NotificationsErr = errors.New("boom")
	_, stderr, code = runCommand(t, &commands.ReadCmd{}, deps, []string{"n1"}, false)
	if code != exitcode.BackendError || stderr != "error: backend error: boom\n" {
		t.Errorf("expected backend error, got %d %q", code, stderr)
	}
}

func TestWatchCommand_PrintsEachNotificationOnce(t *testing.T) {
	svc := testutil.NewFakeService("U1")
	seedNotifications(svc)
	deps := signedIn(t, svc, "U1")

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	cfg := &config.Config{Dir: t.TempDir()}

	stdout, stderr, code := runWithConfig(t, ctx, cfg, &commands.WatchCmd{}, deps, []string{"--interval", "20ms"})

	if code != exitcode.Success {
		t.Fatalf("expected exit code %d, got %d (%s)", exitcode.Success, code, stderr)
	}
	if strings.Count(stdout, "n1") != 1 || strings.Count(stdout, "n2") != 1 {
		t.Errorf("expected each notification once, got %q", stdout)
	}
	if svc.CallCount("Notifications") < 2 {
		t.Errorf("expected polling, got %d fetches", svc.CallCount("Notifications"))
	}
}

func TestWatchCommand_KeepsPollingAfterFailedFirstFetch(t *testing.T) {
	svc := testutil.NewFakeService("U1")
	seedNotifications(svc)
	svc.NotificationsErr = errors.New("backend down")
	svc.NotificationsFailures = 1
	deps := signedIn(t, svc, "U1")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	cfg := &config.Config{Dir: t.TempDir()}

	stdout, stderr, code := runWithConfig(t, ctx, cfg, &commands.WatchCmd{}, deps, []string{"--interval", "20ms"})

	if code != exitcode.Success {
		t.Fatalf("expected exit code %d, got %d (%s)", exitcode.Success, code, stderr)
	}
	if !strings.Contains(stdout, "n1") {
		t.Errorf("expected notifications after recovery, got %q", stdout)
	}
	if svc.CallCount("Notifications") < 2 {
		t.Errorf("expected a retry, got %d fetches", svc.CallCount("Notifications"))
	}
}

func TestWatchCommand_UnauthorizedStops(t *testing.T) {
	svc := testutil.NewFakeService("U1")
	svc.NotificationsErr = service.ErrUnauthorized
	deps := signedIn(t, svc, "U1")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	cfg := &config.Config{Dir: t.TempDir()}

	stdout, _, code := runWithConfig(t, ctx, cfg, &commands.WatchCmd{}, deps, []string{"--interval", "20ms"})

	if code != exitcode.AuthError {
		t.Errorf("expected exit code %d, got %d", exitcode.AuthError, code)
	}
	if stdout != "" {
		t.Errorf("expected no output, got %q", stdout)
	}
	if ctx.Err() != nil {
		t.Error("expected the command to return before the deadline")
	}
}

// Tests for places command
func newResolver(places *testutil.FakePlaces) *location.Resolver {
	return location.NewResolver(places, nil, location.Options{})
}

func berlinPlaces() *testutil.FakePlaces {
	return &testutil.FakePlaces{
		Candidates: []location.Candidate{
			{Description: "Berlin, Deutschland", PlaceID: "p1"},
			{Description: "Bernau bei Berlin, Deutschland", PlaceID: "p2"},
		},
		Geocoded: map[string]location.Place{
			"Berlin, Deutschland": {Address: "Berlin, Deutschland", Lat: f64(52.52), Lon: f64(13.405)},
		},
	}
}

func TestPlacesCommand_Suggest(t *testing.T) {
	places := berlinPlaces()
	deps := &commands.Deps{Location: newResolver(places)}

	stdout, _, code := runCommand(t, &commands.PlacesCmd{}, deps, []string{"Berlin"}, false)
	if code != exitcode.Success {
		t.Fatalf("expected exit code %d, got %d", exitcode.Success, code)
	}
	expected := "   1  Berlin, Deutschland\n   2  Bernau bei Berlin, Deutschland\n"
	if stdout != expected {
		t.Errorf("expected %q, got %q", expected, stdout)
	}
	if places.Countries[0] != "de" {
		t.Errorf("expected country restriction de, got %q", places.Countries[0])
	}
}

func TestPlacesCommand_ShortInput(t *testing.T) {
	places := berlinPlaces()
	deps := &commands.Deps{Location: newResolver(places)}

	stdout, _, _ := runCommand(t, &commands.PlacesCmd{}, deps, []string{"Be"}, false)
	if stdout != "no suggestions (at least 3 characters)\n" {
		t.Errorf("unexpected output %q", stdout)
	}
	if len(places.InputLog()) != 0 {
		t.Error("short input must not reach the provider")
	}
}

func TestPlacesCommand_Resolve(t *testing.T) {
	deps := &commands.Deps{Location: newResolver(berlinPlaces())}

	stdout, _, _ := runCommand(t, &commands.PlacesCmd{}, deps, []string{"--resolve", "Berlin"}, false)
	if stdout != "Berlin, Deutschland (52.520000, 13.405000)\n" {
		t.Errorf("unexpected output %q", stdout)
	}
}

func TestPlacesCommand_InteractiveDeliversLastInput(t *testing.T) {
	places := berlinPlaces()
	deps := &commands.Deps{Location: newResolver(places), In: strings.NewReader("Be\nBer\nBerlin\n")}

	stdout, _, code := runCommand(t, &commands.PlacesCmd{}, deps, []string{"--debounce", "30ms"}, false)

	if code != exitcode.Success {
		t.Fatalf("expected exit code %d, got %d", exitcode.Success, code)
	}
	if !strings.HasPrefix(stdout, "> Berlin\n") || strings.Contains(stdout, "> Ber\n") {
		t.Errorf("expected only the last input, got %q", stdout)
	}
	if log := places.InputLog(); len(log) != 1 || log[0] != "Berlin" {
		t.Errorf("expected a single provider request, got %v", log)
	}
}

func TestPlacesCommand_NotConfigured(t *testing.T) {
	_, stderr, code := runCommand(t, &commands.PlacesCmd{}, &commands.Deps{}, []string{"Berlin"}, false)
	if code != exitcode.UserError || stderr != "error: location services not configured\n" {
		t.Errorf("expected configuration error, got %d %q", code, stderr)
	}
}

// Tests for profile commands
func TestProfileCommand(t *testing.T) {
	svc := testutil.NewFakeService("U1")
	svc.AddProfile(service.Profile{UID: "U1", DisplayName: "Anna", PostedTasks: 2})
	deps := signedIn(t, svc, "U1")

	stdout, _, code := runCommand(t, &commands.ProfileCmd{}, deps, nil, false)
	if code != exitcode.Success {
		t.Fatalf("expected exit code %d, got %d", exitcode.Success, code)
	}
	if !strings.Contains(stdout, "Anna\n") || !strings.Contains(stdout, "posted:     2\n") ||
		!strings.Contains(stdout, "rating:     0.0 (0 reviews)\n") {
		t.Errorf("unexpected profile %q", stdout)
	}

	_, stderr, code := runCommand(t, &commands.ProfileCmd{}, deps, []string{"U404"}, false)
	if code != exitcode.UserError || stderr != "error: not found\n" {
		t.Errorf("expected not found, got %d %q", code, stderr)
	}
}

func TestEditProfileCommand(t *testing.T) {
	svc := testutil.NewFakeService("U1")
	svc.AddProfile(service.Profile{UID: "U1", DisplayName: "Anna", Bio: "alt"})
	deps := signedIn(t, svc, "U1")

	_, stderr, code := runCommand(t, &commands.EditProfileCmd{}, deps, []string{"--bio", "Gärtnerin", "--location", ""}, true)
	if code != exitcode.Success {
		t.Fatalf("edit failed: %d %s", code, stderr)
	}
	p, _ := svc.Profile(context.Background(), "U1")
	if p.Bio != "Gärtnerin" || p.Location != "" || p.DisplayName != "Anna" {
		t.Errorf("unexpected profile %+v", p)
	}

	_, stderr, code = runCommand(t, &commands.EditProfileCmd{}, deps, nil, false)
	if code != exitcode.UserError || stderr != "error: nothing to change\n" {
		t.Errorf("expected nothing to change, got %d %q", code, stderr)
	}
}

func TestAvatarCommand(t *testing.T) {
	svc := testutil.NewFakeService("U1")
	svc.AddProfile(service.Profile{UID: "U1", DisplayName: "Anna"})
	deps := signedIn(t, svc, "U1")
	deps.Media = media.NewPipeline(testutil.NewFakeStorage(), nil)

	stdout, stderr, code := runCommand(t, &commands.AvatarCmd{}, deps, []string{writePNG(t, "me.png")}, false)
	if code != exitcode.Success {
		t.Fatalf("avatar failed: %d %s", code, stderr)
	}
	if !strings.HasPrefix(stdout, "https://storage.test/avatars/U1/avatar_") {
		t.Errorf("unexpected url %q", stdout)
	}
	p, _ := svc.Profile(context.Background(), "U1")
	if p.AvatarURL != strings.TrimSpace(stdout) {
		t.Errorf("expected profile avatar %q, got %q", strings.TrimSpace(stdout), p.AvatarURL)
	}
}
