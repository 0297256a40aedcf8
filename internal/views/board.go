package views

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"doit/internal/media"
	"doit/internal/service"
)

// DefaultApplicationMessage is sent when an applicant gives no message.
const DefaultApplicationMessage = "Ich bin interessiert an dieser Aufgabe!"

// TaskBoard holds the public task listing and the viewer's own tasks.
// Every mutation is followed by a full Refresh.
type TaskBoard struct {
	svc    service.Service
	media  *media.Pipeline
	viewer string
	log    *slog.Logger

	mu    sync.Mutex
	tasks []service.Task
	mine  []service.Task
}

// NewTaskBoard creates a board for viewer. pipeline may be nil when no
// images are posted.
func NewTaskBoard(svc service.Service, pipeline *media.Pipeline, viewer string, log *slog.Logger) *TaskBoard {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &TaskBoard{svc: svc, media: pipeline, viewer: viewer, log: log}
}

// Refresh re-fetches the listing and, for a signed-in viewer, their posted,
// assigned and applied-to tasks.
func (b *TaskBoard) Refresh(ctx context.Context) error {
	tasks, err := b.svc.ListTasks(ctx, service.TaskQuery{})
	if err != nil {
		return err
	}

	var mine []service.Task
	if b.viewer != "" {
		posted, err := b.svc.MyPostedTasks(ctx)
		if err != nil {
			return err
		}
		assigned, err := b.svc.MyAssignedTasks(ctx)
		if err != nil {
			return err
		}
		mine = mergeTasks(posted, assigned, FilterMyTasks(tasks, b.viewer, ScopeApplied))
	}

	b.mu.Lock()
	b.tasks = tasks
	b.mine = mine
	b.mu.Unlock()
	b.log.Debug("task board refreshed", "tasks", len(tasks), "mine", len(mine))
	return nil
}

// mergeTasks concatenates lists dropping repeated IDs, first occurrence wins.
func mergeTasks(lists ...[]service.Task) []service.Task {
	seen := make(map[string]bool)
	var out []service.Task
	for _, l := range lists {
		for _, t := range l {
			if seen[t.ID] {
				continue
			}
			seen[t.ID] = true
			out = append(out, t)
		}
	}
	return out
}

// Tasks returns the last fetched listing.
func (b *TaskBoard) Tasks() []service.Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]service.Task(nil), b.tasks...)
}

// Visible returns the listing narrowed by f.
func (b *TaskBoard) Visible(f Filter) []service.Task {
	return FilterTasks(b.Tasks(), f)
}

// Mine returns the viewer's tasks narrowed by scope.
func (b *TaskBoard) Mine(scope Scope) []service.Task {
	b.mu.Lock()
	mine := append([]service.Task(nil), b.mine...)
	b.mu.Unlock()
	return FilterMyTasks(mine, b.viewer, scope)
}

// Find returns a task from the last fetch.
func (b *TaskBoard) Find(id string) (service.Task, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, list := range [][]service.Task{b.tasks, b.mine} {
		for _, t := range list {
			if t.ID == id {
				return t, true
			}
		}
	}
	return service.Task{}, false
}

// lookup returns a known task or fetches it.
func (b *TaskBoard) lookup(ctx context.Context, id string) (service.Task, error) {
	if t, ok := b.Find(id); ok {
		return t, nil
	}
	return b.svc.GetTask(ctx, id)
}

// Apply submits an application to taskID.
func (b *TaskBoard) Apply(ctx context.Context, taskID, message string, price *float64) error {
	t, err := b.lookup(ctx, taskID)
	if err != nil {
		return err
	}
	if !ActionsFor(t, b.viewer).Apply {
		return ErrNotAllowed
	}
	if strings.TrimSpace(message) == "" {
		message = DefaultApplicationMessage
	}
	if _, err := b.svc.Apply(ctx, service.ApplicationInput{
		TaskID:       taskID,
		ApplicantUID: b.viewer,
		Message:      message,
		OfferedPrice: price,
	}); err != nil {
		return err
	}
	return b.Refresh(ctx)
}

// Accept accepts an application, matching its task.
func (b *TaskBoard) Accept(ctx context.Context, applicationID string) error {
	if err := b.svc.SetApplicationStatus(ctx, applicationID, service.ApplicationAccepted); err != nil {
		return err
	}
	return b.Refresh(ctx)
}

// Complete marks a matched task completed.
func (b *TaskBoard) Complete(ctx context.Context, taskID string) error {
	t, err := b.lookup(ctx, taskID)
	if err != nil {
		return err
	}
	if !ActionsFor(t, b.viewer).Complete {
		return ErrNotAllowed
	}
	if err := b.svc.CompleteTask(ctx, taskID); err != nil {
		return err
	}
	return b.Refresh(ctx)
}

// Create posts a task, uploads its images and attaches their URLs. Images
// are validated before the task is created; an upload failure leaves the
// task without images and is returned along with it.
func (b *TaskBoard) Create(ctx context.Context, in service.TaskInput, images []media.File) (service.Task, error) {
	if strings.TrimSpace(in.Title) == "" {
		return service.Task{}, ErrEmptyTitle
	}
	if len(images) > MaxTaskImages {
		return service.Task{}, ErrTooManyImages
	}
	for _, f := range images {
		if err := media.Validate(f); err != nil {
			return service.Task{}, err
		}
	}
	if len(images) > 0 && b.media == nil {
		return service.Task{}, fmt.Errorf("image upload not configured")
	}
	in.CreatorUID = b.viewer

	task, err := b.svc.CreateTask(ctx, in)
	if err != nil {
		return service.Task{}, err
	}

	if len(images) > 0 {
		uploaded, err := b.media.UploadTaskImages(ctx, b.viewer, task.ID, images)
		if err != nil {
			b.log.Warn("task image upload failed", "task", task.ID, "error", err)
			return task, fmt.Errorf("task %s created but images failed: %w", task.ID, err)
		}
		urls := make([]string, len(uploaded))
		for i, u := range uploaded {
			urls[i] = u.URL
		}
		updated, err := b.svc.UpdateTask(ctx, task.ID, service.TaskUpdate{Images: urls})
		if err != nil {
			b.log.Warn("attaching task images failed", "task", task.ID, "error", err)
			return task, fmt.Errorf("task %s created but images not attached: %w", task.ID, err)
		}
		task = updated
	}
	return task, b.Refresh(ctx)
}

// Review rates the counterpart of a completed task.
func (b *TaskBoard) Review(ctx context.Context, taskID string, rating int, comment string) error {
	if rating < 1 || rating > 5 {
		return ErrInvalidRating
	}
	t, err := b.lookup(ctx, taskID)
	if err != nil {
		return err
	}
	if !ActionsFor(t, b.viewer).Review {
		return ErrNotAllowed
	}
	reviewed := Counterpart(t, b.viewer)
	if reviewed == "" {
		return ErrNoCounterpart
	}
	if _, err := b.svc.CreateReview(ctx, service.ReviewInput{
		TaskID:     taskID,
		ReviewedID: reviewed,
		Rating:     rating,
		Comment:    strings.TrimSpace(comment),
	}); err != nil {
		return err
	}
	return b.Refresh(ctx)
}
