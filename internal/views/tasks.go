// Package views holds the coordinators behind each screen of the client:
// they fetch through the service, keep the last result, derive what the
// viewer may do and re-fetch after every change.
package views

import (
	"errors"
	"fmt"
	"strings"

	"doit/internal/service"
)

// MaxTaskImages is the number of images a task can carry.
const MaxTaskImages = 3

// Validation failures reported before any request is sent.
var (
	ErrEmptyTitle    = errors.New("title is required")
	ErrEmptyMessage  = errors.New("message is empty")
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
	ErrNotAllowed    = errors.New("action not available for this task")
	ErrNoCounterpart = errors.New("task has no counterpart yet")
	ErrNoChat        = errors.New("no conversation open")
	ErrNotSignedIn   = errors.New("not signed in")
	ErrTooManyImages = fmt.Errorf("at most %d images per task", MaxTaskImages)
)

// IsValidation reports whether err was raised locally before any request.
func IsValidation(err error) bool {
	for _, v := range []error{ErrEmptyTitle, ErrEmptyMessage, ErrInvalidRating, ErrNotAllowed, ErrNoCounterpart, ErrNoChat, ErrTooManyImages} {
		if errors.Is(err, v) {
			return true
		}
	}
	return false
}

// Filter narrows the task board. Empty fields do not constrain.
type Filter struct {
	Search   string
	Category string
	Status   string
}

// Match reports whether t satisfies every set field of f.
func (f Filter) Match(t service.Task) bool {
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(t.Title), q) &&
			!strings.Contains(strings.ToLower(t.Description), q) {
			return false
		}
	}
	if f.Category != "" && t.Category != f.Category {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	return true
}

// FilterTasks returns the tasks matching f in their original order.
func FilterTasks(tasks []service.Task, f Filter) []service.Task {
	out := make([]service.Task, 0, len(tasks))
	for _, t := range tasks {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	return out
}

// Scope selects the viewer's own tasks.
type Scope string

const (
	ScopeAll       Scope = "all"
	ScopeCreated   Scope = "created"
	ScopeApplied   Scope = "applied"
	ScopeCompleted Scope = "completed"
)

// ParseScope validates a scope name. Empty means ScopeAll.
func ParseScope(s string) (Scope, bool) {
	switch Scope(s) {
	case "", ScopeAll:
		return ScopeAll, true
	case ScopeCreated, ScopeApplied, ScopeCompleted:
		return Scope(s), true
	}
	return "", false
}

// FilterMyTasks narrows the viewer's tasks to scope.
func FilterMyTasks(tasks []service.Task, viewer string, scope Scope) []service.Task {
	out := make([]service.Task, 0, len(tasks))
	for _, t := range tasks {
		switch scope {
		case ScopeCreated:
			if t.CreatorUID != viewer {
				continue
			}
		case ScopeApplied:
			if !appliedBy(t, viewer) {
				continue
			}
		case ScopeCompleted:
			if t.Status != service.StatusCompleted {
				continue
			}
		}
		out = append(out, t)
	}
	return out
}

func appliedBy(t service.Task, uid string) bool {
	for _, a := range t.Applications {
		if a.ApplicantUID == uid {
			return true
		}
	}
	return false
}

// Actions are the operations offered to a viewer on a task. They are hints
// for the interface; the backend still decides.
type Actions struct {
	Apply    bool
	Accept   bool
	Chat     bool
	Complete bool
	Review   bool
}

// ActionsFor derives the actions viewer may take on t.
func ActionsFor(t service.Task, viewer string) Actions {
	if viewer == "" {
		return Actions{}
	}
	creator := t.CreatorUID == viewer
	participant := creator || (t.TaskerUID != "" && t.TaskerUID == viewer)

	var a Actions
	switch t.Status {
	case service.StatusOpen:
		a.Apply = !creator
		a.Accept = creator && len(PendingApplications(t)) > 0
	case service.StatusMatched:
		a.Chat = participant
		a.Complete = creator
	case service.StatusCompleted:
		a.Review = participant
	}
	return a
}

// Counterpart returns the other participant of t from viewer's side, or ""
// when there is none.
func Counterpart(t service.Task, viewer string) string {
	if viewer == "" {
		return ""
	}
	switch viewer {
	case t.CreatorUID:
		return t.TaskerUID
	case t.TaskerUID:
		return t.CreatorUID
	}
	return ""
}

// PendingApplications returns t's applications still awaiting a decision.
func PendingApplications(t service.Task) []service.Application {
	var out []service.Application
	for _, a := range t.Applications {
		if a.Status == "" || a.Status == service.ApplicationPending {
			out = append(out, a)
		}
	}
	return out
}
