package service

import (
	"context"
	"errors"
)

var (
	// ErrUnauthorized is returned after the backend rejected the session.
	// The gateway has already evicted the token and fired the redirect hook,
	// so callers must not report it again.
	ErrUnauthorized = errors.New("session expired")

	// ErrNotFound is returned when the backend has no such resource.
	ErrNotFound = errors.New("not found")
)

// Service defines the backend operations the client relies on.
// All REST calls go through this interface; views never build requests.
type Service interface {
	// Register records a freshly created identity with the backend.
	Register(ctx context.Context, in RegisterInput) error

	// Me returns the signed-in user's profile.
	Me(ctx context.Context) (Profile, error)

	// UpdateProfile applies a partial update to the signed-in user's profile.
	UpdateProfile(ctx context.Context, in ProfileUpdate) (Profile, error)

	// Profile returns another user's profile.
	Profile(ctx context.Context, uid string) (Profile, error)

	// ListTasks returns tasks in backend order.
	ListTasks(ctx context.Context, q TaskQuery) ([]Task, error)

	// GetTask returns a single task.
	GetTask(ctx context.Context, id string) (Task, error)

	// CreateTask posts a task and returns it with its assigned ID.
	CreateTask(ctx context.Context, in TaskInput) (Task, error)

	// UpdateTask applies a partial update to a task.
	UpdateTask(ctx context.Context, id string, in TaskUpdate) (Task, error)

	// DeleteTask removes a task.
	DeleteTask(ctx context.Context, id string) error

	// CompleteTask moves a matched task to completed.
	CompleteTask(ctx context.Context, id string) error

	// MyPostedTasks returns tasks created by the signed-in user.
	MyPostedTasks(ctx context.Context) ([]Task, error)

	// MyAssignedTasks returns tasks the signed-in user works on.
	MyAssignedTasks(ctx context.Context) ([]Task, error)

	// Apply submits an application to a task.
	Apply(ctx context.Context, in ApplicationInput) (Application, error)

	// ListApplications returns the signed-in user's applications.
	ListApplications(ctx context.Context) ([]Application, error)

	// TaskApplications returns the applications on a task (creator only).
	TaskApplications(ctx context.Context, taskID string) ([]Application, error)

	// SetApplicationStatus accepts or rejects an application.
	SetApplicationStatus(ctx context.Context, id, status string) error

	// WithdrawApplication deletes a pending application.
	WithdrawApplication(ctx context.Context, id string) error

	// StartChat creates or returns the chat for a task and counterpart.
	StartChat(ctx context.Context, taskID, otherUID string) (string, error)

	// ListChats returns the signed-in user's conversations.
	ListChats(ctx context.Context) ([]Chat, error)

	// Messages returns a chat's full history.
	Messages(ctx context.Context, chatID string) ([]Message, error)

	// SendMessage persists a message.
	SendMessage(ctx context.Context, in MessageInput) (Message, error)

	// CreateReview rates the counterpart of a completed task.
	CreateReview(ctx context.Context, in ReviewInput) (Review, error)

	// Reviews returns reviews received by a user.
	Reviews(ctx context.Context, uid string) ([]Review, error)

	// ReviewStats returns a user's rating aggregate.
	ReviewStats(ctx context.Context, uid string) (ReviewStats, error)

	// Notifications returns all notifications of the signed-in user.
	Notifications(ctx context.Context) ([]Notification, error)

	// MarkNotificationRead marks one notification read.
	MarkNotificationRead(ctx context.Context, id string) error

	// MarkAllNotificationsRead marks every notification read.
	MarkAllNotificationsRead(ctx context.Context) error

	// DeleteNotification removes a notification.
	DeleteNotification(ctx context.Context, id string) error
}
