// Package doitapi implements the service.Service interface over the DoIt
// REST backend.
package doitapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"doit/internal/gateway"
	"doit/internal/service"
)

// Client implements service.Service using the backend gateway.
type Client struct {
	gw  *gateway.Gateway
	uid func() string
}

// New creates a Client. uid reports the signed-in user's ID and is used to
// fill the owner fields some request bodies carry.
func New(gw *gateway.Gateway, uid func() string) *Client {
	if uid == nil {
		uid = func() string { return "" }
	}
	return &Client{gw: gw, uid: uid}
}

func (c *Client) do(ctx context.Context, method, path string, body any, params url.Values, out any) error {
	return wrapError(c.gw.Do(ctx, method, path, body, params, out))
}

// Register records a freshly created identity with the backend.
func (c *Client) Register(ctx context.Context, in service.RegisterInput) error {
	return c.do(ctx, http.MethodPost, "/api/auth/register", in, nil, nil)
}

// Me returns the signed-in user's profile.
func (c *Client) Me(ctx context.Context) (service.Profile, error) {
	var p service.Profile
	err := c.do(ctx, http.MethodGet, "/api/users/me", nil, nil, &p)
	return p, err
}

// UpdateProfile applies a partial update to the signed-in user's profile.
func (c *Client) UpdateProfile(ctx context.Context, in service.ProfileUpdate) (service.Profile, error) {
	var p service.Profile
	err := c.do(ctx, http.MethodPut, "/api/users/me", in, nil, &p)
	return p, err
}

// Profile returns another user's profile.
func (c *Client) Profile(ctx context.Context, uid string) (service.Profile, error) {
	var p service.Profile
	err := c.do(ctx, http.MethodGet, "/api/users/"+url.PathEscape(uid), nil, nil, &p)
	return p, err
}

// ListTasks returns tasks in backend order.
func (c *Client) ListTasks(ctx context.Context, q service.TaskQuery) ([]service.Task, error) {
	params := url.Values{}
	if q.Category != "" {
		params.Set("category", q.Category)
	}
	if q.Status != "" {
		params.Set("status", q.Status)
	}
	if q.Skip > 0 {
		params.Set("skip", strconv.Itoa(q.Skip))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	var tasks []service.Task
	err := c.do(ctx, http.MethodGet, "/api/tasks/", nil, params, &tasks)
	return tasks, err
}

// GetTask returns a single task.
func (c *Client) GetTask(ctx context.Context, id string) (service.Task, error) {
	var t service.Task
	err := c.do(ctx, http.MethodGet, taskPath(id), nil, nil, &t)
	return t, err
}

// CreateTask posts a task.
func (c *Client) CreateTask(ctx context.Context, in service.TaskInput) (service.Task, error) {
	if in.CreatorUID == "" {
		in.CreatorUID = c.uid()
	}
	if in.Images == nil {
		in.Images = []string{}
	}
	var t service.Task
	err := c.do(ctx, http.MethodPost, "/api/tasks/", in, nil, &t)
	return t, err
}

// UpdateTask applies a partial update to a task.
func (c *Client) UpdateTask(ctx context.Context, id string, in service.TaskUpdate) (service.Task, error) {
	var t service.Task
	err := c.do(ctx, http.MethodPut, taskPath(id), in, nil, &t)
	return t, err
}

// DeleteTask removes a task.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, taskPath(id), nil, nil, nil)
}

// CompleteTask moves a matched task to completed.
func (c *Client) CompleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, taskPath(id)+"/complete", nil, nil, nil)
}

// MyPostedTasks returns tasks created by the signed-in user.
func (c *Client) MyPostedTasks(ctx context.Context) ([]service.Task, error) {
	var tasks []service.Task
	err := c.do(ctx, http.MethodGet, "/api/tasks/my-posted", nil, nil, &tasks)
	return tasks, err
}

// MyAssignedTasks returns tasks the signed-in user works on.
func (c *Client) MyAssignedTasks(ctx context.Context) ([]service.Task, error) {
	var tasks []service.Task
	err := c.do(ctx, http.MethodGet, "/api/tasks/my-assigned", nil, nil, &tasks)
	return tasks, err
}

// Apply submits an application to a task.
func (c *Client) Apply(ctx context.Context, in service.ApplicationInput) (service.Application, error) {
	if in.ApplicantUID == "" {
		in.ApplicantUID = c.uid()
	}
	var a service.Application
	err := c.do(ctx, http.MethodPost, "/api/applications/", in, nil, &a)
	return a, err
}

// ListApplications returns the signed-in user's applications.
func (c *Client) ListApplications(ctx context.Context) ([]service.Application, error) {
	var apps []service.Application
	err := c.do(ctx, http.MethodGet, "/api/applications/", nil, nil, &apps)
	return apps, err
}

// TaskApplications returns the applications on a task.
func (c *Client) TaskApplications(ctx context.Context, taskID string) ([]service.Application, error) {
	var apps []service.Application
	err := c.do(ctx, http.MethodGet, "/api/applications/task/"+url.PathEscape(taskID), nil, nil, &apps)
	return apps, err
}

// SetApplicationStatus accepts or rejects an application.
func (c *Client) SetApplicationStatus(ctx context.Context, id, status string) error {
	body := map[string]string{"status": status}
	return c.do(ctx, http.MethodPut, applicationPath(id), body, nil, nil)
}

// WithdrawApplication deletes a pending application.
func (c *Client) WithdrawApplication(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, applicationPath(id), nil, nil, nil)
}

// StartChat creates or returns the chat for a task and counterpart.
func (c *Client) StartChat(ctx context.Context, taskID, otherUID string) (string, error) {
	body := map[string]string{"task_id": taskID, "user2_id": otherUID}
	var resp struct {
		ChatID string `json:"chat_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/chat/start", body, nil, &resp); err != nil {
		return "", err
	}
	if resp.ChatID == "" {
		return "", errors.New("backend returned no chat id")
	}
	return resp.ChatID, nil
}

// ListChats returns the signed-in user's conversations.
func (c *Client) ListChats(ctx context.Context) ([]service.Chat, error) {
	var chats []service.Chat
	err := c.do(ctx, http.MethodGet, "/api/chat/", nil, nil, &chats)
	return chats, err
}

// Messages returns a chat's full history.
func (c *Client) Messages(ctx context.Context, chatID string) ([]service.Message, error) {
	var msgs []service.Message
	err := c.do(ctx, http.MethodGet, "/api/chat/"+url.PathEscape(chatID)+"/messages", nil, nil, &msgs)
	return msgs, err
}

// SendMessage persists a message.
func (c *Client) SendMessage(ctx context.Context, in service.MessageInput) (service.Message, error) {
	if in.SenderUID == "" {
		in.SenderUID = c.uid()
	}
	if in.MessageType == "" {
		in.MessageType = service.MessageText
	}
	var m service.Message
	err := c.do(ctx, http.MethodPost, "/api/chat/send", in, nil, &m)
	return m, err
}

// CreateReview rates the counterpart of a completed task.
func (c *Client) CreateReview(ctx context.Context, in service.ReviewInput) (service.Review, error) {
	var r service.Review
	err := c.do(ctx, http.MethodPost, "/api/reviews/", in, nil, &r)
	return r, err
}

// Reviews returns reviews received by a user.
func (c *Client) Reviews(ctx context.Context, uid string) ([]service.Review, error) {
	var reviews []service.Review
	err := c.do(ctx, http.MethodGet, "/api/reviews/", nil, url.Values{"user_id": {uid}}, &reviews)
	return reviews, err
}

// ReviewStats returns a user's rating aggregate.
func (c *Client) ReviewStats(ctx context.Context, uid string) (service.ReviewStats, error) {
	var stats service.ReviewStats
	err := c.do(ctx, http.MethodGet, "/api/reviews/user/"+url.PathEscape(uid)+"/stats", nil, nil, &stats)
	return stats, err
}

// Notifications returns all notifications of the signed-in user.
func (c *Client) Notifications(ctx context.Context) ([]service.Notification, error) {
	var items []service.Notification
	err := c.do(ctx, http.MethodGet, "/api/notifications/", nil, nil, &items)
	return items, err
}

// MarkNotificationRead marks one notification read.
func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPut, notificationPath(id)+"/read", nil, nil, nil)
}

// MarkAllNotificationsRead marks every notification read.
func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	return c.do(ctx, http.MethodPut, "/api/notifications/read-all", nil, nil, nil)
}

// DeleteNotification removes a notification.
func (c *Client) DeleteNotification(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, notificationPath(id), nil, nil, nil)
}

func taskPath(id string) string         { return "/api/tasks/" + url.PathEscape(id) }
func applicationPath(id string) string  { return "/api/applications/" + url.PathEscape(id) }
func notificationPath(id string) string { return "/api/notifications/" + url.PathEscape(id) }

// wrapError maps gateway errors onto the service sentinels.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gateway.ErrUnauthorized) {
		return service.ErrUnauthorized
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("request timed out")
	}
	var se *gateway.StatusError
	if errors.As(err, &se) {
		if se.Status == http.StatusNotFound {
			return fmt.Errorf("%w: %s", service.ErrNotFound, se.Detail)
		}
	}
	return err
}
