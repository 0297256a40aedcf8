// Package testutil provides testing utilities.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"doit/internal/service"
)

// ErrNotFound is returned when a resource is not found.
var ErrNotFound = service.ErrNotFound

// FakeService is an in-memory implementation of service.Service for testing.
// It applies the backend's lifecycle rules so views can be exercised
// end to end.
type FakeService struct {
	mu            sync.RWMutex
	me            string
	tasks         []service.Task
	applications  []service.Application
	chats         []service.Chat
	messages      map[string][]service.Message
	notifications []service.Notification
	profiles      map[string]service.Profile
	reviews       []service.Review
	seq           int
	clock         time.Time
	calls         []string

	// Error injection for testing
	ListTasksErr     error
	CreateTaskErr    error
	UpdateTaskErr    error
	CompleteTaskErr  error
	ApplyErr         error
	AcceptErr        error
	StartChatErr     error
	MessagesErr      error
	SendMessageErr   error
	NotificationsErr error
	// NotificationsFailures fails that many Notifications calls with
	// NotificationsErr before succeeding. Zero fails every call.
	NotificationsFailures int
	MarkReadErr      error
	DeleteNotifErr   error
	ProfileErr       error
	CreateReviewErr  error
	RegisterErr      error
}

// NewFakeService creates a FakeService acting for the user uid.
func NewFakeService(uid string) *FakeService {
	return &FakeService{
		me:       uid,
		messages: make(map[string][]service.Message),
		profiles: make(map[string]service.Profile),
		clock:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

// SetUser switches the acting user.
func (f *FakeService) SetUser(uid string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.me = uid
}

// AddTask seeds a task.
func (f *FakeService) AddTask(t service.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t.Status == "" {
		t.Status = service.StatusOpen
	}
	f.tasks = append(f.tasks, t)
}

// AddNotification seeds a notification.
func (f *FakeService) AddNotification(n service.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications = append(f.notifications, n)
}

// AddMessage seeds a message.
func (f *FakeService) AddMessage(m service.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[m.ChatID] = append(f.messages[m.ChatID], m)
}

// AddProfile seeds a profile.
func (f *FakeService) AddProfile(p service.Profile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[p.UID] = p
}

// Calls returns the method names invoked so far, in order.
func (f *FakeService) Calls() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount returns how often method was invoked.
func (f *FakeService) CallCount(method string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	n := 0
	for _, c := range f.calls {
		if c == method {
			n++
		}
	}
	return n
}

// ResetCalls clears the call log.
func (f *FakeService) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// StoredMessages returns the persisted messages of a chat.
func (f *FakeService) StoredMessages(chatID string) []service.Message {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]service.Message(nil), f.messages[chatID]...)
}

// StoredTask returns a task as the backend holds it.
func (f *FakeService) StoredTask(id string) (service.Task, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	i := f.taskIndex(id)
	if i < 0 {
		return service.Task{}, false
	}
	return f.tasks[i], true
}

// StoredReviews returns all persisted reviews.
func (f *FakeService) StoredReviews() []service.Review {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]service.Review(nil), f.reviews...)
}

func (f *FakeService) record(method string) {
	f.calls = append(f.calls, method)
}

func (f *FakeService) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s%d", prefix, f.seq)
}

func (f *FakeService) now() service.Timestamp {
	f.clock = f.clock.Add(time.Minute)
	return service.Timestamp{Time: f.clock}
}

func (f *FakeService) taskIndex(id string) int {
	for i, t := range f.tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// withApplications attaches applications visible to the acting user.
func (f *FakeService) withApplications(t service.Task) service.Task {
	t.Applications = nil
	for _, a := range f.applications {
		if a.TaskID != t.ID {
			continue
		}
		if t.CreatorUID == f.me || a.ApplicantUID == f.me {
			t.Applications = append(t.Applications, a)
		}
	}
	return t
}

// Register implements service.Service.
func (f *FakeService) Register(ctx context.Context, in service.RegisterInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Register")
	if f.RegisterErr != nil {
		return f.RegisterErr
	}
	f.profiles[in.UID] = service.Profile{UID: in.UID, DisplayName: in.DisplayName}
	return nil
}

// Me implements service.Service.
func (f *FakeService) Me(ctx context.Context) (service.Profile, error) {
	return f.Profile(ctx, f.me)
}

// UpdateProfile implements service.Service.
func (f *FakeService) UpdateProfile(ctx context.Context, in service.ProfileUpdate) (service.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("UpdateProfile")
	if f.ProfileErr != nil {
		return service.Profile{}, f.ProfileErr
	}
	p := f.profiles[f.me]
	p.UID = f.me
	if in.DisplayName != nil {
		p.DisplayName = *in.DisplayName
	}
	if in.Bio != nil {
		p.Bio = *in.Bio
	}
	if in.Location != nil {
		p.Location = *in.Location
	}
	if in.AvatarURL != nil {
		p.AvatarURL = *in.AvatarURL
	}
	f.profiles[f.me] = p
	return p, nil
}

// Profile implements service.Service.
func (f *FakeService) Profile(ctx context.Context, uid string) (service.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Profile")
	if f.ProfileErr != nil {
		return service.Profile{}, f.ProfileErr
	}
	p, ok := f.profiles[uid]
	if !ok {
		return service.Profile{}, ErrNotFound
	}
	return p, nil
}

// ListTasks implements service.Service.
func (f *FakeService) ListTasks(ctx context.Context, q service.TaskQuery) ([]service.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListTasks")
	if f.ListTasksErr != nil {
		return nil, f.ListTasksErr
	}
	var out []service.Task
	for _, t := range f.tasks {
		if q.Category != "" && t.Category != q.Category {
			continue
		}
		if q.Status != "" && t.Status != q.Status {
			continue
		}
		out = append(out, f.withApplications(t))
	}
	return out, nil
}

// GetTask implements service.Service.
func (f *FakeService) GetTask(ctx context.Context, id string) (service.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetTask")
	i := f.taskIndex(id)
	if i < 0 {
		return service.Task{}, ErrNotFound
	}
	return f.withApplications(f.tasks[i]), nil
}

// CreateTask implements service.Service.
func (f *FakeService) CreateTask(ctx context.Context, in service.TaskInput) (service.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateTask")
	if f.CreateTaskErr != nil {
		return service.Task{}, f.CreateTaskErr
	}
	t := service.Task{
		ID:            f.nextID("t"),
		Title:         in.Title,
		Description:   in.Description,
		Category:      in.Category,
		Location:      in.Location,
		Latitude:      in.Latitude,
		Longitude:     in.Longitude,
		Budget:        in.Budget,
		Deadline:      in.Deadline,
		PreferredTime: in.PreferredTime,
		TimeFlexible:  in.TimeFlexible,
		Status:        service.StatusOpen,
		CreatorUID:    f.me,
		Images:        append([]string{}, in.Images...),
		CreatedAt:     f.now(),
	}
	f.tasks = append(f.tasks, t)
	return t, nil
}

// UpdateTask implements service.Service.
func (f *FakeService) UpdateTask(ctx context.Context, id string, in service.TaskUpdate) (service.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("UpdateTask")
	if f.UpdateTaskErr != nil {
		return service.Task{}, f.UpdateTaskErr
	}
	i := f.taskIndex(id)
	if i < 0 {
		return service.Task{}, ErrNotFound
	}
	t := &f.tasks[i]
	if in.Title != nil {
		t.Title = *in.Title
	}
	if in.Description != nil {
		t.Description = *in.Description
	}
	if in.Location != nil {
		t.Location = *in.Location
	}
	if in.Category != nil {
		t.Category = *in.Category
	}
	if in.Budget != nil {
		t.Budget = in.Budget
	}
	if in.Images != nil {
		t.Images = append([]string{}, in.Images...)
	}
	return *t, nil
}

// DeleteTask implements service.Service.
func (f *FakeService) DeleteTask(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DeleteTask")
	i := f.taskIndex(id)
	if i < 0 {
		return ErrNotFound
	}
	f.tasks = append(f.tasks[:i], f.tasks[i+1:]...)
	return nil
}

// CompleteTask implements service.Service.
func (f *FakeService) CompleteTask(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CompleteTask")
	if f.CompleteTaskErr != nil {
		return f.CompleteTaskErr
	}
	i := f.taskIndex(id)
	if i < 0 {
		return ErrNotFound
	}
	t := &f.tasks[i]
	if t.CreatorUID != f.me || t.Status != service.StatusMatched {
		return errors.New("task cannot be completed")
	}
	t.Status = service.StatusCompleted
	ts := f.now()
	t.CompletedAt = &ts
	return nil
}

// MyPostedTasks implements service.Service.
func (f *FakeService) MyPostedTasks(ctx context.Context) ([]service.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("MyPostedTasks")
	var out []service.Task
	for _, t := range f.tasks {
		if t.CreatorUID == f.me {
			out = append(out, f.withApplications(t))
		}
	}
	return out, nil
}

// MyAssignedTasks implements service.Service.
func (f *FakeService) MyAssignedTasks(ctx context.Context) ([]service.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("MyAssignedTasks")
	var out []service.Task
	for _, t := range f.tasks {
		if t.TaskerUID == f.me {
			out = append(out, f.withApplications(t))
		}
	}
	return out, nil
}

// Apply implements service.Service.
func (f *FakeService) Apply(ctx context.Context, in service.ApplicationInput) (service.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Apply")
	if f.ApplyErr != nil {
		return service.Application{}, f.ApplyErr
	}
	i := f.taskIndex(in.TaskID)
	if i < 0 {
		return service.Application{}, ErrNotFound
	}
	if f.tasks[i].CreatorUID == f.me || f.tasks[i].Status != service.StatusOpen {
		return service.Application{}, errors.New("cannot apply to this task")
	}
	a := service.Application{
		ID:           f.nextID("a"),
		TaskID:       in.TaskID,
		ApplicantUID: f.me,
		Message:      in.Message,
		OfferedPrice: in.OfferedPrice,
		Status:       service.ApplicationPending,
		CreatedAt:    f.now(),
	}
	f.applications = append(f.applications, a)
	return a, nil
}

// ListApplications implements service.Service.
func (f *FakeService) ListApplications(ctx context.Context) ([]service.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListApplications")
	var out []service.Application
	for _, a := range f.applications {
		if a.ApplicantUID == f.me {
			out = append(out, a)
		}
	}
	return out, nil
}

// TaskApplications implements service.Service.
func (f *FakeService) TaskApplications(ctx context.Context, taskID string) ([]service.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("TaskApplications")
	i := f.taskIndex(taskID)
	if i < 0 {
		return nil, ErrNotFound
	}
	return f.withApplications(f.tasks[i]).Applications, nil
}

// SetApplicationStatus implements service.Service. Accepting matches the
// task and rejects the other pending applications.
func (f *FakeService) SetApplicationStatus(ctx context.Context, id, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SetApplicationStatus")
	if f.AcceptErr != nil {
		return f.AcceptErr
	}
	for i := range f.applications {
		a := &f.applications[i]
		if a.ID != id {
			continue
		}
		ti := f.taskIndex(a.TaskID)
		if ti < 0 || f.tasks[ti].CreatorUID != f.me {
			return errors.New("not authorized")
		}
		a.Status = status
		if status == service.ApplicationAccepted {
			f.tasks[ti].Status = service.StatusMatched
			f.tasks[ti].TaskerUID = a.ApplicantUID
			for j := range f.applications {
				o := &f.applications[j]
				if o.TaskID == a.TaskID && o.ID != id && o.Status == service.ApplicationPending {
					o.Status = service.ApplicationRejected
				}
			}
		}
		return nil
	}
	return ErrNotFound
}

// WithdrawApplication implements service.Service.
func (f *FakeService) WithdrawApplication(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("WithdrawApplication")
	for i, a := range f.applications {
		if a.ID == id {
			f.applications = append(f.applications[:i], f.applications[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// StartChat implements service.Service.
func (f *FakeService) StartChat(ctx context.Context, taskID, otherUID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("StartChat")
	if f.StartChatErr != nil {
		return "", f.StartChatErr
	}
	for _, c := range f.chats {
		if c.TaskID == taskID && hasBoth(c.Participants, f.me, otherUID) {
			return c.ID, nil
		}
	}
	c := service.Chat{
		ID:            f.nextID("c"),
		TaskID:        taskID,
		Participants:  []string{f.me, otherUID},
		LastMessageAt: f.now(),
	}
	f.chats = append(f.chats, c)
	return c.ID, nil
}

func hasBoth(participants []string, a, b string) bool {
	var sawA, sawB bool
	for _, p := range participants {
		sawA = sawA || p == a
		sawB = sawB || p == b
	}
	return sawA && sawB
}

// ListChats implements service.Service.
func (f *FakeService) ListChats(ctx context.Context) ([]service.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListChats")
	var out []service.Chat
	for _, c := range f.chats {
		for _, p := range c.Participants {
			if p == f.me {
				out = append(out, c)
				break
			}
		}
	}
	return out, nil
}

// Messages implements service.Service. Messages are returned in insertion
// order, which need not be chronological.
func (f *FakeService) Messages(ctx context.Context, chatID string) ([]service.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Messages")
	if f.MessagesErr != nil {
		return nil, f.MessagesErr
	}
	return append([]service.Message(nil), f.messages[chatID]...), nil
}

// SendMessage implements service.Service.
func (f *FakeService) SendMessage(ctx context.Context, in service.MessageInput) (service.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SendMessage")
	if f.SendMessageErr != nil {
		return service.Message{}, f.SendMessageErr
	}
	m := service.Message{
		ID:          f.nextID("m"),
		ChatID:      in.ChatID,
		SenderUID:   f.me,
		Content:     in.Content,
		ImageURL:    in.ImageURL,
		MessageType: in.MessageType,
		CreatedAt:   f.now(),
	}
	f.messages[in.ChatID] = append(f.messages[in.ChatID], m)
	return m, nil
}

// CreateReview implements service.Service.
func (f *FakeService) CreateReview(ctx context.Context, in service.ReviewInput) (service.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateReview")
	if f.CreateReviewErr != nil {
		return service.Review{}, f.CreateReviewErr
	}
	for _, r := range f.reviews {
		if r.TaskID == in.TaskID && r.ReviewerID == f.me {
			return service.Review{}, errors.New("You already submitted a review for this task")
		}
	}
	r := service.Review{
		ID:         f.nextID("r"),
		TaskID:     in.TaskID,
		ReviewerID: f.me,
		ReviewedID: in.ReviewedID,
		Rating:     in.Rating,
		Comment:    in.Comment,
		CreatedAt:  f.now(),
	}
	f.reviews = append(f.reviews, r)
	return r, nil
}

// Reviews implements service.Service.
func (f *FakeService) Reviews(ctx context.Context, uid string) ([]service.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Reviews")
	var out []service.Review
	for _, r := range f.reviews {
		if r.ReviewedID == uid {
			out = append(out, r)
		}
	}
	return out, nil
}

// ReviewStats implements service.Service.
func (f *FakeService) ReviewStats(ctx context.Context, uid string) (service.ReviewStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ReviewStats")
	var stats service.ReviewStats
	sum := 0
	for _, r := range f.reviews {
		if r.ReviewedID == uid {
			stats.TotalReviews++
			sum += r.Rating
		}
	}
	if stats.TotalReviews > 0 {
		stats.AverageRating = float64(sum) / float64(stats.TotalReviews)
	}
	return stats, nil
}

// Notifications implements service.Service.
func (f *FakeService) Notifications(ctx context.Context) ([]service.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Notifications")
	if err := f.NotificationsErr; err != nil {
		if f.NotificationsFailures > 0 {
			f.NotificationsFailures--
			if f.NotificationsFailures == 0 {
				f.NotificationsErr = nil
			}
		}
		return nil, err
	}
	return append([]service.Notification(nil), f.notifications...), nil
}

// MarkNotificationRead implements service.Service.
func (f *FakeService) MarkNotificationRead(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("MarkNotificationRead")
	if f.MarkReadErr != nil {
		return f.MarkReadErr
	}
	for i := range f.notifications {
		if f.notifications[i].ID == id {
			f.notifications[i].Read = true
			return nil
		}
	}
	return ErrNotFound
}

// MarkAllNotificationsRead implements service.Service.
func (f *FakeService) MarkAllNotificationsRead(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("MarkAllNotificationsRead")
	if f.MarkReadErr != nil {
		return f.MarkReadErr
	}
	for i := range f.notifications {
		f.notifications[i].Read = true
	}
	return nil
}

// DeleteNotification implements service.Service.
func (f *FakeService) DeleteNotification(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DeleteNotification")
	if f.DeleteNotifErr != nil {
		return f.DeleteNotifErr
	}
	for i, n := range f.notifications {
		if n.ID == id {
			f.notifications = append(f.notifications[:i], f.notifications[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}
