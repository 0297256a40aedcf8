package doitapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"golang.org/x/oauth2"

	"doit/internal/backend/doitapi"
	"doit/internal/gateway"
	"doit/internal/service"
)

type recorded struct {
	Method string
	Path   string
	Query  string
	Body   map[string]any
}

func newClient(t *testing.T, status int, response string) (*doitapi.Client, *[]recorded, *gateway.TokenStore, *int) {
	t.Helper()
	var reqs []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery}
		data, _ := io.ReadAll(r.Body)
		if len(data) > 0 {
			json.Unmarshal(data, &rec.Body)
		}
		reqs = append(reqs, rec)
		w.WriteHeader(status)
		w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)

	tokens := gateway.NewTokenStore(filepath.Join(t.TempDir(), "token.json"))
	if err := tokens.Save(&oauth2.Token{AccessToken: "tok"}); err != nil {
		t.Fatalf("failed to save token: %v", err)
	}
	redirects := new(int)
	gw, err := gateway.New(gateway.Options{
		BaseURL:        srv.URL,
		Tokens:         tokens,
		HTTPClient:     srv.Client(),
		OnUnauthorized: func() { *redirects++ },
	})
	if err != nil {
		t.Fatalf("failed to create gateway: %v", err)
	}
	return doitapi.New(gw, func() string { return "u1" }), &reqs, tokens, redirects
}

func TestListTasks_QueryParams(t *testing.T) {
	c, reqs, _, _ := newClient(t, 200, `[{"id":"t1","title":"Rasen","status":"open","created_at":"2024-05-01T10:00:00"}]`)

	tasks, err := c.ListTasks(context.Background(), service.TaskQuery{Category: "Garten", Limit: 20})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "t1" {
		t.Fatalf("unexpected tasks: %+v", tasks)
	}
	got := (*reqs)[0]
	if got.Method != http.MethodGet || got.Path != "/api/tasks/" {
		t.Errorf("unexpected request %s %s", got.Method, got.Path)
	}
	if got.Query != "category=Garten&limit=20" {
		t.Errorf("unexpected query %q", got.Query)
	}
}

func TestCreateTask_FillsCreator(t *testing.T) {
	c, reqs, _, _ := newClient(t, 200, `{"id":"t9","title":"Umzug"}`)

	task, err := c.CreateTask(context.Background(), service.TaskInput{Title: "Umzug", Category: "Transport"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.ID != "t9" {
		t.Errorf("expected t9, got %q", task.ID)
	}
	body := (*reqs)[0].Body
	if body["creator_uid"] != "u1" {
		t.Errorf("expected creator_uid u1, got %v", body["creator_uid"])
	}
	if imgs, ok := body["images"].([]any); !ok || len(imgs) != 0 {
		t.Errorf("expected empty images array, got %v", body["images"])
	}
}

func TestStartChat_ReturnsChatID(t *testing.T) {
	c, reqs, _, _ := newClient(t, 200, `{"chat_id":"c7"}`)

	id, err := c.StartChat(context.Background(), "t1", "u2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "c7" {
		t.Errorf("expected c7, got %q", id)
	}
	got := (*reqs)[0]
	if got.Path != "/api/chat/start" || got.Body["task_id"] != "t1" || got.Body["user2_id"] != "u2" {
		t.Errorf("unexpected request %+v", got)
	}
}

func TestSendMessage_DefaultsToText(t *testing.T) {
	c, reqs, _, _ := newClient(t, 200, `{"id":"m1"}`)

	if _, err := c.SendMessage(context.Background(), service.MessageInput{ChatID: "c1", Content: "Hallo"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body := (*reqs)[0].Body
	if body["message_type"] != "text" || body["sender_uid"] != "u1" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestSetApplicationStatus_Path(t *testing.T) {
	c, reqs, _, _ := newClient(t, 200, `{}`)

	if err := c.SetApplicationStatus(context.Background(), "a3", service.ApplicationAccepted); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := (*reqs)[0]
	if got.Method != http.MethodPut || got.Path != "/api/applications/a3" || got.Body["status"] != "accepted" {
		t.Errorf("unexpected request %+v", got)
	}
}

func TestNotificationMutations_Paths(t *testing.T) {
	c, reqs, _, _ := newClient(t, 200, `{}`)
	ctx := context.Background()

	c.MarkNotificationRead(ctx, "n1")
	c.MarkAllNotificationsRead(ctx)
	c.DeleteNotification(ctx, "n2")

	want := []string{
		"PUT /api/notifications/n1/read",
		"PUT /api/notifications/read-all",
		"DELETE /api/notifications/n2",
	}
	if len(*reqs) != len(want) {
		t.Fatalf("expected %d requests, got %d", len(want), len(*reqs))
	}
	for i, w := range want {
		got := (*reqs)[i].Method + " " + (*reqs)[i].Path
		if got != w {
			t.Errorf("request %d: expected %q, got %q", i, w, got)
		}
	}
}

func TestReviews_UserQuery(t *testing.T) {
	c, reqs, _, _ := newClient(t, 200, `[]`)

	if _, err := c.Reviews(context.Background(), "u2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := (*reqs)[0]; got.Path != "/api/reviews/" || got.Query != "user_id=u2" {
		t.Errorf("unexpected request %+v", got)
	}
}

func TestWrapError_Unauthorized(t *testing.T) {
	c, _, tokens, redirects := newClient(t, 401, `{"detail":"Invalid token"}`)

	_, err := c.Notifications(context.Background())
	if !errors.Is(err, service.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if *redirects != 1 {
		t.Errorf("expected one redirect, got %d", *redirects)
	}
	if _, err := tokens.Token(); !errors.Is(err, gateway.ErrNoToken) {
		t.Errorf("expected token evicted, got %v", err)
	}
}

func TestWrapError_NotFound(t *testing.T) {
	c, _, _, _ := newClient(t, 404, `{"detail":"Task not found"}`)

	_, err := c.GetTask(context.Background(), "missing")
	if !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestWrapError_StatusPassesThrough(t *testing.T) {
	c, _, _, redirects := newClient(t, 400, `{"detail":"Cannot apply to your own task"}`)

	_, err := c.Apply(context.Background(), service.ApplicationInput{TaskID: "t1"})
	var se *gateway.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Status != 400 || se.Detail != "Cannot apply to your own task" {
		t.Errorf("unexpected status error %+v", se)
	}
	if *redirects != 0 {
		t.Errorf("expected no redirect, got %d", *redirects)
	}
}
