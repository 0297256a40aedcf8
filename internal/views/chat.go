package views

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"doit/internal/media"
	"doit/internal/service"
)

// ChatView shows the viewer's conversations and the open chat's history.
type ChatView struct {
	svc    service.Service
	media  *media.Pipeline
	viewer string
	log    *slog.Logger

	mu       sync.Mutex
	closed   bool
	chats    []service.Chat
	chatID   string
	messages []service.Message
}

// NewChatView creates a ChatView for viewer.
func NewChatView(svc service.Service, pipeline *media.Pipeline, viewer string, log *slog.Logger) *ChatView {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ChatView{svc: svc, media: pipeline, viewer: viewer, log: log}
}

// Conversations fetches the viewer's chats.
func (v *ChatView) Conversations(ctx context.Context) ([]service.Chat, error) {
	chats, err := v.svc.ListChats(ctx)
	if err != nil {
		return nil, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.closed {
		v.chats = chats
	}
	return append([]service.Chat(nil), chats...), nil
}

// Open selects chatID and fetches its history ordered by creation time.
func (v *ChatView) Open(ctx context.Context, chatID string) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	v.chatID = chatID
	v.mu.Unlock()
	return v.reload(ctx, chatID)
}

func (v *ChatView) reload(ctx context.Context, chatID string) error {
	msgs, err := v.svc.Messages(ctx, chatID)
	if err != nil {
		return err
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt.Time)
	})

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed || v.chatID != chatID {
		v.log.Debug("dropping stale history", "chat", chatID)
		return nil
	}
	v.messages = msgs
	return nil
}

// Current returns the open chat ID.
func (v *ChatView) Current() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.chatID
}

// Messages returns the open chat's last fetched history.
func (v *ChatView) Messages() []service.Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]service.Message(nil), v.messages...)
}

// StartForTask opens the chat with t's counterpart, creating it if needed.
func (v *ChatView) StartForTask(ctx context.Context, t service.Task) (string, error) {
	if !ActionsFor(t, v.viewer).Chat {
		return "", ErrNotAllowed
	}
	other := Counterpart(t, v.viewer)
	if other == "" {
		return "", ErrNoCounterpart
	}
	id, err := v.svc.StartChat(ctx, t.ID, other)
	if err != nil {
		return "", err
	}
	return id, v.Open(ctx, id)
}

func (v *ChatView) open() (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.chatID == "" {
		return "", ErrNoChat
	}
	return v.chatID, nil
}

// SendText persists a text message and re-fetches the history.
func (v *ChatView) SendText(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	chatID, err := v.open()
	if err != nil {
		return err
	}
	if _, err := v.svc.SendMessage(ctx, service.MessageInput{
		ChatID:      chatID,
		SenderUID:   v.viewer,
		Content:     text,
		MessageType: service.MessageText,
	}); err != nil {
		return err
	}
	return v.reload(ctx, chatID)
}

// SendImage uploads f and then persists a message referencing it. When the
// upload fails no message is created.
func (v *ChatView) SendImage(ctx context.Context, f media.File) error {
	chatID, err := v.open()
	if err != nil {
		return err
	}
	if v.media == nil {
		return fmt.Errorf("image upload not configured")
	}
	url, err := v.media.UploadChatImage(ctx, chatID, f)
	if err != nil {
		return err
	}
	if _, err := v.svc.SendMessage(ctx, service.MessageInput{
		ChatID:      chatID,
		SenderUID:   v.viewer,
		MessageType: service.MessageImage,
		ImageURL:    url,
	}); err != nil {
		return err
	}
	return v.reload(ctx, chatID)
}

// Close detaches the view. Responses arriving afterwards are ignored.
func (v *ChatView) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
}
