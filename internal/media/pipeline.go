package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Storage is the object store images end up in.
type Storage interface {
	// Put stores data under path and returns its download URL.
	Put(ctx context.Context, path string, data []byte, contentType string) (string, error)

	// Delete removes the object at path.
	Delete(ctx context.Context, path string) error
}

// Uploaded describes one stored image.
type Uploaded struct {
	URL      string
	FileName string
	Path     string
}

// AvatarKey returns the storage path for a profile picture.
func AvatarKey(uid string, at time.Time) string {
	return fmt.Sprintf("avatars/%s/avatar_%d.jpg", uid, at.UnixMilli())
}

// TaskImageKey returns the storage path for the i-th image of a task.
func TaskImageKey(uid, taskID string, i int, at time.Time) string {
	return fmt.Sprintf("tasks/%s/%s/task_%s_%d_%d.jpg", uid, taskID, taskID, i, at.UnixMilli())
}

// ChatImageKey returns the storage path for an image sent in a chat.
func ChatImageKey(chatID string, at time.Time) string {
	return fmt.Sprintf("chats/%s/chat_%d.jpg", chatID, at.UnixMilli())
}

// Pipeline validates, compresses and stores images.
type Pipeline struct {
	store Storage
	log   *slog.Logger

	// Now is the clock used for storage keys.
	Now func() time.Time
}

// NewPipeline creates a Pipeline writing to store.
func NewPipeline(store Storage, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Pipeline{store: store, log: log, Now: time.Now}
}

// Upload validates and compresses f and stores it under path. The original
// bytes are never stored.
func (p *Pipeline) Upload(ctx context.Context, f File, path string) (string, error) {
	if err := Validate(f); err != nil {
		return "", err
	}
	data, err := Compress(f.Data)
	if err != nil {
		return "", fmt.Errorf("%s: %w", f.Name, err)
	}
	p.log.Debug("compressed image", "name", f.Name, "from", f.Size(), "to", len(data))
	url, err := p.store.Put(ctx, path, data, "image/jpeg")
	if err != nil {
		return "", err
	}
	return url, nil
}

// UploadAvatar stores a profile picture for uid.
func (p *Pipeline) UploadAvatar(ctx context.Context, uid string, f File) (string, error) {
	return p.Upload(ctx, f, AvatarKey(uid, p.Now()))
}

// UploadChatImage stores an image sent in chatID.
func (p *Pipeline) UploadChatImage(ctx context.Context, chatID string, f File) (string, error) {
	return p.Upload(ctx, f, ChatImageKey(chatID, p.Now()))
}

// UploadTaskImages uploads files concurrently and returns the results in
// input order. Any failure fails the batch.
func (p *Pipeline) UploadTaskImages(ctx context.Context, uid, taskID string, files []File) ([]Uploaded, error) {
	for _, f := range files {
		if err := Validate(f); err != nil {
			return nil, err
		}
	}

	at := p.Now()
	out := make([]Uploaded, len(files))
	errs := make([]error, len(files))
	var wg sync.WaitGroup
	for i, f := range files {
		wg.Add(1)
		go func() {
			defer wg.Done()
			path := TaskImageKey(uid, taskID, i, at)
			url, err := p.Upload(ctx, f, path)
			if err != nil {
				errs[i] = err
				return
			}
			out[i] = Uploaded{URL: url, FileName: f.Name, Path: path}
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Delete removes a stored image.
func (p *Pipeline) Delete(ctx context.Context, path string) error {
	return p.store.Delete(ctx, path)
}
