package media

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Previews serves selected images from a loopback HTTP server until they
// are released.
type Previews struct {
	log *slog.Logger

	mu    sync.Mutex
	items map[string]File
	srv   *http.Server
	base  string
}

// NewPreviews creates an idle Previews.
func NewPreviews(log *slog.Logger) *Previews {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Previews{log: log, items: make(map[string]File)}
}

// Handler returns the preview router.
func (p *Previews) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/previews/{id}", p.serve)
	return r
}

func (p *Previews) serve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p.mu.Lock()
	f, ok := p.items[id]
	p.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", f.Type)
	w.Write(f.Data)
}

// Start listens on a loopback port.
func (p *Previews) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.srv != nil {
		return nil
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}
	p.srv = &http.Server{Handler: p.Handler()}
	p.base = "http://" + ln.Addr().String()
	go func() {
		if err := p.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.log.Warn("preview server stopped", "error", err)
		}
	}()
	return nil
}

// Create registers f and returns the URL it is served at.
func (p *Previews) Create(f File) (string, error) {
	if err := Validate(f); err != nil {
		return "", err
	}
	if err := p.Start(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items[id] = f
	return p.base + "/previews/" + id, nil
}

// Release drops the preview behind url.
func (p *Previews) Release(url string) {
	i := strings.LastIndex(url, "/previews/")
	if i < 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.items, url[i+len("/previews/"):])
}

// Len reports the number of live previews.
func (p *Previews) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

// Close releases every preview and stops the server.
func (p *Previews) Close(ctx context.Context) error {
	p.mu.Lock()
	srv := p.srv
	p.srv = nil
	clear(p.items)
	p.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
