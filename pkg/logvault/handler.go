package logvault

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultQueueSize     = 10000
	defaultBatchSize     = 100
	defaultFlushInterval = time.Second
)

type Options struct {
	ServerURL   string
	APIKey      string
	Service     string
	Environment string
	// SourceHost defaults to os.Hostname.
	SourceHost string
	// Level is the minimum level shipped; nil ships everything.
	Level slog.Leveler

	BatchSize     int
	FlushInterval time.Duration
	QueueSize     int

	// Client overrides the client built from ServerURL and APIKey.
	Client *Client
}

// Handler is a slog.Handler that ships records to logvault in batches through
// the bulk endpoint. Handle never blocks; records are dropped when the queue
// is full.
type Handler struct {
	*shared
	attrs  map[string]any
	prefix string
}

// shared is the state common to a handler and its WithAttrs/WithGroup children.
type shared struct {
	opts       Options
	client     *Client
	instanceID string
	queue      chan LogInput
	done       chan struct{}
	wg         sync.WaitGroup
	closeOnce  sync.Once
	dropped    atomic.Int64
}

func NewHandler(opts Options) *Handler {
	if opts.SourceHost == "" {
		opts.SourceHost, _ = os.Hostname()
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = defaultFlushInterval
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = defaultQueueSize
	}
	client := opts.Client
	if client == nil {
		client = NewClient(opts.ServerURL, opts.APIKey)
	}

	s := &shared{
		opts:       opts,
		client:     client,
		instanceID: ensureInstanceID(),
		queue:      make(chan LogInput, opts.QueueSize),
		done:       make(chan struct{}),
	}
	s.wg.Add(1)
	go s.runLoop()

	return &Handler{shared: s}
}

// InstanceID is the persistent id attached to every shipped record.
func (h *Handler) InstanceID() string { return h.instanceID }

// Dropped returns the number of records dropped because the queue was full.
func (h *Handler) Dropped() int64 { return h.dropped.Load() }

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	if h.opts.Level == nil {
		return true
	}
	return level >= h.opts.Level.Level()
}

// levelName maps slog levels onto the server's level names.
func levelName(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return LevelError
	case l >= slog.LevelWarn:
		return LevelWarn
	case l >= slog.LevelInfo:
		return LevelInfo
	case l >= slog.LevelDebug:
		return LevelDebug
	default:
		return LevelTrace
	}
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	meta := make(map[string]any, len(h.attrs)+r.NumAttrs()+3)
	for k, v := range h.attrs {
		meta[k] = v
	}
	r.Attrs(func(a slog.Attr) bool {
		addAttr(meta, h.prefix, a)
		return true
	})
	meta["instanceId"] = h.instanceID

	if r.PC != 0 {
		fs := runtime.CallersFrames([]uintptr{r.PC})
		f, _ := fs.Next()
		meta["file"] = fmt.Sprintf("%s:%d", f.File, f.Line)
	}

	in := LogInput{
		Level:       levelName(r.Level),
		Message:     r.Message,
		Service:     h.opts.Service,
		Source:      h.opts.SourceHost,
		Environment: h.opts.Environment,
		Metadata:    meta,
	}
	if in.Message == "" {
		in.Message = "(empty)"
	}

	select {
	case h.queue <- in:
	default:
		h.dropped.Add(1)
	}
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	h2 := &Handler{shared: h.shared, prefix: h.prefix, attrs: make(map[string]any, len(h.attrs)+len(attrs))}
	for k, v := range h.attrs {
		h2.attrs[k] = v
	}
	for _, a := range attrs {
		addAttr(h2.attrs, h.prefix, a)
	}
	return h2
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &Handler{shared: h.shared, attrs: h.attrs, prefix: h.prefix + name + "."}
}

// addAttr flattens a into dst under dotted keys.
func addAttr(dst map[string]any, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p += a.Key + "."
		}
		for _, ga := range v.Group() {
			addAttr(dst, p, ga)
		}
		return
	}
	if a.Key == "" {
		return
	}
	switch v.Kind() {
	case slog.KindTime:
		dst[prefix+a.Key] = v.Time().UTC().Format(time.RFC3339Nano)
	case slog.KindDuration:
		dst[prefix+a.Key] = v.Duration().String()
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			dst[prefix+a.Key] = err.Error()
			return
		}
		dst[prefix+a.Key] = v.Any()
	default:
		dst[prefix+a.Key] = v.Any()
	}
}

func (s *shared) runLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.opts.FlushInterval)
	defer ticker.Stop()

	batch := make([]LogInput, 0, s.opts.BatchSize)

	send := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := s.client.BulkIngest(ctx, batch); err != nil {
			fmt.Fprintf(os.Stderr, "logvault: send failed, dropping %d logs: %v\n", len(batch), err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case in := <-s.queue:
			batch = append(batch, in)
			if len(batch) >= s.opts.BatchSize {
				send()
			}
		case <-ticker.C:
			send()
		case <-s.done:
			// Flush remaining
			for {
				select {
				case in := <-s.queue:
					batch = append(batch, in)
					if len(batch) >= s.opts.BatchSize {
						send()
					}
				default:
					send()
					return
				}
			}
		}
	}
}

// Close flushes queued records and stops the sender. Records handled after
// Close are dropped.
func (h *Handler) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
		h.wg.Wait()
	})
}
