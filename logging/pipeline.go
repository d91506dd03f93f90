// Package logging implements the Logging Pipeline: a
// process-wide slog.Handler that every service's logger is built on top
// of, shaping records into {timestamp, service_name, level, message},
// deduplicating repeats within a window, writing them to a session-
// stamped file, and fanning a filtered subset out on DASHBOARD_LOG.
package logging

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cantina-os/core/bus"
	"github.com/cantina-os/core/schema"
)

// DefaultDedupWindow is the repeated-message suppression window.
const DefaultDedupWindow = 30 * time.Second

// excludedServices never reach DASHBOARD_LOG, regardless of level: the
// pipeline's own emissions (to avoid feedback loops) and
// the high-volume HTTP transport logger the Web Bridge's gin engine
// writes through.
var excludedServices = map[string]bool{
	"logging":      true,
	"gin-transport": true,
}

// Pipeline is both a slog.Handler (every service logger wraps it) and a
// bus publisher (DASHBOARD_LOG fan-out). It does not itself subscribe to
// anything; it is driven purely by Handle calls from service loggers.
type Pipeline struct {
	bus         *bus.Bus
	serviceName string // the Name a service's own logger attaches via .With("service", ...)
	dedupWindow time.Duration

	mu       sync.Mutex
	file     *os.File
	seen     map[string]time.Time
	attrs    []slog.Attr
	minLevel slog.Leveler
}

// Option configures a Pipeline at construction time.
type Option func(*Pipeline)

// WithDedupWindow overrides DefaultDedupWindow.
func WithDedupWindow(d time.Duration) Option {
	return func(p *Pipeline) { p.dedupWindow = d }
}

// WithMinLevel sets the minimum level the handler processes.
func WithMinLevel(l slog.Leveler) Option {
	return func(p *Pipeline) { p.minLevel = l }
}

// New opens a session-stamped log file under dir (created if absent) and
// returns a Pipeline writing to both that file and the bus.
func New(b *bus.Bus, dir string, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		bus:         b,
		dedupWindow: DefaultDedupWindow,
		seen:        make(map[string]time.Time),
		minLevel:    slog.LevelInfo,
	}
	for _, o := range opts {
		o(p)
	}

	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("logging: creating log dir %s: %w", dir, err)
		}
		name := fmt.Sprintf("cantinaos-%s.log", time.Now().UTC().Format("20060102T150405Z"))
		f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("logging: opening session log file: %w", err)
		}
		p.file = f
	}
	return p, nil
}

// Close releases the underlying log file, if one was opened.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file == nil {
		return nil
	}
	return p.file.Close()
}

// Logger builds a *slog.Logger for serviceName on top of this Pipeline.
// Every CantinaOS service is constructed with a logger from this call so
// that a single process-wide handler captures every service's logs.
func (p *Pipeline) Logger(serviceName string) *slog.Logger {
	h := &serviceHandler{pipeline: p, serviceName: serviceName}
	return slog.New(h)
}

// serviceHandler is a thin per-service slog.Handler that stamps the
// originating service name onto every record before delegating to the
// shared Pipeline.
type serviceHandler struct {
	pipeline    *Pipeline
	serviceName string
	attrs       []slog.Attr
}

func (h *serviceHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.pipeline.minLevel.Level()
}

func (h *serviceHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.pipeline.handle(h.serviceName, h.attrs, r)
}

func (h *serviceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &serviceHandler{pipeline: h.pipeline, serviceName: h.serviceName}
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return next
}

func (h *serviceHandler) WithGroup(name string) slog.Handler {
	// Groups are not meaningful to the dashboard's flat {timestamp,
	// service_name, level, message} shape; attributes are kept ungrouped.
	return h
}

func dedupKey(service, level, msg string) string {
	sum := sha256.Sum256([]byte(service + "\x00" + level + "\x00" + msg))
	return hex.EncodeToString(sum[:16])
}

// handle shapes a record, writes it to the session file, and, unless it
// is a duplicate within the dedup window or its service is excluded,
// fans it out on DASHBOARD_LOG.
func (p *Pipeline) handle(serviceName string, attrs []slog.Attr, r slog.Record) error {
	level := r.Level.String()
	msg := r.Message

	line := fmt.Sprintf("%s [%s] %s: %s", r.Time.Format(time.RFC3339), level, serviceName, msg)
	r.Attrs(func(a slog.Attr) bool {
		line += fmt.Sprintf(" %s=%v", a.Key, a.Value)
		return true
	})
	for _, a := range attrs {
		line += fmt.Sprintf(" %s=%v", a.Key, a.Value)
	}

	p.mu.Lock()
	if p.file != nil {
		fmt.Fprintln(p.file, line)
	}

	key := dedupKey(serviceName, level, msg)
	now := r.Time
	if now.IsZero() {
		now = time.Now()
	}
	if last, ok := p.seen[key]; ok && now.Sub(last) < p.dedupWindow {
		p.mu.Unlock()
		return nil
	}
	p.seen[key] = now
	p.mu.Unlock()

	if excludedServices[serviceName] || p.bus == nil {
		return nil
	}

	return p.bus.Emit(bus.TopicDashboardLog, &schema.DashboardLogPayload{
		Base:    bus.Base{Meta: bus.Meta{Timestamp: now, ServiceName: serviceName}},
		Level:   level,
		Message: msg,
	})
}
