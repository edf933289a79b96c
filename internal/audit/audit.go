// Package audit buffers tool-invocation records for asynchronous,
// at-most-once persistence into the store facade, the pattern the teacher
// uses for its own audit.Logger (buffered channel + background write loop)
// generalized from log lines to ToolInvocation rows (§3, §4.1).
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Najia-afk/aria-core/internal/store"
	"github.com/Najia-afk/aria-core/pkg/types"
)

// Config configures the audit logger's buffering behavior.
type Config struct {
	BufferSize    int
	FlushInterval time.Duration
}

// DefaultConfig mirrors the teacher's audit.DefaultConfig buffer sizing.
func DefaultConfig() Config {
	return Config{
		BufferSize:    1000,
		FlushInterval: 5 * time.Second,
	}
}

// Logger buffers ToolInvocation rows and flushes them to the store's
// SkillInvocations sub-interface. A bucket key (skill+tool+session) is kept
// at most once per flush interval so a hot, rapidly-retried tool does not
// flood the invocation log with duplicate rows for the same logical attempt
// window ("at-most-once-per-bucket retention").
type Logger struct {
	cfg    Config
	store  store.SkillInvocations
	log    *slog.Logger
	buffer chan *types.ToolInvocation
	done   chan struct{}
	wg     sync.WaitGroup

	mu        sync.Mutex
	lastFlush map[string]time.Time
	now       func() time.Time
}

// New creates a Logger that flushes into sk. Call Close to drain the buffer.
func New(sk store.SkillInvocations, cfg Config, log *slog.Logger) *Logger {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	l := &Logger{
		cfg:       cfg,
		store:     sk,
		log:       log.With("component", "audit"),
		buffer:    make(chan *types.ToolInvocation, cfg.BufferSize),
		done:      make(chan struct{}),
		lastFlush: make(map[string]time.Time),
		now:       time.Now,
	}
	l.wg.Add(1)
	go l.writeLoop()
	return l
}

func (l *Logger) bucketKey(inv *types.ToolInvocation) string {
	return inv.Skill + "|" + inv.Tool + "|" + inv.SessionID
}

// Record enqueues a tool invocation for async persistence. A call within
// the same flush interval for an identical bucket is dropped rather than
// blocking the caller on a disk write.
func (l *Logger) Record(inv *types.ToolInvocation) {
	key := l.bucketKey(inv)
	now := l.now()

	l.mu.Lock()
	if last, ok := l.lastFlush[key]; ok && now.Sub(last) < l.cfg.FlushInterval {
		l.mu.Unlock()
		return
	}
	l.lastFlush[key] = now
	l.mu.Unlock()

	select {
	case l.buffer <- inv:
	default:
		// Buffer saturated: persist synchronously rather than dropping the
		// audit row, matching the teacher's writeEvent fallback.
		l.write(inv)
	}
}

func (l *Logger) writeLoop() {
	defer l.wg.Done()
	for {
		select {
		case inv := <-l.buffer:
			l.write(inv)
		case <-l.done:
			for {
				select {
				case inv := <-l.buffer:
					l.write(inv)
				default:
					return
				}
			}
		}
	}
}

func (l *Logger) write(inv *types.ToolInvocation) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.store.Append(ctx, inv); err != nil {
		l.log.Warn("failed to persist tool invocation", "error", err, "skill", inv.Skill, "tool", inv.Tool)
	}
}

// Close flushes remaining buffered rows and stops the write loop.
func (l *Logger) Close() error {
	close(l.done)
	l.wg.Wait()
	return nil
}
