// Package audit is the process-wide security audit trail: an
// append-only, asynchronous record of prompts, responses, and guardrail
// decisions, independent of developer logging (spec §4.6). The
// background writer is the teacher's observe.AsyncSink pattern — a
// bounded channel plus a single consumer goroutine — generalized to
// batch writes and a periodic flush instead of emitting one event at a
// time.
package audit

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/stinger-run/stinger/guardrail"
	"github.com/stinger-run/stinger/internal/logging"
)

// Environment selects the smart defaults Enable falls back to when no
// destination is given.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)

func environmentFromOS() Environment {
	if strings.EqualFold(os.Getenv("ENV"), "production") {
		return EnvProduction
	}
	return EnvDevelopment
}

const (
	defaultBufferSize    = 1000
	defaultFlushInterval = 5 * time.Second
	defaultBatchSize     = 64
)

// ErrProductionDisableForbidden is returned by Disable in a
// production-flagged environment, to prevent accidental loss of audit
// coverage (spec §4.6).
var ErrProductionDisableForbidden = errors.New("audit: disable is forbidden in a production environment")

// EnableOptions configures Enable. Zero values trigger the documented
// smart defaults.
type EnableOptions struct {
	Destination   string
	RedactPII     *bool
	BufferSize    int
	FlushInterval time.Duration
}

// Stats is the get_stats() snapshot (spec §4.6).
type Stats struct {
	Queued    int64 `json:"queued"`
	Written   int64 `json:"written"`
	Dropped   int64 `json:"dropped"`
	QueueSize int   `json:"queue_size"`
}

// Trail is the audit trail singleton type. Construct with New for an
// isolated instance (tests), or use Global for the process-wide default.
type Trail struct {
	mu     sync.RWMutex
	env    Environment
	logger *zap.Logger

	enabled       bool
	destination   string
	redactPII     bool
	bufferSize    int
	flushInterval time.Duration

	queue      chan Record
	writerDone chan struct{}
	sendWG     sync.WaitGroup
	dest       *destination

	// Index is an optional supplementary queryable store additively
	// mirroring every written record; nil unless configured.
	Index *SQLiteIndex

	queued  atomic.Int64
	written atomic.Int64
	dropped atomic.Int64
}

// New constructs a disabled Trail for env (auto-detected from ENV if
// empty).
func New(env Environment) *Trail {
	if env == "" {
		env = environmentFromOS()
	}
	return &Trail{env: env, logger: logging.Get()}
}

var (
	globalOnce sync.Once
	globalInst *Trail
)

// Global returns the process-wide singleton, lazily constructed.
func Global() *Trail {
	globalOnce.Do(func() { globalInst = New("") })
	return globalInst
}

// IsEnabled reports whether the trail is currently accepting records.
func (t *Trail) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// Enable starts the background writer with the given options, applying
// environment-driven smart defaults for anything left zero. Calling
// Enable while already enabled reconfigures it (stopping the previous
// writer first) rather than erroring.
func (t *Trail) Enable(opts EnableOptions) error {
	if t.IsEnabled() {
		if err := t.stopLocked(false); err != nil {
			return err
		}
	}

	destPath := opts.Destination
	redact := opts.RedactPII != nil && *opts.RedactPII
	if opts.Destination == "" {
		if t.env == EnvProduction {
			destPath = "./audit.log"
			if opts.RedactPII == nil {
				redact = true
			}
		} else {
			destPath = "stdout"
			if opts.RedactPII == nil {
				redact = false
			}
		}
	} else if opts.RedactPII != nil {
		redact = *opts.RedactPII
	}

	bufferSize := opts.BufferSize
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	flushInterval := opts.FlushInterval
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}

	dest, err := openDestination(destPath)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.destination = destPath
	t.redactPII = redact
	t.bufferSize = bufferSize
	t.flushInterval = flushInterval
	t.dest = dest
	t.queue = make(chan Record, bufferSize)
	t.writerDone = make(chan struct{})
	t.enabled = true
	queue, done, interval := t.queue, t.writerDone, t.flushInterval
	t.mu.Unlock()

	go t.runWriter(queue, interval, done)

	t.enqueue(Record{
		Timestamp:     time.Now(),
		EventType:     EventAuditEnabled,
		Destination:   destPath,
		RedactPII:     &redact,
		BufferSize:    bufferSize,
		FlushInterval: flushInterval.Seconds(),
	})
	return nil
}

// Disable signals shutdown, flushes pending records, and joins the
// writer. It refuses in a production environment (ErrProductionDisableForbidden);
// tests that need a clean slate should construct a new Trail instead.
func (t *Trail) Disable() error {
	return t.stopLocked(true)
}

func (t *Trail) stopLocked(enforceProductionGuard bool) error {
	t.mu.Lock()
	if !t.enabled {
		t.mu.Unlock()
		return nil
	}
	if enforceProductionGuard && t.env == EnvProduction {
		t.mu.Unlock()
		return ErrProductionDisableForbidden
	}
	t.enabled = false
	queue, done := t.queue, t.writerDone
	t.mu.Unlock()

	t.sendWG.Wait()
	close(queue)
	<-done

	t.mu.Lock()
	dest := t.dest
	t.dest = nil
	t.queue = nil
	t.mu.Unlock()
	if dest != nil {
		_ = dest.close()
	}
	return nil
}

// GetStats returns the enqueue/write/drop counters and current queue
// depth.
func (t *Trail) GetStats() Stats {
	t.mu.RLock()
	queueLen := 0
	if t.queue != nil {
		queueLen = len(t.queue)
	}
	t.mu.RUnlock()
	return Stats{
		Queued:    t.queued.Load(),
		Written:   t.written.Load(),
		Dropped:   t.dropped.Load(),
		QueueSize: queueLen,
	}
}

// --- enqueue path -------------------------------------------------------

// enqueue attempts a non-blocking send; on a full queue it falls back to
// a synchronous write (spec §4.6's enqueue path), only counting a drop
// if that fallback write itself fails.
func (t *Trail) enqueue(r Record) {
	t.mu.RLock()
	if !t.enabled {
		t.mu.RUnlock()
		return
	}
	ch, dest := t.queue, t.dest
	t.sendWG.Add(1)
	t.mu.RUnlock()
	defer t.sendWG.Done()

	select {
	case ch <- r:
		t.queued.Add(1)
	default:
		if err := dest.writeRecords([]Record{r}); err != nil {
			t.dropped.Add(1)
			t.logger.Error("audit: synchronous fallback write failed", zap.Error(err))
			return
		}
		t.written.Add(1)
		t.mirrorToIndex(r)
	}
}

func (t *Trail) runWriter(queue chan Record, flushInterval time.Duration, done chan struct{}) {
	defer close(done)
	batch := make([]Record, 0, defaultBatchSize)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := t.dest.writeRecords(batch); err != nil {
			t.logger.Error("audit: batch write failed", zap.Error(err), zap.Int("batch_size", len(batch)))
		} else {
			t.written.Add(int64(len(batch)))
			for _, r := range batch {
				t.mirrorToIndex(r)
			}
		}
		batch = batch[:0]
	}

	for {
		select {
		case r, ok := <-queue:
			if !ok {
				flush()
				return
			}
			batch = append(batch, r)
			if len(batch) >= defaultBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (t *Trail) mirrorToIndex(r Record) {
	if t.Index == nil {
		return
	}
	if err := t.Index.Insert(r); err != nil {
		t.logger.Error("audit: sqlite index mirror failed", zap.Error(err))
	}
}

// --- public log_* surface -----------------------------------------------

func (t *Trail) redact(s string) string {
	t.mu.RLock()
	redact := t.redactPII
	t.mu.RUnlock()
	if !redact {
		return s
	}
	return guardrail.RedactPII(s)
}

// LogPrompt records a user_prompt event. A no-op if the trail is
// disabled.
func (t *Trail) LogPrompt(_ context.Context, prompt, userID, conversationID, requestID string) {
	if !t.IsEnabled() {
		return
	}
	t.enqueue(Record{
		Timestamp:      time.Now(),
		EventType:      EventUserPrompt,
		Prompt:         t.redact(prompt),
		UserID:         userID,
		ConversationID: conversationID,
		RequestID:      requestID,
	})
}

// LogResponse records an llm_response event.
func (t *Trail) LogResponse(_ context.Context, response, userID, conversationID, requestID, modelUsed string, processingTimeMs float64) {
	if !t.IsEnabled() {
		return
	}
	t.enqueue(Record{
		Timestamp:        time.Now(),
		EventType:        EventLLMResponse,
		Response:         t.redact(response),
		UserID:           userID,
		ConversationID:   conversationID,
		RequestID:        requestID,
		ModelUsed:        modelUsed,
		ProcessingTimeMs: processingTimeMs,
	})
}

// LogGuardrailDecision records a guardrail_decision event.
func (t *Trail) LogGuardrailDecision(_ context.Context, guardrailName, decision, reason string, confidence float64, userID, conversationID, requestID string) {
	if !t.IsEnabled() {
		return
	}
	t.enqueue(Record{
		Timestamp:      time.Now(),
		EventType:      EventGuardrailDecision,
		GuardrailName:  guardrailName,
		Decision:       Decision(decision),
		Reason:         reason,
		Confidence:     confidence,
		UserID:         userID,
		ConversationID: conversationID,
		RequestID:      requestID,
	})
}

// LogError records an error event. Never raises into caller code.
func (t *Trail) LogError(_ context.Context, message string, context map[string]any) {
	if !t.IsEnabled() {
		return
	}
	t.enqueue(Record{Timestamp: time.Now(), EventType: EventError, Message: message, Context: context})
}
