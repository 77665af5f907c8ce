// Package session keeps the bounded question/answer history that is sent
// back to the provider as context on the next question.
package session

import (
	"context"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"askbox/internal/domain"
)

// DefaultMaxEntries holds three question/answer pairs.
const DefaultMaxEntries = 6

// RecorderConfig configures a Recorder.
type RecorderConfig struct {
	Key        string              // session key used with the store
	MaxEntries int                 // history cap; <= 0 means DefaultMaxEntries
	Store      domain.HistoryStore // optional persistence
	Logger     *slog.Logger
}

// Recorder appends finished question/answer pairs to a bounded history.
// The in-memory history is authoritative; the store is a best-effort mirror.
type Recorder struct {
	mu      sync.Mutex
	key     string
	limit   int
	turns   []domain.ConversationTurn
	store   domain.HistoryStore
	logger  *slog.Logger
	now     func() time.Time
	// entropy is monotonic so two turns stamped in the same millisecond
	// still get ordered, distinct IDs. Guarded by mu.
	entropy *ulid.MonotonicEntropy
}

// NewRecorder creates an empty recorder. Call Restore to load a persisted
// history.
func NewRecorder(cfg RecorderConfig) *Recorder {
	limit := cfg.MaxEntries
	if limit <= 0 {
		limit = DefaultMaxEntries
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		key:     cfg.Key,
		limit:   limit,
		store:   cfg.Store,
		logger:  logger,
		now:     time.Now,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

// Restore replaces the in-memory history with the stored one, trimmed to
// the cap. Without a store it is a no-op.
func (r *Recorder) Restore(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	turns, err := r.store.Load(ctx, r.key)
	if err != nil {
		return domain.NewDomainError("Recorder.Restore", domain.ErrHistoryStore, err.Error())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns = trim(turns, r.limit)
	return nil
}

// Record appends (user: question, assistant: answer). It is a no-op when
// the two most recent entries are already exactly that pair, so a run that
// reaches the recorder twice leaves one copy.
func (r *Recorder) Record(ctx context.Context, question, answer string) error {
	if strings.TrimSpace(question) == "" {
		return domain.NewDomainError("Recorder.Record", domain.ErrInvalidInput, "empty question")
	}

	now := r.now()
	user := domain.ConversationTurn{Role: domain.RoleUser, Content: question, Timestamp: now}
	assistant := domain.ConversationTurn{Role: domain.RoleAssistant, Content: answer, Timestamp: now}

	r.mu.Lock()
	if n := len(r.turns); n >= 2 && r.turns[n-2].SameAs(user) && r.turns[n-1].SameAs(assistant) {
		r.mu.Unlock()
		r.logger.Debug("duplicate turn ignored", "session", r.key)
		return nil
	}
	user.ID = r.newIDLocked(now)
	assistant.ID = r.newIDLocked(now)
	r.turns = trim(append(r.turns, user, assistant), r.limit)
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	r.persist(ctx, snapshot)
	return nil
}

// History returns a copy of the stored turns, oldest first.
func (r *Recorder) History() []domain.ConversationTurn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Len returns the number of stored entries.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.turns)
}

// Clear empties the history and the store.
func (r *Recorder) Clear(ctx context.Context) error {
	r.mu.Lock()
	r.turns = nil
	r.mu.Unlock()

	if r.store == nil {
		return nil
	}
	if err := r.store.Clear(ctx, r.key); err != nil {
		return domain.NewDomainError("Recorder.Clear", domain.ErrHistoryStore, err.Error())
	}
	return nil
}

func (r *Recorder) persist(ctx context.Context, turns []domain.ConversationTurn) {
	if r.store == nil {
		return
	}
	if err := r.store.Save(context.WithoutCancel(ctx), r.key, turns); err != nil {
		r.logger.Warn("history save failed", "session", r.key, "error", err)
	}
}

func (r *Recorder) snapshotLocked() []domain.ConversationTurn {
	cp := make([]domain.ConversationTurn, len(r.turns))
	copy(cp, r.turns)
	return cp
}

// trim keeps the newest limit entries.
func trim(turns []domain.ConversationTurn, limit int) []domain.ConversationTurn {
	if len(turns) <= limit {
		return turns
	}
	out := make([]domain.ConversationTurn, limit)
	copy(out, turns[len(turns)-limit:])
	return out
}

func (r *Recorder) newIDLocked(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), r.entropy).String()
}
