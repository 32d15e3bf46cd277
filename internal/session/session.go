package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/projectsamarth/samarth/internal/index"
	"github.com/projectsamarth/samarth/internal/models"
	"github.com/projectsamarth/samarth/internal/rag"
)

var (
	ErrTurnInProgress  = errors.New("a question is already being answered in this session")
	ErrSessionNotFound = errors.New("session not found")
	ErrTooManySessions = errors.New("session limit reached")
)

type State int32

const (
	Idle State = iota
	AwaitingResponse
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingResponse:
		return "awaiting_response"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

type Retriever interface {
	Retrieve(ctx context.Context, question string) ([]models.Document, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, question string, docs []models.Document) (string, error)
}

// Session is one user's conversation. It answers one question at a time; a
// question arriving mid-turn is rejected with ErrTurnInProgress.
type Session struct {
	ID        uuid.UUID
	CreatedAt time.Time

	state      atomic.Int32
	lastActive atomic.Int64
	history    History

	retriever   Retriever
	synthesizer Synthesizer
	now         func() time.Time
}

func New(r Retriever, s Synthesizer) *Session {
	return newSession(r, s, time.Now)
}

func newSession(r Retriever, s Synthesizer, now func() time.Time) *Session {
	sess := &Session{
		ID:          uuid.New(),
		CreatedAt:   now().UTC(),
		retriever:   r,
		synthesizer: s,
		now:         now,
	}
	sess.touch()
	return sess
}

func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) History() []models.Turn { return s.history.Turns() }

func (s *Session) LastActive() time.Time { return time.Unix(0, s.lastActive.Load()).UTC() }

func (s *Session) touch() { s.lastActive.Store(s.now().UnixNano()) }

// Ask runs one turn: record the question, retrieve, synthesize, record the
// reply. On failure the reply is recorded with Failed set and its content
// describes the error; the error is also returned. Either way the session
// is Idle again afterwards.
func (s *Session) Ask(ctx context.Context, question string) (models.Turn, error) {
	if !s.state.CompareAndSwap(int32(Idle), int32(AwaitingResponse)) {
		return models.Turn{}, ErrTurnInProgress
	}
	defer func() {
		s.touch()
		s.state.Store(int32(Idle))
	}()
	s.touch()

	s.history.Append(models.Turn{
		ID:        uuid.New(),
		Role:      models.RoleUser,
		Content:   question,
		CreatedAt: s.now().UTC(),
	})

	reply := models.Turn{ID: uuid.New(), Role: models.RoleAssistant}

	docs, err := s.retriever.Retrieve(ctx, question)
	if err == nil {
		reply.Sources = docs
		reply.Content, err = s.synthesizer.Synthesize(ctx, question, docs)
	}
	if err != nil {
		reply.Content = Describe(err)
		reply.Failed = true
		slog.Warn("turn failed", "session_id", s.ID, "error", err)
	}

	reply.CreatedAt = s.now().UTC()
	s.history.Append(reply)
	return reply, err
}

// Describe turns a pipeline error into text suitable for showing the user.
func Describe(err error) string {
	var (
		unavail *index.IndexUnavailableError
		rerr    *rag.RetrievalError
		serr    *rag.SynthesisError
	)
	switch {
	case errors.As(err, &unavail):
		return "The data index is not available right now. An administrator needs to rebuild or reload it."
	case errors.As(err, &rerr):
		if rerr.Transient {
			return "Could not search the data right now. Please try again in a moment."
		}
		return fmt.Sprintf("Could not search the data: %v", rerr.Err)
	case errors.As(err, &serr):
		if serr.Transient {
			return "The language model did not respond in time. Please try again in a moment."
		}
		return fmt.Sprintf("Error generating response: %v", serr.Err)
	case errors.Is(err, context.Canceled):
		return "The request was cancelled."
	default:
		return fmt.Sprintf("Error generating response: %v", err)
	}
}

// Snapshot is a point-in-time copy for rendering.
type Snapshot struct {
	ID         uuid.UUID     `json:"id"`
	State      State         `json:"state"`
	CreatedAt  time.Time     `json:"created_at"`
	LastActive time.Time     `json:"last_active"`
	Turns      []models.Turn `json:"turns"`
}

func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		ID:         s.ID,
		State:      s.State(),
		CreatedAt:  s.CreatedAt,
		LastActive: s.LastActive(),
		Turns:      s.History(),
	}
}
