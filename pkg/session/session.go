// Package session owns per-conversation state: the transcript, the pending
// image and the serialisation of submissions.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/lenschat/pkg/completion"
	"github.com/papercomputeco/lenschat/pkg/imaging"
	"github.com/papercomputeco/lenschat/pkg/transcript"
)

// Replier produces an assistant reply for one user turn. *completion.Client
// satisfies it.
type Replier interface {
	GetReply(ctx context.Context, text string, image []byte) completion.Result
}

// Exchange is the outcome of one Submit. User and Assistant are the zero
// Turn when nothing was appended.
type Exchange struct {
	User      transcript.Turn
	Assistant transcript.Turn
	Result    completion.Result

	// Index of User in the transcript. Assistant sits at Index+1.
	Index int
}

// Appended reports whether the exchange added turns to the transcript.
func (e Exchange) Appended() bool {
	return e.User.Hash != ""
}

// Session is one live conversation.
type Session struct {
	ID        string
	CreatedAt time.Time

	// mu serialises Submit and guards pending.
	mu         sync.Mutex
	transcript *transcript.Transcript
	pending    []byte

	// lastActive is unix nanoseconds, readable while a Submit is in flight.
	lastActive atomic.Int64

	imageLimits imaging.Limits
	observer    Observer
	logger      *zap.Logger
	now         func() time.Time
}

func newSession(id string, opts Options, logger *zap.Logger) *Session {
	now := opts.now
	if now == nil {
		now = time.Now
	}
	created := now()

	s := &Session{
		ID:         id,
		CreatedAt:  created,
		transcript: transcript.New(),
		imageLimits: imaging.Limits{
			MaxDimension: opts.MaxImageDimension,
			MaxPixels:    opts.MaxImagePixels,
		},
		observer: opts.observer(),
		logger:   logger.With(zap.String("session_id", id)),
		now:      now,
	}
	s.lastActive.Store(created.UnixNano())
	return s
}

func (s *Session) touch() {
	s.lastActive.Store(s.now().UnixNano())
}

// New creates a standalone session outside any Manager, as used by the
// terminal UI.
func New(opts Options, logger *zap.Logger) *Session {
	return newSession(newID(), opts, logger)
}

// Transcript returns the session's transcript.
func (s *Session) Transcript() *transcript.Transcript {
	return s.transcript
}

// SetImage decodes an uploaded PNG or JPEG, re-encodes it as PNG and makes it
// the pending image, replacing any previous one.
func (s *Session) SetImage(upload []byte) error {
	normalized, err := imaging.Normalize(upload, s.imageLimits)
	if err != nil {
		return fmt.Errorf("set image: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = normalized
	s.touch()

	s.logger.Debug("pending image set", zap.Int("png_size", len(normalized)))
	return nil
}

// PendingImage returns a copy of the pending PNG, or nil.
func (s *Session) PendingImage() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return nil
	}
	return append([]byte(nil), s.pending...)
}

// ClearImage discards the pending image.
func (s *Session) ClearImage() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = nil
	s.touch()
}

// LastActive returns the time of the last interaction.
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

// Submit sends text together with the pending image. Empty input appends
// nothing. Otherwise the user turn, then the assistant turn carrying the
// rendered result, are appended and the pending image is cleared, whether
// or not the exchange succeeded. Concurrent calls are serialised.
func (s *Session) Submit(ctx context.Context, replier Replier, text string) (Exchange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.touch()
	text = strings.TrimSpace(text)
	image := s.pending

	if text == "" && len(image) == 0 {
		return Exchange{Result: completion.Result{Kind: completion.KindEmptyInput}}, nil
	}

	user, err := s.transcript.Append(transcript.UserTurn(text, image))
	if err != nil {
		return Exchange{}, fmt.Errorf("append user turn: %w", err)
	}
	index := s.transcript.Len() - 1

	startTime := time.Now()
	result := replier.GetReply(ctx, text, image)
	duration := time.Since(startTime)

	s.pending = nil
	s.touch()
	s.observer.ExchangeCompleted(result.Kind.String(), duration)

	assistant, err := s.transcript.Append(transcript.AssistantTurn(result.Display()))
	if err != nil {
		return Exchange{}, fmt.Errorf("append assistant turn: %w", err)
	}

	s.logger.Info("exchange completed",
		zap.String("kind", result.Kind.String()),
		zap.Bool("image", len(image) > 0),
		zap.Int("turns", s.transcript.Len()),
		zap.Duration("duration", duration),
	)

	return Exchange{User: user, Assistant: assistant, Result: result, Index: index}, nil
}
