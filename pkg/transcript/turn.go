// Package transcript holds the ordered, append-only history of turns for a
// single chat session. Turns are chained by content hash so the history can
// be verified end to end.
package transcript

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"
)

// Role identifies who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

var (
	// ErrEmptyTurn is returned when a user turn has neither text nor image.
	ErrEmptyTurn = errors.New("turn must carry text or an image")

	// ErrAssistantImage is returned when an assistant turn carries an image.
	ErrAssistantImage = errors.New("assistant turns carry text only")

	// ErrUnknownRole is returned for roles other than user and assistant.
	ErrUnknownRole = errors.New("unknown turn role")
)

// Turn is one message in the transcript.
type Turn struct {
	// Hash is the content-addressed identifier (SHA-256, hex-encoded)
	Hash string `json:"hash"`

	// ParentHash links to the previous turn. Nil for the first turn.
	ParentHash *string `json:"parent_hash"`

	Role Role   `json:"role"`
	Text string `json:"text,omitempty"`

	// Image is PNG data attached to a user turn.
	Image []byte `json:"-"`

	CreatedAt time.Time `json:"created_at"`
}

// UserTurn builds an unappended user turn.
func UserTurn(text string, image []byte) Turn {
	return Turn{Role: RoleUser, Text: text, Image: image}
}

// AssistantTurn builds an unappended assistant turn.
func AssistantTurn(text string) Turn {
	return Turn{Role: RoleAssistant, Text: text}
}

// HasImage reports whether the turn carries image data.
func (t Turn) HasImage() bool {
	return len(t.Image) > 0
}

// Validate checks the turn invariants.
func (t Turn) Validate() error {
	switch t.Role {
	case RoleUser:
		if t.Text == "" && !t.HasImage() {
			return ErrEmptyTurn
		}
	case RoleAssistant:
		if t.HasImage() {
			return ErrAssistantImage
		}
	default:
		return ErrUnknownRole
	}
	return nil
}

// hashInput is the canonical form hashed for a turn. The image is folded in
// by digest so hashing cost does not depend on re-marshalling large blobs.
type hashInput struct {
	Role   Role   `json:"role"`
	Text   string `json:"text"`
	Image  string `json:"image,omitempty"`
	Parent string `json:"parent,omitempty"`
}

func (t Turn) computeHash() string {
	in := hashInput{
		Role: t.Role,
		Text: t.Text,
	}

	if t.HasImage() {
		sum := sha256.Sum256(t.Image)
		in.Image = hex.EncodeToString(sum[:])
	}

	if t.ParentHash != nil {
		in.Parent = *t.ParentHash
	}

	data, err := json.Marshal(in)
	if err != nil {
		panic("failed to marshal hash input: " + err.Error())
	}

	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// clone returns a deep copy so callers never share the stored image buffer.
func (t Turn) clone() Turn {
	c := t
	if t.Image != nil {
		c.Image = append([]byte(nil), t.Image...)
	}
	if t.ParentHash != nil {
		p := *t.ParentHash
		c.ParentHash = &p
	}
	return c
}
