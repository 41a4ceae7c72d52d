// Package queue is the inbound transport of the worker. Producers push JSON
// trigger messages onto a Redis list; the consumer validates them, stores the
// source record and hands it to the trigger dispatcher.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/trigger"
	"github.com/sabiut/qr-checkin-system-sub000/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// WIRE FORMAT
// ══════════════════════════════════════════════════════════════════════════════

// ErrInvalidMessage wraps every decode or validation failure.
var ErrInvalidMessage = errors.New("queue: invalid message")

// Envelope is the outer JSON object of a queue message.
type Envelope struct {
	Kind    string          `json:"kind" validate:"required,oneof=check_in feedback connection"`
	Payload json.RawMessage `json:"payload" validate:"required"`
}

// CheckInMessage is the payload of a check_in trigger.
type CheckInMessage struct {
	ID           string     `json:"id" validate:"required,max=64"`
	UserID       string     `json:"user_id" validate:"required_without=Email,max=64"`
	Email        string     `json:"email" validate:"omitempty,email"`
	EventID      string     `json:"event_id" validate:"required,max=64"`
	EventDate    string     `json:"event_date" validate:"required,datetime=2006-01-02"`
	EventStartAt *time.Time `json:"event_start_time"`
	CheckInAt    time.Time  `json:"check_in_time" validate:"required"`
}

// FeedbackMessage is the payload of a feedback trigger.
type FeedbackMessage struct {
	ID             string    `json:"id" validate:"required,max=64"`
	UserID         string    `json:"user_id" validate:"required_without=Email,max=64"`
	Email          string    `json:"email" validate:"omitempty,email"`
	EventID        string    `json:"event_id" validate:"required,max=64"`
	OverallRating  int       `json:"overall_rating" validate:"required,min=1,max=5"`
	NPSScore       *int      `json:"nps_score" validate:"omitempty,min=0,max=10"`
	WouldRecommend *bool     `json:"would_recommend"`
	FreeText       []string  `json:"free_text"`
	SubmittedAt    time.Time `json:"submitted_at" validate:"required"`
}

// ConnectionMessage is the payload of a connection trigger.
type ConnectionMessage struct {
	ID         string    `json:"id" validate:"required,max=64"`
	FromUserID string    `json:"from_user_id" validate:"required_without=FromEmail,max=64"`
	FromEmail  string    `json:"from_email" validate:"omitempty,email"`
	ToUserID   string    `json:"to_user_id" validate:"required,max=64,nefield=FromUserID"`
	EventID    string    `json:"event_id" validate:"max=64"`
	CreatedAt  time.Time `json:"created_at" validate:"required"`
}

// ══════════════════════════════════════════════════════════════════════════════
// CODEC
// ══════════════════════════════════════════════════════════════════════════════

// Codec converts between wire messages and trigger records.
type Codec struct {
	validate *validator.Validate
}

// NewCodec creates a codec. required on time.Time rejects the zero value.
func NewCodec() *Codec {
	return &Codec{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Decode parses and validates one queue message.
func (c *Codec) Decode(data []byte) (trigger.Source, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, invalidf("envelope: %v", err)
	}
	if err := c.check(&env); err != nil {
		return nil, err
	}

	kind, err := trigger.ParseKind(env.Kind)
	if err != nil {
		return nil, invalidf("%v", err)
	}

	var src trigger.Source
	switch kind {
	case trigger.KindCheckIn:
		var m CheckInMessage
		if err := c.unmarshal(env.Payload, &m); err != nil {
			return nil, err
		}
		src, err = m.toSource()
		if err != nil {
			return nil, err
		}
	case trigger.KindFeedback:
		var m FeedbackMessage
		if err := c.unmarshal(env.Payload, &m); err != nil {
			return nil, err
		}
		src = m.toSource()
	case trigger.KindConnection:
		var m ConnectionMessage
		if err := c.unmarshal(env.Payload, &m); err != nil {
			return nil, err
		}
		src = m.toSource()
	}

	if err := src.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return src, nil
}

// Encode wraps a payload in an envelope after validating it.
func (c *Codec) Encode(kind trigger.Kind, payload any) ([]byte, error) {
	if err := c.check(payload); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, invalidf("payload: %v", err)
	}
	env := Envelope{Kind: kind.String(), Payload: raw}
	if err := c.check(&env); err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

func (c *Codec) unmarshal(raw json.RawMessage, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return invalidf("payload: %v", err)
	}
	return c.check(dst)
}

func (c *Codec) check(v any) error {
	err := c.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fe.Field()+":"+fe.Tag())
		}
		return invalidf("validation failed: %s", strings.Join(fields, ", "))
	}
	return invalidf("%v", err)
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidMessage}, args...)...)
}

// ══════════════════════════════════════════════════════════════════════════════
// CONVERSIONS
// ══════════════════════════════════════════════════════════════════════════════

func (m CheckInMessage) toSource() (*trigger.CheckIn, error) {
	date, err := timeutil.ParseDate(m.EventDate)
	if err != nil {
		return nil, invalidf("event_date: %v", err)
	}
	return &trigger.CheckIn{
		ID:           m.ID,
		UserID:       m.UserID,
		Email:        m.Email,
		EventID:      m.EventID,
		EventDate:    date,
		EventStartAt: m.EventStartAt,
		CheckInAt:    m.CheckInAt,
	}, nil
}

func (m FeedbackMessage) toSource() *trigger.Feedback {
	return &trigger.Feedback{
		ID:             m.ID,
		UserID:         m.UserID,
		Email:          m.Email,
		EventID:        m.EventID,
		OverallRating:  m.OverallRating,
		NPSScore:       m.NPSScore,
		WouldRecommend: m.WouldRecommend,
		FreeText:       m.FreeText,
		SubmittedAt:    m.SubmittedAt,
	}
}

func (m ConnectionMessage) toSource() *trigger.Connection {
	return &trigger.Connection{
		ID:         m.ID,
		FromUserID: m.FromUserID,
		FromEmail:  m.FromEmail,
		ToUserID:   m.ToUserID,
		EventID:    m.EventID,
		CreatedAt:  m.CreatedAt,
	}
}
