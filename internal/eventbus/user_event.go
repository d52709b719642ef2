package eventbus

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/opencrafts-io/parley/internal/broker"
)

// Kind tags each identity change event.
type Kind string

const (
	KindRegistered      Kind = "user.registered"
	KindUsernameChanged Kind = "user.username_changed"
	KindEmailChanged    Kind = "user.email_changed"
	KindDeactivated     Kind = "user.deactivated"
)

// One durable queue per event kind.
const (
	QueueRegistered      = "user.registered.queue"
	QueueUsernameChanged = "user.usernamechanged.queue"
	QueueEmailChanged    = "user.emailchanged.queue"
	QueueDeactivated     = "user.deleted.queue"
)

const SourceIdentityService = "io.parley.identity"

var (
	ErrUnknownKind    = errors.New("eventbus: unknown event kind")
	ErrInvalidPayload = errors.New("eventbus: invalid event payload")
)

var kindQueues = map[Kind]string{
	KindRegistered:      QueueRegistered,
	KindUsernameChanged: QueueUsernameChanged,
	KindEmailChanged:    QueueEmailChanged,
	KindDeactivated:     QueueDeactivated,
}

// Kinds lists every event kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindRegistered, KindUsernameChanged, KindEmailChanged, KindDeactivated}
}

// Queue returns the queue events of this kind travel on.
func (k Kind) Queue() string {
	return kindQueues[k]
}

// Topology is the queue layout shared by the identity and profile services.
func Topology(deadLetter bool) broker.Topology {
	t := broker.Topology{}
	for _, k := range Kinds() {
		t.Queues = append(t.Queues, broker.QueueSpec{Name: k.Queue(), DeadLetter: deadLetter})
	}
	return t
}

// EventMetadata identifies a single emission of an event. Sequence is the
// revision of the identity record after the change, so consumers can discard
// anything older than what they already applied.
type EventMetadata struct {
	EventID    string    `json:"event_id" validate:"required,uuid"`
	SubjectID  string    `json:"subject_id" validate:"required"`
	Sequence   int64     `json:"sequence" validate:"gte=1"`
	OccurredAt time.Time `json:"occurred_at" validate:"required"`
	Source     string    `json:"source"`
}

// Event is implemented by every identity change event.
type Event interface {
	Kind() Kind
	Metadata() EventMetadata
}

type Registered struct {
	SubjectID string        `json:"subject_id" validate:"required"`
	Username  string        `json:"username" validate:"required"`
	Email     string        `json:"email" validate:"required,email"`
	Roles     []string      `json:"roles"`
	Active    bool          `json:"active"`
	CreatedAt time.Time     `json:"created_at"`
	Meta      EventMetadata `json:"meta"`
}

type UsernameChanged struct {
	OldUsername string        `json:"old_username" validate:"required"`
	NewUsername string        `json:"new_username" validate:"required,nefield=OldUsername"`
	ChangedAt   time.Time     `json:"changed_at"`
	Meta        EventMetadata `json:"meta"`
}

type EmailChanged struct {
	Username  string        `json:"username" validate:"required"`
	NewEmail  string        `json:"new_email" validate:"required,email"`
	UpdatedAt time.Time     `json:"updated_at"`
	Meta      EventMetadata `json:"meta"`
}

type Deactivated struct {
	Username string        `json:"username" validate:"required"`
	Meta     EventMetadata `json:"meta"`
}

func (Registered) Kind() Kind      { return KindRegistered }
func (UsernameChanged) Kind() Kind { return KindUsernameChanged }
func (EmailChanged) Kind() Kind    { return KindEmailChanged }
func (Deactivated) Kind() Kind     { return KindDeactivated }

func (e Registered) Metadata() EventMetadata      { return e.Meta }
func (e UsernameChanged) Metadata() EventMetadata { return e.Meta }
func (e EmailChanged) Metadata() EventMetadata    { return e.Meta }
func (e Deactivated) Metadata() EventMetadata     { return e.Meta }

var validate = validator.New(validator.WithRequiredStructEnabled())

// Decode parses and validates a payload of the given kind.
func Decode(kind Kind, body []byte) (Event, error) {
	var ev Event
	var err error

	switch kind {
	case KindRegistered:
		ev, err = decodeAs[Registered](body)
	case KindUsernameChanged:
		ev, err = decodeAs[UsernameChanged](body)
	case KindEmailChanged:
		ev, err = decodeAs[EmailChanged](body)
	case KindDeactivated:
		ev, err = decodeAs[Deactivated](body)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if err != nil {
		return nil, err
	}
	return ev, nil
}

func decodeAs[T Event](body []byte) (T, error) {
	var ev T
	if err := json.Unmarshal(body, &ev); err != nil {
		return ev, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := validate.Struct(ev); err != nil {
		return ev, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return ev, nil
}
