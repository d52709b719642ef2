// Package profile keeps the user-profile service's copy of identity data in
// step with the identity service and serves profile reads and edits.
package profile

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound  = errors.New("profile: not found")
	ErrDuplicate = errors.New("profile: username or subject already exists")
)

type Presence string

const (
	PresenceOnline  Presence = "online"
	PresenceOffline Presence = "offline"
	PresenceAway    Presence = "away"
	PresenceBusy    Presence = "busy"
)

// Profile is the user-profile service's record. Username, email, roles and
// active flag are owned by the identity service and only change through
// events. Each of those fields remembers the identity revision it was last
// written at, and Sequence is the highest revision applied to any of them.
type Profile struct {
	SubjectID      string    `bson:"_id" json:"subject_id"`
	Username       string    `bson:"username" json:"username"`
	Email          string    `bson:"email" json:"email"`
	Roles          []string  `bson:"roles" json:"roles"`
	FirstName      string    `bson:"first_name" json:"first_name"`
	MiddleName     string    `bson:"middle_name" json:"middle_name"`
	LastName       string    `bson:"last_name" json:"last_name"`
	Phone          string    `bson:"phone" json:"phone"`
	ProfilePicture string    `bson:"profile_picture" json:"profile_picture"`
	Status         Presence  `bson:"status" json:"status"`
	LastSeen       time.Time `bson:"last_seen" json:"last_seen"`
	Active         bool      `bson:"active" json:"-"`
	Sequence       int64     `bson:"sequence" json:"-"`
	UsernameSeq    int64     `bson:"username_seq" json:"-"`
	EmailSeq       int64     `bson:"email_seq" json:"-"`
	ActiveSeq      int64     `bson:"active_seq" json:"-"`
	CreatedAt      time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at" json:"updated_at"`
}

// IdentityChange is a set of identity owned fields to overwrite. Nil fields
// are left alone.
type IdentityChange struct {
	Username *string
	Email    *string
	Active   *bool
}

// Details are the profile owned fields a user may edit. Nil fields are left
// alone.
type Details struct {
	FirstName      *string
	MiddleName     *string
	LastName       *string
	Phone          *string
	ProfilePicture *string
	Status         *Presence
}

type Store interface {
	Create(ctx context.Context, p *Profile) error
	FindByUsername(ctx context.Context, username string) (*Profile, error)
	FindBySubject(ctx context.Context, subjectID string) (*Profile, error)
	// ApplyIdentityChange writes each field of c to the subject's profile
	// unless that field was already written at seq or later. It reports
	// whether any field was written.
	ApplyIdentityChange(ctx context.Context, subjectID string, seq int64, c IdentityChange) (bool, error)

	FindActiveByUsername(ctx context.Context, username string) (*Profile, error)
	FindActiveByEmail(ctx context.Context, email string) (*Profile, error)
	FindActiveByUsernames(ctx context.Context, usernames []string) ([]Profile, error)
	SearchActive(ctx context.Context, term string, limit, offset int) ([]Profile, int64, error)
	UpdateDetails(ctx context.Context, username string, d Details) (*Profile, error)
}
