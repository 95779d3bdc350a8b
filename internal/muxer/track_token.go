package muxer

import (
	"fmt"

	"github.com/google/uuid"
)

// TrackToken identifies a track registered in a session.
// Tokens can only be compared for equality.
type TrackToken struct {
	session uuid.UUID
	id      int
}

// NewTrackToken returns the token of a track of a session.
func NewTrackToken(session uuid.UUID, id int) TrackToken {
	return TrackToken{
		session: session,
		id:      id,
	}
}

// IsValid returns whether the token has been issued by a session.
func (t TrackToken) IsValid() bool {
	return t.session != uuid.Nil
}

// String implements fmt.Stringer.
func (t TrackToken) String() string {
	if !t.IsValid() {
		return "invalid"
	}
	return fmt.Sprintf("%s#%d", t.session.String()[:8], t.id)
}
