package session

import "github.com/peertalk/peertalk/signaling"

// Client owns the sessions of one content type. It parses and writes that
// type's description payloads and is told about every session carrying it.
type Client interface {
	signaling.ContentParser

	// OnSessionCreate runs for every new session of this content type;
	// received reports whether the session came from a remote initiate.
	OnSessionCreate(s *Session, received bool)
	// OnSessionDestroy runs just before the session is dropped from the
	// manager.
	OnSessionDestroy(s *Session)
}
