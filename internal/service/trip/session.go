package trip

import "github.com/Domenick1991/flightres/internal/domain"

// Session is the per-engine-instance state: the logged-in identity and the
// display-id arena of the last search. One engine instance serves one
// logical session; concurrency comes from other instances sharing the
// store.
type Session struct {
	username string
	loggedIn bool
	results  []domain.Itinerary
}

func NewSession() *Session {
	return &Session{}
}

func (s *Session) LoggedIn() bool {
	return s.loggedIn
}

func (s *Session) Username() string {
	return s.username
}

// BeginAs transitions to logged-in. The transition is one-shot: a session
// that is already logged in rejects a second login.
func (s *Session) BeginAs(username string) error {
	if s.loggedIn {
		return ErrAlreadyLoggedIn
	}
	s.username = username
	s.loggedIn = true
	s.results = nil
	return nil
}

// RecordSearch replaces the display-id arena wholesale. Ids from a prior
// search are invalidated.
func (s *Session) RecordSearch(results []domain.Itinerary) {
	s.results = results
}

// Resolve maps a display id (0-based rank in the last search) back to its
// itinerary.
func (s *Session) Resolve(displayID int) (domain.Itinerary, bool) {
	if displayID < 0 || displayID >= len(s.results) {
		return domain.Itinerary{}, false
	}
	return s.results[displayID], true
}
