package reconcile

import (
	"strings"
	"sync/atomic"
)

// Session remembers the agent created most recently so that later requests
// can omit the agent id. It is safe for concurrent use.
type Session struct {
	agentID atomic.Pointer[string]
}

func NewSession() *Session {
	return &Session{}
}

// SetAgentID records id; blank ids clear the session.
func (s *Session) SetAgentID(id string) {
	id = strings.TrimSpace(id)
	if id == "" {
		s.agentID.Store(nil)
		return
	}
	s.agentID.Store(&id)
}

func (s *Session) AgentID() (string, bool) {
	id := s.agentID.Load()
	if id == nil {
		return "", false
	}
	return *id, true
}

// ResolveAgentID prefers explicit and falls back to the remembered agent.
func (s *Session) ResolveAgentID(explicit string) (string, error) {
	if id := strings.TrimSpace(explicit); id != "" {
		return id, nil
	}
	if id, ok := s.AgentID(); ok {
		return id, nil
	}
	return "", ErrMissingAgent
}
