package app

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/ripchat/relay/internal/domain"
)

// Signal kinds relayed verbatim between peers.
const (
	SignalOffer     = "offer"
	SignalAnswer    = "answer"
	SignalCandidate = "ice-candidate"
)

// signalEnvelope tags a relayed payload with its sender. The offer kind
// additionally carries the sender's username so the receiving peer can
// label the incoming call.
type signalEnvelope struct {
	FromID       domain.SessionID `json:"fromId"`
	FromUsername string           `json:"fromUsername,omitempty"`
	Payload      json.RawMessage  `json:"payload"`
}

// SignalingRelay forwards opaque negotiation payloads between peers of
// the same room. It never inspects or mutates the payload.
type SignalingRelay struct {
	reg *Registry
}

func NewSignalingRelay(reg *Registry) *SignalingRelay {
	return &SignalingRelay{reg: reg}
}

// Relay forwards payload from sid to target and reports delivery. A
// missing or foreign-room target is a silent drop, not an error: the
// sender cannot distinguish a racing disconnect from a bad request and
// should not be alarmed for either.
func (s *SignalingRelay) Relay(kind string, sid, target domain.SessionID, payload json.RawMessage) (bool, error) {
	if !s.reg.limiter.Allow(sid) {
		return false, ErrRateLimited
	}

	s.reg.mu.Lock()
	from, fromOK := s.reg.conns[sid]
	to, toOK := s.reg.conns[target]
	colocated := fromOK && toOK && from.RoomCode != "" && from.RoomCode == to.RoomCode
	var fromUsername string
	if fromOK {
		fromUsername = from.Username
	}
	s.reg.mu.Unlock()

	if !colocated {
		log.Debug().Str("module", "app.relay").Str("kind", kind).Str("from", string(sid)).Str("target", string(target)).Msg("relay dropped, peers not co-located")
		return false, nil
	}

	env := signalEnvelope{FromID: sid, Payload: payload}
	if kind == SignalOffer {
		env.FromUsername = fromUsername
	}
	s.reg.sender.Send(target, kind, env)
	return true, nil
}
