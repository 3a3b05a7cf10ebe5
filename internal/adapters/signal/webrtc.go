package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/ripchat/relay/internal/domain"
)

// handleSignalRelay forwards offer/answer/ice-candidate frames to a
// peer in the same room. The payload is never inspected here; an
// undeliverable target is dropped silently, only throttling surfaces.
func (ctl *Controller) handleSignalRelay(kind string, sid domain.SessionID, c *wsConn, data []byte) {
	var p struct {
		TargetID string          `json:"targetId"`
		Payload  json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("kind", kind).Msg("bad signal payload")
		return
	}

	if _, err := ctl.Relay.Relay(kind, sid, domain.SessionID(p.TargetID), p.Payload); err != nil {
		ctl.sendError(c, err)
	}
}
