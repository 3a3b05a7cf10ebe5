package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/ripchat/relay/internal/domain"
)

func (ctl *Controller) handleMuteStatus(sid domain.SessionID, c *wsConn, data []byte) {
	var p struct {
		Muted bool `json:"muted"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad mute-status payload")
		ctl.sendError(c, errBadPayload)
		return
	}

	if err := ctl.Reg.SetMuted(sid, p.Muted); err != nil {
		ctl.sendError(c, err)
	}
}

func (ctl *Controller) handleGetRoomInfo(sid domain.SessionID, c *wsConn) {
	info, err := ctl.Reg.Snapshot(sid)
	if err != nil {
		ctl.sendError(c, err)
		return
	}
	ctl.sendEvent(c, "room-info", info)
}
