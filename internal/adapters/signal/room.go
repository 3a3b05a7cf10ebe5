package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/ripchat/relay/internal/app"
	"github.com/ripchat/relay/internal/domain"
)

func (ctl *Controller) handleCreateRoom(sid domain.SessionID, c *wsConn, data []byte) {
	var p struct {
		Username string `json:"username"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad create-room payload")
		ctl.sendError(c, errBadPayload)
		return
	}

	res, err := ctl.Reg.CreateRoom(sid, p.Username)
	if err != nil {
		ctl.sendError(c, err)
		return
	}

	resp := struct {
		RoomCode domain.RoomCode `json:"roomCode"`
		Username string          `json:"username"`
	}{res.Code, res.Username}
	ctl.sendEvent(c, "room-created", resp)
}

func (ctl *Controller) handleJoinRoom(sid domain.SessionID, c *wsConn, data []byte) {
	var p struct {
		RoomCode string `json:"roomCode"`
		Username string `json:"username"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join-room payload")
		ctl.sendError(c, errBadPayload)
		return
	}

	res, err := ctl.Reg.JoinRoom(sid, p.RoomCode, p.Username)
	if err != nil {
		ctl.sendError(c, err)
		return
	}

	resp := struct {
		RoomCode      domain.RoomCode  `json:"roomCode"`
		Username      string           `json:"username"`
		ExistingUsers []app.MemberInfo `json:"existingUsers"`
	}{res.Code, res.Username, res.ExistingMembers}
	ctl.sendEvent(c, "room-joined", resp)
}

// handleLeaveRoom drops the room membership but keeps the connection
// open, so the client can create or join again.
func (ctl *Controller) handleLeaveRoom(sid domain.SessionID) {
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("leave")
	ctl.Reg.Leave(sid, true)
}
