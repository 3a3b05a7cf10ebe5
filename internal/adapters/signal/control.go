package signal

func (ctl *Controller) handlePing(c *wsConn) {
	ctl.sendEvent(c, "pong", nil)
}
