package transport

import (
	"blobpool/protocol"
	"time"
)

// Heartbeat sends periodic heartbeat frames on conn until done is
// closed, the way client_transport.go's heartbeatLoop keeps a
// multiplexed connection alive. A PooledConn does not start this on
// its own — cleanup has no idle-reaping Non-goal to violate (spec.md
// §9, "No idle eviction"), so heartbeating here is opt-in: a caller
// that wants to keep a checked-out-but-quiet connection warm starts it
// explicitly and stops it before checkin.
func (c *PooledConn) Heartbeat(interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			header := &protocol.Header{MsgType: protocol.MsgTypeHeartbeat, BodyLen: 0}
			c.sendMu.Lock()
			err := protocol.Encode(c.writer, header, nil)
			if err == nil {
				err = c.writer.Flush()
			}
			c.sendMu.Unlock()
			if err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
