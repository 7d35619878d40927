package client

import (
	"time"

	"github.com/alperakcan/mbus-sub000/internal/envelope"
)

// runKeepalive sends event.ping to the server every interval for as long
// as the connection is alive, per spec.md §4.6/§5. It exits as soon as
// conn's done channel closes, so it never outlives one connection
// attempt.
func (c *Client) runKeepalive(interval time.Duration, done <-chan struct{}) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			ping, err := envelope.NewEvent(c.identifier(), envelope.ServerIdentifier, envelope.EventPing, c.nextOutboundSequence(), nil)
			if err != nil {
				continue
			}
			select {
			case c.outbound <- ping:
			case <-done:
				return
			}
		}
	}
}
