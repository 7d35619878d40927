package client

import (
	"github.com/alperakcan/mbus-sub000/internal/envelope"
	"github.com/alperakcan/mbus-sub000/internal/frame"
)

// runWriter drains the outbound queue onto the wire until done closes.
func (c *Client) runWriter(done chan struct{}) {
	var buf []byte
	for {
		select {
		case env, ok := <-c.outbound:
			if !ok {
				return
			}
			data, err := env.ToJSON()
			if err != nil {
				continue
			}
			buf = buf[:0]
			buf, err = frame.PushString(buf, c.Compression(), string(data))
			if err != nil {
				c.logf("client: frame encode error: %v", err)
				return
			}
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()
			if conn == nil {
				return
			}
			if _, err := conn.Write(buf); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// runReader reads frames off the wire and dispatches each decoded
// envelope until the connection errors or done closes.
func (c *Client) runReader(done chan struct{}) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}

	buf := make([]byte, 0, 4096)
	tmp := make([]byte, 64*1024)
	for {
		n, err := conn.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
			for {
				raw, rest, ok, ferr := frame.TryPop(buf, c.Compression())
				if ferr != nil {
					c.logf("client: frame error: %v", ferr)
					go c.teardown(envelope.ReasonInternalError)
					return
				}
				if !ok {
					buf = rest
					break
				}
				buf = rest
				env, perr := envelope.Parse([]byte(raw), "")
				if perr != nil {
					c.logf("client: parse error: %v", perr)
					continue
				}
				c.dispatch(env)
			}
		}
		if err != nil {
			go c.teardown(envelope.ReasonConnectionClosed)
			return
		}
		select {
		case <-done:
			return
		default:
		}
	}
}

// dispatch routes one inbound envelope to request correlation, event
// subscriptions, or a registered routine call, per spec.md §5.
func (c *Client) dispatch(env *envelope.Envelope) {
	switch env.Type {
	case envelope.TypeResult:
		if c.requests.complete(env.Sequence, env) {
			return
		}
		// No waiter for this sequence: either a spurious reply or the
		// result of a routine call this client answered asynchronously.

	case envelope.TypeEvent:
		if env.Identifier == envelope.EventPong {
			return
		}
		c.subscriptions.dispatch(env)

	case envelope.TypeCommand:
		c.handleRoutineCall(env)
	}
}

// handleRoutineCall answers an inbound forwarded command against this
// client's registered routines, replying with command.result (spec.md
// §4.4/§4.5). Chunked calls (see internal/envelope's Split) are
// reassembled before the routine ever sees them; intermediate chunks
// produce no reply, matching the broker's one-pending-call-per-key
// bookkeeping.
func (c *Client) handleRoutineCall(env *envelope.Envelope) {
	if envelope.IsChunk(env) {
		merged, err := c.reassembler.Add(env)
		if err != nil {
			c.replyResult(env, -2, nil)
			return
		}
		if merged == nil {
			return
		}
		env = merged
	}

	handler, ok := c.routines.get(env.Identifier)
	if !ok {
		c.replyResult(env, -5, nil)
		return
	}
	result, err := handler(env.Payload)
	c.replyResult(env, statusFor(err), result)
}

func (c *Client) replyResult(req *envelope.Envelope, status int, payload interface{}) {
	res, err := envelope.NewResult(c.identifier(), req.Source, req.Identifier, req.Sequence, status, payload)
	if err != nil {
		return
	}
	select {
	case c.outbound <- res:
	default:
	}
}
