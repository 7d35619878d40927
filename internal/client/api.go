package client

import (
	"fmt"
	"time"

	"github.com/alperakcan/mbus-sub000/internal/envelope"
)

// call sends a command to destination/identifier and blocks for its
// command.result, or returns an error on timeout or disconnect.
func (c *Client) call(destination, identifier string, payload interface{}, timeout time.Duration) (*envelope.Envelope, error) {
	req := c.requests.allocate(timeout)

	env, err := envelope.NewCommand(c.identifier(), destination, identifier, req.sequence, payload)
	if err != nil {
		c.requests.release(req.sequence)
		return nil, fmt.Errorf("client: build command: %w", err)
	}

	c.mu.Lock()
	outbound := c.outbound
	c.mu.Unlock()
	if outbound == nil {
		c.requests.release(req.sequence)
		return nil, fmt.Errorf("client: not connected")
	}

	chunks := []*envelope.Envelope{env}
	if c.opts.ChunkTokenBudget > 0 {
		if budget, berr := envelope.CalculateBudget(env, c.opts.ChunkTokenBudget); berr == nil && budget.NeedsSplitting {
			if split, serr := envelope.Split(env, budget.SuggestedChunks); serr == nil {
				chunks = split
			}
		}
	}

	for _, chunk := range chunks {
		select {
		case outbound <- chunk:
		default:
			c.requests.release(req.sequence)
			return nil, fmt.Errorf("client: outbound queue full")
		}
	}

	if timeout <= 0 {
		res := <-req.result
		if res == nil {
			return nil, fmt.Errorf("client: disconnected while waiting for %s", identifier)
		}
		return res, nil
	}

	select {
	case res := <-req.result:
		if res == nil {
			return nil, fmt.Errorf("client: disconnected while waiting for %s", identifier)
		}
		return res, nil
	case <-time.After(timeout):
		c.requests.release(req.sequence)
		return nil, fmt.Errorf("client: timeout waiting for %s", identifier)
	}
}

// Call sends a command to another client (or the broker itself) and
// waits for its result, per spec.md §4.4/§4.5.
func (c *Client) Call(destination, identifier string, payload interface{}, timeout time.Duration) (*envelope.Envelope, error) {
	return c.call(destination, identifier, payload, timeout)
}

// Subscribe registers a local handler for events matching (source,
// event) and informs the broker via command.subscribe.
func (c *Client) Subscribe(source, event string, handler EventHandler) error {
	res, err := c.call(envelope.ServerIdentifier, envelope.CommandSubscribe,
		map[string]string{"source": source, "event": event}, c.opts.ConnectTimeout)
	if err != nil {
		return err
	}
	if err := resultError(res); err != nil {
		return err
	}
	c.subscriptions.set(source, event, handler)
	return nil
}

// Unsubscribe removes a subscription previously installed by Subscribe.
func (c *Client) Unsubscribe(source, event string) error {
	res, err := c.call(envelope.ServerIdentifier, envelope.CommandUnsubscribe,
		map[string]string{"source": source, "event": event}, c.opts.ConnectTimeout)
	if err != nil {
		return err
	}
	if err := resultError(res); err != nil {
		return err
	}
	c.subscriptions.remove(source, event)
	return nil
}

// Register installs handler as this client's answer to command calls
// named command, and tells the broker via command.register so other
// clients may address it.
func (c *Client) Register(command string, handler RoutineHandler) error {
	res, err := c.call(envelope.ServerIdentifier, envelope.CommandRegister,
		map[string]string{"command": command}, c.opts.ConnectTimeout)
	if err != nil {
		return err
	}
	if err := resultError(res); err != nil {
		return err
	}
	c.routines.set(command, handler)
	return nil
}

// Unregister removes a routine previously installed by Register.
func (c *Client) Unregister(command string) error {
	res, err := c.call(envelope.ServerIdentifier, envelope.CommandUnregister,
		map[string]string{"command": command}, c.opts.ConnectTimeout)
	if err != nil {
		return err
	}
	if err := resultError(res); err != nil {
		return err
	}
	c.routines.remove(command)
	return nil
}

// Publish asks the broker to publish an event. An empty destination fans
// it out to subscribers; a non-empty one is used as the destination
// selector: DestinationAll (every other client), DestinationSubscribers,
// or a single client's identifier (spec.md §4.3).
func (c *Client) Publish(identifier string, payload interface{}, destination string) error {
	res, err := c.call(envelope.ServerIdentifier, envelope.CommandEvent,
		map[string]interface{}{
			"identifier":  identifier,
			"destination": destination,
			"payload":     payload,
		}, c.opts.ConnectTimeout)
	if err != nil {
		return err
	}
	return resultError(res)
}

// Status queries the broker's command.status introspection command.
func (c *Client) Status(timeout time.Duration) (*envelope.Envelope, error) {
	return c.call(envelope.ServerIdentifier, envelope.CommandStatus, nil, timeout)
}

// Clients queries the broker's command.clients introspection command.
func (c *Client) Clients(timeout time.Duration) (*envelope.Envelope, error) {
	return c.call(envelope.ServerIdentifier, envelope.CommandClients, nil, timeout)
}

func resultError(res *envelope.Envelope) error {
	if res.Status != nil && *res.Status != 0 {
		return fmt.Errorf("client: request failed with status %d", *res.Status)
	}
	return nil
}
