package broker

import (
	"github.com/alperakcan/mbus-sub000/internal/envelope"
)

// connectedPayload is delivered as org.mbus.server.event.connected
// whenever a client finishes its command.create handshake (spec.md §4.2).
type connectedPayload struct {
	Identifier string `json:"identifier"`
	Source     string `json:"source"`
	Address    string `json:"address"`
}

// disconnectedPayload is delivered as org.mbus.server.event.disconnected.
type disconnectedPayload struct {
	Identifier string                     `json:"identifier"`
	Reason     envelope.DisconnectReason `json:"reason"`
}

// subscriptionPayload is delivered as subscribed/unsubscribed events.
type subscriptionPayload struct {
	Identifier string `json:"identifier"`
	Source     string `json:"source"`
	Event      string `json:"event"`
}

// registrationPayload is delivered as registered/unregistered events.
type registrationPayload struct {
	Identifier string `json:"identifier"`
	Command    string `json:"command"`
}

// publish delivers an event envelope per spec.md §4.3/§4.5's three
// destination forms: DestinationAll reaches every other client (source
// excluded); DestinationSubscribers reaches every client whose
// subscription table matches (source, identifier), source included — the
// original C server does not special-case the publisher in this branch,
// so a publisher subscribed to its own events self-delivers; any other
// value addresses exactly the single client with that identifier.
func (s *Service) publish(source, identifier string, payload interface{}, destination string) {
	env, err := envelope.NewEvent(source, destination, identifier, 0, payload)
	if err != nil {
		return
	}
	env.AddHop(envelope.ServerIdentifier)

	for _, client := range s.registry.Snapshot() {
		var deliver bool
		switch destination {
		case envelope.DestinationAll:
			deliver = client.ID() != source
		case envelope.DestinationSubscribers:
			deliver = client.subscriptions.Matches(source, identifier)
		default:
			deliver = client.ID() == destination
		}
		if !deliver {
			continue
		}
		out := env.Clone()
		out.Sequence = client.nextEventSequence()
		client.enqueue(out)
	}
}

func (s *Service) publishConnected(client *Client) {
	s.publish(envelope.ServerIdentifier, envelope.EventConnected, connectedPayload{
		Identifier: client.ID(),
		Source:     client.ID(),
		Address:    client.RemoteAddr(),
	}, envelope.DestinationSubscribers)
}

func (s *Service) publishDisconnected(client *Client, reason envelope.DisconnectReason) {
	s.publish(envelope.ServerIdentifier, envelope.EventDisconnected, disconnectedPayload{
		Identifier: client.ID(),
		Reason:     reason,
	}, envelope.DestinationSubscribers)
}

func (s *Service) publishSubscribed(client *Client, sub Subscription) {
	s.publish(envelope.ServerIdentifier, envelope.EventSubscribed, subscriptionPayload{
		Identifier: client.ID(),
		Source:     sub.Source,
		Event:      sub.Event,
	}, envelope.DestinationSubscribers)
}

func (s *Service) publishUnsubscribed(client *Client, sub Subscription) {
	s.publish(envelope.ServerIdentifier, envelope.EventUnsubscribed, subscriptionPayload{
		Identifier: client.ID(),
		Source:     sub.Source,
		Event:      sub.Event,
	}, envelope.DestinationSubscribers)
}

func (s *Service) publishRegistered(client *Client, command string) {
	s.publish(envelope.ServerIdentifier, envelope.EventRegistered, registrationPayload{
		Identifier: client.ID(),
		Command:    command,
	}, envelope.DestinationSubscribers)
}

func (s *Service) publishUnregistered(client *Client, command string) {
	s.publish(envelope.ServerIdentifier, envelope.EventUnregistered, registrationPayload{
		Identifier: client.ID(),
		Command:    command,
	}, envelope.DestinationSubscribers)
}
