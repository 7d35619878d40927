// Package envelope defines the wire message of the mbus protocol: the
// JSON envelope that both the broker and the client reactor exchange over
// a framed connection.
//
// Called by: internal/broker, internal/client.
// Calls: encoding/json, github.com/google/uuid, github.com/pkoukk/tiktoken-go.
package envelope

// Reserved identifiers recognized by every mbus peer. These are literal
// strings compared byte-wise; they are never parsed as globs or patterns.
const (
	// ServerIdentifier is the broker's own endpoint identifier, used as a
	// command destination (pings) and as the event source for built-in
	// server events.
	ServerIdentifier = "org.mbus.server"

	// ClientIdentifierPrefix prefixes every broker-minted client
	// identifier, followed by 8 hex characters.
	ClientIdentifierPrefix = "org.mbus.client."

	// SourceAll is the subscription wildcard matching any event source.
	SourceAll = "org.mbus.method.event.source.all"

	// IdentifierAll is the subscription wildcard matching any event name.
	IdentifierAll = "org.mbus.method.event.identifier.all"

	// DestinationAll delivers an event to every other connected client
	// regardless of subscriptions.
	DestinationAll = "org.mbus.method.event.destination.all"

	// DestinationSubscribers delivers an event to every client whose
	// subscription set matches (source, identifier).
	DestinationSubscribers = "org.mbus.method.event.destination.subscribers"
)

// Built-in command identifiers (destination = ServerIdentifier).
const (
	CommandCreate      = "command.create"
	CommandSubscribe   = "command.subscribe"
	CommandUnsubscribe = "command.unsubscribe"
	CommandRegister    = "command.register"
	CommandUnregister  = "command.unregister"
	CommandEvent       = "command.event"
	CommandResult      = "command.result"
	CommandStatus      = "command.status"
	CommandClients     = "command.clients"
	CommandClient      = "command.client"
	CommandClose       = "command.close"
)

// Built-in server event identifiers (source = ServerIdentifier).
const (
	EventPing         = "org.mbus.server.event.ping"
	EventPong         = "org.mbus.server.event.pong"
	EventConnected    = "org.mbus.server.event.connected"
	EventDisconnected = "org.mbus.server.event.disconnected"
	EventSubscribed   = "org.mbus.server.event.subscribed"
	EventUnsubscribed = "org.mbus.server.event.unsubscribed"
	EventRegistered   = "org.mbus.server.event.registered"
	EventUnregistered = "org.mbus.server.event.unregistered"
)

// DisconnectReason explains why a client's connection to the broker ended.
type DisconnectReason string

// Recognized disconnect reasons, delivered as the payload of
// EventDisconnected and as the client reactor's own disconnect callback.
const (
	ReasonCloseCommand     DisconnectReason = "close_command"
	ReasonPingThreshold    DisconnectReason = "ping_threshold"
	ReasonConnectionClosed DisconnectReason = "connection_closed"
	ReasonInternalError    DisconnectReason = "internal_error"
	ReasonUnknown          DisconnectReason = "unknown"
)

// SequenceMin and SequenceMax bound every envelope sequence number. A
// sender's sequence counter wraps from SequenceMax back to SequenceMin.
const (
	SequenceMin = 1
	SequenceMax = 9999
)

// NextSequence advances a sender's sequence counter, wrapping at
// SequenceMax back to SequenceMin. Called with the zero value it returns
// SequenceMin, so counters do not need separate initialization.
func NextSequence(current int) int {
	if current >= SequenceMax || current < SequenceMin {
		return SequenceMin
	}
	return current + 1
}
