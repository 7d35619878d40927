package broker

import (
	"encoding/json"
	"time"

	"github.com/alperakcan/mbus-sub000/internal/envelope"
	"github.com/alperakcan/mbus-sub000/internal/frame"
)

// Status codes returned in a command.result envelope, per spec.md §4.4.
const (
	StatusOK                  = 0
	StatusInternalError       = -1
	StatusInvalidRequest      = -2
	StatusPermissionDenied    = -3
	StatusAlreadyExists       = -4
	StatusNotFound            = -5
	StatusDestinationNotFound = -6
)

type createRequest struct {
	Identifier   string   `json:"identifier"`
	Password     string   `json:"password"`
	Compressions []string `json:"compressions"`
	Ping         struct {
		Interval  int `json:"interval"`
		Timeout   int `json:"timeout"`
		Threshold int `json:"threshold"`
	} `json:"ping"`
}

type createResult struct {
	Identifier  string `json:"identifier"`
	Compression string `json:"compression"`
}

type subscribeRequest struct {
	Source string `json:"source"`
	Event  string `json:"event"`
}

type registerRequest struct {
	Command string `json:"command"`
}

type eventRequest struct {
	Destination string          `json:"destination"`
	Identifier  string          `json:"identifier"`
	Payload     json.RawMessage `json:"payload"`
}

type resultRequest struct {
	Destination string          `json:"destination"`
	Identifier  string          `json:"identifier"`
	Sequence    int             `json:"sequence"`
	Status      int             `json:"status"`
	Payload     json.RawMessage `json:"payload"`
}

type clientInfo struct {
	Identifier   string   `json:"identifier"`
	RemoteAddr   string   `json:"remote_addr"`
	Status       string   `json:"status"`
	Compression  string   `json:"compression"`
	Subscriptions []Subscription `json:"subscriptions"`
	Commands     []string `json:"commands"`
}

type statusResult struct {
	Clients int `json:"clients"`
}

type clientsResult struct {
	Identifiers []string `json:"identifiers"`
}

type clientRequest struct {
	Identifier string `json:"identifier"`
}

// handleInbound dispatches a parsed envelope received from client. It is
// the broker-side equivalent of spec.md §4's single dispatch switch,
// split across built-in commands (destination == ServerIdentifier),
// result correlation, and forwarded calls to another client. It does not
// check that client has completed command.create first.
func (s *Service) handleInbound(client *Client, env *envelope.Envelope) {
	switch env.Type {
	case envelope.TypeCommand:
		if env.Destination == envelope.ServerIdentifier {
			s.handleBuiltin(client, env)
			return
		}
		s.forwardCall(client, env)

	case envelope.TypeResult:
		s.handleResult(client, env)

	case envelope.TypeEvent:
		if env.Destination == envelope.ServerIdentifier && env.Identifier == envelope.EventPing {
			s.handlePing(client, env)
			return
		}
		// Clients never publish bare event envelopes directly; publication
		// goes through the command.event built-in so the broker can stamp
		// per-recipient sequence numbers. An event envelope reaching here
		// is forwarded verbatim to its destination, mirroring a command.
		s.forwardCall(client, env)
	}
}

// handlePing answers a client's keepalive ping (spec.md §4.6) directly,
// without going through the waits table: the reply is a pong to the
// sender, not a forwarded call to a third party.
func (s *Service) handlePing(client *Client, env *envelope.Envelope) {
	client.recordPing()
	pong, err := envelope.NewEvent(envelope.ServerIdentifier, client.ID(), envelope.EventPong, client.nextEventSequence(), nil)
	if err != nil {
		return
	}
	client.enqueue(pong)
}

func (s *Service) handleBuiltin(client *Client, env *envelope.Envelope) {
	switch env.Identifier {
	case envelope.CommandCreate:
		s.handleCreate(client, env)
	case envelope.CommandSubscribe:
		s.handleSubscribe(client, env)
	case envelope.CommandUnsubscribe:
		s.handleUnsubscribe(client, env)
	case envelope.CommandRegister:
		s.handleRegister(client, env)
	case envelope.CommandUnregister:
		s.handleUnregister(client, env)
	case envelope.CommandEvent:
		s.handlePublishEvent(client, env)
	case envelope.CommandResult:
		s.handleResult(client, env)
	case envelope.CommandStatus:
		s.handleStatus(client, env)
	case envelope.CommandClients:
		s.handleClients(client, env)
	case envelope.CommandClient:
		s.handleClientInfo(client, env)
	case envelope.CommandClose:
		s.handleClose(client, env)
	default:
		s.reply(client, env, StatusNotFound, nil)
	}
}

func (s *Service) reply(client *Client, req *envelope.Envelope, status int, payload interface{}) {
	res, err := envelope.NewResult(envelope.ServerIdentifier, client.ID(), req.Identifier, req.Sequence, status, payload)
	if err != nil {
		return
	}
	client.enqueue(res)
}

func (s *Service) handleCreate(client *Client, env *envelope.Envelope) {
	var req createRequest
	if err := env.UnmarshalPayload(&req); err != nil {
		s.reply(client, env, StatusInvalidRequest, nil)
		return
	}

	if s.password != "" && req.Password != s.password {
		s.reply(client, env, StatusPermissionDenied, nil)
		return
	}

	id := req.Identifier
	if id == "" {
		id = envelope.MintClientIdentifier()
	}
	client.setID(id)

	if previous := s.registry.Add(client); previous != nil && previous != client {
		previous.markClosed(envelope.ReasonConnectionClosed)
	}

	compression := frame.Negotiate(req.Compressions)
	client.setCompression(compression)
	client.setStatus(StatusConnected)

	if req.Ping.Interval > 0 {
		client.configureKeepalive(
			time.Duration(req.Ping.Interval)*time.Millisecond,
			time.Duration(req.Ping.Timeout)*time.Millisecond,
			req.Ping.Threshold,
		)
	}

	s.reply(client, env, StatusOK, createResult{Identifier: id, Compression: string(compression)})
	s.publishConnected(client)
}

func (s *Service) handleSubscribe(client *Client, env *envelope.Envelope) {
	var req subscribeRequest
	if err := env.UnmarshalPayload(&req); err != nil {
		s.reply(client, env, StatusInvalidRequest, nil)
		return
	}
	sub := Subscription{Source: req.Source, Event: req.Event}
	client.subscriptions.Add(sub)
	s.reply(client, env, StatusOK, nil)
	s.publishSubscribed(client, sub)
}

func (s *Service) handleUnsubscribe(client *Client, env *envelope.Envelope) {
	var req subscribeRequest
	if err := env.UnmarshalPayload(&req); err != nil {
		s.reply(client, env, StatusInvalidRequest, nil)
		return
	}
	sub := Subscription{Source: req.Source, Event: req.Event}
	if !client.subscriptions.Remove(sub) {
		s.reply(client, env, StatusNotFound, nil)
		return
	}
	s.reply(client, env, StatusOK, nil)
	s.publishUnsubscribed(client, sub)
}

func (s *Service) handleRegister(client *Client, env *envelope.Envelope) {
	var req registerRequest
	if err := env.UnmarshalPayload(&req); err != nil || req.Command == "" {
		s.reply(client, env, StatusInvalidRequest, nil)
		return
	}
	if !client.commands.Register(req.Command) {
		s.reply(client, env, StatusAlreadyExists, nil)
		return
	}
	s.reply(client, env, StatusOK, nil)
	s.publishRegistered(client, req.Command)
}

func (s *Service) handleUnregister(client *Client, env *envelope.Envelope) {
	var req registerRequest
	if err := env.UnmarshalPayload(&req); err != nil || req.Command == "" {
		s.reply(client, env, StatusInvalidRequest, nil)
		return
	}
	if !client.commands.Unregister(req.Command) {
		s.reply(client, env, StatusNotFound, nil)
		return
	}
	s.reply(client, env, StatusOK, nil)
	s.publishUnregistered(client, req.Command)
}

// handlePublishEvent implements command.event: a client asks the broker
// to publish an event on its own behalf (spec.md §4.3).
func (s *Service) handlePublishEvent(client *Client, env *envelope.Envelope) {
	var req eventRequest
	if err := env.UnmarshalPayload(&req); err != nil || req.Identifier == "" {
		s.reply(client, env, StatusInvalidRequest, nil)
		return
	}
	destination := req.Destination
	if destination == "" {
		destination = envelope.DestinationSubscribers
	}
	s.publish(client.ID(), req.Identifier, json.RawMessage(req.Payload), destination)
	s.reply(client, env, StatusOK, nil)
}

// forwardCall implements spec.md §4.5: a non-built-in command is routed
// to its destination client as a call, recorded in that client's waits
// table so the eventual command.result can be matched back to client.
func (s *Service) forwardCall(client *Client, env *envelope.Envelope) {
	dest, ok := s.registry.Get(env.Destination)
	if !ok {
		s.reply(client, env, StatusDestinationNotFound, nil)
		return
	}

	if env.Type == envelope.TypeCommand && !dest.commands.Has(env.Identifier) {
		s.reply(client, env, StatusNotFound, nil)
		return
	}

	dest.waits.Add(&PendingCall{
		Originator: client.Handle(),
		Identifier: env.Identifier,
		Sequence:   env.Sequence,
	})

	call := env.Clone()
	call.AddHop(envelope.ServerIdentifier)
	if !dest.enqueue(call) {
		dest.waits.Complete(client.ID(), env.Identifier, env.Sequence)
		s.reply(client, env, StatusInternalError, nil)
	}
}

// handleResult implements the destination half of spec.md §4.5: a
// command.result (or bare result envelope) completes the matching
// pending call and is forwarded to the originator with the broker's hop
// recorded (AddHop). A command.result is first rebuilt into a plain
// result envelope from its payload.
func (s *Service) handleResult(client *Client, env *envelope.Envelope) {
	target := env
	if env.Identifier == envelope.CommandResult {
		var req resultRequest
		if err := env.UnmarshalPayload(&req); err != nil {
			return
		}
		result, err := envelope.NewResult(client.ID(), req.Destination, req.Identifier, req.Sequence, req.Status, json.RawMessage(req.Payload))
		if err != nil {
			return
		}
		target = result
	}

	call, ok := client.waits.Complete(target.Destination, target.Identifier, target.Sequence)
	if !ok {
		return
	}
	originator, ok := s.registry.Get(call.Originator.ID)
	if !ok || originator.Handle() != call.Originator {
		return
	}
	out := target.Clone()
	out.AddHop(envelope.ServerIdentifier)
	originator.enqueue(out)
}

func (s *Service) handleStatus(client *Client, env *envelope.Envelope) {
	s.reply(client, env, StatusOK, statusResult{Clients: s.registry.Count()})
}

func (s *Service) handleClients(client *Client, env *envelope.Envelope) {
	var ids []string
	for _, c := range s.registry.Snapshot() {
		ids = append(ids, c.ID())
	}
	s.reply(client, env, StatusOK, clientsResult{Identifiers: ids})
}

func (s *Service) handleClientInfo(client *Client, env *envelope.Envelope) {
	var req clientRequest
	if err := env.UnmarshalPayload(&req); err != nil || req.Identifier == "" {
		s.reply(client, env, StatusInvalidRequest, nil)
		return
	}
	target, ok := s.registry.Get(req.Identifier)
	if !ok {
		s.reply(client, env, StatusNotFound, nil)
		return
	}
	s.reply(client, env, StatusOK, clientInfo{
		Identifier:  target.ID(),
		RemoteAddr:  target.RemoteAddr(),
		Status:      target.Status().String(),
		Compression: string(target.Compression()),
		Subscriptions: target.subscriptions.Snapshot(),
		Commands:    target.commands.Snapshot(),
	})
}

func (s *Service) handleClose(client *Client, env *envelope.Envelope) {
	s.reply(client, env, StatusOK, nil)
	client.markClosed(envelope.ReasonCloseCommand)
}
