package envelope

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Type is the envelope's wire-level message kind.
type Type string

// Recognized envelope types.
const (
	TypeCommand Type = "command"
	TypeEvent   Type = "event"
	TypeResult  Type = "result"
)

func (t Type) valid() bool {
	switch t {
	case TypeCommand, TypeEvent, TypeResult:
		return true
	default:
		return false
	}
}

// Envelope is the single JSON object exchanged on the wire between a
// client and the broker. It is the atomic unit of the protocol: every
// frame the frame codec decodes carries exactly one envelope.
//
// Source/Destination/Identifier/Sequence/Payload/Status are the
// routing-critical fields spec.md names explicitly. CorrelationID,
// Headers, Properties, TraceID, SpanID, HopCount and Route are additive,
// broker-opaque passthrough metadata: the broker never inspects them for
// routing decisions, it only stamps HopCount/Route when it forwards a
// command, result or event (AddHop) and otherwise forwards them unchanged.
type Envelope struct {
	Type        Type            `json:"type"`
	Destination string          `json:"destination,omitempty"`
	Source      string          `json:"source,omitempty"`
	Identifier  string          `json:"identifier,omitempty"`
	Sequence    int             `json:"sequence"`
	Timeout     int             `json:"timeout,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Status      *int            `json:"status,omitempty"`

	CorrelationID string                 `json:"correlation_id,omitempty"`
	Headers       map[string]string      `json:"headers,omitempty"`
	Properties    map[string]interface{} `json:"properties,omitempty"`
	TraceID       string                 `json:"trace_id,omitempty"`
	SpanID        string                 `json:"span_id,omitempty"`
	HopCount      int                    `json:"hop_count,omitempty"`
	Route         []string               `json:"route,omitempty"`
}

var emptyPayload = json.RawMessage(`{}`)

// NewCommand builds a command envelope. payload is JSON-marshaled; a nil
// payload becomes the default empty object.
func NewCommand(source, destination, identifier string, sequence int, payload interface{}) (*Envelope, error) {
	return build(TypeCommand, source, destination, identifier, sequence, payload)
}

// NewEvent builds an event envelope.
func NewEvent(source, destination, identifier string, sequence int, payload interface{}) (*Envelope, error) {
	return build(TypeEvent, source, destination, identifier, sequence, payload)
}

// NewResult builds a result envelope carrying a status code and reply
// payload, correlated to the original request by sequence.
func NewResult(source, destination, identifier string, sequence int, status int, payload interface{}) (*Envelope, error) {
	env, err := build(TypeResult, source, destination, identifier, sequence, payload)
	if err != nil {
		return nil, err
	}
	env.Status = &status
	return env, nil
}

func build(t Type, source, destination, identifier string, sequence int, payload interface{}) (*Envelope, error) {
	raw, err := marshalPayload(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		Type:        t,
		Source:      source,
		Destination: destination,
		Identifier:  identifier,
		Sequence:    sequence,
		Payload:     raw,
	}, nil
}

func marshalPayload(payload interface{}) (json.RawMessage, error) {
	if payload == nil {
		return emptyPayload, nil
	}
	if raw, ok := payload.(json.RawMessage); ok {
		if len(raw) == 0 {
			return emptyPayload, nil
		}
		return raw, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return data, nil
}

// ParseError is returned by Parse when an inbound envelope is malformed.
// Per spec.md's error taxonomy, a ParseError on an inbound envelope always
// means the sender's connection is closed.
type ParseError struct {
	Field   string
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("envelope: %s: %s", e.Field, e.Message)
}

// Parse decodes and validates a raw JSON envelope string as received from
// a connection. It enforces the wire invariants every peer must check
// before acting on an envelope: type is one of the three recognized
// kinds, destination and identifier are non-empty, and sequence falls in
// [SequenceMin, SequenceMax]. A missing payload is defaulted to `{}`.
//
// source, when non-empty, overrides the envelope's Source field — this is
// how the broker stamps the sender's identifier on inbound command
// envelopes regardless of what the client put on the wire.
func Parse(raw []byte, source string) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &ParseError{Field: "*", Message: err.Error()}
	}
	if !env.Type.valid() {
		return nil, &ParseError{Field: "type", Message: "missing or unrecognized"}
	}
	if env.Destination == "" {
		return nil, &ParseError{Field: "destination", Message: "required"}
	}
	if env.Identifier == "" {
		return nil, &ParseError{Field: "identifier", Message: "required"}
	}
	if env.Sequence < SequenceMin || env.Sequence > SequenceMax {
		return nil, &ParseError{Field: "sequence", Message: "out of range [1,9999]"}
	}
	if len(env.Payload) == 0 {
		env.Payload = emptyPayload
	}
	if source != "" {
		env.Source = source
	}
	return &env, nil
}

// AddHop records that this envelope was processed by agentID, for
// distributed-tracing style route tracking. The broker calls this on
// every forwarded command, forwarded result and fanned-out event.
func (e *Envelope) AddHop(agentID string) {
	e.HopCount++
	e.Route = append(e.Route, agentID)
}

// SetHeader sets a custom header.
func (e *Envelope) SetHeader(key, value string) {
	if e.Headers == nil {
		e.Headers = make(map[string]string)
	}
	e.Headers[key] = value
}

// GetHeader retrieves a custom header.
func (e *Envelope) GetHeader(key string) (string, bool) {
	v, ok := e.Headers[key]
	return v, ok
}

// SetProperty sets a custom typed property.
func (e *Envelope) SetProperty(key string, value interface{}) {
	if e.Properties == nil {
		e.Properties = make(map[string]interface{})
	}
	e.Properties[key] = value
}

// GetProperty retrieves a custom typed property.
func (e *Envelope) GetProperty(key string) (interface{}, bool) {
	v, ok := e.Properties[key]
	return v, ok
}

// UnmarshalPayload unmarshals the envelope's payload into v.
func (e *Envelope) UnmarshalPayload(v interface{}) error {
	if len(e.Payload) == 0 {
		return json.Unmarshal(emptyPayload, v)
	}
	return json.Unmarshal(e.Payload, v)
}

// Clone returns a deep copy of the envelope, safe to mutate independently
// (needed when the broker fans the same logical event out to many
// recipients, each stamped with its own sequence).
func (e *Envelope) Clone() *Envelope {
	clone := *e

	if e.Headers != nil {
		clone.Headers = make(map[string]string, len(e.Headers))
		for k, v := range e.Headers {
			clone.Headers[k] = v
		}
	}
	if e.Properties != nil {
		clone.Properties = make(map[string]interface{}, len(e.Properties))
		for k, v := range e.Properties {
			clone.Properties[k] = v
		}
	}
	if e.Route != nil {
		clone.Route = append([]string(nil), e.Route...)
	}
	if e.Payload != nil {
		clone.Payload = append(json.RawMessage(nil), e.Payload...)
	}
	if e.Status != nil {
		status := *e.Status
		clone.Status = &status
	}
	return &clone
}

// ToJSON serializes the envelope to its wire JSON form.
func (e *Envelope) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON deserializes an envelope without the peer-facing validation
// Parse performs.
func FromJSON(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// NewID returns a fresh unique identifier, used for chunk correlation IDs.
func NewID() string {
	return uuid.New().String()
}

// MintClientIdentifier returns a fresh org.mbus.client.<8-hex> identifier
// derived from a uuid, per spec.md §3's empty-identifier create rule.
func MintClientIdentifier() string {
	id := uuid.New()
	return fmt.Sprintf("%s%s", ClientIdentifierPrefix, id.String()[:8])
}
