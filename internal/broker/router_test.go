package broker

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alperakcan/mbus-sub000/internal/envelope"
)

func newTestService() *Service {
	return NewService(Options{}, nil)
}

func drain(t *testing.T, c *Client) *envelope.Envelope {
	t.Helper()
	select {
	case env := <-c.outbound:
		return env
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for outbound envelope")
		return nil
	}
}

func acceptTestClient(s *Service) *Client {
	server, _ := net.Pipe()
	c := newClient("", s.registry.NextGeneration(), server, "pipe")
	return c
}

func TestServiceHandleCreateAssignsIdentifier(t *testing.T) {
	s := newTestService()
	c := acceptTestClient(s)

	req, err := envelope.NewCommand("", envelope.ServerIdentifier, envelope.CommandCreate, 1, nil)
	require.NoError(t, err)

	s.handleInbound(c, req)

	res := drain(t, c)
	assert.Equal(t, envelope.TypeResult, res.Type)
	assert.NotEmpty(t, c.ID())
	assert.Equal(t, StatusOK, *res.Status)

	_, ok := s.registry.Get(c.ID())
	assert.True(t, ok, "client should be registered under its minted identifier")
}

func TestServiceHandleCreateWrongPassword(t *testing.T) {
	s := NewService(Options{Password: "secret"}, nil)
	c := acceptTestClient(s)

	payload := map[string]string{"password": "wrong"}
	req, _ := envelope.NewCommand("", envelope.ServerIdentifier, envelope.CommandCreate, 1, payload)
	s.handleInbound(c, req)

	res := drain(t, c)
	assert.Equal(t, StatusPermissionDenied, *res.Status)
}

func TestServiceSubscribeThenPublish(t *testing.T) {
	s := newTestService()
	subscriber := acceptTestClient(s)
	subscriber.setID("org.mbus.client.subscribr")
	s.registry.Add(subscriber)

	publisher := acceptTestClient(s)
	publisher.setID("org.mbus.client.publisher")
	s.registry.Add(publisher)

	subReq, _ := envelope.NewCommand(subscriber.ID(), envelope.ServerIdentifier, envelope.CommandSubscribe, 1,
		map[string]string{"source": envelope.SourceAll, "event": "temperature.changed"})
	s.handleInbound(subscriber, subReq)
	drain(t, subscriber) // command.subscribe result

	evtReq, _ := envelope.NewCommand(publisher.ID(), envelope.ServerIdentifier, envelope.CommandEvent, 2,
		map[string]interface{}{"identifier": "temperature.changed", "payload": map[string]int{"celsius": 21}})
	s.handleInbound(publisher, evtReq)
	drain(t, publisher) // command.event result

	delivered := drain(t, subscriber)
	assert.Equal(t, envelope.TypeEvent, delivered.Type)
	assert.Equal(t, "temperature.changed", delivered.Identifier)
	assert.Equal(t, publisher.ID(), delivered.Source)
}

func TestServiceForwardCallRoundTrip(t *testing.T) {
	s := newTestService()
	originator := acceptTestClient(s)
	originator.setID("org.mbus.client.originatr")
	s.registry.Add(originator)

	destination := acceptTestClient(s)
	destination.setID("org.mbus.client.destinatn")
	s.registry.Add(destination)
	destination.commands.Register("math.add")

	call, _ := envelope.NewCommand(originator.ID(), destination.ID(), "math.add", 42, map[string]int{"a": 1, "b": 2})
	s.handleInbound(originator, call)

	forwarded := drain(t, destination)
	assert.Equal(t, "math.add", forwarded.Identifier)
	assert.Equal(t, originator.ID(), forwarded.Source)

	result, _ := envelope.NewResult(destination.ID(), originator.ID(), "math.add", 42, StatusOK, map[string]int{"sum": 3})
	s.handleInbound(destination, result)

	back := drain(t, originator)
	assert.Equal(t, StatusOK, *back.Status)
	var sum struct {
		Sum int `json:"sum"`
	}
	require.NoError(t, back.UnmarshalPayload(&sum))
	assert.Equal(t, 3, sum.Sum)
}

func TestServiceForwardCallUnregisteredCommand(t *testing.T) {
	s := newTestService()
	originator := acceptTestClient(s)
	originator.setID("org.mbus.client.originatr")
	s.registry.Add(originator)

	destination := acceptTestClient(s)
	destination.setID("org.mbus.client.destinatn")
	s.registry.Add(destination)

	call, _ := envelope.NewCommand(originator.ID(), destination.ID(), "math.add", 1, nil)
	s.handleInbound(originator, call)

	res := drain(t, originator)
	assert.Equal(t, StatusNotFound, *res.Status)
}

func TestServiceForwardCallDestinationNotFound(t *testing.T) {
	s := newTestService()
	originator := acceptTestClient(s)
	originator.setID("org.mbus.client.originatr")
	s.registry.Add(originator)

	call, _ := envelope.NewCommand(originator.ID(), "org.mbus.client.ghostclnt", "math.add", 1, nil)
	s.handleInbound(originator, call)

	res := drain(t, originator)
	assert.Equal(t, StatusDestinationNotFound, *res.Status)
}

func TestServiceRegisterUnregisterCommand(t *testing.T) {
	s := newTestService()
	c := acceptTestClient(s)
	c.setID("org.mbus.client.registrnt")
	s.registry.Add(c)

	req, _ := envelope.NewCommand(c.ID(), envelope.ServerIdentifier, envelope.CommandRegister, 1,
		map[string]string{"command": "math.add"})
	s.handleInbound(c, req)
	res := drain(t, c)
	assert.Equal(t, StatusOK, *res.Status)
	assert.True(t, c.commands.Has("math.add"))

	dup := req.Clone()
	s.handleInbound(c, dup)
	dupRes := drain(t, c)
	assert.Equal(t, StatusAlreadyExists, *dupRes.Status)
}

func TestServiceClientDisconnectDrainsWaits(t *testing.T) {
	s := newTestService()
	originator := acceptTestClient(s)
	originator.setID("org.mbus.client.originatr")
	s.registry.Add(originator)

	destination := acceptTestClient(s)
	destination.setID("org.mbus.client.destinatn")
	s.registry.Add(destination)
	destination.commands.Register("math.add")

	call, _ := envelope.NewCommand(originator.ID(), destination.ID(), "math.add", 7, nil)
	s.handleInbound(originator, call)
	drain(t, destination)

	for _, pc := range destination.waits.DrainAll() {
		failure, _ := envelope.NewResult(envelope.ServerIdentifier, originator.ID(), pc.Identifier, pc.Sequence, StatusInternalError, nil)
		originator.enqueue(failure)
	}

	failed := drain(t, originator)
	assert.Equal(t, StatusInternalError, *failed.Status)
}
