package broker_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alperakcan/mbus-sub000/internal/broker"
	"github.com/alperakcan/mbus-sub000/internal/client"
	"github.com/alperakcan/mbus-sub000/internal/envelope"
	"github.com/alperakcan/mbus-sub000/internal/transport"
)

func startTestBroker(t *testing.T) (*broker.Service, string) {
	t.Helper()
	listener, err := transport.ListenTCP("127.0.0.1:0")
	require.NoError(t, err)

	svc := broker.NewService(broker.Options{}, nil)
	svc.Serve(listener)
	go svc.RunKeepaliveSweep()
	t.Cleanup(svc.Stop)

	return svc, listener.Addr().String()
}

func newTestClient(t *testing.T, addr string) *client.Client {
	t.Helper()
	return newTestClientWithOptions(t, client.Options{
		Network:         "tcp",
		Address:         addr,
		ConnectInterval: 50 * time.Millisecond,
		ConnectTimeout:  2 * time.Second,
	})
}

func newTestClientWithOptions(t *testing.T, opts client.Options) *client.Client {
	t.Helper()
	c := client.New(opts)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		c.Close()
	})
	require.NoError(t, c.Connect(ctx))
	return c
}

func TestEndToEndSubscribeAndPublish(t *testing.T) {
	_, addr := startTestBroker(t)

	subscriber := newTestClient(t, addr)
	publisher := newTestClient(t, addr)

	received := make(chan *envelope.Envelope, 1)
	err := subscriber.Subscribe(envelope.SourceAll, "room.temperature", func(env *envelope.Envelope) {
		received <- env
	})
	require.NoError(t, err)

	err = publisher.Publish("room.temperature", map[string]int{"celsius": 22}, "")
	require.NoError(t, err)

	select {
	case env := <-received:
		var payload struct {
			Celsius int `json:"celsius"`
		}
		require.NoError(t, env.UnmarshalPayload(&payload))
		assert.Equal(t, 22, payload.Celsius)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published event")
	}
}

func TestEndToEndCallAndResult(t *testing.T) {
	_, addr := startTestBroker(t)

	callee := newTestClient(t, addr)
	caller := newTestClient(t, addr)

	err := callee.Register("math.add", func(payload json.RawMessage) (interface{}, error) {
		var args struct {
			A int `json:"a"`
			B int `json:"b"`
		}
		if err := json.Unmarshal(payload, &args); err != nil {
			return nil, err
		}
		return map[string]int{"sum": args.A + args.B}, nil
	})
	require.NoError(t, err)

	res, err := caller.Call(callee.Identifier(), "math.add", map[string]int{"a": 2, "b": 3}, 2*time.Second)
	require.NoError(t, err)
	require.NotNil(t, res.Status)
	assert.Equal(t, 0, *res.Status)

	var sum struct {
		Sum int `json:"sum"`
	}
	require.NoError(t, res.UnmarshalPayload(&sum))
	assert.Equal(t, 5, sum.Sum)
}

func TestEndToEndChunkedCallReassembles(t *testing.T) {
	_, addr := startTestBroker(t)

	callee := newTestClientWithOptions(t, client.Options{
		Network:         "tcp",
		Address:         addr,
		ConnectInterval: 50 * time.Millisecond,
		ConnectTimeout:  2 * time.Second,
	})
	caller := newTestClientWithOptions(t, client.Options{
		Network:          "tcp",
		Address:          addr,
		ConnectInterval:  50 * time.Millisecond,
		ConnectTimeout:   2 * time.Second,
		ChunkTokenBudget: 8, // force a large payload to split across chunks
	})

	var received string
	err := callee.Register("text.echo", func(payload json.RawMessage) (interface{}, error) {
		var args struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(payload, &args); err != nil {
			return nil, err
		}
		received = args.Text
		return map[string]int{"length": len(args.Text)}, nil
	})
	require.NoError(t, err)

	longText := ""
	for i := 0; i < 200; i++ {
		longText += "mbus chunking test payload segment. "
	}

	res, err := caller.Call(callee.Identifier(), "text.echo", map[string]string{"text": longText}, 5*time.Second)
	require.NoError(t, err)
	require.NotNil(t, res.Status)
	assert.Equal(t, 0, *res.Status)
	assert.Equal(t, longText, received)

	var length struct {
		Length int `json:"length"`
	}
	require.NoError(t, res.UnmarshalPayload(&length))
	assert.Equal(t, len(longText), length.Length)
}
