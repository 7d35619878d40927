package broker

import (
	"net"
	"testing"
	"time"

	"github.com/alperakcan/mbus-sub000/internal/envelope"
)

func newTestClient(t *testing.T) (*Client, net.Conn) {
	t.Helper()
	server, clientSide := net.Pipe()
	t.Cleanup(func() { _ = clientSide.Close() })
	c := newClient("org.mbus.client.aaaaaaaa", 1, server, "127.0.0.1:9999")
	return c, clientSide
}

func TestClientEnqueueSaturation(t *testing.T) {
	c, _ := newTestClient(t)
	env, _ := envelope.NewEvent("src", "dst", "evt", 1, nil)

	filled := 0
	for c.enqueue(env) {
		filled++
		if filled > outboundQueueCapacity+1 {
			t.Fatalf("enqueue never reported saturation")
		}
	}
	if filled != outboundQueueCapacity {
		t.Fatalf("expected capacity %d, filled %d", outboundQueueCapacity, filled)
	}
}

func TestClientSweepKeepaliveAdvancesMissed(t *testing.T) {
	c, _ := newTestClient(t)
	c.configureKeepalive(10*time.Millisecond, 10*time.Millisecond, 2)

	now := time.Now().Add(1 * time.Second)
	if !c.sweepKeepalive(now) {
		t.Fatalf("expected keepalive threshold to be exceeded after a long gap")
	}
}

func TestClientSweepKeepaliveResetsOnPing(t *testing.T) {
	c, _ := newTestClient(t)
	c.configureKeepalive(10*time.Millisecond, 10*time.Millisecond, 50)

	now := time.Now().Add(100 * time.Millisecond)
	if c.sweepKeepalive(now) {
		t.Fatalf("threshold of 50 should not be exceeded by a handful of missed intervals")
	}
	c.recordPing()
	if c.missed != 0 {
		t.Fatalf("recordPing should reset missed counter")
	}
}

func TestClientNextEventSequenceWraps(t *testing.T) {
	c, _ := newTestClient(t)
	c.eventSeq = envelope.SequenceMax
	if got := c.nextEventSequence(); got != envelope.SequenceMin {
		t.Fatalf("expected wrap to %d, got %d", envelope.SequenceMin, got)
	}
}
