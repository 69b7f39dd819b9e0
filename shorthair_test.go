package shorthair

import (
	"bytes"
	"fmt"
	"math/rand"
	"testing"
	"time"
)

// testPeer wires an Endpoint's outbound datagrams into a caller-supplied
// sink, simulating the channel end-to-end scenarios in spec.md §8: two
// in-memory Endpoints exchanging real wire bytes across a lossy link,
// rather than mocking any internal component.
type testPeer struct {
	ep        *Endpoint
	delivered [][]byte
}

func newTestPeer(t *testing.T, initiator bool, key []byte, send func([]byte)) *testPeer {
	t.Helper()
	peer := &testPeer{}
	settings := Settings{
		Initiator:   initiator,
		Key:         key,
		TargetLoss:  1e-3,
		MinLoss:     0.01,
		MinDelay:    5 * time.Millisecond,
		MaxDelay:    200 * time.Millisecond,
		MaxDataSize: 1400,
		Iface: Interface{
			SendData: send,
			OnPacket: func(p []byte) {
				peer.delivered = append(peer.delivered, append([]byte(nil), p...))
			},
		},
	}
	ep, err := New(settings)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	peer.ep = ep
	return peer
}

// link connects two testPeers with an optional per-direction drop/tamper
// predicate, keyed by a monotonically increasing datagram sequence number
// per direction.
type link struct {
	a, b     *testPeer
	seqAtoB  int
	seqBtoA  int
	dropAtoB func(seq int) bool
	dropBtoA func(seq int) bool
}

func newLink(t *testing.T, key []byte) *link {
	t.Helper()
	l := &link{}
	l.a = newTestPeer(t, true, key, func(b []byte) {
		seq := l.seqAtoB
		l.seqAtoB++
		if l.dropAtoB != nil && l.dropAtoB(seq) {
			return
		}
		l.b.ep.Recv(append([]byte(nil), b...), time.Now())
	})
	l.b = newTestPeer(t, false, key, func(b []byte) {
		seq := l.seqBtoA
		l.seqBtoA++
		if l.dropBtoA != nil && l.dropBtoA(seq) {
			return
		}
		l.a.ep.Recv(append([]byte(nil), b...), time.Now())
	})
	return l
}

func testKey() []byte {
	k := make([]byte, 32)
	for i := range k {
		k[i] = byte(i * 7)
	}
	return k
}

// driveA sends payloads from a to b, ticking both sides enough times to
// flush every group's recovery pacing window, and returns once no more
// progress would occur.
func driveA(l *link, payloads [][]byte) {
	now := time.Now()
	for _, p := range payloads {
		l.a.ep.Send(p, now)
	}
	swap := 10 * time.Millisecond
	for i := 0; i < 200; i++ {
		now = now.Add(swap)
		l.a.ep.Tick(now)
		l.b.ep.Tick(now)
	}
}

func TestEndToEndNoLossByteExact(t *testing.T) {
	l := newLink(t, testKey())
	payloads := make([][]byte, 30)
	for i := range payloads {
		payloads[i] = []byte(fmt.Sprintf("message-%03d", i))
	}
	driveA(l, payloads)

	if len(l.b.delivered) != len(payloads) {
		t.Fatalf("delivered %d payloads, want %d", len(l.b.delivered), len(payloads))
	}
	for i, p := range payloads {
		if !bytes.Equal(l.b.delivered[i], p) {
			t.Errorf("payload %d = %q, want %q", i, l.b.delivered[i], p)
		}
	}
}

func TestEndToEndResidualLossUnderRandomDrop(t *testing.T) {
	l := newLink(t, testKey())
	rng := rand.New(rand.NewSource(1))
	l.dropAtoB = func(seq int) bool { return rng.Float64() < 0.05 }

	const n = 60
	payloads := make([][]byte, n)
	for i := range payloads {
		payloads[i] = []byte(fmt.Sprintf("payload-%02d", i))
	}
	driveA(l, payloads)

	missing := 0
	delivered := make(map[string]bool, len(l.b.delivered))
	for _, d := range l.b.delivered {
		delivered[string(d)] = true
	}
	for _, p := range payloads {
		if !delivered[string(p)] {
			missing++
		}
	}
	// 5% independent loss is well within what redundancy planned at
	// target_loss=1e-3 should recover; allow a small margin since loss is
	// random and recovery pacing spans a window, not instantaneous.
	if missing > 2 {
		t.Errorf("%d/%d payloads never delivered under 5%% random drop", missing, n)
	}
}

func TestEndToEndBurstLossRecovered(t *testing.T) {
	l := newLink(t, testKey())
	// Drop a contiguous run of three originals early in the stream. At the
	// min_loss floor (0.01) and target_loss 1e-3 the planner gives this
	// 20-original group 3 recovery symbols, enough to cover the run.
	l.dropAtoB = func(seq int) bool { return seq >= 3 && seq <= 5 }

	const n = 20
	payloads := make([][]byte, n)
	for i := range payloads {
		payloads[i] = []byte(fmt.Sprintf("burst-%02d", i))
	}
	driveA(l, payloads)

	delivered := make(map[string]bool, len(l.b.delivered))
	for _, d := range l.b.delivered {
		delivered[string(d)] = true
	}
	for _, p := range payloads {
		if !delivered[string(p)] {
			t.Errorf("payload %q never delivered after burst loss", p)
		}
	}
}

func TestEndToEndTamperedCiphertextRejectedSilently(t *testing.T) {
	l := newLink(t, testKey())
	l.a.ep.settings.Iface.SendData = func(b []byte) {
		tampered := append([]byte(nil), b...)
		tampered[len(tampered)-1] ^= 0xFF // flip a tag byte
		// Must not panic and must not be delivered.
		l.b.ep.Recv(tampered, time.Now())
	}

	if err := l.a.ep.Send([]byte("hello"), time.Now()); err != nil {
		t.Fatalf("Send: %v", err)
	}
	l.a.ep.Tick(time.Now())

	if len(l.b.delivered) != 0 {
		t.Errorf("tampered packet was delivered: %v", l.b.delivered)
	}
}

func TestEndToEndDifferentKeysNeverAuthenticate(t *testing.T) {
	keyA := testKey()
	keyB := append([]byte(nil), keyA...)
	keyB[0] ^= 0x01

	var captured []byte
	a := newTestPeer(t, true, keyA, func(b []byte) { captured = b })
	b := newTestPeer(t, false, keyB, func([]byte) {})

	if err := a.ep.Send([]byte("x"), time.Now()); err != nil {
		t.Fatalf("Send: %v", err)
	}
	a.ep.Tick(time.Now())
	if captured == nil {
		t.Fatal("no datagram captured")
	}
	b.ep.Recv(captured, time.Now())
	if len(b.delivered) != 0 {
		t.Error("mismatched keys should never authenticate a packet")
	}
}

func TestEndToEndSameInitiatorRoleNeverAuthenticates(t *testing.T) {
	key := testKey()
	var captured []byte
	a := newTestPeer(t, true, key, func(b []byte) { captured = b })
	b := newTestPeer(t, true, key, func([]byte) {}) // both initiator: misconfigured

	if err := a.ep.Send([]byte("x"), time.Now()); err != nil {
		t.Fatalf("Send: %v", err)
	}
	a.ep.Tick(time.Now())
	if captured == nil {
		t.Fatal("no datagram captured")
	}
	b.ep.Recv(captured, time.Now())
	if len(b.delivered) != 0 {
		t.Error("same initiator role on both sides should never authenticate")
	}
}

func TestEndToEndIdleThenResumeGroupSuccession(t *testing.T) {
	l := newLink(t, testKey())
	driveA(l, [][]byte{[]byte("before-idle")})

	// Idle for a long stretch: several swap intervals pass with nothing
	// to send, which must not disturb the 8-bit group id ring.
	now := time.Now().Add(time.Second)
	for i := 0; i < 20; i++ {
		now = now.Add(10 * time.Millisecond)
		l.a.ep.Tick(now)
		l.b.ep.Tick(now)
	}

	driveA(l, [][]byte{[]byte("after-idle")})

	found := map[string]bool{}
	for _, d := range l.b.delivered {
		found[string(d)] = true
	}
	if !found["before-idle"] || !found["after-idle"] {
		t.Errorf("delivered = %v, want both before-idle and after-idle", l.b.delivered)
	}
}

func TestSettingsValidateRejectsBadConfig(t *testing.T) {
	base := Settings{
		Key:         testKey(),
		TargetLoss:  1e-3,
		MinLoss:     0.01,
		MinDelay:    5 * time.Millisecond,
		MaxDelay:    200 * time.Millisecond,
		MaxDataSize: 1400,
		Iface:       Interface{SendData: func([]byte) {}},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should validate, got %v", err)
	}

	cases := []struct {
		name   string
		modify func(*Settings)
	}{
		{"short key", func(s *Settings) { s.Key = s.Key[:16] }},
		{"loss out of range", func(s *Settings) { s.MinLoss = 1.5 }},
		{"inverted delay bounds", func(s *Settings) { s.MinDelay, s.MaxDelay = s.MaxDelay, s.MinDelay }},
		{"tiny max data size", func(s *Settings) { s.MaxDataSize = 4 }},
		{"missing SendData", func(s *Settings) { s.Iface.SendData = nil }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := base
			s.Key = append([]byte(nil), base.Key...)
			c.modify(&s)
			if err := s.Validate(); err == nil {
				t.Errorf("expected validation error for %s", c.name)
			}
		})
	}
}

func TestSendRejectsOversizedPayload(t *testing.T) {
	l := newLink(t, testKey())
	huge := make([]byte, 4096)
	if err := l.a.ep.Send(huge, time.Now()); err == nil {
		t.Error("expected ErrPayloadTooLarge for an oversized payload")
	}
}

func TestOperationsFailBeforeInitializeAnalogue(t *testing.T) {
	ep := &Endpoint{}
	if err := ep.Send(nil, time.Now()); err != ErrNotInitialized {
		t.Errorf("Send on zero-value Endpoint = %v, want ErrNotInitialized", err)
	}
	if err := ep.Tick(time.Now()); err != ErrNotInitialized {
		t.Errorf("Tick on zero-value Endpoint = %v, want ErrNotInitialized", err)
	}
	if err := ep.Recv(nil, time.Now()); err != ErrNotInitialized {
		t.Errorf("Recv on zero-value Endpoint = %v, want ErrNotInitialized", err)
	}
	if err := ep.Finalize(); err != ErrNotInitialized {
		t.Errorf("Finalize on zero-value Endpoint = %v, want ErrNotInitialized", err)
	}
}
