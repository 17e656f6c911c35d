package meshchat

import (
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/meshchat/crypto"
	"github.com/opd-ai/meshchat/messaging"
	testsim "github.com/opd-ai/meshchat/testing"
	"github.com/opd-ai/meshchat/transport"
)

// ---------------------------------------------------------------------------
// MockTimeProvider is a deterministic time provider for testing.
// ---------------------------------------------------------------------------

// MockTimeProvider allows tests to control time deterministically.
type MockTimeProvider struct {
	mu          sync.Mutex
	currentTime time.Time
}

func newMockTimeProvider() *MockTimeProvider {
	return &MockTimeProvider{currentTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// Now returns the mock time.
func (m *MockTimeProvider) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentTime
}

// Since returns the mock time elapsed since t.
func (m *MockTimeProvider) Since(t time.Time) time.Duration {
	return m.Now().Sub(t)
}

// Advance moves the mock time forward by the given duration.
func (m *MockTimeProvider) Advance(d time.Duration) {
	m.mu.Lock()
	m.currentTime = m.currentTime.Add(d)
	m.mu.Unlock()
}

// ---------------------------------------------------------------------------
// eventRecorder collects events delivered through OnEvent.
// ---------------------------------------------------------------------------

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) record(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *eventRecorder) ofType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (r *eventRecorder) count(t EventType) int {
	return len(r.ofType(t))
}

// ---------------------------------------------------------------------------
// Node helpers
// ---------------------------------------------------------------------------

// quietOptions returns options for a node on the simulated medium whose
// periodic loops stay idle unless a test shortens them.
func quietOptions(medium *testsim.Medium, addr transport.Address, name string) *Options {
	o := NewOptions()
	o.Name = name
	o.Address = addr
	o.Transport = medium.Join(addr)
	o.RetransmitInterval = time.Hour
	o.AliveInterval = time.Hour
	o.InactivityLimit = 2 * time.Hour
	o.LogLevel = logrus.ErrorLevel
	return o
}

func newTestNode(t *testing.T, medium *testsim.Medium, addr transport.Address, name string, mutate ...func(*Options)) (*Node, *eventRecorder) {
	t.Helper()

	o := quietOptions(medium, addr, name)
	for _, fn := range mutate {
		fn(o)
	}

	n, err := New(o)
	require.NoError(t, err)

	rec := &eventRecorder{}
	n.OnEvent(rec.record)
	t.Cleanup(n.Kill)
	return n, rec
}

// craftPacket builds an encoded packet from src to dst carrying payload
// encrypted under the default group key.
func craftPacket(t *testing.T, src, dst transport.Address, seq uint32, hops int16, flags transport.Flags, payload []byte) []byte {
	t.Helper()

	pkt := transport.NewPacket(src, dst, hops, nil)
	pkt.Seq = seq
	pkt.Flags = flags
	if len(payload) > 0 {
		ciphertext, err := crypto.EncryptSymmetric(payload, crypto.GroupKey(DefaultGroupSecret))
		require.NoError(t, err)
		pkt.Flags = pkt.Flags.With(transport.FlagEncryption)
		pkt.SetPayload(ciphertext)
	}

	data, err := pkt.Encode()
	require.NoError(t, err)
	return data
}

func craftCommand(t *testing.T, src, dst transport.Address, seq uint32, cmd messaging.Command) []byte {
	t.Helper()
	return craftPacket(t, src, dst, seq, 4, 0, cmd.Bytes())
}
