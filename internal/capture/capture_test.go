package capture

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chinda73971177/soc/internal/model"
	"github.com/chinda73971177/soc/internal/rules"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// sliceSource replays a fixed packet list, then closes.
type sliceSource struct {
	packets []model.PacketInfo
}

func (s *sliceSource) Packets(ctx context.Context) (<-chan model.PacketInfo, error) {
	out := make(chan model.PacketInfo)
	go func() {
		defer close(out)
		for _, pkt := range s.packets {
			select {
			case out <- pkt:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

type collectSink struct {
	mu     sync.Mutex
	alerts []model.Alert
}

func (c *collectSink) sink(_ context.Context, alert model.Alert) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, alert)
}

func (c *collectSink) collected() []model.Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Alert(nil), c.alerts...)
}

func newMatcher(t *testing.T) *rules.Matcher {
	t.Helper()
	return rules.NewMatcher(rules.Builtin())
}

func TestEngineMatchesAndSinks(t *testing.T) {
	src := &sliceSource{packets: []model.PacketInfo{
		{Timestamp: time.Now().UTC(), SrcIP: "10.0.0.5", DstIP: "10.0.0.2", DstPort: 22, Protocol: "TCP", Flags: "S"},
		{Timestamp: time.Now().UTC(), SrcIP: "10.0.0.6", DstIP: "10.0.0.2", DstPort: 9999, Protocol: "TCP", Flags: "PA"},
	}}
	cs := &collectSink{}
	e := NewEngine(src, newMatcher(t), cs.sink, 0, testLogger())

	require.NoError(t, e.Run(context.Background()))

	alerts := cs.collected()
	// SYN to port 22 fires the port scan and SSH rules; the second packet
	// matches nothing.
	require.Len(t, alerts, 2)
	ids := []string{alerts[0].RuleID, alerts[1].RuleID}
	assert.ElementsMatch(t, []string{"R001", "R002"}, ids)
	for _, a := range alerts {
		assert.Equal(t, "10.0.0.5", a.SrcIP)
		assert.Equal(t, model.StatusOpen, a.Status)
	}
}

func TestEngineDrainsQueueOnSourceClose(t *testing.T) {
	var packets []model.PacketInfo
	for i := 0; i < 50; i++ {
		packets = append(packets, model.PacketInfo{
			SrcIP: "10.0.0.5", DstIP: "10.0.0.2", DstPort: 22, Protocol: "TCP", Flags: "S",
		})
	}
	src := &sliceSource{packets: packets}
	cs := &collectSink{}
	e := NewEngine(src, newMatcher(t), cs.sink, 4, testLogger())

	require.NoError(t, e.Run(context.Background()))
	// Two rules per packet, small queue, nothing lost.
	assert.Len(t, cs.collected(), 100)
}

func TestEngineStopsOnCancel(t *testing.T) {
	src := NewSyntheticSource(time.Millisecond, 42)
	cs := &collectSink{}
	e := NewEngine(src, newMatcher(t), cs.sink, 0, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop after cancellation")
	}
}

func TestSyntheticSourceEmitsValidPackets(t *testing.T) {
	src := NewSyntheticSource(time.Millisecond, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	packets, err := src.Packets(ctx)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		pkt := <-packets
		assert.NotEmpty(t, pkt.SrcIP)
		assert.NotEmpty(t, pkt.DstIP)
		assert.NotEmpty(t, pkt.Protocol)
		assert.False(t, pkt.Timestamp.IsZero())
	}
	cancel()
}
