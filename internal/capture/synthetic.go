package capture

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/chinda73971177/soc/internal/model"
)

// SyntheticSource emits generated traffic so the detection loop can run on
// hosts with no capture interface. The mix includes benign flows and the
// attack shapes the builtin rules fire on.
type SyntheticSource struct {
	interval time.Duration
	rng      *rand.Rand
}

// NewSyntheticSource creates a source emitting one packet per interval.
func NewSyntheticSource(interval time.Duration, seed int64) *SyntheticSource {
	if interval <= 0 {
		interval = time.Second
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &SyntheticSource{interval: interval, rng: rand.New(rand.NewSource(seed))}
}

// Packets emits until ctx is cancelled, then closes the channel.
func (s *SyntheticSource) Packets(ctx context.Context) (<-chan model.PacketInfo, error) {
	out := make(chan model.PacketInfo)
	go func() {
		defer close(out)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				select {
				case out <- s.nextPacket():
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

var syntheticShapes = []model.PacketInfo{
	{Protocol: "TCP", DstPort: 22, Flags: "S"},
	{Protocol: "TCP", DstPort: 80, Flags: "S"},
	{Protocol: "TCP", DstPort: 443, Flags: "PA"},
	{Protocol: "TCP", DstPort: 3306, Flags: "S"},
	{Protocol: "TCP", DstPort: 3389, Flags: "S"},
	{Protocol: "UDP", DstPort: 53},
	{Protocol: "ICMP"},
	{Protocol: "TCP", DstPort: 8080, Flags: "A"},
}

func (s *SyntheticSource) nextPacket() model.PacketInfo {
	shape := syntheticShapes[s.rng.Intn(len(syntheticShapes))]
	pkt := shape
	pkt.Timestamp = time.Now().UTC()
	pkt.SrcIP = randomIP(s.rng, "10.0.0.")
	pkt.DstIP = randomIP(s.rng, "192.168.1.")
	pkt.SrcPort = 1024 + s.rng.Intn(64000)
	pkt.Length = 40 + s.rng.Intn(1460)
	return pkt
}

func randomIP(rng *rand.Rand, prefix string) string {
	return fmt.Sprintf("%s%d", prefix, 2+rng.Intn(250))
}
