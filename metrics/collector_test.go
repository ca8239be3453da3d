package metrics

import (
	"testing"

	"github.com/kestrelscan/tcpstack/tcpengine"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

type fakeStatsSource struct{ stats tcpengine.Stats }

func (f fakeStatsSource) Stats() tcpengine.Stats { return f.stats }

func TestCollectEmitsEveryCounterFromStats(t *testing.T) {
	src := fakeStatsSource{stats: tcpengine.Stats{
		Active:      3,
		Created:     10,
		Destroyed:   7,
		Retransmits: 2,
		BytesSent:   100,
		BytesRecv:   200,
		BannersSent: 4,
		TxDropped:   5,
	}}
	c := NewTableCollector(src)

	ch := make(chan prometheus.Metric, 16)
	c.Collect(ch)
	close(ch)

	got := map[string]float64{}
	for m := range ch {
		var pb dto.Metric
		if err := m.Write(&pb); err != nil {
			t.Fatal(err)
		}
		name := m.Desc().String()
		switch {
		case pb.Gauge != nil:
			got[name] = pb.Gauge.GetValue()
		case pb.Counter != nil:
			got[name] = pb.Counter.GetValue()
		}
	}
	if len(got) != 8 {
		t.Fatalf("collected %d metrics, want 8", len(got))
	}

	wantSum := float64(3 + 10 + 7 + 2 + 100 + 200 + 4 + 5)
	var gotSum float64
	for _, v := range got {
		gotSum += v
	}
	if gotSum != wantSum {
		t.Fatalf("sum of collected metric values = %v, want %v", gotSum, wantSum)
	}
}

func TestDescribeEmitsSameCountAsCollect(t *testing.T) {
	c := NewTableCollector(fakeStatsSource{})
	ch := make(chan *prometheus.Desc, 16)
	c.Describe(ch)
	close(ch)
	n := 0
	for range ch {
		n++
	}
	if n != 8 {
		t.Fatalf("Describe emitted %d descriptors, want 8", n)
	}
}
