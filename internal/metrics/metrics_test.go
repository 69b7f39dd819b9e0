package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNoopRecorderMethodsDoNotPanic(t *testing.T) {
	var r *Recorder = Noop()
	r.PacketSent()
	r.PacketReceived()
	r.PacketDropped("auth")
	r.RecoveryEmitted()
	r.GroupClosed()
	r.GroupRecovered()
	r.SetLossEstimate(0.01)
	r.SetDelayEstimate(10 * time.Millisecond)
	r.SetSwapInterval(20 * time.Millisecond)
	r.SetRecoveryCount(3)
	if p := r.DelayPercentile(50); p != 0 {
		t.Errorf("DelayPercentile on nil recorder = %d, want 0", p)
	}
}

func TestNewRecorderRecordsValues(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.PacketSent()
	r.PacketDropped("auth")
	r.SetLossEstimate(0.05)
	r.SetDelayEstimate(15 * time.Millisecond)

	for i := 0; i < 10; i++ {
		r.SetDelayEstimate(15 * time.Millisecond)
	}
	if p := r.DelayPercentile(50); p == 0 {
		t.Error("expected nonzero p50 after recording samples")
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	if len(mfs) == 0 {
		t.Error("expected at least one registered metric family")
	}
}
