package transport

import "testing"

func TestRTTEstimatorFirstSample(t *testing.T) {
	r := newRTTEstimator(25)
	r.sample(1000, 1100, 0, true)
	if r.latestRTT != 100 {
		t.Fatalf("latestRTT = %d, want 100", r.latestRTT)
	}
	if r.minRTT != 100 || r.smoothedRTT != 100 {
		t.Fatalf("expected first sample to seed min/smoothed RTT, got min=%d smoothed=%d", r.minRTT, r.smoothedRTT)
	}
}

func TestRTTEstimatorTracksMinAndSmoothed(t *testing.T) {
	r := newRTTEstimator(25)
	samples := []int64{100, 120, 90, 200, 80}
	sent := int64(0)
	for _, s := range samples {
		r.sample(sent, sent+s, 0, true)
		sent += s
	}
	if r.minRTT != 80 {
		t.Fatalf("minRTT = %d, want 80", r.minRTT)
	}
	// Smoothed RTT must stay within the observed sample range: the
	// EWMA can never extrapolate outside [min, max] of its inputs.
	if r.smoothedRTT < 80 || r.smoothedRTT > 200 {
		t.Fatalf("smoothedRTT %d outside observed sample range", r.smoothedRTT)
	}
}

func TestRTTEstimatorAckDelayClamped(t *testing.T) {
	r := newRTTEstimator(10)
	r.sample(0, 100, 0, true)
	// A large ack delay, clamped to maxAckDelay, must not be subtracted
	// past minRTT.
	r.sample(200, 350, 1000, true)
	if r.latestRTT != 150 {
		t.Fatalf("latestRTT = %d, want 150", r.latestRTT)
	}
}

func TestPTOGrowsWithVariance(t *testing.T) {
	stable := newRTTEstimator(25)
	for i := 0; i < 10; i++ {
		stable.sample(int64(i)*100, int64(i)*100+100, 0, true)
	}
	volatile := newRTTEstimator(25)
	rtts := []int64{50, 300, 20, 400, 10, 500}
	sent := int64(0)
	for _, s := range rtts {
		volatile.sample(sent, sent+s, 0, true)
		sent += s
	}
	if volatile.pto() <= stable.pto() {
		t.Fatalf("expected volatile RTT series to produce a larger PTO: volatile=%d stable=%d", volatile.pto(), stable.pto())
	}
}
