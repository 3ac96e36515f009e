package cache

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_LabelledByCache(t *testing.T) {
	c, err := NewRistrettoCache(DefaultConfig("metrics-test", 10, zapNop()))
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	defer c.Close()

	before := testutil.ToFloat64(MissesTotal.WithLabelValues("metrics-test"))
	c.Get("absent")
	after := testutil.ToFloat64(MissesTotal.WithLabelValues("metrics-test"))

	if after-before != 1 {
		t.Errorf("expected one miss, got %v", after-before)
	}
}
