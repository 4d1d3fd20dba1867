package mesh

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_ObserveSolve(t *testing.T) {
	m := NewMetrics()

	_, _, err := Solve(context.Background(), loadExample(t), RegisterOptions{Metrics: m})
	if err != nil {
		t.Fatalf("Solve() error: %v", err)
	}

	if got := testutil.ToFloat64(m.Landmarks); got != 79 {
		t.Errorf("landmarks = %v, want 79", got)
	}
	if got := testutil.ToFloat64(m.MaxScannerDistance); got != 3621 {
		t.Errorf("max scanner distance = %v, want 3621", got)
	}
	if got := testutil.ToFloat64(m.ScannersRegistered); got != 5 {
		t.Errorf("scanners registered = %v, want 5", got)
	}
	if got := testutil.ToFloat64(m.RegistrationPasses); got != 2 {
		t.Errorf("passes = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.AlignmentAttempts.WithLabelValues("aligned")); got != 4 {
		t.Errorf("aligned attempts = %v, want 4", got)
	}
	if got := testutil.ToFloat64(m.AlignmentAttempts.WithLabelValues("rejected")); got == 0 {
		t.Error("expected some rejected attempts")
	}
	if got := testutil.CollectAndCount(m.RegistrationSeconds); got != 1 {
		t.Errorf("registration histogram series = %d, want 1", got)
	}
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	m.observeAttempt(true)
	m.observePass()
	m.observeRegistration(0, 1)
	m.observeFrame(&GlobalFrame{})
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.Landmarks.Set(79)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "probemesh_landmarks 79") {
		t.Errorf("metrics output missing probemesh_landmarks:\n%s", body)
	}
}
