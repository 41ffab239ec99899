package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRegisterOnCustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("samantha_test", reg)

	m.Utterances.WithLabelValues("echo").Inc()
	m.SessionEvents.WithLabelValues("activated").Inc()
	m.ObserveTranscribeLatency(420 * time.Millisecond)

	if got := testutil.ToFloat64(m.Utterances.WithLabelValues("echo")); got != 1 {
		t.Fatalf("utterances{echo} = %v, want 1", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "samantha_test_transcribe_latency_ms_count 1") {
		t.Fatalf("metrics output missing transcribe histogram:\n%s", body)
	}
}
