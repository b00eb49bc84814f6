package telemetry

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

func TestNewLoggerLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "warn", "json")
	logger.Info().Msg("hidden")
	logger.Warn().Str("flow", "flw_1").Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, `"flow":"flw_1"`) {
		t.Fatalf("expected json field, got %s", out)
	}

	if got := NewLogger(&buf, "nonsense", "json").GetLevel(); got != zerolog.InfoLevel {
		t.Fatalf("expected info fallback, got %s", got)
	}
}

func TestMetricsExposed(t *testing.T) {
	CountMutation("reorder_nodes", "ok")
	if got := testutil.ToFloat64(flowMutations.WithLabelValues("reorder_nodes", "ok")); got < 1 {
		t.Fatalf("expected mutation counter to be incremented, got %v", got)
	}
	ObserveRequest(http.MethodGet, "/api/flows", http.StatusOK, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	if !strings.Contains(body, "trove_api_http_requests_total") || !strings.Contains(body, "trove_flow_mutations_total") {
		t.Fatalf("metrics output missing counters")
	}
}
