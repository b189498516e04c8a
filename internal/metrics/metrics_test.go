package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandler(t *testing.T) {
	handler := Handler()
	if handler == nil {
		t.Fatal("Handler() returned nil")
	}

	RecordRequest("rest", "GET /health", "200", 10*time.Millisecond)
	UpdatePoolMetrics(3, 0)
	UpdateSessionMetrics(1)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	body := w.Body.String()

	expectedMetrics := []string{
		"browserctl_browser_pool_size",
		"browserctl_browser_pool_queue_length",
		"browserctl_active_sessions",
	}

	for _, metric := range expectedMetrics {
		if !strings.Contains(body, metric) {
			t.Errorf("Expected metric %q not found in output", metric)
		}
	}
}

func TestSetBuildInfo(t *testing.T) {
	SetBuildInfo("1.0.0", "go1.22")

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	Handler().ServeHTTP(w, req)

	body := w.Body.String()
	if !strings.Contains(body, "browserctl_build_info") {
		t.Error("Expected browserctl_build_info metric")
	}
	if !strings.Contains(body, "version=\"1.0.0\"") {
		t.Error("Expected version label in build_info")
	}
	if !strings.Contains(body, "go_version=\"go1.22\"") {
		t.Error("Expected go_version label in build_info")
	}
}

func TestRecordRequest(t *testing.T) {
	RecordRequest("rest", "GET /api/v1/pages", "200", 1*time.Second)
	RecordRequest("rest", "GET /api/v1/pages", "500", 500*time.Millisecond)
	RecordRequest("grpc", "/browserctl.controlplane.v1.ControlPlane/GetHealth", "0", 2*time.Second)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	Handler().ServeHTTP(w, req)

	body := w.Body.String()

	if !strings.Contains(body, "browserctl_requests_total") {
		t.Error("Expected browserctl_requests_total metric")
	}
	if !strings.Contains(body, "browserctl_request_duration_seconds") {
		t.Error("Expected browserctl_request_duration_seconds metric")
	}
}

func TestRecordAction(t *testing.T) {
	RecordAction("navigate", "ok", 200*time.Millisecond)
	RecordAction("screenshot", "ok", 400*time.Millisecond)
	RecordAction("navigate", "error", 50*time.Millisecond)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	Handler().ServeHTTP(w, req)

	body := w.Body.String()
	if !strings.Contains(body, "browserctl_actions_total") {
		t.Error("Expected browserctl_actions_total metric")
	}
	if !strings.Contains(body, "browserctl_action_duration_seconds") {
		t.Error("Expected browserctl_action_duration_seconds metric")
	}
}

func TestRecordError(t *testing.T) {
	RecordError("validation", "VALIDATION_FAILED")
	RecordError("resource", "POOL_EXHAUSTED")

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	Handler().ServeHTTP(w, req)

	body := w.Body.String()
	if !strings.Contains(body, "browserctl_errors_total") {
		t.Error("Expected browserctl_errors_total metric")
	}
}

func TestUpdatePoolMetrics(t *testing.T) {
	UpdatePoolMetrics(3, 2)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	Handler().ServeHTTP(w, req)

	body := w.Body.String()
	if !strings.Contains(body, "browserctl_browser_pool_size 3") {
		t.Error("Expected browser_pool_size to be 3")
	}
	if !strings.Contains(body, "browserctl_browser_pool_queue_length 2") {
		t.Error("Expected browser_pool_queue_length to be 2")
	}
}

func TestUpdateSessionMetrics(t *testing.T) {
	UpdateSessionMetrics(5)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	Handler().ServeHTTP(w, req)

	body := w.Body.String()
	if !strings.Contains(body, "browserctl_active_sessions 5") {
		t.Error("Expected active_sessions to be 5")
	}
}

func TestUpdateContextAndPageMetrics(t *testing.T) {
	UpdateContextMetrics(4)
	UpdatePageMetrics(7)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	Handler().ServeHTTP(w, req)

	body := w.Body.String()
	if !strings.Contains(body, "browserctl_active_contexts 4") {
		t.Error("Expected active_contexts to be 4")
	}
	if !strings.Contains(body, "browserctl_active_pages 7") {
		t.Error("Expected active_pages to be 7")
	}
}

func TestStartMemoryCollector(t *testing.T) {
	stopCh := make(chan struct{})

	go StartMemoryCollector(50*time.Millisecond, stopCh)

	time.Sleep(150 * time.Millisecond)

	close(stopCh)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	Handler().ServeHTTP(w, req)

	body := w.Body.String()

	if !strings.Contains(body, "browserctl_memory_usage_bytes") {
		t.Error("Expected browserctl_memory_usage_bytes metric")
	}
	if !strings.Contains(body, "browserctl_memory_sys_bytes") {
		t.Error("Expected browserctl_memory_sys_bytes metric")
	}
	if !strings.Contains(body, "browserctl_goroutines") {
		t.Error("Expected browserctl_goroutines metric")
	}
}
