package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kubenetlabs/watchrule/internal/database"
	"github.com/kubenetlabs/watchrule/internal/samplestore"
	"github.com/kubenetlabs/watchrule/internal/scheduler"
)

func setupTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store := database.NewMockStore()
	samples := samplestore.NewMemoryStore()
	sched := scheduler.New(store, samples)

	srv := New(Config{Store: store, Samples: samples, Scheduler: sched})
	return httptest.NewServer(srv.Router)
}

func TestServer_HealthAndMetrics(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET /api/v1/health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want 200", resp.StatusCode)
	}

	resp2, err := http.Get(ts.URL + "/api/v1/metrics")
	if err != nil {
		t.Fatalf("GET /api/v1/metrics: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Errorf("metrics status = %d, want 200", resp2.StatusCode)
	}
}

func TestServer_WatchRuleLifecycle(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.Close()

	body := `{
		"name": "mem-high",
		"metricName": "memory",
		"statistic": "Average",
		"comparisonOperator": "GreaterThanThreshold",
		"threshold": 80,
		"period": 60
	}`
	resp, err := http.Post(ts.URL+"/api/v1/watchrules", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST /api/v1/watchrules: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}

	getResp, err := http.Get(ts.URL + "/api/v1/watchrules/mem-high")
	if err != nil {
		t.Fatalf("GET watch rule: %v", err)
	}
	defer getResp.Body.Close()
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d, want 200", getResp.StatusCode)
	}

	var rule database.WatchRule
	if err := json.NewDecoder(getResp.Body).Decode(&rule); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rule.Name != "mem-high" {
		t.Errorf("Name = %q, want mem-high", rule.Name)
	}

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/watchrules/mem-high", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	defer delResp.Body.Close()
	if delResp.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", delResp.StatusCode)
	}
}

func TestServer_AuditEndpoint(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/audit")
	if err != nil {
		t.Fatalf("GET /api/v1/audit: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestServer_CORSPreflight(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.Close()

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/v1/watchrules", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS request: %v", err)
	}
	defer resp.Body.Close()

	if resp.Header.Get("Access-Control-Allow-Origin") == "" {
		t.Error("expected Access-Control-Allow-Origin header")
	}
}
