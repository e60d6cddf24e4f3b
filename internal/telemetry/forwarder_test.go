package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tjfontaine/companion-core/internal/domain"
	"github.com/tjfontaine/companion-core/internal/pkg/safehttp"
	"github.com/tjfontaine/companion-core/internal/testutil"
)

const testEndpoint = "https://telemetry.example.com/v1/metrics"

func sampleExport() domain.MetricsExport {
	return domain.MetricsExport{
		ExportTime: "2026-01-01T00:00:00.000Z",
		Aggregated: domain.AggregatedMetrics{TotalMessages: 2, AverageResponseTime: 1500},
		Detailed: []domain.ChatMetric{
			{ChatMetricInput: domain.ChatMetricInput{MessageLength: 5, Language: domain.LanguageEnglish, TotalDuration: 1000}},
			{ChatMetricInput: domain.ChatMetricInput{MessageLength: 7, Language: domain.LanguageArabic, TotalDuration: 2000}},
		},
	}
}

func TestForwarder_Accepted(t *testing.T) {
	recorder, cleanup := testutil.NewVCRRecorder(t, "forward_accepted")
	defer cleanup()

	f, err := NewForwarder(testEndpoint, "test-key", WithHTTPClient(testutil.VCRHTTPClient(recorder)))
	if err != nil {
		t.Fatalf("NewForwarder() error = %v", err)
	}

	if err := f.Forward(context.Background(), sampleExport()); err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
}

func TestForwarder_Rejected(t *testing.T) {
	recorder, cleanup := testutil.NewVCRRecorder(t, "forward_rejected")
	defer cleanup()

	f, err := NewForwarder(testEndpoint, "wrong-key", WithHTTPClient(testutil.VCRHTTPClient(recorder)))
	if err != nil {
		t.Fatalf("NewForwarder() error = %v", err)
	}

	err = f.Forward(context.Background(), sampleExport())
	if err == nil {
		t.Fatal("Forward() expected error for 401")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error %q should carry the status code", err)
	}
	if !strings.Contains(err.Error(), "invalid api key") {
		t.Errorf("error %q should carry the response body", err)
	}
}

func TestForwarder_SendsHeadersAndBody(t *testing.T) {
	var (
		gotAuth        string
		gotContentType string
		gotExport      domain.MetricsExport
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotExport)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	f, err := NewForwarder(srv.URL, "secret", WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewForwarder() error = %v", err)
	}
	if err := f.Forward(context.Background(), sampleExport()); err != nil {
		t.Fatalf("Forward() error = %v", err)
	}

	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer secret")
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q", gotContentType)
	}
	if gotExport.Aggregated.TotalMessages != 2 || len(gotExport.Detailed) != 2 {
		t.Errorf("forwarded export = %+v", gotExport)
	}
}

func TestForwarder_NoAPIKey(t *testing.T) {
	var sawAuth bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawAuth = r.Header["Authorization"]
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f, err := NewForwarder(srv.URL, "")
	if err != nil {
		t.Fatalf("NewForwarder() error = %v", err)
	}
	if err := f.Forward(context.Background(), sampleExport()); err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	if sawAuth {
		t.Error("Authorization header sent without an api key")
	}
}

func TestForwarder_PrivateNetworkGuard(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f, err := NewForwarder(srv.URL, "k", WithPrivateNetworkGuard())
	if err != nil {
		t.Fatalf("NewForwarder() error = %v", err)
	}
	err = f.Forward(context.Background(), sampleExport())
	if !errors.Is(err, safehttp.ErrPrivateAddress) {
		t.Fatalf("Forward() error = %v, want ErrPrivateAddress", err)
	}
	if hits != 0 {
		t.Errorf("server received %d requests", hits)
	}
}

func TestNewForwarder_InvalidEndpoint(t *testing.T) {
	tests := []string{"", "not a url", "ftp://example.com/x", "/relative/path"}
	for _, endpoint := range tests {
		if _, err := NewForwarder(endpoint, "k"); err == nil {
			t.Errorf("NewForwarder(%q) expected error", endpoint)
		}
	}
}
