package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/hostel-gate/internal/infrastructure/config"
	"github.com/nerrad567/hostel-gate/internal/infrastructure/influxdb"
)

// fakeInflux answers pings with 204 and records line-protocol write bodies.
type fakeInflux struct {
	mu     sync.Mutex
	writes []string
}

func (f *fakeInflux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost && strings.Contains(r.URL.Path, "write") {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.writes = append(f.writes, string(body))
		f.mu.Unlock()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeInflux) body() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.writes, "\n")
}

func newTestClient(t *testing.T) (*influxdb.Client, *fakeInflux) {
	t.Helper()
	fake := &fakeInflux{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := influxdb.Connect(config.InfluxDBConfig{
		Enabled:       true,
		URL:           srv.URL,
		Token:         "test-token",
		Org:           "hostelgate",
		Bucket:        "movement",
		BatchSize:     10,
		FlushInterval: 1,
	})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client, fake
}

func TestConnect_Disabled(t *testing.T) {
	_, err := influxdb.Connect(config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := influxdb.Connect(config.InfluxDBConfig{Enabled: true, URL: url, Org: "o", Bucket: "b"})
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestHealthCheck(t *testing.T) {
	client, _ := newTestClient(t)

	if !client.IsConnected() {
		t.Fatal("IsConnected() = false after Connect()")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestWritePointWithTime_HistoricalTimestamp(t *testing.T) {
	client, fake := newTestClient(t)

	scannedAt := time.Date(2026, 3, 1, 6, 30, 0, 0, time.UTC)
	client.WritePointWithTime("movement",
		map[string]string{"hostel": "A", "action": "check_in"},
		map[string]any{"time_spent_minutes": 500.0},
		scannedAt,
	)
	client.Flush()

	body := fake.body()
	if !strings.Contains(body, "movement,action=check_in,hostel=A") {
		t.Errorf("write body %q missing measurement and tags", body)
	}
	if !strings.Contains(body, "time_spent_minutes=500") {
		t.Errorf("write body %q missing field", body)
	}
	if !strings.Contains(body, "1772346600000000000") {
		t.Errorf("write body %q missing historical timestamp", body)
	}
}

func TestWrite_AfterClose(t *testing.T) {
	client, fake := newTestClient(t)
	client.Close()

	client.WritePoint("canteen_visit", map[string]string{"hostel": "B"}, map[string]any{"count": 1})
	client.Flush()

	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if fake.body() != "" {
		t.Errorf("write after Close reached the server: %q", fake.body())
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() after Close error = %v, want ErrNotConnected", err)
	}
}

func TestClose_Nil(t *testing.T) {
	var client influxdb.Client
	if err := client.Close(); err != nil {
		t.Errorf("Close() on zero client error = %v", err)
	}
}
