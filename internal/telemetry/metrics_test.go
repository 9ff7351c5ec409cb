package telemetry

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// ---------------------------------------------------------------------------
// Metric registration sanity checks.
//
// Registration is checked via Describe() because Gather() omits *Vec metrics
// that have no observed label combination yet.
// ---------------------------------------------------------------------------

func TestMetrics_AllRegistered(t *testing.T) {
	type describer interface {
		Describe(chan<- *prometheus.Desc)
	}

	cases := []struct {
		name string
		c    describer
	}{
		{"http_requests_total", HTTPRequestsTotal},
		{"http_request_duration_seconds", HTTPRequestDuration},
		{"webhook_events_total", WebhookEventsTotal},
		{"builds_total", BuildsTotal},
		{"build_duration_seconds", BuildDuration},
		{"archive_files_stored_total", ArchiveFilesStoredTotal},
		{"upstream_requests_total", UpstreamRequestsTotal},
		{"build_queue_depth", QueueDepth},
		{"db_open_connections", DBOpenConnections},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ch := make(chan *prometheus.Desc, 10)
			tc.c.Describe(ch)
			close(ch)
			for desc := range ch {
				if strings.Contains(desc.String(), `"`+tc.name+`"`) {
					return
				}
			}
			t.Errorf("metric %q: Describe() returned no descriptor with this fqName", tc.name)
		})
	}
}

func TestMetrics_BuildsTotal_CanBeIncremented(t *testing.T) {
	labels := prometheus.Labels{"kind": "provider", "status": "success"}
	before := counterValue(t, BuildsTotal, labels)
	BuildsTotal.With(labels).Inc()
	after := counterValue(t, BuildsTotal, labels)
	if after-before < 1 {
		t.Errorf("BuildsTotal.Inc() did not increase counter (before=%.0f after=%.0f)", before, after)
	}
}

func TestMetrics_WebhookEventsTotal_CanBeIncremented(t *testing.T) {
	labels := prometheus.Labels{"event": "release", "outcome": "rejected"}
	before := counterValue(t, WebhookEventsTotal, labels)
	WebhookEventsTotal.With(labels).Inc()
	if after := counterValue(t, WebhookEventsTotal, labels); after-before < 1 {
		t.Error("WebhookEventsTotal.Inc() did not increase counter")
	}
}

func TestMetrics_ArchiveFilesStored_CanBeIncremented(t *testing.T) {
	before := plainCounterValue(t, ArchiveFilesStoredTotal)
	ArchiveFilesStoredTotal.Add(3)
	if after := plainCounterValue(t, ArchiveFilesStoredTotal); after-before < 3 {
		t.Errorf("ArchiveFilesStoredTotal.Add(3) increased by %.0f", after-before)
	}
}

// ---------------------------------------------------------------------------
// StartQueueDepthCollector
// ---------------------------------------------------------------------------

func TestStartQueueDepthCollector_SetsGauge(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sampled := make(chan struct{}, 1)
	StartQueueDepthCollector(ctx, 10*time.Millisecond, func(context.Context) (int64, error) {
		select {
		case sampled <- struct{}{}:
		default:
		}
		return 7, nil
	})

	select {
	case <-sampled:
	case <-time.After(2 * time.Second):
		t.Fatal("depth func was never called")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if gaugeValue(t, QueueDepth) == 7 {
			QueueDepth.Set(0)
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Errorf("QueueDepth = %.0f, want 7", gaugeValue(t, QueueDepth))
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// counterValue reads the current value of a CounterVec for the given label set.
func counterValue(t *testing.T, cv *prometheus.CounterVec, labels prometheus.Labels) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 20)
	cv.Collect(ch)
	close(ch)
	for m := range ch {
		var dm dto.Metric
		if err := m.Write(&dm); err != nil {
			continue
		}
		if labelsMatch(dm.GetLabel(), labels) {
			return dm.GetCounter().GetValue()
		}
	}
	return 0
}

// plainCounterValue reads the value of a plain (non-vec) Counter.
func plainCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var dm dto.Metric
	if err := c.Write(&dm); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return dm.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var dm dto.Metric
	if err := g.Write(&dm); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return dm.GetGauge().GetValue()
}

// labelsMatch returns true when all entries in want appear in got.
func labelsMatch(got []*dto.LabelPair, want prometheus.Labels) bool {
	for k, v := range want {
		found := false
		for _, lp := range got {
			if lp.GetName() == k && lp.GetValue() == v {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
