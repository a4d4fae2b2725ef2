package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bazaarhq/inbox/internal/bus"
	"github.com/bazaarhq/inbox/internal/compose"
	"github.com/bazaarhq/inbox/internal/poll"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveCountsEvents(t *testing.T) {
	c := New(bus.New(), Gauges{})

	c.Observe(bus.Event{Kind: bus.KindInboxSnapshot, Payload: poll.Snapshot{Took: 20 * time.Millisecond}})
	c.Observe(bus.Event{Kind: bus.KindPollFailed, Payload: poll.Failure{Target: "thread", Err: "connection refused"}})
	c.Observe(bus.Event{Kind: bus.KindComposeState, Payload: compose.StateChange{To: compose.Sending}})
	c.Observe(bus.Event{Kind: bus.KindComposeState, Payload: compose.StateChange{To: compose.Sent}})
	c.Observe(bus.Event{Kind: bus.KindComposeState, Payload: compose.StateChange{To: compose.Failed}})
	c.Observe(bus.Event{Kind: bus.KindWatermarkUpdated})

	if got := testutil.ToFloat64(c.polls.WithLabelValues("inbox", "ok")); got != 1 {
		t.Errorf("inbox ok polls = %v", got)
	}
	if got := testutil.ToFloat64(c.polls.WithLabelValues("thread", "error")); got != 1 {
		t.Errorf("thread error polls = %v", got)
	}
	if got := testutil.ToFloat64(c.sends.WithLabelValues("ok")); got != 1 {
		t.Errorf("sends ok = %v", got)
	}
	if got := testutil.ToFloat64(c.sends.WithLabelValues("error")); got != 1 {
		t.Errorf("sends error = %v", got)
	}
	if got := testutil.ToFloat64(c.watermarks); got != 1 {
		t.Errorf("mark viewed = %v", got)
	}
}

func TestCollectorFollowsBus(t *testing.T) {
	b := bus.New()
	c := New(b, Gauges{})
	c.Start(t.Context())
	defer c.Stop()

	b.Emit(bus.KindComposeState, compose.StateChange{To: compose.Sent})

	deadline := time.Now().Add(2 * time.Second)
	for testutil.ToFloat64(c.sends.WithLabelValues("ok")) != 1 {
		if time.Now().After(deadline) {
			t.Fatal("send never counted")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRouterServesMetricsAndHealth(t *testing.T) {
	var stale atomic.Bool
	c := New(bus.New(), Gauges{Unread: func() int { return 7 }, Stale: stale.Load})
	srv := httptest.NewServer(NewRouter(c, func() bool { return !stale.Load() }))
	defer srv.Close()

	body := get(t, srv.URL+"/metrics", http.StatusOK)
	if !strings.Contains(body, "inbox_unread_messages 7") {
		t.Errorf("metrics missing unread gauge:\n%s", body)
	}
	if !strings.Contains(body, "inbox_snapshot_stale 0") {
		t.Errorf("metrics missing stale gauge:\n%s", body)
	}

	get(t, srv.URL+"/healthz", http.StatusOK)
	get(t, srv.URL+"/readyz", http.StatusOK)

	stale.Store(true)
	get(t, srv.URL+"/readyz", http.StatusServiceUnavailable)
	get(t, srv.URL+"/healthz", http.StatusOK)
}

func get(t *testing.T, url string, want int) string {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != want {
		t.Errorf("GET %s = %d, want %d", url, resp.StatusCode, want)
	}
	return string(b)
}
