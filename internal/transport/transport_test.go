package transport_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ahmadhassan44/random-walk/internal/transport"
	"github.com/ahmadhassan44/random-walk/pkg/protocol"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sendAll fires one signal per id from its own goroutine.
func sendAll(t *testing.T, newSender func(id int) transport.Sender, ids []int) {
	t.Helper()
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			assert.NoError(t, newSender(id).Send(context.Background(), protocol.NewCompletionSignal(id)))
		}(id)
	}
	wg.Wait()
}

// drain receives n messages and returns the decoded walker ids sorted.
func drain(t *testing.T, rx transport.Receiver, n int) []int {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var got []int
	for i := 0; i < n; i++ {
		msg, err := rx.Receive(ctx)
		require.NoError(t, err)
		sig, err := protocol.Decode(msg.Body)
		require.NoError(t, err)
		got = append(got, sig.WalkerID)
	}
	sort.Ints(got)
	return got
}

func ids(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

func TestLocal_ManySenders(t *testing.T) {
	local := transport.NewLocal(16)
	defer local.Close()

	sendAll(t, func(id int) transport.Sender { return local.Sender(fmt.Sprintf("walker-%d", id)) }, ids(16))

	if diff := cmp.Diff(ids(16), drain(t, local, 16)); diff != "" {
		t.Errorf("received ids mismatch (-want +got):\n%s", diff)
	}
}

func TestLocal_Unbuffered(t *testing.T) {
	local := transport.NewLocal(0)
	defer local.Close()

	go sendAll(t, func(id int) transport.Sender { return local.Sender("w") }, ids(3))

	assert.Equal(t, ids(3), drain(t, local, 3))
}

func TestLocal_ReceiveHonoursContext(t *testing.T) {
	local := transport.NewLocal(1)
	defer local.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := local.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLocal_Close(t *testing.T) {
	local := transport.NewLocal(0)
	require.NoError(t, local.Close())
	require.NoError(t, local.Close())

	_, err := local.Receive(context.Background())
	assert.ErrorIs(t, err, transport.ErrClosed)

	err = local.Sender("w").Send(context.Background(), protocol.NewCompletionSignal(1))
	assert.ErrorIs(t, err, transport.ErrClosed)
}

func TestHTTP_ClientServer(t *testing.T) {
	srv := transport.NewServer(8)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	sendAll(t, func(id int) transport.Sender { return transport.NewClient(ts.URL, ts.Client()) }, ids(8))

	assert.Equal(t, ids(8), drain(t, srv, 8))
}

func TestHTTP_ForwardsRawBody(t *testing.T) {
	srv := transport.NewServer(1)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/signal", "application/json", strings.NewReader(`{"hello":"world"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	msg, err := srv.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"hello":"world"}`, string(msg.Body))
	assert.NotEmpty(t, msg.Source)
}

func TestHTTP_HealthStatusMetrics(t *testing.T) {
	status := protocol.BarrierStatus{RunID: "r1", Status: "WAITING", Expected: 3, Completed: 1}
	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "randwalk_signals_received_total 1\n")
	})
	srv := transport.NewServer(1,
		transport.WithStatus(func() protocol.BarrierStatus { return status }),
		transport.WithMetricsHandler(metricsHandler),
	)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/status")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.JSONEq(t, `{"run_id":"r1","status":"WAITING","expected":3,"completed":1,"dropped":0}`, string(body))

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "randwalk_signals_received_total")

	resp, err = http.Get(ts.URL + "/signal")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHTTP_ListenAndShutdown(t *testing.T) {
	srv := transport.NewServer(1)
	require.NoError(t, srv.Listen("127.0.0.1:0"))
	require.NotEmpty(t, srv.Addr())

	client := transport.NewClient(srv.Addr(), nil)
	require.NoError(t, client.Send(context.Background(), protocol.NewCompletionSignal(1)))
	assert.Equal(t, []int{1}, drain(t, srv, 1))

	require.NoError(t, srv.Shutdown(context.Background()))
	_, err := srv.Receive(context.Background())
	assert.ErrorIs(t, err, transport.ErrClosed)
}

func TestHTTP_ClientRejectsNonAccepted(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	err := transport.NewClient(ts.URL, ts.Client()).Send(context.Background(), protocol.NewCompletionSignal(1))
	assert.Error(t, err)
}

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedis_ManySenders(t *testing.T) {
	_, client := newMiniredis(t)
	q := transport.NewRedis(client, "run-1")

	sendAll(t, func(id int) transport.Sender { return transport.NewRedis(client, "run-1") }, ids(10))

	assert.Equal(t, ids(10), drain(t, q, 10))
}

func TestRedis_KeyPerRun(t *testing.T) {
	mr, client := newMiniredis(t)
	q := transport.NewRedis(client, "abc", transport.WithRedisPrefix("custom:"))
	assert.Equal(t, "custom:abc:signals", q.Key())

	require.NoError(t, q.Send(context.Background(), protocol.NewCompletionSignal(1)))
	assert.True(t, mr.Exists("custom:abc:signals"))

	require.NoError(t, q.Purge(context.Background()))
	assert.False(t, mr.Exists("custom:abc:signals"))
}

func TestRedis_ReceiveHonoursContext(t *testing.T) {
	_, client := newMiniredis(t)
	q := transport.NewRedis(client, "idle", transport.WithPollInterval(time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	_, err := q.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRedis_ReceiveWaitsForLateSender(t *testing.T) {
	_, client := newMiniredis(t)
	q := transport.NewRedis(client, "late")

	go func() {
		time.Sleep(120 * time.Millisecond)
		q.Send(context.Background(), protocol.NewCompletionSignal(4))
	}()

	assert.Equal(t, []int{4}, drain(t, q, 1))
}

func TestDialRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	q, err := transport.DialRedis(context.Background(), mr.Addr(), "dial")
	require.NoError(t, err)
	defer q.Close()
	assert.Equal(t, transport.DefaultRedisPrefix+"dial:signals", q.Key())

	mr.Close()
	_, err = transport.DialRedis(context.Background(), mr.Addr(), "dial")
	assert.Error(t, err)
}
