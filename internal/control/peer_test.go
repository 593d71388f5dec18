package control

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/transcoderd/internal/pipeline/registry"
	"github.com/ManuGH/transcoderd/internal/pipeline/worker"
)

func TestPeer_WaitsWhilePrimaryBusy(t *testing.T) {
	reg := registry.New()
	reg.SetPriority(1)
	ts := httptest.NewServer(NewServer(Config{Consumer: worker.NewGate(), Signals: reg}).Handler())
	defer ts.Close()

	p := NewPeer(ts.URL+"/", 10*time.Millisecond)
	done := make(chan error, 1)
	go func() { done <- p.Wait(context.Background()) }()

	select {
	case <-done:
		t.Fatal("wait returned while primary busy")
	case <-time.After(50 * time.Millisecond):
	}

	reg.SetPriority(0)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("wait did not return after primary became idle")
	}
}

func TestPeer_GivesUpAfterErrors(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	p := NewPeer(ts.URL, time.Millisecond)
	require.NoError(t, p.Wait(context.Background()))
	assert.Equal(t, int32(maxPeerErrors+1), calls.Load())
}

func TestPeer_ContextCancel(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"priority":1}`))
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := NewPeer(ts.URL, 5*time.Millisecond).Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
