package feed

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/herpsync/internal/logging"
	"github.com/dmitrijs2005/herpsync/internal/record"
	serverfeed "github.com/dmitrijs2005/herpsync/internal/server/feed"
	"github.com/dmitrijs2005/herpsync/internal/testutil"
	"github.com/dmitrijs2005/herpsync/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWebSocketSource_AddsOwner(t *testing.T) {
	src, err := NewWebSocketSource("ws://localhost:8081/feed", "u 1", logging.Discard())
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8081/feed?owner=u+1", src.endpoint)

	_, err = NewWebSocketSource("://bad", "u1", logging.Discard())
	assert.Error(t, err)
}

func TestWebSocketSource_AppliesPublishedEvents(t *testing.T) {
	hub := serverfeed.NewHub(8, logging.Discard())
	ts := httptest.NewServer(serverfeed.NewServer("", hub, logging.Discard()).Handler())
	defer ts.Close()

	st, clock := openStore(t)
	l := NewListener(st, "u1", clock, logging.Discard())

	src, err := NewWebSocketSource("ws"+strings.TrimPrefix(ts.URL, "http")+"/feed", "u1", logging.Discard())
	require.NoError(t, err)
	src.WithBackoff(10*time.Millisecond, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx, src) }()

	require.Eventually(t, func() bool { return hub.Subscribers("u1") == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Publish("u1", wire.FeedEvent{Kind: record.TableAnimals, Action: wire.FeedInsert, Record: remote("a1", "Rex", testutil.Epoch)})

	require.Eventually(t, func() bool {
		_, err := st.Get(context.Background(), record.TableAnimals, "a1")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("source did not stop")
	}
}

func TestWebSocketSource_StopsWhileReconnecting(t *testing.T) {
	src, err := NewWebSocketSource("ws://127.0.0.1:1/feed", "u1", logging.Discard())
	require.NoError(t, err)
	src.WithBackoff(10*time.Millisecond, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	require.NoError(t, src.Run(ctx, func(context.Context, []byte) {}))
	assert.Less(t, time.Since(start), 2*time.Second)
}
