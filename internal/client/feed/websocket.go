package feed

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/dmitrijs2005/herpsync/internal/common"
	"github.com/dmitrijs2005/herpsync/internal/logging"
	"github.com/sethvargo/go-retry"
)

const (
	defaultMinBackoff = 500 * time.Millisecond
	defaultMaxBackoff = 30 * time.Second
	readLimit         = 1 << 20
)

// WebSocketSource reads the backend change feed, reconnecting with capped
// exponential backoff whenever the connection drops.
type WebSocketSource struct {
	endpoint   string
	minBackoff time.Duration
	maxBackoff time.Duration
	logger     logging.Logger
}

// NewWebSocketSource subscribes to feedURL (for example
// "ws://localhost:8081/feed") for ownerID.
func NewWebSocketSource(feedURL, ownerID string, logger logging.Logger) (*WebSocketSource, error) {
	u, err := url.Parse(feedURL)
	if err != nil {
		return nil, fmt.Errorf("feed url: %w", err)
	}
	q := u.Query()
	q.Set(common.FeedOwnerParam, ownerID)
	u.RawQuery = q.Encode()

	return &WebSocketSource{
		endpoint:   u.String(),
		minBackoff: defaultMinBackoff,
		maxBackoff: defaultMaxBackoff,
		logger:     logger.With("module", "feed_source"),
	}, nil
}

// WithBackoff overrides the reconnect delays.
func (s *WebSocketSource) WithBackoff(minDelay, maxDelay time.Duration) *WebSocketSource {
	s.minBackoff, s.maxBackoff = minDelay, maxDelay
	return s
}

// Run returns nil once ctx is done. Backoff starts over after every
// connection that was established.
func (s *WebSocketSource) Run(ctx context.Context, handle func(context.Context, []byte)) error {
	for ctx.Err() == nil {
		b := retry.WithCappedDuration(s.maxBackoff, retry.NewExponential(s.minBackoff))

		err := retry.Do(ctx, b, func(ctx context.Context) error {
			connected, err := s.session(ctx, handle)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn(ctx, "feed disconnected", "error", err)
			if connected {
				return nil
			}
			return retry.RetryableError(err)
		})
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
	}
	return nil
}

func (s *WebSocketSource) session(ctx context.Context, handle func(context.Context, []byte)) (bool, error) {
	conn, _, err := websocket.Dial(ctx, s.endpoint, nil)
	if err != nil {
		return false, err
	}
	defer conn.CloseNow()
	conn.SetReadLimit(readLimit)

	s.logger.Info(ctx, "feed connected")
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return true, err
		}
		handle(ctx, data)
	}
}
