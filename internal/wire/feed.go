package wire

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/herpsync/internal/common"
	"github.com/dmitrijs2005/herpsync/internal/record"
)

// FeedAction is the change kind announced on the feed.
type FeedAction string

const (
	FeedInsert FeedAction = "insert"
	FeedUpdate FeedAction = "update"
	FeedDelete FeedAction = "delete"
)

// FeedEvent is one change pushed by the backend to subscribed clients. Kind
// is the table name.
type FeedEvent struct {
	Kind      string         `json:"kind"`
	Action    FeedAction     `json:"action"`
	Record    *record.Record `json:"record"`
	Timestamp time.Time      `json:"timestamp"`
}

// DecodeFeedEvent parses and sanity-checks one feed message.
func DecodeFeedEvent(b []byte) (FeedEvent, error) {
	var ev FeedEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		return FeedEvent{}, fmt.Errorf("%w: feed event: %w", common.ErrValidation, err)
	}
	switch ev.Action {
	case FeedInsert, FeedUpdate, FeedDelete:
	default:
		return FeedEvent{}, fmt.Errorf("%w: feed action %q", common.ErrValidation, ev.Action)
	}
	if ev.Kind == "" || ev.Record == nil || ev.Record.ID == "" {
		return FeedEvent{}, fmt.Errorf("%w: incomplete feed event", common.ErrValidation)
	}
	if ev.Record.Data == nil {
		ev.Record.Data = map[string]any{}
	}
	return ev, nil
}
