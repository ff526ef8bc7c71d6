package services

import (
	"context"
	"time"

	"github.com/dmitrijs2005/herpsync/internal/client/store"
)

const recentActivityLimit = 5

// Statistics aggregates one kind for the dashboard.
type Statistics struct {
	Total   int                       `json:"total"`
	Deleted int                       `json:"deleted"`
	By      map[string]map[string]int `json:"by"`
	Recent  []Activity                `json:"recent"`
}

// Activity is one entry of the recent-activity list.
type Activity struct {
	ID    string    `json:"id"`
	Name  string    `json:"name"`
	Event string    `json:"event"`
	At    time.Time `json:"at"`
}

const (
	EventCreated  = "created"
	EventModified = "modified"
)

func (st *Statistics) clone() *Statistics {
	out := &Statistics{
		Total:   st.Total,
		Deleted: st.Deleted,
		By:      make(map[string]map[string]int, len(st.By)),
		Recent:  append([]Activity(nil), st.Recent...),
	}
	for field, counts := range st.By {
		m := make(map[string]int, len(counts))
		for k, v := range counts {
			m[k] = v
		}
		out.By[field] = m
	}
	return out
}

// Statistics is served from cache until a local write or Invalidate. Every
// caller gets its own copy. A result computed while an invalidation happened
// is returned but not cached.
func (s *recordService) Statistics(ctx context.Context) (*Statistics, error) {
	s.statsMu.Lock()
	cached, gen := s.stats, s.statsGen
	s.statsMu.Unlock()
	if cached != nil {
		return cached.clone(), nil
	}

	all, err := s.store.List(ctx, s.kind.Table, store.ListOptions{OwnerID: s.ownerID, IncludeDeleted: true})
	if err != nil {
		return nil, err
	}

	st := &Statistics{By: make(map[string]map[string]int, len(s.kind.StatFields))}
	for _, f := range s.kind.StatFields {
		st.By[f] = map[string]int{}
	}

	for _, r := range all {
		if r.Deleted {
			st.Deleted++
			continue
		}
		st.Total++
		for _, f := range s.kind.StatFields {
			v := r.Field(f)
			if v == "" {
				v = "unknown"
			}
			st.By[f][v]++
		}
		if len(st.Recent) < recentActivityLimit {
			event := EventModified
			if r.CreatedAt.Equal(r.UpdatedAt) {
				event = EventCreated
			}
			st.Recent = append(st.Recent, Activity{
				ID:    r.ID,
				Name:  r.Field(s.kind.NameField),
				Event: event,
				At:    r.UpdatedAt,
			})
		}
	}

	s.statsMu.Lock()
	if s.statsGen == gen {
		s.stats = st
	}
	s.statsMu.Unlock()
	return st.clone(), nil
}

func (s *recordService) Invalidate() {
	s.statsMu.Lock()
	s.stats = nil
	s.statsGen++
	s.statsMu.Unlock()
}
