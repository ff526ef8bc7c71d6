package services

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/herpsync/internal/client/store"
	"github.com/dmitrijs2005/herpsync/internal/record"
)

type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ListOptions shapes List and Search results. Without SortBy records come
// newest first. Filters keep records whose field equals one of the listed
// values, ignoring case.
type ListOptions struct {
	IncludeDeleted bool
	SortBy         string
	SortOrder      SortOrder
	Filters        map[string][]string
}

func (s *recordService) List(ctx context.Context, opts ListOptions) ([]*record.Record, error) {
	list, err := s.store.List(ctx, s.kind.Table, store.ListOptions{
		OwnerID:        s.ownerID,
		IncludeDeleted: opts.IncludeDeleted,
	})
	if err != nil {
		return nil, err
	}

	out := list[:0]
	for _, r := range list {
		if matchesFilters(r, opts.Filters) {
			out = append(out, r)
		}
	}
	sortRecords(out, opts.SortBy, opts.SortOrder)
	return out, nil
}

// Search matches query case-insensitively as a substring of any of the
// kind's search fields. An empty query behaves like List.
func (s *recordService) Search(ctx context.Context, query string, opts ListOptions) ([]*record.Record, error) {
	list, err := s.List(ctx, opts)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return list, nil
	}

	out := list[:0]
	for _, r := range list {
		for _, f := range s.kind.SearchFields {
			if strings.Contains(strings.ToLower(r.Field(f)), q) {
				out = append(out, r)
				break
			}
		}
	}
	return out, nil
}

func matchesFilters(r *record.Record, filters map[string][]string) bool {
	for field, allowed := range filters {
		if len(allowed) == 0 {
			continue
		}
		v := r.Field(field)
		ok := false
		for _, a := range allowed {
			if strings.EqualFold(v, a) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

func sortRecords(list []*record.Record, by string, order SortOrder) {
	if by == "" {
		return
	}
	desc := order == SortDesc
	less := func(a, b *record.Record) bool {
		switch by {
		case "created_at":
			return a.CreatedAt.Before(b.CreatedAt)
		case "updated_at":
			return a.UpdatedAt.Before(b.UpdatedAt)
		}
		av, bv := a.Field(by), b.Field(by)
		af, aerr := strconv.ParseFloat(av, 64)
		bf, berr := strconv.ParseFloat(bv, 64)
		if aerr == nil && berr == nil {
			return af < bf
		}
		return strings.ToLower(av) < strings.ToLower(bv)
	}
	sort.SliceStable(list, func(i, j int) bool {
		if desc {
			return less(list[j], list[i])
		}
		return less(list[i], list[j])
	})
}
