package core

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	minSearchQueryLen  = 2
	maxSearchResults   = 5
	defaultSearchDelay = 300 * time.Millisecond
)

// SearchClients returns up to five active clients whose first or last name
// contains the query, case-insensitively. Queries shorter than two characters
// return nothing.
func (s *Service) SearchClients(ctx context.Context, query string) ([]Client, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if len(query) < minSearchQueryLen {
		return nil, nil
	}
	var matches []Client
	err := s.store.View(ctx, func(view TransactionView) error {
		for _, client := range view.ListClients() {
			if !client.Active {
				continue
			}
			if strings.Contains(strings.ToLower(client.FirstName), query) ||
				strings.Contains(strings.ToLower(client.LastName), query) {
				matches = append(matches, client)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].LastName != matches[j].LastName {
			return matches[i].LastName < matches[j].LastName
		}
		if matches[i].FirstName != matches[j].FirstName {
			return matches[i].FirstName < matches[j].FirstName
		}
		return matches[i].ID < matches[j].ID
	})
	if len(matches) > maxSearchResults {
		matches = matches[:maxSearchResults]
	}
	return matches, nil
}

// SearchResult is one debounced search delivery.
type SearchResult struct {
	Query   string
	Clients []Client
	Err     error
}

// DebouncedSearch coalesces rapid queries: only the query that stays
// unchanged for the debounce interval runs, and only its result is delivered.
// Close stops the searcher and suppresses any pending delivery.
type DebouncedSearch struct {
	service *Service
	delay   time.Duration
	deliver func(SearchResult)

	mu     sync.Mutex
	timer  *time.Timer
	seq    int
	closed bool
}

// NewDebouncedSearch wires a debounced searcher around the service. A zero
// delay uses the default interval.
func NewDebouncedSearch(service *Service, delay time.Duration, deliver func(SearchResult)) *DebouncedSearch {
	if delay <= 0 {
		delay = defaultSearchDelay
	}
	return &DebouncedSearch{service: service, delay: delay, deliver: deliver}
}

// Query schedules a search for the given text, replacing any pending one.
func (d *DebouncedSearch) Query(ctx context.Context, query string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.seq++
	seq := d.seq
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() {
		d.run(ctx, seq, query)
	})
}

func (d *DebouncedSearch) run(ctx context.Context, seq int, query string) {
	clients, err := d.service.SearchClients(ctx, query)

	d.mu.Lock()
	stale := d.closed || seq != d.seq
	d.mu.Unlock()
	if stale {
		return
	}
	d.deliver(SearchResult{Query: query, Clients: clients, Err: err})
}

// Close cancels any pending search. The searcher accepts no further queries.
func (d *DebouncedSearch) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
