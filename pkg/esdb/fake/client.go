// Package fake provides an in-memory esdb.Client for tests: the router,
// reader, and event-handling processor suites exercise their logic against
// this instead of a real store, kept alongside the HTTP client
// implementation for fast unit tests.
package fake

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"escqrs/pkg/esdb"
)

// Client is a concurrency-safe, append-only in-memory event log.
type Client struct {
	mu     sync.Mutex
	cond   *sync.Cond
	events []esdb.Event
	closed bool
}

var _ esdb.Client = (*Client)(nil)

// New creates an empty fake client.
func New() *Client {
	c := &Client{}
	c.cond = sync.NewCond(&c.mu)
	return c
}

func (c *Client) Ping(ctx context.Context) error         { return nil }
func (c *Client) Authenticate(ctx context.Context) error { return nil }

func (c *Client) Health(ctx context.Context) (esdb.Health, error) {
	return esdb.Health{Status: esdb.HealthPass, Checks: map[string]any{"store": "fake"}}, nil
}

// Events returns a snapshot copy of everything written so far, for test
// assertions.
func (c *Client) Events() []esdb.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]esdb.Event, len(c.events))
	copy(out, c.events)
	return out
}

func eventMatchesSubject(e esdb.Event, subject string, recursive bool) bool {
	if e.Subject == subject {
		return true
	}
	return recursive && strings.HasPrefix(e.Subject, strings.TrimSuffix(subject, "/")+"/")
}

func (c *Client) Write(ctx context.Context, candidates []esdb.EventCandidate, preconditions []esdb.Precondition) ([]esdb.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range preconditions {
		if err := c.checkPreconditionLocked(p); err != nil {
			return nil, err
		}
	}

	stored := make([]esdb.Event, 0, len(candidates))
	predecessorHash := ""
	if n := len(c.events); n > 0 {
		predecessorHash = c.events[n-1].Hash
	}
	for _, cand := range candidates {
		id := strconv.Itoa(len(c.events))
		ev := esdb.Event{
			Source:          cand.Source,
			Subject:         cand.Subject,
			Type:            cand.Type,
			Data:            cand.Data,
			SpecVersion:     "1.0",
			ID:              id,
			Time:            time.Now().UTC(),
			DataContentType: "application/json",
			PredecessorHash: predecessorHash,
		}
		ev.Hash = hashEvent(ev)
		predecessorHash = ev.Hash
		c.events = append(c.events, ev)
		stored = append(stored, ev)
	}
	c.cond.Broadcast()
	return stored, nil
}

func hashEvent(e esdb.Event) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s", e.Subject, e.Type, string(e.Data), e.ID, e.PredecessorHash)
	return hex.EncodeToString(h.Sum(nil))
}

// checkPreconditionLocked must be called with c.mu held. The precondition
// kind is opaque outside esdb, so it is re-derived from its wire shape
// rather than a type switch on unexported types.
func (c *Client) checkPreconditionLocked(p esdb.Precondition) error {
	subject := esdb.SubjectOf(p)
	raw, _ := p.MarshalJSON()
	switch {
	case strings.Contains(string(raw), `"subjectIsPristine"`):
		for _, e := range c.events {
			if e.Subject == subject {
				return &esdb.ConflictError{
					ClientError: esdb.ClientError{Op: "write", Err: fmt.Errorf("subject %s is not pristine", subject)},
					Body:        "subjectIsPristine violated",
				}
			}
		}
	case strings.Contains(string(raw), `"subjectIsOnEventId"`):
		var last *esdb.Event
		for i := range c.events {
			if c.events[i].Subject == subject {
				last = &c.events[i]
			}
		}
		var want struct {
			EventID string `json:"eventId"`
		}
		_ = json.Unmarshal(raw, &want)
		switch {
		case last == nil && want.EventID != "":
			return &esdb.ConflictError{
				ClientError: esdb.ClientError{Op: "write", Err: fmt.Errorf("subject %s has no events", subject)},
				Body:        "subjectIsOnEventId violated",
			}
		case last != nil && last.ID != want.EventID:
			return &esdb.ConflictError{
				ClientError: esdb.ClientError{Op: "write", Err: fmt.Errorf("subject %s is not on event %s", subject, want.EventID)},
				Body:        "subjectIsOnEventId violated",
			}
		}
	}
	return nil
}

func (c *Client) Read(ctx context.Context, subject string, options []esdb.Option, consumer func(esdb.Event) error) error {
	snapshot, err := c.filtered(subject, options)
	if err != nil {
		return err
	}
	for _, e := range snapshot {
		if ctx.Err() != nil {
			return &esdb.InterruptedError{ClientError: esdb.ClientError{Op: "read", Err: ctx.Err()}}
		}
		if err := consumer(e); err != nil {
			return err
		}
	}
	return nil
}

// Observe streams existing matches, then blocks for newly written events
// until ctx is cancelled (it never returns normally, matching the real
// client's contract).
func (c *Client) Observe(ctx context.Context, subject string, options []esdb.Option, consumer func(esdb.Event) error) error {
	lastIndex := 0
	for {
		c.mu.Lock()
		for lastIndex >= len(c.events) && !c.closed {
			done := make(chan struct{})
			go func() {
				select {
				case <-ctx.Done():
					c.cond.Broadcast()
				case <-done:
				}
			}()
			c.cond.Wait()
			close(done)
			if ctx.Err() != nil {
				c.mu.Unlock()
				return &esdb.InterruptedError{ClientError: esdb.ClientError{Op: "observe", Err: ctx.Err()}}
			}
		}
		batch := append([]esdb.Event{}, c.events[lastIndex:]...)
		lastIndex = len(c.events)
		closed := c.closed
		c.mu.Unlock()

		matches, err := applyOptions(batch, subject, options)
		if err != nil {
			return err
		}
		for _, e := range matches {
			if ctx.Err() != nil {
				return &esdb.InterruptedError{ClientError: esdb.ClientError{Op: "observe", Err: ctx.Err()}}
			}
			if err := consumer(e); err != nil {
				return err
			}
		}
		if closed {
			return &esdb.TransportError{ClientError: esdb.ClientError{Op: "observe", Err: fmt.Errorf("stream closed")}}
		}
	}
}

// Close unblocks any in-flight Observe calls, simulating the server
// closing the connection.
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cond.Broadcast()
}

func (c *Client) filtered(subject string, options []esdb.Option) ([]esdb.Event, error) {
	c.mu.Lock()
	all := append([]esdb.Event{}, c.events...)
	c.mu.Unlock()
	return applyOptions(all, subject, options)
}

func applyOptions(all []esdb.Event, subject string, options []esdb.Option) ([]esdb.Event, error) {
	recursive := false
	order := esdb.OrderChronological
	var lowerExclusive, lowerInclusive, upperExclusive, upperInclusive *int
	for _, o := range options {
		raw, _ := o.MarshalJSON()
		s := string(raw)
		switch {
		case strings.Contains(s, `"recursive"`):
			recursive = true
		case strings.Contains(s, `"order"`):
			var v struct {
				Direction esdb.OrderDirection `json:"direction"`
			}
			_ = json.Unmarshal(raw, &v)
			order = v.Direction
		case strings.Contains(s, `"lower_bound_exclusive"`):
			var v struct {
				EventID string `json:"eventId"`
			}
			_ = json.Unmarshal(raw, &v)
			n, _ := strconv.Atoi(v.EventID)
			lowerExclusive = &n
		case strings.Contains(s, `"lower_bound_inclusive"`):
			var v struct {
				EventID string `json:"eventId"`
			}
			_ = json.Unmarshal(raw, &v)
			n, _ := strconv.Atoi(v.EventID)
			lowerInclusive = &n
		case strings.Contains(s, `"upper_bound_exclusive"`):
			var v struct {
				EventID string `json:"eventId"`
			}
			_ = json.Unmarshal(raw, &v)
			n, _ := strconv.Atoi(v.EventID)
			upperExclusive = &n
		case strings.Contains(s, `"upper_bound_inclusive"`):
			var v struct {
				EventID string `json:"eventId"`
			}
			_ = json.Unmarshal(raw, &v)
			n, _ := strconv.Atoi(v.EventID)
			upperInclusive = &n
		}
	}

	out := make([]esdb.Event, 0, len(all))
	for _, e := range all {
		if !eventMatchesSubject(e, subject, recursive) {
			continue
		}
		id, _ := strconv.Atoi(e.ID)
		if lowerExclusive != nil && id <= *lowerExclusive {
			continue
		}
		if lowerInclusive != nil && id < *lowerInclusive {
			continue
		}
		if upperExclusive != nil && id >= *upperExclusive {
			continue
		}
		if upperInclusive != nil && id > *upperInclusive {
			continue
		}
		out = append(out, e)
	}
	if order == esdb.OrderAntichronological {
		sort.SliceStable(out, func(i, j int) bool { return i > j })
	}
	return out, nil
}

// Query treats queryText as a bare subject path and streams every matching
// event's Data as a result row. A full query grammar is out of scope here;
// this only exercises the row/error frame dispatch contract.
func (c *Client) Query(ctx context.Context, queryText string, rowHandler func(json.RawMessage) error, errorHandler func(error)) error {
	matches, err := c.filtered(strings.TrimSpace(queryText), nil)
	if err != nil {
		errorHandler(err)
		return nil
	}
	for _, e := range matches {
		if ctx.Err() != nil {
			return &esdb.InterruptedError{ClientError: esdb.ClientError{Op: "query", Err: ctx.Err()}}
		}
		if err := rowHandler(e.Data); err != nil {
			return err
		}
	}
	return nil
}

