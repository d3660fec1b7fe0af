package mercury

import (
	"context"
	"sync"

	"github.com/goliatone/go-scptracker/components/tracker"
)

// MockClient serves fixed snapshots for demos and tests.
type MockClient struct {
	mu        sync.RWMutex
	snapshots map[string]tracker.StatusSnapshot
	errs      map[string]error
	calls     map[string]int
}

var _ tracker.StatusFetcher = (*MockClient)(nil)

// NewMockClient builds a mock keyed by SCP id.
func NewMockClient(snapshots map[string]tracker.StatusSnapshot) *MockClient {
	c := &MockClient{
		snapshots: make(map[string]tracker.StatusSnapshot, len(snapshots)),
		errs:      make(map[string]error),
		calls:     make(map[string]int),
	}
	for id, snap := range snapshots {
		c.snapshots[id] = snap
	}
	return c
}

// SetSnapshot replaces the snapshot returned for id.
func (c *MockClient) SetSnapshot(id string, snap tracker.StatusSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshots[id] = snap
	delete(c.errs, id)
}

// SetError makes requests for id fail with err.
func (c *MockClient) SetError(id string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs[id] = err
}

// Calls returns how many requests were made for id.
func (c *MockClient) Calls(id string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.calls[id]
}

// FetchStatus returns the configured snapshot. Unknown ids get an empty
// snapshot with placeholder text.
func (c *MockClient) FetchStatus(ctx context.Context, id tracker.WidgetID, token string) (tracker.StatusSnapshot, error) {
	if NormalizeToken(token) == "" {
		return tracker.StatusSnapshot{}, tracker.ErrMissingToken
	}
	if err := ctx.Err(); err != nil {
		return tracker.StatusSnapshot{}, &tracker.TransportError{Err: err}
	}
	key := id.String()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[key]++
	if err, ok := c.errs[key]; ok {
		return tracker.StatusSnapshot{}, err
	}
	snap, ok := c.snapshots[key]
	if !ok {
		return tracker.StatusSnapshot{
			SCPNumber:       key,
			FirmwareVersion: Missing,
			Model:           Missing,
			MAC:             Missing,
		}, nil
	}
	if snap.SCPNumber == "" {
		snap.SCPNumber = key
	}
	return snap, nil
}
