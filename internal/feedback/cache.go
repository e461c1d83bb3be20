package feedback

import (
	"sync"

	"github.com/math-professor/backend/internal/storage/models"
)

// ResponseCache holds recently delivered responses so feedback can be
// correlated with what the user actually saw. It is explicitly owned by its
// constructor's caller and passed into collaborators by reference; there is
// no package-level instance.
//
// Entries are keyed by query ID and hold every version produced for that ID:
// refinement appends, it never replaces. Insertion of a new ID evicts the
// oldest ID once the bound is reached. IDs are unique per request so there is
// no delete/insert race to worry about.
type ResponseCache struct {
	mu       sync.RWMutex
	entries  map[string][]*models.Response
	order    []string
	capacity int
}

func NewResponseCache(capacity int) *ResponseCache {
	if capacity <= 0 {
		capacity = 1024
	}
	return &ResponseCache{
		entries:  make(map[string][]*models.Response),
		capacity: capacity,
	}
}

// Put inserts the first version for a new query ID.
func (c *ResponseCache) Put(resp *models.Response) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[resp.QueryID]; exists {
		c.entries[resp.QueryID] = append(c.entries[resp.QueryID], resp)
		return
	}

	for len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}

	c.entries[resp.QueryID] = []*models.Response{resp}
	c.order = append(c.order, resp.QueryID)
}

// AppendVersion records a refined version for an already-cached query ID.
// Unknown IDs are ignored; the caller has already validated existence.
func (c *ResponseCache) AppendVersion(resp *models.Response) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[resp.QueryID]; !exists {
		return
	}
	c.entries[resp.QueryID] = append(c.entries[resp.QueryID], resp)
}

// Latest returns the newest version for the given query ID.
func (c *ResponseCache) Latest(queryID string) (*models.Response, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	versions, ok := c.entries[queryID]
	if !ok || len(versions) == 0 {
		return nil, false
	}
	return versions[len(versions)-1], true
}

// Versions returns all versions, oldest first.
func (c *ResponseCache) Versions(queryID string) []*models.Response {
	c.mu.RLock()
	defer c.mu.RUnlock()

	versions := c.entries[queryID]
	out := make([]*models.Response, len(versions))
	copy(out, versions)
	return out
}

func (c *ResponseCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
