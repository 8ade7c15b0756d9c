package script

import (
	"fmt"
	"sort"
	"sync"
)

// Catalog holds the loaded scripts, addressable by id. Safe for concurrent
// use; scripts themselves are immutable.
type Catalog struct {
	mu   sync.RWMutex
	byID map[string]*Script
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{byID: make(map[string]*Script)}
}

// Add registers a script. Duplicate ids are rejected.
func (c *Catalog) Add(sc *Script) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byID[sc.ID]; ok {
		return fmt.Errorf("duplicate script id %q", sc.ID)
	}
	c.byID[sc.ID] = sc
	return nil
}

// Get returns the script with the given id.
func (c *Catalog) Get(id string) (*Script, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sc, ok := c.byID[id]
	return sc, ok
}

// List returns all scripts ordered by id.
func (c *Catalog) List() []*Script {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Script, 0, len(c.byID))
	for _, sc := range c.byID {
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// UnitsForTopic returns the distinct unit ids of all scripts belonging to
// the topic, ordered. Used to decide topic completion.
func (c *Catalog) UnitsForTopic(topicID string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seen := make(map[string]struct{})
	var units []string
	for _, sc := range c.byID {
		if sc.TopicID != topicID {
			continue
		}
		if _, ok := seen[sc.UnitID]; ok {
			continue
		}
		seen[sc.UnitID] = struct{}{}
		units = append(units, sc.UnitID)
	}
	sort.Strings(units)
	return units
}
