package core

import (
	"sort"
	"sync"
)

// CounterItem holds the new, unread and sticky news counts of one feed.
// Counts never go negative; decrementing a zero count is a contract violation.
type CounterItem struct {
	New    int `json:"new"`
	Unread int `json:"unread"`
	Sticky int `json:"sticky"`
}

func (c *CounterItem) IncrementNew()    { c.New++ }
func (c *CounterItem) IncrementUnread() { c.Unread++ }
func (c *CounterItem) IncrementSticky() { c.Sticky++ }

func (c *CounterItem) DecrementNew() {
	if c.New == 0 {
		Violation("new counter decremented below zero")
	}
	c.New--
}

func (c *CounterItem) DecrementUnread() {
	if c.Unread == 0 {
		Violation("unread counter decremented below zero")
	}
	c.Unread--
}

func (c *CounterItem) DecrementSticky() {
	if c.Sticky == 0 {
		Violation("sticky counter decremented below zero")
	}
	c.Sticky--
}

// IsZero reports whether every count is zero.
func (c CounterItem) IsZero() bool { return c.New == 0 && c.Unread == 0 && c.Sticky == 0 }

// NewsCounter keeps a CounterItem per feed link.
type NewsCounter struct {
	mu    sync.RWMutex
	items map[string]*CounterItem
}

// NewNewsCounter returns an empty counter.
func NewNewsCounter() *NewsCounter {
	return &NewsCounter{items: make(map[string]*CounterItem)}
}

// Get returns a copy of the counts of a feed.
func (c *NewsCounter) Get(feedLink string) (CounterItem, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.items[feedLink]
	if !ok {
		return CounterItem{}, false
	}
	return *item, true
}

// Put replaces the counts of a feed.
func (c *NewsCounter) Put(feedLink string, item CounterItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[feedLink] = &item
}

// Remove forgets a feed.
func (c *NewsCounter) Remove(feedLink string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, feedLink)
}

// Links returns the feed links with counts, sorted.
func (c *NewsCounter) Links() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	links := make([]string, 0, len(c.items))
	for link := range c.items {
		links = append(links, link)
	}
	sort.Strings(links)
	return links
}

// Reset drops every count.
func (c *NewsCounter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*CounterItem)
}

// update applies fn to the counts of a feed, creating them when missing.
// If fn panics the item is left as it was.
func (c *NewsCounter) update(feedLink string, fn func(*CounterItem)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	current, ok := c.items[feedLink]
	var next CounterItem
	if ok {
		next = *current
	}
	fn(&next)
	c.items[feedLink] = &next
}

// countNews adds (delta > 0) or removes (delta < 0) the contribution of n.
func (c *NewsCounter) countNews(n *News, delta int) {
	if n == nil || n.FeedLink == "" || !n.State.Visible() {
		return
	}
	c.update(n.FeedLink, func(item *CounterItem) {
		if delta > 0 {
			if n.State == StateNew {
				item.IncrementNew()
			}
			if n.State == StateNew || n.State == StateUnread || n.State == StateUpdated {
				item.IncrementUnread()
			}
			if n.Sticky {
				item.IncrementSticky()
			}
			return
		}
		if n.State == StateNew {
			item.DecrementNew()
		}
		if n.State == StateNew || n.State == StateUnread || n.State == StateUpdated {
			item.DecrementUnread()
		}
		if n.Sticky {
			item.DecrementSticky()
		}
	})
}
