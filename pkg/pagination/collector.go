package pagination

// Identifiable is an item with a unique 64-bit id.
type Identifiable interface {
	Identity() int64
}

// Collector keeps items in first-seen order, dropping repeated ids.
type Collector[T Identifiable] struct {
	items []T
	seen  map[int64]struct{}
	minID int64
}

// NewCollector creates an empty collector.
func NewCollector[T Identifiable]() *Collector[T] {
	return &Collector[T]{
		items: make([]T, 0),
		seen:  make(map[int64]struct{}),
	}
}

// Add appends item unless its id was already collected.
// It reports whether the item was new.
func (c *Collector[T]) Add(item T) bool {
	id := item.Identity()
	if _, ok := c.seen[id]; ok {
		return false
	}
	if len(c.seen) == 0 || id < c.minID {
		c.minID = id
	}
	c.seen[id] = struct{}{}
	c.items = append(c.items, item)
	return true
}

// AddPage adds every item of a page and returns how many were new.
func (c *Collector[T]) AddPage(page []T) int {
	added := 0
	for _, item := range page {
		if c.Add(item) {
			added++
		}
	}
	return added
}

// Len returns the number of distinct ids collected.
func (c *Collector[T]) Len() int {
	return len(c.items)
}

// Cursor returns the smallest id collected so far, the max_id for the next
// (older) page. ok is false while the collector is empty.
func (c *Collector[T]) Cursor() (id int64, ok bool) {
	if len(c.items) == 0 {
		return 0, false
	}
	return c.minID, true
}

// Items returns the collected items in first-seen order. Never nil.
func (c *Collector[T]) Items() []T {
	return c.items
}
