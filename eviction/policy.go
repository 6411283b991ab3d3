// Package eviction implements the pluggable freeze-and-compare eviction
// policies (LFU, LRU, custom) and the eviction worker that samples a live
// map under a policy without stopping the world.
//
// The package never imports the cache's entry-holder type directly: the
// cache hands it read-only accessor closures instead, so a Policy can be
// unit tested against a plain map without pulling in the whole cache.
package eviction

// Sample is one entry's snapshot taken during an eviction round. Primary is
// the attribute the policy orders by (e.g. use count for LFU, last-access
// time for LRU); Secondary is the tiebreaker.
type Sample[K comparable] struct {
	Key       K
	Primary   int64
	Secondary int64
}

// Policy decides the eviction order for a bounded cache. Snapshotting is
// mandatory: the live holder backing a key may keep changing while the
// round's sort runs, so every policy freezes its ordering attribute first.
type Policy[K comparable] interface {
	// Freeze snapshots the ordering attributes for key. ok is false if the
	// key has since disappeared from the map.
	Freeze(key K) (primary, secondary int64, ok bool)
	// Less reports whether a should be evicted before b. Entries sorted
	// first get evicted first.
	Less(a, b Sample[K]) bool
	// BeforeRound and AfterRound bracket one eviction round.
	BeforeRound()
	AfterRound()
}

// Accessor exposes the read-only holder attributes the built-in policies
// need, without exposing the holder type itself.
type Accessor[K comparable] interface {
	// UseCount returns the entry's use count; ok is false if key is absent.
	UseCount(key K) (int64, bool)
	// LastAccessMillis returns the entry's last-access time in Unix millis.
	LastAccessMillis(key K) (int64, bool)
}

type lfu[K comparable] struct {
	accessor Accessor[K]
}

// NewLFU returns a least-frequently-used policy: entries with the smallest
// use count are evicted first, ties broken by older last-access time.
func NewLFU[K comparable](accessor Accessor[K]) Policy[K] {
	return &lfu[K]{accessor: accessor}
}

func (p *lfu[K]) Freeze(key K) (int64, int64, bool) {
	useCount, ok := p.accessor.UseCount(key)
	if !ok {
		return 0, 0, false
	}

	lastAccess, ok := p.accessor.LastAccessMillis(key)
	if !ok {
		return 0, 0, false
	}

	return useCount, lastAccess, true
}

func (p *lfu[K]) Less(a, b Sample[K]) bool {
	if a.Primary != b.Primary {
		return a.Primary < b.Primary
	}

	return a.Secondary < b.Secondary
}

func (p *lfu[K]) BeforeRound() {}
func (p *lfu[K]) AfterRound()  {}

type lru[K comparable] struct {
	accessor Accessor[K]
}

// NewLRU returns a least-recently-used policy: entries with the oldest
// last-access time are evicted first.
func NewLRU[K comparable](accessor Accessor[K]) Policy[K] {
	return &lru[K]{accessor: accessor}
}

func (p *lru[K]) Freeze(key K) (int64, int64, bool) {
	lastAccess, ok := p.accessor.LastAccessMillis(key)
	if !ok {
		return 0, 0, false
	}

	return lastAccess, 0, true
}

func (p *lru[K]) Less(a, b Sample[K]) bool {
	return a.Primary < b.Primary
}

func (p *lru[K]) BeforeRound() {}
func (p *lru[K]) AfterRound()  {}

// CustomFuncs builds a Policy from user-supplied functions, backing the
// CUSTOM eviction policy option.
type CustomFuncs[K comparable] struct {
	FreezeFunc      func(key K) (primary, secondary int64, ok bool)
	LessFunc        func(a, b Sample[K]) bool
	BeforeRoundFunc func()
	AfterRoundFunc  func()
}

// NewCustom wraps CustomFuncs as a Policy. BeforeRoundFunc/AfterRoundFunc
// may be nil.
func NewCustom[K comparable](funcs CustomFuncs[K]) Policy[K] {
	return &custom[K]{funcs: funcs}
}

type custom[K comparable] struct {
	funcs CustomFuncs[K]
}

func (p *custom[K]) Freeze(key K) (int64, int64, bool) {
	return p.funcs.FreezeFunc(key)
}

func (p *custom[K]) Less(a, b Sample[K]) bool {
	return p.funcs.LessFunc(a, b)
}

func (p *custom[K]) BeforeRound() {
	if p.funcs.BeforeRoundFunc != nil {
		p.funcs.BeforeRoundFunc()
	}
}

func (p *custom[K]) AfterRound() {
	if p.funcs.AfterRoundFunc != nil {
		p.funcs.AfterRoundFunc()
	}
}
