package meridiancache

import (
	"math/rand/v2"
	"sync/atomic"
)

// writeMode selects how a holder stores its value.
type writeMode int

const (
	// WriteModeIdentity stores the value as-is; callers share the
	// underlying reference they inserted.
	WriteModeIdentity writeMode = iota
	// WriteModeSerialize marshals the value on put and unmarshals it on
	// get, so a caller cannot mutate cached state through a retained
	// reference ("store-by-value").
	WriteModeSerialize
)

const (
	flagSerialize uint32 = 1 << iota
	flagComplete
)

// holder is the per-entry container: the value plus the metadata needed to
// decide visibility and eviction priority. V is the declared value type;
// under WriteModeSerialize the stored payload is the serialized []byte
// rather than a V, and the owning Cache is responsible for the
// marshal/unmarshal round trip.
type holder[V any] struct {
	value    atomic.Pointer[any]
	released atomic.Bool
	flags    atomic.Uint32

	inputTime    int64 // ms, set once by complete
	lastAccess   atomic.Int64
	maxIdle      atomic.Int64 // compact-encoded ms
	maxCacheTime atomic.Int64 // compact-encoded ms

	useCount atomic.Int64
}

// newHolder constructs an incomplete holder carrying raw, which is either a
// V (identity mode) or a []byte (serialize mode). The holder is invisible to
// readers until complete is called.
func newHolder[V any](raw any, mode writeMode) *holder[V] {
	h := &holder[V]{}
	h.value.Store(&raw)

	if mode == WriteModeSerialize {
		h.flags.Store(flagSerialize)
	}

	return h
}

// complete finalizes expiry metadata and publishes the holder to readers.
// Must be called before the holder is inserted into the storage map.
func (h *holder[V]) complete(maxIdleMs, maxCacheMs, now int64) {
	h.inputTime = now
	h.lastAccess.Store(now)
	h.maxIdle.Store(compactEncode(maxIdleMs))
	h.maxCacheTime.Store(compactEncode(maxCacheMs))
	h.flags.Store(h.flags.Load() | flagComplete)
}

func (h *holder[V]) isComplete() bool {
	return h.flags.Load()&flagComplete != 0
}

func (h *holder[V]) serialized() bool {
	return h.flags.Load()&flagSerialize != 0
}

// isInvalid reports whether the holder must be treated as expired: released,
// still incomplete, or past its age/idle bound.
func (h *holder[V]) isInvalid(now int64) bool {
	if h.released.Load() || !h.isComplete() {
		return true
	}

	if maxCache := compactDecode(h.maxCacheTime.Load()); maxCache > 0 && now-h.inputTime > maxCache {
		return true
	}

	if maxIdle := compactDecode(h.maxIdle.Load()); maxIdle > 0 && now-h.lastAccess.Load() > maxIdle {
		return true
	}

	return false
}

// peek returns the raw stored payload without touching access time or the
// use counter. Returns false if the holder has been released.
func (h *holder[V]) peek() (any, bool) {
	v := h.value.Load()
	if v == nil {
		return nil, false
	}

	return *v, true
}

// get is peek plus a last-access/use-count update, for the read path.
func (h *holder[V]) get(now int64) (any, bool) {
	raw, ok := h.peek()
	if !ok {
		return nil, false
	}

	h.lastAccess.Store(now)
	h.useCount.Add(1)

	return raw, true
}

// release publishes NULL and reports whether this call performed the
// release; at most one caller ever observes true for a given holder.
func (h *holder[V]) release() bool {
	if !h.released.CompareAndSwap(false, true) {
		return false
	}

	h.value.Store(nil)

	return true
}

// setExpireUntil schedules a randomized earlier expiration, used for mass
// expiration scenarios. It never extends the holder's existing lifetime.
func (h *holder[V]) setExpireUntil(maxDelayMs, now int64) {
	if maxDelayMs <= 0 {
		return
	}

	candidateDeadline := now + rand.Int64N(maxDelayMs+1) //nolint:gosec // jitter does not need crypto rand

	if currentMaxCache := compactDecode(h.maxCacheTime.Load()); currentMaxCache > 0 {
		currentDeadline := h.inputTime + currentMaxCache
		if candidateDeadline >= currentDeadline {
			return
		}
	}

	newMaxCache := candidateDeadline - h.inputTime
	if newMaxCache < 0 {
		newMaxCache = 0
	}

	h.maxCacheTime.Store(compactEncode(newMaxCache))
}

func (h *holder[V]) useCountValue() int64 {
	return h.useCount.Load()
}

func (h *holder[V]) lastAccessValue() int64 {
	return h.lastAccess.Load()
}

// compactEncode packs a millisecond duration into the holder's compact
// internal unit: values evenly divisible by 1000 are stored as seconds
// (tagged with the low bit), everything else as raw milliseconds.
func compactEncode(ms int64) int64 {
	if ms != 0 && ms%1000 == 0 {
		return ((ms / 1000) << 1) | 1
	}

	return ms << 1
}

// compactDecode is the inverse of compactEncode; the round trip is lossless
// within each regime.
func compactDecode(v int64) int64 {
	if v&1 == 1 {
		return (v >> 1) * 1000
	}

	return v >> 1
}
