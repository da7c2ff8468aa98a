package store

import "time"

// RPush appends value to the tail of the list at key. If key is absent, or
// expired, a new list is created. If key holds a String, it is *replaced*
// by a new list containing only the pushed value — this matches the
// original source's observed behavior, which diverges from upstream Redis (see
// spec §9 Open Questions: upstream would WRONGTYPE here instead).
func (s *Store) RPush(key string, value []byte) int {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.data[key]
	if !ok || v.expired(now) || v.Kind != KindList {
		v = &Value{Kind: KindList}
		s.data[key] = v
	}
	v.List = append(v.List, value)
	return len(v.List)
}

// RPop removes and returns the last element of the list at key. Returns
// (nil, false) if key is absent, expired, holds a string, or is an empty
// list.
func (s *Store) RPop(key string) ([]byte, bool) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.data[key]
	if !ok || v.expired(now) || v.Kind != KindList || len(v.List) == 0 {
		return nil, false
	}

	last := v.List[len(v.List)-1]
	v.List = v.List[:len(v.List)-1]
	if len(v.List) == 0 {
		delete(s.data, key)
	}
	return last, true
}

// LLen returns the length of the list at key, or 0 if absent, expired, or
// a string.
func (s *Store) LLen(key string) int {
	now := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	if !ok || v.expired(now) || v.Kind != KindList {
		return 0
	}
	return len(v.List)
}

// LRange returns the inclusive slice [start, stop] of the list at key, with
// negative indices counting from the end and out-of-bounds indices
// clamped. Returns an empty slice (never nil) if the range is empty after
// normalization, or if key is absent, expired, or a string.
func (s *Store) LRange(key string, start, stop int) [][]byte {
	now := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	if !ok || v.expired(now) || v.Kind != KindList {
		return [][]byte{}
	}

	n := len(v.List)
	start = normalizeIndex(start, n)
	stop = normalizeIndex(stop, n)

	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || n == 0 {
		return [][]byte{}
	}

	out := make([][]byte, stop-start+1)
	copy(out, v.List[start:stop+1])
	return out
}

// normalizeIndex converts a possibly-negative Redis-style index (counting
// from the end of a length-n sequence) into a plain non-negative index.
func normalizeIndex(idx, n int) int {
	if idx < 0 {
		idx = n + idx
	}
	return idx
}
