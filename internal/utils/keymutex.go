// Package utils holds small shared primitives.
package utils

import (
	"hash/fnv"
	"sync"
)

// KeyMutex serializes work per string key via a fixed set of striped
// locks. Used to serialize order upserts per external order id and
// customer aggregate updates per phone within this process.
type KeyMutex struct {
	stripes []sync.Mutex
}

// NewKeyMutex creates a KeyMutex with the given number of stripes.
func NewKeyMutex(stripes int) *KeyMutex {
	if stripes <= 0 {
		stripes = 64
	}
	return &KeyMutex{stripes: make([]sync.Mutex, stripes)}
}

// Lock acquires the stripe for key and returns its unlock function.
func (m *KeyMutex) Lock(key string) func() {
	h := fnv.New32a()
	h.Write([]byte(key))
	stripe := &m.stripes[h.Sum32()%uint32(len(m.stripes))]
	stripe.Lock()
	return stripe.Unlock
}
