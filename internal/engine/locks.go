package engine

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v4"
)

// itemLocks serializes in-process work on a single data item. The version
// check on the item row covers writers outside this process.
type itemLocks struct {
	m *xsync.Map[int64, *sync.Mutex]
}

func newItemLocks() *itemLocks {
	return &itemLocks{m: xsync.NewMap[int64, *sync.Mutex]()}
}

// lock acquires the item's mutex and returns its release func.
func (l *itemLocks) lock(itemID int64) func() {
	if l == nil {
		return func() {}
	}
	mu, _ := l.m.LoadOrStore(itemID, &sync.Mutex{})
	mu.Lock()
	return mu.Unlock
}
