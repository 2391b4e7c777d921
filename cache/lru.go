package cache

import (
	hamt "github.com/raviqqe/hamt"
)

// FNV hash prime
const primeRK = 16777619

type entryString string

func (s entryString) Hash() uint32 {
	data := []byte(s)

	hash := uint32(0)
	for i := 0; i < len(data); i++ {
		hash = hash*primeRK + uint32(data[i])
	}
	return hash
}

func (s entryString) Equal(e hamt.Entry) bool {
	j, ok := e.(entryString)
	if !ok {
		return false
	}

	return s == j
}

type (
	node struct {
		key   hamt.Entry
		value interface{}
		pre   *node
		next  *node
	}

	// LruCache keeps the most recently served entries up to a fixed
	// capacity, evicting from the least recently used end.
	LruCache struct {
		Capacity int
		Size     int
		head     *node
		end      *node

		entries hamt.Map
	}
)

func CreateLruCache(capacity int) *LruCache {
	return &LruCache{
		Capacity: capacity,
		entries:  hamt.NewMap(),
	}
}

func (l *LruCache) addNode(n *node) {
	if l.end != nil {
		l.end.next = n
		n.pre = l.end
		n.next = nil
	}
	l.end = n
	if l.head == nil {
		l.head = n
	}
}

func (l *LruCache) removeNode(n *node) hamt.Entry {
	if n.pre != nil {
		n.pre.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.pre = n.pre
	} else {
		l.end = n.pre
	}
	n.pre = nil
	n.next = nil
	return n.key
}

func (l *LruCache) refreshNode(n *node) {
	if n == l.end {
		return
	}
	l.removeNode(n)
	l.addNode(n)
}

func (l *LruCache) Get(key string) interface{} {
	value := l.entries.Find(entryString(key))
	if value == nil {
		return nil
	}

	n := value.(*node)
	l.refreshNode(n)
	return n.value
}

func (l *LruCache) Put(key string, value interface{}) {
	entry := entryString(key)
	existing := l.entries.Find(entry)
	if existing == nil {
		n := node{key: entry, value: value}
		if l.Capacity > 0 && l.entries.Size() >= l.Capacity {
			oldKey := l.removeNode(l.head)
			l.entries = l.entries.Delete(oldKey).Insert(entry, &n)
		} else {
			l.entries = l.entries.Insert(entry, &n)
		}
		l.addNode(&n)
	} else {
		n := existing.(*node)
		n.value = value
		l.refreshNode(n)
		l.entries = l.entries.Insert(entry, n)
	}
	l.Size = l.entries.Size()
}

func (l *LruCache) Evict(key string) {
	value := l.entries.Find(entryString(key))
	if value != nil {
		oldKey := l.removeNode(value.(*node))
		l.entries = l.entries.Delete(oldKey)
		l.Size = l.entries.Size()
	}
}
