package value

// Dict is a string-keyed map that preserves insertion order so traces and
// rendered output stay deterministic.
type Dict struct {
	keys  []string
	items map[string]Value
}

// NewDictMap creates an empty ordered dict.
func NewDictMap() *Dict {
	return &Dict{items: make(map[string]Value)}
}

// Get returns the value stored under key.
func (d *Dict) Get(key string) (Value, bool) {
	v, ok := d.items[key]
	return v, ok
}

// Set stores a value, appending the key on first insertion.
func (d *Dict) Set(key string, v Value) {
	if _, ok := d.items[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.items[key] = v
}

// Delete removes a key if present.
func (d *Dict) Delete(key string) {
	if _, ok := d.items[key]; !ok {
		return
	}
	delete(d.items, key)
	for i, k := range d.keys {
		if k == key {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order. The slice is shared; callers
// must not mutate it.
func (d *Dict) Keys() []string { return d.keys }

// Len returns the number of entries.
func (d *Dict) Len() int { return len(d.items) }

// Clone returns a shallow copy preserving order.
func (d *Dict) Clone() *Dict {
	out := NewDictMap()
	for _, k := range d.keys {
		out.Set(k, d.items[k])
	}
	return out
}
