package fieldclass

// StoredValues is the indexed vector of decoded integer values used to
// resolve Sequence lengths and Variant tags at decode time. It is sized
// once, from TraceClass.StoredValueCount, when a decoder session
// starts, and reset between packets.
//
// Mirroring original_source's ctf-meta.h, every slot is stored as a
// signed 64-bit value regardless of the producing Int's signedness;
// a Sequence length reader reinterprets its slot as unsigned, a Variant
// tag reader as whatever signedness its tag enum declares.
type StoredValues struct {
	values []int64
	set    []bool
}

// NewStoredValues allocates a table with n slots, all initially unset.
func NewStoredValues(n int) *StoredValues {
	return &StoredValues{values: make([]int64, n), set: make([]bool, n)}
}

// Reset clears every slot to unset, without reallocating, so the table
// can be reused across packets within one stream.
func (sv *StoredValues) Reset() {
	for i := range sv.values {
		sv.values[i] = 0
		sv.set[i] = false
	}
}

// Len returns the number of slots.
func (sv *StoredValues) Len() int { return len(sv.values) }

// Store records a decoded value at index i.
func (sv *StoredValues) Store(i int, v int64) {
	sv.values[i] = v
	sv.set[i] = true
}

// Get returns the stored value at index i and whether it has been set
// since the last Reset.
func (sv *StoredValues) Get(i int) (int64, bool) {
	if i < 0 || i >= len(sv.values) {
		return 0, false
	}
	return sv.values[i], sv.set[i]
}

// GetUnsigned is Get with the result reinterpreted as uint64, for
// Sequence length lookups.
func (sv *StoredValues) GetUnsigned(i int) (uint64, bool) {
	v, ok := sv.Get(i)
	return uint64(v), ok
}
