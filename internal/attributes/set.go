package attributes

// Set holds the current value of every attribute in a Schema.
// It is not safe for concurrent use; the Synchronizer owns it.
type Set struct {
	schema Schema
	values [][]Value
}

// NewSet creates a Set with every attribute at the zero value of its kind.
func NewSet(schema Schema) *Set {
	values := make([][]Value, len(schema.families))
	for fi, f := range schema.families {
		values[fi] = make([]Value, f.Size)
		for i := range values[fi] {
			values[fi][i].Kind = f.Kind
		}
	}
	return &Set{schema: schema, values: values}
}

// Get returns the value at ref.
func (s *Set) Get(ref Ref) (Value, bool) {
	if !s.schema.Contains(ref) {
		return Value{}, false
	}
	return s.values[ref.Family][ref.Index], true
}

// Set stores v at ref. It returns false if ref is outside the schema or
// v has the wrong kind.
func (s *Set) Set(ref Ref, v Value) bool {
	if !s.schema.Contains(ref) || s.schema.KindOf(ref) != v.Kind {
		return false
	}
	s.values[ref.Family][ref.Index] = v
	return true
}

// Map returns every attribute keyed by its canonical key.
func (s *Set) Map() map[string]any {
	m := make(map[string]any)
	for fi, family := range s.values {
		for i, v := range family {
			key, _ := s.schema.Key(Ref{Family: fi, Index: i})
			m[key] = v.Any()
		}
	}
	return m
}
