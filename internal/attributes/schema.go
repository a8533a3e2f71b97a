package attributes

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nerrad567/tb-edge-agent/internal/infrastructure/config"
)

// Kind is the value type of an attribute family.
type Kind int

const (
	KindBool Kind = iota
	KindNumber
)

// String returns the kind name used in configuration.
func (k Kind) String() string {
	if k == KindNumber {
		return "number"
	}
	return "bool"
}

// Family is a bounded array of attributes sharing a key prefix.
type Family struct {
	Prefix string
	Kind   Kind
	Size   int
}

// Ref addresses one attribute: element Index of family Family.
type Ref struct {
	Family int
	Index  int
}

// Schema is the fixed set of attribute families.
type Schema struct {
	families []Family
}

// NewSchema validates families and builds a Schema.
func NewSchema(families ...Family) (Schema, error) {
	if len(families) == 0 {
		return Schema{}, fmt.Errorf("%w: no families", ErrInvalidSchema)
	}
	for i, f := range families {
		if f.Prefix == "" || f.Size < 1 {
			return Schema{}, fmt.Errorf("%w: family %d", ErrInvalidSchema, i)
		}
		for j := 0; j < i; j++ {
			if strings.HasPrefix(f.Prefix, families[j].Prefix) || strings.HasPrefix(families[j].Prefix, f.Prefix) {
				return Schema{}, fmt.Errorf("%w: prefixes %q and %q overlap", ErrInvalidSchema, families[j].Prefix, f.Prefix)
			}
		}
	}
	return Schema{families: append([]Family(nil), families...)}, nil
}

// SchemaFromConfig builds the Schema from the attributes section of config.yaml.
func SchemaFromConfig(cfg config.AttributesConfig) (Schema, error) {
	families := make([]Family, 0, len(cfg.Families))
	for _, f := range cfg.Families {
		kind := KindBool
		if f.Kind == "number" {
			kind = KindNumber
		}
		families = append(families, Family{Prefix: f.Prefix, Kind: kind, Size: f.Size})
	}
	return NewSchema(families...)
}

// Families returns the families in declaration order.
func (s Schema) Families() []Family {
	return append([]Family(nil), s.families...)
}

// Contains reports whether ref addresses an attribute of the schema.
func (s Schema) Contains(ref Ref) bool {
	return ref.Family >= 0 && ref.Family < len(s.families) &&
		ref.Index >= 0 && ref.Index < s.families[ref.Family].Size
}

// KindOf returns the kind of the attribute at ref.
func (s Schema) KindOf(ref Ref) Kind {
	return s.families[ref.Family].Kind
}

// Key returns the canonical key of ref, e.g. "switch_state_2".
func (s Schema) Key(ref Ref) (string, bool) {
	if !s.Contains(ref) {
		return "", false
	}
	return s.families[ref.Family].Prefix + strconv.Itoa(ref.Index), true
}

// Parse maps a key back to its Ref. Only canonical decimal indices are
// accepted ("switch_state_2", not "switch_state_02" or "switch_state_+2").
func (s Schema) Parse(key string) (Ref, bool) {
	for fi, f := range s.families {
		digits, ok := strings.CutPrefix(key, f.Prefix)
		if !ok || digits == "" {
			continue
		}
		for _, r := range digits {
			if r < '0' || r > '9' {
				return Ref{}, false
			}
		}
		if len(digits) > 1 && digits[0] == '0' {
			return Ref{}, false
		}
		idx, err := strconv.Atoi(digits)
		if err != nil || idx >= f.Size {
			return Ref{}, false
		}
		return Ref{Family: fi, Index: idx}, true
	}
	return Ref{}, false
}

// Keys returns every key of the schema in order.
func (s Schema) Keys() []string {
	var keys []string
	for fi, f := range s.families {
		for i := 0; i < f.Size; i++ {
			key, _ := s.Key(Ref{Family: fi, Index: i})
			keys = append(keys, key)
		}
	}
	return keys
}
