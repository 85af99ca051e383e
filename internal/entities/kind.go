package entities

import (
	"fmt"
	"strings"
)

// Kind identifies the shape of a relationship
type Kind int

const (
	OneToOne Kind = iota + 1
	OneToMany
	ManyToMany
	ContextParent
	ContextChild
	ContextChildren
	Handle
	History
)

var kindNames = map[Kind]string{
	OneToOne:        "OneToOne",
	OneToMany:       "OneToMany",
	ManyToMany:      "ManyToMany",
	ContextParent:   "ContextParent",
	ContextChild:    "ContextChild",
	ContextChildren: "ContextChildren",
	Handle:          "Handle",
	History:         "History",
}

// String returns the canonical name of the kind
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// IsCollection reports whether relationships of this kind resolve to a collection
func (k Kind) IsCollection() bool {
	switch k {
	case OneToMany, ManyToMany, ContextChildren, History:
		return true
	}
	return false
}

// ParseKind parses a kind name. Matching ignores case, "_" and "-",
// so "one_to_many", "OneToMany" and "one-to-many" are equivalent.
func ParseKind(s string) (Kind, error) {
	normalized := strings.ToLower(strings.NewReplacer("_", "", "-", "", " ", "").Replace(s))
	for k, name := range kindNames {
		if strings.ToLower(name) == normalized {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown relationship kind %q", ErrConfiguration, s)
}
