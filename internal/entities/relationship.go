package entities

// Relationship is a normalized relationship definition.
// The set of implementations is closed: one struct per Kind, each carrying
// only the options that kind uses.
type Relationship interface {
	RelationName() string // Name unique within the owning class
	Kind() Kind
	TargetClass() string // Related class, empty for polymorphic parents
	LocalKey() string    // Owner-side field the relationship depends on
	isRelationship()
}

// OneToOneRelationship resolves a single target where Foreign == owner.Local
type OneToOneRelationship struct {
	Name    string
	Target  string
	Local   string
	Foreign string
}

// OneToManyRelationship resolves every target where Foreign == owner.Local
type OneToManyRelationship struct {
	Name       string
	Target     string
	Local      string
	Foreign    string
	Conditions []Condition
	Order      Order
	IndexField string
}

// ManyToManyRelationship resolves targets reachable through rows of a link class
type ManyToManyRelationship struct {
	Name        string
	Target      string
	Link        string
	Local       string // Owner field matched by Link.LinkLocal
	Foreign     string // Target field matched by Link.LinkForeign
	LinkLocal   string
	LinkForeign string
	Conditions  []Condition
	Order       Order
	IndexField  string
}

// ContextChildrenRelationship resolves targets tagged with ContextClass/ContextID.
// Single selects the ContextChild variant that returns at most one record.
type ContextChildrenRelationship struct {
	Name         string
	Target       string
	Local        string
	ContextClass string
	Conditions   []Condition
	Order        Order
	Single       bool
}

// ContextParentRelationship resolves a polymorphic parent whose class is stored in ClassField
type ContextParentRelationship struct {
	Name           string
	Local          string
	Foreign        string
	ClassField     string
	AllowedClasses []string
}

// HandleRelationship resolves a target by its unique handle stored in Local
type HandleRelationship struct {
	Name   string
	Target string
	Local  string
}

// HistoryRelationship resolves the stored revisions of the owner
type HistoryRelationship struct {
	Name       string
	Target     string
	Local      string
	Conditions []Condition
	Order      Order
}

func (r *OneToOneRelationship) RelationName() string { return r.Name }
func (r *OneToOneRelationship) Kind() Kind           { return OneToOne }
func (r *OneToOneRelationship) TargetClass() string  { return r.Target }
func (r *OneToOneRelationship) LocalKey() string     { return r.Local }
func (r *OneToOneRelationship) isRelationship()      {}

func (r *OneToManyRelationship) RelationName() string { return r.Name }
func (r *OneToManyRelationship) Kind() Kind           { return OneToMany }
func (r *OneToManyRelationship) TargetClass() string  { return r.Target }
func (r *OneToManyRelationship) LocalKey() string     { return r.Local }
func (r *OneToManyRelationship) isRelationship()      {}

func (r *ManyToManyRelationship) RelationName() string { return r.Name }
func (r *ManyToManyRelationship) Kind() Kind           { return ManyToMany }
func (r *ManyToManyRelationship) TargetClass() string  { return r.Target }
func (r *ManyToManyRelationship) LocalKey() string     { return r.Local }
func (r *ManyToManyRelationship) isRelationship()      {}

func (r *ContextChildrenRelationship) RelationName() string { return r.Name }
func (r *ContextChildrenRelationship) TargetClass() string  { return r.Target }
func (r *ContextChildrenRelationship) LocalKey() string     { return r.Local }
func (r *ContextChildrenRelationship) isRelationship()      {}

// Kind returns ContextChild for single-valued definitions, ContextChildren otherwise
func (r *ContextChildrenRelationship) Kind() Kind {
	if r.Single {
		return ContextChild
	}
	return ContextChildren
}

func (r *ContextParentRelationship) RelationName() string { return r.Name }
func (r *ContextParentRelationship) Kind() Kind           { return ContextParent }
func (r *ContextParentRelationship) TargetClass() string  { return "" }
func (r *ContextParentRelationship) LocalKey() string     { return r.Local }
func (r *ContextParentRelationship) isRelationship()      {}

// Allows reports whether a parent of the given root class may be assigned
func (r *ContextParentRelationship) Allows(class string) bool {
	if len(r.AllowedClasses) == 0 {
		return true
	}
	for _, allowed := range r.AllowedClasses {
		if allowed == class {
			return true
		}
	}
	return false
}

func (r *HandleRelationship) RelationName() string { return r.Name }
func (r *HandleRelationship) Kind() Kind           { return Handle }
func (r *HandleRelationship) TargetClass() string  { return r.Target }
func (r *HandleRelationship) LocalKey() string     { return r.Local }
func (r *HandleRelationship) isRelationship()      {}

func (r *HistoryRelationship) RelationName() string { return r.Name }
func (r *HistoryRelationship) Kind() Kind           { return History }
func (r *HistoryRelationship) TargetClass() string  { return r.Target }
func (r *HistoryRelationship) LocalKey() string     { return r.Local }
func (r *HistoryRelationship) isRelationship()      {}

// DependentFields returns the owner fields whose mutation invalidates a cached value
func DependentFields(rel Relationship) []string {
	if parent, ok := rel.(*ContextParentRelationship); ok {
		return []string{parent.Local, parent.ClassField}
	}
	return []string{rel.LocalKey()}
}

// RelationshipSet is the ordered, merged set of relationships of one class
type RelationshipSet struct {
	names []string
	byKey map[string]Relationship
}

// NewRelationshipSet creates an empty set
func NewRelationshipSet() *RelationshipSet {
	return &RelationshipSet{byKey: make(map[string]Relationship)}
}

// Put adds or replaces a relationship, keeping the position of the first insertion
func (s *RelationshipSet) Put(rel Relationship) {
	name := rel.RelationName()
	if _, exists := s.byKey[name]; !exists {
		s.names = append(s.names, name)
	}
	s.byKey[name] = rel
}

// Get returns the relationship by name
func (s *RelationshipSet) Get(name string) (Relationship, bool) {
	rel, ok := s.byKey[name]
	return rel, ok
}

// Names returns relationship names in declaration order
func (s *RelationshipSet) Names() []string {
	return append([]string(nil), s.names...)
}

// Len returns the number of relationships
func (s *RelationshipSet) Len() int {
	return len(s.names)
}

// All returns the relationships in declaration order
func (s *RelationshipSet) All() []Relationship {
	out := make([]Relationship, 0, len(s.names))
	for _, name := range s.names {
		out = append(out, s.byKey[name])
	}
	return out
}
