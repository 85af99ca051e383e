package entities

// Declaration is the raw, not yet normalized configuration of one relationship.
// Every field is optional; which ones are required depends on Kind.
type Declaration struct {
	Kind           Kind        // Relationship kind (defaults to OneToOne)
	Target         string      // Related class name
	Link           string      // ManyToMany link class name
	LinkLocal      string      // ManyToMany link field matching the owner
	LinkForeign    string      // ManyToMany link field matching the target
	Local          string      // Owner-side join field
	Foreign        string      // Target-side join field
	Conditions     []Condition // Extra filter predicates
	Order          Order       // Result ordering
	IndexField     string      // Key collection results by this target field
	ContextClass   string      // Context kinds: class tag stored on children
	ClassField     string      // ContextParent: field holding the parent's class tag
	AllowedClasses []string    // ContextParent: permitted parent classes
}

// Target returns the shorthand declaration for a default one-to-one relationship
func Target(class string) *Declaration {
	return &Declaration{Kind: OneToOne, Target: class}
}

// NamedDeclaration pairs a relationship name with its declaration.
// A nil Declaration suppresses a relationship inherited from an ancestor.
type NamedDeclaration struct {
	Name        string
	Declaration *Declaration
}

// Declare is a convenience constructor for NamedDeclaration
func Declare(name string, decl *Declaration) NamedDeclaration {
	return NamedDeclaration{Name: name, Declaration: decl}
}

// Suppress removes an inherited relationship from a subclass
func Suppress(name string) NamedDeclaration {
	return NamedDeclaration{Name: name}
}

// Clone returns a deep copy of the declaration
func (d *Declaration) Clone() *Declaration {
	if d == nil {
		return nil
	}
	cp := *d
	cp.Conditions = append([]Condition(nil), d.Conditions...)
	cp.Order = append(Order(nil), d.Order...)
	cp.AllowedClasses = append([]string(nil), d.AllowedClasses...)
	return &cp
}
