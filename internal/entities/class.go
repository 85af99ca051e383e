package entities

import "fmt"

const (
	// PrimaryKey is the name of the primary key field of every class
	PrimaryKey = "ID"

	// HandleClass is the built-in class holding globally unique handles
	HandleClass = "Handle"

	// ContextClassField and ContextIDField are the polymorphic fields of context children
	ContextClassField = "ContextClass"
	ContextIDField    = "ContextID"

	// HandleField is the unique handle field of the Handle class
	HandleField = "Handle"
)

// Class describes a record class: its storage, its fields and its relationship declarations
type Class struct {
	Name            string             // Class name (e.g., "Post")
	Parent          string             // Direct ancestor class name, empty for a root class
	Table           string             // Storage table, defaults to Name
	Fields          []string           // Field names; ID is implied
	Relationships   []NamedDeclaration // Own relationship declarations in declaration order
	AllowedContexts []string           // Classes a ContextParent relationship may point at
}

// TableName returns the storage table of the class
func (c *Class) TableName() string {
	if c.Table != "" {
		return c.Table
	}
	return c.Name
}

// HasField reports whether the class itself declares the field
func (c *Class) HasField(name string) bool {
	if name == PrimaryKey {
		return true
	}
	for _, f := range c.Fields {
		if f == name {
			return true
		}
	}
	return false
}

// ColumnNames returns ID followed by the declared fields without duplicates
func (c *Class) ColumnNames() []string {
	columns := []string{PrimaryKey}
	for _, f := range c.Fields {
		if f != PrimaryKey {
			columns = append(columns, f)
		}
	}
	return columns
}

// Validate checks the class shape. Relationship declarations are validated separately.
func (c *Class) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("class name is required")
	}
	if c.Parent == c.Name {
		return fmt.Errorf("class %s cannot be its own parent", c.Name)
	}
	seen := make(map[string]bool, len(c.Relationships))
	for _, rel := range c.Relationships {
		if rel.Name == "" {
			return fmt.Errorf("%w: class %s declares a relationship without a name", ErrConfiguration, c.Name)
		}
		if seen[rel.Name] {
			return fmt.Errorf("%w: class %s declares relationship %s twice", ErrConfiguration, c.Name, rel.Name)
		}
		seen[rel.Name] = true
	}
	return nil
}

// NewHandleClass returns the built-in Handle class definition
func NewHandleClass() *Class {
	return &Class{
		Name:   HandleClass,
		Table:  "handles",
		Fields: []string{HandleField, ContextClassField, ContextIDField},
	}
}
