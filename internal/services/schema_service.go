package services

import (
	"fmt"
	"sync"

	"github.com/asakaida/kankei/internal/entities"
	"github.com/asakaida/kankei/internal/services/relations"
)

// SchemaServiceInterface defines the interface for schema management operations
type SchemaServiceInterface interface {
	RegisterClass(class *entities.Class) error
	LoadDocument(classes []*entities.Class) error
	Class(name string) (*entities.Class, error)
	ClassNames() []string
	Ancestors(name string) ([]*entities.Class, error)
	RootClass(name string) (string, error)
	IsA(class, ancestor string) bool
	FieldExists(class, field string) bool
	Relationships(class string) (*entities.RelationshipSet, error)
	Relationship(class, name string) (entities.Relationship, error)
}

// SchemaService owns the registered record classes and their relationship registry
type SchemaService struct {
	mu      sync.RWMutex
	classes map[string]*entities.Class
	order   []string

	registry *relations.Registry
}

// NewSchemaService creates a schema service holding only the built-in Handle class.
// conditions is used to compile expression conditions at registration and may be nil.
func NewSchemaService(conditions *relations.ConditionEngine) *SchemaService {
	s := &SchemaService{
		classes: make(map[string]*entities.Class),
	}
	s.registry = relations.NewRegistry(s, relations.NewNormalizer(s, conditions))

	handle := entities.NewHandleClass()
	s.classes[handle.Name] = handle
	s.order = append(s.order, handle.Name)
	return s
}

// Registry returns the relationship registry
func (s *SchemaService) Registry() *relations.Registry {
	return s.registry
}

// RegisterClass validates and registers a class. The parent must already be
// registered; the class's own relationship declarations are normalized
// immediately and a configuration error aborts the registration.
func (s *SchemaService) RegisterClass(class *entities.Class) error {
	if class == nil {
		return fmt.Errorf("class is required")
	}
	if err := class.Validate(); err != nil {
		return fmt.Errorf("invalid class: %w", err)
	}

	s.mu.RLock()
	_, exists := s.classes[class.Name]
	parent, parentExists := s.classes[class.Parent]
	s.mu.RUnlock()

	if exists {
		return fmt.Errorf("class %s is already registered", class.Name)
	}
	if class.Parent != "" && !parentExists {
		return fmt.Errorf("%w: parent %s of %s is not registered", entities.ErrUnknownClass, class.Parent, class.Name)
	}

	// Normalization reads the catalog, so it runs without holding the lock
	if err := s.registry.Validate(class); err != nil {
		return fmt.Errorf("failed to register class %s: %w", class.Name, err)
	}

	registered := *class
	registered.Fields = mergeFields(parent, class.Fields)
	registered.Relationships = append([]entities.NamedDeclaration(nil), class.Relationships...)
	// A hierarchy shares the root's table, so lookups through the root class
	// (ContextParent tags, OneToOne targets) find subclass rows
	if parent != nil {
		registered.Table = parent.TableName()
	}

	s.mu.Lock()
	if _, exists := s.classes[class.Name]; exists {
		s.mu.Unlock()
		return fmt.Errorf("class %s is already registered", class.Name)
	}
	s.classes[class.Name] = &registered
	s.order = append(s.order, class.Name)
	s.mu.Unlock()

	// Built entries may have fallen back to unregistered target names
	s.registry.Reset()
	return nil
}

// LoadDocument registers a set of classes, parents before children.
// Parents may be part of the set or already registered.
func (s *SchemaService) LoadDocument(classes []*entities.Class) error {
	pending := make(map[string]*entities.Class, len(classes))
	var names []string
	for _, c := range classes {
		if c == nil {
			continue
		}
		if _, dup := pending[c.Name]; dup {
			return fmt.Errorf("class %s is declared twice", c.Name)
		}
		pending[c.Name] = c
		names = append(names, c.Name)
	}

	for len(names) > 0 {
		var deferred []string
		for _, name := range names {
			c := pending[name]
			if _, waiting := pending[c.Parent]; c.Parent != "" && waiting {
				deferred = append(deferred, name)
				continue
			}
			if err := s.RegisterClass(c); err != nil {
				return err
			}
			delete(pending, name)
		}
		if len(deferred) == len(names) {
			return fmt.Errorf("classes %v form an inheritance cycle", deferred)
		}
		names = deferred
	}
	return nil
}

// Class returns a registered class
func (s *SchemaService) Class(name string) (*entities.Class, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	class, ok := s.classes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", entities.ErrUnknownClass, name)
	}
	return class, nil
}

// ClassNames returns every registered class name in registration order
func (s *SchemaService) ClassNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Ancestors returns the chain from the root class down to and including name
func (s *SchemaService) Ancestors(name string) ([]*entities.Class, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var chain []*entities.Class
	for current := name; current != ""; {
		class, ok := s.classes[current]
		if !ok {
			return nil, fmt.Errorf("%w: %s", entities.ErrUnknownClass, current)
		}
		chain = append([]*entities.Class{class}, chain...)
		current = class.Parent
	}
	return chain, nil
}

// RootClass returns the topmost ancestor of name
func (s *SchemaService) RootClass(name string) (string, error) {
	chain, err := s.Ancestors(name)
	if err != nil {
		return "", err
	}
	return chain[0].Name, nil
}

// IsA reports whether class is ancestor or descends from it
func (s *SchemaService) IsA(class, ancestor string) bool {
	chain, err := s.Ancestors(class)
	if err != nil {
		return false
	}
	for _, c := range chain {
		if c.Name == ancestor {
			return true
		}
	}
	return false
}

// FieldExists reports whether class declares or inherits field
func (s *SchemaService) FieldExists(class, field string) bool {
	c, err := s.Class(class)
	if err != nil {
		return false
	}
	return c.HasField(field)
}

// Relationships returns the merged relationships of class
func (s *SchemaService) Relationships(class string) (*entities.RelationshipSet, error) {
	if _, err := s.Class(class); err != nil {
		return nil, err
	}
	return s.registry.Relationships(class)
}

// Relationship returns one relationship of class
func (s *SchemaService) Relationship(class, name string) (entities.Relationship, error) {
	if _, err := s.Class(class); err != nil {
		return nil, err
	}
	return s.registry.Relationship(class, name)
}

// mergeFields prepends the parent's fields to the class's own, without duplicates
func mergeFields(parent *entities.Class, own []string) []string {
	var fields []string
	seen := make(map[string]bool)
	add := func(names []string) {
		for _, f := range names {
			if f == entities.PrimaryKey || seen[f] {
				continue
			}
			seen[f] = true
			fields = append(fields, f)
		}
	}
	if parent != nil {
		add(parent.Fields)
	}
	add(own)
	return fields
}

var _ relations.Schema = (*SchemaService)(nil)
