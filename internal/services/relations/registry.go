package relations

import (
	"fmt"
	"sync"

	"github.com/asakaida/kankei/internal/entities"
)

// Registry holds the merged and normalized relationship definitions of every class.
// Entries are built lazily, once per class.
type Registry struct {
	mu         sync.Mutex
	catalog    Catalog
	normalizer *Normalizer

	defined     map[string][]entities.NamedDeclaration
	initialized map[string]*entities.RelationshipSet
}

// NewRegistry creates an empty registry
func NewRegistry(catalog Catalog, normalizer *Normalizer) *Registry {
	return &Registry{
		catalog:     catalog,
		normalizer:  normalizer,
		defined:     make(map[string][]entities.NamedDeclaration),
		initialized: make(map[string]*entities.RelationshipSet),
	}
}

// Define merges the raw declarations of class and its ancestors, root first,
// so a descendant declaration replaces an ancestor's for the same name.
// Suppressed (nil) declarations are kept in the output. Calling Define for an
// already defined class returns a copy of the existing entry.
func (r *Registry) Define(class string) ([]entities.NamedDeclaration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	merged, err := r.define(class)
	if err != nil {
		return nil, err
	}
	return append([]entities.NamedDeclaration(nil), merged...), nil
}

// Init normalizes the merged declarations of class, skipping suppressed ones
func (r *Registry) Init(class string) (*entities.RelationshipSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.init(class)
}

// Relationships returns the normalized relationships of class, building them on first use
func (r *Registry) Relationships(class string) (*entities.RelationshipSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.init(class)
}

// Relationship returns one normalized relationship of class
func (r *Registry) Relationship(class, name string) (entities.Relationship, error) {
	set, err := r.Relationships(class)
	if err != nil {
		return nil, err
	}
	rel, ok := set.Get(name)
	if !ok {
		return nil, &entities.RelationError{Class: class, Relation: name, Err: entities.ErrUnknownRelationship}
	}
	return rel, nil
}

// Validate normalizes the own declarations of a class that is about to be registered.
// Names suppressed with a nil declaration are skipped.
func (r *Registry) Validate(class *entities.Class) error {
	for _, nd := range class.Relationships {
		if nd.Declaration == nil {
			continue
		}
		if _, err := r.normalizer.Normalize(class, nd.Name, nd.Declaration); err != nil {
			return err
		}
	}
	return nil
}

// Reset drops every built entry
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defined = make(map[string][]entities.NamedDeclaration)
	r.initialized = make(map[string]*entities.RelationshipSet)
}

// define must be called with the lock held
func (r *Registry) define(class string) ([]entities.NamedDeclaration, error) {
	if merged, ok := r.defined[class]; ok {
		return merged, nil
	}

	chain, err := r.catalog.Ancestors(class)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve ancestors of %s: %w", class, err)
	}

	var merged []entities.NamedDeclaration
	position := make(map[string]int)
	for _, ancestor := range chain {
		for _, nd := range ancestor.Relationships {
			if i, ok := position[nd.Name]; ok {
				merged[i] = nd
				continue
			}
			position[nd.Name] = len(merged)
			merged = append(merged, nd)
		}
	}

	r.defined[class] = merged
	return merged, nil
}

// init must be called with the lock held
func (r *Registry) init(class string) (*entities.RelationshipSet, error) {
	if set, ok := r.initialized[class]; ok {
		return set, nil
	}

	merged, err := r.define(class)
	if err != nil {
		return nil, err
	}
	owner, err := r.catalog.Class(class)
	if err != nil {
		return nil, err
	}

	set := entities.NewRelationshipSet()
	for _, nd := range merged {
		if nd.Declaration == nil {
			continue
		}
		rel, err := r.normalizer.Normalize(owner, nd.Name, nd.Declaration)
		if err != nil {
			return nil, err
		}
		set.Put(rel)
	}

	r.initialized[class] = set
	return set, nil
}
