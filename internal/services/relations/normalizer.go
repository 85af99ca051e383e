package relations

import (
	"fmt"

	"github.com/asakaida/kankei/internal/entities"
	"github.com/asakaida/kankei/internal/repositories"
)

// Catalog is the view of the schema manager the relationship engine depends on
type Catalog interface {
	// Class returns a registered class, or an error wrapping entities.ErrUnknownClass
	Class(name string) (*entities.Class, error)

	// Ancestors returns the chain from the root class down to and including name
	Ancestors(name string) ([]*entities.Class, error)

	// RootClass returns the name of the topmost ancestor of name
	RootClass(name string) (string, error)

	// IsA reports whether class is ancestor or one of its descendants
	IsA(class, ancestor string) bool

	// FieldExists reports whether class or one of its ancestors declares field
	FieldExists(class, field string) bool
}

// Normalizer turns raw declarations into complete relationship definitions.
// Its output depends only on the declaration and the catalog, so normalizing the
// same declaration twice yields equal results.
type Normalizer struct {
	catalog    Catalog
	conditions *ConditionEngine
}

// NewNormalizer creates a normalizer. conditions may be nil, in which case
// expression conditions are not compiled at normalization.
func NewNormalizer(catalog Catalog, conditions *ConditionEngine) *Normalizer {
	return &Normalizer{
		catalog:    catalog,
		conditions: conditions,
	}
}

// Normalize fills in the defaults of decl for relationship name of owner.
// owner does not need to be registered yet, but its parent does.
func (n *Normalizer) Normalize(owner *entities.Class, name string, decl *entities.Declaration) (entities.Relationship, error) {
	if name == "" {
		return nil, entities.NewRelationError(owner.Name, name, entities.ErrConfiguration, "relationship name is required")
	}
	if decl == nil {
		return nil, entities.NewRelationError(owner.Name, name, entities.ErrConfiguration, "declaration is empty")
	}

	d := decl.Clone()
	if d.Kind == 0 {
		d.Kind = entities.OneToOne
	}

	fail := func(format string, args ...interface{}) (entities.Relationship, error) {
		return nil, entities.NewRelationError(owner.Name, name, entities.ErrConfiguration, format, args...)
	}

	if err := n.checkOptions(d); err != nil {
		return fail("%s", err.Error())
	}
	if err := n.checkConditions(d.Conditions); err != nil {
		return fail("%s", err.Error())
	}

	ownerRoot := n.rootOf(owner)

	switch d.Kind {
	case entities.OneToOne:
		if d.Target == "" {
			return fail("target class is required")
		}
		return &entities.OneToOneRelationship{
			Name:    name,
			Target:  d.Target,
			Local:   orDefault(d.Local, name+entities.PrimaryKey),
			Foreign: orDefault(d.Foreign, entities.PrimaryKey),
		}, nil

	case entities.OneToMany:
		if d.Target == "" {
			return fail("target class is required")
		}
		return &entities.OneToManyRelationship{
			Name:       name,
			Target:     d.Target,
			Local:      orDefault(d.Local, entities.PrimaryKey),
			Foreign:    orDefault(d.Foreign, ownerRoot+entities.PrimaryKey),
			Conditions: d.Conditions,
			Order:      d.Order,
			IndexField: d.IndexField,
		}, nil

	case entities.ManyToMany:
		if d.Target == "" {
			return fail("target class is required")
		}
		if d.Link == "" {
			return fail("link class is required")
		}
		return &entities.ManyToManyRelationship{
			Name:        name,
			Target:      d.Target,
			Link:        d.Link,
			Local:       orDefault(d.Local, entities.PrimaryKey),
			Foreign:     orDefault(d.Foreign, entities.PrimaryKey),
			LinkLocal:   orDefault(d.LinkLocal, ownerRoot+entities.PrimaryKey),
			LinkForeign: orDefault(d.LinkForeign, n.rootName(d.Target)+entities.PrimaryKey),
			Conditions:  d.Conditions,
			Order:       d.Order,
			IndexField:  d.IndexField,
		}, nil

	case entities.ContextChildren, entities.ContextChild:
		if d.Target == "" {
			return fail("target class is required")
		}
		single := d.Kind == entities.ContextChild
		order := d.Order
		if single && len(order) == 0 {
			order = entities.Order{{Field: entities.PrimaryKey, Desc: true}}
		}
		return &entities.ContextChildrenRelationship{
			Name:         name,
			Target:       d.Target,
			Local:        orDefault(d.Local, entities.PrimaryKey),
			ContextClass: orDefault(d.ContextClass, ownerRoot),
			Conditions:   d.Conditions,
			Order:        order,
			Single:       single,
		}, nil

	case entities.ContextParent:
		allowed := d.AllowedClasses
		if len(allowed) == 0 {
			allowed = n.allowedContexts(owner)
		}
		return &entities.ContextParentRelationship{
			Name:           name,
			Local:          orDefault(d.Local, entities.ContextIDField),
			Foreign:        orDefault(d.Foreign, entities.PrimaryKey),
			ClassField:     orDefault(d.ClassField, entities.ContextClassField),
			AllowedClasses: allowed,
		}, nil

	case entities.Handle:
		return &entities.HandleRelationship{
			Name:   name,
			Target: orDefault(d.Target, entities.HandleClass),
			Local:  orDefault(d.Local, entities.HandleField),
		}, nil

	case entities.History:
		order := d.Order
		if len(order) == 0 {
			order = entities.Order{{Field: repositories.RevisionDateField, Desc: true}}
		}
		return &entities.HistoryRelationship{
			Name:       name,
			Target:     orDefault(d.Target, owner.Name),
			Local:      orDefault(d.Local, entities.PrimaryKey),
			Conditions: d.Conditions,
			Order:      order,
		}, nil
	}

	return fail("unknown relationship kind %d", int(d.Kind))
}

// checkOptions rejects options the declared kind never reads
func (n *Normalizer) checkOptions(d *entities.Declaration) error {
	var used map[string]bool
	switch d.Kind {
	case entities.OneToOne:
		used = optionSet("Target", "Local", "Foreign")
	case entities.OneToMany:
		used = optionSet("Target", "Local", "Foreign", "Conditions", "Order", "IndexField")
	case entities.ManyToMany:
		used = optionSet("Target", "Link", "LinkLocal", "LinkForeign", "Local", "Foreign", "Conditions", "Order", "IndexField")
	case entities.ContextChildren, entities.ContextChild:
		used = optionSet("Target", "Local", "ContextClass", "Conditions", "Order")
	case entities.ContextParent:
		used = optionSet("Local", "Foreign", "ClassField", "AllowedClasses")
	case entities.Handle:
		used = optionSet("Target", "Local")
	case entities.History:
		used = optionSet("Target", "Local", "Conditions", "Order")
	default:
		return nil
	}

	present := map[string]bool{
		"Target":         d.Target != "",
		"Link":           d.Link != "",
		"LinkLocal":      d.LinkLocal != "",
		"LinkForeign":    d.LinkForeign != "",
		"Local":          d.Local != "",
		"Foreign":        d.Foreign != "",
		"Conditions":     len(d.Conditions) > 0,
		"Order":          len(d.Order) > 0,
		"IndexField":     d.IndexField != "",
		"ContextClass":   d.ContextClass != "",
		"ClassField":     d.ClassField != "",
		"AllowedClasses": len(d.AllowedClasses) > 0,
	}
	for _, option := range optionNames {
		if present[option] && !used[option] {
			return fmt.Errorf("option %s is not supported by %s relationships", option, d.Kind)
		}
	}
	return nil
}

func (n *Normalizer) checkConditions(conds []entities.Condition) error {
	for _, c := range conds {
		if err := c.Validate(); err != nil {
			return err
		}
		if c.IsExpression() && n.conditions != nil {
			if err := n.conditions.ValidateExpression(c.Expr); err != nil {
				return err
			}
		}
	}
	return nil
}

// rootOf resolves the root of a class that may not be registered yet
func (n *Normalizer) rootOf(owner *entities.Class) string {
	if owner.Parent == "" {
		return owner.Name
	}
	return n.rootName(owner.Parent)
}

// rootName falls back to the name itself for classes the catalog does not know
func (n *Normalizer) rootName(class string) string {
	root, err := n.catalog.RootClass(class)
	if err != nil || root == "" {
		return class
	}
	return root
}

// allowedContexts returns the nearest non-empty AllowedContexts of owner or its ancestors
func (n *Normalizer) allowedContexts(owner *entities.Class) []string {
	if len(owner.AllowedContexts) > 0 {
		return append([]string(nil), owner.AllowedContexts...)
	}
	if owner.Parent == "" {
		return nil
	}
	chain, err := n.catalog.Ancestors(owner.Parent)
	if err != nil {
		return nil
	}
	for i := len(chain) - 1; i >= 0; i-- {
		if len(chain[i].AllowedContexts) > 0 {
			return append([]string(nil), chain[i].AllowedContexts...)
		}
	}
	return nil
}

var optionNames = []string{
	"Target", "Link", "LinkLocal", "LinkForeign", "Local", "Foreign",
	"Conditions", "Order", "IndexField", "ContextClass", "ClassField", "AllowedClasses",
}

func optionSet(names ...string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[name] = true
	}
	return set
}

func orDefault(value, def string) string {
	if value != "" {
		return value
	}
	return def
}
