// Package schemafile loads record classes and their relationship declarations
// from YAML documents.
//
// A document lists classes; relationships are a mapping from name to
// declaration, kept in document order:
//
//	classes:
//	  - name: Post
//	    table: posts
//	    fields: [ThreadID, Title, Score]
//	    relationships:
//	      Thread: Thread              # one-to-one shorthand
//	      Comments:
//	        kind: context_children
//	        target: Comment
//	        order: ID DESC
//	  - name: StickyPost
//	    parent: Post
//	    relationships:
//	      Comments: null              # suppress the inherited relationship
package schemafile

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/asakaida/kankei/internal/entities"
)

// Document is a parsed schema document
type Document struct {
	Classes []*entities.Class
}

type document struct {
	Classes []classSpec `yaml:"classes" validate:"required,min=1,dive"`
}

type classSpec struct {
	Name            string           `yaml:"name" validate:"required"`
	Parent          string           `yaml:"parent"`
	Table           string           `yaml:"table"`
	Fields          []string         `yaml:"fields" validate:"dive,required"`
	AllowedContexts []string         `yaml:"allowed_contexts" validate:"dive,required"`
	Relationships   relationshipList `yaml:"relationships"`
}

type declarationSpec struct {
	Kind           string          `yaml:"kind"`
	Target         string          `yaml:"target"`
	Link           string          `yaml:"link"`
	LinkLocal      string          `yaml:"link_local"`
	LinkForeign    string          `yaml:"link_foreign"`
	Local          string          `yaml:"local"`
	Foreign        string          `yaml:"foreign"`
	Conditions     []conditionSpec `yaml:"conditions"`
	Order          string          `yaml:"order"`
	IndexField     string          `yaml:"index_field"`
	ContextClass   string          `yaml:"context_class"`
	ClassField     string          `yaml:"class_field"`
	AllowedClasses []string        `yaml:"allowed_classes"`
}

type relationshipEntry struct {
	name string
	decl *declarationSpec // nil suppresses
	line int
}

// relationshipList keeps the mapping order of the document
type relationshipList []relationshipEntry

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *relationshipList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: relationships must be a mapping", value.Line)
	}

	entries := make(relationshipList, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		key, node := value.Content[i], value.Content[i+1]

		entry := relationshipEntry{name: key.Value, line: key.Line}
		switch {
		case node.Kind == yaml.ScalarNode && node.Tag == "!!null":
			// suppression
		case node.Kind == yaml.ScalarNode:
			entry.decl = &declarationSpec{Target: node.Value}
		case node.Kind == yaml.MappingNode:
			var spec declarationSpec
			if err := node.Decode(&spec); err != nil {
				return fmt.Errorf("line %d: relationship %s: %w", node.Line, key.Value, err)
			}
			entry.decl = &spec
		default:
			return fmt.Errorf("line %d: relationship %s must be a class name, a mapping or null", node.Line, key.Value)
		}
		entries = append(entries, entry)
	}

	*l = entries
	return nil
}

// conditionSpec is either an expression string or a field condition mapping
type conditionSpec struct {
	entities.Condition
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *conditionSpec) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		c.Condition = entities.Expr(value.Value)
		return nil
	}

	var cond entities.Condition
	if err := value.Decode(&cond); err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	if cond.Expr == "" {
		cond.Op = entities.Operator(strings.ToUpper(strings.TrimSpace(string(cond.Op))))
		if cond.Op == "" {
			cond.Op = entities.OpEq
		}
	}
	c.Condition = cond
	return nil
}

var validate = newValidator()

// newValidator reports fields by their YAML names
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Load reads and parses a schema document
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file %s: %w", path, err)
	}

	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Parse parses a schema document. Every failure wraps entities.ErrConfiguration.
func Parse(data []byte) (*Document, error) {
	var raw document
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: failed to parse schema YAML: %v", entities.ErrConfiguration, err)
	}

	if err := validate.Struct(&raw); err != nil {
		return nil, fmt.Errorf("%w: %s", entities.ErrConfiguration, describe(err))
	}

	doc := &Document{Classes: make([]*entities.Class, 0, len(raw.Classes))}
	for _, spec := range raw.Classes {
		class, err := spec.class()
		if err != nil {
			return nil, fmt.Errorf("%w: class %s: %v", entities.ErrConfiguration, spec.Name, err)
		}
		doc.Classes = append(doc.Classes, class)
	}
	return doc, nil
}

func (s classSpec) class() (*entities.Class, error) {
	class := &entities.Class{
		Name:            s.Name,
		Parent:          s.Parent,
		Table:           s.Table,
		Fields:          s.Fields,
		AllowedContexts: s.AllowedContexts,
	}

	for _, entry := range s.Relationships {
		if entry.decl == nil {
			class.Relationships = append(class.Relationships, entities.Suppress(entry.name))
			continue
		}
		decl, err := entry.decl.declaration()
		if err != nil {
			return nil, fmt.Errorf("line %d: relationship %s: %v", entry.line, entry.name, err)
		}
		class.Relationships = append(class.Relationships, entities.Declare(entry.name, decl))
	}
	return class, nil
}

func (s *declarationSpec) declaration() (*entities.Declaration, error) {
	decl := &entities.Declaration{
		Kind:           entities.OneToOne,
		Target:         s.Target,
		Link:           s.Link,
		LinkLocal:      s.LinkLocal,
		LinkForeign:    s.LinkForeign,
		Local:          s.Local,
		Foreign:        s.Foreign,
		IndexField:     s.IndexField,
		ContextClass:   s.ContextClass,
		ClassField:     s.ClassField,
		AllowedClasses: s.AllowedClasses,
	}

	if s.Kind != "" {
		kind, err := entities.ParseKind(s.Kind)
		if err != nil {
			return nil, err
		}
		decl.Kind = kind
	}

	order, err := entities.ParseOrder(s.Order)
	if err != nil {
		return nil, err
	}
	decl.Order = order

	for _, c := range s.Conditions {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		decl.Conditions = append(decl.Conditions, c.Condition)
	}
	return decl, nil
}

// describe renders validator errors with document field names
func describe(err error) string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return err.Error()
	}

	messages := make([]string, 0, len(errs))
	for _, e := range errs {
		field := strings.TrimPrefix(e.Namespace(), "document.")
		switch e.Tag() {
		case "required":
			messages = append(messages, fmt.Sprintf("%s is required", field))
		case "min":
			messages = append(messages, fmt.Sprintf("%s must not be empty", field))
		default:
			messages = append(messages, fmt.Sprintf("%s is invalid", field))
		}
	}
	return strings.Join(messages, "; ")
}
