package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/asakaida/kankei/internal/entities"
	"github.com/asakaida/kankei/internal/services"
	"github.com/asakaida/kankei/internal/services/relations"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [schema.yaml]",
		Short: "Validate a schema document",
		Long: `Validate a schema document and print the normalized relationships of
every class, inherited ones included.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := schemaFlag
			if len(args) > 0 {
				path = args[0]
			}
			schema, _, err := loadSchema(path, relations.DefaultProgramCacheSize)
			if err != nil {
				return err
			}
			return printSchema(cmd.OutOrStdout(), schema)
		},
	}
}

type relationshipView struct {
	Name       string      `yaml:"name"`
	Kind       string      `yaml:"kind"`
	Definition interface{} `yaml:"definition"`
}

type classView struct {
	Class         string             `yaml:"class"`
	Parent        string             `yaml:"parent,omitempty"`
	Table         string             `yaml:"table"`
	Relationships []relationshipView `yaml:"relationships,omitempty"`
}

func printSchema(w io.Writer, schema *services.SchemaService) error {
	var views []classView
	for _, name := range schema.ClassNames() {
		class, err := schema.Class(name)
		if err != nil {
			return err
		}
		set, err := schema.Relationships(name)
		if err != nil {
			return fmt.Errorf("class %s: %w", name, err)
		}

		view := classView{Class: name, Parent: class.Parent, Table: class.TableName()}
		for _, rel := range set.All() {
			view.Relationships = append(view.Relationships, relationshipView{
				Name:       rel.RelationName(),
				Kind:       rel.Kind().String(),
				Definition: definition(rel),
			})
		}
		views = append(views, view)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(views); err != nil {
		return fmt.Errorf("failed to render schema: %w", err)
	}
	return enc.Close()
}

// definition flattens a relationship into its non-empty options
func definition(rel entities.Relationship) map[string]interface{} {
	out := map[string]interface{}{}
	put := func(key string, v interface{}) {
		switch x := v.(type) {
		case string:
			if x == "" {
				return
			}
		case entities.Order:
			if len(x) == 0 {
				return
			}
			v = x.String()
		case []entities.Condition:
			if len(x) == 0 {
				return
			}
			conds := make([]string, len(x))
			for i, c := range x {
				conds[i] = c.String()
			}
			v = conds
		case []string:
			if len(x) == 0 {
				return
			}
		case bool:
			if !x {
				return
			}
		}
		out[key] = v
	}

	switch r := rel.(type) {
	case *entities.OneToOneRelationship:
		put("target", r.Target)
		put("local", r.Local)
		put("foreign", r.Foreign)
	case *entities.OneToManyRelationship:
		put("target", r.Target)
		put("local", r.Local)
		put("foreign", r.Foreign)
		put("conditions", r.Conditions)
		put("order", r.Order)
		put("index_field", r.IndexField)
	case *entities.ManyToManyRelationship:
		put("target", r.Target)
		put("link", r.Link)
		put("local", r.Local)
		put("foreign", r.Foreign)
		put("link_local", r.LinkLocal)
		put("link_foreign", r.LinkForeign)
		put("conditions", r.Conditions)
		put("order", r.Order)
		put("index_field", r.IndexField)
	case *entities.ContextChildrenRelationship:
		put("target", r.Target)
		put("local", r.Local)
		put("context_class", r.ContextClass)
		put("conditions", r.Conditions)
		put("order", r.Order)
		put("single", r.Single)
	case *entities.ContextParentRelationship:
		put("local", r.Local)
		put("foreign", r.Foreign)
		put("class_field", r.ClassField)
		put("allowed_classes", r.AllowedClasses)
	case *entities.HandleRelationship:
		put("target", r.Target)
		put("local", r.Local)
	case *entities.HistoryRelationship:
		put("target", r.Target)
		put("local", r.Local)
		put("conditions", r.Conditions)
		put("order", r.Order)
	}
	return out
}
