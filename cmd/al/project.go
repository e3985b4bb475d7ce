package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"annoline/internal/app"
	"annoline/internal/domain"
	"annoline/internal/engine"
	"annoline/internal/repo"
)

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectConfigureCmd())
	prj.AddCommand(projectProgressCmd())
	return prj
}

func renderProjects(list []domain.Project) func(table.Writer) {
	return func(tw table.Writer) {
		tw.AppendHeader(table.Row{"ID", "Name", "Status", "Max", "Threshold", "Created"})
		for _, p := range list {
			tw.AppendRow(table.Row{p.ID, p.Name, p.Status, p.MaxAssignments, p.ConsensusThreshold, p.CreatedAt})
		}
	}
}

func projectCreateCmd() *cobra.Command {
	var (
		id, name, desc       string
		maxAssign, threshold int
		labels               []string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project with its label taxonomy",
		RunE: func(cmd *cobra.Command, args []string) error {
			var classes []domain.LabelClass
			for _, l := range labels {
				classes = append(classes, domain.LabelClass{Name: l})
			}
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				p, err := env.Engine.CreateProject(ctx, engine.ProjectCreateOptions{
					ID:                 id,
					Name:               name,
					Description:        desc,
					MaxAssignments:     maxAssign,
					ConsensusThreshold: threshold,
					LabelClasses:       classes,
					ActorID:            actorID(),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p, renderProjects([]domain.Project{p}))
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "project id (generated when empty)")
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().IntVar(&maxAssign, "max-assignments", 0, "annotators per item (config default when 0)")
	cmd.Flags().IntVar(&threshold, "threshold", 0, "matching submissions needed for consensus (config default when 0)")
	cmd.Flags().StringSliceVar(&labels, "label", nil, "label class (repeatable)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				list, err := env.Engine.ListProjects(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(list, renderProjects(list))
			})
		},
	}
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show a project and its label classes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				p, err := e.GetProject(ctx, projectID)
				if err != nil {
					return err
				}
				return printJSONOrTable(p, func(tw table.Writer) {
					renderProjects([]domain.Project{p})(tw)
					tw.AppendSeparator()
					for _, lc := range p.LabelClasses {
						tw.AppendRow(table.Row{"label", lc.Name, lc.Description})
					}
				})
			})
		},
	}
}

func projectConfigureCmd() *cobra.Command {
	var maxAssign, threshold int
	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Set redundancy and consensus threshold",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				p, err := e.ConfigureConsensus(ctx, projectID, maxAssign, threshold, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(p, renderProjects([]domain.Project{p}))
			})
		},
	}
	cmd.Flags().IntVar(&maxAssign, "max-assignments", 0, "annotators per item")
	cmd.Flags().IntVar(&threshold, "threshold", 0, "matching submissions needed for consensus")
	_ = cmd.MarkFlagRequired("max-assignments")
	_ = cmd.MarkFlagRequired("threshold")
	return cmd
}

func projectProgressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "progress",
		Short: "Item and assignment counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				pr, err := e.ProjectProgress(ctx, projectID)
				if err != nil {
					return err
				}
				return printJSONOrTable(pr, func(tw table.Writer) {
					tw.AppendHeader(table.Row{"Kind", "Status", "Count"})
					for _, st := range []string{"pending", "in_progress", "done"} {
						tw.AppendRow(table.Row{"item", st, pr.ItemCounts[st]})
					}
					tw.AppendRow(table.Row{"item", "needs_review", pr.Flagged})
					for _, st := range domain.AssignmentStatuses() {
						tw.AppendRow(table.Row{"assignment", st, pr.Assignments[string(st)]})
					}
				})
			})
		},
	}
}

func itemCmd() *cobra.Command {
	it := &cobra.Command{Use: "item", Short: "Manage data items"}
	it.AddCommand(itemImportCmd())
	it.AddCommand(itemListCmd())
	return it
}

// importFile is the on-disk shape accepted by item import.
type importFile struct {
	Items []struct {
		ExternalRef string         `yaml:"external_ref" json:"external_ref"`
		Payload     map[string]any `yaml:"payload" json:"payload"`
	} `yaml:"items" json:"items"`
}

func readImportFile(path string) ([]engine.DataItemInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f importFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &f)
	default:
		err = yaml.Unmarshal(data, &f)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	out := make([]engine.DataItemInput, 0, len(f.Items))
	for _, it := range f.Items {
		in := engine.DataItemInput{ExternalRef: it.ExternalRef}
		if it.Payload != nil {
			raw, err := json.Marshal(it.Payload)
			if err != nil {
				return nil, fmt.Errorf("item %s payload: %w", it.ExternalRef, err)
			}
			in.Payload = raw
		}
		out = append(out, in)
	}
	return out, nil
}

func renderItems(items []domain.DataItem) func(table.Writer) {
	return func(tw table.Writer) {
		tw.AppendHeader(table.Row{"ID", "Ref", "Status", "Resolution", "Labels", "Review"})
		for _, it := range items {
			review := ""
			if it.NeedsReview {
				review = "yes"
			}
			tw.AppendRow(table.Row{it.ID, it.ExternalRef, it.Status, it.Resolution, strings.Join(it.ConsensusLabels, ","), review})
		}
	}
}

func itemImportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load data items from a YAML or JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs, err := readImportFile(file)
			if err != nil {
				return err
			}
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				items, err := e.LoadDataItems(ctx, projectID, inputs, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(items, renderItems(items))
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "items file (.yml, .yaml or .json)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func itemListCmd() *cobra.Command {
	var (
		status      string
		needsReview bool
		limit       int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List data items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				f := repo.ItemFilter{ProjectID: projectID, Status: status, Limit: limit}
				if needsReview {
					f.NeedsReview = &needsReview
				}
				items, err := e.ListDataItems(ctx, f)
				if err != nil {
					return err
				}
				return printJSONOrTable(items, renderItems(items))
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "pending, in_progress or done")
	cmd.Flags().BoolVar(&needsReview, "needs-review", false, "only items flagged for review")
	cmd.Flags().IntVar(&limit, "limit", 0, "max items (0 = all)")
	return cmd
}

func memberCmd() *cobra.Command {
	m := &cobra.Command{Use: "member", Short: "Manage project members"}
	var actor, role string
	add := &cobra.Command{
		Use:   "add",
		Short: "Grant a project role",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				member, err := e.AddMember(ctx, projectID, actor, role, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(member, nil)
			})
		},
	}
	add.Flags().StringVar(&actor, "actor", "", "actor to grant")
	add.Flags().StringVar(&role, "role", "annotator", "role defined in annoline.yml rbac")
	_ = add.MarkFlagRequired("actor")
	m.AddCommand(add)
	return m
}
