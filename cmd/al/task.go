package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"annoline/internal/app"
	"annoline/internal/domain"
	"annoline/internal/engine"
)

func taskCmd() *cobra.Command {
	t := &cobra.Command{Use: "task", Short: "Pull, inspect and submit annotation work"}
	t.AddCommand(taskAssignCmd())
	t.AddCommand(taskMineCmd())
	t.AddCommand(taskShowCmd())
	t.AddCommand(taskSubmitCmd())
	t.AddCommand(taskStatsCmd())
	return t
}

func parseAssignmentID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid assignment id %q", arg)
	}
	return id, nil
}

func renderAssignments(list []domain.Assignment) func(table.Writer) {
	return func(tw table.Writer) {
		tw.AppendHeader(table.Row{"ID", "Item", "Annotator", "Status", "Assigned", "Submitted"})
		for _, a := range list {
			tw.AppendRow(table.Row{a.ID, a.DataItemID, a.AnnotatorID, a.Status, a.AssignedAt, deref(a.SubmittedAt)})
		}
	}
}

func taskAssignCmd() *cobra.Command {
	var (
		quantity  int
		annotator string
	)
	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Pull up to --quantity items for an annotator",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				if annotator == "" {
					annotator = actorID()
				}
				created, err := e.AssignTasks(ctx, engine.AssignOptions{
					ProjectID:   projectID,
					AnnotatorID: annotator,
					Quantity:    quantity,
					ActorID:     actorID(),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(created, renderAssignments(created))
			})
		},
	}
	cmd.Flags().IntVarP(&quantity, "quantity", "n", 1, "items to pull")
	cmd.Flags().StringVar(&annotator, "annotator", "", "annotator (defaults to --actor-id)")
	return cmd
}

func taskMineCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "mine",
		Short: "List my assignments, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				tasks, err := env.Engine.GetMyTasks(ctx, projectFlag(), actorID(), status)
				if err != nil {
					return err
				}
				return printJSONOrTable(tasks, func(tw table.Writer) {
					tw.AppendHeader(table.Row{"Assignment", "Project", "Item", "Ref", "Status", "Assigned"})
					for _, ts := range tasks {
						tw.AppendRow(table.Row{ts.AssignmentID, ts.ProjectID, ts.DataItemID, ts.ExternalRef, ts.Status, ts.AssignedAt})
					}
				})
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "assigned, submitted, completed or rejected")
	return cmd
}

func taskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <assignment-id>",
		Short: "Show an assignment with its data item and label classes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseAssignmentID(args[0])
			if err != nil {
				return err
			}
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				detail, err := env.Engine.GetTaskDetail(ctx, id, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(detail, nil)
			})
		},
	}
}

func taskSubmitCmd() *cobra.Command {
	var labels []string
	cmd := &cobra.Command{
		Use:   "submit <assignment-id>",
		Short: "Submit labels for an assignment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseAssignmentID(args[0])
			if err != nil {
				return err
			}
			anns := make([]domain.Annotation, 0, len(labels))
			for _, l := range labels {
				anns = append(anns, domain.Annotation{Label: l})
			}
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				a, err := env.Engine.SubmitTask(ctx, engine.SubmitOptions{AnnotatorID: actorID(), AssignmentID: id, Labels: anns})
				if err != nil {
					return err
				}
				item, err := env.Engine.Repo.GetDataItem(ctx, nil, a.DataItemID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"assignment": a, "data_item": item}, func(tw table.Writer) {
					renderAssignments([]domain.Assignment{a})(tw)
					tw.AppendFooter(table.Row{"item", item.ID, item.Status, item.Resolution, strings.Join(item.ConsensusLabels, ",")})
				})
			})
		},
	}
	cmd.Flags().StringSliceVarP(&labels, "label", "l", nil, "label (repeatable)")
	_ = cmd.MarkFlagRequired("label")
	return cmd
}

func taskStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count my assignments by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				stats, err := env.Engine.GetAnnotatorStats(ctx, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(stats, func(tw table.Writer) {
					tw.AppendHeader(table.Row{"Assigned", "Submitted", "Completed", "Rejected", "Total"})
					tw.AppendRow(table.Row{stats.Assigned, stats.Submitted, stats.Completed, stats.Rejected, stats.Total})
				})
			})
		},
	}
}

func reviewCmd() *cobra.Command {
	r := &cobra.Command{Use: "review", Short: "Review submitted work"}
	r.AddCommand(&cobra.Command{
		Use:   "queue",
		Short: "Submitted assignments awaiting review, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				queue, err := e.ReviewQueue(ctx, projectID)
				if err != nil {
					return err
				}
				return printJSONOrTable(queue, renderAssignments(queue))
			})
		},
	})
	r.AddCommand(reviewDecisionCmd(domain.ReviewApprove))
	r.AddCommand(reviewDecisionCmd(domain.ReviewReject))
	return r
}

func reviewDecisionCmd(decision domain.ReviewDecision) *cobra.Command {
	return &cobra.Command{
		Use:   string(decision) + " <assignment-id>",
		Short: strings.ToUpper(string(decision[:1])) + string(decision[1:]) + " a submitted assignment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseAssignmentID(args[0])
			if err != nil {
				return err
			}
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				a, err := env.Engine.ReviewAssignment(ctx, engine.ReviewOptions{AssignmentID: id, ReviewerID: actorID(), Decision: decision})
				if err != nil {
					return err
				}
				return printJSONOrTable(a, renderAssignments([]domain.Assignment{a}))
			})
		},
	}
}
