package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"annoline/internal/app"
	"annoline/internal/config"
	"annoline/internal/engine"
	"annoline/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "al",
	Short: "Annoline CLI",
	Long: `Annoline hands data items to annotators and settles their labels by consensus.
- Project: a labeling job with a label taxonomy, a redundancy (max assignments per item)
  and a consensus threshold (how many matching submissions close an item).
- Data items: the things to label, loaded in bulk; pending -> in_progress -> done.
- Assignments: one annotator's attempt at one item; assigned -> submitted -> completed, or rejected by review.
- Consensus: once enough submissions agree on the same label set the item is done;
  when every slot is used without agreement the item is flagged for review.
- Event log: every state change, view with 'al events'.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("ANNOLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("project", "", "project id (defaults to the only project)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(itemCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(reviewCmd())
	rootCmd.AddCommand(memberCmd())
	rootCmd.AddCommand(whoamiCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(eventsCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

// --- helpers ---

func withEnv(ctx context.Context, fn func(context.Context, *app.Env) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := config.LoadOrDefault(workspace)
	if err != nil {
		return err
	}
	logger, err := logging.NewFromConfig(cfg, os.Stderr)
	if err != nil {
		return err
	}
	env, err := app.Open(ctx, workspace, app.Options{Logger: logger})
	if err != nil {
		return err
	}
	defer env.Close()
	return fn(ctx, env)
}

// withProject resolves --project (or the only project) before running fn.
func withProject(ctx context.Context, fn func(context.Context, engine.Engine, string) error) error {
	return withEnv(ctx, func(ctx context.Context, env *app.Env) error {
		projectID, err := app.ResolveProject(ctx, env.Engine.Repo, projectFlag())
		if err != nil {
			return err
		}
		return fn(ctx, env.Engine, projectID)
	})
}

func actorID() string {
	return viper.GetString("actor-id")
}

func projectFlag() string {
	return viper.GetString("project")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printJSONOrTable prints v as JSON with --json, otherwise the table built by
// render. A nil render prints indented JSON either way.
func printJSONOrTable(v any, render func(table.Writer)) error {
	if viper.GetBool("json") || render == nil {
		return printJSON(v)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	render(tw)
	tw.Render()
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
