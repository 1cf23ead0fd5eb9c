// Command ledgerctl is the operator CLI for ledger background jobs and
// compound journal templates.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/ledger/cmd/ledgerctl/cli"
	"github.com/odyssey-erp/ledger/internal/app"
	"github.com/odyssey-erp/ledger/jobs"
)

var (
	envFile   string
	redisAddr string
)

var rootCmd = &cobra.Command{
	Use:           "ledgerctl",
	Short:         "Operate the ledger job queue and compound templates",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Enqueue and inspect ledger background jobs",
}

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run a compound scheduler sweep now",
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := jobsClient()
		if err != nil {
			return err
		}
		defer c.Close()
		info, err := c.Tick(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s id=%s\n", info.Type, info.ID)
		return nil
	},
}

var executeOpts struct {
	definition  int64
	actor       int64
	date        string
	reference   string
	description string
	context     []string
}

var executeCmd = &cobra.Command{
	Use:   "execute",
	Short: "Queue a manual execution of a compound definition",
	RunE: func(cmd *cobra.Command, _ []string) error {
		overrides, err := cli.ParseContext(executeOpts.context)
		if err != nil {
			return err
		}
		c, err := jobsClient()
		if err != nil {
			return err
		}
		defer c.Close()
		info, err := c.Execute(cmd.Context(), jobs.CompoundExecutePayload{
			DefinitionID: executeOpts.definition,
			ExecutorID:   executeOpts.actor,
			JournalDate:  executeOpts.date,
			Reference:    executeOpts.reference,
			Description:  executeOpts.description,
			Context:      overrides,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s id=%s\n", info.Type, info.ID)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show default queue statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := jobsClient()
		if err != nil {
			return err
		}
		defer c.Close()
		stats, err := c.InspectQueue(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
		return nil
	},
}

var scheduledSize int

var scheduledCmd = &cobra.Command{
	Use:   "scheduled",
	Short: "List tasks waiting in the scheduled set",
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := jobsClient()
		if err != nil {
			return err
		}
		defer c.Close()
		tasks, err := c.ListScheduled(cmd.Context(), scheduledSize)
		if err != nil {
			return err
		}
		for _, t := range tasks {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", t.ID, t.Type, t.NextProcessAt.Format(time.RFC3339))
		}
		return nil
	},
}

var templateContext []string

var templateCmd = &cobra.Command{
	Use:   "template FILE",
	Short: "Validate a compound template and print its canonical form",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		var overrides map[string]string
		if cmd.Flags().Changed("context") {
			if overrides, err = cli.ParseContext(templateContext); err != nil {
				return err
			}
			if overrides == nil {
				overrides = map[string]string{}
			}
		}
		return cli.CheckTemplate(f, cmd.OutOrStdout(), overrides)
	},
}

func jobsClient() (*cli.JobsCLI, error) {
	addr := redisAddr
	if addr == "" {
		var files []string
		if envFile != "" {
			files = append(files, envFile)
		}
		cfg, err := app.LoadConfig(files...)
		if err != nil {
			return nil, err
		}
		addr = cfg.RedisAddr
	}
	return cli.NewJobsCLI(addr)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "env file to load (default .env when present)")
	rootCmd.PersistentFlags().StringVar(&redisAddr, "redis", "", "redis address (default REDIS_ADDR)")

	executeCmd.Flags().Int64Var(&executeOpts.definition, "definition", 0, "compound definition id")
	executeCmd.Flags().Int64Var(&executeOpts.actor, "actor", 0, "executing user id")
	executeCmd.Flags().StringVar(&executeOpts.date, "date", "", "journal date (YYYY-MM-DD)")
	executeCmd.Flags().StringVar(&executeOpts.reference, "reference", "", "entry reference")
	executeCmd.Flags().StringVar(&executeOpts.description, "description", "", "entry description override")
	executeCmd.Flags().StringArrayVar(&executeOpts.context, "context", nil, "context override key=value (repeatable)")
	_ = executeCmd.MarkFlagRequired("definition")

	scheduledCmd.Flags().IntVar(&scheduledSize, "size", 10, "page size")

	templateCmd.Flags().StringArrayVar(&templateContext, "context", nil, "resolve with context override key=value (repeatable)")

	jobsCmd.AddCommand(tickCmd, executeCmd, statsCmd, scheduledCmd)
	rootCmd.AddCommand(jobsCmd, templateCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
