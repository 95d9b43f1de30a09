package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"docketline/internal/calendar"
	"docketline/internal/db"
	"docketline/internal/domain"
	"docketline/internal/engine"
	"docketline/internal/migrate"
	"docketline/internal/repo"
	"docketline/internal/rules"
	"docketline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "dk",
	Short: "Docketline CLI",
	Long: `Docketline keeps a prosecution docket consistent by derivation.
Core concepts:
- Workspace: your .docketline directory holding the database; rule catalogs are stored in the DB and imported explicitly.
- Case: a matter in one jurisdiction that owns all documents, events, deadlines, and tasks.
- Document: what arrived (an office action, a fee notice); submitting one derives events from the rule catalog.
- Event: a legal fact derived from a document or logged directly; cancelling one cascades to everything it produced.
- Deadline: a statutory due date computed on the jurisdiction's business calendar; extensions supersede rather than edit.
- Task: the work item a deadline or event calls for; statuses go PENDING -> IN_PROGRESS -> DONE (CANCELLED is an exit).
- Case log: diary of every change, view with 'dk log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("DOCKETLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(caseCmd())
	rootCmd.AddCommand(docCmd())
	rootCmd.AddCommand(eventCmd())
	rootCmd.AddCommand(deadlineCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(catalogCmd())
	rootCmd.AddCommand(serveCmd())
}

func caseCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "case",
		Short: "Manage cases",
		Long:  "A case is one matter in one jurisdiction. Closing a case freezes derivation; reopening lifts the freeze.",
	}
	c.AddCommand(caseCreateCmd())
	c.AddCommand(caseShowCmd())
	c.AddCommand(caseListCmd())
	c.AddCommand(caseCloseCmd())
	c.AddCommand(caseReopenCmd())
	return c
}

func caseCreateCmd() *cobra.Command {
	var opts engine.CaseCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Open a case",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				c, err := e.CreateCase(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "case id (optional, UUID if omitted)")
	cmd.Flags().StringVar(&opts.Jurisdiction, "jurisdiction", "", "jurisdiction code (TW, US, ...)")
	cmd.Flags().StringVar(&opts.ApplicationNumber, "application-number", "", "application number")
	cmd.Flags().StringVar(&opts.FilingDate, "filing-date", "", "filing date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("jurisdiction")
	return cmd
}

func caseShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				c, err := e.Repo.GetCase(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	return cmd
}

func caseListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cases",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				items, err := e.Repo.ListCases(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Jurisdiction", "Application", "Status"})
				for _, c := range items {
					tw.AppendRow(table.Row{c.ID, c.Jurisdiction, c.ApplicationNumber, c.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func caseCloseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "close <id>",
		Short: "Close a case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				c, err := e.CloseCase(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	return cmd
}

func caseReopenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reopen <id>",
		Short: "Reopen a closed case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				c, err := e.ReopenCase(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	return cmd
}

func docCmd() *cobra.Command {
	d := &cobra.Command{
		Use:   "doc",
		Short: "Manage documents",
		Long:  "Submitting a document runs derivation: events, deadlines, and tasks come out the other side. Reclassifying corrects a misfiled kind and re-derives.",
	}
	d.AddCommand(docSubmitCmd())
	d.AddCommand(docListCmd())
	d.AddCommand(docReclassifyCmd())
	return d
}

func docSubmitCmd() *cobra.Command {
	var opts engine.DocumentSubmitOptions
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a document and derive",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				report, err := e.SubmitDocument(ctx, opts)
				if err != nil {
					return err
				}
				return printIngestReport(report)
			})
		},
	}
	cmd.Flags().StringVar(&opts.CaseID, "case", "", "case id")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "document kind (office-action, fee-notice, ...)")
	cmd.Flags().StringVar(&opts.Source, "source", "agent", "document source (issuing-office, agent, client, internal)")
	cmd.Flags().StringVar(&opts.ReceivedAt, "received-at", "", "receipt timestamp (RFC3339, defaults to now)")
	cmd.Flags().StringVar(&opts.OccurredAt, "occurred-at", "", "legal occurrence timestamp (defaults to received-at)")
	cmd.Flags().StringVar(&opts.ExternalRef, "external-ref", "", "office reference number")
	cmd.Flags().StringVar(&opts.ContentHandle, "content-handle", "", "pointer to stored content")
	cmd.Flags().StringVar(&opts.ApplicationNumber, "application-number", "", "application number to record on the case")
	_ = cmd.MarkFlagRequired("case")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}

func docListCmd() *cobra.Command {
	var caseID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a case's documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				items, err := e.Repo.ListDocuments(ctx, caseID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Kind", "Received", "Superseded"})
				for _, d := range items {
					tw.AppendRow(table.Row{d.ID, d.Kind, d.ReceivedAt, d.Superseded})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&caseID, "case", "", "case id")
	_ = cmd.MarkFlagRequired("case")
	return cmd
}

func docReclassifyCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "reclassify <document-id>",
		Short: "Correct a document's kind and re-derive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				report, err := e.ReclassifyDocument(ctx, engine.ReclassifyOptions{
					DocumentID: args[0],
					NewKind:    kind,
					ActorID:    viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printIngestReport(report)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "corrected document kind")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}

func eventCmd() *cobra.Command {
	ev := &cobra.Command{
		Use:   "event",
		Short: "Manage events",
		Long:  "Events are derived from documents or logged directly for case-internal facts. Cancelling an event cancels the open deadlines and tasks it produced.",
	}
	ev.AddCommand(eventLogCmd())
	ev.AddCommand(eventListCmd())
	ev.AddCommand(eventCancelCmd())
	return ev
}

func eventLogCmd() *cobra.Command {
	var opts engine.EventLogOptions
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Log a case-internal event",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				report, err := e.LogEvent(ctx, opts)
				if err != nil {
					return err
				}
				return printIngestReport(report)
			})
		},
	}
	cmd.Flags().StringVar(&opts.CaseID, "case", "", "case id")
	cmd.Flags().StringVar(&opts.Type, "type", "", "event type")
	cmd.Flags().StringVar(&opts.OccurredAt, "occurred-at", "", "occurrence timestamp (RFC3339, defaults to now)")
	cmd.Flags().StringVar(&opts.Note, "note", "", "free-form note")
	_ = cmd.MarkFlagRequired("case")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func eventListCmd() *cobra.Command {
	var caseID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a case's events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				items, err := e.Repo.ListEvents(ctx, caseID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Type", "Occurred", "Status"})
				for _, ev := range items {
					tw.AppendRow(table.Row{ev.ID, ev.Type, ev.OccurredAt, ev.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&caseID, "case", "", "case id")
	_ = cmd.MarkFlagRequired("case")
	return cmd
}

func eventCancelCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel <event-id>",
		Short: "Cancel an event and cascade",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if reason == "" {
				return fmt.Errorf("--reason required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				ev, err := e.CancelEvent(cmd.Context(), args[0], reason, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(ev)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "cancellation reason")
	return cmd
}

func deadlineCmd() *cobra.Command {
	dl := &cobra.Command{
		Use:   "deadline",
		Short: "Manage deadlines",
		Long:  "Deadlines carry the statutory due date. Satisfy one when the filing is made; extend one when the office grants more time (the old deadline is superseded, never edited).",
	}
	dl.AddCommand(deadlineListCmd())
	dl.AddCommand(deadlineSatisfyCmd())
	dl.AddCommand(deadlineExtendCmd())
	return dl
}

func deadlineListCmd() *cobra.Command {
	var caseID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a case's deadlines",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				items, err := e.Repo.ListDeadlines(ctx, caseID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Type", "Due", "Status", "Basis"})
				for _, d := range items {
					tw.AppendRow(table.Row{d.ID, d.Type, d.DueDate, d.Status, d.RuleBasis})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&caseID, "case", "", "case id")
	_ = cmd.MarkFlagRequired("case")
	return cmd
}

func deadlineSatisfyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "satisfy <deadline-id>",
		Short: "Mark a deadline satisfied",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				d, err := e.SatisfyDeadline(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	return cmd
}

func deadlineExtendCmd() *cobra.Command {
	var days int
	var occurredAt string
	cmd := &cobra.Command{
		Use:   "extend <deadline-id>",
		Short: "Apply an extension grant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				report, err := e.ApplyExtension(ctx, engine.ExtensionOptions{
					DeadlineID: args[0],
					Days:       days,
					OccurredAt: occurredAt,
					ActorID:    viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(report)
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "granted days")
	cmd.Flags().StringVar(&occurredAt, "occurred-at", "", "grant timestamp (RFC3339, defaults to now)")
	_ = cmd.MarkFlagRequired("days")
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
	}
	task.AddCommand(taskListCmd())
	task.AddCommand(taskStartCmd())
	task.AddCommand(taskDoneCmd())
	task.AddCommand(taskCancelCmd())
	return task
}

func taskListCmd() *cobra.Command {
	var f repo.TaskFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				tasks, err := e.Repo.ListTasks(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Type", "Status", "Priority", "Due", "Trigger"})
				for _, t := range tasks {
					due := ""
					if t.DueDate != nil {
						due = *t.DueDate
					}
					tw.AppendRow(table.Row{t.ID, t.Type, t.Status, t.Priority, due, t.TriggerKind + ":" + t.TriggerID()})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.CaseID, "case", "", "case id")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Type, "type", "", "task type filter")
	_ = cmd.MarkFlagRequired("case")
	return cmd
}

func taskStartCmd() *cobra.Command {
	return taskTransitionCmd("start <id>", "Start a task", (*engine.Engine).StartTask)
}

func taskDoneCmd() *cobra.Command {
	return taskTransitionCmd("done <id>", "Complete a task", (*engine.Engine).CompleteTask)
}

func taskCancelCmd() *cobra.Command {
	return taskTransitionCmd("cancel <id>", "Cancel a task", (*engine.Engine).CancelTask)
}

func taskTransitionCmd(use, short string, op func(*engine.Engine, context.Context, string, string) (domain.Task, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				t, err := op(e, ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Case audit log",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var caseID string
	var n int
	var cursor int64
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail a case's log",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				entries, err := e.Repo.ListLog(ctx, caseID, n, cursor)
				if err != nil {
					return err
				}
				return printJSONOrTable(entries)
			})
		},
	}
	cmd.Flags().StringVar(&caseID, "case", "", "case id")
	cmd.Flags().IntVar(&n, "n", 20, "number of entries")
	cmd.Flags().Int64Var(&cursor, "cursor", 0, "return entries older than this log id")
	_ = cmd.MarkFlagRequired("case")
	return cmd
}

func catalogCmd() *cobra.Command {
	cat := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the rule catalog",
		Long:  "The catalog is the rulebook (stored in DB): document-to-event mappings, deadline specs, task templates, and per-jurisdiction calendars. Import from YAML to change it.",
	}
	cat.AddCommand(catalogShowCmd())
	cat.AddCommand(catalogImportCmd())
	cat.AddCommand(catalogValidateCmd())
	return cat
}

func catalogShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the active catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				if viper.GetBool("json") {
					return printJSON(e.Catalog)
				}
				out, err := e.Catalog.ToYAML()
				if err != nil {
					return err
				}
				fmt.Print(string(out))
				return nil
			})
		},
	}
	return cmd
}

func catalogImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a catalog version from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(filePath)
			if err != nil {
				return err
			}
			cat, err := rules.FromYAML(data)
			if err != nil {
				return err
			}
			if err := cat.Validate(); err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				importedAt := time.Now().UTC().Format(time.RFC3339)
				if err := e.Repo.SaveCatalog(ctx, cat.Version, string(data), importedAt); err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"version": cat.Version, "imported_at": importedAt})
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML catalog")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func catalogValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the active catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				return e.Catalog.Validate()
			})
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("catalog OK")
			return nil
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				handler, err := server.New(server.Config{Engine: e, BasePath: basePath})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving Docketline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, *engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	cat, err := resolveCatalog(ctx, r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cat, calendar.NewBusiness(cat))
	return fn(ctx, e)
}

// resolveCatalog prefers the catalog imported into the workspace DB and falls
// back to the built-in one.
func resolveCatalog(ctx context.Context, r repo.Repo) (*rules.Catalog, error) {
	raw, err := r.ActiveCatalogYAML(ctx)
	if errors.Is(err, repo.ErrNotFound) {
		return rules.Default(), nil
	}
	if err != nil {
		return nil, err
	}
	return rules.FromYAML([]byte(raw))
}

func printIngestReport(report engine.IngestReport) error {
	if viper.GetBool("json") {
		return printJSON(report)
	}
	if report.Document.ID != "" {
		fmt.Printf("Document: %s (%s)\n", report.Document.ID, report.Document.Kind)
	}
	for _, ev := range report.Events {
		marker := "+"
		if ev.AlreadyExisted {
			marker = "="
		}
		fmt.Printf("%s event %s %s @ %s\n", marker, ev.Event.ID, ev.Event.Type, ev.Event.OccurredAt)
	}
	for _, s := range report.Skipped {
		fmt.Printf("~ skipped: %s (%s)\n", s.Reason, s.Detail)
	}
	for _, d := range report.Deadlines {
		fmt.Printf("+ deadline %s %s due %s\n", d.ID, d.Type, d.DueDate)
	}
	for _, f := range report.DeadlineFailures {
		fmt.Printf("! deadline %s failed: %s (%s)\n", f.DeadlineType, f.Reason, f.Detail)
	}
	for _, t := range report.Tasks {
		due := "no due date"
		if t.DueDate != nil {
			due = "due " + *t.DueDate
		}
		fmt.Printf("+ task %s %s (%s, %s)\n", t.ID, t.Type, t.Priority, due)
	}
	return nil
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
