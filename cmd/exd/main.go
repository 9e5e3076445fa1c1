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

	"execdesk/internal/app"
	"execdesk/internal/config"
	"execdesk/internal/db"
	"execdesk/internal/domain"
	"execdesk/internal/engine"
	"execdesk/internal/migrate"
	"execdesk/internal/repo"
	"execdesk/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "exd",
	Short: "Execdesk CLI",
	Long: `Execdesk is a multi-tenant executive operations engine.
- Tenants: isolated organizations, each with its own config, RBAC and data.
- Metrics: observations (revenue, users, performance, growth) recorded per period,
  aggregated on demand into dashboard snapshots.
- Analyses: strategic work items, pending -> in_progress -> completed -> archived.
- Decisions: choices with listed options; approval requires a second actor.
- Crises: incidents, detected -> investigating -> responding -> resolved.
- Alerts: raised by threshold rules over snapshots or by lifecycle rules,
  deduplicated while open; first acknowledger wins.
- Reports: executive reports with sections frozen at compose time,
  draft -> review -> approved -> published.
- Event log: diary of changes, view with 'exd log tail'.`,
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
	viper.SetEnvPrefix("EXECDESK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("tenant", "", "tenant id (overrides single-tenant default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("tenant", rootCmd.PersistentFlags().Lookup("tenant"))
}

func registerCommands() {
	rootCmd.AddCommand(tenantCmd())
	rootCmd.AddCommand(departmentCmd())
	rootCmd.AddCommand(metricCmd())
	rootCmd.AddCommand(snapshotCmd())
	rootCmd.AddCommand(evaluateCmd())
	rootCmd.AddCommand(analysisCmd())
	rootCmd.AddCommand(decisionCmd())
	rootCmd.AddCommand(crisisCmd())
	rootCmd.AddCommand(alertCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(rbacCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func tenantCmd() *cobra.Command {
	t := &cobra.Command{Use: "tenant", Short: "Manage tenants"}
	t.AddCommand(tenantListCmd())
	t.AddCommand(tenantCreateCmd())
	t.AddCommand(tenantShowCmd())
	t.AddCommand(tenantStatusCmd())
	t.AddCommand(tenantConfigCmd())
	return t
}

func tenantListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tenants",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListTenants(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
}

func tenantCreateCmd() *cobra.Command {
	var id, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			e := engine.New(conn, config.Default(id))
			t, err := e.InitTenant(cmd.Context(), id, name, viper.GetString("actor-id"))
			if err != nil {
				return err
			}
			return printJSONOrTable(t)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "tenant id")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func tenantShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				t, err := e.Repo.GetTenant(ctx, tenantID)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func tenantStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show tenant status summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				t, err := e.Repo.GetTenant(ctx, tenantID)
				if err != nil {
					return err
				}
				crises, err := e.Repo.ListOpenCrises(ctx, tenantID)
				if err != nil {
					return err
				}
				alerts, err := e.Repo.ListAlerts(ctx, repo.AlertFilters{TenantID: tenantID, OpenOnly: true})
				if err != nil {
					return err
				}
				out := map[string]any{
					"tenant_id":   t.ID,
					"status":      t.Status,
					"open_crises": len(crises),
					"open_alerts": len(alerts),
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Printf("Tenant: %s (%s)\n", t.ID, t.Status)
				fmt.Printf("Open crises: %d\n", len(crises))
				fmt.Printf("Open alerts: %d\n", len(alerts))
				return nil
			})
		},
	}
}

func tenantConfigCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage tenant config"}
	cfg.AddCommand(tenantConfigShowCmd())
	cfg.AddCommand(tenantConfigImportCmd())
	cfg.AddCommand(tenantConfigValidateCmd())
	cfg.AddCommand(tenantConfigInitCmd())
	return cfg
}

func tenantConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show tenant config stored in DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
}

func tenantConfigImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import tenant config from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(filePath)
			if err != nil {
				return err
			}
			cfg, err := config.FromYAML(data)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				if cfg.Tenant.ID != "" {
					tenantID = cfg.Tenant.ID
				}
				if err := e.Repo.UpsertTenantConfig(ctx, tenantID, cfg); err != nil {
					return err
				}
				return printJSONOrTable(cfg)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func tenantConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate stored config",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				return e.Config.Validate()
			})
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func tenantConfigInitCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Print a default config YAML template",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Print(config.GenerateDefault(id))
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "acme", "tenant id for the template")
	return cmd
}

func departmentCmd() *cobra.Command {
	d := &cobra.Command{Use: "department", Short: "Manage departments"}
	d.AddCommand(departmentSetCmd())
	d.AddCommand(departmentListCmd())
	return d
}

func departmentSetCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "set <id>",
		Short: "Create or rename department",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				d, err := e.UpsertDepartment(ctx, tenantID, args[0], name, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	return cmd
}

func departmentListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List departments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				items, err := e.Repo.ListDepartments(ctx, tenantID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
}

func metricCmd() *cobra.Command {
	m := &cobra.Command{
		Use:   "metric",
		Short: "Record and list metric observations",
		Long:  "Observations carry a value for one metric type over a period. Revenue and growth are summed, users takes the last observation, performance is duration-weighted.",
	}
	m.AddCommand(metricRecordCmd())
	m.AddCommand(metricListCmd())
	return m
}

func metricRecordCmd() *cobra.Command {
	var o domain.MetricObservation
	var department, metadataJSON string
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record an observation",
		RunE: func(cmd *cobra.Command, args []string) error {
			if metadataJSON != "" {
				if err := json.Unmarshal([]byte(metadataJSON), &o.Metadata); err != nil {
					return fmt.Errorf("invalid --metadata-json: %w", err)
				}
			}
			if department != "" {
				o.DepartmentID = &department
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				o.TenantID = tenantID
				rec, err := e.RecordObservation(ctx, o, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(rec)
			})
		},
	}
	cmd.Flags().StringVar(&o.ID, "id", "", "observation id (optional)")
	cmd.Flags().StringVar(&o.Name, "name", "", "metric name")
	cmd.Flags().Float64Var(&o.Value, "value", 0, "metric value")
	cmd.Flags().StringVar(&o.Type, "type", "", "metric type (revenue, users, performance, growth)")
	cmd.Flags().StringVar(&o.PeriodStart, "period-start", "", "period start (RFC3339)")
	cmd.Flags().StringVar(&o.PeriodEnd, "period-end", "", "period end (RFC3339)")
	cmd.Flags().StringVar(&department, "department", "", "department id")
	cmd.Flags().StringVar(&metadataJSON, "metadata-json", "", "metadata JSON object")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("value")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("period-start")
	_ = cmd.MarkFlagRequired("period-end")
	return cmd
}

func metricListCmd() *cobra.Command {
	var f repo.ObservationFilters
	var department string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List observations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				f.TenantID = tenantID
				if department != "" {
					f.DepartmentID = &department
				}
				items, err := e.Repo.QueryObservations(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Type", "Name", "Value", "Period Start", "Period End", "Department"})
				for _, o := range items {
					dept := ""
					if o.DepartmentID != nil {
						dept = *o.DepartmentID
					}
					tw.AppendRow(table.Row{o.ID, o.Type, o.Name, o.Value, o.PeriodStart, o.PeriodEnd, dept})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Start, "period-start", "", "window start (RFC3339)")
	cmd.Flags().StringVar(&f.End, "period-end", "", "window end (RFC3339)")
	cmd.Flags().StringVar(&f.Type, "type", "", "metric type filter")
	cmd.Flags().StringVar(&department, "department", "", "department filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 100, "max rows")
	return cmd
}

func snapshotCmd() *cobra.Command {
	var startStr, endStr, department string
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Compute a dashboard snapshot for a period",
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := parsePeriodFlags(startStr, endStr)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				var dept *string
				if department != "" {
					dept = &department
				}
				snap, err := e.ComputeSnapshot(ctx, tenantID, start, end, dept)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(snap)
				}
				printSnapshot(snap)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&startStr, "period-start", "", "period start (RFC3339)")
	cmd.Flags().StringVar(&endStr, "period-end", "", "period end (RFC3339)")
	cmd.Flags().StringVar(&department, "department", "", "restrict to one department")
	_ = cmd.MarkFlagRequired("period-start")
	_ = cmd.MarkFlagRequired("period-end")
	return cmd
}

func evaluateCmd() *cobra.Command {
	var startStr, endStr string
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate threshold alert rules over a period",
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := parsePeriodFlags(startStr, endStr)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				snap, created, err := e.RunEvaluation(ctx, tenantID, start, end)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"snapshot": snap, "created": created})
				}
				printSnapshot(snap)
				fmt.Printf("Alerts created: %d\n", len(created))
				for _, a := range created {
					fmt.Printf("  [%s] %s (%s)\n", a.Severity, a.Title, a.AlertType)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&startStr, "period-start", "", "period start (RFC3339)")
	cmd.Flags().StringVar(&endStr, "period-end", "", "period end (RFC3339)")
	_ = cmd.MarkFlagRequired("period-start")
	_ = cmd.MarkFlagRequired("period-end")
	return cmd
}

func analysisCmd() *cobra.Command {
	a := &cobra.Command{
		Use:   "analysis",
		Short: "Manage strategic analyses",
		Long:  "Analyses flow pending -> in_progress -> completed -> archived; archive is reachable from any non-terminal status.",
	}
	a.AddCommand(analysisCreateCmd())
	a.AddCommand(analysisListCmd())
	a.AddCommand(analysisGetCmd())
	a.AddCommand(analysisStatusCmd())
	return a
}

func analysisCreateCmd() *cobra.Command {
	var opts engine.AnalysisCreateOptions
	var recommendations []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create analysis",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			opts.Recommendations = recommendations
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				opts.TenantID = tenantID
				a, err := e.CreateAnalysis(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "analysis id (optional)")
	cmd.Flags().StringVar(&opts.DepartmentID, "department", "", "department id")
	cmd.Flags().StringVar(&opts.AnalysisType, "type", "", "analysis type")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Summary, "summary", "", "summary")
	cmd.Flags().StringVar(&opts.DetailedAnalysis, "detail", "", "detailed analysis")
	cmd.Flags().StringArrayVar(&recommendations, "recommend", []string{}, "recommendation (repeatable)")
	cmd.Flags().StringVar(&opts.Priority, "priority", "", "priority (low, medium, high, critical)")
	cmd.Flags().StringVar(&opts.AssignedTo, "assigned-to", "", "assignee actor id")
	cmd.Flags().StringVar(&opts.DueDate, "due", "", "due date (RFC3339)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func analysisListCmd() *cobra.Command {
	var status string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List analyses",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				items, err := e.Repo.ListAnalyses(ctx, tenantID, status, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Priority", "Assigned"})
				for _, a := range items {
					assigned := ""
					if a.AssignedTo != nil {
						assigned = *a.AssignedTo
					}
					tw.AppendRow(table.Row{a.ID, a.Title, a.Status, a.Priority, assigned})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows")
	return cmd
}

func analysisGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				a, err := e.Repo.GetAnalysis(ctx, tenantID, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
}

func analysisStatusCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "set-status <id>",
		Short: "Transition analysis status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				a, err := e.SetAnalysisStatus(ctx, tenantID, args[0], status, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "new status")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func decisionCmd() *cobra.Command {
	d := &cobra.Command{
		Use:   "decision",
		Short: "Manage decisions",
		Long:  "Decisions list their options up front. Approval must come from a different actor than the creator; cancellation is allowed from pending or approved.",
	}
	d.AddCommand(decisionCreateCmd())
	d.AddCommand(decisionListCmd())
	d.AddCommand(decisionGetCmd())
	d.AddCommand(decisionApproveCmd())
	d.AddCommand(decisionStatusCmd())
	return d
}

func decisionCreateCmd() *cobra.Command {
	var opts engine.DecisionCreateOptions
	var optionLabels []string
	var optionsJSON string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create decision",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			if optionsJSON != "" {
				if err := json.Unmarshal([]byte(optionsJSON), &opts.Options); err != nil {
					return fmt.Errorf("invalid --options-json: %w", err)
				}
			} else {
				for _, label := range optionLabels {
					opts.Options = append(opts.Options, domain.DecisionOption{Label: label})
				}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				opts.TenantID = tenantID
				d, err := e.CreateDecision(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "decision id (optional)")
	cmd.Flags().StringVar(&opts.DepartmentID, "department", "", "department id")
	cmd.Flags().StringVar(&opts.DecisionType, "type", "", "decision type")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.Context, "context", "", "decision context")
	cmd.Flags().StringArrayVar(&optionLabels, "option", []string{}, "option label (repeatable)")
	cmd.Flags().StringVar(&optionsJSON, "options-json", "", "options as JSON array of {label, tradeoffs}")
	cmd.Flags().StringVar(&opts.ChosenOption, "chosen", "", "chosen option label (must be listed)")
	cmd.Flags().StringVar(&opts.Rationale, "rationale", "", "rationale")
	cmd.Flags().StringVar(&opts.Priority, "priority", "", "priority (low, medium, high, critical)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func decisionListCmd() *cobra.Command {
	var status string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List decisions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				items, err := e.Repo.ListDecisions(ctx, tenantID, status, limit)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows")
	return cmd
}

func decisionGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get decision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				d, err := e.Repo.GetDecision(ctx, tenantID, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
}

func decisionApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve decision (must not be the creator)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				d, err := e.ApproveDecision(ctx, tenantID, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
}

func decisionStatusCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "set-status <id>",
		Short: "Transition decision status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				d, err := e.SetDecisionStatus(ctx, tenantID, args[0], status, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "new status")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func crisisCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "crisis",
		Short: "Manage crises",
		Long:  "Crises flow detected -> investigating -> responding -> resolved. 'exd crisis resolve' is the emergency closure from any status and is idempotent.",
	}
	c.AddCommand(crisisCreateCmd())
	c.AddCommand(crisisListCmd())
	c.AddCommand(crisisGetCmd())
	c.AddCommand(crisisStatusCmd())
	c.AddCommand(crisisResolveCmd())
	return c
}

func crisisCreateCmd() *cobra.Command {
	var opts engine.CrisisCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register crisis",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				opts.TenantID = tenantID
				c, err := e.CreateCrisis(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "crisis id (optional)")
	cmd.Flags().StringVar(&opts.DepartmentID, "department", "", "department id")
	cmd.Flags().StringVar(&opts.CrisisType, "type", "", "crisis type")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.Severity, "severity", "", "severity (low, medium, high, critical)")
	cmd.Flags().StringVar(&opts.AssignedTo, "assigned-to", "", "assignee actor id")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func crisisListCmd() *cobra.Command {
	var status string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List crises",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				items, err := e.Repo.ListCrises(ctx, tenantID, status, limit)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows")
	return cmd
}

func crisisGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get crisis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				c, err := e.Repo.GetCrisis(ctx, tenantID, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
}

func crisisStatusCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "set-status <id>",
		Short: "Transition crisis status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				c, err := e.SetCrisisStatus(ctx, tenantID, args[0], status, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "new status")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func crisisResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <id>",
		Short: "Resolve crisis from any status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				c, err := e.ResolveCrisis(ctx, tenantID, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
}

func alertCmd() *cobra.Command {
	a := &cobra.Command{
		Use:   "alert",
		Short: "Manage alerts",
		Long:  "Alerts come from threshold rules (run 'exd evaluate') or lifecycle rules in config. One open alert per (type, department, tenant); ack is first-wins, resolve is idempotent.",
	}
	a.AddCommand(alertListCmd())
	a.AddCommand(alertAckCmd())
	a.AddCommand(alertResolveCmd())
	return a
}

func alertListCmd() *cobra.Command {
	var f repo.AlertFilters
	var department string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				f.TenantID = tenantID
				if department != "" {
					f.DepartmentID = &department
				}
				items, err := e.Repo.ListAlerts(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Type", "Severity", "Title", "Acked", "Resolved"})
				for _, a := range items {
					tw.AppendRow(table.Row{a.ID, a.AlertType, a.Severity, a.Title, a.IsAcknowledged, a.IsResolved})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&f.OpenOnly, "open", false, "open alerts only")
	cmd.Flags().StringVar(&f.Severity, "severity", "", "severity filter")
	cmd.Flags().StringVar(&department, "department", "", "department filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "max rows")
	return cmd
}

func alertAckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ack <id>",
		Short: "Acknowledge alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				a, err := e.AcknowledgeAlert(ctx, tenantID, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
}

func alertResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <id>",
		Short: "Resolve alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				a, err := e.ResolveAlert(ctx, tenantID, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
}

func reportCmd() *cobra.Command {
	r := &cobra.Command{
		Use:   "report",
		Short: "Manage executive reports",
		Long:  "Reports freeze their data sections at compose time and flow draft -> review -> approved -> published. Approval requires a different actor than the composer.",
	}
	r.AddCommand(reportComposeCmd())
	r.AddCommand(reportListCmd())
	r.AddCommand(reportGetCmd())
	r.AddCommand(reportSubmitCmd())
	r.AddCommand(reportApproveCmd())
	r.AddCommand(reportPublishCmd())
	return r
}

func reportComposeCmd() *cobra.Command {
	var opts engine.ReportCreateOptions
	var startStr, endStr string
	cmd := &cobra.Command{
		Use:   "compose",
		Short: "Compose a report over a period",
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := parsePeriodFlags(startStr, endStr)
			if err != nil {
				return err
			}
			opts.PeriodStart = start
			opts.PeriodEnd = end
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				opts.TenantID = tenantID
				rep, err := e.ComposeReport(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(rep)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "report id (optional)")
	cmd.Flags().StringVar(&opts.ReportType, "type", "ad_hoc", "report type (monthly, quarterly, yearly, ad_hoc)")
	cmd.Flags().StringVar(&startStr, "period-start", "", "period start (RFC3339)")
	cmd.Flags().StringVar(&endStr, "period-end", "", "period end (RFC3339)")
	cmd.Flags().StringVar(&opts.ExecutiveSummary, "summary", "", "executive summary")
	cmd.Flags().StringVar(&opts.Recommendations, "recommendations", "", "recommendations")
	_ = cmd.MarkFlagRequired("period-start")
	_ = cmd.MarkFlagRequired("period-end")
	return cmd
}

func reportListCmd() *cobra.Command {
	var status string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				items, err := e.Repo.ListReports(ctx, tenantID, status, limit)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows")
	return cmd
}

func reportGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				rep, err := e.Repo.GetReport(ctx, tenantID, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(rep)
			})
		},
	}
}

func reportSubmitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "submit <id>",
		Short: "Submit report for review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				rep, err := e.SubmitReportForReview(ctx, tenantID, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(rep)
			})
		},
	}
}

func reportApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve report (must not be the composer)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				rep, err := e.ApproveReport(ctx, tenantID, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(rep)
			})
		},
	}
}

func reportPublishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish <id>",
		Short: "Publish report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				rep, err := e.PublishReport(ctx, tenantID, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(rep)
			})
		},
	}
}

func logCmd() *cobra.Command {
	l := &cobra.Command{Use: "log", Short: "Event log"}
	l.AddCommand(logTailCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				events, err := e.Repo.LatestEvents(ctx, n, tenantID, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func rbacCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "rbac", Short: "RBAC management"}
	cmd.AddCommand(rbacWhoamiCmd())
	cmd.AddCommand(rbacGrantCmd())
	cmd.AddCommand(rbacRevokeCmd())
	return cmd
}

func rbacWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show current actor roles and permissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				who, err := e.WhoAmI(ctx, tenantID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(who)
			})
		},
	}
}

func rbacGrantCmd() *cobra.Command {
	var target, role string
	cmd := &cobra.Command{
		Use:   "grant-role",
		Short: "Grant role to actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			if target == "" || role == "" {
				return fmt.Errorf("--actor and --role required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				return e.GrantRole(ctx, tenantID, viper.GetString("actor-id"), target, role)
			})
		},
	}
	cmd.Flags().StringVar(&target, "actor", "", "actor id")
	cmd.Flags().StringVar(&role, "role", "", "role id")
	return cmd
}

func rbacRevokeCmd() *cobra.Command {
	var target, role string
	cmd := &cobra.Command{
		Use:   "revoke-role",
		Short: "Revoke role from actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			if target == "" || role == "" {
				return fmt.Errorf("--actor and --role required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				return e.RevokeRole(ctx, tenantID, viper.GetString("actor-id"), target, role)
			})
		},
	}
	cmd.Flags().StringVar(&target, "actor", "", "actor id")
	cmd.Flags().StringVar(&role, "role", "", "role id")
	return cmd
}

func apikeyCmd() *cobra.Command {
	k := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	k.AddCommand(apikeyCreateCmd())
	k.AddCommand(apikeyListCmd())
	k.AddCommand(apikeyDeleteCmd())
	return k
}

func apikeyCreateCmd() *cobra.Command {
	var name, actor string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create API key (raw key shown once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				target := actor
				if target == "" {
					target = viper.GetString("actor-id")
				}
				key, raw, err := e.CreateAPIKey(ctx, tenantID, target, name)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"id":       key.ID,
					"actor_id": key.ActorID,
					"name":     key.Name,
					"key":      raw,
				})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key name")
	cmd.Flags().StringVar(&actor, "actor", "", "actor the key authenticates as (default: you)")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				keys, err := e.Repo.ListAPIKeys(ctx, tenantID, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(keys)
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "filter by actor")
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				return e.Repo.DeleteAPIKey(ctx, tenantID, args[0])
			})
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowActorHeader bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			boot := engine.New(conn, nil)
			_, cfg, err := app.ResolveTenantAndConfig(cmd.Context(), boot, viper.GetString("tenant"), viper.GetString("actor-id"))
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{
				JWTSecret:              os.Getenv("EXECDESK_JWT_SECRET"),
				AllowLegacyActorHeader: allowActorHeader,
			}
			if authCfg.JWTSecret == "" && !allowActorHeader {
				return fmt.Errorf("EXECDESK_JWT_SECRET is required for bearer auth (or pass --allow-actor-header for local use)")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			server.StartWebhookDispatcher(cmd.Context(), e)
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Execdesk API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowActorHeader, "allow-actor-header", false, "accept unauthenticated X-Actor-Id headers (dev only)")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine, string) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	boot := engine.New(conn, nil)
	tenantID, cfg, err := app.ResolveTenantAndConfig(ctx, boot, viper.GetString("tenant"), viper.GetString("actor-id"))
	if err != nil {
		return err
	}
	return fn(ctx, engine.New(conn, cfg), tenantID)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func parsePeriodFlags(startStr, endStr string) (time.Time, time.Time, error) {
	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --period-start: %w", err)
	}
	end, err := time.Parse(time.RFC3339, endStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --period-end: %w", err)
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("--period-start must be before --period-end")
	}
	return start, end, nil
}

func printSnapshot(snap domain.DashboardSnapshot) {
	fmt.Printf("Snapshot %s .. %s\n", snap.PeriodStart, snap.PeriodEnd)
	fmt.Printf("Global: %s\n", formatMetrics(snap.Global))
	for _, d := range snap.Departments {
		fmt.Printf("  %s: %s\n", d.DepartmentID, formatMetrics(d.Metrics))
	}
}

func formatMetrics(m domain.SnapshotMetrics) string {
	fmtVal := func(v *float64) string {
		if v == nil {
			return "-"
		}
		return fmt.Sprintf("%g", *v)
	}
	return fmt.Sprintf("revenue=%g users=%s performance=%s growth=%s",
		m.Revenue, fmtVal(m.Users), fmtVal(m.Performance), fmtVal(m.Growth))
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
