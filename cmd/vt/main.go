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

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"veritrace/internal/analysis"
	"veritrace/internal/app"
	"veritrace/internal/config"
	"veritrace/internal/db"
	"veritrace/internal/domain"
	"veritrace/internal/engine"
	"veritrace/internal/migrate"
	"veritrace/internal/repo"
	"veritrace/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "vt",
	Short: "Veritrace CLI",
	Long: `Veritrace manages computer system validation artifacts with full traceability.
Core concepts:
- Workspace: the .veritrace directory holding the database; config lives in veritrace.yml or the DB.
- Project: the validated system owning all artifacts.
- Requirements (URS): what the system must do; risk and ambiguity are derived from the text at creation.
- Functional/design specs: how requirements are met; created under approved parents.
- Test cases and executions: objective evidence; every execution is immutable and cycle-numbered.
- Deviations: failed or blocked executions raise deviations that walk Open -> Investigating -> CAPA Assigned -> CAPA Verified -> Closed.
- Change requests: impact analysis derives affected artifacts and whether revalidation is needed.
- Reports: traceability matrix, consistency check, and the validation summary with a release decision.
- Audit trail: every mutation is recorded; view with 'vt audit tail'.`,
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
	viper.SetEnvPrefix("VERITRACE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("project", "", "project id (overrides config default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(requirementCmd())
	rootCmd.AddCommand(specCmd())
	rootCmd.AddCommand(designCmd())
	rootCmd.AddCommand(testcaseCmd())
	rootCmd.AddCommand(executionCmd())
	rootCmd.AddCommand(deviationCmd())
	rootCmd.AddCommand(changeCmd())
	rootCmd.AddCommand(traceCmd())
	rootCmd.AddCommand(consistencyCmd())
	rootCmd.AddCommand(summaryCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectConfigCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var id, name, systemType, desc string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create project",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			e := engine.New(conn, nil)
			p, err := e.CreateProject(cmd.Context(), id, name, systemType, desc, viper.GetString("actor-id"))
			if err != nil {
				return err
			}
			return printJSONOrTable(p)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "project id (optional)")
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&systemType, "system-type", "GxP", "system type (GxP or Non-GxP)")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func projectListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListProjects(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func projectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.Repo.GetProject(ctx, e.Config.Project.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func projectConfigCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage project config"}
	cfg.AddCommand(projectConfigShowCmd())
	cfg.AddCommand(projectConfigInitCmd())
	cfg.AddCommand(projectConfigImportCmd())
	return cfg
}

func projectConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show active config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
	return cmd
}

func projectConfigInitCmd() *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default veritrace.yml to the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if projectID == "" {
				projectID = "my-system"
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(projectID)), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&projectID, "id", "", "project id for the template")
	return cmd
}

func projectConfigImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import project config from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromFile(filePath)
			if err != nil {
				return err
			}
			projectID := cfg.Project.ID
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if projectID == "" {
					projectID = e.Config.Project.ID
				}
				if err := e.Repo.UpsertProjectConfig(ctx, projectID, cfg); err != nil {
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

func requirementCmd() *cobra.Command {
	req := &cobra.Command{
		Use:   "requirement",
		Short: "Manage requirements",
		Long:  "Requirements (URS) carry a derived risk profile and ambiguity score. They flow Draft -> Under Review -> Approved, and Approved requirements can only become Obsolete.",
	}
	req.AddCommand(requirementCreateCmd())
	req.AddCommand(requirementListCmd())
	req.AddCommand(requirementShowCmd())
	req.AddCommand(requirementApproveCmd())
	req.AddCommand(requirementStatusCmd())
	req.AddCommand(requirementRiskCmd())
	req.AddCommand(requirementAmbiguityCmd())
	req.AddCommand(requirementSuggestSpecCmd())
	return req
}

func requirementCreateCmd() *cobra.Command {
	var opts engine.RequirementCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a requirement",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if opts.ProjectID == "" {
					opts.ProjectID = e.Config.Project.ID
				}
				q, err := e.CreateRequirement(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(q)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "requirement id (optional, deterministic UUID if omitted)")
	cmd.Flags().StringVar(&opts.ProjectID, "project", "", "project id")
	cmd.Flags().StringVar(&opts.Category, "category", "Functional", "category")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.AcceptanceCriteria, "acceptance-criteria", "", "acceptance criteria")
	cmd.Flags().BoolVar(&opts.GxPImpact, "gxp-impact", false, "GxP impact flag")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func requirementListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List requirements",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListRequirements(ctx, e.Config.Project.ID)
				if err != nil {
					return err
				}
				if status != "" {
					filtered := items[:0]
					for _, q := range items {
						if q.Status == status {
							filtered = append(filtered, q)
						}
					}
					items = filtered
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Risk", "GxP", "Ambiguity", "Status"})
				for _, q := range items {
					ambiguity := ""
					if q.AmbiguityScore != nil {
						ambiguity = fmt.Sprintf("%.2f", *q.AmbiguityScore)
					}
					tw.AppendRow(table.Row{q.ID, q.Title, q.OverallRisk, q.GxPImpact, ambiguity, q.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

func requirementShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a requirement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				q, err := e.Repo.GetRequirement(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(q)
			})
		},
	}
	return cmd
}

func requirementApproveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve a requirement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				q, err := e.ApproveRequirement(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(q)
			})
		},
	}
	return cmd
}

func requirementStatusCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "set-status <id>",
		Short: "Update requirement status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				q, err := e.SetRequirementStatus(ctx, args[0], status, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(q)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "new status")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func requirementRiskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "risk <id>",
		Short: "Re-assess requirement risk from its text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				_, risk, err := e.ApplyRiskAssessment(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(risk)
			})
		},
	}
	return cmd
}

func requirementAmbiguityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ambiguity <id>",
		Short: "Analyze requirement ambiguity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				q, err := e.Repo.GetRequirement(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(analysis.DetectAmbiguity(q))
			})
		},
	}
	return cmd
}

func requirementSuggestSpecCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "suggest-spec <id>",
		Short: "Suggest a functional spec draft for a requirement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				q, err := e.Repo.GetRequirement(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(analysis.SuggestSpec(q))
			})
		},
	}
	return cmd
}

func specCmd() *cobra.Command {
	sp := &cobra.Command{
		Use:   "spec",
		Short: "Manage functional specs",
		Long:  "Functional specs live under approved requirements and must themselves be approved before designs and test cases hang off them.",
	}
	sp.AddCommand(specCreateCmd())
	sp.AddCommand(specListCmd())
	sp.AddCommand(specShowCmd())
	sp.AddCommand(specApproveCmd())
	sp.AddCommand(specSuggestTestsCmd())
	return sp
}

func specCreateCmd() *cobra.Command {
	var opts engine.SpecCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a functional spec",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				fs, err := e.CreateFunctionalSpec(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(fs)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "spec id (optional)")
	cmd.Flags().StringVar(&opts.RequirementID, "requirement", "", "parent requirement id")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.Approach, "approach", "", "implementation approach")
	_ = cmd.MarkFlagRequired("requirement")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func specListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List functional specs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListFunctionalSpecs(ctx, e.Config.Project.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func specShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a functional spec",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				fs, err := e.Repo.GetFunctionalSpec(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(fs)
			})
		},
	}
	return cmd
}

func specApproveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve a functional spec",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				fs, err := e.ApproveFunctionalSpec(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(fs)
			})
		},
	}
	return cmd
}

func specSuggestTestsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "suggest-tests <id>",
		Short: "Suggest test cases for a spec",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				fs, err := e.Repo.GetFunctionalSpec(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(analysis.SuggestTestCases(fs))
			})
		},
	}
	return cmd
}

func designCmd() *cobra.Command {
	d := &cobra.Command{Use: "design", Short: "Manage design specs"}
	d.AddCommand(designCreateCmd())
	d.AddCommand(designListCmd())
	return d
}

func designCreateCmd() *cobra.Command {
	var opts engine.DesignCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a design spec",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ds, err := e.CreateDesignSpec(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(ds)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "design id (optional)")
	cmd.Flags().StringVar(&opts.FunctionalSpecID, "spec", "", "parent functional spec id")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	_ = cmd.MarkFlagRequired("spec")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func designListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List design specs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListDesignSpecs(ctx, e.Config.Project.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func testcaseCmd() *cobra.Command {
	tc := &cobra.Command{Use: "testcase", Short: "Manage test cases"}
	tc.AddCommand(testcaseCreateCmd())
	tc.AddCommand(testcaseListCmd())
	tc.AddCommand(testcaseShowCmd())
	return tc
}

func testcaseCreateCmd() *cobra.Command {
	var opts engine.TestCaseCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a test case",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tc, err := e.CreateTestCase(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(tc)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "test case id (optional)")
	cmd.Flags().StringVar(&opts.FunctionalSpecID, "spec", "", "parent functional spec id")
	cmd.Flags().StringVar(&opts.TestType, "type", "Functional", "test type")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.Steps, "steps", "", "test steps")
	cmd.Flags().StringVar(&opts.ExpectedResult, "expected", "", "expected result")
	cmd.Flags().StringVar(&opts.Priority, "priority", "Medium", "priority")
	_ = cmd.MarkFlagRequired("spec")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func testcaseListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List test cases",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListTestCases(ctx, e.Config.Project.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func testcaseShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a test case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tc, err := e.Repo.GetTestCase(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(tc)
			})
		},
	}
	return cmd
}

func executionCmd() *cobra.Command {
	ex := &cobra.Command{
		Use:   "execution",
		Short: "Record and list test executions",
		Long:  "Executions are immutable evidence. Each run of a test case gets the next cycle number; fixing a failure means a new execution, never an edit.",
	}
	ex.AddCommand(executionRecordCmd())
	ex.AddCommand(executionListCmd())
	return ex
}

func executionRecordCmd() *cobra.Command {
	var opts engine.ExecutionRecordOptions
	cmd := &cobra.Command{
		Use:   "record <test-case-id>",
		Short: "Record a test execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.TestCaseID = args[0]
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ex, err := e.RecordExecution(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(ex)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "execution id (optional)")
	cmd.Flags().StringVar(&opts.Result, "result", "", "result (Not Executed, Pass, Fail, Blocked)")
	cmd.Flags().StringVar(&opts.ActualResult, "actual", "", "actual result observed")
	cmd.Flags().StringVar(&opts.Environment, "environment", "", "test environment")
	_ = cmd.MarkFlagRequired("result")
	return cmd
}

func executionListCmd() *cobra.Command {
	var testCaseID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List test executions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListExecutions(ctx, e.Config.Project.ID)
				if err != nil {
					return err
				}
				if testCaseID != "" {
					filtered := items[:0]
					for _, ex := range items {
						if ex.TestCaseID == testCaseID {
							filtered = append(filtered, ex)
						}
					}
					items = filtered
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&testCaseID, "test-case", "", "test case filter")
	return cmd
}

func deviationCmd() *cobra.Command {
	dev := &cobra.Command{
		Use:   "deviation",
		Short: "Manage deviations",
		Long:  "Deviations attach to failed or blocked executions and walk Open -> Investigating -> CAPA Assigned -> CAPA Verified -> Closed. No shortcuts.",
	}
	dev.AddCommand(deviationCreateCmd())
	dev.AddCommand(deviationListCmd())
	dev.AddCommand(deviationShowCmd())
	dev.AddCommand(deviationInvestigateCmd())
	dev.AddCommand(deviationCAPACmd())
	dev.AddCommand(deviationVerifyCmd())
	dev.AddCommand(deviationCloseCmd())
	dev.AddCommand(deviationSuggestCmd())
	return dev
}

func deviationCreateCmd() *cobra.Command {
	var opts engine.DeviationCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Open a deviation against an execution",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.CreateDeviation(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "deviation id (optional)")
	cmd.Flags().StringVar(&opts.TestExecutionID, "execution", "", "failed or blocked execution id")
	cmd.Flags().StringVar(&opts.Severity, "severity", "Medium", "severity")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	_ = cmd.MarkFlagRequired("execution")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func deviationListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List deviations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListDeviations(ctx, e.Config.Project.ID)
				if err != nil {
					return err
				}
				if status != "" {
					filtered := items[:0]
					for _, d := range items {
						if d.Status == status {
							filtered = append(filtered, d)
						}
					}
					items = filtered
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

func deviationShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a deviation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.Repo.GetDeviation(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	return cmd
}

func deviationInvestigateCmd() *cobra.Command {
	var rootCause, category string
	cmd := &cobra.Command{
		Use:   "investigate <id>",
		Short: "Record deviation root cause",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.InvestigateDeviation(ctx, args[0], rootCause, category, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&rootCause, "root-cause", "", "root cause text")
	cmd.Flags().StringVar(&category, "category", "", "root cause category (Design, Process, Human Error)")
	_ = cmd.MarkFlagRequired("root-cause")
	return cmd
}

func deviationCAPACmd() *cobra.Command {
	var corrective, preventive, assignee string
	cmd := &cobra.Command{
		Use:   "capa <id>",
		Short: "Assign corrective and preventive actions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.AssignCAPA(ctx, args[0], corrective, preventive, assignee, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&corrective, "corrective", "", "corrective action")
	cmd.Flags().StringVar(&preventive, "preventive", "", "preventive action")
	cmd.Flags().StringVar(&assignee, "assign", "", "assignee id")
	_ = cmd.MarkFlagRequired("corrective")
	return cmd
}

func deviationVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <id>",
		Short: "Verify CAPA effectiveness",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.VerifyCAPA(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	return cmd
}

func deviationCloseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "close <id>",
		Short: "Close a deviation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.CloseDeviation(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	return cmd
}

func deviationSuggestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "suggest-root-cause <id>",
		Short: "Suggest root cause and CAPA for a deviation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.Repo.GetDeviation(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(analysis.SuggestRootCause(d))
			})
		},
	}
	return cmd
}

func changeCmd() *cobra.Command {
	ch := &cobra.Command{
		Use:   "change",
		Short: "Manage change requests",
		Long:  "Change requests flow Requested -> Impact Analysis -> Approved -> Implementing -> Completed. Impact analysis derives affected artifacts from the change description.",
	}
	ch.AddCommand(changeCreateCmd())
	ch.AddCommand(changeListCmd())
	ch.AddCommand(changeAnalyzeCmd())
	ch.AddCommand(changeApproveCmd())
	ch.AddCommand(changeStatusCmd())
	return ch
}

func changeCreateCmd() *cobra.Command {
	var opts engine.ChangeCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a change request",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if opts.ProjectID == "" {
					opts.ProjectID = e.Config.Project.ID
				}
				c, err := e.CreateChangeRequest(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "change id (optional)")
	cmd.Flags().StringVar(&opts.ProjectID, "project", "", "project id")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "change description")
	cmd.Flags().StringVar(&opts.ChangeType, "type", "Enhancement", "change type")
	cmd.Flags().StringVar(&opts.Priority, "priority", "Medium", "priority")
	cmd.Flags().StringVar(&opts.Justification, "justification", "", "justification")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func changeListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List change requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListChanges(ctx, e.Config.Project.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func changeAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <id>",
		Short: "Analyze change impact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				_, impact, err := e.AnalyzeChange(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(impact)
			})
		},
	}
	return cmd
}

func changeApproveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve a change request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.ApproveChange(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	return cmd
}

func changeStatusCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "set-status <id>",
		Short: "Update change status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.SetChangeStatus(ctx, args[0], status, viper.GetString("actor-id"))
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

func traceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the traceability matrix",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				snap, err := e.Repo.LoadSnapshot(ctx, e.Config.Project.ID)
				if err != nil {
					return err
				}
				rows := analysis.BuildTraceability(snap)
				if viper.GetBool("json") {
					return printJSON(rows)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"URS", "FS", "TC", "Result", "Deviation", "Status"})
				for _, row := range rows {
					tw.AppendRow(table.Row{row.RequirementID, row.SpecID, row.TestCaseID, row.ExecutionResult, row.DeviationID, row.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func consistencyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consistency",
		Short: "Check cross-artifact consistency",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				snap, err := e.Repo.LoadSnapshot(ctx, e.Config.Project.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(analysis.CheckConsistency(e.Config.Project.ID, snap))
			})
		},
	}
	return cmd
}

func summaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Generate the validation summary report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.Repo.GetProject(ctx, e.Config.Project.ID)
				if err != nil {
					return err
				}
				snap, err := e.Repo.LoadSnapshot(ctx, e.Config.Project.ID)
				if err != nil {
					return err
				}
				summary := analysis.BuildSummary(p, e.Config.Validation.Regulations, snap)
				summary.GeneratedAt = time.Now().UTC().Format(time.RFC3339)
				summary.GeneratedBy = viper.GetString("actor-id")
				return printJSONOrTable(summary)
			})
		},
	}
	return cmd
}

func auditCmd() *cobra.Command {
	a := &cobra.Command{
		Use:   "audit",
		Short: "Audit trail",
		Long:  "The audit trail records who did what and when, for every mutation. It is append-only.",
	}
	a.AddCommand(auditTailCmd())
	return a
}

func auditTailCmd() *cobra.Command {
	var f repo.AuditFilters
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail audit entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if f.ProjectID == "" {
					f.ProjectID = e.Config.Project.ID
				}
				entries, err := e.Repo.ListAudit(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"TS", "Actor", "Action", "Entity", "ID"})
				for _, entry := range entries {
					tw.AppendRow(table.Row{entry.TS, entry.ActorID, entry.Action, entry.EntityKind, entry.EntityID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&f.Limit, "n", 20, "number of entries")
	cmd.Flags().StringVar(&f.Action, "action", "", "action filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind filter")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id filter")
	cmd.Flags().StringVar(&f.ActorID, "actor", "", "actor filter")
	return cmd
}

func apikeyCmd() *cobra.Command {
	k := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	k.AddCommand(apikeyCreateCmd())
	k.AddCommand(apikeyRevokeCmd())
	return k
}

func apikeyCreateCmd() *cobra.Command {
	var actorID, role, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (raw key shown once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				rawKey := uuid.NewString()
				k := domain.APIKey{
					ID:        uuid.NewString(),
					ActorID:   actorID,
					Role:      role,
					Name:      name,
					KeyHash:   repo.HashAPIKey(rawKey),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := r.InsertAPIKey(ctx, k); err != nil {
					return err
				}
				return printJSONOrTable(map[string]string{
					"id":       k.ID,
					"actor_id": k.ActorID,
					"role":     k.Role,
					"key":      rawKey,
				})
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "actor id the key acts as")
	cmd.Flags().StringVar(&role, "role", "", "RBAC role for the key")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	_ = cmd.MarkFlagRequired("actor")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func apikeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
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
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			_, cfg, err := app.ResolveProjectAndConfig(cmd.Context(), workspace, viper.GetString("project"), viper.GetString("actor-id"), r)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("VERITRACE_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("VERITRACE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Veritrace API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
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
	_, cfg, err := app.ResolveProjectAndConfig(ctx, workspace, viper.GetString("project"), viper.GetString("actor-id"), r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
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
	r := repo.Repo{DB: conn}
	return fn(ctx, r)
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
