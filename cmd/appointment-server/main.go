package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rohanchauhan123/appointment-system/internal/config"
	"github.com/rohanchauhan123/appointment-system/internal/domain/appointment"
	"github.com/rohanchauhan123/appointment-system/internal/platform/db"
	"github.com/rohanchauhan123/appointment-system/internal/platform/sandbox"
	"github.com/rohanchauhan123/appointment-system/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "appointment-server",
		Short:        "Diagnostic center appointment API server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tenantCmd())
	rootCmd.AddCommand(seedAdminCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(seedDemoCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

// connect loads and validates the config and opens the pool.
func connect(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, poolConfig(cfg, nil))
	if err != nil {
		return nil, nil, err
	}
	return cfg, pool, nil
}

func poolConfig(cfg *config.Config, logger *zerolog.Logger) db.PoolConfig {
	return db.PoolConfig{
		URL:              cfg.DatabaseURL,
		MaxConns:         cfg.DBMaxConns,
		MinConns:         cfg.DBMinConns,
		MaxConnIdleTime:  5 * time.Minute,
		StatementTimeout: cfg.DBStatementTimeout,
		Logger:           logger,
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations to a tenant schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, _ := cmd.Flags().GetString("tenant")
			ctx := cmd.Context()
			cfg, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			if tenant == "" {
				tenant = cfg.DefaultTenant
			}
			if !db.ValidTenantID(tenant) {
				return fmt.Errorf("invalid tenant id %q", tenant)
			}

			schema := db.SchemaName(tenant)
			fmt.Fprintf(cmd.OutOrStdout(), "Running migrations on schema: %s\n", schema)
			if _, err := pool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)); err != nil {
				return fmt.Errorf("create schema %s: %w", schema, err)
			}
			count, err := db.NewMigrator(pool, migrations.FS).Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("tenant", "", "Tenant identifier (defaults to DEFAULT_TENANT)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status of a tenant schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, _ := cmd.Flags().GetString("tenant")
			ctx := cmd.Context()
			cfg, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			if tenant == "" {
				tenant = cfg.DefaultTenant
			}

			schema := db.SchemaName(tenant)
			statuses, err := db.NewMigrator(pool, migrations.FS).Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Migration status for schema: %s\n", schema)
			fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Fprintln(out, "---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.Modified {
						status = "modified"
					}
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("tenant", "", "Tenant identifier (defaults to DEFAULT_TENANT)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a tenant schema and apply all migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			ctx := cmd.Context()
			_, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "Creating tenant schema: %s\n", db.SchemaName(name))
			if err := db.CreateTenantSchema(ctx, pool, name, migrations.FS); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Tenant created. Seed an admin with: appointment-server seed-admin --tenant %s\n", name)
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Tenant identifier (alphanumeric)")

	cmd.AddCommand(createCmd)
	return cmd
}

func seedAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed-admin",
		Short: "Create the initial admin account if it does not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, _ := cmd.Flags().GetString("tenant")
			ctx := cmd.Context()
			cfg, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			if tenant == "" {
				tenant = cfg.DefaultTenant
			}

			logger := newLogger(cfg.Env)
			svc := newServices(pool, cfg, logger, nil, nil)
			return db.WithTenantConn(ctx, pool, tenant, func(ctx context.Context) error {
				u, created, err := svc.users.EnsureAdmin(ctx, cfg.SeedAdminName, cfg.SeedAdminEmail, cfg.SeedAdminPassword)
				if err != nil {
					return err
				}
				if created {
					fmt.Fprintf(cmd.OutOrStdout(), "Admin %s created in tenant %s.\n", u.Email, tenant)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Admin %s already exists in tenant %s.\n", u.Email, tenant)
				}
				return nil
			})
		},
	}
	cmd.Flags().String("tenant", "", "Tenant identifier (defaults to DEFAULT_TENANT)")
	return cmd
}

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Run report jobs",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Generate and mail today's report once",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, _ := cmd.Flags().GetString("tenant")
			ctx := cmd.Context()
			cfg, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			if tenant == "" {
				tenant = cfg.DefaultTenant
			}

			logger := newLogger(cfg.Env)
			store, err := newBlobStore(ctx, cfg)
			if err != nil {
				return err
			}
			svc := newServices(pool, cfg, logger, nil, nil)
			reporter, err := newReporter(cfg, svc.appointments, newMailer(cfg, logger), store, nil, logger)
			if err != nil {
				return err
			}

			runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
			defer cancel()
			return db.WithTenantConn(runCtx, pool, tenant, func(ctx context.Context) error {
				out, err := reporter.RunDailyReport(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Report for tenant %s: %d appointment(s), sent=%t\n", tenant, out.Count, out.Sent)
				return nil
			})
		},
	}
	runCmd.Flags().String("tenant", "", "Tenant identifier (defaults to DEFAULT_TENANT)")
	cmd.AddCommand(runCmd)
	return cmd
}

func seedDemoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed-demo",
		Short: "Create synthetic appointments owned by the seed admin",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, _ := cmd.Flags().GetString("tenant")
			count, _ := cmd.Flags().GetInt("count")
			seed, _ := cmd.Flags().GetInt64("seed")
			if count <= 0 {
				return fmt.Errorf("--count must be positive")
			}
			ctx := cmd.Context()
			cfg, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			if tenant == "" {
				tenant = cfg.DefaultTenant
			}

			logger := newLogger(cfg.Env)
			svc := newServices(pool, cfg, logger, nil, nil)
			gen := sandbox.NewDataGenerator(seed, time.Now())
			return db.WithTenantConn(ctx, pool, tenant, func(ctx context.Context) error {
				admin, _, err := svc.users.EnsureAdmin(ctx, cfg.SeedAdminName, cfg.SeedAdminEmail, cfg.SeedAdminPassword)
				if err != nil {
					return err
				}
				for i, s := range gen.Samples(count) {
					if _, err := svc.appointments.Create(ctx, admin.Actor(), demoInput(s)); err != nil {
						return fmt.Errorf("appointment %d: %w", i+1, err)
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created %d demo appointment(s) in tenant %s.\n", count, tenant)
				return nil
			})
		},
	}
	cmd.Flags().String("tenant", "", "Tenant identifier (defaults to DEFAULT_TENANT)")
	cmd.Flags().Int("count", 25, "Number of appointments to create")
	cmd.Flags().Int64("seed", 0, "Random seed; 0 picks one from the clock")
	return cmd
}

func demoInput(s sandbox.Sample) appointment.CreateInput {
	amount, advance := s.Amount, s.AdvanceAmount
	return appointment.CreateInput{
		PatientName:     s.PatientName,
		TestName:        s.TestName,
		BranchLocation:  s.BranchLocation,
		AppointmentDate: s.AppointmentDate.Format(time.RFC3339),
		Amount:          &amount,
		AdvanceAmount:   &advance,
		ProDetails:      s.ProDetails,
		ContactNumber:   s.ContactNumber,
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
