package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rhu/rhu/internal/config"
	"github.com/rhu/rhu/internal/domain/certificate"
	"github.com/rhu/rhu/internal/domain/consultation"
	"github.com/rhu/rhu/internal/domain/dashboard"
	"github.com/rhu/rhu/internal/domain/identity"
	"github.com/rhu/rhu/internal/domain/referral"
	"github.com/rhu/rhu/internal/domain/sequence"
	"github.com/rhu/rhu/internal/domain/workflow"
	"github.com/rhu/rhu/internal/platform/audit"
	"github.com/rhu/rhu/internal/platform/auth"
	"github.com/rhu/rhu/internal/platform/db"
	"github.com/rhu/rhu/internal/platform/httpx"
	"github.com/rhu/rhu/internal/platform/middleware"
	"github.com/rhu/rhu/internal/platform/notification"
	"github.com/rhu/rhu/internal/platform/telemetry"
	"github.com/rhu/rhu/migrations"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:           "rhu-server",
		Short:         "RHU admin API server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(notificationsCmd())
	rootCmd.AddCommand(certificatesCmd())
	rootCmd.AddCommand(staffCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger(env, level string) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if env == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return logger.Level(lvl)
}

// setup loads configuration and opens the pool shared by every subcommand.
func setup(ctx context.Context) (*config.Config, *pgxpool.Pool, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, zerolog.Nop(), err
	}
	logger := newLogger(cfg.Env, cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		return nil, nil, logger, fmt.Errorf("invalid config: %w", err)
	}
	pool, err := db.NewPool(ctx, db.PoolOptions{
		URL:             cfg.DatabaseURL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		ApplicationName: "rhu-server",
		TimeZone:        cfg.ClinicTimezone,
	})
	if err != nil {
		return nil, nil, logger, err
	}
	return cfg, pool, logger, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the RHU API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func migrationFiles(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, pool, logger, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			dir, _ := cmd.Flags().GetString("dir")
			if dir == "" {
				dir = cfg.MigrationsDir
			}
			count, err := db.NewMigrator(pool, migrationFiles(dir)).Up(cmd.Context())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			logger.Info().Int("applied", count).Msg("migrations complete")
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to a migrations directory (default: embedded)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, pool, _, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			dir, _ := cmd.Flags().GetString("dir")
			if dir == "" {
				dir = cfg.MigrationsDir
			}
			statuses, err := db.NewMigrator(pool, migrationFiles(dir)).Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Fprintln(out, "---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Path to a migrations directory (default: embedded)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func notificationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "Notification outbox tools",
	}

	relayCmd := &cobra.Command{
		Use:   "relay",
		Short: "Publish unrelayed notifications to Kafka",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, pool, logger, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()
			if len(cfg.KafkaBrokers) == 0 {
				return errors.New("KAFKA_BROKERS is required for the relay")
			}
			batch, _ := cmd.Flags().GetInt("batch")

			writer := notification.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaNotificationTopic)
			defer writer.Close()
			relay := notification.NewRelay(notification.NewPGStore(pool), db.NewTxRunner(pool), writer, nil, logger)

			total, err := drain(cmd.Context(), relay, batch)
			logger.Info().Int("relayed", total).Str("topic", cfg.KafkaNotificationTopic).Msg("relay finished")
			return err
		},
	}
	relayCmd.Flags().Int("batch", 500, "Rows claimed per transaction")
	cmd.AddCommand(relayCmd)
	return cmd
}

type relayRunner interface {
	Run(ctx context.Context, batch int) (int, error)
}

// drain runs relay passes until one comes back short.
func drain(ctx context.Context, r relayRunner, batch int) (int, error) {
	if batch <= 0 {
		batch = 500
	}
	total := 0
	for {
		n, err := r.Run(ctx, batch)
		total += n
		if err != nil || n < batch {
			return total, err
		}
	}
}

func certificatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "certificates",
		Short: "Medical certificate maintenance",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "expire",
		Short: "Expire certificates whose validity has ended",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, pool, logger, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			a, err := newApp(cfg, pool, logger, nil)
			if err != nil {
				return err
			}
			rep, err := a.certificates.ExpireOverdue(cmd.Context(), 0, time.Now())
			if rep != nil {
				logger.Info().
					Int("checked", rep.Checked).
					Int("expired", rep.Expired).
					Int("failed", rep.Failed).
					Msg("certificate expiry pass")
				for _, e := range rep.Errors {
					logger.Warn().Msg(e)
				}
			}
			return err
		},
	})
	return cmd
}

func staffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "staff",
		Short: "Manage RHU staff accounts",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create an RHU staff login",
		RunE: func(cmd *cobra.Command, args []string) error {
			var in identity.CreateStaffInput
			in.Username, _ = cmd.Flags().GetString("username")
			in.Password, _ = cmd.Flags().GetString("password")
			in.FirstName, _ = cmd.Flags().GetString("first-name")
			in.LastName, _ = cmd.Flags().GetString("last-name")
			in.Position, _ = cmd.Flags().GetString("position")
			in.LicenseNumber, _ = cmd.Flags().GetString("license")
			if in.Password == "" {
				in.Password = os.Getenv("RHU_STAFF_PASSWORD")
			}

			cfg, pool, logger, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			a, err := newApp(cfg, pool, logger, nil)
			if err != nil {
				return err
			}
			st, err := a.identity.CreateStaff(cmd.Context(), in)
			if err != nil {
				return err
			}
			logger.Info().Int64("staff_id", st.ID).Str("username", in.Username).Msg("staff account created")
			return nil
		},
	}
	createCmd.Flags().String("username", "", "Login username")
	createCmd.Flags().String("password", "", "Password (or RHU_STAFF_PASSWORD)")
	createCmd.Flags().String("first-name", "", "First name")
	createCmd.Flags().String("last-name", "", "Last name")
	createCmd.Flags().String("position", identity.PositionDoctor, "Position, e.g. doctor or nurse")
	createCmd.Flags().String("license", "", "Professional license number")
	_ = createCmd.MarkFlagRequired("username")
	_ = createCmd.MarkFlagRequired("first-name")
	_ = createCmd.MarkFlagRequired("last-name")

	cmd.AddCommand(createCmd)
	return cmd
}

// app holds the services shared by the HTTP server and the CLI.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	pool    *pgxpool.Pool
	metrics *telemetry.Metrics
	loc     *time.Location
	tokens  *auth.TokenIssuer

	tx       db.TxRunner
	recorder *audit.Recorder
	seq      *sequence.Generator

	identity      *identity.Service
	consultations *consultation.Service
	certificates  *certificate.Service
	referrals     *referral.Service
	dashboard     *dashboard.Service
}

func newApp(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger, metrics *telemetry.Metrics) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, pool: pool, metrics: metrics, loc: loc}

	if cfg.JWTSigningKey != "" {
		key, err := cfg.SigningKey()
		if err != nil {
			return nil, err
		}
		a.tokens = auth.NewTokenIssuer(key, cfg.JWTIssuer, cfg.TokenTTL)
	}

	a.tx = db.NewTxRunner(pool)
	a.recorder = audit.NewRecorder(audit.NewPGStore(pool))
	notifier := notification.NewNotifier(notification.NewPGStore(pool), notification.NewTemplateEngine())
	a.seq = sequence.NewGenerator(sequence.NewPGStore(pool), loc, optionalSeqObserver(metrics))
	tracker := workflow.NewTracker(a.tx, a.recorder, notifier, optionalTransitionObserver(metrics))

	a.identity = identity.NewService(identity.Repos{
		Patients:  identity.NewPatientRepo(pool),
		Users:     identity.NewUserRepo(pool),
		Staff:     identity.NewStaffRepo(pool),
		Barangays: identity.NewBarangayRepo(pool),
	}, a.tx, a.seq, a.recorder, notifier, loc, cfg.Department)

	a.consultations = consultation.NewService(consultation.Repos{
		Consultations: consultation.NewRepo(pool),
		Prescriptions: consultation.NewPrescriptionRepo(pool),
		Medicines:     consultation.NewMedicineRepo(pool),
	}, consultation.Deps{
		Patients: a.identity,
		Staff:    a.identity,
		Tx:       a.tx,
		Seq:      a.seq,
		Tracker:  tracker,
		Audit:    a.recorder,
		Notifier: notifier,
		Location: loc,
	})

	a.certificates = certificate.NewService(certificate.NewRepo(pool), certificate.Deps{
		Patients: a.identity,
		Staff:    a.identity,
		Tx:       a.tx,
		Seq:      a.seq,
		Tracker:  tracker,
		Audit:    a.recorder,
		Notifier: notifier,
		Location: loc,
	})

	a.referrals = referral.NewService(referral.NewRepo(pool), referral.Deps{
		Patients:      a.identity,
		Staff:         a.identity,
		Consultations: a.consultations,
		Tx:            a.tx,
		Seq:           a.seq,
		Tracker:       tracker,
		Audit:         a.recorder,
		Notifier:      notifier,
	})

	a.dashboard = dashboard.NewService(dashboard.NewRepo(pool), a.recorder, loc)
	return a, nil
}

// A nil *telemetry.Metrics is safe to call, but it must not reach an
// interface as a typed nil where callers compare against nil.
func optionalSeqObserver(m *telemetry.Metrics) sequence.Observer {
	if m == nil {
		return nil
	}
	return m
}

func optionalTransitionObserver(m *telemetry.Metrics) workflow.Observer {
	if m == nil {
		return nil
	}
	return m
}

func (a *app) devIdentity() auth.Identity {
	return auth.Identity{
		UserID:     a.cfg.DevUserID,
		StaffID:    a.cfg.DevStaffID,
		Username:   "dev",
		Name:       "Development Staff",
		Role:       auth.RoleAdmin,
		Department: a.cfg.Department,
	}
}

// router builds the echo instance with the global middleware chain and
// every route.
func (a *app) router() *echo.Echo {
	cfg, logger := a.cfg, a.logger

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = httpx.ErrorHandler(logger)

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(!cfg.IsDev()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(echomw.BodyLimit(cfg.BodyLimit))
	e.Use(a.metrics.Middleware())

	if cfg.ResolvedAuthMode() == "development" {
		logger.Warn().Int64("staff_id", cfg.DevStaffID).Msg("development auth: unauthenticated requests act as the dev staff identity")
		e.Use(auth.DevAuthMiddleware(a.devIdentity(), a.tokens, auth.AuthSkipper))
	} else {
		e.Use(auth.JWTMiddleware(a.tokens, auth.AuthSkipper))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	latest, err := db.LatestVersion(migrationFiles(cfg.MigrationsDir))
	if err != nil {
		logger.Warn().Err(err).Msg("read migrations for health check")
	}
	e.GET("/health/db", db.HealthHandler(a.pool, latest))
	if a.metrics != nil {
		e.GET("/metrics", a.metrics.Handler())
	}

	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))
	apiV1.Use(middleware.RequestTimeout(30 * time.Second))
	apiV1.Use(middleware.Audit(logger))

	staff := apiV1.Group("", auth.RequireStaff(cfg.Department))

	if a.tokens != nil {
		auth.NewLoginHandler(auth.NewPGCredentialStore(a.pool), a.tokens, a.recorder, a.tx, cfg.Department).
			RegisterRoutes(apiV1, staff)
	}

	identity.NewHandler(a.identity).RegisterRoutes(staff)
	consultation.NewHandler(a.consultations).RegisterRoutes(staff)
	certificate.NewHandler(a.certificates).RegisterRoutes(staff)
	referral.NewHandler(a.referrals).RegisterRoutes(staff)
	dashboard.NewHandler(a.dashboard).RegisterRoutes(staff)
	audit.NewHandler(a.recorder, a.loc).RegisterRoutes(staff)
	sequence.NewHandler(a.seq).RegisterRoutes(staff)

	return e
}

func runServer(ctx context.Context) error {
	cfg, pool, logger, err := setup(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("startup failed")
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	metrics := telemetry.New()
	metrics.RegisterPool(pool)

	a, err := newApp(cfg, pool, logger, metrics)
	if err != nil {
		return err
	}
	e := a.router()

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting RHU API server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
