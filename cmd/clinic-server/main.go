package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinic/clinic/internal/config"
	"github.com/clinic/clinic/internal/domain/documents"
	"github.com/clinic/clinic/internal/domain/identity"
	"github.com/clinic/clinic/internal/domain/inbox"
	"github.com/clinic/clinic/internal/domain/scheduling"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/blobstore"
	"github.com/clinic/clinic/internal/platform/cache"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/middleware"
	"github.com/clinic/clinic/internal/platform/notification"
	"github.com/clinic/clinic/internal/platform/outbox"
	"github.com/clinic/clinic/internal/platform/validate"
	"github.com/clinic/clinic/migrations"
)

// defaultBodyLimit applies to every non-multipart request.
const defaultBodyLimit = 1 << 20

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "clinic-server",
		Short: "Clinic appointment booking API",
	}
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(seedCmd())
	root.AddCommand(tokenCmd())
	return root
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// migrationsFS returns the embedded schema unless dir points elsewhere.
func migrationsFS(dir string) fs.FS {
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
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, migrationsFS(dir)).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrationsFS(dir)).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printStatus(cmd.OutOrStdout(), statuses)
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(statusCmd)

	return cmd
}

func printStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	for _, s := range statuses {
		status, appliedAt := "pending", ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

// withIdentity opens a pool and hands an identity service to fn.
func withIdentity(fn func(ctx context.Context, svc *identity.Service) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, identity.NewService(identity.NewUserRepoPG(pool), newLogger(cfg.Env)))
}

// readSeedFile accepts either a single user object or an array of them.
func readSeedFile(r io.Reader) ([]identity.SeedUser, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var users []identity.SeedUser
	if err := json.Unmarshal(raw, &users); err == nil {
		return users, nil
	}
	var one identity.SeedUser
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, fmt.Errorf("seed file must hold a user object or an array of users: %w", err)
	}
	return []identity.SeedUser{one}, nil
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create initial users",
	}

	adminCmd := &cobra.Command{
		Use:   "admin",
		Short: "Import users from a JSON file, skipping existing emails",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open seed file: %w", err)
			}
			defer f.Close()
			users, err := readSeedFile(f)
			if err != nil {
				return err
			}
			return withIdentity(func(ctx context.Context, svc *identity.Service) error {
				res, err := svc.ImportUsers(ctx, users)
				if err != nil {
					return err
				}
				for _, email := range res.Created {
					fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", email)
				}
				for _, email := range res.Skipped {
					fmt.Fprintf(cmd.OutOrStdout(), "skipped %s (already exists)\n", email)
				}
				return nil
			})
		},
	}
	adminCmd.Flags().String("file", "admin.json", "JSON file with the users to import")
	cmd.AddCommand(adminCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "doctor",
		Short: "Ensure the test doctor account exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIdentity(func(ctx context.Context, svc *identity.Service) error {
				u, created, err := svc.EnsureDoctor(ctx, identity.DefaultTestDoctor)
				if err != nil {
					return err
				}
				verb := "updated"
				if created {
					verb = "created"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s doctor %s (%s)\n", verb, u.Email, u.ID)
				return nil
			})
		},
	})
	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign an access token for a local user",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")
			role, _ := cmd.Flags().GetString("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			if userID == "" {
				return fmt.Errorf("--user is required")
			}
			if !identity.ValidRole(role) {
				return fmt.Errorf("unknown role %q", role)
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			tok, err := auth.IssueToken([]byte(cfg.AuthSigningKey), cfg.AuthIssuer, userID, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().String("user", "", "User id (UUID)")
	cmd.Flags().String("role", auth.RoleAdmin, "admin, doctor or patient")
	cmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	return cmd
}

func jwtConfig(cfg *config.Config) auth.JWTConfig {
	return auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		JWKSURL:    cfg.AuthJWKSURL,
		SigningKey: []byte(cfg.AuthSigningKey),
	}
}

// identityMiddleware picks the dev impersonation layer or token
// verification. Tokens are optional at this level; RequireRole gates each
// protected group.
func identityMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	if cfg.IsDev() {
		return auth.DevAuthMiddleware(jwtConfig(cfg))
	}
	return auth.OptionalJWT(jwtConfig(cfg))
}

func rateLimitConfig(cfg *config.Config) middleware.RateLimitConfig {
	rl := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rl.RequestsPerSecond <= 0 {
		rl = middleware.DefaultRateLimitConfig()
	}
	return rl
}

func smsCapability(cfg *config.Config) notification.SMSCapability {
	if !cfg.SMSConfigured() {
		return notification.SMSCapability{}
	}
	return notification.SMSCapability{
		Sender: notification.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFrom),
	}
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	loc, _ := cfg.Location()

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Availability cache is optional.
	var availability cache.Availability = cache.Noop{}
	var checks []db.Check
	if cfg.RedisURL != "" {
		client, err := cache.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, availability cache disabled")
		} else {
			defer client.Close()
			redisCache := cache.NewRedisAvailability(client, cfg.AvailabilityCacheTTL, logger)
			availability = redisCache
			checks = append(checks, db.Check{Name: "redis", Ping: redisCache.Ping})
		}
	}

	sms := smsCapability(cfg)
	if !sms.Enabled() {
		logger.Warn().Msg("twilio not configured, SMS fallback disabled")
	}

	blobs, err := blobstore.NewDiskStore(cfg.BlobDir, cfg.MaxUploadBytes)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open blob store")
	}

	catalog, err := scheduling.NewCatalog(cfg.BusinessSlots)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid BUSINESS_SLOTS")
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validate.New()

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.BodyLimit(defaultBodyLimit, cfg.MaxUploadBytes+defaultBodyLimit))

	api := e.Group("/api", identityMiddleware(cfg), middleware.RateLimit(rateLimitConfig(cfg)))

	// Outbox
	outboxRepo := outbox.NewRepoPG(pool)
	dispatcher := outbox.NewDispatcher(outboxRepo, logger)
	outbox.NewHandler(dispatcher).RegisterRoutes(api.Group("/admin"))

	// Inbox
	inboxSvc := inbox.NewService(inbox.NewNotificationRepoPG(pool), inbox.NewCallbackRepoPG(pool), logger)
	inbox.NewHandler(inboxSvc).RegisterRoutes(api)

	// Scheduling
	schedSvc := scheduling.NewService(
		scheduling.NewAppointmentRepoPG(pool),
		scheduling.NewPeopleRepoPG(pool),
		scheduling.NewNotificationWriterPG(pool),
		db.NewTransactor(pool),
		catalog,
		scheduling.NewValidator(time.Now, loc),
		scheduling.Options{
			Outbox:                outboxRepo,
			Dispatcher:            dispatcher,
			Cache:                 availability,
			SMS:                   sms,
			ReleaseCancelledSlots: cfg.ReleaseCancelledSlots,
			Logger:                logger,
		},
	)
	schedSvc.RegisterSideEffects(dispatcher, inboxSvc)
	scheduling.NewHandler(schedSvc).RegisterRoutes(api)

	// Identity
	identitySvc := identity.NewService(identity.NewUserRepoPG(pool), logger)
	identity.NewHandler(identitySvc).RegisterRoutes(api)

	// Patient files
	docSvc := documents.NewService(documents.NewFileRepoPG(pool), blobs, logger)
	documents.NewHandler(docSvc).RegisterRoutes(api)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(pool, checks...))

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
