package main

import (
	"context"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/borsibaar/ledger/internal/api"
	"github.com/borsibaar/ledger/internal/cache"
	"github.com/borsibaar/ledger/internal/db"
	"github.com/borsibaar/ledger/internal/ledger"
	"github.com/borsibaar/ledger/internal/model"
	"github.com/borsibaar/ledger/internal/stats"
	"github.com/borsibaar/ledger/internal/store"
)

// levelRouter is a slog.Handler that routes INFO/WARN to stdout and ERROR+ to stderr.
type levelRouter struct {
	stdout slog.Handler
	stderr slog.Handler
}

func (lr *levelRouter) Enabled(_ context.Context, level slog.Level) bool {
	return level >= slog.LevelInfo
}

func (lr *levelRouter) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelError {
		return lr.stderr.Handle(ctx, r)
	}
	return lr.stdout.Handle(ctx, r)
}

func (lr *levelRouter) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelRouter{
		stdout: lr.stdout.WithAttrs(attrs),
		stderr: lr.stderr.WithAttrs(attrs),
	}
}

func (lr *levelRouter) WithGroup(name string) slog.Handler {
	return &levelRouter{
		stdout: lr.stdout.WithGroup(name),
		stderr: lr.stderr.WithGroup(name),
	}
}

// setupLogger configures structured logging. INFO/WARN go to stdout, ERROR goes
// to stderr. If logPath is non-empty, all levels are also written to that file.
// Returns a cleanup function that closes the log file (if opened).
func setupLogger(logPath string) (func(), error) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}

	var cleanup func()

	stdoutW := io.Writer(os.Stdout)
	stderrW := io.Writer(os.Stderr)

	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		cleanup = func() { f.Close() }
		stdoutW = io.MultiWriter(os.Stdout, f)
		stderrW = io.MultiWriter(os.Stderr, f)
	}

	handler := &levelRouter{
		stdout: slog.NewTextHandler(stdoutW, opts),
		stderr: slog.NewTextHandler(stderrW, opts),
	}
	slog.SetDefault(slog.New(handler))
	return cleanup, nil
}

type config struct {
	dsn           string
	driver        string
	addr          string
	adminEmail    string
	orgID         int64
	logPath       string
	redisAddr     string
	priceIncrease string
	maxRetries    int
	saleMode      string
}

func parseFlags(args []string) (*config, error) {
	fs := flag.NewFlagSet("ledger", flag.ContinueOnError)
	cfg := &config{}

	fs.StringVar(&cfg.dsn, "db", "ledger.sqlite3", "")
	fs.StringVar(&cfg.dsn, "d", "ledger.sqlite3", "")

	fs.StringVar(&cfg.driver, "driver", "sqlite", "")

	fs.StringVar(&cfg.addr, "addr", ":8080", "")
	fs.StringVar(&cfg.addr, "a", ":8080", "")

	fs.StringVar(&cfg.adminEmail, "user", "admin@localhost", "")
	fs.StringVar(&cfg.adminEmail, "u", "admin@localhost", "")

	fs.Int64Var(&cfg.orgID, "org", 1, "")

	fs.StringVar(&cfg.logPath, "log", "", "")
	fs.StringVar(&cfg.logPath, "l", "", "")

	fs.StringVar(&cfg.redisAddr, "redis", "", "")
	fs.StringVar(&cfg.priceIncrease, "price-increase", "0.50", "")
	fs.IntVar(&cfg.maxRetries, "max-retries", 5, "")
	fs.StringVar(&cfg.saleMode, "sale-mode", string(ledger.SalePerItem), "")

	fs.Usage = func() {
		fmt.Fprint(os.Stdout, `Usage: ledger [flags]

Flags:
  -d, -db <dsn>             database path or DSN (default: ledger.sqlite3)
      -driver <name>        sqlite, mysql or postgres (default: sqlite)
  -a, -addr <host:port>     listen address (default: :8080)
  -u, -user <email>         admin email on first run (default: admin@localhost)
      -org <id>             organization of the first-run admin (default: 1)
  -l, -log <path>           log file path (default: no file, stdout/stderr only)
      -redis <host:port>    mirror stock and prices to Redis and guard sale keys
      -price-increase <n>   price increase after each sale line (default: 0.50)
      -max-retries <n>      attempts per write on concurrent modification (default: 5)
      -sale-mode <mode>     per-item or atomic (default: per-item)
  -h, -help                 show this help and exit
`)
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		fs.Usage()
		return nil, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}
	return cfg, nil
}

// ledgerConfig validates the engine flags.
func (c *config) ledgerConfig() (ledger.Config, error) {
	increase, err := decimal.NewFromString(c.priceIncrease)
	if err != nil || !increase.IsPositive() {
		return ledger.Config{}, fmt.Errorf("-price-increase must be a positive number, got %q", c.priceIncrease)
	}
	if c.maxRetries < 1 {
		return ledger.Config{}, fmt.Errorf("-max-retries must be at least 1, got %d", c.maxRetries)
	}
	mode, err := ledger.ParseSaleMode(c.saleMode)
	if err != nil {
		return ledger.Config{}, err
	}
	return ledger.Config{PriceIncrease: increase, MaxRetries: c.maxRetries, SaleMode: mode}, nil
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Set up structured logging: INFO/WARN → stdout, ERROR → stderr.
	// Optionally also write to a log file.
	closeLog, err := setupLogger(cfg.logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if closeLog != nil {
		defer closeLog()
	}

	if err := run(cfg); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config) error {
	engineCfg, err := cfg.ledgerConfig()
	if err != nil {
		return err
	}

	dialect, err := db.ParseDialect(cfg.driver)
	if err != nil {
		return err
	}

	database, err := db.Open(dialect, cfg.dsn)
	if err != nil {
		return err
	}
	defer database.Close()

	// Ensure schema exists (idempotent).
	if err := db.EnsureSchema(database, dialect); err != nil {
		return fmt.Errorf("ensuring database schema: %w", err)
	}
	slog.Info("database ready", "driver", dialect)

	st := store.New(database, dialect)
	ctx := context.Background()

	if err := bootstrapAdmin(ctx, st, cfg.orgID, cfg.adminEmail); err != nil {
		return err
	}

	// Load JWT secret from database (auto-generated on first run).
	jwtSecret, err := st.GetJWTSecret(ctx)
	if err != nil {
		return fmt.Errorf("getting JWT secret: %w", err)
	}

	var opts []ledger.Option
	if cfg.redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.redisAddr})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		adapter := cache.NewRedisAdapter(client)
		opts = append(opts, ledger.WithObserver(adapter), ledger.WithIdempotencyGuard(adapter))
		slog.Info("redis mirror enabled", "addr", cfg.redisAddr)
	}

	svc := ledger.NewService(st, st, engineCfg, opts...)
	router := api.NewRouter(st, svc, stats.New(st), jwtSecret)

	server := &http.Server{
		Addr:              cfg.addr,
		Handler:           api.LoggingMiddleware(router),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(sigCtx)
	g.Go(func() error {
		slog.Info("server started", "addr", cfg.addr,
			"sale_mode", engineCfg.SaleMode, "price_increase", engineCfg.PriceIncrease.String())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("server stopped, closing database")
	return nil
}

// bootstrapAdmin creates an admin for the organization if it has no users yet
// and prints the generated password once.
func bootstrapAdmin(ctx context.Context, st *store.Store, orgID int64, email string) error {
	users, err := st.ListUsers(ctx, orgID)
	if err != nil {
		return err
	}
	if len(users) > 0 {
		return nil
	}

	password, err := generatePassword(16)
	if err != nil {
		return fmt.Errorf("generating password: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	if _, err := st.CreateUser(ctx, orgID, "Admin", email, string(hash), model.RoleAdmin); err != nil {
		return fmt.Errorf("creating admin user: %w", err)
	}

	printInitResult(orgID, email, password)
	return nil
}

// printInitResult prints the first-run admin credentials to stdout.
func printInitResult(orgID int64, email, password string) {
	fmt.Printf("Admin account created for organization %d:\n", orgID)
	fmt.Printf("  Email:    %s\n", email)
	fmt.Printf("  Password: %s\n", password)
	fmt.Println()
	fmt.Println("Save this password, it cannot be recovered.")
	fmt.Println("The admin can change it after logging in.")
	fmt.Println()
}

// generatePassword creates a random password of the given length.
func generatePassword(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%&*"
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}
