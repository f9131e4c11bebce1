// visitctl is the operator tool for the field visit bot: it applies the
// embedded schema migrations and answers "would this chat user be allowed to
// record visits?" without going through a chat platform.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"field-visit-bot/internal/config"
	"field-visit-bot/internal/identity"
	"field-visit-bot/internal/logging"
	"field-visit-bot/internal/policy"
	"field-visit-bot/internal/repo"
	"field-visit-bot/migrations"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printUsage(stdout)
		return nil
	}

	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch args[0] {
	case "migrate":
		return runMigrate(ctx, args[1:], stdout)
	case "resolve":
		return runResolve(ctx, args[1:], stdout)
	default:
		printUsage(os.Stderr)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `visitctl: field visit bot operator tool

Usage:
  visitctl migrate                 apply embedded migrations to the identity store
  visitctl resolve --chat-id N     show the account and access decision for a chat user

Configuration is read from the environment (and .env), as for the bot.
`)
}

func runMigrate(ctx context.Context, args []string, stdout io.Writer) error {
	flagSet := pflag.NewFlagSet("migrate", pflag.ContinueOnError)
	logLevel := flagSet.String("log-level", "warn", "log level")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	repository, err := openRepository(ctx, *logLevel)
	if err != nil {
		return err
	}
	defer repository.Close()

	if err := repository.RunMigrations(ctx, migrations.Files); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	fmt.Fprintln(stdout, "migrations applied")
	return nil
}

func runResolve(ctx context.Context, args []string, stdout io.Writer) error {
	flagSet := pflag.NewFlagSet("resolve", pflag.ContinueOnError)
	chatID := flagSet.Int64("chat-id", 0, "chat platform user id")
	logLevel := flagSet.String("log-level", "warn", "log level")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if *chatID == 0 {
		return errors.New("--chat-id is required")
	}

	repository, err := openRepository(ctx, *logLevel)
	if err != nil {
		return err
	}
	defer repository.Close()

	resolver := identity.NewResolver(repository, logging.NewLogger(*logLevel, "text"), nil)
	res, err := resolver.Resolve(ctx, *chatID)
	if err != nil {
		return err
	}
	printDecision(stdout, res, policy.Evaluate(res))
	return nil
}

func printDecision(w io.Writer, res identity.Resolution, d policy.Decision) {
	fmt.Fprintf(w, "chat_user_id: %d\n", res.ChatUserID)
	if res.Found {
		active := "unset"
		if res.Account.Active != nil {
			active = fmt.Sprintf("%t", *res.Account.Active)
		}
		fmt.Fprintf(w, "mapping_id:   %d\n", res.Mapping.ID)
		fmt.Fprintf(w, "account_id:   %d\n", res.Account.ID)
		fmt.Fprintf(w, "name:         %s\n", res.Account.DisplayName)
		fmt.Fprintf(w, "role:         %s\n", res.Account.Role)
		fmt.Fprintf(w, "active:       %s\n", active)
	} else {
		fmt.Fprintln(w, "mapping:      none")
	}
	fmt.Fprintf(w, "allowed:      %t\n", d.Allowed)
	fmt.Fprintf(w, "reason:       %s\n", d.Reason)
}

func openRepository(ctx context.Context, logLevel string) (repo.Repository, error) {
	cfg, err := config.LoadStore()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := logging.NewLogger(logLevel, cfg.LogFormat)
	repository, err := repo.Open(ctx, repo.Options{
		Driver:      cfg.IdentityDriver,
		DatabaseURL: cfg.DatabaseURL,
		Schema:      cfg.DBSchema,
		SQLitePath:  cfg.SQLitePath,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init repository: %w", err)
	}
	return repository, nil
}
