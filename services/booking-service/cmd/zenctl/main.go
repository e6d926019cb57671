// Command zenctl administers a Clínica Zen deployment: schema migrations,
// catalog seeding and development session tokens.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/clinicazen/platform/libs/auth"
	"github.com/clinicazen/platform/libs/config"
	"github.com/clinicazen/platform/libs/db"
	"github.com/clinicazen/platform/migrations"
	"github.com/clinicazen/platform/services/booking-service/internal/storage"
	"github.com/spf13/cobra"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var dbURL string

	cmd := &cobra.Command{
		Use:           "zenctl",
		Short:         "Clínica Zen administration tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&dbURL, "database-url", config.String("DATABASE_URL", ""), "Postgres connection string")

	cmd.AddCommand(migrateCmd(&dbURL), seedCmd(&dbURL), tokenCmd())
	return cmd
}

func requireURL(dbURL string) error {
	if dbURL == "" {
		return fmt.Errorf("--database-url or DATABASE_URL is required")
	}
	return nil
}

func migrateCmd(dbURL *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back schema migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireURL(*dbURL); err != nil {
				return err
			}
			conn, err := migrations.Open(*dbURL)
			if err != nil {
				return err
			}
			defer conn.Close()
			n, err := migrations.Up(conn)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migrations\n", n)
			return nil
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the latest migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireURL(*dbURL); err != nil {
				return err
			}
			if steps < 1 {
				return fmt.Errorf("--steps must be at least 1")
			}
			conn, err := migrations.Open(*dbURL)
			if err != nil {
				return err
			}
			defer conn.Close()
			n, err := migrations.Down(conn, steps)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migrations\n", n)
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "Number of migrations to roll back")
	cmd.AddCommand(down)

	return cmd
}

func seedCmd(dbURL *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load therapies, users and weekly availability from a YAML catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireURL(*dbURL); err != nil {
				return err
			}
			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()
			catalog, err := LoadCatalog(f)
			if err != nil {
				return fmt.Errorf("%s: %w", file, err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()
			pool, err := db.Open(ctx, *dbURL, db.Options{MaxConns: 2})
			if err != nil {
				return err
			}
			defer pool.Close()

			res, err := Seed(ctx, storage.NewStore(pool), catalog)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "therapies: %d created, %d existing\nusers: %d created, %d existing\n",
				res.TherapiesCreated, res.TherapiesSkipped, res.UsersCreated, res.UsersSkipped)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "catalog.yaml", "Catalog file")
	return cmd
}

func tokenCmd() *cobra.Command {
	var (
		p      auth.Principal
		role   string
		secret string
		issuer string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a session token for local testing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p.Role = auth.Role(role)
			token, exp, err := issueToken(secret, issuer, ttl, p)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", exp.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&p.UserID, "user", "", "User id (uuid)")
	cmd.Flags().StringVar(&p.Email, "email", "", "Email claim")
	cmd.Flags().StringVar(&p.Name, "name", "", "Display name claim")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleClient), "CLIENT, THERAPIST or ADMIN")
	cmd.Flags().StringVar(&secret, "secret", config.String("JWT_SECRET", ""), "Signing secret")
	cmd.Flags().StringVar(&issuer, "issuer", config.String("SERVICE_NAME", "booking-service"), "Issuer; must match the booking service name")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	return cmd
}

func issueToken(secret, issuer string, ttl time.Duration, p auth.Principal) (string, time.Time, error) {
	if secret == "" {
		return "", time.Time{}, fmt.Errorf("--secret or JWT_SECRET is required")
	}
	if p.UserID == "" {
		return "", time.Time{}, fmt.Errorf("--user is required")
	}
	if !p.Role.Valid() {
		return "", time.Time{}, fmt.Errorf("unknown role %q", p.Role)
	}
	return auth.NewTokens(secret, issuer, ttl).Issue(p)
}
