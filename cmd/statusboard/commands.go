package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bissquit/statusboard/internal/config"
	"github.com/bissquit/statusboard/internal/domain"
	"github.com/bissquit/statusboard/internal/identity"
	"github.com/bissquit/statusboard/internal/organizations"
	orgpostgres "github.com/bissquit/statusboard/internal/organizations/postgres"
	"github.com/bissquit/statusboard/internal/pkg/postgres"
	"github.com/bissquit/statusboard/internal/version"
	"github.com/spf13/cobra"
)

var migrationsPath string

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down]",
	Short:     "Apply or roll back database migrations",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(postgres.MigrateUp), string(postgres.MigrateDown)},
	RunE: func(_ *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		return postgres.Migrate("file://"+migrationsPath, cfg.Database.URL, postgres.MigrateDirection(args[0]))
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("statusboard %s (commit %s, built %s)\n", version.Version, version.GitCommit, version.BuildDate)
	},
}

var (
	tokenUser string
	tokenOrg  string
	tokenRole string
	tokenTTL  time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an access token signed with the configured secret",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		ttl := cfg.JWT.AccessTokenDuration
		if tokenTTL > 0 {
			ttl = tokenTTL
		}
		auth := identity.NewAuthenticator(identity.Config{
			SecretKey:           cfg.JWT.SecretKey,
			Issuer:              cfg.JWT.Issuer,
			AccessTokenDuration: ttl,
		})

		token, err := auth.Issue(domain.Actor{
			UserID:         tokenUser,
			OrganizationID: tokenOrg,
			Role:           domain.Role(tokenRole),
		})
		if err != nil {
			return err
		}
		cmd.Println(token)
		return nil
	},
}

var orgCmd = &cobra.Command{
	Use:   "org",
	Short: "Manage organizations",
}

var (
	orgName string
	orgSlug string
)

var orgCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an organization in the configured database",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Database.ConnectTimeout)
		defer cancel()

		db, err := postgres.Connect(ctx, postgres.Config{
			URL:             cfg.Database.URL,
			MaxOpenConns:    1,
			ConnectAttempts: cfg.Database.ConnectAttempts,
			ApplicationName: "statusboard-cli",
		})
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()

		slugs := organizations.NewSlugCache(time.Minute)
		svc := organizations.NewService(orgpostgres.NewRepository(db), slugs)

		org, err := svc.Create(ctx, organizations.CreateOrganizationInput{Name: orgName, Slug: orgSlug})
		if err != nil {
			return err
		}
		cmd.Printf("%s\t%s\n", org.ID, org.Slug)
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrationsPath, "path", "migrations", "directory containing migration files")

	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "user id (subject)")
	tokenCmd.Flags().StringVar(&tokenOrg, "org", "", "organization id")
	tokenCmd.Flags().StringVar(&tokenRole, "role", string(domain.RoleAdmin), "role: member or admin")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime, defaults to jwt.access_token_duration")
	_ = tokenCmd.MarkFlagRequired("user")
	_ = tokenCmd.MarkFlagRequired("org")

	orgCreateCmd.Flags().StringVar(&orgName, "name", "", "display name")
	orgCreateCmd.Flags().StringVar(&orgSlug, "slug", "", "public slug, derived from the name when empty")
	_ = orgCreateCmd.MarkFlagRequired("name")
	orgCmd.AddCommand(orgCreateCmd)
}
