package main

import (
	"fmt"
	"os"
	"strings"

	"awscqrs/config"
	"awscqrs/internal/repository"
	"awscqrs/pkg/database"
	"awscqrs/pkg/logger"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the Postgres event log and contact projection",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(upCommand(), downCommand(), statusCommand(), seedCommand())
	return root
}

// withDB loads config, connects and hands the pool to fn.
func withDB(fn func(cfg *config.Config, db *gorm.DB) error) error {
	cfg := config.LoadConfig()
	logger.SetGlobalLogger(logger.New(cfg.AppMode))

	db, err := database.Connect(cfg)
	if err != nil {
		return err
	}
	defer database.Close(db)
	return fn(cfg, db)
}

func upCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Create the event log, feed cursors and contacts tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(func(_ *config.Config, db *gorm.DB) error {
				if err := repository.InitSchema(db); err != nil {
					return err
				}
				cmd.Println("migrations applied")
				return nil
			})
		},
	}
}

func downCommand() *cobra.Command {
	var confirm bool
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Drop every table created by up",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirm {
				return fmt.Errorf("refusing to drop tables without --yes")
			}
			return withDB(func(_ *config.Config, db *gorm.DB) error {
				if err := repository.DropSchema(db); err != nil {
					return err
				}
				cmd.Println("schema dropped")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&confirm, "yes", false, "confirm dropping all data")
	return cmd
}

func statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show connection status and table sizes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(func(cfg *config.Config, db *gorm.DB) error {
				if err := database.Ping(cmd.Context(), db); err != nil {
					return fmt.Errorf("database connection failed: %w", err)
				}
				cmd.Printf("connected to %s:%s/%s\n", cfg.DBHost, cfg.DBPort, cfg.DBName)
				for _, table := range []string{"events", "feed_cursors", "contacts"} {
					if !database.TableExists(db, table) {
						cmd.Printf("  %-14s missing\n", table)
						continue
					}
					count, err := database.TableCount(db, table)
					if err != nil {
						return err
					}
					cmd.Printf("  %-14s %d rows\n", table, count)
				}
				return nil
			})
		},
	}
}

func seedCommand() *cobra.Command {
	seed := database.DefaultSeedConfig()
	var owners string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Append sample note events for a few owners",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if owners != "" {
				seed.Owners = strings.Split(owners, ",")
			}
			return withDB(func(_ *config.Config, db *gorm.DB) error {
				sqlDB, err := database.SQL(db)
				if err != nil {
					return err
				}
				result, err := database.Seed(cmd.Context(), repository.NewEventRepository(sqlDB), seed)
				if err != nil {
					return err
				}
				cmd.Printf("seeded %d events\n", len(result.Events))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&owners, "owners", "", "comma separated owners (default alice,bob)")
	cmd.Flags().IntVar(&seed.NotesPerOwner, "notes", seed.NotesPerOwner, "notes per owner")
	return cmd
}
