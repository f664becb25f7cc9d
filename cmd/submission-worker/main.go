// Command submission-worker processes queued ClinVar submission activities
// outside of the API process.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"reev-api/config"
	"reev-api/models"
	"reev-api/services"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:   "submission-worker",
		Short: "Process ClinVar submission activities",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if err := godotenv.Load(envFile); err != nil {
				log.Printf("No %s file found, using environment variables", envFile)
			}
		},
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	cmd.AddCommand(serveCmd(), processCmd(), sweepCmd(), migrateCmd())
	return cmd
}

// setup loads settings, logging and the database. The returned func closes
// the log file.
func setup() (*config.Settings, func(), error) {
	settings, err := config.LoadSettings()
	if err != nil {
		return nil, nil, err
	}
	logFile, _ := config.InitLogging(settings.LogDir)
	config.InitDB(settings)
	return settings, func() {
		if logFile != nil {
			_ = logFile.Close()
		}
	}, nil
}

func serveCmd() *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the worker pool until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, closeLog, err := setup()
			if err != nil {
				return err
			}
			defer closeLog()
			if concurrency > 0 {
				settings.WorkerConcurrency = concurrency
			}

			runtime, err := services.NewSubmissionRuntime(config.DB, settings)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			go runtime.RunSweeper(ctx)
			return runtime.Worker.Run(ctx)
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "number of worker loops (default SUBMISSION_WORKERS)")
	return cmd
}

func processCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process <activity-id>",
		Short: "Run a single activity immediately, bypassing the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, closeLog, err := setup()
			if err != nil {
				return err
			}
			defer closeLog()

			runtime, err := services.NewSubmissionRuntime(config.DB, settings)
			if err != nil {
				return err
			}
			if err := runtime.ProcessActivity(cmd.Context(), args[0]); err != nil {
				return err
			}

			activity, err := runtime.Store.GetActivity(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "activity %s: %s\n", activity.ID, activity.Status)
			return nil
		},
	}
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Time out threads waiting longer than SUBMISSION_TIMEOUT",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, closeLog, err := setup()
			if err != nil {
				return err
			}
			defer closeLog()

			runtime, err := services.NewSubmissionRuntime(config.DB, settings)
			if err != nil {
				return err
			}
			if !runtime.Watchdog.Enabled() {
				return fmt.Errorf("SUBMISSION_TIMEOUT is not set")
			}
			n, err := runtime.Watchdog.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d thread(s) timed out\n", n)
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the submission tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, closeLog, err := setup()
			if err != nil {
				return err
			}
			defer closeLog()
			if err := models.AutoMigrate(config.DB.WithContext(context.Background())); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			log.Println("Database schema migrated")
			return nil
		},
	}
}
