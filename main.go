package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/scipunch/campusfeed/config"
	"github.com/scipunch/campusfeed/fetcher"
	"github.com/scipunch/campusfeed/logger"
	"github.com/scipunch/campusfeed/pipeline"
	"github.com/scipunch/campusfeed/state"
)

// Exit codes of the run command
const (
	exitFailure     = 1
	exitUnreachable = 2
	exitMalformed   = 3
)

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("failed to load .env with %s", err)
	}

	var cfgPath string
	root := &cobra.Command{
		Use:           "campusfeed",
		Short:         "Collect campus events, jobs or internships from an RSS feed into a CSV dataset",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", config.DefaultPath(), "path to a TOML or YAML config")

	root.AddCommand(
		runCmd(&cfgPath),
		historyCmd(&cfgPath),
		cleanCmd(&cfgPath),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		code := exitFailure
		var ee *exitError
		if errors.As(err, &ee) {
			code = ee.code
		}
		slog.Error("campusfeed failed", "error", err)
		os.Exit(code)
	}
}

// loadConfig reads the config and creates it if default is missing
func loadConfig(cfgPath string) (config.Config, error) {
	conf, err := config.Read(cfgPath)
	if errors.Is(err, os.ErrNotExist) && cfgPath == config.DefaultPath() {
		conf.ApplyEnv()
		if err := config.Write(cfgPath, config.Default()); err != nil {
			return conf, fmt.Errorf("failed to write default config with %w", err)
		}
	} else if err != nil {
		return conf, fmt.Errorf("failed to read config with %w", err)
	}

	if err := logger.Init(conf.Log.Level, conf.Log.Format); err != nil {
		return conf, fmt.Errorf("failed to initialize logger with %w", err)
	}
	return conf, nil
}

func openState(conf config.Config) (*state.Store, error) {
	if conf.StatePath == "" {
		return nil, nil
	}
	st, err := state.Open(conf.StatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open state with %w", err)
	}
	return st, nil
}

func runCmd(cfgPath *string) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch the feed once and append new rows to the dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			if err := conf.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			st, err := openState(conf)
			if err != nil {
				return err
			}
			if st != nil {
				defer st.Close()
			}

			p, err := pipeline.New(conf, st)
			if err != nil {
				return err
			}

			rep, err := p.Run(cmd.Context())
			if err != nil {
				if errors.Is(err, fetcher.ErrUnreachable) {
					return &exitError{code: exitUnreachable, err: err}
				}
				return err
			}
			if strict && rep.Outcome == pipeline.FeedMalformed {
				return &exitError{code: exitMalformed, err: fmt.Errorf("feed is malformed: %s", rep.ParseError)}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d new, %d duplicate, %d filtered (%d rows)\n",
				rep.Outcome, rep.Appended, rep.Duplicates, rep.Filtered, rep.DatasetRows)
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "exit with code 3 when the feed is malformed")
	return cmd
}

func historyCmd(cfgPath *string) *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			st, err := openState(conf)
			if err != nil {
				return err
			}
			if st == nil {
				return errors.New("state is disabled, set state_path to keep run history")
			}
			defer st.Close()

			runs, err := st.RecentRuns(cmd.Context(), n)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tOUTCOME\tFETCHED\tNEW\tDUP\tFILTERED\tRUN")
			for _, r := range runs {
				outcome := r.Outcome
				if r.Malformed && outcome != pipeline.FeedMalformed {
					outcome += " (malformed)"
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
					humanize.Time(r.StartedAt), outcome, r.Fetched, r.Appended, r.Duplicates, r.Filtered, r.ID)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&n, "number", "n", 10, "number of runs to show")
	return cmd
}

func cleanCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove run history and stored feed validators",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			st, err := openState(conf)
			if err != nil {
				return err
			}
			if st == nil {
				slog.Info("state is disabled, nothing to clean")
				return nil
			}
			defer st.Close()

			stats, err := st.Stats(cmd.Context())
			if err != nil {
				slog.Warn("failed to get state stats", "error", err)
			}
			if err := st.Clear(cmd.Context()); err != nil {
				return err
			}
			slog.Info("state cleared", "runs", stats.Runs, "validators", stats.Validators)
			return nil
		},
	}
}
