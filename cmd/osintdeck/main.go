package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pbaille/osintdeck/internal/catalog"
	"github.com/pbaille/osintdeck/internal/classifier"
	"github.com/pbaille/osintdeck/internal/config"
	"github.com/pbaille/osintdeck/internal/extractor"
	"github.com/pbaille/osintdeck/internal/fetcher"
	"github.com/pbaille/osintdeck/internal/logging"
	"github.com/pbaille/osintdeck/internal/relevance"
	"github.com/pbaille/osintdeck/internal/store"
	"github.com/pbaille/osintdeck/internal/tld"
)

var cfgPath string

func main() {
	rootCmd := &cobra.Command{
		Use:          "osintdeck",
		Short:        "Detect OSINT entities in text and pick the tools that can investigate them",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default: ./osintdeck.yaml)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(detectCmd())
	rootCmd.AddCommand(samplesCmd())
	rootCmd.AddCommand(trainCmd())
	rootCmd.AddCommand(predictCmd())
	rootCmd.AddCommand(tldCmd())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}

// app bundles the services shared by every command
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	kv         store.KV
	oracle     *tld.Oracle
	classifier *classifier.Classifier
	extractor  *extractor.Extractor

	closers []io.Closer
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	logger, logCloser, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger, closers: []io.Closer{logCloser}}

	kv, kvCloser, err := openKV(ctx, cfg.Store)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.kv = kv
	a.closers = append(a.closers, kvCloser)

	f := fetcher.New(cfg.TLD.Timeout, cfg.TLD.MaxFeedBytes)
	a.oracle, err = tld.New(ctx, kv, f, tld.Options{
		FeedURL: cfg.TLD.FeedURL,
		Timeout: cfg.TLD.Timeout,
		Logger:  logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.classifier, err = classifier.New(ctx, kv, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.extractor = extractor.New(a.oracle)
	return a, nil
}

// engine opens the catalog and builds the relevance engine on top of it
func (a *app) engine() (*relevance.Engine, *catalog.FileRepository, error) {
	repo, err := catalog.Open(a.cfg.Catalog.Path, a.logger)
	if err != nil {
		return nil, nil, err
	}
	e := relevance.New(a.extractor, repo,
		relevance.WithIntent(a.classifier),
		relevance.WithLogger(a.logger),
	)
	return e, repo, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i].Close()
	}
}

func openKV(ctx context.Context, cfg config.StoreConfig) (store.KV, io.Closer, error) {
	switch cfg.Backend {
	case "redis":
		r, err := store.NewRedis(ctx, store.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})
		if err != nil {
			return nil, nil, err
		}
		return r, r, nil
	case "memory":
		return store.NewMemory(), nopCloser{}, nil
	default:
		// Ensure directory exists
		dir := filepath.Dir(cfg.SQLitePath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, nil, fmt.Errorf("create db dir: %w", err)
		}
		s, err := store.New(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func searchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search [query]",
		Short: "Detect entities in a query and list the matching tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			e, _, err := a.engine()
			if err != nil {
				return err
			}

			res := e.ProcessSearch(cmd.Context(), strings.Join(args, " "))
			fmt.Printf("Mode: %s\n", res.Mode)
			for _, ent := range res.Entities {
				fmt.Printf("  [%s] %s\n", ent.Kind, ent.Value)
			}
			if res.Intent != nil {
				fmt.Printf("Intent: %s\n", res.Intent.Category)
			}

			if len(res.Matches) == 0 {
				fmt.Println("No matching tools.")
				return nil
			}
			for _, m := range res.Matches {
				fmt.Printf("%s\n", m.Tool.Name)
				for _, c := range m.Cards {
					fmt.Printf("  - %s  %s\n", c.Title, c.URLTemplate)
				}
			}
			return nil
		},
	}
}

func detectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect [value]",
		Short: "Classify a single value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			kind, ok := a.extractor.DetectType(args[0])
			if !ok {
				fmt.Println("unknown")
				return nil
			}
			fmt.Println(kind)
			return nil
		},
	}
}

func samplesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "samples",
		Short: "Manage intent training samples",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored samples",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			samples, err := a.classifier.Samples(cmd.Context())
			if err != nil {
				return err
			}
			if len(samples) == 0 {
				fmt.Println("No samples yet. Use 'osintdeck samples add' or 'osintdeck samples defaults'.")
				return nil
			}
			for i, s := range samples {
				fmt.Printf("%3d  %-10s %s\n", i, s.Category, truncate(s.Text, 60))
			}

			cats, err := a.classifier.Categories(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println()
			for _, c := range cats {
				fmt.Printf("%s: %d\n", c.Category, c.Samples)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add [category] [text]",
		Short: "Add a labeled sample",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := a.classifier.AddSample(cmd.Context(), strings.Join(args[1:], " "), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Added sample: %s\n", s.ID[:8])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete [index]",
		Short: "Delete the sample at index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid index: %s", args[0])
			}

			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			ok, err := a.classifier.DeleteSample(cmd.Context(), index)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no sample at index %d", index)
			}
			fmt.Printf("Deleted sample %d\n", index)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "import [file.json]",
		Short: "Import samples from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open samples: %w", err)
			}
			defer f.Close()

			res, err := a.classifier.ImportJSON(cmd.Context(), f)
			if err != nil {
				return err
			}
			fmt.Printf("Imported %d samples (%d skipped)\n", res.Imported, res.Skipped)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "defaults",
		Short: "Import the built-in sample set",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.classifier.LoadDefaults(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Imported %d samples (%d skipped)\n", res.Imported, res.Skipped)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete every sample and the trained model",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.classifier.ClearAll(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("Cleared samples and model.")
			return nil
		},
	})

	return cmd
}

func trainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "train",
		Short: "Train the intent classifier from stored samples",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := a.classifier.Train(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Trained on %d samples, %d categories, %d words\n", st.SampleCount, st.CategoryCount, st.VocabSize)
			return nil
		},
	}
}

func predictCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "predict [text]",
		Short: "Predict the intent of a phrase",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			intent, ok := a.classifier.Predict(strings.Join(args, " "))
			if !ok {
				return fmt.Errorf("no model: run 'osintdeck train' first")
			}
			fmt.Println(intent.Category)
			return nil
		},
	}
}

func tldCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tld",
		Short: "Inspect and maintain the TLD reference",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "check [label]",
		Short: "Check whether a label is a valid TLD",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			fmt.Printf("%s: %t\n", args[0], a.oracle.IsValid(args[0]))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "refresh",
		Short: "Download the reference list now",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.oracle.Refresh(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Loaded %d labels\n", n)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add [label]",
		Short: "Allow a custom label",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			added, err := a.oracle.AddCustom(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !added {
				fmt.Printf("%s already allowed\n", args[0])
				return nil
			}
			fmt.Printf("Added %s\n", args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove [label]",
		Short: "Remove a custom label",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			removed, err := a.oracle.RemoveCustom(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("%s is not a custom label", args[0])
			}
			fmt.Printf("Removed %s\n", args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Show reference stats and custom labels",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			st := a.oracle.Stats()
			fmt.Printf("Reference labels: %d\n", st.ReferenceCount)
			if st.RefreshedAt.IsZero() {
				fmt.Println("Last refresh:     never (built-in list)")
			} else {
				fmt.Printf("Last refresh:     %s\n", st.RefreshedAt.Format("2006-01-02 15:04:05"))
			}
			for _, l := range a.oracle.Custom() {
				fmt.Printf("  + %s\n", l)
			}
			return nil
		},
	})

	return cmd
}

func truncate(s string, max int) string {
	// Replace newlines with spaces for display
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
