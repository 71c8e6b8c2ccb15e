package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ChrisMcGann/DecoyVal/pkg/category"
	"github.com/ChrisMcGann/DecoyVal/pkg/filter"
	"github.com/ChrisMcGann/DecoyVal/pkg/reader/hits"
	"github.com/ChrisMcGann/DecoyVal/pkg/targetdecoy"
	"github.com/ChrisMcGann/DecoyVal/pkg/writer/sqlite"
)

// ingestBatchSize is the number of hits handed to a worker at once.
const ingestBatchSize = 1024

type validateOptions struct {
	inputFile   string
	outputFile  string
	categoryMap string
	categories  string
	minScore    float64
	maxScore    float64
}

func newValidateCmd() *cobra.Command {
	opts := &validateOptions{}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Compute score thresholds for a target/decoy hit list",
		Long: `Estimate the score distributions of a hit list and report, for every
category, the score threshold meeting the requested criterion.

Input lines hold a score, a decoy flag and an optional category:

  0.0012  target  2
  0.0450  decoy   3

Lower scores are better. Use "--in -" to read from standard input.

Examples:
  # Threshold at 1% FDR
  decoyval validate --in hits.tsv

  # Probabilistic FDR at 5%, written to a report database
  decoyval validate --in hits.tsv --estimator probabilistic --threshold 5 --out report.db

  # Minimal confidence of 95%, charge states folded by a CSV map
  decoyval validate --in hits.tsv --criterion confidence --threshold 95 --category-map charges.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, opts)
		},
	}

	flags := validateCmd.Flags()
	flags.StringVarP(&opts.inputFile, "in", "i", "", "Input hit file (required)")
	flags.StringVarP(&opts.outputFile, "out", "o", "", "Output SQLite report (optional)")
	flags.StringVar(&opts.categoryMap, "category-map", "", "Path to a raw,category CSV folding categories")
	flags.StringVar(&opts.categories, "categories", "", "Comma-separated categories to keep")
	flags.Float64Var(&opts.minScore, "min-score", 0, "Drop hits scoring below this value")
	flags.Float64Var(&opts.maxScore, "max-score", 0, "Drop hits scoring above this value")
	flags.String("estimator", "classical", "FDR estimator: classical or probabilistic")
	flags.String("criterion", "fdr", "Validation criterion: fdr, fnr or confidence")
	flags.Float64("threshold", 1.0, "Criterion threshold in percent")
	flags.Int("window-size", 0, "Smoothing window size (0 = Nmax of each distribution)")
	flags.Int("min-nmax", 100, "Nmax below which a category is pooled")
	flags.Bool("no-grouping", false, "Never pool sparse categories")
	flags.Int("workers", 0, "Number of ingestion workers (default: number of CPUs)")

	validateCmd.MarkFlagRequired("in")
	return validateCmd
}

func runValidate(cmd *cobra.Command, opts *validateOptions) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log, cmd.ErrOrStderr())

	filterConfig, err := opts.filterConfig(cmd)
	if err != nil {
		return err
	}

	in, err := openInput(opts.inputFile)
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	if in != os.Stdin {
		defer in.Close()
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	group := category.NewGroup(logger)
	count, kept, err := ingest(ctx, in, filterConfig, group, cfg.Ingest.Workers)
	if err != nil {
		return err
	}
	logger.Info().
		Str("input", opts.inputFile).
		Int64("read", count).
		Int64("kept", kept).
		Msg("hits loaded")

	res, err := group.Finalize(ctx, cfg.GroupOptions())
	if err != nil {
		return fmt.Errorf("failed to finalise distributions: %w", err)
	}

	var writer *sqlite.Writer
	if opts.outputFile != "" {
		th := cfg.Thresholds()
		writer, err = sqlite.NewWriter(opts.outputFile, sqlite.Run{
			Estimator: th.Estimator,
			Criterion: th.InputType(),
			Threshold: th.UserInput(),
		})
		if err != nil {
			return fmt.Errorf("failed to create report database: %w", err)
		}
		defer writer.Close()

		for _, name := range res.Distributions() {
			s, _ := res.Series(name)
			if err := writer.WriteSeries(name, s); err != nil {
				return err
			}
		}
	}

	out := cmd.OutOrStdout()
	printCriterion(out, cfg.Thresholds())

	for _, name := range group.Categories() {
		th := cfg.Thresholds()
		if err := res.Resolve(name, th); err != nil {
			return err
		}
		m, _ := res.Map(name)
		pool := res.Redirect(name)
		suspicious := pool != name

		if suspicious {
			logger.Warn().
				Str("category", name).
				Str("pool", pool).
				Msg("category too sparse for validation, thresholds taken from pooled distribution")
		}
		printThresholds(out, name, pool, m, th)

		if writer != nil {
			if err := writer.WriteThresholds(sqlite.Category{
				Name:       name,
				Pool:       pool,
				Map:        m,
				Thresholds: th,
				Suspicious: suspicious,
			}); err != nil {
				return err
			}
		}
	}

	if writer != nil {
		if err := writer.Finalize(); err != nil {
			return fmt.Errorf("failed to finalize report database: %w", err)
		}
		logger.Info().Str("output", opts.outputFile).Str("run_id", writer.RunID()).Msg("report written")
	}
	return nil
}

func (o *validateOptions) filterConfig(cmd *cobra.Command) (*filter.Config, error) {
	fc := &filter.Config{}
	if cmd.Flags().Changed("min-score") {
		fc.MinScore = &o.minScore
	}
	if cmd.Flags().Changed("max-score") {
		fc.MaxScore = &o.maxScore
	}
	if o.categories != "" {
		fc.Categories = strings.Split(o.categories, ",")
		for i := range fc.Categories {
			fc.Categories[i] = strings.TrimSpace(fc.Categories[i])
		}
	}
	if o.categoryMap != "" {
		f, err := os.Open(o.categoryMap)
		if err != nil {
			return nil, fmt.Errorf("failed to open category map: %w", err)
		}
		defer f.Close()
		fc.Aliases, err = filter.LoadCategoryAliases(f)
		if err != nil {
			return nil, fmt.Errorf("failed to load category map: %w", err)
		}
	}
	return fc, nil
}

// ingest reads hits from r and feeds the kept ones to group from workers
// goroutines. It returns the number of hits read and kept.
func ingest(ctx context.Context, r io.Reader, fc *filter.Config, group *category.Group, workers int) (int64, int64, error) {
	if workers < 1 {
		workers = 1
	}

	eg, egCtx := errgroup.WithContext(ctx)
	batches := make(chan []hits.Hit, workers)
	keptBy := make([]int64, workers)

	var read int64
	eg.Go(func() error {
		defer close(batches)
		reader := hits.NewReader(r)
		batch := make([]hits.Hit, 0, ingestBatchSize)
		for reader.Next() {
			batch = append(batch, reader.Hit())
			read++
			if len(batch) < ingestBatchSize {
				continue
			}
			select {
			case batches <- batch:
			case <-egCtx.Done():
				return egCtx.Err()
			}
			batch = make([]hits.Hit, 0, ingestBatchSize)
		}
		if err := reader.Err(); err != nil {
			return fmt.Errorf("error reading input file: %w", err)
		}
		if len(batch) > 0 {
			select {
			case batches <- batch:
			case <-egCtx.Done():
				return egCtx.Err()
			}
		}
		return nil
	})

	for w := 0; w < workers; w++ {
		w := w
		eg.Go(func() error {
			for batch := range batches {
				for i := range batch {
					hit := &batch[i]
					if !fc.Apply(hit) {
						continue
					}
					group.Put(hit.Category, hit.Score, hit.IsDecoy)
					keptBy[w]++
				}
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return 0, 0, err
	}

	var kept int64
	for _, n := range keptBy {
		kept += n
	}
	return read, kept, nil
}

func printCriterion(w io.Writer, th *targetdecoy.Thresholds) {
	op := "<="
	if th.InputType() == targetdecoy.CriterionConfidence {
		op = ">="
	}
	fmt.Fprintf(w, "Criterion: %s %s %g%% (%s estimator)\n\n", th.InputType(), op, th.UserInput(), th.Estimator)
}

func printThresholds(w io.Writer, name, pool string, m *targetdecoy.Map, th *targetdecoy.Thresholds) {
	fmt.Fprintf(w, "[%s]", name)
	if pool != name {
		fmt.Fprintf(w, " (pooled into %s)", pool)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Nmax: %s  resolution: %.3g%%  min FDR: %.3g%%\n",
		humanize.Comma(int64(m.NMax())), m.Resolution(), 100*m.MinFDR())

	if th.NoneValidated {
		fmt.Fprintf(w, "  No hit validated (best score %g, confidence %.2f%%)\n\n", th.ScoreLimit, th.ConfidenceLimit)
		return
	}
	fmt.Fprintf(w, "  Score limit: %g (log %.2f)\n", th.ScoreLimit, th.LogScoreLimit())
	fmt.Fprintf(w, "  Validated: %s targets, %.1f false positives\n", humanize.Comma(int64(th.N)), th.NFP)
	fmt.Fprintf(w, "  FDR: %.2f%%  FNR: %.2f%%  confidence: %.2f%%\n\n", th.FDRLimit, th.FNRLimit, th.ConfidenceLimit)
}
