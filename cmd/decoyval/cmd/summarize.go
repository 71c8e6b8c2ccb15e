package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/montanaflynn/stats"
	"github.com/spf13/cobra"

	"github.com/ChrisMcGann/DecoyVal/pkg/reader/hits"
	"github.com/ChrisMcGann/DecoyVal/pkg/targetdecoy"
)

func newSummarizeCmd() *cobra.Command {
	var inputFile string

	summarizeCmd := &cobra.Command{
		Use:   "summarize",
		Short: "Summarize the score distributions of a hit list",
		Long: `Print per-category statistics about a hit list: target and decoy counts,
score quantiles, Nmax, PEP resolution and the lowest reachable FDR.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSummarize(cmd, inputFile)
		},
	}

	summarizeCmd.Flags().StringVarP(&inputFile, "in", "i", "", "Input hit file (required)")
	summarizeCmd.MarkFlagRequired("in")
	return summarizeCmd
}

type categorySummary struct {
	targets int
	decoys  int
	scores  []float64
	m       *targetdecoy.Map
}

func runSummarize(cmd *cobra.Command, inputFile string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log, cmd.ErrOrStderr())

	in, err := openInput(inputFile)
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	if in != os.Stdin {
		defer in.Close()
	}

	summaries := make(map[string]*categorySummary)
	reader := hits.NewReader(in)
	for reader.Next() {
		hit := reader.Hit()
		cs, ok := summaries[hit.Category]
		if !ok {
			cs = &categorySummary{m: targetdecoy.NewMap()}
			summaries[hit.Category] = cs
		}
		if hit.IsDecoy {
			cs.decoys++
		} else {
			cs.targets++
		}
		cs.scores = append(cs.scores, hit.Score)
		cs.m.Put(hit.Score, hit.IsDecoy)
	}
	if err := reader.Err(); err != nil {
		return fmt.Errorf("error reading input file: %w", err)
	}
	if len(summaries) == 0 {
		return targetdecoy.ErrNoHits
	}

	names := make([]string, 0, len(summaries))
	for name := range summaries {
		names = append(names, name)
	}
	sort.Strings(names)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Summary of %s\n\n", inputFile)
	for _, name := range names {
		cs := summaries[name]
		if err := cs.m.EstimateNs(); err != nil {
			return fmt.Errorf("failed to estimate category %s: %w", name, err)
		}
		if err := printSummary(out, name, cs); err != nil {
			return err
		}
		if cs.m.NMax() < cfg.Grouping.MinNmax {
			logger.Warn().
				Str("category", name).
				Int("nmax", cs.m.NMax()).
				Int("min_nmax", cfg.Grouping.MinNmax).
				Msg("category is too sparse to be validated on its own")
		}
	}
	return nil
}

func printSummary(w io.Writer, name string, cs *categorySummary) error {
	data := stats.Float64Data(cs.scores)
	lo, err := data.Min()
	if err != nil {
		return fmt.Errorf("failed to summarize %s: %w", name, err)
	}
	hi, _ := data.Max()
	median, _ := data.Median()
	p05, _ := data.PercentileNearestRank(5)
	p95, _ := data.PercentileNearestRank(95)

	fmt.Fprintf(w, "[%s]\n", name)
	fmt.Fprintf(w, "  Hits: %s targets, %s decoys, %s distinct scores\n",
		humanize.Comma(int64(cs.targets)), humanize.Comma(int64(cs.decoys)), humanize.Comma(int64(cs.m.Size())))
	fmt.Fprintf(w, "  Score: min %g  p5 %g  median %g  p95 %g  max %g\n", lo, p05, median, p95, hi)
	fmt.Fprintf(w, "  Targets before first decoy: %s\n", humanize.Comma(int64(cs.m.NTargetOnly())))
	fmt.Fprintf(w, "  Nmax: %s  resolution: %.3g%%  min FDR: %.3g%%\n\n",
		humanize.Comma(int64(cs.m.NMax())), cs.m.Resolution(), 100*cs.m.MinFDR())
	return nil
}
