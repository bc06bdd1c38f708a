package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/Davincible/siliconsig/internal/validation"
	"github.com/Davincible/siliconsig/pkg/damage"
	"github.com/Davincible/siliconsig/pkg/imagefile"
	"github.com/Davincible/siliconsig/pkg/lsb"
	"github.com/Davincible/siliconsig/pkg/metrics"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// DamageResult reports a damage simulation
type DamageResult struct {
	Input     string  `json:"input"`
	Output    string  `json:"output"`
	Pattern   string  `json:"pattern"`
	Fraction  float64 `json:"fraction"`
	Start     int     `json:"span_start"`
	Length    int     `json:"span_length"`
	Corrupted int     `json:"bytes_corrupted"`
	Seed      uint64  `json:"seed"`
}

// TrialRow is one line of the damage-tolerance table
type TrialRow struct {
	Fraction      float64        `json:"fraction"`
	Trials        int            `json:"trials"`
	Copies        int            `json:"copies"`
	MinRecovered  int            `json:"min_recovered"`
	MeanRecovered float64        `json:"mean_recovered"`
	Dominant      string         `json:"dominant_verdict"`
	Verdicts      map[string]int `json:"verdicts"`
}

// damageFlags are shared by damage and trial
type damageFlags struct {
	pattern string
	seed    uint64
	offset  int
	whole   bool
}

func (f *damageFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.pattern, "pattern", "edges", "Damage pattern (edges, band, noise)")
	cmd.Flags().Uint64Var(&f.seed, "seed", 1, "Random seed")
	cmd.Flags().IntVar(&f.offset, "offset", 0, "Start of the band pattern within the span")
	cmd.Flags().BoolVar(&f.whole, "whole", false, "Damage the whole image instead of the signature region")
}

func (f *damageFlags) options(s *session, meta imagefile.Metadata) (damage.Options, error) {
	pattern, err := damage.ParsePattern(f.pattern)
	if err != nil {
		return damage.Options{}, err
	}
	opts := damage.Options{Pattern: pattern, Seed: f.seed, Offset: f.offset, Logger: s.logger}
	if !f.whole {
		lopts, err := s.lsbOptions()
		if err != nil {
			return damage.Options{}, err
		}
		start, length := signatureSpan(lopts, meta)
		opts.Span = damage.Span{Start: start, Length: length}
	}
	return opts, nil
}

func NewDamageCommand() *cobra.Command {
	var (
		output   string
		fraction float64
		flags    damageFlags
	)

	cmd := &cobra.Command{
		Use:   "damage [image]",
		Short: "Simulate damage to a signed image",
		Long: `Overwrite a fraction of the signature region with random bytes, the way
cropping, painting over or local edits would, and write the result.

By default the region is the span the copies occupy, taken from the
recorded offsets or the configured layout. The edges pattern damages the
span from both ends inward, so at 40% three copies still survive and at 50%
only the middle copy does.`,
		Example: `  siliconsig damage signed.png --fraction 0.4
  siliconsig damage signed.png --fraction 0.1 --pattern noise --whole`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			s, err := loadSession(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			started := time.Now()
			defer func() { s.metrics.RecordOperation(metrics.OpDamage, err, time.Since(started).Seconds()) }()

			if err := validation.ValidateFraction(fraction); err != nil {
				return err
			}

			img, err := s.loadImage(args[0])
			if err != nil {
				return err
			}

			opts, err := flags.options(s, img.Metadata)
			if err != nil {
				return err
			}

			damaged, rep, err := damage.Simulate(img.Pixels, fraction, opts)
			if err != nil {
				return err
			}

			if output == "" {
				output = outputPath(args[0], fmt.Sprintf("damaged%02.0f", fraction*100))
			}
			if err := imagefile.Save(output, damaged, img.Metadata); err != nil {
				return err
			}

			result := DamageResult{
				Input:     args[0],
				Output:    output,
				Pattern:   string(rep.Pattern),
				Fraction:  rep.Fraction,
				Start:     rep.Span.Start,
				Length:    rep.Span.Length,
				Corrupted: rep.Corrupted,
				Seed:      rep.Seed,
			}
			return s.emit(result, func(w io.Writer) {
				yellow := color.New(color.FgYellow, color.Bold)
				fmt.Fprintln(w)
				yellow.Fprintf(w, "Damaged %.0f%% of %s (%s pattern)\n", fraction*100, args[0], result.Pattern)
				fmt.Fprintf(w, "  Span:      bytes %d-%d\n", result.Start, result.Start+result.Length)
				fmt.Fprintf(w, "  Corrupted: %d bytes\n", result.Corrupted)
				fmt.Fprintf(w, "  Output:    %s\n", result.Output)
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output PNG (default <image>_damagedNN.png)")
	cmd.Flags().Float64VarP(&fraction, "fraction", "f", 0.4, "Fraction of the region to damage (0-1)")
	flags.register(cmd)

	return cmd
}

func NewTrialCommand() *cobra.Command {
	var (
		trials    int
		fractions []float64
		scan      bool
		flags     damageFlags
	)

	cmd := &cobra.Command{
		Use:   "trial [image]",
		Short: "Measure damage tolerance of a signed image",
		Long: `Damage the image repeatedly at each fraction and report how many copies
survive and which verdict extraction reaches. Each trial uses the next seed.`,
		Example: `  siliconsig trial signed.png
  siliconsig trial signed.png --fractions 0.45,0.5,0.55 --trials 50 --pattern noise`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSession(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			if trials < 1 {
				return fmt.Errorf("trials must be at least 1")
			}
			for _, f := range fractions {
				if err := validation.ValidateFraction(f); err != nil {
					return err
				}
			}

			img, err := s.loadImage(args[0])
			if err != nil {
				return err
			}

			x, err := s.extractor()
			if err != nil {
				return err
			}
			opts, err := flags.options(s, img.Metadata)
			if err != nil {
				return err
			}

			offsets := img.Metadata.Offsets
			if scan {
				offsets = nil
			}

			table, err := damage.Table(img.Pixels, x, offsets, fractions, trials, opts)
			if err != nil {
				return err
			}

			rows := make([]TrialRow, len(table))
			for i, r := range table {
				rows[i] = TrialRow{
					Fraction:      r.Fraction,
					Trials:        r.Trials,
					Copies:        r.Total,
					MinRecovered:  r.MinRecovered(),
					MeanRecovered: r.MeanRecovered(),
					Dominant:      string(r.Dominant()),
					Verdicts:      map[string]int{},
				}
				for v, n := range r.Verdicts {
					rows[i].Verdicts[string(v)] = n
				}
			}

			return s.emit(rows, func(w io.Writer) { displayTrial(w, rows) })
		},
	}

	cmd.Flags().IntVarP(&trials, "trials", "n", 10, "Trials per fraction")
	cmd.Flags().Float64SliceVar(&fractions, "fractions", damage.DefaultFractions(), "Damage fractions to test")
	cmd.Flags().BoolVar(&scan, "scan", false, "Deep scan instead of using recorded offsets")
	flags.register(cmd)

	return cmd
}

func displayTrial(w io.Writer, rows []TrialRow) {
	cyan := color.New(color.FgCyan, color.Bold)

	fmt.Fprintln(w)
	cyan.Fprintln(w, "Damage tolerance")
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DAMAGE\tMIN COPIES\tMEAN\tVERDICT\tVERIFIED\tMARGINAL\tFAILED")
	for _, r := range rows {
		fmt.Fprintf(tw, "%.0f%%\t%d/%d\t%.1f\t%s\t%d\t%d\t%d\n",
			r.Fraction*100, r.MinRecovered, r.Copies, r.MeanRecovered, r.Dominant,
			r.Verdicts[string(lsb.Verified)], r.Verdicts[string(lsb.Marginal)], r.Verdicts[string(lsb.Failed)])
	}
	tw.Flush()
}
