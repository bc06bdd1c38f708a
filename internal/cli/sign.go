package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/Davincible/siliconsig/internal/validation"
	"github.com/Davincible/siliconsig/pkg/attest"
	"github.com/Davincible/siliconsig/pkg/fingerprint"
	"github.com/Davincible/siliconsig/pkg/imagefile"
	"github.com/Davincible/siliconsig/pkg/ledger"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func NewSignCommand() *cobra.Command {
	var (
		output   string
		simulate bool
		status   string
		bridge   string
		timeout  time.Duration
		noLedger bool
	)

	cmd := &cobra.Command{
		Use:   "sign [image]",
		Short: "Sign an image with a proof-of-work nonce",
		Long: `Hash the image, have the mining hardware find a nonce for that hash and
embed the resulting signature into the pixels' least significant bits.

The signed image is always written as PNG. The signature fields are also
stored as PNG text chunks and recorded in the local ledger.`,
		Example: `  # Sign with the hardware bridge from the config file
  siliconsig sign photo.png

  # Sign without hardware at an easy target
  siliconsig sign photo.png --simulate --profile fast

  # Choose the output path and status text
  siliconsig sign photo.jpg -o signed.png --status VERIFIED_BY_LAB`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSession(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			if status != "" {
				if err := validation.ValidateStatus(status); err != nil {
					return err
				}
			}

			img, err := s.loadImage(args[0])
			if err != nil {
				return err
			}

			source, err := s.source(simulate, bridge)
			if err != nil {
				return err
			}
			signer, err := s.signer(source, status)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			signed, err := signer.Sign(ctx, img.Pixels)
			if err != nil {
				return err
			}

			if output == "" {
				output = outputPath(args[0], "signed")
			}
			if err := imagefile.Save(output, signed.Pixels, signed.Metadata); err != nil {
				return err
			}

			rec := recordFor(args[0], output, signed)
			if !noLedger {
				if err := s.record(rec); err != nil {
					s.logger.Warn("failed to record signature", "error", err)
				}
			}

			return s.emit(rec, func(w io.Writer) { displaySigned(w, rec) })
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output PNG (default <image>_signed.png)")
	cmd.Flags().BoolVar(&simulate, "simulate", false, "Mine the nonce on the CPU instead of the bridge")
	cmd.Flags().StringVar(&status, "status", "", "Status text embedded in the signature")
	cmd.Flags().StringVar(&bridge, "bridge", "", "Bridge address, overrides the config")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Give up after this long (0 waits indefinitely)")
	cmd.Flags().BoolVar(&noLedger, "no-ledger", false, "Do not record the signature in the ledger")

	return cmd
}

func recordFor(input, output string, signed *attest.Signed) *ledger.Record {
	rec := &ledger.Record{
		Input:       input,
		Output:      output,
		Hash:        signed.Payload.HashHex(),
		Nonce:       signed.Payload.NonceHex(),
		NTime:       signed.Payload.NTimeHex(),
		Version:     signed.Payload.VersionHex(),
		Extranonce2: signed.Solution.Extranonce2Hex(),
		Status:      signed.Payload.Status,
		Source:      signed.Solution.Source,
		JobID:       signed.Solution.JobID,
		Offsets:     signed.Layout.Offsets(),
	}
	if signed.PoW != nil {
		rec.Profile = signed.PoW.Profile.String()
		rec.Digest = signed.PoW.DigestHex()
	}
	if signed.Fingerprint != nil {
		rec.Fingerprint = signed.Fingerprint.Words()
	}
	return rec
}

// record stores rec when the ledger is enabled
func (s *session) record(rec *ledger.Record) error {
	store, err := s.openLedger()
	if err != nil || store == nil {
		return err
	}
	defer store.Close()
	return store.Put(rec)
}

func displaySigned(w io.Writer, rec *ledger.Record) {
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan, color.Bold)

	fmt.Fprintln(w)
	green.Fprintf(w, "✓ Signed %s\n", rec.Input)
	fmt.Fprintln(w)

	yellow.Fprintln(w, "Signature:")
	fmt.Fprintf(w, "  Output:      %s\n", rec.Output)
	fmt.Fprintf(w, "  Hash:        %s\n", rec.Hash)
	fmt.Fprintf(w, "  Nonce:       %s\n", rec.Nonce)
	fmt.Fprintf(w, "  Ntime:       %s\n", rec.NTime)
	fmt.Fprintf(w, "  Version:     %s\n", rec.Version)
	fmt.Fprintf(w, "  Extranonce2: %s\n", rec.Extranonce2)
	fmt.Fprintf(w, "  Status:      %s\n", rec.Status)
	fmt.Fprintf(w, "  Source:      %s\n", rec.Source)
	if rec.Profile != "" {
		fmt.Fprintf(w, "  Byte order:  %s\n", rec.Profile)
		fmt.Fprintf(w, "  Digest:      %s\n", rec.Digest)
	}
	fmt.Fprintf(w, "  Copies at:   %s\n", imagefile.FormatOffsets(rec.Offsets))
	if rec.ID != "" {
		fmt.Fprintf(w, "  Ledger ID:   %s\n", rec.ID)
	}

	if rec.Fingerprint != "" {
		fmt.Fprintln(w)
		cyan.Fprintln(w, "Fingerprint:")
		printWords(w, rec.Fingerprint)
	}
}

// printWords prints a fingerprint four words per line
func printWords(w io.Writer, phrase string) {
	fp, err := fingerprint.FromWords(phrase)
	if err != nil {
		fmt.Fprintf(w, "  %s\n", phrase)
		return
	}
	words := fp.WordList()
	for k := 0; k < len(words); k += 4 {
		end := min(k+4, len(words))
		fmt.Fprintf(w, "  %2d. %s\n", k+1, joinWords(words[k:end]))
	}
}

func joinWords(words []string) string {
	out := ""
	for i, w := range words {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%-8s", w)
	}
	return out
}
