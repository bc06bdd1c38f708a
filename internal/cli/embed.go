package cli

import (
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/Davincible/siliconsig/internal/validation"
	"github.com/Davincible/siliconsig/pkg/imagefile"
	"github.com/Davincible/siliconsig/pkg/metrics"
	"github.com/Davincible/siliconsig/pkg/signature"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// EmbedResult reports a raw embed
type EmbedResult struct {
	Input       string `json:"input"`
	Output      string `json:"output"`
	Payload     string `json:"payload"`
	Offsets     []int  `json:"offsets"`
	Extranonce2 string `json:"extranonce2,omitempty"`
	Checked     bool   `json:"checked"`
	Profile     string `json:"profile,omitempty"`
}

func NewEmbedCommand() *cobra.Command {
	var (
		output      string
		hashHex     string
		nonceHex    string
		ntimeHex    string
		versionHex  string
		status      string
		extranonce2 string
		check       bool
	)

	cmd := &cobra.Command{
		Use:   "embed [image]",
		Short: "Embed a signature given on the command line",
		Long: `Embed a signature built from explicit fields without contacting a nonce
source. Use this to re-embed a nonce found earlier, for example after the
image was re-exported.

The hash defaults to the image's own content hash. With --check the proof
of work is verified before anything is written.`,
		Example: `  siliconsig embed photo.png --nonce 1a2b3c4d --ntime 5f000000
  siliconsig embed photo.png --hash <64 hex> --nonce 1a2b3c4d --ntime 5f000000 --check`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			s, err := loadSession(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			started := time.Now()
			defer func() { s.metrics.RecordOperation(metrics.OpEmbed, err, time.Since(started).Seconds()) }()

			if err := validation.ValidateWord("nonce", nonceHex); err != nil {
				return err
			}
			if err := validation.ValidateWord("ntime", ntimeHex); err != nil {
				return err
			}
			if versionHex == "" {
				versionHex = s.cfg.PoW.Version
			}
			if err := validation.ValidateWord("version", versionHex); err != nil {
				return err
			}
			if status == "" {
				status = s.cfg.PoW.Status
			}
			if err := validation.ValidateStatus(status); err != nil {
				return err
			}

			img, err := s.loadImage(args[0])
			if err != nil {
				return err
			}

			hash := signature.ContentHash(img.Pixels.Pix)
			if hashHex != "" {
				if err := validation.ValidateHash(hashHex); err != nil {
					return err
				}
				if hash, err = signature.ParseHash(hashHex); err != nil {
					return err
				}
			}

			nonce, _ := signature.ParseWord(nonceHex)
			ntime, _ := signature.ParseWord(ntimeHex)
			version, _ := signature.ParseWord(versionHex)
			p, err := signature.New(hash, nonce, ntime, version, status)
			if err != nil {
				return err
			}

			result := EmbedResult{Input: args[0], Payload: p.String(), Extranonce2: extranonce2}

			if check {
				v, err := s.powVerifier()
				if err != nil {
					return err
				}
				if extranonce2 != "" {
					if v.Extranonce2, err = hex.DecodeString(extranonce2); err != nil {
						return fmt.Errorf("invalid extranonce2: %w", err)
					}
				}
				proof, err := v.Calibrate(p)
				if err != nil {
					return err
				}
				result.Checked = true
				result.Profile = proof.Profile.String()
			}

			e, err := s.embedder()
			if err != nil {
				return err
			}
			out := img.Pixels.Clone()
			layout, err := e.Embed(out, p)
			if err != nil {
				return err
			}

			if output == "" {
				output = outputPath(args[0], "signed")
			}
			result.Output = output
			result.Offsets = layout.Offsets()

			meta := imagefile.MetadataFor(p, extranonce2, result.Offsets)
			if err := imagefile.Save(output, out, meta); err != nil {
				return err
			}

			return s.emit(result, func(w io.Writer) { displayEmbed(w, result) })
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output PNG (default <image>_signed.png)")
	cmd.Flags().StringVar(&hashHex, "hash", "", "Content hash (default: hash of the image)")
	cmd.Flags().StringVar(&nonceHex, "nonce", "", "Nonce as 8 hex characters")
	cmd.Flags().StringVar(&ntimeHex, "ntime", "", "Ntime as 8 hex characters")
	cmd.Flags().StringVar(&versionHex, "version", "", "Block version (default from config)")
	cmd.Flags().StringVar(&status, "status", "", "Status text (default from config)")
	cmd.Flags().StringVar(&extranonce2, "extranonce2", "", "Extranonce2 the nonce was mined with")
	cmd.Flags().BoolVar(&check, "check", false, "Verify the proof of work before embedding")

	cmd.MarkFlagRequired("nonce")
	cmd.MarkFlagRequired("ntime")

	return cmd
}

func displayEmbed(w io.Writer, r EmbedResult) {
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow)

	fmt.Fprintln(w)
	green.Fprintf(w, "✓ Embedded %d copies into %s\n", len(r.Offsets), r.Output)
	fmt.Fprintln(w)
	yellow.Fprintln(w, "Payload:")
	fmt.Fprintf(w, "  %s\n", r.Payload)
	fmt.Fprintf(w, "  Copies at: %s\n", imagefile.FormatOffsets(r.Offsets))
	if r.Checked {
		fmt.Fprintf(w, "  Proof of work: valid (%s)\n", r.Profile)
	} else {
		fmt.Fprintln(w, "  Proof of work: not checked")
	}
}
