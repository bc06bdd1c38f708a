package cli

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Davincible/siliconsig/internal/validation"
	"github.com/Davincible/siliconsig/pkg/metrics"
	"github.com/Davincible/siliconsig/pkg/pow"
	"github.com/Davincible/siliconsig/pkg/signature"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// CalibrateResult reports a byte-order calibration
type CalibrateResult struct {
	Valid      bool     `json:"valid"`
	Profile    string   `json:"profile,omitempty"`
	Digest     string   `json:"digest,omitempty"`
	Attempts   int      `json:"profiles_tried"`
	Bits       string   `json:"bits"`
	Difficulty float64  `json:"difficulty"`
	Hasher     string   `json:"hasher"`
	Tried      []string `json:"tried,omitempty"`
}

func NewCalibrateCommand() *cobra.Command {
	var (
		image       string
		hashHex     string
		nonceHex    string
		ntimeHex    string
		versionHex  string
		extranonce2 string
		bits        string
		hasher      string
	)

	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Find the byte order under which a nonce meets the target",
		Long: `Hardware and bridges disagree on the byte order of header fields. Calibrate
rebuilds the block header under every combination of version, ntime and
nonce endianness and prevhash ordering, and reports the first that meets
the target.

Fields come from flags, or from an image's signature metadata with --image.`,
		Example: `  siliconsig calibrate --hash <64 hex> --nonce 1a2b3c4d --ntime 5f000000
  siliconsig calibrate --image signed.png --bits 1f00ffff`,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			s, err := loadSession(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			started := time.Now()
			defer func() { s.metrics.RecordOperation(metrics.OpCalibrate, err, time.Since(started).Seconds()) }()

			if image != "" {
				img, err := s.loadImage(image)
				if err != nil {
					return err
				}
				if img.Metadata.IsEmpty() {
					return fmt.Errorf("%s has no signature metadata", image)
				}
				hashHex = firstNonEmpty(hashHex, img.Metadata.Hash)
				nonceHex = firstNonEmpty(nonceHex, img.Metadata.Nonce)
				ntimeHex = firstNonEmpty(ntimeHex, img.Metadata.NTime)
				versionHex = firstNonEmpty(versionHex, img.Metadata.Version)
				extranonce2 = firstNonEmpty(extranonce2, img.Metadata.Extranonce2)
			}
			versionHex = firstNonEmpty(versionHex, s.cfg.PoW.Version)

			if err := validation.ValidateHash(hashHex); err != nil {
				return err
			}
			for _, f := range [][2]string{{"nonce", nonceHex}, {"ntime", ntimeHex}, {"version", versionHex}} {
				if err := validation.ValidateWord(f[0], f[1]); err != nil {
					return err
				}
			}

			v, err := s.powVerifier()
			if err != nil {
				return err
			}
			if bits != "" {
				if err := validation.ValidateBits(bits); err != nil {
					return err
				}
				v.Bits, _ = signature.ParseWord(bits)
			}
			if hasher != "" {
				if v.Hasher, err = pow.ParseHasher(hasher); err != nil {
					return err
				}
			}
			if extranonce2 != "" {
				if v.Extranonce2, err = hex.DecodeString(extranonce2); err != nil {
					return fmt.Errorf("invalid extranonce2: %w", err)
				}
			}

			hash, _ := signature.ParseHash(hashHex)
			nonce, _ := signature.ParseWord(nonceHex)
			ntime, _ := signature.ParseWord(ntimeHex)
			version, _ := signature.ParseWord(versionHex)
			p, err := signature.New(hash, nonce, ntime, version, signature.DefaultStatus)
			if err != nil {
				return err
			}

			difficulty, _ := pow.Difficulty(v.Bits)
			result := CalibrateResult{
				Bits:       fmt.Sprintf("%08x", v.Bits),
				Difficulty: difficulty,
				Hasher:     string(v.Hasher),
			}

			proof, err := v.Calibrate(p)

			var noMatch *pow.NoValidByteOrderError
			switch {
			case errors.As(err, &noMatch):
				result.Attempts = len(noMatch.Tried)
				for _, t := range noMatch.Tried {
					result.Tried = append(result.Tried, t.String())
				}
			case err != nil:
				return err
			default:
				result.Valid = true
				result.Profile = proof.Profile.String()
				result.Digest = proof.DigestHex()
				result.Attempts = proof.Attempts
			}
			s.metrics.RecordCalibration(result.Attempts)

			if err := s.emit(result, func(w io.Writer) { displayCalibrate(w, result) }); err != nil {
				return err
			}
			if !result.Valid {
				return fmt.Errorf("%w: %v", ErrNotAuthentic, err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&image, "image", "", "Read the fields from this image's metadata")
	cmd.Flags().StringVar(&hashHex, "hash", "", "Content hash (64 hex characters)")
	cmd.Flags().StringVar(&nonceHex, "nonce", "", "Nonce")
	cmd.Flags().StringVar(&ntimeHex, "ntime", "", "Ntime")
	cmd.Flags().StringVar(&versionHex, "version", "", "Block version (default from config)")
	cmd.Flags().StringVar(&extranonce2, "extranonce2", "", "Extranonce2 (default 00000000)")
	cmd.Flags().StringVar(&bits, "bits", "", "Compact target (default from config)")
	cmd.Flags().StringVar(&hasher, "hasher", "", "Hash function (sha256, blake2b)")

	return cmd
}

func displayCalibrate(w io.Writer, r CalibrateResult) {
	green := color.New(color.FgGreen, color.Bold)
	red := color.New(color.FgRed, color.Bold)

	fmt.Fprintln(w)
	if r.Valid {
		green.Fprintln(w, "✓ Proof of work valid")
		fmt.Fprintf(w, "  Byte order: %s\n", r.Profile)
		fmt.Fprintf(w, "  Digest:     %s\n", r.Digest)
	} else {
		red.Fprintln(w, "✗ No byte order meets the target")
	}
	fmt.Fprintf(w, "  Tried:      %d profiles\n", r.Attempts)
	fmt.Fprintf(w, "  Target:     %s (difficulty %.4g, %s)\n", r.Bits, r.Difficulty, r.Hasher)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
