package cli

import (
	"fmt"
	"io"

	"github.com/Davincible/siliconsig/pkg/attest"
	"github.com/Davincible/siliconsig/pkg/fingerprint"
	"github.com/Davincible/siliconsig/pkg/ledger"
	"github.com/Davincible/siliconsig/pkg/lsb"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// VerifyResult is the per-image outcome of verify
type VerifyResult struct {
	Image     string `json:"image"`
	Verdict   string `json:"verdict"`
	Reason    string `json:"reason"`
	Authentic bool   `json:"authentic"`

	Recovered int   `json:"copies_recovered"`
	Total     int   `json:"copies_total"`
	Scanned   bool  `json:"deep_scanned"`
	Offsets   []int `json:"offsets,omitempty"`

	Hash    string `json:"hash,omitempty"`
	Nonce   string `json:"nonce,omitempty"`
	NTime   string `json:"ntime,omitempty"`
	Version string `json:"version,omitempty"`
	Status  string `json:"status,omitempty"`

	Profile  string `json:"profile,omitempty"`
	Digest   string `json:"digest,omitempty"`
	Attempts int    `json:"profiles_tried,omitempty"`
	PoWError string `json:"pow_error,omitempty"`

	ContentIntact   bool `json:"content_intact"`
	MetadataPresent bool `json:"metadata_present"`
	MetadataAgrees  bool `json:"metadata_agrees"`

	Fingerprint string `json:"fingerprint,omitempty"`
	LedgerID    string `json:"ledger_id,omitempty"`
	Error       string `json:"error,omitempty"`
}

func NewVerifyCommand() *cobra.Command {
	var ignoreMetadata bool

	cmd := &cobra.Command{
		Use:   "verify [image]...",
		Short: "Verify the signature embedded in images",
		Long: `Recover the embedded signature copies, vote on them and check the proof of
work under every supported byte order.

The verdict is VERIFIED when a majority of copies agree, MARGINAL when a
single copy or an agreeing minority survived, and FAILED otherwise. The
content and metadata checks are advisory and never change the verdict.

The exit status is 2 if any image is not VERIFIED or MARGINAL.`,
		Example: `  siliconsig verify photo_signed.png
  siliconsig verify *.png --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSession(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			v, err := s.verifier(ignoreMetadata)
			if err != nil {
				return err
			}

			store, err := s.openLedger()
			if err != nil {
				s.logger.Warn("ledger unavailable", "error", err)
			}
			if store != nil {
				defer store.Close()
			}

			results := make([]VerifyResult, 0, len(args))
			allAuthentic := true
			for _, path := range args {
				r := verifyImage(s, v, store, path)
				allAuthentic = allAuthentic && r.Authentic
				results = append(results, r)
			}

			if err := s.emit(results, func(w io.Writer) {
				for _, r := range results {
					displayVerify(w, r)
				}
			}); err != nil {
				return err
			}

			if !allAuthentic {
				return ErrNotAuthentic
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&ignoreMetadata, "ignore-metadata", false, "Deep scan even when offsets are recorded")

	return cmd
}

// verifyImage never fails; unreadable images are reported as FAILED
func verifyImage(s *session, v *attest.Verifier, store *ledger.Store, path string) VerifyResult {
	r := VerifyResult{Image: path, Verdict: "FAILED", Reason: "unreadable"}

	img, err := s.loadImage(path)
	if err != nil {
		r.Error = err.Error()
		return r
	}

	rep, err := v.Verify(img.Pixels, img.Metadata)
	if err != nil {
		r.Error = err.Error()
		return r
	}

	r.Verdict, r.Reason = string(rep.Verdict), string(rep.Reason)
	r.Authentic = rep.Authentic()
	r.ContentIntact = rep.ContentIntact
	r.MetadataPresent = rep.MetadataPresent
	r.MetadataAgrees = rep.MetadataAgrees

	if x := rep.Extraction; x != nil {
		r.Recovered, r.Total, r.Scanned = x.Recovered, x.Total, x.Scanned
		r.Offsets = x.Offsets()
	}
	if p := rep.Payload; p != nil {
		r.Hash, r.Nonce, r.NTime, r.Version, r.Status = p.HashHex(), p.NonceHex(), p.NTimeHex(), p.VersionHex(), p.Status
		if fp, err := fingerprint.FromHash(p.Hash); err == nil {
			r.Fingerprint = fp.Short(fingerprint.DefaultShortWords)
		}
	}
	if rep.PoW != nil {
		r.Profile = rep.PoW.Profile.String()
		r.Digest = rep.PoW.DigestHex()
		r.Attempts = rep.PoW.Attempts
	}
	if rep.PoWErr != nil {
		r.PoWError = rep.PoWErr.Error()
	}

	if store != nil && r.Hash != "" {
		if recs, err := store.FindByHash(r.Hash); err == nil && len(recs) > 0 {
			r.LedgerID = recs[0].ID
		}
	}

	return r
}

func displayVerify(w io.Writer, r VerifyResult) {
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)

	verdict := verdictColor(lsb.Verdict(r.Verdict))
	fmt.Fprintln(w)
	verdict.Fprintf(w, "%s %s  %s (%s)\n", verdictIcon(lsb.Verdict(r.Verdict)), r.Verdict, r.Image, r.Reason)

	if r.Error != "" {
		red.Fprintf(w, "  %s\n", r.Error)
		return
	}

	fmt.Fprintf(w, "  Copies:      %d of %d recovered", r.Recovered, r.Total)
	if r.Scanned {
		fmt.Fprint(w, " (deep scan)")
	}
	fmt.Fprintln(w)

	if r.Hash == "" {
		return
	}

	yellow.Fprintln(w, "  Signature:")
	fmt.Fprintf(w, "    Hash:      %s\n", r.Hash)
	fmt.Fprintf(w, "    Nonce:     %s\n", r.Nonce)
	fmt.Fprintf(w, "    Ntime:     %s\n", r.NTime)
	fmt.Fprintf(w, "    Version:   %s\n", r.Version)
	fmt.Fprintf(w, "    Status:    %s\n", r.Status)
	if r.Fingerprint != "" {
		fmt.Fprintf(w, "    Words:     %s\n", r.Fingerprint)
	}

	yellow.Fprintln(w, "  Proof of work:")
	if r.PoWError != "" {
		red.Fprintf(w, "    ✗ %s\n", r.PoWError)
	} else {
		fmt.Fprintf(w, "    Byte order: %s (%d tried)\n", r.Profile, r.Attempts)
		fmt.Fprintf(w, "    Digest:     %s\n", r.Digest)
	}

	yellow.Fprintln(w, "  Advisory:")
	fmt.Fprintf(w, "    Content unchanged: %s\n", yesNo(r.ContentIntact))
	if r.MetadataPresent {
		fmt.Fprintf(w, "    Metadata agrees:   %s\n", yesNo(r.MetadataAgrees))
	} else {
		fmt.Fprintln(w, "    Metadata:          none")
	}
	if r.LedgerID != "" {
		fmt.Fprintf(w, "    Ledger record:     %s\n", r.LedgerID)
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
