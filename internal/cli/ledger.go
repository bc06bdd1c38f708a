package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/Davincible/siliconsig/internal/validation"
	"github.com/Davincible/siliconsig/pkg/imagefile"
	"github.com/Davincible/siliconsig/pkg/ledger"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func NewLedgerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Browse the record of signed images",
		Long: `Every successful sign is recorded in a local ledger with the nonce, the
byte order that proved it and the image's fingerprint.`,
		Example: `  siliconsig ledger list
  siliconsig ledger show 3f2a
  siliconsig ledger find <hash>`,
	}

	cmd.AddCommand(
		newLedgerListCommand(),
		newLedgerShowCommand(),
		newLedgerFindCommand(),
		newLedgerDeleteCommand(),
	)

	return cmd
}

func newLedgerListCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List signed images, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, store, err := ledgerSession(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			recs, err := store.List(limit)
			if err != nil {
				return err
			}

			return s.emit(recs, func(w io.Writer) { printRecordsTable(w, recs) })
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum records to show (0 for all)")

	return cmd
}

func newLedgerShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [ID]",
		Short: "Show one record; a unique ID prefix is enough",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, store, err := ledgerSession(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			rec, err := store.Get(strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}

			return s.emit(rec, func(w io.Writer) { displayRecord(w, rec) })
		},
	}

	return cmd
}

func newLedgerFindCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "find [HASH]",
		Short: "Find records by content hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash := strings.ToLower(strings.TrimSpace(args[0]))
			if err := validation.ValidateHash(hash); err != nil {
				return err
			}

			s, store, err := ledgerSession(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			recs, err := store.FindByHash(hash)
			if err != nil {
				return err
			}
			if len(recs) == 0 && !s.json {
				fmt.Fprintf(s.out, "No records found for %s\n", hash)
				return nil
			}

			return s.emit(recs, func(w io.Writer) { printRecordsTable(w, recs) })
		},
	}

	return cmd
}

func newLedgerDeleteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete [ID]",
		Short: "Delete a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, store, err := ledgerSession(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			rec, err := store.Get(strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			if err := store.Delete(rec.ID); err != nil {
				return err
			}

			color.New(color.FgGreen).Fprintf(s.out, "✓ Record %s deleted\n", rec.ID)
			fmt.Fprintln(s.out, "This only removes the ledger entry, not the signed image.")
			return nil
		},
	}

	return cmd
}

func ledgerSession(cmd *cobra.Command) (*session, *ledger.Store, error) {
	s, err := loadSession(cmd)
	if err != nil {
		return nil, nil, err
	}
	store, err := s.requireLedger()
	if err != nil {
		return nil, nil, err
	}
	return s, store, nil
}

func printRecordsTable(w io.Writer, recs []*ledger.Record) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "No signed images recorded yet.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tSOURCE\tNONCE\tHASH\tOUTPUT")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			truncate(r.ID, 8), r.CreatedAt.Format("2006-01-02 15:04"), r.Source, r.Nonce, truncate(r.Hash, 16), r.Output)
	}
	tw.Flush()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

func displayRecord(w io.Writer, r *ledger.Record) {
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan, color.Bold)

	fmt.Fprintf(w, "Signature Record\n")
	fmt.Fprintf(w, "================\n\n")

	fmt.Fprintf(w, "ID: %s\n", r.ID)
	fmt.Fprintf(w, "Created: %s\n", r.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Input: %s\n", r.Input)
	fmt.Fprintf(w, "Output: %s\n", r.Output)
	fmt.Fprintln(w)

	yellow.Fprintln(w, "Signature:")
	fmt.Fprintf(w, "  Hash:        %s\n", r.Hash)
	fmt.Fprintf(w, "  Nonce:       %s\n", r.Nonce)
	fmt.Fprintf(w, "  Ntime:       %s\n", r.NTime)
	fmt.Fprintf(w, "  Version:     %s\n", r.Version)
	fmt.Fprintf(w, "  Extranonce2: %s\n", r.Extranonce2)
	fmt.Fprintf(w, "  Status:      %s\n", r.Status)
	fmt.Fprintf(w, "  Copies at:   %s\n", imagefile.FormatOffsets(r.Offsets))

	yellow.Fprintln(w, "Proof:")
	fmt.Fprintf(w, "  Source:      %s\n", r.Source)
	if r.JobID != "" {
		fmt.Fprintf(w, "  Job:         %s\n", r.JobID)
	}
	fmt.Fprintf(w, "  Byte order:  %s\n", r.Profile)
	fmt.Fprintf(w, "  Digest:      %s\n", r.Digest)

	if r.Fingerprint != "" {
		fmt.Fprintln(w)
		cyan.Fprintln(w, "Fingerprint:")
		printWords(w, r.Fingerprint)
	}
}
