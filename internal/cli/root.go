package cli

import (
	"log/slog"

	"github.com/spf13/cobra"
)

// NewRootCommand assembles the siliconsig command tree. level is raised to
// debug by --verbose; it may be nil.
func NewRootCommand(version string, level *slog.LevelVar) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "siliconsig",
		Short: "Bind images to ASIC proof-of-work signatures",
		Long: `Siliconsig signs images with a proof-of-work nonce found by mining
hardware and hides the signature in the least significant bits of the pixels.

Each signature is a fixed 170 byte record protected by Reed-Solomon parity
and written five times, so verification survives moderate damage:
- VERIFIED: a majority of copies agree
- MARGINAL: a single copy, or an agreeing minority, survived
- FAILED: nothing survived, copies disagree, or the proof of work is invalid

Nonces come from a BM1387 bridge, or from a CPU simulator with --simulate.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose && level != nil {
				level.Set(slog.LevelDebug)
			}
		},
	}

	rootCmd.AddCommand(
		NewSignCommand(),
		NewEmbedCommand(),
		NewVerifyCommand(),
		NewDamageCommand(),
		NewTrialCommand(),
		NewInspectCommand(),
		NewCalibrateCommand(),
		NewPingCommand(),
		NewLedgerCommand(),
		NewConfigCommand(),
	)

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
	rootCmd.PersistentFlags().String("config", "", "Config file (default $SILICONSIG_CONFIG or ~/.config/siliconsig/config.json)")
	rootCmd.PersistentFlags().String("profile", "", "Named settings profile to apply")

	return rootCmd
}
