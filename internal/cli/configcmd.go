package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/Davincible/siliconsig/pkg/config"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or initialize configuration",
	}

	cmd.AddCommand(
		newConfigShowCommand(),
		newConfigInitCommand(),
		newConfigProfilesCommand(),
	)

	return cmd
}

func newConfigShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long:  "Print the configuration after the --profile overlay, as commands will use it.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSession(cmd)
			if err != nil {
				return err
			}

			if !s.json {
				color.New(color.FgCyan).Fprintf(s.out, "# %s\n", s.manager.Path())
			}
			return printJSON(s.out, s.cfg)
		},
	}

	return cmd
}

func newConfigInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// loading writes defaults when the file is missing
			s, err := loadSession(cmd)
			if err != nil {
				return err
			}

			if force {
				s.manager.SetConfig(config.DefaultConfig())
				if err := s.manager.SaveConfig(); err != nil {
					return err
				}
			}

			color.New(color.FgGreen).Fprintf(s.out, "✓ Configuration at %s\n", s.manager.Path())
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file with defaults")

	return cmd
}

func newConfigProfilesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "List named settings profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSession(cmd)
			if err != nil {
				return err
			}

			profiles := s.manager.ListProfiles()
			return s.emit(profiles, func(w io.Writer) {
				cyan := color.New(color.FgCyan, color.Bold)
				for _, p := range profiles {
					cyan.Fprintf(w, "%s", p.Name)
					if len(p.Tags) > 0 {
						fmt.Fprintf(w, " [%s]", strings.Join(p.Tags, ", "))
					}
					fmt.Fprintln(w)
					if p.Description != "" {
						fmt.Fprintf(w, "  %s\n", p.Description)
					}
				}
			})
		},
	}

	cmd.AddCommand(
		newProfileAddCommand(),
		newProfileDeleteCommand(),
	)

	return cmd
}

func newProfileAddCommand() *cobra.Command {
	var p config.Profile

	cmd := &cobra.Command{
		Use:   "add [NAME]",
		Short: "Save a named profile; unset fields keep the base configuration",
		Example: `  siliconsig config profiles add lab --bits 1e00ffff --hasher blake2b
  siliconsig config profiles add archive --repeats 9 --tags long-term`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSession(cmd)
			if err != nil {
				return err
			}

			p.Name = strings.TrimSpace(args[0])
			if err := s.manager.AddProfile(&p); err != nil {
				return err
			}

			color.New(color.FgGreen).Fprintf(s.out, "✓ Profile %s saved\n", p.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&p.Description, "description", "", "Profile description")
	cmd.Flags().IntVar(&p.Codec.Repeats, "repeats", 0, "Signature copies")
	cmd.Flags().IntVar(&p.Codec.Parity, "parity", 0, "RS parity symbols")
	cmd.Flags().IntVar(&p.Codec.Base, "base", 0, "Bit offset of the first copy")
	cmd.Flags().StringVar(&p.PoW.Bits, "bits", "", "Compact target")
	cmd.Flags().StringVar(&p.PoW.Hasher, "hasher", "", "Hash function (sha256, blake2b)")
	cmd.Flags().StringVar(&p.PoW.Version, "version", "", "Block version")
	cmd.Flags().StringVar(&p.PoW.Status, "status", "", "Status text")
	cmd.Flags().StringVar(&p.Simulator, "simulator", "", "Simulator byte order, e.g. nonce=le")
	cmd.Flags().StringSliceVar(&p.Tags, "tags", nil, "Tags")

	return cmd
}

func newProfileDeleteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete [NAME]",
		Short: "Delete a saved profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSession(cmd)
			if err != nil {
				return err
			}

			name := strings.TrimSpace(args[0])
			if err := s.manager.DeleteProfile(name); err != nil {
				return err
			}

			color.New(color.FgGreen).Fprintf(s.out, "✓ Profile %s deleted\n", name)
			return nil
		},
	}

	return cmd
}
