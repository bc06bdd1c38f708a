package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/Davincible/siliconsig/pkg/noncesource"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// PingResult reports bridge reachability
type PingResult struct {
	Address   string `json:"address"`
	Reachable bool   `json:"reachable"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

func NewPingCommand() *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check that the hardware bridge accepts connections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSession(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			opts := s.cfg.Bridge.Options()
			if address != "" {
				opts.Address = address
			}
			opts.Logger = s.logger
			bridge := noncesource.NewBridge(opts)

			started := time.Now()
			pingErr := bridge.Ping(cmd.Context())
			result := PingResult{
				Address:   opts.Address,
				Reachable: pingErr == nil,
				LatencyMS: time.Since(started).Milliseconds(),
			}
			if pingErr != nil {
				result.Error = pingErr.Error()
			}

			if err := s.emit(result, func(w io.Writer) {
				fmt.Fprintln(w)
				if result.Reachable {
					color.New(color.FgGreen, color.Bold).Fprintf(w, "✓ Bridge at %s is reachable (%d ms)\n", result.Address, result.LatencyMS)
				} else {
					color.New(color.FgRed, color.Bold).Fprintf(w, "✗ Bridge at %s is unreachable\n", result.Address)
				}
			}); err != nil {
				return err
			}
			return pingErr
		},
	}

	cmd.Flags().StringVar(&address, "bridge", "", "Bridge address, overrides the config")

	return cmd
}
