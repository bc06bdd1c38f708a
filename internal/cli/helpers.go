package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Davincible/siliconsig/pkg/attest"
	"github.com/Davincible/siliconsig/pkg/config"
	"github.com/Davincible/siliconsig/pkg/imagefile"
	"github.com/Davincible/siliconsig/pkg/ledger"
	"github.com/Davincible/siliconsig/pkg/lsb"
	"github.com/Davincible/siliconsig/pkg/metrics"
	"github.com/Davincible/siliconsig/pkg/noncesource"
	"github.com/Davincible/siliconsig/pkg/pow"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// ErrNotAuthentic is returned by verify when any image fails
var ErrNotAuthentic = errors.New("signature not authentic")

// Process exit codes
const (
	ExitOK           = 0
	ExitFailure      = 1
	ExitNotAuthentic = 2
	ExitHardware     = 3
)

// ExitCode maps a command error to the process exit status
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrNotAuthentic):
		return ExitNotAuthentic
	case noncesource.IsHardwareError(err):
		return ExitHardware
	default:
		return ExitFailure
	}
}

// session carries the loaded configuration and shared collaborators of a
// single command run
type session struct {
	cfg     *config.Config
	manager *config.ConfigManager
	json    bool
	out     io.Writer
	logger  *slog.Logger
	metrics *metrics.Recorder
}

func loadSession(cmd *cobra.Command) (*session, error) {
	jsonOut, _ := cmd.Flags().GetBool("json")
	path, _ := cmd.Flags().GetString("config")
	profile, _ := cmd.Flags().GetString("profile")

	var (
		cm  *config.ConfigManager
		err error
	)
	if path != "" {
		cm, err = config.NewConfigManagerAt(path)
	} else {
		cm, err = config.NewConfigManager()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg, err := cm.ApplyProfile(profile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cm.Path(), err)
	}

	out := cmd.OutOrStdout()
	setupColor(out, cfg.UI.UseColor && !jsonOut)

	return &session{
		cfg:     cfg,
		manager: cm,
		json:    jsonOut,
		out:     out,
		logger:  slog.Default(),
		metrics: metrics.New(),
	}, nil
}

// setupColor disables color unless w is a terminal
func setupColor(w io.Writer, enabled bool) {
	f, ok := w.(*os.File)
	color.NoColor = !enabled || !ok || !term.IsTerminal(int(f.Fd()))
}

// close flushes metrics to the configured textfile
func (s *session) close() {
	if err := s.metrics.WriteTextfile(s.cfg.Metrics.TextfilePath); err != nil {
		s.logger.Warn("failed to export metrics", "error", err)
	}
}

func (s *session) lsbOptions() (lsb.Options, error) {
	opts, err := s.cfg.LSBOptions()
	opts.Logger = s.logger
	return opts, err
}

func (s *session) embedder() (*lsb.Embedder, error) {
	opts, err := s.lsbOptions()
	if err != nil {
		return nil, err
	}
	return lsb.NewEmbedder(opts)
}

func (s *session) extractor() (*lsb.Extractor, error) {
	opts, err := s.lsbOptions()
	if err != nil {
		return nil, err
	}
	return lsb.NewExtractor(opts)
}

func (s *session) powVerifier() (*pow.Verifier, error) {
	v, err := s.cfg.PoW.Verifier()
	if err != nil {
		return nil, err
	}
	v.Logger = s.logger
	return v, nil
}

// source returns the simulator or a bridge client; address overrides the
// configured bridge
func (s *session) source(simulate bool, address string) (noncesource.Source, error) {
	if simulate {
		sim, err := s.cfg.Simulator.Simulated(s.cfg.PoW.Hasher)
		if err != nil {
			return nil, err
		}
		sim.Logger = s.logger
		return sim, nil
	}

	opts := s.cfg.Bridge.Options()
	if address != "" {
		opts.Address = address
	}
	opts.Logger = s.logger
	return noncesource.NewBridge(opts), nil
}

func (s *session) signer(source noncesource.Source, status string) (*attest.Signer, error) {
	e, err := s.embedder()
	if err != nil {
		return nil, err
	}
	check, err := s.powVerifier()
	if err != nil {
		return nil, err
	}
	version, err := s.cfg.PoW.HeaderVersion()
	if err != nil {
		return nil, err
	}
	if status == "" {
		status = s.cfg.PoW.Status
	}

	return &attest.Signer{
		Source:   source,
		Embedder: e,
		Status:   status,
		Version:  version,
		Bits:     check.Bits,
		Check:    check,
		Logger:   s.logger,
		Metrics:  s.metrics,
	}, nil
}

func (s *session) verifier(ignoreMetadata bool) (*attest.Verifier, error) {
	x, err := s.extractor()
	if err != nil {
		return nil, err
	}
	check, err := s.powVerifier()
	if err != nil {
		return nil, err
	}
	return &attest.Verifier{
		Extractor:      x,
		PoW:            check,
		IgnoreMetadata: ignoreMetadata,
		Logger:         s.logger,
		Metrics:        s.metrics,
	}, nil
}

// openLedger returns nil when the ledger is disabled
func (s *session) openLedger() (*ledger.Store, error) {
	if !s.cfg.Ledger.Enabled {
		return nil, nil
	}
	dir, err := config.ExpandPath(s.cfg.Ledger.Path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}
	return ledger.Open(dir)
}

// requireLedger is openLedger for commands that cannot work without one
func (s *session) requireLedger() (*ledger.Store, error) {
	store, err := s.openLedger()
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("ledger is disabled in %s", s.manager.Path())
	}
	return store, nil
}

// emit prints v as JSON with --json, otherwise runs the human renderer
func (s *session) emit(v any, human func(w io.Writer)) error {
	if s.json {
		return printJSON(s.out, v)
	}
	human(s.out)
	return nil
}

func printJSON(w io.Writer, data any) error {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(jsonData))
	return nil
}

// loadImage reads an input image and warns about lossy sources
func (s *session) loadImage(path string) (*imagefile.Image, error) {
	img, err := imagefile.Load(path)
	if err != nil {
		return nil, err
	}
	if img.Format != "png" {
		s.logger.Warn("lossy input; signature embeds are only preserved in PNG output", "path", path, "format", img.Format)
	}
	return img, nil
}

// outputPath derives "<name>_<suffix>.png" next to input
func outputPath(input, suffix string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + "_" + suffix + ".png"
}

// signatureSpan is the region the copies occupy: the recorded offsets when
// present, else the configured layout
func signatureSpan(opts lsb.Options, meta imagefile.Metadata) (start, length int) {
	cw := lsb.CodewordBits(opts.Parity)
	if n := len(meta.Offsets); n > 0 {
		lo, hi := meta.Offsets[0], meta.Offsets[0]
		for _, o := range meta.Offsets[1:] {
			lo, hi = min(lo, o), max(hi, o)
		}
		return lo, hi + cw - lo
	}
	return opts.Base, opts.Repeats * cw
}

func verdictColor(v lsb.Verdict) *color.Color {
	switch v {
	case lsb.Verified:
		return color.New(color.FgGreen, color.Bold)
	case lsb.Marginal:
		return color.New(color.FgYellow, color.Bold)
	default:
		return color.New(color.FgRed, color.Bold)
	}
}

func verdictIcon(v lsb.Verdict) string {
	switch v {
	case lsb.Verified:
		return "✓"
	case lsb.Marginal:
		return "⚠️ "
	default:
		return "✗"
	}
}
