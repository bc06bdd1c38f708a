// Package config provides configuration management for the siliconsig CLI
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Davincible/siliconsig/pkg/lsb"
	"github.com/Davincible/siliconsig/pkg/noncesource"
	"github.com/Davincible/siliconsig/pkg/pow"
	"github.com/Davincible/siliconsig/pkg/reedsolomon"
	"github.com/Davincible/siliconsig/pkg/signature"
)

// EnvConfigPath overrides the config file location
const EnvConfigPath = "SILICONSIG_CONFIG"

// Config represents the main configuration structure
type Config struct {
	Version   string          `json:"version"`
	Codec     CodecConfig     `json:"codec"`
	PoW       PoWConfig       `json:"pow"`
	Bridge    BridgeConfig    `json:"bridge"`
	Simulator SimulatorConfig `json:"simulator"`
	Ledger    LedgerConfig    `json:"ledger"`
	UI        UIConfig        `json:"ui"`
	Metrics   MetricsConfig   `json:"metrics"`
}

// CodecConfig controls the embedded layout
type CodecConfig struct {
	Repeats   int  `json:"repeats"`    // Default: 5
	Parity    int  `json:"parity"`     // Default: 32
	Base      int  `json:"base"`       // Bit offset of the first copy
	ScanStep  int  `json:"scan_step"`  // Deep scan stride in bits
	ScanLimit int  `json:"scan_limit"` // 0 scans the whole plane
	Parallel  bool `json:"parallel"`
}

// PoWConfig holds the header fields that are not derived from the image.
// Words are hex strings as they appear in the payload.
type PoWConfig struct {
	Bits    string `json:"bits"`    // Default: 1d00ffff
	Hasher  string `json:"hasher"`  // sha256, blake2b
	Version string `json:"version"` // Default: 20000000
	Status  string `json:"status"`
}

// BridgeConfig configures the hardware bridge client
type BridgeConfig struct {
	Address       string   `json:"address"`
	Timeout       Duration `json:"timeout"`
	Retries       int      `json:"retries"`
	RetryDelay    Duration `json:"retry_delay"`
	RatePerMinute int      `json:"rate_per_minute"` // 0 disables the limit
}

// SimulatorConfig configures CPU mining
type SimulatorConfig struct {
	Profile string `json:"profile"` // Byte-order profile, e.g. "canonical"
	Hasher  string `json:"hasher"`  // Empty follows pow.hasher
}

// LedgerConfig controls the signature record store
type LedgerConfig struct {
	Path    string `json:"path"`
	Enabled bool   `json:"enabled"`
}

// UIConfig contains user interface settings
type UIConfig struct {
	UseColor  bool   `json:"use_color"`
	Verbosity string `json:"verbosity"` // quiet, normal, verbose
}

// MetricsConfig controls the Prometheus textfile export
type MetricsConfig struct {
	TextfilePath string `json:"textfile_path"` // Empty disables export
}

// Duration is a time.Duration that reads and writes as "10s"
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n int64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("duration must be a string like \"10s\": %w", err)
		}
		*d = Duration(time.Duration(n) * time.Millisecond)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Profile is a named preset of codec and proof-of-work settings. Zero
// fields leave the base configuration unchanged.
type Profile struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Codec       CodecConfig `json:"codec"`
	PoW         PoWConfig   `json:"pow"`
	Simulator   string      `json:"simulator_profile,omitempty"`
	Tags        []string    `json:"tags"`
}

// ConfigManager manages configuration loading and saving
type ConfigManager struct {
	config     *Config
	configPath string
	profiles   map[string]*Profile
}

// NewConfigManager creates a manager for the default config location
func NewConfigManager() (*ConfigManager, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}
	return NewConfigManagerAt(configPath)
}

// NewConfigManagerAt creates a manager for configPath, writing the default
// configuration there if the file does not exist yet
func NewConfigManagerAt(configPath string) (*ConfigManager, error) {
	cm := &ConfigManager{
		configPath: configPath,
		profiles:   BuiltinProfiles(),
	}

	if err := cm.LoadConfig(); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		cm.config = DefaultConfig()
		if err := cm.SaveConfig(); err != nil {
			return nil, fmt.Errorf("failed to save default config: %w", err)
		}
	}

	// Profiles are optional
	if err := cm.LoadProfiles(); err != nil {
		return nil, err
	}

	return cm, nil
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version: "1.0.0",
		Codec: CodecConfig{
			Repeats:  lsb.DefaultRepeats,
			Parity:   reedsolomon.DefaultParity,
			ScanStep: lsb.DefaultScanStep,
			Parallel: true,
		},
		PoW: PoWConfig{
			Bits:    fmt.Sprintf("%08x", pow.DefaultBits),
			Hasher:  string(pow.SHA256),
			Version: "20000000",
			Status:  signature.DefaultStatus,
		},
		Bridge: BridgeConfig{
			Address:    noncesource.DefaultBridgeAddress,
			Timeout:    Duration(noncesource.DefaultBridgeTimeout),
			Retries:    noncesource.DefaultBridgeRetries,
			RetryDelay: Duration(noncesource.DefaultBridgeRetryDelay),
		},
		Simulator: SimulatorConfig{
			Profile: "canonical",
		},
		Ledger: LedgerConfig{
			Path:    "~/.local/share/siliconsig/ledger",
			Enabled: true,
		},
		UI: UIConfig{
			UseColor:  true,
			Verbosity: "normal",
		},
	}
}

// BuiltinProfiles returns the presets every installation has
func BuiltinProfiles() map[string]*Profile {
	return map[string]*Profile{
		"mainnet": {
			Name:        "mainnet",
			Description: "Difficulty-1 target, the default for hardware signing",
			PoW:         PoWConfig{Bits: "1d00ffff", Hasher: string(pow.SHA256)},
			Tags:        []string{"hardware"},
		},
		"fast": {
			Name:        "fast",
			Description: "Easy target for CPU simulation and demos",
			PoW:         PoWConfig{Bits: "1f00ffff"},
			Tags:        []string{"simulated", "testing"},
		},
		"robust": {
			Name:        "robust",
			Description: "Seven copies for heavily edited images",
			Codec:       CodecConfig{Repeats: 7},
			Tags:        []string{"codec"},
		},
	}
}

// LoadConfig loads the configuration from disk
func (cm *ConfigManager) LoadConfig() error {
	data, err := os.ReadFile(cm.configPath)
	if err != nil {
		return err
	}

	// start from defaults so missing sections keep sane values
	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	cm.config = config
	return nil
}

// SaveConfig saves the configuration to disk
func (cm *ConfigManager) SaveConfig() error {
	configDir := filepath.Dir(cm.configPath)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cm.config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(cm.configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Path returns the config file location
func (cm *ConfigManager) Path() string {
	return cm.configPath
}

// GetConfig returns the current configuration
func (cm *ConfigManager) GetConfig() *Config {
	return cm.config
}

// SetConfig updates the configuration
func (cm *ConfigManager) SetConfig(config *Config) {
	cm.config = config
}

func (cm *ConfigManager) profilesPath() string {
	return filepath.Join(filepath.Dir(cm.configPath), "profiles.json")
}

// LoadProfiles merges saved profiles over the builtin presets
func (cm *ConfigManager) LoadProfiles() error {
	data, err := os.ReadFile(cm.profilesPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	saved := make(map[string]*Profile)
	if err := json.Unmarshal(data, &saved); err != nil {
		return fmt.Errorf("failed to parse profiles: %w", err)
	}

	for name, p := range saved {
		cm.profiles[name] = p
	}
	return nil
}

// SaveProfiles saves profiles to disk
func (cm *ConfigManager) SaveProfiles() error {
	data, err := json.MarshalIndent(cm.profiles, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal profiles: %w", err)
	}

	if err := os.WriteFile(cm.profilesPath(), data, 0600); err != nil {
		return fmt.Errorf("failed to write profiles: %w", err)
	}

	return nil
}

// AddProfile adds or replaces a profile after checking that it yields a
// valid configuration
func (cm *ConfigManager) AddProfile(profile *Profile) error {
	if profile.Name == "" {
		return fmt.Errorf("profile name cannot be empty")
	}
	if strings.ContainsAny(profile.Name, " \t/\\") {
		return fmt.Errorf("profile name %q contains invalid characters", profile.Name)
	}

	prev, existed := cm.profiles[profile.Name]
	cm.profiles[profile.Name] = profile

	cfg, _ := cm.ApplyProfile(profile.Name)
	if err := cfg.Validate(); err != nil {
		if existed {
			cm.profiles[profile.Name] = prev
		} else {
			delete(cm.profiles, profile.Name)
		}
		return fmt.Errorf("profile '%s': %w", profile.Name, err)
	}

	return cm.SaveProfiles()
}

// GetProfile retrieves a profile by name
func (cm *ConfigManager) GetProfile(name string) (*Profile, error) {
	profile, exists := cm.profiles[name]
	if !exists {
		return nil, fmt.Errorf("profile '%s' not found", name)
	}
	return profile, nil
}

// ListProfiles returns all available profiles sorted by name
func (cm *ConfigManager) ListProfiles() []*Profile {
	profiles := make([]*Profile, 0, len(cm.profiles))
	for _, profile := range cm.profiles {
		profiles = append(profiles, profile)
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Name < profiles[j].Name })
	return profiles
}

// DeleteProfile removes a profile
func (cm *ConfigManager) DeleteProfile(name string) error {
	if _, exists := cm.profiles[name]; !exists {
		return fmt.Errorf("profile '%s' not found", name)
	}
	if _, builtin := BuiltinProfiles()[name]; builtin {
		return fmt.Errorf("profile '%s' is builtin and cannot be deleted", name)
	}

	delete(cm.profiles, name)
	return cm.SaveProfiles()
}

// ApplyProfile overlays the named profile onto a copy of the current
// configuration
func (cm *ConfigManager) ApplyProfile(name string) (*Config, error) {
	out := *cm.config
	if name == "" {
		return &out, nil
	}

	p, err := cm.GetProfile(name)
	if err != nil {
		return nil, err
	}

	if p.Codec.Repeats != 0 {
		out.Codec.Repeats = p.Codec.Repeats
	}
	if p.Codec.Parity != 0 {
		out.Codec.Parity = p.Codec.Parity
	}
	if p.Codec.Base != 0 {
		out.Codec.Base = p.Codec.Base
	}
	if p.PoW.Bits != "" {
		out.PoW.Bits = p.PoW.Bits
	}
	if p.PoW.Hasher != "" {
		out.PoW.Hasher = p.PoW.Hasher
	}
	if p.PoW.Version != "" {
		out.PoW.Version = p.PoW.Version
	}
	if p.PoW.Status != "" {
		out.PoW.Status = p.PoW.Status
	}
	if p.Simulator != "" {
		out.Simulator.Profile = p.Simulator
	}

	return &out, nil
}

// Validate checks every section
func (c *Config) Validate() error {
	if _, err := c.LSBOptions(); err != nil {
		return fmt.Errorf("codec: %w", err)
	}
	if _, err := c.PoW.CompactBits(); err != nil {
		return fmt.Errorf("pow: %w", err)
	}
	if _, err := pow.ParseHasher(c.PoW.Hasher); err != nil {
		return fmt.Errorf("pow: %w", err)
	}
	if _, err := c.PoW.HeaderVersion(); err != nil {
		return fmt.Errorf("pow: %w", err)
	}
	if c.PoW.Status != "" {
		if err := signature.ValidateStatus(c.PoW.Status); err != nil {
			return fmt.Errorf("pow: %w", err)
		}
	}

	if strings.TrimSpace(c.Bridge.Address) == "" {
		return fmt.Errorf("bridge: address cannot be empty")
	}
	if c.Bridge.Timeout <= 0 {
		return fmt.Errorf("bridge: timeout must be positive")
	}
	if c.Bridge.Retries < 0 || c.Bridge.RatePerMinute < 0 {
		return fmt.Errorf("bridge: retries and rate must not be negative")
	}

	if _, err := pow.ParseProfile(c.Simulator.Profile); err != nil {
		return fmt.Errorf("simulator: %w", err)
	}
	if c.Simulator.Hasher != "" {
		if _, err := pow.ParseHasher(c.Simulator.Hasher); err != nil {
			return fmt.Errorf("simulator: %w", err)
		}
	}

	if c.Ledger.Enabled && c.Ledger.Path == "" {
		return fmt.Errorf("ledger: path required when enabled")
	}

	switch c.UI.Verbosity {
	case "", "quiet", "normal", "verbose":
	default:
		return fmt.Errorf("ui: unknown verbosity %q", c.UI.Verbosity)
	}

	return nil
}

// LSBOptions converts the codec section into embedder/extractor options
func (c *Config) LSBOptions() (lsb.Options, error) {
	opts := lsb.Options{
		Repeats:   c.Codec.Repeats,
		Parity:    c.Codec.Parity,
		Base:      c.Codec.Base,
		Parallel:  c.Codec.Parallel,
		ScanStep:  c.Codec.ScanStep,
		ScanLimit: c.Codec.ScanLimit,
	}
	return opts, opts.Validate()
}

// CompactBits parses the target in compact form
func (p PoWConfig) CompactBits() (uint32, error) {
	if p.Bits == "" {
		return pow.DefaultBits, nil
	}
	bits, err := signature.ParseWord(p.Bits)
	if err != nil {
		return 0, err
	}
	target, err := pow.TargetFromBits(bits)
	if err != nil {
		return 0, err
	}
	if norm := pow.BitsFromTarget(target); norm != bits {
		return 0, fmt.Errorf("bits %08x is not in normalized compact form (use %08x)", bits, norm)
	}
	return bits, nil
}

// HeaderVersion parses the block version word
func (p PoWConfig) HeaderVersion() (uint32, error) {
	if p.Version == "" {
		return 0x20000000, nil
	}
	return signature.ParseWord(p.Version)
}

// Verifier builds a proof-of-work verifier from the pow section
func (p PoWConfig) Verifier() (*pow.Verifier, error) {
	bits, err := p.CompactBits()
	if err != nil {
		return nil, err
	}
	h, err := pow.ParseHasher(p.Hasher)
	if err != nil {
		return nil, err
	}
	return &pow.Verifier{Bits: bits, Hasher: h}, nil
}

// Options converts the bridge section for noncesource.NewBridge
func (b BridgeConfig) Options() noncesource.BridgeConfig {
	return noncesource.BridgeConfig{
		Address:       b.Address,
		Timeout:       b.Timeout.Std(),
		Retries:       b.Retries,
		RetryDelay:    b.RetryDelay.Std(),
		RatePerMinute: b.RatePerMinute,
	}
}

// Simulated builds a CPU nonce source; fallback supplies the hasher when the
// simulator section does not name one
func (s SimulatorConfig) Simulated(fallback string) (*noncesource.Simulated, error) {
	profile, err := pow.ParseProfile(s.Profile)
	if err != nil {
		return nil, err
	}
	name := s.Hasher
	if name == "" {
		name = fallback
	}
	h, err := pow.ParseHasher(name)
	if err != nil {
		return nil, err
	}
	return &noncesource.Simulated{Hasher: h, Profile: profile}, nil
}

// ExpandPath resolves a leading ~ to the user's home directory
func ExpandPath(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// getConfigPath returns the configuration file path
func getConfigPath() (string, error) {
	if customPath := os.Getenv(EnvConfigPath); customPath != "" {
		return customPath, nil
	}

	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "siliconsig", "config.json"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", "siliconsig", "config.json"), nil
}
