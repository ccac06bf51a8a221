package config

import (
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/gophvault/internal/cryptox"
	"github.com/dmitrijs2005/gophvault/internal/flagx"
)

const (
	EnvVaultFile = "GOPHVAULT_FILE"

	defaultDirName      = ".gophvault"
	defaultVaultFile    = "vault.bin"
	defaultVerifierFile = "vault.db"
)

// valueFlags are all flags of this package that take a value.
var valueFlags = []string{"-c", "-config", "-f", "-d", "-l"}

// Config holds runtime settings for the GophVault CLI.
type Config struct {
	VaultPath    string
	VerifierPath string
	LogLevel     string
	KDF          cryptox.KDFParams
}

func defaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return defaultDirName
	}
	return filepath.Join(home, defaultDirName)
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	dir := defaultDir()
	c.VaultPath = filepath.Join(dir, defaultVaultFile)
	c.VerifierPath = filepath.Join(dir, defaultVerifierFile)
	c.LogLevel = "info"
	c.KDF = cryptox.DefaultKDFParams()
}

// LoadConfig builds a Config from defaults, JSON, environment and flags, in
// that order. args are the program arguments without the binary name; the
// returned slice holds the command words that follow the flags.
func LoadConfig(args []string) (*Config, []string) {
	flags, command := flagx.SplitCommand(args, valueFlags)

	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg, flags)
	parseEnv(cfg)
	parseFlags(cfg, flags)
	return cfg, command
}

func parseEnv(cfg *Config) {
	if v, ok := os.LookupEnv(EnvVaultFile); ok && v != "" {
		cfg.VaultPath = v
	}
}
