package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/gophvault/internal/flagx"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Absent fields
// leave the corresponding Config values alone.
type JsonConfig struct {
	VaultPath    string   `json:"vault_path"`
	VerifierPath string   `json:"verifier_path"`
	LogLevel     string   `json:"log_level"`
	KDF          *JsonKDF `json:"kdf"`
}

// JsonKDF overrides Argon2id cost parameters; zero fields keep the default.
type JsonKDF struct {
	Time      uint32 `json:"time"`
	MemoryKiB uint32 `json:"memory_kib"`
	Threads   uint8  `json:"threads"`
}

// parseJson overlays cfg with the JSON file named by -c/-config, if any.
// Read or unmarshal errors panic; main recovers nothing, a broken config
// file is fatal.
func parseJson(cfg *Config, args []string) {
	jsonConfigFile := flagx.JsonConfigFlags(args)
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.VaultPath != "" {
		cfg.VaultPath = jc.VaultPath
	}
	if jc.VerifierPath != "" {
		cfg.VerifierPath = jc.VerifierPath
	}
	if jc.LogLevel != "" {
		cfg.LogLevel = jc.LogLevel
	}
	if jc.KDF != nil {
		if jc.KDF.Time != 0 {
			cfg.KDF.Time = jc.KDF.Time
		}
		if jc.KDF.MemoryKiB != 0 {
			cfg.KDF.MemoryKiB = jc.KDF.MemoryKiB
		}
		if jc.KDF.Threads != 0 {
			cfg.KDF.Threads = jc.KDF.Threads
		}
	}
}
