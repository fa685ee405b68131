// Package engineconfig holds the engine-scoped Configuration object:
// address classification lists, the stdio-write ban, the abort threshold,
// and the hashing memory budget. It is constructed once and passed
// explicitly to every component that needs it; no package carries mutable
// globals beyond the usual signal/log singletons.
package engineconfig

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/open-edge-platform/xorriso-engine/internal/diag"
)

// AddressLists holds three glob-pattern lists consulted in whitelist ->
// blacklist -> greylist order.
type AddressLists struct {
	Whitelist []string `json:"whitelist,omitempty" yaml:"whitelist,omitempty"`
	Blacklist []string `json:"blacklist,omitempty" yaml:"blacklist,omitempty"`
	Greylist  []string `json:"greylist,omitempty" yaml:"greylist,omitempty"`
}

// Configuration is the engine-scoped policy object.
type Configuration struct {
	Addresses AddressLists `json:"addresses" yaml:"addresses"`

	// WriteStdioBanned rejects any resolved stdio: address outright.
	WriteStdioBanned bool `json:"writeStdioBanned" yaml:"writeStdioBanned"`

	// DeclaredStdoutFD records whether the caller declared fd 1 at
	// startup. No code reads it: the address resolver learns of a
	// declared stdout descriptor only through its StdoutFDResolver
	// argument.
	DeclaredStdoutFD bool `json:"declaredStdoutFd" yaml:"declaredStdoutFd"`

	// AbortThreshold is the diagnostic sink's default abort threshold.
	AbortThreshold     diag.Severity `json:"-" yaml:"-"`
	AbortThresholdName string        `json:"abortThreshold" yaml:"abortThreshold"`

	// MD5RingMemoryBudgetBytes bounds the asynchronous hashing ring.
	MD5RingMemoryBudgetBytes int64 `json:"md5RingMemoryBudgetBytes" yaml:"md5RingMemoryBudgetBytes"`

	// SCSILoggingEnabled asks the burn backend for verbose transport
	// logging.
	SCSILoggingEnabled bool `json:"scsiLoggingEnabled" yaml:"scsiLoggingEnabled"`
}

const defaultMD5RingBudget = 256 * 1024 * 1024

// Default returns the engine's default Configuration.
func Default() *Configuration {
	return &Configuration{
		AbortThreshold:           diag.FAILURE,
		AbortThresholdName:       diag.FAILURE.String(),
		MD5RingMemoryBudgetBytes: defaultMD5RingBudget,
	}
}

var severityByName = map[string]diag.Severity{
	"DEBUG": diag.DEBUG, "UPDATE": diag.UPDATE, "NOTE": diag.NOTE,
	"WARNING": diag.WARNING, "SORRY": diag.SORRY, "FAILURE": diag.FAILURE,
	"FATAL": diag.FATAL, "ABORT": diag.ABORT,
}

// resolveSeverity fills in AbortThreshold from AbortThresholdName after a
// config document has been unmarshaled, since diag.Severity has no textual
// (de)serialization of its own.
func (c *Configuration) resolveSeverity() error {
	if c.AbortThresholdName == "" {
		c.AbortThreshold = diag.FAILURE
		return nil
	}
	sev, ok := severityByName[c.AbortThresholdName]
	if !ok {
		return fmt.Errorf("unknown abort threshold %q", c.AbortThresholdName)
	}
	c.AbortThreshold = sev
	return nil
}

// LoadFile loads a Configuration from a JSON or YAML document, sniffing
// the codec from the content.
func LoadFile(path string) (*Configuration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, diag.Wrap(diag.KindResource, "read engine config "+path, err)
	}

	cfg := Default()
	if isJSON(data) {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, diag.Wrap(diag.KindFormat, "parse JSON engine config", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, diag.Wrap(diag.KindFormat, "parse YAML engine config", err)
		}
	}
	if cfg.MD5RingMemoryBudgetBytes <= 0 {
		cfg.MD5RingMemoryBudgetBytes = defaultMD5RingBudget
	}
	if err := cfg.resolveSeverity(); err != nil {
		return nil, diag.Wrap(diag.KindFormat, "resolve abort threshold", err)
	}
	return cfg, nil
}

func isJSON(data []byte) bool {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '{', '[':
			return true
		default:
			return false
		}
	}
	return false
}
