// Package agentcfg holds the one piece of agent configuration that isn't a
// CLI flag: the report-queue cap and its drop policy, which §7 leaves
// implementation-defined. Modeled on the teacher's config file idiom
// (gopkg.in/yaml.v3, optional file, compiled-in defaults when absent).
package agentcfg

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the optional YAML file an operator may point the agent at with
// the --config flag; absence of the file is not an error.
type Config struct {
	// ReportQueue bounds the in-memory report queue while disconnected
	// from the server. A cap of 0 means unbounded, which is also the
	// default when no config file is supplied, matching §7's requirement
	// that implementations MUST continue collecting even while
	// disconnected.
	ReportQueue ReportQueueConfig `yaml:"reportQueue"`
}

// ReportQueueConfig configures pkg/reportqueue.Queue's optional cap.
type ReportQueueConfig struct {
	// Cap is the maximum number of reports retained; 0 or negative means
	// unbounded.
	Cap int `yaml:"cap"`
}

// Default returns the compiled-in defaults used when no config file is
// supplied.
func Default() Config {
	return Config{ReportQueue: ReportQueueConfig{Cap: 0}}
}

// LoadFile decodes path as YAML into a Config. A missing file is not an
// error — it returns Default() — since flags and compiled-in defaults
// suffice per §2.2 of SPEC_FULL.md.
func LoadFile(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("agentcfg: reading %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("agentcfg: parsing %s: %w", path, err)
	}
	return cfg, nil
}
