package mime

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"

	"github.com/nymtech/nym-sub006/internal/shared/types"
)

// LoadConfigFile reads a rule set override. The format follows the file
// extension: .yaml/.yml, .toml or .json.
func LoadConfigFile(path string) (types.BodyConfigMap, error) {
	var cfg types.BodyConfigMap

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read rule file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	case ".toml":
		err = toml.Unmarshal(data, &cfg)
	case ".json":
		err = sonic.Unmarshal(data, &cfg)
	default:
		return cfg, fmt.Errorf("%w: unsupported rule file format %q", ErrInvalidRule, ext)
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadRuleSet reads and compiles a rule set override
func LoadRuleSet(path string) (RuleSet, error) {
	cfg, err := LoadConfigFile(path)
	if err != nil {
		return RuleSet{}, err
	}
	return FromConfig(cfg)
}
