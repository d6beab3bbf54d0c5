package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AliasEntry maps one alias onto a registered name.
type AliasEntry struct {
	Name  string `yaml:"name"`
	Alias string `yaml:"alias"`
}

// AliasManifest is the document read from RegistryConfig.AliasFile:
//
//	aliases:
//	  - name: database
//	    alias: db
type AliasManifest struct {
	Aliases []AliasEntry `yaml:"aliases"`
}

// LoadAliases reads an alias manifest. Entries keep file order, which is the
// order they are registered in.
func LoadAliases(path string) (*AliasManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading alias manifest: %w", err)
	}
	return ParseAliases(data)
}

// ParseAliases decodes an alias manifest and rejects entries with an empty
// name or alias.
func ParseAliases(data []byte) (*AliasManifest, error) {
	var m AliasManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing alias manifest: %w", err)
	}
	for i, e := range m.Aliases {
		if e.Name == "" || e.Alias == "" {
			return nil, fmt.Errorf("alias manifest entry %d: name and alias are required", i)
		}
	}
	return &m, nil
}
