package manifest

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

type cargoToml struct {
	Package *struct {
		Include []string `toml:"include"`
		Exclude []string `toml:"exclude"`
	} `toml:"package"`
}

// ParseRules extracts `package.include` and `package.exclude` from a Cargo.toml.
func ParseRules(data []byte) (includes, excludes []string, err error) {
	var doc cargoToml
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("failed to parse %s: %w", FileName, err)
	}
	if doc.Package == nil {
		return nil, nil, fmt.Errorf("%s has no [package] section", FileName)
	}
	return doc.Package.Include, doc.Package.Exclude, nil
}

// ReadRules reads and parses the manifest at path.
func ReadRules(path string) (includes, excludes []string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return ParseRules(data)
}
