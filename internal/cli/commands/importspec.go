package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/dante/pkg/core"
	"gopkg.in/yaml.v3"
)

// specFile is the YAML layout of an import spec file: either one spec at
// the top level or a list under imports.
type specFile struct {
	core.ImportSpec `yaml:",inline"`
	Imports         []core.ImportSpec `yaml:"imports"`
}

// LoadSpecFile reads the import specs declared in path. Relative source
// paths resolve against the directory of the spec file.
func LoadSpecFile(path string) ([]core.ImportSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read spec file: %w", err)
	}

	var f specFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse spec file %s: %w", path, err)
	}

	specs := f.Imports
	if len(specs) == 0 {
		if f.SourceFile == "" && f.TargetName == "" {
			return nil, fmt.Errorf("spec file %s declares no imports", path)
		}
		specs = []core.ImportSpec{f.ImportSpec}
	}

	base := filepath.Dir(path)
	for i := range specs {
		kind, err := core.ParseImportKind(string(specs[i].Kind))
		if err != nil {
			return nil, fmt.Errorf("%s: import %d: %w", path, i+1, err)
		}
		specs[i].Kind = kind
		if src := specs[i].SourceFile; src != "" && !filepath.IsAbs(src) {
			specs[i].SourceFile = filepath.Join(base, src)
		}
	}
	return specs, nil
}
