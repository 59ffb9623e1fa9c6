package pkgmeta

import (
	"os"
	"strconv"

	"github.com/a3sha2/oxasl/util"
	"github.com/pkg/errors"
)

// Metadata is the externally-defined descriptive data of a software
// package: identity, version, dependency lists, and the paths the
// package itself declares. Its fields are copied verbatim into a
// recipe at render time.
type Metadata struct {
	Name        string   `yaml:"name"`
	Version     string   `yaml:"version,omitempty"`
	BuildNumber int      `yaml:"build_number,omitempty"`
	BuildDeps   []string `yaml:"build_deps,omitempty"`
	RunDeps     []string `yaml:"run_deps,omitempty"`
	TestDeps    []string `yaml:"test_deps,omitempty"`
	TestPath    string   `yaml:"test_path,omitempty"`
	LicenseFile string   `yaml:"license_file,omitempty"`
	Summary     string   `yaml:"summary,omitempty"`
	Home        string   `yaml:"home,omitempty"`
}

// Load reads package metadata from the named YAML file.
func Load(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading package metadata '%s'", path)
	}

	m := &Metadata{}
	if err := util.UnmarshalYAMLStrictWithFallback(data, m); err != nil {
		return nil, errors.Wrapf(err, "unmarshalling package metadata '%s'", path)
	}
	if m.Name == "" {
		return nil, errors.Errorf("package metadata '%s' declares no name", path)
	}
	return m, nil
}

// Expansions returns the metadata's scalar fields as expansions for
// recipe rendering.
func (m *Metadata) Expansions() *util.Expansions {
	return util.NewExpansions(map[string]string{
		"name":         m.Name,
		"version":      m.Version,
		"build_number": strconv.Itoa(m.BuildNumber),
		"test_path":    m.TestPath,
		"license_file": m.LicenseFile,
		"summary":      m.Summary,
		"home":         m.Home,
	})
}
