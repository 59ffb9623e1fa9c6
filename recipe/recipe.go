package recipe

import (
	"io"
	"os"

	"github.com/a3sha2/oxasl/util"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Recipe is the parsed form of a package recipe: the declarative file
// instructing the build tooling how to build, install, and test a
// package. The recipe owns no build logic of its own; its install and
// test actions are delegated to external commands, and its dependency
// lists are passed through verbatim to whatever resolves them.
type Recipe struct {
	Package      Package                `yaml:"package"`
	Source       Source                 `yaml:"source,omitempty"`
	Build        Build                  `yaml:"build,omitempty"`
	Requirements Requirements           `yaml:"requirements,omitempty"`
	Test         Test                   `yaml:"test,omitempty"`
	About        About                  `yaml:"about,omitempty"`
	Extra        map[string]interface{} `yaml:"extra,omitempty"`
}

// Package identifies what is being packaged.
type Package struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// Source locates the code to package: either a local checkout path or
// a downloadable archive URL with an optional content digest.
type Source struct {
	Path   string `yaml:"path,omitempty"`
	URL    string `yaml:"url,omitempty"`
	SHA256 string `yaml:"sha256,omitempty"`
}

// Build describes the install action and artifact labeling.
type Build struct {
	Number int         `yaml:"number,omitempty"`
	Script *CommandSet `yaml:"script,omitempty"`
	Noarch string      `yaml:"noarch,omitempty"`
}

// Requirements carries the dependency spec strings for building and
// running the package. The strings are opaque to this tool.
type Requirements struct {
	Build []string `yaml:"build,omitempty"`
	Run   []string `yaml:"run,omitempty"`
}

// Test describes the delegated test action: extra requirements, files
// to copy into the test environment, and the commands to run.
type Test struct {
	Requires    []string    `yaml:"requires,omitempty"`
	SourceFiles []string    `yaml:"source_files,omitempty"`
	Imports     []string    `yaml:"imports,omitempty"`
	Commands    *CommandSet `yaml:"commands,omitempty"`
}

// About carries the package's descriptive metadata.
type About struct {
	Home        string `yaml:"home,omitempty"`
	License     string `yaml:"license,omitempty"`
	LicenseFile string `yaml:"license_file,omitempty"`
	Summary     string `yaml:"summary,omitempty"`
}

// ExtraInfo is the typed view of the free-form extra section.
type ExtraInfo struct {
	Maintainers []string `mapstructure:"recipe-maintainers"`
}

// Load reads a recipe from the named file without rendering. Fields
// not present in the schema are rejected.
func Load(path string) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading recipe '%s'", path)
	}
	return parse(data, path)
}

// LoadRendered reads a recipe, expanding ${...} placeholder references
// in the raw text against the given expansions before parsing.
// Rendering is straight substitution; a malformed placeholder is the
// only rendering error.
func LoadRendered(path string, exp *util.Expansions) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading recipe '%s'", path)
	}

	rendered, err := exp.ExpandString(string(data))
	if err != nil {
		return nil, errors.Wrapf(err, "rendering recipe '%s'", path)
	}

	return parse([]byte(rendered), path)
}

func parse(data []byte, path string) (*Recipe, error) {
	r := &Recipe{}
	if err := util.UnmarshalStrict(data, r); err != nil {
		return nil, errors.Wrapf(err, "unmarshalling recipe '%s'", path)
	}
	return r, nil
}

// InstallInvocation returns the argv of the declared install action.
// The recipe must declare exactly one install command; multi-step
// installs belong in a script file invoked by that command.
func (r *Recipe) InstallInvocation() (Invocation, error) {
	cmds := r.Build.Script.List()
	if len(cmds) == 0 {
		return Invocation{}, errors.New("recipe declares no install script")
	}
	if len(cmds) > 1 {
		return Invocation{}, errors.Errorf("recipe declares %d install commands, expected 1", len(cmds))
	}
	return ParseInvocation(cmds[0])
}

// TestInvocations returns the argv of each declared test command, in
// declaration order.
func (r *Recipe) TestInvocations() ([]Invocation, error) {
	cmds := r.Test.Commands.List()
	invocations := make([]Invocation, 0, len(cmds))
	for _, cmd := range cmds {
		inv, err := ParseInvocation(cmd)
		if err != nil {
			return nil, errors.Wrap(err, "parsing test command")
		}
		invocations = append(invocations, inv)
	}
	return invocations, nil
}

// BuildDeps returns the build-time dependency spec strings verbatim.
func (r *Recipe) BuildDeps() []string { return r.Requirements.Build }

// RunDeps returns the run-time dependency spec strings verbatim.
func (r *Recipe) RunDeps() []string { return r.Requirements.Run }

// TestDeps returns the test-time dependency spec strings verbatim.
func (r *Recipe) TestDeps() []string { return r.Test.Requires }

// GetExtraInfo decodes the free-form extra section into its typed
// view.
func (r *Recipe) GetExtraInfo() (ExtraInfo, error) {
	info := ExtraInfo{}
	if len(r.Extra) == 0 {
		return info, nil
	}
	if err := mapstructure.Decode(r.Extra, &info); err != nil {
		return ExtraInfo{}, errors.Wrap(err, "decoding extra section")
	}
	return info, nil
}

// Write re-emits the recipe as YAML.
func (r *Recipe) Write(w io.Writer) error {
	out, err := yaml.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "marshalling recipe")
	}
	_, err = w.Write(out)
	return errors.Wrap(err, "writing recipe")
}
