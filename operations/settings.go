package operations

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/a3sha2/oxasl"
	"github.com/a3sha2/oxasl/fsl"
	"github.com/kardianos/osext"
	"github.com/mitchellh/go-homedir"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/level"
	"github.com/mongodb/jasper"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const localConfigPath = ".oxasl.local.yml"

// ClientSettings represents the data stored in the user's config file,
// by default located at ~/.oxasl.yml. Every field has an environment or
// built-in fallback, so running without a config file is normal.
type ClientSettings struct {
	FSLDir       string `json:"fsl_dir" yaml:"fsl_dir,omitempty"`
	OutputType   string `json:"output_type" yaml:"output_type,omitempty"`
	ReportDir    string `json:"report_dir" yaml:"report_dir,omitempty"`
	BuildWorkDir string `json:"build_work_dir" yaml:"build_work_dir,omitempty"`
	Verbose      bool   `json:"verbose" yaml:"verbose,omitempty"`
	LoadedFrom   string `json:"-" yaml:"-"`
}

func findConfigFilePath(fn string) (string, error) {
	currentBinPath, _ := osext.Executable()

	userHome, err := homedir.Dir()
	if err != nil {
		// workaround for cygwin if we're on windows but couldn't get a homedir
		if runtime.GOOS == "windows" && len(os.Getenv("HOME")) > 0 {
			userHome = os.Getenv("HOME")
		}
	}

	if fn != "" {
		if isValidPath(fn) {
			return fn, nil
		}
		absfn, _ := filepath.Abs(fn)
		if isValidPath(absfn) {
			return absfn, nil
		}
	}
	defaultFiles := []string{
		filepath.Join(userHome, oxasl.DefaultOxaslConfig),
		filepath.Join(filepath.Dir(currentBinPath), oxasl.DefaultOxaslConfig),
	}
	for _, path := range defaultFiles {
		if isValidPath(path) {
			grip.WarningWhen(fn != "", "Couldn't find configuration file, falling back on default.")
			return path, nil
		}
	}

	return "", errors.New("could not find client configuration file on the local system")
}

func isValidPath(path string) bool {
	stat, err := os.Stat(path)
	if err != nil || stat.IsDir() {
		return false
	}
	return true
}

// NewClientSettings loads the client configuration from an explicit
// path or the default locations. A missing file is only an error when a
// path was asked for; otherwise the environment fallbacks apply.
func NewClientSettings(fn string) (*ClientSettings, error) {
	conf := &ClientSettings{}

	path, err := findConfigFilePath(fn)
	if err != nil && fn != "" {
		return nil, errors.Wrapf(err, "finding config file '%s'", fn)
	}
	if err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "reading configuration from file '%s'", path)
		}
		if err = yaml.Unmarshal(data, conf); err != nil {
			return nil, errors.Wrapf(err, "reading YAML data from configuration file '%s'", path)
		}
		conf.LoadedFrom = path
	}

	localData, err := os.ReadFile(localConfigPath)
	if os.IsNotExist(err) {
		conf.applyDefaults()
		return conf, nil
	} else if err != nil {
		return nil, errors.Wrapf(err, "reading local configuration from file '%s'", localConfigPath)
	}

	// Unmarshalling into the same struct will only override fields which are set
	// in the new YAML
	if err = yaml.Unmarshal(localData, conf); err != nil {
		return nil, errors.Wrapf(err, "unmarshalling YAML data from local configuration file '%s'", localConfigPath)
	}

	conf.applyDefaults()
	return conf, nil
}

// applyDefaults fills unset fields from the environment and the
// built-in defaults.
func (s *ClientSettings) applyDefaults() {
	if s.FSLDir == "" {
		s.FSLDir = oxasl.FindFSLDir()
	}
	if s.OutputType == "" {
		s.OutputType = os.Getenv(oxasl.FSLOutputTypeEnvVar)
	}
	if s.OutputType == "" {
		s.OutputType = oxasl.DefaultFSLOutputType
	}
}

func (s *ClientSettings) Write(fn string) error {
	if fn == "" {
		if s.LoadedFrom != "" {
			fn = s.LoadedFrom
		}
	}
	if fn == "" {
		return errors.New("no output location specified")
	}

	yamlData, err := yaml.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "marshalling data to write")
	}

	return errors.Wrapf(os.WriteFile(fn, yamlData, 0644), "writing file '%s'", fn)
}

// SetVerboseLogging lowers the logging threshold to debug when verbose
// mode is configured.
func (s *ClientSettings) SetVerboseLogging() {
	if !s.Verbose {
		return
	}
	sender := grip.GetSender()
	info := sender.Level()
	info.Threshold = level.Debug
	grip.Warning(sender.SetLevel(info))
}

// MakeRunner builds an FSL tool runner from the configured FSL
// installation.
func (s *ClientSettings) MakeRunner() (*fsl.CmdRunner, error) {
	if s.FSLDir == "" {
		return nil, errors.Errorf("no FSL installation found: set %s in the environment or fsl_dir in the client configuration", oxasl.FSLDirEnvVar)
	}

	jpm, err := jasper.NewSynchronizedManager(false)
	if err != nil {
		return nil, errors.Wrap(err, "constructing process manager")
	}

	return fsl.NewCmdRunner(jpm, s.FSLDir, s.OutputType)
}
