package fsl

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"

	"github.com/a3sha2/oxasl"
	"github.com/a3sha2/oxasl/util"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/mongodb/jasper"
	"github.com/pkg/errors"
)

// toolOutputCap bounds how much of a tool's combined output is retained for
// error reporting and parsing.
const toolOutputCap = 64 * 1024 // 64 KB

// Runner executes FSL command line tools.
type Runner interface {
	// Run executes a tool and waits for it to finish.
	Run(ctx context.Context, tool string, args ...string) error
	// RunOutput executes a tool and returns its combined output with
	// surrounding whitespace trimmed.
	RunOutput(ctx context.Context, tool string, args ...string) (string, error)
}

// CmdRunner runs FSL tools as subprocesses through a jasper manager, with
// FSLDIR and FSLOUTPUTTYPE set for every invocation.
type CmdRunner struct {
	jpm        jasper.Manager
	fslDir     string
	outputType string
}

// NewCmdRunner makes a runner for the FSL installation rooted at fslDir. An
// empty outputType falls back to the default.
func NewCmdRunner(jpm jasper.Manager, fslDir, outputType string) (*CmdRunner, error) {
	if jpm == nil {
		return nil, errors.New("no jasper manager given")
	}
	if fslDir == "" {
		return nil, errors.New("no FSL installation directory given")
	}
	if outputType == "" {
		outputType = oxasl.DefaultFSLOutputType
	}
	if !oxasl.ValidOutputType(outputType) {
		return nil, errors.Errorf("invalid FSL output type '%s'", outputType)
	}

	return &CmdRunner{
		jpm:        jpm,
		fslDir:     fslDir,
		outputType: outputType,
	}, nil
}

// FSLDir returns the FSL installation directory the runner invokes tools
// from.
func (r *CmdRunner) FSLDir() string { return r.fslDir }

func (r *CmdRunner) command(ctx context.Context, tool string, args []string, out *util.CappedWriter) *jasper.Command {
	binary := filepath.Join(r.fslDir, "bin", tool)

	grip.Debug(message.Fields{
		"message": "running FSL tool",
		"tool":    tool,
		"args":    strings.Join(args, " "),
	})

	return r.jpm.CreateCommand(ctx).
		Add(append([]string{binary}, args...)).
		AddEnv(oxasl.FSLDirEnvVar, r.fslDir).
		AddEnv(oxasl.FSLOutputTypeEnvVar, r.outputType).
		SetCombinedWriter(out)
}

func (r *CmdRunner) Run(ctx context.Context, tool string, args ...string) error {
	out := &util.CappedWriter{Buffer: &bytes.Buffer{}, MaxBytes: toolOutputCap}
	if err := r.command(ctx, tool, args, out).Run(ctx); err != nil {
		return errors.Wrapf(err, "running '%s': %s", tool, out.String())
	}
	return nil
}

func (r *CmdRunner) RunOutput(ctx context.Context, tool string, args ...string) (string, error) {
	out := &util.CappedWriter{Buffer: &bytes.Buffer{}, MaxBytes: toolOutputCap}
	if err := r.command(ctx, tool, args, out).Run(ctx); err != nil {
		return "", errors.Wrapf(err, "running '%s': %s", tool, out.String())
	}
	return strings.TrimSpace(out.String()), nil
}
