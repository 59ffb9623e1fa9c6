package oxasl

import (
	"context"
	"sync"

	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/mongodb/jasper"
	"github.com/pkg/errors"
)

var (
	globalEnv     Environment
	globalEnvLock *sync.RWMutex
)

func init() { globalEnvLock = &sync.RWMutex{} }

// GetEnvironment returns the process-wide environment. It is safe for
// concurrent access, but must be configured with SetEnvironment before
// use.
func GetEnvironment() Environment {
	globalEnvLock.RLock()
	defer globalEnvLock.RUnlock()

	return globalEnv
}

func SetEnvironment(env Environment) {
	globalEnvLock.Lock()
	defer globalEnvLock.Unlock()

	globalEnv = env
}

// Environment provides process-level services shared by the oxasl
// subcommands.
type Environment interface {
	// JasperManager is a process manager for running external
	// commands. Every FSL invocation and every packaging step goes
	// through this manager.
	JasperManager() jasper.Manager

	// RegisterCloser adds a function object to an internal tracker to
	// be called by the Close method before process termination. The ID
	// is used in reporting, and must be unique or a new closer will
	// overwrite an existing one.
	RegisterCloser(string, func(context.Context) error)
	// Close calls all registered closers in the environment.
	Close(context.Context) error
}

// NewEnvironment constructs an Environment instance with a running
// jasper manager. When it returns without an error the manager is
// ready for use.
func NewEnvironment(ctx context.Context) (Environment, error) {
	e := &envState{
		closers: map[string]func(context.Context) error{},
	}

	if err := e.initJasper(); err != nil {
		return nil, errors.Wrap(err, "initializing process manager")
	}

	return e, nil
}

type envState struct {
	jasperManager jasper.Manager
	mu            sync.RWMutex
	closers       map[string]func(context.Context) error
}

func (e *envState) initJasper() error {
	jpm, err := jasper.NewSynchronizedManager(false)
	if err != nil {
		return errors.WithStack(err)
	}

	e.jasperManager = jpm

	e.closers["jasper-manager"] = func(ctx context.Context) error {
		return errors.WithStack(jpm.Close(ctx))
	}

	return nil
}

func (e *envState) JasperManager() jasper.Manager {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.jasperManager
}

func (e *envState) RegisterCloser(name string, closer func(context.Context) error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	grip.AlertWhen(e.closers[name] != nil, message.Fields{
		"closer":  name,
		"message": "duplicate closer registered",
	})

	e.closers[name] = closer
}

func (e *envState) Close(ctx context.Context) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	catcher := grip.NewBasicCatcher()
	for name, closer := range e.closers {
		catcher.Wrapf(closer(ctx), "closer '%s'", name)
	}

	return catcher.Resolve()
}
