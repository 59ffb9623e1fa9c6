package oxasl

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type EnvironmentSuite struct {
	env *envState
	suite.Suite
}

func TestEnvironmentSuite(t *testing.T) {
	assert.Implements(t, (*Environment)(nil), &envState{})

	suite.Run(t, new(EnvironmentSuite))
}

func (s *EnvironmentSuite) SetupTest() {
	s.env = &envState{
		closers: map[string]func(context.Context) error{},
	}
}

func (s *EnvironmentSuite) TestInitJasper() {
	s.Require().NoError(s.env.initJasper())
	s.NotNil(s.env.JasperManager())

	// the manager registers its own closer
	s.Contains(s.env.closers, "jasper-manager")
}

func (s *EnvironmentSuite) TestRegisterCloser() {
	called := false
	s.env.RegisterCloser("test-closer", func(ctx context.Context) error {
		called = true
		return nil
	})

	s.NoError(s.env.Close(context.Background()))
	s.True(called)
}

func (s *EnvironmentSuite) TestCloseAggregatesErrors() {
	s.env.RegisterCloser("ok", func(ctx context.Context) error { return nil })
	s.env.RegisterCloser("broken", func(ctx context.Context) error {
		return errors.New("did not shut down")
	})

	err := s.env.Close(context.Background())
	s.Require().Error(err)
	s.Contains(err.Error(), "broken")
	s.Contains(err.Error(), "did not shut down")
}

func (s *EnvironmentSuite) TestGlobalEnvironment() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	env, err := NewEnvironment(ctx)
	s.Require().NoError(err)
	defer func() { s.NoError(env.Close(ctx)) }()

	SetEnvironment(env)
	s.Equal(env, GetEnvironment())
}
