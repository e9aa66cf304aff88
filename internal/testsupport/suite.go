// Package testsupport adapts the teacher's pkg/test suite wrapper for
// queuebacca's own test files: a thin testify/suite embedding that seeds
// a background context per test.
package testsupport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"
)

// Suite embeds testify's suite.Suite with a fresh Ctx for each test.
type Suite struct {
	suite.Suite
	Ctx context.Context
}

func (s *Suite) SetupTest() {
	s.Ctx = context.Background()
}

// Run runs s as a standard Test* function body.
func Run(t *testing.T, s suite.TestingSuite) {
	suite.Run(t, s)
}
