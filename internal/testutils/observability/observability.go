package observability

import (
	"testing"

	"github.com/quartzledger/quartz/internal/testutils/logger"
	"github.com/quartzledger/quartz/observability"
)

// Default returns an observability setup for tests: no-op metrics, logging
// through t.Log.
func Default(t testing.TB) observability.Observability {
	t.Helper()
	return observability.New(nil, logger.New(t))
}

// NOP returns an observability setup where everything is discarded.
func NOP() observability.Observability {
	return observability.NOP()
}
