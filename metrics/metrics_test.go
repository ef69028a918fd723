package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCountersAreRegisteredAndIncrementable(t *testing.T) {
	before := testutil.ToFloat64(ModeContention)
	ModeContention.Inc()
	require.Equal(t, before+1, testutil.ToFloat64(ModeContention))

	BlocksCommitted.WithLabelValues("leader").Inc()
	require.Equal(t, float64(1), testutil.ToFloat64(BlocksCommitted.WithLabelValues("leader")))

	ExecutionOutcomes.WithLabelValues("ok").Inc()
	require.Equal(t, float64(1), testutil.ToFloat64(ExecutionOutcomes.WithLabelValues("ok")))
}

func TestHandlerIsNotNil(t *testing.T) {
	require.NotNil(t, Handler())
}
