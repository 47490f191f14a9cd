package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecordConsensusRound_IncrementsLabeledCounter(t *testing.T) {
	before := testutil.ToFloat64(consensusRoundsTotal.WithLabelValues("poa", "finalized"))
	RecordConsensusRound("poa", "finalized")
	after := testutil.ToFloat64(consensusRoundsTotal.WithLabelValues("poa", "finalized"))
	require.Equal(t, before+1, after)
}

func TestRecordViewChange_IncrementsCounter(t *testing.T) {
	before := testutil.ToFloat64(consensusViewChangesTotal)
	RecordViewChange()
	after := testutil.ToFloat64(consensusViewChangesTotal)
	require.Equal(t, before+1, after)
}

func TestReasonerCacheCounters_Increment(t *testing.T) {
	beforeHit := testutil.ToFloat64(reasonerCacheHitsTotal)
	beforeMiss := testutil.ToFloat64(reasonerCacheMissesTotal)

	RecordReasonerCacheHit()
	RecordReasonerCacheMiss()

	require.Equal(t, beforeHit+1, testutil.ToFloat64(reasonerCacheHitsTotal))
	require.Equal(t, beforeMiss+1, testutil.ToFloat64(reasonerCacheMissesTotal))
}

func TestSetChainHeight_SetsGaugeValue(t *testing.T) {
	SetChainHeight(42)
	require.Equal(t, float64(42), testutil.ToFloat64(chainHeightGauge))
}

func TestObserveQueryLatency_LabelsByOutcome(t *testing.T) {
	ObserveQueryLatency(5*time.Millisecond, false)
	ObserveQueryLatency(5*time.Millisecond, true)
	// Both outcomes resolve to a distinct vector entry without panicking.
	require.NotNil(t, queryLatencySeconds.WithLabelValues("accepted"))
	require.NotNil(t, queryLatencySeconds.WithLabelValues("rejected"))
}

func TestObserveCommitLatency_DoesNotPanic(t *testing.T) {
	ObserveCommitLatency(10 * time.Millisecond)
}
