package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "error", Outcome(errors.New("boom")))
}

func TestObserveSearchCountsInconsistentSnapshots(t *testing.T) {
	before := testutil.ToFloat64(InconsistentSnapshots)

	ObserveSearch("postgres", time.Now(), 2, 100, true, nil)
	assert.Equal(t, before+1, testutil.ToFloat64(InconsistentSnapshots))

	ObserveSearch("postgres", time.Now(), 1, 10, true, errors.New("store down"))
	assert.Equal(t, before+1, testutil.ToFloat64(InconsistentSnapshots), "failed searches are not counted")
}
