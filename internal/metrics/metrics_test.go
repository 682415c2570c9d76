package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSetAppInfo(t *testing.T) {
	SetAppInfo("1.2.3", "abc123", "go1.25")
	assert.InDelta(t, 1, testutil.ToFloat64(AppInfo.WithLabelValues("1.2.3", "abc123", "go1.25")), 0)
}

func TestJobCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(JobsFinishedTotal.WithLabelValues("sprites", "done"))
	JobsFinishedTotal.WithLabelValues("sprites", "done").Inc()
	after := testutil.ToFloat64(JobsFinishedTotal.WithLabelValues("sprites", "done"))
	assert.InDelta(t, before+1, after, 0)
}
