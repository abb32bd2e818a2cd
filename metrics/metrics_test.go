package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestRegistry_StartRequest_IncrementsStartedAndDone(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(prometheus.NewRegistry())
	timer := reg.StartRequest("s3", "list_directory_page")
	timer.ObserveDone(OutcomeOK)

	started, err := reg.RequestsStarted.GetMetricWithLabelValues("s3", "list_directory_page")
	require.NoError(t, err)
	assert.Equal(t, float64(1), counterValue(t, started))

	done, err := reg.RequestsDone.GetMetricWithLabelValues("s3", "list_directory_page", OutcomeOK)
	require.NoError(t, err)
	assert.Equal(t, float64(1), counterValue(t, done))
}

func TestRegistry_NilReceiver_IsNoop(t *testing.T) {
	t.Parallel()

	var reg *Registry
	timer := reg.StartRequest("s3", "list_directory_page")
	timer.ObserveDone(OutcomeError)
	reg.RecordRetry("s3", "list_directory_page")
	reg.RecordReauth("s3")
}

func TestRegistry_RecordRetryAndReauth(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(prometheus.NewRegistry())
	reg.RecordRetry("oauthdrive", "download_file")
	reg.RecordRetry("oauthdrive", "download_file")
	reg.RecordReauth("oauthdrive")

	retries, err := reg.RequestRetries.GetMetricWithLabelValues("oauthdrive", "download_file")
	require.NoError(t, err)
	assert.Equal(t, float64(2), counterValue(t, retries))

	reauths, err := reg.RequestReauths.GetMetricWithLabelValues("oauthdrive")
	require.NoError(t, err)
	assert.Equal(t, float64(1), counterValue(t, reauths))
}
