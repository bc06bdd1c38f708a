package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnableDisable(t *testing.T) {
	r := New()
	assert.True(t, r.IsEnabled())
	r.Disable()
	assert.False(t, r.IsEnabled())
	r.Enable()
	assert.True(t, r.IsEnabled())
}

func TestRecordOperation(t *testing.T) {
	r := New()

	r.RecordOperation(OpSign, nil, 0.5)
	r.RecordOperation(OpSign, errors.New("boom"), 0.1)
	r.RecordOperation(OpVerify, nil, 0.01)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.OperationsTotal.WithLabelValues(OpSign, StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.OperationsTotal.WithLabelValues(OpSign, StatusError)))
	assert.Equal(t, 3, testutil.CollectAndCount(r.OperationsTotal))
	assert.Equal(t, 2, testutil.CollectAndCount(r.OperationDuration))
}

func TestRecordWhenDisabled(t *testing.T) {
	r := New()
	r.Disable()

	r.RecordOperation(OpVerify, nil, 1)
	r.RecordVerdict("VERIFIED", "ok", 5)
	r.RecordCalibration(3)
	r.RecordNonce("bridge", 0.2)

	assert.Equal(t, 0, testutil.CollectAndCount(r.OperationsTotal))
	assert.Equal(t, 0, testutil.CollectAndCount(r.VerdictsTotal))
	assert.Equal(t, 0, testutil.CollectAndCount(r.NonceLatency))
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.RecordOperation(OpSign, nil, 1)
		r.RecordVerdict("FAILED", "no_copies", 0)
		r.RecordCalibration(1)
		r.RecordNonce("simulated", 1)
		assert.NoError(t, r.WriteTextfile("/nonexistent/metrics.prom"))
	})
}

func TestWriteTextfile(t *testing.T) {
	r := New()
	r.RecordVerdict("MARGINAL", "single_copy", 1)
	r.RecordCalibration(4)

	path := filepath.Join(t.TempDir(), "siliconsig.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.True(t, strings.Contains(out, `siliconsig_verdicts_total{reason="single_copy",verdict="MARGINAL"} 1`), out)
	assert.Contains(t, out, "siliconsig_copies_recovered_count 1")
	assert.Contains(t, out, "siliconsig_calibration_profiles_tried_sum 4")

	assert.NoError(t, r.WriteTextfile(""))
}
