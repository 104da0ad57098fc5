package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordEvaluation(t *testing.T) {
	c := New()

	c.RecordEvaluation("document", "high", []string{"DUP-001", "DOC-AMT-001"}, 20*time.Millisecond)
	c.RecordEvaluation("document", "high", []string{"DUP-001"}, 10*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.evaluationsTotal.WithLabelValues("document", "high")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.rulesTriggered.WithLabelValues("document", "DUP-001")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.rulesTriggered.WithLabelValues("document", "DOC-AMT-001")))
}

func TestRecordFailure(t *testing.T) {
	c := New()
	c.RecordFailure("company", "facts")
	assert.Equal(t, 1.0, testutil.ToFloat64(c.failuresTotal.WithLabelValues("company", "facts")))
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordEvaluation("document", "low", nil, time.Millisecond)
		c.RecordFailure("document", "store")
	})
}

func TestHandler(t *testing.T) {
	c := New()
	c.RecordEvaluation("company", "medium", []string{"CMP-HRD-001"}, time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `kestrel_evaluations_total{scope="company",severity="medium"} 1`))
	assert.True(t, strings.Contains(string(body), "kestrel_evaluation_duration_seconds_bucket"))
}
