package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsAreIsolated(t *testing.T) {
	a := New(nil)
	b := New(func() int { return 7 })

	a.LicensesIssued.WithLabelValues("pro").Inc()
	a.LicensesIssued.WithLabelValues("pro").Inc()
	b.CheckoutErrors.Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(a.LicensesIssued.WithLabelValues("pro")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.LicensesIssued.WithLabelValues("pro")))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.CheckoutErrors))

	families, err := b.Registry().Gather()
	require.NoError(t, err)
	var stored float64
	for _, f := range families {
		if f.GetName() == "messageflow_licenses_stored" {
			stored = f.GetMetric()[0].GetGauge().GetValue()
		}
	}
	assert.Equal(t, 7.0, stored)
}
