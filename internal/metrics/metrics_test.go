package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsCount(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveAttribution("attributed")
	m.ObserveAttribution("attributed")
	m.ObserveAttribution("self_referral")
	m.ObserveMerge("merged", time.Now())
	m.ObservePurchase("capacity_exceeded")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ReferralAttributions.WithLabelValues("attributed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReferralAttributions.WithLabelValues("self_referral")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SuggestionMerges.WithLabelValues("merged")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TicketPurchases.WithLabelValues("capacity_exceeded")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveAttribution("attributed")
		m.ObserveMerge("merged", time.Now())
		m.ObservePurchase("issued")
	})
}
