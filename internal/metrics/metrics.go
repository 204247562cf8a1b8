package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks referral attributions, duplicate merges and ticket purchases.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ReferralAttributions *prometheus.CounterVec
	SuggestionMerges     *prometheus.CounterVec
	MergeDuration        prometheus.Histogram
	TicketPurchases      *prometheus.CounterVec
}

// New registers every metric on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ReferralAttributions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "speakers_referral_attributions_total",
			Help: "Referral attribution attempts by outcome",
		}, []string{"outcome"}),
		SuggestionMerges: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "speakers_suggestion_merges_total",
			Help: "Duplicate suggestion merges by result",
		}, []string{"result"}),
		MergeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "speakers_suggestion_merge_duration_seconds",
			Help:    "Duration of the merge transaction",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		TicketPurchases: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "speakers_ticket_purchases_total",
			Help: "Ticket purchase attempts by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) ObserveAttribution(outcome string) {
	if m == nil {
		return
	}
	m.ReferralAttributions.WithLabelValues(outcome).Inc()
}

// ObserveMerge records the result and duration of a merge. Call with time.Now()
// captured at the start of the operation.
func (m *Metrics) ObserveMerge(result string, start time.Time) {
	if m == nil {
		return
	}
	m.SuggestionMerges.WithLabelValues(result).Inc()
	m.MergeDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObservePurchase(outcome string) {
	if m == nil {
		return
	}
	m.TicketPurchases.WithLabelValues(outcome).Inc()
}
