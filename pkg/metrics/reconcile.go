package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ReconcileMetrics records counters for the order reconciliation loop.
type ReconcileMetrics struct {
	polled        prometheus.Counter
	transitions   *prometheus.CounterVec
	refunds       prometheus.Counter
	resubmits     *prometheus.CounterVec
	unknownStatus *prometheus.CounterVec
	pollErrors    *prometheus.CounterVec
}

// NewReconcileMetrics registers the reconcile metrics on the provided registerer.
func NewReconcileMetrics(reg prometheus.Registerer) *ReconcileMetrics {
	if reg == nil {
		return &ReconcileMetrics{}
	}
	polled := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reconcile_orders_polled",
		Help: "Orders polled against providers.",
	})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reconcile_status_transitions",
		Help: "Order status transitions applied, by target status.",
	}, []string{"status"})
	refunds := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reconcile_refunds_applied",
		Help: "Refunds credited by the reconciliation loop.",
	})
	resubmits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reconcile_orders_resubmitted",
		Help: "Pending orders resubmitted to their provider, by provider.",
	}, []string{"provider"})
	unknownStatus := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reconcile_unknown_status",
		Help: "Provider status values outside the known vocabulary.",
	}, []string{"provider"})
	pollErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reconcile_poll_errors",
		Help: "Failed status polls, by provider.",
	}, []string{"provider"})
	reg.MustRegister(polled, transitions, refunds, resubmits, unknownStatus, pollErrors)
	return &ReconcileMetrics{
		polled:        polled,
		transitions:   transitions,
		refunds:       refunds,
		resubmits:     resubmits,
		unknownStatus: unknownStatus,
		pollErrors:    pollErrors,
	}
}

// IncPolled counts one polled order.
func (m *ReconcileMetrics) IncPolled() {
	if m == nil || m.polled == nil {
		return
	}
	m.polled.Inc()
}

// IncTransition counts a status transition into the named status.
func (m *ReconcileMetrics) IncTransition(status string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(status)).Inc()
}

// IncRefund counts one applied refund.
func (m *ReconcileMetrics) IncRefund() {
	if m == nil || m.refunds == nil {
		return
	}
	m.refunds.Inc()
}

// IncResubmit counts a pending order successfully resubmitted.
func (m *ReconcileMetrics) IncResubmit(provider string) {
	if m == nil || m.resubmits == nil {
		return
	}
	m.resubmits.WithLabelValues(normalizeLabel(provider)).Inc()
}

// IncUnknownStatus counts an unrecognized provider status.
func (m *ReconcileMetrics) IncUnknownStatus(provider string) {
	if m == nil || m.unknownStatus == nil {
		return
	}
	m.unknownStatus.WithLabelValues(normalizeLabel(provider)).Inc()
}

// IncPollError counts a failed status poll.
func (m *ReconcileMetrics) IncPollError(provider string) {
	if m == nil || m.pollErrors == nil {
		return
	}
	m.pollErrors.WithLabelValues(normalizeLabel(provider)).Inc()
}
