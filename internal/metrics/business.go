/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// BusinessMetrics are the storefront counters exported on /metrics
type BusinessMetrics struct {
	GateDecisions       *prometheus.CounterVec
	PreCheckoutTotal    *prometheus.CounterVec
	PreCheckoutDuration prometheus.Histogram
	FulfillmentTotal    *prometheus.CounterVec
	RevenueTotal        *prometheus.CounterVec
	DonationAmountTotal *prometheus.CounterVec
	DeliveryFailures    *prometheus.CounterVec
	JobRuns             *prometheus.CounterVec
	ReconcileMismatches *prometheus.GaugeVec

	gatherer prometheus.Gatherer
}

// New registers the storefront metrics with reg. Tests pass a fresh
// prometheus.NewRegistry(); the server passes prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer, gatherer prometheus.Gatherer) *BusinessMetrics {
	factory := promauto.With(reg)
	return &BusinessMetrics{
		GateDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_gate_decisions_total",
			Help: "Request gate decisions by outcome",
		}, []string{"decision"}),
		PreCheckoutTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_pre_checkout_total",
			Help: "Pre-checkout answers by kind and outcome",
		}, []string{"kind", "outcome"}),
		PreCheckoutDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "storefront_pre_checkout_duration_seconds",
			Help:    "Time spent validating pre-checkout queries",
			Buckets: prometheus.DefBuckets,
		}),
		FulfillmentTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_fulfillment_total",
			Help: "Confirmed payments by kind and resulting status",
		}, []string{"kind", "status"}),
		RevenueTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_revenue_total",
			Help: "Charged amount of completed orders",
		}, []string{"product_type"}),
		DonationAmountTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_donation_amount_total",
			Help: "Donated amount by destination",
		}, []string{"destination"}),
		DeliveryFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_delivery_failures_total",
			Help: "Deliveries that could not reach the buyer",
		}, []string{"product_type"}),
		JobRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_job_runs_total",
			Help: "Scheduled job runs by job and outcome",
		}, []string{"job", "outcome"}),
		ReconcileMismatches: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "storefront_reconcile_mismatches",
			Help: "Rows found out of balance by the last reconciliation",
		}, []string{"ledger"}),
		gatherer: gatherer,
	}
}

// NewDefault registers with the process-wide Prometheus registry
func NewDefault() *BusinessMetrics {
	return New(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// Handler serves the registered metrics in the Prometheus exposition format
func (m *BusinessMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// NewIsolated returns metrics bound to a private registry, for tests and
// one-shot CLI runs that never serve /metrics.
func NewIsolated() *BusinessMetrics {
	reg := prometheus.NewRegistry()
	return New(reg, reg)
}
