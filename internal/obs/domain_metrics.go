package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// InvoicesCreatedTotal counts committed invoices by type.
	InvoicesCreatedTotal *prometheus.CounterVec
	// InvoiceCreateFailuresTotal counts rejected invoice creations by reason code.
	InvoiceCreateFailuresTotal *prometheus.CounterVec
	// InvoiceCodeRetriesTotal counts invoice code collisions that forced a retry.
	InvoiceCodeRetriesTotal prometheus.Counter
	// InvoiceStatusChangesTotal counts applied status transitions.
	InvoiceStatusChangesTotal *prometheus.CounterVec
	// VoucherValidationsTotal counts voucher validation outcomes.
	VoucherValidationsTotal *prometheus.CounterVec
	// LowStockProducts reports the products at or below their minimum stock.
	LowStockProducts prometheus.Gauge
	// ExpiringProducts reports the products expiring inside the alert window.
	ExpiringProducts prometheus.Gauge
	// StatsCacheTotal counts analytics cache lookups.
	StatsCacheTotal *prometheus.CounterVec
	// EventsPublishedTotal counts domain event deliveries per topic.
	EventsPublishedTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		InvoicesCreatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoices_created_total",
			Help:      "Count of committed invoices by invoice type.",
		}, []string{"type"})
		InvoiceCreateFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoice_create_failures_total",
			Help:      "Count of rejected invoice creations by reason.",
		}, []string{"reason"})
		InvoiceCodeRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoice_code_retries_total",
			Help:      "Number of invoice creations retried after a code collision.",
		})
		InvoiceStatusChangesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoice_status_changes_total",
			Help:      "Count of applied invoice status transitions.",
		}, []string{"from", "to"})
		VoucherValidationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voucher_validations_total",
			Help:      "Count of voucher validation outcomes.",
		}, []string{"result"})
		LowStockProducts = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "low_stock_products",
			Help:      "Products whose quantity is at or below the minimum stock.",
		})
		ExpiringProducts = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "expiring_products",
			Help:      "Products expiring inside the configured alert window.",
		})
		StatsCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stats_cache_total",
			Help:      "Analytics cache lookups by result.",
		}, []string{"result"})
		EventsPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Domain event deliveries by topic and result.",
		}, []string{"topic", "result"})

		mustRegisterCollector(reg, InvoicesCreatedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				InvoicesCreatedTotal = v
			}
		})
		mustRegisterCollector(reg, InvoiceCreateFailuresTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				InvoiceCreateFailuresTotal = v
			}
		})
		mustRegisterCollector(reg, InvoiceCodeRetriesTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				InvoiceCodeRetriesTotal = v
			}
		})
		mustRegisterCollector(reg, InvoiceStatusChangesTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				InvoiceStatusChangesTotal = v
			}
		})
		mustRegisterCollector(reg, VoucherValidationsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				VoucherValidationsTotal = v
			}
		})
		mustRegisterCollector(reg, LowStockProducts, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Gauge); ok {
				LowStockProducts = v
			}
		})
		mustRegisterCollector(reg, ExpiringProducts, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Gauge); ok {
				ExpiringProducts = v
			}
		})
		mustRegisterCollector(reg, StatsCacheTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				StatsCacheTotal = v
			}
		})
		mustRegisterCollector(reg, EventsPublishedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				EventsPublishedTotal = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}

// CountVoucherValidation records a voucher validation result when metrics are registered.
func CountVoucherValidation(result string) {
	if VoucherValidationsTotal != nil {
		VoucherValidationsTotal.WithLabelValues(result).Inc()
	}
}

// CountInvoiceCreated records a committed invoice.
func CountInvoiceCreated(invoiceType string) {
	if InvoicesCreatedTotal != nil {
		InvoicesCreatedTotal.WithLabelValues(invoiceType).Inc()
	}
}

// CountInvoiceCreateFailure records a rejected invoice creation.
func CountInvoiceCreateFailure(reason string) {
	if InvoiceCreateFailuresTotal != nil {
		InvoiceCreateFailuresTotal.WithLabelValues(reason).Inc()
	}
}

// CountInvoiceCodeRetry records an invoice code collision.
func CountInvoiceCodeRetry() {
	if InvoiceCodeRetriesTotal != nil {
		InvoiceCodeRetriesTotal.Inc()
	}
}

// CountStatusChange records an applied invoice status transition.
func CountStatusChange(from, to string) {
	if InvoiceStatusChangesTotal != nil {
		InvoiceStatusChangesTotal.WithLabelValues(from, to).Inc()
	}
}

// SetLowStock publishes the low stock product count.
func SetLowStock(n int) {
	if LowStockProducts != nil {
		LowStockProducts.Set(float64(n))
	}
}

// SetExpiring publishes the expiring product count.
func SetExpiring(n int) {
	if ExpiringProducts != nil {
		ExpiringProducts.Set(float64(n))
	}
}

// CountStatsCache records an analytics cache hit or miss.
func CountStatsCache(result string) {
	if StatsCacheTotal != nil {
		StatsCacheTotal.WithLabelValues(result).Inc()
	}
}

// CountEvent records a domain event delivery.
func CountEvent(topic, result string) {
	if EventsPublishedTotal != nil {
		EventsPublishedTotal.WithLabelValues(topic, result).Inc()
	}
}
