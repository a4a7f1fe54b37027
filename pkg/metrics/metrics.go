package metrics

import (
	"net/http"
	"time"

	"mercadito/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	OrdersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mercadito_orders_created_total",
		Help: "Orders created and confirmed by the fulfillment engine.",
	})

	OrdersRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mercadito_orders_rejected_total",
		Help: "Order requests rejected, labelled by failure kind.",
	}, []string{"kind"})

	StatusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mercadito_order_status_transitions_total",
		Help: "Successful order status transitions.",
	}, []string{"to"})

	StockDecrementFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mercadito_stock_decrement_failures_total",
		Help: "Catalog decrement calls that failed after a local order commit.",
	})

	Compensations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mercadito_order_compensations_total",
		Help: "Orders cancelled by the saga compensator.",
	})
)

// Serve exposes /metrics on addr in a background goroutine. A blank addr
// disables the listener.
func Serve(addr string, log *logger.Logger) {
	if addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("startup", "metrics_started", "Metrics listener on "+addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("startup", "metrics_failed", "Metrics listener stopped", err)
		}
	}()
}
