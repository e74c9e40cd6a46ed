package workflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/simplesurance/stagecoord/internal/logfields"
)

const metricNamespace = "stagecoord_workflow"

const (
	processedDeliveriesMetricName = "processed_deliveries_total"
	stepOutcomesMetricName        = "step_outcomes_total"
	finalizedRunsMetricName       = "finalized_runs_total"
)

const (
	stepLabel   = "step"
	statusLabel = "status"
)

type metricCollector struct {
	logger              *zap.Logger
	processedDeliveries prometheus.Counter
	stepOutcomes        *prometheus.CounterVec
	finalizedRuns       *prometheus.CounterVec
}

var metrics = newMetricCollector()

func newMetricCollector() *metricCollector {
	return &metricCollector{
		logger: zap.L().Named(loggerName).Named("metrics"),
		processedDeliveries: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      processedDeliveriesMetricName,
				Help:      "count of processed webhook deliveries",
			},
		),
		stepOutcomes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      stepOutcomesMetricName,
				Help:      "count of executed automation steps by step type and status",
			},
			[]string{stepLabel, statusLabel},
		),
		finalizedRuns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      finalizedRunsMetricName,
				Help:      "count of finalized automation runs by status",
			},
			[]string{statusLabel},
		),
	}
}

func (m *metricCollector) logGetMetricFailed(metricName string, err error) {
	m.logger.Warn(
		"could not record metric",
		zap.String("metric", metricName),
		logfields.Event("recording_metric_failed"),
		zap.Error(err),
	)
}

func (m *metricCollector) ProcessedDeliveriesInc() {
	m.processedDeliveries.Inc()
}

func (m *metricCollector) StepOutcomeInc(step string, status OutcomeStatus) {
	cnt, err := m.stepOutcomes.GetMetricWith(prometheus.Labels{
		stepLabel:   step,
		statusLabel: string(status),
	})
	if err != nil {
		m.logGetMetricFailed(stepOutcomesMetricName, err)
		return
	}

	cnt.Inc()
}

func (m *metricCollector) RunFinalizedInc(status RunStatus) {
	cnt, err := m.finalizedRuns.GetMetricWith(prometheus.Labels{
		statusLabel: string(status),
	})
	if err != nil {
		m.logGetMetricFailed(finalizedRunsMetricName, err)
		return
	}

	cnt.Inc()
}
