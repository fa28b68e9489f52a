// Package evaluation computes forecast error metrics from predictions paired
// with measured production, deterministically per (model, horizon) and per
// (model, cycle).
package evaluation

import (
	"fmt"
	"math"
)

// MetricType identifies an error metric.
type MetricType string

const (
	MAE  MetricType = "MAE"
	RMSE MetricType = "RMSE"
	MBE  MetricType = "MBE"
)

// Types lists every supported metric type.
var Types = []MetricType{MAE, RMSE, MBE}

// Calculate computes one metric over paired series. errors[i] is defined as
// predicted[i] - actual[i]:
//
//	MAE  = mean(|errors|)
//	RMSE = sqrt(mean(errors²))
//	MBE  = mean(errors)
//
// Both series must be non-empty and of equal length; anything else is a
// caller contract violation, not a data condition.
func Calculate(metricType MetricType, predicted, actual []float64) (float64, error) {
	if len(predicted) == 0 {
		return 0, fmt.Errorf("metric %s: empty input", metricType)
	}
	if len(predicted) != len(actual) {
		return 0, fmt.Errorf("metric %s: %d predictions vs %d readings", metricType, len(predicted), len(actual))
	}

	n := float64(len(predicted))
	switch metricType {
	case MAE:
		var sum float64
		for i := range predicted {
			sum += math.Abs(predicted[i] - actual[i])
		}
		return sum / n, nil
	case RMSE:
		var sum float64
		for i := range predicted {
			e := predicted[i] - actual[i]
			sum += e * e
		}
		return math.Sqrt(sum / n), nil
	case MBE:
		var sum float64
		for i := range predicted {
			sum += predicted[i] - actual[i]
		}
		return sum / n, nil
	default:
		return 0, fmt.Errorf("unsupported metric type %q", metricType)
	}
}
