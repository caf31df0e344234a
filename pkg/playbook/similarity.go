package playbook

import (
	"math"

	"github.com/XiaoConstantine/ace-go/pkg/errors"
)

// CosineSimilarity computes dot(a,b)/(|a|*|b|). Vectors of unequal length
// fail with DimensionMismatch. A zero-magnitude vector on either side yields
// 0 rather than dividing by zero.
func CosineSimilarity(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, errors.WithFields(
			errors.New(errors.DimensionMismatch, "embedding dimensions do not match"),
			errors.Fields{"left": len(a), "right": len(b)})
	}

	var dot, magA, magB float64
	for i := range a {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}

	if magA == 0 || magB == 0 {
		return 0, nil
	}

	return dot / (math.Sqrt(magA) * math.Sqrt(magB)), nil
}
