package metrics

import "math"

// Running keeps the count, mean and spread of a stream of values using Welford's
// online algorithm, so a render can report frequency statistics without keeping
// every drawn route around.
type Running struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	M2    float64 `json:"-"` // sum of squared differences from the mean
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Resume rebuilds a Running from stored mean, standard deviation and count
func Resume(mean, stddev float64, count int) *Running {
	if count == 0 {
		return &Running{}
	}
	// stddev = sqrt(M2 / n), so M2 = stddev^2 * n
	return &Running{
		Count: count,
		Mean:  mean,
		M2:    stddev * stddev * float64(count),
		Min:   mean,
		Max:   mean,
	}
}

// Add records one observation.
// Reference: https://en.wikipedia.org/wiki/Algorithms_for_calculating_variance#Welford's_online_algorithm
func (r *Running) Add(v float64) {
	if r.Count == 0 || v < r.Min {
		r.Min = v
	}
	if r.Count == 0 || v > r.Max {
		r.Max = v
	}
	r.Count++
	delta := v - r.Mean
	r.Mean += delta / float64(r.Count)
	r.M2 += delta * (v - r.Mean)
}

// StdDev returns the population standard deviation, 0 with fewer than 2 observations
func (r *Running) StdDev() float64 {
	if r.Count < 2 {
		return 0
	}
	return math.Sqrt(r.M2 / float64(r.Count))
}
