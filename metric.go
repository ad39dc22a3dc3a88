package vecdb

import "github.com/jefflaplante/vecdb/internal/dist"

// Metric selects the distance function a collection scores queries with.
type Metric = dist.Metric

const (
	L2     = dist.L2
	Cosine = dist.Cosine
)
