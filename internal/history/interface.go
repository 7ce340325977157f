package history

import (
	"context"
	"time"
)

// Service records samples and answers usage queries. When history is
// disabled a no-op implementation is returned.
type Service interface {
	Record(ctx context.Context, sample *Sample) error
	Usage(ctx context.Context, days int) ([]DailyUsage, error)
	Close() error
	Enabled() bool
}

// Repository is the storage behind Service.
type Repository interface {
	Record(sample *Sample) error
	Usage(ctx context.Context, since time.Time) ([]DailyUsage, error)
	Close() error
}

// Sample is one derived reading as stored.
type Sample struct {
	ID            string
	SampledAt     time.Time
	Load          float64
	ContainedCo2  float64
	UsedMass      float64
	RemainingMass float64
}

// DailyUsage is the CO2 consumed on one UTC day: the spread between the
// smallest and largest used mass seen that day.
type DailyUsage struct {
	Day     string  `json:"day"`
	Used    float64 `json:"used"`
	Samples int     `json:"samples"`
}
