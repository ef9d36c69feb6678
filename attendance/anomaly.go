package attendance

import (
	"fmt"
	"math"
	"time"

	"github.com/Rafhael-Viana/geoproof/geo"
)

const reasonSameTimestamp = "same timestamp"

// Fix is a located moment: where a user claimed to be and when.
type Fix struct {
	Coord geo.Coordinate
	At    time.Time
}

type Anomaly struct {
	HasPrior       bool
	DistanceMeters float64
	Elapsed        time.Duration
	SpeedKmh       float64
	IsAnomalous    bool
	Reason         string
}

// DisplaySpeed rounds to one decimal.
func (a Anomaly) DisplaySpeed() float64 { return math.Round(a.SpeedKmh*10) / 10 }

// DetectAnomaly compares the implied travel speed between prior and current
// against maxSpeedKmh. It looks at one pair of fixes only.
func DetectAnomaly(prior *Fix, current Fix, maxSpeedKmh float64) Anomaly {
	if prior == nil {
		return Anomaly{}
	}

	a := Anomaly{
		HasPrior:       true,
		DistanceMeters: geo.DistanceMeters(prior.Coord, current.Coord),
		Elapsed:        current.At.Sub(prior.At).Abs(),
	}
	if a.Elapsed == 0 {
		a.Reason = reasonSameTimestamp
		return a
	}

	a.SpeedKmh = (a.DistanceMeters / 1000) / a.Elapsed.Hours()
	if a.SpeedKmh > maxSpeedKmh {
		a.IsAnomalous = true
		a.Reason = fmt.Sprintf("Implausible travel speed: %.0f km/h over %.0f m in %s",
			a.SpeedKmh, a.DistanceMeters, a.Elapsed.Round(time.Second))
	}
	return a
}
