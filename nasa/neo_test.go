package nasa

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func neoWith(minKM, maxKM float64, hazardous bool, missAU ...string) *NearEarthObject {
	n := &NearEarthObject{PotentiallyHazardous: hazardous}
	n.EstimatedDiameter.Kilometers.Min = minKM
	n.EstimatedDiameter.Kilometers.Max = maxKM
	for _, au := range missAU {
		var a CloseApproach
		a.MissDistance.Astronomical = au
		n.CloseApproaches = append(n.CloseApproaches, a)
	}
	return n
}

func TestDangerLevel(t *testing.T) {
	cases := []struct {
		name string
		neo  *NearEarthObject
		want int
	}{
		{"tiny and far", neoWith(0.01, 0.02, false, "0.4"), 0},
		{"small", neoWith(0.1, 0.2, false, "0.4"), 1},
		{"medium", neoWith(0.5, 0.7, false), 2},
		{"large", neoWith(1, 2, false, "0.3"), 3},
		{"close pass", neoWith(0.01, 0.02, false, "0.04"), 3},
		{"closest of several", neoWith(0.01, 0.02, false, "0.5", "0.15", "bogus"), 1},
		{"hazardous only", neoWith(0.01, 0.02, true, "0.5"), 2},
		{"capped", neoWith(2, 3, true, "0.01"), 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DangerLevel(tc.neo))
		})
	}
}
