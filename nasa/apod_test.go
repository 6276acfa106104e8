package nasa

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidAPODDate(t *testing.T) {
	cases := map[string]bool{
		"1995-06-16": true,
		"1995-06-15": false,
		"2024-05-10": true,
		"2024-05-11": false,
		"2024-02-30": false,
		"2024-5-1":   false,
		"":           false,
	}
	for in, want := range cases {
		assert.Equal(t, want, ValidAPODDate(in, testToday), in)
	}
}

func TestAPODIDRoundTrip(t *testing.T) {
	id := APODID("2020-01-01")
	assert.Equal(t, "apod-2020-01-01", id)

	date, ok := DateFromAPODID(id, testToday)
	assert.True(t, ok)
	assert.Equal(t, "2020-01-01", date)

	_, ok = DateFromAPODID("nasa-2020-01-01", testToday)
	assert.False(t, ok)
	_, ok = DateFromAPODID("apod-1990-01-01", testToday)
	assert.False(t, ok)
}
