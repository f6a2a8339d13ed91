package interval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDate(t *testing.T) {
	d, err := ParseDate("2025-03-03")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-03", d.String())
	assert.Equal(t, time.Monday, d.Weekday())

	next := d.AddDays(7)
	assert.Equal(t, "2025-03-10", next.String())
	assert.True(t, d.Before(next))
	assert.True(t, next.After(d))
	assert.Equal(t, 0, d.Compare(d))
	assert.Equal(t, 7, d.DaysUntil(next))
	assert.Equal(t, "2025-02-28", d.AddDays(-3).String())

	_, err = ParseDate("03/03/2025")
	assert.Error(t, err)
}

func TestDateOfUsesLocation(t *testing.T) {
	kolkata := time.FixedZone("IST", 5*3600+1800)

	instant := time.Date(2025, 3, 2, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, "2025-03-02", DateOf(instant, time.UTC).String())
	assert.Equal(t, "2025-03-03", DateOf(instant, kolkata).String())
}

func TestDateAtAndSpan(t *testing.T) {
	d := Date{Year: 2025, Month: time.March, Day: 3}
	nine, err := ParseClock("09:00")
	require.NoError(t, err)

	assert.Equal(t, time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC), d.At(nine, time.UTC))
	assert.Equal(t, time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC), d.At(Clock(24*60), time.UTC))

	span := d.Span(time.UTC)
	assert.Equal(t, 24*time.Hour, span.Duration())
}

func TestClock(t *testing.T) {
	c, err := ParseClock("09:30")
	require.NoError(t, err)
	assert.Equal(t, Clock(570), c)
	assert.Equal(t, "09:30", c.String())

	end, err := ParseClock("24:00")
	require.NoError(t, err)
	assert.Equal(t, "24:00", end.String())

	_, err = ParseClock("9h")
	assert.Error(t, err)

	_, err = NewClock(25, 0)
	assert.ErrorIs(t, err, ErrInvalidClock)
	_, err = NewClock(10, 75)
	assert.ErrorIs(t, err, ErrInvalidClock)

	c, err = NewClock(17, 45)
	require.NoError(t, err)
	assert.Equal(t, "17:45", c.String())

	assert.Equal(t, Clock(9*60+15), ClockOf(time.Date(2025, 3, 3, 9, 15, 42, 0, time.UTC), time.UTC))
}
