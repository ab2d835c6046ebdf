// Package backtest contains the simulation orchestrator: the intra-day time
// cursor and the Backtester state machine that drives one run from PENDING
// to COMPLETE or ERROR.
package backtest

import (
	"time"

	"github.com/austin-starks/nexttrade/internal/types"
	"github.com/austin-starks/nexttrade/pkg/errors"
)

const (
	marketOpenHour    = 9
	marketOpenMinute  = 30
	marketCloseHour   = 16
	marketCloseMinute = 0
)

// TimeCursor tracks the position within a trading day at a configured
// granularity. Day granularity is a two-state machine toggling between
// market open and market close; hour and minute granularities advance by
// fixed sub-day steps. The cursor never advances the calendar date; the
// caller does that when a Next() call rolls past end of day.
type TimeCursor struct {
	Interval types.Interval `yaml:"interval" json:"interval"`
	Step     int            `yaml:"step" json:"step"`
}

// NewTimeCursor returns a cursor positioned at market open.
func NewTimeCursor(interval types.Interval) *TimeCursor {
	return &TimeCursor{Interval: interval}
}

// At computes the wall-clock timestamp of the cursor's current sub-state on
// the given calendar date. Fails on an unrecognized interval.
func (c *TimeCursor) At(date time.Time) (time.Time, error) {
	open := time.Date(date.Year(), date.Month(), date.Day(), marketOpenHour, marketOpenMinute, 0, 0, date.Location())

	switch c.Interval {
	case types.IntervalDay:
		if c.Step == 0 {
			return open, nil
		}

		return time.Date(date.Year(), date.Month(), date.Day(), marketCloseHour, marketCloseMinute, 0, 0, date.Location()), nil
	case types.IntervalHour:
		return open.Add(time.Duration(c.Step) * time.Hour), nil
	case types.IntervalMinute:
		return open.Add(time.Duration(c.Step) * time.Minute), nil
	default:
		return time.Time{}, errors.Newf(errors.ErrCodeInvalidInterval, "unrecognized interval %q", c.Interval)
	}
}

// IsEOD reports whether the cursor is in its last sub-state of the day. The
// Next() call made while IsEOD is true wraps back to market open, and the
// caller must advance the calendar date.
func (c *TimeCursor) IsEOD() bool {
	return c.Step == c.stepsPerDay()-1
}

// Next advances to the following sub-state, wrapping past end of day.
func (c *TimeCursor) Next() {
	c.Step = (c.Step + 1) % c.stepsPerDay()
}

// Reset returns the cursor to market open.
func (c *TimeCursor) Reset() {
	c.Step = 0
}

// StepsPerDay is the number of simulated sub-states per trading day.
func (c *TimeCursor) StepsPerDay() int {
	return c.stepsPerDay()
}

func (c *TimeCursor) stepsPerDay() int {
	switch c.Interval {
	case types.IntervalHour:
		// Hourly marks from 09:30 through 15:30.
		return 7
	case types.IntervalMinute:
		// Minute marks from 09:30 through 15:59.
		return 390
	default:
		return 2
	}
}
