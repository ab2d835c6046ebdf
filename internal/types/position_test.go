package types

import (
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/suite"
)

type PositionTestSuite struct {
	suite.Suite
}

func TestPositionSuite(t *testing.T) {
	suite.Run(t, new(PositionTestSuite))
}

func (suite *PositionTestSuite) TestApplyFillWeightedAverage() {
	p := Position{Symbol: "AAPL", Class: AssetClassEquity}

	p.ApplyFill(10, 100)
	suite.Equal(10.0, p.Quantity)
	suite.Equal(100.0, p.AverageCost)

	p.ApplyFill(10, 110)
	suite.Equal(20.0, p.Quantity)
	suite.InDelta(105.0, p.AverageCost, 1e-9)

	// Reducing the position leaves the average cost untouched.
	p.ApplyFill(-5, 120)
	suite.Equal(15.0, p.Quantity)
	suite.InDelta(105.0, p.AverageCost, 1e-9)
}

func (suite *PositionTestSuite) TestApplyFillClosesPosition() {
	p := Position{Symbol: "SPY", Class: AssetClassEquity}
	p.ApplyFill(10, 100)
	p.ApplyFill(-10, 107)

	suite.True(p.IsClosed())
	suite.Equal(0.0, p.AverageCost)
}

func (suite *PositionTestSuite) TestApplyFillShortPosition() {
	p := Position{Symbol: "TSLA", Class: AssetClassEquity}

	p.ApplyFill(-10, 200)
	suite.Equal(-10.0, p.Quantity)
	suite.Equal(200.0, p.AverageCost)

	p.ApplyFill(-10, 220)
	suite.Equal(-20.0, p.Quantity)
	suite.InDelta(210.0, p.AverageCost, 1e-9)
}

func (suite *PositionTestSuite) TestApplyFillFlipThroughZero() {
	p := Position{Symbol: "QQQ", Class: AssetClassEquity}
	p.ApplyFill(10, 100)
	p.ApplyFill(-15, 90)

	suite.Equal(-5.0, p.Quantity)
	suite.Equal(90.0, p.AverageCost)
}

func (suite *PositionTestSuite) TestIsExpired() {
	date := time.Date(2021, 6, 18, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		expiration optional.Option[time.Time]
		expected   bool
	}{
		{"no expiration", optional.None[time.Time](), false},
		{"expired yesterday", optional.Some(date.AddDate(0, 0, -1)), true},
		{"expires tomorrow", optional.Some(date.AddDate(0, 0, 1)), false},
		{"expires today", optional.Some(date), false},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			p := Position{Symbol: "SPY_CALL", Class: AssetClassOption, Expiration: tc.expiration}
			suite.Equal(tc.expected, p.IsExpired(date))
		})
	}
}
