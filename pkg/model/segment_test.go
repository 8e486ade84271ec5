package model_test

import (
	"math"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/momentseek/pkg/model"
)

func TestRanked(t *testing.T) {
	input := []model.Segment{
		{StartTime: 30, EndTime: 40, Confidence: 0.5},
		{StartTime: 10, EndTime: 20, Confidence: 0.9},
		{StartTime: 5, EndTime: 25, Confidence: 0.5},
		{StartTime: 5, EndTime: 15, Confidence: 0.5},
		{StartTime: 0, EndTime: 1, Confidence: math.NaN()},
	}

	rs := model.Ranked(input)
	gt.A(t, rs).Length(5)
	gt.Equal(t, rs[0], model.Segment{StartTime: 10, EndTime: 20, Confidence: 0.9})
	gt.Equal(t, rs[1], model.Segment{StartTime: 5, EndTime: 15, Confidence: 0.5})
	gt.Equal(t, rs[2], model.Segment{StartTime: 5, EndTime: 25, Confidence: 0.5})
	gt.Equal(t, rs[3], model.Segment{StartTime: 30, EndTime: 40, Confidence: 0.5})
	gt.True(t, math.IsNaN(rs[4].Confidence))

	// input is left untouched
	gt.Equal(t, input[0].StartTime, 30.0)
}

func TestResultSetBest(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		_, ok := model.ResultSet{}.Best()
		gt.False(t, ok)
	})

	t.Run("unordered set", func(t *testing.T) {
		rs := model.ResultSet{
			{StartTime: 8, EndTime: 9, Confidence: 0.7},
			{StartTime: 3, EndTime: 9, Confidence: 0.7},
			{StartTime: 1, EndTime: 2, Confidence: 0.2},
		}
		best, ok := rs.Best()
		gt.True(t, ok)
		gt.Equal(t, best, model.Segment{StartTime: 3, EndTime: 9, Confidence: 0.7})
	})

	t.Run("out of range confidence", func(t *testing.T) {
		rs := model.Ranked([]model.Segment{
			{StartTime: 0, EndTime: 1, Confidence: 1.4},
			{StartTime: 1, EndTime: 2, Confidence: 0.9},
		})
		best, ok := rs.Best()
		gt.True(t, ok)
		gt.Equal(t, best.Confidence, 1.4)
		gt.Equal(t, best.DisplayConfidence(), 1.0)
	})
}

func TestResultSetTop(t *testing.T) {
	rs := model.ResultSet{{EndTime: 1}, {EndTime: 2}, {EndTime: 3}, {EndTime: 4}}
	gt.A(t, rs.Top(3)).Length(3)
	gt.A(t, rs.Top(10)).Length(4)
	gt.A(t, rs.Top(-1)).Length(4)
}

func TestSegmentValid(t *testing.T) {
	testCases := []struct {
		name  string
		seg   model.Segment
		valid bool
	}{
		{"normal", model.Segment{StartTime: 1, EndTime: 2}, true},
		{"zero length", model.Segment{StartTime: 2, EndTime: 2}, false},
		{"reversed", model.Segment{StartTime: 3, EndTime: 2}, false},
		{"negative start", model.Segment{StartTime: -1, EndTime: 2}, false},
		{"infinite end", model.Segment{StartTime: 0, EndTime: math.Inf(1)}, false},
		{"nan start", model.Segment{StartTime: math.NaN(), EndTime: 1}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gt.Equal(t, tc.seg.Valid(), tc.valid)
		})
	}
}

func TestSegmentContains(t *testing.T) {
	s := model.Segment{StartTime: 10, EndTime: 20}
	gt.True(t, s.Contains(10))
	gt.True(t, s.Contains(19.99))
	gt.False(t, s.Contains(20))
	gt.False(t, s.Contains(9.99))
}
