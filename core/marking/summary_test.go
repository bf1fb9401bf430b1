package marking

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/markit/core/answer"
)

func fPtr(f float64) *float64 { return &f }

func floats(values ...float64) []*float64 {
	out := make([]*float64, 0, len(values))
	for _, v := range values {
		out = append(out, fPtr(v))
	}
	return out
}

func TestBarChart(t *testing.T) {
	tests := []struct {
		name       string
		results    []*float64
		wantLabels []string
		wantData   []int
	}{
		{name: "empty", results: nil, wantLabels: []string{}, wantData: []int{}},
		{name: "sorted distinct values", results: floats(2, 1, 2, 0.5), wantLabels: []string{"0.5", "1", "2"}, wantData: []int{1, 1, 2}},
		{
			name:       "NaN and N/A first",
			results:    append(floats(2, math.NaN(), 1), nil, nil),
			wantLabels: []string{"N/A", "NaN", "1", "2"},
			wantData:   []int{2, 1, 1, 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chart := BarChart(tt.results)
			assert.Equal(t, "Students", chart.Dataset)
			assert.Equal(t, tt.wantLabels, chart.Labels)
			assert.Equal(t, tt.wantData, chart.Data)
		})
	}
}

func Test_binSize(t *testing.T) {
	tests := []struct {
		name     string
		max      float64
		wantSize int
		wantBins int
	}{
		{name: "zero", max: 0, wantSize: 5, wantBins: 1},
		{name: "small", max: 12, wantSize: 5, wantBins: 3},
		{name: "fits smallest size", max: 100, wantSize: 5, wantBins: 20},
		{name: "next candidate", max: 101, wantSize: 10, wantBins: 11},
		{name: "third candidate", max: 250, wantSize: 20, wantBins: 13},
		{name: "doubling", max: 5000, wantSize: 400, wantBins: 13},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size, bins := binSize(tt.max, maxTotalBins)
			assert.Equal(t, tt.wantSize, size)
			assert.Equal(t, tt.wantBins, bins)
		})
	}
}

func Test_binSize_hugeMax(t *testing.T) {
	for _, max := range []float64{1e300, math.Inf(1)} {
		size, bins := binSize(max, maxTotalBins)
		assert.Positive(t, size)
		assert.Equal(t, 1, bins)
	}
}

func TestBinnedBarChart(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		chart := BinnedBarChart(nil, maxTotalBins)
		assert.Equal(t, []string{">=0"}, chart.Labels)
		assert.Equal(t, []int{0}, chart.Data)
	})

	t.Run("bins", func(t *testing.T) {
		chart := BinnedBarChart(floats(0, 4.9, 5, 12), maxTotalBins)
		assert.Equal(t, []string{"[0, 5)", "[5, 10)", ">=10"}, chart.Labels)
		assert.Equal(t, []int{2, 1, 1}, chart.Data)
	})

	t.Run("last bin", func(t *testing.T) {
		chart := BinnedBarChart(floats(0, 99), maxTotalBins)
		require.Len(t, chart.Labels, 20)
		assert.Equal(t, ">=95", chart.Labels[19])
		assert.Equal(t, 1, chart.Data[0])
		assert.Equal(t, 1, chart.Data[19])
	})

	t.Run("huge total", func(t *testing.T) {
		done := make(chan Chart, 1)
		go func() { done <- BinnedBarChart(floats(1e300, 3), maxTotalBins) }()
		select {
		case chart := <-done:
			assert.Equal(t, []string{">=0"}, chart.Labels)
			assert.Equal(t, []int{2}, chart.Data)
		case <-time.After(3 * time.Second):
			t.Fatal("BinnedBarChart did not return")
		}
	})

	t.Run("NaN and N/A first", func(t *testing.T) {
		chart := BinnedBarChart(append(floats(3, math.NaN()), nil), maxTotalBins)
		assert.Equal(t, []string{"N/A", "NaN", ">=0"}, chart.Labels)
		assert.Equal(t, []int{1, 1, 1}, chart.Data)
	})
}

func TestNewSummary(t *testing.T) {
	tsk := sheetTask()

	t.Run("several questions", func(t *testing.T) {
		stats := []QuestionStats{{QuestionID: 10, Count: 2, Mean: 2.75, Min: 2.5, Max: 3}}
		summary := NewSummary(tsk, sheetBooks(), stats)

		require.Len(t, summary.Questions, 3)
		assert.Equal(t, int64(10), summary.Questions[0].Question.ID)
		assert.Equal(t, []string{"2.5", "3"}, summary.Questions[0].Chart.Labels)
		require.NotNil(t, summary.Questions[0].Stats)
		assert.Equal(t, 2.75, summary.Questions[0].Stats.Mean)
		assert.Nil(t, summary.Questions[1].Stats)

		// totals: 3 (question 20 excluded) and 4; the book without markings is left out
		require.NotNil(t, summary.Total)
		assert.Equal(t, []string{">=0"}, summary.Total.Labels)
		assert.Equal(t, []int{2}, summary.Total.Data)
	})

	t.Run("single question", func(t *testing.T) {
		books := []BookSummary{
			{Book: answer.Book{ID: 1}, Markings: []Marking{{BookID: 1, QuestionID: 30, Marks: 7}}},
		}
		summary := NewSummary(tsk, books, nil)

		require.Len(t, summary.Questions, 1)
		assert.Equal(t, int64(30), summary.Questions[0].Question.ID)
		assert.Nil(t, summary.Total)
	})
}
