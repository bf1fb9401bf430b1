package marking

import (
	"math"
	"sort"
	"strconv"

	"github.com/trezcool/markit/core/task"
)

const (
	maxTotalBins    = 20
	notAvailable    = "N/A"
	notANumber      = "NaN"
	studentsDataset = "Students"
)

var candidateBinSizes = []int{5, 10, 20, 50, 100}

// Chart is bar chart data: one count per label.
type Chart struct {
	Dataset string   `json:"dataset"`
	Labels  []string `json:"labels"`
	Data    []int    `json:"data"`
}

// prependBuckets puts the NaN then N/A buckets before the value buckets, when not empty.
func (c *Chart) prependBuckets(nanCount, naCount int) {
	if nanCount > 0 {
		c.Labels = append([]string{notANumber}, c.Labels...)
		c.Data = append([]int{nanCount}, c.Data...)
	}
	if naCount > 0 {
		c.Labels = append([]string{notAvailable}, c.Labels...)
		c.Data = append([]int{naCount}, c.Data...)
	}
}

// BarChart counts every distinct value of results, in ascending order.
// nil results are counted in the N/A bucket.
func BarChart(results []*float64) Chart {
	counts := make(map[float64]int)
	values := make([]float64, 0)
	naCount, nanCount := 0, 0
	for _, v := range results {
		switch {
		case v == nil:
			naCount++
		case math.IsNaN(*v):
			nanCount++
		default:
			if _, ok := counts[*v]; !ok {
				values = append(values, *v)
			}
			counts[*v]++
		}
	}
	sort.Float64s(values)

	chart := Chart{Dataset: studentsDataset, Labels: make([]string, 0, len(values)), Data: make([]int, 0, len(values))}
	for _, v := range values {
		chart.Labels = append(chart.Labels, FormatMarks(v))
		chart.Data = append(chart.Data, counts[v])
	}
	chart.prependBuckets(nanCount, naCount)
	return chart
}

// binSize returns the size and number of bins needed to fit values up to max in at most maxBins bins.
// Values too large for int bin bounds all go in a single bin.
func binSize(max float64, maxBins int) (size, bins int) {
	if maxBins < 1 {
		maxBins = 1
	}
	for _, size = range candidateBinSizes {
		if max/float64(size) <= float64(maxBins) {
			break
		}
	}
	for float64(size)*float64(maxBins) < max {
		if size > math.MaxInt/(2*maxBins) {
			return size, 1
		}
		size *= 2
	}
	bins = int(math.Ceil(max / float64(size)))
	if bins < 1 {
		bins = 1
	}
	return size, bins
}

// BinnedBarChart counts results in bins of equal size, labelled "[start, end)".
// The last bin, labelled ">=start", also gets the values out of range.
func BinnedBarChart(results []*float64, maxBins int) Chart {
	size, bins := candidateBinSizes[0], 1
	hasMax := false
	var max float64
	for _, v := range results {
		if v == nil || math.IsNaN(*v) {
			continue
		}
		if !hasMax || *v > max {
			max, hasMax = *v, true
		}
	}
	if hasMax {
		size, bins = binSize(max, maxBins)
	}

	counts := make([]int, bins)
	naCount, nanCount := 0, 0
	for _, v := range results {
		switch {
		case v == nil:
			naCount++
		case math.IsNaN(*v):
			nanCount++
		default:
			bin := bins - 1
			if f := math.Floor(*v / float64(size)); f < float64(bins) {
				bin = int(f)
			}
			if bin < 0 {
				bin = 0
			}
			counts[bin]++
		}
	}

	chart := Chart{Dataset: studentsDataset, Labels: make([]string, 0, bins), Data: counts}
	for i := 0; i < bins; i++ {
		start := size * i
		if i < bins-1 {
			chart.Labels = append(chart.Labels, "["+strconv.Itoa(start)+", "+strconv.Itoa(start+size)+")")
		} else {
			chart.Labels = append(chart.Labels, ">="+strconv.Itoa(start))
		}
	}
	chart.prependBuckets(nanCount, naCount)
	return chart
}

type QuestionSummary struct {
	Question task.Question  `json:"question"`
	Stats    *QuestionStats `json:"stats,omitempty"`
	Chart    Chart          `json:"chart"`
}

// Summary summarises the marks of a task: one chart per marked question,
// plus the distribution of totals when more than one question is marked.
type Summary struct {
	Questions []QuestionSummary `json:"questions"`
	Total     *Chart            `json:"total"`
}

func NewSummary(t task.Task, books []BookSummary, stats []QuestionStats) Summary {
	excluded := ExcludedQuestions(t)
	statsMap := make(map[int64]QuestionStats, len(stats))
	for _, st := range stats {
		statsMap[st.QuestionID] = st
	}

	marksMap := make(map[int64][]*float64)
	totals := make([]*float64, 0, len(books))
	for _, b := range books {
		for i := range b.Markings {
			m := b.Markings[i]
			marksMap[m.QuestionID] = append(marksMap[m.QuestionID], &m.Marks)
		}
		if total, ok := b.Total(excluded); ok {
			totals = append(totals, &total)
		}
	}

	summary := Summary{Questions: make([]QuestionSummary, 0, len(t.Questions))}
	for _, q := range t.Questions {
		marks, ok := marksMap[q.ID]
		if !ok {
			continue
		}
		qs := QuestionSummary{Question: q, Chart: BarChart(marks)}
		qs.Question.MarkerAssignments = nil
		if st, ok := statsMap[q.ID]; ok {
			qs.Stats = &st
		}
		summary.Questions = append(summary.Questions, qs)
	}
	if len(summary.Questions) > 1 {
		total := BinnedBarChart(totals, maxTotalBins)
		summary.Total = &total
	}
	return summary
}
