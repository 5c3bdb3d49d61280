package utils

import "sort"

// Avg returns the arithmetic mean, or 0 for an empty input.
func Avg(data ...float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sum := 0.0
	for _, d := range data {
		sum += d
	}
	return sum / float64(len(data))
}

// Median sorts its input in place and returns the middle value, or 0 for an
// empty input.
func Median(data ...float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sort.Float64s(data)
	mid := len(data) / 2
	if len(data)%2 == 1 {
		return data[mid]
	}
	return (data[mid-1] + data[mid]) / 2
}
