package airquality

import (
	"sort"
)

// MergeStats describes what Merge discarded.
type MergeStats struct {
	Input      int `json:"input"`
	Unparsed   int `json:"unparsed"`
	Duplicates int `json:"duplicates"`
}

// Merge builds the canonical frame from zero or more batches.
func Merge(batches ...Batch) Frame {
	f, _ := MergeWithStats(batches...)
	return f
}

// MergeWithStats concatenates non-empty batches in ascending Priority
// (stable, so equal priorities keep call order), sorts by timestamp and keeps
// the last record of every group sharing an instant. With the default
// priorities API data therefore overrides uploaded data on conflict.
// Records without a timestamp are dropped when any batch carries a timeline.
// If none does, the records are concatenated as-is and Timeline is false.
func MergeWithStats(batches ...Batch) (Frame, MergeStats) {
	var stats MergeStats

	ordered := make([]Batch, 0, len(batches))
	for _, b := range batches {
		if len(b.Records) > 0 {
			ordered = append(ordered, b)
		}
	}
	if len(ordered) == 0 {
		return Frame{Records: []Record{}}, stats
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	timeline := false
	for _, b := range ordered {
		stats.Input += len(b.Records)
		if b.Timeline {
			timeline = true
		}
	}

	all := make([]Record, 0, stats.Input)
	for _, b := range ordered {
		for _, r := range b.Records {
			if timeline && r.Timestamp.IsZero() {
				stats.Unparsed++
				continue
			}
			all = append(all, r.clone())
		}
	}
	if !timeline {
		return Frame{Records: all}, stats
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Timestamp.Before(all[j].Timestamp)
	})

	deduped := make([]Record, 0, len(all))
	for i, r := range all {
		if i+1 < len(all) && all[i+1].Timestamp.Equal(r.Timestamp) {
			stats.Duplicates++
			continue
		}
		deduped = append(deduped, r)
	}
	return Frame{Records: deduped, Timeline: true}, stats
}
