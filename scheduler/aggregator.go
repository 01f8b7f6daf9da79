package scheduler

import (
	"fmt"
	"sort"

	"codeswarm/provider"
)

// BucketStats holds dedup accounting for one role bucket.
type BucketStats struct {
	OriginalCount     int `json:"original_count"`
	UniqueCount       int `json:"unique_count"`
	DuplicatesRemoved int `json:"duplicates_removed"`
}

// AggregateStats summarizes the merge across all buckets.
type AggregateStats struct {
	OriginalCount     int                    `json:"original_count"`
	UniqueCount       int                    `json:"unique_count"`
	DuplicatesRemoved int                    `json:"duplicates_removed"`
	DeduplicationRate float64                `json:"deduplication_rate"`
	PerRole           map[string]BucketStats `json:"per_role,omitempty"`
}

// AggregatedReport is the merged, deduplicated output of a run.
type AggregatedReport struct {
	Findings []provider.Finding `json:"findings"`
	Stats    AggregateStats     `json:"stats"`
}

// dedupKey is the equality signature for duplicate findings. Severity is part
// of the key: findings that differ only in severity are never merged.
func dedupKey(f provider.Finding) string {
	return fmt.Sprintf("%s\x00%s\x00%s\x00%s\x00%d", f.Severity, f.Category, f.Message, f.File, f.Line)
}

// Aggregate merges per-task findings, deduplicating within each role bucket
// and keeping the first-seen entry on ties. Errored and nil task results are
// filtered out first. The function is pure: same input, same output, no I/O.
//
// DeduplicationRate is duplicatesRemoved/originalCount, defined as 0 when
// there were no findings at all.
func Aggregate(results map[AgentID]*ExecutionResult) *AggregatedReport {
	// Deterministic bucket fill order regardless of map iteration.
	ids := make([]AgentID, 0, len(results))
	for id, r := range results {
		if r == nil || !r.Succeeded() {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	report := &AggregatedReport{
		Stats: AggregateStats{PerRole: make(map[string]BucketStats)},
	}
	seen := make(map[string]map[string]bool) // role -> dedup key -> present

	for _, id := range ids {
		bucket := report.Stats.PerRole[id.Role]
		if seen[id.Role] == nil {
			seen[id.Role] = make(map[string]bool)
		}
		for _, f := range results[id].Findings {
			bucket.OriginalCount++
			key := dedupKey(f)
			if seen[id.Role][key] {
				bucket.DuplicatesRemoved++
				continue
			}
			seen[id.Role][key] = true
			bucket.UniqueCount++
			report.Findings = append(report.Findings, f)
		}
		report.Stats.PerRole[id.Role] = bucket
	}

	for _, bucket := range report.Stats.PerRole {
		report.Stats.OriginalCount += bucket.OriginalCount
		report.Stats.UniqueCount += bucket.UniqueCount
		report.Stats.DuplicatesRemoved += bucket.DuplicatesRemoved
	}
	if report.Stats.OriginalCount > 0 {
		report.Stats.DeduplicationRate = float64(report.Stats.DuplicatesRemoved) / float64(report.Stats.OriginalCount)
	}

	return report
}

// aggregateSafe never lets an aggregation failure surface to the caller: on
// panic it degrades to an unmerged report with no dedup applied.
func aggregateSafe(results map[AgentID]*ExecutionResult) (report *AggregatedReport) {
	defer func() {
		if r := recover(); r != nil {
			report = &AggregatedReport{Stats: AggregateStats{PerRole: map[string]BucketStats{}}}
			for _, result := range results {
				if result == nil || !result.Succeeded() {
					continue
				}
				report.Findings = append(report.Findings, result.Findings...)
			}
			report.Stats.OriginalCount = len(report.Findings)
			report.Stats.UniqueCount = len(report.Findings)
		}
	}()
	return Aggregate(results)
}
