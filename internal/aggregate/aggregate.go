// Package aggregate derives founder groupings and completion statistics from
// a flat member snapshot. Everything here is pure and recomputed on demand.
package aggregate

import (
	"strings"

	"github.com/dukerupert/referidos/internal/model"
)

// Stats summarizes a member snapshot.
type Stats struct {
	Total        int
	Completed    int
	Pending      int
	Founders     []string
	FounderCount int
}

// FounderSummary is the per-founder progress shown on cards and bars.
type FounderSummary struct {
	Name      string
	Count     int
	Completed int
	Percent   float64
	Full      bool
}

// UniqueFounders returns the distinct non-blank founder names in first-seen order.
func UniqueFounders(members []model.Member) []string {
	seen := make(map[string]struct{})
	founders := []string{}
	for _, m := range members {
		if strings.TrimSpace(m.Founder) == "" {
			continue
		}
		if _, ok := seen[m.Founder]; ok {
			continue
		}
		seen[m.Founder] = struct{}{}
		founders = append(founders, m.Founder)
	}
	return founders
}

// MembersOf returns the members whose founder equals founder exactly.
func MembersOf(members []model.Member, founder string) []model.Member {
	out := []model.Member{}
	for _, m := range members {
		if m.Founder == founder {
			out = append(out, m)
		}
	}
	return out
}

// ComputeStats counts totals and completion over members.
func ComputeStats(members []model.Member, c model.Classifier) Stats {
	completed := 0
	for _, m := range members {
		if c.IsComplete(m.Complete) {
			completed++
		}
	}
	founders := UniqueFounders(members)
	return Stats{
		Total:        len(members),
		Completed:    completed,
		Pending:      len(members) - completed,
		Founders:     founders,
		FounderCount: len(founders),
	}
}

// ProgressPercent is count/limit as a percentage clamped to [0, 100].
func ProgressPercent(count, limit int) float64 {
	if limit <= 0 || count <= 0 {
		return 0
	}
	if count >= limit {
		return 100
	}
	return float64(count) / float64(limit) * 100
}

// FounderSummaries builds one summary per founder in first-seen order.
func FounderSummaries(members []model.Member, c model.Classifier, limit int) []FounderSummary {
	founders := UniqueFounders(members)
	out := make([]FounderSummary, 0, len(founders))
	for _, f := range founders {
		group := MembersOf(members, f)
		completed := 0
		for _, m := range group {
			if c.IsComplete(m.Complete) {
				completed++
			}
		}
		out = append(out, FounderSummary{
			Name:      f,
			Count:     len(group),
			Completed: completed,
			Percent:   ProgressPercent(len(group), limit),
			Full:      len(group) >= limit,
		})
	}
	return out
}

// Pending returns the members whose flag is not an accepted complete literal.
func Pending(members []model.Member, c model.Classifier) []model.Member {
	out := []model.Member{}
	for _, m := range members {
		if !c.IsComplete(m.Complete) {
			out = append(out, m)
		}
	}
	return out
}

// CanAdd reports whether founder is still below the member limit.
// The limit is only enforced here; the remote API does not know about it.
func CanAdd(members []model.Member, founder string, limit int) bool {
	return len(MembersOf(members, founder)) < limit
}

// FindMember returns the member with the given id.
func FindMember(members []model.Member, id int64) (model.Member, bool) {
	for _, m := range members {
		if m.ID == id {
			return m, true
		}
	}
	return model.Member{}, false
}
