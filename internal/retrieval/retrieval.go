// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package retrieval ranks indexed handoffs for a query. Retrieval is a pure
// function of the index snapshot and the options; it holds no state between
// calls and never mutates the index.
package retrieval

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/pdiddy/recall-engine/internal/indexstore"
	"github.com/pdiddy/recall-engine/pkg/types"
)

const (
	// MaxResults is the hard ceiling on returned sessions. Larger requests
	// are clamped, not rejected.
	MaxResults = 5

	// DefaultDaysBack is the recency window when the caller does not set one.
	DefaultDaysBack = 30

	// decayHalfLifeDays halves the score for every week a session falls
	// outside the recency window.
	decayHalfLifeDays = 7
)

// Options selects and bounds a retrieval.
type Options struct {
	// Query is the free-text query. Empty means a pure recency listing.
	Query string

	// Now is the as-of time for age computation.
	Now time.Time

	// DaysBack is the recency window in days. Zero uses DefaultDaysBack.
	DaysBack int

	// Max is the requested result count. Zero uses MaxResults; larger
	// values are clamped to MaxResults.
	Max int
}

// Result is one ranked session with its retrieval score. Score is zero in
// recency-listing mode.
type Result struct {
	types.HandoffRecord
	Score float64 `json:"score" yaml:"score"`
}

var tokenRe = regexp.MustCompile(`[^a-z0-9]+`)

// tokenize lowercases the query and splits it on non-alphanumeric runs.
func tokenize(query string) []string {
	var tokens []string
	for _, tok := range tokenRe.Split(strings.ToLower(query), -1) {
		if tok != "" {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

// Retrieve returns the ranked sessions for the options. Sessions with
// substance 0 never appear. An empty result is a valid outcome, not an
// error.
func Retrieve(idx *indexstore.Index, opts Options) []Result {
	max := opts.Max
	if max <= 0 || max > MaxResults {
		max = MaxResults
	}
	daysBack := opts.DaysBack
	if daysBack <= 0 {
		daysBack = DefaultDaysBack
	}

	tokens := tokenize(opts.Query)
	if len(tokens) == 0 {
		return recentSessions(idx, max)
	}
	return scoredSessions(idx, tokens, opts.Now, daysBack, max)
}

// recentSessions lists the most recent retrievable sessions by date, newest
// first, ties broken by session id for determinism.
func recentSessions(idx *indexstore.Index, max int) []Result {
	var results []Result
	for _, rec := range idx.Handoffs {
		if rec.Substance == 0 {
			continue
		}
		results = append(results, Result{HandoffRecord: rec})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Date != results[j].Date {
			return results[i].Date > results[j].Date
		}
		return results[i].SessionID < results[j].SessionID
	})

	if len(results) > max {
		results = results[:max]
	}
	return results
}

// scoredSessions ranks sessions matching at least one query token. Project
// matches are exact on the token and weigh 3x the term's IDF; keyword
// matches are substring and weigh 2x, counted once per distinct stored
// keyword. The summed base score is then shaped by the recency factor.
func scoredSessions(idx *indexstore.Index, tokens []string, now time.Time, daysBack, max int) []Result {
	corpus := idx.Meta.HandoffCount

	var results []Result
	for _, rec := range idx.Handoffs {
		if rec.Substance == 0 {
			continue
		}

		base := matchScore(rec.Projects, idx.ByProject, tokens, corpus, 3, matchProject) +
			matchScore(rec.Keywords, idx.ByKeyword, tokens, corpus, 2, matchKeyword)
		if base == 0 {
			continue
		}

		results = append(results, Result{
			HandoffRecord: rec,
			Score:         base * recencyFactor(ageDays(now, rec.Date), daysBack),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Date != results[j].Date {
			return results[i].Date > results[j].Date
		}
		return results[i].SessionID < results[j].SessionID
	})

	if len(results) > max {
		results = results[:max]
	}
	return results
}

func matchProject(stored, token string) bool {
	return strings.ToLower(stored) == token
}

func matchKeyword(stored, token string) bool {
	return strings.Contains(strings.ToLower(stored), token)
}

// matchScore sums weight * idf over the record's distinct stored terms that
// match at least one query token. Document frequency for a term is the size
// of its own posting list.
func matchScore(terms []string, postings map[string][]string, tokens []string, corpus int, weight float64, match func(stored, token string) bool) float64 {
	var score float64
	seen := make(map[string]bool, len(terms))

	for _, term := range terms {
		if seen[term] {
			continue
		}
		seen[term] = true

		matched := false
		for _, token := range tokens {
			if match(term, token) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}

		df := len(postings[term])
		if df == 0 {
			continue
		}
		score += weight * idf(corpus, df)
	}
	return score
}

// idf is the standard inverse document frequency, log(1 + N/df).
func idf(corpus, df int) float64 {
	return math.Log(1 + float64(corpus)/float64(df))
}

// ageDays returns the whole days between the session date and now's date,
// floored at zero. An unparseable or missing date returns -1.
func ageDays(now time.Time, date string) int {
	parsed, err := time.Parse("2006-01-02", date)
	if err != nil {
		return -1
	}
	nowDate := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	days := int(nowDate.Sub(parsed).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// recencyFactor shapes a base score by session age. Inside the window the
// boost is 1 + 1/sqrt(age), with same-day and one-day-old sessions both
// treated as one day old so the boost stays finite. Outside the window the
// factor decays exponentially with a seven-day half-life applied to the
// excess age. Sessions without a usable date get factor zero and rank last.
func recencyFactor(age, daysBack int) float64 {
	if age < 0 {
		return 0
	}
	if age <= daysBack {
		clamped := age
		if clamped < 1 {
			clamped = 1
		}
		return 1 + 1/math.Sqrt(float64(clamped))
	}
	return math.Pow(0.5, float64(age-daysBack)/decayHalfLifeDays)
}
