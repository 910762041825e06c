// Suffix Array implementation for keyword occurrence counting.
// Adapted from golang_dsa library.
package dsa

import (
	"sort"
	"strings"
)

// SuffixArray indexes a text for O(m log n) substring counting,
// where m is pattern length and n is text length.
type SuffixArray struct {
	text string
	sa   []int // sa[i] = start position of the i-th smallest suffix
}

// BuildSuffixArray constructs a suffix array for the given text.
// Uses prefix doubling.
// Time Complexity: O(n log^2 n)
// Space Complexity: O(n)
func BuildSuffixArray(text string) *SuffixArray {
	n := len(text)
	s := &SuffixArray{text: text, sa: make([]int, n)}
	if n == 0 {
		return s
	}

	rank := make([]int, n)
	tmp := make([]int, n)
	for i := 0; i < n; i++ {
		s.sa[i] = i
		rank[i] = int(text[i])
	}

	rankAt := func(i int) int {
		if i < n {
			return rank[i]
		}
		return -1
	}

	for k := 1; ; k *= 2 {
		less := func(a, b int) bool {
			if rank[a] != rank[b] {
				return rank[a] < rank[b]
			}
			return rankAt(a+k) < rankAt(b+k)
		}
		sort.Slice(s.sa, func(i, j int) bool { return less(s.sa[i], s.sa[j]) })

		tmp[s.sa[0]] = 0
		for i := 1; i < n; i++ {
			tmp[s.sa[i]] = tmp[s.sa[i-1]]
			if less(s.sa[i-1], s.sa[i]) {
				tmp[s.sa[i]]++
			}
		}
		copy(rank, tmp)

		// All ranks unique: the order is final.
		if rank[s.sa[n-1]] == n-1 || k >= n {
			break
		}
	}

	return s
}

// bounds returns the half-open range of suffixes starting with pattern.
func (s *SuffixArray) bounds(pattern string) (int, int) {
	n, m := len(s.sa), len(pattern)
	left := sort.Search(n, func(i int) bool {
		suffix := s.text[s.sa[i]:]
		if len(suffix) > m {
			suffix = suffix[:m]
		}
		return suffix >= pattern
	})
	right := sort.Search(n, func(i int) bool {
		suffix := s.text[s.sa[i]:]
		if len(suffix) > m {
			suffix = suffix[:m]
		}
		return suffix > pattern
	})
	return left, right
}

// Count returns the number of (possibly overlapping) occurrences of pattern.
func (s *SuffixArray) Count(pattern string) int {
	if len(pattern) == 0 || len(s.sa) == 0 {
		return 0
	}
	left, right := s.bounds(pattern)
	return right - left
}

// Search returns the sorted start positions of pattern.
func (s *SuffixArray) Search(pattern string) []int {
	if len(pattern) == 0 || len(s.sa) == 0 {
		return []int{}
	}
	left, right := s.bounds(pattern)
	positions := append([]int(nil), s.sa[left:right]...)
	sort.Ints(positions)
	return positions
}

// Len returns the length of the indexed text.
func (s *SuffixArray) Len() int {
	return len(s.text)
}

// FoldedIndex is a suffix array over the lowercased text, for
// case-insensitive counting.
type FoldedIndex struct {
	sa *SuffixArray
}

// NewFoldedIndex lowercases text and indexes it.
func NewFoldedIndex(text string) *FoldedIndex {
	return &FoldedIndex{sa: BuildSuffixArray(strings.ToLower(text))}
}

// Score returns the summed case-insensitive occurrence count of terms.
func (f *FoldedIndex) Score(terms []string) int {
	total := 0
	for _, term := range terms {
		total += f.sa.Count(strings.ToLower(term))
	}
	return total
}
