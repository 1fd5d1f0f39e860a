// Package fuzzy implements typo-tolerant string matching tuned for German
// document text: similarity scoring, rule-based typo variant generation,
// fuzzy containment checks and score-boosted re-ranking.
package fuzzy

import (
	"math"
	"sort"
	"strings"
)

const (
	maxTextVariants = 15
	maxWordVariants = 20
)

// Similarity scores two strings on a [0,1] scale. Exact matches score 1.0,
// case-only differences 0.95, substring containment lands in [0.7,0.9]
// weighted by length ratio, everything else falls back to an edit-based
// ratio over the lowercased inputs.
func Similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	al := strings.ToLower(a)
	bl := strings.ToLower(b)
	if al == bl {
		return 0.95
	}
	if al == "" || bl == "" {
		return 0
	}
	if strings.Contains(al, bl) || strings.Contains(bl, al) {
		la := len([]rune(al))
		lb := len([]rune(bl))
		short, long := la, lb
		if short > long {
			short, long = long, short
		}
		return 0.7 + 0.2*float64(short)/float64(long)
	}
	return editRatio(al, bl)
}

// editRatio is 2*M/T where M is the longest common subsequence length and
// T the total length of both inputs.
func editRatio(a, b string) float64 {
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) == 0 && len(rb) == 0 {
		return 1.0
	}
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			if ra[i-1] == rb[j-1] {
				cur[j] = prev[j-1] + 1
			} else if prev[j] >= cur[j-1] {
				cur[j] = prev[j]
			} else {
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return 2 * float64(prev[len(rb)]) / float64(len(ra)+len(rb))
}

type pattern struct {
	from string
	to   []string
}

// typoPatterns covers common German typing mistakes at the word level:
// doubled and dropped letters, keyboard digraph swaps, phonetic confusions
// and umlaut spellings. Ordered so variant generation stays deterministic.
var typoPatterns = []pattern{
	{"ff", []string{"f"}}, {"ll", []string{"l"}}, {"mm", []string{"m"}}, {"nn", []string{"n"}},
	{"pp", []string{"p"}}, {"rr", []string{"r"}}, {"ss", []string{"s"}}, {"tt", []string{"t"}},
	{"l", []string{"ll"}}, {"m", []string{"mm"}}, {"n", []string{"nn"}},
	{"p", []string{"pp"}}, {"r", []string{"rr"}}, {"s", []string{"ss"}}, {"t", []string{"tt"}},
	{"ei", []string{"ie"}}, {"ie", []string{"ei"}},
	{"eu", []string{"ue"}},
	{"sch", []string{"shc", "sc", "sh"}}, {"ch", []string{"hc", "c"}},
	{"ck", []string{"k", "kc"}}, {"k", []string{"ck"}},
	{"z", []string{"tz"}}, {"tz", []string{"z"}},
	{"v", []string{"f", "w"}}, {"f", []string{"ff", "v", "ph"}}, {"w", []string{"v"}},
	{"ph", []string{"f", "v"}}, {"y", []string{"i", "ü"}}, {"i", []string{"ii", "y"}},
	{"x", []string{"ks", "chs"}}, {"ks", []string{"x"}}, {"chs", []string{"x"}},
	{"qu", []string{"kw"}}, {"kw", []string{"qu"}},
	{"ae", []string{"ä", "e"}}, {"oe", []string{"ö", "o"}}, {"ue", []string{"eu", "ü", "u"}},
	{"ä", []string{"ae", "a", "e"}}, {"ö", []string{"oe", "o"}}, {"ü", []string{"ue", "u"}},
	{"ß", []string{"ss", "s"}},
	{"ung", []string{"ng"}}, {"heit", []string{"eit"}}, {"keit", []string{"eit"}},
	{"schaft", []string{"shaft", "schft"}}, {"lich", []string{"ich"}},
}

// charMappings is applied over the whole text, both directions listed
// explicitly.
var charMappings = [][2]string{
	{"ä", "ae"}, {"ae", "ä"}, {"ä", "a"}, {"a", "ä"},
	{"ö", "oe"}, {"oe", "ö"}, {"ö", "o"}, {"o", "ö"},
	{"ü", "ue"}, {"ue", "ü"}, {"ü", "u"}, {"u", "ü"},
	{"ß", "ss"}, {"ss", "ß"}, {"ß", "s"}, {"s", "ß"},
	{"ie", "ei"}, {"ei", "ie"},
	{"ch", "k"}, {"k", "ch"}, {"ck", "k"}, {"k", "ck"},
	{"v", "f"}, {"f", "v"}, {"w", "v"}, {"v", "w"},
	{"z", "tz"}, {"tz", "z"}, {"c", "k"}, {"k", "c"},
	{"ph", "f"}, {"f", "ph"},
}

// substitutions is the per-character table used for single-position
// substitution variants.
var substitutions = []pattern{
	{"ü", []string{"ue", "u", "y"}}, {"ä", []string{"ae", "a", "e"}}, {"ö", []string{"oe", "o"}},
	{"ß", []string{"ss", "s"}}, {"c", []string{"k", "z"}}, {"k", []string{"c", "ck"}},
	{"v", []string{"f", "w"}}, {"f", []string{"v", "ph"}}, {"z", []string{"tz", "s"}},
}

// TypoVariants generates plausible misspellings of text, bounded to 15
// entries. The original string and its lowercase form are always present.
func TypoVariants(text string) []string {
	out := make([]string, 0, maxTextVariants)
	seen := make(map[string]bool, maxTextVariants)
	add := func(v string) {
		if v == "" || seen[v] || len(out) >= maxTextVariants {
			return
		}
		seen[v] = true
		out = append(out, v)
	}

	lower := strings.ToLower(text)
	add(text)
	add(lower)
	add(strings.ToUpper(text))

	for _, word := range strings.Fields(lower) {
		for _, variant := range wordVariants(word) {
			if variant == word {
				continue
			}
			add(strings.ReplaceAll(lower, word, variant))
			if text != lower {
				add(strings.ReplaceAll(text, word, variant))
			}
		}
	}

	for _, m := range charMappings {
		if !strings.Contains(lower, m[0]) {
			continue
		}
		add(strings.ReplaceAll(lower, m[0], m[1]))
		if len(m[0]) > 1 {
			add(strings.Replace(lower, m[0], m[1], 1))
		}
	}

	return out
}

func wordVariants(word string) []string {
	out := make([]string, 0, maxWordVariants)
	seen := make(map[string]bool, maxWordVariants)
	add := func(v string) {
		if v == "" || seen[v] || len(out) >= maxWordVariants {
			return
		}
		seen[v] = true
		out = append(out, v)
	}

	add(word)

	for _, p := range typoPatterns {
		if !strings.Contains(word, p.from) {
			continue
		}
		for _, r := range p.to {
			add(strings.ReplaceAll(word, p.from, r))
		}
	}

	runes := []rune(word)

	// Adjacent transpositions.
	for i := 0; i < len(runes)-1; i++ {
		t := make([]rune, len(runes))
		copy(t, runes)
		t[i], t[i+1] = t[i+1], t[i]
		add(string(t))
	}

	// Single deletions, only for longer words.
	if len(runes) > 4 {
		for i := range runes {
			d := make([]rune, 0, len(runes)-1)
			d = append(d, runes[:i]...)
			d = append(d, runes[i+1:]...)
			if len(d) >= 3 {
				add(string(d))
			}
		}
	}

	// Single-position substitutions.
	for i, r := range runes {
		for _, p := range substitutions {
			if string(r) != p.from {
				continue
			}
			for _, sub := range p.to {
				add(string(runes[:i]) + sub + string(runes[i+1:]))
			}
		}
	}

	return out
}

// FuzzyContains reports whether haystack contains needle allowing for typos.
// Single-word needles match against each haystack word; multi-word needles
// require most of their words to match somewhere. A sliding character window
// catches phrase-level near-misses.
func FuzzyContains(haystack, needle string, threshold float64) bool {
	h := strings.ToLower(haystack)
	n := strings.ToLower(needle)
	if n == "" {
		return false
	}
	if strings.Contains(h, n) {
		return true
	}

	haystackWords := strings.Fields(h)
	needleWords := strings.Fields(n)

	if len(needleWords) == 1 {
		for _, w := range haystackWords {
			if Similarity(w, needleWords[0]) >= threshold {
				return true
			}
		}
	} else {
		matched := 0
		for _, nw := range needleWords {
			for _, hw := range haystackWords {
				if Similarity(hw, nw) >= threshold {
					matched++
					break
				}
			}
		}
		required := len(needleWords)
		if len(needleWords) > 2 {
			required = len(needleWords) - 1
		}
		if matched >= required {
			return true
		}
	}

	hr := []rune(h)
	nr := []rune(n)
	for i := 0; i+len(nr) <= len(hr); i++ {
		if Similarity(string(hr[i:i+len(nr)]), n) >= threshold {
			return true
		}
	}
	return false
}

// Candidate is one scored search result handed to Rank.
type Candidate struct {
	ID    string
	Title string
	Text  string
	Score float64
}

// Rank re-scores candidates against the query and returns them sorted by
// descending score. The boost blends title similarity with fuzzy word
// overlap and the final score is capped at 1.0. Input order breaks ties.
func Rank(candidates []Candidate, query string) []Candidate {
	q := strings.ToLower(strings.TrimSpace(query))
	ranked := make([]Candidate, len(candidates))
	copy(ranked, candidates)
	if q == "" {
		sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
		return ranked
	}

	for i := range ranked {
		title := strings.ToLower(ranked[i].Title)
		text := strings.ToLower(ranked[i].Text)

		boost := 0.0
		if title != "" {
			boost = Similarity(title, q) * 0.3
		}
		for _, w := range strings.Fields(q) {
			if len([]rune(w)) <= 2 {
				continue
			}
			if FuzzyContains(title, w, 0.6) {
				boost += 0.15
			} else if FuzzyContains(truncate(text, 200), w, 0.7) {
				boost += 0.05
			}
		}
		ranked[i].Score = math.Min(1.0, ranked[i].Score+boost)
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	return ranked
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
