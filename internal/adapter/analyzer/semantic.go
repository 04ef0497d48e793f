package analyzer

import (
	"fmt"
	"os"
	"strings"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/sergi/go-diff/diffmatchpatch"
	"gopkg.in/yaml.v3"

	"github.com/klara-research/klarity/internal/core/domain"
)

// DefaultSimilarityThreshold is the Levenshtein-ratio at which two distinct
// surface forms are considered the same meaning. 0.8 merges casing and
// small-suffix variants without collapsing genuinely different words.
const DefaultSimilarityThreshold = 0.8

// equivalenceRules is the YAML shape for user-supplied token equivalences,
// mirroring how platform profiles are declared elsewhere: easier to maintain
// a YAML table than recompile a rules map.
type equivalenceRules struct {
	Equivalences []struct {
		Canonical string   `yaml:"canonical"`
		Forms     []string `yaml:"forms"`
	} `yaml:"equivalences"`
}

// RuleClusterer is the default TokenClusterer: canonicalise the surface
// form, apply the equivalence table, then merge remaining near-identical
// forms by Levenshtein ratio. Pairwise similarity is memoised in a
// concurrent map because the same candidate pairs recur on every step of a
// generation.
type RuleClusterer struct {
	rules     map[string]string
	simCache  *xsync.Map[string, float64]
	dmp       *diffmatchpatch.DiffMatchPatch
	threshold float64
}

func NewRuleClusterer(threshold float64) *RuleClusterer {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultSimilarityThreshold
	}
	return &RuleClusterer{
		rules:     builtinRules(),
		simCache:  xsync.NewMap[string, float64](),
		dmp:       diffmatchpatch.New(),
		threshold: threshold,
	}
}

// LoadRules merges an equivalence table from a YAML file over the builtin
// rules. Later files win on conflicting forms.
func (c *RuleClusterer) LoadRules(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading clustering rules: %w", err)
	}

	var rules equivalenceRules
	if err := yaml.Unmarshal(raw, &rules); err != nil {
		return fmt.Errorf("parsing clustering rules: %w", err)
	}

	for _, eq := range rules.Equivalences {
		canonical := normaliseSurface(eq.Canonical)
		if canonical == "" {
			continue
		}
		for _, form := range eq.Forms {
			if key := normaliseSurface(form); key != "" {
				c.rules[key] = canonical
			}
		}
	}
	return nil
}

// Cluster partitions candidates into meaning-equivalence groups. Groups keep
// first-seen order and each candidate index appears exactly once, so summed
// cluster mass equals the input mass.
func (c *RuleClusterer) Cluster(candidates []domain.TokenInfo) [][]int {
	if len(candidates) == 0 {
		return nil
	}

	type cluster struct {
		key     string
		indices []int
	}

	clusters := make([]*cluster, 0, len(candidates))

next:
	for i, cand := range candidates {
		key := c.canonical(cand.Token)

		for _, cl := range clusters {
			if cl.key == key || c.similar(cl.key, key) {
				cl.indices = append(cl.indices, i)
				continue next
			}
		}
		clusters = append(clusters, &cluster{key: key, indices: []int{i}})
	}

	groups := make([][]int, len(clusters))
	for i, cl := range clusters {
		groups[i] = cl.indices
	}
	return groups
}

// canonical maps a token's surface form to its equivalence-class key.
func (c *RuleClusterer) canonical(token string) string {
	key := normaliseSurface(token)
	if canonical, ok := c.rules[key]; ok {
		return canonical
	}
	return key
}

// similar reports whether two canonical keys are within the Levenshtein
// ratio threshold. Empty keys never merge with non-empty ones.
func (c *RuleClusterer) similar(a, b string) bool {
	if a == "" || b == "" {
		return a == b
	}
	return c.similarity(a, b) >= c.threshold
}

func (c *RuleClusterer) similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	cacheKey := a + "\x00" + b
	if b < a {
		cacheKey = b + "\x00" + a
	}
	if sim, ok := c.simCache.Load(cacheKey); ok {
		return sim
	}

	diffs := c.dmp.DiffMain(a, b, false)
	distance := c.dmp.DiffLevenshtein(diffs)

	longest := len([]rune(a))
	if lb := len([]rune(b)); lb > longest {
		longest = lb
	}

	sim := 0.0
	if longest > 0 {
		sim = 1 - float64(distance)/float64(longest)
	}
	if sim < 0 {
		sim = 0
	}

	c.simCache.Store(cacheKey, sim)
	return sim
}

// normaliseSurface strips the tokenizer artefacts that make equal meanings
// look different: whitespace markers, case, surrounding punctuation.
func normaliseSurface(token string) string {
	s := strings.TrimSpace(token)
	s = strings.TrimPrefix(s, "▁") // sentencepiece word boundary
	s = strings.TrimPrefix(s, "Ġ") // byte-BPE space marker
	s = strings.ToLower(s)
	s = strings.Trim(s, ".,;:!?'\"()[]{}")
	return s
}

// builtinRules covers the surface variants that most commonly inflate
// uncertainty without changing meaning: spelled-out numbers and yes/no
// variants.
func builtinRules() map[string]string {
	rules := map[string]string{
		"zero": "0", "one": "1", "two": "2", "three": "3", "four": "4",
		"five": "5", "six": "6", "seven": "7", "eight": "8", "nine": "9",
		"ten": "10",

		"yes": "yes", "yeah": "yes", "yep": "yes",
		"no": "no", "nope": "no",

		"true": "true", "false": "false",
	}
	return rules
}
