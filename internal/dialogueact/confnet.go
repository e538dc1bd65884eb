package dialogueact

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Combine selects how AddMerge folds a new probability into an existing item.
type Combine int

const (
	CombineAdd Combine = iota
	CombineMax
	CombineNew
)

// Fact is a probability-item pair of a confusion network.
type Fact struct {
	Prob float64
	Item Item
}

// ConfusionNetwork holds independent per-item probabilities.
type ConfusionNetwork struct {
	facts []Fact
}

// NewConfusionNetwork builds a network from facts, accumulating duplicates.
func NewConfusionNetwork(facts ...Fact) *ConfusionNetwork {
	cn := &ConfusionNetwork{}
	for _, f := range facts {
		cn.Add(f.Prob, f.Item)
	}
	return cn
}

// Add appends an item or accumulates onto an existing equal item; the result is
// capped at one.
func (cn *ConfusionNetwork) Add(p float64, it Item) {
	cn.AddMerge(p, it, CombineAdd)
}

// AddMerge adds an item, folding into an existing equal item with combine.
func (cn *ConfusionNetwork) AddMerge(p float64, it Item, combine Combine) {
	for i := range cn.facts {
		if cn.facts[i].Item != it {
			continue
		}
		switch combine {
		case CombineMax:
			if p > cn.facts[i].Prob {
				cn.facts[i].Prob = p
			}
		case CombineNew:
			cn.facts[i].Prob = p
		default:
			cn.facts[i].Prob += p
		}
		if cn.facts[i].Prob > 1 {
			cn.facts[i].Prob = 1
		}
		return
	}
	if p > 1 {
		p = 1
	}
	cn.facts = append(cn.facts, Fact{Prob: p, Item: it})
}

// Merge collapses exact duplicates, summing and capping their mass.
func (cn *ConfusionNetwork) Merge() {
	facts := cn.facts
	cn.facts = nil
	for _, f := range facts {
		cn.Add(f.Prob, f.Item)
	}
}

// Scale divides every probability by the total when the total exceeds one.
func (cn *ConfusionNetwork) Scale() {
	var total float64
	for _, f := range cn.facts {
		total += f.Prob
	}
	if total <= 1 {
		return
	}
	for i := range cn.facts {
		cn.facts[i].Prob /= total
	}
}

// Prune drops items whose probability is at or below th.
func (cn *ConfusionNetwork) Prune(th float64) {
	out := cn.facts[:0]
	for _, f := range cn.facts {
		if f.Prob > th {
			out = append(out, f)
		}
	}
	cn.facts = out
}

// Sort orders facts by descending probability, ties by item order.
func (cn *ConfusionNetwork) Sort() {
	sort.SliceStable(cn.facts, func(i, j int) bool {
		if cn.facts[i].Prob != cn.facts[j].Prob {
			return cn.facts[i].Prob > cn.facts[j].Prob
		}
		return cn.facts[i].Item.Less(cn.facts[j].Item)
	})
}

// Facts returns a copy of the probability-item pairs.
func (cn *ConfusionNetwork) Facts() []Fact {
	if cn == nil {
		return nil
	}
	return append([]Fact(nil), cn.facts...)
}

func (cn *ConfusionNetwork) Len() int {
	if cn == nil {
		return 0
	}
	return len(cn.facts)
}

// Prob returns the probability of an item, zero when absent.
func (cn *ConfusionNetwork) Prob(it Item) float64 {
	if cn == nil {
		return 0
	}
	for _, f := range cn.facts {
		if f.Item == it {
			return f.Prob
		}
	}
	return 0
}

// BestDA keeps items whose probability exceeds threshold.
func (cn *ConfusionNetwork) BestDA(threshold float64) DialogueAct {
	return cn.BestDAWithThresholds(threshold, nil)
}

// BestDAWithThresholds is BestDA with per-item overrides. The result is
// sorted and an empty result is null().
func (cn *ConfusionNetwork) BestDAWithThresholds(threshold float64, perItem map[Item]float64) DialogueAct {
	var da DialogueAct
	for _, f := range cn.Facts() {
		th := threshold
		if t, ok := perItem[f.Item]; ok {
			th = t
		}
		if f.Prob > th {
			da = append(da, f.Item)
		}
	}
	return da.Sort().Normalize()
}

func (cn *ConfusionNetwork) String() string {
	parts := make([]string, 0, cn.Len())
	for _, f := range cn.Facts() {
		parts = append(parts, fmt.Sprintf("%.3f %s", f.Prob, f.Item))
	}
	return strings.Join(parts, "; ")
}

// ParseConfusionNetwork reads "0.9 inform(from_stop=\"Central Park\"); 0.4 request(to_stop)".
// Facts are separated by ';' or newlines. Unparseable facts are skipped and
// reported in the returned error list.
func ParseConfusionNetwork(s string) (*ConfusionNetwork, []error) {
	cn := &ConfusionNetwork{}
	var errs []error
	for _, line := range strings.Split(s, "\n") {
		for _, chunk := range splitOutside(line, ';') {
			chunk = strings.TrimSpace(chunk)
			if chunk == "" {
				continue
			}
			f, err := parseFact(chunk)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			cn.Add(f.Prob, f.Item)
		}
	}
	return cn, errs
}

func parseFact(s string) (Fact, error) {
	sp := strings.IndexAny(s, " \t")
	if sp < 0 {
		return Fact{}, fmt.Errorf("%w: fact %q needs a probability", ErrSyntax, s)
	}
	p, err := strconv.ParseFloat(s[:sp], 64)
	if err != nil || p < 0 || p > 1 {
		return Fact{}, fmt.Errorf("%w: bad probability in %q", ErrSyntax, s)
	}
	it, err := ParseItem(s[sp+1:])
	if err != nil {
		return Fact{}, err
	}
	return Fact{Prob: p, Item: it}, nil
}
