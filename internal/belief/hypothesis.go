// Package belief holds the per-dialogue belief state: per-slot marginal
// distributions with their shadow histories and the queries the policy asks.
package belief

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"pti/dm/internal/ontology"
)

// Pair is a value with its probability.
type Pair struct {
	Value string
	Prob  float64
}

// Hypothesis is the marginal distribution of one slot over its values.
// Mass sums to one after every update.
type Hypothesis interface {
	MPH() Pair
	TMPHs() (Pair, Pair)
	MPV() string
	MPVP() float64
	TMPVs() (string, string)
	TMPVsP() (float64, float64)
	Prob(v string) float64
	Test(v string, th float64, neg bool) bool
	Pairs() []Pair

	// Update folds one turn of observations in: old mass is multiplied by
	// (1 - total observed) and the observed mass is added.
	Update(obs map[string]float64)
	// Remove moves p of v's mass to none.
	Remove(v string, p float64)
	Set(v string)
	Reset()
	Clone() Hypothesis
}

// Categorical is the plain distribution.
type Categorical struct {
	dist map[string]float64
}

// NewCategorical returns a distribution with all mass on none.
func NewCategorical() *Categorical {
	return &Categorical{dist: map[string]float64{ontology.None: 1}}
}

func (c *Categorical) Pairs() []Pair {
	out := make([]Pair, 0, len(c.dist))
	for v, p := range c.dist {
		out = append(out, Pair{Value: v, Prob: p})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Prob != out[j].Prob {
			return out[i].Prob > out[j].Prob
		}
		return out[i].Value < out[j].Value
	})
	return out
}

func (c *Categorical) MPH() Pair {
	return c.Pairs()[0]
}

func (c *Categorical) TMPHs() (Pair, Pair) {
	ps := c.Pairs()
	if len(ps) < 2 {
		return ps[0], Pair{Value: ontology.None}
	}
	return ps[0], ps[1]
}

func (c *Categorical) MPV() string   { return c.MPH().Value }
func (c *Categorical) MPVP() float64 { return c.MPH().Prob }

func (c *Categorical) TMPVs() (string, string) {
	a, b := c.TMPHs()
	return a.Value, b.Value
}

func (c *Categorical) TMPVsP() (float64, float64) {
	a, b := c.TMPHs()
	return a.Prob, b.Prob
}

func (c *Categorical) Prob(v string) float64 { return c.dist[v] }

func (c *Categorical) Test(v string, th float64, neg bool) bool {
	p := c.dist[v]
	if neg {
		p = 1 - p
	}
	return p >= th
}

func (c *Categorical) Update(obs map[string]float64) {
	var total float64
	for _, p := range obs {
		if p > 0 {
			total += p
		}
	}
	if total == 0 {
		return
	}
	scale := 1.0
	if total > 1 {
		scale = 1 / total
		total = 1
	}
	for v := range c.dist {
		c.dist[v] *= 1 - total
	}
	for v, p := range obs {
		if p > 0 {
			c.dist[v] += p * scale
		}
	}
	c.normalize()
}

func (c *Categorical) Remove(v string, p float64) {
	if v == ontology.None || p <= 0 {
		return
	}
	m := c.dist[v] * math.Min(p, 1)
	if m == 0 {
		return
	}
	c.dist[v] -= m
	c.dist[ontology.None] += m
	c.normalize()
}

// Set puts all mass on v.
func (c *Categorical) Set(v string) {
	c.dist = map[string]float64{v: 1}
	if v != ontology.None {
		c.dist[ontology.None] = 0
	}
}

func (c *Categorical) Reset() { c.dist = map[string]float64{ontology.None: 1} }

func (c *Categorical) Clone() Hypothesis { return c.clone() }

func (c *Categorical) clone() *Categorical {
	d := make(map[string]float64, len(c.dist))
	for v, p := range c.dist {
		d[v] = p
	}
	return &Categorical{dist: d}
}

func (c *Categorical) normalize() {
	var sum float64
	for v, p := range c.dist {
		if p < 1e-12 {
			c.dist[v] = 0
			p = 0
		}
		sum += p
	}
	if sum == 0 {
		c.Reset()
		return
	}
	for v := range c.dist {
		c.dist[v] /= sum
	}
}

// maxDelta is the largest absolute per-value difference between two snapshots.
func maxDelta(a, b map[string]float64) float64 {
	var d float64
	for v, p := range a {
		d = math.Max(d, math.Abs(p-b[v]))
	}
	for v, p := range b {
		if _, ok := a[v]; !ok {
			d = math.Max(d, p)
		}
	}
	return d
}

// TimeValue canonicalizes H:MM clock and duration values to HH:MM.
type TimeValue struct {
	*Categorical
}

func NewTimeValue() *TimeValue { return &TimeValue{NewCategorical()} }

func (t *TimeValue) Update(obs map[string]float64) {
	t.Categorical.Update(canonical(obs, canonicalTime))
}

func (t *TimeValue) Set(v string)               { t.Categorical.Set(canonicalTime(v)) }
func (t *TimeValue) Remove(v string, p float64) { t.Categorical.Remove(canonicalTime(v), p) }
func (t *TimeValue) Clone() Hypothesis          { return &TimeValue{t.clone()} }

func canonicalTime(v string) string {
	h, m, ok := strings.Cut(v, ":")
	if !ok {
		return v
	}
	hh, err1 := strconv.Atoi(h)
	mm, err2 := strconv.Atoi(m)
	if err1 != nil || err2 != nil || hh < 0 || mm < 0 || mm > 59 {
		return v
	}
	return twoDigits(hh) + ":" + twoDigits(mm)
}

func twoDigits(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

// IntegerValue canonicalizes numeric values ("01" and "1" are the same).
type IntegerValue struct {
	*Categorical
}

func NewIntegerValue() *IntegerValue { return &IntegerValue{NewCategorical()} }

func (n *IntegerValue) Update(obs map[string]float64) {
	n.Categorical.Update(canonical(obs, canonicalInt))
}

func (n *IntegerValue) Set(v string)               { n.Categorical.Set(canonicalInt(v)) }
func (n *IntegerValue) Remove(v string, p float64) { n.Categorical.Remove(canonicalInt(v), p) }
func (n *IntegerValue) Clone() Hypothesis          { return &IntegerValue{n.clone()} }

func canonicalInt(v string) string {
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return v
	}
	return strconv.Itoa(i)
}

func canonical(obs map[string]float64, f func(string) string) map[string]float64 {
	out := make(map[string]float64, len(obs))
	for v, p := range obs {
		out[f(v)] += p
	}
	return out
}

// NewHypothesis picks the distribution type from the slot's attribute tags.
func NewHypothesis(ont *ontology.Ontology, slot string) Hypothesis {
	switch {
	case ont.HasAttr(slot, ontology.AttrAbsoluteTime), ont.HasAttr(slot, ontology.AttrRelativeTime):
		return NewTimeValue()
	case ont.HasAttr(slot, ontology.AttrInteger):
		return NewIntegerValue()
	default:
		return NewCategorical()
	}
}
