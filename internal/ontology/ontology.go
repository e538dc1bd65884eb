// Package ontology loads the slot schema shared by the tracker and the policy:
// value sets, attribute tags, context resolution, reset-on-change rules,
// last-talked-about rules, compatibility relations, defaults and geo data.
//
// An Ontology is immutable after Load and safe for concurrent use.
package ontology

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// Slot attribute tags.
const (
	AttrUserInforms     = "user_informs"
	AttrUserRequests    = "user_requests"
	AttrUserConfirms    = "user_confirms"
	AttrSystemInforms   = "system_informs"
	AttrSystemRequests  = "system_requests"
	AttrSystemConfirms  = "system_confirms"
	AttrSystemIconfirms = "system_iconfirms"
	AttrSystemSelects   = "system_selects"
	AttrAbsoluteTime    = "absolute_time"
	AttrRelativeTime    = "relative_time"
	AttrInteger         = "integer"
	AttrTemperature     = "temperature"
	AttrStateVariable   = "state_variable"
)

// Sentinel slot values.
const (
	None     = "none"
	DontCare = "*"
	Any      = "__ANY__"
)

//go:embed data
var builtin embed.FS

// Geo is a longitude/latitude pair attached to a value.
type Geo struct {
	Lon float64 `yaml:"lon"`
	Lat float64 `yaml:"lat"`
}

// Vote is a last-talked-about summary produced by a matching rule.
type Vote struct {
	Slot  string
	Value string
}

type ltaRule struct {
	target, value string
	dat, slot, val *regexp.Regexp
}

// Ontology is the loaded schema.
type Ontology struct {
	values   map[string]map[string]bool
	slots    []string
	attrs    map[string]map[string]bool
	byAttr   map[string][]string
	ctxRes   map[string][]string
	resets   map[string][]*regexp.Regexp
	lta      []ltaRule
	ltaSlots []string
	compat   map[string]map[string]map[string]bool
	defaults map[string]string
	geo      map[string]map[string]Geo
	location *time.Location
}

type fileFormat struct {
	Slots             map[string][]string              `yaml:"slots"`
	SlotAttributes    map[string][]string              `yaml:"slot_attributes"`
	ContextResolution map[string][]string              `yaml:"context_resolution"`
	ResetOnChange     map[string][]string              `yaml:"reset_on_change"`
	LastTalkedAbout   map[string]map[string][][]string `yaml:"last_talked_about"`
	CompatibleValues  []compatSource                   `yaml:"compatible_values"`
	DefaultValues     map[string]string                `yaml:"default_values"`
	AddInfo           struct {
		Geo map[string]map[string]Geo `yaml:"geo"`
	} `yaml:"addinfo"`
}

type compatSource struct {
	File    string              `yaml:"file"`
	Pair    []string            `yaml:"pair"`
	Entries [][]string          `yaml:"entries"`
	Fill    map[string][]string `yaml:"fill"`
}

// RequiredSlots must be declared by every ontology; the policy reads and
// resets them on every turn.
var RequiredSlots = []string{"alternative", "current_time", "from_stop", "lta_bye", "lta_task", "to_stop"}

// Default returns the built-in public transport ontology.
func Default() (*Ontology, error) {
	sub, err := fs.Sub(builtin, "data")
	if err != nil {
		return nil, err
	}
	return LoadFS(sub, "ptien.yaml")
}

// Load reads an ontology file from disk. Compatibility files are resolved
// relative to the ontology file.
func Load(p string) (*Ontology, error) {
	if _, err := os.Stat(p); err != nil {
		return nil, fmt.Errorf("ontology: %w", err)
	}
	return LoadFS(os.DirFS(filepath.Dir(p)), filepath.Base(p))
}

// LoadFS reads an ontology file named name from fsys.
func LoadFS(fsys fs.FS, name string) (*Ontology, error) {
	raw, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("ontology: read %s: %w", name, err)
	}
	var ff fileFormat
	if err := yaml.Unmarshal(raw, &ff); err != nil {
		return nil, fmt.Errorf("ontology: parse %s: %w", name, err)
	}
	o := &Ontology{
		values:   map[string]map[string]bool{},
		attrs:    map[string]map[string]bool{},
		byAttr:   map[string][]string{},
		ctxRes:   map[string][]string{},
		resets:   map[string][]*regexp.Regexp{},
		compat:   map[string]map[string]map[string]bool{},
		defaults: map[string]string{},
		geo:      map[string]map[string]Geo{},
	}
	for slot, vals := range ff.Slots {
		set := make(map[string]bool, len(vals))
		for _, v := range vals {
			set[v] = true
		}
		o.values[slot] = set
	}
	for _, slot := range RequiredSlots {
		if _, ok := o.values[slot]; !ok {
			return nil, fmt.Errorf("ontology: %s: missing required slot %q", name, slot)
		}
	}
	for slot, attrs := range ff.SlotAttributes {
		if _, ok := o.values[slot]; !ok {
			return nil, fmt.Errorf("ontology: attributes for unknown slot %q", slot)
		}
		set := make(map[string]bool, len(attrs))
		for _, a := range attrs {
			set[a] = true
		}
		o.attrs[slot] = set
	}
	for g, specific := range ff.ContextResolution {
		o.ctxRes[g] = append([]string(nil), specific...)
	}
	for slot, patterns := range ff.ResetOnChange {
		for _, p := range patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("ontology: reset_on_change %s: %w", slot, err)
			}
			o.resets[slot] = append(o.resets[slot], re)
		}
	}
	if err := o.compileLTA(ff.LastTalkedAbout); err != nil {
		return nil, err
	}
	for _, src := range ff.CompatibleValues {
		if err := o.loadCompat(fsys, path.Dir(name), src); err != nil {
			return nil, err
		}
	}
	for k, v := range ff.DefaultValues {
		o.defaults[k] = v
	}
	for slot, byVal := range ff.AddInfo.Geo {
		for v, g := range byVal {
			o.setGeo(slot, v, g)
		}
	}

	o.location = time.UTC
	if tz, ok := o.defaults["time_zone"]; ok {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("ontology: time_zone %q: %w", tz, err)
		}
		o.location = loc
	}

	for slot := range o.values {
		o.slots = append(o.slots, slot)
	}
	sort.Strings(o.slots)
	for _, slot := range o.slots {
		for a := range o.attrs[slot] {
			o.byAttr[a] = append(o.byAttr[a], slot)
		}
	}
	return o, nil
}

func (o *Ontology) compileLTA(src map[string]map[string][][]string) error {
	targets := make([]string, 0, len(src))
	for t := range src {
		targets = append(targets, t)
	}
	sort.Strings(targets)
	for _, target := range targets {
		o.ltaSlots = append(o.ltaSlots, target)
		values := make([]string, 0, len(src[target]))
		for v := range src[target] {
			values = append(values, v)
		}
		sort.Strings(values)
		for _, value := range values {
			for _, tpl := range src[target][value] {
				if len(tpl) != 3 {
					return fmt.Errorf("ontology: last_talked_about %s=%s: want 3 patterns, got %d", target, value, len(tpl))
				}
				var res [3]*regexp.Regexp
				for i, p := range tpl {
					re, err := regexp.Compile(p)
					if err != nil {
						return fmt.Errorf("ontology: last_talked_about %s=%s: %w", target, value, err)
					}
					res[i] = re
				}
				o.lta = append(o.lta, ltaRule{target: target, value: value, dat: res[0], slot: res[1], val: res[2]})
			}
		}
	}
	return nil
}

// Slots returns all slot names in sorted order.
func (o *Ontology) Slots() []string { return append([]string(nil), o.slots...) }

func (o *Ontology) HasSlot(slot string) bool {
	_, ok := o.values[slot]
	return ok
}

// Values returns the declared value set of a slot in sorted order. Open slots
// have an empty set.
func (o *Ontology) Values(slot string) []string {
	out := make([]string, 0, len(o.values[slot]))
	for v := range o.values[slot] {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// HasValue reports whether v is admissible for slot. Open slots accept any
// value; none and * are always admissible.
func (o *Ontology) HasValue(slot, v string) bool {
	set, ok := o.values[slot]
	if !ok {
		return false
	}
	if len(set) == 0 || v == None || v == DontCare {
		return true
	}
	return set[v]
}

func (o *Ontology) HasAttr(slot, attr string) bool { return o.attrs[slot][attr] }

// SlotsWithAttr returns the sorted slots carrying attr.
func (o *Ontology) SlotsWithAttr(attr string) []string {
	return append([]string(nil), o.byAttr[attr]...)
}

func (o *Ontology) SlotsSystemRequests() []string { return o.SlotsWithAttr(AttrSystemRequests) }
func (o *Ontology) SlotsSystemConfirms() []string { return o.SlotsWithAttr(AttrSystemConfirms) }
func (o *Ontology) SlotsSystemSelects() []string  { return o.SlotsWithAttr(AttrSystemSelects) }

// ContextResolution returns the specific slots a generic slot may stand for.
func (o *Ontology) ContextResolution(generic string) []string {
	return append([]string(nil), o.ctxRes[generic]...)
}

// ResetOnChange reports whether a change of changed erases slot.
func (o *Ontology) ResetOnChange(slot, changed string) bool {
	for _, re := range o.resets[slot] {
		if re.MatchString(changed) {
			return true
		}
	}
	return false
}

// ResetTargets lists the slots that have reset rules, sorted.
func (o *Ontology) ResetTargets() []string {
	out := make([]string, 0, len(o.resets))
	for s := range o.resets {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// LastTalkedAbout returns the summary votes triggered by one item.
func (o *Ontology) LastTalkedAbout(dat, slot, value string) []Vote {
	var votes []Vote
	for _, r := range o.lta {
		if r.dat.MatchString(dat) && r.slot.MatchString(slot) && r.val.MatchString(value) {
			votes = append(votes, Vote{Slot: r.target, Value: r.value})
		}
	}
	return votes
}

// LTASlots lists the last-talked-about summary slots.
func (o *Ontology) LTASlots() []string { return append([]string(nil), o.ltaSlots...) }

// DefaultValue returns the configured default or none.
func (o *Ontology) DefaultValue(slot string) string {
	if v, ok := o.defaults[slot]; ok {
		return v
	}
	return None
}

// Location is the time zone named by the time_zone default.
func (o *Ontology) Location() *time.Location { return o.location }

// Geo returns coordinates recorded for a slot value.
func (o *Ontology) Geo(slot, value string) (Geo, bool) {
	g, ok := o.geo[slot][value]
	return g, ok
}

func (o *Ontology) setGeo(slot, value string, g Geo) {
	if o.geo[slot] == nil {
		o.geo[slot] = map[string]Geo{}
	}
	if _, ok := o.geo[slot][value]; !ok {
		o.geo[slot][value] = g
	}
}
