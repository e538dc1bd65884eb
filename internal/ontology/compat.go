package ontology

import (
	"bufio"
	"bytes"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
)

// loadCompat registers a compatibility relation in both directions. Entries
// come from a tab-separated file "<v1>\t<v2>[\t<lon>|<lat>]" with '#'
// comments, or inline in the ontology file.
func (o *Ontology) loadCompat(fsys fs.FS, dir string, src compatSource) error {
	if len(src.Pair) != 2 {
		return fmt.Errorf("ontology: compatible_values needs a pair of slots, got %v", src.Pair)
	}
	rows := src.Entries
	if src.File != "" {
		raw, err := fs.ReadFile(fsys, path.Join(dir, src.File))
		if err != nil {
			return fmt.Errorf("ontology: compatible_values %s: %w", src.File, err)
		}
		fileRows, err := parseCompatTSV(raw)
		if err != nil {
			return fmt.Errorf("ontology: compatible_values %s: %w", src.File, err)
		}
		rows = append(rows, fileRows...)
	}

	s1, s2 := src.Pair[0], src.Pair[1]
	for _, row := range rows {
		if len(row) < 2 {
			return fmt.Errorf("ontology: compatible_values %s_%s: short row %v", s1, s2, row)
		}
		v1, v2 := row[0], row[1]
		o.addCompat(s1+"_"+s2, v1, v2)
		o.addCompat(s2+"_"+s1, v2, v1)
		if len(row) > 2 && row[2] != "" {
			g, err := parseGeo(row[2])
			if err != nil {
				return fmt.Errorf("ontology: compatible_values %s_%s %q: %w", s1, s2, v1, err)
			}
			o.setGeo(s1, v1, g)
		}
		for _, slot := range src.Fill[s1] {
			o.fill(slot, v1)
		}
		for _, slot := range src.Fill[s2] {
			o.fill(slot, v2)
		}
	}
	return nil
}

func parseCompatTSV(raw []byte) ([][]string, error) {
	var rows [][]string
	sc := bufio.NewScanner(bytes.NewReader(raw))
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimRight(sc.Text(), "\r")
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		cols := strings.Split(line, "\t")
		if len(cols) < 2 {
			return nil, fmt.Errorf("line %d: expected at least two tab-separated columns", n)
		}
		for i := range cols {
			cols[i] = strings.TrimSpace(cols[i])
		}
		rows = append(rows, cols)
	}
	return rows, sc.Err()
}

func parseGeo(s string) (Geo, error) {
	lon, lat, ok := strings.Cut(s, "|")
	if !ok {
		return Geo{}, fmt.Errorf("geo %q: want lon|lat", s)
	}
	var g Geo
	var err error
	if g.Lon, err = strconv.ParseFloat(strings.TrimSpace(lon), 64); err != nil {
		return Geo{}, fmt.Errorf("geo %q: %w", s, err)
	}
	if g.Lat, err = strconv.ParseFloat(strings.TrimSpace(lat), 64); err != nil {
		return Geo{}, fmt.Errorf("geo %q: %w", s, err)
	}
	return g, nil
}

func (o *Ontology) addCompat(pair, v1, v2 string) {
	if o.compat[pair] == nil {
		o.compat[pair] = map[string]map[string]bool{}
	}
	if o.compat[pair][v1] == nil {
		o.compat[pair][v1] = map[string]bool{}
	}
	o.compat[pair][v1][v2] = true
}

func (o *Ontology) fill(slot, v string) {
	if set, ok := o.values[slot]; ok {
		set[v] = true
	}
}

// CompatibleValues returns the sorted values related to value under a
// directional pair such as "stop_city".
func (o *Ontology) CompatibleValues(pair, value string) []string {
	set := o.compat[pair][value]
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// IsCompatible reports whether v2 is compatible with v1 under pair. An unknown
// v2 (none or the any-stop sentinel) is compatible with everything.
func (o *Ontology) IsCompatible(pair, v1, v2 string) bool {
	if v2 == None || v2 == Any || v2 == "" {
		return true
	}
	return o.compat[pair][v1][v2]
}
