package ontology

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultOntologyLoads(t *testing.T) {
	o, err := Default()
	require.NoError(t, err)

	assert.True(t, o.HasSlot("from_stop"))
	assert.Contains(t, o.SlotsSystemRequests(), "from_stop")
	assert.Contains(t, o.SlotsSystemConfirms(), "vehicle")
	assert.Contains(t, o.SlotsSystemSelects(), "to_city")
	assert.NotContains(t, o.SlotsSystemRequests(), "task")
	assert.True(t, o.HasAttr("departure_time", AttrAbsoluteTime))
	assert.Equal(t, "America/New_York", o.Location().String())
}

func TestCompatibilityBothDirections(t *testing.T) {
	o, err := Default()
	require.NoError(t, err)

	assert.Equal(t, []string{"New York"}, o.CompatibleValues("stop_city", "Central Park"))
	assert.Equal(t, []string{"Boston", "New York"}, o.CompatibleValues("stop_city", "Main Street"))
	assert.Contains(t, o.CompatibleValues("city_stop", "Boston"), "South Station")
	assert.Equal(t, []string{"Illinois", "Massachusetts"}, o.CompatibleValues("city_state", "Springfield"))

	assert.True(t, o.IsCompatible("city_stop", "New York", "Wall Street"))
	assert.False(t, o.IsCompatible("city_stop", "Boston", "Wall Street"))
	assert.True(t, o.IsCompatible("city_stop", "Boston", None))
	assert.True(t, o.IsCompatible("city_stop", "Boston", Any))

	assert.True(t, o.HasValue("from_stop", "Wall Street"))
	assert.False(t, o.HasValue("from_stop", "Atlantis"))
	assert.True(t, o.HasValue("from_stop", DontCare))
	assert.True(t, o.HasValue("departure_time", "10:30"))
}

func TestGeoFromCompatFile(t *testing.T) {
	o, err := Default()
	require.NoError(t, err)

	g, ok := o.Geo("city", "Boston")
	require.True(t, ok)
	assert.InDelta(t, -71.0589, g.Lon, 1e-9)
	assert.InDelta(t, 42.3601, g.Lat, 1e-9)

	_, ok = o.Geo("state", "New York")
	assert.True(t, ok)
}

func TestLastTalkedAbout(t *testing.T) {
	o, err := Default()
	require.NoError(t, err)

	assert.ElementsMatch(t,
		[]Vote{{"lta_task", "weather"}},
		o.LastTalkedAbout("inform", "task", "weather"))
	assert.ElementsMatch(t,
		[]Vote{{"lta_bye", "true"}},
		o.LastTalkedAbout("bye", "", ""))
	assert.ElementsMatch(t,
		[]Vote{{"lta_time", "time"}, {"lta_departure_time", "time"}},
		o.LastTalkedAbout("inform", "time", "14:30"))
	assert.ElementsMatch(t,
		[]Vote{{"lta_task", "find_connection"}, {"lta_departure_time", "departure_time_rel"}},
		o.LastTalkedAbout("inform", "departure_time_rel", "0:20"))
	assert.Equal(t,
		[]Vote{{"lta_departure_time", "time"}},
		o.LastTalkedAbout("deny", "time", "14:30"))
}

func TestResetOnChange(t *testing.T) {
	o, err := Default()
	require.NoError(t, err)

	assert.True(t, o.ResetOnChange("route_alternative", "from_stop"))
	assert.True(t, o.ResetOnChange("route_alternative", "to_street2"))
	assert.False(t, o.ResetOnChange("route_alternative", "vehicle"))
	assert.False(t, o.ResetOnChange("from_stop", "to_stop"))
	assert.Equal(t, []string{"route_alternative"}, o.ResetTargets())
}

func TestDefaults(t *testing.T) {
	o, err := Default()
	require.NoError(t, err)
	assert.Equal(t, "New York", o.DefaultValue("in_city"))
	assert.Equal(t, None, o.DefaultValue("from_stop"))
}

func TestLoadFromDisk(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "tiny.yaml", `
slots:
  stop: []
  city: []
  lta_x: ["yes"]
  alternative: []
  current_time: []
  from_stop: []
  lta_bye: ["true"]
  lta_task: []
  to_stop: []
slot_attributes:
  stop: [user_informs, system_requests]
reset_on_change:
  stop: ['^city$']
last_talked_about:
  lta_x:
    "yes":
      - ['^inform$', '', '']
compatible_values:
  - file: pairs.tsv
    pair: [stop, city]
    fill:
      stop: [stop]
  - pair: [city, stop]
    entries:
      - [Brno, Hlavni nadrazi]
default_values:
  time_zone: Europe/Prague
`)
	writeFile(t, dir, "pairs.tsv", "# comment\nNamesti\tBrno\t16.6|49.19\n\nMlynska\tBrno # trailing\n")

	o, err := Load(filepath.Join(dir, "tiny.yaml"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Hlavni nadrazi", "Mlynska", "Namesti"}, o.CompatibleValues("city_stop", "Brno"))
	assert.Equal(t, []string{"Mlynska", "Namesti"}, o.Values("stop"))
	assert.True(t, o.ResetOnChange("stop", "city"))
	assert.Equal(t, []Vote{{"lta_x", "yes"}}, o.LastTalkedAbout("inform", "anything", "x"))
	assert.Equal(t, "Europe/Prague", o.Location().String())
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)

	writeFile(t, dir, "bad.yaml", requiredSlotsYAML+"  a: []\nreset_on_change:\n  a: ['(']\n")
	_, err = Load(filepath.Join(dir, "bad.yaml"))
	require.Error(t, err)

	writeFile(t, dir, "attr.yaml", requiredSlotsYAML+"  a: []\nslot_attributes:\n  b: [user_informs]\n")
	_, err = Load(filepath.Join(dir, "attr.yaml"))
	require.Error(t, err)
}

const requiredSlotsYAML = "slots:\n  alternative: []\n  current_time: []\n  from_stop: []\n  lta_bye: []\n  lta_task: []\n  to_stop: []\n"

func TestLoadRejectsMissingPolicySlots(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ok.yaml", requiredSlotsYAML)
	_, err := Load(filepath.Join(dir, "ok.yaml"))
	require.NoError(t, err)

	for _, slot := range RequiredSlots {
		body := strings.Replace(requiredSlotsYAML, "  "+slot+": []\n", "", 1)
		writeFile(t, dir, "short.yaml", body)
		_, err := Load(filepath.Join(dir, "short.yaml"))
		require.Error(t, err, slot)
		assert.Contains(t, err.Error(), slot)
	}
}

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}
