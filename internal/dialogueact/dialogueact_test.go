package dialogueact

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseItemForms(t *testing.T) {
	cases := map[string]Item{
		`hello()`:                      {DAT: "hello"},
		`hello`:                        {DAT: "hello"},
		`request(from_stop)`:           {DAT: "request", Name: "from_stop"},
		`inform(to_stop="Wall Street")`: {DAT: "inform", Name: "to_stop", Value: "Wall Street"},
		`inform(to_stop=Wall Street)`:  {DAT: "inform", Name: "to_stop", Value: "Wall Street"},
		`inform(="14:30")`:             {DAT: "inform", Value: "14:30"},
		`inform(name="a=b")`:           {DAT: "inform", Name: "name", Value: "a=b"},
	}
	for in, want := range cases {
		got, err := ParseItem(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestParseItemErrors(t *testing.T) {
	for _, in := range []string{"", "inform(to_stop=\"x)", "(x)", "inform(a=\"b"} {
		_, err := ParseItem(in)
		assert.ErrorIs(t, err, ErrSyntax, in)
	}
}

func TestParseSplitsOutsideQuotes(t *testing.T) {
	da, err := Parse(`inform(from_stop="A & B")&request(to_stop)&hello()`)
	require.NoError(t, err)
	want := DialogueAct{
		{DAT: "inform", Name: "from_stop", Value: "A & B"},
		{DAT: "request", Name: "to_stop"},
		{DAT: "hello"},
	}
	if diff := cmp.Diff(want, da); diff != "" {
		t.Fatalf("parse mismatch (-want +got):\n%s", diff)
	}
}

func TestStringRoundTrip(t *testing.T) {
	for _, s := range []string{
		`hello()`,
		`inform(from_stop="Central Park")&inform(to_stop="Wall Street")`,
		`bye()&inform(toolong="true")`,
		`help(inform="hangup")`,
		`request(departure_time)`,
		`inform(="x")`,
	} {
		da, err := Parse(s)
		require.NoError(t, err)
		assert.Equal(t, s, da.String())
		again, err := Parse(da.String())
		require.NoError(t, err)
		assert.True(t, da.Equal(again))
	}
}

func TestSortCanonical(t *testing.T) {
	da := MustParse(`request(to_stop)&iconfirm(from_stop="A")&iconfirm(from_stop="A")&apology()`)
	sorted := da.Sort()
	assert.Equal(t, `apology()&iconfirm(from_stop="A")&request(to_stop)`, sorted.String())
	assert.True(t, sorted.Equal(sorted.Sort()))
	assert.Equal(t, "null()", DialogueAct{}.Normalize().String())
}

func TestNBListAddMergeScale(t *testing.T) {
	var l NBList
	l.Add(0.6, MustParse(`inform(to_stop="A")&hello()`))
	l.Add(0.5, MustParse(`hello()&inform(to_stop="A")`))
	l.Add(0.3, MustParse(`bye()`))
	l.Merge()
	l.Scale()

	assert.Equal(t, 2, l.Len())
	assert.LessOrEqual(t, l.Total(), 1.0+1e-12)
	assert.Equal(t, `hello()&inform(to_stop="A")`, l.Best().Act.String())
	assert.InDelta(t, 1.1/1.4, l.Best().Prob, 1e-9)
}

func TestNBListAddOther(t *testing.T) {
	var l NBList
	l.Add(0.7, MustParse(`bye()`))
	require.NoError(t, l.AddOther())
	hyps := l.Hyps()
	require.Len(t, hyps, 2)
	assert.Equal(t, "other()", hyps[1].Act.String())
	assert.InDelta(t, 0.3, hyps[1].Prob, 1e-9)

	l.Add(0.5, MustParse(`hello()`))
	assert.Error(t, l.AddOther())
}

func TestNBListConfusionNetwork(t *testing.T) {
	var l NBList
	l.Add(0.5, MustParse(`inform(to_stop="A")&hello()`))
	l.Add(0.3, MustParse(`inform(to_stop="A")`))
	cn := l.ConfusionNetwork()
	assert.InDelta(t, 0.8, cn.Prob(NewItem("inform", "to_stop", "A")), 1e-9)
	assert.InDelta(t, 0.5, cn.Prob(NewItem("hello", "", "")), 1e-9)
}

func TestConfusionNetworkAddCaps(t *testing.T) {
	cn := &ConfusionNetwork{}
	it := NewItem("inform", "from_stop", "Central Park")
	cn.Add(0.7, it)
	cn.Add(0.6, it)
	assert.Equal(t, 1, cn.Len())
	assert.Equal(t, 1.0, cn.Prob(it))

	cn.AddMerge(0.2, NewItem("bye", "", ""), CombineMax)
	cn.AddMerge(0.4, NewItem("bye", "", ""), CombineMax)
	assert.Equal(t, 0.4, cn.Prob(NewItem("bye", "", "")))
}

func TestConfusionNetworkBestDA(t *testing.T) {
	cn := NewConfusionNetwork(
		Fact{0.9, NewItem("inform", "to_stop", "Wall Street")},
		Fact{0.5, NewItem("inform", "from_stop", "Central Park")},
		Fact{0.2, NewItem("bye", "", "")},
	)
	assert.Equal(t, `inform(to_stop="Wall Street")`, cn.BestDA(0.5).String())

	per := map[Item]float64{NewItem("bye", "", ""): 0.1}
	assert.Equal(t, `bye()&inform(to_stop="Wall Street")`, cn.BestDAWithThresholds(0.5, per).String())

	assert.Equal(t, "null()", cn.BestDA(0.95).String())
}

func TestConfusionNetworkScaleAndPrune(t *testing.T) {
	cn := NewConfusionNetwork(
		Fact{0.8, NewItem("inform", "a", "1")},
		Fact{0.8, NewItem("inform", "b", "2")},
		Fact{0.05, NewItem("inform", "c", "3")},
	)
	cn.Prune(0.1)
	assert.Equal(t, 2, cn.Len())
	cn.Scale()
	assert.InDelta(t, 0.5, cn.Prob(NewItem("inform", "a", "1")), 1e-9)
}

func TestParseConfusionNetwork(t *testing.T) {
	cn, errs := ParseConfusionNetwork(`0.9 inform(from_stop="A; B"); 0.4 request(to_stop)
1.0 hello(); oops; 2.0 bye()`)
	assert.Len(t, errs, 2)
	assert.Equal(t, 3, cn.Len())
	assert.Equal(t, 0.9, cn.Prob(NewItem("inform", "from_stop", "A; B")))
}
