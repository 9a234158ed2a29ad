package organize

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/roamorg/internal/settings"
)

func TestMissingLinks_Scenario(t *testing.T) {
	f := newFixture(t, map[string]string{
		"x.org":    orgNode("x", "x", ":T:", ""),
		"y.org":    orgNode("y", "y", ":T:", ""),
		"z.org":    orgNode("z", "z", ":T:", ""),
		"A.org":    orgNode("A", "Anchor", ":T:", "* [[id:x][x]]\n* [[id:y][y]]\n"),
		"full.org": orgNode("full", "Full", "", "[[id:x][x]] [[id:y][y]] [[id:z][z]] [[id:A][A]]\n"),
	}, nil)

	got, err := f.svc.MissingLinks([]Pair{{Key: "T", Anchor: "A"}, {Key: "T", Anchor: "full"}}, GroupByTag)
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"A": {"z"}, "full": {}}, got)
}

func TestMissingLinks_EmptyAndUnknownKey(t *testing.T) {
	f := newFixture(t, nil, nil)

	got, err := f.svc.MissingLinks(nil, GroupByTag)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = f.svc.MissingLinks([]Pair{{Key: "nothing", Anchor: "nobody"}}, GroupByTag)
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"nobody": {}}, got)
}

func TestMissingLinks_SameAnchorTwoTagsIsDeduplicated(t *testing.T) {
	f := newFixture(t, map[string]string{
		"x.org":   orgNode("x", "x", ":a:b:", ""),
		"y.org":   orgNode("y", "y", ":b:", ""),
		"hub.org": orgNode("hub", "Hub", "", ""),
	}, nil)

	got, err := f.svc.MissingLinks([]Pair{{Key: "a", Anchor: "hub"}, {Key: "b", Anchor: "hub"}}, GroupByTag)
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"hub": {"x", "y"}}, got)
}

func TestInsertLinkEntries_HeadlineAnchor(t *testing.T) {
	f := newFixture(t, map[string]string{
		"x.org":   orgNode("x", "Ex", "", ""),
		"hub.org": "#+title: Hub\n* Ideas\n:PROPERTIES:\n:ID: hub-ideas\n:END:\nintro\n* Later\n",
	}, nil)

	n, warnings, err := f.svc.InsertLinkEntries("hub-ideas", []string{"x", "ghost"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "ghost")
	assert.Equal(t, "#+title: Hub\n* Ideas\n:PROPERTIES:\n:ID: hub-ideas\n:END:\nintro\n** [[id:x][Ex]]\n* Later\n", f.read("hub.org"))
}

func TestInsertLinkEntries_NoIDsIsNoop(t *testing.T) {
	f := newFixture(t, map[string]string{"hub.org": orgNode("hub", "Hub", "", "")}, nil)
	before := f.read("hub.org")

	n, warnings, err := f.svc.InsertLinkEntries("hub", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, warnings)
	assert.Equal(t, before, f.read("hub.org"))
}

func TestInsertLinkEntries_UnknownAnchorWarnsPerEntry(t *testing.T) {
	f := newFixture(t, map[string]string{"x.org": orgNode("x", "x", "", "")}, nil)

	n, warnings, err := f.svc.InsertLinkEntries("nope", []string{"x", "x2"})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, warnings, 2)
}

const ideasMOC = ":PROPERTIES:\n:ID: moc-idea\n:END:\n#+title: Ideas\n* [[id:a][a]]\n"

func mocFixture(t *testing.T) *fixture {
	return newFixture(t, map[string]string{
		"a.org":          orgNode("a", "a", ":idea:", ""),
		"b.org":          orgNode("b", "b", ":idea:draft:", ""),
		"c.org":          orgNode("c", "c", ":idea:", ""),
		"mocs/ideas.org": ideasMOC,
		"mocs/notes.org": orgNode("moc-note", "Notes", "", ""),
	}, func(r *settings.Roam) {
		r.MOCs = map[string]string{"idea": "moc-idea", "note": "moc-note", "ghost": "nope"}
	})
}

func TestUpdateMOCs_CountsAndBacklinks(t *testing.T) {
	f := mocFixture(t)

	res, err := f.svc.UpdateMOCs(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []Counter{
		{Tag: "idea", Anchor: "moc-idea", Property: "NUM_OF_IDEA_NODES", Count: 3},
		{Tag: "note", Anchor: "moc-note", Property: "NUM_OF_NOTE_NODES", Count: 0},
	}, res.Counters)
	assert.Equal(t, map[string]int{"moc-idea": 2}, res.Inserted)
	assert.True(t, res.Partial(), "the unresolvable ghost anchor must be reported")
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "ghost")

	assert.Equal(t,
		":PROPERTIES:\n:ID: moc-idea\n:NUM_OF_IDEA_NODES: 3\n:END:\n#+title: Ideas\n* [[id:a][a]]\n* [[id:b][b]]\n* [[id:c][c]]\n",
		f.read("mocs/ideas.org"))
	assert.Contains(t, f.read("mocs/notes.org"), ":NUM_OF_NOTE_NODES: 0\n")
}

func TestUpdateMOCs_IdempotentAfterSync(t *testing.T) {
	f := mocFixture(t)

	_, err := f.svc.UpdateMOCs(context.Background())
	require.NoError(t, err)
	first := f.read("mocs/ideas.org")
	f.sync()

	missing, err := f.svc.MissingLinks([]Pair{{Key: "idea", Anchor: "moc-idea"}}, GroupByTag)
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"moc-idea": {}}, missing)

	res, err := f.svc.UpdateMOCs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Inserted)
	assert.Equal(t, first, f.read("mocs/ideas.org"))
}

func TestUpdateMOCs_NoTable(t *testing.T) {
	f := newFixture(t, nil, func(r *settings.Roam) { r.MOCs = nil })
	res, err := f.svc.UpdateMOCs(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Partial())
	assert.Empty(t, res.Counters)
}

func TestCompleteRefBacklinks_Idempotent(t *testing.T) {
	f := newFixture(t, map[string]string{
		"lit.org": ":PROPERTIES:\n:ID: lit\n:ROAM_REFS: @smith2020\n:END:\n#+title: Smith 2020\n",
		"p.org":   orgNode("p", "P", "", "As argued in [cite:@smith2020].\n"),
		"q.org":   orgNode("q", "Q", "", "See [[cite:smith2020]].\n"),
		"r.org":   orgNode("r", "R", "", "Unrelated [cite:@doe1999].\n"),
	}, nil)

	res, err := f.svc.CompleteRefBacklinks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"lit": 2}, res.Inserted)
	assert.Equal(t,
		":PROPERTIES:\n:ID: lit\n:ROAM_REFS: @smith2020\n:END:\n#+title: Smith 2020\n* [[id:p][P]]\n* [[id:q][Q]]\n",
		f.read("lit.org"))

	f.sync()
	res, err = f.svc.CompleteRefBacklinks(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Inserted)
	assert.False(t, res.Partial())
}
