package product

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpecTableFirstLabelWins(t *testing.T) {
	var table SpecTable
	assert.True(t, table.Set("Weight", "1.2 kg"))
	assert.False(t, table.Set("  weight: ", "9 kg"))
	assert.False(t, table.Set("Colour", ""))
	assert.True(t, table.Set("Colour", "Black"))

	v, ok := table.Get("WEIGHT")
	require.True(t, ok)
	assert.Equal(t, "1.2 kg", v)
	assert.Len(t, table, 2)
}

func TestSpecTableJSONPreservesOrder(t *testing.T) {
	table := SpecTable{{"Zoom", "10x"}, {"Battery", "4000 mAh"}, {"Android", "14"}}
	data, err := json.Marshal(table)
	require.NoError(t, err)
	assert.Equal(t, `{"Zoom":"10x","Battery":"4000 mAh","Android":"14"}`, string(data))

	var back SpecTable
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, table, back)
}

func TestSpecTableUnmarshalNonStringAndDuplicates(t *testing.T) {
	var table SpecTable
	require.NoError(t, json.Unmarshal([]byte(`{"Cores": 8, "RAM":"8 GB", "ram":"16 GB"}`), &table))
	assert.Equal(t, SpecTable{{"Cores", "8"}, {"RAM", "8 GB"}}, table)

	assert.Error(t, json.Unmarshal([]byte(`["a"]`), &table))
}

func TestRecordOmitsEmptyFields(t *testing.T) {
	rec := &Record{SourceURL: "https://example.com/p/1", Title: "Widget X"}
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"sourceUrl":"https://example.com/p/1","title":"Widget X"}`, string(data))
	assert.False(t, rec.Empty())
	assert.Equal(t, []string{"title"}, rec.PopulatedFields())

	assert.True(t, (&Record{SourceURL: "https://example.com"}).Empty())
}

func TestRecordCloneIsDeep(t *testing.T) {
	rec := &Record{
		SourceURL:   "https://example.com",
		Features:    []string{"Waterproof"},
		Breadcrumbs: []string{"Home", "Audio"},
		Technical:   SpecTable{{"Driver", "40 mm"}},
	}
	c := rec.Clone()
	c.Features[0] = "Edited"
	c.Technical[0].Value = "50 mm"
	c.Breadcrumbs = append(c.Breadcrumbs, "Headphones")

	assert.Equal(t, "Waterproof", rec.Features[0])
	assert.Equal(t, "40 mm", rec.Technical[0].Value)
	assert.Len(t, rec.Breadcrumbs, 2)
}
