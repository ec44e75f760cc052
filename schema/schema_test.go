package schema

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fieldSet map[Kind]map[string]bool

func (f fieldSet) Has(kind Kind, field string) bool {
	return f[kind][field]
}

const testSchema = `
sheets:
  - name: Performance Metrics
    header_rows: 2
    columns:
      - {header: "PGS Name or ID", entity: performance, field: score_name}
      - {header: "Odds Ratio (OR)", primary: "Effect Size", entity: performance, field: metric_effect_OR}
      - {header: "Other Metric", primary: "Effect Size", entity: performance, field: metric_effect_other}
      - {header: "Other Metric", primary: "Other Metrics", entity: performance, field: metric_other_other}
      - {header: "Other Metric", entity: performance, field: metric_other_other}
`

func TestLookup_Order(t *testing.T) {
	s, err := Load(strings.NewReader(testSchema), nil)
	require.NoError(t, err)

	got, ok := s.Lookup("performance metrics", "Effect Size", "Other Metric")
	require.True(t, ok)
	assert.Equal(t, Target{Kind: KindPerformance, Field: "metric_effect_other"}, got)

	got, ok = s.Lookup(SheetPerformance, "Something Else", "Other  Metric")
	require.True(t, ok, "unqualified secondary label is the fallback")
	assert.Equal(t, "metric_other_other", got.Field)

	got, ok = s.Lookup(SheetPerformance, "PGS Name or ID", "")
	require.True(t, ok, "primary label alone")
	assert.Equal(t, "score_name", got.Field)

	got, ok = s.Lookup(SheetPerformance, "PGS Name or ID", "unrelated note")
	require.True(t, ok, "secondary label not mapped falls back to primary")
	assert.Equal(t, "score_name", got.Field)

	_, ok = s.Lookup(SheetPerformance, "Notes", "")
	assert.False(t, ok)
	_, ok = s.Lookup("Unknown Sheet", "PGS Name or ID", "")
	assert.False(t, ok)
}

func TestLoad_ValidatesFields(t *testing.T) {
	registry := fieldSet{KindPerformance: {"score_name": true, "metric_effect_OR": true}}
	_, err := Load(strings.NewReader(testSchema), registry)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metric_effect_other")
}

func TestLoad_RejectsBrokenDocuments(t *testing.T) {
	cases := map[string]string{
		"unknown entity": `
sheets:
  - name: A
    columns:
      - {header: X, entity: nothing, field: x}`,
		"duplicate column": `
sheets:
  - name: A
    columns:
      - {header: X, entity: score, field: name}
      - {header: x, entity: score, field: license}`,
		"duplicate sheet": `
sheets:
  - name: A
  - name: a`,
		"bad header rows": `
sheets:
  - name: A
    header_rows: 3`,
		"unknown key": `
sheets:
  - name: A
    colums: []`,
		"empty": `sheets: []`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(strings.NewReader(doc), nil)
			assert.Error(t, err)
		})
	}
}

func TestDefault_CoversTemplateSheets(t *testing.T) {
	s, err := Default(nil)
	require.NoError(t, err)

	for _, name := range []string{SheetPublication, SheetScores, SheetSamples, SheetPerformance, SheetCohorts} {
		_, ok := s.Sheet(name)
		assert.True(t, ok, name)
	}
	sh, _ := s.Sheet(SheetScores)
	assert.Equal(t, 2, sh.HeaderRows)
	sh, _ = s.Sheet(SheetPublication)
	assert.Equal(t, 1, sh.HeaderRows)

	got, ok := s.Lookup(SheetSamples, "Source of Samples", "DOI")
	require.True(t, ok)
	assert.Equal(t, Target{Kind: KindSample, Field: "source_DOI"}, got)

	got, ok = s.Lookup(SheetPublication, "DOI", "")
	require.True(t, ok)
	assert.Equal(t, Target{Kind: KindPublication, Field: "doi"}, got)
}

func TestMapHeader_ForwardFillsMergedPrimary(t *testing.T) {
	s, err := Default(nil)
	require.NoError(t, err)

	header := [][]string{
		{"PGS Name or ID", "Sample Set ID", "Effect Size", "", "Classification Metrics", "", "Remarks"},
		{"", "", "Odds Ratio (OR)", "Other Metric", "AUROC", "Other Metric", ""},
	}
	got := s.MapHeader(SheetPerformance, header)
	require.Len(t, got, 7)
	assert.Equal(t, "score_name", got[0].Field)
	assert.Equal(t, "sample_set", got[1].Field)
	assert.Equal(t, "metric_effect_OR", got[2].Field)
	assert.Equal(t, "metric_effect_other", got[3].Field)
	assert.Equal(t, "metric_class_AUROC", got[4].Field)
	assert.Equal(t, "metric_class_other", got[5].Field)
	assert.Equal(t, Target{}, got[6])
}
