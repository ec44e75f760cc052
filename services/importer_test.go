package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"pgs-curation/catalog"
	"pgs-curation/models"
	"pgs-curation/providers"
	"pgs-curation/report"
	"pgs-curation/schema"
	"pgs-curation/spreadsheet"
)

type stubLiterature struct{}

func (stubLiterature) Name() string { return "stub" }

func (stubLiterature) Lookup(_ context.Context, q providers.Query) (*models.Publication, error) {
	if q.DOI == "10.1/unknown" {
		return nil, providers.ErrNotFound
	}
	date := time.Date(2021, time.May, 4, 0, 0, 0, 0, time.UTC)
	return &models.Publication{
		DOI:             q.DOI,
		Journal:         "Nat Genet",
		FirstAuthor:     "Smith J",
		Authors:         "Smith J, Doe A",
		Title:           "A polygenic score",
		PublicationDate: &date,
	}, nil
}

type stubOntology struct{}

func (stubOntology) LookupTerm(_ context.Context, id string) (*models.EFOTrait, error) {
	if id != "EFO_0000305" {
		return nil, providers.ErrNotFound
	}
	return &models.EFOTrait{Label: "breast carcinoma"}, nil
}

// failingStore lässt den n-ten Aufruf von CreatePerformance scheitern.
type failingStore struct {
	catalog.Store
	failOn int
	calls  int
}

func (s *failingStore) CreatePerformance(ctx context.Context, p *models.Performance) error {
	s.calls++
	if s.calls == s.failOn {
		return errors.New("connection reset")
	}
	return s.Store.CreatePerformance(ctx, p)
}

// newSQLiteStore liefert einen GormStore auf einer In-Memory-SQLite mit Foreign Keys.
func newSQLiteStore(t *testing.T) *catalog.GormStore {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", name)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, catalog.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return catalog.NewGormStore(db, zaptest.NewLogger(t))
}

// forEachStore führt einen Import-Test gegen beide Store-Implementierungen aus.
func forEachStore(t *testing.T, fn func(t *testing.T, store catalog.Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, catalog.NewMemoryStore()) })
	t.Run("gorm", func(t *testing.T) { fn(t, newSQLiteStore(t)) })
}

type recordingArchiver struct {
	mu      sync.Mutex
	studies []string
}

func (a *recordingArchiver) ArchiveStudy(_ context.Context, batchID, study string, source, reportJSON []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.studies = append(a.studies, study)
	return "s3://archive/" + batchID + "/" + study + ".xlsx", nil
}

type perfRow struct {
	score, set, or string
}

// template baut ein Curation-Template: Scores (Standard PRS_A), eine Training-Sample
// für PRS_A, je Sample-Set zwei Test-Samples.
type template struct {
	doi    string
	scores []string
	sets   []string
	perfs  []perfRow
}

func (tp template) workbook(name string) *spreadsheet.Workbook {
	text, num := spreadsheet.Text, spreadsheet.Number
	wb := spreadsheet.NewWorkbook(name)
	wb.AddSheet(schema.SheetPublication, [][]spreadsheet.Cell{
		{text("DOI"), text("PubMed ID (PMID)"), text("Curation Notes")},
		{text(tp.doi), text(""), text("imported by test")},
	})
	scores := [][]spreadsheet.Cell{
		{text("Polygenic Score (PGS) Name"), text("Reported Trait"), text("Mapped Trait(s) (EFO ID)"), text("Mapped Trait(s) (Label)"), text("PGS Development Method"), text(""), text("Number of Variants")},
		{text(""), text(""), text(""), text(""), text("Method Name"), text("Parameters"), text("")},
	}
	names := tp.scores
	if len(names) == 0 {
		names = []string{"PRS_A"}
	}
	for _, name := range names {
		scores = append(scores, []spreadsheet.Cell{text(name), text("Breast cancer"), text("EFO:0000305"), text("Breast Carcinoma"), text("LDpred"), text("p = 0.1"), num(313)})
	}
	wb.AddSheet(schema.SheetScores, scores)

	samples := [][]spreadsheet.Cell{
		{text("Study Stage"), text("Score Name(s)"), text("Sample Set ID"), text("Number of Individuals"), text("Sample Age"), text("Cohort(s)")},
		{text(""), text(""), text(""), text(""), text(""), text("")},
		{text("Score Development"), text("PRS_A"), text(""), num(1000), text("mean = 55.1 years; sd = 7.2"), text("ABC")},
	}
	cohortNames := []string{"abc", "Abc"}
	for _, set := range tp.sets {
		for i := 0; i < 2; i++ {
			samples = append(samples, []spreadsheet.Cell{text("Testing"), text(""), text(set), num(float64(500 + i)), text(""), text(cohortNames[i])})
		}
	}
	wb.AddSheet(schema.SheetSamples, samples)

	perf := [][]spreadsheet.Cell{
		{text("PGS Name or ID"), text("Sample Set ID"), text("Phenotype Reported"), text("Effect Size")},
		{text(""), text(""), text(""), text("Odds Ratio (OR)")},
	}
	for _, p := range tp.perfs {
		perf = append(perf, []spreadsheet.Cell{text(p.score), text(p.set), text("Breast cancer"), text(p.or)})
	}
	wb.AddSheet(schema.SheetPerformance, perf)
	return wb
}

func (tp template) study(name string) Study {
	return Study{Name: name, Workbook: tp.workbook(name)}
}

func simpleTemplate(doi string) template {
	return template{
		doi:   doi,
		sets:  []string{"TestSet1"},
		perfs: []perfRow{{"PRS_A", "TestSet1", "1.24 [1.10 - 1.40]"}},
	}
}

func newImporter(t *testing.T, store catalog.Store) *StudyImporter {
	t.Helper()
	imp, err := NewStudyImporter(store, stubLiterature{}, stubOntology{}, nil, "Awaiting Curation", zaptest.NewLogger(t))
	require.NoError(t, err)
	return imp
}

func stats(t *testing.T, store catalog.Store) catalog.Stats {
	t.Helper()
	s, err := store.Stats(context.Background())
	require.NoError(t, err)
	return s
}

func TestImportStudy_EndToEnd(t *testing.T) {
	ctx := context.Background()
	store := catalog.NewMemoryStore()
	imp := newImporter(t, store)
	imp.Metrics = NewMetrics(prometheus.NewRegistry())

	res := imp.ImportStudy(ctx, simpleTemplate("10.1016/example").study("example"))
	require.False(t, res.Failed, res.Reason)
	assert.Equal(t, StageDone, res.Stage)
	assert.False(t, res.Report.HasAny(), "%v", res.Report.FirstImportError())

	c := res.Created
	require.NotNil(t, c.Publication)
	assert.Equal(t, "PGP000001", c.Publication.Code)
	assert.Equal(t, "imported by test", c.Publication.CurationNotes)
	assert.Equal(t, "Awaiting Curation", c.Publication.CurationStatus)
	require.Len(t, c.Scores, 1)
	assert.Equal(t, "PRS_A", c.Scores[0].Name)
	assert.Equal(t, 313, c.Scores[0].VariantsNumber)
	assert.Equal(t, "p = 0.1", c.Scores[0].MethodParams)
	assert.Len(t, c.Samples, 3)
	require.Len(t, c.SampleSets, 1)
	require.Len(t, c.Performances, 1)
	require.Len(t, c.Metrics, 1)

	m := c.Metrics[0]
	assert.Equal(t, "OR", m.NameShort)
	assert.Equal(t, 1.24, m.Estimate)
	assert.Equal(t, 1.10, *m.CILower)
	assert.Equal(t, 1.40, *m.CIUpper)
	assert.Nil(t, m.SE)

	score, err := store.FindScoreByName(ctx, c.Publication.ID, "PRS_A")
	require.NoError(t, err)
	require.Len(t, score.Traits, 1)
	assert.Equal(t, "EFO_0000305", score.Traits[0].EFOID)
	require.Len(t, score.SamplesTraining, 1)
	assert.Equal(t, 1000, *score.SamplesTraining[0].SampleNumber)
	assert.Empty(t, score.SamplesVariants)

	perfs, err := store.FindPerformances(ctx, c.Publication.ID, score.ID)
	require.NoError(t, err)
	require.Len(t, perfs, 1)
	assert.Len(t, perfs[0].SampleSet.Samples, 2)

	assert.Equal(t, catalog.Stats{
		Publications: 1, Cohorts: 1, Traits: 1, Scores: 1, Samples: 3,
		Demographics: 1, SampleSets: 1, Performances: 1, Metrics: 1,
	}, stats(t, store))

	assert.Equal(t, 1.0, testutil.ToFloat64(imp.Metrics.Studies.WithLabelValues("succeeded")))
	assert.Equal(t, 3.0, testutil.ToFloat64(imp.Metrics.Entities.WithLabelValues("sample")))
}

func TestImportStudy_ReimportReplacesEvaluationData(t *testing.T) {
	forEachStore(t, func(t *testing.T, store catalog.Store) {
		ctx := context.Background()
		imp := newImporter(t, store)
		study := simpleTemplate("10.1016/example").study("example")

		first := imp.ImportStudy(ctx, study)
		require.False(t, first.Failed, first.Reason)
		before := stats(t, store)

		second := imp.ImportStudy(ctx, study)
		require.False(t, second.Failed, second.Reason)
		assert.True(t, second.PublicationReused)
		assert.Equal(t, 1, second.ScoresReused)
		assert.Equal(t, 1, second.RemovedPerformances)
		assert.Nil(t, second.Created.Publication)
		assert.Empty(t, second.Created.Scores)
		assert.Len(t, second.Created.Samples, 2)
		assert.Equal(t, first.Publication.ID, second.Publication.ID)

		assert.Equal(t, before, stats(t, store))

		perfs, err := store.FindPerformances(ctx, first.Publication.ID, first.Created.Scores[0].ID)
		require.NoError(t, err)
		require.Len(t, perfs, 1)
		assert.Equal(t, second.Created.Performances[0].ID, perfs[0].ID)
	})
}

func TestImportStudy_ReimportKeepsSampleSetOfOtherScores(t *testing.T) {
	forEachStore(t, func(t *testing.T, store catalog.Store) {
		ctx := context.Background()
		imp := newImporter(t, store)
		tp := template{
			doi:    "10.1/shared",
			scores: []string{"PRS_A", "PRS_B"},
			sets:   []string{"TestSet1"},
			perfs: []perfRow{
				{"PRS_A", "TestSet1", "1.24"},
				{"PRS_B", "TestSet1", "1.31"},
			},
		}
		first := imp.ImportStudy(ctx, tp.study("shared"))
		require.False(t, first.Failed, first.Reason)
		require.Len(t, first.Created.Scores, 2)
		require.Len(t, first.Created.SampleSets, 1)
		oldSet := first.Created.SampleSets[0]

		// Die neue Version wertet nur noch PRS_A aus.
		tp.perfs = tp.perfs[:1]
		second := imp.ImportStudy(ctx, tp.study("shared"))
		require.False(t, second.Failed, second.Reason)
		assert.Equal(t, 1, second.RemovedPerformances)
		assert.Equal(t, []string{fmt.Sprintf("sample set %s is kept, 1 other performance(s) still use it", oldSet.Code)},
			second.Report.Messages(report.Warning, schema.SheetPerformance))

		scoreB := first.Created.Scores[1]
		require.Equal(t, "PRS_B", scoreB.Name)
		perfsB, err := store.FindPerformances(ctx, first.Publication.ID, scoreB.ID)
		require.NoError(t, err)
		require.Len(t, perfsB, 1)
		require.NotNil(t, perfsB[0].SampleSet)
		assert.Equal(t, oldSet.ID, perfsB[0].SampleSet.ID)
		assert.Len(t, perfsB[0].SampleSet.Samples, 2)

		perfsA, err := store.FindPerformances(ctx, first.Publication.ID, first.Created.Scores[0].ID)
		require.NoError(t, err)
		require.Len(t, perfsA, 1)
		assert.Equal(t, second.Created.Performances[0].ID, perfsA[0].ID)
		require.NotNil(t, perfsA[0].SampleSet)
		assert.NotEqual(t, oldSet.ID, perfsA[0].SampleSet.ID)

		assert.Equal(t, catalog.Stats{
			Publications: 1, Cohorts: 1, Traits: 1, Scores: 2, Samples: 5,
			Demographics: 1, SampleSets: 2, Performances: 2, Metrics: 2,
		}, stats(t, store))
	})
}

func TestImportAll_FailureIsRolledBackAndIsolated(t *testing.T) {
	forEachStore(t, func(t *testing.T, base catalog.Store) {
		testFailureIsRolledBack(t, base)
	})
}

func testFailureIsRolledBack(t *testing.T, base catalog.Store) {
	ctx := context.Background()
	store := &failingStore{Store: base, failOn: 3}
	imp := newImporter(t, store)
	archive := &recordingArchiver{}
	imp.Archiver = archive

	good := simpleTemplate("10.1/good").study("good")
	good.Source = []byte("xlsx")
	bad := template{
		doi:  "10.1/bad",
		sets: []string{"Set1", "Set2"},
		perfs: []perfRow{
			{"PRS_A", "Set1", "1.5"},
			{"PRS_A", "Set2", "1.7"},
		},
	}.study("bad")
	bad.Source = []byte("xlsx")

	summary := imp.ImportAll(ctx, []Study{good, bad})
	assert.NotEmpty(t, summary.BatchID)
	assert.Equal(t, 1, summary.Succeeded)
	require.Contains(t, summary.Failed, "bad")
	assert.Contains(t, summary.Failed["bad"], string(StagePerformances))
	assert.Contains(t, summary.Failed["bad"], "connection reset")

	res := summary.Results[1]
	assert.True(t, res.Failed)
	assert.Equal(t, StagePerformances, res.Stage)
	assert.Equal(t, 10, res.Undone)
	assert.Empty(t, res.Created.Samples)
	assert.Nil(t, res.Publication)
	assert.True(t, res.Report.Has(report.ImportError))

	assert.Equal(t, catalog.Stats{
		Publications: 1, Cohorts: 1, Traits: 1, Scores: 1, Samples: 3,
		Demographics: 1, SampleSets: 1, Performances: 1, Metrics: 1,
	}, stats(t, store))
	pub, err := store.FindPublication(ctx, "10.1/good", "")
	require.NoError(t, err)
	require.NotNil(t, pub)
	gone, err := store.FindPublication(ctx, "10.1/bad", "")
	require.NoError(t, err)
	assert.Nil(t, gone)

	runs, err := store.ListImportRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "bad", runs[0].Study)
	assert.Equal(t, models.ImportStatusFailed, runs[0].Status)
	assert.Equal(t, models.ImportStatusSucceeded, runs[1].Status)
	assert.Equal(t, pub.Code, runs[1].PublicationCode)
	assert.Equal(t, summary.BatchID, runs[1].BatchID)
	assert.Equal(t, []string{"good", "bad"}, archive.studies)
}

func TestImportStudy_UnknownSampleSet(t *testing.T) {
	store := catalog.NewMemoryStore()
	imp := newImporter(t, store)
	tp := simpleTemplate("10.1/missing-set")
	tp.perfs = []perfRow{{"PRS_A", "TestSet9", "1.3"}}

	res := imp.ImportStudy(context.Background(), tp.study("missing-set"))
	require.True(t, res.Failed)
	assert.Equal(t, StageRemovePrior, res.Stage)
	assert.Equal(t, []string{`row 3: unknown sample set "TestSet9"`},
		res.Report.Messages(report.ImportError, schema.SheetPerformance))

	s := stats(t, store)
	assert.Zero(t, s.Performances)
	assert.Zero(t, s.SampleSets)
	assert.Zero(t, s.Samples)
	assert.Zero(t, s.Scores)
	assert.Zero(t, s.Publications)
	assert.Equal(t, int64(1), s.Cohorts)
	assert.Equal(t, int64(1), s.Traits)
}

func TestImportStudy_UnknownScoreCode(t *testing.T) {
	tp := simpleTemplate("10.1/code")
	tp.perfs = []perfRow{{"PGS000999", "TestSet1", "1.3"}}
	res := newImporter(t, catalog.NewMemoryStore()).ImportStudy(context.Background(), tp.study("code"))
	require.True(t, res.Failed)
	assert.Contains(t, res.Reason, `unknown score "PGS000999"`)
}

func TestImportStudy_EvaluatesPublishedScoreByCode(t *testing.T) {
	ctx := context.Background()
	store := catalog.NewMemoryStore()
	imp := newImporter(t, store)
	first := imp.ImportStudy(ctx, simpleTemplate("10.1/first").study("first"))
	require.False(t, first.Failed, first.Reason)

	tp := simpleTemplate("10.1/second")
	tp.perfs = []perfRow{{first.Created.Scores[0].Code, "TestSet1", "1.1"}}
	second := imp.ImportStudy(ctx, tp.study("second"))
	require.False(t, second.Failed, second.Reason)
	require.Len(t, second.Created.Performances, 1)
	assert.Equal(t, first.Created.Scores[0].ID, second.Created.Performances[0].ScoreID)
	assert.Equal(t, second.Created.Publication.ID, second.Created.Performances[0].PublicationID)
}

func TestImportStudy_PublicationLookupFails(t *testing.T) {
	store := catalog.NewMemoryStore()
	res := newImporter(t, store).ImportStudy(context.Background(), simpleTemplate("10.1/unknown").study("unknown"))
	require.True(t, res.Failed)
	assert.Equal(t, StagePublication, res.Stage)
	assert.True(t, res.Report.Has(report.Error))
	assert.Zero(t, stats(t, store).Publications)
}

func TestImportStudy_MissingSheet(t *testing.T) {
	full := simpleTemplate("10.1/x").workbook("broken")
	pubSheet, ok := full.Sheet(schema.SheetPublication)
	require.True(t, ok)
	wb := spreadsheet.NewWorkbook("broken")
	wb.AddSheet(schema.SheetPublication, pubSheet.Rows)

	store := catalog.NewMemoryStore()
	res := newImporter(t, store).ImportStudy(context.Background(), Study{Name: "broken", Workbook: wb})
	require.True(t, res.Failed)
	assert.Equal(t, StageParsing, res.Stage)
	assert.Equal(t, []string{"the sheet is missing from the template"}, res.Report.Messages(report.ImportError, schema.SheetScores))
	assert.Zero(t, stats(t, store).Publications)
}

func TestImportDir_ReadsXLSX(t *testing.T) {
	dir := t.TempDir()
	writeXLSX(t, filepath.Join(dir, "example.xlsx"), simpleTemplate("10.1016/example").workbook("example"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.xlsx"), []byte("not a workbook"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "~$example.xlsx"), []byte("lock"), 0o644))

	store := catalog.NewMemoryStore()
	summary, err := newImporter(t, store).ImportDir(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	require.Len(t, summary.Failed, 1)
	assert.Contains(t, summary.Failed[filepath.Join(dir, "broken.xlsx")], "load:")

	res := summary.Results[0]
	assert.False(t, res.Report.HasAny(), "%v", res.Report.FirstImportError())
	require.Len(t, res.Created.Metrics, 1)
	assert.Equal(t, 1.24, res.Created.Metrics[0].Estimate)
	assert.Equal(t, int64(3), stats(t, store).Samples)
}

func TestCitation(t *testing.T) {
	date := time.Date(2021, time.May, 4, 0, 0, 0, 0, time.UTC)
	p := &models.Publication{FirstAuthor: "Smith J", Authors: "Smith J, Doe A", Journal: "Nat Genet", PublicationDate: &date, DOI: "10.1/x"}
	assert.Equal(t, "Smith J et al. (2021) Nat Genet. doi:10.1/x", Citation(p))

	p = &models.Publication{FirstAuthor: "Doe A", Journal: "medRxiv", IsPreprint: true, PMID: "123"}
	assert.Equal(t, "Doe A (n.d.) medRxiv (preprint). pmid:123", Citation(p))
	assert.Equal(t, "", Citation(nil))
}

func writeXLSX(t *testing.T, path string, wb *spreadsheet.Workbook) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, name := range wb.SheetNames() {
		if i == 0 {
			require.NoError(t, f.SetSheetName("Sheet1", name))
		} else {
			_, err := f.NewSheet(name)
			require.NoError(t, err)
		}
		sh, _ := wb.Sheet(name)
		for r, row := range sh.Rows {
			for c, cell := range row {
				if cell.IsBlank() {
					continue
				}
				ref, err := excelize.CoordinatesToCellName(c+1, r+1)
				require.NoError(t, err)
				var v any = cell.Text
				if cell.Numeric {
					v = cell.Number
				}
				require.NoError(t, f.SetCellValue(name, ref, v))
			}
		}
	}
	require.NoError(t, f.SaveAs(path))
}
