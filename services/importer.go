package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"pgs-curation/builders"
	"pgs-curation/catalog"
	"pgs-curation/models"
	"pgs-curation/parsers"
	"pgs-curation/providers"
	"pgs-curation/report"
	"pgs-curation/schema"
	"pgs-curation/spreadsheet"
)

// Stage ist eine Stufe des Study-Imports.
type Stage string

const (
	StageParsing      Stage = "Parsing"
	StagePublication  Stage = "Publication"
	StageScores       Stage = "Scores"
	StageSamples      Stage = "GWAS/Training Samples"
	StageRemovePrior  Stage = "Remove Prior Metrics"
	StageSampleSets   Stage = "Sample Sets"
	StagePerformances Stage = "Performances/Metrics"
	StageDone         Stage = "Done"
	StageFailed       Stage = "Failed"
)

// sheetTemplate ist die Report-Zuordnung für Probleme, die keinem Blatt gehören.
const sheetTemplate = "Template"

var stageSheets = map[Stage]string{
	StageParsing:      sheetTemplate,
	StagePublication:  schema.SheetPublication,
	StageScores:       schema.SheetScores,
	StageSamples:      schema.SheetSamples,
	StageRemovePrior:  schema.SheetPerformance,
	StageSampleSets:   schema.SheetSamples,
	StagePerformances: schema.SheetPerformance,
}

// Created sind die in einem Import neu angelegten Datensätze.
type Created struct {
	Publication  *models.Publication `json:"publication,omitempty"`
	Scores       []models.Score      `json:"scores,omitempty"`
	Samples      []models.Sample     `json:"samples,omitempty"`
	SampleSets   []models.SampleSet  `json:"sample_sets,omitempty"`
	Performances []models.Performance `json:"performances,omitempty"`
	Metrics      []models.Metric     `json:"metrics,omitempty"`
}

// ImportResult ist das Ergebnis eines Study-Imports.
type ImportResult struct {
	Study string `json:"study"`
	// Stage ist Done oder die Stufe, in der der Import gescheitert ist.
	Stage             Stage               `json:"stage"`
	Publication       *models.Publication `json:"publication,omitempty"`
	PublicationReused bool                `json:"publication_reused"`
	ScoresReused      int                 `json:"scores_reused"`
	Created           Created             `json:"created"`
	// RemovedPerformances zählt die beim Re-Import ersetzten Performances.
	RemovedPerformances int            `json:"removed_performances"`
	Undone              int            `json:"undone"`
	Report              *report.Report `json:"report"`
	Failed              bool           `json:"failed"`
	Reason              string         `json:"reason,omitempty"`
}

// StudyImporter importiert Curation-Templates in den Katalog.
type StudyImporter struct {
	Store         catalog.Store
	Literature    providers.LiteratureProvider
	Ontology      providers.OntologyProvider
	Schema        *schema.Schema
	DefaultStatus string
	Logger        *zap.Logger
	Metrics       *Metrics
	Archiver      Archiver
}

// NewStudyImporter erstellt einen StudyImporter; ohne Schema wird das eingebettete Standard-Schema verwendet.
func NewStudyImporter(store catalog.Store, lit providers.LiteratureProvider, onto providers.OntologyProvider, sch *schema.Schema, defaultStatus string, logger *zap.Logger) (*StudyImporter, error) {
	if sch == nil {
		var err error
		if sch, err = schema.Default(builders.Fields); err != nil {
			return nil, err
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudyImporter{
		Store:         store,
		Literature:    lit,
		Ontology:      onto,
		Schema:        sch,
		DefaultStatus: defaultStatus,
		Logger:        logger,
	}, nil
}

// run ist der Zustand eines einzelnen Study-Imports.
type run struct {
	imp   *StudyImporter
	ctx   context.Context
	study Study
	log   *zap.Logger
	rep   *report.Report
	res   *ImportResult
	undo  undoStack

	pubRow     *builders.PublicationBuilder
	cohortRefs builders.CohortIndex
	scoreRows  []*builders.ScoreBuilder
	sampleRows []*builders.SampleBuilder
	perfRows   []*builders.PerformanceBuilder

	publication *models.Publication
	scores      map[string]*models.Score
	newScores   map[uint]bool
	traits      map[string]*models.EFOTrait
	cohorts     map[string]*models.Cohort
	sets        map[string]*models.SampleSet
	perfScores  []*models.Score
}

// ImportStudy importiert eine Studie. Scheitert eine Stufe, werden alle in diesem Lauf
// angelegten Datensätze in umgekehrter Reihenfolge wieder gelöscht.
func (imp *StudyImporter) ImportStudy(ctx context.Context, study Study) *ImportResult {
	rep := report.New()
	r := &run{
		imp:        imp,
		ctx:        ctx,
		study:      study,
		log:        imp.Logger.With(zap.String("study", study.Name)),
		rep:        rep,
		res:        &ImportResult{Study: study.Name, Report: rep},
		cohortRefs: builders.CohortIndex{},
		scores:     make(map[string]*models.Score),
		newScores:  make(map[uint]bool),
		traits:     make(map[string]*models.EFOTrait),
		cohorts:    make(map[string]*models.Cohort),
		sets:       make(map[string]*models.SampleSet),
	}
	r.log.Info("Starte Import der Studie")

	stages := []struct {
		stage Stage
		fn    func() error
	}{
		{StageParsing, r.parse},
		{StagePublication, r.importPublication},
		{StageScores, r.importScores},
		{StageSamples, r.importScoreSamples},
		{StageRemovePrior, r.removePriorPerformances},
		{StageSampleSets, r.importSampleSets},
		{StagePerformances, r.importPerformances},
	}
	for _, s := range stages {
		r.res.Stage = s.stage
		err := s.fn()
		if err == nil && rep.Has(report.ImportError) {
			err = errors.New(rep.FirstImportError())
		}
		if err != nil {
			r.fail(s.stage, err)
			return r.finish()
		}
		r.log.Debug("Stufe abgeschlossen", zap.String("stage", string(s.stage)))
	}
	r.res.Stage = StageDone
	return r.finish()
}

func (r *run) fail(stage Stage, err error) {
	if !r.rep.Has(report.ImportError) {
		r.rep.ImportErrorf(stageSheets[stage], "%v", err)
	}
	r.res.Failed = true
	r.res.Reason = fmt.Sprintf("%s: %v", stage, err)
	r.log.Error("Import fehlgeschlagen, lege angelegte Datensätze zurück",
		zap.String("stage", string(stage)), zap.Int("steps", r.undo.len()), zap.Error(err))

	undone, undoErr := r.undo.unwind(context.WithoutCancel(r.ctx), r.log)
	r.res.Undone = undone
	if undoErr != nil {
		r.rep.ImportErrorf(stageSheets[stage], "rollback incomplete: %v", undoErr)
		r.res.Reason += "; rollback incomplete"
	}
	r.res.Created = Created{}
	if !r.res.PublicationReused {
		r.res.Publication = nil
	}
}

func (r *run) finish() *ImportResult {
	r.rep.Log(r.log)
	if r.res.Failed {
		r.log.Warn("Import gescheitert", zap.String("reason", r.res.Reason), zap.Int("undone", r.res.Undone))
	} else {
		c := r.res.Created
		r.log.Info("Import abgeschlossen",
			zap.Bool("publication_reused", r.res.PublicationReused),
			zap.Int("scores", len(c.Scores)),
			zap.Int("samples", len(c.Samples)),
			zap.Int("sample_sets", len(c.SampleSets)),
			zap.Int("performances", len(c.Performances)),
			zap.Int("metrics", len(c.Metrics)))
	}
	r.imp.Metrics.observe(r.res)
	return r.res
}

// cellField ist eine zugeordnete, nicht leere Zelle.
type cellField struct {
	target schema.Target
	value  parsers.Value
}

func cellValue(c spreadsheet.Cell) parsers.Value {
	if c.Numeric {
		return parsers.Number(c.Number)
	}
	return parsers.Text(c.Text)
}

// parse liest alle Blätter des Schemas und erzeugt je Zeile die Builder.
func (r *run) parse() error {
	if r.study.Workbook == nil {
		return errors.New("no workbook")
	}
	for _, sh := range r.imp.Schema.Sheets {
		ws, ok := r.study.Workbook.Sheet(sh.Name)
		if !ok {
			if !sh.Optional {
				r.rep.ImportErrorf(sh.Name, "the sheet is missing from the template")
			}
			continue
		}
		header := make([][]string, 0, sh.HeaderRows)
		for i := 0; i < sh.HeaderRows && i < len(ws.Rows); i++ {
			row := make([]string, len(ws.Rows[i]))
			for c, cell := range ws.Rows[i] {
				row[c] = cell.Text
			}
			header = append(header, row)
		}
		targets := r.imp.Schema.MapHeader(sh.Name, header)

		for i := sh.HeaderRows; i < len(ws.Rows); i++ {
			byKind := make(map[schema.Kind][]cellField)
			var kinds []schema.Kind
			for c, t := range targets {
				cell := ws.Cell(i, c)
				if t.Field == "" || cell.IsBlank() {
					continue
				}
				if _, seen := byKind[t.Kind]; !seen {
					kinds = append(kinds, t.Kind)
				}
				byKind[t.Kind] = append(byKind[t.Kind], cellField{target: t, value: cellValue(cell)})
			}
			for _, kind := range kinds {
				r.addRow(sh.Name, i+1, kind, byKind[kind])
			}
		}
	}
	if r.pubRow == nil && !r.rep.Has(report.ImportError) {
		r.rep.ImportErrorf(schema.SheetPublication, "no publication is given")
	}
	return nil
}

func (r *run) addRow(sheet string, row int, kind schema.Kind, fields []cellField) {
	type fieldAdder interface {
		AddField(field string, v parsers.Value)
	}
	var b fieldAdder
	switch kind {
	case schema.KindPublication:
		if r.pubRow != nil {
			r.rep.Warnf(sheet, "row %d: only the first publication row is used", row)
			return
		}
		r.pubRow = builders.NewPublicationBuilder(r.rep, sheet, row)
		b = r.pubRow
	case schema.KindCohort:
		cb := builders.NewCohortBuilder(r.rep, sheet, row)
		for _, f := range fields {
			cb.AddField(f.target.Field, f.value)
		}
		r.cohortRefs.Add(cb)
		return
	case schema.KindScore:
		sb := builders.NewScoreBuilder(r.rep, sheet, row)
		r.scoreRows = append(r.scoreRows, sb)
		b = sb
	case schema.KindSample:
		sb := builders.NewSampleBuilder(r.rep, sheet, row)
		r.sampleRows = append(r.sampleRows, sb)
		b = sb
	case schema.KindPerformance:
		pb := builders.NewPerformanceBuilder(r.rep, sheet, row)
		r.perfRows = append(r.perfRows, pb)
		b = pb
	default:
		return
	}
	for _, f := range fields {
		b.AddField(f.target.Field, f.value)
	}
}

func (r *run) importPublication() error {
	store := r.imp.Store
	found, err := r.pubRow.Resolve(r.ctx, store)
	if err != nil {
		return err
	}
	if found != nil {
		r.log.Info("Publikation bereits vorhanden, wird wiederverwendet", zap.String("code", found.Code))
		r.publication = found
		r.res.Publication = found
		r.res.PublicationReused = true
		return nil
	}

	pub, err := r.pubRow.Create(r.ctx, store, r.imp.Literature, r.imp.DefaultStatus)
	if err != nil {
		return err
	}
	if pub == nil {
		r.rep.ImportErrorf(schema.SheetPublication, "the publication %s can not be created", r.pubRow.Query())
		return nil
	}
	r.undo.push("publication", pub.ID, store.DeletePublication)
	r.log.Info("Publikation angelegt", zap.String("code", pub.Code), zap.String("citation", Citation(pub)))
	r.publication = pub
	r.res.Publication = pub
	r.res.Created.Publication = pub
	return nil
}

func (r *run) importScores() error {
	store := r.imp.Store
	for _, b := range r.scoreRows {
		if b.Name != "" {
			if _, dup := r.scores[b.Name]; dup {
				r.rep.Errorf(schema.SheetScores, "row %d: the score %q is defined more than once", b.Row(), b.Name)
				continue
			}
		}
		if r.res.PublicationReused {
			existing, err := b.Resolve(r.ctx, store, r.publication)
			if err != nil {
				return err
			}
			if existing != nil {
				r.scores[b.Name] = existing
				r.res.ScoresReused++
				continue
			}
		}
		traits, err := r.traitsFor(b)
		if err != nil {
			return err
		}
		s, err := b.Create(r.ctx, store, r.publication, traits)
		if err != nil {
			return err
		}
		if s == nil {
			continue
		}
		r.undo.push("score", s.ID, store.DeleteScore)
		r.scores[s.Name] = s
		r.newScores[s.ID] = true
		r.res.Created.Scores = append(r.res.Created.Scores, *s)
	}
	if len(r.scoreRows) > 0 && len(r.scores) == 0 {
		return errors.New("none of the scores could be created")
	}
	return nil
}

// traitsFor löst die Traits eines Scores auf bzw. legt sie an. Traits werden nie zurückgerollt.
func (r *run) traitsFor(b *builders.ScoreBuilder) ([]models.EFOTrait, error) {
	var out []models.EFOTrait
	seen := make(map[string]bool)
	for _, tb := range b.Traits() {
		if seen[tb.ID] {
			continue
		}
		seen[tb.ID] = true
		t, ok := r.traits[tb.ID]
		if !ok {
			var err error
			if t, err = tb.Resolve(r.ctx, r.imp.Store); err != nil {
				return nil, err
			}
			if t == nil {
				if t, err = tb.Create(r.ctx, r.imp.Store, r.imp.Ontology); err != nil {
					return nil, err
				}
			}
			if t == nil {
				continue
			}
			r.traits[tb.ID] = t
		}
		out = append(out, *t)
	}
	return out, nil
}

// cohortsFor löst die Kohorten einer Sample-Zeile auf bzw. legt sie an. Kohorten werden nie zurückgerollt.
func (r *run) cohortsFor(b *builders.SampleBuilder) ([]models.Cohort, error) {
	var out []models.Cohort
	seen := make(map[uint]bool)
	for _, name := range b.CohortNames {
		key := strings.ToLower(strings.TrimSpace(name))
		c, ok := r.cohorts[key]
		if !ok {
			cb := r.cohortRefs.Builder(r.rep, b.Sheet(), b.Row(), name)
			var err error
			if c, err = cb.Resolve(r.ctx, r.imp.Store); err != nil {
				return nil, err
			}
			if c == nil {
				if c, err = cb.Create(r.ctx, r.imp.Store); err != nil {
					return nil, err
				}
			}
			r.cohorts[key] = c
		}
		if !seen[c.ID] {
			seen[c.ID] = true
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *run) createSample(b *builders.SampleBuilder) (*models.Sample, error) {
	cohorts, err := r.cohortsFor(b)
	if err != nil {
		return nil, err
	}
	s, err := b.Create(r.ctx, r.imp.Store, cohorts)
	if err != nil {
		return nil, fmt.Errorf("row %d: %w", b.Row(), err)
	}
	r.undo.push("sample", s.ID, r.imp.Store.DeleteSample)
	r.res.Created.Samples = append(r.res.Created.Samples, *s)
	return s, nil
}

// importScoreSamples legt die GWAS- und Training-Samples an, je referenziertem neuen Score eine eigene Sample.
func (r *run) importScoreSamples() error {
	for _, b := range r.sampleRows {
		stage := b.Stage()
		if stage == builders.StageTesting {
			continue
		}
		names := b.ScoreNames
		if len(names) == 0 && len(r.scoreRows) == 1 {
			names = []string{r.scoreRows[0].Name}
		}
		if len(names) == 0 {
			r.rep.Errorf(b.Sheet(), "row %d: the %s sample does not name a score", b.Row(), stage)
			continue
		}
		role := models.SampleRoleTraining
		if stage == builders.StageVariants {
			role = models.SampleRoleVariants
		}
		for _, name := range names {
			score, ok := r.scores[name]
			if !ok {
				r.rep.Errorf(b.Sheet(), "row %d: unknown score %q", b.Row(), name)
				continue
			}
			if !r.newScores[score.ID] {
				continue
			}
			s, err := r.createSample(b)
			if err != nil {
				return err
			}
			if err := r.imp.Store.LinkScoreSamples(r.ctx, score.ID, role, []uint{s.ID}); err != nil {
				return fmt.Errorf("score %q: %w", name, err)
			}
		}
	}
	return nil
}

// testingSets liefert die Sample-Set-Namen der Test-Zeilen (klein geschrieben).
func (r *run) testingSets() map[string]bool {
	out := make(map[string]bool)
	for _, b := range r.sampleRows {
		if b.Stage() == builders.StageTesting && b.SampleSet != "" {
			out[strings.ToLower(b.SampleSet)] = true
		}
	}
	return out
}

func (r *run) scoreFor(row int, name string) (*models.Score, error) {
	if s, ok := r.scores[name]; ok {
		return s, nil
	}
	if name == "" {
		r.rep.ImportErrorf(schema.SheetPerformance, "row %d: no score is given", row)
		return nil, nil
	}
	if builders.IsScoreCode(name) {
		s, err := builders.ResolveScoreCode(r.ctx, r.imp.Store, r.rep, schema.SheetPerformance, name)
		if err != nil || s == nil {
			return nil, err
		}
		r.scores[name] = s
		return s, nil
	}
	r.rep.ImportErrorf(schema.SheetPerformance, "row %d: unknown score %q", row, name)
	return nil, nil
}

// removePriorPerformances prüft zuerst alle Referenzen der Performance-Zeilen und löscht dann
// bei einer bereits vorhandenen Publication die alten Performances je (Publication, Score)
// samt SampleSet und dessen Samples, sofern keine andere Performance das Set verwendet.
func (r *run) removePriorPerformances() error {
	sets := r.testingSets()
	r.perfScores = make([]*models.Score, len(r.perfRows))
	for i, b := range r.perfRows {
		score, err := r.scoreFor(b.Row(), b.ScoreName)
		if err != nil {
			return err
		}
		r.perfScores[i] = score
		switch {
		case b.SampleSet == "":
			r.rep.ImportErrorf(schema.SheetPerformance, "row %d: no sample set is given", b.Row())
		case !sets[strings.ToLower(b.SampleSet)]:
			r.rep.ImportErrorf(schema.SheetPerformance, "row %d: unknown sample set %q", b.Row(), b.SampleSet)
		}
	}
	if r.rep.Has(report.ImportError) || !r.res.PublicationReused {
		return nil
	}

	store := r.imp.Store
	var prior []models.Performance
	seenScores := make(map[uint]bool)
	for _, score := range r.perfScores {
		if seenScores[score.ID] {
			continue
		}
		seenScores[score.ID] = true
		perfs, err := store.FindPerformances(r.ctx, r.publication.ID, score.ID)
		if err != nil {
			return err
		}
		prior = append(prior, perfs...)
	}
	if len(prior) == 0 {
		return nil
	}

	// Erst planen, dann in einem Schritt löschen. Ein SampleSet, das noch von
	// Performances anderer Scores verwendet wird, bleibt samt Samples erhalten.
	removed := make(map[uint]bool, len(prior))
	perfIDs := make([]uint, 0, len(prior))
	for _, p := range prior {
		removed[p.ID] = true
		perfIDs = append(perfIDs, p.ID)
	}
	var setIDs []uint
	seenSets := make(map[uint]bool)
	for _, p := range prior {
		if p.SampleSet == nil || seenSets[p.SampleSetID] {
			continue
		}
		seenSets[p.SampleSetID] = true
		users, err := store.SampleSetPerformances(r.ctx, p.SampleSetID)
		if err != nil {
			return err
		}
		if shared := othersThan(users, removed); shared > 0 {
			r.rep.Warnf(schema.SheetPerformance, "sample set %s is kept, %d other performance(s) still use it", p.SampleSet.Code, shared)
			continue
		}
		setIDs = append(setIDs, p.SampleSetID)
	}

	if err := store.RemoveEvaluations(r.ctx, perfIDs, setIDs); err != nil {
		return fmt.Errorf("remove %d prior performances: %w", len(perfIDs), err)
	}
	r.res.RemovedPerformances = len(prior)
	r.log.Info("Bisherige Performances entfernt",
		zap.Int("performances", len(prior)),
		zap.Int("sample_sets", len(setIDs)),
		zap.Int("sample_sets_kept", len(seenSets)-len(setIDs)))
	return nil
}

func othersThan(ids []uint, removed map[uint]bool) int {
	n := 0
	for _, id := range ids {
		if !removed[id] {
			n++
		}
	}
	return n
}

// importSampleSets legt je Sample-Set-Name die Test-Samples und das SampleSet an.
func (r *run) importSampleSets() error {
	used := make(map[string]bool)
	for _, b := range r.perfRows {
		used[strings.ToLower(b.SampleSet)] = true
	}

	var order []string
	groups := make(map[string]*builders.SampleSetBuilder)
	for _, b := range r.sampleRows {
		if b.Stage() != builders.StageTesting {
			continue
		}
		if b.SampleSet == "" {
			r.rep.Errorf(b.Sheet(), "row %d: the testing sample has no sample set", b.Row())
			continue
		}
		key := strings.ToLower(b.SampleSet)
		g, ok := groups[key]
		if !ok {
			g = builders.NewSampleSetBuilder(r.rep, b.Sheet(), b.Row(), b.SampleSet)
			groups[key] = g
			order = append(order, key)
		}
		g.Samples = append(g.Samples, b)
	}

	for _, key := range order {
		g := groups[key]
		if !used[key] {
			r.rep.Warnf(schema.SheetSamples, "the sample set %q is not used by any performance", g.Name)
		}
		samples := make([]models.Sample, 0, len(g.Samples))
		for _, b := range g.Samples {
			s, err := r.createSample(b)
			if err != nil {
				return err
			}
			samples = append(samples, *s)
		}
		set, err := g.Create(r.ctx, r.imp.Store, samples)
		if err != nil {
			return fmt.Errorf("sample set %q: %w", g.Name, err)
		}
		if set == nil {
			continue
		}
		r.undo.push("sample_set", set.ID, r.imp.Store.DeleteSampleSet)
		r.sets[key] = set
		r.res.Created.SampleSets = append(r.res.Created.SampleSets, *set)
	}
	return nil
}

func (r *run) importPerformances() error {
	store := r.imp.Store
	for i, b := range r.perfRows {
		score := r.perfScores[i]
		set := r.sets[strings.ToLower(b.SampleSet)]
		if score == nil || set == nil {
			r.rep.ImportErrorf(schema.SheetPerformance, "row %d: the performance of %q on %q can not be created", b.Row(), b.ScoreName, b.SampleSet)
			continue
		}
		p, err := b.Create(r.ctx, store, r.publication, score, set)
		if err != nil {
			return fmt.Errorf("row %d: %w", b.Row(), err)
		}
		r.undo.push("performance", p.ID, store.DeletePerformance)
		r.res.Created.Performances = append(r.res.Created.Performances, *p)
		r.res.Created.Metrics = append(r.res.Created.Metrics, p.Metrics...)
	}
	if len(r.perfRows) > 0 && len(r.res.Created.Performances) == 0 {
		return errors.New("none of the performances could be created")
	}
	return nil
}
