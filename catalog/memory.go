package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"pgs-curation/models"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore ist ein Katalog im Speicher für Tests und Probeläufe.
// Gelesene Datensätze sind Kopien.
type MemoryStore struct {
	mu sync.Mutex

	lastID map[string]uint
	seq    map[CodeKind]int64

	publications map[uint]models.Publication
	cohorts      map[uint]models.Cohort
	traits       map[uint]models.EFOTrait
	scores       map[uint]models.Score
	scoreSamples map[uint]map[string][]uint
	samples      map[uint]models.Sample
	demographics map[uint]models.Demographic
	sampleSets   map[uint]models.SampleSet
	setSamples   map[uint][]uint
	performances map[uint]models.Performance
	metrics      map[uint]models.Metric
	runs         []models.ImportRun
}

// NewMemoryStore erstellt einen leeren MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		lastID:       make(map[string]uint),
		seq:          make(map[CodeKind]int64),
		publications: make(map[uint]models.Publication),
		cohorts:      make(map[uint]models.Cohort),
		traits:       make(map[uint]models.EFOTrait),
		scores:       make(map[uint]models.Score),
		scoreSamples: make(map[uint]map[string][]uint),
		samples:      make(map[uint]models.Sample),
		demographics: make(map[uint]models.Demographic),
		sampleSets:   make(map[uint]models.SampleSet),
		setSamples:   make(map[uint][]uint),
		performances: make(map[uint]models.Performance),
		metrics:      make(map[uint]models.Metric),
	}
}

func (m *MemoryStore) newID(kind string) uint {
	m.lastID[kind]++
	return m.lastID[kind]
}

// nextCodeLocked entspricht max(id)+1 beim ersten Aufruf, danach fortlaufend.
func (m *MemoryStore) nextCodeLocked(kind CodeKind) int64 {
	if _, ok := m.seq[kind]; !ok {
		m.seq[kind] = int64(m.lastID[string(kind)]) + 1
	}
	n := m.seq[kind]
	m.seq[kind] = n + 1
	return n
}

func sortedIDs[T any](in map[uint]T) []uint {
	ids := make([]uint, 0, len(in))
	for id := range in {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (m *MemoryStore) FindPublication(_ context.Context, doi, pmid string) (*models.Publication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doi, pmid = strings.TrimSpace(doi), strings.TrimSpace(pmid)
	if doi != "" {
		for _, id := range sortedIDs(m.publications) {
			if p := m.publications[id]; strings.EqualFold(p.DOI, doi) {
				return &p, nil
			}
		}
	}
	if pmid != "" {
		for _, id := range sortedIDs(m.publications) {
			if p := m.publications[id]; p.PMID == pmid {
				return &p, nil
			}
		}
	}
	return nil, nil
}

func (m *MemoryStore) CreatePublication(_ context.Context, p *models.Publication) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.Code = CodePublication.Format(m.nextCodeLocked(CodePublication))
	p.ID = m.newID(string(CodePublication))
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	m.publications[p.ID] = *p
	return nil
}

func (m *MemoryStore) DeletePublication(_ context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sc := range m.scores {
		if sc.PublicationID == id {
			return fmt.Errorf("publication %d: score %s: %w", id, sc.Code, ErrInUse)
		}
	}
	for _, p := range m.performances {
		if p.PublicationID == id {
			return fmt.Errorf("publication %d: performance %s: %w", id, p.Code, ErrInUse)
		}
	}
	delete(m.publications, id)
	return nil
}

func (m *MemoryStore) FindCohorts(_ context.Context, nameShort string) ([]models.Cohort, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Cohort
	for _, id := range sortedIDs(m.cohorts) {
		if c := m.cohorts[id]; strings.EqualFold(c.NameShort, strings.TrimSpace(nameShort)) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MemoryStore) CreateCohort(_ context.Context, c *models.Cohort) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = m.newID("cohort")
	m.cohorts[c.ID] = *c
	return nil
}

func (m *MemoryStore) FindTrait(_ context.Context, efoID string) (*models.EFOTrait, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.traits {
		if t.EFOID == efoID {
			return &t, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) CreateTrait(_ context.Context, t *models.EFOTrait) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.traits {
		if existing.EFOID == t.EFOID {
			return fmt.Errorf("trait %s existiert bereits", t.EFOID)
		}
	}
	t.ID = m.newID("trait")
	m.traits[t.ID] = *t
	return nil
}

func (m *MemoryStore) FindScoreByCode(_ context.Context, code string) (*models.Score, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, id := range sortedIDs(m.scores) {
		if sc := m.scores[id]; sc.Code == code {
			return m.scoreCopy(sc), nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) FindScoreByName(_ context.Context, publicationID uint, name string) (*models.Score, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range sortedIDs(m.scores) {
		if sc := m.scores[id]; sc.PublicationID == publicationID && sc.Name == name {
			return m.scoreCopy(sc), nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) scoreCopy(sc models.Score) *models.Score {
	sc.Traits = append([]models.EFOTrait(nil), sc.Traits...)
	sc.SamplesVariants = m.samplesByID(m.scoreSamples[sc.ID][models.SampleRoleVariants])
	sc.SamplesTraining = m.samplesByID(m.scoreSamples[sc.ID][models.SampleRoleTraining])
	return &sc
}

func (m *MemoryStore) samplesByID(ids []uint) []models.Sample {
	var out []models.Sample
	for _, id := range ids {
		if sm, ok := m.samples[id]; ok {
			out = append(out, sm)
		}
	}
	return out
}

func (m *MemoryStore) CreateScore(_ context.Context, sc *models.Score) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.publications[sc.PublicationID]; !ok {
		return fmt.Errorf("publication %d: %w", sc.PublicationID, ErrMissingDependency)
	}
	for _, t := range sc.Traits {
		if _, ok := m.traits[t.ID]; !ok {
			return fmt.Errorf("trait %s: %w", t.EFOID, ErrMissingDependency)
		}
	}
	sc.Code = CodeScore.Format(m.nextCodeLocked(CodeScore))
	sc.ID = m.newID(string(CodeScore))
	sc.CreatedAt = time.Now()
	stored := *sc
	stored.Publication = nil
	stored.Traits = append([]models.EFOTrait(nil), sc.Traits...)
	stored.SamplesVariants, stored.SamplesTraining = nil, nil
	m.scores[sc.ID] = stored
	return nil
}

func (m *MemoryStore) LinkScoreSamples(_ context.Context, scoreID uint, role string, sampleIDs []uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !validRole(role) {
		return fmt.Errorf("unbekannte Sample-Rolle %q", role)
	}
	if _, ok := m.scores[scoreID]; !ok {
		return fmt.Errorf("score %d: %w", scoreID, ErrMissingDependency)
	}
	for _, id := range sampleIDs {
		if _, ok := m.samples[id]; !ok {
			return fmt.Errorf("sample %d: %w", id, ErrMissingDependency)
		}
	}
	if m.scoreSamples[scoreID] == nil {
		m.scoreSamples[scoreID] = make(map[string][]uint)
	}
	m.scoreSamples[scoreID][role] = append(m.scoreSamples[scoreID][role], sampleIDs...)
	return nil
}

func (m *MemoryStore) DeleteScore(_ context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.performances {
		if p.ScoreID == id {
			return fmt.Errorf("score %d: performance %s: %w", id, p.Code, ErrInUse)
		}
	}
	delete(m.scores, id)
	delete(m.scoreSamples, id)
	return nil
}

func (m *MemoryStore) CreateSample(_ context.Context, sm *models.Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range sm.Cohorts {
		if _, ok := m.cohorts[c.ID]; !ok {
			return fmt.Errorf("cohort %s: %w", c.NameShort, ErrMissingDependency)
		}
	}
	if sm.SampleAge != nil {
		sm.SampleAge.ID = m.newID("demographic")
		m.demographics[sm.SampleAge.ID] = *sm.SampleAge
		sm.SampleAgeID = &sm.SampleAge.ID
	}
	if sm.FollowupTime != nil {
		sm.FollowupTime.ID = m.newID("demographic")
		m.demographics[sm.FollowupTime.ID] = *sm.FollowupTime
		sm.FollowupTimeID = &sm.FollowupTime.ID
	}
	sm.ID = m.newID("sample")
	stored := *sm
	stored.Cohorts = append([]models.Cohort(nil), sm.Cohorts...)
	m.samples[sm.ID] = stored
	return nil
}

func (m *MemoryStore) DeleteSample(_ context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteSampleLocked(id)
	return nil
}

func (m *MemoryStore) deleteSampleLocked(id uint) {
	sm, ok := m.samples[id]
	if !ok {
		return
	}
	if sm.SampleAgeID != nil {
		delete(m.demographics, *sm.SampleAgeID)
	}
	if sm.FollowupTimeID != nil {
		delete(m.demographics, *sm.FollowupTimeID)
	}
	delete(m.samples, id)
	for setID, ids := range m.setSamples {
		m.setSamples[setID] = without(ids, id)
	}
	for _, roles := range m.scoreSamples {
		for role, ids := range roles {
			roles[role] = without(ids, id)
		}
	}
}

func without(ids []uint, id uint) []uint {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func (m *MemoryStore) CreateSampleSet(_ context.Context, set *models.SampleSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]uint, 0, len(set.Samples))
	for _, sm := range set.Samples {
		if _, ok := m.samples[sm.ID]; !ok {
			return fmt.Errorf("sample %d: %w", sm.ID, ErrMissingDependency)
		}
		ids = append(ids, sm.ID)
	}
	set.Code = CodeSampleSet.Format(m.nextCodeLocked(CodeSampleSet))
	set.ID = m.newID(string(CodeSampleSet))
	stored := *set
	stored.Samples = nil
	m.sampleSets[set.ID] = stored
	m.setSamples[set.ID] = ids
	return nil
}

func (m *MemoryStore) DeleteSampleSet(_ context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireUnusedSetLocked(id, nil); err != nil {
		return err
	}
	delete(m.sampleSets, id)
	delete(m.setSamples, id)
	return nil
}

// requireUnusedSetLocked prüft, dass keine Performance außerhalb von removed das Set verwendet.
func (m *MemoryStore) requireUnusedSetLocked(id uint, removed map[uint]bool) error {
	for _, p := range m.performances {
		if p.SampleSetID == id && !removed[p.ID] {
			return fmt.Errorf("sample set %d: performance %s: %w", id, p.Code, ErrInUse)
		}
	}
	return nil
}

func (m *MemoryStore) FindPerformances(_ context.Context, publicationID, scoreID uint) ([]models.Performance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Performance
	for _, id := range sortedIDs(m.performances) {
		p := m.performances[id]
		if p.PublicationID != publicationID || p.ScoreID != scoreID {
			continue
		}
		p.Metrics = nil
		for _, mid := range sortedIDs(m.metrics) {
			if mt := m.metrics[mid]; mt.PerformanceID == p.ID {
				p.Metrics = append(p.Metrics, mt)
			}
		}
		if set, ok := m.sampleSets[p.SampleSetID]; ok {
			set.Samples = m.samplesByID(m.setSamples[set.ID])
			p.SampleSet = &set
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *MemoryStore) CreatePerformance(_ context.Context, p *models.Performance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.publications[p.PublicationID]; !ok {
		return fmt.Errorf("publication %d: %w", p.PublicationID, ErrMissingDependency)
	}
	if _, ok := m.scores[p.ScoreID]; !ok {
		return fmt.Errorf("score %d: %w", p.ScoreID, ErrMissingDependency)
	}
	if _, ok := m.sampleSets[p.SampleSetID]; !ok {
		return fmt.Errorf("sample set %d: %w", p.SampleSetID, ErrMissingDependency)
	}
	p.Code = CodePerformance.Format(m.nextCodeLocked(CodePerformance))
	p.ID = m.newID(string(CodePerformance))
	p.CreatedAt = time.Now()
	for i := range p.Metrics {
		p.Metrics[i].ID = m.newID("metric")
		p.Metrics[i].PerformanceID = p.ID
		m.metrics[p.Metrics[i].ID] = p.Metrics[i]
	}
	stored := *p
	stored.Score, stored.SampleSet, stored.Metrics = nil, nil, nil
	m.performances[p.ID] = stored
	return nil
}

func (m *MemoryStore) DeletePerformance(_ context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletePerformanceLocked(id)
	return nil
}

func (m *MemoryStore) deletePerformanceLocked(id uint) {
	for mid, mt := range m.metrics {
		if mt.PerformanceID == id {
			delete(m.metrics, mid)
		}
	}
	delete(m.performances, id)
}

func (m *MemoryStore) SampleSetPerformances(_ context.Context, sampleSetID uint) ([]uint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []uint
	for _, id := range sortedIDs(m.performances) {
		if m.performances[id].SampleSetID == sampleSetID {
			out = append(out, id)
		}
	}
	return out, nil
}

func (m *MemoryStore) RemoveEvaluations(_ context.Context, performanceIDs, sampleSetIDs []uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := make(map[uint]bool, len(performanceIDs))
	for _, id := range performanceIDs {
		removed[id] = true
	}
	for _, setID := range sampleSetIDs {
		if err := m.requireUnusedSetLocked(setID, removed); err != nil {
			return err
		}
	}

	for _, id := range performanceIDs {
		m.deletePerformanceLocked(id)
	}
	for _, setID := range sampleSetIDs {
		sampleIDs := append([]uint(nil), m.setSamples[setID]...)
		delete(m.sampleSets, setID)
		delete(m.setSamples, setID)
		for _, sid := range sampleIDs {
			m.deleteSampleLocked(sid)
		}
	}
	return nil
}

func (m *MemoryStore) NextCode(_ context.Context, kind CodeKind) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := codeTables[kind]; !ok {
		return 0, fmt.Errorf("unbekannte Code-Art %q", kind)
	}
	return m.nextCodeLocked(kind), nil
}

func (m *MemoryStore) RecordImportRun(_ context.Context, run *models.ImportRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run.ID = m.newID("import_run")
	m.runs = append(m.runs, *run)
	return nil
}

func (m *MemoryStore) ListImportRuns(_ context.Context, limit int) ([]models.ImportRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	var out []models.ImportRun
	for i := len(m.runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.runs[i])
	}
	return out, nil
}

func (m *MemoryStore) Stats(_ context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Publications: int64(len(m.publications)),
		Cohorts:      int64(len(m.cohorts)),
		Traits:       int64(len(m.traits)),
		Scores:       int64(len(m.scores)),
		Samples:      int64(len(m.samples)),
		Demographics: int64(len(m.demographics)),
		SampleSets:   int64(len(m.sampleSets)),
		Performances: int64(len(m.performances)),
		Metrics:      int64(len(m.metrics)),
	}, nil
}
