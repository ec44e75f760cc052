package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pgs-curation/models"
)

var _ Store = (*GormStore)(nil)

// Tabellen, aus denen ein neuer Zähler initialisiert wird.
var codeTables = map[CodeKind]string{
	CodePublication: "publications",
	CodeScore:       "scores",
	CodeSampleSet:   "sample_sets",
	CodePerformance: "performances",
}

var scoreSampleTables = map[string]string{
	models.SampleRoleVariants: "score_samples_variants",
	models.SampleRoleTraining: "score_samples_training",
}

// GormStore ist der Katalog auf Basis von gorm (PostgreSQL im Betrieb, SQLite in Tests).
type GormStore struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

// NewGormStore erstellt einen neuen GormStore.
func NewGormStore(db *gorm.DB, logger *zap.Logger) *GormStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormStore{DB: db, Logger: logger}
}

// Migrate legt alle Tabellen an bzw. aktualisiert sie.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Publication{},
		&models.Cohort{},
		&models.EFOTrait{},
		&models.Demographic{},
		&models.Sample{},
		&models.SampleSet{},
		&models.Score{},
		&models.Performance{},
		&models.Metric{},
		&models.ImportRun{},
		&models.CodeSequence{},
	)
}

func (s *GormStore) tx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.DB.WithContext(ctx).Transaction(fn)
}

func (s *GormStore) deleted(kind string, id uint) {
	if s.Logger != nil {
		s.Logger.Debug("Datensatz gelöscht", zap.String("kind", kind), zap.Uint("id", id))
	}
}

func (s *GormStore) FindPublication(ctx context.Context, doi, pmid string) (*models.Publication, error) {
	db := s.DB.WithContext(ctx)
	if doi = strings.TrimSpace(doi); doi != "" {
		var p models.Publication
		if err := db.Where("LOWER(doi) = ?", strings.ToLower(doi)).Limit(1).Find(&p).Error; err != nil {
			return nil, err
		}
		if p.ID != 0 {
			return &p, nil
		}
	}
	if pmid = strings.TrimSpace(pmid); pmid != "" {
		var p models.Publication
		if err := db.Where("pmid = ?", pmid).Limit(1).Find(&p).Error; err != nil {
			return nil, err
		}
		if p.ID != 0 {
			return &p, nil
		}
	}
	return nil, nil
}

func (s *GormStore) CreatePublication(ctx context.Context, p *models.Publication) error {
	return s.tx(ctx, func(tx *gorm.DB) error {
		n, err := nextCode(tx, CodePublication)
		if err != nil {
			return err
		}
		p.Code = CodePublication.Format(n)
		return tx.Create(p).Error
	})
}

func (s *GormStore) DeletePublication(ctx context.Context, id uint) error {
	err := s.tx(ctx, func(tx *gorm.DB) error {
		if err := requireUnused(tx, &models.Score{}, "publication_id", id); err != nil {
			return err
		}
		if err := requireUnused(tx, &models.Performance{}, "publication_id", id); err != nil {
			return err
		}
		return tx.Delete(&models.Publication{}, id).Error
	})
	if err == nil {
		s.deleted("publication", id)
	}
	return err
}

func (s *GormStore) FindCohorts(ctx context.Context, nameShort string) ([]models.Cohort, error) {
	var cohorts []models.Cohort
	err := s.DB.WithContext(ctx).
		Where("LOWER(name_short) = ?", strings.ToLower(strings.TrimSpace(nameShort))).
		Order("id").
		Find(&cohorts).Error
	return cohorts, err
}

func (s *GormStore) CreateCohort(ctx context.Context, c *models.Cohort) error {
	return s.tx(ctx, func(tx *gorm.DB) error {
		return tx.Create(c).Error
	})
}

func (s *GormStore) FindTrait(ctx context.Context, efoID string) (*models.EFOTrait, error) {
	var t models.EFOTrait
	if err := s.DB.WithContext(ctx).Where("efo_id = ?", efoID).Limit(1).Find(&t).Error; err != nil {
		return nil, err
	}
	if t.ID == 0 {
		return nil, nil
	}
	return &t, nil
}

func (s *GormStore) CreateTrait(ctx context.Context, t *models.EFOTrait) error {
	return s.tx(ctx, func(tx *gorm.DB) error {
		return tx.Create(t).Error
	})
}

func (s *GormStore) FindScoreByCode(ctx context.Context, code string) (*models.Score, error) {
	return s.findScore(ctx, "code = ?", strings.ToUpper(strings.TrimSpace(code)))
}

func (s *GormStore) FindScoreByName(ctx context.Context, publicationID uint, name string) (*models.Score, error) {
	return s.findScore(ctx, "publication_id = ? AND name = ?", publicationID, name)
}

func (s *GormStore) findScore(ctx context.Context, query string, args ...any) (*models.Score, error) {
	var sc models.Score
	err := s.DB.WithContext(ctx).
		Preload("Traits").
		Where(query, args...).
		Limit(1).
		Find(&sc).Error
	if err != nil {
		return nil, err
	}
	if sc.ID == 0 {
		return nil, nil
	}
	return &sc, nil
}

func (s *GormStore) CreateScore(ctx context.Context, sc *models.Score) error {
	return s.tx(ctx, func(tx *gorm.DB) error {
		if err := requireRow(tx, &models.Publication{}, sc.PublicationID); err != nil {
			return err
		}
		for _, t := range sc.Traits {
			if t.ID == 0 {
				return fmt.Errorf("trait %s: %w", t.EFOID, ErrMissingDependency)
			}
		}
		n, err := nextCode(tx, CodeScore)
		if err != nil {
			return err
		}
		sc.Code = CodeScore.Format(n)
		return tx.Omit("Publication", "Traits.*", "SamplesVariants", "SamplesTraining").Create(sc).Error
	})
}

func (s *GormStore) LinkScoreSamples(ctx context.Context, scoreID uint, role string, sampleIDs []uint) error {
	table, ok := scoreSampleTables[role]
	if !ok {
		return fmt.Errorf("unbekannte Sample-Rolle %q", role)
	}
	return s.tx(ctx, func(tx *gorm.DB) error {
		if err := requireRow(tx, &models.Score{}, scoreID); err != nil {
			return err
		}
		for _, id := range sampleIDs {
			if err := requireRow(tx, &models.Sample{}, id); err != nil {
				return err
			}
			if err := tx.Exec("INSERT INTO "+table+" (score_id, sample_id) VALUES (?, ?)", scoreID, id).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *GormStore) DeleteScore(ctx context.Context, id uint) error {
	err := s.tx(ctx, func(tx *gorm.DB) error {
		if err := requireUnused(tx, &models.Performance{}, "score_id", id); err != nil {
			return err
		}
		for _, table := range []string{"score_traits", "score_samples_variants", "score_samples_training"} {
			if err := tx.Exec("DELETE FROM "+table+" WHERE score_id = ?", id).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&models.Score{}, id).Error
	})
	if err == nil {
		s.deleted("score", id)
	}
	return err
}

func (s *GormStore) CreateSample(ctx context.Context, sm *models.Sample) error {
	return s.tx(ctx, func(tx *gorm.DB) error {
		for _, c := range sm.Cohorts {
			if c.ID == 0 {
				return fmt.Errorf("cohort %s: %w", c.NameShort, ErrMissingDependency)
			}
		}
		for _, d := range []*models.Demographic{sm.SampleAge, sm.FollowupTime} {
			if d != nil && d.ID == 0 {
				if err := tx.Create(d).Error; err != nil {
					return err
				}
			}
		}
		if sm.SampleAge != nil {
			sm.SampleAgeID = &sm.SampleAge.ID
		}
		if sm.FollowupTime != nil {
			sm.FollowupTimeID = &sm.FollowupTime.ID
		}
		return tx.Omit("SampleAge", "FollowupTime", "Cohorts.*").Create(sm).Error
	})
}

func (s *GormStore) DeleteSample(ctx context.Context, id uint) error {
	return s.tx(ctx, func(tx *gorm.DB) error {
		return deleteSample(tx, id)
	})
}

func deleteSample(tx *gorm.DB, id uint) error {
	var sm models.Sample
	if err := tx.Where("id = ?", id).Limit(1).Find(&sm).Error; err != nil {
		return err
	}
	if sm.ID == 0 {
		return nil
	}
	for _, table := range []string{"sample_cohorts", "sample_set_samples", "score_samples_variants", "score_samples_training"} {
		if err := tx.Exec("DELETE FROM "+table+" WHERE sample_id = ?", id).Error; err != nil {
			return err
		}
	}
	if err := tx.Delete(&models.Sample{}, id).Error; err != nil {
		return err
	}
	for _, did := range []*uint{sm.SampleAgeID, sm.FollowupTimeID} {
		if did != nil {
			if err := tx.Delete(&models.Demographic{}, *did).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *GormStore) CreateSampleSet(ctx context.Context, set *models.SampleSet) error {
	return s.tx(ctx, func(tx *gorm.DB) error {
		for _, sm := range set.Samples {
			if err := requireRow(tx, &models.Sample{}, sm.ID); err != nil {
				return err
			}
		}
		n, err := nextCode(tx, CodeSampleSet)
		if err != nil {
			return err
		}
		set.Code = CodeSampleSet.Format(n)
		return tx.Omit("Samples.*").Create(set).Error
	})
}

func (s *GormStore) DeleteSampleSet(ctx context.Context, id uint) error {
	err := s.tx(ctx, func(tx *gorm.DB) error {
		return deleteSampleSet(tx, id)
	})
	if err == nil {
		s.deleted("sample_set", id)
	}
	return err
}

func deleteSampleSet(tx *gorm.DB, id uint) error {
	if err := requireUnused(tx, &models.Performance{}, "sample_set_id", id); err != nil {
		return err
	}
	if err := tx.Exec("DELETE FROM sample_set_samples WHERE sample_set_id = ?", id).Error; err != nil {
		return err
	}
	return tx.Delete(&models.SampleSet{}, id).Error
}

func (s *GormStore) FindPerformances(ctx context.Context, publicationID, scoreID uint) ([]models.Performance, error) {
	var perfs []models.Performance
	err := s.DB.WithContext(ctx).
		Preload("Metrics", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("SampleSet.Samples").
		Where("publication_id = ? AND score_id = ?", publicationID, scoreID).
		Order("id").
		Find(&perfs).Error
	return perfs, err
}

func (s *GormStore) CreatePerformance(ctx context.Context, p *models.Performance) error {
	return s.tx(ctx, func(tx *gorm.DB) error {
		if err := requireRow(tx, &models.Publication{}, p.PublicationID); err != nil {
			return err
		}
		if err := requireRow(tx, &models.Score{}, p.ScoreID); err != nil {
			return err
		}
		if err := requireRow(tx, &models.SampleSet{}, p.SampleSetID); err != nil {
			return err
		}
		n, err := nextCode(tx, CodePerformance)
		if err != nil {
			return err
		}
		p.Code = CodePerformance.Format(n)
		return tx.Omit("Score", "SampleSet").Create(p).Error
	})
}

func (s *GormStore) DeletePerformance(ctx context.Context, id uint) error {
	err := s.tx(ctx, func(tx *gorm.DB) error {
		return deletePerformance(tx, id)
	})
	if err == nil {
		s.deleted("performance", id)
	}
	return err
}

func deletePerformance(tx *gorm.DB, id uint) error {
	if err := tx.Where("performance_id = ?", id).Delete(&models.Metric{}).Error; err != nil {
		return err
	}
	return tx.Delete(&models.Performance{}, id).Error
}

func (s *GormStore) SampleSetPerformances(ctx context.Context, sampleSetID uint) ([]uint, error) {
	var ids []uint
	err := s.DB.WithContext(ctx).
		Model(&models.Performance{}).
		Where("sample_set_id = ?", sampleSetID).
		Order("id").
		Pluck("id", &ids).Error
	return ids, err
}

// RemoveEvaluations läuft in einer Transaktion; die Prüfung in deleteSampleSet
// sieht die bereits gelöschten Performances.
func (s *GormStore) RemoveEvaluations(ctx context.Context, performanceIDs, sampleSetIDs []uint) error {
	err := s.tx(ctx, func(tx *gorm.DB) error {
		for _, id := range performanceIDs {
			if err := deletePerformance(tx, id); err != nil {
				return err
			}
		}
		for _, setID := range sampleSetIDs {
			var sampleIDs []uint
			if err := tx.Table("sample_set_samples").Where("sample_set_id = ?", setID).Pluck("sample_id", &sampleIDs).Error; err != nil {
				return err
			}
			if err := deleteSampleSet(tx, setID); err != nil {
				return err
			}
			for _, sid := range sampleIDs {
				if err := deleteSample(tx, sid); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err == nil && s.Logger != nil {
		s.Logger.Debug("Auswertungen entfernt", zap.Int("performances", len(performanceIDs)), zap.Int("sample_sets", len(sampleSetIDs)))
	}
	return err
}

func (s *GormStore) NextCode(ctx context.Context, kind CodeKind) (int64, error) {
	var n int64
	err := s.tx(ctx, func(tx *gorm.DB) error {
		var err error
		n, err = nextCode(tx, kind)
		return err
	})
	return n, err
}

// nextCode liest und erhöht den Zähler unter Zeilensperre. Ein fehlender Zähler
// startet bei max(id)+1 der zugehörigen Tabelle.
func nextCode(tx *gorm.DB, kind CodeKind) (int64, error) {
	table, ok := codeTables[kind]
	if !ok {
		return 0, fmt.Errorf("unbekannte Code-Art %q", kind)
	}
	var maxID int64
	if err := tx.Table(table).Select("COALESCE(MAX(id), 0)").Scan(&maxID).Error; err != nil {
		return 0, err
	}
	seed := models.CodeSequence{Kind: string(kind), Value: maxID + 1}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return 0, err
	}

	var seq models.CodeSequence
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("kind = ?", string(kind)).
		First(&seq).Error; err != nil {
		return 0, err
	}
	if err := tx.Model(&models.CodeSequence{}).
		Where("kind = ?", string(kind)).
		Update("value", seq.Value+1).Error; err != nil {
		return 0, err
	}
	return seq.Value, nil
}

func requireRow(tx *gorm.DB, model any, id uint) error {
	if id == 0 {
		return fmt.Errorf("%T ohne ID: %w", model, ErrMissingDependency)
	}
	var count int64
	if err := tx.Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("%T %d: %w", model, id, ErrMissingDependency)
	}
	return nil
}

// requireUnused schlägt fehl, wenn Zeilen von model über column auf id zeigen.
func requireUnused(tx *gorm.DB, model any, column string, id uint) error {
	var count int64
	if err := tx.Model(model).Where(column+" = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%d %T mit %s=%d: %w", count, model, column, id, ErrInUse)
	}
	return nil
}

func (s *GormStore) RecordImportRun(ctx context.Context, run *models.ImportRun) error {
	return s.tx(ctx, func(tx *gorm.DB) error {
		return tx.Create(run).Error
	})
}

func (s *GormStore) ListImportRuns(ctx context.Context, limit int) ([]models.ImportRun, error) {
	if limit <= 0 {
		limit = 100
	}
	var runs []models.ImportRun
	err := s.DB.WithContext(ctx).Order("id DESC").Limit(limit).Find(&runs).Error
	return runs, err
}

func (s *GormStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	db := s.DB.WithContext(ctx)
	counts := []struct {
		model any
		dst   *int64
	}{
		{&models.Publication{}, &st.Publications},
		{&models.Cohort{}, &st.Cohorts},
		{&models.EFOTrait{}, &st.Traits},
		{&models.Score{}, &st.Scores},
		{&models.Sample{}, &st.Samples},
		{&models.Demographic{}, &st.Demographics},
		{&models.SampleSet{}, &st.SampleSets},
		{&models.Performance{}, &st.Performances},
		{&models.Metric{}, &st.Metrics},
	}
	for _, c := range counts {
		if err := db.Model(c.model).Count(c.dst).Error; err != nil {
			return Stats{}, err
		}
	}
	return st, nil
}

// IsMissingDependency meldet, ob err auf einen fehlenden Datensatz zurückgeht.
func IsMissingDependency(err error) bool {
	return errors.Is(err, ErrMissingDependency)
}
