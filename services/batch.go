package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pgs-curation/models"
)

// Archiver legt das Original-Template und den Report einer Studie ab.
type Archiver interface {
	ArchiveStudy(ctx context.Context, batchID, study string, source, reportJSON []byte) (string, error)
}

// BatchSummary fasst einen Batch-Lauf zusammen.
type BatchSummary struct {
	BatchID   string            `json:"batch_id"`
	Succeeded int               `json:"succeeded"`
	Failed    map[string]string `json:"failed"`
	Results   []*ImportResult   `json:"-"`
}

// ImportAll importiert die Studien nacheinander. Eine gescheiterte Studie hält die übrigen nicht auf.
func (imp *StudyImporter) ImportAll(ctx context.Context, studies []Study) BatchSummary {
	summary := BatchSummary{BatchID: uuid.NewString(), Failed: make(map[string]string)}
	log := imp.Logger.With(zap.String("batch_id", summary.BatchID))
	log.Info("Starte Batch-Import", zap.Int("studies", len(studies)))

	for _, st := range studies {
		started := time.Now()
		res := imp.ImportStudy(ctx, st)
		summary.Results = append(summary.Results, res)
		if res.Failed {
			summary.Failed[st.Name] = res.Reason
		} else {
			summary.Succeeded++
		}
		imp.record(ctx, log, summary.BatchID, st, res, started)
	}

	if len(summary.Failed) > 0 {
		for study, reason := range summary.Failed {
			log.Warn("Studie nicht importiert", zap.String("study", study), zap.String("reason", reason))
		}
	}
	log.Info("Batch-Import abgeschlossen", zap.Int("succeeded", summary.Succeeded), zap.Int("failed", len(summary.Failed)))
	return summary
}

// FailLoad nimmt eine Studie, deren Datei nicht gelesen werden konnte, in die Zusammenfassung auf.
func (s *BatchSummary) FailLoad(study string, err error) {
	if s.Failed == nil {
		s.Failed = make(map[string]string)
	}
	s.Failed[study] = "load: " + err.Error()
}

// record schreibt den ImportRun und archiviert die Studie. Fehler werden nur protokolliert.
func (imp *StudyImporter) record(ctx context.Context, log *zap.Logger, batchID string, st Study, res *ImportResult, started time.Time) {
	reportJSON, err := json.Marshal(res.Report)
	if err != nil {
		log.Error("Report konnte nicht serialisiert werden", zap.String("study", st.Name), zap.Error(err))
		reportJSON = []byte("{}")
	}
	run := &models.ImportRun{
		BatchID:    batchID,
		Study:      st.Name,
		Status:     models.ImportStatusSucceeded,
		Stage:      string(res.Stage),
		Reason:     res.Reason,
		Report:     reportJSON,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	if res.Failed {
		run.Status = models.ImportStatusFailed
	}
	if res.Publication != nil {
		run.PublicationCode = res.Publication.Code
	}
	if err := imp.Store.RecordImportRun(ctx, run); err != nil {
		log.Error("ImportRun konnte nicht gespeichert werden", zap.String("study", st.Name), zap.Error(err))
	}

	if imp.Archiver == nil || len(st.Source) == 0 {
		return
	}
	link, err := imp.Archiver.ArchiveStudy(ctx, batchID, st.Name, st.Source, reportJSON)
	if err != nil {
		log.Error("Archivierung fehlgeschlagen", zap.String("study", st.Name), zap.Error(err))
		return
	}
	log.Debug("Studie archiviert", zap.String("study", st.Name), zap.String("link", link))
}

// ImportDir importiert alle Templates aus dir. Nicht lesbare Dateien zählen als gescheitert.
func (imp *StudyImporter) ImportDir(ctx context.Context, dir string) (BatchSummary, error) {
	paths, err := DiscoverStudies(dir)
	if err != nil {
		return BatchSummary{}, err
	}
	var studies []Study
	loadErrors := make(map[string]error)
	for _, p := range paths {
		st, err := LoadStudy(p)
		if err != nil {
			imp.Logger.Error("Template konnte nicht gelesen werden", zap.String("path", p), zap.Error(err))
			loadErrors[p] = err
			continue
		}
		studies = append(studies, st)
	}
	summary := imp.ImportAll(ctx, studies)
	for p, err := range loadErrors {
		summary.FailLoad(p, err)
	}
	return summary, nil
}
