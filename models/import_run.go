package models

import (
	"time"

	"gorm.io/datatypes"
)

// Status eines ImportRun.
const (
	ImportStatusSucceeded = "succeeded"
	ImportStatusFailed    = "failed"
)

// ImportRun protokolliert den Import einer Studie innerhalb eines Batch-Laufs.
type ImportRun struct {
	ID              uint           `json:"id" gorm:"primaryKey"`
	BatchID         string         `json:"batch_id" gorm:"index"`
	Study           string         `json:"study" gorm:"index"`
	Status          string         `json:"status" gorm:"index"`
	Stage           string         `json:"stage,omitempty"`
	Reason          string         `json:"reason,omitempty" gorm:"type:text"`
	PublicationCode string         `json:"publication_code,omitempty"`
	Report          datatypes.JSON `json:"report,omitempty"`
	StartedAt       time.Time      `json:"started_at"`
	FinishedAt      time.Time      `json:"finished_at"`
}

func (ImportRun) TableName() string {
	return "import_runs"
}

// CodeSequence ist der Zähler für die Codes einer Entitätsart.
type CodeSequence struct {
	Kind  string `gorm:"primaryKey"`
	Value int64  `gorm:"not null"`
}

func (CodeSequence) TableName() string {
	return "code_sequences"
}
