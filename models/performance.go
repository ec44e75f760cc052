package models

import (
	"time"
)

// Performance verknüpft Score, SampleSet und berichtende Publication.
type Performance struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	Code          string     `json:"code" gorm:"uniqueIndex;not null"`
	PublicationID uint       `json:"publication_id" gorm:"index;not null"`
	ScoreID       uint       `json:"score_id" gorm:"index;not null"`
	Score         *Score     `json:"score,omitempty"`
	SampleSetID   uint       `json:"sample_set_id" gorm:"index;not null"`
	SampleSet     *SampleSet `json:"sample_set,omitempty"`

	PhenotypingReported string `json:"phenotyping_reported"`
	Covariates          string `json:"covariates,omitempty" gorm:"type:text"`
	PerformanceComments string `json:"performance_comments,omitempty" gorm:"type:text"`

	Metrics []Metric `json:"metrics,omitempty" gorm:"constraint:OnDelete:CASCADE"`
}

func (Performance) TableName() string {
	return "performances"
}

// Metric ist eine berichtete Kennzahl. CI und SE schließen sich aus.
type Metric struct {
	ID            uint     `json:"id" gorm:"primaryKey"`
	PerformanceID uint     `json:"performance_id" gorm:"index;not null"`
	Type          string   `json:"type"`
	Name          string   `json:"name"`
	NameShort     string   `json:"name_short,omitempty"`
	Estimate      float64  `json:"estimate"`
	Unit          string   `json:"unit,omitempty"`
	CILower       *float64 `json:"ci_lower,omitempty" gorm:"column:ci_lower"`
	CIUpper       *float64 `json:"ci_upper,omitempty" gorm:"column:ci_upper"`
	SE            *float64 `json:"se,omitempty" gorm:"column:se"`
}

func (Metric) TableName() string {
	return "metrics"
}
