package models

import (
	"gorm.io/datatypes"
)

// Cohort ist eine Studienkohorte (z.B. UKB). Der Kurzname ist ohne Beachtung
// der Groß-/Kleinschreibung eindeutig, zusammen mit dem vollen Namen.
type Cohort struct {
	ID         uint                        `json:"id" gorm:"primaryKey"`
	NameShort  string                      `json:"name_short" gorm:"index;not null"`
	NameFull   string                      `json:"name_full"`
	NameOthers datatypes.JSONSlice[string] `json:"name_others,omitempty"`
}

func (Cohort) TableName() string {
	return "cohorts"
}
