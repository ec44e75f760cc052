package models

import (
	"time"
)

// Publication ist die Veröffentlichung, aus der Scores und Performances stammen.
type Publication struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Code string `json:"code" gorm:"uniqueIndex;not null"`

	// Identität: DOI bevorzugt, sonst PMID
	DOI  string `json:"doi,omitempty" gorm:"column:doi;index"`
	PMID string `json:"pmid,omitempty" gorm:"column:pmid;index"`

	Journal         string     `json:"journal"`
	FirstAuthor     string     `json:"first_author"`
	Authors         string     `json:"authors,omitempty" gorm:"type:text"`
	Title           string     `json:"title" gorm:"type:text"`
	PublicationDate *time.Time `json:"publication_date,omitempty"`
	IsPreprint      bool       `json:"is_preprint"`

	CurationStatus string `json:"curation_status" gorm:"index"`
	CurationNotes  string `json:"curation_notes,omitempty" gorm:"type:text"`
}

// TableName gibt explizit den Tabellennamen an.
func (Publication) TableName() string {
	return "publications"
}
