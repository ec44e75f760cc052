package models

import (
	"gorm.io/datatypes"
)

// EFOTrait ist ein Ontologie-Begriff aus dem Experimental Factor Ontology.
type EFOTrait struct {
	ID          uint                        `json:"id" gorm:"primaryKey"`
	EFOID       string                      `json:"efo_id" gorm:"column:efo_id;uniqueIndex;not null"`
	Label       string                      `json:"label"`
	Description string                      `json:"description,omitempty" gorm:"type:text"`
	Synonyms    datatypes.JSONSlice[string] `json:"synonyms,omitempty"`
	MappedTerms datatypes.JSONSlice[string] `json:"mapped_terms,omitempty"`
	URL         string                      `json:"url,omitempty"`
}

func (EFOTrait) TableName() string {
	return "efo_traits"
}
