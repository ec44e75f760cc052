package models

import (
	"time"
)

// Sample-Rollen eines Scores.
const (
	SampleRoleVariants = "variants"
	SampleRoleTraining = "training"
)

// Score ist ein polygener Score, definiert in genau einer Publication.
type Score struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	Code          string       `json:"code" gorm:"uniqueIndex;not null"`
	Name          string       `json:"name" gorm:"index"`
	PublicationID uint         `json:"publication_id" gorm:"index;not null"`
	Publication   *Publication `json:"publication,omitempty"`

	TraitReported   string `json:"trait_reported"`
	TraitAdditional string `json:"trait_additional,omitempty" gorm:"type:text"`

	MethodName          string `json:"method_name"`
	MethodParams        string `json:"method_params,omitempty" gorm:"type:text"`
	VariantsNumber      int    `json:"variants_number"`
	VariantsGenomeBuild string `json:"variants_genomebuild,omitempty" gorm:"column:variants_genomebuild"`
	WeightType          string `json:"weight_type,omitempty"`
	License             string `json:"license,omitempty" gorm:"type:text"`

	Traits          []EFOTrait `json:"traits,omitempty" gorm:"many2many:score_traits"`
	SamplesVariants []Sample   `json:"samples_variants,omitempty" gorm:"many2many:score_samples_variants"`
	SamplesTraining []Sample   `json:"samples_training,omitempty" gorm:"many2many:score_samples_training"`
}

func (Score) TableName() string {
	return "scores"
}
