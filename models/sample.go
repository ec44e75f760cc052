package models

// Demographic hält Alters- oder Follow-up-Angaben genau einer Sample.
type Demographic struct {
	ID              uint     `json:"id" gorm:"primaryKey"`
	Estimate        *float64 `json:"estimate,omitempty"`
	EstimateType    string   `json:"estimate_type,omitempty"`
	RangeLower      *float64 `json:"range_lower,omitempty"`
	RangeUpper      *float64 `json:"range_upper,omitempty"`
	RangeType       string   `json:"range_type,omitempty"`
	Variability     *float64 `json:"variability,omitempty"`
	VariabilityType string   `json:"variability_type,omitempty"`
	Unit            string   `json:"unit,omitempty"`
}

func (Demographic) TableName() string {
	return "demographics"
}

// Sample beschreibt eine Stichprobe (GWAS, Training oder Test).
type Sample struct {
	ID uint `json:"id" gorm:"primaryKey"`

	SampleNumber      *int     `json:"sample_number,omitempty"`
	SampleCases       *int     `json:"sample_cases,omitempty"`
	SampleControls    *int     `json:"sample_controls,omitempty"`
	SamplePercentMale *float64 `json:"sample_percent_male,omitempty"`

	SampleAgeID    *uint        `json:"-"`
	SampleAge      *Demographic `json:"sample_age,omitempty" gorm:"constraint:OnDelete:SET NULL"`
	FollowupTimeID *uint        `json:"-"`
	FollowupTime   *Demographic `json:"followup_time,omitempty" gorm:"constraint:OnDelete:SET NULL"`

	PhenotypingFree    string `json:"phenotyping_free,omitempty" gorm:"type:text"`
	AncestryBroad      string `json:"ancestry_broad,omitempty"`
	AncestryFree       string `json:"ancestry_free,omitempty"`
	AncestryCountry    string `json:"ancestry_country,omitempty"`
	AncestryAdditional string `json:"ancestry_additional,omitempty" gorm:"type:text"`

	Cohorts           []Cohort `json:"cohorts,omitempty" gorm:"many2many:sample_cohorts"`
	CohortsAdditional string   `json:"cohorts_additional,omitempty" gorm:"type:text"`

	SourceGWASCatalog string `json:"source_gwas_catalog,omitempty" gorm:"column:source_gwas_catalog"`
	SourcePMID        string `json:"source_pmid,omitempty" gorm:"column:source_pmid"`
	SourceDOI         string `json:"source_doi,omitempty" gorm:"column:source_doi"`
}

func (Sample) TableName() string {
	return "samples"
}

// SampleSet gruppiert die Test-Samples einer Performance-Auswertung.
type SampleSet struct {
	ID      uint     `json:"id" gorm:"primaryKey"`
	Code    string   `json:"code" gorm:"uniqueIndex;not null"`
	Name    string   `json:"name"`
	Samples []Sample `json:"samples,omitempty" gorm:"many2many:sample_set_samples"`
}

func (SampleSet) TableName() string {
	return "sample_sets"
}
