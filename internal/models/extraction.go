package models

import "time"

// ExtractionMethod records which extractor produced a result
type ExtractionMethod string

const (
	ExtractionJSONLD    ExtractionMethod = "json_ld"
	ExtractionMeta      ExtractionMethod = "meta"
	ExtractionHeuristic ExtractionMethod = "heuristic"
	ExtractionLLM       ExtractionMethod = "llm"
)

// ExtractionInput is the content handed to an Extractor
type ExtractionInput struct {
	URL      string
	HTML     string
	Markdown string
}

// ExtractedJob is the transient output of an Extractor, validated before it is merged into a Job
type ExtractedJob struct {
	Title           string                 `json:"title" validate:"required,max=500"`
	Company         string                 `json:"company,omitempty" validate:"max=300"`
	Location        string                 `json:"location,omitempty" validate:"max=300"`
	EmploymentType  string                 `json:"employment_type,omitempty"`
	SalaryMin       *float64               `json:"salary_min,omitempty" validate:"omitempty,gte=0"`
	SalaryMax       *float64               `json:"salary_max,omitempty" validate:"omitempty,gte=0"`
	SalaryCurrency  string                 `json:"salary_currency,omitempty" validate:"omitempty,len=3"`
	SalaryRaw       string                 `json:"salary_raw,omitempty"`
	Description     string                 `json:"description,omitempty"`
	Requirements    string                 `json:"requirements,omitempty"`
	CanonicalURL    string                 `json:"canonical_url,omitempty" validate:"omitempty,url"`
	ValidThrough    *time.Time             `json:"valid_through,omitempty"`
	ConfidenceScore float64                `json:"confidence_score" validate:"gte=0,lte=1"`
	Method          ExtractionMethod       `json:"method"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}
