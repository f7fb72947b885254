package extractor

import (
	"context"
	"fmt"
	"net/url"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/interfaces"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/models"
)

// Chain runs a deterministic extractor first and consults a fallback (normally the LLM)
// when confidence is below threshold. The result is sanitized and validated.
type Chain struct {
	primary   interfaces.Extractor
	fallback  interfaces.Extractor
	threshold float64
	validate  *validator.Validate
	logger    arbor.ILogger
}

// NewChain creates an extraction chain. fallback may be nil.
func NewChain(primary, fallback interfaces.Extractor, threshold float64, logger arbor.ILogger) *Chain {
	return &Chain{
		primary:   primary,
		fallback:  fallback,
		threshold: threshold,
		validate:  validator.New(),
		logger:    logger,
	}
}

func (c *Chain) Name() string { return "chain" }

func (c *Chain) Extract(ctx context.Context, input models.ExtractionInput, schema map[string]interface{}) (*models.ExtractedJob, error) {
	job, err := c.primary.Extract(ctx, input, schema)

	if c.fallback != nil && (err != nil || job.ConfidenceScore < c.threshold) {
		if available, ok := c.fallback.(interface{ Available() bool }); !ok || available.Available() {
			inferred, fbErr := c.fallback.Extract(ctx, input, schema)
			switch {
			case fbErr != nil:
				c.logger.Warn().Err(fbErr).Str("url", input.URL).Str("extractor", c.fallback.Name()).Msg("Fallback extraction failed")
			case job == nil:
				job, err = inferred, nil
			default:
				job = MergeExtracted(job, inferred)
			}
		}
	}

	if err != nil {
		return nil, models.AsScrapingError(err, input.URL)
	}

	Sanitize(job)
	if err := c.Validate(job); err != nil {
		return nil, models.NewScrapingError(models.ErrorTypeParsing, input.URL, err)
	}
	return job, nil
}

// Validate checks struct tags and the salary range
func (c *Chain) Validate(job *models.ExtractedJob) error {
	if err := c.validate.Struct(job); err != nil {
		return fmt.Errorf("extracted job failed validation: %w", err)
	}
	if job.SalaryMin != nil && job.SalaryMax != nil && *job.SalaryMax < *job.SalaryMin {
		return fmt.Errorf("salary_max %.0f is below salary_min %.0f", *job.SalaryMax, *job.SalaryMin)
	}
	return nil
}

// MergeExtracted overlays inferred onto base: higher-confidence values win, gaps are filled
func MergeExtracted(base, inferred *models.ExtractedJob) *models.ExtractedJob {
	if inferred == nil {
		return base
	}
	out := *inferred
	if base.ConfidenceScore >= inferred.ConfidenceScore {
		out = *base
	}
	other := inferred
	if out.Method == inferred.Method {
		other = base
	}

	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&out.Title, other.Title)
	fill(&out.Company, other.Company)
	fill(&out.Location, other.Location)
	fill(&out.EmploymentType, other.EmploymentType)
	fill(&out.SalaryCurrency, other.SalaryCurrency)
	fill(&out.SalaryRaw, other.SalaryRaw)
	fill(&out.Description, other.Description)
	fill(&out.Requirements, other.Requirements)
	fill(&out.CanonicalURL, other.CanonicalURL)
	if out.SalaryMin == nil && out.SalaryMax == nil {
		out.SalaryMin, out.SalaryMax = other.SalaryMin, other.SalaryMax
	}
	if out.ValidThrough == nil {
		out.ValidThrough = other.ValidThrough
	}

	metadata := make(map[string]interface{}, len(base.Metadata)+len(inferred.Metadata)+1)
	for k, v := range base.Metadata {
		metadata[k] = v
	}
	for k, v := range inferred.Metadata {
		metadata[k] = v
	}
	metadata["merged_from"] = []string{string(base.Method), string(inferred.Method)}
	out.Metadata = metadata
	return &out
}

// Sanitize trims oversize fields and drops values that cannot be valid
func Sanitize(job *models.ExtractedJob) {
	job.Title = truncate(job.Title, 500)
	job.Company = truncate(job.Company, 300)
	job.Location = truncate(job.Location, 300)

	if job.CanonicalURL != "" {
		if u, err := url.Parse(job.CanonicalURL); err != nil || u.Scheme == "" || u.Host == "" {
			job.CanonicalURL = ""
		}
	}
	if len(job.SalaryCurrency) != 3 {
		job.SalaryCurrency = ""
	}
	if job.SalaryMin != nil && *job.SalaryMin < 0 {
		job.SalaryMin = nil
	}
	if job.SalaryMax != nil && *job.SalaryMax < 0 {
		job.SalaryMax = nil
	}
	if job.SalaryMin != nil && job.SalaryMax != nil && *job.SalaryMax < *job.SalaryMin {
		job.SalaryMin, job.SalaryMax = job.SalaryMax, job.SalaryMin
	}
	if job.ConfidenceScore < 0 {
		job.ConfidenceScore = 0
	}
	if job.ConfidenceScore > 1 {
		job.ConfidenceScore = 1
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
