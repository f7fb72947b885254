package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/models"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/services/fetcher"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/services/llm"
)

const extractionInstruction = `You extract job postings from web pages.
Return only JSON. Use empty strings or null for fields the page does not state. Never invent salaries.`

// Generator is the subset of llm.ProviderFactory used for extraction
type Generator interface {
	GenerateContent(ctx context.Context, request *llm.ContentRequest) (*llm.ContentResponse, error)
	Available() bool
}

// LLMExtractor asks an inference provider to fill the job schema
type LLMExtractor struct {
	generator     Generator
	logger        arbor.ILogger
	maxInputChars int
}

// NewLLMExtractor creates an extractor over generator
func NewLLMExtractor(generator Generator, maxInputChars int, logger arbor.ILogger) *LLMExtractor {
	if maxInputChars <= 0 {
		maxInputChars = 60000
	}
	return &LLMExtractor{
		generator:     generator,
		logger:        logger,
		maxInputChars: maxInputChars,
	}
}

func (e *LLMExtractor) Name() string { return "llm" }

// Available reports whether a provider is configured
func (e *LLMExtractor) Available() bool {
	return e.generator != nil && e.generator.Available()
}

type llmJob struct {
	Title          string   `json:"title"`
	Company        string   `json:"company"`
	Location       string   `json:"location"`
	EmploymentType string   `json:"employment_type"`
	SalaryMin      *float64 `json:"salary_min"`
	SalaryMax      *float64 `json:"salary_max"`
	SalaryCurrency string   `json:"salary_currency"`
	SalaryRaw      string   `json:"salary_raw"`
	Description    string   `json:"description"`
	Requirements   string   `json:"requirements"`
	ValidThrough   string   `json:"valid_through"`
	Closed         bool     `json:"closed"`
	Confidence     *float64 `json:"confidence"`
}

func (e *LLMExtractor) Extract(ctx context.Context, input models.ExtractionInput, schema map[string]interface{}) (*models.ExtractedJob, error) {
	if !e.Available() {
		return nil, models.NewScrapingError(models.ErrorTypeExtraction, input.URL, llm.ErrNotConfigured)
	}
	if schema == nil {
		schema = JobSchema()
	}

	content := input.Markdown
	if content == "" {
		md, err := fetcher.ToMarkdown(input.HTML, input.URL)
		if err != nil {
			return nil, models.NewScrapingError(models.ErrorTypeParsing, input.URL, err)
		}
		content = md
	}
	if len(content) > e.maxInputChars {
		content = content[:e.maxInputChars]
	}

	prompt := fmt.Sprintf("Page URL: %s\n\nPage content (markdown):\n\n%s", input.URL, content)

	start := time.Now()
	resp, err := e.generator.GenerateContent(ctx, &llm.ContentRequest{
		Prompt:            prompt,
		SystemInstruction: extractionInstruction,
		OutputSchema:      schema,
	})
	if err != nil {
		return nil, models.NewScrapingError(models.ErrorTypeExtraction, input.URL, err)
	}

	job, err := parseLLMJob(resp.Text)
	if err != nil {
		return nil, models.NewScrapingError(models.ErrorTypeExtraction, input.URL, err)
	}
	job.Metadata = map[string]interface{}{
		"provider": string(resp.Provider),
		"model":    resp.Model,
	}

	e.logger.Debug().
		Str("url", input.URL).
		Str("provider", string(resp.Provider)).
		Float64("confidence", job.ConfidenceScore).
		Dur("elapsed", time.Since(start)).
		Msg("LLM extraction complete")

	return job, nil
}

func parseLLMJob(text string) (*models.ExtractedJob, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		text = text[start : end+1]
	}

	var out llmJob
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, fmt.Errorf("invalid JSON from provider: %w", err)
	}
	if strings.TrimSpace(out.Title) == "" {
		return nil, fmt.Errorf("provider returned no title")
	}

	confidence := 0.7
	if out.Confidence != nil {
		confidence = *out.Confidence
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	job := &models.ExtractedJob{
		Title:           clean(out.Title),
		Company:         clean(out.Company),
		Location:        clean(out.Location),
		EmploymentType:  clean(out.EmploymentType),
		SalaryMin:       out.SalaryMin,
		SalaryMax:       out.SalaryMax,
		SalaryCurrency:  strings.ToUpper(strings.TrimSpace(out.SalaryCurrency)),
		SalaryRaw:       clean(out.SalaryRaw),
		Description:     strings.TrimSpace(out.Description),
		Requirements:    strings.TrimSpace(out.Requirements),
		ConfidenceScore: confidence,
		Method:          models.ExtractionLLM,
	}
	if out.ValidThrough != "" {
		if t, ok := parseDate(out.ValidThrough); ok {
			job.ValidThrough = &t
		}
	}
	if out.Closed && job.ValidThrough == nil {
		past := time.Now().Add(-time.Minute)
		job.ValidThrough = &past
	}
	return job, nil
}
