package extractor

// JobSchema is the output schema requested from inference providers
func JobSchema() map[string]interface{} {
	str := func(desc string) map[string]interface{} {
		return map[string]interface{}{"type": "string", "description": desc}
	}
	num := func(desc string) map[string]interface{} {
		return map[string]interface{}{"type": "number", "description": desc, "nullable": true}
	}

	return map[string]interface{}{
		"type":     "object",
		"required": []interface{}{"title", "confidence"},
		"properties": map[string]interface{}{
			"title":           str("Job title exactly as posted"),
			"company":         str("Hiring company name"),
			"location":        str("Location, or Remote"),
			"employment_type": str("FULL_TIME, PART_TIME, CONTRACT, INTERN or TEMPORARY"),
			"salary_min":      num("Lower bound of the advertised annual salary"),
			"salary_max":      num("Upper bound of the advertised annual salary"),
			"salary_currency": str("ISO 4217 currency code"),
			"salary_raw":      str("Salary text as written on the page"),
			"description":     str("Role description as markdown"),
			"requirements":    str("Requirements and qualifications as a markdown list"),
			"valid_through":   str("Application deadline as YYYY-MM-DD, empty when absent"),
			"closed":          map[string]interface{}{"type": "boolean", "description": "True when the page says the posting is closed"},
			"confidence":      map[string]interface{}{"type": "number", "description": "0..1 confidence that the page is a single job posting and fields are correct"},
		},
	}
}
