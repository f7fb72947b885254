package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/models"
)

func TestAPIClientListJobs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/jobs", r.URL.Path)
		assert.Equal(t, "open", r.URL.Query().Get("status"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jobs":        []*models.Job{{ID: "job_1", Title: "Engineer", Company: "Acme", Status: models.JobStatusOpen}},
			"total_count": 1,
		})
	}))
	defer server.Close()

	api := newAPIClient(server.URL, 5*time.Second)
	list, err := api.ListJobs(context.Background(), map[string]string{"status": "open"})
	require.NoError(t, err)
	require.Len(t, list.Jobs, 1)
	assert.Equal(t, 1, list.TotalCount)
	assert.Contains(t, formatJobList(list), "**Engineer** at Acme (open)")
}

func TestAPIClientDecodesErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"status":"error","error":"job not found"}`))
	}))
	defer server.Close()

	api := newAPIClient(server.URL, 5*time.Second)
	_, err := api.GetJob(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404 job not found")
}

func TestAPIClientEnqueueSendsBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "https://example.com/jobs/1", body["url"])
		assert.Equal(t, float64(5), body["priority"])

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id":"q_1","created":false,"duplicate":true}`))
	}))
	defer server.Close()

	api := newAPIClient(server.URL, 5*time.Second)
	result, err := api.Enqueue(context.Background(), "https://example.com/jobs/1", 5)
	require.NoError(t, err)
	assert.True(t, result.Duplicate)
	assert.Equal(t, "q_1", result.ID)
}

func TestFormatSalary(t *testing.T) {
	lo, hi := 100000.0, 150000.0
	assert.Equal(t, "100000-150000 USD", formatSalary(&models.Job{SalaryMin: &lo, SalaryMax: &hi, SalaryCurrency: "USD"}))
	assert.Equal(t, "from 100000", formatSalary(&models.Job{SalaryMin: &lo}))
	assert.Equal(t, "$100k", formatSalary(&models.Job{SalaryRaw: "$100k", SalaryMin: &lo}))
	assert.Equal(t, "", formatSalary(&models.Job{}))
}
