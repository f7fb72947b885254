package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/models"
)

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "senior engineer remote ok", NormalizeText("# Senior   Engineer\n\n* **Remote** OK"))
	assert.Equal(t, "", NormalizeText("  \n\t"))
}

func TestContentHashIgnoresFormatting(t *testing.T) {
	a := &models.JobSnapshot{Title: "Engineer", Description: "Build **reliable** systems."}
	b := &models.JobSnapshot{Title: "  engineer ", Description: "build reliable\n\nsystems."}
	c := &models.JobSnapshot{Title: "Engineer", Description: "Build reliable systems.", Salary: "USD 100000"}

	assert.Equal(t, ContentHash(a), ContentHash(b))
	assert.NotEqual(t, ContentHash(a), ContentHash(c))
	assert.Len(t, ContentHash(a), 64)
}

func TestDiffFlagsChangedFields(t *testing.T) {
	lo, hi := 100000.0, 120000.0
	prev := SnapshotFromJob(&models.Job{Title: "Engineer", Description: "Build things", SalaryMin: &lo, SalaryCurrency: "USD"})
	cur := SnapshotFromExtraction(&models.ExtractedJob{Title: "engineer", Description: "Build other things", SalaryMin: &lo, SalaryMax: &hi, SalaryCurrency: "USD"})

	entry := &models.TrackingHistoryEntry{}
	Diff(prev, cur, entry)
	assert.False(t, entry.TitleChanged)
	assert.True(t, entry.DescriptionChanged)
	assert.True(t, entry.SalaryChanged)
	assert.False(t, entry.RequirementsChanged)
	assert.Equal(t, "USD 100000-120000", cur.Salary)
}

func TestDetectClosure(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)

	assert.Nil(t, DetectClosure("https://acme.test/jobs/1", nil, nil, now))
	assert.Nil(t, DetectClosure("https://acme.test/jobs/1", &models.FetchResult{StatusCode: 200, HTML: "<body>Apply now</body>"}, nil, now))

	gone := DetectClosure("https://acme.test/jobs/1", &models.FetchResult{StatusCode: 404}, nil, now)
	if assert.NotNil(t, gone) {
		assert.Equal(t, "http_404", gone.Reason)
	}

	expired := DetectClosure("https://acme.test/jobs/1", &models.FetchResult{StatusCode: 200}, &models.ExtractedJob{ValidThrough: &past}, now)
	if assert.NotNil(t, expired) {
		assert.True(t, expired.Expired)
	}

	hidden := &models.FetchResult{StatusCode: 200, HTML: `<body><script>var s = "position has been filled";</script><p>Apply</p></body>`}
	assert.Nil(t, DetectClosure("https://acme.test/jobs/1", hidden, nil, now))
}

func TestLostJobPath(t *testing.T) {
	assert.True(t, lostJobPath("https://acme.test/jobs/123", "https://acme.test/careers/"))
	assert.True(t, lostJobPath("https://acme.test/jobs/123", "https://acme.test/jobs/search?error=job_not_found"))
	assert.False(t, lostJobPath("https://acme.test/jobs/123", "https://acme.test/jobs/123/"))
	assert.False(t, lostJobPath("https://acme.test/jobs/123", "https://acme.test/jobs/123-senior-engineer"))
	assert.False(t, lostJobPath("https://acme.test/careers", "https://acme.test/jobs"))
}
