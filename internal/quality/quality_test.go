package quality

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/gobimport/internal/core"
)

func TestEntityRef(t *testing.T) {
	assert.Equal(t, "1", EntityRef(core.Entity{"identificatie": "1"}))
	assert.Equal(t, "1.2", EntityRef(core.Entity{"identificatie": "1", "volgnummer": int64(2)}))
	assert.Equal(t, "S1", EntityRef(core.Entity{"_source_id": "S1", "volgnummer": nil}))
}

func TestParseSeverity(t *testing.T) {
	s, err := ParseSeverity("WARNING")
	require.NoError(t, err)
	assert.Equal(t, Warning, s)

	_, err = ParseSeverity("warning")
	assert.Error(t, err)
}

func TestReporter_Add(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	r := NewReporter(logger, "test_catalogue", "reporter_entity")

	issue := NewIssue("bouwlagen", core.Entity{"identificatie": "0363", "aantal_bouwlagen": int64(10)}, "aantal_bouwlagen", Warning)
	issue.ComparedTo = "computed"
	issue.ComparedToValue = int64(11)
	r.Add(issue)
	r.Add(Issue{Check: "format", Severity: Fatal})

	assert.Equal(t, 1, r.Count(Warning))
	assert.Equal(t, 1, r.Count(Fatal))
	assert.Equal(t, 0, r.Count(Info))
	assert.Equal(t, map[string]int{
		"num_WARNING":          1,
		"num_FATAL":            1,
		"num_issues_bouwlagen": 1,
		"num_issues_format":    1,
	}, r.Summary())

	out := buf.String()
	assert.Contains(t, out, `"entity_ref":"0363"`)
	assert.Contains(t, out, `"compared_to":"computed"`)
	assert.Contains(t, out, `"level":"WARN"`)
	assert.Contains(t, out, `"level":"ERROR"`)

	got := testutil.ToFloat64(IssuesTotal.WithLabelValues("test_catalogue", "reporter_entity", "bouwlagen", "WARNING"))
	assert.Equal(t, float64(1), got)
}
