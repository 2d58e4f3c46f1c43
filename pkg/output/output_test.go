package output

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waftester/webscan/pkg/finding"
	"github.com/waftester/webscan/pkg/jsonutil"
	"github.com/waftester/webscan/pkg/scan"
	"github.com/waftester/webscan/pkg/testutil"
)

func sampleReport() *scan.Report {
	fs := []finding.Finding{
		finding.New(finding.Finding{Category: finding.ExposedPath, Confidence: finding.Confirmed, Path: "/backup.bak", URL: "http://t/backup.bak", StatusCode: 200}),
		finding.New(finding.Finding{Category: finding.SQLInjection, Confidence: finding.Likely, Path: "/item", Parameter: "id",
			Evidence: finding.Evidence{Response: "syntax error \xff near"}}),
	}
	return &scan.Report{
		SessionID: "s-1",
		Target:    "http://t/",
		Started:   time.Unix(0, 0).UTC(),
		Findings:  fs,
		Summary: scan.Summary{
			Total:        2,
			ByCategory:   map[finding.Category]int{finding.ExposedPath: 1, finding.SQLInjection: 1},
			ByConfidence: map[finding.Confidence]int{finding.Confirmed: 1, finding.Likely: 1},
			Requests:     42,
			Duration:     time.Second,
		},
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" JSON ")
	require.NoError(t, err)
	assert.Equal(t, JSON, f)

	f, err = ParseFormat("ndjson")
	require.NoError(t, err)
	assert.Equal(t, JSONL, f)

	_, err = ParseFormat("xml")
	require.ErrorIs(t, err, ErrUnknownFormat)
}

func TestWrite_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, JSON, sampleReport()))

	var back scan.Report
	require.NoError(t, jsonutil.Unmarshal(buf.Bytes(), &back))
	assert.Equal(t, "s-1", back.SessionID)
	require.Len(t, back.Findings, 2)
	assert.Equal(t, finding.SQLInjection, back.Findings[1].Category)
	assert.Equal(t, int64(42), back.Summary.Requests)
	assert.Equal(t, time.Second, back.Summary.Duration)
}

func TestWrite_JSONL(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, JSONL, sampleReport()))

	var recs []Record
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		var r Record
		require.NoError(t, jsonutil.Unmarshal(sc.Bytes(), &r), sc.Text())
		recs = append(recs, r)
	}
	require.Len(t, recs, 3)
	assert.Equal(t, RecordFinding, recs[0].Type)
	assert.Equal(t, "/backup.bak", recs[0].Finding.Path)
	assert.Equal(t, RecordSummary, recs[2].Type)
	assert.Equal(t, 2, recs[2].Summary.Total)
}

func TestWrite_UnknownFormat(t *testing.T) {
	require.ErrorIs(t, Write(&bytes.Buffer{}, Format("xml"), sampleReport()), ErrUnknownFormat)
}

func TestWrite_PropagatesWriterError(t *testing.T) {
	require.ErrorIs(t, Write(&testutil.FailingWriter{}, JSONL, sampleReport()), testutil.ErrFault)
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, WriteFile(path, JSON, sampleReport()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, jsonutil.Valid(bytes.TrimSpace(data)))
}

func TestStream(t *testing.T) {
	var buf bytes.Buffer
	s := NewStream(&buf)
	s.SetSession("s-2")

	r := sampleReport()
	s.FindingAccepted(r.Findings[0], false)
	s.FindingAccepted(r.Findings[1], true)
	require.NoError(t, s.Finish(r))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 3)
	var second Record
	require.NoError(t, jsonutil.Unmarshal(lines[1], &second))
	assert.True(t, second.Replaced)
	assert.Equal(t, "s-2", second.SessionID)
}

func TestStream_KeepsFirstError(t *testing.T) {
	s := NewStream(&testutil.FailingWriter{})
	s.FindingAccepted(sampleReport().Findings[0], false)
	require.ErrorIs(t, s.Finish(sampleReport()), testutil.ErrFault)
}
