package client

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/saiten/internal/config"
	"github.com/hpungsan/saiten/internal/db"
	"github.com/hpungsan/saiten/internal/errors"
	"github.com/hpungsan/saiten/internal/ops"
	"github.com/hpungsan/saiten/internal/review"
	"github.com/hpungsan/saiten/internal/web"
)

const testRoster = "広大ID,フルネーム,ステータス\n" +
	"B001,山田 太郎,提出済み\n" +
	"B002,佐藤 花子,未提出\n" +
	"B003,鈴木 一郎,提出済み\n"

func testArchive(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range map[string]string{
		"B001_山田太郎/kadai01.c":                "/* 氏名: 山田 */\nint main(void) { return 0; }\n",
		"B001_山田太郎/kadai01-test-history.txt": "OK\n",
		"B003_鈴木一郎/kadai01.c":                "int main(void) { return 0; }\n",
	} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// newTestServer starts the real server over a fresh data dir with one
// imported assignment.
func newTestServer(t *testing.T) (*Client, string) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	database, err := db.Init(cfg.DataDir)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	b, err := ops.NewBackend(database, cfg, nil)
	require.NoError(t, err)

	archive := testArchive(t)
	out, err := ops.Import(context.Background(), b, ops.ImportInput{
		Name:        "演習1",
		SourceBase:  "kadai01",
		Roster:      strings.NewReader(testRoster),
		Archive:     bytes.NewReader(archive),
		ArchiveSize: int64(len(archive)),
	})
	require.NoError(t, err)

	srv, err := web.NewServer(b, nil, "test", "127.0.0.1", 0)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)

	c, err := New(ts.URL, ts.Client())
	require.NoError(t, err)
	return c, out.AssignmentID
}

func TestNew_InvalidURL(t *testing.T) {
	for _, u := range []string{"", "localhost", "://bad"} {
		_, err := New(u, nil)
		require.True(t, errors.Is(err, errors.ErrInvalidRequest), "url %q", u)
	}

	c, err := New(" http://127.0.0.1:5000/ ", nil)
	require.NoError(t, err)
	require.Equal(t, "http://127.0.0.1:5000", c.baseURL)
}

func TestClient_RoundTrip(t *testing.T) {
	c, aid := newTestServer(t)
	ctx := context.Background()

	list, err := c.Assignments(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, aid, list[0].AssignmentID)

	students, err := c.Students(ctx, aid, "")
	require.NoError(t, err)
	require.Len(t, students, 2)

	require.NoError(t, c.SaveFeedback(ctx, aid, "B001", "よくできました"))

	reviewed, err := c.Students(ctx, aid, "reviewed")
	require.NoError(t, err)
	require.Len(t, reviewed, 1)
	require.Equal(t, ops.ReviewedMark, reviewed[0].Reviewed)

	d, err := c.Student(ctx, aid, "B001")
	require.NoError(t, err)
	require.Equal(t, "演習1", d.AssignmentName)
	require.Equal(t, "OK\n", d.TestHistory)

	stats, err := c.AutoCheckAll(ctx, aid, false)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Skipped)
	require.Equal(t, 1, stats.Checked)

	status, err := c.AutoCheckStatus(ctx, aid)
	require.NoError(t, err)
	require.True(t, status.Checked)

	var csv bytes.Buffer
	require.NoError(t, c.ExportCSV(ctx, aid, &csv))
	require.Contains(t, csv.String(), "よくできました")
}

func TestClient_ErrorCodesSurvive(t *testing.T) {
	c, aid := newTestServer(t)
	ctx := context.Background()

	_, err := c.Student(ctx, aid, "B999")
	require.True(t, errors.Is(err, errors.ErrNotFound), "err = %v", err)

	_, err = c.Students(ctx, aid, "bogus")
	require.True(t, errors.Is(err, errors.ErrInvalidRequest), "err = %v", err)

	require.NoError(t, c.SaveFeedback(ctx, aid, "B003", ""))
	_, err = c.AutoCheck(ctx, aid, "B003")
	require.True(t, errors.Is(err, errors.ErrAlreadyReviewed), "err = %v", err)

	_, err = c.AutoCheckAll(ctx, aid, false)
	require.NoError(t, err)
	_, err = c.AutoCheckAll(ctx, aid, false)
	require.True(t, errors.Is(err, errors.ErrAlreadyChecked), "err = %v", err)
}

func TestAssignmentStore_DrivesSession(t *testing.T) {
	c, aid := newTestServer(t)
	ctx := context.Background()
	store := c.Assignment(aid)

	s := review.New(review.Options{
		AssignmentID: aid,
		Source:       store,
		Persister:    store,
		Checker:      store,
		Debounce:     -1,
	})
	defer s.Close()
	require.NoError(t, s.Load(ctx))

	_, err := s.Open("B001")
	require.NoError(t, err)
	adv, err := s.SaveAndAdvance(ctx, "B001", "OK")
	require.NoError(t, err)
	require.Equal(t, "B003", adv.NextID)

	rec, ok := s.Record("B001")
	require.True(t, ok)
	require.Equal(t, review.Reviewed, rec.Status())

	d, err := store.Detail(ctx, "B003")
	require.NoError(t, err)
	require.Equal(t, "B003", d.Student.ID)

	_, err = store.Detail(ctx, "")
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestClient_RetriesUnavailableGets(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"code":"UNAVAILABLE","message":"busy","status":503}}`))
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer ts.Close()

	c, err := New(ts.URL, ts.Client())
	require.NoError(t, err)
	c.backoff = func(int) time.Duration { return time.Millisecond }

	list, err := c.Assignments(context.Background())
	require.NoError(t, err)
	require.Empty(t, list)
	require.EqualValues(t, 3, calls.Load())
}

func TestClient_PostsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	c, err := New(ts.URL, ts.Client())
	require.NoError(t, err)
	c.backoff = func(int) time.Duration { return time.Millisecond }

	err = c.SaveFeedback(context.Background(), "a", "b", "x")
	require.True(t, errors.Is(err, errors.ErrUnavailable), "err = %v", err)
	require.EqualValues(t, 1, calls.Load())
}

func TestDecodeError_NonEnvelope(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer ts.Close()

	c, err := New(ts.URL, ts.Client())
	require.NoError(t, err)

	_, err = c.Student(context.Background(), "a", "b")
	var apiErr *errors.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, errors.ErrNotFound, apiErr.Code)
	require.Equal(t, http.StatusNotFound, apiErr.Status)
	require.Contains(t, apiErr.Message, "gone")
}
