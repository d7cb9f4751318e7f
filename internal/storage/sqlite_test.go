package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hyperjump/docanalysis/internal/models"
)

func newStore(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "db", "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedContent(t *testing.T, store *SQLiteStorage, id string) *models.ContentRecord {
	t.Helper()
	c := &models.ContentRecord{ID: id, Name: "name-" + id, SourcePath: "/src/" + id + ".txt", Path: "/content/" + id}
	if err := store.CreateContent(context.Background(), c); err != nil {
		t.Fatal(err)
	}
	return c
}

func seedJob(t *testing.T, store *SQLiteStorage, id, contentID string) *models.Job {
	t.Helper()
	j := &models.Job{ID: id, ContentID: contentID, Procedure: models.ProcedureReadText, Params: map[string]string{"language": "English"}}
	if err := store.CreateJob(context.Background(), j); err != nil {
		t.Fatal(err)
	}
	return j
}

func TestSQLiteStorage_Content(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	c := seedContent(t, store, "c1")
	if c.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}

	got, err := store.GetContent(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "name-c1" || got.SourcePath != "/src/c1.txt" || got.Path != "/content/c1" {
		t.Errorf("got %+v", got)
	}
	if len(got.Procedures.Completed()) != 0 {
		t.Errorf("new content should have no completed procedures, got %v", got.Procedures.Completed())
	}

	dup := &models.ContentRecord{ID: "c2", Name: "name-c1", SourcePath: "x", Path: "y"}
	if err := store.CreateContent(ctx, dup); !errors.Is(err, ErrExists) {
		t.Errorf("duplicate name: err = %v, want ErrExists", err)
	}
	if _, err := store.GetContent(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing content: err = %v, want ErrNotFound", err)
	}

	seedContent(t, store, "c3")
	list, err := store.ListContent(ctx, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Errorf("expected 2 records, got %d", len(list))
	}
	n, _ := store.CountContent(ctx)
	if n != 2 {
		t.Errorf("CountContent = %d", n)
	}
}

func TestSQLiteStorage_JobLifecycle(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	seedContent(t, store, "c1")
	seedJob(t, store, "j1", "c1")

	job, err := store.GetJob(ctx, "j1")
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != models.JobStatusQueued || job.Param("language") != "English" || job.StartedAt != nil {
		t.Errorf("unexpected new job %+v", job)
	}

	if ok, err := store.StartJob(ctx, "j1"); err != nil || !ok {
		t.Fatalf("StartJob = %v, %v", ok, err)
	}
	if ok, _ := store.StartJob(ctx, "j1"); ok {
		t.Error("second StartJob should be a no-op")
	}

	for _, p := range []int{10, 40, 20, 150} {
		if err := store.SetJobProgress(ctx, "j1", p); err != nil {
			t.Fatal(err)
		}
	}
	_ = store.AppendJobReport(ctx, "j1", "first")
	_ = store.AppendJobReport(ctx, "j1", "second")

	job, _ = store.GetJob(ctx, "j1")
	if job.PercentComplete != 100 {
		t.Errorf("progress = %d, want clamped 100", job.PercentComplete)
	}
	if len(job.Reports) != 2 || job.Reports[0] != "first" || job.Reports[1] != "second" {
		t.Errorf("reports = %v", job.Reports)
	}
	if job.StartedAt == nil {
		t.Error("StartedAt should be set")
	}
}

func TestSQLiteStorage_ProgressIsMonotonic(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	seedContent(t, store, "c1")
	seedJob(t, store, "j1", "c1")
	store.StartJob(ctx, "j1")

	store.SetJobProgress(ctx, "j1", 60)
	store.SetJobProgress(ctx, "j1", 30)
	job, _ := store.GetJob(ctx, "j1")
	if job.PercentComplete != 60 {
		t.Errorf("progress = %d, want 60", job.PercentComplete)
	}
}

func TestSQLiteStorage_CompleteJobWritesFragment(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	seedContent(t, store, "c1")
	seedJob(t, store, "j1", "c1")
	store.StartJob(ctx, "j1")

	frag := &models.ReadTextResult{
		LanguageInfo: models.LanguageInfo{Name: "English", Code: "en", Model: "en_core_web_md", Version: "3.8.0"},
		NLPFiles:     []string{"a", "b"},
		Segments:     2,
	}
	ok, err := store.CompleteJob(ctx, "j1", frag)
	if err != nil || !ok {
		t.Fatalf("CompleteJob = %v, %v", ok, err)
	}

	c, _ := store.GetContent(ctx, "c1")
	if c.Procedures.ReadText == nil || len(c.Procedures.ReadText.NLPFiles) != 2 {
		t.Fatalf("fragment not recorded: %+v", c.Procedures)
	}
	job, _ := store.GetJob(ctx, "j1")
	if job.Status != models.JobStatusComplete || job.PercentComplete != 100 || job.CompletedAt == nil {
		t.Errorf("job after complete: %+v", job)
	}

	// Terminal calls after the first change nothing.
	other := &models.ReadTextResult{NLPFiles: []string{"z"}}
	if ok, err := store.CompleteJob(ctx, "j1", other); ok || err != nil {
		t.Errorf("second CompleteJob = %v, %v", ok, err)
	}
	if ok, err := store.FailJob(ctx, "j1", "late"); ok || err != nil {
		t.Errorf("FailJob after complete = %v, %v", ok, err)
	}
	c, _ = store.GetContent(ctx, "c1")
	if len(c.Procedures.ReadText.NLPFiles) != 2 {
		t.Error("fragment was overwritten by a terminal no-op")
	}
	job, _ = store.GetJob(ctx, "j1")
	if job.Status != models.JobStatusComplete || job.Error != "" {
		t.Errorf("terminal job changed: %+v", job)
	}
}

func TestSQLiteStorage_FailJobLeavesContentUntouched(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	seedContent(t, store, "c1")
	seedJob(t, store, "j1", "c1")
	store.StartJob(ctx, "j1")

	if ok, err := store.FailJob(ctx, "j1", "boom"); err != nil || !ok {
		t.Fatalf("FailJob = %v, %v", ok, err)
	}
	if ok, _ := store.CompleteJob(ctx, "j1", &models.TagEntitiesResult{}); ok {
		t.Error("CompleteJob after error should be a no-op")
	}
	c, _ := store.GetContent(ctx, "c1")
	if len(c.Procedures.Completed()) != 0 {
		t.Errorf("failed job left fragments: %v", c.Procedures.Completed())
	}
	job, _ := store.GetJob(ctx, "j1")
	if job.Status != models.JobStatusError || job.Error != "boom" {
		t.Errorf("job = %+v", job)
	}
	if n, _ := store.CountJobs(ctx, models.JobStatusError); n != 1 {
		t.Errorf("CountJobs(error) = %d", n)
	}
}

func TestSQLiteStorage_FragmentsAccumulate(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	seedContent(t, store, "c1")
	seedJob(t, store, "j1", "c1")
	j2 := &models.Job{ID: "j2", ContentID: "c1", Procedure: models.ProcedureTagEntities}
	if err := store.CreateJob(ctx, j2); err != nil {
		t.Fatal(err)
	}
	store.StartJob(ctx, "j1")
	store.CompleteJob(ctx, "j1", &models.ReadTextResult{NLPFiles: []string{"a"}})
	store.StartJob(ctx, "j2")
	store.CompleteJob(ctx, "j2", &models.TagEntitiesResult{TaggedTextFile: "t.xml"})

	c, _ := store.GetContent(ctx, "c1")
	if got := c.Procedures.Completed(); len(got) != 2 {
		t.Errorf("completed = %v", got)
	}
	jobs, err := store.ListJobs(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 2 {
		t.Errorf("ListJobs returned %d jobs", len(jobs))
	}
}

func TestSQLiteStorage_MissingJob(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	if _, err := store.GetJob(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetJob: %v", err)
	}
	if _, err := store.StartJob(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("StartJob: %v", err)
	}
	if _, err := store.FailJob(ctx, "nope", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FailJob: %v", err)
	}
	if _, err := store.CompleteJob(ctx, "nope", &models.ReadTextResult{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("CompleteJob: %v", err)
	}
	if err := store.CreateJob(ctx, &models.Job{ID: "j", ContentID: "no-content", Procedure: "x"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("CreateJob for missing content: %v", err)
	}
}
