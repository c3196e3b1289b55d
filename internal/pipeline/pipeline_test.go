package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"testing"

	"github.com/Lllllllleong/docflow/internal/models"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeSource struct {
	files map[string][]byte
	calls []string
}

func (s *fakeSource) Get(_ context.Context, key string) ([]byte, error) {
	s.calls = append(s.calls, key)
	b, ok := s.files[key]
	if !ok {
		return nil, fmt.Errorf("object %s: not found", key)
	}
	return b, nil
}

type fakeExtractor struct {
	fail  map[string]bool // keyed by content
	calls int
}

func (e *fakeExtractor) Extract(_ context.Context, content []byte) (string, error) {
	e.calls++
	if e.fail[string(content)] {
		return "", errors.New("unreadable pdf")
	}
	return "# " + string(content), nil
}

type fakeTranslator struct {
	fail  map[string]bool // keyed by language
	calls []string
}

func (t *fakeTranslator) Translate(_ context.Context, text, language string) (string, error) {
	t.calls = append(t.calls, language)
	if t.fail[language] {
		return "", fmt.Errorf("model refused %s", language)
	}
	return text + " (" + language + ")", nil
}

type fakeReconstructor struct {
	fail  map[string]bool // keyed by input text
	calls int
}

func (r *fakeReconstructor) Reconstruct(_ context.Context, text string) ([]byte, error) {
	r.calls++
	if r.fail[text] {
		return nil, errors.New("layout failed")
	}
	return []byte("PDF:" + text), nil
}

func (r *fakeReconstructor) Format() models.OutputFormat { return models.FormatPDF }

type put struct {
	key         string
	content     string
	contentType string
}

type fakeSink struct {
	fail map[string]bool // keyed by destination key
	puts []put
}

func (s *fakeSink) Put(_ context.Context, key string, content []byte, contentType string) (string, error) {
	if s.fail[key] {
		return "", errors.New("access denied")
	}
	s.puts = append(s.puts, put{key, string(content), contentType})
	return key, nil
}

func (s *fakeSink) BucketName() string { return "out" }

type fixture struct {
	source        *fakeSource
	extractor     *fakeExtractor
	translator    *fakeTranslator
	reconstructor *fakeReconstructor
	sink          *fakeSink
}

func newFixture(files map[string][]byte) *fixture {
	return &fixture{
		source:        &fakeSource{files: files},
		extractor:     &fakeExtractor{fail: map[string]bool{}},
		translator:    &fakeTranslator{fail: map[string]bool{}},
		reconstructor: &fakeReconstructor{fail: map[string]bool{}},
		sink:          &fakeSink{fail: map[string]bool{}},
	}
}

func (f *fixture) pipeline(opts ...Option) *Pipeline {
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return New(f.source, f.extractor, f.translator, f.reconstructor, f.sink, opts...)
}

func docs(keys ...string) []models.Document {
	out := make([]models.Document, len(keys))
	for i, k := range keys {
		out[i] = models.Document{Key: k}
	}
	return out
}

func checkTally(t *testing.T, run *models.BatchRun, total, succeeded, failed int) {
	t.Helper()
	if run.Total != total || run.Succeeded != succeeded || run.Failed != failed {
		t.Fatalf("tally = total %d succeeded %d failed %d, want %d/%d/%d",
			run.Total, run.Succeeded, run.Failed, total, succeeded, failed)
	}
	if run.Completed != run.Total {
		t.Errorf("completed = %d, want %d", run.Completed, run.Total)
	}
	if len(run.Results) != run.Total {
		t.Errorf("len(results) = %d, want %d", len(run.Results), run.Total)
	}
	if run.Succeeded+run.Failed != run.Total {
		t.Errorf("succeeded+failed = %d, want %d", run.Succeeded+run.Failed, run.Total)
	}
}

// ---------------------------------------------------------------------------
// Run
// ---------------------------------------------------------------------------

func TestRun_EmptyInputs(t *testing.T) {
	tests := []struct {
		name      string
		documents []models.Document
		languages []string
	}{
		{"no documents", nil, []string{"French"}},
		{"no languages", docs("a.pdf"), nil},
		{"nothing", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(map[string][]byte{"a.pdf": []byte("a")})
			run := f.pipeline().Run(context.Background(), tt.documents, tt.languages)

			checkTally(t, run, 0, 0, 0)
			if len(run.Artifacts) != 0 {
				t.Errorf("artifacts = %v, want none", run.Artifacts)
			}
			if run.Progress() != 1.0 {
				t.Errorf("progress = %v, want 1.0", run.Progress())
			}
			if len(f.source.calls) != 0 {
				t.Errorf("source called %d times, want 0", len(f.source.calls))
			}
		})
	}
}

func TestRun_AllSucceed(t *testing.T) {
	f := newFixture(map[string][]byte{"a.pdf": []byte("a"), "dir/b.pdf": []byte("b")})
	run := f.pipeline().Run(context.Background(), docs("a.pdf", "dir/b.pdf"), []string{"French", "German", "Korean"})

	checkTally(t, run, 6, 6, 0)

	wantKeys := []string{
		"a_French.pdf", "a_German.pdf", "a_Korean.pdf",
		"dir/b_French.pdf", "dir/b_German.pdf", "dir/b_Korean.pdf",
	}
	var gotKeys []string
	for _, a := range run.Artifacts {
		gotKeys = append(gotKeys, a.Key)
		if a.Bucket != "out" {
			t.Errorf("artifact %s bucket = %q, want out", a.Key, a.Bucket)
		}
	}
	if !reflect.DeepEqual(gotKeys, wantKeys) {
		t.Errorf("artifact keys = %v, want %v", gotKeys, wantKeys)
	}
	if len(f.sink.puts) != 6 {
		t.Fatalf("uploads = %d, want 6", len(f.sink.puts))
	}
	if f.sink.puts[0].contentType != "application/pdf" {
		t.Errorf("content type = %q", f.sink.puts[0].contentType)
	}
	if f.sink.puts[1].content != "PDF:# a (German)" {
		t.Errorf("uploaded content = %q", f.sink.puts[1].content)
	}
	if f.extractor.calls != 2 {
		t.Errorf("extractor calls = %d, want 2 (once per document)", f.extractor.calls)
	}
}

func TestRun_DownloadFailureShortCircuitsDocument(t *testing.T) {
	f := newFixture(map[string][]byte{"b.pdf": []byte("b")})
	run := f.pipeline().Run(context.Background(), docs("a.pdf", "b.pdf"), []string{"French", "German"})

	checkTally(t, run, 4, 2, 2)

	want := []models.Artifact{
		{Bucket: "out", Key: "b_French.pdf", Document: "b.pdf", Language: "French"},
		{Bucket: "out", Key: "b_German.pdf", Document: "b.pdf", Language: "German"},
	}
	if !reflect.DeepEqual(run.Artifacts, want) {
		t.Errorf("artifacts = %+v, want %+v", run.Artifacts, want)
	}

	for _, res := range run.Results[:2] {
		if res.Task.Document.Key != "a.pdf" || res.Status != models.TaskFailed || res.Stage != models.StageDownload {
			t.Errorf("result = %+v, want a.pdf failed at download", res)
		}
		if res.Reason == "" {
			t.Error("failure reason should not be empty")
		}
	}
	if f.extractor.calls != 1 {
		t.Errorf("extractor calls = %d, want 1", f.extractor.calls)
	}
	// No translator calls for a.pdf: only b.pdf's two languages.
	if !reflect.DeepEqual(f.translator.calls, []string{"French", "German"}) {
		t.Errorf("translator calls = %v", f.translator.calls)
	}
}

func TestRun_ExtractFailureShortCircuitsDocument(t *testing.T) {
	f := newFixture(map[string][]byte{"a.pdf": []byte("broken"), "b.pdf": []byte("b")})
	f.extractor.fail["broken"] = true

	run := f.pipeline().Run(context.Background(), docs("a.pdf", "b.pdf"), []string{"French", "German", "Italian"})

	checkTally(t, run, 6, 3, 3)
	for _, res := range run.Failures() {
		if res.Task.Document.Key != "a.pdf" || res.Stage != models.StageExtract {
			t.Errorf("failure = %+v, want a.pdf at extract", res)
		}
	}
	if len(f.translator.calls) != 3 {
		t.Errorf("translator calls = %d, want 3", len(f.translator.calls))
	}
	if f.reconstructor.calls != 3 {
		t.Errorf("reconstructor calls = %d, want 3", f.reconstructor.calls)
	}
}

func TestRun_TranslateFailureIsolatedToLanguage(t *testing.T) {
	f := newFixture(map[string][]byte{"d.pdf": []byte("d")})
	f.translator.fail["French"] = true

	run := f.pipeline().Run(context.Background(), docs("d.pdf"), []string{"French", "German"})

	checkTally(t, run, 2, 1, 1)
	if len(run.Artifacts) != 1 || run.Artifacts[0].Language != "German" {
		t.Fatalf("artifacts = %+v, want only German", run.Artifacts)
	}
	fails := run.Failures()
	if len(fails) != 1 || fails[0].Task.Language != "French" || fails[0].Stage != models.StageTranslate {
		t.Errorf("failures = %+v, want French at translate", fails)
	}
	if fails[0].Reason != "model refused French" {
		t.Errorf("reason = %q", fails[0].Reason)
	}
	if len(f.sink.puts) != 1 {
		t.Errorf("uploads = %d, want 1", len(f.sink.puts))
	}
}

func TestRun_ReconstructAndUploadFailuresIsolated(t *testing.T) {
	f := newFixture(map[string][]byte{"d.pdf": []byte("d")})
	f.reconstructor.fail["# d (German)"] = true
	f.sink.fail["d_Spanish.pdf"] = true

	run := f.pipeline().Run(context.Background(), docs("d.pdf"), []string{"French", "German", "Spanish", "Dutch"})

	checkTally(t, run, 4, 2, 2)

	got := map[string]models.Stage{}
	for _, res := range run.Failures() {
		got[res.Task.Language] = res.Stage
	}
	want := map[string]models.Stage{"German": models.StageReconstruct, "Spanish": models.StageUpload}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("failed stages = %v, want %v", got, want)
	}
	var langs []string
	for _, a := range run.Artifacts {
		langs = append(langs, a.Language)
	}
	if !reflect.DeepEqual(langs, []string{"French", "Dutch"}) {
		t.Errorf("artifact languages = %v", langs)
	}
}

func TestRun_ProgressMonotonic(t *testing.T) {
	f := newFixture(map[string][]byte{"b.pdf": []byte("b"), "c.pdf": []byte("c")})
	f.translator.fail["German"] = true

	var fractions []float64
	var completed []int
	p := f.pipeline(WithRunID("run-1"), WithProgress(func(pr models.Progress, _ models.TaskResult) {
		if pr.RunID != "run-1" {
			t.Errorf("progress run id = %q", pr.RunID)
		}
		fractions = append(fractions, pr.Fraction)
		completed = append(completed, pr.Completed)
	}))

	run := p.Run(context.Background(), docs("a.pdf", "b.pdf", "c.pdf"), []string{"French", "German"})

	if len(fractions) != run.Total {
		t.Fatalf("progress callbacks = %d, want one per task (%d)", len(fractions), run.Total)
	}
	for i := 1; i < len(fractions); i++ {
		if fractions[i] < fractions[i-1] {
			t.Errorf("progress decreased at %d: %v", i, fractions)
		}
		if completed[i] != completed[i-1]+1 {
			t.Errorf("completed jumped at %d: %v", i, completed)
		}
	}
	if fractions[len(fractions)-1] != 1.0 {
		t.Errorf("final progress = %v, want 1.0", fractions[len(fractions)-1])
	}
	if run.ID != "run-1" {
		t.Errorf("run id = %q", run.ID)
	}
}

func TestRun_CancelledContextResolvesRemainingTasks(t *testing.T) {
	f := newFixture(map[string][]byte{"a.pdf": []byte("a"), "b.pdf": []byte("b")})

	ctx, cancel := context.WithCancel(context.Background())
	p := f.pipeline(WithProgress(func(pr models.Progress, _ models.TaskResult) {
		if pr.Completed == 1 {
			cancel()
		}
	}))

	run := p.Run(ctx, docs("a.pdf", "b.pdf"), []string{"French", "German"})

	checkTally(t, run, 4, 1, 3)
	if run.Results[1].Stage != models.StageTranslate {
		t.Errorf("a.pdf German stage = %s, want translate", run.Results[1].Stage)
	}
	for _, res := range run.Results[2:] {
		if res.Stage != models.StageDownload {
			t.Errorf("b.pdf %s stage = %s, want download", res.Task.Language, res.Stage)
		}
		if res.Reason != context.Canceled.Error() {
			t.Errorf("reason = %q", res.Reason)
		}
	}
	if len(f.source.calls) != 1 {
		t.Errorf("source calls = %v, want only a.pdf", f.source.calls)
	}
}

func TestFailed_UsesStageErrorReason(t *testing.T) {
	task := models.Task{Document: models.Document{Key: "x.pdf"}, Language: "French"}
	res := failed(task, models.StageTranslate, TranslationError(errors.New("quota exceeded")))
	if res.Reason != "quota exceeded" {
		t.Errorf("reason = %q, want quota exceeded", res.Reason)
	}

	wrapped := fmt.Errorf("chunk 2: %w", TranslationError(errors.New("quota exceeded")))
	if res := failed(task, models.StageTranslate, wrapped); res.Reason != "quota exceeded" {
		t.Errorf("wrapped reason = %q, want quota exceeded", res.Reason)
	}

	stage, ok := StageOf(UploadError(errors.New("x")))
	if !ok || stage != models.StageUpload {
		t.Errorf("StageOf = %v %v", stage, ok)
	}
	if _, ok := StageOf(errors.New("plain")); ok {
		t.Error("plain error should not carry a stage")
	}
}
