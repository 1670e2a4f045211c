package dataset

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fmuoria/resume-screener/internal/table"
	"github.com/fmuoria/resume-screener/internal/tree"
)

const (
	exampleProspects  = `{"J1": {"titulo": "Engineer", "modalidade": "Remote", "prospects": [{"codigo": "C1"}]}}`
	exampleApplicants = `{"C1": {"infos_basicas": {"nome": "Ana"}}}`
	exampleJobs       = `{"J1": {"perfil_vaga": {"principais_atividades": "Code"}}}`
)

func TestFlattenProspects(t *testing.T) {
	doc := `{
		"J1": {"titulo": "Engineer", "modalidade": "Remote", "prospects": [
			{"nome": "Ana", "codigo": "C1", "situacao_candidado": "Encaminhado", "recrutador": "Rita"},
			{"nome": "Bia", "codigo": 2, "comentario": "ok"}
		]},
		"J2": {"titulo": "Analyst", "modalidade": "", "prospects": []},
		"J3": {"prospects": [{"codigo": "C3", "codigo_vaga": "spoofed"}]}
	}`

	f, err := FlattenProspects(strings.NewReader(doc))
	require.NoError(t, err)
	require.Equal(t, 3, f.Len(), "job without prospects contributes no rows")

	for _, c := range prospectColumns {
		assert.True(t, f.HasColumn(c), "declared column %s", c)
	}
	assert.True(t, f.HasColumn("comentario"), "extra prospect keys are carried")

	assert.Equal(t, "J1", f.Value(0, ColJobCode).Text())
	assert.Equal(t, "Engineer", f.Value(1, ColJobTitle).Text())
	assert.Equal(t, "Remote", f.Value(1, ColModality).Text())
	assert.Equal(t, "2", f.Value(1, ColCandidateCode).Text())

	assert.Equal(t, "J3", f.Value(2, ColJobCode).Text(), "parent job code wins")
	assert.Equal(t, tree.String, f.Value(2, ColJobTitle).Kind())
	assert.Equal(t, "", f.Value(2, ColJobTitle).Text(), "missing title defaults to empty string")
}

func TestFlattenProspects_RejectsNonObjectProspect(t *testing.T) {
	_, err := FlattenProspects(strings.NewReader(`{"J1": {"prospects": ["C1"]}}`))
	assert.Error(t, err)
}

func TestFlattenApplicants(t *testing.T) {
	doc := `{
		"C1": {
			"infos_basicas": {"nome": "Ana", "email": "ana@x", "telefone": "11"},
			"informacoes_profissionais": {"titulo_profissional": "Dev", "area_atuacao": "TI"},
			"formacao_e_idiomas": {"nivel_academico": "Superior", "nivel_ingles": "Fluente", "nivel_espanhol": "Básico"},
			"cv_pt": "linha 1\nlinha 2"
		},
		"C2": {"infos_basicas": {"nome": "Bia"}}
	}`

	f, err := FlattenApplicants(strings.NewReader(doc))
	require.NoError(t, err)
	require.Equal(t, 2, f.Len())
	assert.Equal(t, applicantColumns, f.Columns())

	assert.Equal(t, "C1", f.Value(0, ColApplicantCode).Text())
	assert.Equal(t, "Fluente", f.Value(0, ColEnglishLevel).Text())
	assert.Equal(t, "linha 1\nlinha 2", f.Value(0, ColResumeText).Text())

	assert.True(t, f.Value(1, ColEmail).IsNull())
	assert.True(t, f.Value(1, ColProfTitle).IsNull(), "missing group yields null")
	assert.Equal(t, "", f.Value(1, ColResumeText).Text())
}

func TestFlattenJobs_EveryLeafRetrievable(t *testing.T) {
	doc := `{
		"J1": {
			"informacoes_basicas": {"titulo_vaga": "Engineer", "cliente": "ACME"},
			"perfil_vaga": {"principais_atividades": "Code", "viagens_requeridas": "Não", "idiomas": {"ingles": "Fluente"}},
			"beneficios": {},
			"tags": ["go", "sql"],
			"prioridade": 2
		},
		"J2": {"perfil_vaga": {"equipamentos_necessarios": "Notebook"}}
	}`

	f, err := FlattenJobs(strings.NewReader(doc), JobDescriptionColumns...)
	require.NoError(t, err)
	require.Equal(t, 2, f.Len())

	original, err := tree.Parse([]byte(doc))
	require.NoError(t, err)

	for i, job := range original.Members() {
		assert.Equal(t, job.Key, f.Value(i, ColPostingID).Text())
		for _, section := range job.Value.Members() {
			if section.Value.IsObject() && len(section.Value.Members()) == 0 {
				continue
			}
			tree.Walk(section.Value, func(p tree.Pair) {
				col := strings.Join(append([]string{section.Key}, p.Path...), SectionSep)
				require.True(t, f.HasColumn(col), "column %s", col)
				assert.True(t, p.Value.Equal(f.Value(i, col)), "value of %s", col)
			})
		}
	}

	assert.Equal(t, "Fluente", f.Value(0, "perfil_vaga__idiomas__ingles").Text())
	assert.Equal(t, "2", f.Value(0, "prioridade").Text())
	assert.False(t, f.HasColumn("beneficios"), "empty sections add nothing")
	assert.True(t, f.HasColumn(ColCompetencies), "known columns are declared")
	assert.True(t, f.Value(1, ColMainActivities).IsNull())
}

func TestFlattenJobs_ObjectFieldsSplitFurther(t *testing.T) {
	doc := `{"J1": {"perfil_vaga": {"principais_atividades": {"dev": "Code", "ops": "Deploy"}}}}`
	jobs, err := FlattenJobs(strings.NewReader(doc), JobDescriptionColumns...)
	require.NoError(t, err)

	assert.Equal(t, "Code", jobs.Value(0, "perfil_vaga__principais_atividades__dev").Text())
	assert.Equal(t, "Deploy", jobs.Value(0, "perfil_vaga__principais_atividades__ops").Text())
	assert.True(t, jobs.Value(0, ColMainActivities).IsNull())

	prospects, err := FlattenProspects(strings.NewReader(exampleProspects))
	require.NoError(t, err)
	applicants, err := FlattenApplicants(strings.NewReader(exampleApplicants))
	require.NoError(t, err)
	summary, err := BuildSummary(prospects, applicants, jobs)
	require.NoError(t, err)
	assert.True(t, summary.Value(0, ColMainActivities).IsNull(), "deeper leaves are not in the projection")
}

func TestBuildSummary_Example(t *testing.T) {
	summary := buildFrom(t, exampleProspects, exampleApplicants, exampleJobs)

	require.Equal(t, 1, summary.Len())
	assert.Equal(t, SummaryColumns, summary.Columns())

	row := summary.Row(0)
	assert.Equal(t, "Ana", row.Text(ColName))
	assert.Equal(t, "C1", row.Text(ColCandidateCode))
	assert.Equal(t, "Engineer", row.Text(ColJobTitle))
	assert.Equal(t, "Code", row.Text(ColMainActivities))
	assert.Equal(t, "J1", row.Text(ColPostingID))
	assert.True(t, row.Get(ColEmail).IsNull())
}

func TestBuildSummary_LeftJoinKeepsEveryProspect(t *testing.T) {
	prospects := `{
		"J1": {"titulo": "Engineer", "modalidade": "Remote", "prospects": [
			{"nome": "Prospect Ana", "codigo": 1, "recrutador": "Rita"},
			{"codigo": "404"},
			{"nome": "No Code"}
		]},
		"J9": {"titulo": "Orphan", "modalidade": "Onsite", "prospects": [{"codigo": "2"}]}
	}`
	applicants := `{
		"1": {"infos_basicas": {"nome": "Applicant Ana", "email": "ana@x"}, "cv_pt": "cv"},
		"2": {"infos_basicas": {"nome": "Bia"}}
	}`
	jobs := `{"J1": {"perfil_vaga": {"principais_atividades": "Code", "demais_observacoes": "None"}}}`

	summary := buildFrom(t, prospects, applicants, jobs)
	require.Equal(t, 4, summary.Len(), "one summary row per prospect")

	assert.Equal(t, "Prospect Ana", summary.Value(0, ColName).Text(), "prospect-side name is canonical")
	assert.Equal(t, "ana@x", summary.Value(0, ColEmail).Text(), "numeric code matches string key")
	assert.Equal(t, "cv", summary.Value(0, ColResumeText).Text())
	assert.Equal(t, "Rita", summary.Value(0, ColRecruiter).Text())

	assert.True(t, summary.Value(1, ColEmail).IsNull(), "unknown applicant yields nulls")
	assert.Equal(t, "Code", summary.Value(1, ColMainActivities).Text())

	assert.True(t, summary.Value(3, ColPostingID).IsNull(), "unknown job yields nulls")
	assert.Equal(t, "Orphan", summary.Value(3, ColJobTitle).Text())

	for i := 0; i < summary.Len(); i++ {
		code := summary.Value(i, ColJobCode).Text()
		if code == "J1" {
			assert.Equal(t, "Engineer", summary.Value(i, ColJobTitle).Text())
		}
	}
}

func TestBuildSummary_MissingProjectionColumnIsFatal(t *testing.T) {
	prospects := table.New(ColJobCode)
	prospects.Append(tree.M(ColJobCode, tree.Str("J1")))
	applicants := table.New(ColApplicantCode)
	jobs := table.New(ColPostingID)

	_, err := BuildSummary(prospects, applicants, jobs)
	require.Error(t, err)
	assert.ErrorIs(t, err, table.ErrMissingColumn)
}

func TestFilterAndJobDescription(t *testing.T) {
	summary := buildFrom(t,
		`{"J1": {"titulo": "Dev", "prospects": [{"codigo": "1", "recrutador": "Rita"}, {"codigo": "2", "recrutador": "Caio"}]},
		  "J2": {"titulo": "QA", "prospects": [{"codigo": "3", "recrutador": "Rita"}]}}`,
		`{}`,
		`{"J1": {"perfil_vaga": {"principais_atividades": "Build APIs", "competencia_tecnicas_e_comportamentais": "Go"}}}`,
	)

	assert.True(t, Filter{}.IsEmpty())
	assert.Equal(t, 3, Filter{}.Apply(summary).Len())
	assert.Equal(t, 2, Filter{JobTitle: "Dev"}.Apply(summary).Len())
	assert.Equal(t, 2, Filter{Recruiter: "Rita"}.Apply(summary).Len())
	assert.Equal(t, 1, Filter{JobTitle: " Dev ", Recruiter: "Rita"}.Apply(summary).Len())

	assert.Equal(t, "Build APIs\n\nGo", JobDescription(summary.Row(0)))
	assert.Equal(t, "", JobDescription(summary.Row(2)))
}

func buildFrom(t *testing.T, prospects, applicants, jobs string) *table.Frame {
	t.Helper()
	p, err := FlattenProspects(strings.NewReader(prospects))
	require.NoError(t, err)
	a, err := FlattenApplicants(strings.NewReader(applicants))
	require.NoError(t, err)
	j, err := FlattenJobs(strings.NewReader(jobs), JobDescriptionColumns...)
	require.NoError(t, err)
	summary, err := BuildSummary(p, a, j)
	require.NoError(t, err)
	return summary
}

type fakeFetcher struct {
	mu    sync.Mutex
	files map[string]string
	calls int
	err   error
}

func (f *fakeFetcher) Fetch(_ context.Context, id string, w io.Writer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	content, ok := f.files[id]
	if !ok {
		return errors.New("not found")
	}
	_, err := io.WriteString(w, content)
	return err
}

func exampleSources() []Source {
	return []Source{
		{Name: Prospects, ID: "p-id", File: "prospects.json"},
		{Name: Applicants, ID: "a-id", File: "applicants.json"},
		{Name: Jobs, ID: "j-id", File: "vagas.json"},
	}
}

func exampleFetcher() *fakeFetcher {
	return &fakeFetcher{files: map[string]string{
		"p-id": exampleProspects,
		"a-id": exampleApplicants,
		"j-id": exampleJobs,
	}}
}

func TestAcquirer_EnsureIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	fetcher := exampleFetcher()
	acq := NewAcquirer(dir, fetcher)

	n, err := acq.Ensure(context.Background(), exampleSources())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = acq.Ensure(context.Background(), exampleSources())
	require.NoError(t, err)
	assert.Equal(t, 0, n, "present files are not downloaded again")
	assert.Equal(t, 3, fetcher.calls)

	data, err := os.ReadFile(filepath.Join(dir, "vagas.json"))
	require.NoError(t, err)
	assert.Equal(t, exampleJobs, string(data))
}

func TestAcquirer_FailureAbortsWithoutPartialFile(t *testing.T) {
	dir := t.TempDir()
	fetcher := &fakeFetcher{err: errors.New("network down")}
	acq := NewAcquirer(dir, fetcher)

	_, err := acq.Ensure(context.Background(), exampleSources())
	require.ErrorIs(t, err, ErrDownload)
	assert.Equal(t, 1, fetcher.calls, "first failure aborts the load")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no partial download left behind")
}

func TestAcquirer_Fingerprint(t *testing.T) {
	dir := t.TempDir()
	acq := NewAcquirer(dir, exampleFetcher())
	_, err := acq.Ensure(context.Background(), exampleSources())
	require.NoError(t, err)

	a, err := acq.Fingerprint(exampleSources())
	require.NoError(t, err)
	b, err := acq.Fingerprint(exampleSources())
	require.NoError(t, err)
	assert.Equal(t, a, b)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "vagas.json"), []byte(`{}`), 0644))
	c, err := acq.Fingerprint(exampleSources())
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestPublicDriveFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("id") {
		case "ok":
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, `{"J1": {}}`)
		case "private":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			io.WriteString(w, "<html>sign in</html>")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	fetcher := &PublicDriveFetcher{BaseURL: srv.URL, Client: srv.Client()}

	var buf bytes.Buffer
	require.NoError(t, fetcher.Fetch(context.Background(), "ok", &buf))
	assert.Equal(t, `{"J1": {}}`, buf.String())

	assert.Error(t, fetcher.Fetch(context.Background(), "private", io.Discard))
	assert.Error(t, fetcher.Fetch(context.Background(), "missing", io.Discard))
}

type memoryStore struct {
	mu      sync.Mutex
	summary *table.Frame
	loads   int
	saves   int
	removes int
}

func (m *memoryStore) Lock(context.Context) (func(), error) {
	m.mu.Lock()
	return m.mu.Unlock, nil
}

func (m *memoryStore) Load(context.Context) (*table.Frame, bool, error) {
	m.loads++
	return m.summary, m.summary != nil, nil
}

func (m *memoryStore) Save(_ context.Context, summary *table.Frame, fingerprint string) error {
	if fingerprint == "" {
		return errors.New("empty fingerprint")
	}
	m.summary = summary
	m.saves++
	return nil
}

func (m *memoryStore) Remove() error {
	m.summary = nil
	m.removes++
	return nil
}

func TestLoader_BuildsOnceThenServesCache(t *testing.T) {
	dir := t.TempDir()
	fetcher := exampleFetcher()
	store := &memoryStore{}
	loader := NewLoader(NewAcquirer(dir, fetcher), exampleSources(), store)

	first, err := loader.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, first.Len())
	assert.Equal(t, "Ana", first.Value(0, ColName).Text())
	assert.Equal(t, 1, store.saves)

	second, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second, "cached summary returned unchanged")
	assert.Equal(t, int64(1), loader.Builds())
	assert.Equal(t, 3, fetcher.calls)
}

func TestLoader_CachePresentSkipsPipeline(t *testing.T) {
	cached := table.New(SummaryColumns...)
	cached.Append(tree.M(ColName, tree.Str("From cache")))
	store := &memoryStore{summary: cached}
	fetcher := exampleFetcher()
	loader := NewLoader(NewAcquirer(t.TempDir(), fetcher), exampleSources(), store)

	got, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.Same(t, cached, got)
	assert.Zero(t, fetcher.calls, "no acquisition")
	assert.Zero(t, loader.Builds(), "no flattening or join")
}

func TestLoader_Rebuild(t *testing.T) {
	cached := table.New(SummaryColumns...)
	store := &memoryStore{summary: cached}
	loader := NewLoader(NewAcquirer(t.TempDir(), exampleFetcher()), exampleSources(), store)

	got, err := loader.Rebuild(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, cached, got)
	assert.Equal(t, 1, got.Len())
	assert.Equal(t, 1, store.removes)
	assert.Equal(t, int64(1), loader.Builds())
}

func TestLoader_MissingSourceConfig(t *testing.T) {
	sources := exampleSources()[:2]
	loader := NewLoader(NewAcquirer(t.TempDir(), exampleFetcher()), sources, &memoryStore{})
	_, err := loader.Load(context.Background())
	assert.Error(t, err)
}

func TestLoader_KeepsSummaryInMemory(t *testing.T) {
	store := &memoryStore{}
	loader := NewLoader(NewAcquirer(t.TempDir(), exampleFetcher()), exampleSources(), store)

	first, err := loader.Load(context.Background())
	require.NoError(t, err)
	for range 3 {
		got, err := loader.Load(context.Background())
		require.NoError(t, err)
		assert.Same(t, first, got)
	}
	assert.Equal(t, 1, store.loads, "only the first load reads the store")
}

func TestLoader_MaxAgeGoesBackToStore(t *testing.T) {
	cached := table.New(SummaryColumns...)
	store := &memoryStore{summary: cached}
	loader := NewLoader(NewAcquirer(t.TempDir(), exampleFetcher()), exampleSources(), store,
		WithMaxAge(time.Hour))
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	loader.now = func() time.Time { return now }

	_, err := loader.Load(context.Background())
	require.NoError(t, err)
	now = now.Add(30 * time.Minute)
	_, err = loader.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, store.loads)

	now = now.Add(time.Hour)
	_, err = loader.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, store.loads)
}

func TestLoader_RebuildReplacesMemory(t *testing.T) {
	cached := table.New(SummaryColumns...)
	store := &memoryStore{summary: cached}
	loader := NewLoader(NewAcquirer(t.TempDir(), exampleFetcher()), exampleSources(), store)

	got, err := loader.Load(context.Background())
	require.NoError(t, err)
	require.Same(t, cached, got)

	rebuilt, err := loader.Rebuild(context.Background())
	require.NoError(t, err)
	got, err = loader.Load(context.Background())
	require.NoError(t, err)
	assert.Same(t, rebuilt, got)
}

// gatedFetcher blocks every fetch until release is closed or the fetch
// context ends.
type gatedFetcher struct {
	*fakeFetcher
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedFetcher) Fetch(ctx context.Context, id string, w io.Writer) error {
	g.once.Do(func() { close(g.started) })
	select {
	case <-g.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return g.fakeFetcher.Fetch(ctx, id, w)
}

func TestLoader_CallerCancelDoesNotAbortSharedLoad(t *testing.T) {
	fetcher := &gatedFetcher{
		fakeFetcher: exampleFetcher(),
		started:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	loader := NewLoader(NewAcquirer(t.TempDir(), fetcher), exampleSources(), &memoryStore{})

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := loader.Load(ctxA)
		errA <- err
	}()
	<-fetcher.started

	type result struct {
		summary *table.Frame
		err     error
	}
	resB := make(chan result, 1)
	go func() {
		summary, err := loader.Load(context.Background())
		resB <- result{summary, err}
	}()

	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)

	close(fetcher.release)
	select {
	case res := <-resB:
		require.NoError(t, res.err)
		assert.Equal(t, 1, res.summary.Len())
	case <-time.After(5 * time.Second):
		t.Fatal("second caller never returned")
	}
	assert.Equal(t, int64(1), loader.Builds())
}

func TestLoader_LoadTimeout(t *testing.T) {
	fetcher := &gatedFetcher{
		fakeFetcher: exampleFetcher(),
		started:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	loader := NewLoader(NewAcquirer(t.TempDir(), fetcher), exampleSources(), &memoryStore{},
		WithLoadTimeout(20*time.Millisecond))

	_, err := loader.Load(context.Background())
	require.ErrorIs(t, err, ErrDownload)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
