package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"backbox/internal/domain"
	"backbox/internal/infra"
	"backbox/internal/middleware"
	"backbox/internal/providers/recap"
)

// fakeFacts derives trial facts live from the project store so handler flows
// observe their own writes, the way the database-backed repository would.
type fakeFacts struct {
	known    map[string]bool
	paid     map[string]bool
	projects *fakeProjects
	consumed map[string]bool
	err      error
}

func newFakeFacts(projects *fakeProjects) *fakeFacts {
	return &fakeFacts{
		known:    map[string]bool{},
		paid:     map[string]bool{},
		projects: projects,
		consumed: map[string]bool{},
	}
}

func (f *fakeFacts) GetFacts(ctx context.Context, accountID string) (*domain.EntitlementFacts, error) {
	if f.err != nil {
		return nil, f.err
	}
	facts := &domain.EntitlementFacts{PillarUsage: map[domain.Pillar]int{}}
	if !f.known[accountID] {
		return facts, nil
	}
	facts.Authenticated = true
	facts.ActiveSubscription = f.paid[accountID]
	facts.TrialConsumed = f.consumed[accountID]
	if f.projects != nil {
		id, _ := f.projects.TrialProjectID(ctx, accountID)
		facts.TrialProjectID = id
		if id != "" {
			usage, _ := f.projects.PillarUsage(ctx, id)
			facts.PillarUsage = usage
		}
	}
	return facts, nil
}

func (f *fakeFacts) MarkTrialConsumed(ctx context.Context, accountID string) error {
	f.consumed[accountID] = true
	return nil
}

type fakeProjects struct {
	mu         sync.Mutex
	projects   map[string]*domain.Project
	answers    map[string]map[string]domain.Answer
	usage      map[string]map[domain.Pillar]int
	minis      map[string]map[domain.Pillar]domain.MiniRecapOutput
	finals     map[string]*domain.FinalRecapOutput
	evaluating map[string]domain.Pillar
}

func newFakeProjects() *fakeProjects {
	return &fakeProjects{
		projects:   map[string]*domain.Project{},
		answers:    map[string]map[string]domain.Answer{},
		usage:      map[string]map[domain.Pillar]int{},
		minis:      map[string]map[domain.Pillar]domain.MiniRecapOutput{},
		finals:     map[string]*domain.FinalRecapOutput{},
		evaluating: map[string]domain.Pillar{},
	}
}

func (f *fakeProjects) Create(ctx context.Context, project *domain.Project) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if project.Mode == domain.ProjectModeTrial {
		for _, existing := range f.projects {
			if existing.AccountID == project.AccountID && existing.Mode == domain.ProjectModeTrial {
				return domain.ErrTrialExists
			}
		}
	}
	project.UpdatedAt = time.Now()
	cp := *project
	f.projects[project.ID] = &cp
	return nil
}

func (f *fakeProjects) GetByID(ctx context.Context, projectID string) (*domain.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[projectID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProjects) ListByAccount(ctx context.Context, accountID string) ([]domain.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Project
	for _, p := range f.projects {
		if p.AccountID == accountID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeProjects) TrialProjectID(ctx context.Context, accountID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.projects {
		if p.AccountID == accountID && p.Mode == domain.ProjectModeTrial {
			return p.ID, nil
		}
	}
	return "", nil
}

func (f *fakeProjects) Answers(ctx context.Context, projectID string) ([]domain.Answer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Answer
	for _, ans := range f.answers[projectID] {
		out = append(out, ans)
	}
	return out, nil
}

func (f *fakeProjects) PillarUsage(ctx context.Context, projectID string) (map[domain.Pillar]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[domain.Pillar]int{}
	for pillar, used := range f.usage[projectID] {
		out[pillar] = used
	}
	return out, nil
}

func (f *fakeProjects) MiniRecaps(ctx context.Context, projectID string) (map[domain.Pillar]domain.MiniRecapOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[domain.Pillar]domain.MiniRecapOutput{}
	for pillar, mini := range f.minis[projectID] {
		out[pillar] = mini
	}
	return out, nil
}

func (f *fakeProjects) FinalRecap(ctx context.Context, projectID string) (*domain.FinalRecapOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.finals[projectID]
	if !ok {
		return nil, nil
	}
	cp := *stored
	return &cp, nil
}

func (f *fakeProjects) BeginEvaluation(ctx context.Context, projectID string, pillar domain.Pillar) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, held := f.evaluating[projectID]; held {
		return domain.ErrEvaluationInProgress
	}
	f.evaluating[projectID] = pillar
	return nil
}

func (f *fakeProjects) AbortEvaluation(ctx context.Context, projectID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.evaluating, projectID)
	return nil
}

func (f *fakeProjects) CommitAdvance(ctx context.Context, commit domain.AdvanceCommit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	usage := f.usage[commit.ProjectID]
	if usage == nil {
		usage = map[domain.Pillar]int{}
		f.usage[commit.ProjectID] = usage
	}
	if usage[commit.Pillar] >= commit.QuotaMax {
		return domain.ErrQuotaExceeded
	}
	usage[commit.Pillar]++
	stored := f.answers[commit.ProjectID]
	if stored == nil {
		stored = map[string]domain.Answer{}
		f.answers[commit.ProjectID] = stored
	}
	for _, ans := range commit.Answers {
		stored[string(ans.Pillar)+"/"+ans.FieldKey] = ans
	}
	minis := f.minis[commit.ProjectID]
	if minis == nil {
		minis = map[domain.Pillar]domain.MiniRecapOutput{}
		f.minis[commit.ProjectID] = minis
	}
	minis[commit.Pillar] = commit.Recap
	if p, ok := f.projects[commit.ProjectID]; ok {
		p.CurrentStep = commit.NextStep
		p.UpdatedAt = time.Now()
	}
	delete(f.evaluating, commit.ProjectID)
	return nil
}

func (f *fakeProjects) SaveFinalRecap(ctx context.Context, projectID string, out domain.FinalRecapOutput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.finals[projectID]; exists {
		return nil
	}
	cp := out
	f.finals[projectID] = &cp
	return nil
}

var (
	_ domain.FactsRepository   = (*fakeFacts)(nil)
	_ domain.ProjectRepository = (*fakeProjects)(nil)
)

// stubGenerator numbers its outputs so a replayed stored recap is
// distinguishable from a regenerated one.
type stubGenerator struct {
	miniErr    error
	finalErr   error
	miniCalls  int
	finalCalls int
}

func (g *stubGenerator) MiniRecap(ctx context.Context, req recap.MiniRequest) (*domain.MiniRecapOutput, error) {
	g.miniCalls++
	if g.miniErr != nil {
		return nil, g.miniErr
	}
	score := 70
	return &domain.MiniRecapOutput{
		Pillar:       req.Pillar,
		Score:        &score,
		Strengths:    []string{"clear focus"},
		Improvements: []string{"add numbers"},
		NextAction:   fmt.Sprintf("mini-%d", g.miniCalls),
	}, nil
}

func (g *stubGenerator) FinalRecap(ctx context.Context, req recap.FinalRequest) (*domain.FinalRecapOutput, error) {
	g.finalCalls++
	if g.finalErr != nil {
		return nil, g.finalErr
	}
	out := &domain.FinalRecapOutput{
		Priorities: []string{fmt.Sprintf("generation-%d", g.finalCalls)},
		PerPillar:  map[domain.Pillar]domain.PillarRecap{},
	}
	for pillar, mini := range req.MiniRecaps {
		out.PerPillar[pillar] = domain.PillarRecap{
			Score:        mini.Score,
			Strengths:    mini.Strengths,
			Improvements: mini.Improvements,
			NextAction:   mini.NextAction,
		}
	}
	return out, nil
}

var _ recap.Generator = (*stubGenerator)(nil)

func newTestApp(facts *fakeFacts, projects *fakeProjects, gen recap.Generator) *App {
	cfg := &infra.Config{PerPillarMax: 2, RateLimitPerHour: 10, DefaultLocale: "en"}
	return NewApp(cfg, zerolog.Nop(), facts, projects, gen)
}

func jsonBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return bytes.NewReader(raw)
}

func authedRequest(t *testing.T, method, target string, body *bytes.Reader, accountID string, params map[string]string) *http.Request {
	t.Helper()
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, body)
	}
	ctx := middleware.ContextWithAccountID(req.Context(), accountID)
	if len(params) > 0 {
		rctx := chi.NewRouteContext()
		for k, v := range params {
			rctx.URLParams.Add(k, v)
		}
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	}
	return req.WithContext(ctx)
}

func decodeAPIError(t *testing.T, rr *httptest.ResponseRecorder) domain.APIError {
	t.Helper()
	var apiErr domain.APIError
	if err := json.NewDecoder(rr.Body).Decode(&apiErr); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	return apiErr
}

// seedProject installs a project with optional mini-recaps already stored.
func seedProject(projects *fakeProjects, accountID string, step domain.Step, minis ...domain.Pillar) *domain.Project {
	p := &domain.Project{
		ID:          "proj-" + accountID,
		AccountID:   accountID,
		SourceText:  "a coffee cart for commuters",
		Mode:        domain.ProjectModeTrial,
		CurrentStep: step,
		UpdatedAt:   time.Now(),
	}
	projects.projects[p.ID] = p
	if len(minis) > 0 {
		stored := map[domain.Pillar]domain.MiniRecapOutput{}
		score := 60
		for _, pillar := range minis {
			stored[pillar] = domain.MiniRecapOutput{
				Pillar:     pillar,
				Score:      &score,
				NextAction: "seeded",
			}
		}
		projects.minis[p.ID] = stored
	}
	return p
}
