package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/garyjia/koe-workflow/internal/application/port"
	"github.com/garyjia/koe-workflow/internal/application/workflow"
	"github.com/garyjia/koe-workflow/internal/domain/approval"
	"github.com/garyjia/koe-workflow/internal/domain/entity"
)

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Warn(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}

type mockTxManager struct {
	withTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.withTransactionFunc != nil {
		return m.withTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

type mockCaseRepo struct {
	mu    sync.Mutex
	cases map[string]*entity.Case
}

func newMockCaseRepo() *mockCaseRepo {
	return &mockCaseRepo{cases: make(map[string]*entity.Case)}
}

func (m *mockCaseRepo) Create(ctx context.Context, c *entity.Case) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.cases[c.ID] = &cp
	return nil
}

func (m *mockCaseRepo) GetByID(ctx context.Context, id string) (*entity.Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *mockCaseRepo) List(ctx context.Context, limit, offset int) ([]*entity.Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.Case
	for _, c := range m.cases {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockCaseRepo) UpdateStatus(ctx context.Context, id string, status entity.CaseStatus, mode entity.CaseMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.cases[id]; ok {
		c.Status = status
		c.Mode = mode
	}
	return nil
}

type mockHistoryRepo struct {
	mu        sync.Mutex
	histories []*entity.CaseHistory
}

func (m *mockHistoryRepo) Create(ctx context.Context, h *entity.CaseHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histories = append(m.histories, h)
	return nil
}

func (m *mockHistoryRepo) ListByCase(ctx context.Context, caseID string) ([]*entity.CaseHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.CaseHistory
	for _, h := range m.histories {
		if h.CaseID == caseID {
			out = append(out, h)
		}
	}
	return out, nil
}

type mockRevisionRepo struct {
	mu         sync.Mutex
	entries    []entity.RevisionEntry
	appendFunc func(ctx context.Context, e *entity.RevisionEntry) error
}

func (m *mockRevisionRepo) Append(ctx context.Context, e *entity.RevisionEntry) error {
	if m.appendFunc != nil {
		if err := m.appendFunc(ctx, e); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = int64(len(m.entries) + 1)
	m.entries = append(m.entries, *e)
	return nil
}

func (m *mockRevisionRepo) ListByCase(ctx context.Context, caseID string) ([]entity.RevisionEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entity.RevisionEntry
	for _, e := range m.entries {
		if e.CaseID == caseID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockRevisionRepo) ListByTrack(ctx context.Context, caseID string, track entity.TrackType) ([]entity.RevisionEntry, error) {
	all, _ := m.ListByCase(ctx, caseID)
	var out []entity.RevisionEntry
	for _, e := range all {
		if e.Track == track {
			out = append(out, e)
		}
	}
	return out, nil
}

type mockContactRepo struct {
	mu       sync.Mutex
	contacts []entity.Contact
}

func (m *mockContactRepo) Upsert(ctx context.Context, c *entity.Contact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.contacts {
		if existing.CaseID == c.CaseID && existing.Email == c.Email {
			m.contacts[i] = *c
			return nil
		}
	}
	m.contacts = append(m.contacts, *c)
	return nil
}

func (m *mockContactRepo) FindByEmail(ctx context.Context, caseID, email string) (*entity.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.contacts {
		if c.CaseID == caseID && c.Email == email {
			cp := c
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockContactRepo) ListByCase(ctx context.Context, caseID string) ([]*entity.Contact, error) {
	return nil, nil
}

type mockPakkeRepo struct {
	mu     sync.Mutex
	pakker map[string]entity.BhResponsPakke
	order  []string

	// beforeUpdate runs inside Update ahead of the version check, like a write that landed first
	beforeUpdate func(stored *entity.BhResponsPakke)
}

func newMockPakkeRepo() *mockPakkeRepo {
	return &mockPakkeRepo{pakker: make(map[string]entity.BhResponsPakke)}
}

func clonePakke(p entity.BhResponsPakke) *entity.BhResponsPakke {
	p.Steps = append([]entity.ApprovalStep(nil), p.Steps...)
	p.Drafts = append([]entity.DraftResponseData(nil), p.Drafts...)
	return &p
}

func (m *mockPakkeRepo) Create(ctx context.Context, p *entity.BhResponsPakke) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pakker[p.ID] = *clonePakke(*p)
	m.order = append(m.order, p.ID)
	return nil
}

func (m *mockPakkeRepo) GetByID(ctx context.Context, id string) (*entity.BhResponsPakke, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pakker[id]
	if !ok {
		return nil, nil
	}
	return clonePakke(p), nil
}

func (m *mockPakkeRepo) ListByCase(ctx context.Context, caseID string) ([]*entity.BhResponsPakke, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.BhResponsPakke
	for _, id := range m.order {
		if p, ok := m.pakker[id]; ok && p.CaseID == caseID {
			out = append(out, clonePakke(p))
		}
	}
	return out, nil
}

func (m *mockPakkeRepo) ListPending(ctx context.Context, startedBefore time.Time) ([]*entity.BhResponsPakke, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.BhResponsPakke
	for _, id := range m.order {
		p, ok := m.pakker[id]
		if !ok || p.Status != entity.PakkePending {
			continue
		}
		if idx, open := approval.NextApprover(p.Steps); open {
			if started := p.Steps[idx].StartedAt; started != nil && started.Before(startedBefore) {
				out = append(out, clonePakke(p))
			}
		}
	}
	return out, nil
}

func (m *mockPakkeRepo) Update(ctx context.Context, p *entity.BhResponsPakke, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.pakker[p.ID]
	if ok && m.beforeUpdate != nil {
		m.beforeUpdate(&stored)
		m.pakker[p.ID] = stored
	}
	if !ok || stored.Version != expectedVersion {
		return port.ErrVersionConflict
	}
	p.Version = expectedVersion + 1
	m.pakker[p.ID] = *clonePakke(*p)
	return nil
}

func (m *mockPakkeRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pakker, id)
	return nil
}

type mockKV struct {
	mu      sync.Mutex
	data    map[string]string
	setErr  error
	keysErr error
}

func newMockKV() *mockKV {
	return &mockKV{data: make(map[string]string)}
}

func (m *mockKV) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mockKV) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	return nil
}

func (m *mockKV) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *mockKV) Keys(ctx context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keysErr != nil {
		return nil, m.keysErr
	}
	var out []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

type mockNotifier struct {
	mu     sync.Mutex
	calls  []entity.ApprovalRole
	notify func(ctx context.Context, p *entity.BhResponsPakke, step entity.ApprovalStep) error
}

func (m *mockNotifier) NotifyNextApprover(ctx context.Context, p *entity.BhResponsPakke, step entity.ApprovalStep) error {
	m.mu.Lock()
	m.calls = append(m.calls, step.Role)
	m.mu.Unlock()
	if m.notify != nil {
		return m.notify(ctx, p, step)
	}
	return nil
}

type mockDocuments struct {
	generateFunc func(ctx context.Context, p *entity.BhResponsPakke) (string, error)
}

func (m *mockDocuments) Generate(ctx context.Context, p *entity.BhResponsPakke) (string, error) {
	if m.generateFunc != nil {
		return m.generateFunc(ctx, p)
	}
	return "pakker/" + p.ID + ".xlsx", nil
}

// testWorld wires the services over in-memory fakes
type testWorld struct {
	cases     *mockCaseRepo
	history   *mockHistoryRepo
	revisions *mockRevisionRepo
	contacts  *mockContactRepo
	pakker    *mockPakkeRepo
	kv        *mockKV
	notifier  *mockNotifier
	documents *mockDocuments

	drafts      *DraftStore
	caseSvc     CaseService
	approvalSvc ApprovalService
}

func newTestWorld(cfg ApprovalConfig) *testWorld {
	w := &testWorld{
		cases:     newMockCaseRepo(),
		history:   &mockHistoryRepo{},
		revisions: &mockRevisionRepo{},
		contacts:  &mockContactRepo{},
		pakker:    newMockPakkeRepo(),
		kv:        newMockKV(),
		notifier:  &mockNotifier{},
		documents: &mockDocuments{},
	}
	logger := &mockLogger{}
	tx := &mockTxManager{}

	engine := workflow.NewEngine(w.cases, w.history, tx)
	w.caseSvc = NewCaseService(
		w.cases, w.history, w.revisions, w.contacts,
		NewSignerValidator(w.contacts),
		engine, tx, nil,
		CaseServiceConfig{DefaultDagmulktsats: 50_000},
		logger,
	)
	w.drafts = NewDraftStore(w.kv, logger)
	w.approvalSvc = NewApprovalService(w.pakker, w.drafts, w.caseSvc, w.notifier, w.documents, tx, nil, cfg, logger)
	return w
}

func fp(v float64) *float64 { return &v }
func ip(v int) *int         { return &v }

var (
	teActor = entity.Actor{ID: "te-1", Name: "Kari Nordmann", Party: entity.PartyTE}
	pl      = entity.Actor{ID: "bh-pl", Role: entity.RolePL, Party: entity.PartyBH}
	sl      = entity.Actor{ID: "bh-sl", Role: entity.RoleSL, Party: entity.PartyBH}
	al      = entity.Actor{ID: "bh-al", Role: entity.RoleAL, Party: entity.PartyBH}
)

func claim(amount float64, days int) entity.KoeRevision {
	return entity.KoeRevision{
		Vederlag: entity.VederlagKrav{Claimed: true, Method: "regning", Amount: fp(amount), Justification: "tilleggsarbeid"},
		Frist:    entity.FristKrav{Claimed: true, Type: "spesifisert", Days: ip(days), Justification: "forsinket tegningsgrunnlag"},
		Signer:   &entity.Signer{Email: "kari@entreprenor.no"},
	}
}
