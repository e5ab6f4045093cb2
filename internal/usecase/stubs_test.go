package usecase

import (
	"sync"
	"time"

	"github.com/fairyhunter13/ai-signal-executor/internal/domain"
)

type queueStub struct {
	mu        sync.Mutex
	tasks     []domain.Task
	popErr    error
	completed map[string]bool

	popCalls      int
	reclaimCalls  int
	completeCalls []domain.Task
	failCalls     []failCall
	callOrder     []string
}

type failCall struct {
	task domain.Task
	kind string
	msg  string
}

func (q *queueStub) Pop(_ domain.Context, _ time.Duration) (domain.Task, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.popCalls++
	q.callOrder = append(q.callOrder, "pop")
	if q.popErr != nil {
		return domain.Task{}, false, q.popErr
	}
	if len(q.tasks) == 0 {
		return domain.Task{}, false, nil
	}
	t := q.tasks[0]
	q.tasks = q.tasks[1:]
	return t, true, nil
}

func (q *queueStub) Complete(_ domain.Context, task domain.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.completeCalls = append(q.completeCalls, task)
	return nil
}

func (q *queueStub) Fail(_ domain.Context, task domain.Task, kind, msg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failCalls = append(q.failCalls, failCall{task: task, kind: kind, msg: msg})
	return nil
}

func (q *queueStub) DeadLetter(_ domain.Context, _ string, _ string) error { return nil }

func (q *queueStub) IsCompleted(_ domain.Context, threadID string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.completed[threadID], nil
}

func (q *queueStub) Reclaim(_ domain.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reclaimCalls++
	q.callOrder = append(q.callOrder, "reclaim")
	return 0, nil
}

func (q *queueStub) Push(_ domain.Context, task domain.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
	return nil
}

type signalsStub struct {
	sig    domain.Signal
	getErr error

	mu    sync.Mutex
	saved map[string]domain.DecisionEnvelope
}

func (s *signalsStub) Get(_ domain.Context, threadID string) (domain.Signal, error) {
	if s.getErr != nil {
		return domain.Signal{}, s.getErr
	}
	sig := s.sig
	sig.ThreadID = threadID
	return sig, nil
}

func (s *signalsStub) SaveResult(_ domain.Context, threadID string, env domain.DecisionEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saved == nil {
		s.saved = map[string]domain.DecisionEnvelope{}
	}
	s.saved[threadID] = env
	return nil
}

type closeCall struct {
	id        string
	status    domain.TradeStatus
	exitPrice float64
	pnl       float64
	reason    string
}

type tradesStub struct {
	mu         sync.Mutex
	inserted   []domain.Trade
	insertErr  error
	open       []domain.Trade
	openExists bool
	closed     []closeCall
}

func (t *tradesStub) Insert(_ domain.Context, tr domain.Trade) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.insertErr != nil {
		return t.insertErr
	}
	t.inserted = append(t.inserted, tr)
	return nil
}

func (t *tradesStub) GetByOrderID(_ domain.Context, _ string) (domain.Trade, error) {
	return domain.Trade{}, domain.ErrNotFound
}

func (t *tradesStub) ListOpen(_ domain.Context) ([]domain.Trade, error) {
	return t.open, nil
}

func (t *tradesStub) ListRecent(_ domain.Context, _ int) ([]domain.Trade, error) {
	return t.open, nil
}

func (t *tradesStub) OpenExistsForTicker(_ domain.Context, _ string) (bool, error) {
	return t.openExists, nil
}

func (t *tradesStub) Close(_ domain.Context, id string, status domain.TradeStatus, exitPrice float64, _ time.Time, pnl float64, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = append(t.closed, closeCall{id: id, status: status, exitPrice: exitPrice, pnl: pnl, reason: reason})
	return nil
}

type settingsStub struct {
	cfg domain.RuntimeConfig
	err error
}

func (s settingsStub) Snapshot(_ domain.Context) (domain.RuntimeConfig, error) {
	return s.cfg, s.err
}

func (s settingsStub) Set(_ domain.Context, _ string, _ string) error { return nil }

type aiStub struct {
	decision domain.Decision
	meta     domain.AIMeta
	err      error

	mu       sync.Mutex
	calls    int
	gotModel string
	gotSys   string
	gotUser  string
}

func (a *aiStub) Decide(_ domain.Context, model, system, user string) (domain.Decision, domain.AIMeta, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	a.gotModel, a.gotSys, a.gotUser = model, system, user
	return a.decision, a.meta, a.err
}

type schedCall struct {
	threadID   string
	threadName string
	dueAt      time.Time
	sc         domain.ScheduledContext
}

type schedulerStub struct {
	mu    sync.Mutex
	calls []schedCall
	err   error
}

func (s *schedulerStub) Schedule(_ domain.Context, threadID, threadName string, dueAt time.Time, sc domain.ScheduledContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.calls = append(s.calls, schedCall{threadID: threadID, threadName: threadName, dueAt: dueAt, sc: sc})
	return nil
}

func (s *schedulerStub) ReleaseDue(_ domain.Context, _ time.Time) (int, error) { return 0, nil }

func (s *schedulerStub) Scheduled(_ domain.Context) ([]domain.ScheduledEntry, error) {
	return nil, nil
}

func (s *schedulerStub) Cancel(_ domain.Context, _ string) (bool, error) { return false, nil }

type brokerStub struct {
	account     domain.AccountInfo
	accountErr  error
	positions   []domain.Position
	positionErr error
	conID       int64
	resolveErr  error
	placed      domain.PlacedBracket
	placeErr    error
	orders      []domain.OrderState
	ordersErr   error
	execs       []domain.Execution

	mu           sync.Mutex
	resolveCalls int
	placeCalls   int
	orderCalls   int
	lastBracket  domain.BracketOrder
}

func (b *brokerStub) Health(_ domain.Context) error { return nil }

func (b *brokerStub) Account(_ domain.Context) (domain.AccountInfo, error) {
	return b.account, b.accountErr
}

func (b *brokerStub) Positions(_ domain.Context) ([]domain.Position, error) {
	return b.positions, b.positionErr
}

func (b *brokerStub) ResolveContract(_ domain.Context, _, _ string, _ float64, _ string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resolveCalls++
	return b.conID, b.resolveErr
}

func (b *brokerStub) PlaceBracket(_ domain.Context, br domain.BracketOrder) (domain.PlacedBracket, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.placeCalls++
	b.lastBracket = br
	return b.placed, b.placeErr
}

func (b *brokerStub) LiveOrders(_ domain.Context) ([]domain.OrderState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orderCalls++
	return b.orders, b.ordersErr
}

func (b *brokerStub) Executions(_ domain.Context, _ time.Time) ([]domain.Execution, error) {
	return b.execs, nil
}

func (b *brokerStub) CancelOrder(_ domain.Context, _ string) error { return nil }

type marketStub struct {
	vix      domain.VIXInfo
	vixErr   error
	chain    domain.OptionChain
	chainErr error
	price    float64

	chainFn func(ctx domain.Context) (domain.OptionChain, error)

	mu         sync.Mutex
	chainCalls int
}

func (m *marketStub) VIX(_ domain.Context) (domain.VIXInfo, error) {
	return m.vix, m.vixErr
}

func (m *marketStub) OptionChain(ctx domain.Context, _, _ string) (domain.OptionChain, error) {
	m.mu.Lock()
	m.chainCalls++
	m.mu.Unlock()
	if m.chainFn != nil {
		return m.chainFn(ctx)
	}
	return m.chain, m.chainErr
}

func (m *marketStub) UnderlyingPrice(_ domain.Context, _ string) (float64, error) {
	return m.price, nil
}

type promptsStub struct {
	system string
	user   string
	err    error
}

func (p promptsStub) GetActive(_ domain.Context, kind domain.PromptKind) (domain.Prompt, error) {
	if p.err != nil {
		return domain.Prompt{}, p.err
	}
	content := p.system
	if kind == domain.PromptUserTemplate {
		content = p.user
	}
	return domain.Prompt{Kind: kind, Content: content, IsActive: true}, nil
}

func (p promptsStub) Upsert(_ domain.Context, _ domain.Prompt) error { return nil }
