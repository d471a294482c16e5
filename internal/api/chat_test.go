package api_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sportmind/intake/internal/ai"
	"github.com/sportmind/intake/internal/api"
	"github.com/sportmind/intake/internal/compose"
	"github.com/sportmind/intake/internal/database"
	"github.com/sportmind/intake/internal/directory"
	"github.com/sportmind/intake/internal/policy"
	"github.com/sportmind/intake/internal/session"
)

type fakeGenerator struct {
	mu    sync.Mutex
	reply string
	err   error
	calls int
	last  []ai.Message
}

func (f *fakeGenerator) Generate(_ context.Context, messages []ai.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = messages
	if f.err != nil {
		return "", f.err
	}

	return f.reply, nil
}

type fakeSearcher struct {
	mu      sync.Mutex
	results []directory.Specialist
	err     error
	calls   int
}

func (f *fakeSearcher) Search(_ context.Context, _ string, _ int, _ float32, _ directory.AgeGroup) ([]directory.Specialist, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}

	return f.results, nil
}

type fakeTurnStore struct {
	mu    sync.Mutex
	saved []database.Turn
}

func (f *fakeTurnStore) SaveTurn(_ context.Context, turn *database.Turn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, *turn)

	return nil
}

func (f *fakeTurnStore) RecentTurns(context.Context, string, int) ([]database.Turn, error) {
	return nil, nil
}

func (f *fakeTurnStore) TrimTranscripts(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeTurnStore) RunMaintenance(context.Context) error { return nil }

type harness struct {
	svc       *api.ChatService
	sessions  *session.Store
	generator *fakeGenerator
	searcher  *fakeSearcher
	turns     *fakeTurnStore
}

func newHarness(generator *fakeGenerator, searcher *fakeSearcher) *harness {
	sessions := session.NewStore(policy.CooldownTurns)
	engine := policy.NewEngine(searcher, slog.Default(),
		policy.WithVariantPicker(compose.PoolSize, func(int) int { return 0 }))
	composer := compose.NewComposer("https://t.me/support")
	turns := &fakeTurnStore{}

	svc := api.NewChatService(sessions, engine, composer, generator, turns,
		"Ты вежливый ассистент по подбору спортивного психолога.", slog.Default())

	return &harness{
		svc:       svc,
		sessions:  sessions,
		generator: generator,
		searcher:  searcher,
		turns:     turns,
	}
}

func TestGreetingShortCircuit(t *testing.T) {
	t.Parallel()

	h := newHarness(&fakeGenerator{reply: "не должен вызываться"}, &fakeSearcher{})

	got, err := h.svc.ProcessTurn(context.Background(), "client-1", "Привет!")
	if err != nil {
		t.Fatalf("ProcessTurn() error = %v", err)
	}
	if got != compose.GreetingReply {
		t.Errorf("greeting reply = %q, want fixed greeting", got)
	}
	if h.generator.calls != 0 {
		t.Errorf("greeting turn hit generation %d times, want 0", h.generator.calls)
	}
	if h.searcher.calls != 0 {
		t.Errorf("greeting turn hit retrieval %d times, want 0", h.searcher.calls)
	}

	// The greeting must not alter dialogue state.
	snap := h.sessions.Snapshot("client-1")
	if len(snap.History) != 0 || snap.ProblemCollected || snap.AgeCollected {
		t.Errorf("greeting mutated session: %+v", snap)
	}
}

func TestIntakeFlowToRecommendation(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{results: []directory.Specialist{{
		Name:        "Анна Соколова",
		Description: "Работает с предстартовой тревогой у детей.",
		Link:        "https://example.org/anna",
	}}}
	h := newHarness(&fakeGenerator{reply: "Понимаю вас."}, searcher)

	ctx := context.Background()
	const client = "client-2"

	// Age comes first; the problem slot is still missing.
	got, err := h.svc.ProcessTurn(ctx, client, "Сыну 12 лет")
	if err != nil {
		t.Fatalf("turn 1 error = %v", err)
	}
	if !strings.Contains(got, "что вас беспокоит") {
		t.Errorf("turn 1 = %q, want a problem clarification", got)
	}

	snap := h.sessions.Snapshot(client)
	if !snap.AgeCollected || snap.AgeGroup != directory.AgeGroupChildren {
		t.Fatalf("age not captured: %+v", snap)
	}
	if snap.ProblemCollected {
		t.Fatalf("problem marked collected too early: %+v", snap)
	}

	// The problem statement completes the profile and triggers retrieval.
	got, err = h.svc.ProcessTurn(ctx, client, "Он очень боится выступать на соревнованиях")
	if err != nil {
		t.Fatalf("turn 2 error = %v", err)
	}
	if !strings.Contains(got, "<b>Анна Соколова</b>") {
		t.Errorf("turn 2 = %q, want a specialist card", got)
	}
	if searcher.calls != 1 {
		t.Errorf("retrieval calls = %d, want 1", searcher.calls)
	}

	snap = h.sessions.Snapshot(client)
	if snap.TurnsSinceRecommendation != 0 {
		t.Errorf("counter after recommendation = %d, want 0", snap.TurnsSinceRecommendation)
	}

	// Right after a recommendation the assistant stays quiet about matches.
	got, err = h.svc.ProcessTurn(ctx, client, "Понятно, а это сильно мешает подготовке и тревога растёт")
	if err != nil {
		t.Fatalf("turn 3 error = %v", err)
	}
	if strings.Contains(got, "Анна Соколова") {
		t.Errorf("turn 3 repeated recommendation under cooldown: %q", got)
	}
	if searcher.calls != 1 {
		t.Errorf("cooldown turn made a retrieval call")
	}
}

func TestAcceptedAnswerAfterClarification(t *testing.T) {
	t.Parallel()

	h := newHarness(&fakeGenerator{reply: "Хорошо."}, &fakeSearcher{})

	ctx := context.Background()
	const client = "client-3"

	// Age only: the assistant asks what the problem is.
	if _, err := h.svc.ProcessTurn(ctx, client, "Мне 25 лет"); err != nil {
		t.Fatalf("turn 1 error = %v", err)
	}

	// The clarification was asked; a substantial keyword-free answer is
	// accepted as the problem statement.
	answer := "Перед каждым турниром всё валится из рук и не получается собраться"
	if _, err := h.svc.ProcessTurn(ctx, client, answer); err != nil {
		t.Fatalf("turn 2 error = %v", err)
	}

	snap := h.sessions.Snapshot(client)
	if !snap.ProblemCollected {
		t.Fatalf("substantial answer not accepted as problem: %+v", snap)
	}
	if snap.LastProblemMessage != answer {
		t.Errorf("LastProblemMessage = %q, want the accepted answer", snap.LastProblemMessage)
	}
	if snap.LastAskedGeneral {
		t.Errorf("LastAskedGeneral still set after the slot was filled")
	}
}

func TestGenerationFailureStillRendersBlocks(t *testing.T) {
	t.Parallel()

	genErr := fmt.Errorf("%w: upstream 503", ai.ErrGenerationUnavailable)
	h := newHarness(&fakeGenerator{err: genErr}, &fakeSearcher{})

	got, err := h.svc.ProcessTurn(context.Background(), "client-4", "Мне 30 лет")
	if err != nil {
		t.Fatalf("ProcessTurn() error = %v, want degraded success", err)
	}
	if !strings.HasPrefix(got, "Извините") {
		t.Errorf("degraded reply = %q, want apology lead-in", got)
	}
	if !strings.Contains(got, "беспокоит") {
		t.Errorf("degraded reply = %q, want the clarification block kept", got)
	}
}

func TestGenerationFailurePlainTurnFails(t *testing.T) {
	t.Parallel()

	genErr := fmt.Errorf("%w: upstream 503", ai.ErrGenerationUnavailable)
	h := newHarness(&fakeGenerator{err: genErr}, &fakeSearcher{})

	// Nothing collected and nothing asked: there is no block to render, so
	// the turn surfaces the failure.
	_, err := h.svc.ProcessTurn(context.Background(), "client-5", "Какая сегодня погода")
	if !errors.Is(err, ai.ErrGenerationUnavailable) {
		t.Errorf("ProcessTurn() error = %v, want generation failure", err)
	}
}

func TestTurnTranscriptPersisted(t *testing.T) {
	t.Parallel()

	h := newHarness(&fakeGenerator{reply: "Хорошо."}, &fakeSearcher{})

	if _, err := h.svc.ProcessTurn(context.Background(), "client-6", "Мне 30 лет"); err != nil {
		t.Fatalf("ProcessTurn() error = %v", err)
	}

	h.turns.mu.Lock()
	defer h.turns.mu.Unlock()
	if len(h.turns.saved) != 1 {
		t.Fatalf("saved %d transcript rows, want 1", len(h.turns.saved))
	}
	row := h.turns.saved[0]
	if row.ClientID != "client-6" || row.Message != "Мне 30 лет" {
		t.Errorf("transcript row = %+v", row)
	}
	if row.Action != string(policy.ActionAskProblem) {
		t.Errorf("transcript action = %q, want ask_problem", row.Action)
	}
	if row.Response == "" {
		t.Errorf("transcript row has empty response")
	}
}

func TestGenerationReceivesSystemInstruction(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{reply: "Хорошо."}
	h := newHarness(gen, &fakeSearcher{})

	if _, err := h.svc.ProcessTurn(context.Background(), "client-7", "Мне 30 лет"); err != nil {
		t.Fatalf("ProcessTurn() error = %v", err)
	}

	gen.mu.Lock()
	defer gen.mu.Unlock()
	if len(gen.last) < 2 {
		t.Fatalf("generator received %d messages, want system + history", len(gen.last))
	}
	if gen.last[0].Role != ai.RoleSystem {
		t.Errorf("first message role = %q, want system", gen.last[0].Role)
	}
	if gen.last[1].Role != ai.RoleUser || gen.last[1].Content != "Мне 30 лет" {
		t.Errorf("history message = %+v", gen.last[1])
	}
}
