package cognition

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	tiktoken "github.com/pkoukk/tiktoken-go"

	"github.com/Najia-afk/aria-core/pkg/errs"
	"github.com/Najia-afk/aria-core/pkg/types"
)

// CharsPerToken is the rule-of-thumb estimator used wherever a precise
// tokenizer isn't worth the call (§4.5 step 3 default), grounded on the
// teacher's internal/compaction.CharsPerToken.
const CharsPerToken = 4

// tokenEncoder lazily loads the cl100k_base BPE tables tiktoken-go needs.
// Loading can fail in network-isolated environments (the library fetches
// its vocabulary file on first use); EstimateTokens falls back to the
// chars/4 heuristic whenever that happens, so precision degrades
// gracefully rather than the pipeline failing outright.
var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

func encoder() *tiktoken.Tiktoken {
	encOnce.Do(func() {
		e, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			enc = e
		}
	})
	return enc
}

// EstimateTokens counts text's tokens with tiktoken-go when available,
// falling back to the chars/4 heuristic otherwise. Used for the
// working-memory budget (§4.5 step 3) and compression's chunk sizing
// (§4.5 "Memory compression").
func EstimateTokens(text string) int {
	if e := encoder(); e != nil {
		return len(e.Encode(text, nil, nil))
	}
	return len(text) / CharsPerToken
}

// DailyTokenBudget enforces the §4.5 "simple token budget per day"
// guard: once the configured cap is exceeded, paid-tier calls fail with
// BudgetExceeded until the window resets (§7 propagation: "falls back to
// local/free only; retried after budget window reset").
type DailyTokenBudget struct {
	capTokens int64
	used      int64
	windowDay int64 // day number the counter belongs to
	mu        sync.Mutex
	now       func() time.Time
}

// NewDailyTokenBudget builds a budget tracker with the given daily cap in
// tokens. A cap of 0 disables enforcement (unlimited).
func NewDailyTokenBudget(capTokens int, now func() time.Time) *DailyTokenBudget {
	if now == nil {
		now = time.Now
	}
	return &DailyTokenBudget{capTokens: int64(capTokens), now: now}
}

func dayNumber(t time.Time) int64 {
	return t.Unix() / int64((24 * time.Hour).Seconds())
}

// Reserve records the intent to spend n tokens on a paid-tier call,
// failing with BudgetExceeded if that would exceed today's cap.
func (b *DailyTokenBudget) Reserve(n int) error {
	if b.capTokens <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	today := dayNumber(b.now())
	if today != b.windowDay {
		b.windowDay = today
		atomic.StoreInt64(&b.used, 0)
	}
	if atomic.LoadInt64(&b.used)+int64(n) > b.capTokens {
		return errs.BudgetExceeded("daily token budget of %d exceeded", b.capTokens)
	}
	atomic.AddInt64(&b.used, int64(n))
	return nil
}

// Used reports tokens spent so far in the current day's window.
func (b *DailyTokenBudget) Used() int64 { return atomic.LoadInt64(&b.used) }

// ModelRouter decides which model to use for a call and runs the
// primary-then-fallback retry policy (§4.2 "Failure semantics", §4.5
// "Model routing policy"). Grounded on the teacher's
// FailoverOrchestrator.Complete (failover.go): try the primary, retry
// once, fail over to the next candidate on a retryable/rate-limited
// error; non-retryable errors return immediately without trying further
// candidates.
type ModelRouter struct {
	client  ModelClient
	catalog *types.ModelCatalog
	budget  *DailyTokenBudget
}

// NewModelRouter builds a ModelRouter over client and catalog, enforcing
// budget on every call that resolves to a non-local/free model.
func NewModelRouter(client ModelClient, catalog *types.ModelCatalog, budget *DailyTokenBudget) *ModelRouter {
	return &ModelRouter{client: client, catalog: catalog, budget: budget}
}

// candidateOrder returns model names in the spec's global preference
// order: local, zero-cost cloud, paid (§4.5 "Model routing policy"),
// starting from primary and walking the catalog's fallbacks.
func (r *ModelRouter) candidateOrder(primary, fallback string) []string {
	names := []string{primary}
	if fallback != "" && fallback != primary {
		names = append(names, fallback)
	}
	if r.catalog != nil {
		for _, fb := range r.catalog.Fallbacks {
			already := false
			for _, n := range names {
				if n == fb {
					already = true
					break
				}
			}
			if !already {
				names = append(names, fb)
			}
		}
	}
	sortByPreference(names, r.catalog)
	return names
}

// sortByPreference stable-sorts names so local_or_free models precede
// paid ones, preserving relative order within each tier.
func sortByPreference(names []string, catalog *types.ModelCatalog) {
	if catalog == nil {
		return
	}
	tier := func(name string) int {
		meta, ok := catalog.Models[name]
		if !ok {
			return 2
		}
		if meta.LocalOrFree {
			if meta.Provider == "local" {
				return 0
			}
			return 1
		}
		return 2
	}
	// insertion sort: small N (primary + fallbacks), stable by construction.
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && tier(names[j]) < tier(names[j-1]); j-- {
			names[j], names[j-1] = names[j-1], names[j]
		}
	}
}

// ChatCompletion walks the candidates from candidateOrder (primary,
// fallback, then the catalog's remaining fallbacks, stable-sorted into
// local>free>paid order, so a paid primary comes after any free
// fallback). A retryable, rate-limited or unavailable error is retried
// once against the same candidate before moving on to the next (§4.2).
// A paid-tier candidate is skipped (not retried) if it
// would exceed the daily token budget.
func (r *ModelRouter) ChatCompletion(ctx context.Context, req types.ChatRequest, primary, fallback string) (*types.ChatResponse, string, error) {
	candidates := r.candidateOrder(primary, fallback)
	var lastErr error
	estimated := EstimateTokens(joinMessages(req.Messages))

	for _, model := range candidates {
		if r.budget != nil && r.catalog != nil {
			if meta, ok := r.catalog.Models[model]; ok && !meta.LocalOrFree {
				if err := r.budget.Reserve(estimated + req.MaxTokens); err != nil {
					lastErr = err
					continue
				}
			}
		}

		attempt := req
		attempt.Model = model
		resp, err := r.client.ChatCompletion(ctx, attempt, 0)
		if err == nil {
			return resp, model, nil
		}
		lastErr = err
		if !errs.Is(err, errs.KindRetryable) && !errs.Is(err, errs.KindRateLimited) && !errs.Is(err, errs.KindUnavailable) {
			return nil, model, err
		}
		// one retry against the same candidate before moving on
		resp, err = r.client.ChatCompletion(ctx, attempt, 0)
		if err == nil {
			return resp, model, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errs.Unavailable("no candidate models available")
	}
	return nil, "", lastErr
}

func joinMessages(msgs []types.ChatMessage) string {
	total := 0
	for _, m := range msgs {
		total += len(m.Content)
	}
	buf := make([]byte, 0, total)
	for _, m := range msgs {
		buf = append(buf, m.Content...)
	}
	return string(buf)
}
