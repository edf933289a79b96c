// Package registry implements the skill registry described in spec §4.1:
// skills register their tools with a declared JSON-schema-shaped parameter
// list, callers invoke tools by (skill, tool) name, and every invocation is
// rate-limited, schema-validated, and audited. The registration API is
// grounded on the teacher's agent.ToolRegistry (mutex-guarded map, Register/
// Get/Execute), generalized from a flat tool namespace to skills-of-tools and
// from untyped JSON handlers to a generic, schema-checked handler shape.
package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	ijsonschema "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Najia-afk/aria-core/internal/audit"
	"github.com/Najia-afk/aria-core/internal/metrics"
	"github.com/Najia-afk/aria-core/internal/ratelimit"
	"github.com/Najia-afk/aria-core/pkg/errs"
	"github.com/Najia-afk/aria-core/pkg/types"
)

// invokeFunc is the type-erased form every generic handler is reduced to for
// storage in the registry.
type invokeFunc func(ctx context.Context, raw json.RawMessage) (any, error)

type registeredTool struct {
	descriptor types.ToolDescriptor
	schema     *jsonschema.Schema
	invoke     invokeFunc
}

type registeredSkill struct {
	mu         sync.RWMutex
	descriptor types.SkillDescriptor
	tools      map[string]*registeredTool
	failures   int
}

// Registry is the process-wide skill/tool catalog.
type Registry struct {
	mu      sync.RWMutex
	skills  map[string]*registeredSkill
	limiter *ratelimit.Limiter
	audit   *audit.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	// failureThreshold is the number of consecutive tool invocation
	// failures within a skill before its status flips to StatusError
	// (health_check state transition, §4.1).
	failureThreshold int
}

// Option configures a Registry at construction time.
type Option func(*Registry)

// WithNow overrides the clock, for deterministic tests.
func WithNow(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithFailureThreshold overrides the consecutive-failure count that trips a
// skill to StatusError. Default is 5.
func WithFailureThreshold(n int) Option {
	return func(r *Registry) { r.failureThreshold = n }
}

// WithMetrics attaches a Metrics recorder. Invocation counts, durations, and
// rate-limit rejections are recorded when set; nil disables instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// New constructs an empty Registry. auditLogger may be nil to disable
// invocation auditing (e.g. in unit tests).
func New(limiter *ratelimit.Limiter, auditLogger *audit.Logger, opts ...Option) *Registry {
	r := &Registry{
		skills:           make(map[string]*registeredSkill),
		limiter:          limiter,
		audit:            auditLogger,
		now:              time.Now,
		failureThreshold: 5,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterSkill declares a skill's identity, layer, and rate limit. It must
// be called before any RegisterTool call targeting that skill name.
func (r *Registry) RegisterSkill(descriptor types.SkillDescriptor) error {
	if descriptor.Name == "" {
		return errs.Configuration("skill name is required")
	}
	if descriptor.Status == "" {
		descriptor.Status = types.StatusAvailable
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.skills[descriptor.Name]; exists {
		return errs.Duplicate("skill %q already registered", descriptor.Name)
	}
	r.skills[descriptor.Name] = &registeredSkill{
		descriptor: descriptor,
		tools:      make(map[string]*registeredTool),
	}
	if r.limiter != nil {
		r.limiter.Configure(descriptor.Name, descriptor.MaxPerMinute)
	}
	return nil
}

// RegisterTool attaches a generically-typed tool handler to an already
// registered skill. A is the handler's argument struct; its JSON schema is
// derived from A's struct tags via invopop/jsonschema and compiled with
// santhosh-tekuri/jsonschema for argument validation at invoke time.
//
// Registration fails if descriptor.RequiredParams() disagrees with the
// required fields invopop/jsonschema derives from A — this is the
// registration-time signature mismatch detection: a skill author who edits
// the tool's declared params without updating the handler struct (or vice
// versa) is caught here rather than at first invocation.
func RegisterTool[A any](r *Registry, skill string, descriptor types.ToolDescriptor, fn func(context.Context, A) (any, error)) error {
	r.mu.RLock()
	sk, ok := r.skills[skill]
	r.mu.RUnlock()
	if !ok {
		return errs.NotFound("skill %q is not registered", skill)
	}
	if descriptor.Name == "" {
		return errs.Configuration("tool name is required")
	}

	schemaDoc, derivedRequired, err := reflectSchema[A]()
	if err != nil {
		return errs.Configuration("derive schema for %s.%s: %v", skill, descriptor.Name, err)
	}
	if mismatch := diffRequired(descriptor.RequiredParams(), derivedRequired); mismatch != "" {
		return errs.Configuration("%s.%s: declared params and handler argument struct disagree: %s", skill, descriptor.Name, mismatch)
	}

	raw, err := json.Marshal(schemaDoc)
	if err != nil {
		return errs.Internal(err, "marshal derived schema for %s.%s", skill, descriptor.Name)
	}
	compiled, err := jsonschema.CompileString(skill+"."+descriptor.Name+".schema.json", string(raw))
	if err != nil {
		return errs.Configuration("compile schema for %s.%s: %v", skill, descriptor.Name, err)
	}

	invoke := func(ctx context.Context, argsRaw json.RawMessage) (any, error) {
		var args A
		if len(argsRaw) > 0 {
			if err := json.Unmarshal(argsRaw, &args); err != nil {
				return nil, errs.Validation("decode args for %s.%s: %v", skill, descriptor.Name, err)
			}
		}
		return fn(ctx, args)
	}

	sk.mu.Lock()
	defer sk.mu.Unlock()
	if _, exists := sk.tools[descriptor.Name]; exists {
		return errs.Duplicate("tool %q already registered on skill %q", descriptor.Name, skill)
	}
	sk.tools[descriptor.Name] = &registeredTool{descriptor: descriptor, schema: compiled, invoke: invoke}
	sk.descriptor.Tools = append(sk.descriptor.Tools, descriptor)
	return nil
}

// reflectSchema derives a JSON schema document and its required-field list
// from A's struct tags (grounded on kadirpekel-hector's functiontool schema
// generator: jsonschema.Reflector with RequiredFromJSONSchemaTags).
func reflectSchema[A any]() (map[string]any, []string, error) {
	reflector := &ijsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(new(A))
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, nil, err
	}
	var required []string
	if r, ok := doc["required"].([]any); ok {
		for _, v := range r {
			if s, ok := v.(string); ok {
				required = append(required, s)
			}
		}
	}
	return doc, required, nil
}

// diffRequired reports a human-readable description of any disagreement
// between a tool's declared required params and the handler struct's
// derived required fields, or "" if they agree (order-independent).
func diffRequired(declared, derived []string) string {
	d := make(map[string]bool, len(declared))
	for _, p := range declared {
		d[p] = true
	}
	v := make(map[string]bool, len(derived))
	for _, p := range derived {
		v[p] = true
	}
	var missingFromStruct, missingFromDescriptor []string
	for p := range d {
		if !v[p] {
			missingFromStruct = append(missingFromStruct, p)
		}
	}
	for p := range v {
		if !d[p] {
			missingFromDescriptor = append(missingFromDescriptor, p)
		}
	}
	if len(missingFromStruct) == 0 && len(missingFromDescriptor) == 0 {
		return ""
	}
	msg := ""
	if len(missingFromStruct) > 0 {
		msg += fmt.Sprintf("declared required params not present on handler struct: %v ", missingFromStruct)
	}
	if len(missingFromDescriptor) > 0 {
		msg += fmt.Sprintf("handler struct requires fields not declared as required params: %v", missingFromDescriptor)
	}
	return msg
}

// List returns the stable, read-only view of every registered skill.
func (r *Registry) List() []types.SkillDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.SkillDescriptor, 0, len(r.skills))
	for _, sk := range r.skills {
		sk.mu.RLock()
		out = append(out, sk.descriptor)
		sk.mu.RUnlock()
	}
	return out
}

// Get returns a single skill's descriptor.
func (r *Registry) Get(skill string) (types.SkillDescriptor, bool) {
	r.mu.RLock()
	sk, ok := r.skills[skill]
	r.mu.RUnlock()
	if !ok {
		return types.SkillDescriptor{}, false
	}
	sk.mu.RLock()
	defer sk.mu.RUnlock()
	return sk.descriptor, true
}

// Invoke runs skill.tool with args, enforcing rate limiting and schema
// validation, then audits the outcome and updates the skill's health state.
func (r *Registry) Invoke(ctx context.Context, skill, tool string, args json.RawMessage, sessionID string) (any, error) {
	r.mu.RLock()
	sk, ok := r.skills[skill]
	r.mu.RUnlock()
	if !ok {
		return nil, errs.NotFound("skill %q not found", skill)
	}

	sk.mu.RLock()
	status := sk.descriptor.Status
	t, ok := sk.tools[tool]
	sk.mu.RUnlock()
	if !ok {
		return nil, errs.NotFound("tool %q not found on skill %q", tool, skill)
	}
	if status == types.StatusUnavailable || status == types.StatusError {
		return nil, errs.Unavailable("skill %q is %s", skill, status)
	}

	if r.limiter != nil && !r.limiter.Allow(skill) {
		r.setStatus(sk, types.StatusRateLimited)
		if r.metrics != nil {
			r.metrics.RecordRateLimitRejection(skill)
		}
		return nil, errs.RateLimited("skill %q exceeded its rate limit, retry after %s", skill, r.limiter.WaitTime(skill))
	}

	if err := validateArgs(t.schema, args); err != nil {
		return nil, errs.Validation("invalid args for %s.%s: %v", skill, tool, err)
	}

	start := r.now()
	result, err := t.invoke(ctx, args)
	end := r.now()

	r.recordOutcome(sk, skill, tool, args, sessionID, start, end, err)
	if r.metrics != nil {
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		r.metrics.RecordInvocation(skill, tool, outcome, end.Sub(start).Seconds())
	}
	return result, err
}

func validateArgs(schema *jsonschema.Schema, args json.RawMessage) error {
	if len(args) == 0 {
		args = []byte("{}")
	}
	var decoded any
	if err := json.Unmarshal(args, &decoded); err != nil {
		return err
	}
	return schema.Validate(decoded)
}

func (r *Registry) setStatus(sk *registeredSkill, status types.SkillStatus) {
	sk.mu.Lock()
	sk.descriptor.Status = status
	sk.mu.Unlock()
}

func (r *Registry) recordOutcome(sk *registeredSkill, skill, tool string, args json.RawMessage, sessionID string, start, end time.Time, invokeErr error) {
	sk.mu.Lock()
	if invokeErr != nil {
		sk.failures++
		if sk.failures >= r.failureThreshold {
			sk.descriptor.Status = types.StatusError
		}
	} else {
		sk.failures = 0
		if sk.descriptor.Status != types.StatusUnavailable {
			sk.descriptor.Status = types.StatusAvailable
		}
	}
	sk.mu.Unlock()

	if r.audit == nil {
		return
	}
	sum := sha256.Sum256(args)
	inv := &types.ToolInvocation{
		ID:        fmt.Sprintf("%x", sum[:8]) + "-" + fmt.Sprint(start.UnixNano()),
		Skill:     skill,
		Tool:      tool,
		ArgsHash:  hex.EncodeToString(sum[:]),
		Success:   invokeErr == nil,
		LatencyMs: end.Sub(start).Milliseconds(),
		SessionID: sessionID,
		StartedAt: start,
		EndedAt:   end,
	}
	if invokeErr != nil {
		inv.Error = invokeErr.Error()
	}
	r.audit.Record(inv)
}
