package policy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage"
	"github.com/open-policy-agent/opa/storage/inmem"
	"github.com/openfroyo/hookguard/pkg/hookerr"
	"github.com/rs/zerolog"
)

// Engine evaluates transfers against the built-in transfer policy and any
// operator policies loaded from disk.
type Engine struct {
	mu              sync.RWMutex
	policies        map[string]*compiledPolicy
	order           []string
	store           storage.Store
	logger          zerolog.Logger
	builtinPolicies []Policy
}

// compiledPolicy represents a compiled Rego policy.
type compiledPolicy struct {
	policy   *Policy
	module   *ast.Module
	query    rego.PreparedEvalQuery
	compiled time.Time
}

// NewEngine creates a new policy engine.
func NewEngine(logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		policies:        make(map[string]*compiledPolicy),
		store:           inmem.New(),
		logger:          logger.With().Str("component", "policy-engine").Logger(),
		builtinPolicies: GetBuiltinPolicies(),
	}

	// Load built-in policies
	if err := e.loadBuiltinPolicies(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to load built-in policies: %w", err)
	}

	return e, nil
}

// Evaluate runs every enabled policy against a prospective transfer.
// Evaluation errors fail the whole call so that a broken policy never lets a
// transfer through.
func (e *Engine) Evaluate(ctx context.Context, in *TransferInput) (*Result, error) {
	startTime := time.Now()
	e.mu.RLock()
	defer e.mu.RUnlock()

	input := in.regoInput()
	result := &Result{Allowed: true}

	for _, name := range e.order {
		cp := e.policies[name]
		if !cp.policy.Enabled {
			continue
		}
		result.EvaluatedPolicies = append(result.EvaluatedPolicies, name)

		violations, err := e.evaluatePolicy(ctx, cp, input)
		if err != nil {
			e.logger.Error().Err(err).
				Str("policy", name).
				Msg("Policy evaluation failed")
			return nil, fmt.Errorf("policy %s evaluation failed: %w", name, err)
		}

		for _, v := range violations {
			if v.Severity.Blocks() {
				result.Allowed = false
				result.Violations = append(result.Violations, v)
			} else {
				result.Warnings = append(result.Warnings, v)
			}
		}
	}

	result.EvaluatedAt = time.Now()
	result.Duration = time.Since(startTime)

	e.logger.Debug().
		Str("destination", in.Destination.String()).
		Uint64("amount", in.Amount).
		Int("violations", len(result.Violations)).
		Int("warnings", len(result.Warnings)).
		Dur("duration", result.Duration).
		Msg("Transfer policy evaluation completed")

	return result, nil
}

// Check evaluates a transfer and converts a rejection into a hook error. The
// amount ceiling takes precedence over the allow-list; violations of operator
// policies surface as a generic policy violation.
func (e *Engine) Check(ctx context.Context, in *TransferInput) (*Result, error) {
	result, err := e.Evaluate(ctx, in)
	if err != nil {
		return nil, err
	}
	if result.Allowed {
		return result, nil
	}

	return result, RejectionError(result.Violations)
}

// RejectionError maps blocking violations to the hook error they surface as.
func RejectionError(violations []Violation) error {
	if len(violations) == 0 {
		return nil
	}
	for _, code := range []string{CodeAmountExceedsLimit, CodeDestinationNotAllowed} {
		for _, v := range violations {
			if v.Code == code {
				return hookerr.New(hookerr.Code(code), v.Message).WithDetail("policy", v.Policy)
			}
		}
	}

	v := violations[0]
	herr := hookerr.New(hookerr.CodePolicyViolation, v.Message).WithDetail("policy", v.Policy)
	if v.Code != "" {
		herr = herr.WithDetail("code", v.Code)
	}
	return herr
}

// LoadPolicies loads policy files.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	loader := NewLoader(e.logger)
	policies, err := loader.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}

	for i := range policies {
		if err := e.operatorPolicy(&policies[i]); err != nil {
			return err
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range policies {
		if err := e.compileAndStorePolicy(ctx, &policies[i]); err != nil {
			e.logger.Error().Err(err).
				Str("policy", policies[i].Name).
				Msg("Failed to compile policy")
			return fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
	}

	e.logger.Info().
		Int("count", len(policies)).
		Msg("Policies loaded successfully")

	return nil
}

// AddPolicy compiles and registers a single operator policy.
func (e *Engine) AddPolicy(ctx context.Context, policy Policy) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.operatorPolicy(&policy); err != nil {
		return err
	}
	return e.compileAndStorePolicy(ctx, &policy)
}

// operatorPolicy marks p as an operator policy and refuses names taken by a
// built-in policy.
func (e *Engine) operatorPolicy(p *Policy) error {
	for _, b := range e.builtinPolicies {
		if p.Name == b.Name {
			return fmt.Errorf("cannot replace built-in policy %s", p.Name)
		}
	}
	p.Builtin = false
	return nil
}

// ReplacePolicies swaps every operator policy for policies. Built-in
// policies are kept. Nothing changes if any policy fails to compile.
func (e *Engine) ReplacePolicies(ctx context.Context, policies []Policy) error {
	next := &Engine{
		policies: make(map[string]*compiledPolicy),
		store:    e.store,
		logger:   e.logger,
	}

	e.mu.RLock()
	for _, name := range e.order {
		if cp := e.policies[name]; cp.policy.Builtin {
			next.policies[name] = cp
			next.order = append(next.order, name)
		}
	}
	e.mu.RUnlock()

	for i := range policies {
		if err := e.operatorPolicy(&policies[i]); err != nil {
			return err
		}
		if err := next.compileAndStorePolicy(ctx, &policies[i]); err != nil {
			return fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
	}

	e.mu.Lock()
	e.policies = next.policies
	e.order = next.order
	e.mu.Unlock()

	e.logger.Info().
		Int("count", len(policies)).
		Msg("Operator policies replaced")

	return nil
}

// evaluatePolicy evaluates a single compiled policy and returns its deny set.
func (e *Engine) evaluatePolicy(ctx context.Context, cp *compiledPolicy, input map[string]interface{}) ([]Violation, error) {
	results, err := cp.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("policy evaluation error: %w", err)
	}

	var violations []Violation

	for _, result := range results {
		if len(result.Expressions) == 0 {
			continue
		}
		// Sets come back as slices.
		if denySet, ok := result.Expressions[0].Value.([]interface{}); ok {
			for _, d := range denySet {
				violations = append(violations, createViolation(cp.policy, d))
			}
		}
	}

	return violations, nil
}

// createViolation creates a Violation from a deny entry.
func createViolation(policy *Policy, entry interface{}) Violation {
	violation := Violation{
		Policy:   policy.Name,
		Severity: policy.Severity,
	}

	switch v := entry.(type) {
	case string:
		violation.Message = v
	case map[string]interface{}:
		for key, value := range v {
			switch key {
			case "message":
				violation.Message = fmt.Sprintf("%v", value)
			case "code":
				violation.Code = fmt.Sprintf("%v", value)
			case "severity":
				violation.Severity = Severity(fmt.Sprintf("%v", value))
			default:
				if violation.Details == nil {
					violation.Details = make(map[string]interface{})
				}
				violation.Details[key] = value
			}
		}
	default:
		violation.Message = fmt.Sprintf("%v", entry)
	}

	return violation
}

// compileAndStorePolicy compiles a policy and stores it. Callers hold e.mu.
func (e *Engine) compileAndStorePolicy(ctx context.Context, policy *Policy) error {
	// Parse the Rego module
	module, err := ast.ParseModule(policy.Name, policy.Rego)
	if err != nil {
		return fmt.Errorf("failed to parse policy: %w", err)
	}
	if module == nil {
		return fmt.Errorf("policy %s is empty", policy.Name)
	}

	// Prepare the deny query of the policy's package for reuse
	r := rego.New(
		rego.Module(policy.Name, policy.Rego),
		rego.Store(e.store),
		rego.Query(module.Package.Path.String()+".deny"),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("failed to prepare query: %w", err)
	}

	if policy.Severity == "" {
		policy.Severity = SeverityWarning
	}

	if _, exists := e.policies[policy.Name]; !exists {
		e.order = append(e.order, policy.Name)
	}
	e.policies[policy.Name] = &compiledPolicy{
		policy:   policy,
		module:   module,
		query:    query,
		compiled: time.Now(),
	}

	e.logger.Debug().
		Str("policy", policy.Name).
		Str("package", module.Package.Path.String()).
		Msg("Policy compiled successfully")

	return nil
}

// loadBuiltinPolicies loads the built-in policies.
func (e *Engine) loadBuiltinPolicies(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.builtinPolicies {
		if err := e.compileAndStorePolicy(ctx, &e.builtinPolicies[i]); err != nil {
			return fmt.Errorf("failed to compile built-in policy %s: %w", e.builtinPolicies[i].Name, err)
		}
	}

	e.logger.Debug().
		Int("count", len(e.builtinPolicies)).
		Msg("Built-in policies loaded")

	return nil
}

// GetPolicy returns a policy by name.
func (e *Engine) GetPolicy(name string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cp, exists := e.policies[name]
	if !exists {
		return nil, fmt.Errorf("policy not found: %s", name)
	}

	return cp.policy, nil
}

// ListPolicies returns all loaded policies in evaluation order.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.order))
	for _, name := range e.order {
		policies = append(policies, *e.policies[name].policy)
	}

	return policies
}

// DisablePolicy disables an operator policy by name. Built-in policies
// cannot be disabled.
func (e *Engine) DisablePolicy(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp, exists := e.policies[name]
	if !exists {
		return fmt.Errorf("policy not found: %s", name)
	}
	if cp.policy.Builtin {
		return fmt.Errorf("built-in policy %s cannot be disabled", name)
	}

	cp.policy.Enabled = false
	e.logger.Info().Str("policy", name).Msg("Policy disabled")

	return nil
}
