package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/meigma/trustgate"
)

// ErrMalformedPolicy indicates a policy that cannot be parsed, compiled, or evaluated.
var ErrMalformedPolicy = errors.New("malformed policy")

const (
	defaultCostLimit      = 10000
	interruptCheckEvery   = 100
	factsVariable         = "facts"
	evaluationTimeVarName = "now"
)

// Evaluator implements trustgate.PolicyEvaluator using CEL rules.
type Evaluator struct {
	env       *cel.Env
	costLimit uint64
	now       func() time.Time
	logger    *slog.Logger
}

// NewEvaluator creates a CEL policy evaluator.
//
// Rule expressions see two variables: facts, the verification facts as a
// map, and now, the evaluation time as a timestamp.
func NewEvaluator(opts ...Option) (*Evaluator, error) {
	e := &Evaluator{
		costLimit: defaultCostLimit,
		now:       time.Now,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	env, err := cel.NewEnv(
		cel.Variable(factsVariable, cel.DynType),
		cel.Variable(evaluationTimeVarName, cel.TimestampType),
	)
	if err != nil {
		return nil, fmt.Errorf("policy: create CEL environment: %w", err)
	}
	e.env = env

	return e, nil
}

// compiledRule pairs a rule with its CEL program.
type compiledRule struct {
	Rule
	program cel.Program
}

// Compiled is a parsed policy document with every rule compiled.
// It is immutable and safe for concurrent evaluation.
type Compiled struct {
	doc   *Document
	rules []compiledRule
}

// Name implements trustgate.Policy.
func (c *Compiled) Name() string {
	return c.doc.Name
}

// Document returns the source document.
func (c *Compiled) Document() *Document {
	return c.doc
}

// LoadPolicy implements trustgate.PolicyEvaluator.
func (e *Evaluator) LoadPolicy(_ context.Context, policyPath string) (trustgate.Policy, error) {
	data, err := os.ReadFile(policyPath)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}

	compiled, err := e.Compile(data)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("policy loaded", "path", policyPath, "name", compiled.Name(), "rules", len(compiled.rules))
	return compiled, nil
}

// Compile parses a YAML policy document and compiles its rules.
func (e *Evaluator) Compile(data []byte) (*Compiled, error) {
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, err
	}

	compiled := &Compiled{doc: doc, rules: make([]compiledRule, 0, len(doc.Rules))}
	for _, r := range doc.Rules {
		prg, err := e.compileExpr(r.Expression)
		if err != nil {
			return nil, fmt.Errorf("%w: rule %q: %w", ErrMalformedPolicy, r.ID, err)
		}
		compiled.rules = append(compiled.rules, compiledRule{Rule: r, program: prg})
	}
	return compiled, nil
}

func (e *Evaluator) compileExpr(expr string) (cel.Program, error) {
	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile: %w", issues.Err())
	}

	out := ast.OutputType()
	if !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("expression returns %s, want bool", out)
	}

	prg, err := e.env.Program(ast,
		cel.InterruptCheckFrequency(interruptCheckEvery),
		cel.CostLimit(e.costLimit),
	)
	if err != nil {
		return nil, fmt.Errorf("program: %w", err)
	}
	return prg, nil
}

// Evaluate implements trustgate.PolicyEvaluator.
//
// Rules are tried in document order and the first one whose expression is
// true decides. When none match, the document default decides.
func (e *Evaluator) Evaluate(ctx context.Context, p trustgate.Policy, facts trustgate.VerificationFacts) (trustgate.PolicyDecision, error) {
	compiled, ok := p.(*Compiled)
	if !ok || compiled == nil {
		return trustgate.PolicyDecision{}, fmt.Errorf("%w: unsupported policy type %T", ErrMalformedPolicy, p)
	}

	vars := map[string]any{
		factsVariable:         map[string]any(facts),
		evaluationTimeVarName: e.now().UTC(),
	}

	for _, r := range compiled.rules {
		matched, err := evalBool(ctx, r.program, vars)
		if err != nil {
			return trustgate.PolicyDecision{}, fmt.Errorf("%w: rule %q: %w", ErrMalformedPolicy, r.ID, err)
		}
		if !matched {
			continue
		}

		decision := toDecision(r.Effect)
		e.logger.Debug("policy rule matched", "policy", compiled.Name(), "rule", r.ID, "decision", decision)
		return trustgate.PolicyDecision{Decision: decision, Reason: ruleReason(r.Rule)}, nil
	}

	decision := toDecision(compiled.doc.Default)
	e.logger.Debug("no policy rule matched", "policy", compiled.Name(), "decision", decision)
	return trustgate.PolicyDecision{
		Decision: decision,
		Reason:   fmt.Sprintf("no rule matched (default %s)", compiled.doc.Default),
	}, nil
}

func evalBool(ctx context.Context, prg cel.Program, vars map[string]any) (bool, error) {
	out, _, err := prg.ContextEval(ctx, vars)
	if err != nil {
		return false, fmt.Errorf("eval: %w", err)
	}
	val, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("result is %T, want bool", out.Value())
	}
	return val, nil
}

func toDecision(effect Effect) trustgate.Decision {
	if effect == EffectAllow {
		return trustgate.DecisionAllow
	}
	return trustgate.DecisionDeny
}

func ruleReason(r Rule) string {
	if r.Description != "" {
		return fmt.Sprintf("rule %q: %s", r.ID, r.Description)
	}
	return fmt.Sprintf("rule %q: %s", r.ID, r.Expression)
}

// Ensure Evaluator implements trustgate.PolicyEvaluator.
var _ trustgate.PolicyEvaluator = (*Evaluator)(nil)
