package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/credence/internal/model"
)

// Outcome is an engine answer that satisfied the contract
type Outcome struct {
	Analysis  model.Analysis
	Forensics *model.Forensics
	Provider  string
	Model     string
	Dropped   []string // Cited URLs removed because they were not in the evidence
}

// Enforcer invokes the engine once and validates its output
type Enforcer struct {
	provider Provider
	strict   bool
	logger   *zap.Logger
}

// NewEnforcer creates an Enforcer around a provider
func NewEnforcer(p Provider, strictEvidence bool, logger *zap.Logger) *Enforcer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enforcer{provider: p, strict: strictEvidence, logger: logger}
}

// Enforce calls the engine exactly once. Upstream failures keep their kind,
// anything that does not match the schema is a contract violation.
func (e *Enforcer) Enforce(ctx context.Context, req Request) (*Outcome, error) {
	name := e.provider.Name()
	call, err := e.provider.Analyze(ctx, req)
	if err != nil {
		if model.KindOf(err) == model.KindInternal {
			err = model.E(model.KindUpstreamUnavailable, "llm."+name, err)
		}
		return nil, err
	}

	if call.Name != req.Tool.Name {
		return nil, contractError(name, "engine called %q instead of %q", call.Name, req.Tool.Name)
	}

	var args toolArguments
	dec := json.NewDecoder(bytes.NewReader(call.Arguments))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&args); err != nil {
		return nil, contractError(name, "decode arguments: %v", err)
	}

	analysis, err := checkArguments(name, args)
	if err != nil {
		return nil, err
	}

	out := &Outcome{Provider: name, Model: call.Model}
	if out.Model == "" {
		out.Model = e.provider.Model()
	}

	sources, err := cleanSources(name, args.Sources)
	if err != nil {
		return nil, err
	}
	if e.strict {
		sources, out.Dropped = filterAllowed(sources, req.Allowed)
		if len(out.Dropped) > 0 {
			e.logger.Warn("dropped sources outside evidence",
				zap.String("provider", name),
				zap.Strings("dropped", out.Dropped))
		}
	}
	analysis.Sources = sources

	if req.Tool.Name == ToolVerifyVideo {
		f := &model.Forensics{
			DeepfakeIndicators: cleanList(args.DeepfakeIndicators),
			EditingArtifacts:   cleanList(args.EditingArtifacts),
		}
		if args.AudioVisualSync != nil {
			f.AudioVisualSync = strings.TrimSpace(*args.AudioVisualSync)
		}
		out.Forensics = f
		analysis.RedFlags = appendUnique(analysis.RedFlags, f.DeepfakeIndicators...)
		analysis.RedFlags = appendUnique(analysis.RedFlags, f.EditingArtifacts...)
	}

	out.Analysis = analysis
	return out, nil
}

func checkArguments(provider string, args toolArguments) (model.Analysis, error) {
	if args.Verdict == nil {
		return model.Analysis{}, contractError(provider, "missing verdict")
	}
	label := model.Label(strings.ToLower(strings.TrimSpace(*args.Verdict)))
	if !label.Valid() {
		return model.Analysis{}, contractError(provider, "verdict %q is not one of true, false, misleading, unverified", *args.Verdict)
	}
	if args.Confidence == nil {
		return model.Analysis{}, contractError(provider, "missing confidence")
	}
	c := *args.Confidence
	if math.IsNaN(c) || c < 0 || c > 100 {
		return model.Analysis{}, contractError(provider, "confidence %v outside 0-100", c)
	}
	if args.Explanation == nil || strings.TrimSpace(*args.Explanation) == "" {
		return model.Analysis{}, contractError(provider, "missing explanation")
	}

	return model.Analysis{
		Verdict:            label,
		Confidence:         int(math.Round(c)),
		Explanation:        strings.TrimSpace(*args.Explanation),
		RedFlags:           cleanList(args.RedFlags),
		PositiveIndicators: cleanList(args.PositiveIndicators),
	}, nil
}

// cleanSources requires every entry to be an absolute URL
func cleanSources(provider string, sources []string) ([]string, error) {
	out := []string{}
	seen := make(map[string]bool)
	for _, s := range sources {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if !model.IsAbsoluteURL(s) {
			return nil, contractError(provider, "source %q is not an absolute URL", s)
		}
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out, nil
}

// filterAllowed keeps sources present in the allowlist, ignoring a trailing slash
func filterAllowed(sources, allowed []string) (kept, dropped []string) {
	allow := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		allow[strings.TrimSuffix(a, "/")] = true
	}
	kept = []string{}
	for _, s := range sources {
		if allow[strings.TrimSuffix(s, "/")] {
			kept = append(kept, s)
		} else {
			dropped = append(dropped, s)
		}
	}
	return kept, dropped
}

func cleanList(items []string) []string {
	return appendUnique([]string{}, items...)
}

func appendUnique(list []string, items ...string) []string {
	seen := make(map[string]bool, len(list))
	for _, l := range list {
		seen[l] = true
	}
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" || seen[it] {
			continue
		}
		seen[it] = true
		list = append(list, it)
	}
	return list
}
