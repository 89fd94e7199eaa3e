package detect

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	sigma "github.com/bradleyjkemp/sigma-go"
	sigmaevaluator "github.com/bradleyjkemp/sigma-go/evaluator"

	"webtrap/pkg/models"
)

// RuleMatch names a detection rule matched by a request.
type RuleMatch struct {
	ID       string
	Title    string
	Severity string
}

// SigmaLoadStats tracks the number of loaded and skipped rules.
type SigmaLoadStats struct {
	TotalFiles     int
	Loaded         int
	SkippedComplex int
	SkippedInvalid int
}

type compiledRule struct {
	rule sigma.Rule
	eval *sigmaevaluator.RuleEvaluator
}

// SigmaEngine evaluates operator-supplied Sigma rules against request
// descriptors, for detections beyond the built-in heuristics.
type SigmaEngine struct {
	rules []compiledRule
	ctx   context.Context
}

// NewSigmaEngine loads Sigma rules from a file or directory and
// compiles evaluators. Unsupported or invalid rules are skipped and
// counted in stats.
func NewSigmaEngine(path string) (*SigmaEngine, SigmaLoadStats, error) {
	var stats SigmaLoadStats

	resolved, err := filepath.Abs(path)
	if err != nil {
		return nil, stats, fmt.Errorf("resolve rule path: %w", err)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return nil, stats, fmt.Errorf("stat rule path: %w", err)
	}

	files := make([]string, 0, 64)
	if info.IsDir() {
		err = filepath.WalkDir(resolved, func(filePath string, entry fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if entry.IsDir() {
				return nil
			}
			if isYAMLFile(filePath) {
				files = append(files, filePath)
			}
			return nil
		})
		if err != nil {
			return nil, stats, fmt.Errorf("walk rule directory: %w", err)
		}
	} else {
		if !isYAMLFile(resolved) {
			return nil, stats, fmt.Errorf("rule file must end with .yml or .yaml: %s", resolved)
		}
		files = append(files, resolved)
	}

	stats.TotalFiles = len(files)
	compiled := make([]compiledRule, 0, len(files))
	for _, ruleFile := range files {
		raw, err := os.ReadFile(ruleFile)
		if err != nil {
			stats.SkippedInvalid++
			continue
		}
		rule, err := sigma.ParseRule(raw)
		if err != nil {
			stats.SkippedInvalid++
			continue
		}
		if !isSimpleRule(rule) {
			stats.SkippedComplex++
			continue
		}
		compiled = append(compiled, compiledRule{rule: rule, eval: sigmaevaluator.ForRule(rule)})
		stats.Loaded++
	}

	return &SigmaEngine{rules: compiled, ctx: context.Background()}, stats, nil
}

// Apply evaluates all loaded rules against a request descriptor.
func (e *SigmaEngine) Apply(req *models.RequestDescriptor) []RuleMatch {
	if e == nil || req == nil || len(e.rules) == 0 {
		return nil
	}

	eventMap := requestEvent(req)
	out := make([]RuleMatch, 0, 2)
	for _, rule := range e.rules {
		res, err := rule.eval.Matches(e.ctx, eventMap)
		if err != nil {
			continue
		}
		if res.Match {
			out = append(out, matchFromRule(rule.rule))
		}
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

func matchFromRule(rule sigma.Rule) RuleMatch {
	id := strings.TrimSpace(rule.ID)
	if id == "" {
		id = strings.TrimSpace(rule.Title)
	}
	level := strings.ToLower(strings.TrimSpace(rule.Level))
	if level == "" {
		level = "medium"
	}
	return RuleMatch{ID: id, Title: strings.TrimSpace(rule.Title), Severity: level}
}

func isYAMLFile(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".yml") || strings.HasSuffix(lower, ".yaml")
}

// isSimpleRule rejects rule forms the evaluator cannot serve for
// single-request matching.
func isSimpleRule(rule sigma.Rule) bool {
	if rule.Detection.Timeframe > 0 {
		return false
	}
	for _, cond := range rule.Detection.Conditions {
		if cond.Aggregation != nil {
			return false
		}
	}
	for _, search := range rule.Detection.Searches {
		if len(search.EventMatchers) == 0 && len(search.Keywords) == 0 {
			return false
		}
	}
	return true
}

// requestEvent flattens a descriptor into the field map Sigma rules
// match against.
func requestEvent(req *models.RequestDescriptor) map[string]interface{} {
	buf := make(map[string]interface{}, len(req.Headers)+len(req.Query)+len(req.Body)+4)
	buf["Method"] = req.Method
	buf["Path"] = req.Path
	buf["SourceOrigin"] = req.SourceOrigin
	buf["UserAgent"] = req.UserAgent()
	for k, v := range req.Headers {
		buf["Header|"+k] = v
	}
	for k, v := range req.Query {
		buf["Query|"+k] = v
	}
	for k, v := range req.Body {
		buf["Body|"+k] = v
	}
	return buf
}
