package rules

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	sigma "github.com/bradleyjkemp/sigma-go"
	sigmaevaluator "github.com/bradleyjkemp/sigma-go/evaluator"

	"sentryline/internal/logger"
	"sentryline/pkg/models"
)

// EventFields are the event attributes a tagging rule may match on.
var EventFields = []string{
	"event_type",
	"risk_level",
	"risk_score",
	"zone_id",
	"object_id",
	"person_id",
	"duration",
	"message",
}

// SkipReason says why a rule file was not loaded.
type SkipReason string

const (
	SkipInvalid       SkipReason = "invalid"
	SkipForeignSource SkipReason = "foreign_source"
	SkipUnsupported   SkipReason = "unsupported"
)

// Skipped is one rule file that did not load.
type Skipped struct {
	File   string
	Reason SkipReason
	Detail string
}

// LoadReport describes one rules load.
type LoadReport struct {
	Files   int
	Loaded  int
	Skipped []Skipped
}

// Count returns how many files were skipped for reason.
func (r LoadReport) Count(reason SkipReason) int {
	n := 0
	for _, s := range r.Skipped {
		if s.Reason == reason {
			n++
		}
	}
	return n
}

type tagRule struct {
	tag  models.AlertTag
	eval *sigmaevaluator.RuleEvaluator
}

// SigmaTagger tags events with every Sigma rule they match. Only single-event
// rules over EventFields are accepted.
type SigmaTagger struct {
	rules []tagRule
}

// LoadSigmaTagger compiles the rules in a .yml/.yaml file or a directory tree
// of them. Rules that cannot tag events are reported, not fatal.
func LoadSigmaTagger(path string) (*SigmaTagger, LoadReport, error) {
	var report LoadReport

	files, err := ruleFiles(path)
	if err != nil {
		return nil, report, err
	}
	report.Files = len(files)

	t := &SigmaTagger{}
	seen := make(map[string]string)
	skip := func(file string, reason SkipReason, detail string) {
		logger.Debugf("Skipping tagging rule %s (%s): %s", file, reason, detail)
		report.Skipped = append(report.Skipped, Skipped{File: file, Reason: reason, Detail: detail})
	}

	for _, file := range files {
		raw, err := os.ReadFile(file)
		if err != nil {
			skip(file, SkipInvalid, err.Error())
			continue
		}
		rule, err := sigma.ParseRule(raw)
		if err != nil {
			skip(file, SkipInvalid, err.Error())
			continue
		}
		if !forEvents(rule.Logsource.Product, rule.Logsource.Service) {
			skip(file, SkipForeignSource, fmt.Sprintf("logsource %s/%s", rule.Logsource.Product, rule.Logsource.Service))
			continue
		}
		if reason := unsupported(rule); reason != "" {
			skip(file, SkipUnsupported, reason)
			continue
		}

		tag := tagFor(rule)
		if other, dup := seen[tag.ID]; dup {
			skip(file, SkipInvalid, "rule id "+tag.ID+" already loaded from "+other)
			continue
		}
		seen[tag.ID] = file

		t.rules = append(t.rules, tagRule{tag: tag, eval: sigmaevaluator.ForRule(rule)})
		report.Loaded++
	}
	return t, report, nil
}

// Apply returns the tags of every matching rule, most severe first.
func (t *SigmaTagger) Apply(event *models.Event) []models.AlertTag {
	if t == nil || event == nil || len(t.rules) == 0 {
		return nil
	}

	fields := eventFields(event)
	var out []models.AlertTag
	for _, r := range t.rules {
		res, err := r.eval.Matches(context.Background(), fields)
		if err != nil {
			logger.Debugf("Tagging rule %s failed to evaluate: %v", r.tag.ID, err)
			continue
		}
		if res.Match {
			out = append(out, r.tag)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := severityRank[out[i].Severity], severityRank[out[j].Severity]
		if ri != rj {
			return ri > rj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func ruleFiles(path string) ([]string, error) {
	resolved, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve rule path: %w", err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("stat rule path: %w", err)
	}
	if !info.IsDir() {
		if !isYAML(resolved) {
			return nil, fmt.Errorf("rule file must end with .yml or .yaml: %s", resolved)
		}
		return []string{resolved}, nil
	}

	var files []string
	err = filepath.WalkDir(resolved, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.IsDir() && isYAML(p) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk rule directory: %w", err)
	}
	return files, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yml" || ext == ".yaml"
}

// forEvents accepts rules written for this service or with no product at all.
func forEvents(product, service string) bool {
	product = strings.ToLower(strings.TrimSpace(product))
	service = strings.ToLower(strings.TrimSpace(service))
	return (product == "" || product == "sentryline") && (service == "" || service == "events")
}

// unsupported returns why a rule cannot tag a single event, or "".
func unsupported(rule sigma.Rule) string {
	if rule.Detection.Timeframe > 0 {
		return "timeframe"
	}
	for _, cond := range rule.Detection.Conditions {
		if cond.Aggregation != nil {
			return "aggregation condition"
		}
		if !plainExpr(cond.Search) {
			return "complex condition expression"
		}
	}
	for name, search := range rule.Detection.Searches {
		if len(search.Keywords) > 0 {
			return "keyword search " + name
		}
		if len(search.EventMatchers) == 0 {
			return "search " + name + " has no field matchers"
		}
		for _, matcher := range search.EventMatchers {
			for _, fm := range matcher {
				if !knownField(fm.Field) {
					return "unknown event field " + fm.Field
				}
			}
		}
	}
	return ""
}

func plainExpr(expr sigma.SearchExpr) bool {
	switch e := expr.(type) {
	case sigma.SearchIdentifier:
		return true
	case sigma.And:
		for _, child := range e {
			if !plainExpr(child) {
				return false
			}
		}
		return true
	case sigma.Or:
		for _, child := range e {
			if !plainExpr(child) {
				return false
			}
		}
		return true
	case sigma.Not:
		return plainExpr(e.Expr)
	default:
		return false
	}
}

func knownField(field string) bool {
	for _, f := range EventFields {
		if f == field {
			return true
		}
	}
	return false
}

func eventFields(event *models.Event) map[string]interface{} {
	details := event.Details.Data()
	fields := map[string]interface{}{
		"event_type": string(event.EventType),
		"risk_level": string(event.RiskLevel),
		"risk_score": event.RiskScore,
	}
	if event.ZoneID != nil {
		fields["zone_id"] = *event.ZoneID
	}
	if details.ObjectID != "" {
		fields["object_id"] = details.ObjectID
	}
	if details.PersonID != "" {
		fields["person_id"] = details.PersonID
	}
	if details.Duration > 0 {
		fields["duration"] = details.Duration
	}
	if details.Message != "" {
		fields["message"] = details.Message
	}
	return fields
}

// Sigma levels, least to most severe. Anything else is tagged medium.
var severityRank = map[string]int{
	"informational": 1,
	"low":           2,
	"medium":        3,
	"high":          4,
	"critical":      5,
}

func tagFor(rule sigma.Rule) models.AlertTag {
	id := strings.TrimSpace(rule.ID)
	if id == "" {
		id = strings.TrimSpace(rule.Title)
	}
	severity := strings.ToLower(strings.TrimSpace(rule.Level))
	if _, ok := severityRank[severity]; !ok {
		severity = "medium"
	}
	return models.AlertTag{
		ID:       id,
		Name:     strings.TrimSpace(rule.Title),
		Severity: severity,
	}
}
