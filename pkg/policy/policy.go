// Package policy filters predicted segments with user supplied Rego rules.
//
// A policy directory holds *.rego files. Segments for which
// data.moment.discard evaluates to true are removed. Input document:
//
//	{
//	  "query": "<question>",
//	  "segment": {"start_time": 1.5, "end_time": 3.0, "confidence": 0.42}
//	}
package policy

import (
	"context"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/momentseek/pkg/model"
	"github.com/m-mizutani/momentseek/pkg/utils/logging"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/open-policy-agent/opa/v1/topdown/print"
)

const discardQuery = "data.moment.discard"

// Policy is a prepared discard rule. A nil Policy keeps every segment.
type Policy struct {
	discard *rego.PreparedEvalQuery
	files   []string
}

// Load reads all Rego files in dir. It returns nil, nil when the directory
// holds no policy files.
func Load(ctx context.Context, dir string) (*Policy, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.rego"))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to glob policy files", goerr.V("dir", dir))
	}
	if len(files) == 0 {
		return nil, nil
	}

	options := make([]func(*rego.Rego), 0, len(files)+2)
	options = append(options, rego.Query(discardQuery), rego.EnablePrintStatements(true))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read policy file", goerr.V("path", file))
		}
		options = append(options, rego.Module(file, string(data)))
	}

	prepared, err := rego.New(options...).PrepareForEval(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare policy", goerr.V("query", discardQuery))
	}

	return &Policy{discard: &prepared, files: files}, nil
}

// Files returns the loaded policy file paths
func (p *Policy) Files() []string {
	if p == nil {
		return nil
	}
	return p.files
}

// Apply returns the segments the policy keeps, in their original order
func (p *Policy) Apply(ctx context.Context, query string, rs model.ResultSet) (model.ResultSet, error) {
	if p == nil || p.discard == nil {
		return rs, nil
	}

	kept := make(model.ResultSet, 0, len(rs))
	for _, seg := range rs {
		discard, err := p.shouldDiscard(ctx, query, seg)
		if err != nil {
			return nil, err
		}
		if discard {
			logging.From(ctx).Debug("segment discarded by policy",
				"start", seg.StartTime,
				"end", seg.EndTime,
				"confidence", seg.Confidence)
			continue
		}
		kept = append(kept, seg)
	}
	return kept, nil
}

func (p *Policy) shouldDiscard(ctx context.Context, query string, seg model.Segment) (bool, error) {
	input := map[string]any{
		"query": query,
		"segment": map[string]any{
			"start_time": seg.StartTime,
			"end_time":   seg.EndTime,
			"confidence": seg.Confidence,
		},
	}

	rs, err := p.discard.Eval(ctx, rego.EvalInput(input), rego.EvalPrintHook(&printHook{ctx: ctx}))
	if err != nil {
		return false, goerr.Wrap(err, "failed to evaluate policy", goerr.V("query", discardQuery))
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}

	v, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return false, goerr.New("discard rule must be a boolean",
			goerr.V("value", rs[0].Expressions[0].Value))
	}
	return v, nil
}

// printHook forwards Rego print() output to the logger
type printHook struct {
	ctx context.Context
}

func (h *printHook) Print(_ print.Context, message string) error {
	logging.From(h.ctx).Debug("rego print", "message", message)
	return nil
}
