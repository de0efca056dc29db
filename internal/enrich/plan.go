package enrich

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/vergilyu/geoai-retail/internal/frame"
)

// FrameResolver loads a named source into a Frame. It matches the Resolve
// method of source.Resolver.
type FrameResolver func(ctx context.Context, in any) (*frame.Frame, error)

// Step is one enrichment operation in a Plan.
type Step struct {
	// Kind is one of origin_dest, dest, or normalize.
	Kind   string `yaml:"kind"`
	Source string `yaml:"source"`
	Metric string `yaml:"metric"`
	Fill   any    `yaml:"fill"`

	// dest joins
	JoinID  string `yaml:"join_id"`
	Dummies bool   `yaml:"dummies"`

	// normalize
	FactorRoot     string `yaml:"factor_root"`
	NormalizeID    string `yaml:"normalize_id"`
	NormalizeField string `yaml:"normalize_field"`
	Output         string `yaml:"output"`
	DropOriginal   bool   `yaml:"drop_original"`
}

// Plan is a declarative sequence of enrichment steps applied to a closest
// table.
type Plan struct {
	Closest string `yaml:"closest"`
	Steps   []Step `yaml:"steps"`
	Output  string `yaml:"output"`
}

// LoadPlan reads a Plan from a YAML file.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "enrich: read plan %s", path)
	}

	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, eris.Wrapf(err, "enrich: parse plan %s", path)
	}
	if err := plan.validate(); err != nil {
		return nil, err
	}
	return &plan, nil
}

func (p *Plan) validate() error {
	if len(p.Steps) == 0 {
		return eris.New("enrich: plan has no steps")
	}
	for i, step := range p.Steps {
		switch step.Kind {
		case "origin_dest", "dest":
			if step.Source == "" || step.Metric == "" {
				return eris.Errorf("enrich: step %d (%s) needs source and metric", i, step.Kind)
			}
			if step.Kind == "dest" && step.JoinID == "" {
				return eris.Errorf("enrich: step %d (dest) needs join_id", i)
			}
		case "normalize":
			if step.Source == "" || step.FactorRoot == "" || step.NormalizeID == "" ||
				step.NormalizeField == "" || step.Output == "" {
				return eris.Errorf("enrich: step %d (normalize) needs source, factor_root, normalize_id, normalize_field, and output", i)
			}
		default:
			return eris.Errorf("enrich: step %d has unknown kind %q", i, step.Kind)
		}
	}
	return nil
}

// Apply runs every step of the plan against the closest table, resolving
// step sources through the given resolver.
func (p *Plan) Apply(ctx context.Context, closest *frame.Frame, resolve FrameResolver) (*frame.Frame, error) {
	result := closest
	for i, step := range p.Steps {
		joinFrame, err := resolve(ctx, step.Source)
		if err != nil {
			return nil, eris.Wrapf(err, "enrich: step %d resolve source %q", i, step.Source)
		}

		switch step.Kind {
		case "origin_dest":
			result, err = AddMetricByOriginDest(result, joinFrame, step.Metric, JoinOptions{FillValue: step.Fill})
		case "dest":
			result, err = AddMetricByDest(result, joinFrame, step.JoinID, step.Metric, JoinOptions{
				FillValue:  step.Fill,
				GetDummies: step.Dummies,
			})
		case "normalize":
			result, err = AddNormalizedColumns(result, joinFrame, step.FactorRoot, step.NormalizeID,
				step.NormalizeField, step.Output, NormalizeOptions{
					FillValue:    step.Fill,
					DropOriginal: step.DropOriginal,
				})
		}
		if err != nil {
			return nil, eris.Wrapf(err, "enrich: step %d (%s)", i, step.Kind)
		}

		zap.L().Info("enrich: plan step applied",
			zap.Int("step", i),
			zap.String("kind", step.Kind),
			zap.Int("columns", len(result.Columns())),
		)
	}
	return result, nil
}
