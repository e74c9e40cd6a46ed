package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/itchyny/gojq"

	"github.com/simplesurance/stagecoord/internal/cfg"
	"github.com/simplesurance/stagecoord/internal/provider"
	"github.com/simplesurance/stagecoord/internal/stringutils"
)

// Workflow is an ordered list of automation steps that run for events
// matching the filter query.
type Workflow struct {
	name        string
	eventSource string
	filterQuery *gojq.Query
	steps       []Step
}

func New(name, eventSource, jqQuery string, steps []Step) (*Workflow, error) {
	query, err := gojq.Parse(jqQuery)
	if err != nil {
		return nil, err
	}

	return &Workflow{
		name:        name,
		eventSource: eventSource,
		filterQuery: query,
		steps:       steps,
	}, nil
}

func (w *Workflow) Name() string { return w.name }

func (w *Workflow) Steps() []Step { return w.steps }

func goJQIterToSlice(iter gojq.Iter) ([]any, []error) {
	var result []any
	var errs []error

	for {
		res, ok := iter.Next()
		if !ok {
			return result, errs
		}

		if err, isErr := res.(error); isErr {
			errs = append(errs, err)
			continue
		}

		result = append(result, res)
	}
}

func errString(errs []error) string {
	var result strings.Builder

	for i, err := range errs {
		if i > 0 {
			result.WriteString("; ")
		}

		result.WriteString(fmt.Sprintf("error %d: %s", i, err))
	}

	return result.String()
}

// Match returns Match if the event provider matches the workflow event
// source and the filter query evaluates to true for the JSON representation
// of the event.
func (w *Workflow) Match(ctx context.Context, ev *provider.Event) (MatchResult, error) {
	var evUn any

	if w.eventSource != ev.SCM {
		return EventSourceMismatch, nil
	}

	if len(ev.JSON) == 0 {
		return MatchResultUndefined, errors.New("json field of event is empty")
	}

	err := json.Unmarshal(ev.JSON, &evUn)
	if err != nil {
		return MatchResultUndefined, fmt.Errorf("unmarshaling json failed: %w", err)
	}

	result, errs := goJQIterToSlice(w.filterQuery.RunWithContext(ctx, evUn))
	if len(errs) != 0 {
		return MatchResultUndefined, fmt.Errorf("json query returned errors, query: %q, errors: %s", w.filterQuery.String(), errString(errs))
	}

	if len(result) == 0 {
		return MatchResultUndefined, fmt.Errorf("json query returned 0 results, expected 1, query: %q", w.filterQuery.String())
	}

	if len(result) > 1 {
		return MatchResultUndefined, fmt.Errorf("json query returned multiple results, expected 1, query: %q, result: '%+v'", w.filterQuery.String(), result)
	}

	switch val := result[0].(type) {
	case error:
		return MatchResultUndefined, val

	case bool:
		if val {
			return Match, nil
		}

		return FilterMismatch, nil

	default:
		return MatchResultUndefined, fmt.Errorf(
			"json query returned non-bool result: %+v (%T), query: %q",
			result, result, w.filterQuery.String(),
		)
	}
}

// StepDeps are the collaborators injected into step constructors.
type StepDeps struct {
	BuildClient   BuildClient
	Reporter      StatusReporter
	Subscriptions SubscriptionManager
	MergeChecker  MergeChecker
	Requests      RequestCreator
}

// WorkflowsFromCfg instantiates Workflows from the configuration.
func WorkflowsFromCfg(config *cfg.Config, deps *StepDeps) (Workflows, error) {
	result := make([]*Workflow, 0, len(config.Workflows))

	for _, cfgWorkflow := range config.Workflows {
		var steps []Step

		if cfgWorkflow.Name == "" {
			return nil, errors.New("workflow: missing field: 'name'")
		}

		if len(cfgWorkflow.Steps) == 0 {
			return nil, fmt.Errorf("workflow %s: missing array field: 'step'", cfgWorkflow.Name)
		}

		for _, cfgStep := range cfgWorkflow.Steps {
			val, ok := cfgStep["step"]
			if !ok {
				return nil, fmt.Errorf("workflow %s: step: missing string field 'step'", cfgWorkflow.Name)
			}

			stepName, ok := val.(string)
			if !ok {
				return nil, fmt.Errorf("workflow %s: step: step field is not a string field", cfgWorkflow.Name)
			}

			step, err := newStep(deps, strings.ToLower(stepName), cfgStep)
			if err != nil {
				return nil, fmt.Errorf("workflow %s: step %s: %w", cfgWorkflow.Name, stepName, err)
			}

			steps = append(steps, step)
		}

		workflow, err := New(cfgWorkflow.Name, cfgWorkflow.EventSource, cfgWorkflow.FilterQuery, steps)
		if err != nil {
			return nil, err
		}

		result = append(result, workflow)
	}

	return result, nil
}

func newStep(deps *StepDeps, name string, m map[string]any) (Step, error) {
	switch name {
	case branchStepName:
		return NewBranchStepFromMap(deps.BuildClient, deps.Subscriptions, deps.Reporter, m)

	case linkStepName:
		return NewLinkStepFromMap(deps.BuildClient, deps.Subscriptions, deps.Reporter, m)

	case configureRepositoriesStepName:
		return NewConfigureRepositoriesStepFromMap(deps.BuildClient, deps.Subscriptions, m)

	case triggerBuildStepName:
		return NewTriggerBuildStepFromMap(deps.BuildClient, m)

	case setFlagsStepName:
		return NewSetFlagsStepFromMap(deps.BuildClient, m)

	case submitRequestStepName:
		return NewSubmitRequestStepFromMap(deps.Requests, deps.MergeChecker, m)

	default:
		return nil, fmt.Errorf("unsupported step: %q", name)
	}
}

func (w *Workflow) String() string {
	return w.name
}

func (w *Workflow) DetailedString() string {
	var result strings.Builder

	result.WriteString(fmt.Sprintf("Name: %s\nEventSource: %s\nFilterQuery: %s\n", w.name, w.eventSource, w.filterQuery))

	for i, step := range w.steps {
		if i == 0 {
			result.WriteString("Steps:\n")
		}

		result.WriteString(fmt.Sprintf("%s\n", stringutils.IndentString(step.DetailedString(), "")))
	}

	return result.String()
}
