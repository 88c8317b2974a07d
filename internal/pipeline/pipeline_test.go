package pipeline

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Melevir/opensource-watchman/internal/engine"
	"github.com/Melevir/opensource-watchman/internal/logger"
	"github.com/Melevir/opensource-watchman/internal/model"
	watchmanerrors "github.com/Melevir/opensource-watchman/pkg/errors"
)

func setStep(name string, params []string, update Update) Step {
	provides := make([]string, 0, len(update))
	for k := range update {
		provides = append(provides, k)
	}
	return Step{
		Name:     name,
		Params:   params,
		Provides: provides,
		Fn: func(context.Context, engine.Inputs) (Update, error) {
			return update, nil
		},
	}
}

func TestRun_ThreadsContext(t *testing.T) {
	t.Parallel()

	p, err := New([]Step{
		{
			Name:     "full_name",
			Params:   []string{"owner", "repo"},
			Provides: []string{"full_name"},
			Fn: func(_ context.Context, in engine.Inputs) (Update, error) {
				owner, err := engine.Input[string](in, "owner")
				if err != nil {
					return nil, err
				}
				repo, err := engine.Input[string](in, "repo")
				if err != nil {
					return nil, err
				}
				return Update{"full_name": owner + "/" + repo}, nil
			},
		},
		{
			Name:     "greeting",
			Params:   []string{"full_name"},
			Provides: []string{"greeting"},
			Fn: func(_ context.Context, in engine.Inputs) (Update, error) {
				name, err := engine.Input[string](in, "full_name")
				if err != nil {
					return nil, err
				}
				return Update{"greeting": "hello " + name}, nil
			},
		},
	})
	require.NoError(t, err)

	result, err := p.Run(context.Background(), map[string]any{"owner": "acme", "repo": "widgets"})
	require.NoError(t, err)
	require.Equal(t, Context{
		"owner":     "acme",
		"repo":      "widgets",
		"full_name": "acme/widgets",
		"greeting":  "hello acme/widgets",
	}, result)

	greeting, err := Value[string](result, "greeting")
	require.NoError(t, err)
	require.Equal(t, "hello acme/widgets", greeting)
	require.Equal(t, []string{"full_name", "greeting", "owner", "repo"}, result.Keys())
}

func TestRun_LastWriteWinsAndKeysAreKept(t *testing.T) {
	t.Parallel()

	p, err := New([]Step{
		setStep("first", nil, Update{"readme": "v1", "badges": []string{"a"}}),
		setStep("second", []string{"readme"}, Update{"readme": "v2"}),
	})
	require.NoError(t, err)

	result, err := p.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, "v2", result["readme"])
	require.Equal(t, []string{"a"}, result["badges"])
}

func TestNew_RejectsDuplicatesAndInvalidSteps(t *testing.T) {
	t.Parallel()

	_, err := New([]Step{setStep("a", nil, nil), setStep("a", nil, nil)})
	var dupErr *watchmanerrors.DuplicateStepError
	require.ErrorAs(t, err, &dupErr)
	require.Equal(t, "a", dupErr.Name)

	var valErr *watchmanerrors.ValidationError
	_, err = New([]Step{{Name: "no_fn"}})
	require.ErrorAs(t, err, &valErr)

	_, err = New([]Step{setStep("", nil, nil)})
	require.ErrorAs(t, err, &valErr)
}

func TestValidate_ParameterProvidedLater(t *testing.T) {
	t.Parallel()

	called := false
	consumer := setStep("extract_badges", []string{"readme"}, Update{"badges": nil})
	consumer.Fn = func(context.Context, engine.Inputs) (Update, error) {
		called = true
		return nil, nil
	}

	p, err := New([]Step{consumer, setStep("read_readme", nil, Update{"readme": "# hi"})})
	require.NoError(t, err)

	_, err = p.Run(context.Background(), nil)
	require.False(t, called)

	var unresolved *watchmanerrors.UnresolvedParameterError
	require.ErrorAs(t, err, &unresolved)
	require.Equal(t, "extract_badges", unresolved.Step)
	require.Equal(t, "readme", unresolved.Param)
	require.Contains(t, unresolved.Detail, "read_readme")
}

func TestValidate_UnknownParameter(t *testing.T) {
	t.Parallel()

	p, err := New([]Step{setStep("b", []string{"x"}, nil)})
	require.NoError(t, err)

	err = p.Validate(map[string]any{"y": 1})
	var unresolved *watchmanerrors.UnresolvedParameterError
	require.ErrorAs(t, err, &unresolved)
	require.Equal(t, "x", unresolved.Param)
	require.Empty(t, unresolved.Detail)

	require.NoError(t, p.Validate(map[string]any{"x": 1}))
}

func TestValidate_DetectsCycles(t *testing.T) {
	t.Parallel()

	p, err := New([]Step{
		setStep("A", []string{"y"}, Update{"x": 1}),
		setStep("B", []string{"x"}, Update{"y": 2}),
	})
	require.NoError(t, err)

	err = p.Validate(nil)
	var cycleErr *watchmanerrors.CyclicDependencyError
	require.ErrorAs(t, err, &cycleErr)
	require.Contains(t, cycleErr.Cycle, "A")
	require.Contains(t, cycleErr.Cycle, "B")
}

func TestValidate_StepMayNotProvideFixedParameter(t *testing.T) {
	t.Parallel()

	p, err := New([]Step{setStep("override", nil, Update{"owner": "evil"})})
	require.NoError(t, err)

	err = p.Validate(map[string]any{"owner": "acme"})
	var valErr *watchmanerrors.ValidationError
	require.ErrorAs(t, err, &valErr)
	require.Equal(t, "override", valErr.Field)
}

func TestRun_UndeclaredUpdateOfFixedParameterFails(t *testing.T) {
	t.Parallel()

	sneaky := Step{
		Name: "sneaky",
		Fn: func(context.Context, engine.Inputs) (Update, error) {
			return Update{"owner": "evil"}, nil
		},
	}
	p, err := New([]Step{sneaky})
	require.NoError(t, err)

	_, err = p.Run(context.Background(), map[string]any{"owner": "acme"})
	var execErr *watchmanerrors.StepExecutionError
	require.ErrorAs(t, err, &execErr)
	var valErr *watchmanerrors.ValidationError
	require.ErrorAs(t, err, &valErr)
}

func TestRun_MissingKeyAtRunTime(t *testing.T) {
	t.Parallel()

	liar := Step{
		Name:     "liar",
		Provides: []string{"readme"},
		Fn: func(context.Context, engine.Inputs) (Update, error) {
			return Update{}, nil
		},
	}
	p, err := New([]Step{liar, setStep("reader", []string{"readme"}, nil)})
	require.NoError(t, err)

	_, err = p.Run(context.Background(), nil)
	var unresolved *watchmanerrors.UnresolvedParameterError
	require.ErrorAs(t, err, &unresolved)
	require.Equal(t, "reader", unresolved.Step)
}

func TestRun_StepFailureStopsPipeline(t *testing.T) {
	t.Parallel()

	boom := errors.New("clone failed")
	ranAfter := false
	p, err := New([]Step{
		{Name: "open", Kind: engine.KindEffect, Provides: []string{"repo"}, Fn: func(context.Context, engine.Inputs) (Update, error) {
			return nil, boom
		}},
		{Name: "after", Fn: func(context.Context, engine.Inputs) (Update, error) {
			ranAfter = true
			return nil, nil
		}},
	})
	require.NoError(t, err)

	result, err := p.Run(context.Background(), nil)
	require.Nil(t, result)
	require.False(t, ranAfter)
	require.ErrorIs(t, err, boom)

	var execErr *watchmanerrors.StepExecutionError
	require.ErrorAs(t, err, &execErr)
	require.Equal(t, "open", execErr.Step)
}

func TestRun_RecoversPanics(t *testing.T) {
	t.Parallel()

	p, err := New([]Step{{Name: "explode", Fn: func(context.Context, engine.Inputs) (Update, error) {
		panic("kaboom")
	}}})
	require.NoError(t, err)

	_, err = p.Run(context.Background(), nil)
	require.ErrorContains(t, err, "kaboom")
}

func TestRun_CancelledContext(t *testing.T) {
	t.Parallel()

	p, err := New([]Step{setStep("a", nil, Update{"a": 1})})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = p.Run(ctx, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRun_LogsAndTracesKinds(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log, err := logger.New(logger.Options{Level: "debug", Writer: buf})
	require.NoError(t, err)
	trace := &engine.Trace{}

	fetch := setStep("fetch", nil, Update{"raw": "data"})
	fetch.Kind = engine.KindEffect
	p, err := New([]Step{fetch, setStep("parse", []string{"raw"}, Update{"parsed": true})},
		WithLogger(log), WithTrace(trace))
	require.NoError(t, err)
	require.Equal(t, []string{"fetch", "parse"}, p.Names())

	_, err = p.Run(context.Background(), nil)
	require.NoError(t, err)

	out := buf.String()
	require.Contains(t, out, `"kind":"effect"`)
	require.Contains(t, out, `"kind":"transform"`)
	require.Equal(t, 2, strings.Count(out, "step finished"))

	steps := trace.Steps()
	require.Len(t, steps, 2)
	require.Equal(t, "effect", steps[0].Kind)
	require.Equal(t, model.StatusSuccess, steps[1].Status)
}
