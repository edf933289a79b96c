package registry

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Najia-afk/aria-core/internal/ratelimit"
	"github.com/Najia-afk/aria-core/pkg/errs"
	"github.com/Najia-afk/aria-core/pkg/types"
)

type echoArgs struct {
	Message string `json:"message" jsonschema:"required"`
	Loud    bool   `json:"loud,omitempty"`
}

func echoDescriptor() types.ToolDescriptor {
	return types.ToolDescriptor{
		Name: "echo",
		Params: []types.ToolParam{
			{Name: "message", Type: "string", Required: true},
			{Name: "loud", Type: "boolean"},
		},
	}
}

func newTestRegistry() *Registry {
	return New(ratelimit.NewLimiter(), nil)
}

func TestRegisterToolThenInvoke(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.RegisterSkill(types.SkillDescriptor{Name: "greeter", MaxPerMinute: 60}))

	err := RegisterTool(r, "greeter", echoDescriptor(), func(ctx context.Context, a echoArgs) (any, error) {
		return a.Message, nil
	})
	require.NoError(t, err)

	args, _ := json.Marshal(echoArgs{Message: "hi"})
	out, err := r.Invoke(context.Background(), "greeter", "echo", args, "session-1")
	require.NoError(t, err)
	assert.Equal(t, "hi", out)
}

func TestRegisterToolRejectsSignatureMismatch(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.RegisterSkill(types.SkillDescriptor{Name: "greeter", MaxPerMinute: 60}))

	// Declared params say only "message" is required; the handler struct
	// additionally requires "loud" — this must be caught at registration.
	mismatched := types.ToolDescriptor{
		Name: "echo",
		Params: []types.ToolParam{
			{Name: "message", Type: "string", Required: true},
		},
	}
	type strictArgs struct {
		Message string `json:"message" jsonschema:"required"`
		Loud    bool   `json:"loud" jsonschema:"required"`
	}

	err := RegisterTool(r, "greeter", mismatched, func(ctx context.Context, a strictArgs) (any, error) {
		return nil, nil
	})
	require.Error(t, err)
	assert.Equal(t, errs.KindConfiguration, errs.KindOf(err))
}

func TestInvokeRejectsInvalidArgs(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.RegisterSkill(types.SkillDescriptor{Name: "greeter", MaxPerMinute: 60}))
	require.NoError(t, RegisterTool(r, "greeter", echoDescriptor(), func(ctx context.Context, a echoArgs) (any, error) {
		return a.Message, nil
	}))

	_, err := r.Invoke(context.Background(), "greeter", "echo", []byte(`{"loud": true}`), "session-1")
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestInvokeEnforcesRateLimit(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.RegisterSkill(types.SkillDescriptor{Name: "greeter", MaxPerMinute: 1}))
	require.NoError(t, RegisterTool(r, "greeter", echoDescriptor(), func(ctx context.Context, a echoArgs) (any, error) {
		return a.Message, nil
	}))

	args, _ := json.Marshal(echoArgs{Message: "hi"})
	_, err := r.Invoke(context.Background(), "greeter", "echo", args, "s")
	require.NoError(t, err)

	_, err = r.Invoke(context.Background(), "greeter", "echo", args, "s")
	require.Error(t, err)
	assert.Equal(t, errs.KindRateLimited, errs.KindOf(err))

	desc, ok := r.Get("greeter")
	require.True(t, ok)
	assert.Equal(t, types.StatusRateLimited, desc.Status)
}

func TestSkillTripsToErrorAfterConsecutiveFailures(t *testing.T) {
	r := New(ratelimit.NewLimiter(), nil, WithFailureThreshold(2))
	require.NoError(t, r.RegisterSkill(types.SkillDescriptor{Name: "flaky", MaxPerMinute: 1000}))
	require.NoError(t, RegisterTool(r, "flaky", echoDescriptor(), func(ctx context.Context, a echoArgs) (any, error) {
		return nil, errs.Internal(nil, "boom")
	}))

	args, _ := json.Marshal(echoArgs{Message: "hi"})
	for i := 0; i < 2; i++ {
		_, err := r.Invoke(context.Background(), "flaky", "echo", args, "s")
		require.Error(t, err)
	}

	desc, ok := r.Get("flaky")
	require.True(t, ok)
	assert.Equal(t, types.StatusError, desc.Status)
}
