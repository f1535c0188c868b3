package chain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstReturnsFirstSuccess(t *testing.T) {
	calls := []string{}
	attempt := func(name string, err error) Attempt[string] {
		return Attempt[string]{Name: name, Run: func(context.Context) (string, error) {
			calls = append(calls, name)
			if err != nil {
				return "", err
			}
			return name + "-ok", nil
		}}
	}

	v, name, outcomes, err := First(context.Background(),
		attempt("a", errors.New("bad")),
		attempt("b", nil),
		attempt("c", nil),
	)
	require.NoError(t, err)
	assert.Equal(t, "b-ok", v)
	assert.Equal(t, "b", name)
	assert.Equal(t, []string{"a", "b"}, calls)
	require.Len(t, outcomes, 2)
	assert.Error(t, outcomes[0].Err)
	assert.NoError(t, outcomes[1].Err)
}

func TestFirstExhaustion(t *testing.T) {
	errA := errors.New("a failed")
	errB := errors.New("b failed")
	_, name, outcomes, err := First(context.Background(),
		Attempt[int]{Name: "a", Run: func(context.Context) (int, error) { return 0, errA }},
		Attempt[int]{Name: "b", Run: func(context.Context) (int, error) { return 0, errB }},
	)
	require.Error(t, err)
	assert.Empty(t, name)
	assert.Len(t, outcomes, 2)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
}

func TestFirstNoAttempts(t *testing.T) {
	_, _, _, err := First[int](context.Background())
	assert.ErrorIs(t, err, ErrNoAttempts)
}

func TestFirstStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ran := false
	_, _, _, err := First(ctx, Attempt[int]{Name: "a", Run: func(context.Context) (int, error) {
		ran = true
		return 1, nil
	}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ran)
}
