package report

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubGenerator struct {
	meta Metadata
}

func (g *stubGenerator) Metadata() Metadata { return g.meta }

func (g *stubGenerator) ValidateParameters(args map[string]any) []ValidationError {
	return nil
}

func (g *stubGenerator) Generate(ctx context.Context, args map[string]any, progress Progress, cancel <-chan struct{}) ([]Output, error) {
	return nil, nil
}

func (g *stubGenerator) EstimatedDuration(args map[string]any) time.Duration {
	return time.Second
}

func TestRegistry_RegisterAndResolve(t *testing.T) {
	r := NewRegistry()
	r.Register("stub", func() Generator {
		return &stubGenerator{meta: Metadata{ID: "stub", Name: "Stub"}}
	})

	gen, err := r.Resolve("stub")
	require.NoError(t, err)
	require.NotNil(t, gen)
	require.Equal(t, "stub", gen.Metadata().ID)

	require.True(t, r.Known("stub"))
	require.False(t, r.Known("missing"))
}

func TestRegistry_ResolveUnknown(t *testing.T) {
	r := NewRegistry()

	gen, err := r.Resolve("nope")
	require.Error(t, err)
	require.Nil(t, gen)
	require.True(t, IsNotRegistered(err))

	var nre *NotRegisteredError
	require.ErrorAs(t, err, &nre)
	require.Equal(t, "nope", nre.ID)
}

func TestRegistry_ResolverCaching(t *testing.T) {
	r := NewRegistry()

	calls := 0
	r.RegisterResolver(func(id string) (Factory, error) {
		calls++
		if id != "dynamic" {
			return nil, &NotRegisteredError{ID: id}
		}
		return func() Generator {
			return &stubGenerator{meta: Metadata{ID: "dynamic"}}
		}, nil
	})

	for range 3 {
		gen, err := r.Resolve("dynamic")
		require.NoError(t, err)
		require.Equal(t, "dynamic", gen.Metadata().ID)
	}

	// Cached after the first hit.
	require.Equal(t, 1, calls)
}

func TestRegistry_ResolverChainFallsThrough(t *testing.T) {
	r := NewRegistry()

	r.RegisterResolver(func(id string) (Factory, error) {
		return nil, &NotRegisteredError{ID: id}
	})
	r.RegisterResolver(func(id string) (Factory, error) {
		if id != "second" {
			return nil, &NotRegisteredError{ID: id}
		}
		return func() Generator {
			return &stubGenerator{meta: Metadata{ID: "second"}}
		}, nil
	})

	gen, err := r.Resolve("second")
	require.NoError(t, err)
	require.Equal(t, "second", gen.Metadata().ID)
}

func TestRegistry_ResolverFailure(t *testing.T) {
	r := NewRegistry()
	r.RegisterResolver(func(id string) (Factory, error) {
		return nil, fmt.Errorf("backend unavailable")
	})

	_, err := r.Resolve("anything")
	require.Error(t, err)
	require.False(t, IsNotRegistered(err))
}

func TestRegistry_List(t *testing.T) {
	r := NewRegistry()
	r.Register("b-report", func() Generator {
		return &stubGenerator{meta: Metadata{ID: "b-report"}}
	})
	r.Register("a-report", func() Generator {
		// Metadata id deliberately blank; List fills it in from the
		// registration key.
		return &stubGenerator{}
	})

	metas := r.List()
	require.Len(t, metas, 2)
	require.Equal(t, "a-report", metas[0].ID)
	require.Equal(t, "b-report", metas[1].ID)
}

func TestArgs(t *testing.T) {
	args := map[string]any{
		"title":  "Q3",
		"count":  float64(4), // JSON numbers decode as float64
		"ratio":  "0.5",
		"fast":   true,
		"delay":  "250ms",
		"broken": []string{"not", "a", "number"},
	}

	require.Equal(t, "Q3", StringArg(args, "title", "x"))
	require.Equal(t, "x", StringArg(args, "missing", "x"))
	require.Equal(t, 4, IntArg(args, "count", 0))
	require.Equal(t, 9, IntArg(args, "broken", 9))
	require.InDelta(t, 0.5, Float64Arg(args, "ratio", 0), 1e-9)
	require.True(t, BoolArg(args, "fast", false))
	require.Equal(t, 250*time.Millisecond, DurationArg(args, "delay", 0))
	require.Equal(t, time.Second, DurationArg(args, "missing", time.Second))
	require.True(t, Numeric("12.5"))
	require.False(t, Numeric(map[string]any{}))
}
