package answer

import (
	"encoding/json"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestLang(t *testing.T) {
	assert.Equal(t, "en", Request{}.Lang())
	assert.Equal(t, "es", Request{Language: " es "}.Lang())
}

func TestMissWrapsStrategyMiss(t *testing.T) {
	cause := errors.New("no rows")
	m := MissBecause("execute", cause)
	assert.ErrorIs(t, m.Reason, ErrStrategyMiss)
	assert.ErrorIs(t, m.Reason, cause)

	m = MissBecause("empty result", nil)
	assert.ErrorIs(t, m.Reason, ErrStrategyMiss)
	assert.Contains(t, m.Reason.Error(), "empty result")
}

func TestEnvelopeJSON(t *testing.T) {
	data, err := json.Marshal(Envelope{Success: true, Text: "57340", FollowUps: []string{"a"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"text":"57340","followUps":["a"]}`, string(data))

	data, err = json.Marshal(OuterFailure("boom"))
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, false, m["success"])
	assert.Equal(t, "boom", m["error"])
}

func TestCannedEnvelopes(t *testing.T) {
	g := Guidance()
	assert.True(t, g.Success)
	assert.Equal(t, GuidanceText, g.Text)
	assert.Equal(t, []string{
		"What programs does MIT offer?",
		"What are the tuition fees for Computer Science?",
		"Tell me about visa requirements",
	}, g.FollowUps)

	a := Apology()
	assert.True(t, a.Success)
	assert.Len(t, a.FollowUps, 3)

	// Callers may modify the returned slices.
	g.FollowUps[0] = "changed"
	assert.Equal(t, "What programs does MIT offer?", Guidance().FollowUps[0])
}

func TestSamplerDistinctMembers(t *testing.T) {
	pool := FollowUpPool()
	s := NewSampler(pool, rand.New(rand.NewPCG(1, 2)))

	for i := 0; i < 200; i++ {
		got := s.Sample(3)
		require.Len(t, got, 3)
		seen := map[string]bool{}
		for _, g := range got {
			assert.Contains(t, pool, g)
			assert.False(t, seen[g], "duplicate %q", g)
			seen[g] = true
		}
	}
}

func TestSamplerCoversPool(t *testing.T) {
	s := NewSampler(FollowUpPool(), nil)
	seen := map[string]bool{}
	for i := 0; i < 500; i++ {
		for _, g := range s.Sample(3) {
			seen[g] = true
		}
	}
	assert.Len(t, seen, len(FollowUpPool()))
}

func TestSamplerSmallPool(t *testing.T) {
	s := NewSampler([]string{"only", "two"}, nil)
	assert.ElementsMatch(t, []string{"only", "two"}, s.Sample(3))
	assert.Empty(t, s.Sample(0))
	assert.Empty(t, NewSampler(nil, nil).Sample(3))
}
