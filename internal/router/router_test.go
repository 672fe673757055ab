package router

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/uniguide/internal/answer"
	"github.com/kalambet/uniguide/internal/storage"
)

type fixedStructured struct {
	res   answer.Result
	calls int
}

func (f *fixedStructured) Attempt(context.Context, string, string) answer.Result {
	f.calls++
	return f.res
}

type fixedSemantic struct {
	env     answer.Envelope
	panic   bool
	calls   int
	history []answer.Turn
	lang    string
}

func (f *fixedSemantic) Attempt(_ context.Context, _, lang string, history []answer.Turn) answer.Envelope {
	f.calls++
	f.lang = lang
	f.history = history
	if f.panic {
		panic("index exploded")
	}
	return f.env
}

type memoryRecorder struct {
	turns []storage.Turn
	err   error
}

func (m *memoryRecorder) AppendTurns(_ context.Context, turns ...storage.Turn) error {
	if m.err != nil {
		return m.err
	}
	m.turns = append(m.turns, turns...)
	return nil
}

func seededSampler() *answer.Sampler {
	return answer.NewSampler(answer.FollowUpPool(), rand.New(rand.NewPCG(1, 2)))
}

func TestHandleStructuredHit(t *testing.T) {
	st := &fixedStructured{res: answer.Hit{Envelope: answer.Envelope{Success: true, Text: "57340"}}}
	se := &fixedSemantic{}
	rec := &memoryRecorder{}
	rt := New(st, se, WithRecorder(rec), WithSampler(seededSampler()))

	env := rt.Handle(context.Background(), answer.Request{Message: "What is the tuition at MIT?"})

	assert.True(t, env.Success)
	assert.Equal(t, "57340", env.Text)
	assert.Len(t, env.FollowUps, FollowUpCount)
	for _, f := range env.FollowUps {
		assert.Contains(t, answer.FollowUpPool(), f)
	}
	assert.Zero(t, se.calls)

	require.Len(t, rec.turns, 2)
	assert.Equal(t, answer.RoleUser, rec.turns[0].Role)
	assert.Equal(t, "What is the tuition at MIT?", rec.turns[0].Content)
	assert.Equal(t, answer.RoleAssistant, rec.turns[1].Role)
	assert.Equal(t, "57340", rec.turns[1].Content)
}

func TestHandleFallsBackToSemantic(t *testing.T) {
	st := &fixedStructured{res: answer.MissBecause("validate statement", errors.New("rejected"))}
	se := &fixedSemantic{env: answer.Envelope{Success: true, Text: "You need an I-20."}}
	rt := New(st, se, WithSampler(seededSampler()))

	history := []answer.Turn{{Role: answer.RoleUser, Content: "earlier"}}
	env := rt.Handle(context.Background(), answer.Request{Message: "F-1?", Language: "", History: history})

	assert.Equal(t, "You need an I-20.", env.Text)
	assert.Len(t, env.FollowUps, FollowUpCount)
	assert.Equal(t, 1, st.calls)
	assert.Equal(t, 1, se.calls)
	assert.Equal(t, answer.DefaultLanguage, se.lang)
	assert.Equal(t, history, se.history)
}

func TestHandleKeepsStrategyFollowUps(t *testing.T) {
	se := &fixedSemantic{env: answer.Guidance()}
	rt := New(nil, se)

	env := rt.Handle(context.Background(), answer.Request{Message: "hi"})
	assert.Equal(t, answer.GuidanceFollowUps(), env.FollowUps)
}

func TestHandlePanicBecomesOuterFailure(t *testing.T) {
	st := &fixedStructured{res: answer.MissBecause("generate statement", nil)}
	se := &fixedSemantic{panic: true}
	rec := &memoryRecorder{}
	rt := New(st, se, WithRecorder(rec))

	env := rt.Handle(context.Background(), answer.Request{Message: "q"})

	assert.False(t, env.Success)
	assert.Equal(t, answer.OuterFailureText, env.Text)
	assert.Equal(t, "index exploded", env.Error)
	assert.Equal(t, answer.ApologyFollowUps(), env.FollowUps)
	assert.Empty(t, rec.turns)
}

func TestHandleRecorderFailureIsIgnored(t *testing.T) {
	se := &fixedSemantic{env: answer.Envelope{Success: true, Text: "ok"}}
	rt := New(nil, se, WithRecorder(&memoryRecorder{err: errors.New("disk full")}))

	env := rt.Handle(context.Background(), answer.Request{Message: "q"})
	assert.True(t, env.Success)
	assert.Equal(t, "ok", env.Text)
}

type storedHistory struct {
	turns []storage.Turn
	err   error
	role  string
	limit int
}

func (h *storedHistory) RecentTurns(_ context.Context, role string, limit int) ([]storage.Turn, error) {
	h.role, h.limit = role, limit
	return h.turns, h.err
}

func TestHandleUsesStoredHistoryWhenRequestHasNone(t *testing.T) {
	se := &fixedSemantic{env: answer.Envelope{Success: true, Text: "ok"}}
	hist := &storedHistory{turns: []storage.Turn{
		{Role: answer.RoleUser, Content: "What programs does MIT offer?"},
		{Role: answer.RoleUser, Content: "And the tuition?"},
	}}
	rt := New(nil, se, WithHistory(hist), WithSampler(seededSampler()))

	rt.Handle(context.Background(), answer.Request{Message: "Is there visa support?"})

	assert.Equal(t, answer.RoleUser, hist.role)
	assert.Equal(t, 3, hist.limit)
	require.Len(t, se.history, 2)
	assert.Equal(t, "What programs does MIT offer?", se.history[0].Content)
	assert.Equal(t, "And the tuition?", se.history[1].Content)
}

func TestHandlePrefersRequestHistory(t *testing.T) {
	se := &fixedSemantic{env: answer.Envelope{Success: true, Text: "ok"}}
	hist := &storedHistory{turns: []storage.Turn{{Role: answer.RoleUser, Content: "stored"}}}
	rt := New(nil, se, WithHistory(hist), WithSampler(seededSampler()))

	req := answer.Request{
		Message: "q",
		History: []answer.Turn{{Role: answer.RoleUser, Content: "from request"}},
	}
	rt.Handle(context.Background(), req)

	require.Len(t, se.history, 1)
	assert.Equal(t, "from request", se.history[0].Content)
	assert.Zero(t, hist.limit, "stored history must not be read")
}

func TestHandleStoredHistoryFailureIsIgnored(t *testing.T) {
	se := &fixedSemantic{env: answer.Envelope{Success: true, Text: "ok"}}
	rt := New(nil, se, WithHistory(&storedHistory{err: errors.New("db gone")}), WithSampler(seededSampler()))

	env := rt.Handle(context.Background(), answer.Request{Message: "q"})

	assert.True(t, env.Success)
	assert.Empty(t, se.history)
}
