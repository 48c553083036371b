package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/aesop-bio/aesop/internal/llm"
)

type fakeLLM struct {
	out    string
	err    error
	called bool
}

func (f *fakeLLM) Complete(ctx context.Context, req llm.Request) (string, error) {
	f.called = true
	return f.out, f.err
}

func TestCannedResponses(t *testing.T) {
	cases := []struct {
		msg  string
		want string
	}{
		{"hi", greetingReply},
		{"Hello there!", greetingReply},
		{"thanks a lot", thanksReply},
		{"bye", farewellReply},
		{"what can you do?", capabilityReply},
		{"Tell me about yourself", capabilityReply},
	}
	for _, tc := range cases {
		got, ok := CannedResponse(tc.msg)
		assert.True(t, ok, "message %q", tc.msg)
		assert.Equal(t, tc.want, got, "message %q", tc.msg)
	}
}

func TestCannedResponseLengthCaps(t *testing.T) {
	// A long message starting with a greeting word is not small talk.
	_, ok := CannedResponse("hi, i wanted to ask about long term statin safety in elderly patients")
	assert.False(t, ok)

	_, ok = CannedResponse("thank you for the detailed synthesis, could you now extend it with more recent trials")
	assert.False(t, ok)
}

func TestRespondUsesCannedWithoutLLM(t *testing.T) {
	f := &fakeLLM{}
	r := New(f, zap.NewNop())

	got := r.Respond(context.Background(), "hello")
	assert.Equal(t, greetingReply, got)
	assert.False(t, f.called)
}

func TestRespondFallsThroughToLLM(t *testing.T) {
	f := &fakeLLM{out: "Sure, happy to talk about the weather."}
	r := New(f, zap.NewNop())

	got := r.Respond(context.Background(), "nice weather we are having today, right")
	assert.Equal(t, f.out, got)
	assert.True(t, f.called)
}

func TestRespondApologyOnLLMFailure(t *testing.T) {
	f := &fakeLLM{err: errors.New("llm down")}
	r := New(f, zap.NewNop())

	got := r.Respond(context.Background(), "nice weather we are having today, right")
	assert.Equal(t, FallbackApology, got)
}
