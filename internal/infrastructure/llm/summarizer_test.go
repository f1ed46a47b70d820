package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RegulatoryTracker/internal/config"
	"RegulatoryTracker/internal/domain"
)

type fakeChat struct {
	replies []reply
	calls   int
	input   []*schema.Message
}

type reply struct {
	content string
	err     error
}

func (f *fakeChat) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.input = input
	r := f.replies[min(f.calls, len(f.replies)-1)]
	f.calls++
	if r.err != nil {
		return nil, r.err
	}
	return schema.AssistantMessage(r.content, nil), nil
}

func (f *fakeChat) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

func newTestSummarizer(chat *fakeChat) *Summarizer {
	s := New(chat, config.ChatGPTConfig{RPM: 6000, Burst: 10})
	s.baseDelay = time.Millisecond
	return s
}

func TestSummarizeReturnsTrimmedContent(t *testing.T) {
	chat := &fakeChat{replies: []reply{{content: "  Recall of Product X.  "}}}
	s := newTestSummarizer(chat)

	out, err := s.Summarize(context.Background(), "body")
	require.NoError(t, err)
	assert.Equal(t, "Recall of Product X.", out)

	require.Len(t, chat.input, 2)
	assert.Equal(t, schema.System, chat.input[0].Role)
	assert.Equal(t, defaultSystemPrompt, chat.input[0].Content)
	assert.Equal(t, "body", chat.input[1].Content)
}

func TestSummarizeRetriesRateLimits(t *testing.T) {
	chat := &fakeChat{replies: []reply{
		{err: errors.New("status 429: Too Many Requests")},
		{err: errors.New("too many requests")},
		{content: "ok"},
	}}
	out, err := newTestSummarizer(chat).Summarize(context.Background(), "body")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, chat.calls)
}

func TestSummarizeErrorsAreUnavailable(t *testing.T) {
	cases := map[string]*fakeChat{
		"hard error":      {replies: []reply{{err: errors.New("401 unauthorized")}}},
		"empty":           {replies: []reply{{content: "  "}}},
		"retry exhausted": {replies: []reply{{err: errors.New("429")}}},
	}
	for name, chat := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := newTestSummarizer(chat).Summarize(context.Background(), "body")
			assert.ErrorIs(t, err, domain.ErrSummarizerUnavailable)
		})
	}
	assert.Equal(t, maxRetries+1, cases["retry exhausted"].calls)
	assert.Equal(t, 1, cases["hard error"].calls)
}

func TestSummarizeHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestSummarizer(&fakeChat{replies: []reply{{content: "x"}}}).Summarize(ctx, "body")
	assert.ErrorIs(t, err, domain.ErrSummarizerUnavailable)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewSummarizerRequiresKey(t *testing.T) {
	_, err := NewSummarizer(context.Background(), config.ChatGPTConfig{Model: "gpt-4o-mini"})
	assert.Error(t, err)
}
