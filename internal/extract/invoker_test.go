package extract

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joseph-ayodele/clinicalgraph/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fragmentJSON = `{
  "patient_nodes": [{"id": "P7", "name": "Unknown", "age": -1, "gender": "Male", "ethnicity": "Malay"}],
  "medication_nodes": [], "condition_nodes": [], "encounter_nodes": [], "lab_nodes": [],
  "prescribed_edges": [], "condition_edges": [], "encounter_edges": [], "lab_result_edges": [],
  "confidence": 4, "justification": "sparse note"
}`

type fakeProvider struct {
	calls   atomic.Int32
	content string
	err     error
	block   bool
	lastReq llm.ChatRequest
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	f.calls.Add(1)
	f.lastReq = req
	if f.block {
		<-ctx.Done()
		return llm.ChatResponse{}, fmt.Errorf("chat: %w", ctx.Err())
	}
	if f.err != nil {
		return llm.ChatResponse{}, f.err
	}
	return llm.ChatResponse{Model: "fake", Content: []byte(f.content)}, nil
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestExtract_Success(t *testing.T) {
	p := &fakeProvider{content: "```json\n" + fragmentJSON + "\n```"}
	inv := NewInvoker(p)

	frag, err := inv.Extract(context.Background(), "72M with ...", "P7")
	require.NoError(t, err)
	require.Len(t, frag.Patients, 1)
	assert.Equal(t, "P7", frag.Patients[0].ID)
	assert.Equal(t, int32(1), p.calls.Load())
	assert.Contains(t, p.lastReq.System, "P7")
	assert.Equal(t, "72M with ...", p.lastReq.User)
	assert.NotNil(t, p.lastReq.Schema)
}

func TestExtract_BadIdentifierShortCircuits(t *testing.T) {
	for _, id := range []string{"", "P", "PUnknown", "PRedacted", "P 12", "P1/../2"} {
		t.Run(fmt.Sprintf("%q", id), func(t *testing.T) {
			p := &fakeProvider{content: fragmentJSON}
			_, err := NewInvoker(p).Extract(context.Background(), "note", id)

			kind, ok := KindOf(err)
			require.True(t, ok)
			assert.Equal(t, KindInvalidIdentifier, kind)
			assert.Zero(t, p.calls.Load(), "no request may be issued")
		})
	}
}

func TestExtract_Classification(t *testing.T) {
	tests := []struct {
		name string
		p    *fakeProvider
		opts []Option
		want Kind
	}{
		{
			name: "deadline",
			p:    &fakeProvider{block: true},
			opts: []Option{WithTimeout(20 * time.Millisecond)},
			want: KindTimeout,
		},
		{
			name: "net timeout",
			p:    &fakeProvider{err: fmt.Errorf("post: %w", timeoutErr{})},
			want: KindTimeout,
		},
		{
			name: "timeout wording",
			p:    &fakeProvider{err: errors.New("read tcp: Read Timeout")},
			want: KindTimeout,
		},
		{
			name: "connection refused",
			p:    &fakeProvider{err: errors.New("dial tcp 127.0.0.1:11434: connect: connection refused")},
			want: KindSystem,
		},
		{
			name: "status error",
			p:    &fakeProvider{err: &llm.StatusError{Code: 500, Body: "oom"}},
			want: KindSystem,
		},
		{
			name: "schema violation",
			p:    &fakeProvider{content: `{"patient_nodes": "nope"}`},
			want: KindParse,
		},
		{
			name: "not json",
			p:    &fakeProvider{content: "I could not find a patient."},
			want: KindParse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frag, err := NewInvoker(tt.p, tt.opts...).Extract(context.Background(), "note", "P1")
			require.Error(t, err)
			assert.Nil(t, frag)

			var f *Failure
			require.ErrorAs(t, err, &f)
			assert.Equal(t, tt.want, f.Kind)
			assert.NotEmpty(t, f.Detail)
			assert.Equal(t, int32(1), tt.p.calls.Load())
		})
	}
}

func TestExtract_RateLimited(t *testing.T) {
	p := &fakeProvider{content: fragmentJSON}
	inv := NewInvoker(p, WithRequestsPerMinute(60_000))

	for i := 0; i < 3; i++ {
		_, err := inv.Extract(context.Background(), "note", "P7")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), p.calls.Load())
}

func TestDeriveIdentifier(t *testing.T) {
	assert.Equal(t, "P12", DeriveIdentifier("12"))
	assert.Equal(t, "P12", DeriveIdentifier(" P12 "))
	assert.Equal(t, "", DeriveIdentifier("  "))
	assert.True(t, ValidIdentifier(DeriveIdentifier("0042")))
	assert.False(t, ValidIdentifier(DeriveIdentifier("")))
	assert.False(t, ValidIdentifier(DeriveIdentifier("Unknown")))
}
