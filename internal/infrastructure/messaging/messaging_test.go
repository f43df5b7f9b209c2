package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/newtheatre/lumina/internal/domain"
	appErrors "github.com/newtheatre/lumina/pkg/errors"
)

type mockEventBridge struct {
	mu     sync.Mutex
	inputs []*eventbridge.PutEventsInput
	putFn  func(*eventbridge.PutEventsInput) (*eventbridge.PutEventsOutput, error)
}

func (m *mockEventBridge) PutEvents(_ context.Context, in *eventbridge.PutEventsInput, _ ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	m.mu.Lock()
	m.inputs = append(m.inputs, in)
	m.mu.Unlock()
	if m.putFn != nil {
		return m.putFn(in)
	}
	return &eventbridge.PutEventsOutput{}, nil
}

type countingRecorder struct {
	ok, failed int
}

func (r *countingRecorder) RecordEvent(_ string, err error) {
	if err != nil {
		r.failed++
		return
	}
	r.ok++
}

func TestPublishBatches(t *testing.T) {
	client := &mockEventBridge{}
	rec := &countingRecorder{}
	p := NewEventBridgePublisher(client, "lumina-bus", "", time.Second, rec, zap.NewNop())

	events := make([]domain.Event, 23)
	for i := range events {
		events[i] = domain.NewEvent(domain.EventSubmissionCreated, fmt.Sprint(i), map[string]interface{}{"number": i})
	}
	require.NoError(t, p.Publish(context.Background(), events...))

	require.Len(t, client.inputs, 3)
	assert.Len(t, client.inputs[0].Entries, 10)
	assert.Len(t, client.inputs[2].Entries, 3)
	assert.Equal(t, 23, rec.ok)

	entry := client.inputs[0].Entries[0]
	assert.Equal(t, "lumina-bus", aws.ToString(entry.EventBusName))
	assert.Equal(t, "lumina", aws.ToString(entry.Source))
	assert.Equal(t, domain.EventSubmissionCreated, aws.ToString(entry.DetailType))

	var detail domain.Event
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(entry.Detail)), &detail))
	assert.Equal(t, events[0].ID, detail.ID)
	assert.Equal(t, "0", detail.Subject)
}

func TestPublishFailures(t *testing.T) {
	t.Run("CallFails", func(t *testing.T) {
		client := &mockEventBridge{putFn: func(*eventbridge.PutEventsInput) (*eventbridge.PutEventsOutput, error) {
			return nil, errors.New("connection reset")
		}}
		rec := &countingRecorder{}
		p := NewEventBridgePublisher(client, "", "", 0, rec, zap.NewNop())

		err := p.Publish(context.Background(), domain.NewEvent(domain.EventMemberRegistered, "fred_bloggs", nil))
		assert.True(t, appErrors.IsRetryable(err))
		assert.Equal(t, 1, rec.failed)
	})

	t.Run("EntryRejected", func(t *testing.T) {
		client := &mockEventBridge{putFn: func(in *eventbridge.PutEventsInput) (*eventbridge.PutEventsOutput, error) {
			return &eventbridge.PutEventsOutput{
				FailedEntryCount: 1,
				Entries: []types.PutEventsResultEntry{
					{EventId: aws.String("1")},
					{ErrorCode: aws.String("InternalFailure"), ErrorMessage: aws.String("boom")},
				},
			}, nil
		}}
		p := NewEventBridgePublisher(client, "", "", 0, nil, zap.NewNop())

		err := p.Publish(context.Background(),
			domain.NewEvent(domain.EventMemberRegistered, "a", nil),
			domain.NewEvent(domain.EventMemberRegistered, "b", nil))
		assert.Equal(t, appErrors.ErrorTypeUnavailable, appErrors.TypeOf(err))
	})

	t.Run("Nothing", func(t *testing.T) {
		client := &mockEventBridge{}
		p := NewEventBridgePublisher(client, "", "", 0, nil, zap.NewNop())
		require.NoError(t, p.Publish(context.Background()))
		assert.Empty(t, client.inputs)
	})
}

func TestEventMailer(t *testing.T) {
	client := &mockEventBridge{}
	m, err := NewEventMailer(client, "lumina-bus", "lumina", `"New Theatre Alumni Network" <nthp@wjdp.uk>`, time.Second, zap.NewNop())
	require.NoError(t, err)

	body, err := RenderLogin("Fred Bloggs", "https://nthp-web.pages.dev/auth?token=abc")
	require.NoError(t, err)
	require.NoError(t, m.Send(context.Background(), Email{
		To:      []mail.Address{{Name: "Fred Bloggs", Address: "fred.bloggs@gmail.com"}},
		Subject: SubjectLogin,
		Body:    body,
	}))

	require.Len(t, client.inputs, 1)
	entry := client.inputs[0].Entries[0]
	assert.Equal(t, DetailTypeEmailRequested, aws.ToString(entry.DetailType))

	var detail emailDetail
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(entry.Detail)), &detail))
	assert.Equal(t, `"New Theatre Alumni Network" <nthp@wjdp.uk>`, detail.From)
	assert.Equal(t, []string{`"Fred Bloggs" <fred.bloggs@gmail.com>`}, detail.To)
	assert.Equal(t, SubjectLogin, detail.Subject)
	assert.Contains(t, detail.Text, "https://nthp-web.pages.dev/auth?token=abc")

	assert.Error(t, m.Send(context.Background(), Email{Subject: "x"}))

	_, err = NewEventMailer(client, "b", "s", "not an address", 0, zap.NewNop())
	assert.True(t, appErrors.IsValidation(err))
}

func TestRender(t *testing.T) {
	body, err := RenderRegistration("<b>Fred</b>", "https://example.org/auth?token=a&b=c")
	require.NoError(t, err)

	assert.Contains(t, body.Text, "<b>Fred</b>")
	assert.Contains(t, body.Text, "https://example.org/auth?token=a&b=c")
	assert.NotContains(t, body.HTML, "<b>Fred</b>")
	assert.Contains(t, body.HTML, "&lt;b&gt;Fred&lt;/b&gt;")
	assert.Contains(t, body.HTML, `href="https://example.org/auth?token=a&amp;b=c"`)
}
