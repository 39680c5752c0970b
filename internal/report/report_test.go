package report_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"quarry/ingest/internal/pipeline"
	"quarry/ingest/internal/report"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(topic string, body []byte) error {
	args := m.Called(topic, body)
	return args.Error(0)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReporter_PublishesSummary(t *testing.T) {
	mockPub := new(MockPublisher)
	mockPub.On("Publish", "ingest.report", mock.Anything).Return(nil)

	r := report.New(mockPub, testLogger())
	r.Publish(context.Background(), &pipeline.Summary{Processed: 5, Stored: 3, Duplicates: 2})

	mockPub.AssertExpectations(t)

	body := mockPub.Calls[0].Arguments.Get(1).([]byte)
	var got pipeline.Summary
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, 5, got.Processed)
	assert.Equal(t, 3, got.Stored)
	assert.Equal(t, 2, got.Duplicates)
}

func TestReporter_NilPublisherIsNop(t *testing.T) {
	r := report.New(nil, testLogger())
	r.Publish(context.Background(), &pipeline.Summary{Processed: 1})
}

func TestReporter_PublishFailureIsSwallowed(t *testing.T) {
	mockPub := new(MockPublisher)
	mockPub.On("Publish", "ingest.report", mock.Anything).Return(errors.New("nsqd down"))

	r := report.New(mockPub, testLogger())
	r.Publish(context.Background(), &pipeline.Summary{})

	mockPub.AssertExpectations(t)
}
