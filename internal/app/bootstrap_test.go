package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/weaviate/weaviate/entities/models"

	"quarry/ingest/internal/retry"
	"quarry/ingest/internal/vector"
)

// fakeSchemaClient fails readiness for the first notReadyFor calls, then
// reports an existing, fully populated class.
type fakeSchemaClient struct {
	mu          sync.Mutex
	readyCalls  int
	notReadyFor int
}

func (f *fakeSchemaClient) Ready(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readyCalls++
	if f.readyCalls <= f.notReadyFor {
		return errors.New("connection refused")
	}
	return nil
}

func (f *fakeSchemaClient) ClassExists(_ context.Context, _ string) (bool, error) {
	return false, nil
}

func (f *fakeSchemaClient) CreateClass(_ context.Context, _ *models.Class) error {
	return nil
}

func (f *fakeSchemaClient) GetClass(_ context.Context, className string) (*models.Class, error) {
	return &models.Class{Class: className}, nil
}

func (f *fakeSchemaClient) AddProperty(_ context.Context, _ string, _ *models.Property) error {
	return nil
}

var _ vector.SchemaClient = (*fakeSchemaClient)(nil)

func TestEnsureSchemaWithRetry_RecoversAfterStartupLag(t *testing.T) {
	client := &fakeSchemaClient{notReadyFor: 2}

	err := ensureSchemaWithRetry(context.Background(), client,
		retry.NewPolicy(3, time.Millisecond))

	assert.NoError(t, err)
	assert.Equal(t, 3, client.readyCalls)
}

func TestEnsureSchemaWithRetry_GivesUpAfterBudget(t *testing.T) {
	client := &fakeSchemaClient{notReadyFor: 100}

	err := ensureSchemaWithRetry(context.Background(), client,
		retry.NewPolicy(3, time.Millisecond))

	assert.Error(t, err)
	assert.Equal(t, 3, client.readyCalls)
}
