package weaviate_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	adapter "quarry/ingest/internal/adapter/weaviate"
	"quarry/ingest/internal/enrich"
)

func mockWeaviate(t *testing.T, handler http.HandlerFunc) (*weaviate.Client, *httptest.Server) {
	ts := httptest.NewServer(handler)
	cfg := weaviate.Config{Host: ts.Listener.Addr().String(), Scheme: "http"}
	client, err := weaviate.NewClient(cfg)
	assert.NoError(t, err)
	return client, ts
}

func TestObjectID_Deterministic(t *testing.T) {
	assert.Equal(t, adapter.ObjectID("h1"), adapter.ObjectID("h1"))
	assert.NotEqual(t, adapter.ObjectID("h1"), adapter.ObjectID("h2"))
}

func TestStore_UpsertChunk(t *testing.T) {
	var gotBody map[string]interface{}
	client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/meta" {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"version": "1.33.0"}`))
			return
		}
		assert.Equal(t, "/v1/batch/objects", r.URL.Path)
		assert.Equal(t, "POST", r.Method)
		json.NewDecoder(r.Body).Decode(&gotBody)

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode([]map[string]interface{}{{"id": "1"}})
	})
	defer ts.Close()

	store := adapter.NewStore(client)
	err := store.UpsertChunk(context.Background(), adapter.StoredChunk{
		Content: "test content",
		Vector:  []float32{0.1, 0.2},
		Payload: enrich.Payload{
			Category:    "community",
			Tags:        []string{"prompting"},
			SourceURL:   "http://forum.example/p1",
			SourceID:    "p1",
			ChunkIndex:  0,
			TotalChunks: 1,
			ContentHash: "h1",
			CreatedAt:   time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC),
		},
	})
	require.NoError(t, err)

	objects := gotBody["objects"].([]interface{})
	require.Len(t, objects, 1)
	obj := objects[0].(map[string]interface{})
	assert.Equal(t, "KnowledgeChunk", obj["class"])
	assert.Equal(t, adapter.ObjectID("h1"), obj["id"])

	props := obj["properties"].(map[string]interface{})
	assert.Equal(t, "test content", props["content"])
	assert.Equal(t, "h1", props["contentHash"])
	assert.Equal(t, "community", props["category"])
}

func TestStore_Query(t *testing.T) {
	client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/meta" {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"version": "1.33.0"}`))
			return
		}
		assert.Equal(t, "/v1/graphql", r.URL.Path)

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"Get": map[string]interface{}{
					"KnowledgeChunk": []interface{}{
						map[string]interface{}{
							"content":     "stored chunk text",
							"contentHash": "h1",
							"category":    "repository",
							"tags":        []interface{}{"docker", "build"},
							"sourceUrl":   "http://repo.example/readme",
							"sourceId":    "r1",
							"chunkIndex":  float64(1),
							"totalChunks": float64(3),
							"createdAt":   "2025-03-04T00:00:00Z",
							"_additional": map[string]interface{}{"distance": 0.25},
						},
					},
				},
			},
		})
	})
	defer ts.Close()

	store := adapter.NewStore(client)
	results, err := store.Query(context.Background(), []float32{0.1}, adapter.Filter{
		Category: "repository",
		Tags:     []string{"docker"},
		From:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, "stored chunk text", results[0].Content)
	assert.InDelta(t, 0.75, results[0].Score, 1e-6)
	assert.Equal(t, "repository", results[0].Payload.Category)
	assert.Equal(t, []string{"docker", "build"}, results[0].Payload.Tags)
	assert.Equal(t, 1, results[0].Payload.ChunkIndex)
	assert.Equal(t, 3, results[0].Payload.TotalChunks)
}

func TestStore_ScanContentHashes(t *testing.T) {
	pages := [][]string{
		{"h1", "h2"},
		{"h3"},
	}
	call := 0
	client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/meta" {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"version": "1.33.0"}`))
			return
		}
		require.Less(t, call, len(pages))

		var objects []interface{}
		for _, h := range pages[call] {
			objects = append(objects, map[string]interface{}{"contentHash": h})
		}
		call++

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"Get": map[string]interface{}{"KnowledgeChunk": objects},
			},
		})
	})
	defer ts.Close()

	store := adapter.NewStore(client)
	hashes, err := store.ScanContentHashes(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"h1", "h2", "h3"}, hashes)
	assert.Equal(t, 2, call)
}

func TestStore_GraphQLError(t *testing.T) {
	client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/meta" {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"version": "1.33.0"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"errors": []map[string]interface{}{{"message": "class not found"}},
		})
	})
	defer ts.Close()

	store := adapter.NewStore(client)
	_, err := store.Query(context.Background(), []float32{0.1}, adapter.Filter{}, 5)
	assert.ErrorContains(t, err, "class not found")
}
