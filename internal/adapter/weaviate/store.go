package weaviate

import (
	"context"
	"fmt"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"quarry/ingest/internal/enrich"
	"quarry/ingest/internal/vector"
)

// chunkNamespace seeds deterministic object IDs: the same content hash always
// maps to the same Weaviate object, so a replayed write lands on the existing
// object instead of creating a second copy.
var chunkNamespace = uuid.MustParse("8e2d6a4c-1f37-4aa9-9d3e-5c0b7de4a1b2")

// StoredChunk is the (vector, payload) pair handed to the vector store.
type StoredChunk struct {
	Content string
	Vector  []float32
	Payload enrich.Payload
}

// Result is one ranked hit from a similarity query.
type Result struct {
	Content string
	Score   float32
	Payload enrich.Payload
}

// Filter restricts a similarity query. Zero values mean unrestricted.
type Filter struct {
	Category string
	Tags     []string
	From     time.Time
	To       time.Time
}

type Store struct {
	client *weaviate.Client
}

func NewStore(client *weaviate.Client) *Store {
	return &Store{client: client}
}

// ObjectID returns the deterministic store ID for a content hash.
func ObjectID(contentHash string) string {
	return uuid.NewSHA1(chunkNamespace, []byte(contentHash)).String()
}

// UpsertChunk writes one chunk. Batched writes replace objects with the same
// ID, which combined with ObjectID makes the call idempotent.
func (s *Store) UpsertChunk(ctx context.Context, chunk StoredChunk) error {
	obj := &models.Object{
		Class:  vector.ClassName,
		ID:     strfmt.UUID(ObjectID(chunk.Payload.ContentHash)),
		Vector: chunk.Vector,
		Properties: map[string]interface{}{
			"content":     chunk.Content,
			"contentHash": chunk.Payload.ContentHash,
			"category":    chunk.Payload.Category,
			"tags":        chunk.Payload.Tags,
			"sourceUrl":   chunk.Payload.SourceURL,
			"sourceId":    chunk.Payload.SourceID,
			"author":      chunk.Payload.Author,
			"score":       chunk.Payload.Score,
			"chunkIndex":  chunk.Payload.ChunkIndex,
			"totalChunks": chunk.Payload.TotalChunks,
			"createdAt":   chunk.Payload.CreatedAt.Format(time.RFC3339),
		},
	}

	res, err := s.client.Batch().ObjectsBatcher().WithObjects(obj).Do(ctx)
	if err != nil {
		return err
	}
	for _, r := range res {
		if r.Result != nil && r.Result.Errors != nil && len(r.Result.Errors.Error) > 0 {
			return fmt.Errorf("store chunk: %s", r.Result.Errors.Error[0].Message)
		}
	}
	return nil
}

// Query runs a filtered nearest-vector search and returns the top hits with
// their payloads.
func (s *Store) Query(ctx context.Context, vec []float32, filter Filter, topK int) ([]Result, error) {
	near := s.client.GraphQL().NearVectorArgBuilder().WithVector(vec)

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "contentHash"},
		{Name: "category"},
		{Name: "tags"},
		{Name: "sourceUrl"},
		{Name: "sourceId"},
		{Name: "author"},
		{Name: "score"},
		{Name: "chunkIndex"},
		{Name: "totalChunks"},
		{Name: "createdAt"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
	}

	query := s.client.GraphQL().Get().
		WithClassName(vector.ClassName).
		WithNearVector(near).
		WithLimit(topK).
		WithFields(fields...)

	if where := buildWhere(filter); where != nil {
		query = query.WithWhere(where)
	}

	res, err := query.Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors[0].Message)
	}

	var results []Result
	for _, props := range classObjects(res.Data) {
		r := Result{Payload: payloadFromProps(props)}
		if content, ok := props["content"].(string); ok {
			r.Content = content
		}
		if additional, ok := props["_additional"].(map[string]interface{}); ok {
			if distance, ok := additional["distance"].(float64); ok {
				r.Score = float32(1 - distance)
			}
		}
		results = append(results, r)
	}
	return results, nil
}

// ScanContentHashes pages through every stored chunk and returns the content
// hashes, so the dedup index can be re-derived from the store itself when no
// hash log is configured.
func (s *Store) ScanContentHashes(ctx context.Context, pageSize int) ([]string, error) {
	var hashes []string
	offset := 0

	for {
		res, err := s.client.GraphQL().Get().
			WithClassName(vector.ClassName).
			WithFields(graphql.Field{Name: "contentHash"}).
			WithLimit(pageSize).
			WithOffset(offset).
			Do(ctx)
		if err != nil {
			return nil, err
		}
		if len(res.Errors) > 0 {
			return nil, fmt.Errorf("graphql error: %v", res.Errors[0].Message)
		}

		objects := classObjects(res.Data)
		for _, props := range objects {
			if h, ok := props["contentHash"].(string); ok && h != "" {
				hashes = append(hashes, h)
			}
		}

		if len(objects) < pageSize {
			return hashes, nil
		}
		offset += pageSize
	}
}

func buildWhere(filter Filter) *filters.WhereBuilder {
	var operands []*filters.WhereBuilder

	if filter.Category != "" {
		operands = append(operands, filters.Where().
			WithPath([]string{"category"}).
			WithOperator(filters.Equal).
			WithValueString(filter.Category))
	}
	if len(filter.Tags) > 0 {
		operands = append(operands, filters.Where().
			WithPath([]string{"tags"}).
			WithOperator(filters.ContainsAny).
			WithValueString(filter.Tags...))
	}
	if !filter.From.IsZero() {
		operands = append(operands, filters.Where().
			WithPath([]string{"createdAt"}).
			WithOperator(filters.GreaterThanEqual).
			WithValueDate(filter.From))
	}
	if !filter.To.IsZero() {
		operands = append(operands, filters.Where().
			WithPath([]string{"createdAt"}).
			WithOperator(filters.LessThanEqual).
			WithValueDate(filter.To))
	}

	switch len(operands) {
	case 0:
		return nil
	case 1:
		return operands[0]
	}
	return filters.Where().WithOperator(filters.And).WithOperands(operands)
}

func classObjects(data map[string]models.JSONObject) []map[string]interface{} {
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	raw, ok := get[vector.ClassName].([]interface{})
	if !ok {
		return nil
	}

	var objects []map[string]interface{}
	for _, o := range raw {
		if props, ok := o.(map[string]interface{}); ok {
			objects = append(objects, props)
		}
	}
	return objects
}

func payloadFromProps(props map[string]interface{}) enrich.Payload {
	var p enrich.Payload
	if v, ok := props["contentHash"].(string); ok {
		p.ContentHash = v
	}
	if v, ok := props["category"].(string); ok {
		p.Category = v
	}
	if v, ok := props["sourceUrl"].(string); ok {
		p.SourceURL = v
	}
	if v, ok := props["sourceId"].(string); ok {
		p.SourceID = v
	}
	if v, ok := props["author"].(string); ok {
		p.Author = v
	}
	if v, ok := props["score"].(float64); ok {
		p.Score = int(v)
	}
	if v, ok := props["chunkIndex"].(float64); ok {
		p.ChunkIndex = int(v)
	}
	if v, ok := props["totalChunks"].(float64); ok {
		p.TotalChunks = int(v)
	}
	if v, ok := props["tags"].([]interface{}); ok {
		for _, tag := range v {
			if s, ok := tag.(string); ok {
				p.Tags = append(p.Tags, s)
			}
		}
	}
	if v, ok := props["createdAt"].(string); ok {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			p.CreatedAt = ts
		}
	}
	return p
}
