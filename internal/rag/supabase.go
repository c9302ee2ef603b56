package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/supabase-community/postgrest-go"
)

// SupabaseConfig configures access to a Supabase project's REST interface.
type SupabaseConfig struct {
	URL           string
	ServiceKey    string
	MatchFunction string
	Table         string
	Threshold     float32
	Count         int
	Timeout       time.Duration
}

// SupabaseClient calls a pgvector match function over PostgREST and manages
// the passage table for ingestion.
type SupabaseClient struct {
	cfg SupabaseConfig
}

func NewSupabaseClient(cfg SupabaseConfig) (*SupabaseClient, error) {
	if cfg.URL == "" || cfg.ServiceKey == "" {
		return nil, errors.New("supabase url and service key are required")
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	if cfg.MatchFunction == "" {
		cfg.MatchFunction = "match_documents"
	}
	if cfg.Table == "" {
		cfg.Table = "documents"
	}
	if cfg.Count <= 0 {
		cfg.Count = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SupabaseClient{cfg: cfg}, nil
}

// ctxTransport binds every request of a postgrest client to ctx.
type ctxTransport struct {
	ctx context.Context
}

func (t ctxTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return http.DefaultTransport.RoundTrip(req.WithContext(t.ctx))
}

// rest returns a client scoped to one call. postgrest clients keep the last
// error on the client, so they are not shared between calls.
func (c *SupabaseClient) rest(ctx context.Context) *postgrest.Client {
	rc := postgrest.NewClient(c.cfg.URL+"/rest/v1", "", nil).
		SetApiKey(c.cfg.ServiceKey).
		SetAuthToken(c.cfg.ServiceKey)
	rc.Transport.Parent = ctxTransport{ctx: ctx}
	return rc
}

type matchRequest struct {
	QueryEmbedding []float32 `json:"query_embedding"`
	MatchThreshold float32   `json:"match_threshold"`
	MatchCount     int       `json:"match_count"`
}

type matchRow struct {
	Content    *string  `json:"content"`
	Similarity *float64 `json:"similarity"`
}

// Search implements Retriever.
func (c *SupabaseClient) Search(ctx context.Context, vector []float32) ([]Result, error) {
	rows, err := c.match(ctx, vector)
	if err != nil {
		slog.Error("supabase match failed", "function", c.cfg.MatchFunction, "error", err)
		return nil, &RetrievalError{Backend: "supabase", Err: err}
	}

	results := make([]Result, 0, len(rows))
	for _, r := range rows {
		if r.Content == nil || strings.TrimSpace(*r.Content) == "" {
			continue
		}
		var score float32
		if r.Similarity != nil {
			score = float32(*r.Similarity)
		}
		results = append(results, Result{Text: *r.Content, Score: score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > c.cfg.Count {
		results = results[:c.cfg.Count]
	}
	return results, nil
}

func (c *SupabaseClient) match(ctx context.Context, vector []float32) ([]matchRow, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	rc := c.rest(ctx)
	body := rc.Rpc(c.cfg.MatchFunction, "", matchRequest{
		QueryEmbedding: vector,
		MatchThreshold: c.cfg.Threshold,
		MatchCount:     c.cfg.Count,
	})
	if rc.ClientError != nil {
		return nil, fmt.Errorf("rpc %s: %w", c.cfg.MatchFunction, rc.ClientError)
	}

	// Rpc does not check the status code; PostgREST errors come back as an object.
	body = strings.TrimSpace(body)
	if strings.HasPrefix(body, "{") {
		var pe postgrest.ExecuteError
		if err := json.Unmarshal([]byte(body), &pe); err != nil || pe.Message == "" {
			return nil, fmt.Errorf("rpc %s: unexpected response: %.200s", c.cfg.MatchFunction, body)
		}
		return nil, fmt.Errorf("rpc %s: (%s) %s", c.cfg.MatchFunction, pe.Code, pe.Message)
	}

	var rows []matchRow
	if err := json.Unmarshal([]byte(body), &rows); err != nil {
		return nil, fmt.Errorf("rpc %s: decode response: %w", c.cfg.MatchFunction, err)
	}
	return rows, nil
}

type documentRow struct {
	Content   string    `json:"content"`
	Embedding []float32 `json:"embedding"`
}

// Clear deletes every row of the passage table.
func (c *SupabaseClient) Clear(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	// PostgREST refuses an unfiltered DELETE.
	_, _, err := c.rest(ctx).From(c.cfg.Table).Delete("minimal", "").Neq("id", "0").Execute()
	if err != nil {
		return fmt.Errorf("clear %s: %w", c.cfg.Table, err)
	}
	return nil
}

// Insert writes passages to the table in batches.
func (c *SupabaseClient) Insert(ctx context.Context, passages []Passage) error {
	const batch = 100
	for start := 0; start < len(passages); start += batch {
		end := min(start+batch, len(passages))
		rows := make([]documentRow, 0, end-start)
		for _, p := range passages[start:end] {
			rows = append(rows, documentRow{Content: p.Text, Embedding: p.Embedding})
		}
		if err := c.insert(ctx, rows); err != nil {
			return fmt.Errorf("insert rows %d-%d: %w", start, end, err)
		}
	}
	return nil
}

func (c *SupabaseClient) insert(ctx context.Context, rows []documentRow) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	_, _, err := c.rest(ctx).From(c.cfg.Table).Insert(rows, false, "", "minimal", "").Execute()
	return err
}
