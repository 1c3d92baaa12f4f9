package lemma

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds the number of remembered word lemmas.
const DefaultCacheSize = 50000

// Client calls a lemmatization service. The service accepts
// {"words": [...]} and answers {"lemmas": {"word": "lemma"}}.
type Client struct {
	BaseURL string
	APIKey  string

	HTTPClient *http.Client
	CacheSize  int

	once  sync.Once
	cache *lru.Cache[string, string]
}

type lemmaRequest struct {
	Words []string `json:"words"`
}

type lemmaResponse struct {
	Lemmas map[string]string `json:"lemmas"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Lemmas returns the lemma of every word. Words the service does not
// know map to themselves. Cached words are not sent again.
func (c *Client) Lemmas(ctx context.Context, words []string) (map[string]string, error) {
	if c.BaseURL == "" {
		return nil, errors.New("lemma: base URL required")
	}
	c.once.Do(c.initCache)

	out := make(map[string]string, len(words))
	var missing []string
	for _, w := range words {
		if _, done := out[w]; done {
			continue
		}
		if l, ok := c.cache.Get(w); ok {
			out[w] = l
			continue
		}
		out[w] = w
		missing = append(missing, w)
	}
	if len(missing) == 0 {
		return out, nil
	}

	payload, err := c.send(ctx, missing)
	if err != nil {
		return nil, err
	}
	for _, w := range missing {
		l, ok := payload.Lemmas[w]
		if !ok || l == "" {
			l = w
		}
		out[w] = l
		c.cache.Add(w, l)
	}
	return out, nil
}

func (c *Client) send(ctx context.Context, words []string) (*lemmaResponse, error) {
	reqBody, err := json.Marshal(lemmaRequest{Words: words})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "lemma request")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, errors.Newf("lemma: unexpected status %d", resp.StatusCode)
	}
	var payload lemmaResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errors.Wrap(err, "decode lemma response")
	}
	if payload.Error != nil {
		return nil, errors.Newf("lemma error: %s", payload.Error.Message)
	}
	return &payload, nil
}

func (c *Client) initCache() {
	size := c.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}
	c.cache, _ = lru.New[string, string](size)
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 5 * time.Second}
}
