// Package ingest fetches regulatory documents from the Federal Register
// API: paginated metadata listings plus per-document full text, with rate
// limiting and retry on transient failures.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/openregs/regrag/internal/config"
)

// IngestionError reports a failure to fetch from the document source.
type IngestionError struct {
	Page int    // 1-based listing page, 0 for non-listing requests
	URL  string
	Err  error
}

func (e *IngestionError) Error() string {
	if e.Page > 0 {
		return fmt.Sprintf("ingestion: page %d (%s): %v", e.Page, e.URL, e.Err)
	}
	return fmt.Sprintf("ingestion: %s: %v", e.URL, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }

// DocumentRef is the listing metadata for one document, enough to decide
// whether to fetch its full text.
type DocumentRef struct {
	DocNumber       string
	Title           string
	PublicationDate time.Time
	AgencySlug      string
	AgencyName      string
	RawTextURL      string
	HTMLURL         string
}

// Checksum returns the sha256 hex digest used for change detection.
func Checksum(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Client talks to a Federal Register compatible API. Safe for concurrent
// use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	perPage    int
	maxRetries int
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient builds a Client from configuration. httpClient and logger may
// be nil.
func NewClient(cfg config.SourceConfig, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	perPage := cfg.PerPage
	if perPage <= 0 {
		perPage = 100
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		perPage:    perPage,
		maxRetries: cfg.MaxRetries,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		logger:     logger,
	}
}

type listResponse struct {
	Count      int `json:"count"`
	TotalPages int `json:"total_pages"`
	Results    []struct {
		DocumentNumber  string `json:"document_number"`
		Title           string `json:"title"`
		PublicationDate string `json:"publication_date"`
		Agencies        []struct {
			Slug string `json:"slug"`
			Name string `json:"name"`
		} `json:"agencies"`
		RawTextURL string `json:"raw_text_url"`
		HTMLURL    string `json:"html_url"`
	} `json:"results"`
}

// FetchSince streams references for documents modified on or after since,
// walking listing pages in order. The refs channel is closed when the
// listing is exhausted or an error occurs; errc then carries at most one
// *IngestionError. A zero since lists without a modification cutoff.
func (c *Client) FetchSince(ctx context.Context, since time.Time) (<-chan DocumentRef, <-chan error) {
	params := url.Values{}
	if !since.IsZero() {
		params.Set("conditions[modification][gte]", since.Format("2006-01-02"))
	}
	return c.stream(ctx, params)
}

// FetchRange streams references for documents published inside [from, to],
// used for backfills.
func (c *Client) FetchRange(ctx context.Context, from, to time.Time) (<-chan DocumentRef, <-chan error) {
	params := url.Values{}
	if !from.IsZero() {
		params.Set("conditions[publication_date][gte]", from.Format("2006-01-02"))
	}
	if !to.IsZero() {
		params.Set("conditions[publication_date][lte]", to.Format("2006-01-02"))
	}
	return c.stream(ctx, params)
}

func (c *Client) stream(ctx context.Context, params url.Values) (<-chan DocumentRef, <-chan error) {
	refs := make(chan DocumentRef)
	errc := make(chan error, 1)

	go func() {
		defer close(refs)
		defer close(errc)

		for page := 1; ; page++ {
			parsed, err := c.fetchPage(ctx, params, page)
			if err != nil {
				errc <- err
				return
			}

			for _, r := range parsed.Results {
				ref := DocumentRef{
					DocNumber:  r.DocumentNumber,
					Title:      r.Title,
					RawTextURL: r.RawTextURL,
					HTMLURL:    r.HTMLURL,
				}
				if d, err := time.Parse("2006-01-02", r.PublicationDate); err == nil {
					ref.PublicationDate = d
				}
				if len(r.Agencies) > 0 {
					ref.AgencySlug = r.Agencies[0].Slug
					ref.AgencyName = r.Agencies[0].Name
				}

				select {
				case refs <- ref:
				case <-ctx.Done():
					errc <- ctx.Err()
					return
				}
			}

			if page >= parsed.TotalPages || len(parsed.Results) == 0 {
				return
			}
		}
	}()

	return refs, errc
}

func (c *Client) fetchPage(ctx context.Context, base url.Values, page int) (*listResponse, error) {
	params := url.Values{}
	for k, v := range base {
		params[k] = v
	}
	params.Set("per_page", strconv.Itoa(c.perPage))
	params.Set("page", strconv.Itoa(page))
	params.Set("order", "oldest")

	reqURL := c.baseURL + "/documents.json?" + params.Encode()

	var parsed listResponse
	err := c.withRetry(ctx, func() error {
		body, err := c.get(ctx, reqURL)
		if err != nil {
			return err
		}
		defer body.Close()
		if err := json.NewDecoder(body).Decode(&parsed); err != nil {
			return backoff.Permanent(fmt.Errorf("decoding listing: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, &IngestionError{Page: page, URL: reqURL, Err: err}
	}

	c.logger.Debug("fetched listing page",
		"page", page,
		"total_pages", parsed.TotalPages,
		"results", len(parsed.Results))
	return &parsed, nil
}

// FetchFullText downloads a document's plain text. When the raw text
// endpoint is missing or empty, it falls back to the HTML rendition and
// strips markup.
func (c *Client) FetchFullText(ctx context.Context, ref DocumentRef) (string, error) {
	if ref.RawTextURL != "" {
		text, err := c.fetchBody(ctx, ref.RawTextURL)
		if err == nil && strings.TrimSpace(text) != "" {
			return text, nil
		}
		if err != nil {
			c.logger.Debug("raw text fetch failed, trying html",
				"doc_number", ref.DocNumber,
				"error", err)
		}
	}

	if ref.HTMLURL == "" {
		return "", &IngestionError{
			URL: ref.RawTextURL,
			Err: fmt.Errorf("document %s has no usable text source", ref.DocNumber),
		}
	}

	html, err := c.fetchBody(ctx, ref.HTMLURL)
	if err != nil {
		return "", &IngestionError{URL: ref.HTMLURL, Err: err}
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", &IngestionError{URL: ref.HTMLURL, Err: fmt.Errorf("parsing html: %w", err)}
	}
	doc.Find("script, style, nav, header, footer").Remove()
	return strings.TrimSpace(doc.Find("body").Text()), nil
}

func (c *Client) fetchBody(ctx context.Context, reqURL string) (string, error) {
	var text string
	err := c.withRetry(ctx, func() error {
		body, err := c.get(ctx, reqURL)
		if err != nil {
			return err
		}
		defer body.Close()
		data, err := io.ReadAll(body)
		if err != nil {
			return err
		}
		text = string(data)
		return nil
	})
	if err != nil {
		return "", &IngestionError{URL: reqURL, Err: err}
	}
	return text, nil
}

// get performs one rate-limited request and classifies the status code for
// retry purposes.
func (c *Client) get(ctx context.Context, reqURL string) (io.ReadCloser, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, backoff.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json, text/plain, text/html")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err // network errors are retryable
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		err := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}
	return resp.Body, nil
}

func (c *Client) withRetry(ctx context.Context, op func() error) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.maxRetries)),
		ctx,
	)
	return backoff.Retry(op, policy)
}
