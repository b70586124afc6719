// Package edgar provides a minimal client for the SEC EDGAR JSON endpoints.
package edgar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"edgar-mcp/internal/identity"
)

// ErrNotFound is returned when a ticker or CIK is not known to EDGAR.
var ErrNotFound = errors.New("edgar: company not found")

const tickersKey = "company_tickers"

// Client is a minimal HTTP client for EDGAR company data. The User-Agent of
// every request is the identity carried by the request context; EDGAR
// rejects anonymous traffic.
type Client struct {
	BaseURL  string
	DataURL  string
	HTTP     *http.Client
	CacheTTL time.Duration

	tickers *Cache[[]Ticker]
	fetches singleflight.Group
}

// New returns a new client. If httpClient is nil, a default with 15s timeout is used.
func New(baseURL, dataURL string, httpClient *http.Client, cacheTTL time.Duration) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		DataURL:  strings.TrimRight(dataURL, "/"),
		HTTP:     httpClient,
		CacheTTL: cacheTTL,
		tickers:  NewCache[[]Ticker](),
	}
}

// Ticker maps an exchange ticker to a registrant.
type Ticker struct {
	CIK    string `json:"cik"`
	Ticker string `json:"ticker"`
	Title  string `json:"title"`
}

// Company is a normalized view of a registrant's submissions document.
type Company struct {
	CIK                  string   `json:"cik"`
	Name                 string   `json:"name"`
	EntityType           string   `json:"entityType,omitempty"`
	SIC                  string   `json:"sic,omitempty"`
	SICDescription       string   `json:"sicDescription,omitempty"`
	Tickers              []string `json:"tickers"`
	Exchanges            []string `json:"exchanges"`
	FiscalYearEnd        string   `json:"fiscalYearEnd,omitempty"`
	StateOfIncorporation string   `json:"stateOfIncorporation,omitempty"`
	Filings              []Filing `json:"-"`
}

// Filing is one entry of a registrant's recent filings.
type Filing struct {
	AccessionNumber string `json:"accessionNumber"`
	Form            string `json:"form"`
	FilingDate      string `json:"filingDate"`
	ReportDate      string `json:"reportDate,omitempty"`
	Description     string `json:"description,omitempty"`
	URL             string `json:"url"`
}

// StatusError reports a non-2xx EDGAR response.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("edgar: %s returned status %d", e.URL, e.Status)
}

// Tickers returns the ticker map, served from cache while fresh. Concurrent
// misses share one upstream fetch; each caller still returns as soon as its
// own ctx ends.
func (c *Client) Tickers(ctx context.Context) ([]Ticker, error) {
	if v, ok := c.tickers.Get(tickersKey); ok {
		return v, nil
	}
	ch := c.fetches.DoChan(tickersKey, func() (any, error) {
		return c.fetchTickers(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.([]Ticker), nil
	}
}

func (c *Client) fetchTickers(ctx context.Context) ([]Ticker, error) {
	var raw map[string]struct {
		CIK    int64  `json:"cik_str"`
		Ticker string `json:"ticker"`
		Title  string `json:"title"`
	}
	if err := c.getJSON(ctx, c.BaseURL+"/files/company_tickers.json", &raw); err != nil {
		return nil, err
	}
	keys := make([]int, 0, len(raw))
	for k := range raw {
		if i, err := strconv.Atoi(k); err == nil {
			keys = append(keys, i)
		}
	}
	sort.Ints(keys)
	out := make([]Ticker, 0, len(keys))
	for _, k := range keys {
		r := raw[strconv.Itoa(k)]
		out = append(out, Ticker{CIK: PadCIK(strconv.FormatInt(r.CIK, 10)), Ticker: r.Ticker, Title: r.Title})
	}
	c.tickers.Set(tickersKey, out, c.CacheTTL)
	return out, nil
}

// ResolveCIK turns a ticker or a numeric CIK into a zero-padded CIK.
func (c *Client) ResolveCIK(ctx context.Context, identifier string) (string, error) {
	id := strings.TrimSpace(identifier)
	if id == "" {
		return "", ErrNotFound
	}
	if isDigits(id) {
		return PadCIK(id), nil
	}
	tickers, err := c.Tickers(ctx)
	if err != nil {
		return "", err
	}
	for _, t := range tickers {
		if strings.EqualFold(t.Ticker, id) {
			return t.CIK, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Company fetches the submissions document for a ticker or CIK.
func (c *Client) Company(ctx context.Context, identifier string) (*Company, error) {
	cik, err := c.ResolveCIK(ctx, identifier)
	if err != nil {
		return nil, err
	}
	var doc submissions
	if err := c.getJSON(ctx, c.DataURL+"/submissions/CIK"+cik+".json", &doc); err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Status == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, identifier)
		}
		return nil, err
	}
	return doc.normalize(cik), nil
}

// Search matches query against tickers and company names, case-insensitively.
// Exact ticker matches come first.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Ticker, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, nil
	}
	tickers, err := c.Tickers(ctx)
	if err != nil {
		return nil, err
	}
	var exact, partial []Ticker
	for _, t := range tickers {
		switch {
		case strings.ToLower(t.Ticker) == q:
			exact = append(exact, t)
		case strings.Contains(strings.ToLower(t.Ticker), q), strings.Contains(strings.ToLower(t.Title), q):
			partial = append(partial, t)
		}
	}
	out := append(exact, partial...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if id := identity.FromContext(ctx); !id.Empty() {
		req.Header.Set("User-Agent", string(id))
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{URL: url, Status: resp.StatusCode}
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("edgar: decode %s: %w", url, err)
	}
	return nil
}

type submissions struct {
	CIK                  string   `json:"cik"`
	Name                 string   `json:"name"`
	EntityType           string   `json:"entityType"`
	SIC                  string   `json:"sic"`
	SICDescription       string   `json:"sicDescription"`
	Tickers              []string `json:"tickers"`
	Exchanges            []string `json:"exchanges"`
	FiscalYearEnd        string   `json:"fiscalYearEnd"`
	StateOfIncorporation string   `json:"stateOfIncorporation"`
	Filings              struct {
		Recent struct {
			AccessionNumber       []string `json:"accessionNumber"`
			FilingDate            []string `json:"filingDate"`
			ReportDate            []string `json:"reportDate"`
			Form                  []string `json:"form"`
			PrimaryDocument       []string `json:"primaryDocument"`
			PrimaryDocDescription []string `json:"primaryDocDescription"`
		} `json:"recent"`
	} `json:"filings"`
}

// normalize converts the columnar recent-filings block into Filings.
func (s submissions) normalize(cik string) *Company {
	r := s.Filings.Recent
	filings := make([]Filing, 0, len(r.AccessionNumber))
	for i, acc := range r.AccessionNumber {
		doc := at(r.PrimaryDocument, i)
		filings = append(filings, Filing{
			AccessionNumber: acc,
			Form:            at(r.Form, i),
			FilingDate:      at(r.FilingDate, i),
			ReportDate:      at(r.ReportDate, i),
			Description:     at(r.PrimaryDocDescription, i),
			URL:             archiveURL(cik, acc, doc),
		})
	}
	return &Company{
		CIK:                  cik,
		Name:                 s.Name,
		EntityType:           s.EntityType,
		SIC:                  s.SIC,
		SICDescription:       s.SICDescription,
		Tickers:              nonNil(s.Tickers),
		Exchanges:            nonNil(s.Exchanges),
		FiscalYearEnd:        s.FiscalYearEnd,
		StateOfIncorporation: s.StateOfIncorporation,
		Filings:              filings,
	}
}

// PadCIK left-pads a numeric CIK to ten digits.
func PadCIK(cik string) string {
	cik = strings.TrimLeft(cik, "0")
	if len(cik) >= 10 {
		return cik
	}
	return strings.Repeat("0", 10-len(cik)) + cik
}

func archiveURL(cik, accession, doc string) string {
	base := "https://www.sec.gov/Archives/edgar/data/" + strings.TrimLeft(cik, "0") + "/" + strings.ReplaceAll(accession, "-", "")
	if doc == "" {
		return base + "/"
	}
	return base + "/" + doc
}

func at(vals []string, i int) string {
	if i < len(vals) {
		return vals[i]
	}
	return ""
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
