package edgar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"edgar-mcp/internal/identity"
)

const tickersJSON = `{
 "0": {"cik_str": 320193, "ticker": "AAPL", "title": "Apple Inc."},
 "1": {"cik_str": 789019, "ticker": "MSFT", "title": "MICROSOFT CORP"},
 "2": {"cik_str": 1318605, "ticker": "TSLA", "title": "Tesla, Inc."},
 "3": {"cik_str": 320194, "ticker": "APLE", "title": "Apple Hospitality REIT"}
}`

const submissionsJSON = `{
 "cik": "320193", "name": "Apple Inc.", "entityType": "operating",
 "sic": "3571", "sicDescription": "Electronic Computers",
 "tickers": ["AAPL"], "exchanges": ["Nasdaq"], "fiscalYearEnd": "0926",
 "stateOfIncorporation": "CA",
 "filings": {"recent": {
  "accessionNumber": ["0000320193-24-000123", "0000320193-24-000100"],
  "filingDate": ["2024-11-01", "2024-08-02"],
  "reportDate": ["2024-09-28", "2024-06-29"],
  "form": ["10-K", "10-Q"],
  "primaryDocument": ["aapl-20240928.htm", "aapl-20240629.htm"],
  "primaryDocDescription": ["10-K", "10-Q"]
 }}
}`

type fakeEdgar struct {
	*httptest.Server
	tickerHits atomic.Int32
	agents     chan string
	// hold, when set, keeps the ticker response open until closed.
	hold chan struct{}
}

func newFakeEdgar(t *testing.T) *fakeEdgar {
	t.Helper()
	f := &fakeEdgar{agents: make(chan string, 16)}
	mux := http.NewServeMux()
	mux.HandleFunc("/files/company_tickers.json", func(w http.ResponseWriter, r *http.Request) {
		f.tickerHits.Add(1)
		f.agents <- r.Header.Get("User-Agent")
		if f.hold != nil {
			<-f.hold
		}
		_, _ = w.Write([]byte(tickersJSON))
	})
	mux.HandleFunc("/submissions/CIK0000320193.json", func(w http.ResponseWriter, r *http.Request) {
		f.agents <- r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(submissionsJSON))
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func TestCompanyByTicker(t *testing.T) {
	f := newFakeEdgar(t)
	c := New(f.URL, f.URL, f.Client(), time.Hour)
	ctx := identity.WithIdentity(context.Background(), "Jane Doe jane@example.com")

	co, err := c.Company(ctx, "aapl")
	if err != nil {
		t.Fatalf("company: %v", err)
	}
	if co.CIK != "0000320193" || co.Name != "Apple Inc." || len(co.Filings) != 2 {
		t.Fatalf("unexpected company %+v", co)
	}
	want := "https://www.sec.gov/Archives/edgar/data/320193/000032019324000123/aapl-20240928.htm"
	if co.Filings[0].URL != want || co.Filings[0].Form != "10-K" {
		t.Fatalf("unexpected filing %+v", co.Filings[0])
	}
	for i := 0; i < 2; i++ {
		if ua := <-f.agents; ua != "Jane Doe jane@example.com" {
			t.Fatalf("identity not sent as user agent: %q", ua)
		}
	}
}

func TestTickersAreCached(t *testing.T) {
	f := newFakeEdgar(t)
	c := New(f.URL, f.URL, f.Client(), time.Hour)
	for i := 0; i < 3; i++ {
		if _, err := c.Tickers(context.Background()); err != nil {
			t.Fatalf("tickers: %v", err)
		}
	}
	if hits := f.tickerHits.Load(); hits != 1 {
		t.Fatalf("expected one upstream fetch, got %d", hits)
	}
}

func TestConcurrentMissesShareOneFetch(t *testing.T) {
	f := newFakeEdgar(t)
	f.hold = make(chan struct{})
	c := New(f.URL, f.URL, f.Client(), time.Hour)

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tickers, err := c.Tickers(context.Background())
			if err == nil && len(tickers) != 4 {
				err = fmt.Errorf("expected 4 tickers, got %d", len(tickers))
			}
			errs <- err
		}()
	}
	for f.tickerHits.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(f.hold)
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}
	if hits := f.tickerHits.Load(); hits != 1 {
		t.Fatalf("expected one upstream fetch, got %d", hits)
	}
}

func TestSearch(t *testing.T) {
	f := newFakeEdgar(t)
	c := New(f.URL, f.URL, f.Client(), time.Hour)

	got, err := c.Search(context.Background(), "apple", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 2 || got[0].Ticker != "AAPL" || got[1].Ticker != "APLE" {
		t.Fatalf("unexpected results %+v", got)
	}

	got, _ = c.Search(context.Background(), "msft", 10)
	if len(got) != 1 || got[0].CIK != "0000789019" {
		t.Fatalf("unexpected results %+v", got)
	}

	got, _ = c.Search(context.Background(), "a", 1)
	if len(got) != 1 {
		t.Fatalf("limit not applied: %+v", got)
	}
}

func TestNotFound(t *testing.T) {
	f := newFakeEdgar(t)
	c := New(f.URL, f.URL, f.Client(), time.Hour)

	if _, err := c.Company(context.Background(), "ZZZZ"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown ticker, got %v", err)
	}
	if _, err := c.Company(context.Background(), "42"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown CIK, got %v", err)
	}
}

func TestCanceledContext(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	c := New(srv.URL, srv.URL, srv.Client(), time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	if _, err := c.Tickers(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPadCIK(t *testing.T) {
	for in, want := range map[string]string{"320193": "0000320193", "0000320193": "0000320193", "12345678901": "12345678901"} {
		if got := PadCIK(in); got != want {
			t.Fatalf("PadCIK(%q) = %q, want %q", in, got, want)
		}
	}
}
