// Package tools defines the EDGAR tools served by the process.
package tools

import (
	"context"
	"strings"

	"edgar-mcp/internal/edgar"
	"edgar-mcp/internal/tool"
)

// EDGAR exposes an edgar.Client as tools.
type EDGAR struct {
	client *edgar.Client
}

// NewEDGAR wraps client.
func NewEDGAR(client *edgar.Client) *EDGAR { return &EDGAR{client: client} }

// Tools returns the tool set in listing order.
func (e *EDGAR) Tools() []tool.Tool {
	return []tool.Tool{
		{
			Descriptor: tool.Descriptor{
				Name:        "edgar_company",
				Description: "Look up a company registered with the SEC by ticker or CIK and return its profile.",
				InputSchema: tool.Object(
					tool.Required("identifier", tool.String("Ticker symbol (e.g. AAPL) or numeric CIK")),
				),
			},
			Handler: tool.HandlerFunc(e.company),
		},
		{
			Descriptor: tool.Descriptor{
				Name:        "edgar_filings",
				Description: "List a company's most recent SEC filings, optionally filtered by form type.",
				InputSchema: tool.Object(
					tool.Required("identifier", tool.String("Ticker symbol or numeric CIK")),
					tool.Optional("form", tool.String("Form type filter, e.g. 10-K, 10-Q, 8-K")),
					tool.Optional("limit", tool.Integer("Maximum number of filings").Between(1, 100)),
				),
			},
			Handler: tool.HandlerFunc(e.filings),
		},
		{
			Descriptor: tool.Descriptor{
				Name:        "edgar_ticker_search",
				Description: "Search SEC registrants by ticker or company name.",
				InputSchema: tool.Object(
					tool.Required("query", tool.String("Ticker or part of a company name")),
					tool.Optional("limit", tool.Integer("Maximum number of matches").Between(1, 50)),
				),
			},
			Handler: tool.HandlerFunc(e.search),
		},
	}
}

// Register adds the tools to reg.
func (e *EDGAR) Register(reg *tool.Registry) error {
	return reg.RegisterAll(e.Tools()...)
}

type companyResult struct {
	*edgar.Company
	FilingCount int `json:"filingCount"`
}

func (e *EDGAR) company(ctx context.Context, args tool.Args) (any, error) {
	co, err := e.client.Company(ctx, args.String("identifier", ""))
	if err != nil {
		return nil, err
	}
	return companyResult{Company: co, FilingCount: len(co.Filings)}, nil
}

type filingsResult struct {
	CIK     string         `json:"cik"`
	Name    string         `json:"name"`
	Form    string         `json:"form,omitempty"`
	Filings []edgar.Filing `json:"filings"`
}

func (e *EDGAR) filings(ctx context.Context, args tool.Args) (any, error) {
	co, err := e.client.Company(ctx, args.String("identifier", ""))
	if err != nil {
		return nil, err
	}
	form := strings.TrimSpace(args.String("form", ""))
	limit := int(args.Int("limit", 20))
	out := make([]edgar.Filing, 0, limit)
	for _, f := range co.Filings {
		if form != "" && !strings.EqualFold(f.Form, form) {
			continue
		}
		out = append(out, f)
		if len(out) == limit {
			break
		}
	}
	return filingsResult{CIK: co.CIK, Name: co.Name, Form: form, Filings: out}, nil
}

type searchResult struct {
	Query   string         `json:"query"`
	Matches []edgar.Ticker `json:"matches"`
}

func (e *EDGAR) search(ctx context.Context, args tool.Args) (any, error) {
	q := args.String("query", "")
	matches, err := e.client.Search(ctx, q, int(args.Int("limit", 10)))
	if err != nil {
		return nil, err
	}
	if matches == nil {
		matches = []edgar.Ticker{}
	}
	return searchResult{Query: q, Matches: matches}, nil
}
