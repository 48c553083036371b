// Package pubmed is a client for the NCBI E-utilities: esearch for
// PMID discovery and efetch for article metadata.
package pubmed

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aesop-bio/aesop/internal/circuitbreaker"
	"github.com/aesop-bio/aesop/internal/metrics"
	"github.com/aesop-bio/aesop/internal/models"
	"github.com/aesop-bio/aesop/internal/tracing"
)

// DefaultBaseURL is the public E-utilities endpoint.
const DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

// Config holds client configuration. APIKey raises NCBI's rate limits
// when set.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client calls esearch and efetch.
type Client struct {
	cfg    Config
	http   *circuitbreaker.HTTPWrapper
	logger *zap.Logger
}

// NewClient creates a PubMed client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}
	return &Client{
		cfg:    cfg,
		http:   circuitbreaker.NewHTTPWrapper(httpClient, "pubmed-http", "pubmed", logger),
		logger: logger,
	}
}

type esearchResponse struct {
	ESearchResult struct {
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

// Search runs an esearch and returns up to retmax PMIDs.
func (c *Client) Search(ctx context.Context, term string, retmax int) ([]string, error) {
	if retmax <= 0 {
		retmax = 10
	}

	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("term", term)
	params.Set("retmode", "json")
	params.Set("retmax", strconv.Itoa(retmax))
	if c.cfg.APIKey != "" {
		params.Set("api_key", c.cfg.APIKey)
	}

	start := time.Now()
	body, err := c.get(ctx, "/esearch.fcgi", params)
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RecordPubMedMetrics("esearch", status, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("pubmed search %q: %w", term, err)
	}

	var decoded esearchResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode esearch response: %w", err)
	}
	return decoded.ESearchResult.IDList, nil
}

// efetch XML shapes, reduced to the fields we read.
type efetchResponse struct {
	XMLName  xml.Name        `xml:"PubmedArticleSet"`
	Articles []pubmedArticle `xml:"PubmedArticle"`
}

type pubmedArticle struct {
	Citation medlineCitation `xml:"MedlineCitation"`
}

type medlineCitation struct {
	PMID    string         `xml:"PMID"`
	Article articleElement `xml:"Article"`
}

type articleElement struct {
	Title    string          `xml:"ArticleTitle"`
	Abstract abstractElement `xml:"Abstract"`
	Journal  journalElement  `xml:"Journal"`
}

type abstractElement struct {
	Sections []abstractSection `xml:"AbstractText"`
}

type abstractSection struct {
	Label string `xml:"Label,attr"`
	Text  string `xml:",chardata"`
}

type journalElement struct {
	Title string `xml:"Title"`
	Issue struct {
		PubDate struct {
			Year string `xml:"Year"`
		} `xml:"PubDate"`
	} `xml:"JournalIssue"`
}

// Fetch runs an efetch for the given PMIDs and returns parsed papers.
// Articles missing from the response are silently absent from the
// result.
func (c *Client) Fetch(ctx context.Context, pmids []string) ([]models.Paper, error) {
	if len(pmids) == 0 {
		return nil, nil
	}

	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("id", strings.Join(pmids, ","))
	params.Set("retmode", "xml")
	if c.cfg.APIKey != "" {
		params.Set("api_key", c.cfg.APIKey)
	}

	start := time.Now()
	body, err := c.get(ctx, "/efetch.fcgi", params)
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RecordPubMedMetrics("efetch", status, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("pubmed fetch: %w", err)
	}

	var decoded efetchResponse
	if err := xml.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode efetch response: %w", err)
	}

	papers := make([]models.Paper, 0, len(decoded.Articles))
	for _, article := range decoded.Articles {
		papers = append(papers, toPaper(article))
	}
	return papers, nil
}

func toPaper(article pubmedArticle) models.Paper {
	cit := article.Citation

	var abstract strings.Builder
	for _, section := range cit.Article.Abstract.Sections {
		text := strings.TrimSpace(section.Text)
		if text == "" {
			continue
		}
		if abstract.Len() > 0 {
			abstract.WriteByte(' ')
		}
		if section.Label != "" {
			abstract.WriteString(section.Label)
			abstract.WriteString(": ")
		}
		abstract.WriteString(text)
	}

	year := 0
	if y := strings.TrimSpace(cit.Article.Journal.Issue.PubDate.Year); y != "" {
		if parsed, err := strconv.Atoi(y); err == nil {
			year = parsed
		}
	}

	return models.Paper{
		PMID:            strings.TrimSpace(cit.PMID),
		Title:           strings.TrimSpace(cit.Article.Title),
		Abstract:        abstract.String(),
		PublicationYear: year,
		Journal:         strings.TrimSpace(cit.Article.Journal.Title),
	}
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u := c.cfg.BaseURL + path + "?" + params.Encode()
	ctx, span := tracing.StartHTTPSpan(ctx, http.MethodGet, u)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	tracing.InjectTraceparent(ctx, req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("e-utilities returned %d: %s", resp.StatusCode, snippet)
	}
	return io.ReadAll(resp.Body)
}
