package pubmed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sampleEfetchXML = `<?xml version="1.0"?>
<PubmedArticleSet>
  <PubmedArticle>
    <MedlineCitation>
      <PMID>12345678</PMID>
      <Article>
        <Journal>
          <JournalIssue>
            <PubDate><Year>2021</Year></PubDate>
          </JournalIssue>
          <Title>The Lancet</Title>
        </Journal>
        <ArticleTitle>Metformin and cardiovascular outcomes</ArticleTitle>
        <Abstract>
          <AbstractText Label="BACKGROUND">Metformin is widely used.</AbstractText>
          <AbstractText Label="RESULTS">Risk was reduced.</AbstractText>
        </Abstract>
      </Article>
    </MedlineCitation>
  </PubmedArticle>
  <PubmedArticle>
    <MedlineCitation>
      <PMID>87654321</PMID>
      <Article>
        <Journal>
          <JournalIssue><PubDate></PubDate></JournalIssue>
          <Title>BMJ</Title>
        </Journal>
        <ArticleTitle>A study without an abstract</ArticleTitle>
      </Article>
    </MedlineCitation>
  </PubmedArticle>
</PubmedArticleSet>`

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(Config{BaseURL: srv.URL, Timeout: 2 * time.Second}, zap.NewNop())
	return c, srv
}

func TestSearchReturnsPMIDs(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/esearch.fcgi", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "pubmed", q.Get("db"))
		assert.Equal(t, "json", q.Get("retmode"))
		assert.Equal(t, "10", q.Get("retmax"))
		assert.Equal(t, "metformin cardiovascular", q.Get("term"))
		fmt.Fprint(w, `{"esearchresult": {"idlist": ["111", "222", "333"]}}`)
	})

	ids, err := c.Search(context.Background(), "metformin cardiovascular", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"111", "222", "333"}, ids)
}

func TestSearchEmptyResult(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"esearchresult": {"idlist": []}}`)
	})

	ids, err := c.Search(context.Background(), "zzzz", 10)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSearchServerError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusBadGateway)
	})

	_, err := c.Search(context.Background(), "q", 10)
	assert.Error(t, err)
}

func TestFetchParsesArticles(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/efetch.fcgi", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "xml", q.Get("retmode"))
		assert.Equal(t, "12345678,87654321", q.Get("id"))
		fmt.Fprint(w, sampleEfetchXML)
	})

	papers, err := c.Fetch(context.Background(), []string{"12345678", "87654321"})
	require.NoError(t, err)
	require.Len(t, papers, 2)

	first := papers[0]
	assert.Equal(t, "12345678", first.PMID)
	assert.Equal(t, "Metformin and cardiovascular outcomes", first.Title)
	assert.Equal(t, "BACKGROUND: Metformin is widely used. RESULTS: Risk was reduced.", first.Abstract)
	assert.Equal(t, 2021, first.PublicationYear)
	assert.Equal(t, "The Lancet", first.Journal)

	second := papers[1]
	assert.Equal(t, "87654321", second.PMID)
	assert.False(t, second.HasAbstract())
	assert.Zero(t, second.PublicationYear)
}

func TestFetchEmptyInput(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://unused.invalid"}, zap.NewNop())
	papers, err := c.Fetch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, papers)
}

func TestFetchMalformedXML(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<PubmedArticleSet><broken")
	})

	_, err := c.Fetch(context.Background(), []string{"1"})
	assert.Error(t, err)
}
