package agents

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aixiv/backend/internal/llm"
	"github.com/aixiv/backend/pkg/logger"
)

const (
	arxivAPIURL     = "http://export.arxiv.org/api/query"
	arxivMaxResults = 10
	maxSearchRounds = 5
)

// NoveltySystemPrompt drives the novelty assessment over found papers.
const NoveltySystemPrompt = `You are a Novelty Assessor — you evaluate whether a research idea is novel given existing literature.

Given a research idea and a list of related papers found in literature, you must determine:
1. Does any existing paper already propose the same core idea?
2. How much overlap exists with existing work?
3. What is the unique contribution beyond prior art?

Output your assessment as JSON:
{
  "decision": "novel" | "not_novel" | "needs_more_search",
  "confidence": 0.0-1.0,
  "overlap_papers": [
    {
      "arxiv_id": "paper id",
      "title": "paper title",
      "overlap_description": "what overlaps",
      "overlap_degree": "high/medium/low"
    }
  ],
  "unique_aspects": ["what makes this idea different"],
  "suggested_queries": ["additional search queries if needs_more_search"],
  "summary": "2-3 sentence assessment"
}`

// QueryGenSystemPrompt drives search query generation.
const QueryGenSystemPrompt = `You are a search query generator for academic literature.

Given a research idea, generate effective search queries for arXiv that would find related work.
Consider synonyms, related concepts, and different phrasings.

Output JSON:
{
  "queries": ["query1", "query2", "query3"]
}`

// RelatedPaper is one arXiv search hit.
type RelatedPaper struct {
	ArxivID   string   `json:"arxiv_id"`
	Title     string   `json:"title"`
	Abstract  string   `json:"abstract"`
	Authors   []string `json:"authors"`
	Published string   `json:"published"`
}

// OverlapPaper names a prior-art paper the assessor flagged.
type OverlapPaper struct {
	ArxivID            string `json:"arxiv_id"`
	Title              string `json:"title"`
	OverlapDescription string `json:"overlap_description"`
	OverlapDegree      string `json:"overlap_degree"`
}

// NoveltyAssessment is the final novelty verdict for an idea.
type NoveltyAssessment struct {
	Decision         string         `json:"decision"`
	Confidence       float64        `json:"confidence"`
	OverlapPapers    []OverlapPaper `json:"overlap_papers"`
	UniqueAspects    []string       `json:"unique_aspects"`
	SuggestedQueries []string       `json:"suggested_queries"`
	Summary          string         `json:"summary"`
}

// JSON serializes the assessment for storage and audit summaries.
func (n NoveltyAssessment) JSON() string {
	b, err := json.Marshal(n)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// NoveltyReport bundles an assessment with every paper the search
// rounds collected.
type NoveltyReport struct {
	Assessment NoveltyAssessment
	Papers     []RelatedPaper
	Fallback   bool
	Raw        string
}

// Atom feed shapes for the arXiv API response.
type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID        string       `xml:"id"`
	Title     string       `xml:"title"`
	Summary   string       `xml:"summary"`
	Published string       `xml:"published"`
	Authors   []atomAuthor `xml:"author"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

type queriesWire struct {
	Queries []string `json:"queries"`
}

// LiteratureSearcher runs iterative arXiv search plus LLM novelty
// assessment for a candidate idea.
type LiteratureSearcher struct {
	client     *llm.Client
	model      string
	httpClient *http.Client
	searchURL  string
}

func NewLiteratureSearcher(client *llm.Client, model string) *LiteratureSearcher {
	return &LiteratureSearcher{
		client:     client,
		model:      model,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		searchURL:  arxivAPIURL,
	}
}

// CheckNovelty runs the full loop: generate queries, search arXiv,
// assess, and repeat with suggested queries while the assessor asks for
// more search, bounded by maxSearchRounds. Search errors on individual
// queries are logged and skipped; they never abort the check.
func (l *LiteratureSearcher) CheckNovelty(ctx context.Context, ideaText string) (NoveltyReport, error) {
	queries, err := l.generateQueries(ctx, ideaText)
	if err != nil {
		return NoveltyReport{}, err
	}

	var all []RelatedPaper
	seen := make(map[string]bool)
	report := NoveltyReport{}

	for round := 0; round < maxSearchRounds; round++ {
		for _, q := range queries {
			papers, err := l.SearchArxiv(ctx, q)
			if err != nil {
				logger.Warn("arXiv search failed", zap.String("query", q), zap.Error(err))
				continue
			}
			for _, p := range papers {
				if !seen[p.ArxivID] {
					seen[p.ArxivID] = true
					all = append(all, p)
				}
			}
		}

		assessment, raw, err := l.assess(ctx, ideaText, all)
		if err != nil {
			return NoveltyReport{}, err
		}
		report = NoveltyReport{Assessment: assessment, Papers: all, Raw: raw}

		if assessment.Decision != "needs_more_search" {
			return report, nil
		}
		if len(assessment.SuggestedQueries) == 0 {
			break
		}
		queries = assessment.SuggestedQueries
		if len(queries) > 3 {
			queries = queries[:3]
		}
	}
	return report, nil
}

// SearchArxiv queries the arXiv Atom API for one search string.
func (l *LiteratureSearcher) SearchArxiv(ctx context.Context, query string) ([]RelatedPaper, error) {
	params := url.Values{
		"search_query": {"all:" + query},
		"start":        {"0"},
		"max_results":  {fmt.Sprint(arxivMaxResults)},
		"sortBy":       {"relevance"},
		"sortOrder":    {"descending"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.searchURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "aiXiv/1.0")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("arxiv request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arxiv returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	return ParseArxivFeed(body)
}

// ParseArxivFeed decodes an arXiv Atom response into related papers.
func ParseArxivFeed(data []byte) ([]RelatedPaper, error) {
	var feed atomFeed
	if err := xml.Unmarshal(data, &feed); err != nil {
		return nil, fmt.Errorf("arxiv feed parse failed: %w", err)
	}

	papers := make([]RelatedPaper, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		id := e.ID
		if idx := strings.LastIndex(id, "/abs/"); idx >= 0 {
			id = id[idx+len("/abs/"):]
		}
		authors := make([]string, 0, len(e.Authors))
		for _, a := range e.Authors {
			if a.Name != "" {
				authors = append(authors, a.Name)
			}
		}
		papers = append(papers, RelatedPaper{
			ArxivID:   id,
			Title:     collapseWhitespace(e.Title),
			Abstract:  collapseWhitespace(e.Summary),
			Authors:   authors,
			Published: e.Published,
		})
	}
	return papers, nil
}

func (l *LiteratureSearcher) generateQueries(ctx context.Context, ideaText string) ([]string, error) {
	prompt := fmt.Sprintf(`Generate 3 effective arXiv search queries to find related work for this research idea:

%s

Generate queries that would find the most relevant prior art.`, ideaText)

	resp, err := l.client.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: QueryGenSystemPrompt,
		UserPrompt:   prompt,
		Model:        l.model,
		Temperature:  0.5,
		MaxTokens:    1024,
	})
	if err != nil {
		return nil, fmt.Errorf("query generation failed: %w", err)
	}

	var wire queriesWire
	if llm.ParseJSON(resp.Content, &wire) && len(wire.Queries) > 0 {
		return wire.Queries, nil
	}

	words := strings.Fields(ideaText)
	if len(words) > 10 {
		words = words[:10]
	}
	return []string{strings.Join(words, " ")}, nil
}

func (l *LiteratureSearcher) assess(ctx context.Context, ideaText string, papers []RelatedPaper) (NoveltyAssessment, string, error) {
	var b strings.Builder
	for i, p := range papers {
		fmt.Fprintf(&b, "\n### Paper %d: %s\narXiv ID: %s\nAuthors: %s\nAbstract: %s...\n",
			i+1, p.Title, p.ArxivID, strings.Join(p.Authors, ", "), truncate(p.Abstract, 300))
	}
	papersText := b.String()
	if papersText == "" {
		papersText = "No related papers found."
	}

	prompt := fmt.Sprintf(`Assess the novelty of this research idea given the related papers found.

## Research Idea
%s

## Related Papers Found
%s

Determine if this idea is novel, not novel (already done), or if more search is needed.`, ideaText, papersText)

	resp, err := l.client.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: NoveltySystemPrompt,
		UserPrompt:   prompt,
		Model:        l.model,
		Temperature:  0.3,
		MaxTokens:    2048,
	})
	if err != nil {
		return NoveltyAssessment{}, "", fmt.Errorf("novelty assessment failed: %w", err)
	}

	var assessment NoveltyAssessment
	if !llm.ParseJSON(resp.Content, &assessment) || assessment.Decision == "" {
		return NoveltyAssessment{
			Decision:   "novel",
			Confidence: 0.5,
			Summary:    truncate(resp.Content, 500),
		}, resp.Content, nil
	}
	return assessment, resp.Content, nil
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
