package agents

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRailComplianceThreshold(t *testing.T) {
	compliant := RailEvaluation{Scenarios: []ScenarioEval{
		{Scenario: ScenarioIdeal, Score: 8},
		{Scenario: ScenarioNoisy, Score: 6},
		{Scenario: ScenarioMismatch, Score: 5},
		{Scenario: ScenarioAdversarial, Score: 5},
	}}
	assert.True(t, compliant.Compliant())

	oneBelow := RailEvaluation{Scenarios: []ScenarioEval{
		{Scenario: ScenarioIdeal, Score: 9},
		{Scenario: ScenarioNoisy, Score: 9},
		{Scenario: ScenarioMismatch, Score: 9},
		{Scenario: ScenarioAdversarial, Score: 4},
	}}
	assert.False(t, oneBelow.Compliant())

	assert.False(t, RailEvaluation{}.Compliant(), "empty evaluation is never compliant")
}

func TestAggregateRobustness(t *testing.T) {
	scenarios := []ScenarioEval{
		{Scenario: ScenarioIdeal, Score: 8},
		{Scenario: ScenarioNoisy, Score: 6},
		{Scenario: ScenarioMismatch, Score: 5},
		{Scenario: ScenarioAdversarial, Score: 5},
	}
	assert.Equal(t, 6, aggregateRobustness(scenarios))

	// Rounds to nearest rather than truncating.
	assert.Equal(t, 7, aggregateRobustness([]ScenarioEval{
		{Score: 7}, {Score: 6}, {Score: 7},
	}))

	assert.Equal(t, 0, aggregateRobustness(nil))
}

func TestSelectTopIdeasByScore(t *testing.T) {
	ideas := []Idea{
		{Title: "weak"}, {Title: "strong"}, {Title: "middling"},
	}
	critiques := []IdeaCritique{
		{Title: "weak", Score: 3, Verdict: "revise"},
		{Title: "strong", Score: 9, Verdict: "keep"},
		{Title: "middling", Score: 6, Verdict: "keep"},
	}

	top := selectTopIdeas(critiques, ideas, 2)
	require.Len(t, top, 2)
	assert.Equal(t, "strong", top[0].Title)
	assert.Equal(t, "middling", top[1].Title)
}

func TestSelectTopIdeasSkipsDiscarded(t *testing.T) {
	ideas := []Idea{{Title: "a"}, {Title: "b"}}
	critiques := []IdeaCritique{
		{Title: "a", Score: 10, Verdict: "discard"},
		{Title: "b", Score: 2, Verdict: "keep"},
	}

	top := selectTopIdeas(critiques, ideas, 1)
	require.Len(t, top, 1)
	assert.Equal(t, "b", top[0].Title)
}

func TestSelectTopIdeasNoCritiques(t *testing.T) {
	ideas := []Idea{{Title: "a"}, {Title: "b"}, {Title: "c"}}

	top := selectTopIdeas(nil, ideas, 2)
	require.Len(t, top, 2)
	assert.Equal(t, "a", top[0].Title)

	// All discarded falls back to the head of the list.
	critiques := []IdeaCritique{
		{Verdict: "discard"}, {Verdict: "discard"}, {Verdict: "discard"},
	}
	top = selectTopIdeas(critiques, ideas, 2)
	require.Len(t, top, 2)
}

func TestMatchCritiqueFollowsWinningIdea(t *testing.T) {
	ideas := []Idea{{Title: "runner-up"}, {Title: "winner"}}
	critiques := []IdeaCritique{
		{Title: "runner-up", Score: 6, Verdict: "keep", Weaknesses: []string{"incremental"}},
		{Title: "winner", Score: 9, Verdict: "keep", Weaknesses: []string{"needs ablations"}},
	}

	top := selectTopIdeas(critiques, ideas, 1)
	require.Len(t, top, 1)
	require.Equal(t, "winner", top[0].Title)

	// The critique fed into refinement is the winner's, not whichever
	// happened to come first.
	c, ok := matchCritique(critiques, ideas, top[0])
	require.True(t, ok)
	assert.Equal(t, "winner", c.Title)
	assert.Equal(t, 9, c.Score)
	assert.Equal(t, []string{"needs ablations"}, c.Weaknesses)
}

func TestMatchCritiqueFallsBackToPosition(t *testing.T) {
	ideas := []Idea{{Title: "a"}, {Title: "b"}}
	critiques := []IdeaCritique{{Score: 4}, {Score: 8}}

	c, ok := matchCritique(critiques, ideas, ideas[1])
	require.True(t, ok)
	assert.Equal(t, 8, c.Score)

	_, ok = matchCritique(nil, ideas, ideas[0])
	assert.False(t, ok)
}

func TestNextMaturityLevel(t *testing.T) {
	assert.Equal(t, "L1", NextMaturityLevel("L0"))
	assert.Equal(t, "L5", NextMaturityLevel("L4"))
	assert.Equal(t, "L5", NextMaturityLevel("L5"), "L5 has no next level")
	assert.Equal(t, "unknown", NextMaturityLevel("unknown"))
}

func TestFormatMarkdownOrdersSections(t *testing.T) {
	sections := map[string]string{
		"conclusion":   "We conclude.",
		"abstract":     "We study X.",
		"methods":      "We do Y.",
		"introduction": "X matters.",
	}

	md := FormatMarkdown("Test Paper", "AI Scientist", sections)

	assert.True(t, strings.HasPrefix(md, "# Test Paper"))
	assert.Contains(t, md, "**Authors:** AI Scientist")

	abstractIdx := strings.Index(md, "## Abstract")
	introIdx := strings.Index(md, "## 1. Introduction")
	methodsIdx := strings.Index(md, "## 3. Methods")
	conclusionIdx := strings.Index(md, "## 6. Conclusion")

	require.NotEqual(t, -1, abstractIdx)
	assert.Less(t, abstractIdx, introIdx)
	assert.Less(t, introIdx, methodsIdx)
	assert.Less(t, methodsIdx, conclusionIdx)

	// Missing sections are skipped, not rendered empty.
	assert.NotContains(t, md, "## 4. Experiments")
}

func TestParseArxivFeed(t *testing.T) {
	feed := `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/2401.12345v1</id>
    <title>Sparse Recovery
      Under Noise</title>
    <summary>We study sparse recovery.</summary>
    <published>2024-01-20T00:00:00Z</published>
    <author><name>A. Researcher</name></author>
    <author><name>B. Scientist</name></author>
  </entry>
</feed>`

	papers, err := ParseArxivFeed([]byte(feed))
	require.NoError(t, err)
	require.Len(t, papers, 1)

	assert.Equal(t, "2401.12345v1", papers[0].ArxivID)
	assert.Equal(t, "Sparse Recovery Under Noise", papers[0].Title)
	assert.Equal(t, "We study sparse recovery.", papers[0].Abstract)
	assert.Equal(t, []string{"A. Researcher", "B. Scientist"}, papers[0].Authors)
}

func TestParseArxivFeedEmpty(t *testing.T) {
	papers, err := ParseArxivFeed([]byte(`<feed xmlns="http://www.w3.org/2005/Atom"></feed>`))
	require.NoError(t, err)
	assert.Empty(t, papers)

	_, err = ParseArxivFeed([]byte("not xml at all <"))
	assert.Error(t, err)
}

func TestResultTagging(t *testing.T) {
	p := parsed(42, "raw")
	assert.False(t, p.Fallback)
	assert.Equal(t, 42, p.Value)
	assert.Equal(t, "raw", p.Raw)

	f := fallback("default", "unparseable")
	assert.True(t, f.Fallback)
	assert.Equal(t, "default", f.Value)
}
