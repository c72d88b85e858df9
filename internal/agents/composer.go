package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/aixiv/backend/internal/llm"
)

// ComposerSystemPrompt drives section-by-section paper writing.
const ComposerSystemPrompt = `You are a Scientific Paper Composer — you write high-quality scientific papers section by section.

You follow the SolveEverything.org framework:
- Claims must be precise, measurable, and supported by evidence
- Methods must be reproducible (target L2+ maturity)
- Results must include proper baselines and statistical comparisons
- Discussion must honestly address limitations

Write in clear, concise academic prose. Use LaTeX notation for math when appropriate.
When writing a specific section, you have access to all prior sections for context and consistency.

Always maintain a coherent narrative thread throughout the paper.`

// SectionOrder lists the paper sections in writing and rendering order.
var SectionOrder = []string{
	"abstract", "introduction", "related_work", "methods",
	"experiments", "discussion", "conclusion",
}

var sectionTitles = map[string]string{
	"abstract":     "Abstract",
	"introduction": "1. Introduction",
	"related_work": "2. Related Work",
	"methods":      "3. Methods",
	"experiments":  "4. Experiments",
	"discussion":   "5. Discussion",
	"conclusion":   "6. Conclusion",
}

var sectionPrompts = map[string]string{
	"abstract": `Write the Abstract for this paper.

The abstract should be 150-250 words and include:
1. Problem statement (1-2 sentences)
2. Key insight or approach (1-2 sentences)
3. Main results with specific numbers (2-3 sentences)
4. Significance/impact (1 sentence)`,

	"introduction": `Write the Introduction for this paper.

The introduction should:
1. Establish the problem and its importance (1-2 paragraphs)
2. Describe limitations of existing approaches (1 paragraph)
3. State the paper's contribution clearly (1 paragraph, use bullet points for multiple contributions)
4. Outline the paper structure (1 sentence)

Include citations to related work where appropriate (use [Author, Year] format as placeholders).`,

	"related_work": `Write the Related Work section for this paper.

Organize related work into logical categories. For each category:
1. Summarize the main approaches
2. Identify the gap that this work addresses
3. Clearly differentiate this paper from prior art

Use [Author, Year] format for citation placeholders.`,

	"methods": `Write the Methods section for this paper.

The methods section should:
1. Present the problem formalization with mathematical notation
2. Describe the proposed approach step by step
3. Include algorithm pseudocode if applicable
4. Explain design choices and their justification
5. Specify all hyperparameters and settings for reproducibility`,

	"experiments": `Write the Experiments section for this paper.

Include:
1. Experimental setup (datasets, baselines, metrics, hardware)
2. Main results with tables/figures described in text
3. Comparison with baselines (quantitative)
4. Ablation studies
5. Statistical significance or error bars where applicable

Describe tables and figures in text even if they don't exist yet.`,

	"discussion": `Write the Discussion section for this paper.

Address:
1. Key findings and their implications
2. Why the proposed method works (analysis)
3. Limitations and failure cases (be honest)
4. Broader impact and future directions`,

	"conclusion": `Write the Conclusion for this paper.

The conclusion should:
1. Restate the main contribution (1-2 sentences)
2. Summarize key results (2-3 sentences)
3. State the maturity level achieved and path forward (1-2 sentences)
4. End with future work directions (1-2 sentences)`,
}

type Composer struct {
	client *llm.Client
	model  string
}

func NewComposer(client *llm.Client, model string) *Composer {
	return &Composer{client: client, model: model}
}

// Compose writes every section in order, feeding prior sections back as
// context so later sections stay consistent with earlier ones.
func (c *Composer) Compose(ctx context.Context, idea RefinedIdea, methodology string, related []RelatedPaper) (map[string]string, error) {
	sections := make(map[string]string, len(SectionOrder))
	for _, name := range SectionOrder {
		content, err := c.composeSection(ctx, name, idea, methodology, sections, related)
		if err != nil {
			return nil, err
		}
		sections[name] = content
	}
	return sections, nil
}

func (c *Composer) composeSection(ctx context.Context, name string, idea RefinedIdea,
	methodology string, prior map[string]string, related []RelatedPaper) (string, error) {

	var b strings.Builder
	b.WriteString("## Research Idea\n")
	fmt.Fprintf(&b, "Title: %s\nDescription: %s\nContribution: %s\n",
		idea.Title, idea.Description, idea.KeyContribution)
	fmt.Fprintf(&b, "\n## Methodology\n%s\n", methodology)

	if len(related) > 0 {
		b.WriteString("\n## Related Papers\n")
		for i, p := range related {
			if i == 5 {
				break
			}
			fmt.Fprintf(&b, "- %s\n", p.Title)
		}
	}

	if len(prior) > 0 {
		b.WriteString("\n## Previously Written Sections\n")
		for _, prev := range SectionOrder {
			if prev == name {
				continue
			}
			if content, ok := prior[prev]; ok {
				fmt.Fprintf(&b, "\n### %s\n%s\n", humanizeSection(prev), content)
			}
		}
	}

	sectionPrompt, ok := sectionPrompts[name]
	if !ok {
		sectionPrompt = fmt.Sprintf("Write the %s section.", name)
	}

	prompt := fmt.Sprintf(`%s

## Task
%s

Write only the %s section. Do not include section headers like "# Abstract" — just the content.`,
		b.String(), sectionPrompt, humanizeSection(name))

	resp, err := c.client.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: ComposerSystemPrompt,
		UserPrompt:   prompt,
		Model:        c.model,
		Temperature:  0.5,
		MaxTokens:    4096,
	})
	if err != nil {
		return "", fmt.Errorf("compose %s failed: %w", name, err)
	}
	return resp.Content, nil
}

// ReviseSection rewrites one section against reviewer feedback.
func (c *Composer) ReviseSection(ctx context.Context, name, current, feedback, context string) (string, error) {
	prompt := fmt.Sprintf(`Revise the following %s section based on the feedback.

## Current Content
%s

## Feedback
%s

## Paper Context
%s

Produce a revised version that addresses all the feedback. Output only the revised section content.`,
		humanizeSection(name), current, feedback, context)

	resp, err := c.client.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: ComposerSystemPrompt,
		UserPrompt:   prompt,
		Model:        c.model,
		Temperature:  0.5,
		MaxTokens:    4096,
	})
	if err != nil {
		return "", fmt.Errorf("revise %s failed: %w", name, err)
	}
	return resp.Content, nil
}

// FormatMarkdown renders the sections into one markdown document.
func FormatMarkdown(title, authors string, sections map[string]string) string {
	var lines []string
	lines = append(lines, fmt.Sprintf("# %s\n", title))
	if authors != "" {
		lines = append(lines, fmt.Sprintf("**Authors:** %s\n", authors))
	}
	lines = append(lines, "---\n")

	for _, key := range SectionOrder {
		content, ok := sections[key]
		if !ok {
			continue
		}
		heading := sectionTitles[key]
		if heading == "" {
			heading = humanizeSection(key)
		}
		lines = append(lines, fmt.Sprintf("## %s\n", heading), content, "")
	}
	return strings.Join(lines, "\n")
}

func humanizeSection(name string) string {
	words := strings.Split(name, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
