package prompt

import (
    "context"
    "strconv"
    "strings"

    "github.com/bryanwahyu/petri/internal/domain/analysis"
)

// Heuristic is an offline advisor. It derives recommendations from the citation
// data alone, without calling a model.
type Heuristic struct{}

// Recommend implements analysis.Advisor.
func (Heuristic) Recommend(ctx context.Context, userPrompt string, r *analysis.Results) ([]analysis.Recommendation, error) {
    if err := ctx.Err(); err != nil {
        return nil, err
    }
    return HeuristicRecommendations(userPrompt, r), nil
}

// HeuristicRecommendations applies fixed rules to the results. The output is never empty.
func HeuristicRecommendations(userPrompt string, r *analysis.Results) []analysis.Recommendation {
    recs := make([]analysis.Recommendation, 0, 6)
    add := func(id, category, title, description, impact, effort string) {
        recs = append(recs, analysis.Recommendation{
            ID:          id,
            Category:    category,
            Title:       title,
            Description: description,
            Impact:      impact,
            Effort:      effort,
        })
    }

    info := r.TargetPageInfo
    target := info.TargetContent
    order := target.Metadata.CitationMetadata.Order

    switch {
    case !info.TargetPageFound:
        add("get-cited", "content",
            "Publish a page that answers this prompt directly",
            "The target domain is not cited for \""+trim(userPrompt, 80)+"\". Add a page whose title and first paragraph answer the prompt in plain words.",
            "high", "high")
    case strings.EqualFold(info.TargetPageSource, "secondary"):
        add("primary-source", "content",
            "Become a primary source",
            "The target page is only cited as a secondary source. Lead with original data, definitions or comparisons that the answer can quote.",
            "high", "medium")
    }

    if info.TargetPageFound && order > 3 {
        add("citation-rank", "structure",
            "Move the key answer above the fold",
            "The target page is cited at position "+strconv.Itoa(order)+". Put a concise summary of the answer at the top of the page so it is picked up earlier.",
            "medium", "low")
    }

    if info.TargetPageFound && strings.TrimSpace(target.Metadata.GoogleSnippet) == "" {
        add("meta-description", "technical",
            "Write a meta description",
            "No search snippet was found for the target page. A descriptive meta description helps engines summarize it.",
            "medium", "low")
    }

    if info.TargetPageFound && len(target.Summary) < 200 {
        add("expand-summary", "content",
            "Expand the page summary",
            "The extracted summary of the target page is short. Add a few sentences that cover the main entities of the prompt.",
            "medium", "medium")
    }

    if cited := r.CitedSources(); len(cited) > 0 && info.TargetDomain != "" {
        top := cited[0]
        if !strings.Contains(strings.ToLower(top.URL), strings.ToLower(info.TargetDomain)) {
            add("study-top-source", "structure",
                "Match the structure of the top cited source",
                "\""+trim(top.Title, 80)+"\" is cited first. Compare its headings and lists with the target page and cover the same subtopics.",
                "medium", "medium")
        }
    }

    if len(recs) == 0 {
        add("structured-data", "technical",
            "Add structured data",
            "The target page is already cited well. Schema.org markup (FAQ, Product, Article) keeps it easy to parse as content changes.",
            "low", "low")
    }
    return recs
}
