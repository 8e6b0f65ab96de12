// Package report renders run digests and delivers them to humans.
package report

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"token-screener/internal/domain"
)

var markdownEscaper = strings.NewReplacer(
	"_", `\_`,
	"*", `\*`,
	"`", "\\`",
	"[", `\[`,
)

// EscapeMarkdown escapes the characters Telegram's Markdown mode treats as markup.
func EscapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

// Link returns a human URL for the record's asset, or "" when unknown.
func Link(r *domain.CandidateRecord) string {
	if r.Identifier == nil || *r.Identifier == "" {
		return ""
	}
	id := url.PathEscape(*r.Identifier)
	switch r.Source {
	case domain.SourceCoinGecko:
		return "https://www.coingecko.com/en/coins/" + id
	case domain.SourceDexScreener:
		if r.ChainName() == "" {
			return ""
		}
		return "https://dexscreener.com/" + url.PathEscape(r.ChainName()) + "/" + id
	}
	return ""
}

// FormatDigest renders a run result as a Markdown message.
func FormatDigest(res *domain.RunResult) string {
	var sb strings.Builder

	loc, err := time.LoadLocation(res.Location)
	if err != nil {
		loc = time.UTC
	}
	day := res.WindowStart.In(loc).Format("2006-01-02")

	sb.WriteString(fmt.Sprintf("🧾 *New assets for %s* (%s)\n", day, EscapeMarkdown(loc.String())))
	sb.WriteString(fmt.Sprintf("Collected: *%d*\n", res.Collected))
	sb.WriteString(fmt.Sprintf("In window: *%d*\n", res.Windowed))
	sb.WriteString(fmt.Sprintf("Passed: *%d*\n", res.Passed))
	if breakdown := formatCategories(res.Categories); breakdown != "" {
		sb.WriteString("Categories: " + breakdown + "\n")
	}
	sb.WriteString("\n")

	if len(res.PassedAssets) == 0 {
		sb.WriteString("_No serious projects found today._")
		return sb.String()
	}

	sb.WriteString("🟢 *Serious projects:*\n\n")
	for i, a := range res.PassedAssets {
		name := a.Name
		if name == "" {
			name = "unnamed"
		}
		if a.Symbol != "" {
			sb.WriteString(fmt.Sprintf("%d. *%s* (%s)\n", i+1, EscapeMarkdown(name), EscapeMarkdown(a.Symbol)))
		} else {
			sb.WriteString(fmt.Sprintf("%d. *%s*\n", i+1, EscapeMarkdown(name)))
		}
		if a.Link != "" {
			sb.WriteString(a.Link + "\n")
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatCategories(counts map[domain.Category]int) string {
	if len(counts) == 0 {
		return ""
	}
	cats := make([]string, 0, len(counts))
	for c := range counts {
		cats = append(cats, string(c))
	}
	sort.Strings(cats)

	parts := make([]string, len(cats))
	for i, c := range cats {
		parts[i] = fmt.Sprintf("%s %d", EscapeMarkdown(c), counts[domain.Category(c)])
	}
	return strings.Join(parts, ", ")
}
