package util

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	slugPattern       = regexp.MustCompile(`[^a-z0-9]+`)
	jsonLDPattern     = regexp.MustCompile(`(?is)<script[^>]*application/ld\+json[^>]*>.*?</script>`)
	seoCommentPattern = regexp.MustCompile(`(?is)<!--\s*SEO Schema.*?-->`)
	blankLinesRun     = regexp.MustCompile(`\n{3,}`)
)

// GenerateSlug creates a URL-friendly slug from title
func GenerateSlug(title string) string {
	slug := strings.ToLower(title)
	slug = slugPattern.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")

	if len(slug) > 50 {
		slug = strings.Trim(slug[:50], "-")
	}

	return slug
}

// ParseTags parses a comma separated tag string, tolerating [] and quotes.
func ParseTags(tagStr string) []string {
	if tagStr == "" {
		return []string{}
	}

	tagStr = strings.Trim(tagStr, "[]")

	var cleanTags []string
	for _, tag := range strings.Split(tagStr, ",") {
		tag = strings.TrimSpace(tag)
		tag = strings.Trim(tag, "\"'")
		if tag != "" {
			cleanTags = append(cleanTags, tag)
		}
	}

	return cleanTags
}

// MergeTags concatenates tag lists dropping blanks and case-insensitive duplicates.
func MergeTags(lists ...[]string) []string {
	seen := make(map[string]bool)
	var merged []string
	for _, list := range lists {
		for _, tag := range list {
			tag = strings.TrimSpace(tag)
			key := strings.ToLower(tag)
			if tag == "" || seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, tag)
		}
	}
	return merged
}

// Hashtags renders tags as "#tag" words, removing characters hashtags can't hold.
func Hashtags(tags []string) string {
	var out []string
	for _, tag := range tags {
		var b strings.Builder
		for _, r := range tag {
			if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
				b.WriteRune(r)
			}
		}
		if b.Len() > 0 {
			out = append(out, "#"+b.String())
		}
	}
	return strings.Join(out, " ")
}

// TruncateAtWord limits s to max runes. When it has to cut, it backs off to
// the last space within 100 runes of the cutoff and appends "...".
func TruncateAtWord(s string, max int) string {
	const suffix = "..."
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= len(suffix) {
		return string(runes[:max])
	}

	cut := max - len(suffix)
	head := runes[:cut]
	for i := len(head) - 1; i >= 0 && i >= cut-100; i-- {
		if unicode.IsSpace(head[i]) {
			head = head[:i]
			break
		}
	}

	return strings.TrimRightFunc(string(head), unicode.IsSpace) + suffix
}

// StripSchemaMarkup removes JSON-LD script blocks and "SEO Schema" HTML
// comments that generated content embeds for web pages.
func StripSchemaMarkup(body string) string {
	body = jsonLDPattern.ReplaceAllString(body, "")
	body = seoCommentPattern.ReplaceAllString(body, "")
	body = blankLinesRun.ReplaceAllString(body, "\n\n")
	return strings.TrimSpace(body)
}

// PrependImage puts a Markdown image embed at the top of body unless body
// already carries that exact embed.
func PrependImage(body, imageURL string) string {
	if imageURL == "" {
		return body
	}
	embed := "![Image](" + imageURL + ")"
	if strings.Contains(body, embed) {
		return body
	}
	if body == "" {
		return embed
	}
	return embed + "\n\n" + body
}

// ParagraphsToHTML wraps blank-line separated blocks in <p> tags. Text that
// already looks like HTML is returned unchanged.
func ParagraphsToHTML(text string) string {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "<") {
		return trimmed
	}

	var b strings.Builder
	for _, block := range strings.Split(trimmed, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		b.WriteString("<p>")
		b.WriteString(strings.ReplaceAll(block, "\n", "<br>"))
		b.WriteString("</p>\n")
	}
	return strings.TrimSpace(b.String())
}
