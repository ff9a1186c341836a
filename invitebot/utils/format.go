package utils

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/disgoorg/snowflake/v2"
)

var markdownSpecial = regexp.MustCompile("([_*~`|])")

// MarkdownEscape escapes the characters Discord treats as markdown.
func MarkdownEscape(text string) string {
	return markdownSpecial.ReplaceAllString(text, `\$1`)
}

// UserTag renders a user mention, or "unknown member" for the zero ID.
func UserTag(id snowflake.ID) string {
	if id == 0 {
		return "unknown member"
	}
	return fmt.Sprintf("<@%s>", id)
}

// InviterTag is UserTag for inviters, which may legitimately be unknown.
func InviterTag(id snowflake.ID) string {
	if id == 0 {
		return "some mysterious force"
	}
	return UserTag(id)
}

func ChannelTag(id snowflake.ID) string {
	return fmt.Sprintf("<#%s>", id)
}

// Plural picks the singular or plural word for n.
func Plural(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}

// Points renders "1 point" or "N points".
func Points(n int) string {
	return fmt.Sprintf("%d %s", n, Plural(n, "point", "points"))
}

// RewardTag names the tier title of a stage, e.g. "Butterfly Master II".
func RewardTag(rewardName string, stageNumber, level int) string {
	addition := ""
	switch stageNumber {
	case 1:
		addition = "I"
	case 2:
		addition = "II"
	}
	switch level {
	case 1:
		return fmt.Sprintf("%s Rookie %s", rewardName, addition)
	case 2:
		return fmt.Sprintf("%s Master %s", rewardName, addition)
	case 3:
		return MarkdownEscape(fmt.Sprintf("%s Champion * %s", rewardName, addition))
	case 4:
		return MarkdownEscape(fmt.Sprintf("%s Champion ** %s", rewardName, addition))
	case 5:
		return MarkdownEscape(fmt.Sprintf("%s Champion *** %s", rewardName, addition))
	}
	return ""
}

// MaxMessageLength is the Discord limit for message content.
const MaxMessageLength = 2000

// SplitMessage cuts text into chunks of at most limit bytes, preferring to
// cut after a newline.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 {
		limit = MaxMessageLength
	}
	var chunks []string
	for len(text) > limit {
		cut := strings.LastIndex(text[:limit], "\n") + 1
		if cut <= 0 {
			cut = limit
			for cut > 1 && !utf8.RuneStart(text[cut]) {
				cut--
			}
		}
		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}
