package notify

import (
	"fmt"
	"strings"

	"gumboard-api/domain"
)

var actionEmoji = map[domain.Action]string{
	domain.ActionAdded:     ":heavy_plus_sign:",
	domain.ActionCompleted: ":white_check_mark:",
	domain.ActionReopened:  ":arrows_counterclockwise:",
}

// Emoji returns the emoji shortcode for action, or "" if it has none.
func Emoji(action domain.Action) string {
	return actionEmoji[action]
}

// Format renders a transition as "<emoji> <content> by <actor> in <board>".
// content is used verbatim.
func Format(content string, action domain.Action, actorName, boardName string) string {
	return line(action, fmt.Sprintf("%s by %s in %s", content, actorName, boardName))
}

// FormatWithBoardLink is Format with the board name rendered as a Slack link
// to boardURL.
func FormatWithBoardLink(content string, action domain.Action, actorName, boardName, boardURL string) string {
	if boardURL == "" {
		return Format(content, action, actorName, boardName)
	}
	return line(action, fmt.Sprintf("%s by %s in <%s|%s>", content, actorName, boardURL, boardName))
}

func line(action domain.Action, body string) string {
	if e := Emoji(action); e != "" {
		return e + " " + body
	}
	return body
}

// BoardURL builds the public link of a board, or "" without a base URL.
func BoardURL(baseURL, boardID string) string {
	if baseURL == "" || boardID == "" {
		return ""
	}
	return strings.TrimRight(baseURL, "/") + "/boards/" + boardID
}
