package domain

import "strings"

// TestBoardPrefix marks boards that never notify external channels.
const TestBoardPrefix = "Test"

// Board carries the notification settings of a board.
type Board struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	OrganizationID   string `json:"organizationId"`
	SendSlackUpdates bool   `json:"sendSlackUpdates"`
}

// NotificationsEnabled reports whether updates on the board may leave the process.
func (b Board) NotificationsEnabled() bool {
	return b.SendSlackUpdates && !strings.HasPrefix(b.Name, TestBoardPrefix)
}

// Organization owns boards and the outbound webhook they report to.
type Organization struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	SlackWebhookURL string `json:"slackWebhookUrl,omitempty"`
}

// User is the actor performing a mutation.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// DisplayName falls back from name to email to id.
func (u User) DisplayName() string {
	if n := strings.TrimSpace(u.Name); n != "" {
		return n
	}
	if e := strings.TrimSpace(u.Email); e != "" {
		return e
	}
	return u.ID
}
