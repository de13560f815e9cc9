package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spms-dev/spms/internal/models"
	"github.com/spms-dev/spms/internal/types"
)

type DiscordWebhookField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type DiscordEmbed struct {
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Color       int                   `json:"color"`
	Fields      []DiscordWebhookField `json:"fields"`
	Footer      *DiscordFooter        `json:"footer,omitempty"`
	Timestamp   string                `json:"timestamp"`
}

type DiscordFooter struct {
	Text string `json:"text"`
}

type DiscordWebhookRequest struct {
	Username string         `json:"username"`
	Embeds   []DiscordEmbed `json:"embeds"`
}

type SlackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type SlackAttachment struct {
	Color     string       `json:"color"`
	Title     string       `json:"title"`
	Text      string       `json:"text"`
	Fields    []SlackField `json:"fields"`
	Footer    string       `json:"footer"`
	Timestamp int64        `json:"ts"`
}

type SlackWebhookRequest struct {
	Username    string            `json:"username"`
	IconEmoji   string            `json:"icon_emoji,omitempty"`
	Text        string            `json:"text"`
	Attachments []SlackAttachment `json:"attachments"`
}

const (
	ColorBlue   = 3447003  // #3498DB - Task submitted
	ColorGreen  = 65280    // #00FF00 - Task fulfilled
	ColorOrange = 16753920 // #FFA500 - Task rejected or cancelled

	Username = "SPMS Admin"
)

var actionLabels = map[string]string{
	types.ActionDeleteProject: "Project deletion",
	types.ActionMergeUser:     "User merge",
	types.ActionSetCaretaker:  "Caretaker assignment",
}

// SendTaskSubmittedNotification posts the new request to whichever admin
// webhooks are configured (ADMIN_DISCORD_WEBHOOK, ADMIN_SLACK_WEBHOOK).
func SendTaskSubmittedNotification(task *models.AdminTask) error {
	if url := os.Getenv("ADMIN_DISCORD_WEBHOOK"); url != "" {
		if err := sendDiscordTaskSubmitted(url, task); err != nil {
			return fmt.Errorf("discord: %w", err)
		}
	}

	if url := os.Getenv("ADMIN_SLACK_WEBHOOK"); url != "" {
		if err := sendSlackTaskSubmitted(url, task); err != nil {
			return fmt.Errorf("slack: %w", err)
		}
	}

	return nil
}

// SendTaskResolvedNotification posts a task's terminal status to the
// configured admin webhooks.
func SendTaskResolvedNotification(task *models.AdminTask) error {
	if url := os.Getenv("ADMIN_DISCORD_WEBHOOK"); url != "" {
		if err := sendDiscordTaskResolved(url, task); err != nil {
			return fmt.Errorf("discord: %w", err)
		}
	}

	if url := os.Getenv("ADMIN_SLACK_WEBHOOK"); url != "" {
		if err := sendSlackTaskResolved(url, task); err != nil {
			return fmt.Errorf("slack: %w", err)
		}
	}

	return nil
}

func actionLabel(action string) string {
	if label, ok := actionLabels[action]; ok {
		return label
	}

	return action
}

func sendDiscordTaskSubmitted(webhookURL string, task *models.AdminTask) error {
	payload := DiscordWebhookRequest{
		Username: Username,
		Embeds: []DiscordEmbed{
			{
				Title:       "📥 **TASK SUBMITTED**",
				Description: fmt.Sprintf("**%s** request #%d is awaiting approval.", actionLabel(task.Action), task.ID),
				Color:       ColorBlue,
				Fields: []DiscordWebhookField{
					{Name: "Action", Value: actionLabel(task.Action), Inline: true},
					{Name: "Requester", Value: fmt.Sprintf("user %d", task.RequesterID), Inline: true},
					{Name: "Reason", Value: orUnknown(task.Reason), Inline: false},
				},
				Footer: &DiscordFooter{
					Text: "SPMS task workflow",
				},
				Timestamp: time.Now().Format(time.RFC3339),
			},
		},
	}

	return sendDiscordWebhook(webhookURL, payload)
}

func sendDiscordTaskResolved(webhookURL string, task *models.AdminTask) error {
	color := ColorGreen
	if task.Status != types.TaskFulfilled {
		color = ColorOrange
	}

	payload := DiscordWebhookRequest{
		Username: Username,
		Embeds: []DiscordEmbed{
			{
				Title:       "📤 **TASK " + task.Status + "**",
				Description: fmt.Sprintf("**%s** request #%d has been processed.", actionLabel(task.Action), task.ID),
				Color:       color,
				Fields: []DiscordWebhookField{
					{Name: "Action", Value: actionLabel(task.Action), Inline: true},
					{Name: "Status", Value: "**" + task.Status + "**", Inline: true},
					{Name: "Notes", Value: orUnknown(task.Notes), Inline: false},
				},
				Footer: &DiscordFooter{
					Text: "SPMS task workflow",
				},
				Timestamp: time.Now().Format(time.RFC3339),
			},
		},
	}

	return sendDiscordWebhook(webhookURL, payload)
}

func sendSlackTaskSubmitted(webhookURL string, task *models.AdminTask) error {
	payload := SlackWebhookRequest{
		Username:  Username,
		IconEmoji: ":inbox_tray:",
		Text:      ":inbox_tray: *TASK SUBMITTED*",
		Attachments: []SlackAttachment{
			{
				Color: "#3498DB",
				Title: fmt.Sprintf("%s request #%d is awaiting approval", actionLabel(task.Action), task.ID),
				Text:  orUnknown(task.Reason),
				Fields: []SlackField{
					{Title: "Action", Value: actionLabel(task.Action), Short: true},
					{Title: "Requester", Value: fmt.Sprintf("user %d", task.RequesterID), Short: true},
				},
				Footer:    "SPMS task workflow",
				Timestamp: time.Now().Unix(),
			},
		},
	}

	return sendSlackWebhook(webhookURL, payload)
}

func sendSlackTaskResolved(webhookURL string, task *models.AdminTask) error {
	color := "good"
	if task.Status != types.TaskFulfilled {
		color = "warning"
	}

	payload := SlackWebhookRequest{
		Username:  Username,
		IconEmoji: ":outbox_tray:",
		Text:      ":outbox_tray: *TASK " + task.Status + "*",
		Attachments: []SlackAttachment{
			{
				Color: color,
				Title: fmt.Sprintf("%s request #%d has been processed", actionLabel(task.Action), task.ID),
				Text:  orUnknown(task.Notes),
				Fields: []SlackField{
					{Title: "Action", Value: actionLabel(task.Action), Short: true},
					{Title: "Status", Value: task.Status, Short: true},
				},
				Footer:    "SPMS task workflow",
				Timestamp: time.Now().Unix(),
			},
		},
	}

	return sendSlackWebhook(webhookURL, payload)
}

func orUnknown(value string) string {
	if value == "" {
		return "(none)"
	}

	return value
}

func sendDiscordWebhook(webhookURL string, payload DiscordWebhookRequest) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal Discord payload: %w", err)
	}

	resp, err := http.Post(webhookURL, "application/json", bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to send Discord webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("Discord webhook returned status %d", resp.StatusCode)
	}

	return nil
}

func sendSlackWebhook(webhookURL string, payload SlackWebhookRequest) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal Slack payload: %w", err)
	}

	resp, err := http.Post(webhookURL, "application/json", bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to send Slack webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("Slack webhook returned status %d", resp.StatusCode)
	}

	return nil
}
