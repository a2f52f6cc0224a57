package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spectravue/emit-unmix/internal/properties"
)

type DiscordMessage struct {
	Embeds []DiscordEmbed `json:"embeds"`
}

type DiscordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
}

// SendDiscordErrorNotification posts a failure embed to the configured
// webhook. Callers skip it when no webhook URL is set.
func SendDiscordErrorNotification(errorMessage string) error {
	message := DiscordMessage{
		Embeds: []DiscordEmbed{
			{
				Title:       "🚨 Pipeline failed",
				Description: fmt.Sprintf("Granule processing aborted: %s", errorMessage),
				Color:       16711680, // Red color
			},
		},
	}
	return postDiscord(properties.DiscordErrorNotificationUrl(), message)
}

func SendDiscordSuccessNotification(successMessage string) error {
	message := DiscordMessage{
		Embeds: []DiscordEmbed{
			{
				Title:       "✅ Pipeline finished",
				Description: successMessage,
				Color:       65280, // Green color
			},
		},
	}
	return postDiscord(properties.DiscordSuccessNotificationUrl(), message)
}

func postDiscord(url string, message DiscordMessage) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}

	resp, err := http.Post(url, "application/json", bytes.NewBuffer(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to send Discord notification, status code: %d", resp.StatusCode)
	}

	return nil
}
