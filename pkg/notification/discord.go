package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/LeonardoPuccio/smartmove/pkg/config"
)

const (
	// hardcoded limit of fields to avoid hammering the api
	maxFields = 25
)

type DiscordMessage struct {
	Content interface{}    `json:"content"`
	Embeds  []DiscordEmbed `json:"embeds,omitempty"`
}

type DiscordEmbed struct {
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Color       int                  `json:"color"`
	Fields      []DiscordEmbedsField `json:"fields,omitempty"`
	Footer      DiscordEmbedsFooter  `json:"footer,omitempty"`
	Timestamp   time.Time            `json:"timestamp"`
}

type DiscordEmbedsFooter struct {
	Text string `json:"text"`
}

type DiscordEmbedsField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

const (
	colorBlue = 0x58b9ff
	colorGray = 0x99aab5
)

type discordSender struct {
	log    *logrus.Entry
	config config.NotificationsConfig

	httpClient *retryablehttp.Client
}

func (d *discordSender) Name() string {
	return "discord"
}

func NewDiscordSender(log *logrus.Entry, cfg config.NotificationsConfig) Sender {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.HTTPClient.Timeout = 30 * time.Second
	client.Logger = nil

	return &discordSender{
		log:        log.WithField("sender", "discord"),
		config:     cfg,
		httpClient: client,
	}
}

func (d *discordSender) CanSend() bool {
	return d.config.Service.Discord != ""
}

func (d *discordSender) Send(title string, description string, runTime time.Duration, fields []Field, dryRun bool) error {
	if !d.CanSend() {
		return nil
	}

	if dryRun {
		title = title + " (Dry Run)"
	}

	if len(fields) == 0 && d.config.SkipEmptyRun {
		return nil
	}

	embed := DiscordEmbed{
		Title:       title,
		Description: description,
		Color:       colorBlue,
		Footer:      DiscordEmbedsFooter{Text: fmt.Sprintf("Run time: %s", runTime.Truncate(time.Millisecond))},
		Timestamp:   time.Now(),
	}
	if dryRun {
		embed.Color = colorGray
	}

	if d.config.Detailed {
		for i, f := range fields {
			if i == maxFields {
				break
			}
			embed.Fields = append(embed.Fields, DiscordEmbedsField{Name: f.Name, Value: f.Value})
		}
	}

	payload, err := json.Marshal(DiscordMessage{Content: nil, Embeds: []DiscordEmbed{embed}})
	if err != nil {
		return errors.Wrap(err, "marshal discord message")
	}

	resp, err := d.httpClient.Post(d.config.Service.Discord, "application/json", bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "send discord notification")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return errors.Errorf("discord webhook returned %d: %s", resp.StatusCode, string(body))
	}

	d.log.Debug("Sent notification")
	return nil
}
