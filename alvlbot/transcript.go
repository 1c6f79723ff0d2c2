package alvlbot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

const (
	// transcriptTimestampFormat matches the dd/mm/yyyy layout used in the
	// server's log channels.
	transcriptTimestampFormat = "02/01/2006 15:04:05"

	// channelMessagesPageSize is the Discord API maximum per request.
	channelMessagesPageSize = 100
)

// Transcript is a rendered record of a ticket channel's messages,
// produced at closure time.
type Transcript struct {
	Filename    string
	ContentType string
	Body        []byte
}

// fetchAllMessages retrieves the full message history of a channel in
// chronological order, paginating backwards from the newest message.
func fetchAllMessages(
	session DiscordSessionHandler,
	channelID string,
) ([]*discordgo.Message, error) {
	var all []*discordgo.Message
	beforeID := ""
	for {
		page, err := session.ChannelMessages(
			channelID,
			channelMessagesPageSize,
			beforeID,
			"",
			"",
		)
		if err != nil {
			return nil, fmt.Errorf("error fetching channel messages: %w", err)
		}
		if len(page) == 0 {
			break
		}
		all = append(all, page...)
		beforeID = page[len(page)-1].ID
		if len(page) < channelMessagesPageSize {
			break
		}
	}

	sort.Slice(
		all, func(i, j int) bool {
			return all[i].Timestamp.Before(all[j].Timestamp)
		},
	)
	return all, nil
}

// fallbackTranscript serializes a channel's messages as plain text, one
// `[timestamp] author: content` line per message in chronological order.
// A channel with no messages still yields a header-only transcript.
func fallbackTranscript(
	channelName string,
	closedBy string,
	closedAt time.Time,
	messages []*discordgo.Message,
) *Transcript {
	var b strings.Builder

	b.WriteString(
		fmt.Sprintf(
			"=== TRANSCRIÇÃO DO TICKET %s ===\n",
			strings.ToUpper(channelName),
		),
	)
	b.WriteString(fmt.Sprintf("Fechado por: %s\n", closedBy))
	b.WriteString(
		fmt.Sprintf(
			"Data de fechamento: %s\n",
			closedAt.Format(transcriptTimestampFormat),
		),
	)
	b.WriteString(strings.Repeat("=", 50) + "\n\n")

	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		content := m.Content
		if content == "" {
			content = "[Embed/Anexo]"
		}
		var author string
		if m.Author != nil {
			author = m.Author.Username
		}
		lines = append(
			lines,
			fmt.Sprintf(
				"[%s] %s: %s",
				m.Timestamp.Format(transcriptTimestampFormat),
				author,
				content,
			),
		)
	}
	b.WriteString(strings.Join(lines, "\n"))

	return &Transcript{
		Filename:    fmt.Sprintf("transcript-%s.txt", channelName),
		ContentType: "text/plain",
		Body:        []byte(b.String()),
	}
}

// TranscriptExporter renders a channel's message history to HTML via an
// external rendering service. Best-effort: callers fall back to
// [fallbackTranscript] when the exporter is unconfigured or fails.
type TranscriptExporter struct {
	url     string
	timeout time.Duration
	client  *http.Client
}

func newTranscriptExporter(
	config *TranscriptConfig,
	client *http.Client,
) *TranscriptExporter {
	if config == nil {
		return &TranscriptExporter{}
	}
	if client == nil {
		client = http.DefaultClient
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = DefaultTranscriptExportTimeout
	}
	return &TranscriptExporter{
		url:     config.ExporterURL,
		timeout: timeout,
		client:  client,
	}
}

// Enabled reports whether an exporter endpoint is configured.
func (t *TranscriptExporter) Enabled() bool {
	return t != nil && t.url != ""
}

// transcriptExportMessage is one message in the exporter request payload.
type transcriptExportMessage struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type transcriptExportRequest struct {
	ChannelID   string                    `json:"channel_id"`
	ChannelName string                    `json:"channel_name"`
	Messages    []transcriptExportMessage `json:"messages"`
}

// Export sends the channel history to the rendering service and returns
// the rendered HTML transcript.
func (t *TranscriptExporter) Export(
	ctx context.Context,
	channelID string,
	channelName string,
	messages []*discordgo.Message,
) (*Transcript, error) {
	if !t.Enabled() {
		return nil, fmt.Errorf("transcript exporter not configured")
	}

	payload := transcriptExportRequest{
		ChannelID:   channelID,
		ChannelName: channelName,
		Messages:    make([]transcriptExportMessage, 0, len(messages)),
	}
	for _, m := range messages {
		msg := transcriptExportMessage{
			ID:        m.ID,
			Content:   m.Content,
			Timestamp: m.Timestamp,
		}
		if m.Author != nil {
			msg.AuthorID = m.Author.ID
			msg.Author = m.Author.Username
		}
		payload.Messages = append(payload.Messages, msg)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("error encoding export request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		t.url,
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, fmt.Errorf("error creating export request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error calling transcript exporter: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf(
			"transcript exporter returned status %d",
			resp.StatusCode,
		)
	}

	rendered, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading export response: %w", err)
	}
	if len(rendered) == 0 {
		return nil, fmt.Errorf("transcript exporter returned an empty body")
	}

	return &Transcript{
		Filename:    fmt.Sprintf("transcript-%s.html", channelName),
		ContentType: "text/html",
		Body:        rendered,
	}, nil
}
