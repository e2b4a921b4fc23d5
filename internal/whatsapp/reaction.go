package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/mkarpov/mapwatch/internal/database"
	"github.com/mkarpov/mapwatch/internal/metrics"
	"github.com/mkarpov/mapwatch/pkg/models"
)

// tokenCommand matches the credential-update command in direct chats,
// e.g. "!token eyJhbGciOi..."
var tokenCommand = regexp.MustCompile(`(?i)^!token\s+(\S+)$`)

// SettingsStore looks up per-group settings
type SettingsStore interface {
	GetGroupSetting(ctx context.Context, groupID string) (*models.GroupSetting, error)
}

// Capturer produces a fresh screenshot artifact
type Capturer interface {
	Capture(ctx context.Context) (*models.Screenshot, error)
}

// CredentialSaver rotates the map-service credential
type CredentialSaver interface {
	SaveCredential(ctx context.Context, token string) error
}

// Sender delivers messages to chats
type Sender interface {
	IsReady() bool
	SendImage(ctx context.Context, chatID string, png []byte, caption string) error
	SendText(ctx context.Context, chatID, text string) error
}

// Router reacts to inbound messages: a keyword configured per group triggers
// one immediate capture+delivery to that group, and a credential-update
// command in a direct chat rotates the map-service token.
type Router struct {
	settings SettingsStore
	capturer Capturer
	creds    CredentialSaver
	sender   Sender
	logger   *slog.Logger
}

// NewRouter creates the reaction router
func NewRouter(settings SettingsStore, capturer Capturer, creds CredentialSaver, sender Sender, logger *slog.Logger) *Router {
	return &Router{
		settings: settings,
		capturer: capturer,
		creds:    creds,
		sender:   sender,
		logger:   logger.With("component", "reaction_router"),
	}
}

// HandleMessage routes one inbound message. Non-matching messages are
// ignored silently.
func (r *Router) HandleMessage(ctx context.Context, msg *InboundMessage) {
	if msg.IsGroup {
		r.handleGroupMessage(ctx, msg)
		return
	}
	r.handleDirectMessage(ctx, msg)
}

func (r *Router) handleDirectMessage(ctx context.Context, msg *InboundMessage) {
	m := tokenCommand.FindStringSubmatch(strings.TrimSpace(msg.Text))
	if m == nil {
		return
	}

	r.logger.Info("credential update command received", "chat", msg.ChatID)
	if err := r.creds.SaveCredential(ctx, m[1]); err != nil {
		r.logger.Error("failed to save credential", "error", err)
		r.reply(ctx, msg.ChatID, fmt.Sprintf("Token update failed: %v", err))
		return
	}
	r.reply(ctx, msg.ChatID, "Token updated, session restarted.")
}

func (r *Router) handleGroupMessage(ctx context.Context, msg *InboundMessage) {
	setting, err := r.settings.GetGroupSetting(ctx, msg.ChatID)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			r.logger.Error("failed to load group setting", "group", msg.ChatID, "error", err)
		}
		return
	}

	keyword := strings.TrimSpace(setting.ReactOnMessage)
	if keyword == "" {
		return
	}
	if !strings.Contains(strings.ToLower(msg.Text), strings.ToLower(keyword)) {
		return
	}

	r.logger.Info("keyword matched, capturing", "group", msg.ChatID, "keyword", keyword)

	shot, err := r.capturer.Capture(ctx)
	if err != nil {
		r.logger.Error("failed to capture for reaction", "group", msg.ChatID, "error", err)
		metrics.DeliveriesTotal.WithLabelValues("reaction", "error").Inc()
		return
	}

	png, err := os.ReadFile(shot.Path)
	if err != nil {
		r.logger.Error("failed to read screenshot", "file", shot.Path, "error", err)
		metrics.DeliveriesTotal.WithLabelValues("reaction", "error").Inc()
		return
	}

	if err := r.sender.SendImage(ctx, msg.ChatID, png, ""); err != nil {
		r.logger.Error("failed to deliver reaction screenshot", "group", msg.ChatID, "error", err)
		metrics.DeliveriesTotal.WithLabelValues("reaction", "error").Inc()
		return
	}
	metrics.DeliveriesTotal.WithLabelValues("reaction", "ok").Inc()
}

func (r *Router) reply(ctx context.Context, chatID, text string) {
	if err := r.sender.SendText(ctx, chatID, text); err != nil {
		r.logger.Error("failed to send reply", "chat", chatID, "error", err)
	}
}
