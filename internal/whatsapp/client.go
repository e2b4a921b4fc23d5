package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"github.com/mkarpov/mapwatch/pkg/models"
)

// ErrNotReady is returned when the client is not paired and connected
var ErrNotReady = errors.New("whatsapp client is not ready")

// MessageHandler receives inbound messages
type MessageHandler func(ctx context.Context, msg *InboundMessage)

// InboundMessage is the slice of a message event the router needs
type InboundMessage struct {
	ChatID  string // Chat JID
	Sender  string // Sender JID
	IsGroup bool
	Text    string
}

// Client wraps the whatsmeow client with pairing state, group listing and
// image delivery
type Client struct {
	wa        *whatsmeow.Client
	container *sqlstore.Container
	logger    *slog.Logger

	mu        sync.RWMutex
	qrCode    string
	ready     bool
	onMessage MessageHandler
}

// NewClient opens the whatsmeow session store and builds the client
func NewClient(dbPath string, logger *slog.Logger) (*Client, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create whatsapp store directory: %w", err)
	}

	ctx := context.Background()
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", dbPath)
	container, err := sqlstore.New(ctx, "sqlite3", dsn, waLog.Noop)
	if err != nil {
		return nil, fmt.Errorf("failed to open whatsapp session store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load whatsapp device: %w", err)
	}

	c := &Client{
		wa:        whatsmeow.NewClient(device, waLog.Noop),
		container: container,
		logger:    logger.With("component", "whatsapp"),
	}
	c.wa.AddEventHandler(c.handleEvent)
	return c, nil
}

// SetMessageHandler sets the inbound message callback
func (c *Client) SetMessageHandler(handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = handler
}

// Connect connects to WhatsApp. On an unpaired device it starts the QR
// pairing flow; the current code is exposed via QRCode until pairing
// completes.
func (c *Client) Connect(ctx context.Context) error {
	if c.wa.Store.ID == nil {
		qrChan, err := c.wa.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("failed to get QR channel: %w", err)
		}
		if err := c.wa.Connect(); err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		go func() {
			for evt := range qrChan {
				switch evt.Event {
				case "code":
					c.logger.Info("QR code received, waiting for pairing")
					c.setQR(evt.Code)
				case "success":
					c.logger.Info("whatsapp pairing successful")
					c.setQR("")
				default:
					c.setQR("")
				}
			}
		}()
		return nil
	}

	if err := c.wa.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	return nil
}

// Disconnect shuts the connection down
func (c *Client) Disconnect() {
	c.wa.Disconnect()
	c.setReady(false)
	c.logger.Info("whatsapp client disconnected")
}

func (c *Client) handleEvent(evt any) {
	switch v := evt.(type) {
	case *events.Connected:
		c.logger.Info("whatsapp client is ready")
		c.setReady(true)
		c.setQR("")
	case *events.Disconnected:
		c.logger.Warn("whatsapp client lost connection")
		c.setReady(false)
	case *events.LoggedOut:
		c.logger.Warn("whatsapp device logged out", "reason", v.Reason)
		c.setReady(false)
	case *events.Message:
		c.dispatchMessage(v)
	}
}

func (c *Client) dispatchMessage(evt *events.Message) {
	c.mu.RLock()
	handler := c.onMessage
	c.mu.RUnlock()
	if handler == nil {
		return
	}

	text := evt.Message.GetConversation()
	if text == "" {
		text = evt.Message.GetExtendedTextMessage().GetText()
	}
	if text == "" {
		return
	}

	handler(context.Background(), &InboundMessage{
		ChatID:  evt.Info.Chat.String(),
		Sender:  evt.Info.Sender.String(),
		IsGroup: evt.Info.IsGroup,
		Text:    text,
	})
}

func (c *Client) setReady(ready bool) {
	c.mu.Lock()
	c.ready = ready
	c.mu.Unlock()
}

func (c *Client) setQR(code string) {
	c.mu.Lock()
	c.qrCode = code
	c.mu.Unlock()
}

// IsReady reports whether the client is paired and connected
func (c *Client) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// QRCode returns the current pairing code, empty when paired
func (c *Client) QRCode() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.qrCode
}

// Groups lists the groups the account is joined to
func (c *Client) Groups(ctx context.Context) ([]models.Group, error) {
	if !c.IsReady() {
		return nil, ErrNotReady
	}

	infos, err := c.wa.GetJoinedGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}

	groups := make([]models.Group, 0, len(infos))
	for _, info := range infos {
		groups = append(groups, models.Group{
			ID:   info.JID.String(),
			Name: info.Name,
		})
	}
	return groups, nil
}

// SendImage uploads png and sends it to the given chat JID
func (c *Client) SendImage(ctx context.Context, chatID string, png []byte, caption string) error {
	if !c.IsReady() {
		return ErrNotReady
	}

	jid, err := types.ParseJID(chatID)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", chatID, err)
	}

	uploaded, err := c.wa.Upload(ctx, png, whatsmeow.MediaImage)
	if err != nil {
		return fmt.Errorf("failed to upload image: %w", err)
	}

	msg := &waE2E.Message{
		ImageMessage: &waE2E.ImageMessage{
			Mimetype:      proto.String("image/png"),
			Caption:       proto.String(caption),
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			MediaKey:      uploaded.MediaKey,
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    proto.Uint64(uploaded.FileLength),
		},
	}

	if _, err := c.wa.SendMessage(ctx, jid, msg); err != nil {
		return fmt.Errorf("failed to send image: %w", err)
	}
	return nil
}

// SendText sends a plain text message to the given chat JID
func (c *Client) SendText(ctx context.Context, chatID, text string) error {
	if !c.IsReady() {
		return ErrNotReady
	}

	jid, err := types.ParseJID(chatID)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", chatID, err)
	}

	msg := &waE2E.Message{Conversation: proto.String(text)}
	if _, err := c.wa.SendMessage(ctx, jid, msg); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}
