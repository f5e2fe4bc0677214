package telegram

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/digkill/genstudio/internal/ledger"
	"github.com/digkill/genstudio/internal/models"
	"github.com/digkill/genstudio/internal/prompt"
	"github.com/digkill/genstudio/internal/service"
	"github.com/digkill/genstudio/internal/wizard"
)

const historyPreviewSize = 5

// Sender is the subset of *tgbotapi.BotAPI the handlers use.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Generations interface {
	wizard.Submitter
	History() []models.GeneratedMediaRecord
	Credits() models.CreditState
}

type Library interface {
	Save(ctx context.Context, recordID string) (models.LibraryRecord, error)
}

type Settings interface {
	wizard.SettingsRecorder
	Current() models.Settings
}

type Deps struct {
	Composer    wizard.Composer
	Generations Generations
	Library     Library
	Settings    Settings
}

type Bot struct {
	api      *tgbotapi.BotAPI
	sender   Sender
	log      *slog.Logger
	deps     Deps
	state    *StateManager
	delivery sync.WaitGroup
}

func NewBot(api *tgbotapi.BotAPI, log *slog.Logger, deps Deps) *Bot {
	b := newBot(api, log, deps)
	b.api = api
	return b
}

func newBot(sender Sender, log *slog.Logger, deps Deps) *Bot {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Bot{
		sender: sender,
		log:    log,
		deps:   deps,
		state:  NewStateManager(),
	}
}

func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.log.Info("telegram bot started")

	for {
		select {
		case update := <-updates:
			b.handleUpdate(ctx, update)
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.delivery.Wait()
			return ctx.Err()
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message != nil {
		b.handleMessage(ctx, update.Message)
	} else if update.CallbackQuery != nil {
		b.handleCallback(ctx, update.CallbackQuery)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	chatID := msg.Chat.ID
	session, ok := b.state.Get(chatID)
	if !ok {
		b.sendText(chatID, "Send /generate to start a new image.")
		return
	}

	switch session.View().Step {
	case wizard.StepHelperSelect:
		id, pending := session.PendingHelper()
		if !pending {
			b.sendText(chatID, "Pick helpers with the buttons, then press Next.")
			return
		}
		if err := session.CaptureDetail(id, msg.Text); err != nil {
			b.sendText(chatID, "The detail cannot be empty. Please send it again.")
			return
		}
		b.render(chatID, session)
	case wizard.StepPromptEntry:
		if err := session.SetPrompt(msg.Text); err != nil {
			b.log.Error("set prompt", "err", err)
			return
		}
		if err := session.Next(); err != nil {
			b.sendText(chatID, "The description cannot be empty. Please describe the image.")
			return
		}
		b.render(chatID, session)
	default:
		b.sendText(chatID, "Use the buttons above to continue.")
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	switch msg.Command() {
	case "start":
		b.sendText(chatID, "Welcome to the studio!\n\nEach image costs 1 credit and failed generations are refunded.\n\nCommands:\n/generate - start a new image\n/balance - show remaining credits\n/history - recent generations\n/save <id> - save a ready image to the library\n/cancel - abandon the current wizard")
	case "generate":
		session := b.state.Start(chatID, b.deps.Settings.Current())
		b.render(chatID, session)
	case "balance":
		credits := b.deps.Generations.Credits()
		b.sendText(chatID, fmt.Sprintf("Credits: %d of %d remaining.", credits.Remaining, credits.Total))
	case "history":
		b.sendText(chatID, formatHistory(b.deps.Generations.History()))
	case "save":
		b.handleSave(ctx, chatID, strings.TrimSpace(msg.CommandArguments()))
	case "cancel":
		b.state.Reset(chatID)
		b.sendText(chatID, "Wizard cancelled.")
	default:
		b.sendText(chatID, "Unknown command. Use /generate.")
	}
}

func (b *Bot) handleSave(ctx context.Context, chatID int64, recordID string) {
	if recordID == "" {
		b.sendText(chatID, "Usage: /save <id>")
		return
	}
	entry, err := b.deps.Library.Save(ctx, recordID)
	switch {
	case err == nil:
		b.sendText(chatID, fmt.Sprintf("Saved to library as %q.", entry.Title))
	case errors.Is(err, service.ErrRecordNotFound):
		b.sendText(chatID, "No generation with that id.")
	case errors.Is(err, service.ErrNotReady):
		b.sendText(chatID, "Only ready images can be saved.")
	default:
		b.log.Error("save to library", "err", err)
		b.sendText(chatID, "Could not save the image, please try again later.")
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	session, ok := b.state.Get(chatID)
	if !ok {
		b.ack(cb.ID, "Session expired, send /generate")
		return
	}

	kind, value, _ := strings.Cut(cb.Data, ":")
	var err error
	switch kind {
	case "style":
		if err = session.SelectStyle(models.Style(value)); err == nil {
			err = session.Next()
		}
	case "size":
		if err = session.SelectSize(models.Size(value)); err == nil {
			err = session.Next()
		}
	case "helper":
		err = toggleHelper(session, value)
	case "ai":
		err = session.SetAIAssisted(value == "on")
	case "nav":
		if value == "back" {
			err = session.Back()
		} else {
			err = session.Next()
		}
	case "confirm":
		b.ack(cb.ID, "Generating")
		b.confirm(ctx, chatID, session)
		return
	case "cancel":
		b.state.Reset(chatID)
		b.ack(cb.ID, "Cancelled")
		b.sendText(chatID, "Wizard cancelled.")
		return
	default:
		b.ack(cb.ID, "Unknown choice")
		return
	}

	if err != nil {
		b.ack(cb.ID, callbackError(err))
		return
	}
	b.ack(cb.ID, "")
	if id, pending := session.PendingHelper(); pending && kind == "helper" {
		if tmpl, ok := prompt.LookupHelper(id); ok {
			b.sendText(chatID, fmt.Sprintf("Send the detail for %q.", tmpl.Name))
			return
		}
	}
	b.render(chatID, session)
}

func toggleHelper(session *wizard.Session, id string) error {
	for _, h := range session.View().Helpers {
		if h.ID == id {
			return session.DeselectHelper(id)
		}
	}
	if pending, ok := session.PendingHelper(); ok {
		return fmt.Errorf("%w: %s", wizard.ErrHelperDetailPending, pending)
	}
	return session.SelectHelper(id)
}

func (b *Bot) confirm(ctx context.Context, chatID int64, session *wizard.Session) {
	pending, done, err := session.Confirm(ctx, b.deps.Composer, b.deps.Generations, b.deps.Settings)
	b.state.Reset(chatID)
	switch {
	case err == nil:
	case errors.Is(err, ledger.ErrInsufficientCredits):
		b.sendText(chatID, "Not enough credits for a new image.")
		return
	case errors.Is(err, wizard.ErrWrongStep):
		b.sendText(chatID, "The wizard is not at the confirmation step. Send /generate to restart.")
		return
	default:
		b.log.Error("confirm wizard", "err", err)
		b.sendText(chatID, "Could not start the generation, please try again later.")
		return
	}

	b.sendText(chatID, fmt.Sprintf("Generating %s. I will send the image as soon as it is ready.", pending.ID))
	b.delivery.Add(1)
	go func() {
		defer b.delivery.Done()
		b.deliver(chatID, <-done)
	}()
}

func (b *Bot) deliver(chatID int64, rec models.GeneratedMediaRecord) {
	if rec.Status != models.StatusReady {
		b.sendText(chatID, fmt.Sprintf("Generation %s failed and your credit was refunded.", rec.ID))
		return
	}

	var file tgbotapi.RequestFileData = tgbotapi.FileURL(rec.URL)
	if data, ok := decodeDataURL(rec.URL); ok {
		file = tgbotapi.FileBytes{Name: "generation.png", Bytes: data}
	}
	photo := tgbotapi.NewPhoto(chatID, file)
	photo.Caption = fmt.Sprintf("%s · %s\nid: %s\nSave it with /save %s", rec.Style, rec.Size, rec.ID, rec.ID)
	if _, err := b.sender.Send(photo); err != nil {
		b.log.Error("send image", "err", err)
	}
}

func (b *Bot) render(chatID int64, session *wizard.Session) {
	view := session.View()
	var text string
	var rows [][]tgbotapi.InlineKeyboardButton

	switch view.Step {
	case wizard.StepStyleSelect:
		text = "Step 1/5: choose a style."
		for _, style := range models.Styles() {
			label := string(style)
			if style == view.Style {
				label = "✓ " + label
			}
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(label, "style:"+string(style))))
		}
	case wizard.StepSizeSelect:
		text = "Step 2/5: choose a size."
		for _, size := range models.Sizes() {
			width, height := size.Dimensions()
			label := fmt.Sprintf("%s (%dx%d)", size, width, height)
			if size == view.Size {
				label = "✓ " + label
			}
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(label, "size:"+string(size))))
		}
	case wizard.StepHelperSelect:
		text = "Step 3/5: add optional helpers, then press Next."
		selected := make(map[string]string, len(view.Helpers))
		for _, h := range view.Helpers {
			selected[h.ID] = h.Detail
		}
		for _, tmpl := range prompt.Helpers() {
			label := tmpl.Name
			if detail, ok := selected[tmpl.ID]; ok {
				label = fmt.Sprintf("✓ %s: %s", tmpl.Name, detail)
			}
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(label, "helper:"+tmpl.ID)))
		}
	case wizard.StepPromptEntry:
		text = "Step 4/5: describe the image you want."
		if view.Prompt != "" {
			text += fmt.Sprintf("\nLast time: %q. Send it again or write a new one.", view.Prompt)
		}
	case wizard.StepConfirm:
		text = formatSummary(view)
		aiLabel, aiData := "AI enhancement: off", "ai:on"
		if view.AIAssisted {
			aiLabel, aiData = "AI enhancement: on", "ai:off"
		}
		rows = append(rows,
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(aiLabel, aiData)),
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Generate", "confirm")),
		)
	}

	nav := []tgbotapi.InlineKeyboardButton{}
	if view.Step != wizard.StepStyleSelect {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("Back", "nav:back"))
	}
	if view.Step != wizard.StepConfirm && view.Step != wizard.StepPromptEntry {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("Next", "nav:next"))
	}
	nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("Cancel", "cancel"))
	rows = append(rows, nav)

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	if _, err := b.sender.Send(msg); err != nil {
		b.log.Error("send keyboard", "err", err)
	}
}

func formatSummary(view wizard.View) string {
	var sb strings.Builder
	sb.WriteString("Step 5/5: confirm.\n")
	fmt.Fprintf(&sb, "Style: %s\nSize: %s\n", view.Style, view.Size)
	for _, h := range view.Helpers {
		name := h.ID
		if tmpl, ok := prompt.LookupHelper(h.ID); ok {
			name = tmpl.Name
		}
		fmt.Fprintf(&sb, "%s: %s\n", name, h.Detail)
	}
	fmt.Fprintf(&sb, "Prompt: %s", view.Prompt)
	return sb.String()
}

func formatHistory(history []models.GeneratedMediaRecord) string {
	if len(history) == 0 {
		return "No generations yet."
	}
	var sb strings.Builder
	sb.WriteString("Recent generations:")
	for i, rec := range history {
		if i == historyPreviewSize {
			break
		}
		marker := ""
		if rec.Favorite {
			marker = " ★"
		}
		fmt.Fprintf(&sb, "\n%s [%s]%s %s", rec.ID, rec.Status, marker, truncate(rec.Prompt, 60))
	}
	return sb.String()
}

func callbackError(err error) string {
	switch {
	case errors.Is(err, wizard.ErrStyleRequired):
		return "Choose a style first"
	case errors.Is(err, wizard.ErrSizeRequired):
		return "Choose a size first"
	case errors.Is(err, wizard.ErrHelperDetailPending):
		return "Send the pending helper detail first"
	case errors.Is(err, wizard.ErrPromptRequired):
		return "Describe the image first"
	case errors.Is(err, wizard.ErrFirstStep):
		return "Already at the first step"
	case errors.Is(err, wizard.ErrSessionClosed):
		return "Session expired, send /generate"
	default:
		return "Not available right now"
	}
}

func (b *Bot) ack(callbackID, text string) {
	if _, err := b.sender.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.log.Error("callback ack", "err", err)
	}
}

func (b *Bot) sendText(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.sender.Send(msg); err != nil {
		b.log.Error("send text", "err", err)
	}
}

func decodeDataURL(raw string) ([]byte, bool) {
	rest, ok := strings.CutPrefix(raw, "data:")
	if !ok {
		return nil, false
	}
	_, payload, ok := strings.Cut(rest, ";base64,")
	if !ok {
		return nil, false
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, false
	}
	return data, true
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "…"
}
