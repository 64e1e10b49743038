package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"barakah-tasks/internal/caldav"
	"barakah-tasks/internal/config"
	"barakah-tasks/internal/model"
	"barakah-tasks/internal/repository"
	"barakah-tasks/internal/service"
	"barakah-tasks/internal/tasks"
)

type conversationStage int

const (
	stageNone conversationStage = iota
	stageTitle
	stageDescription
	stageCategory
	stagePriority
	stageDueDate
	stageDueTime
	stageRecurring
)

type conversationState struct {
	stage        conversationStage
	input        service.TaskInput
	categoryName string
}

type confirmationAction int

const (
	actionComplete confirmationAction = iota
	actionDelete
)

type confirmationRequest struct {
	taskID string
	action confirmationAction
}

// Services groups what the bot talks to.
type Services struct {
	Users      *repository.UserRepository
	Templates  *repository.TemplateRepository
	Settings   *repository.SettingsRepository
	Categories *service.CategoryService
	Sessions   *service.Sessions
	Reminders  *service.ReminderService
	Prayers    *service.PrayerService
	Quran      *service.QuranService
	CalDAV     *service.CalDAVService
	Analytics  *service.AnalyticsService
}

// Bot aggregates Telegram API with services.
type Bot struct {
	api    *tgbotapi.BotAPI
	svc    Services
	config *config.Config

	conversations map[int64]*conversationState
	confirmations map[int64]confirmationRequest
	mu            sync.Mutex
}

func New(token string, svc Services, cfg *config.Config) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	log.Printf("[info] bot authorized on account %s", api.Self.UserName)

	return &Bot{
		api:           api,
		svc:           svc,
		config:        cfg,
		conversations: make(map[int64]*conversationState),
		confirmations: make(map[int64]confirmationRequest),
	}, nil
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	log.Println("[info] start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
				log.Printf("[warn] handle callback: %v", err)
			}
		case update.Message != nil:
			if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
				continue
			}
			if err := b.handleMessage(ctx, update.Message); err != nil {
				log.Printf("[warn] handle message: %v", err)
			}
		}
	}

	return nil
}

// Notify sends a message to a user by internal id.
func (b *Bot) Notify(ctx context.Context, userID, text string) error {
	user, err := b.svc.Users.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("notify %s: %w", userID, err)
	}
	return b.sendText(user.TelegramID, text)
}

// SendDailyReports sends a summary to every known user.
func (b *Bot) SendDailyReports(ctx context.Context) error {
	users, err := b.svc.Users.ListAll(ctx)
	if err != nil {
		return err
	}
	for _, user := range users {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		text, err := b.dailySummary(ctx, user)
		if err != nil {
			log.Printf("[warn] build summary for user %d: %v", user.TelegramID, err)
			continue
		}
		if err := b.sendText(user.TelegramID, text); err != nil {
			log.Printf("[warn] send summary to %d: %v", user.TelegramID, err)
		}
	}
	return nil
}

func (b *Bot) dailySummary(ctx context.Context, user model.User) (string, error) {
	session, err := b.svc.Sessions.Get(ctx, user)
	if err != nil {
		return "", err
	}
	categories, err := b.svc.Categories.List(ctx, user.ID)
	if err != nil {
		return "", err
	}
	now := time.Now().In(user.Location())
	return b.svc.Reminders.DailySummary(session.Tasks(), categories, session.CalculateTaskStreak(), now), nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}

	if msg.Location != nil {
		return b.handleSharedLocation(ctx, msg)
	}

	if !msg.IsCommand() && isCancelDialogInput(msg.Text) {
		b.clearConversation(msg.From.ID)
		b.clearConfirmation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Task creation cancelled. Start again whenever you like.")
	}

	if !msg.IsCommand() {
		if handled, err := b.handleMenuAlias(ctx, msg); handled {
			return err
		}
	}

	if msg.IsCommand() {
		log.Printf("[info] command from %d: /%s", msg.From.ID, msg.Command())
		return b.handleCommand(ctx, msg)
	}

	if pending, ok := b.getConfirmation(msg.From.ID); ok {
		return b.handleConfirmationResponse(ctx, msg, pending)
	}

	if b.hasConversation(msg.From.ID) {
		log.Printf("[info] conversation step %d from %d", b.getConversation(msg.From.ID).stage, msg.From.ID)
		return b.handleConversation(ctx, msg)
	}

	return b.sendText(msg.Chat.ID, "I didn't catch that. Send /newtask to add a task or /help for the command list.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.handleHelp(msg)
	case "report":
		return b.handleReport(ctx, msg)
	case "newtask":
		return b.startNewTaskConversation(ctx, msg)
	case "subtask":
		return b.handleSubtask(ctx, msg)
	case "tasks":
		return b.handleListTasks(ctx, msg)
	case "today":
		return b.handleToday(ctx, msg)
	case "complete":
		return b.handleComplete(ctx, msg)
	case "delete":
		return b.handleDelete(ctx, msg)
	case "status":
		return b.handleStatus(ctx, msg)
	case "categories":
		return b.handleCategories(ctx, msg)
	case "templates":
		return b.handleTemplates(ctx, msg)
	case "fromtemplate":
		return b.handleFromTemplate(ctx, msg)
	case "streak", "stats":
		return b.handleStats(ctx, msg)
	case "prayers":
		return b.handlePrayers(ctx, msg)
	case "pray":
		return b.handlePray(ctx, msg, true)
	case "unpray":
		return b.handlePray(ctx, msg, false)
	case "location":
		return b.handleLocation(ctx, msg)
	case "timezone":
		return b.handleTimezone(ctx, msg)
	case "quran":
		return b.handleQuran(ctx, msg)
	case "caldav":
		return b.handleCalDAV(ctx, msg)
	case "cancel":
		b.clearConversation(msg.From.ID)
		b.clearConfirmation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Cancelled.")
	default:
		return b.sendText(msg.Chat.ID, "Unknown command. See /help.")
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	onboarded, _, err := b.svc.Settings.Get(ctx, user.ID, repository.KeyOnboardingDone)
	if err != nil {
		return err
	}
	if onboarded != "true" {
		if err := b.svc.Categories.EnsureDefaults(ctx, user.ID); err != nil {
			return err
		}
		if err := b.svc.Settings.Set(ctx, user.ID, repository.KeyOnboardingDone, "true"); err != nil {
			return err
		}
		log.Printf("[info] onboarded user=%s", user.ID)
	}

	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = "friend"
	}

	text := fmt.Sprintf(
		"Assalamu alaikum, %s! 👋\n<b>Barakah Tasks keeps your day, your prayers and your Quran reading in one place.</b>\n\n"+
			"• /newtask — add a task step by step\n"+
			"• /tasks — open tasks\n"+
			"• /today — what is due today\n"+
			"• /prayers — today's prayer times\n"+
			"• /quran — continue reading\n"+
			"• /help — all commands",
		escape(name),
	)
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	text := "ℹ️ <b>Commands</b>\n" +
		"<b>Tasks</b>\n" +
		"• /newtask — add a task step by step\n" +
		"• /subtask &lt;id&gt; &lt;title&gt; — add a subtask\n" +
		"• /tasks — open tasks with buttons\n" +
		"• /today — due and completed today\n" +
		"• /complete &lt;id&gt; — mark a task done\n" +
		"• /status &lt;id&gt; &lt;pending|in_progress|cancelled&gt; — change status\n" +
		"• /delete &lt;id&gt; — delete a task and its subtasks\n" +
		"• /templates, /fromtemplate &lt;id&gt; [YYYY-MM-DD] — Islamic task templates\n" +
		"• /categories, /stats, /report\n" +
		"<b>Worship</b>\n" +
		"• /prayers — timings and today's log\n" +
		"• /pray &lt;name&gt;, /unpray &lt;name&gt; — log a prayer\n" +
		"• /location &lt;lat&gt; &lt;lon&gt; [method] or share a location\n" +
		"• /timezone &lt;Area/City&gt;\n" +
		"• /quran [verses], /quran goto &lt;surah&gt;:&lt;ayah&gt;\n" +
		"<b>Calendar</b>\n" +
		"• /caldav connect &lt;url&gt; &lt;user&gt; &lt;password&gt;\n" +
		"• /caldav sync | status | disconnect\n" +
		"• /cancel — abort the current dialog"
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleReport(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	text, err := b.dailySummary(ctx, *user)
	if err != nil {
		return b.sendText(msg.Chat.ID, userError(err))
	}
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User) (*model.User, error) {
	user, created, err := b.svc.Users.UpsertFromTelegram(ctx, from.ID, from.FirstName, from.LastName, from.UserName)
	if err != nil {
		return nil, err
	}
	if created {
		log.Printf("[info] registered user=%s telegram=%d", user.ID, from.ID)
	}
	return user, nil
}

func (b *Bot) session(ctx context.Context, from *tgbotapi.User) (*model.User, *service.TaskService, error) {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return nil, nil, err
	}
	svc, err := b.svc.Sessions.Get(ctx, *user)
	if err != nil {
		return nil, nil, err
	}
	return user, svc, nil
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenuKeyboard()
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendTextWithRemove(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	if _, err := b.api.Send(msg); err != nil {
		return err
	}
	return b.sendMenuPlaceholder(chatID)
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendMenuPlaceholder(chatID int64) error {
	msg := tgbotapi.NewMessage(chatID, "🔹 Main menu")
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenuKeyboard()
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) ack(cb *tgbotapi.CallbackQuery, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, text)); err != nil {
		log.Printf("[warn] callback ack: %v", err)
	}
}

func (b *Bot) getConfirmation(userID int64) (confirmationRequest, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	req, ok := b.confirmations[userID]
	return req, ok
}

func (b *Bot) setConfirmation(userID int64, req confirmationRequest) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.confirmations[userID] = req
}

func (b *Bot) clearConfirmation(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.confirmations, userID)
}

func (b *Bot) setConversation(userID int64, state *conversationState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conversations[userID] = state
}

func (b *Bot) getConversation(userID int64) *conversationState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conversations[userID]
}

func (b *Bot) hasConversation(userID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.conversations[userID]
	return ok
}

func (b *Bot) clearConversation(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conversations, userID)
}

// userError turns a service error into a message for the chat.
func userError(err error) string {
	var verr *tasks.ValidationError
	switch {
	case errors.Is(err, tasks.ErrEmptyTitle):
		return "A task needs a title."
	case errors.Is(err, tasks.ErrNotFound):
		return "Task not found. It may have been deleted."
	case errors.As(err, &verr):
		return fmt.Sprintf("Invalid %s: %s.", escape(verr.Field), escape(verr.Reason))
	case errors.Is(err, service.ErrUnknownPrayer):
		return "Unknown prayer. Use fajr, dhuhr, asr, maghrib or isha."
	case errors.Is(err, caldav.ErrUnauthorized):
		return "The calendar server rejected your credentials."
	case errors.Is(err, caldav.ErrNotConnected):
		return "No calendar connected. Use /caldav connect &lt;url&gt; &lt;user&gt; &lt;password&gt;."
	default:
		return fmt.Sprintf("Something went wrong: %s", escape(err.Error()))
	}
}

func escape(s string) string {
	return html.EscapeString(s)
}
