package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"gorm.io/gorm"

	"barakah-tasks/internal/model"
	"barakah-tasks/internal/service"
	"barakah-tasks/internal/tasks"
)

const (
	cbCompletePrefix = "complete:"
	cbDeletePrefix   = "delete:"
	cbPrayPrefix     = "pray:"
)

func (b *Bot) startNewTaskConversation(ctx context.Context, msg *tgbotapi.Message) error {
	if _, err := b.ensureUser(ctx, msg.From); err != nil {
		return err
	}
	log.Printf("[info] start new task conversation user=%d", msg.From.ID)
	b.setConversation(msg.From.ID, &conversationState{stage: stageTitle})
	return b.sendWithReplyMarkup(msg.Chat.ID, "🆕 New task.\n<b>Step 1:</b> what should it be called?", cancelKeyboard())
}

func (b *Bot) handleConversation(ctx context.Context, msg *tgbotapi.Message) error {
	state := b.getConversation(msg.From.ID)
	if state == nil {
		return nil
	}

	text := strings.TrimSpace(msg.Text)
	switch state.stage {
	case stageTitle:
		if text == "" {
			return b.sendWithReplyMarkup(msg.Chat.ID, "A task needs a title. What should it be called?", cancelKeyboard())
		}
		state.input.Title = text
		state.stage = stageDescription
		return b.sendWithReplyMarkup(msg.Chat.ID, "✏️ Add a short description (or press Skip).", skipKeyboard())
	case stageDescription:
		if !isSkipInput(text) {
			state.input.Description = text
		}
		state.stage = stageCategory
		user, err := b.ensureUser(ctx, msg.From)
		if err != nil {
			return err
		}
		categories, err := b.svc.Categories.List(ctx, user.ID)
		if err != nil {
			return err
		}
		return b.sendWithReplyMarkup(msg.Chat.ID, "🏷 Pick a category or type a new one (or Skip).", categoryKeyboard(categories))
	case stageCategory:
		if !isSkipInput(text) {
			state.categoryName = stripCategoryIcon(text)
		}
		state.stage = stagePriority
		return b.sendWithReplyMarkup(msg.Chat.ID, "❗ Priority?", priorityKeyboard())
	case stagePriority:
		if !isSkipInput(text) {
			priority, ok := parsePriority(text)
			if !ok {
				return b.sendWithReplyMarkup(msg.Chat.ID, "Choose low, medium, high or urgent.", priorityKeyboard())
			}
			state.input.Priority = priority
		}
		state.stage = stageDueDate
		return b.sendWithReplyMarkup(msg.Chat.ID, "📅 Due date as <code>2025-11-30</code>, <i>today</i> or <i>tomorrow</i> (or Skip).", dueDateKeyboard())
	case stageDueDate:
		if !isSkipInput(text) {
			loc := b.userLocation(ctx, msg.From)
			date, ok := parseDueDate(text, time.Now().In(loc))
			if !ok {
				return b.sendWithReplyMarkup(msg.Chat.ID, "I can't read that date. Use <code>2025-11-30</code>, today, tomorrow or Skip.", dueDateKeyboard())
			}
			state.input.DueDate = date
			state.stage = stageDueTime
			return b.sendWithReplyMarkup(msg.Chat.ID, "⏰ Time as <code>18:30</code> for a reminder (or Skip).", skipKeyboard())
		}
		state.stage = stageRecurring
		return b.sendWithReplyMarkup(msg.Chat.ID, "🔁 Should it repeat?", recurrenceKeyboard())
	case stageDueTime:
		if !isSkipInput(text) {
			if _, err := time.Parse("15:04", text); err != nil {
				return b.sendWithReplyMarkup(msg.Chat.ID, "Use 24-hour <code>HH:MM</code>, or Skip.", skipKeyboard())
			}
			state.input.DueTime = text
		}
		state.stage = stageRecurring
		return b.sendWithReplyMarkup(msg.Chat.ID, "🔁 Should it repeat?", recurrenceKeyboard())
	case stageRecurring:
		pattern, ok := parseRecurrence(text)
		if !ok {
			return b.sendWithReplyMarkup(msg.Chat.ID, "Choose No, Daily, Weekly or Monthly.", recurrenceKeyboard())
		}
		state.input.RecurrencePattern = pattern
		state.input.IsRecurring = pattern != ""
		err := b.finishTaskCreation(ctx, msg.From, state, msg.Chat.ID)
		b.clearConversation(msg.From.ID)
		return err
	default:
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "Dialog reset. Try again with /newtask.")
	}
}

func (b *Bot) finishTaskCreation(ctx context.Context, from *tgbotapi.User, state *conversationState, chatID int64) error {
	user, session, err := b.session(ctx, from)
	if err != nil {
		return err
	}

	input := state.input
	if state.categoryName != "" {
		category, err := b.svc.Categories.GetOrCreate(ctx, user.ID, state.categoryName)
		if err != nil {
			return b.sendTextWithRemove(chatID, userError(err))
		}
		input.CategoryID = category.ID
	}

	task, err := session.CreateTask(ctx, input)
	if err != nil {
		return b.sendTextWithRemove(chatID, userError(err))
	}
	if task == nil {
		return b.sendTextWithRemove(chatID, "That task already exists.")
	}

	log.Printf("[info] task created id=%s user=%s recurring=%t", task.ID, user.ID, task.IsRecurring)

	var summary strings.Builder
	summary.WriteString("✅ <b>Task saved</b>\n")
	summary.WriteString(fmt.Sprintf("• <b>ID:</b> <code>%s</code>\n", tasks.ShortID(task.ID)))
	summary.WriteString(fmt.Sprintf("• <b>Title:</b> %s\n", escape(normalizeTitle(task.Title))))
	if task.Description != nil {
		summary.WriteString(fmt.Sprintf("• <b>Description:</b> %s\n", escape(*task.Description)))
	}
	if state.categoryName != "" {
		summary.WriteString(fmt.Sprintf("• <b>Category:</b> %s\n", categoryLabel(state.categoryName)))
	}
	summary.WriteString(fmt.Sprintf("• <b>Priority:</b> %s\n", task.Priority))
	if task.DueDate != nil {
		due := *task.DueDate
		if task.DueTime != nil {
			due += " " + *task.DueTime
		}
		summary.WriteString(fmt.Sprintf("• <b>Due:</b> %s\n", due))
	}
	if task.RecurrencePattern != nil {
		summary.WriteString(fmt.Sprintf("• <b>Repeats:</b> %s\n", *task.RecurrencePattern))
	}

	if err := b.sendTextWithRemove(chatID, strings.TrimSpace(summary.String())); err != nil {
		return err
	}
	return b.sendTaskList(ctx, chatID, user, session)
}

func (b *Bot) handleSubtask(ctx context.Context, msg *tgbotapi.Message) error {
	shortID, title, _ := strings.Cut(strings.TrimSpace(msg.CommandArguments()), " ")
	if shortID == "" || strings.TrimSpace(title) == "" {
		return b.sendText(msg.Chat.ID, "Usage: /subtask &lt;id&gt; &lt;title&gt;")
	}
	_, session, err := b.session(ctx, msg.From)
	if err != nil {
		return err
	}
	parent, ok := session.FindByShortID(shortID)
	if !ok {
		return b.sendText(msg.Chat.ID, userError(tasks.ErrNotFound))
	}
	if parent.ParentTaskID != nil {
		return b.sendText(msg.Chat.ID, "Subtasks cannot have subtasks of their own.")
	}
	sub, err := session.CreateTask(ctx, service.TaskInput{
		Title:        title,
		ParentTaskID: parent.ID,
		CategoryID:   deref(parent.CategoryID),
		Priority:     parent.Priority,
	})
	if err != nil {
		return b.sendText(msg.Chat.ID, userError(err))
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("➕ Added <code>%s</code> %s under %s.",
		tasks.ShortID(sub.ID), escape(normalizeTitle(sub.Title)), escape(normalizeTitle(parent.Title))))
}

func (b *Bot) handleListTasks(ctx context.Context, msg *tgbotapi.Message) error {
	user, session, err := b.session(ctx, msg.From)
	if err != nil {
		return err
	}
	log.Printf("[info] list tasks for user=%s", user.ID)
	return b.sendTaskList(ctx, msg.Chat.ID, user, session)
}

func (b *Bot) handleToday(ctx context.Context, msg *tgbotapi.Message) error {
	_, session, err := b.session(ctx, msg.From)
	if err != nil {
		return err
	}
	due := session.GetTodaysTasks()
	done := session.GetCompletedTasksToday()

	var builder strings.Builder
	builder.WriteString("📅 <b>Today</b>\n")
	if len(due) == 0 {
		builder.WriteString("Nothing due today.\n")
	}
	for _, t := range due {
		mark := "▫️"
		if t.IsCompleted() {
			mark = "✅"
		}
		builder.WriteString(fmt.Sprintf("%s <code>%s</code> %s%s\n", mark, tasks.ShortID(t.ID), escape(normalizeTitle(t.Title)), dueTimeSuffix(t)))
	}
	builder.WriteString(fmt.Sprintf("\n✔️ Completed today: %d", len(done)))
	if streak := session.CalculateTaskStreak(); streak > 0 {
		builder.WriteString(fmt.Sprintf("\n🔥 Streak: %d day(s)", streak))
	}
	return b.sendText(msg.Chat.ID, builder.String())
}

func (b *Bot) handleComplete(ctx context.Context, msg *tgbotapi.Message) error {
	args := strings.TrimSpace(msg.CommandArguments())
	if args == "" {
		return b.sendText(msg.Chat.ID, "Give the task id: /complete 3f9a1c2e")
	}
	_, session, err := b.session(ctx, msg.From)
	if err != nil {
		return err
	}
	task, ok := session.FindByShortID(args)
	if !ok {
		return b.sendText(msg.Chat.ID, userError(tasks.ErrNotFound))
	}
	if task.IsCompleted() {
		return b.sendText(msg.Chat.ID, "That task is already done.")
	}

	done, err := session.CompleteTask(ctx, task.ID)
	if err != nil {
		return b.sendText(msg.Chat.ID, userError(err))
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("✅ «%s» done. Barakallahu feek!", escape(normalizeTitle(done.Title))))
}

func (b *Bot) handleDelete(ctx context.Context, msg *tgbotapi.Message) error {
	args := strings.TrimSpace(msg.CommandArguments())
	if args == "" {
		return b.sendText(msg.Chat.ID, "Give the task id: /delete 3f9a1c2e")
	}
	_, session, err := b.session(ctx, msg.From)
	if err != nil {
		return err
	}
	task, ok := session.FindByShortID(args)
	if !ok {
		return b.sendText(msg.Chat.ID, userError(tasks.ErrNotFound))
	}
	return b.askConfirmation(msg.Chat.ID, msg.From.ID, task, actionDelete)
}

func (b *Bot) handleStatus(ctx context.Context, msg *tgbotapi.Message) error {
	fields := strings.Fields(msg.CommandArguments())
	if len(fields) != 2 {
		return b.sendText(msg.Chat.ID, "Usage: /status &lt;id&gt; &lt;pending|in_progress|completed|cancelled&gt;")
	}
	_, session, err := b.session(ctx, msg.From)
	if err != nil {
		return err
	}
	task, ok := session.FindByShortID(fields[0])
	if !ok {
		return b.sendText(msg.Chat.ID, userError(tasks.ErrNotFound))
	}

	status := strings.ToLower(fields[1])
	var updated *model.Task
	if status == model.StatusCompleted {
		updated, err = session.CompleteTask(ctx, task.ID)
	} else {
		update := map[string]any{"status": status}
		if task.IsCompleted() {
			update["completed_at"] = nil
		}
		updated, err = session.UpdateTask(ctx, task.ID, update)
	}
	if err != nil {
		return b.sendText(msg.Chat.ID, userError(err))
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("🔄 «%s» is now <b>%s</b>.", escape(normalizeTitle(updated.Title)), updated.Status))
}

func (b *Bot) handleCategories(ctx context.Context, msg *tgbotapi.Message) error {
	user, session, err := b.session(ctx, msg.From)
	if err != nil {
		return err
	}
	categories, err := b.svc.Categories.List(ctx, user.ID)
	if err != nil {
		return b.sendText(msg.Chat.ID, userError(err))
	}
	if len(categories) == 0 {
		return b.sendText(msg.Chat.ID, "No categories yet. Send /start to get the defaults, or type one while creating a task.")
	}
	var builder strings.Builder
	builder.WriteString("📂 <b>Categories</b>\n")
	for _, cat := range categories {
		open := 0
		for _, t := range session.GetTasksByCategory(cat.ID) {
			if !t.IsCompleted() {
				open++
			}
		}
		builder.WriteString(fmt.Sprintf("• %s · %d open\n", categoryLabel(cat.Name), open))
	}
	return b.sendText(msg.Chat.ID, strings.TrimSpace(builder.String()))
}

func (b *Bot) handleTemplates(ctx context.Context, msg *tgbotapi.Message) error {
	templates, err := b.svc.Templates.List(ctx)
	if err != nil {
		return b.sendText(msg.Chat.ID, userError(err))
	}
	var builder strings.Builder
	builder.WriteString("📿 <b>Templates</b>\n")
	for _, tpl := range templates {
		builder.WriteString(fmt.Sprintf("• <code>%s</code> %s", escape(tpl.ID), escape(tpl.Name)))
		if tpl.RecurrencePattern != nil {
			builder.WriteString(fmt.Sprintf(" · %s", *tpl.RecurrencePattern))
		}
		builder.WriteByte('\n')
	}
	builder.WriteString("\nUse /fromtemplate &lt;id&gt; [YYYY-MM-DD].")
	return b.sendText(msg.Chat.ID, builder.String())
}

func (b *Bot) handleFromTemplate(ctx context.Context, msg *tgbotapi.Message) error {
	fields := strings.Fields(msg.CommandArguments())
	if len(fields) == 0 {
		return b.handleTemplates(ctx, msg)
	}
	key := fields[0]
	var dueDate string
	if len(fields) > 1 {
		date, ok := parseDueDate(fields[1], time.Now().In(b.userLocation(ctx, msg.From)))
		if !ok {
			return b.sendText(msg.Chat.ID, "Use a date like <code>2025-11-30</code>.")
		}
		dueDate = date
	}

	tpl, err := b.svc.Templates.Get(ctx, key)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return b.sendText(msg.Chat.ID, "No such template. See /templates.")
	}
	if err != nil {
		return b.sendText(msg.Chat.ID, userError(err))
	}
	_, session, err := b.session(ctx, msg.From)
	if err != nil {
		return err
	}
	task, err := session.CreateTaskFromTemplate(ctx, *tpl, dueDate)
	if err != nil {
		return b.sendText(msg.Chat.ID, userError(err))
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("📿 Added <code>%s</code> %s.", tasks.ShortID(task.ID), escape(task.Title)))
}

func (b *Bot) handleConfirmationResponse(ctx context.Context, msg *tgbotapi.Message, req confirmationRequest) error {
	text := strings.TrimSpace(msg.Text)
	switch {
	case isConfirmInput(text):
		b.clearConfirmation(msg.From.ID)
		if req.action == actionDelete {
			return b.deleteTaskAndRefresh(ctx, msg.Chat.ID, msg.From, req.taskID)
		}
		return b.completeTaskAndRefresh(ctx, msg.Chat.ID, msg.From, req.taskID)
	case isCancelInput(text):
		b.clearConfirmation(msg.From.ID)
		return b.sendMenuPlaceholder(msg.Chat.ID)
	default:
		prompt := "Confirm or cancel completing the task."
		if req.action == actionDelete {
			prompt = "Confirm or cancel deleting the task."
		}
		return b.sendWithReplyMarkup(msg.Chat.ID, prompt, confirmKeyboard())
	}
}

func (b *Bot) askConfirmation(chatID, telegramID int64, task model.Task, action confirmationAction) error {
	text := fmt.Sprintf("Mark «%s» (<code>%s</code>) as done?", escape(normalizeTitle(task.Title)), tasks.ShortID(task.ID))
	if action == actionDelete {
		text = fmt.Sprintf("Delete «%s» (<code>%s</code>)?", escape(normalizeTitle(task.Title)), tasks.ShortID(task.ID))
		if n := len(task.Subtasks); n > 0 {
			text += fmt.Sprintf("\nIts %d subtask(s) will be deleted too.", n)
		}
	}
	b.setConfirmation(telegramID, confirmationRequest{taskID: task.ID, action: action})
	return b.sendWithReplyMarkup(chatID, text, confirmKeyboard())
}

func (b *Bot) completeTaskAndRefresh(ctx context.Context, chatID int64, from *tgbotapi.User, taskID string) error {
	user, session, err := b.session(ctx, from)
	if err != nil {
		return err
	}
	task, ok := session.Get(taskID)
	if !ok {
		return b.sendTextWithRemove(chatID, userError(tasks.ErrNotFound))
	}
	if task.IsCompleted() {
		return b.sendTextWithRemove(chatID, "That task is already done.")
	}

	done, err := session.CompleteTask(ctx, taskID)
	if err != nil {
		return b.sendTextWithRemove(chatID, userError(err))
	}
	log.Printf("[info] task completed id=%s user=%s", done.ID, user.ID)
	if err := b.sendTextWithRemove(chatID, fmt.Sprintf("✅ «%s» done.", escape(normalizeTitle(done.Title)))); err != nil {
		return err
	}
	return b.sendTaskList(ctx, chatID, user, session)
}

func (b *Bot) deleteTaskAndRefresh(ctx context.Context, chatID int64, from *tgbotapi.User, taskID string) error {
	user, session, err := b.session(ctx, from)
	if err != nil {
		return err
	}
	task, ok := session.Get(taskID)
	if !ok {
		return b.sendTextWithRemove(chatID, userError(tasks.ErrNotFound))
	}
	if err := session.DeleteTask(ctx, taskID); err != nil {
		return b.sendTextWithRemove(chatID, userError(err))
	}

	log.Printf("[info] task deleted id=%s user=%s", task.ID, user.ID)
	if err := b.sendTextWithRemove(chatID, fmt.Sprintf("🗑 «%s» deleted.", escape(normalizeTitle(task.Title)))); err != nil {
		return err
	}
	return b.sendTaskList(ctx, chatID, user, session)
}

func (b *Bot) sendTaskList(ctx context.Context, chatID int64, user *model.User, session *service.TaskService) error {
	categories, _ := b.svc.Categories.List(ctx, user.ID)
	catNames := make(map[string]string)
	for _, cat := range categories {
		catNames[cat.ID] = cat.Name
	}

	type categoryGroup struct {
		Name  string
		Tasks []model.Task
	}
	groups := make(map[string]*categoryGroup)
	var order []string

	for _, task := range session.Tasks() {
		if task.IsCompleted() || task.Status == model.StatusCancelled {
			continue
		}
		key, display := normalizedCategory(task.CategoryID, catNames)
		group, ok := groups[key]
		if !ok {
			group = &categoryGroup{Name: display}
			groups[key] = group
			order = append(order, key)
		}
		group.Tasks = append(group.Tasks, task)
	}

	if len(groups) == 0 {
		return b.sendText(chatID, "No open tasks. Add one with /newtask.")
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i] == noCategoryKey {
			return false
		}
		if order[j] == noCategoryKey {
			return true
		}
		return groups[order[i]].Name < groups[order[j]].Name
	})

	now := time.Now().In(user.Location())
	var builder strings.Builder
	builder.WriteString("📋 <b>Open tasks</b>\n")
	builder.WriteString("Tap a button to complete or delete a task.\n\n")

	var buttons [][]tgbotapi.InlineKeyboardButton
	for _, key := range order {
		section := groups[key]
		sortTasks(section.Tasks, now.Location())

		builder.WriteString(fmt.Sprintf("<b>%s</b>\n", section.Name))
		for _, task := range section.Tasks {
			builder.WriteString(service.FormatTask(task, nil, now))
			short := tasks.ShortID(task.ID)
			buttons = append(buttons, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("✅ %s", shortTitle(task.Title, 24)), cbCompletePrefix+short),
				tgbotapi.NewInlineKeyboardButtonData("🗑", cbDeletePrefix+short),
			))
		}
		builder.WriteByte('\n')
	}

	msg := tgbotapi.NewMessage(chatID, strings.TrimSpace(builder.String()))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(buttons...)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil {
		return nil
	}
	data := cb.Data
	chatID := cb.Message.Chat.ID

	switch {
	case strings.HasPrefix(data, cbCompletePrefix), strings.HasPrefix(data, cbDeletePrefix):
		b.ack(cb, "")
		action, prefix := actionComplete, cbCompletePrefix
		if strings.HasPrefix(data, cbDeletePrefix) {
			action, prefix = actionDelete, cbDeletePrefix
		}
		log.Printf("[info] callback %s user=%d", data, cb.From.ID)
		_, session, err := b.session(ctx, cb.From)
		if err != nil {
			return err
		}
		task, ok := session.FindByShortID(strings.TrimPrefix(data, prefix))
		if !ok {
			return b.sendText(chatID, userError(tasks.ErrNotFound))
		}
		if action == actionComplete && task.IsCompleted() {
			return b.sendText(chatID, "That task is already done.")
		}
		return b.askConfirmation(chatID, cb.From.ID, task, action)
	case strings.HasPrefix(data, cbPrayPrefix):
		prayer := strings.TrimPrefix(data, cbPrayPrefix)
		user, err := b.ensureUser(ctx, cb.From)
		if err != nil {
			b.ack(cb, "")
			return err
		}
		if err := b.svc.Prayers.Mark(ctx, *user, prayer); err != nil {
			b.ack(cb, "")
			return b.sendText(chatID, userError(err))
		}
		b.ack(cb, fmt.Sprintf("%s logged", normalizeTitle(prayer)))
		return nil
	default:
		b.ack(cb, "")
		return nil
	}
}

func (b *Bot) handleMenuAlias(ctx context.Context, msg *tgbotapi.Message) (bool, error) {
	text := strings.TrimSpace(strings.ToLower(msg.Text))
	switch text {
	case strings.ToLower(menuLabelNewTask):
		return true, b.startNewTaskConversation(ctx, msg)
	case strings.ToLower(menuLabelTasks):
		return true, b.handleListTasks(ctx, msg)
	case strings.ToLower(menuLabelPrayers):
		return true, b.handlePrayers(ctx, msg)
	case strings.ToLower(menuLabelQuran):
		return true, b.handleQuran(ctx, msg)
	case strings.ToLower(menuLabelToday):
		return true, b.handleToday(ctx, msg)
	case strings.ToLower(menuLabelHelp):
		return true, b.handleHelp(msg)
	default:
		return false, nil
	}
}

func (b *Bot) userLocation(ctx context.Context, from *tgbotapi.User) *time.Location {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return time.Local
	}
	return user.Location()
}

func sortTasks(list []model.Task, loc *time.Location) {
	sort.SliceStable(list, func(i, j int) bool {
		a, aok := list[i].Due(loc)
		c, cok := list[j].Due(loc)
		switch {
		case aok && cok && !a.Equal(c):
			return a.Before(c)
		case aok != cok:
			return aok
		}
		if pi, pj := priorityRank(list[i].Priority), priorityRank(list[j].Priority); pi != pj {
			return pi > pj
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
