package bot

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"barakah-tasks/internal/caldav"
	"barakah-tasks/internal/model"
	"barakah-tasks/internal/quran"
	"barakah-tasks/internal/service"
)

const maxQuranVerses = 20

func (b *Bot) handlePrayers(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	timings, err := b.svc.Prayers.Today(ctx, *user)
	if err != nil {
		return b.sendText(msg.Chat.ID, userError(err))
	}
	done, err := b.svc.Prayers.Completed(ctx, *user, timings.Date)
	if err != nil {
		return b.sendText(msg.Chat.ID, userError(err))
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("🕌 <b>Prayer times · %s</b>\n", timings.Date))
	for _, prayer := range model.Prayers {
		at, _ := timings.Get(prayer)
		mark := "▫️"
		if done[prayer] {
			mark = "✅"
		}
		builder.WriteString(fmt.Sprintf("%s %s · %s\n", mark, normalizeTitle(prayer), at))
		if prayer == model.Fajr && timings.Sunrise != "" {
			builder.WriteString(fmt.Sprintf("🌅 Sunrise · %s\n", timings.Sunrise))
		}
	}

	now := time.Now().In(user.Location())
	if next, err := b.svc.Prayers.NextPrayer(ctx, *user, now); err == nil {
		left := next.At.Sub(now).Round(time.Minute)
		builder.WriteString(fmt.Sprintf("\n⏳ Next: <b>%s</b> at %s (in %s)", normalizeTitle(next.Name), next.At.Format("15:04"), left))
	}
	if user.Latitude == nil {
		builder.WriteString("\n\n📍 Times are for Mecca. Share a location or use /location to get yours.")
	}

	markup, ok := prayerKeyboard(done)
	if !ok {
		return b.sendText(msg.Chat.ID, builder.String()+"\n\nAll five logged today. Alhamdulillah!")
	}
	return b.sendWithReplyMarkup(msg.Chat.ID, builder.String(), markup)
}

func (b *Bot) handlePray(ctx context.Context, msg *tgbotapi.Message, mark bool) error {
	prayer := strings.ToLower(strings.TrimSpace(msg.CommandArguments()))
	if prayer == "" {
		return b.sendText(msg.Chat.ID, "Name the prayer: fajr, dhuhr, asr, maghrib or isha.")
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	if mark {
		err = b.svc.Prayers.Mark(ctx, *user, prayer)
	} else {
		err = b.svc.Prayers.Unmark(ctx, *user, prayer)
	}
	if err != nil {
		return b.sendText(msg.Chat.ID, userError(err))
	}
	if mark {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("✅ %s logged for today.", normalizeTitle(prayer)))
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("↩️ %s unmarked for today.", normalizeTitle(prayer)))
}

func (b *Bot) handleSharedLocation(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	_, _, method := b.svc.Prayers.Coordinates(*user)
	return b.saveLocation(ctx, msg.Chat.ID, user, msg.Location.Latitude, msg.Location.Longitude, method)
}

func (b *Bot) handleLocation(ctx context.Context, msg *tgbotapi.Message) error {
	fields := strings.Fields(msg.CommandArguments())
	if len(fields) < 2 || len(fields) > 3 {
		return b.sendText(msg.Chat.ID, "Usage: /location &lt;lat&gt; &lt;lon&gt; [method], or share a location from the attachment menu.")
	}
	lat, err := strconv.ParseFloat(fields[0], 64)
	if err != nil || lat < -90 || lat > 90 {
		return b.sendText(msg.Chat.ID, "Latitude must be between -90 and 90.")
	}
	lon, err := strconv.ParseFloat(fields[1], 64)
	if err != nil || lon < -180 || lon > 180 {
		return b.sendText(msg.Chat.ID, "Longitude must be between -180 and 180.")
	}

	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	_, _, method := b.svc.Prayers.Coordinates(*user)
	if len(fields) == 3 {
		method, err = strconv.Atoi(fields[2])
		if err != nil || method < 0 {
			return b.sendText(msg.Chat.ID, "The calculation method is a number, e.g. 4 for Umm al-Qura.")
		}
	}
	return b.saveLocation(ctx, msg.Chat.ID, user, lat, lon, method)
}

func (b *Bot) saveLocation(ctx context.Context, chatID int64, user *model.User, lat, lon float64, method int) error {
	if err := b.svc.Users.UpdateLocation(ctx, user.ID, lat, lon, method); err != nil {
		return b.sendText(chatID, userError(err))
	}
	log.Printf("[info] location updated user=%s lat=%.4f lon=%.4f method=%d", user.ID, lat, lon, method)
	return b.sendText(chatID, fmt.Sprintf("📍 Saved %.4f, %.4f (method %d). See /prayers.", lat, lon, method))
}

func (b *Bot) handleTimezone(ctx context.Context, msg *tgbotapi.Message) error {
	tz := strings.TrimSpace(msg.CommandArguments())
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	if tz == "" {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("🕰 Your time zone is %s. Change it with /timezone Area/City.", user.Location()))
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return b.sendText(msg.Chat.ID, "Unknown time zone. Use a name like <code>Europe/London</code>.")
	}
	if err := b.svc.Users.UpdateTimezone(ctx, user.ID, tz); err != nil {
		return b.sendText(msg.Chat.ID, userError(err))
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("🕰 Time zone set to %s.", escape(tz)))
}

func (b *Bot) handleQuran(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	args := strings.Fields(msg.CommandArguments())
	count := 5
	if len(args) > 0 {
		switch strings.ToLower(args[0]) {
		case "goto":
			if len(args) != 2 {
				return b.sendText(msg.Chat.ID, "Usage: /quran goto &lt;surah&gt;:&lt;ayah&gt;")
			}
			return b.quranGoto(ctx, msg.Chat.ID, user.ID, args[1])
		case "where":
			p, err := b.svc.Quran.Progress(ctx, user.ID)
			if err != nil {
				return b.sendText(msg.Chat.ID, userError(err))
			}
			return b.sendText(msg.Chat.ID, fmt.Sprintf("📖 You are at %s.", p))
		default:
			n, err := strconv.Atoi(args[0])
			if err != nil || n <= 0 {
				return b.sendText(msg.Chat.ID, "Usage: /quran [verses], /quran goto &lt;surah&gt;:&lt;ayah&gt;, /quran where")
			}
			count = min(n, maxQuranVerses)
		}
	}

	surah, verses, err := b.svc.Quran.Next(ctx, user.ID, count)
	if err != nil {
		return b.sendText(msg.Chat.ID, userError(err))
	}
	return b.sendText(msg.Chat.ID, formatVerses(surah, verses))
}

func (b *Bot) quranGoto(ctx context.Context, chatID int64, userID, position string) error {
	surahPart, ayahPart, _ := strings.Cut(position, ":")
	surah, err := strconv.Atoi(surahPart)
	if err != nil {
		return b.sendText(chatID, "Use surah:ayah, e.g. <code>18:1</code>.")
	}
	ayah := 1
	if ayahPart != "" {
		if ayah, err = strconv.Atoi(ayahPart); err != nil {
			return b.sendText(chatID, "Use surah:ayah, e.g. <code>18:1</code>.")
		}
	}
	p := service.Progress{Surah: surah, Ayah: ayah}
	if err := b.svc.Quran.SetProgress(ctx, userID, p); err != nil {
		return b.sendText(chatID, userError(err))
	}
	return b.sendText(chatID, fmt.Sprintf("📖 Bookmark moved to %s. Send /quran to read on.", p))
}

func formatVerses(surah *quran.Surah, verses []quran.Verse) string {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("📖 <b>%d. %s</b> · %s\n\n", surah.Number, escape(surah.EnglishName), escape(surah.Name)))
	for _, v := range verses {
		builder.WriteString(fmt.Sprintf("<b>%d:%d</b> %s\n<i>%s</i>\n\n", surah.Number, v.Number, escape(v.Arabic), escape(v.Translation)))
	}
	return strings.TrimSpace(builder.String())
}

func (b *Bot) handleStats(ctx context.Context, msg *tgbotapi.Message) error {
	user, session, err := b.session(ctx, msg.From)
	if err != nil {
		return err
	}
	now := time.Now().In(user.Location())
	taskStats := b.svc.Analytics.TaskStats(session, now)
	prayerStats, err := b.svc.Analytics.PrayerStats(ctx, *user, now)
	if err != nil {
		return b.sendText(msg.Chat.ID, userError(err))
	}

	var builder strings.Builder
	builder.WriteString("📊 <b>Your progress</b>\n")
	builder.WriteString(fmt.Sprintf("Tasks: %d/%d done (%.0f%%), %d open, %d overdue\n",
		taskStats.Completed, taskStats.Total, taskStats.Percent(), taskStats.Pending, taskStats.Overdue))
	builder.WriteString(fmt.Sprintf("🔥 Streak: %d day(s)\n\n", taskStats.Streak))
	builder.WriteString(fmt.Sprintf("Prayers since %s (%d day(s)): %d/%d (%.0f%%)\n",
		prayerStats.Since.Format("2006-01-02"), prayerStats.Days, prayerStats.Completed, prayerStats.Expected, prayerStats.Percent()))
	for _, prayer := range model.Prayers {
		builder.WriteString(fmt.Sprintf("• %s: %d\n", normalizeTitle(prayer), prayerStats.ByPrayer[prayer]))
	}
	return b.sendText(msg.Chat.ID, strings.TrimSpace(builder.String()))
}

func (b *Bot) handleCalDAV(ctx context.Context, msg *tgbotapi.Message) error {
	args := strings.Fields(msg.CommandArguments())
	if len(args) == 0 {
		return b.sendText(msg.Chat.ID, "Usage: /caldav connect &lt;url&gt; &lt;user&gt; &lt;password&gt; | sync | status | disconnect")
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	switch strings.ToLower(args[0]) {
	case "connect":
		// The command carries a password; remove it from the chat first.
		if _, err := b.api.Request(tgbotapi.NewDeleteMessage(msg.Chat.ID, msg.MessageID)); err != nil {
			log.Printf("[warn] delete caldav credentials message: %v", err)
		}
		if len(args) != 4 {
			return b.sendText(msg.Chat.ID, "Usage: /caldav connect &lt;url&gt; &lt;user&gt; &lt;app-password&gt;")
		}
		conn, err := b.svc.CalDAV.Connect(ctx, *user, args[1], args[2], args[3])
		if err != nil {
			return b.sendText(msg.Chat.ID, userError(err))
		}
		return b.sendText(msg.Chat.ID, fmt.Sprintf("🔗 Connected to %s. Calendar: <code>%s</code>\nThe password is kept for %s; reconnect after that.",
			escape(conn.Provider), escape(conn.CalendarURL), b.config.CredentialTTL))
	case "sync":
		report, err := b.svc.CalDAV.Sync(ctx, *user)
		if err != nil {
			return b.sendText(msg.Chat.ID, userError(err))
		}
		text := fmt.Sprintf("🔄 Synced %d of %d event(s).", len(report.Succeeded), report.Total())
		for _, failure := range report.Failed {
			text += fmt.Sprintf("\n⚠️ %s: %s", escape(failure.UID), escape(failure.Err.Error()))
		}
		return b.sendText(msg.Chat.ID, text)
	case "status":
		conn, err := b.svc.CalDAV.Status(ctx, user.ID)
		if err != nil {
			return b.sendText(msg.Chat.ID, userError(err))
		}
		if conn == nil {
			return b.sendText(msg.Chat.ID, userError(caldav.ErrNotConnected))
		}
		last := "never"
		if conn.LastSyncAt != nil {
			last = conn.LastSyncAt.In(user.Location()).Format("2006-01-02 15:04")
		}
		return b.sendText(msg.Chat.ID, fmt.Sprintf("📆 %s as %s\nCalendar: <code>%s</code>\nLast sync: %s",
			escape(conn.Provider), escape(conn.Username), escape(conn.CalendarURL), last))
	case "disconnect":
		if err := b.svc.CalDAV.Disconnect(ctx, user.ID); err != nil {
			return b.sendText(msg.Chat.ID, userError(err))
		}
		return b.sendText(msg.Chat.ID, "🔌 Calendar disconnected and password removed.")
	default:
		return b.sendText(msg.Chat.ID, "Unknown /caldav action. Use connect, sync, status or disconnect.")
	}
}
