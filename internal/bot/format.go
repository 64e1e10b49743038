package bot

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"barakah-tasks/internal/model"
	"barakah-tasks/internal/tasks"
)

func shortTitle(title string, maxLen int) string {
	clean := strings.TrimSpace(strings.ReplaceAll(title, "\n", " "))
	clean = normalizeTitle(clean)
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}

func normalizeTitle(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	runes := []rune(value)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func categoryLabel(name string) string {
	base := strings.TrimSpace(name)
	var icon string
	switch strings.ToLower(base) {
	case "worship":
		icon = "🕌"
	case "quran":
		icon = "📖"
	case "work":
		icon = "💼"
	case "family":
		icon = "👨‍👩‍👧"
	case "health":
		icon = "🩺"
	case "charity":
		icon = "🤲"
	case strings.ToLower(noCategory):
		icon = "📁"
	default:
		icon = "🏷️"
	}
	return fmt.Sprintf("%s %s", icon, escape(normalizeTitle(base)))
}

// stripCategoryIcon drops a leading emoji from a category keyboard label.
func stripCategoryIcon(text string) string {
	text = strings.TrimSpace(text)
	head, rest, ok := strings.Cut(text, " ")
	if !ok {
		return text
	}
	for _, r := range head {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return text
		}
	}
	return strings.TrimSpace(rest)
}

func normalizedCategory(categoryID *string, catNames map[string]string) (string, string) {
	if categoryID == nil {
		return noCategoryKey, categoryLabel(noCategory)
	}
	if name, ok := catNames[*categoryID]; ok {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			return noCategoryKey, categoryLabel(noCategory)
		}
		return strings.ToLower(trimmed), categoryLabel(trimmed)
	}
	return noCategoryKey, categoryLabel(noCategory)
}

func parsePriority(text string) (string, bool) {
	value := strings.TrimSpace(strings.ToLower(text))
	return value, tasks.ValidPriority(value)
}

func priorityRank(p string) int {
	switch p {
	case model.PriorityUrgent:
		return 3
	case model.PriorityHigh:
		return 2
	case model.PriorityMedium:
		return 1
	default:
		return 0
	}
}

// parseDueDate accepts YYYY-MM-DD, "today" and "tomorrow" relative to now.
func parseDueDate(text string, now time.Time) (string, bool) {
	value := strings.TrimSpace(strings.ToLower(text))
	switch value {
	case strings.ToLower(btnToday):
		return now.Format("2006-01-02"), true
	case strings.ToLower(btnTomorrow):
		return now.AddDate(0, 0, 1).Format("2006-01-02"), true
	}
	date, err := time.ParseInLocation("2006-01-02", value, now.Location())
	if err != nil {
		return "", false
	}
	return date.Format("2006-01-02"), true
}

// parseRecurrence returns "" for a non-repeating task.
func parseRecurrence(text string) (string, bool) {
	value := strings.TrimSpace(strings.ToLower(text))
	switch {
	case value == strings.ToLower(btnNoRepeat), isSkipInput(value):
		return "", true
	case tasks.ValidPattern(value):
		return value, true
	default:
		return "", false
	}
}

func dueTimeSuffix(t model.Task) string {
	if t.DueTime == nil {
		return ""
	}
	return fmt.Sprintf(" · ⏰ %s", *t.DueTime)
}
