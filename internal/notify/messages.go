package notify

import (
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Larin-Sergei/telegram-notify-bot/internal/chat"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/model"
)

// Reply keyboard labels. Incoming text equal to one of these is a command,
// not free-form input.
const (
	LabelBack     = "🔙 Назад"
	LabelDone     = "Готово"
	LabelContinue = "Продолжить"
	LabelSend     = "Отправить"
	LabelCancel   = "Отменить"
)

// Callback actions carried in inline button data as "<action>:<project>:<iid>".
const (
	ActionAccept  = "ack"
	ActionRework  = "reopen"
	ActionComment = "comment"
	ActionAttach  = "attach"
	ActionView    = "issue"
)

func CallbackData(action string, key model.IssueKey) string {
	return fmt.Sprintf("%s:%d:%d", action, key.ProjectID, key.IssueIID)
}

// ParseCallback splits button data produced by CallbackData.
func ParseCallback(data string) (string, model.IssueKey, bool) {
	parts := strings.Split(data, ":")
	if len(parts) != 3 || parts[0] == "" {
		return "", model.IssueKey{}, false
	}
	pid, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", model.IssueKey{}, false
	}
	iid, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return "", model.IssueKey{}, false
	}
	return parts[0], model.IssueKey{ProjectID: pid, IssueIID: iid}, true
}

func esc(s string) string {
	return html.EscapeString(s)
}

// ClosedCard asks the submitter to accept the work or send it back.
func ClosedCard(issue *model.Issue, closing *model.Comment) (string, *chat.Keyboard) {
	assignee := "—"
	if issue.Assignee != nil {
		assignee = issue.Assignee.DisplayName()
	}

	lines := []string{
		fmt.Sprintf("Обращение #%d (%s) <b>%s</b> передано на приемку", issue.Key.IssueIID, esc(issue.State), esc(issue.Title)),
		"Исполнитель: " + esc(assignee),
		"",
		"Пожалуйста, проверьте результаты по обращению. Если остались вопросы, верните на доработку. Если вопросов нет, нажмите кнопку «Принять».",
	}
	if closing != nil {
		if body := StripUploads(closing.Body); body != "" {
			lines = append(lines, "", "<b>Комментарий исполнителя:</b>", esc(body))
		}
	}

	kb := chat.InlineRow(
		chat.Button{Text: "Принять", Data: CallbackData(ActionAccept, issue.Key)},
		chat.Button{Text: "Вернуть на доработку", Data: CallbackData(ActionRework, issue.Key)},
	)
	return strings.Join(lines, "\n"), kb
}

func NewComment(key model.IssueKey, comment model.Comment, body string) string {
	return fmt.Sprintf("🔔 <b>Новый комментарий</b> по обращению #%d\n\n%s\n\n<i>Автор: %s</i>",
		key.IssueIID, esc(body), esc(comment.Author.DisplayName()))
}

func AssigneeSet(issue *model.Issue) string {
	return fmt.Sprintf("🔔 По обращению #%d назначен исполнитель: %s", issue.Key.IssueIID, esc(assigneeName(issue)))
}

func AssigneeChanged(issue *model.Issue) string {
	return fmt.Sprintf("🔔 По обращению #%d назначен новый исполнитель: %s", issue.Key.IssueIID, esc(assigneeName(issue)))
}

func assigneeName(issue *model.Issue) string {
	if issue.Assignee == nil {
		return "—"
	}
	return issue.Assignee.DisplayName()
}

// AutoAcked tells the submitter the issue was accepted after cutoff of silence.
func AutoAcked(key model.IssueKey, cutoff time.Duration) string {
	return fmt.Sprintf("⏰ Вы не ответили в течение %s, обращение #%d закрывается автоматически.", within(cutoff), key.IssueIID)
}

// within renders d in the genitive, as in "в течение 24 часов". Durations
// that are not whole hours are rounded to minutes.
func within(d time.Duration) string {
	if d >= time.Hour && d%time.Hour == 0 {
		n := int64(d / time.Hour)
		return fmt.Sprintf("%d %s", n, genitive(n, "часа", "часов"))
	}
	n := int64(d.Round(time.Minute) / time.Minute)
	if n < 1 {
		n = 1
	}
	return fmt.Sprintf("%d %s", n, genitive(n, "минуты", "минут"))
}

func genitive(n int64, one, many string) string {
	if n%10 == 1 && n%100 != 11 {
		return one
	}
	return many
}

func Accepted() string {
	return "✅ Обращение закрыто. Спасибо!"
}

func GroupAnnouncement(issue *model.Issue) string {
	return fmt.Sprintf("🚀 Новый запрос #%d: <b>%s</b>\n%s", issue.Key.IssueIID, esc(issue.Title), esc(issue.WebURL))
}

// OpenIssueSummary renders an open issue with its latest comments.
func OpenIssueSummary(issue *model.Issue, comments []model.Comment) (string, *chat.Keyboard) {
	body := CleanDescription(issue.Description)
	if body == "" {
		body = "—"
	}

	var visible []model.Comment
	for _, c := range comments {
		if !c.System {
			visible = append(visible, c)
		}
	}
	if len(visible) > 3 {
		visible = visible[len(visible)-3:]
	}

	commentsText := "Комментариев нет."
	if len(visible) > 0 {
		parts := make([]string, 0, len(visible))
		for _, c := range visible {
			parts = append(parts, fmt.Sprintf("<i>%s</i>, %s\n%s",
				esc(c.Author.DisplayName()),
				c.CreatedAt.Format("02.01.2006 15:04"),
				esc(StripUploads(c.Body))))
		}
		commentsText = strings.Join(parts, "\n\n")
	}

	text := fmt.Sprintf("<b>Текущее обращение #%d (%s) – %s</b>\n\n%s\n\n%s",
		issue.Key.IssueIID, esc(issue.State), esc(issue.Title), esc(body), commentsText)
	return text, issueActions(issue.Key)
}

// IssueDetail renders one issue with its newest comment.
func IssueDetail(issue *model.Issue, latest *model.Comment) (string, *chat.Keyboard) {
	body := CleanDescription(issue.Description)
	if body == "" {
		body = "—"
	}
	last := "Комментариев нет."
	if latest != nil {
		last = esc(StripUploads(latest.Body))
	}

	text := fmt.Sprintf("<b>Обращение #%d</b>\nНазвание: %s\nОписание: %s\nСтатус: %s\nАвтор: %s\n<b>Последний комментарий:</b>\n%s",
		issue.Key.IssueIID, esc(issue.Title), esc(body), esc(issue.State), esc(issue.Author.DisplayName()), last)
	return text, issueActions(issue.Key)
}

func issueActions(key model.IssueKey) *chat.Keyboard {
	return chat.InlineRow(
		chat.Button{Text: "Оставить комментарий", Data: CallbackData(ActionComment, key)},
		chat.Button{Text: "Прикрепить файлы", Data: CallbackData(ActionAttach, key)},
	)
}

var detailsBlock = regexp.MustCompile(`(?is)<details>.*?</details>`)

var submitterPrefixes = []string{"Никнейм:", "ID:", "Имя:", "Телефон:"}

// CleanDescription drops collapsed blocks, the submitter header and upload
// references from an issue description.
func CleanDescription(description string) string {
	description = detailsBlock.ReplaceAllString(description, "")
	lines := strings.Split(description, "\n")

	i := 0
	for i < len(lines) {
		line := strings.TrimSpace(lines[i])
		if line == "" || hasAnyPrefix(line, submitterPrefixes) {
			i++
			continue
		}
		break
	}

	cleaned := StripUploads(strings.Join(lines[i:], "\n"))
	cleaned = strings.ReplaceAll(cleaned, attachedFilesHeading, "")
	return strings.TrimSpace(blankRuns.ReplaceAllString(cleaned, "\n\n"))
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// SubmitterHeader identifies the chat user who filed an issue. It is parsed
// back out by CleanDescription.
func SubmitterHeader(name, username string, userID int64) string {
	var lines []string
	if username != "" {
		lines = append(lines, "Никнейм: @"+username)
	}
	lines = append(lines, "ID: "+strconv.FormatInt(userID, 10))
	if name != "" {
		lines = append(lines, "Имя: "+name)
	}
	return strings.Join(lines, "\n\n")
}

// Conversation prompts and replies.

func AskTitle() string { return "📝 Укажите тему обращения:" }

func AskDescription() string { return "Введите описание" }

func AskFiles() string {
	return "Прикрепите вложения или нажмите «" + LabelContinue + "»"
}

func AskComment() string { return "✍️ Введите комментарий к обращению:" }

func AskReworkComment() string {
	return "✍️ Введите комментарий, чтобы вернуть обращение на доработку:"
}

func AskCommentFiles() string {
	return "✏️ Ваш комментарий сохранён.\n\nПрикрепите файлы или фотографии к комментарию, или нажмите «" + LabelDone + "»."
}

func AskAttachFiles() string {
	return "Прикрепите файлы к обращению или нажмите «" + LabelDone + "», когда закончите"
}

func DraftSummary(title, description string, files int) string {
	return fmt.Sprintf("<b>Заголовок:</b> %s\n<b>Описание:</b> %s\n<b>Файлов:</b> %d\n\nОтправить задачу?",
		esc(title), esc(description), files)
}

func FileAccepted(name string) string { return "📥 Принято: " + esc(name) }

func AlbumAccepted(n int) string { return fmt.Sprintf("📥 Принято файлов из альбома: %d", n) }

func FileTooLarge(name string, maxBytes int64) string {
	return fmt.Sprintf("🚫 Файл %s слишком большой (макс. %d MB)", esc(name), maxBytes/1024/1024)
}

func TooManyFiles(name string, max int) string {
	return fmt.Sprintf("🚫 Файл %s не принят: максимум %d файлов", esc(name), max)
}

func FileDownloadFailed(name string) string {
	return fmt.Sprintf("⚠️ Не удалось получить файл %s", esc(name))
}

func UploadFailed(name string) string {
	return fmt.Sprintf("⚠️ Ошибка загрузки %s", esc(name))
}

func AttachmentUnavailable(name string) string {
	return fmt.Sprintf("⚠️ Не удалось загрузить вложение %s", esc(name))
}

func IssueCreated(issue *model.Issue) string {
	return fmt.Sprintf("✅ Обращение #%d зарегистрировано.", issue.Key.IssueIID)
}

func IssueCreateFailed() string {
	return "❌ Ошибка при создании обращения. Нажмите «" + LabelSend + "», чтобы повторить."
}

func CommentAdded() string { return "✅ Комментарий добавлен к обращению." }

func CommentFailed() string {
	return "❌ Не удалось отправить комментарий с вложениями. Нажмите «" + LabelDone + "», чтобы повторить."
}

func ReworkDone() string { return "🔁 Обращение возвращено на доработку." }

func ReworkFailed() string {
	return "❌ Не удалось вернуть обращение на доработку. Нажмите «" + LabelDone + "», чтобы повторить."
}

func FilesAttached() string { return "✅ Файлы успешно прикреплены." }

func FilesAttachFailed() string { return "❌ Не удалось добавить файлы к обращению." }

func NoFiles() string { return "ℹ️ Нет файлов для прикрепления." }

func Cancelled() string { return "🚫 Операция отменена." }

func UnexpectedInput() string {
	return "Команда не распознана. Используйте кнопки или /cancel."
}

func EmptyText() string { return "Сообщение не может быть пустым." }

func AccountUnavailable() string {
	return "Не удалось найти вашу учётную запись GitLab. Обратитесь к администратору."
}

func IssueUnavailable(key model.IssueKey) string {
	return fmt.Sprintf("Не удалось получить данные обращения #%d.", key.IssueIID)
}

func AcceptFailed(key model.IssueKey) string {
	return fmt.Sprintf("❌ Не удалось закрыть обращение #%d, попробуйте ещё раз.", key.IssueIID)
}

func AlreadyClosed(key model.IssueKey) string {
	return fmt.Sprintf("Обращение #%d уже закрыто.", key.IssueIID)
}

const attachedFilesHeading = "**Прикреплённые файлы:**"

// AttachedFilesSection lists upload references at the end of an issue or comment body.
func AttachedFilesSection(refs []string) string {
	return attachedFilesHeading + "\n" + strings.Join(refs, "\n")
}
