package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"birthday_notification_bot/internal/app"
	"birthday_notification_bot/internal/domain/birthday"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// RegisterHandlers wires the chat commands: birthday submission, listing
// and the manual trigger. Submission is the only path that writes tracked
// records; the date is validated before it ever reaches the repository.
func RegisterHandlers(
	ctx context.Context,
	b *telebot.Bot,
	subscriptions *app.SubscriptionService,
	birthdays *app.BirthdayService,
	baseLogger *logrus.Entry,
) {
	b.Handle("/start", func(c telebot.Context) error {
		baseLogger.WithFields(logrus.Fields{
			"handler":   "/start",
			"sender_id": c.Sender().ID,
		}).Info("Command received")
		return c.Send("Привет! Я бот-напоминалка о днях рождения. Отправьте /birthday ДД.ММ, чтобы я запомнил вашу дату, и я поздравлю вас в этом чате и напомню остальным за неделю. /help - список команд.")
	})

	b.Handle("/help", func(c telebot.Context) error {
		baseLogger.WithFields(logrus.Fields{
			"handler":   "/help",
			"sender_id": c.Sender().ID,
		}).Info("Command received")

		var helpText strings.Builder
		helpText.WriteString("Доступные команды:\n\n")
		helpText.WriteString("`/birthday <ДД.ММ>`\n - Сохранить свой день рождения для этого чата. Например: /birthday 15.09 или /birthday 1509.\n\n")
		helpText.WriteString("`/birthdays`\n - Показать все сохранённые дни рождения этого чата.\n\n")
		helpText.WriteString("`/check`\n - Запустить проверку вручную. Повторный запуск безопасен: каждое поздравление отправляется не больше одного раза.\n\n")
		helpText.WriteString("`/help`\n - Показать это справочное сообщение.")
		return c.Send(helpText.String(), &telebot.SendOptions{ParseMode: telebot.ModeMarkdown})
	})

	b.Handle("/birthday", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/birthday",
			"sender_id": c.Sender().ID,
			"chat_id":   c.Chat().ID,
		})
		handlerLogger.Info("Command received")

		args := c.Args()
		if len(args) == 0 {
			return c.Send("Укажите дату: /birthday ДД.ММ (например, /birthday 15.09).")
		}
		raw := strings.Join(args, " ")

		displayName := c.Sender().Username
		if displayName != "" {
			displayName = "@" + displayName
		} else {
			displayName = c.Sender().FirstName
		}

		rec, err := subscriptions.Subscribe(ctx, c.Chat().ID, c.Sender().ID, displayName, raw)
		if err != nil {
			logWithError := handlerLogger.WithError(err).WithField("raw_date", raw)
			switch err {
			case birthday.ErrUnrecognizedDate:
				logWithError.Warn("Date input not recognized")
				return c.Send("Не понял дату. Отправьте день и месяц цифрами: 15.09, 1509 или 309 (3 сентября).")
			case birthday.ErrImpossibleDate:
				logWithError.Warn("Date input names no calendar day")
				return c.Send("Такой даты не бывает. Проверьте день и месяц, например: 15.09.")
			default:
				logWithError.Error("Failed to store birthday")
				return c.Send("Произошла ошибка при сохранении даты. Пожалуйста, попробуйте позже.")
			}
		}

		handlerLogger.WithField("occurs_on", rec.OccursOn).Info("Birthday stored")
		return c.Send(fmt.Sprintf("Запомнил: %s - день рождения %s. Поздравлю в этом чате и напомню за неделю!", rec.OccursOn, rec.Label()))
	})

	b.Handle("/birthdays", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler": "/birthdays",
			"chat_id": c.Chat().ID,
		})
		handlerLogger.Info("Command received")

		records, err := subscriptions.ListForChat(ctx, c.Chat().ID)
		if err != nil {
			handlerLogger.WithError(err).Error("Failed to list birthdays")
			return c.Send("Произошла ошибка при получении списка. Пожалуйста, попробуйте позже.")
		}
		if len(records) == 0 {
			return c.Send("В этом чате пока нет сохранённых дней рождения. Отправьте /birthday ДД.ММ, чтобы добавить свой.")
		}

		var response strings.Builder
		response.WriteString("Дни рождения этого чата:\n")
		for _, rec := range records {
			response.WriteString(fmt.Sprintf("%s - %s\n", rec.OccursOn, rec.Label()))
		}
		handlerLogger.WithField("records_count", len(records)).Info("Birthday list sent")
		return c.Send(response.String())
	})

	b.Handle("/check", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/check",
			"sender_id": c.Sender().ID,
			"chat_id":   c.Chat().ID,
		})
		handlerLogger.Info("Command received")

		report := birthdays.Run(ctx, time.Now())
		if report.Err != nil {
			handlerLogger.WithError(report.Err).Error("Manual birthday run aborted")
			return c.Send("Проверка не удалась, попробуйте позже.")
		}
		handlerLogger.WithFields(logrus.Fields{
			"sent":    report.Sent,
			"skipped": report.Skipped,
			"failed":  report.Failed,
		}).Info("Manual birthday run finished")
		return c.Send(fmt.Sprintf("Проверка за %s завершена: отправлено %d, уже было отправлено %d, ошибок доставки %d.",
			report.Date, report.Sent, report.Skipped, report.Failed))
	})
}
