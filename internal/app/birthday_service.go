package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"birthday_notification_bot/internal/domain/birthday"
	"birthday_notification_bot/internal/domain/ledger"
	domainTelegram "birthday_notification_bot/internal/domain/telegram"

	"github.com/sirupsen/logrus"
)

// RunReport summarizes one orchestrator run. Run never returns an error or
// panics; failures are counted here and logged so any trigger (cron job,
// health-check handler, CLI) can always respond.
type RunReport struct {
	Date         string // today's "DD.MM" key in the service time zone
	Sent         int    // messages dispatched to the transport
	Skipped      int    // matches suppressed because the ledger already had them
	Failed       int    // per-chat transport failures
	SweepRemoved int64  // ledger entries pruned this run
	Err          error  // set when the run aborted early (store unavailable)
}

// BirthdayService orchestrates one notification run: match tracked
// birthdays against today and the +7-day horizon, filter through the
// ledger, dispatch one aggregate message per chat per kind, and sweep
// stale ledger entries.
//
// The service keeps no state between runs; the ledger is the only
// synchronization point, which makes Run safe to invoke concurrently,
// redundantly and on any schedule.
type BirthdayService struct {
	records       birthday.Repository
	ledger        ledger.Repository
	telegram      domainTelegram.Client
	loc           *time.Location
	horizonDays   int
	retentionDays int
	log           *logrus.Entry
}

func NewBirthdayService(
	records birthday.Repository,
	ledgerRepo ledger.Repository,
	tg domainTelegram.Client,
	loc *time.Location,
	horizonDays int,
	retentionDays int,
	log *logrus.Entry,
) *BirthdayService {
	return &BirthdayService{
		records:       records,
		ledger:        ledgerRepo,
		telegram:      tg,
		loc:           loc,
		horizonDays:   horizonDays,
		retentionDays: retentionDays,
		log:           log,
	}
}

// Run executes one notification pass for the given instant.
//
// Every subject is recorded in the ledger before its dispatch attempt, and
// the record stands whether or not the transport delivery succeeds: a chat
// gets at most one attempt per occurrence per kind, and a failed delivery
// is never retried on later runs. Duplicate spam is considered worse than a
// missed congratulation.
func (s *BirthdayService) Run(ctx context.Context, now time.Time) RunReport {
	local := now.In(s.loc)
	todayKey := birthday.KeyFor(local)
	horizonKey := birthday.HorizonKey(local, s.horizonDays)

	report := RunReport{Date: todayKey}
	runLog := s.log.WithFields(logrus.Fields{"today": todayKey, "horizon": horizonKey})
	runLog.Info("Notification run started")

	records, err := s.records.ListAll(ctx)
	if err != nil {
		report.Err = fmt.Errorf("failed to list tracked records: %w", err)
		runLog.WithError(err).Error("Run aborted: record store unavailable")
		return report
	}

	matches := birthday.Match(records, todayKey, horizonKey)
	if err := s.dispatch(ctx, ledger.KindToday, todayKey, matches.Today, &report); err != nil {
		report.Err = err
		runLog.WithError(err).Error("Run aborted during today dispatch")
		return report
	}
	if err := s.dispatch(ctx, ledger.KindReminder, horizonKey, matches.Upcoming, &report); err != nil {
		report.Err = err
		runLog.WithError(err).Error("Run aborted during reminder dispatch")
		return report
	}

	s.sweep(ctx, local, &report, runLog)

	runLog.WithFields(logrus.Fields{
		"sent":          report.Sent,
		"skipped":       report.Skipped,
		"failed":        report.Failed,
		"swept_entries": report.SweepRemoved,
	}).Info("Notification run finished")
	return report
}

// dispatch handles one notification kind. The ledger's insert-if-absent is
// the dispatch gate: a subject joins the outgoing message only when this
// run recorded its ledger entry, so two overlapping runs can never deliver
// the same occurrence twice. Marking therefore precedes the transport
// attempt, which is also what keeps the at-most-one-attempt policy (see
// Run): by the time the send happens the occurrence is already consumed.
// Any ledger failure aborts the run (returned as error); a transport
// failure is isolated to its chat.
func (s *BirthdayService) dispatch(ctx context.Context, kind ledger.Kind, dateKey string, matches []*birthday.TrackedRecord, report *RunReport) error {
	perChat := make(map[int64][]*birthday.TrackedRecord)
	var chatOrder []int64
	for _, rec := range matches {
		key := ledger.Key{DateKey: dateKey, ChatID: rec.ChatID, SubjectID: rec.SubjectID, Kind: kind}
		seen, err := s.ledger.Exists(ctx, key)
		if err != nil {
			return fmt.Errorf("ledger lookup failed for chat %d: %w", rec.ChatID, err)
		}
		if seen {
			report.Skipped++
			continue
		}
		inserted, err := s.ledger.InsertIfAbsent(ctx, key)
		if err != nil {
			return fmt.Errorf("ledger write failed for chat %d: %w", rec.ChatID, err)
		}
		if !inserted {
			// A concurrent run recorded the key first and owns the attempt.
			report.Skipped++
			continue
		}
		if _, ok := perChat[rec.ChatID]; !ok {
			chatOrder = append(chatOrder, rec.ChatID)
		}
		perChat[rec.ChatID] = append(perChat[rec.ChatID], rec)
	}

	for _, chatID := range chatOrder {
		pending := perChat[chatID]
		text := composeMessage(kind, dateKey, pending)

		sendLog := s.log.WithFields(logrus.Fields{"chat_id": chatID, "kind": string(kind), "subjects": len(pending)})
		if err := s.telegram.SendMessage(chatID, text, nil); err != nil {
			// Unreachable chats (bot kicked) and transient errors are
			// treated the same: logged, counted, not retried.
			report.Failed++
			sendLog.WithError(err).Error("Failed to deliver notification")
		} else {
			report.Sent++
			sendLog.Info("Notification delivered")
		}
	}
	return nil
}

// sweep prunes ledger entries whose date key fell out of the retained
// window. Failures are logged and retried naturally on the next run.
func (s *BirthdayService) sweep(ctx context.Context, local time.Time, report *RunReport, runLog *logrus.Entry) {
	retained := birthday.RetainedKeys(local, s.retentionDays, s.horizonDays)
	removed, err := s.ledger.DeleteKeysNotIn(ctx, retained)
	if err != nil {
		runLog.WithError(err).Error("Ledger sweep failed")
		return
	}
	report.SweepRemoved = removed
}

func composeMessage(kind ledger.Kind, dateKey string, records []*birthday.TrackedRecord) string {
	names := make([]string, len(records))
	for i, rec := range records {
		names[i] = rec.Label()
	}
	joined := strings.Join(names, ", ")

	if kind == ledger.KindReminder {
		return fmt.Sprintf("Напоминание: через неделю (%s) день рождения у %s. Не забудьте подготовить поздравление!", dateKey, joined)
	}
	return fmt.Sprintf("🎉 Сегодня день рождения у %s! Поздравляем!", joined)
}
