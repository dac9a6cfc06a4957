package scheduler

import (
	"context"
	"time"

	"birthday_notification_bot/internal/app"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// BirthdayScheduler triggers the daily notification run via cron. The run
// itself is idempotent, so an overlap with an HTTP-triggered run or a
// restart is harmless.
type BirthdayScheduler struct {
	cronEngine    *cron.Cron
	service       *app.BirthdayService
	log           *logrus.Entry
	cronSpecDaily string
}

func NewBirthdayScheduler(service *app.BirthdayService, log *logrus.Entry, cronSpecDaily string, loc *time.Location) *BirthdayScheduler {
	return &BirthdayScheduler{
		cronEngine:    cron.New(cron.WithLocation(loc)),
		service:       service,
		log:           log,
		cronSpecDaily: cronSpecDaily,
	}
}

func (s *BirthdayScheduler) Start() error {
	_, err := s.cronEngine.AddFunc(s.cronSpecDaily, func() {
		s.log.Info("Cron job triggered for daily birthday check")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		report := s.service.Run(ctx, time.Now())
		if report.Err != nil {
			s.log.WithError(report.Err).Error("Scheduled birthday run aborted")
		}
	})
	if err != nil {
		return err
	}

	s.cronEngine.Start()
	s.log.WithField("cron_spec", s.cronSpecDaily).Info("Birthday scheduler started")
	return nil
}

func (s *BirthdayScheduler) Stop() {
	s.log.Info("Stopping birthday scheduler...")
	ctx := s.cronEngine.Stop() // Waits for a running job to finish.
	<-ctx.Done()
	s.log.Info("Birthday scheduler gracefully stopped")
}
