package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"birthday_notification_bot/internal/domain/birthday"
	"birthday_notification_bot/internal/domain/ledger"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// --- fakes ---

type fakeRecordRepo struct {
	records []*birthday.TrackedRecord
	listErr error
}

func (f *fakeRecordRepo) Upsert(_ context.Context, rec *birthday.TrackedRecord) error {
	for i, existing := range f.records {
		if existing.ChatID == rec.ChatID && existing.SubjectID == rec.SubjectID {
			f.records[i] = rec
			return nil
		}
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeRecordRepo) ListAll(_ context.Context) ([]*birthday.TrackedRecord, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.records, nil
}

func (f *fakeRecordRepo) ListByChat(_ context.Context, chatID int64) ([]*birthday.TrackedRecord, error) {
	var out []*birthday.TrackedRecord
	for _, rec := range f.records {
		if rec.ChatID == chatID {
			out = append(out, rec)
		}
	}
	return out, nil
}

type fakeLedger struct {
	mu        sync.Mutex
	entries   map[ledger.Key]bool
	insertErr error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{entries: make(map[ledger.Key]bool)}
}

func (f *fakeLedger) InsertIfAbsent(_ context.Context, key ledger.Key) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return false, f.insertErr
	}
	if f.entries[key] {
		return false, nil
	}
	f.entries[key] = true
	return true, nil
}

func (f *fakeLedger) Exists(_ context.Context, key ledger.Key) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries[key], nil
}

func (f *fakeLedger) DeleteKeysNotIn(_ context.Context, retained []string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	keep := make(map[string]bool, len(retained))
	for _, k := range retained {
		keep[k] = true
	}
	var removed int64
	for key := range f.entries {
		if !keep[key.DateKey] {
			delete(f.entries, key)
			removed++
		}
	}
	return removed, nil
}

// rendezvousLedger delays every Exists answer until both overlapping runs
// have performed their lookup, forcing the widest possible race window
// between "not sent" observations.
type rendezvousLedger struct {
	*fakeLedger
	barrier *sync.WaitGroup
}

func (r *rendezvousLedger) Exists(ctx context.Context, key ledger.Key) (bool, error) {
	seen, err := r.fakeLedger.Exists(ctx, key)
	r.barrier.Done()
	r.barrier.Wait()
	return seen, err
}

type sentMessage struct {
	chatID int64
	text   string
}

type fakeTransport struct {
	mu        sync.Mutex
	sent      []sentMessage
	failChats map[int64]error
}

func (f *fakeTransport) SendMessage(chatID int64, text string, _ *telebot.SendOptions) error {
	if err, ok := f.failChats[chatID]; ok {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text})
	return nil
}

// --- helpers ---

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l.WithField("test", true)
}

func named(chatID, subjectID int64, name, occursOn string) *birthday.TrackedRecord {
	return &birthday.TrackedRecord{
		ChatID:      chatID,
		SubjectID:   subjectID,
		DisplayName: sql.NullString{String: name, Valid: name != ""},
		OccursOn:    occursOn,
	}
}

func newService(records *fakeRecordRepo, led *fakeLedger, tr *fakeTransport) *BirthdayService {
	return NewBirthdayService(records, led, tr, time.UTC, 7, 2, testLogger())
}

var sep15 = time.Date(2025, time.September, 15, 12, 0, 0, 0, time.UTC)

// --- tests ---

func TestRunDispatchesTodayAndReminder(t *testing.T) {
	records := &fakeRecordRepo{records: []*birthday.TrackedRecord{
		named(1, 100, "@anna", "15.09"),
		named(1, 101, "@boris", "22.09"),
		named(1, 102, "@vera", "01.01"),
	}}
	led := newFakeLedger()
	tr := &fakeTransport{}

	report := newService(records, led, tr).Run(context.Background(), sep15)

	if report.Err != nil {
		t.Fatalf("unexpected run error: %v", report.Err)
	}
	if report.Sent != 2 || report.Skipped != 0 || report.Failed != 0 {
		t.Fatalf("report = sent %d skipped %d failed %d, want 2/0/0", report.Sent, report.Skipped, report.Failed)
	}
	if report.Date != "15.09" {
		t.Errorf("report date = %q, want 15.09", report.Date)
	}
	if len(tr.sent) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(tr.sent))
	}
	if !strings.Contains(tr.sent[0].text, "@anna") {
		t.Errorf("today message should name @anna: %q", tr.sent[0].text)
	}
	if !strings.Contains(tr.sent[1].text, "@boris") || !strings.Contains(tr.sent[1].text, "22.09") {
		t.Errorf("reminder message should name @boris and the date: %q", tr.sent[1].text)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	records := &fakeRecordRepo{records: []*birthday.TrackedRecord{
		named(1, 100, "@anna", "15.09"),
		named(1, 101, "@boris", "22.09"),
	}}
	led := newFakeLedger()
	tr := &fakeTransport{}
	svc := newService(records, led, tr)

	first := svc.Run(context.Background(), sep15)
	second := svc.Run(context.Background(), sep15)

	if first.Sent != 2 {
		t.Fatalf("first run sent = %d, want 2", first.Sent)
	}
	if second.Sent != 0 || second.Skipped != 2 {
		t.Fatalf("second run = sent %d skipped %d, want 0/2", second.Sent, second.Skipped)
	}
	if len(tr.sent) != 2 {
		t.Fatalf("transport saw %d messages across both runs, want 2", len(tr.sent))
	}
	if len(led.entries) != 2 {
		t.Fatalf("ledger holds %d entries, want 2", len(led.entries))
	}
}

func TestRunAggregatesSubjectsPerChat(t *testing.T) {
	records := &fakeRecordRepo{records: []*birthday.TrackedRecord{
		named(1, 100, "@anna", "15.09"),
		named(1, 101, "@boris", "15.09"),
	}}
	tr := &fakeTransport{}

	report := newService(records, newFakeLedger(), tr).Run(context.Background(), sep15)

	if report.Sent != 1 {
		t.Fatalf("sent = %d, want one aggregate message", report.Sent)
	}
	if len(tr.sent) != 1 {
		t.Fatalf("transport saw %d messages, want 1", len(tr.sent))
	}
	if !strings.Contains(tr.sent[0].text, "@anna") || !strings.Contains(tr.sent[0].text, "@boris") {
		t.Errorf("aggregate message should name both subjects: %q", tr.sent[0].text)
	}
}

func TestRunUsesSubjectIDFallbackLabel(t *testing.T) {
	records := &fakeRecordRepo{records: []*birthday.TrackedRecord{
		named(1, 100, "", "15.09"),
	}}
	tr := &fakeTransport{}

	newService(records, newFakeLedger(), tr).Run(context.Background(), sep15)

	if len(tr.sent) != 1 || !strings.Contains(tr.sent[0].text, "id:100") {
		t.Fatalf("expected id:100 fallback in message, got %+v", tr.sent)
	}
}

func TestRunIsolatesChatFailures(t *testing.T) {
	records := &fakeRecordRepo{records: []*birthday.TrackedRecord{
		named(1, 100, "@anna", "15.09"),
		named(2, 200, "@boris", "15.09"),
	}}
	led := newFakeLedger()
	tr := &fakeTransport{failChats: map[int64]error{1: fmt.Errorf("bot was kicked from the group chat")}}

	report := newService(records, led, tr).Run(context.Background(), sep15)

	if report.Sent != 1 || report.Failed != 1 {
		t.Fatalf("report = sent %d failed %d, want 1/1", report.Sent, report.Failed)
	}
	if len(tr.sent) != 1 || tr.sent[0].chatID != 2 {
		t.Fatalf("chat 2 should still receive its message: %+v", tr.sent)
	}
	// Both chats' entries are written, the failed chat included.
	for _, key := range []ledger.Key{
		{DateKey: "15.09", ChatID: 1, SubjectID: 100, Kind: ledger.KindToday},
		{DateKey: "15.09", ChatID: 2, SubjectID: 200, Kind: ledger.KindToday},
	} {
		if !led.entries[key] {
			t.Errorf("missing ledger entry %+v", key)
		}
	}
}

func TestRunMarksSentDespiteTransportFailure(t *testing.T) {
	records := &fakeRecordRepo{records: []*birthday.TrackedRecord{
		named(1, 100, "@anna", "15.09"),
	}}
	led := newFakeLedger()
	tr := &fakeTransport{failChats: map[int64]error{1: fmt.Errorf("temporarily unavailable")}}
	svc := newService(records, led, tr)

	first := svc.Run(context.Background(), sep15)
	if first.Failed != 1 {
		t.Fatalf("first run failed = %d, want 1", first.Failed)
	}

	// No retry on the next trigger: the occurrence was consumed.
	second := svc.Run(context.Background(), sep15)
	if second.Failed != 0 || second.Sent != 0 || second.Skipped != 1 {
		t.Fatalf("second run = sent %d skipped %d failed %d, want 0/1/0", second.Sent, second.Skipped, second.Failed)
	}
}

func TestOverlappingRunsDeliverOnce(t *testing.T) {
	records := &fakeRecordRepo{records: []*birthday.TrackedRecord{
		named(1, 100, "@anna", "15.09"),
	}}
	var barrier sync.WaitGroup
	barrier.Add(2)
	led := &rendezvousLedger{fakeLedger: newFakeLedger(), barrier: &barrier}
	tr := &fakeTransport{}
	svc := NewBirthdayService(records, led, tr, time.UTC, 7, 2, testLogger())

	reports := make(chan RunReport, 2)
	for i := 0; i < 2; i++ {
		go func() {
			reports <- svc.Run(context.Background(), sep15)
		}()
	}
	first, second := <-reports, <-reports

	// Both runs observed "not sent" at the same time; the ledger's
	// insert-if-absent decides which one owns the delivery.
	if got := len(tr.sent); got != 1 {
		t.Fatalf("one occurrence dispatched %d times across overlapping runs, want 1", got)
	}
	if first.Sent+second.Sent != 1 {
		t.Errorf("combined sent = %d, want 1", first.Sent+second.Sent)
	}
	if first.Skipped+second.Skipped != 1 {
		t.Errorf("combined skipped = %d, want 1", first.Skipped+second.Skipped)
	}
	if len(led.entries) != 1 {
		t.Errorf("ledger holds %d entries, want 1", len(led.entries))
	}
}

func TestRunAbortsOnLedgerWriteFailure(t *testing.T) {
	records := &fakeRecordRepo{records: []*birthday.TrackedRecord{
		named(1, 100, "@anna", "15.09"),
		named(2, 200, "@boris", "15.09"),
	}}
	led := newFakeLedger()
	led.insertErr = fmt.Errorf("connection reset")
	tr := &fakeTransport{}

	report := newService(records, led, tr).Run(context.Background(), sep15)

	if report.Err == nil {
		t.Fatal("expected report.Err for a failing ledger write")
	}
	if len(tr.sent) != 0 {
		t.Fatalf("no chat may be dispatched after a ledger write failure, got %d sends", len(tr.sent))
	}
}

func TestRunAbortsWhenStoreUnavailable(t *testing.T) {
	records := &fakeRecordRepo{listErr: fmt.Errorf("connection refused")}
	tr := &fakeTransport{}

	report := newService(records, newFakeLedger(), tr).Run(context.Background(), sep15)

	if report.Err == nil {
		t.Fatal("expected report.Err for unavailable store")
	}
	if len(tr.sent) != 0 {
		t.Fatalf("no messages should be sent on an aborted run, got %d", len(tr.sent))
	}
}

func TestRunSweepsStaleLedgerEntries(t *testing.T) {
	led := newFakeLedger()
	// stale is 3 days older than today, fresh 1 day older, future a live
	// reminder 7 days out.
	stale := ledger.Key{DateKey: "12.09", ChatID: 1, SubjectID: 50, Kind: ledger.KindToday}
	fresh := ledger.Key{DateKey: "14.09", ChatID: 1, SubjectID: 51, Kind: ledger.KindToday}
	future := ledger.Key{DateKey: "22.09", ChatID: 1, SubjectID: 52, Kind: ledger.KindReminder}
	led.entries[stale] = true
	led.entries[fresh] = true
	led.entries[future] = true

	report := newService(&fakeRecordRepo{}, led, &fakeTransport{}).Run(context.Background(), sep15)

	if report.SweepRemoved != 1 {
		t.Fatalf("sweep removed %d entries, want 1", report.SweepRemoved)
	}
	if led.entries[stale] {
		t.Error("3-day-old entry should have been swept")
	}
	if !led.entries[fresh] || !led.entries[future] {
		t.Error("entries inside the retained window must survive the sweep")
	}
}

func TestRunZonesNowIntoServiceTimezone(t *testing.T) {
	// 23:30 UTC on Sep 14 is already Sep 15 in UTC+3.
	msk := time.FixedZone("UTC+3", 3*60*60)
	records := &fakeRecordRepo{records: []*birthday.TrackedRecord{
		named(1, 100, "@anna", "15.09"),
	}}
	tr := &fakeTransport{}
	svc := NewBirthdayService(records, newFakeLedger(), tr, msk, 7, 2, testLogger())

	report := svc.Run(context.Background(), time.Date(2025, time.September, 14, 23, 30, 0, 0, time.UTC))

	if report.Date != "15.09" {
		t.Fatalf("report date = %q, want 15.09 in service zone", report.Date)
	}
	if report.Sent != 1 {
		t.Fatalf("sent = %d, want 1", report.Sent)
	}
}
