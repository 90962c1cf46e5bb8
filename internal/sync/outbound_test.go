package sync

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/bookman/internal/gcal"
	"github.com/hitoshi/bookman/internal/metrics"
	"github.com/hitoshi/bookman/internal/model"
)

func localEvent() *model.Event {
	return &model.Event{
		ID:             "ev-1",
		UserID:         "owner-1",
		ProfessionalID: "prof-1",
		ClientName:     "João Santos",
		ClientCPF:      "123.456.789-00",
		ClientPhone:    "+55 11 99999-0000",
		Notes:          "Primeira consulta",
		StartTime:      time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC),
		EndTime:        time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC),
		StatusID:       "status-1",
	}
}

func newTestOutbound(cal *fakeCalendar, events *memEventRepo, profs *fakeProfessionalRepo) *OutboundSync {
	return NewOutboundSync(&fakeProvider{calendar: cal}, profs, events, metrics.NopCollector{}, testLogger())
}

// PushCreateがリモート作成とIDの記録を行うことを検証
func TestOutboundSync_PushCreate(t *testing.T) {
	cal := &fakeCalendar{nextInsertID: "g-new"}
	ev := localEvent()
	events := newMemEventRepo(ev)
	profs := &fakeProfessionalRepo{professional: linkedProfessional()}

	o := newTestOutbound(cal, events, profs)
	if err := o.PushCreate(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cal.insertedEvents) != 1 {
		t.Fatalf("inserted = %d, want 1", len(cal.insertedEvents))
	}
	remote := cal.insertedEvents[0]
	if remote.Summary != "João Santos" {
		t.Errorf("Summary = %q", remote.Summary)
	}
	for _, want := range []string{"Professional: Dr. Ana", "CPF: 123.456.789-00", "Phone: +55 11 99999-0000", "Notes: Primeira consulta"} {
		if !strings.Contains(remote.Description, want) {
			t.Errorf("Description missing %q: %q", want, remote.Description)
		}
	}

	if events.byRemoteID("g-new") == nil {
		t.Error("expected remote ID to be recorded locally")
	}
}

// 未連携プロフェッショナルへのPushCreateがスキップされることを検証
func TestOutboundSync_PushCreate_UnlinkedSkips(t *testing.T) {
	cal := &fakeCalendar{}
	prof := linkedProfessional()
	prof.GoogleCalendarID = ""
	profs := &fakeProfessionalRepo{professional: prof}

	o := newTestOutbound(cal, newMemEventRepo(), profs)
	if err := o.PushCreate(context.Background(), localEvent()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if len(cal.insertedEvents) != 0 {
		t.Error("insert must not be called for unlinked professional")
	}
}

// 未接続テナントへのPushCreateがエラーにならないことを検証
func TestOutboundSync_PushCreate_NoCredentialsIsNonFatal(t *testing.T) {
	profs := &fakeProfessionalRepo{professional: linkedProfessional()}
	o := NewOutboundSync(&fakeProvider{err: gcal.ErrNoCredentials}, profs, newMemEventRepo(), metrics.NopCollector{}, testLogger())

	if err := o.PushCreate(context.Background(), localEvent()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

// PushDeleteがリモート削除を呼ぶことを検証
func TestOutboundSync_PushDelete(t *testing.T) {
	cal := &fakeCalendar{}
	ev := localEvent()
	ev.GoogleEventID = "g-1"
	profs := &fakeProfessionalRepo{professional: linkedProfessional()}

	o := newTestOutbound(cal, newMemEventRepo(), profs)
	if err := o.PushDelete(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cal.deletedEventIDs) != 1 || cal.deletedEventIDs[0] != "g-1" {
		t.Errorf("deleted = %v, want [g-1]", cal.deletedEventIDs)
	}
}

// 未同期イベントのPushDeleteが何もしないことを検証
func TestOutboundSync_PushDelete_UnsyncedSkips(t *testing.T) {
	cal := &fakeCalendar{}
	profs := &fakeProfessionalRepo{professional: linkedProfessional()}

	o := newTestOutbound(cal, newMemEventRepo(), profs)
	if err := o.PushDelete(context.Background(), localEvent()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if len(cal.deletedEventIDs) != 0 {
		t.Error("delete must not be called for unsynced event")
	}
}
