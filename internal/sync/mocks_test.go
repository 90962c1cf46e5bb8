package sync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/bookman/internal/gcal"
	"github.com/hitoshi/bookman/internal/model"
)

type discardWriter struct{}

func (*discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&discardWriter{}, nil))
}

// fakeCalendar はテスト用のCalendarAPI実装。
type fakeCalendar struct {
	mu sync.Mutex

	remoteEvents []*gcal.RemoteEvent
	listErr      error

	insertedEvents []*gcal.RemoteEvent
	nextInsertID   string

	deletedEventIDs []string
	deleteErr       error

	watchResourceID string
	watchExpiration time.Time
	watchErr        error
	watchedChannels []string

	stoppedChannels []string
	stopErr         error
}

func (f *fakeCalendar) ListUpcomingEvents(ctx context.Context, calendarID string) ([]*gcal.RemoteEvent, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.remoteEvents, nil
}

func (f *fakeCalendar) InsertEvent(ctx context.Context, calendarID string, ev *gcal.RemoteEvent) (*gcal.RemoteEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.insertedEvents = append(f.insertedEvents, ev)
	created := *ev
	created.ID = f.nextInsertID
	if created.ID == "" {
		created.ID = "remote-generated"
	}
	return &created, nil
}

func (f *fakeCalendar) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletedEventIDs = append(f.deletedEventIDs, eventID)
	return nil
}

func (f *fakeCalendar) Watch(ctx context.Context, calendarID, channelID, address string) (*gcal.WatchInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.watchErr != nil {
		return nil, f.watchErr
	}
	f.watchedChannels = append(f.watchedChannels, channelID)
	return &gcal.WatchInfo{ResourceID: f.watchResourceID, Expiration: f.watchExpiration}, nil
}

func (f *fakeCalendar) StopChannel(ctx context.Context, channelID, resourceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stoppedChannels = append(f.stoppedChannels, channelID)
	return f.stopErr
}

// fakeProvider はテスト用のClientProvider実装。
type fakeProvider struct {
	calendar *fakeCalendar
	err      error
}

func (f *fakeProvider) ClientFor(ctx context.Context, ownerID string) (CalendarAPI, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.calendar, nil
}

// memEventRepo はインメモリのEventRepository実装。
// 照合の収束テストのため、リモートIDによる検索・更新・削除を実際に動作させる。
type memEventRepo struct {
	mu     sync.Mutex
	events map[string]*model.Event
}

func newMemEventRepo(events ...*model.Event) *memEventRepo {
	m := &memEventRepo{events: make(map[string]*model.Event)}
	for _, ev := range events {
		m.events[ev.ID] = ev
	}
	return m
}

func (m *memEventRepo) FindByID(ctx context.Context, id, ownerID string) (*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev := m.events[id]
	if ev == nil || ev.UserID != ownerID {
		return nil, nil
	}
	return ev, nil
}

func (m *memEventRepo) FindByRemoteID(ctx context.Context, googleEventID string) (*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ev := range m.events {
		if ev.GoogleEventID == googleEventID {
			return ev, nil
		}
	}
	return nil, nil
}

func (m *memEventRepo) List(ctx context.Context, ownerID, professionalID, date string) ([]*model.Event, error) {
	return nil, nil
}

func (m *memEventRepo) ListByProfessional(ctx context.Context, professionalID string) ([]*model.Event, error) {
	return nil, nil
}

func (m *memEventRepo) ListStartTimesInRange(ctx context.Context, professionalID string, from, to time.Time) ([]time.Time, error) {
	return nil, nil
}

func (m *memEventRepo) ExistsAt(ctx context.Context, professionalID string, start time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ev := range m.events {
		if ev.ProfessionalID == professionalID && ev.StartTime.Equal(start) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memEventRepo) Create(ctx context.Context, ev *model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev.GoogleEventID != "" {
		for _, existing := range m.events {
			if existing.GoogleEventID == ev.GoogleEventID {
				return errors.New("duplicate google_event_id")
			}
		}
	}
	m.events[ev.ID] = ev
	return nil
}

func (m *memEventRepo) Update(ctx context.Context, ev *model.Event, ownerID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[ev.ID]; !ok {
		return false, nil
	}
	m.events[ev.ID] = ev
	return true, nil
}

func (m *memEventRepo) UpdateStatus(ctx context.Context, id, ownerID, statusID string) (bool, error) {
	return true, nil
}

func (m *memEventRepo) Delete(ctx context.Context, id, ownerID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[id]; !ok {
		return false, nil
	}
	delete(m.events, id)
	return true, nil
}

func (m *memEventRepo) SetRemoteID(ctx context.Context, id, googleEventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev, ok := m.events[id]; ok {
		ev.GoogleEventID = googleEventID
	}
	return nil
}

func (m *memEventRepo) UpdateFromRemote(ctx context.Context, id, clientName string, start, end time.Time, professionalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return errors.New("event not found")
	}
	ev.ClientName = clientName
	ev.StartTime = start
	ev.EndTime = end
	ev.ProfessionalID = professionalID
	return nil
}

func (m *memEventRepo) DeleteByRemoteID(ctx context.Context, googleEventID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, ev := range m.events {
		if ev.GoogleEventID == googleEventID {
			delete(m.events, id)
			return 1, nil
		}
	}
	return 0, nil
}

func (m *memEventRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func (m *memEventRepo) byRemoteID(googleEventID string) *model.Event {
	ev, _ := m.FindByRemoteID(context.Background(), googleEventID)
	return ev
}

// fakeProfessionalRepo はテスト用のProfessionalRepository実装。
type fakeProfessionalRepo struct {
	mu           sync.Mutex
	professional *model.Professional

	updatedChannelID  string
	updatedResourceID string
	updatedExpiresAt  time.Time
	updateCalled      bool
}

func (f *fakeProfessionalRepo) FindByID(ctx context.Context, id string) (*model.Professional, error) {
	if f.professional != nil && f.professional.ID == id {
		return f.professional, nil
	}
	return nil, nil
}

func (f *fakeProfessionalRepo) FindByIDForOwner(ctx context.Context, id, ownerID string) (*model.Professional, error) {
	return f.FindByID(ctx, id)
}

func (f *fakeProfessionalRepo) FindByChannelID(ctx context.Context, channelID string) (*model.Professional, error) {
	if f.professional != nil && f.professional.GoogleChannelID == channelID {
		return f.professional, nil
	}
	return nil, nil
}

func (f *fakeProfessionalRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.Professional, error) {
	if f.professional == nil {
		return nil, nil
	}
	return []*model.Professional{f.professional}, nil
}

func (f *fakeProfessionalRepo) Create(ctx context.Context, p *model.Professional) error { return nil }
func (f *fakeProfessionalRepo) Update(ctx context.Context, p *model.Professional, ownerID string) (bool, error) {
	return true, nil
}
func (f *fakeProfessionalRepo) Delete(ctx context.Context, id, ownerID string) (bool, error) {
	return true, nil
}
func (f *fakeProfessionalRepo) SetCalendarID(ctx context.Context, id, calendarID string) error {
	return nil
}

func (f *fakeProfessionalRepo) UpdateWatchChannel(ctx context.Context, id, channelID, resourceID string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalled = true
	f.updatedChannelID = channelID
	f.updatedResourceID = resourceID
	f.updatedExpiresAt = expiresAt
	return nil
}

func (f *fakeProfessionalRepo) ClearIntegration(ctx context.Context, ownerID string) error {
	return nil
}

func (f *fakeProfessionalRepo) ListWatchesExpiringBefore(ctx context.Context, deadline time.Time) ([]*model.Professional, error) {
	return nil, nil
}

// fakeStatusRepo はテスト用のStatusRepository実装。
type fakeStatusRepo struct {
	defaultStatus *model.KanbanStatus
}

func (f *fakeStatusRepo) FindByID(ctx context.Context, id string) (*model.KanbanStatus, error) {
	return nil, nil
}
func (f *fakeStatusRepo) FindDefault(ctx context.Context, ownerID string) (*model.KanbanStatus, error) {
	return f.defaultStatus, nil
}
func (f *fakeStatusRepo) List(ctx context.Context, ownerID string) ([]*model.KanbanStatus, error) {
	return nil, nil
}
func (f *fakeStatusRepo) Create(ctx context.Context, s *model.KanbanStatus) error { return nil }
func (f *fakeStatusRepo) Update(ctx context.Context, s *model.KanbanStatus, ownerID string) (bool, error) {
	return true, nil
}
func (f *fakeStatusRepo) Delete(ctx context.Context, id, ownerID string) (bool, error) {
	return true, nil
}
func (f *fakeStatusRepo) Reorder(ctx context.Context, ownerID string, orderedIDs []string) error {
	return nil
}

// passthroughSanitizer は入力をそのまま返すサニタイザ。
type passthroughSanitizer struct{}

func (passthroughSanitizer) Sanitize(raw string) string { return raw }

func linkedProfessional() *model.Professional {
	return &model.Professional{
		ID:               "prof-1",
		AdministratorID:  "owner-1",
		Name:             "Dr. Ana",
		GoogleCalendarID: "cal-1",
		GoogleChannelID:  "chan-1",
		GoogleResourceID: "res-1",
	}
}

func remoteTimed(id, summary, start, end string) *gcal.RemoteEvent {
	return &gcal.RemoteEvent{
		ID:      id,
		Status:  "confirmed",
		Summary: summary,
		Start:   &gcal.EventTime{DateTime: start},
		End:     &gcal.EventTime{DateTime: end},
	}
}
