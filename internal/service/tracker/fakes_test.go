package tracker

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/databot/youtube-tracker/internal/db"
	"github.com/databot/youtube-tracker/internal/db/models"
	"github.com/databot/youtube-tracker/internal/notify"
	"github.com/databot/youtube-tracker/internal/service/youtube"
	"github.com/databot/youtube-tracker/internal/validation"
)

// In-memory repositories mirroring the SQL upsert semantics closely enough
// for service-level tests.

type memUserRepo struct {
	mu     sync.Mutex
	nextID int64
	byDisc map[string]*models.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{byDisc: map[string]*models.User{}}
}

func (m *memUserRepo) UpsertUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.byDisc[user.DiscordUserID]; ok {
		user.ID = existing.ID
		if user.DiscordUsername != nil {
			existing.DiscordUsername = user.DiscordUsername
		}
		return nil
	}
	m.nextID++
	user.ID = m.nextID
	cp := *user
	m.byDisc[user.DiscordUserID] = &cp
	return nil
}

func (m *memUserRepo) GetByDiscordID(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byDisc[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, db.ErrNotFound
}

func (m *memUserRepo) GetByID(_ context.Context, id int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byDisc {
		if u.ID == id {
			cp := *u
			return &cp, nil
		}
	}
	return nil, db.ErrNotFound
}

type memChannelRepo struct {
	mu     sync.Mutex
	nextID int64
	byID   map[string]*models.Channel
}

func newMemChannelRepo() *memChannelRepo {
	return &memChannelRepo{byID: map[string]*models.Channel{}}
}

func (m *memChannelRepo) UpsertChannel(_ context.Context, ch *models.Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.byID[ch.ChannelID]; ok {
		if ch.ChannelName != nil {
			existing.ChannelName = ch.ChannelName
		}
		existing.URL = ch.URL
		existing.IsActive = ch.IsActive
		ch.ID = existing.ID
		ch.UserID = existing.UserID
		ch.VerificationCode = existing.VerificationCode
		ch.VerificationState = existing.VerificationState
		ch.VerificationMode = existing.VerificationMode
		ch.VerificationAttempts = existing.VerificationAttempts
		ch.IsVerified = existing.IsVerified
		return nil
	}
	m.nextID++
	ch.ID = m.nextID
	cp := *ch
	m.byID[ch.ChannelID] = &cp
	return nil
}

func (m *memChannelRepo) GetByChannelID(_ context.Context, id string) (*models.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := m.byID[id]; ok {
		cp := *ch
		return &cp, nil
	}
	return nil, db.ErrNotFound
}

func (m *memChannelRepo) GetByID(_ context.Context, id int64) (*models.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.byID {
		if ch.ID == id {
			cp := *ch
			return &cp, nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *memChannelRepo) UpdateVerification(_ context.Context, ch *models.Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.ID == ch.ID {
			existing.VerificationCode = ch.VerificationCode
			existing.VerificationState = ch.VerificationState
			existing.VerificationAttempts = ch.VerificationAttempts
			existing.IsVerified = ch.IsVerified
			return nil
		}
	}
	return db.ErrNotFound
}

func (m *memChannelRepo) ListPendingCheck(_ context.Context, limit int) ([]*models.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Channel
	for _, ch := range m.byID {
		if ch.VerificationState == models.StatePendingCheck && ch.IsActive {
			cp := *ch
			out = append(out, &cp)
		}
	}
	sortChannels(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memChannelRepo) ListSyncCandidates(_ context.Context, mode *models.VerificationMode) ([]*models.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Channel
	for _, ch := range m.byID {
		if ch.VerificationState != models.StateVerified || !ch.IsActive {
			continue
		}
		if mode != nil && ch.VerificationMode != *mode {
			continue
		}
		cp := *ch
		out = append(out, &cp)
	}
	sortChannels(out)
	return out, nil
}

func (m *memChannelRepo) SetActive(_ context.Context, id int64, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.byID {
		if ch.ID == id {
			ch.IsActive = active
			return nil
		}
	}
	return db.ErrNotFound
}

func (m *memChannelRepo) TouchSync(_ context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.byID {
		if ch.ID == id {
			ch.LastSyncAt = &at
			return nil
		}
	}
	return db.ErrNotFound
}

func sortChannels(chs []*models.Channel) {
	sort.Slice(chs, func(i, j int) bool { return chs[i].ID < chs[j].ID })
}

type memVideoRepo struct {
	mu     sync.Mutex
	nextID int64
	byID   map[string]*models.Video
}

func newMemVideoRepo() *memVideoRepo {
	return &memVideoRepo{byID: map[string]*models.Video{}}
}

func (m *memVideoRepo) UpsertVideo(_ context.Context, v *models.Video) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.byID[v.VideoID]; ok {
		if !v.LastUpdatedAt.Before(existing.LastUpdatedAt) {
			existing.ViewCount = v.ViewCount
			existing.LikeCount = v.LikeCount
			existing.CommentCount = v.CommentCount
			existing.LastUpdatedAt = v.LastUpdatedAt
		}
		if v.Title != nil {
			existing.Title = v.Title
		}
		if v.ChannelPK != nil {
			existing.ChannelPK = v.ChannelPK
		}
		v.ID = existing.ID
		v.ViewCount = existing.ViewCount
		v.LikeCount = existing.LikeCount
		v.CommentCount = existing.CommentCount
		v.LastUpdatedAt = existing.LastUpdatedAt
		return nil
	}
	m.nextID++
	v.ID = m.nextID
	cp := *v
	m.byID[v.VideoID] = &cp
	return nil
}

func (m *memVideoRepo) GetByVideoID(_ context.Context, id string) (*models.Video, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.byID[id]; ok {
		cp := *v
		return &cp, nil
	}
	return nil, db.ErrNotFound
}

func (m *memVideoRepo) ListActive(_ context.Context) ([]*models.Video, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Video
	for _, v := range m.byID {
		if v.IsActive {
			cp := *v
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastUpdatedAt.Before(out[j].LastUpdatedAt) })
	return out, nil
}

func (m *memVideoRepo) CountActiveByUser(_ context.Context, userID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, v := range m.byID {
		if v.UserID == userID && v.IsActive {
			n++
		}
	}
	return n, nil
}

func (m *memVideoRepo) Deactivate(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.byID[id]
	if !ok {
		return db.ErrNotFound
	}
	v.IsActive = false
	return nil
}

func (m *memVideoRepo) DeleteInactiveBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, v := range m.byID {
		if !v.IsActive && v.UpdatedAt.Before(cutoff) {
			delete(m.byID, id)
			n++
		}
	}
	return n, nil
}

type memSnapshotRepo struct {
	mu   sync.Mutex
	rows map[[3]int64]*models.MonthlyView
}

func newMemSnapshotRepo() *memSnapshotRepo {
	return &memSnapshotRepo{rows: map[[3]int64]*models.MonthlyView{}}
}

func (m *memSnapshotRepo) RecordSnapshot(_ context.Context, s *models.MonthlyView) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.rows[[3]int64{s.VideoPK, int64(s.Year), int64(s.Month)}] = &cp
	return nil
}

func (m *memSnapshotRepo) GetSnapshot(_ context.Context, videoPK int64, year, month int) (*models.MonthlyView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.rows[[3]int64{videoPK, int64(year), int64(month)}]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, db.ErrNotFound
}

func (m *memSnapshotRepo) HasSnapshot(_ context.Context, videoPK int64, year, month int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rows[[3]int64{videoPK, int64(year), int64(month)}]
	return ok, nil
}

func (m *memSnapshotRepo) GetUserReport(_ context.Context, userID int64, year, month int) ([]*models.ReportEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ReportEntry
	for _, s := range m.rows {
		if s.UserID == userID && s.Year == year && s.Month == month {
			out = append(out, &models.ReportEntry{
				UserID:      s.UserID,
				Year:        s.Year,
				Month:       s.Month,
				Views:       s.Views,
				ViewsChange: s.ViewsChange,
				VideoPK:     s.VideoPK,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Views > out[j].Views })
	return out, nil
}

func (m *memSnapshotRepo) DeleteBefore(_ context.Context, year, month int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for key, s := range m.rows {
		if s.Year*100+s.Month < year*100+month {
			delete(m.rows, key)
			n++
		}
	}
	return n, nil
}

// fakeYouTube is a scriptable provider.
type fakeYouTube struct {
	mu       sync.Mutex
	channels map[string]*youtube.Channel
	videos   map[string]*youtube.Video
	uploads  map[string][]*youtube.Video
	handles  map[string]string
	err      error
	fetches  int
}

func newFakeYouTube() *fakeYouTube {
	return &fakeYouTube{
		channels: map[string]*youtube.Channel{},
		videos:   map[string]*youtube.Video{},
		uploads:  map[string][]*youtube.Video{},
		handles:  map[string]string{},
	}
}

func (f *fakeYouTube) FetchChannel(_ context.Context, id string) (*youtube.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.err != nil {
		return nil, f.err
	}
	if ch, ok := f.channels[id]; ok {
		return ch, nil
	}
	return nil, youtube.ErrNotFound
}

func (f *fakeYouTube) FetchVideo(_ context.Context, id string) (*youtube.Video, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.videos[id]; ok {
		return v, nil
	}
	return nil, youtube.ErrNotFound
}

func (f *fakeYouTube) ListChannelVideos(_ context.Context, channelID, pageToken string) (*youtube.VideoPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &youtube.VideoPage{Videos: f.uploads[channelID]}, nil
}

func (f *fakeYouTube) ResolveChannelID(_ context.Context, ref validation.ChannelRef) (string, error) {
	if ref.Resolved() {
		return ref.ID, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.handles[ref.Handle]; ok {
		return id, nil
	}
	return "", youtube.ErrNotFound
}

// fakePublisher records published events.
type fakePublisher struct {
	mu            sync.Mutex
	verifications []notify.VerificationResult
	reports       []notify.ReportReady
	discoveries   []notify.VideoDiscovered
}

func (f *fakePublisher) PublishVerificationResult(_ context.Context, r notify.VerificationResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifications = append(f.verifications, r)
	return nil
}

func (f *fakePublisher) PublishReportReady(_ context.Context, r notify.ReportReady) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, r)
	return nil
}

func (f *fakePublisher) PublishVideoDiscovered(_ context.Context, v notify.VideoDiscovered) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discoveries = append(f.discoveries, v)
	return nil
}

func (f *fakePublisher) IsHealthy() bool { return true }
func (f *fakePublisher) Close() error    { return nil }
