// Package memstore has in-memory stores with the same behavior as the
// Postgres repositories. Tests use them in place of a database.
package memstore

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Rafhael-Viana/geoproof/models"
	"github.com/Rafhael-Viana/geoproof/repository"
)

type Users struct {
	mu   sync.Mutex
	ByID map[string]*models.User
	next int64
}

func NewUsers() *Users {
	return &Users{ByID: map[string]*models.User{}}
}

func (m *Users) Create(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.ByID {
		if strings.EqualFold(existing.Email, u.Email) {
			return repository.ErrDuplicate
		}
	}
	m.next++
	u.ID = m.next
	cp := *u
	m.ByID[u.UserID] = &cp
	return nil
}

func (m *Users) GetByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.ByID {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *Users) GetByUserID(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.ByID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *Users) List(_ context.Context) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.User{}
	for _, u := range m.ByID {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *Users) Update(_ context.Context, id string, in repository.UserUpdate) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.ByID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if in.Email != nil {
		for otherID, other := range m.ByID {
			if otherID != id && strings.EqualFold(other.Email, *in.Email) {
				return nil, repository.ErrDuplicate
			}
		}
		u.Email = *in.Email
	}
	if in.Name != nil {
		u.Name = *in.Name
	}
	if in.Password != nil {
		u.Password = *in.Password
	}
	if in.Role != nil {
		u.Role = *in.Role
	}
	cp := *u
	return &cp, nil
}

func (m *Users) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.ByID[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.ByID, id)
	return nil
}

func (m *Users) Count(_ context.Context, role *models.Role) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, u := range m.ByID {
		if role == nil || u.Role == *role {
			n++
		}
	}
	return n, nil
}

type Geofences struct {
	mu   sync.Mutex
	ByID map[int64]*models.Geofence
	next int64
}

func NewGeofences() *Geofences {
	return &Geofences{ByID: map[int64]*models.Geofence{}}
}

func (m *Geofences) List(_ context.Context) ([]models.Geofence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Geofence{}
	for _, g := range m.ByID {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Geofences) Get(_ context.Context, id int64) (*models.Geofence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.ByID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *g
	return &cp, nil
}

// Active matches repository.GeofenceRepository.Active.
func (m *Geofences) Active(_ context.Context) (*models.Geofence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.ByID {
		if g.IsActive {
			cp := *g
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Geofences) deactivateOthers(id int64) {
	for otherID, g := range m.ByID {
		if otherID != id {
			g.IsActive = false
		}
	}
}

func (m *Geofences) Create(ctx context.Context, g *models.Geofence) (*models.Geofence, error) {
	m.mu.Lock()
	m.next++
	g.ID = m.next
	if g.IsActive {
		m.deactivateOthers(g.ID)
	}
	cp := *g
	m.ByID[g.ID] = &cp
	m.mu.Unlock()
	return m.Get(ctx, g.ID)
}

func (m *Geofences) Update(ctx context.Context, g *models.Geofence) (*models.Geofence, error) {
	m.mu.Lock()
	if _, ok := m.ByID[g.ID]; !ok {
		m.mu.Unlock()
		return nil, repository.ErrNotFound
	}
	if g.IsActive {
		m.deactivateOthers(g.ID)
	}
	cp := *g
	m.ByID[g.ID] = &cp
	m.mu.Unlock()
	return m.Get(ctx, g.ID)
}

func (m *Geofences) Activate(ctx context.Context, id int64) (*models.Geofence, error) {
	m.mu.Lock()
	g, ok := m.ByID[id]
	if !ok {
		m.mu.Unlock()
		return nil, repository.ErrNotFound
	}
	m.deactivateOthers(id)
	g.IsActive = true
	m.mu.Unlock()
	return m.Get(ctx, id)
}

func (m *Geofences) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.ByID[id]
	if !ok {
		return repository.ErrNotFound
	}
	if g.IsActive {
		return repository.ErrStateChanged
	}
	delete(m.ByID, id)
	return nil
}

// ActiveGeofence serves a fixed geofence and counts invalidations.
type ActiveGeofence struct {
	mu          sync.Mutex
	Fence       *models.Geofence
	Err         error
	Invalidated int
}

func (m *ActiveGeofence) Get(context.Context) (*models.Geofence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Fence, m.Err
}

func (m *ActiveGeofence) Invalidate(context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Invalidated++
}

type Attendance struct {
	mu         sync.Mutex
	Records    map[int64]*models.Attendance
	next       int64
	LastFixErr error
	CreateErr  error
	LastFilter models.AttendanceFilter
}

func NewAttendance() *Attendance {
	return &Attendance{Records: map[int64]*models.Attendance{}}
}

func (m *Attendance) Create(_ context.Context, a *models.Attendance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return m.CreateErr
	}
	for _, r := range m.Records {
		if r.UserID == a.UserID && r.CheckOut == nil {
			return repository.ErrDuplicate
		}
	}
	m.next++
	a.ID = m.next
	a.CreatedAt = a.ServerTimestamp
	a.UpdatedAt = a.ServerTimestamp
	cp := *a
	m.Records[a.ID] = &cp
	return nil
}

func (m *Attendance) Open(_ context.Context, userID string) (*models.Attendance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.Records {
		if r.UserID == userID && r.CheckOut == nil {
			cp := *r
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *Attendance) LastFix(_ context.Context, userID string) (*models.LastFix, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LastFixErr != nil {
		return nil, m.LastFixErr
	}
	var best *models.Attendance
	for _, r := range m.Records {
		if r.UserID != userID || r.Latitude == nil || r.Longitude == nil {
			continue
		}
		if best == nil || r.CheckIn.After(best.CheckIn) {
			best = r
		}
	}
	if best == nil {
		return nil, repository.ErrNotFound
	}
	return &models.LastFix{AttendanceID: best.ID, Latitude: *best.Latitude, Longitude: *best.Longitude, CheckIn: best.CheckIn}, nil
}

func (m *Attendance) CheckOut(ctx context.Context, userID string, at time.Time) (*models.Attendance, error) {
	m.mu.Lock()
	var id int64
	for _, r := range m.Records {
		if r.UserID == userID && r.CheckOut == nil {
			t := at
			r.CheckOut = &t
			id = r.ID
		}
	}
	m.mu.Unlock()
	if id == 0 {
		return nil, repository.ErrNotFound
	}
	return m.Get(ctx, id)
}

func (m *Attendance) Get(_ context.Context, id int64) (*models.Attendance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.Records[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *Attendance) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Records[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.Records, id)
	return nil
}

func (m *Attendance) UpdateTimes(ctx context.Context, id int64, checkIn time.Time, checkOut *time.Time) (*models.Attendance, error) {
	m.mu.Lock()
	r, ok := m.Records[id]
	if !ok {
		m.mu.Unlock()
		return nil, repository.ErrNotFound
	}
	r.CheckIn = checkIn
	r.CheckOut = checkOut
	m.mu.Unlock()
	return m.Get(ctx, id)
}

func (m *Attendance) Verify(ctx context.Context, v repository.Verification) (*models.Attendance, error) {
	m.mu.Lock()
	r, ok := m.Records[v.ID]
	if !ok {
		m.mu.Unlock()
		return nil, repository.ErrNotFound
	}
	if r.Status != v.From {
		m.mu.Unlock()
		return nil, repository.ErrStateChanged
	}
	r.Status = v.To
	by, at := v.By, v.At
	r.VerifiedBy = &by
	r.VerifiedAt = &at
	r.VerificationNote = v.Note
	m.mu.Unlock()
	return m.Get(ctx, v.ID)
}

func (m *Attendance) List(_ context.Context, flt models.AttendanceFilter) ([]models.Attendance, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastFilter = flt

	matched := []models.Attendance{}
	for _, r := range m.Records {
		switch {
		case flt.UserID != "" && r.UserID != flt.UserID:
			continue
		case flt.Status != nil && r.Status != *flt.Status:
			continue
		case flt.From != nil && r.CheckIn.Before(*flt.From):
			continue
		case flt.To != nil && !r.CheckIn.Before(*flt.To):
			continue
		case flt.Suspicious && !r.SuspiciousFlag:
			continue
		case flt.NameLike != "" && (r.User == nil || !strings.Contains(strings.ToLower(r.User.Name), strings.ToLower(flt.NameLike))):
			continue
		}
		matched = append(matched, *r)
	}
	sort.Slice(matched, func(i, j int) bool {
		if flt.OldestFirst {
			return matched[i].CheckIn.Before(matched[j].CheckIn)
		}
		return matched[i].CheckIn.After(matched[j].CheckIn)
	})

	total := int64(len(matched))
	if flt.Limit > 0 {
		start := flt.Offset()
		if start > len(matched) {
			start = len(matched)
		}
		end := start + flt.Limit
		if end > len(matched) {
			end = len(matched)
		}
		matched = matched[start:end]
	}
	return matched, total, nil
}

// Photos keeps uploads in memory under "/uploads/<user>-<name>".
type Photos struct {
	mu      sync.Mutex
	Saved   map[string][]byte
	Removed []string
}

func NewPhotos() *Photos {
	return &Photos{Saved: map[string][]byte{}}
}

func (m *Photos) Save(userID, name string, r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ref := "/uploads/" + userID + "-" + name
	m.Saved[ref] = b
	return ref, nil
}

func (m *Photos) Remove(ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Removed = append(m.Removed, ref)
	delete(m.Saved, ref)
	return nil
}
