// Package memory keeps licenses, activations, usage and users in process
// memory. It backs DB_DRIVER=memory and the service tests, and follows the
// same contracts as the gorm repositories.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"license-service/internal/model"
)

type usageKey struct {
	licenseID uint
	month     time.Time
}

// Store holds all tables behind one mutex. Views over it implement the
// individual repository contracts.
type Store struct {
	mu sync.Mutex

	nextID      uint
	licenses    map[uint]*model.License
	licenseKeys map[string]uint
	activations map[uint]*model.Activation
	usage       map[usageKey]*model.UsageRecord
	users       map[uint]*model.User

	now func() time.Time

	Licenses    *LicenseStore
	Activations *ActivationStore
	Usage       *UsageStore
	Users       *UserStore
}

func NewStore() *Store {
	s := &Store{
		licenses:    make(map[uint]*model.License),
		licenseKeys: make(map[string]uint),
		activations: make(map[uint]*model.Activation),
		usage:       make(map[usageKey]*model.UsageRecord),
		users:       make(map[uint]*model.User),
		now:         time.Now,
	}
	s.Licenses = &LicenseStore{s: s}
	s.Activations = &ActivationStore{s: s}
	s.Usage = &UsageStore{s: s}
	s.Users = &UserStore{s: s}
	return s
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) id() uint {
	s.nextID++
	return s.nextID
}

// LicenseStore implements the license registry contract
type LicenseStore struct{ s *Store }

func (r *LicenseStore) Create(ctx context.Context, l *model.License) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.licenseKeys[l.Key]; taken {
		return model.ErrDuplicateKey
	}
	now := s.now()
	l.ID = s.id()
	if l.Status == "" {
		l.Status = model.StatusActive
	}
	l.CreatedAt, l.UpdatedAt = now, now
	stored := *l
	s.licenses[l.ID] = &stored
	s.licenseKeys[l.Key] = l.ID
	return nil
}

func (r *LicenseStore) FindByKey(ctx context.Context, key string) (*model.License, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.licenseKeys[key]
	if !ok {
		return nil, model.ErrNotFound
	}
	l := *s.licenses[id]
	return &l, nil
}

func (r *LicenseStore) UpdateStatus(ctx context.Context, key, status string) (*model.License, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.licenseKeys[key]
	if !ok {
		return nil, model.ErrNotFound
	}
	stored := s.licenses[id]
	stored.Status = status
	stored.UpdatedAt = s.now()
	l := *stored
	return &l, nil
}

func (r *LicenseStore) SweepExpired(ctx context.Context, now time.Time) ([]model.License, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	swept := []model.License{}
	for _, l := range s.licenses {
		if l.Status == model.StatusActive && l.IsExpired(now) {
			l.Status = model.StatusExpired
			l.UpdatedAt = now
			swept = append(swept, *l)
		}
	}
	sort.Slice(swept, func(i, j int) bool { return swept[i].ID < swept[j].ID })
	return swept, nil
}

func (r *LicenseStore) ListAll(ctx context.Context) ([]model.License, error) {
	return r.list(func(*model.License) bool { return true }), nil
}

func (r *LicenseStore) ListByOwner(ctx context.Context, userID uint) ([]model.License, error) {
	return r.list(func(l *model.License) bool {
		return l.OwnerUserID != nil && *l.OwnerUserID == userID
	}), nil
}

// list returns matching licenses newest first
func (r *LicenseStore) list(match func(*model.License) bool) []model.License {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []model.License{}
	for _, l := range s.licenses {
		if match(l) {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

// ActivationStore implements the activation tracker contract
type ActivationStore struct{ s *Store }

// findActivation and countActivations must be called with s.mu held
func (s *Store) findActivation(licenseID uint, domain string) *model.Activation {
	for _, a := range s.activations {
		if a.LicenseID == licenseID && a.Domain == domain {
			return a
		}
	}
	return nil
}

func (s *Store) countActivations(licenseID uint) int64 {
	var n int64
	for _, a := range s.activations {
		if a.LicenseID == licenseID {
			n++
		}
	}
	return n
}

func (r *ActivationStore) Find(ctx context.Context, licenseID uint, domain string) (*model.Activation, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.findActivation(licenseID, domain)
	if a == nil {
		return nil, model.ErrNotFound
	}
	out := *a
	return &out, nil
}

func (r *ActivationStore) Count(ctx context.Context, licenseID uint) (int64, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countActivations(licenseID), nil
}

func (r *ActivationStore) Upsert(ctx context.Context, licenseID uint, domain string, meta model.SiteMeta, at time.Time) (*model.Activation, bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	lic, ok := s.licenses[licenseID]
	if !ok {
		return nil, false, model.ErrNotFound
	}

	if a := s.findActivation(licenseID, domain); a != nil {
		a.SiteName = meta.SiteName
		a.PlatformVersion = meta.PlatformVersion
		a.PluginVersion = meta.PluginVersion
		a.LastSeenAt = at
		out := *a
		return &out, false, nil
	}

	if s.countActivations(licenseID) >= int64(lic.MaxActivations) {
		return nil, false, &model.ActivationLimitError{Max: lic.MaxActivations}
	}

	a := &model.Activation{
		ID:              s.id(),
		LicenseID:       licenseID,
		Domain:          domain,
		SiteName:        meta.SiteName,
		PlatformVersion: meta.PlatformVersion,
		PluginVersion:   meta.PluginVersion,
		ActivatedAt:     at,
		LastSeenAt:      at,
	}
	s.activations[a.ID] = a
	out := *a
	return &out, true, nil
}

func (r *ActivationStore) Touch(ctx context.Context, activationID uint, at time.Time) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.activations[activationID]
	if !ok {
		return model.ErrNotFound
	}
	a.LastSeenAt = at
	return nil
}

func (r *ActivationStore) Deactivate(ctx context.Context, licenseID uint, domain string) (*model.Activation, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.findActivation(licenseID, domain)
	if a == nil {
		return nil, model.ErrNotFound
	}
	delete(s.activations, a.ID)
	out := *a
	return &out, nil
}

func (r *ActivationStore) ListByLicense(ctx context.Context, licenseID uint) ([]model.Activation, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []model.Activation{}
	for _, a := range s.activations {
		if a.LicenseID == licenseID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UsageStore implements the usage meter contract
type UsageStore struct{ s *Store }

func (r *UsageStore) Track(ctx context.Context, licenseID uint, delta model.UsageDelta, at time.Time) (*model.UsageRecord, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.licenses[licenseID]; !ok {
		return nil, model.ErrNotFound
	}
	k := usageKey{licenseID: licenseID, month: model.MonthStart(at)}
	rec, ok := s.usage[k]
	if !ok {
		rec = &model.UsageRecord{ID: s.id(), LicenseID: licenseID, Month: k.month}
		s.usage[k] = rec
	}
	rec.APICalls += delta.APICalls
	rec.ImagesCompressed += delta.ImagesCompressed
	rec.BandwidthSavedBytes += delta.BandwidthSavedBytes
	rec.UpdatedAt = at
	out := *rec
	return &out, nil
}

func (r *UsageStore) GetCurrentMonth(ctx context.Context, licenseID uint, at time.Time) (*model.UsageRecord, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	k := usageKey{licenseID: licenseID, month: model.MonthStart(at)}
	if rec, ok := s.usage[k]; ok {
		out := *rec
		return &out, nil
	}
	return &model.UsageRecord{LicenseID: licenseID, Month: k.month}, nil
}

func (r *UsageStore) GetHistory(ctx context.Context, licenseID uint, monthsBack int, at time.Time) ([]model.UsageRecord, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []model.UsageRecord{}
	month := model.MonthStart(at)
	for i := 0; i < monthsBack; i++ {
		if rec, ok := s.usage[usageKey{licenseID: licenseID, month: month}]; ok {
			out = append(out, *rec)
		}
		month = month.AddDate(0, -1, 0)
	}
	return out, nil
}

// UserStore implements the user repository contract
type UserStore struct{ s *Store }

func (r *UserStore) Create(ctx context.Context, u *model.User) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return model.ErrDuplicateKey
		}
	}
	now := s.now()
	u.ID = s.id()
	u.CreatedAt, u.UpdatedAt = now, now
	stored := *u
	s.users[u.ID] = &stored
	return nil
}

func (r *UserStore) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			out := *u
			return &out, nil
		}
	}
	return nil, model.ErrNotFound
}

func (r *UserStore) FindByID(ctx context.Context, id uint) (*model.User, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	out := *u
	return &out, nil
}
