package profile_test

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/opencrafts-io/parley/internal/profile"
)

// memProfiles mirrors MongoStore semantics: a unique username and per-field
// updates conditioned on that field's stored sequence.
type memProfiles struct {
	mu       sync.Mutex
	profiles map[string]*profile.Profile
}

func newMemProfiles() *memProfiles {
	return &memProfiles{profiles: map[string]*profile.Profile{}}
}

func (m *memProfiles) get(subjectID string) (profile.Profile, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[subjectID]
	if !ok {
		return profile.Profile{}, false
	}
	return *p, true
}

func (m *memProfiles) put(p profile.Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.SubjectID] = &p
}

func (m *memProfiles) find(match func(*profile.Profile) bool) (*profile.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.profiles {
		if match(p) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, profile.ErrNotFound
}

func (m *memProfiles) Create(ctx context.Context, p *profile.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[p.SubjectID]; ok {
		return profile.ErrDuplicate
	}
	for _, other := range m.profiles {
		if other.Username == p.Username {
			return profile.ErrDuplicate
		}
	}
	cp := *p
	m.profiles[p.SubjectID] = &cp
	return nil
}

func (m *memProfiles) FindByUsername(ctx context.Context, username string) (*profile.Profile, error) {
	return m.find(func(p *profile.Profile) bool { return p.Username == username })
}

func (m *memProfiles) FindBySubject(ctx context.Context, subjectID string) (*profile.Profile, error) {
	return m.find(func(p *profile.Profile) bool { return p.SubjectID == subjectID })
}

func (m *memProfiles) FindActiveByUsername(ctx context.Context, username string) (*profile.Profile, error) {
	return m.find(func(p *profile.Profile) bool { return p.Active && p.Username == username })
}

func (m *memProfiles) FindActiveByEmail(ctx context.Context, email string) (*profile.Profile, error) {
	return m.find(func(p *profile.Profile) bool { return p.Active && p.Email == email })
}

func (m *memProfiles) ApplyIdentityChange(ctx context.Context, subjectID string, seq int64, c profile.IdentityChange) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[subjectID]
	if !ok {
		return false, nil
	}

	applied := false
	if c.Username != nil && p.UsernameSeq < seq {
		for _, other := range m.profiles {
			if other != p && other.Username == *c.Username {
				return false, profile.ErrDuplicate
			}
		}
		p.Username, p.UsernameSeq = *c.Username, seq
		applied = true
	}
	if c.Email != nil && p.EmailSeq < seq {
		p.Email, p.EmailSeq = *c.Email, seq
		applied = true
	}
	if c.Active != nil && p.ActiveSeq < seq {
		p.Active, p.ActiveSeq = *c.Active, seq
		applied = true
	}
	if applied {
		p.Sequence = max(p.Sequence, seq)
	}
	return applied, nil
}

func (m *memProfiles) FindActiveByUsernames(ctx context.Context, usernames []string) ([]profile.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := map[string]bool{}
	for _, u := range usernames {
		want[u] = true
	}
	out := []profile.Profile{}
	for _, p := range m.profiles {
		if p.Active && want[p.Username] {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (m *memProfiles) SearchActive(ctx context.Context, term string, limit, offset int) ([]profile.Profile, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []profile.Profile
	for _, p := range m.profiles {
		if p.Active && strings.Contains(strings.ToLower(p.Username), strings.ToLower(term)) {
			all = append(all, *p)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Username < all[j].Username })
	total := int64(len(all))
	if offset >= len(all) {
		return []profile.Profile{}, total, nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], total, nil
}

func (m *memProfiles) UpdateDetails(ctx context.Context, username string, d profile.Details) (*profile.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.profiles {
		if !p.Active || p.Username != username {
			continue
		}
		if d.FirstName != nil {
			p.FirstName = *d.FirstName
		}
		if d.MiddleName != nil {
			p.MiddleName = *d.MiddleName
		}
		if d.LastName != nil {
			p.LastName = *d.LastName
		}
		if d.Phone != nil {
			p.Phone = *d.Phone
		}
		if d.ProfilePicture != nil {
			p.ProfilePicture = *d.ProfilePicture
		}
		if d.Status != nil {
			p.Status = *d.Status
		}
		cp := *p
		return &cp, nil
	}
	return nil, profile.ErrNotFound
}
