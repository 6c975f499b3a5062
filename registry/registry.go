// registry/registry.go
package registry

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/wfunc/rpgserver/logger"
	"github.com/wfunc/rpgserver/models"
	"github.com/wfunc/rpgserver/persistence"
	"github.com/wfunc/rpgserver/timer"
)

// joinCode 字符集去掉了易混淆的 I/L/O/0/1
const joinCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
const joinCodeLength = 6

// Registry 是活跃会话的内存缓存，按 id 索引，从持久层惰性加载。
// 它同时维护两个辅助索引：joinCode（仅非 ended 会话）和用户到会话
// 的归属（一个用户同时最多属于一个非 ended 会话）。
type Registry struct {
	sessions   map[string]*models.GameSession
	byJoinCode map[string]string // joinCode -> sessionID
	byUser     map[int64]string  // userID -> sessionID
	mutex      sync.RWMutex

	db     persistence.Database
	timers timer.Scheduler
	grace  time.Duration
	rng    *rand.Rand
}

func NewRegistry(db persistence.Database, timers timer.Scheduler, grace time.Duration) *Registry {
	return &Registry{
		sessions:   make(map[string]*models.GameSession),
		byJoinCode: make(map[string]string),
		byUser:     make(map[int64]string),
		db:         db,
		timers:     timers,
		grace:      grace,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Add caches a new session and indexes its join code and DM.
func (r *Registry) Add(s *models.GameSession) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.sessions[s.ID] = s
	r.byJoinCode[s.JoinCode] = s.ID
	r.byUser[s.DMUserID] = s.ID
}

// Get returns the cached session, hydrating it from the store on a miss.
// Ended sessions are durable but are not re-cached.
func (r *Registry) Get(sessionID string) (*models.GameSession, bool) {
	r.mutex.RLock()
	s, exists := r.sessions[sessionID]
	r.mutex.RUnlock()
	if exists {
		return s, true
	}

	loaded, err := r.db.LoadSession(sessionID)
	if err != nil {
		if err != persistence.ErrRecordNotFound {
			logger.Log.Errorf("Failed to hydrate session %s: %v", sessionID, err)
		}
		return nil, false
	}
	if loaded.Status == models.StatusEnded {
		return nil, false
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	if cached, ok := r.sessions[sessionID]; ok {
		return cached, true
	}
	r.sessions[sessionID] = loaded
	r.byJoinCode[loaded.JoinCode] = loaded.ID
	r.byUser[loaded.DMUserID] = loaded.ID
	for userID := range loaded.Players {
		r.byUser[userID] = loaded.ID
	}
	logger.Log.Infof("Hydrated session %s from store", sessionID)
	return loaded, true
}

// GetByJoinCode resolves a join code to a cached session.
func (r *Registry) GetByJoinCode(joinCode string) (*models.GameSession, bool) {
	r.mutex.RLock()
	sessionID, ok := r.byJoinCode[joinCode]
	r.mutex.RUnlock()
	if !ok {
		return nil, false
	}
	return r.Get(sessionID)
}

// ActiveSessionFor returns the id of the non-ended session the user
// belongs to, if any.
func (r *Registry) ActiveSessionFor(userID int64) (string, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	sessionID, ok := r.byUser[userID]
	return sessionID, ok
}

// BindUser records the user's membership for the one-session invariant.
func (r *Registry) BindUser(userID int64, sessionID string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.byUser[userID] = sessionID
}

// ReleaseUser drops the membership binding, but only if it still points
// at the given session.
func (r *Registry) ReleaseUser(userID int64, sessionID string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.byUser[userID] == sessionID {
		delete(r.byUser, userID)
	}
}

// Evict removes a session from the cache and all indexes. The durable
// record is untouched.
func (r *Registry) Evict(sessionID string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	s, exists := r.sessions[sessionID]
	if !exists {
		return
	}
	delete(r.sessions, sessionID)
	delete(r.byJoinCode, s.JoinCode)
	if r.byUser[s.DMUserID] == sessionID {
		delete(r.byUser, s.DMUserID)
	}
	for userID := range s.Players {
		if r.byUser[userID] == sessionID {
			delete(r.byUser, userID)
		}
	}
	logger.Log.Infof("Evicted session %s", sessionID)
}

// ScheduleEviction arranges eviction after the grace period, leaving
// time for late clients to observe the final broadcast.
func (r *Registry) ScheduleEviction(s *models.GameSession) {
	s.EvictTimerID = r.timers.AddTimer(r.grace, 0, func() {
		r.Evict(s.ID)
	})
}

// GenerateJoinCode returns a code unique among non-ended sessions.
func (r *Registry) GenerateJoinCode() string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	for {
		code := make([]byte, joinCodeLength)
		for i := range code {
			code[i] = joinCodeAlphabet[r.rng.Intn(len(joinCodeAlphabet))]
		}
		if _, taken := r.byJoinCode[string(code)]; !taken {
			return string(code)
		}
	}
}

// ActiveSessionIDs lists the ids of all cached sessions, sorted.
func (r *Registry) ActiveSessionIDs() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of cached sessions.
func (r *Registry) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.sessions)
}

// ActiveCount returns the number of cached sessions that have not
// ended. Ended sessions awaiting eviction don't count against capacity.
func (r *Registry) ActiveCount() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	count := 0
	for _, s := range r.sessions {
		if s.Status != models.StatusEnded {
			count++
		}
	}
	return count
}
