package registry

import (
	"strings"
	"testing"
	"time"

	"github.com/wfunc/rpgserver/logger"
	"github.com/wfunc/rpgserver/models"
	"github.com/wfunc/rpgserver/persistence"
)

func init() {
	logger.InitNop()
}

// MockDatabase is an in-memory test double for persistence.Database.
type MockDatabase struct {
	sessions map[string]*models.GameSession
}

func NewMockDatabase() *MockDatabase {
	return &MockDatabase{sessions: make(map[string]*models.GameSession)}
}

func (m *MockDatabase) SaveSession(s *models.GameSession) error {
	m.sessions[s.ID] = s
	return nil
}

func (m *MockDatabase) LoadSession(sessionID string) (*models.GameSession, error) {
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, persistence.ErrRecordNotFound
	}
	return s, nil
}

func (m *MockDatabase) SaveSessionPlayer(p *models.SessionPlayer) error        { return nil }
func (m *MockDatabase) RemoveSessionPlayer(sessionID string, userID int64) error { return nil }
func (m *MockDatabase) LoadSessionPlayers(sessionID string) ([]*models.SessionPlayer, error) {
	return nil, nil
}
func (m *MockDatabase) SaveCharacter(c *models.Character) error { return nil }
func (m *MockDatabase) LoadCharacter(characterID string) (*models.Character, error) {
	return nil, persistence.ErrRecordNotFound
}
func (m *MockDatabase) ListCharacters(userID int64) ([]*models.Character, error) { return nil, nil }
func (m *MockDatabase) AppendEvents(sessionID string, version int64, events []models.GameEvent) error {
	return nil
}
func (m *MockDatabase) Close() error { return nil }

// MockScheduler records scheduled tasks and fires them on demand.
type MockScheduler struct {
	nextID int64
	tasks  map[int64]func()
}

func NewMockScheduler() *MockScheduler {
	return &MockScheduler{nextID: 1, tasks: make(map[int64]func())}
}

func (m *MockScheduler) AddTimer(delay, interval time.Duration, callback func()) int64 {
	id := m.nextID
	m.nextID++
	m.tasks[id] = callback
	return id
}

func (m *MockScheduler) RemoveTimer(timerID int64) {
	delete(m.tasks, timerID)
}

// FireAll runs and clears every pending task.
func (m *MockScheduler) FireAll() {
	for id, task := range m.tasks {
		delete(m.tasks, id)
		task()
	}
}

func testSession(id, code string, dm int64) *models.GameSession {
	return &models.GameSession{
		ID:       id,
		JoinCode: code,
		DMUserID: dm,
		Status:   models.StatusLobby,
		Players:  make(map[int64]*models.SessionPlayer),
	}
}

func newTestRegistry() (*Registry, *MockDatabase, *MockScheduler) {
	db := NewMockDatabase()
	timers := NewMockScheduler()
	return NewRegistry(db, timers, 30*time.Second), db, timers
}

func TestRegistry_AddAndGet(t *testing.T) {
	reg, _, _ := newTestRegistry()
	s := testSession("s1", "ABCDEF", 10)

	reg.Add(s)

	got, exists := reg.Get("s1")
	if !exists || got != s {
		t.Fatal("Get should return the cached session instance")
	}
	byCode, exists := reg.GetByJoinCode("ABCDEF")
	if !exists || byCode != s {
		t.Fatal("GetByJoinCode should resolve the cached session")
	}
	if sessionID, active := reg.ActiveSessionFor(10); !active || sessionID != "s1" {
		t.Error("The DM should be bound to the session on Add")
	}
}

func TestRegistry_GetHydratesFromStore(t *testing.T) {
	reg, db, _ := newTestRegistry()
	stored := testSession("s2", "CODEAA", 11)
	stored.Players[20] = &models.SessionPlayer{SessionID: "s2", UserID: 20}
	db.sessions["s2"] = stored

	got, exists := reg.Get("s2")
	if !exists {
		t.Fatal("Get should hydrate a session from the store")
	}
	if got.ID != "s2" {
		t.Errorf("Hydrated wrong session: %s", got.ID)
	}
	if sessionID, active := reg.ActiveSessionFor(20); !active || sessionID != "s2" {
		t.Error("Hydration should rebuild the user index")
	}
	if _, exists := reg.GetByJoinCode("CODEAA"); !exists {
		t.Error("Hydration should rebuild the join code index")
	}
}

func TestRegistry_GetSkipsEndedSessions(t *testing.T) {
	reg, db, _ := newTestRegistry()
	ended := testSession("s3", "CODEBB", 12)
	ended.Status = models.StatusEnded
	db.sessions["s3"] = ended

	if _, exists := reg.Get("s3"); exists {
		t.Error("Ended sessions must not be re-cached")
	}
}

func TestRegistry_Evict(t *testing.T) {
	reg, _, _ := newTestRegistry()
	s := testSession("s4", "CODECC", 13)
	s.Players[21] = &models.SessionPlayer{SessionID: "s4", UserID: 21}
	reg.Add(s)
	reg.BindUser(21, "s4")

	reg.Evict("s4")

	if reg.Count() != 0 {
		t.Error("Evict should drop the session from the cache")
	}
	if _, exists := reg.GetByJoinCode("CODECC"); exists {
		t.Error("Evict should clear the join code index")
	}
	if _, active := reg.ActiveSessionFor(13); active {
		t.Error("Evict should release the DM binding")
	}
	if _, active := reg.ActiveSessionFor(21); active {
		t.Error("Evict should release player bindings")
	}
}

func TestRegistry_ScheduleEviction(t *testing.T) {
	reg, _, timers := newTestRegistry()
	s := testSession("s5", "CODEDD", 14)
	reg.Add(s)

	reg.ScheduleEviction(s)
	if s.EvictTimerID == 0 {
		t.Fatal("ScheduleEviction should record the timer handle")
	}
	if reg.Count() != 1 {
		t.Fatal("Session should remain cached until the timer fires")
	}

	timers.FireAll()
	if reg.Count() != 0 {
		t.Error("Firing the eviction timer should evict the session")
	}
}

func TestRegistry_GenerateJoinCode(t *testing.T) {
	reg, _, _ := newTestRegistry()

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code := reg.GenerateJoinCode()
		if len(code) != 6 {
			t.Fatalf("Join code should be 6 characters, got %q", code)
		}
		for _, c := range code {
			if !strings.ContainsRune(joinCodeAlphabet, c) {
				t.Fatalf("Join code %q contains %q outside the alphabet", code, c)
			}
		}
		seen[code] = true
		// claim the code so uniqueness is enforced against it
		reg.Add(testSession("gen-"+code, code, int64(100+i)))
	}
	if len(seen) != 50 {
		t.Errorf("Expected 50 distinct join codes, got %d", len(seen))
	}
}

func TestRegistry_ReleaseUserGuardsNewerBinding(t *testing.T) {
	reg, _, _ := newTestRegistry()
	reg.BindUser(30, "old")
	reg.BindUser(30, "new")

	reg.ReleaseUser(30, "old")

	if sessionID, active := reg.ActiveSessionFor(30); !active || sessionID != "new" {
		t.Error("Releasing a stale binding must not drop the current one")
	}
}
