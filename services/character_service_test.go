package services

import (
	"testing"

	"github.com/wfunc/rpgserver/logger"
	"github.com/wfunc/rpgserver/models"
	"github.com/wfunc/rpgserver/persistence"
)

func init() {
	logger.InitNop()
}

type MockDatabase struct {
	characters map[string]*models.Character
}

func NewMockDatabase() *MockDatabase {
	return &MockDatabase{characters: make(map[string]*models.Character)}
}

func (m *MockDatabase) SaveSession(s *models.GameSession) error { return nil }
func (m *MockDatabase) LoadSession(sessionID string) (*models.GameSession, error) {
	return nil, persistence.ErrRecordNotFound
}
func (m *MockDatabase) SaveSessionPlayer(p *models.SessionPlayer) error          { return nil }
func (m *MockDatabase) RemoveSessionPlayer(sessionID string, userID int64) error { return nil }
func (m *MockDatabase) LoadSessionPlayers(sessionID string) ([]*models.SessionPlayer, error) {
	return nil, nil
}

func (m *MockDatabase) SaveCharacter(c *models.Character) error {
	copied := *c
	m.characters[c.ID] = &copied
	return nil
}

func (m *MockDatabase) LoadCharacter(characterID string) (*models.Character, error) {
	c, ok := m.characters[characterID]
	if !ok {
		return nil, persistence.ErrRecordNotFound
	}
	copied := *c
	return &copied, nil
}

func (m *MockDatabase) ListCharacters(userID int64) ([]*models.Character, error) {
	var result []*models.Character
	for _, c := range m.characters {
		if c.UserID == userID {
			result = append(result, c)
		}
	}
	return result, nil
}

func (m *MockDatabase) AppendEvents(sessionID string, version int64, events []models.GameEvent) error {
	return nil
}
func (m *MockDatabase) Close() error { return nil }

func TestSyncCharacter_AssignsID(t *testing.T) {
	svc := NewCharacterService(NewMockDatabase())

	c, err := svc.SyncCharacter(7, models.Character{Name: "Borin", Class: "warrior"})
	if err != nil {
		t.Fatalf("SyncCharacter failed: %v", err)
	}
	if c.ID == "" {
		t.Error("First sync should assign an id")
	}
	if c.UserID != 7 {
		t.Errorf("Owner should be stamped, got %d", c.UserID)
	}
	if c.Level != 1 {
		t.Errorf("Level should default to 1, got %d", c.Level)
	}
}

func TestSyncCharacter_RejectsForeignID(t *testing.T) {
	db := NewMockDatabase()
	db.SaveCharacter(&models.Character{ID: "char-x", UserID: 1, Name: "Mira", Class: "ranger", Level: 3})
	svc := NewCharacterService(db)

	_, err := svc.SyncCharacter(2, models.Character{ID: "char-x", Name: "Mira", Class: "ranger"})
	if models.CodeOf(err) != models.CodeCharacterNotFound {
		t.Errorf("Syncing another user's character should fail, got %v", err)
	}

	// the rightful owner may update
	c, err := svc.SyncCharacter(1, models.Character{ID: "char-x", Name: "Mira", Class: "ranger", Level: 4})
	if err != nil {
		t.Fatalf("Owner sync failed: %v", err)
	}
	if c.Level != 4 {
		t.Errorf("Owner update should stick, got level %d", c.Level)
	}
}

func TestLoadOwned(t *testing.T) {
	db := NewMockDatabase()
	db.SaveCharacter(&models.Character{ID: "char-x", UserID: 1, Name: "Mira", Class: "ranger", Level: 3})
	svc := NewCharacterService(db)

	if _, err := svc.LoadOwned(1, "char-x"); err != nil {
		t.Errorf("Owner load failed: %v", err)
	}
	if _, err := svc.LoadOwned(2, "char-x"); models.CodeOf(err) != models.CodeCharacterNotFound {
		t.Errorf("Foreign load should fail CHARACTER_NOT_FOUND, got %v", err)
	}
	if _, err := svc.LoadOwned(1, "missing"); models.CodeOf(err) != models.CodeCharacterNotFound {
		t.Errorf("Missing load should fail CHARACTER_NOT_FOUND, got %v", err)
	}
}

func TestGrantXP_Levels(t *testing.T) {
	db := NewMockDatabase()
	db.SaveCharacter(&models.Character{ID: "char-x", UserID: 1, Name: "Mira", Class: "ranger", Level: 1})
	svc := NewCharacterService(db)

	c, err := svc.GrantXP("char-x", 500)
	if err != nil {
		t.Fatalf("GrantXP failed: %v", err)
	}
	if c.XP != 500 || c.Level != 1 {
		t.Errorf("500 xp should not level, got level %d xp %d", c.Level, c.XP)
	}

	// 2500 total crosses the 1000 and 2000 thresholds
	c, err = svc.GrantXP("char-x", 2000)
	if err != nil {
		t.Fatalf("GrantXP failed: %v", err)
	}
	if c.XP != 2500 || c.Level != 3 {
		t.Errorf("2500 xp should reach level 3, got level %d xp %d", c.Level, c.XP)
	}

	stored, _ := db.LoadCharacter("char-x")
	if stored.Level != 3 {
		t.Errorf("Level-up should persist, stored level %d", stored.Level)
	}
}

func TestGrantXP_Guards(t *testing.T) {
	svc := NewCharacterService(NewMockDatabase())

	if _, err := svc.GrantXP("missing", 100); models.CodeOf(err) != models.CodeCharacterNotFound {
		t.Errorf("Missing character should fail, got %v", err)
	}
	if _, err := svc.GrantXP("char-x", 0); models.CodeOf(err) != models.CodeExecutionError {
		t.Errorf("Zero xp should be rejected, got %v", err)
	}
	if _, err := svc.GrantXP("char-x", -5); models.CodeOf(err) != models.CodeExecutionError {
		t.Errorf("Negative xp should be rejected, got %v", err)
	}
}
