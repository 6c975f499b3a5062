// network/messages.go
package network

import (
	"github.com/wfunc/rpgserver/models"
)

// 每个入站请求带一个不透明的 seq，对应的响应原样回显。
// 广播消息不属于任何请求，不带 seq。

type AuthRequest struct {
	Seq   uint64 `json:"seq"`
	Token string `json:"token"`
}

type AuthResponse struct {
	Seq    uint64 `json:"seq"`
	UserID int64  `json:"userId"`
}

type CreateGameRequest struct {
	Seq    uint64               `json:"seq"`
	Config models.SessionConfig `json:"config"`
}

type GameCreatedResponse struct {
	Seq       uint64 `json:"seq"`
	SessionID string `json:"sessionId"`
	JoinCode  string `json:"joinCode"`
}

type JoinGameRequest struct {
	Seq         uint64 `json:"seq"`
	SessionID   string `json:"sessionId,omitempty"`
	JoinCode    string `json:"joinCode,omitempty"`
	CharacterID string `json:"characterId"`
}

type GameJoinedResponse struct {
	Seq       uint64                `json:"seq"`
	SessionID string                `json:"sessionId"`
	Player    *models.SessionPlayer `json:"player"`
}

type LeaveGameRequest struct {
	Seq uint64 `json:"seq"`
}

type ReadyRequest struct {
	Seq   uint64 `json:"seq"`
	Ready bool   `json:"ready"`
}

type ReadyConfirmedResponse struct {
	Seq   uint64 `json:"seq"`
	Ready bool   `json:"ready"`
}

type ActionRequest struct {
	Seq    uint64            `json:"seq"`
	Action models.GameAction `json:"action"`
}

// ActionResult reports validation outcome. Reason carries the error code
// verbatim when Valid is false.
type ActionResult struct {
	Seq    uint64             `json:"seq,omitempty"`
	Valid  bool               `json:"valid"`
	Events []models.GameEvent `json:"events,omitempty"`
	Reason models.Code        `json:"reason,omitempty"`
}

type RequestSyncRequest struct {
	Seq uint64 `json:"seq"`
}

// FullState is the self-sufficient snapshot sent on join, reconnect, or
// explicit request_sync. It requires no prior history to apply.
type FullState struct {
	Seq        uint64            `json:"seq,omitempty"`
	Version    int64             `json:"version"`
	GameState  *models.GameState `json:"gameState"`
	YourUnitID string            `json:"yourUnitId,omitempty"`
}

type EventsMessage struct {
	Version int64              `json:"version"`
	Events  []models.GameEvent `json:"events"`
}

type ChatRequest struct {
	Seq  uint64 `json:"seq"`
	Text string `json:"text"`
}

type ChatMessage struct {
	UserID int64  `json:"userId"`
	Text   string `json:"text"`
}

type SyncCharacterRequest struct {
	Seq       uint64           `json:"seq"`
	Character models.Character `json:"character"`
}

type CharacterSyncedResponse struct {
	Seq         uint64 `json:"seq"`
	CharacterID string `json:"characterId"`
}

type GetCharactersRequest struct {
	Seq uint64 `json:"seq"`
}

type CharactersResponse struct {
	Seq        uint64              `json:"seq"`
	Characters []*models.Character `json:"characters"`
}

type DMCommandRequest struct {
	Seq     uint64           `json:"seq"`
	Command models.DMCommand `json:"command"`
}

type DMCommandResult struct {
	Seq     uint64               `json:"seq"`
	Command models.DMCommandKind `json:"command"`
	Valid   bool                 `json:"valid"`
	Reason  models.Code          `json:"reason,omitempty"`
}

type LobbyState struct {
	SessionID string                  `json:"sessionId"`
	JoinCode  string                  `json:"joinCode"`
	Status    models.SessionStatus    `json:"status"`
	DMUserID  int64                   `json:"dmUserId"`
	Players   []*models.SessionPlayer `json:"players"`
}

type PlayerJoinedMessage struct {
	Player *models.SessionPlayer `json:"player"`
}

type PlayerLeftMessage struct {
	UserID int64  `json:"userId"`
	Reason string `json:"reason,omitempty"` // left/kicked/disconnected
}

type TurnChangeMessage struct {
	CurrentUnitID string `json:"currentUnitId"`
	CurrentUserID int64  `json:"currentUserId,omitempty"`
	TurnNumber    int    `json:"turnNumber"`
	IsPlayerTurn  bool   `json:"isPlayerTurn"`
}

type TurnTimeoutMessage struct {
	UnitID string `json:"unitId"`
}

type GameEndedMessage struct {
	SessionID string           `json:"sessionId"`
	Reason    models.EndReason `json:"reason"`
}

type KickedMessage struct {
	SessionID string `json:"sessionId"`
}

type ErrorResponse struct {
	Seq  uint64      `json:"seq,omitempty"`
	Code models.Code `json:"code"`
}
