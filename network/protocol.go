package network

// 入站消息
const (
	MsgTypeHeartbeat     = 1
	MsgTypeAuth          = 2
	MsgTypeCreateGame    = 101
	MsgTypeJoinGame      = 102
	MsgTypeLeaveGame     = 103
	MsgTypeReady         = 104
	MsgTypeAction        = 201
	MsgTypeRequestSync   = 202
	MsgTypeChat          = 203
	MsgTypeSyncCharacter = 204
	MsgTypeGetCharacters = 205
	MsgTypeDMCommand     = 206
)

// 出站消息
const (
	MsgTypeGameCreated     = 301
	MsgTypeLobbyState      = 302
	MsgTypeGameJoined      = 303
	MsgTypePlayerJoined    = 304
	MsgTypePlayerLeft      = 305
	MsgTypeReadyConfirmed  = 306
	MsgTypeActionResult    = 307
	MsgTypeFullState       = 308
	MsgTypeEvents          = 309
	MsgTypeStateDelta      = 310
	MsgTypeTurnChange      = 311
	MsgTypeTurnTimeout     = 312
	MsgTypeGameStarted     = 313
	MsgTypeGamePaused      = 314
	MsgTypeGameResumed     = 315
	MsgTypeGameEnded       = 316
	MsgTypeDMCommandResult = 317
	MsgTypeKicked          = 318
	MsgTypeChatMessage     = 319
	MsgTypeCharacters      = 320
	MsgTypeCharacterSynced = 321
	MsgTypeError           = 399
)
