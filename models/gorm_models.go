// models/gorm_models.go
package models

import (
	"gorm.io/gorm"
)

// GormSession 会话持久化模型。Ended 的会话从内存缓存淘汰后仍保留于此。
type GormSession struct {
	gorm.Model
	SessionID    string                 `gorm:"uniqueIndex;not null"`
	JoinCode     string                 `gorm:"index;not null"`
	DMUserID     int64                  `gorm:"index;not null"`
	Status       string                 `gorm:"not null"`
	Config       map[string]interface{} `gorm:"type:jsonb"`
	State        map[string]interface{} `gorm:"type:jsonb"` // full GameState snapshot
	StateVersion int64                  `gorm:"default:0"`
	EndReason    string
}

// GormSessionPlayer 会话玩家关联
type GormSessionPlayer struct {
	gorm.Model
	SessionID   string `gorm:"index:idx_session_user,unique;not null"`
	UserID      int64  `gorm:"index:idx_session_user,unique;not null"`
	CharacterID string `gorm:"not null"`
	UnitID      string
	IsReady     bool   `gorm:"default:false"`
	Connection  string `gorm:"default:'connected'"`
}

// GormCharacter 角色模型（进度系统是外部协作方，这里只保存授予结果）
type GormCharacter struct {
	gorm.Model
	CharacterID string                 `gorm:"uniqueIndex;not null"`
	UserID      int64                  `gorm:"index;not null"`
	Name        string                 `gorm:"not null"`
	Class       string                 `gorm:"not null"`
	Level       int                    `gorm:"default:1"`
	XP          int64                  `gorm:"default:0"`
	Gold        int64                  `gorm:"default:0"`
	Weapons     map[string]interface{} `gorm:"type:jsonb"`
}

// GormGameEvent 追加式事件日志
type GormGameEvent struct {
	gorm.Model
	SessionID string                 `gorm:"index;not null"`
	Version   int64                  `gorm:"index;not null"`
	Type      string                 `gorm:"not null"`
	Payload   map[string]interface{} `gorm:"type:jsonb"`
}
