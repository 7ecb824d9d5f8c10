package models

import (
	"time"

	"gorm.io/gorm"
)

// User 运维账号表
// 售货机的管理后台账号（门店管理员、维护人员），不是消费者
type User struct {
	BaseModel
	Username     string     `gorm:"uniqueIndex;size:50;not null" json:"username"`
	Nickname     string     `gorm:"size:100" json:"nickname"`
	PasswordHash string     `gorm:"size:255;not null" json:"-"`
	Role         string     `gorm:"size:20;default:'operator'" json:"role"` // admin, operator
	Status       string     `gorm:"size:20;default:'active'" json:"status"` // active, disabled
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	LastLoginIP  string     `gorm:"size:50" json:"last_login_ip"`
}

// TableName 指定User表名
func (User) TableName() string {
	return "users"
}

// BeforeCreate 创建前的钩子
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.Nickname == "" {
		u.Nickname = u.Username
	}
	if u.Status == "" {
		u.Status = "active"
	}
	if u.Role == "" {
		u.Role = "operator"
	}
	return nil
}

// IsActive 检查账号是否可用
func (u *User) IsActive() bool {
	return u.Status == "active"
}

// IsAdmin 检查是否管理员
func (u *User) IsAdmin() bool {
	return u.Role == "admin"
}

// UpdateLoginInfo 更新登录信息
func (u *User) UpdateLoginInfo(ip string) {
	now := time.Now()
	u.LastLoginAt = &now
	u.LastLoginIP = ip
}

// UserSession 运维端会话表
type UserSession struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"index;not null" json:"user_id"`
	SessionID    string    `gorm:"uniqueIndex;size:64;not null" json:"session_id"`
	Token        string    `gorm:"uniqueIndex;size:255;not null" json:"token"`
	RefreshToken string    `gorm:"size:255" json:"refresh_token"`
	IP           string    `gorm:"size:50" json:"ip"`
	UserAgent    string    `gorm:"size:255" json:"user_agent"`
	LastActiveAt time.Time `json:"last_active_at"`
	ExpireAt     time.Time `json:"expire_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName 指定表名
func (UserSession) TableName() string {
	return "user_sessions"
}

// IsExpired 检查会话是否过期
func (s *UserSession) IsExpired() bool {
	return s.ExpireAt.Before(time.Now())
}
