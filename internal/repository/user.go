package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/models"
	"gorm.io/gorm"
)

// UserRepository 运维账号仓储接口
type UserRepository interface {
	BaseRepository
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id uint) error
	FindByID(ctx context.Context, id uint) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	GetAll(ctx context.Context, pagination *Pagination) ([]*models.User, error)
	Count(ctx context.Context) (int64, error)
	UpdatePassword(ctx context.Context, userID uint, passwordHash string) error
	UpdateStatus(ctx context.Context, userID uint, status string) error
}

// userRepo 运维账号仓储实现
type userRepo struct {
	*BaseRepo
}

// NewUserRepository 创建运维账号仓储
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepo{
		BaseRepo: &BaseRepo{db: db},
	}
}

// Create 创建账号
func (r *userRepo) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// Update 更新账号
func (r *userRepo) Update(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Save(user).Error
}

// Delete 删除账号（软删除）
func (r *userRepo) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.User{}, id).Error
}

// FindByID 根据ID查找账号
func (r *userRepo) FindByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("账号不存在")
		}
		return nil, err
	}
	return &user, nil
}

// FindByUsername 根据用户名查找
func (r *userRepo) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("账号不存在")
		}
		return nil, err
	}
	return &user, nil
}

// GetAll 获取所有账号（分页）
func (r *userRepo) GetAll(ctx context.Context, pagination *Pagination) ([]*models.User, error) {
	var users []*models.User
	query := r.db.WithContext(ctx).Model(&models.User{})

	var total int64
	query.Count(&total)
	pagination.Total = total

	err := query.
		Scopes(Paginate(pagination)).
		Order("created_at DESC").
		Find(&users).Error

	return users, err
}

// Count 统计账号数量
func (r *userRepo) Count(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.User{}).Count(&total).Error
	return total, err
}

// UpdatePassword 更新密码哈希
func (r *userRepo) UpdatePassword(ctx context.Context, userID uint, passwordHash string) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("password_hash", passwordHash).Error
}

// UpdateStatus 更新账号状态
func (r *userRepo) UpdateStatus(ctx context.Context, userID uint, status string) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("status", status).Error
}

// WithTx 使用事务
func (r *userRepo) WithTx(tx *gorm.DB) BaseRepository {
	return &userRepo{
		BaseRepo: &BaseRepo{db: tx},
	}
}

// UserSessionRepository 运维端会话仓储接口
type UserSessionRepository interface {
	BaseRepository
	Create(ctx context.Context, session *models.UserSession) error
	FindByToken(ctx context.Context, token string) (*models.UserSession, error)
	FindByRefreshToken(ctx context.Context, refreshToken string) (*models.UserSession, error)
	FindByUserID(ctx context.Context, userID uint) ([]*models.UserSession, error)
	UpdateToken(ctx context.Context, sessionID, token string, expireAt time.Time) error
	UpdateLastActive(ctx context.Context, token string) error
	Delete(ctx context.Context, token string) error
	DeleteByUserID(ctx context.Context, userID uint) error
	CleanupExpired(ctx context.Context) error
}

// userSessionRepo 运维端会话仓储实现
type userSessionRepo struct {
	*BaseRepo
}

// NewUserSessionRepository 创建运维端会话仓储
func NewUserSessionRepository(db *gorm.DB) UserSessionRepository {
	return &userSessionRepo{
		BaseRepo: &BaseRepo{db: db},
	}
}

// Create 创建会话
func (r *userSessionRepo) Create(ctx context.Context, session *models.UserSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

// FindByToken 根据令牌查找会话
func (r *userSessionRepo) FindByToken(ctx context.Context, token string) (*models.UserSession, error) {
	var session models.UserSession
	err := r.db.WithContext(ctx).
		Where("token = ? AND expire_at > ?", token, time.Now()).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("会话不存在或已过期")
		}
		return nil, err
	}
	return &session, nil
}

// FindByRefreshToken 根据刷新令牌查找会话
func (r *userSessionRepo) FindByRefreshToken(ctx context.Context, refreshToken string) (*models.UserSession, error) {
	var session models.UserSession
	err := r.db.WithContext(ctx).
		Where("refresh_token = ?", refreshToken).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("会话不存在或已过期")
		}
		return nil, err
	}
	return &session, nil
}

// FindByUserID 查找账号的所有有效会话
func (r *userSessionRepo) FindByUserID(ctx context.Context, userID uint) ([]*models.UserSession, error) {
	var sessions []*models.UserSession
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND expire_at > ?", userID, time.Now()).
		Find(&sessions).Error
	return sessions, err
}

// UpdateToken 刷新后更换访问令牌并顺延有效期
func (r *userSessionRepo) UpdateToken(ctx context.Context, sessionID, token string, expireAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.UserSession{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]interface{}{
			"token":          token,
			"expire_at":      expireAt,
			"last_active_at": time.Now(),
		}).Error
}

// UpdateLastActive 更新最后活动时间
func (r *userSessionRepo) UpdateLastActive(ctx context.Context, token string) error {
	return r.db.WithContext(ctx).
		Model(&models.UserSession{}).
		Where("token = ?", token).
		Update("last_active_at", time.Now()).Error
}

// Delete 删除会话
func (r *userSessionRepo) Delete(ctx context.Context, token string) error {
	return r.db.WithContext(ctx).
		Where("token = ?", token).
		Delete(&models.UserSession{}).Error
}

// DeleteByUserID 删除账号的所有会话
func (r *userSessionRepo) DeleteByUserID(ctx context.Context, userID uint) error {
	return r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&models.UserSession{}).Error
}

// CleanupExpired 清理过期会话
func (r *userSessionRepo) CleanupExpired(ctx context.Context) error {
	return r.db.WithContext(ctx).
		Where("expire_at < ?", time.Now()).
		Delete(&models.UserSession{}).Error
}

// WithTx 使用事务
func (r *userSessionRepo) WithTx(tx *gorm.DB) BaseRepository {
	return &userSessionRepo{
		BaseRepo: &BaseRepo{db: tx},
	}
}
