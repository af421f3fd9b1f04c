package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User 统一身份：带坐标，技能集非空时具备帮助者资格，
// 被案件引用为 caller 时即是求助者。两种身份互不排斥。
type User struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	ExternalID     string    `json:"externalId" gorm:"size:64;uniqueIndex"` // 客户端持有的匿名标识
	Name           string    `json:"name" gorm:"size:255"`
	ContactInfo    string    `json:"contactInfo" gorm:"size:255"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	Skills         StringSet `json:"skills" gorm:"type:text"` // 非空 ⇒ 可被指派
	MaxRangeMeters *float64  `json:"maxRangeMeters"`          // 最大活动半径，可空
	CreatedAt      time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt      time.Time `json:"updatedAt" gorm:"autoUpdateTime"`
}

// IsHelper 技能集非空即具备帮助者资格
func (u *User) IsHelper() bool { return len(u.Skills) > 0 }

// LocationPing 位置上报历史，匹配只读最新的 User 坐标
type LocationPing struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UserID    uint      `json:"userId" gorm:"index"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
}

// CreateUser 创建用户，未提供外部标识时生成 UUID
func CreateUser(db *gorm.DB, user *User) (*User, error) {
	if user.ExternalID == "" {
		user.ExternalID = uuid.NewString()
	}
	if user.Name == "" {
		user.Name = "Anonymous User " + user.ExternalID[:8]
	}
	if err := db.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser 按 ID 获取用户
func GetUser(db *gorm.DB, id uint) (*User, error) {
	var user User
	if err := db.First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByExternalID 按外部标识获取用户
func GetUserByExternalID(db *gorm.DB, externalID string) (*User, error) {
	var user User
	if err := db.Where("external_id = ?", externalID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateUserLocation 更新坐标并追加一条位置历史
func UpdateUserLocation(db *gorm.DB, id uint, lat, lon float64) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&User{}).Where("id = ?", id).
			Updates(map[string]any{"latitude": lat, "longitude": lon}).Error; err != nil {
			return err
		}
		return tx.Create(&LocationPing{UserID: id, Latitude: lat, Longitude: lon}).Error
	})
}

// UpdateUserProfile 更新姓名、联系方式、技能与活动范围
func UpdateUserProfile(db *gorm.DB, user *User) error {
	return db.Model(&User{}).Where("id = ?", user.ID).Updates(map[string]any{
		"name":             user.Name,
		"contact_info":     user.ContactInfo,
		"skills":           user.Skills,
		"max_range_meters": user.MaxRangeMeters,
	}).Error
}

// ListHelpers 返回所有技能集非空的用户。无锁快照读：
// 位置可能略有滞后，由匹配契约接受。
func ListHelpers(db *gorm.DB) ([]User, error) {
	var users []User
	if err := db.Where("skills IS NOT NULL AND skills != '' AND skills != '[]'").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// GetLocationHistory 获取用户位置历史，按时间倒序
func GetLocationHistory(db *gorm.DB, userID uint, limit int) ([]LocationPing, error) {
	var pings []LocationPing
	if err := db.Where("user_id = ?", userID).
		Order("created_at DESC").Limit(limit).Find(&pings).Error; err != nil {
		return nil, err
	}
	return pings, nil
}
