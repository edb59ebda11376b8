package devicetokens

import "time"

// Platform hints which push surface registered the token.
type Platform string

const (
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
	PlatformWeb     Platform = "web"
)

// DeviceToken records one installed-app instance capable of receiving push
// delivery. Uniqueness is on the token alone: re-registering an existing token
// under a different account reassigns ownership.
type DeviceToken struct {
	Token     string    `gorm:"column:token;primaryKey;size:512;not null"`
	UserID    string    `gorm:"column:user_id;size:190;not null;index:idx_device_tokens_user"`
	Platform  Platform  `gorm:"column:platform;size:16"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (DeviceToken) TableName() string {
	return "device_tokens"
}

// ParsePlatform normalizes a raw platform string; unknown values map to empty.
func ParsePlatform(value string) Platform {
	switch Platform(value) {
	case PlatformAndroid, PlatformIOS, PlatformWeb:
		return Platform(value)
	default:
		return ""
	}
}
