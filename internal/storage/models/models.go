package models

import (
	"time"
)

// 注意：
// - 与 storage/migrations 下的 SQL 保持对齐
// - 不使用 gorm.Model，显式声明每个字段，避免隐式 DeletedAt

// Contact 映射 contacts 表，以公钥为主键
type Contact struct {
	PublicKey  string `gorm:"column:public_key;type:text;primaryKey"`
	Type       int16  `gorm:"column:type;not null;default:0"`
	Flags      int16  `gorm:"column:flags;not null;default:0"`
	OutPathLen int16  `gorm:"column:out_path_len;not null;default:-1"`
	// 出站路径（hex），未知路径时为空
	OutPath    *string `gorm:"column:out_path;type:text"`
	AdvName    string  `gorm:"column:adv_name;type:text;not null;default:''"`
	LastAdvert int64   `gorm:"column:last_advert;not null;default:0"`
	// 坐标为度 × 1e6
	AdvLat  int32 `gorm:"column:adv_lat;not null;default:0"`
	AdvLon  int32 `gorm:"column:adv_lon;not null;default:0"`
	LastMod int64 `gorm:"column:last_mod;not null;default:0"`
	// 审计字段
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Contact) TableName() string { return "contacts" }

// Message 映射 messages 表（私聊与频道消息）
type Message struct {
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// 事件信封 ID，保证重复投递幂等
	EventID string `gorm:"column:event_id;type:text;not null;uniqueIndex"`
	ConnID  string `gorm:"column:conn_id;type:text;not null"`
	// contact_msg_recv | channel_msg_recv
	Kind            string    `gorm:"column:kind;type:text;not null"`
	PubKeyPrefix    *string   `gorm:"column:pub_key_prefix;type:text"`
	ChannelIdx      *int16    `gorm:"column:channel_idx"`
	PathLen         int16     `gorm:"column:path_len;not null;default:0"`
	TxtType         int16     `gorm:"column:txt_type;not null;default:0"`
	SenderTimestamp int64     `gorm:"column:sender_timestamp;not null;default:0"`
	Text            string    `gorm:"column:text;type:text;not null"`
	ReceivedAt      time.Time `gorm:"column:received_at;not null"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Message) TableName() string { return "messages" }

// Telemetry 映射 telemetry 表，一条 CayenneLPP 记录一行
type Telemetry struct {
	ID           int64    `gorm:"column:id;primaryKey;autoIncrement"`
	EventID      string   `gorm:"column:event_id;type:text;not null"`
	PubKeyPrefix string   `gorm:"column:pub_key_prefix;type:text;not null"`
	Channel      int16    `gorm:"column:channel;not null"`
	SensorType   string   `gorm:"column:sensor_type;type:text;not null"`
	Value        *float64 `gorm:"column:value"`
	// GPS 记录的坐标
	Latitude   *float64  `gorm:"column:latitude"`
	Longitude  *float64  `gorm:"column:longitude"`
	Altitude   *float64  `gorm:"column:altitude"`
	ReceivedAt time.Time `gorm:"column:received_at;not null"`
}

func (Telemetry) TableName() string { return "telemetry" }
