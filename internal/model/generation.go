package model

import "time"

// Generation 对应 text_generations 表，每次成功完成的生成写入一行，之后不再修改。
type Generation struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         uint      `gorm:"index;not null" json:"user_id"`
	Prompt         string    `gorm:"type:text;not null" json:"prompt"`
	GeneratedText  string    `gorm:"type:text;not null" json:"generated_text"`
	ModelName      string    `gorm:"type:varchar(100);not null" json:"model_name"`
	TokensUsed     int       `gorm:"not null;default:0" json:"tokens_used"`
	ProcessingTime float64   `gorm:"not null;default:0" json:"processing_time"`
	TemplateUsed   *string   `gorm:"type:varchar(64)" json:"template_used"`
	Context        *string   `gorm:"type:text" json:"context"`
	CreatedAt      time.Time `gorm:"index" json:"created_at"`
}

func (Generation) TableName() string {
	return "text_generations"
}
