package store

import (
	"time"

	"gorm.io/datatypes"
)

// ProductModel is the GORM model behind the product_models table.
type ProductModel struct {
	ID        string         `gorm:"primaryKey"`
	TitleAr   string         `gorm:"not null"`
	TitleEn   string         `gorm:"not null"`
	ContentAr string         `gorm:"type:text"`
	ContentEn string         `gorm:"type:text"`
	Images    datatypes.JSON `gorm:"type:jsonb"`
	VideoCode string
	CreatedAt time.Time `gorm:"not null;index"`
	UpdatedAt time.Time `gorm:"not null"`
}
