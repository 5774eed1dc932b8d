package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"catalogpanel/pkg/domain"
)

const migrateLockID int64 = 51120731

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&ProductModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if err := tx.Exec(`
			CREATE INDEX IF NOT EXISTS idx_product_models_created_at_id
			ON product_models (created_at DESC, id ASC)
		`).Error; err != nil {
			return fmt.Errorf("create list index: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

func (s *GormStore) InsertProduct(ctx context.Context, p domain.Product) error {
	model, err := productToModel(p)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (s *GormStore) ListProducts(ctx context.Context) ([]domain.Product, error) {
	var models []ProductModel
	if err := s.db.WithContext(ctx).Order("created_at DESC").Order("id ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	out := make([]domain.Product, 0, len(models))
	for _, m := range models {
		out = append(out, s.product(ctx, m))
	}
	return out, nil
}

func (s *GormStore) GetProduct(ctx context.Context, id string) (domain.Product, bool, error) {
	var model ProductModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Product{}, false, nil
		}
		return domain.Product{}, false, fmt.Errorf("get product: %w", err)
	}
	return s.product(ctx, model), true, nil
}

func (s *GormStore) UpdateProduct(ctx context.Context, id string, patch domain.ProductPatch, updatedAt time.Time) (bool, error) {
	updates, err := patchColumns(patch)
	if err != nil {
		return false, err
	}
	updates["updated_at"] = updatedAt.UTC()
	res := s.db.WithContext(ctx).Model(&ProductModel{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("update product: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) DeleteProduct(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Delete(&ProductModel{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	return nil
}

// patchColumns maps the supplied patch fields to column updates.
func patchColumns(patch domain.ProductPatch) (map[string]any, error) {
	updates := map[string]any{}
	if patch.TitleAr != nil {
		updates["title_ar"] = *patch.TitleAr
	}
	if patch.TitleEn != nil {
		updates["title_en"] = *patch.TitleEn
	}
	if patch.ContentAr != nil {
		updates["content_ar"] = *patch.ContentAr
	}
	if patch.ContentEn != nil {
		updates["content_en"] = *patch.ContentEn
	}
	if patch.Images != nil {
		images, err := encodeImages(*patch.Images)
		if err != nil {
			return nil, err
		}
		updates["images"] = images
	}
	if patch.VideoCode != nil {
		updates["video_code"] = *patch.VideoCode
	}
	return updates, nil
}

func encodeImages(images []string) (datatypes.JSON, error) {
	if images == nil {
		images = []string{}
	}
	raw, err := json.Marshal(images)
	if err != nil {
		return nil, fmt.Errorf("encode images: %w", err)
	}
	return datatypes.JSON(raw), nil
}

func productToModel(p domain.Product) (ProductModel, error) {
	images, err := encodeImages(p.Images)
	if err != nil {
		return ProductModel{}, err
	}
	return ProductModel{
		ID:        p.ID,
		TitleAr:   p.TitleAr,
		TitleEn:   p.TitleEn,
		ContentAr: p.ContentAr,
		ContentEn: p.ContentEn,
		Images:    images,
		VideoCode: p.VideoCode,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}, nil
}

// product converts a row, logging a corrupt images column instead of failing the read.
func (s *GormStore) product(ctx context.Context, m ProductModel) domain.Product {
	p, err := productFromModel(m)
	if err != nil {
		slog.WarnContext(ctx, "product images column unreadable", "product_id", m.ID, "err", err)
	}
	return p
}

// productFromModel maps a row to a product. A corrupt images column yields an
// empty gallery together with the decode error.
func productFromModel(m ProductModel) (domain.Product, error) {
	images := []string{}
	var err error
	if len(m.Images) > 0 {
		if err = json.Unmarshal(m.Images, &images); err != nil {
			images = []string{}
			err = fmt.Errorf("decode images: %w", err)
		}
	}
	if images == nil {
		images = []string{}
	}
	return domain.Product{
		ID:        m.ID,
		TitleAr:   m.TitleAr,
		TitleEn:   m.TitleEn,
		ContentAr: m.ContentAr,
		ContentEn: m.ContentEn,
		Images:    images,
		VideoCode: m.VideoCode,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}, err
}
