package mysql

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/xiebiao/freshmart/internal/domain/inventory"
	"github.com/xiebiao/freshmart/internal/infrastructure/config"
	"github.com/xiebiao/freshmart/pkg/clock"
)

// NewDB opens the MySQL connection
//
// Design notes:
//  1. GORM v2 over go-sql-driver/mysql
//  2. pool sizes from config (MaxOpenConns, MaxIdleConns, ConnMaxLifetime)
//  3. SQL logging in debug mode only
//  4. NowFunc comes from the injected clock, so created_at/updated_at and the
//     expiry comparisons in SQL share one time source (UTC, second precision)
func NewDB(cfg *config.Config, clk clock.Clock, log *zap.Logger) (*gorm.DB, error) {
	// 1. DSN
	dsn := cfg.Database.DSN()

	// 2. GORM logger
	logLevel := logger.Silent
	if cfg.Server.Mode == "debug" {
		logLevel = logger.Info
	}

	// 3. connect
	db, err := gorm.Open(mysql.Open(dsn), GormConfig(clk, logger.Default.LogMode(logLevel)))
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	// 4. pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	// 5. ping
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	log.Info("database connected", zap.String("host", cfg.Database.Host), zap.String("db", cfg.Database.DBName))

	// 6. schema (development); production uses versioned migrations
	if cfg.Database.AutoMigrate {
		if err := AutoMigrate(db); err != nil {
			return nil, fmt.Errorf("database migration failed: %w", err)
		}
	}

	return db, nil
}

// GormConfig shared by the MySQL store and the SQLite test store
func GormConfig(clk clock.Clock, l logger.Interface) *gorm.Config {
	return &gorm.Config{
		Logger:         l,
		NowFunc:        clk.Now,
		TranslateError: true, // unique violations surface as gorm.ErrDuplicatedKey
	}
}

// AutoMigrate creates or extends the tables. It never drops columns.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&BatchModel{},
		&ProductGuardModel{},
		&MovementModel{},
		&DeductionRequestModel{},
		&OrderModel{},
		&OrderItemModel{},
	)
}

// BatchModel GORM batch model
//
// Design notes:
//  1. variant_sku is "" (never NULL) for shared batches so the batch-number
//     unique index also covers them; batch_number is NULL when absent, and
//     NULLs never collide
//  2. (store_id, product_id, variant_sku) index serves the eligibility query
//  3. (status, expiry_date) index serves the expiry sweep
//  4. created_at, id is the FIFO order
type BatchModel struct {
	ID                uint       `gorm:"primaryKey"`
	BatchID           string     `gorm:"column:batch_id;uniqueIndex:uk_batches_batch_id;size:36;not null"`
	StoreID           string     `gorm:"column:store_id;size:64;not null;index:idx_batches_lookup,priority:1;uniqueIndex:uk_batches_number,priority:1"`
	ProductID         string     `gorm:"column:product_id;size:64;not null;index:idx_batches_lookup,priority:2;uniqueIndex:uk_batches_number,priority:2"`
	VariantSKU        string     `gorm:"column:variant_sku;size:64;not null;default:'';index:idx_batches_lookup,priority:3;uniqueIndex:uk_batches_number,priority:3"`
	BatchNumber       *string    `gorm:"column:batch_number;size:64;uniqueIndex:uk_batches_number,priority:4"`
	InitialQuantity   int64      `gorm:"not null"`
	AvailableQuantity int64      `gorm:"not null"`
	SoldQuantity      int64      `gorm:"not null;default:0"`
	CostPrice         int64      `gorm:"not null;default:0"` // cents
	UsesSharedStock   bool       `gorm:"not null;default:false"`
	BaseUnit          string     `gorm:"size:16"`
	ExpiryDate        *time.Time `gorm:"index:idx_batches_sweep,priority:2"`
	Status            string     `gorm:"size:16;not null;index:idx_batches_sweep,priority:1"`
	CreatedAt         time.Time  `gorm:"index:idx_batches_fifo"`
	UpdatedAt         time.Time
}

// TableName table name
func (BatchModel) TableName() string {
	return "inventory_batches"
}

// BeforeSave keeps the stored status consistent with quantity and expiry
// whenever a batch goes through the normal save path.
func (m *BatchModel) BeforeSave(tx *gorm.DB) error {
	m.Status = string(toBatchEntity(m).DeriveStatus(tx.NowFunc()))
	return nil
}

// MovementModel GORM stock movement model (append-only)
type MovementModel struct {
	ID              uint      `gorm:"primaryKey"`
	BatchID         string    `gorm:"column:batch_id;size:36;not null;index:idx_movements_batch"`
	StoreID         string    `gorm:"column:store_id;size:64;not null"`
	ProductID       string    `gorm:"column:product_id;size:64;not null"`
	VariantSKU      string    `gorm:"column:variant_sku;size:64;not null;default:''"`
	ChangeType      string    `gorm:"size:16;not null"`
	Quantity        int64     `gorm:"not null"` // signed
	BeforeAvailable int64     `gorm:"not null"`
	AfterAvailable  int64     `gorm:"not null"`
	OrderRef        string    `gorm:"size:64;index:idx_movements_order"`
	Remark          string    `gorm:"size:255"`
	CreatedAt       time.Time `gorm:"index:idx_movements_created"`
}

// ProductGuardModel one row per store/product, locked while a batch is
// received so stock-model checks of the same product run one at a time
type ProductGuardModel struct {
	ID        uint   `gorm:"primaryKey"`
	StoreID   string `gorm:"column:store_id;size:64;not null;uniqueIndex:uk_product_guards,priority:1"`
	ProductID string `gorm:"column:product_id;size:64;not null;uniqueIndex:uk_product_guards,priority:2"`
}

// TableName table name
func (ProductGuardModel) TableName() string {
	return "inventory_product_guards"
}

// TableName table name
func (MovementModel) TableName() string {
	return "inventory_movements"
}

// DeductionRequestModel idempotency key of one deduction call
type DeductionRequestModel struct {
	ID             uint      `gorm:"primaryKey"`
	IdempotencyKey string    `gorm:"uniqueIndex:uk_deduction_requests_key;size:128;not null"`
	OrderRef       string    `gorm:"size:64;not null"`
	CreatedAt      time.Time `gorm:"index"`
}

// TableName table name
func (DeductionRequestModel) TableName() string {
	return "deduction_requests"
}

// OrderModel GORM order model
// One-to-many with OrderItemModel; order_no is the business key.
type OrderModel struct {
	ID             uint             `gorm:"primaryKey"`
	OrderNo        string           `gorm:"uniqueIndex:uk_orders_order_no;size:32;not null"`
	StoreID        string           `gorm:"column:store_id;size:64;not null;index"`
	CustomerRef    string           `gorm:"size:64;index"`
	IdempotencyKey *string          `gorm:"uniqueIndex:uk_orders_idempotency_key;size:128"`
	Status         int              `gorm:"index;not null;default:1"`
	Items          []OrderItemModel `gorm:"foreignKey:OrderID"`
	CreatedAt      time.Time        `gorm:"index"`
	UpdatedAt      time.Time
}

// TableName table name
func (OrderModel) TableName() string {
	return "orders"
}

// OrderItemModel GORM order item model
type OrderItemModel struct {
	ID         uint   `gorm:"primaryKey"`
	OrderID    uint   `gorm:"index;not null"`
	ProductID  string `gorm:"column:product_id;size:64;not null"`
	VariantSKU string `gorm:"column:variant_sku;size:64;not null;default:''"`
	Quantity   int64  `gorm:"not null"`
}

// TableName table name
func (OrderItemModel) TableName() string {
	return "order_items"
}

// =========================================
// Model conversion
// =========================================

func toBatchModel(b *inventory.Batch) *BatchModel {
	var batchNumber *string
	if b.BatchNumber != "" {
		n := b.BatchNumber
		batchNumber = &n
	}
	return &BatchModel{
		ID:                b.ID,
		BatchID:           b.BatchID,
		StoreID:           b.StoreID,
		ProductID:         b.ProductID,
		VariantSKU:        b.VariantSKU,
		BatchNumber:       batchNumber,
		InitialQuantity:   b.InitialQuantity,
		AvailableQuantity: b.AvailableQuantity,
		SoldQuantity:      b.SoldQuantity,
		CostPrice:         b.CostPrice,
		UsesSharedStock:   b.UsesSharedStock,
		BaseUnit:          b.BaseUnit,
		ExpiryDate:        b.ExpiryDate,
		Status:            string(b.Status),
		CreatedAt:         b.CreatedAt,
		UpdatedAt:         b.UpdatedAt,
	}
}

func toBatchEntity(m *BatchModel) *inventory.Batch {
	b := &inventory.Batch{
		ID:                m.ID,
		BatchID:           m.BatchID,
		StoreID:           m.StoreID,
		ProductID:         m.ProductID,
		VariantSKU:        m.VariantSKU,
		InitialQuantity:   m.InitialQuantity,
		AvailableQuantity: m.AvailableQuantity,
		SoldQuantity:      m.SoldQuantity,
		CostPrice:         m.CostPrice,
		UsesSharedStock:   m.UsesSharedStock,
		BaseUnit:          m.BaseUnit,
		Status:            inventory.Status(m.Status),
		CreatedAt:         m.CreatedAt.UTC(),
		UpdatedAt:         m.UpdatedAt.UTC(),
	}
	if m.BatchNumber != nil {
		b.BatchNumber = *m.BatchNumber
	}
	if m.ExpiryDate != nil {
		e := m.ExpiryDate.UTC()
		b.ExpiryDate = &e
	}
	return b
}
