package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/clientads/adserver/pkg/config"
)

// ErrNotFound is returned when a referenced record does not exist.
var ErrNotFound = errors.New("record not found")

// AdFilter narrows ad queries. A nil ClientIDs slice means unrestricted;
// an empty non-nil slice matches nothing. Types and Type may both be set;
// Type wins when non-empty.
type AdFilter struct {
	ClientIDs []string
	Type      string
	Types     []string
	Enabled   *bool
}

// Store provides persistence for ads, client configs, and users.
type Store interface {
	Start(ctx context.Context) error
	Stop() error
	Ping(ctx context.Context) error

	// Ads.
	UpsertAd(ctx context.Context, ad *Ad) error
	GetAd(ctx context.Context, id string) (*Ad, error)
	ListAds(ctx context.Context, filter AdFilter) ([]Ad, error)
	UpdateAdFields(ctx context.Context, id string, fields map[string]any) error
	DeleteAd(ctx context.Context, id string) error

	// Client configs.
	GetConfig(ctx context.Context, clientID string) (*ClientConfig, error)
	UpsertConfig(ctx context.Context, cfg *ClientConfig) error
	ClientIDInUse(ctx context.Context, clientID string) (bool, error)

	// Users.
	GetUser(ctx context.Context, username string) (*User, error)
	CreateUser(ctx context.Context, user *User) error
	SaveUser(ctx context.Context, user *User) error
	SeedAdmin(ctx context.Context, username, password string) error
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg *config.DatabaseConfig
	db  *gorm.DB
}

// NewStore creates a new Store backed by the configured database driver.
func NewStore(
	log logrus.FieldLogger,
	cfg *config.DatabaseConfig,
) Store {
	return &store{
		log: log.WithField("component", "store"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var dialector gorm.Dialector

	gormCfg := &gorm.Config{
		Logger: logger.Discard,
	}

	switch s.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	s.db = db

	if err := s.db.WithContext(ctx).AutoMigrate(
		&Ad{},
		&ClientConfig{},
		&User{},
	); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).Info("Database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

// Ping verifies the database connection is alive.
func (s *store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}

	return nil
}

// --- Ads ---

// UpsertAd writes the full ad record keyed on its id. Repeating an
// identical create is a no-op from the caller's perspective.
func (s *store) UpsertAd(ctx context.Context, ad *Ad) error {
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(ad).Error; err != nil {
		return fmt.Errorf("upserting ad: %w", err)
	}

	return nil
}

func (s *store) GetAd(ctx context.Context, id string) (*Ad, error) {
	var ad Ad
	if err := s.db.WithContext(ctx).
		Where("id = ?", id).
		First(&ad).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("getting ad: %w", err)
	}

	return &ad, nil
}

func (s *store) ListAds(
	ctx context.Context, filter AdFilter,
) ([]Ad, error) {
	q := s.db.WithContext(ctx).Model(&Ad{})

	if filter.ClientIDs != nil {
		q = q.Where("client_id IN ?", filter.ClientIDs)
	}

	switch {
	case filter.Type != "":
		q = q.Where("type = ?", filter.Type)
	case len(filter.Types) > 0:
		q = q.Where("type IN ?", filter.Types)
	}

	if filter.Enabled != nil {
		q = q.Where("enabled = ?", *filter.Enabled)
	}

	var ads []Ad
	if err := q.Order("id ASC").Find(&ads).Error; err != nil {
		return nil, fmt.Errorf("listing ads: %w", err)
	}

	return ads, nil
}

// UpdateAdFields applies a partial update to the ad with the given id.
func (s *store) UpdateAdFields(
	ctx context.Context, id string, fields map[string]any,
) error {
	if len(fields) == 0 {
		return nil
	}

	result := s.db.WithContext(ctx).
		Model(&Ad{}).
		Where("id = ?", id).
		Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("updating ad: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *store) DeleteAd(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&Ad{})
	if result.Error != nil {
		return fmt.Errorf("deleting ad: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// --- Client configs ---

func (s *store) GetConfig(
	ctx context.Context, clientID string,
) (*ClientConfig, error) {
	var cfg ClientConfig
	if err := s.db.WithContext(ctx).
		Where("client_id = ?", clientID).
		First(&cfg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("getting client config: %w", err)
	}

	return &cfg, nil
}

func (s *store) UpsertConfig(
	ctx context.Context, cfg *ClientConfig,
) error {
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "client_id"}},
			UpdateAll: true,
		}).
		Create(cfg).Error; err != nil {
		return fmt.Errorf("upserting client config: %w", err)
	}

	return nil
}

// ClientIDInUse reports whether a client id is already claimed by an
// existing config or ad.
func (s *store) ClientIDInUse(
	ctx context.Context, clientID string,
) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&ClientConfig{}).
		Where("client_id = ?", clientID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("counting client configs: %w", err)
	}

	if count > 0 {
		return true, nil
	}

	if err := s.db.WithContext(ctx).
		Model(&Ad{}).
		Where("client_id = ?", clientID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("counting ads: %w", err)
	}

	return count > 0, nil
}

// --- Users ---

func (s *store) GetUser(
	ctx context.Context, username string,
) (*User, error) {
	var user User
	if err := s.db.WithContext(ctx).
		Where("username = ?", username).
		First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("getting user: %w", err)
	}

	return &user, nil
}

func (s *store) CreateUser(ctx context.Context, user *User) error {
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("creating user: %w", err)
	}

	return nil
}

func (s *store) SaveUser(ctx context.Context, user *User) error {
	if err := s.db.WithContext(ctx).Save(user).Error; err != nil {
		return fmt.Errorf("saving user: %w", err)
	}

	return nil
}

// SeedAdmin upserts the well-known admin account from configuration.
// The admin carries no client id list; role alone grants full access.
func (s *store) SeedAdmin(
	ctx context.Context, username, password string,
) error {
	hash, err := bcrypt.GenerateFromPassword(
		[]byte(password), bcrypt.DefaultCost,
	)
	if err != nil {
		return fmt.Errorf("hashing admin password: %w", err)
	}

	admin := &User{
		Username:         username,
		PasswordHash:     string(hash),
		Role:             RoleAdmin,
		AllowedClientIDs: StringList{},
	}

	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "username"}},
			UpdateAll: true,
		}).
		Create(admin).Error; err != nil {
		return fmt.Errorf("seeding admin user: %w", err)
	}

	s.log.WithField("username", username).Info("Seeded admin user")

	return nil
}
