package backend

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"cropwise/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type userRow struct {
	ID           string  `gorm:"type:uuid;primaryKey"`
	Email        *string `gorm:"uniqueIndex"`
	Phone        *string `gorm:"uniqueIndex"`
	PasswordHash string
	CreatedAt    time.Time
}

func (userRow) TableName() string { return "users" }

type farmRow struct {
	ID          string `gorm:"type:uuid;primaryKey"`
	OwnerID     string `gorm:"index;not null"`
	Name        string
	Location    string
	Area        string
	AreaValue   float64
	Lands       []models.LandLocation `gorm:"serializer:json"`
	PrimaryCrop string
	Latitude    *float64
	Longitude   *float64
	CreatedAt   time.Time
}

func (farmRow) TableName() string { return string(TableFarms) }

type cropRow struct {
	ID           string `gorm:"type:uuid;primaryKey"`
	OwnerID      string `gorm:"index;not null"`
	FarmID       string `gorm:"index"`
	Name         string
	Image        string
	Location     string
	LandArea     string
	SowingDate   string
	SowingPeriod string
	CurrentStage string
	Stages       []models.CropStage `gorm:"serializer:json"`
	SeedsPlanted *int
	CropType     string
	CreatedAt    time.Time
}

func (cropRow) TableName() string { return string(TableCrops) }

func farmToRow(f models.Farm) farmRow {
	return farmRow{
		ID: f.ID, OwnerID: f.OwnerID, Name: f.Name, Location: f.Location, Area: f.Area,
		AreaValue: f.AreaValue, Lands: f.Lands, PrimaryCrop: f.PrimaryCrop,
		Latitude: f.Latitude, Longitude: f.Longitude, CreatedAt: f.CreatedAt,
	}
}

// rowToFarm leaves Crops empty; the store derives it from the crop rows.
func rowToFarm(r farmRow) models.Farm {
	return models.Farm{
		ID: r.ID, OwnerID: r.OwnerID, Name: r.Name, Location: r.Location, Area: r.Area,
		AreaValue: r.AreaValue, Lands: r.Lands, Crops: []string{}, PrimaryCrop: r.PrimaryCrop,
		Latitude: r.Latitude, Longitude: r.Longitude, CreatedAt: r.CreatedAt,
	}
}

func cropToRow(c models.Crop) cropRow {
	return cropRow{
		ID: c.ID, OwnerID: c.OwnerID, FarmID: c.FarmID, Name: c.Name, Image: c.Image,
		Location: c.Location, LandArea: c.LandArea, SowingDate: c.SowingDate,
		SowingPeriod: c.SowingPeriod, CurrentStage: c.CurrentStage, Stages: c.Stages,
		SeedsPlanted: c.SeedsPlanted, CropType: c.CropType, CreatedAt: c.CreatedAt,
	}
}

func rowToCrop(r cropRow) models.Crop {
	return models.Crop{
		ID: r.ID, OwnerID: r.OwnerID, FarmID: r.FarmID, Name: r.Name, Image: r.Image,
		Location: r.Location, LandArea: r.LandArea, SowingDate: r.SowingDate,
		SowingPeriod: r.SowingPeriod, CurrentStage: r.CurrentStage, Stages: r.Stages,
		SeedsPlanted: r.SeedsPlanted, CropType: r.CropType, CreatedAt: r.CreatedAt,
	}
}

// Postgres keeps rows in postgres via gorm. Change feeds use LISTEN on a
// channel fed by row triggers installed by the migrations.
type Postgres struct {
	db  *gorm.DB
	dsn string
	log *zap.Logger
}

func NewPostgres(dsn string, log *zap.Logger) (*Postgres, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := migrate(db); err != nil {
		return nil, err
	}
	return &Postgres{db: db, dsn: dsn, log: log}, nil
}

func (p *Postgres) ListFarms(ctx context.Context, ownerID string) ([]models.Farm, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	var rows []farmRow
	if err := p.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("created_at").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.Farm, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToFarm(r))
	}
	return out, nil
}

func (p *Postgres) ListCrops(ctx context.Context, ownerID string) ([]models.Crop, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	var rows []cropRow
	if err := p.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("created_at").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.Crop, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToCrop(r))
	}
	return out, nil
}

func (p *Postgres) InsertFarm(ctx context.Context, f models.Farm) (models.Farm, error) {
	if err := requireOwner(f.OwnerID); err != nil {
		return models.Farm{}, err
	}
	f.ID = uuid.NewString()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	row := farmToRow(f)
	if err := p.db.WithContext(ctx).Create(&row).Error; err != nil {
		return models.Farm{}, err
	}
	out := rowToFarm(row)
	return out, nil
}

func (p *Postgres) InsertCrop(ctx context.Context, c models.Crop) (models.Crop, error) {
	if err := requireOwner(c.OwnerID); err != nil {
		return models.Crop{}, err
	}
	c.ID = uuid.NewString()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	row := cropToRow(c)
	if err := p.db.WithContext(ctx).Create(&row).Error; err != nil {
		return models.Crop{}, err
	}
	return rowToCrop(row), nil
}

func (p *Postgres) UpdateCropImage(ctx context.Context, ownerID, cropID, url string) (models.Crop, error) {
	if err := requireOwner(ownerID); err != nil {
		return models.Crop{}, err
	}
	var row cropRow
	res := p.db.WithContext(ctx).Model(&row).
		Clauses(clause.Returning{}).
		Where("id = ? AND owner_id = ?", cropID, ownerID).
		Update("image", url)
	if res.Error != nil {
		return models.Crop{}, res.Error
	}
	if res.RowsAffected == 0 {
		return models.Crop{}, ErrNotFound
	}
	return rowToCrop(row), nil
}

func (p *Postgres) CreateUser(ctx context.Context, u models.User) (models.User, error) {
	u.ID = uuid.NewString()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	row := userRow{ID: u.ID, PasswordHash: u.PasswordHash, CreatedAt: u.CreatedAt}
	if u.Email != "" {
		row.Email = &u.Email
	}
	if u.Phone != "" {
		row.Phone = &u.Phone
	}
	if err := p.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "duplicate key") {
			return models.User{}, ErrDuplicate
		}
		return models.User{}, err
	}
	return u, nil
}

func (p *Postgres) FindUser(ctx context.Context, email, phone string) (models.User, error) {
	q := p.db.WithContext(ctx)
	switch {
	case email != "":
		q = q.Where("email = ?", email)
	case phone != "":
		q = q.Where("phone = ?", phone)
	default:
		return models.User{}, ErrNotFound
	}
	return firstUser(q)
}

func (p *Postgres) GetUser(ctx context.Context, id string) (models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return models.User{}, ErrNotFound
	}
	return firstUser(p.db.WithContext(ctx).Where("id = ?", id))
}

func firstUser(q *gorm.DB) (models.User, error) {
	var row userRow
	if err := q.First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, err
	}
	u := models.User{ID: row.ID, PasswordHash: row.PasswordHash, CreatedAt: row.CreatedAt}
	if row.Email != nil {
		u.Email = *row.Email
	}
	if row.Phone != nil {
		u.Phone = *row.Phone
	}
	return u, nil
}

type pgNotification struct {
	Table   Table    `json:"table"`
	Op      ChangeOp `json:"op"`
	ID      string   `json:"id"`
	OwnerID string   `json:"owner_id"`
}

// decodeNotification turns a trigger payload into a Change for the given
// feed. ok is false when the row belongs to another table or owner.
func decodeNotification(payload string, table Table, ownerID string) (Change, bool, error) {
	var msg pgNotification
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return Change{}, false, err
	}
	if msg.Table != table || msg.OwnerID != ownerID {
		return Change{}, false, nil
	}
	return Change{Table: table, Op: msg.Op, ID: msg.ID}, true, nil
}

// Subscribe opens a dedicated LISTEN connection. Notifications for other
// tables or owners are dropped here; a reconnect is reported as OpResync.
func (p *Postgres) Subscribe(ctx context.Context, table Table, ownerID string) (Subscription, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	log := p.log.With(zap.String("table", string(table)), zap.String("owner", ownerID))
	l := pq.NewListener(p.dsn, 2*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Warn("listener event", zap.Int("event", int(ev)), zap.Error(err))
		}
	})
	if err := l.Listen(notifyChannel); err != nil {
		_ = l.Close()
		return nil, err
	}

	produce := func(ctx context.Context, emit func(Change) bool) {
		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-l.NotificationChannel():
				if !ok {
					return
				}
				if n == nil {
					if !emit(Change{Table: table, Op: OpResync}) {
						return
					}
					continue
				}
				ch, ok, err := decodeNotification(n.Extra, table, ownerID)
				if err != nil {
					log.Warn("decode notification", zap.Error(err))
					continue
				}
				if !ok {
					continue
				}
				if !emit(ch) {
					return
				}
			}
		}
	}
	return newFeed(context.WithoutCancel(ctx), produce, l.Close), nil
}

func (p *Postgres) Close(context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
