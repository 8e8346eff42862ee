package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"clinic-app-server/internal/config"
	"clinic-app-server/internal/models"
)

const (
	patientsTable = "patients"
	adminsTable   = "admins"
)

// patientRow and adminRow give each principal variant its own table and index names.
type patientRow struct{ models.Principal }

func (patientRow) TableName() string { return patientsTable }

type adminRow struct{ models.Principal }

func (adminRow) TableName() string { return adminsTable }

// OpenGorm connects to MySQL or Postgres.
func OpenGorm(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case config.DriverMySQL:
		dialector = mysql.Open(cfg.URL)
	case config.DriverPostgres:
		dialector = postgres.Open(cfg.URL)
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}
	return db, nil
}

// NewGormStores wires the gorm-backed stores on an open connection.
func NewGormStores(db *gorm.DB) *Stores {
	return &Stores{
		Patients: NewGormPrincipalStore(db, patientsTable, models.RolePatient),
		Admins:   NewGormPrincipalStore(db, adminsTable, models.RoleAdmin),
		Reports:  NewGormReportStore(db),
		migrate: func(ctx context.Context) error {
			return db.WithContext(ctx).AutoMigrate(&patientRow{}, &adminRow{}, &reportRow{})
		},
		close: func(context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	}
}

// GormPrincipalStore stores one principal variant in its own table.
type GormPrincipalStore struct {
	db    *gorm.DB
	table string
	role  models.Role
}

func NewGormPrincipalStore(db *gorm.DB, table string, role models.Role) *GormPrincipalStore {
	return &GormPrincipalStore{db: db, table: table, role: role}
}

func (s *GormPrincipalStore) Role() models.Role { return s.role }

func (s *GormPrincipalStore) query(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Table(s.table)
}

func (s *GormPrincipalStore) Create(ctx context.Context, p *models.Principal) error {
	p.Email = models.NormalizeEmail(p.Email)
	p.EnsureID()
	if err := s.query(ctx).Create(p).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateEmail
		}
		return err
	}
	p.Role = s.role
	return nil
}

func (s *GormPrincipalStore) FindByID(ctx context.Context, id string) (*models.Principal, error) {
	return s.first(ctx, "id = ?", id)
}

func (s *GormPrincipalStore) FindByEmail(ctx context.Context, email string) (*models.Principal, error) {
	return s.first(ctx, "email = ?", models.NormalizeEmail(email))
}

func (s *GormPrincipalStore) UpdatePhoto(ctx context.Context, id, photoURL string) (*models.Principal, error) {
	p, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.setPhoto(ctx, p, photoURL)
}

func (s *GormPrincipalStore) List(ctx context.Context) ([]*models.Principal, error) {
	var principals []*models.Principal
	if err := s.query(ctx).Omit("password").Order("created_at desc").Find(&principals).Error; err != nil {
		return nil, err
	}
	return s.withRole(principals), nil
}

func (s *GormPrincipalStore) Search(ctx context.Context, filter SearchFilter) ([]*models.Principal, error) {
	q := s.query(ctx).Omit("password")
	if cond, args := filter.sqlCondition(); cond != "" {
		q = q.Where(cond, args...)
	}

	var principals []*models.Principal
	if err := q.Order("created_at desc").Limit(MaxSearchResults).Find(&principals).Error; err != nil {
		return nil, err
	}
	return s.withRole(principals), nil
}

func (s *GormPrincipalStore) first(ctx context.Context, cond string, arg interface{}) (*models.Principal, error) {
	var p models.Principal
	if err := s.query(ctx).Where(cond, arg).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.Role = s.role
	return &p, nil
}

func (s *GormPrincipalStore) setPhoto(ctx context.Context, p *models.Principal, photoURL string) (*models.Principal, error) {
	now := time.Now()
	err := s.query(ctx).Where("id = ?", p.ID).Updates(map[string]interface{}{
		"photo_url":  photoURL,
		"updated_at": now,
	}).Error
	if err != nil {
		return nil, err
	}
	p.PhotoURL = photoURL
	p.UpdatedAt = now
	return p, nil
}

func (s *GormPrincipalStore) withRole(principals []*models.Principal) []*models.Principal {
	for _, p := range principals {
		p.Role = s.role
	}
	return principals
}

// reportRow flattens a report into nullable columns. Exactly one of the
// storage columns group or inline_data is set.
type reportRow struct {
	ID                string  `gorm:"primaryKey;type:varchar(36)"`
	PatientID         string  `gorm:"type:varchar(36);index;not null"`
	Category          string  `gorm:"size:100;not null"`
	Title             string  `gorm:"size:255"`
	Notes             string  `gorm:"type:text"`
	UploadedByAdminID string  `gorm:"type:varchar(36)"`
	StorageURL        *string `gorm:"size:1024"`
	StorageID         *string `gorm:"size:512"`
	StorageFormat     *string `gorm:"size:50"`
	StorageBytes      *int64
	StorageWidth      *int
	StorageHeight     *int
	InlineData        *string   `gorm:"type:text"`
	CreatedAt         time.Time `gorm:"index"`
}

func (reportRow) TableName() string { return "reports" }

func newReportRow(r *models.Report) reportRow {
	row := reportRow{
		ID:                r.ID,
		PatientID:         r.PatientID,
		Category:          r.Category,
		Title:             r.Title,
		Notes:             r.Notes,
		UploadedByAdminID: r.UploadedByAdminID,
		CreatedAt:         r.CreatedAt,
	}
	if m := r.Storage(); m != nil {
		row.StorageURL = &m.URL
		row.StorageID = &m.StorageID
		row.StorageFormat = &m.Format
		row.StorageBytes = &m.Bytes
		row.StorageWidth = m.Width
		row.StorageHeight = m.Height
	}
	if data := r.InlineData(); data != nil {
		s := string(data)
		row.InlineData = &s
	}
	return row
}

func (row reportRow) toModel() *models.Report {
	r := &models.Report{
		ID:                row.ID,
		PatientID:         row.PatientID,
		Category:          row.Category,
		Title:             row.Title,
		Notes:             row.Notes,
		UploadedByAdminID: row.UploadedByAdminID,
		CreatedAt:         row.CreatedAt,
	}
	switch {
	case row.StorageURL != nil:
		m := models.StorageMetadata{
			URL:    *row.StorageURL,
			Width:  row.StorageWidth,
			Height: row.StorageHeight,
		}
		if row.StorageID != nil {
			m.StorageID = *row.StorageID
		}
		if row.StorageFormat != nil {
			m.Format = *row.StorageFormat
		}
		if row.StorageBytes != nil {
			m.Bytes = *row.StorageBytes
		}
		r.Payload = models.StoredPayload{Metadata: m}
	case row.InlineData != nil:
		r.Payload = models.InlinePayload{Data: json.RawMessage(*row.InlineData)}
	}
	return r
}

// GormReportStore stores reports in the reports table.
type GormReportStore struct {
	db *gorm.DB
}

func NewGormReportStore(db *gorm.DB) *GormReportStore {
	return &GormReportStore{db: db}
}

func (s *GormReportStore) Create(ctx context.Context, r *models.Report) error {
	if err := r.Validate(); err != nil {
		return err
	}
	prepareReport(r, time.Now)
	row := newReportRow(r)
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *GormReportStore) ListByPatient(ctx context.Context, patientID string) ([]*models.Report, error) {
	return s.list(s.db.WithContext(ctx).Where("patient_id = ?", patientID))
}

func (s *GormReportStore) ListAll(ctx context.Context) ([]*models.Report, error) {
	return s.list(s.db.WithContext(ctx))
}

func (s *GormReportStore) list(q *gorm.DB) ([]*models.Report, error) {
	var rows []reportRow
	if err := q.Order("created_at desc").Find(&rows).Error; err != nil {
		return nil, err
	}
	reports := make([]*models.Report, len(rows))
	for i, row := range rows {
		reports[i] = row.toModel()
	}
	return reports, nil
}
