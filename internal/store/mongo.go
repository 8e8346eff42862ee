package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"clinic-app-server/internal/config"
	"clinic-app-server/internal/models"
)

// OpenMongo connects to MongoDB and verifies the connection.
func OpenMongo(ctx context.Context, cfg config.DatabaseConfig) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

// NewMongoStores wires the Mongo-backed stores on database db.
func NewMongoStores(client *mongo.Client, db *mongo.Database) *Stores {
	patients := NewMongoPrincipalStore(db.Collection(patientsTable), models.RolePatient)
	admins := NewMongoPrincipalStore(db.Collection(adminsTable), models.RoleAdmin)
	reports := NewMongoReportStore(db.Collection("reports"))
	return &Stores{
		Patients: patients,
		Admins:   admins,
		Reports:  reports,
		migrate: func(ctx context.Context) error {
			if err := patients.EnsureIndexes(ctx); err != nil {
				return err
			}
			if err := admins.EnsureIndexes(ctx); err != nil {
				return err
			}
			return reports.EnsureIndexes(ctx)
		},
		close: client.Disconnect,
	}
}

// MongoPrincipalStore stores one principal variant in its own collection.
type MongoPrincipalStore struct {
	coll *mongo.Collection
	role models.Role
}

func NewMongoPrincipalStore(coll *mongo.Collection, role models.Role) *MongoPrincipalStore {
	return &MongoPrincipalStore{coll: coll, role: role}
}

func (s *MongoPrincipalStore) Role() models.Role { return s.role }

// EnsureIndexes creates the unique email index.
func (s *MongoPrincipalStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (s *MongoPrincipalStore) Create(ctx context.Context, p *models.Principal) error {
	p.Email = models.NormalizeEmail(p.Email)
	p.EnsureID()
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	if _, err := s.coll.InsertOne(ctx, p); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateEmail
		}
		return err
	}
	p.Role = s.role
	return nil
}

func (s *MongoPrincipalStore) FindByID(ctx context.Context, id string) (*models.Principal, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *MongoPrincipalStore) FindByEmail(ctx context.Context, email string) (*models.Principal, error) {
	return s.findOne(ctx, bson.M{"email": models.NormalizeEmail(email)})
}

func (s *MongoPrincipalStore) UpdatePhoto(ctx context.Context, id, photoURL string) (*models.Principal, error) {
	return s.setPhoto(ctx, bson.M{"_id": id}, photoURL)
}

func (s *MongoPrincipalStore) List(ctx context.Context) ([]*models.Principal, error) {
	return s.find(ctx, bson.M{}, options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetProjection(bson.M{"password": 0}))
}

func (s *MongoPrincipalStore) Search(ctx context.Context, filter SearchFilter) ([]*models.Principal, error) {
	return s.find(ctx, mongoFilter(filter), options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetProjection(bson.M{"password": 0}).
		SetLimit(MaxSearchResults))
}

func (s *MongoPrincipalStore) findOne(ctx context.Context, filter bson.M) (*models.Principal, error) {
	var p models.Principal
	if err := s.coll.FindOne(ctx, filter).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.Role = s.role
	return &p, nil
}

func (s *MongoPrincipalStore) setPhoto(ctx context.Context, filter bson.M, photoURL string) (*models.Principal, error) {
	update := bson.M{"$set": bson.M{"photoUrl": photoURL, "updatedAt": time.Now().UTC()}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var p models.Principal
	if err := s.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.Role = s.role
	return &p, nil
}

func (s *MongoPrincipalStore) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*models.Principal, error) {
	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	principals := make([]*models.Principal, 0)
	if err := cursor.All(ctx, &principals); err != nil {
		return nil, err
	}
	for _, p := range principals {
		p.Role = s.role
	}
	return principals, nil
}

// mongoFilter turns a SearchFilter into an $or of case-insensitive regexes.
// User input is quoted so it only ever matches literally.
func mongoFilter(filter SearchFilter) bson.M {
	if filter.IsEmpty() {
		return bson.M{}
	}
	or := make(bson.A, 0, len(filter.Predicates))
	for _, pred := range filter.Predicates {
		or = append(or, bson.M{string(pred.Field): primitive.Regex{
			Pattern: regexp.QuoteMeta(pred.Value),
			Options: "i",
		}})
	}
	return bson.M{"$or": or}
}

// reportDocument is the stored shape of a report. Inline data is kept as its
// JSON text.
type reportDocument struct {
	ID                string                  `bson:"_id"`
	PatientID         string                  `bson:"patientId"`
	Category          string                  `bson:"category"`
	Title             string                  `bson:"title,omitempty"`
	Notes             string                  `bson:"notes,omitempty"`
	Storage           *models.StorageMetadata `bson:"storage,omitempty"`
	InlineData        *string                 `bson:"inlineData,omitempty"`
	UploadedByAdminID string                  `bson:"uploadedByAdminId,omitempty"`
	CreatedAt         time.Time               `bson:"createdAt"`
}

func newReportDocument(r *models.Report) reportDocument {
	doc := reportDocument{
		ID:                r.ID,
		PatientID:         r.PatientID,
		Category:          r.Category,
		Title:             r.Title,
		Notes:             r.Notes,
		Storage:           r.Storage(),
		UploadedByAdminID: r.UploadedByAdminID,
		CreatedAt:         r.CreatedAt,
	}
	if data := r.InlineData(); data != nil {
		s := string(data)
		doc.InlineData = &s
	}
	return doc
}

func (d reportDocument) toModel() *models.Report {
	r := &models.Report{
		ID:                d.ID,
		PatientID:         d.PatientID,
		Category:          d.Category,
		Title:             d.Title,
		Notes:             d.Notes,
		UploadedByAdminID: d.UploadedByAdminID,
		CreatedAt:         d.CreatedAt,
	}
	switch {
	case d.Storage != nil:
		r.Payload = models.StoredPayload{Metadata: *d.Storage}
	case d.InlineData != nil:
		r.Payload = models.InlinePayload{Data: json.RawMessage(*d.InlineData)}
	}
	return r
}

// MongoReportStore stores reports in a single collection.
type MongoReportStore struct {
	coll *mongo.Collection
}

func NewMongoReportStore(coll *mongo.Collection) *MongoReportStore {
	return &MongoReportStore{coll: coll}
}

// EnsureIndexes creates the per-patient listing index.
func (s *MongoReportStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "patientId", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	return err
}

func (s *MongoReportStore) Create(ctx context.Context, r *models.Report) error {
	if err := r.Validate(); err != nil {
		return err
	}
	prepareReport(r, time.Now)
	_, err := s.coll.InsertOne(ctx, newReportDocument(r))
	return err
}

func (s *MongoReportStore) ListByPatient(ctx context.Context, patientID string) ([]*models.Report, error) {
	return s.find(ctx, bson.M{"patientId": patientID})
}

func (s *MongoReportStore) ListAll(ctx context.Context) ([]*models.Report, error) {
	return s.find(ctx, bson.M{})
}

func (s *MongoReportStore) find(ctx context.Context, filter bson.M) ([]*models.Report, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []reportDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	reports := make([]*models.Report, len(docs))
	for i, d := range docs {
		reports[i] = d.toModel()
	}
	return reports, nil
}
