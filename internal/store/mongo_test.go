package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"clinic-app-server/internal/models"
)

func newMockMongo(t *testing.T) *mtest.T {
	return mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
}

func namespace(mt *mtest.T) string {
	return mt.Coll.Database().Name() + "." + mt.Coll.Name()
}

func principalDoc(id, email string, created time.Time) bson.D {
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "name", Value: "Jane"},
		{Key: "email", Value: email},
		{Key: "phone", Value: "1"},
		{Key: "password", Value: "hashed"},
		{Key: "photoUrl", Value: "https://cdn/a.png"},
		{Key: "createdAt", Value: primitive.NewDateTimeFromTime(created)},
		{Key: "updatedAt", Value: primitive.NewDateTimeFromTime(created)},
	}
}

func TestMongoPrincipalStore_Create(t *testing.T) {
	mt := newMockMongo(t)

	mt.Run("inserts normalized principal", func(mt *mtest.T) {
		s := NewMongoPrincipalStore(mt.Coll, models.RolePatient)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		p := &models.Principal{Name: "Jane", Email: " JANE@X.COM ", Phone: "1"}
		require.NoError(t, s.Create(context.Background(), p))
		assert.Equal(t, "jane@x.com", p.Email)
		assert.True(t, models.IsValidID(p.ID))
		assert.Equal(t, models.RolePatient, p.Role)

		inserted := mt.GetStartedEvent().Command.Lookup("documents").Array().Index(0).Value().Document()
		assert.Equal(t, p.ID, inserted.Lookup("_id").StringValue())
		assert.Equal(t, "jane@x.com", inserted.Lookup("email").StringValue())
		_, hasRole := inserted.LookupErr("role")
		assert.Error(t, hasRole, "role is not stored")
	})

	mt.Run("duplicate key maps to duplicate email", func(mt *mtest.T) {
		s := NewMongoPrincipalStore(mt.Coll, models.RoleAdmin)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error collection: clinic.admins index: email_1",
		}))

		err := s.Create(context.Background(), &models.Principal{Name: "A", Email: "a@x.com"})
		assert.ErrorIs(t, err, ErrDuplicateEmail)
	})
}

func TestMongoPrincipalStore_FindByEmail(t *testing.T) {
	mt := newMockMongo(t)
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	mt.Run("decodes embedded base fields", func(mt *mtest.T) {
		s := NewMongoPrincipalStore(mt.Coll, models.RolePatient)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch, principalDoc("p1", "jane@x.com", created)))

		p, err := s.FindByEmail(context.Background(), "Jane@X.com")
		require.NoError(t, err)
		assert.Equal(t, "p1", p.ID)
		assert.Equal(t, "jane@x.com", p.Email)
		assert.Equal(t, "hashed", p.Password)
		assert.Equal(t, models.RolePatient, p.Role)
		assert.True(t, created.Equal(p.CreatedAt))

		filter := mt.GetStartedEvent().Command.Lookup("filter").Document()
		assert.Equal(t, "jane@x.com", filter.Lookup("email").StringValue())
	})

	mt.Run("missing principal", func(mt *mtest.T) {
		s := NewMongoPrincipalStore(mt.Coll, models.RolePatient)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch))

		_, err := s.FindByEmail(context.Background(), "nobody@x.com")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestMongoPrincipalStore_UpdatePhoto(t *testing.T) {
	mt := newMockMongo(t)

	mt.Run("returns updated principal", func(mt *mtest.T) {
		s := NewMongoPrincipalStore(mt.Coll, models.RoleAdmin)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: principalDoc("a1", "root@x.com", time.Now())}))

		p, err := s.UpdatePhoto(context.Background(), "a1", "https://cdn/a.png")
		require.NoError(t, err)
		assert.Equal(t, "a1", p.ID)
		assert.Equal(t, "https://cdn/a.png", p.PhotoURL)
		assert.Equal(t, models.RoleAdmin, p.Role)
	})

	mt.Run("missing principal", func(mt *mtest.T) {
		s := NewMongoPrincipalStore(mt.Coll, models.RoleAdmin)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: nil}))

		_, err := s.UpdatePhoto(context.Background(), "missing", "u")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestMongoPrincipalStore_Search(t *testing.T) {
	mt := newMockMongo(t)

	mt.Run("caps and hides password", func(mt *mtest.T) {
		s := NewMongoPrincipalStore(mt.Coll, models.RolePatient)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch, principalDoc("p1", "john@x.com", time.Now())))

		found, err := s.Search(context.Background(), NewSearchFilter("john", "", "", ""))
		require.NoError(t, err)
		require.Len(t, found, 1)

		cmd := mt.GetStartedEvent().Command
		assert.EqualValues(t, MaxSearchResults, cmd.Lookup("limit").AsInt64())
		assert.EqualValues(t, 0, cmd.Lookup("projection", "password").AsInt64())
		_, err = cmd.Lookup("filter").Document().LookupErr("$or")
		assert.NoError(t, err)
	})
}

func TestMongoReportStore_RoundTrip(t *testing.T) {
	mt := newMockMongo(t)

	mt.Run("inline report is stored as json text", func(mt *mtest.T) {
		s := NewMongoReportStore(mt.Coll)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		r := &models.Report{PatientID: "p1", Category: "blood", Payload: models.InlinePayload{Data: json.RawMessage(`{"wbc":5}`)}}
		require.NoError(t, s.Create(context.Background(), r))
		assert.NotEmpty(t, r.ID)
		assert.False(t, r.CreatedAt.IsZero())

		doc := mt.GetStartedEvent().Command.Lookup("documents").Array().Index(0).Value().Document()
		assert.Equal(t, `{"wbc":5}`, doc.Lookup("inlineData").StringValue())
		_, err := doc.LookupErr("storage")
		assert.Error(t, err, "storage is omitted for inline reports")
	})

	mt.Run("invalid report is not inserted", func(mt *mtest.T) {
		s := NewMongoReportStore(mt.Coll)
		err := s.Create(context.Background(), &models.Report{PatientID: "p1", Category: "blood"})
		assert.ErrorIs(t, err, models.ErrInvalidReport)
		assert.Nil(t, mt.GetStartedEvent())
	})

	mt.Run("documents decode to exactly one payload", func(mt *mtest.T) {
		s := NewMongoReportStore(mt.Coll)
		now := time.Now().UTC()
		stored := bson.D{
			{Key: "_id", Value: "r2"},
			{Key: "patientId", Value: "p1"},
			{Key: "category", Value: "file"},
			{Key: "storage", Value: bson.D{{Key: "url", Value: "https://cdn/r.pdf"}, {Key: "storageId", Value: "r"}, {Key: "format", Value: "pdf"}, {Key: "bytes", Value: int64(10)}}},
			{Key: "createdAt", Value: primitive.NewDateTimeFromTime(now)},
		}
		inline := bson.D{
			{Key: "_id", Value: "r1"},
			{Key: "patientId", Value: "p1"},
			{Key: "category", Value: "blood"},
			{Key: "inlineData", Value: `{"wbc":5}`},
			{Key: "createdAt", Value: primitive.NewDateTimeFromTime(now.Add(-time.Hour))},
		}
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch, stored, inline))

		reports, err := s.ListByPatient(context.Background(), "p1")
		require.NoError(t, err)
		require.Len(t, reports, 2)

		require.NotNil(t, reports[0].Storage())
		assert.Equal(t, "https://cdn/r.pdf", reports[0].Storage().URL)
		assert.Nil(t, reports[0].InlineData())
		assert.NoError(t, reports[0].Validate())

		assert.Nil(t, reports[1].Storage())
		assert.JSONEq(t, `{"wbc":5}`, string(reports[1].InlineData()))
		assert.NoError(t, reports[1].Validate())
	})
}
