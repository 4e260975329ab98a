package mongostore

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hackgods/clinic-appointments/internal/domain"
)

// EnsureIndexes creates the unique name indexes and the appointment lookup
// indexes.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	unique := options.Index().SetUnique(true)
	specs := map[string][]mongo.IndexModel{
		practitionersCollection: {
			{Keys: bson.D{{Key: "name", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "specialty", Value: 1}}},
		},
		patientsCollection: {
			{Keys: bson.D{{Key: "name", Value: 1}}, Options: unique},
		},
		appointmentsCollection: {
			{Keys: bson.D{{Key: "patient_id", Value: 1}, {Key: "state", Value: 1}}},
			{Keys: bson.D{{Key: "practitioner_id", Value: 1}, {Key: "state", Value: 1}}},
		},
	}
	for coll, models := range specs {
		if _, err := db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create %s indexes: %w", coll, err)
		}
	}
	return nil
}

func containsFold(substr string) bson.M {
	return bson.M{"$regex": regexp.QuoteMeta(substr), "$options": "i"}
}

// replaceVersioned swaps the stored document for doc only if the stored
// version still equals version.
func replaceVersioned(ctx context.Context, coll *mongo.Collection, id string, version int64, doc any) (bool, error) {
	res, err := coll.ReplaceOne(ctx, bson.M{"_id": id, "version": version}, doc)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

func decodeAll[D any, T any](ctx context.Context, cursor *mongo.Cursor, convert func(D) (T, error)) ([]T, error) {
	defer cursor.Close(ctx)
	out := []T{}
	for cursor.Next(ctx) {
		var d D
		if err := cursor.Decode(&d); err != nil {
			return nil, fmt.Errorf("failed to decode document: %w", err)
		}
		v, err := convert(d)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type PractitionerStore struct {
	coll *mongo.Collection
}

var _ domain.PractitionerStore = (*PractitionerStore)(nil)

func NewPractitionerStore(db *mongo.Database) *PractitionerStore {
	return &PractitionerStore{coll: db.Collection(practitionersCollection)}
}

func (s *PractitionerStore) findOne(ctx context.Context, filter bson.M) (*domain.Practitioner, error) {
	var d practitionerDoc
	if err := s.coll.FindOne(ctx, filter).Decode(&d); err != nil {
		return nil, notFound(err, domain.ErrPractitionerNotFound)
	}
	return fromPractitionerDoc(d)
}

func (s *PractitionerStore) find(ctx context.Context, filter bson.M) ([]*domain.Practitioner, error) {
	cursor, err := s.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to find practitioners: %w", err)
	}
	return decodeAll(ctx, cursor, fromPractitionerDoc)
}

func (s *PractitionerStore) Get(ctx context.Context, id string) (*domain.Practitioner, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *PractitionerStore) FindByName(ctx context.Context, name string) (*domain.Practitioner, error) {
	return s.findOne(ctx, bson.M{"name": name})
}

func (s *PractitionerStore) ExistsByName(ctx context.Context, name string) (bool, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{"name": name}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count practitioners by name: %w", err)
	}
	return n > 0, nil
}

func (s *PractitionerStore) FindBySpecialty(ctx context.Context, substr string) ([]*domain.Practitioner, error) {
	return s.find(ctx, bson.M{"specialty": containsFold(substr)})
}

func (s *PractitionerStore) List(ctx context.Context) ([]*domain.Practitioner, error) {
	return s.find(ctx, bson.M{})
}

func (s *PractitionerStore) Delete(ctx context.Context, id string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete practitioner: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrPractitionerNotFound
	}
	return nil
}

func (s *PractitionerStore) Save(ctx context.Context, p *domain.Practitioner) error {
	doc := toPractitionerDoc(p)
	doc.Version = p.Version + 1

	if p.Version == 0 {
		if _, err := s.coll.InsertOne(ctx, doc); err != nil {
			return writeError(err, "practitioner")
		}
	} else {
		ok, err := replaceVersioned(ctx, s.coll, p.ID, p.Version, doc)
		if err != nil {
			return writeError(err, "practitioner")
		}
		if !ok {
			return domain.ErrVersionConflict
		}
	}
	p.Version = doc.Version
	return nil
}

type PatientStore struct {
	coll *mongo.Collection
}

var _ domain.PatientStore = (*PatientStore)(nil)

func NewPatientStore(db *mongo.Database) *PatientStore {
	return &PatientStore{coll: db.Collection(patientsCollection)}
}

func (s *PatientStore) findOne(ctx context.Context, filter bson.M) (*domain.Patient, error) {
	var d patientDoc
	if err := s.coll.FindOne(ctx, filter).Decode(&d); err != nil {
		return nil, notFound(err, domain.ErrPatientNotFound)
	}
	return fromPatientDoc(d), nil
}

func (s *PatientStore) find(ctx context.Context, filter bson.M) ([]*domain.Patient, error) {
	cursor, err := s.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to find patients: %w", err)
	}
	return decodeAll(ctx, cursor, func(d patientDoc) (*domain.Patient, error) {
		return fromPatientDoc(d), nil
	})
}

func (s *PatientStore) Get(ctx context.Context, id string) (*domain.Patient, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *PatientStore) FindByName(ctx context.Context, name string) (*domain.Patient, error) {
	return s.findOne(ctx, bson.M{"name": name})
}

func (s *PatientStore) ExistsByName(ctx context.Context, name string) (bool, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{"name": name}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count patients by name: %w", err)
	}
	return n > 0, nil
}

func (s *PatientStore) FindByNameContains(ctx context.Context, substr string) ([]*domain.Patient, error) {
	return s.find(ctx, bson.M{"name": containsFold(substr)})
}

func (s *PatientStore) List(ctx context.Context) ([]*domain.Patient, error) {
	return s.find(ctx, bson.M{})
}

func (s *PatientStore) Count(ctx context.Context) (int64, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("count patients: %w", err)
	}
	return n, nil
}

func (s *PatientStore) Delete(ctx context.Context, id string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete patient: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrPatientNotFound
	}
	return nil
}

func (s *PatientStore) Save(ctx context.Context, p *domain.Patient) error {
	doc := toPatientDoc(p)
	doc.Version = p.Version + 1

	if p.Version == 0 {
		if _, err := s.coll.InsertOne(ctx, doc); err != nil {
			return writeError(err, "patient")
		}
	} else {
		ok, err := replaceVersioned(ctx, s.coll, p.ID, p.Version, doc)
		if err != nil {
			return writeError(err, "patient")
		}
		if !ok {
			return domain.ErrVersionConflict
		}
	}
	p.Version = doc.Version
	return nil
}

type AppointmentStore struct {
	coll *mongo.Collection
}

var _ domain.AppointmentStore = (*AppointmentStore)(nil)

func NewAppointmentStore(db *mongo.Database) *AppointmentStore {
	return &AppointmentStore{coll: db.Collection(appointmentsCollection)}
}

func (s *AppointmentStore) Get(ctx context.Context, id string) (*domain.Appointment, error) {
	var d appointmentDoc
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		return nil, notFound(err, domain.ErrAppointmentNotFound)
	}
	return fromAppointmentDoc(d)
}

func (s *AppointmentStore) find(ctx context.Context, filter bson.M) ([]*domain.Appointment, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find appointments: %w", err)
	}
	return decodeAll(ctx, cursor, fromAppointmentDoc)
}

func (s *AppointmentStore) FindAll(ctx context.Context) ([]*domain.Appointment, error) {
	return s.find(ctx, bson.M{})
}

func (s *AppointmentStore) FindByPatient(ctx context.Context, patientID string) ([]*domain.Appointment, error) {
	return s.find(ctx, bson.M{"patient_id": patientID})
}

func (s *AppointmentStore) FindByPractitioner(ctx context.Context, practitionerID string) ([]*domain.Appointment, error) {
	return s.find(ctx, bson.M{"practitioner_id": practitionerID})
}

func (s *AppointmentStore) FindByPractitionerAndState(ctx context.Context, practitionerID string, state domain.State) ([]*domain.Appointment, error) {
	return s.find(ctx, bson.M{"practitioner_id": practitionerID, "state": string(state)})
}

func (s *AppointmentStore) FindByPatientAndState(ctx context.Context, patientID string, state domain.State) ([]*domain.Appointment, error) {
	return s.find(ctx, bson.M{"patient_id": patientID, "state": string(state)})
}

func (s *AppointmentStore) Save(ctx context.Context, a *domain.Appointment) error {
	doc := toAppointmentDoc(a)
	doc.Version = a.Version + 1

	if a.Version == 0 {
		if _, err := s.coll.InsertOne(ctx, doc); err != nil {
			return writeError(err, "appointment")
		}
	} else {
		ok, err := replaceVersioned(ctx, s.coll, a.ID, a.Version, doc)
		if err != nil {
			return writeError(err, "appointment")
		}
		if !ok {
			return domain.ErrVersionConflict
		}
	}
	a.Version = doc.Version
	return nil
}
