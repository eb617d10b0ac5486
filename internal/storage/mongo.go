package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/example/rocket-deliveries/internal/models"
)

const defaultMongoDatabase = "rocketdeliveries"

var _ Store = (*MongoStore)(nil)

// MongoStore persists documents in the pilots, rides, passengers and
// financings collections, referencing each other by ObjectID.
type MongoStore struct {
	client     *mongo.Client
	pilots     *mongo.Collection
	rides      *mongo.Collection
	passengers *mongo.Collection
	financings *mongo.Collection
}

type pilotDoc struct {
	ID              primitive.ObjectID `bson:"_id,omitempty"`
	Type            string             `bson:"type"`
	FirstName       string             `bson:"firstName,omitempty"`
	LastName        string             `bson:"lastName,omitempty"`
	BusinessName    string             `bson:"businessName,omitempty"`
	Address         string             `bson:"address,omitempty"`
	City            string             `bson:"city,omitempty"`
	State           string             `bson:"state,omitempty"`
	PostalCode      string             `bson:"postalCode,omitempty"`
	Country         string             `bson:"country"`
	Email           string             `bson:"email"`
	Password        string             `bson:"password"`
	StripeAccountID string             `bson:"stripeAccountId,omitempty"`
	StripeVerified  bool               `bson:"stripeVerified"`
	Created         time.Time          `bson:"created"`
}

type rideDoc struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	Pilot          primitive.ObjectID `bson:"pilot"`
	Passenger      primitive.ObjectID `bson:"passenger"`
	Amount         int64              `bson:"amount"`
	Currency       string             `bson:"currency"`
	StripeChargeID string             `bson:"stripeChargeId,omitempty"`
	Created        time.Time          `bson:"created"`
}

type passengerDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	FirstName string             `bson:"firstName"`
	LastName  string             `bson:"lastName"`
	Email     string             `bson:"email"`
	Created   time.Time          `bson:"created"`
}

type financingDoc struct {
	ID                primitive.ObjectID `bson:"_id,omitempty"`
	Pilot             primitive.ObjectID `bson:"pilot"`
	Status            string             `bson:"status"`
	StripeFinancingID string             `bson:"stripeFinancingId,omitempty"`
	Created           time.Time          `bson:"created"`
}

// NewMongoStore connects, pings and ensures indexes. The database name comes
// from the URI path.
func NewMongoStore(ctx context.Context, uri string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(mongoDatabaseName(uri))
	m := &MongoStore{
		client:     client,
		pilots:     db.Collection("pilots"),
		rides:      db.Collection("rides"),
		passengers: db.Collection("passengers"),
		financings: db.Collection("financings"),
	}
	if err := m.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return m, nil
}

func mongoDatabaseName(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return defaultMongoDatabase
	}
	if name := strings.Trim(u.Path, "/"); name != "" {
		return name
	}
	return defaultMongoDatabase
}

func (m *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := m.pilots.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "stripeAccountId", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create pilot indexes: %w", err)
	}
	_, err = m.rides.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "pilot", Value: 1}, {Key: "created", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create ride indexes: %w", err)
	}
	return nil
}

func (m *MongoStore) Ping(ctx context.Context) error { return m.client.Ping(ctx, nil) }

func (m *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func objectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, ErrNotFound
	}
	return oid, nil
}

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return err
}

func toPilotDoc(p *models.Pilot) pilotDoc {
	return pilotDoc{
		Type: string(p.Type), FirstName: p.FirstName, LastName: p.LastName, BusinessName: p.BusinessName,
		Address: p.Address, City: p.City, State: p.State, PostalCode: p.PostalCode, Country: p.Country,
		Email: p.Email, Password: p.PasswordHash, StripeAccountID: p.StripeAccountID,
		StripeVerified: p.StripeVerified, Created: p.Created,
	}
}

func (d pilotDoc) model() *models.Pilot {
	return &models.Pilot{
		ID: d.ID.Hex(), Type: models.PilotType(d.Type), FirstName: d.FirstName, LastName: d.LastName,
		BusinessName: d.BusinessName, Address: d.Address, City: d.City, State: d.State, PostalCode: d.PostalCode,
		Country: d.Country, Email: d.Email, PasswordHash: d.Password, StripeAccountID: d.StripeAccountID,
		StripeVerified: d.StripeVerified, Created: d.Created,
	}
}

func (d passengerDoc) model() *models.Passenger {
	return &models.Passenger{ID: d.ID.Hex(), FirstName: d.FirstName, LastName: d.LastName, Email: d.Email, Created: d.Created}
}

func (d financingDoc) model() *models.Financing {
	return &models.Financing{ID: d.ID.Hex(), PilotID: d.Pilot.Hex(), Status: models.FinancingStatus(d.Status),
		StripeFinancingID: d.StripeFinancingID, Created: d.Created}
}

func (m *MongoStore) CreatePilot(ctx context.Context, p *models.Pilot) error {
	if p.Created.IsZero() {
		p.Created = time.Now().UTC()
	}
	doc := toPilotDoc(p)
	doc.ID = primitive.NewObjectID()
	if _, err := m.pilots.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create pilot: %w", err)
	}
	p.ID = doc.ID.Hex()
	return nil
}

func (m *MongoStore) findPilot(ctx context.Context, filter bson.D) (*models.Pilot, error) {
	var doc pilotDoc
	if err := m.pilots.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, notFound(err)
	}
	return doc.model(), nil
}

func (m *MongoStore) GetPilot(ctx context.Context, id string) (*models.Pilot, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	return m.findPilot(ctx, bson.D{{Key: "_id", Value: oid}})
}

func (m *MongoStore) GetPilotByEmail(ctx context.Context, email string) (*models.Pilot, error) {
	return m.findPilot(ctx, bson.D{{Key: "email", Value: email}})
}

func (m *MongoStore) GetPilotByAccountID(ctx context.Context, accountID string) (*models.Pilot, error) {
	if accountID == "" {
		return nil, ErrNotFound
	}
	return m.findPilot(ctx, bson.D{{Key: "stripeAccountId", Value: accountID}})
}

func (m *MongoStore) UpdatePilot(ctx context.Context, p *models.Pilot) error {
	oid, err := objectID(p.ID)
	if err != nil {
		return err
	}
	set := bson.D{
		{Key: "type", Value: string(p.Type)},
		{Key: "firstName", Value: p.FirstName},
		{Key: "lastName", Value: p.LastName},
		{Key: "businessName", Value: p.BusinessName},
		{Key: "address", Value: p.Address},
		{Key: "city", Value: p.City},
		{Key: "state", Value: p.State},
		{Key: "postalCode", Value: p.PostalCode},
		{Key: "country", Value: p.Country},
		{Key: "password", Value: p.PasswordHash},
		{Key: "stripeAccountId", Value: p.StripeAccountID},
	}
	if p.StripeVerified {
		set = append(set, bson.E{Key: "stripeVerified", Value: true})
	}
	res, err := m.pilots.UpdateOne(ctx, bson.D{{Key: "_id", Value: oid}}, bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return fmt.Errorf("update pilot: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoStore) MarkPilotVerified(ctx context.Context, id string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	res, err := m.pilots.UpdateOne(ctx, bson.D{{Key: "_id", Value: oid}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "stripeVerified", Value: true}}}})
	if err != nil {
		return fmt.Errorf("mark pilot verified: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoStore) CreateRide(ctx context.Context, r *models.Ride) error {
	pilot, err := objectID(r.PilotID)
	if err != nil {
		return fmt.Errorf("create ride: pilot %w", err)
	}
	passenger, err := objectID(r.PassengerID)
	if err != nil {
		return fmt.Errorf("create ride: passenger %w", err)
	}
	doc := rideDoc{ID: primitive.NewObjectID(), Pilot: pilot, Passenger: passenger, Amount: r.Amount,
		Currency: r.Currency, StripeChargeID: r.StripeChargeID, Created: r.Created}
	if _, err := m.rides.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("create ride: %w", err)
	}
	r.ID = doc.ID.Hex()
	return nil
}

func (m *MongoStore) SetRideCharge(ctx context.Context, rideID, chargeID string) error {
	oid, err := objectID(rideID)
	if err != nil {
		return err
	}
	res, err := m.rides.UpdateOne(ctx, bson.D{{Key: "_id", Value: oid}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "stripeChargeId", Value: chargeID}}}})
	if err != nil {
		return fmt.Errorf("set ride charge: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoStore) ListRecentRides(ctx context.Context, pilotID string, since time.Time) ([]*models.Ride, error) {
	pilot, err := objectID(pilotID)
	if err != nil {
		return nil, err
	}
	filter := bson.D{
		{Key: "pilot", Value: pilot},
		{Key: "created", Value: bson.D{{Key: "$gte", Value: since}}},
	}
	cur, err := m.rides.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("list rides: %w", err)
	}
	var docs []rideDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("list rides: %w", err)
	}

	ids := make([]primitive.ObjectID, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.Passenger)
	}
	passengers := make(map[primitive.ObjectID]*models.Passenger, len(ids))
	if len(ids) > 0 {
		pcur, err := m.passengers.Find(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}})
		if err != nil {
			return nil, fmt.Errorf("resolve passengers: %w", err)
		}
		var pdocs []passengerDoc
		if err := pcur.All(ctx, &pdocs); err != nil {
			return nil, fmt.Errorf("resolve passengers: %w", err)
		}
		for _, pd := range pdocs {
			passengers[pd.ID] = pd.model()
		}
	}

	out := make([]*models.Ride, 0, len(docs))
	for _, d := range docs {
		out = append(out, &models.Ride{
			ID: d.ID.Hex(), PilotID: d.Pilot.Hex(), PassengerID: d.Passenger.Hex(), Amount: d.Amount,
			Currency: d.Currency, StripeChargeID: d.StripeChargeID, Created: d.Created,
			Passenger: passengers[d.Passenger],
		})
	}
	return out, nil
}

func (m *MongoStore) CreatePassenger(ctx context.Context, p *models.Passenger) error {
	if p.Created.IsZero() {
		p.Created = time.Now().UTC()
	}
	doc := passengerDoc{ID: primitive.NewObjectID(), FirstName: p.FirstName, LastName: p.LastName, Email: p.Email, Created: p.Created}
	if _, err := m.passengers.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("create passenger: %w", err)
	}
	p.ID = doc.ID.Hex()
	return nil
}

func (m *MongoStore) RandomPassenger(ctx context.Context) (*models.Passenger, error) {
	pipeline := mongo.Pipeline{{{Key: "$sample", Value: bson.D{{Key: "size", Value: 1}}}}}
	cur, err := m.passengers.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("sample passenger: %w", err)
	}
	var docs []passengerDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("sample passenger: %w", err)
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return docs[0].model(), nil
}

func (m *MongoStore) ListPassengers(ctx context.Context) ([]*models.Passenger, error) {
	cur, err := m.passengers.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "created", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []passengerDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*models.Passenger, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.model())
	}
	return out, nil
}

func (m *MongoStore) CountPassengers(ctx context.Context) (int64, error) {
	return m.passengers.CountDocuments(ctx, bson.D{})
}

func (m *MongoStore) CreateFinancing(ctx context.Context, f *models.Financing) error {
	pilot, err := objectID(f.PilotID)
	if err != nil {
		return fmt.Errorf("create financing: pilot %w", err)
	}
	if f.Status == "" {
		f.Status = models.FinancingUndelivered
	}
	if f.Created.IsZero() {
		f.Created = time.Now().UTC()
	}
	doc := financingDoc{ID: primitive.NewObjectID(), Pilot: pilot, Status: string(f.Status),
		StripeFinancingID: f.StripeFinancingID, Created: f.Created}
	if _, err := m.financings.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("create financing: %w", err)
	}
	f.ID = doc.ID.Hex()
	return nil
}

func (m *MongoStore) GetFinancing(ctx context.Context, id string) (*models.Financing, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	var doc financingDoc
	if err := m.financings.FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&doc); err != nil {
		return nil, notFound(err)
	}
	return doc.model(), nil
}

func (m *MongoStore) ListFinancings(ctx context.Context, pilotID string) ([]*models.Financing, error) {
	pilot, err := objectID(pilotID)
	if err != nil {
		return nil, err
	}
	cur, err := m.financings.Find(ctx, bson.D{{Key: "pilot", Value: pilot}},
		options.Find().SetSort(bson.D{{Key: "created", Value: -1}}))
	if err != nil {
		return nil, err
	}
	var docs []financingDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*models.Financing, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.model())
	}
	return out, nil
}

func (m *MongoStore) UpdateFinancingStatus(ctx context.Context, id string, from, to models.FinancingStatus) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	res, err := m.financings.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: oid}, {Key: "status", Value: string(from)}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "status", Value: string(to)}}}})
	if err != nil {
		return fmt.Errorf("update financing: %w", err)
	}
	if res.MatchedCount == 0 {
		if _, err := m.GetFinancing(ctx, id); err != nil {
			return err
		}
		return ErrConflict
	}
	return nil
}
