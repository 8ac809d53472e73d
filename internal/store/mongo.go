package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"hiroai/roomsync/internal/models"
)

type mongoDocument struct {
	RoomID    string              `bson:"_id"`
	Doc       models.RoomDocument `bson:"doc"`
	Stamps    FieldStamps         `bson:"stamps"`
	Version   int64               `bson:"version"`
	Status    string              `bson:"status"`
	DocMillis int64               `bson:"docMillis"`
}

type mongoHistory struct {
	RoomID              string `bson:"roomId"`
	Seq                 int64  `bson:"seq"`
	models.HistoryEntry `bson:",inline"`
}

type mongoSent struct {
	RoomID              string `bson:"roomId"`
	Seq                 int64  `bson:"seq"`
	models.SentQuestion `bson:",inline"`
}

type mongoTimeline struct {
	RoomID                       string `bson:"roomId"`
	Seq                          int64  `bson:"seq"`
	models.QuestionTimelineEntry `bson:",inline"`
}

// MongoBackend stores each room document as one Mongo document and the
// sub-collections as per-entry documents keyed by roomId.
type MongoBackend struct {
	client   *mongo.Client
	docs     *mongo.Collection
	history  *mongo.Collection
	sent     *mongo.Collection
	timeline *mongo.Collection
	counters *mongo.Collection
}

// NewMongoBackend connects to uri and ensures the indexes.
func NewMongoBackend(ctx context.Context, uri, dbName string) (*MongoBackend, error) {
	if uri == "" {
		return nil, errors.New("MONGO_URI is empty")
	}
	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(cctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	db := client.Database(dbName)
	m := &MongoBackend{
		client:   client,
		docs:     db.Collection("room_documents"),
		history:  db.Collection("room_history"),
		sent:     db.Collection("room_sent_questions"),
		timeline: db.Collection("room_timeline"),
		counters: db.Collection("counters"),
	}
	for _, col := range []*mongo.Collection{m.history, m.sent, m.timeline} {
		_, err := col.Indexes().CreateMany(cctx, []mongo.IndexModel{
			{Keys: bson.D{{Key: "roomId", Value: 1}, {Key: "timestamp", Value: -1}, {Key: "seq", Value: -1}}},
			{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		})
		if err != nil {
			return nil, fmt.Errorf("create indexes on %s: %w", col.Name(), err)
		}
	}
	_, _ = m.docs.Indexes().CreateOne(cctx, mongo.IndexModel{
		Keys: bson.D{{Key: "status", Value: 1}, {Key: "docMillis", Value: 1}},
	})
	return m, nil
}

func (m *MongoBackend) Load(ctx context.Context, roomID string) (Record, error) {
	var d mongoDocument
	err := m.docs.FindOne(ctx, bson.M{"_id": roomID}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return Record{Doc: d.Doc, Stamps: d.Stamps, Version: d.Version}, nil
}

func (m *MongoBackend) Save(ctx context.Context, roomID string, rec Record) error {
	d := mongoDocument{
		RoomID:    roomID,
		Doc:       rec.Doc,
		Stamps:    rec.Stamps,
		Version:   rec.Version + 1,
		Status:    string(rec.Doc.Status),
		DocMillis: rec.Doc.Timestamp,
	}
	if rec.Version == 0 {
		_, err := m.docs.InsertOne(ctx, d)
		if mongo.IsDuplicateKeyError(err) {
			return ErrConflict
		}
		return err
	}
	res, err := m.docs.ReplaceOne(ctx, bson.M{"_id": roomID, "version": rec.Version}, d)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrConflict
	}
	return nil
}

func (m *MongoBackend) DeleteRoom(ctx context.Context, roomID string) error {
	for _, col := range []*mongo.Collection{m.history, m.sent, m.timeline} {
		if _, err := col.DeleteMany(ctx, bson.M{"roomId": roomID}); err != nil {
			return err
		}
	}
	_, err := m.docs.DeleteOne(ctx, bson.M{"_id": roomID})
	return err
}

func (m *MongoBackend) CompletedBefore(ctx context.Context, before int64) ([]string, error) {
	cur, err := m.docs.Find(ctx,
		bson.M{"status": string(models.StatusCompleted), "docMillis": bson.M{"$lt": before}},
		options.Find().SetProjection(bson.M{"_id": 1}).SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var ids []string
	for cur.Next(ctx) {
		var d struct {
			ID string `bson:"_id"`
		}
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		ids = append(ids, d.ID)
	}
	return ids, cur.Err()
}

func (m *MongoBackend) nextSeq(ctx context.Context) (int64, error) {
	var out struct {
		Value int64 `bson:"value"`
	}
	err := m.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": "entries"},
		bson.M{"$inc": bson.M{"value": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&out)
	return out.Value, err
}

func (m *MongoBackend) InsertHistory(ctx context.Context, roomID string, e models.HistoryEntry) error {
	seq, err := m.nextSeq(ctx)
	if err != nil {
		return err
	}
	_, err = m.history.InsertOne(ctx, mongoHistory{RoomID: roomID, Seq: seq, HistoryEntry: e})
	return err
}

func (m *MongoBackend) ListHistory(ctx context.Context, roomID string) ([]models.HistoryEntry, error) {
	var rows []mongoHistory
	if err := m.findNewestFirst(ctx, m.history, roomID, &rows); err != nil {
		return nil, err
	}
	out := make([]models.HistoryEntry, len(rows))
	for i, r := range rows {
		out[i] = r.HistoryEntry
	}
	return out, nil
}

func (m *MongoBackend) UpdateHistory(ctx context.Context, roomID, entryID string, a models.HistoryAttachment) error {
	res, err := m.history.UpdateOne(ctx, bson.M{"roomId": roomID, "id": entryID}, bson.M{"$set": attachmentSet(a)})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func attachmentSet(a models.HistoryAttachment) bson.M {
	set := bson.M{}
	if a.CandidateCode != nil {
		set["candidateCode"] = *a.CandidateCode
	}
	if a.AIFeedback != nil {
		set["aiFeedback"] = a.AIFeedback
	}
	return set
}

func (m *MongoBackend) InsertSent(ctx context.Context, roomID string, q models.SentQuestion) error {
	seq, err := m.nextSeq(ctx)
	if err != nil {
		return err
	}
	_, err = m.sent.InsertOne(ctx, mongoSent{RoomID: roomID, Seq: seq, SentQuestion: q})
	return err
}

func (m *MongoBackend) ListSent(ctx context.Context, roomID string) ([]models.SentQuestion, error) {
	var rows []mongoSent
	if err := m.findNewestFirst(ctx, m.sent, roomID, &rows); err != nil {
		return nil, err
	}
	out := make([]models.SentQuestion, len(rows))
	for i, r := range rows {
		out[i] = r.SentQuestion
	}
	return out, nil
}

func (m *MongoBackend) InsertTimeline(ctx context.Context, roomID string, e models.QuestionTimelineEntry) error {
	seq, err := m.nextSeq(ctx)
	if err != nil {
		return err
	}
	_, err = m.timeline.InsertOne(ctx, mongoTimeline{RoomID: roomID, Seq: seq, QuestionTimelineEntry: e})
	return err
}

func (m *MongoBackend) ListTimeline(ctx context.Context, roomID string) ([]models.QuestionTimelineEntry, error) {
	var rows []mongoTimeline
	if err := m.findNewestFirst(ctx, m.timeline, roomID, &rows); err != nil {
		return nil, err
	}
	out := make([]models.QuestionTimelineEntry, len(rows))
	for i, r := range rows {
		out[i] = r.QuestionTimelineEntry
	}
	return out, nil
}

// TransitionTimeline filters on the current status so the update is a
// compare-and-set.
func (m *MongoBackend) TransitionTimeline(ctx context.Context, roomID, entryID string, t models.TimelineTransition) (models.QuestionTimelineEntry, error) {
	var row mongoTimeline
	err := m.timeline.FindOneAndUpdate(ctx,
		bson.M{"roomId": roomID, "id": entryID, "status": string(t.From)},
		bson.M{"$set": transitionSet(t)},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&row)
	if errors.Is(err, mongo.ErrNoDocuments) {
		n, cerr := m.timeline.CountDocuments(ctx, bson.M{"roomId": roomID, "id": entryID})
		if cerr != nil {
			return models.QuestionTimelineEntry{}, cerr
		}
		if n == 0 {
			return models.QuestionTimelineEntry{}, ErrNotFound
		}
		return models.QuestionTimelineEntry{}, ErrConflict
	}
	if err != nil {
		return models.QuestionTimelineEntry{}, err
	}
	return row.QuestionTimelineEntry, nil
}

// transitionSet writes the status, the timestamp belonging to the target
// status, and code or analysis where relevant.
func transitionSet(t models.TimelineTransition) bson.M {
	set := bson.M{"status": string(t.To)}
	switch t.To {
	case models.QuestionSent:
		set["sentTimestamp"] = t.At
	case models.QuestionAnswered:
		set["answeredTimestamp"] = t.At
		if t.Code != nil {
			set["code"] = *t.Code
		}
	case models.QuestionEvaluated:
		set["evaluatedTimestamp"] = t.At
		if t.Analysis != nil {
			set["analysis"] = t.Analysis
		}
	}
	return set
}

func (m *MongoBackend) findNewestFirst(ctx context.Context, col *mongo.Collection, roomID string, out interface{}) error {
	cur, err := col.Find(ctx, bson.M{"roomId": roomID},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "seq", Value: -1}}))
	if err != nil {
		return err
	}
	return cur.All(ctx, out)
}

func (m *MongoBackend) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

func (m *MongoBackend) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
