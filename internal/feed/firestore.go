package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/good-yellow-bee/alertboard/internal/metrics"
	"github.com/good-yellow-bee/alertboard/internal/models"
)

const firestoreBackend = "firestore"

var _ Backend = (*Firestore)(nil)

// Firestore is the hosted Collection backed by Cloud Firestore.
// Ordering, server timestamps and fan-out are done by Firestore itself.
type Firestore struct {
	client *firestore.Client
	logger *zap.Logger
}

// DialFirestore connects to the Firestore database of projectID.
// FIRESTORE_EMULATOR_HOST is honored by the client library.
func DialFirestore(ctx context.Context, projectID string, opts ...option.ClientOption) (*firestore.Client, error) {
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	return client, nil
}

// NewFirestore wraps a connected client.
func NewFirestore(client *firestore.Client, logger *zap.Logger) *Firestore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Firestore{client: client, logger: logger}
}

// Subscribe maps q onto a Firestore snapshot listener.
func (f *Firestore) Subscribe(ctx context.Context, q Query) (Subscription, error) {
	if q.Collection == "" || q.OrderBy == "" {
		return nil, fmt.Errorf("%w: collection and order field are required", ErrUnsupportedQuery)
	}

	fq := f.query(q)
	subCtx, cancel := context.WithCancel(ctx)
	it := fq.Snapshots(subCtx)
	s := NewStream(firestoreBackend, cancel)

	go func() {
		defer it.Stop()
		for {
			qs, err := it.Next()
			if err != nil {
				if isListenEnd(subCtx, err) {
					s.finish(nil)
				} else {
					f.logger.Error("firestore listen failed", zap.String("collection", q.Collection), zap.Error(err))
					s.Fail(err)
				}
				return
			}

			docs, err := qs.Documents.GetAll()
			if err != nil {
				f.logger.Error("firestore read snapshot", zap.Error(err))
				s.Fail(err)
				return
			}

			if !s.Publish(Snapshot{Alerts: alertsFromDocs(docs), ReadAt: qs.ReadTime}) {
				return
			}
		}
	}()

	return s, nil
}

// Append adds a document whose timestamp Firestore fills in on commit.
func (f *Firestore) Append(ctx context.Context, collection string, na NewAlert) error {
	_, _, err := f.client.Collection(collection).Add(ctx, map[string]any{
		"text":         na.Text,
		FieldTimestamp: firestore.ServerTimestamp,
		"email":        na.Email,
	})
	if err != nil {
		metrics.FeedAppendsTotal.WithLabelValues(firestoreBackend, "error").Inc()
		return fmt.Errorf("firestore add: %w", err)
	}
	metrics.FeedAppendsTotal.WithLabelValues(firestoreBackend, "ok").Inc()
	return nil
}

// Current reads the result set of q once.
func (f *Firestore) Current(ctx context.Context, q Query) (Snapshot, error) {
	if q.Collection == "" || q.OrderBy == "" {
		return Snapshot{}, fmt.Errorf("%w: collection and order field are required", ErrUnsupportedQuery)
	}
	docs, err := f.query(q).Documents(ctx).GetAll()
	if err != nil {
		return Snapshot{}, fmt.Errorf("firestore read: %w", err)
	}
	return Snapshot{Alerts: alertsFromDocs(docs), ReadAt: time.Now()}, nil
}

// Delete removes the alert document id from the alerts collection.
func (f *Firestore) Delete(ctx context.Context, id string) error {
	_, err := f.client.Collection(CollectionAlerts).Doc(id).Delete(ctx, firestore.Exists)
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("firestore delete: %w", err)
	}
	f.logger.Info("alert deleted", zap.String("id", id))
	return nil
}

// Close closes the underlying client.
func (f *Firestore) Close() error {
	return f.client.Close()
}

func (f *Firestore) query(q Query) firestore.Query {
	dir := firestore.Asc
	if q.Desc {
		dir = firestore.Desc
	}
	fq := f.client.Collection(q.Collection).OrderBy(q.OrderBy, dir)
	if q.Limit > 0 {
		fq = fq.Limit(q.Limit)
	}
	return fq
}

func alertsFromDocs(docs []*firestore.DocumentSnapshot) []*models.Alert {
	alerts := make([]*models.Alert, 0, len(docs))
	for _, doc := range docs {
		alerts = append(alerts, alertFromData(doc.Ref.ID, doc.Data()))
	}
	return alerts
}

func isListenEnd(ctx context.Context, err error) bool {
	if errors.Is(err, iterator.Done) || ctx.Err() != nil {
		return true
	}
	return status.Code(err) == codes.Canceled
}

// alertFromData maps a stored document onto an Alert. A timestamp that the
// server has not yet filled in maps to nil.
func alertFromData(id string, data map[string]any) *models.Alert {
	a := &models.Alert{ID: id}
	a.Text, _ = data["text"].(string)
	a.Email, _ = data["email"].(string)
	if ts, ok := data[FieldTimestamp].(time.Time); ok && !ts.IsZero() {
		ts = ts.UTC()
		a.Timestamp = &ts
	}
	return a
}
