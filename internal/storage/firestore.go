package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/eugenenazirov/stock-packs/internal/inventory"
)

// DefaultFirestoreCollection is the collection the dashboard has always used.
const DefaultFirestoreCollection = "v"

// Document field names as written by the existing dashboard.
const (
	fieldSize        = "talle"
	fieldColor       = "color"
	fieldQuantity    = "cantidad"
	fieldCategory    = "tipo"
	fieldCollarStyle = "cuello"
)

// Defaults applied to documents missing a field.
const (
	defaultDocCategory = "Niño"
)

// FirestoreStorage reads and writes inventory documents in a Firestore
// collection and streams snapshots through a real-time listener.
type FirestoreStorage struct {
	client     *firestore.Client
	collection string
}

var (
	_ Storage = (*FirestoreStorage)(nil)
	_ Watcher = (*FirestoreStorage)(nil)
)

// FirestoreConfig configures the Firestore backend.
type FirestoreConfig struct {
	ProjectID       string
	Collection      string
	CredentialsFile string
}

// OpenFirestore creates the Firestore client. Credentials come from
// CredentialsFile when set, otherwise from the environment
// (GOOGLE_APPLICATION_CREDENTIALS or FIRESTORE_EMULATOR_HOST).
func OpenFirestore(ctx context.Context, cfg FirestoreConfig) (*FirestoreStorage, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, fmt.Errorf("firestore project id is required")
	}
	collection := strings.TrimSpace(cfg.Collection)
	if collection == "" {
		collection = DefaultFirestoreCollection
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore.NewClient failed (project=%s): %w", cfg.ProjectID, err)
	}
	return &FirestoreStorage{client: client, collection: collection}, nil
}

func (s *FirestoreStorage) col() *firestore.CollectionRef {
	return s.client.Collection(s.collection)
}

func (s *FirestoreStorage) List(ctx context.Context) ([]inventory.Record, error) {
	docs, err := s.col().Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return recordsFromDocs(docs), nil
}

func (s *FirestoreStorage) Get(ctx context.Context, id string) (inventory.Record, error) {
	doc, err := s.col().Doc(id).Get(ctx)
	if err != nil {
		if isFirestoreNotFound(err) {
			return inventory.Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return inventory.Record{}, fmt.Errorf("failed to get document: %w", err)
	}
	return recordFromData(doc.Ref.ID, doc.Data()), nil
}

func (s *FirestoreStorage) Create(ctx context.Context, rec inventory.Record) (inventory.Record, error) {
	if err := rec.Validate(); err != nil {
		return inventory.Record{}, err
	}

	if strings.TrimSpace(rec.ID) != "" {
		if _, err := s.col().Doc(rec.ID).Create(ctx, dataFromRecord(rec)); err != nil {
			if status.Code(err) == codes.AlreadyExists {
				return inventory.Record{}, fmt.Errorf("%w: duplicate id %s", inventory.ErrInvalidRecord, rec.ID)
			}
			return inventory.Record{}, fmt.Errorf("failed to create document: %w", err)
		}
		return rec, nil
	}

	ref, _, err := s.col().Add(ctx, dataFromRecord(rec))
	if err != nil {
		return inventory.Record{}, fmt.Errorf("failed to add document: %w", err)
	}
	rec.ID = ref.ID
	return rec, nil
}

func (s *FirestoreStorage) Update(ctx context.Context, rec inventory.Record) (inventory.Record, error) {
	if err := rec.Validate(); err != nil {
		return inventory.Record{}, err
	}

	data := dataFromRecord(rec)
	updates := make([]firestore.Update, 0, len(data))
	for path, value := range data {
		updates = append(updates, firestore.Update{Path: path, Value: value})
	}
	if _, err := s.col().Doc(rec.ID).Update(ctx, updates); err != nil {
		if isFirestoreNotFound(err) {
			return inventory.Record{}, fmt.Errorf("%w: %s", ErrNotFound, rec.ID)
		}
		return inventory.Record{}, fmt.Errorf("failed to update document: %w", err)
	}
	return rec, nil
}

func (s *FirestoreStorage) Delete(ctx context.Context, id string) error {
	if _, err := s.col().Doc(id).Delete(ctx, firestore.Exists); err != nil {
		if isFirestoreNotFound(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

func (s *FirestoreStorage) SetQuantity(ctx context.Context, id string, quantity int) error {
	if quantity < 0 {
		return ErrNegativeQuantity
	}
	_, err := s.col().Doc(id).Update(ctx, []firestore.Update{{Path: fieldQuantity, Value: quantity}})
	if err != nil {
		if isFirestoreNotFound(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("failed to set quantity: %w", err)
	}
	return nil
}

// SetQuantities applies all updates in one Firestore transaction.
func (s *FirestoreStorage) SetQuantities(ctx context.Context, updates []inventory.QuantityUpdate) error {
	for _, u := range updates {
		if u.Quantity < 0 {
			return ErrNegativeQuantity
		}
	}

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		for _, u := range updates {
			if err := tx.Update(s.col().Doc(u.ID), []firestore.Update{{Path: fieldQuantity, Value: u.Quantity}}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if isFirestoreNotFound(err) {
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		}
		return fmt.Errorf("failed to set quantities: %w", err)
	}
	return nil
}

// AdjustQuantity reads and writes the quantity inside a transaction so
// concurrent adjustments do not lose updates.
func (s *FirestoreStorage) AdjustQuantity(ctx context.Context, id string, delta int) (inventory.Record, error) {
	var rec inventory.Record
	ref := s.col().Doc(id)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			return err
		}
		rec = recordFromData(doc.Ref.ID, doc.Data())
		rec.Quantity = inventory.ClampQuantity(rec.Quantity, delta)
		return tx.Update(ref, []firestore.Update{{Path: fieldQuantity, Value: rec.Quantity}})
	})
	if err != nil {
		if isFirestoreNotFound(err) {
			return inventory.Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return inventory.Record{}, fmt.Errorf("failed to adjust quantity: %w", err)
	}
	return rec, nil
}

func (s *FirestoreStorage) Close() error {
	return s.client.Close()
}

// Watch listens to the collection and publishes the full document set on
// every change.
func (s *FirestoreStorage) Watch(ctx context.Context, publish func([]inventory.Record)) error {
	it := s.col().Snapshots(ctx)
	defer it.Stop()

	for {
		snap, err := it.Next()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, iterator.Done) || status.Code(err) == codes.Canceled {
				return nil
			}
			return fmt.Errorf("firestore listener: %w", err)
		}

		docs, err := snap.Documents.GetAll()
		if err != nil {
			return fmt.Errorf("firestore snapshot documents: %w", err)
		}
		publish(recordsFromDocs(docs))
	}
}

func recordsFromDocs(docs []*firestore.DocumentSnapshot) []inventory.Record {
	records := make([]inventory.Record, 0, len(docs))
	for _, doc := range docs {
		if doc == nil || doc.Ref == nil {
			continue
		}
		records = append(records, recordFromData(doc.Ref.ID, doc.Data()))
	}
	inventory.Sort(records)
	return records
}

// recordFromData maps a dashboard document onto a record, applying the same
// fallbacks the dashboard uses for missing fields.
func recordFromData(id string, data map[string]any) inventory.Record {
	rec := inventory.Record{
		ID:          id,
		Size:        stringField(data, fieldSize),
		Color:       stringField(data, fieldColor),
		Quantity:    max(0, intField(data, fieldQuantity)),
		Category:    inventory.CanonicalLabel(inventory.Categories, stringField(data, fieldCategory)),
		CollarStyle: inventory.CanonicalLabel(inventory.CollarStyles, stringField(data, fieldCollarStyle)),
	}
	if rec.Category == "" {
		rec.Category = defaultDocCategory
	}
	if rec.CollarStyle == "" {
		rec.CollarStyle = inventory.DefaultCollarStyle
	}
	return rec
}

func dataFromRecord(rec inventory.Record) map[string]any {
	return map[string]any{
		fieldSize:        rec.Size,
		fieldColor:       rec.Color,
		fieldQuantity:    rec.Quantity,
		fieldCategory:    rec.Category,
		fieldCollarStyle: rec.CollarStyle,
	}
}

func stringField(data map[string]any, key string) string {
	switch v := data[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func intField(data map[string]any, key string) int {
	switch v := data[key].(type) {
	case int64:
		return int(v)
	case int:
		return v
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0
		}
		return int(v)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// isFirestoreNotFound checks Firestore NotFound via the gRPC status code.
func isFirestoreNotFound(err error) bool {
	if err == nil {
		return false
	}
	return status.Code(err) == codes.NotFound
}
