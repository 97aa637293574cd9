// Package mongodb implements MongoDB adapters for the application.
package mongodb

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"time"

	"mailsync_server/core/port/out"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// =============================================================================
// MongoDB Message Body Adapter
// =============================================================================

const (
	collectionMessageBodies = "message_bodies"

	// Compression threshold - only compress if content is larger than this
	compressionThreshold = 1024 // 1KB

	bodyTTLDays = 90
)

// BodyAdapter implements out.MessageBodyStore using MongoDB. Bodies are bulky
// and replaceable (a resync restores them), so they live in the document store
// with a TTL instead of the relational schema.
type BodyAdapter struct {
	db         *mongo.Database
	collection *mongo.Collection
}

func NewBodyAdapter(db *mongo.Database) *BodyAdapter {
	collection := db.Collection(collectionMessageBodies)
	return &BodyAdapter{
		db:         db,
		collection: collection,
	}
}

// EnsureIndexes creates necessary indexes for the collection.
func (a *BodyAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "message_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "account_id", Value: 1}},
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0), // TTL index
		},
	}

	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// =============================================================================
// Document Model
// =============================================================================

type bodyDocument struct {
	MessageID  int64  `bson:"message_id"`
	AccountID  int64  `bson:"account_id"`
	ExternalID string `bson:"external_id"`

	// Content (potentially compressed)
	HTML         []byte `bson:"html"`
	Text         []byte `bson:"text"`
	IsCompressed bool   `bson:"is_compressed"`

	OriginalSize   int64 `bson:"original_size"`
	CompressedSize int64 `bson:"compressed_size"`

	Embedding []float32 `bson:"embedding,omitempty"`

	SavedAt   time.Time `bson:"saved_at"`
	ExpiresAt time.Time `bson:"expires_at"`
}

// =============================================================================
// Operations
// =============================================================================

// Save upserts a message body keyed by message ID.
func (a *BodyAdapter) Save(ctx context.Context, body *out.MessageBody) error {
	doc, err := a.toDocument(body)
	if err != nil {
		return fmt.Errorf("failed to convert body to document: %w", err)
	}

	opts := options.Replace().SetUpsert(true)
	filter := bson.M{"message_id": body.MessageID}

	_, err = a.collection.ReplaceOne(ctx, filter, doc, opts)
	if err != nil {
		return fmt.Errorf("failed to save message body: %w", err)
	}

	return nil
}

// Get retrieves a message body. Returns nil when the body was never stored or
// has expired.
func (a *BodyAdapter) Get(ctx context.Context, messageID int64) (*out.MessageBody, error) {
	var doc bodyDocument
	filter := bson.M{"message_id": messageID}

	err := a.collection.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get message body: %w", err)
	}

	return a.toBody(&doc)
}

// SaveEmbedding stores the embedding vector on the body document. The vector
// survives body TTL expiry only as long as the document does, which is fine:
// a resync repopulates both.
//
// Upsert: envelope-only messages never got a body document, but they still get
// embedded from subject and snippet. The vector must land somewhere before the
// message is marked embedded.
func (a *BodyAdapter) SaveEmbedding(ctx context.Context, messageID int64, vector []float32) error {
	now := time.Now()
	filter := bson.M{"message_id": messageID}
	update := bson.M{
		"$set": bson.M{"embedding": vector},
		"$setOnInsert": bson.M{
			"saved_at":   now,
			"expires_at": now.AddDate(0, 0, bodyTTLDays),
		},
	}

	opts := options.Update().SetUpsert(true)
	_, err := a.collection.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return fmt.Errorf("failed to save embedding: %w", err)
	}

	return nil
}

// DeleteByAccount removes all bodies for a disconnected account.
func (a *BodyAdapter) DeleteByAccount(ctx context.Context, accountID int64) (int64, error) {
	filter := bson.M{"account_id": accountID}

	result, err := a.collection.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to delete bodies by account: %w", err)
	}

	return result.DeletedCount, nil
}

// =============================================================================
// Conversion Helpers
// =============================================================================

func (a *BodyAdapter) toDocument(body *out.MessageBody) (*bodyDocument, error) {
	htmlBytes := []byte(body.HTML)
	textBytes := []byte(body.Text)
	originalSize := int64(len(htmlBytes) + len(textBytes))

	isCompressed := false
	compressedSize := originalSize

	// Compress if content is large enough
	if originalSize > compressionThreshold {
		compressedHTML, err := compress(htmlBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to compress HTML: %w", err)
		}
		compressedText, err := compress(textBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to compress text: %w", err)
		}

		htmlBytes = compressedHTML
		textBytes = compressedText
		isCompressed = true
		compressedSize = int64(len(htmlBytes) + len(textBytes))
	}

	now := time.Now()
	return &bodyDocument{
		MessageID:      body.MessageID,
		AccountID:      body.AccountID,
		ExternalID:     body.ExternalID,
		HTML:           htmlBytes,
		Text:           textBytes,
		IsCompressed:   isCompressed,
		OriginalSize:   originalSize,
		CompressedSize: compressedSize,
		SavedAt:        now,
		ExpiresAt:      now.AddDate(0, 0, bodyTTLDays),
	}, nil
}

func (a *BodyAdapter) toBody(doc *bodyDocument) (*out.MessageBody, error) {
	htmlBytes := doc.HTML
	textBytes := doc.Text

	// Decompress if needed
	if doc.IsCompressed {
		var err error
		htmlBytes, err = decompress(doc.HTML)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress HTML: %w", err)
		}
		textBytes, err = decompress(doc.Text)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress text: %w", err)
		}
	}

	return &out.MessageBody{
		MessageID:  doc.MessageID,
		AccountID:  doc.AccountID,
		ExternalID: doc.ExternalID,
		HTML:       string(htmlBytes),
		Text:       string(textBytes),
	}, nil
}

// =============================================================================
// Compression Helpers
// =============================================================================

func compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}

	var buf bytes.Buffer
	writer := gzip.NewWriter(&buf)

	if _, err := writer.Write(data); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}

	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	return io.ReadAll(reader)
}

// =============================================================================
// Interface Compliance
// =============================================================================

var _ out.MessageBodyStore = (*BodyAdapter)(nil)
var _ out.EmbeddingStore = (*BodyAdapter)(nil)
