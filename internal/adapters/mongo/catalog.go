package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rifalabs/raffle-engine/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// CatalogRepository owns the raffle's presentation metadata. The engine
// never reads these fields to decide anything; they exist for the
// surrounding application.
type CatalogRepository struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewCatalogRepository(db *mongo.Database, logger observability.Logger) *CatalogRepository {
	return &CatalogRepository{
		coll:   db.Collection("raffles"),
		logger: logger,
	}
}

type RaffleDoc struct {
	ID          uuid.UUID `bson:"_id"`
	Title       string    `bson:"title"`
	Description string    `bson:"description"`
	Prize       string    `bson:"prize"`
	ImageURL    string    `bson:"image_url,omitempty"`
	CreatedAt   time.Time `bson:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

func (c *CatalogRepository) GetRaffle(ctx context.Context, id uuid.UUID) (*RaffleDoc, error) {
	var doc RaffleDoc
	err := c.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		c.logger.WithError(err).Error("failed to get raffle metadata")
		return nil, err
	}
	return &doc, nil
}

func (c *CatalogRepository) CreateRaffle(ctx context.Context, doc RaffleDoc) error {
	doc.CreatedAt = time.Now()
	doc.UpdatedAt = doc.CreatedAt
	_, err := c.coll.InsertOne(ctx, doc)
	if err != nil {
		c.logger.WithError(err).Error("failed to create raffle metadata")
		return err
	}
	return nil
}
