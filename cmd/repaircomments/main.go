package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/noah-isme/social-go-api/internal/config"
	"github.com/noah-isme/social-go-api/internal/database"
	"github.com/noah-isme/social-go-api/internal/models"
	"github.com/noah-isme/social-go-api/internal/repository"
)

// repaircomments backfills missing like sets, author names, timestamps and
// ids on stored posts and their comment trees.
func main() {
	dryRun := flag.Bool("dry-run", false, "report broken posts without writing")
	timeout := flag.Duration("timeout", 10*time.Minute, "overall deadline")
	flag.Parse()

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("job", "repaircomments").Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client, db, err := database.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to mongo")
	}
	defer func() {
		_ = client.Disconnect(context.Background())
	}()

	scanned, repaired, err := repair(ctx, db.Collection(repository.PostsCollection), repository.NewPostRepository(db), *dryRun, logger)
	if err != nil {
		logger.Fatal().Err(err).Int("scanned", scanned).Int("repaired", repaired).Msg("repair aborted")
	}
	logger.Info().Int("scanned", scanned).Int("repaired", repaired).Bool("dry_run", *dryRun).Msg("repair finished")
}

type cursorSource interface {
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
}

func repair(ctx context.Context, source cursorSource, posts repository.PostRepository, dryRun bool, logger zerolog.Logger) (int, int, error) {
	cursor, err := source.Find(ctx, bson.M{})
	if err != nil {
		return 0, 0, err
	}
	defer cursor.Close(ctx)

	now := time.Now().UTC()
	scanned, repaired := 0, 0
	for cursor.Next(ctx) {
		var post models.Post
		if err := cursor.Decode(&post); err != nil {
			logger.Warn().Err(err).Msg("skipping undecodable post")
			continue
		}
		scanned++

		if !post.Normalize(now) {
			continue
		}
		repaired++
		logger.Info().Str("post_id", post.ID.Hex()).Msg("post needs repair")
		if dryRun {
			continue
		}
		if err := posts.Save(ctx, &post); err != nil {
			return scanned, repaired, err
		}
	}
	return scanned, repaired, cursor.Err()
}
