package utils

import (
	"context"
	"os"

	gcs "cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"firebase.google.com/go/v4/db"
	"github.com/pkg/errors"
	"google.golang.org/api/option"

	Logger "github.com/Luismorlan/famfeed/utils/log"
)

// FirebaseApp holds the clients of one initialized Firebase project.
type FirebaseApp struct {
	App      *firebase.App
	Auth     *auth.Client
	Database *db.Client
	// Nil when no bucket is configured.
	Bucket *gcs.BucketHandle
}

// InitFirebase initializes the Firebase app with the service account at
// credentialsPath. An empty bucketName skips the storage client.
func InitFirebase(ctx context.Context, credentialsPath, databaseURL, bucketName string) (*FirebaseApp, error) {
	if credentialsPath == "" {
		return nil, errors.New("firebase credentials path not provided")
	}
	if _, err := os.Stat(credentialsPath); os.IsNotExist(err) {
		return nil, errors.Errorf("firebase credentials file not found at %s", credentialsPath)
	}

	opt := option.WithCredentialsFile(credentialsPath)
	app, err := firebase.NewApp(ctx, &firebase.Config{
		DatabaseURL:   databaseURL,
		StorageBucket: bucketName,
	}, opt)
	if err != nil {
		return nil, errors.Wrap(err, "error initializing firebase app")
	}

	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "error getting firebase auth client")
	}
	dbClient, err := app.Database(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "error getting firebase database client")
	}

	fb := &FirebaseApp{App: app, Auth: authClient, Database: dbClient}
	if bucketName != "" {
		storageClient, err := app.Storage(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "error getting firebase storage client")
		}
		bucket, err := storageClient.Bucket(bucketName)
		if err != nil {
			return nil, errors.Wrapf(err, "error opening bucket %s", bucketName)
		}
		fb.Bucket = bucket
	}

	Logger.Log.Info("firebase app initialized")
	return fb, nil
}
