package repository

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/orgsync/pkg/domain/interfaces"
	"github.com/secmon-lab/orgsync/pkg/domain/model"
	"github.com/secmon-lab/orgsync/pkg/domain/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	// Collection names
	credentialsCollection = "credentials"
	runsCollection        = "runs"

	// Document IDs
	destinationCredentialDocID = "destination"

	// Field names
	fieldStartedAt = "started_at"
)

// Firestore implements Repository interface with Firestore
type Firestore struct {
	client *firestore.Client
}

// NewFirestore creates a new Firestore repository
func NewFirestore(ctx context.Context, projectID, databaseID string) (interfaces.Repository, error) {
	logger := ctxlog.From(ctx)

	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client")
	}

	// Fail fast on wrong project or missing permission; an empty collection is fine
	_, err = client.Collection(runsCollection).Limit(1).Documents(ctx).Next()
	if err != nil && err != iterator.Done {
		if status.Code(err) == codes.PermissionDenied || status.Code(err) == codes.Unauthenticated {
			_ = client.Close()
			return nil, goerr.Wrap(err, "failed to connect to firestore project",
				goerr.V("firestore error code", status.Code(err).String()),
			)
		}
		logger.Debug("Firestore connection test returned error (may be empty collection)",
			"error", err,
			"errorCode", status.Code(err).String(),
		)
	}

	logger.Info("Firestore repository initialized successfully",
		"projectID", projectID,
		"databaseID", databaseID,
	)

	return &Firestore{
		client: client,
	}, nil
}

// GetCredential retrieves the destination credential
func (f *Firestore) GetCredential(ctx context.Context) (*model.Credential, error) {
	doc, err := f.client.Collection(credentialsCollection).Doc(destinationCredentialDocID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(model.ErrCredentialNotFound, "no credential document")
		}
		return nil, goerr.Wrap(err, "failed to get credential from firestore")
	}

	var cred model.Credential
	if err := doc.DataTo(&cred); err != nil {
		return nil, goerr.Wrap(err, "failed to decode credential")
	}

	return &cred, nil
}

// PutCredential stores the destination credential
func (f *Firestore) PutCredential(ctx context.Context, cred *model.Credential) error {
	if !cred.IsValid() {
		return goerr.New("credential is incomplete")
	}

	_, err := f.client.Collection(credentialsCollection).Doc(destinationCredentialDocID).Set(ctx, cred)
	if err != nil {
		return goerr.Wrap(err, "failed to save credential to firestore")
	}

	return nil
}

// PutRun creates or overwrites a run record
func (f *Firestore) PutRun(ctx context.Context, run *model.Run) error {
	if run == nil {
		return goerr.New("run is nil")
	}
	if run.ID == "" {
		return goerr.New("run ID is empty")
	}

	_, err := f.client.Collection(runsCollection).Doc(run.ID.String()).Set(ctx, run)
	if err != nil {
		return goerr.Wrap(err, "failed to save run to firestore", goerr.V("id", run.ID))
	}

	return nil
}

// GetRun retrieves a run by ID
func (f *Firestore) GetRun(ctx context.Context, id types.RunID) (*model.Run, error) {
	if id == "" {
		return nil, goerr.New("run ID is empty")
	}

	doc, err := f.client.Collection(runsCollection).Doc(id.String()).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(model.ErrRunNotFound, "no run document", goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to get run from firestore", goerr.V("id", id))
	}

	var run model.Run
	if err := doc.DataTo(&run); err != nil {
		return nil, goerr.Wrap(err, "failed to decode run", goerr.V("id", id))
	}

	return &run, nil
}

// ListRuns lists runs, newest first
func (f *Firestore) ListRuns(ctx context.Context, limit int) ([]*model.Run, error) {
	query := f.client.Collection(runsCollection).OrderBy(fieldStartedAt, firestore.Desc)
	if limit > 0 {
		query = query.Limit(limit)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var runs []*model.Run
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate runs")
		}

		var run model.Run
		if err := doc.DataTo(&run); err != nil {
			return nil, goerr.Wrap(err, "failed to decode run", goerr.V("docID", doc.Ref.ID))
		}
		runs = append(runs, &run)
	}

	return runs, nil
}

// Close closes the Firestore client
func (f *Firestore) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}
