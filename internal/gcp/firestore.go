package gcp

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/docflow/internal/models"
)

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
// It centralizes client creation for all services.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// RunRecorder writes batch run reports to a Firestore collection,
// one document per run keyed by run ID.
type RunRecorder struct {
	client     *firestore.Client
	collection string
}

// NewRunRecorder returns a recorder for collection.
func NewRunRecorder(client *firestore.Client, collection string) *RunRecorder {
	return &RunRecorder{client: client, collection: collection}
}

func (r *RunRecorder) doc(runID string) *firestore.DocumentRef {
	return r.client.Collection(r.collection).Doc(runID)
}

// Start creates the run document in RUNNING state.
func (r *RunRecorder) Start(ctx context.Context, rec models.RunRecord) error {
	rec.Status = models.RunStatusRunning
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if _, err := r.doc(rec.RunID).Set(ctx, rec); err != nil {
		return fmt.Errorf("failed to create run record %s: %w", rec.RunID, err)
	}
	return nil
}

// Progress updates the live counters of a run.
func (r *RunRecorder) Progress(ctx context.Context, p models.Progress) error {
	updates := []firestore.Update{
		{Path: "completed", Value: p.Completed},
		{Path: "succeeded", Value: p.Succeeded},
		{Path: "failed", Value: p.Failed},
		{Path: "progress", Value: p.Fraction},
	}
	if _, err := r.doc(p.RunID).Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to update progress for run %s: %w", p.RunID, err)
	}
	return nil
}

// Finish stores the final breakdown of a run.
func (r *RunRecorder) Finish(ctx context.Context, run *models.BatchRun, status string) error {
	updates := []firestore.Update{
		{Path: "status", Value: status},
		{Path: "completed", Value: run.Completed},
		{Path: "succeeded", Value: run.Succeeded},
		{Path: "failed", Value: run.Failed},
		{Path: "progress", Value: run.Progress()},
		{Path: "artifacts", Value: run.Artifacts},
		{Path: "failures", Value: run.FailureRecords()},
		{Path: "finishedAt", Value: run.FinishedAt},
	}
	if _, err := r.doc(run.ID).Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to finalize run record %s: %w", run.ID, err)
	}
	return nil
}

func (r *RunRecorder) Close() error {
	return r.client.Close()
}
