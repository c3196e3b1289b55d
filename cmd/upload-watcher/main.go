package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/docflow/internal/services"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

var (
	batchInstance *services.BatchFunction
	once          sync.Once
	initErr       error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Register the CloudEvent function. The framework will handle routing the event here.
	functions.CloudEvent("TranslateUpload", translateUpload)
}

// main is required by the Go Functions Framework.
func main() {}

// translateUpload is triggered by object finalize events on the source bucket.
func translateUpload(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		batchInstance, initErr = services.NewBatch(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent services.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	// Task failures are reported in the run record; only rejected requests
	// fail the invocation.
	return batchInstance.HandleUpload(ctx, gcsEvent)
}
