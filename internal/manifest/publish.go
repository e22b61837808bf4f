package manifest

import (
	"context"
	"fmt"
	"log"

	perrors "github.com/partwise/partwise/internal/errors"
	"github.com/partwise/partwise/internal/planner"
	"github.com/partwise/partwise/internal/storage"
)

// Publish records plan in the catalog, uploads its script to store and
// links the two. Returns the object path of the script.
//
// A plan whose upload fails stays recorded without an object path; Reconcile
// reports it as unpublished.
func Publish(ctx context.Context, catalog Catalog, store storage.ObjectStorage, plan *planner.Plan) (string, error) {
	if err := catalog.RecordPlan(ctx, plan); err != nil {
		return "", err
	}

	planID := plan.ID.String()
	objectPath := storage.ScriptPath(planID)
	etag, err := store.Put(ctx, objectPath, []byte(plan.Script()))
	if err != nil {
		log.Printf("manifest: [WARN] plan %s recorded but script upload failed: %v", planID, err)
		return "", perrors.NewStorageError(perrors.CodeUploadFailed,
			fmt.Sprintf("failed to publish script of plan %s", planID), err).
			WithDetails(map[string]interface{}{"object_path": objectPath})
	}

	if err := catalog.SetObjectPath(ctx, planID, objectPath); err != nil {
		return "", err
	}

	log.Printf("manifest: published plan %s to %s (etag %s)", planID, objectPath, etag)
	return objectPath, nil
}
