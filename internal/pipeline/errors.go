package pipeline

import (
	"errors"
	"fmt"

	"github.com/Lllllllleong/docflow/internal/models"
)

// StageError tags a collaborator failure with the stage it happened in.
type StageError struct {
	Stage models.Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Reason is the human-readable part shown to users.
func (e *StageError) Reason() string {
	if e.Err == nil {
		return string(e.Stage) + " failed"
	}
	return e.Err.Error()
}

func newStageError(stage models.Stage, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}

// DownloadError and friends build stage-tagged errors for each step.
func DownloadError(err error) error       { return newStageError(models.StageDownload, err) }
func ExtractionError(err error) error     { return newStageError(models.StageExtract, err) }
func TranslationError(err error) error    { return newStageError(models.StageTranslate, err) }
func ReconstructionError(err error) error { return newStageError(models.StageReconstruct, err) }
func UploadError(err error) error         { return newStageError(models.StageUpload, err) }

// StageOf reports the stage of err, if it carries one.
func StageOf(err error) (models.Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}
