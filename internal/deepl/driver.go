package deepl

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sonsuzanime/stremio-deepl-translate/pkg/log"
)

// Provider document limits checked locally before any upload is attempted.
const (
	MaxFileSizeKB = 150
	MaxCharacters = 1000000
)

const DefaultPollInterval = 5 * time.Second

// Driver owns the per-file translation state machine:
// not-started → uploaded → processing → done|error. A failed task is
// never retried; the caller decides whether a later request starts over.
type Driver struct {
	client       *Client
	pollInterval time.Duration
}

func NewDriver(client *Client, pollInterval time.Duration) *Driver {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Driver{
		client:       client,
		pollInterval: pollInterval,
	}
}

// CheckFileLimits validates the local file against the provider's size and
// character limits. A violation is a local failure: the task never leaves
// not-started and nothing is uploaded.
func CheckFileLimits(filePath string) error {
	stat, err := os.Stat(filePath)
	if err != nil {
		return fmt.Errorf("stat document: %w", err)
	}
	fileSizeKB := float64(stat.Size()) / 1024
	if fileSizeKB > MaxFileSizeKB {
		return fmt.Errorf("file size (%.2f KB) exceeds the limit of %d KB", fileSizeKB, MaxFileSizeKB)
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}
	if len(content) > MaxCharacters {
		return fmt.Errorf("character count (%d) exceeds the limit of %d", len(content), MaxCharacters)
	}

	log.Debug("File check passed for %s: size=%.2fKB characters=%d", filePath, fileSizeKB, len(content))
	return nil
}

// Translate drives one document to a terminal state and returns the
// translated bytes. It blocks while the provider is working; cancel the
// context to impose an operational timeout.
func (d *Driver) Translate(ctx context.Context, task *Task, targetLang string) ([]byte, error) {
	if err := CheckFileLimits(task.FilePath); err != nil {
		return nil, err
	}

	log.Info("Starting document upload for %s", task.FilePath)
	documentID, documentKey, err := d.client.Upload(ctx, task.FilePath, targetLang)
	if err != nil {
		return nil, err
	}
	task.DocumentID = documentID
	task.DocumentKey = documentKey
	task.State = StateUploaded
	log.Info("Document uploaded: id=%s", documentID)

	if err := d.waitForTranslation(ctx, task); err != nil {
		return nil, err
	}

	result, err := d.client.Result(ctx, task.DocumentID, task.DocumentKey)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// waitForTranslation polls the document status on a fixed interval until
// the provider reports done or error. There is no attempt cap.
func (d *Driver) waitForTranslation(ctx context.Context, task *Task) error {
	for {
		state, message, err := d.client.Status(ctx, task.DocumentID, task.DocumentKey)
		if err != nil {
			task.State = StateError
			return err
		}
		log.Debug("Translation status for %s: %s", task.DocumentID, state)

		switch state {
		case StateDone:
			task.State = StateDone
			log.Info("Translation completed for document %s", task.DocumentID)
			return nil
		case StateError:
			task.State = StateError
			return fmt.Errorf("translation failed for document %s: %s", task.DocumentID, message)
		default:
			task.State = StateProcessing
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.pollInterval):
		}
	}
}
