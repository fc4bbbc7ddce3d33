package command

import (
	"context"
	"strings"

	"github.com/pasantias/plaza-hub/internal/domain/placement"
	"github.com/pasantias/plaza-hub/internal/domain/shared"
	"github.com/pasantias/plaza-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD DOCUMENT COMMAND
// Marks one of the seven named documents of a student's bundle as present or
// absent. The upload itself happens elsewhere. Review status is untouched.
// ══════════════════════════════════════════════════════════════════════════════

// RecordDocumentCommand contains the data to record a document.
type RecordDocumentCommand struct {
	StudentID string
	Document  placement.DocumentType
	Present   bool
}

// Validate validates the command.
func (c RecordDocumentCommand) Validate() error {
	const op = "record_document"
	if strings.TrimSpace(c.StudentID) == "" {
		return invalid(op, "student_id is required")
	}
	if !c.Document.IsValid() {
		return invalid(op, "unknown document %q", c.Document)
	}
	return nil
}

// RecordDocumentResult reports the bundle after the change.
type RecordDocumentResult struct {
	StudentID string
	Complete  bool
	Present   []placement.DocumentType
	Missing   []placement.DocumentType
	Review    placement.ReviewStatus
}

// RecordDocumentHandler handles the RecordDocumentCommand.
type RecordDocumentHandler struct {
	txm       placement.TxManager
	publisher shared.EventPublisher
	opts      options
}

// NewRecordDocumentHandler creates a new RecordDocumentHandler.
func NewRecordDocumentHandler(txm placement.TxManager, publisher shared.EventPublisher, opts ...Option) *RecordDocumentHandler {
	return &RecordDocumentHandler{txm: txm, publisher: publisher, opts: applyOptions(opts)}
}

// Handle executes the record document command.
func (h *RecordDocumentHandler) Handle(ctx context.Context, cmd RecordDocumentCommand) (*RecordDocumentResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var result *RecordDocumentResult
	err := h.txm.WithinTx(ctx, func(ctx context.Context, tx placement.Tx) error {
		if err := tx.SetDocumentPresence(ctx, cmd.StudentID, cmd.Document, cmd.Present); err != nil {
			return err
		}
		bundle, err := tx.GetDocumentBundle(ctx, cmd.StudentID)
		if err != nil {
			return err
		}
		result = &RecordDocumentResult{
			StudentID: cmd.StudentID,
			Complete:  bundle.Complete(),
			Present:   bundle.PresentTypes(),
			Missing:   bundle.Missing(),
			Review:    bundle.Review,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log := h.opts.log.With(logger.Operation("record_document"), logger.StudentID(cmd.StudentID))
	publish(h.publisher, log, shared.NewDocumentPresenceChangedEvent(
		cmd.StudentID, string(cmd.Document), cmd.Present, result.Complete,
	))
	log.Debug("document recorded",
		logger.String("document", string(cmd.Document)),
		logger.Bool("present", cmd.Present),
		logger.Bool("complete", result.Complete),
	)
	return result, nil
}
