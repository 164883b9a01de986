// Package logging builds the structured loggers used across claimaudit.
//
// Loggers are plain *slog.Logger values backed by Handler, which adds the
// audit run context and can mask member identifiers before records reach
// the output.
//
//	logger, err := logging.New(logging.Config{
//	    Level:     "info",
//	    Format:    "json",
//	    RedactPII: true,
//	})
//
//	ctx = logging.WithRunID(ctx, runID)
//	logger.InfoContext(ctx, "audit started", "member_id", "M-1001")
//	// {"level":"INFO","msg":"audit started","run_id":"...","member_id":"***"}
//
// # Redaction
//
// With RedactPII enabled, attributes whose key names member data (member_id,
// qid, patient, dob and similar) are replaced wholesale. Other string values
// have QIDs, card numbers, emails and phone numbers masked in place. Custom
// patterns from configuration run after the built-in ones.
package logging
