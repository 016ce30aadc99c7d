// Package errors defines the error taxonomy shared by the mailbox packages.
//
// Every failure that crosses a package boundary is an *Error carrying an
// ErrorCode. Callers branch on the code instead of matching strings:
//
//	msg, err := orch.ClaimTask(ctx, id)
//	switch {
//	case errors.Is(err, errors.ErrCodeNotFound):
//	    // the message is absent, a normal outcome
//	case errors.Is(err, errors.ErrCodeConflict):
//	    // another agent updated the message first
//	case err != nil:
//	    // store or auth failure, fatal for this operation
//	}
//
// # Taxonomy
//
//   - UNAUTHORIZED: every token acquisition strategy failed
//   - STORE: the backing store answered non-2xx or the transport failed;
//     the HTTP status (0 for transport failures) is in the "status_code" metadata
//   - DECODE: a stored entry does not match the message envelope
//   - NOT_FOUND: a message id is absent
//   - CONFLICT: a conditional write lost against a concurrent writer
//   - INVALID_INPUT: a required argument is missing or malformed
//
// Errors serialise to JSON so tool adapters can return them verbatim.
package errors
