// Package message defines the mailbox envelope exchanged between agents and
// its canonical JSON codec.
//
// One message is stored per object, under the key "<id>.json":
//
//	{
//	  "id": "msg-3f9a0c1b2d4e",
//	  "timestamp": "2026-01-02T15:04:05.123456789Z",
//	  "agent_id": "agent-1a2b3c4d",
//	  "message_type": "task",
//	  "title": "Review auth module",
//	  "content": "Check token refresh",
//	  "priority": "normal",
//	  "status": "pending",
//	  "context": {},
//	  "in_reply_to": null
//	}
//
// Encode always produces the same bytes for the same message. Decode is
// tolerant: optional fields fall back to defaults and only a missing or
// malformed required field is an error.
package message
