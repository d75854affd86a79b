// Package wire defines the text wire format of the TLCP streaming protocol.
//
// TLCP is line oriented. Every server frame is one line of comma separated
// tokens whose first token names the frame:
//
//	CONOK,S1a2b3c,50000,5000,*
//	SUBOK,1,2,2
//	U,1,1,a|b
//	REQERR,3,17,bad request
//
// Client requests are a request name line followed by a line of
// percent-encoded key=value pairs joined with '&':
//
//	control
//	LS_reqId=1&LS_op=add&LS_subId=1&LS_mode=MERGE&LS_group=i1&LS_schema=f1%20f2
//
// # Frames
//
// ParseFrame turns a line into one of the concrete Frame types (ConOK, SubOK,
// Update, ...). Callers dispatch with an exhaustive type switch.
//
// # Update Values
//
// The value part of a U frame is pipe separated and diffed against the
// previous values of the same item. DecodeUpdate expands it into one
// FieldDiff per field:
//
//	#     null
//	$     empty string
//	      (empty token) unchanged
//	^N    the next N fields are unchanged
//	other percent-encoded UTF-8 value
//
// # Null vs Empty vs Absent
//
// Field values are *string. A nil pointer is an explicit null, a pointer to
// "" is the empty string, and a position missing from a value map has never
// been received.
package wire
