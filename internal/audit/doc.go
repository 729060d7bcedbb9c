// Package audit implements the bounded asynchronous queue behind audit event
// delivery.
//
// The package does not know what an event is or which events exist; the
// authority decides that and supplies a [DeliverFunc]. It must not import
// sessionAuth.
package audit
