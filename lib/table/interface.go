package table

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// --------------------------------------------------------------------------
// Records
// --------------------------------------------------------------------------

// LockRecord is one row of the lock table. At most one row may exist per LockKey.
type LockRecord struct {
	ID         int64     `json:"id"`          // Row identity, assigned by the table on insert
	LockKey    string    `json:"lock_key"`    // Unique name of the protected resource
	ClientID   int64     `json:"client_id"`   // Registered client that holds the lock
	LockOwner  string    `json:"lock_owner"`  // Owner token of the holder within the client
	CreateTime time.Time `json:"create_time"` // When the lock was acquired
}

// HeartbeatRecord is one row of the client heartbeat table (one row per registered client).
type HeartbeatRecord struct {
	ID                int64             `json:"id"` // Client id, must be set by the caller
	ClientName        string            `json:"client_name"`
	LastHeartbeatTime time.Time         `json:"last_heartbeat_time"`
	CreateTime        time.Time         `json:"create_time"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// ILockTable is the durable table of lock rows keyed by lock key.
type ILockTable interface {
	// Insert stores a new lock row and sets rec.ID on success.
	// It fails with RetCDuplicateKey if a row with the same lock key exists
	// and with RetCInvalidRecord if the lock key is empty.
	Insert(ctx context.Context, rec *LockRecord) (err error)
	// DeleteByID removes the row with the given id. Deleting an absent row is not an error.
	DeleteByID(ctx context.Context, id int64) (err error)
	// SelectByKey returns the row for a lock key. The boolean indicates whether a row was found.
	SelectByKey(ctx context.Context, key string) (rec LockRecord, found bool, err error)
	// SelectAll returns all lock rows ordered by id.
	SelectAll(ctx context.Context) (recs []LockRecord, err error)
	// DeleteByClientIDs removes every lock row held by one of the given clients.
	// An empty id list is a no-op.
	DeleteByClientIDs(ctx context.Context, clientIDs []int64) (err error)
}

// IHeartbeatTable is the durable table of client heartbeat rows keyed by client id.
type IHeartbeatTable interface {
	// SelectAll returns all heartbeat rows ordered by id.
	SelectAll(ctx context.Context) (recs []HeartbeatRecord, err error)
	// DeleteByIDs removes the rows of the given clients. An empty id list is a no-op.
	DeleteByIDs(ctx context.Context, ids []int64) (err error)
	// UpdateByID overwrites the row with rec.ID. It returns true iff exactly one row was updated.
	UpdateByID(ctx context.Context, rec HeartbeatRecord) (updated bool, err error)
	// Insert stores a new heartbeat row. rec.ID must be non-zero (RetCInvalidRecord otherwise).
	Insert(ctx context.Context, rec HeartbeatRecord) (err error)
}

// Tables bundles both tables of one backend.
type Tables struct {
	Locks      ILockTable
	Heartbeats IHeartbeatTable
	// Close releases the resources of the backend (may be nil)
	Close func() error
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error wraps a return code and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("TableError (code %s): %s", e.Code, e.Msg)
}

// NewError creates a new table error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// Wrap converts err into a *Error with RetCInternalError unless it already is a *Error.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	var tErr *Error
	if errors.As(err, &tErr) {
		return err
	}
	return NewError(RetCInternalError, err.Error())
}

// CodeOf returns the return code of err. Errors that are not a *Error count as internal errors.
func CodeOf(err error) RetCode {
	if err == nil {
		return RetCSuccess
	}
	var tErr *Error
	if errors.As(err, &tErr) {
		return tErr.Code
	}
	return RetCInternalError
}

// IsDuplicateKey reports whether err is a unique key violation.
func IsDuplicateKey(err error) bool {
	return CodeOf(err) == RetCDuplicateKey
}

// IsInvalidRecord reports whether err signals a record with missing identity fields.
func IsInvalidRecord(err error) bool {
	return CodeOf(err) == RetCInvalidRecord
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess       RetCode = iota // 0: Command executed successfully.
	RetCInternalError                // 1: Command failed due to a storage fault.
	RetCDuplicateKey                 // 2: Insert rejected by a uniqueness constraint.
	RetCInvalidRecord                // 3: Record is missing a required identity field.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCDuplicateKey:
		return "DuplicateKey"
	case RetCInvalidRecord:
		return "InvalidRecord"
	default:
		return "Unknown"
	}
}
