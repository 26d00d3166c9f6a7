package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// account errors
	ErrAccountNotFound = errors.New("account not found")

	// sync lifecycle errors
	ErrSyncAlreadyRunning = errors.New("sync already running")
	ErrSyncNotRunning     = errors.New("sync is not running")
	ErrSyncNotPaused      = errors.New("sync is not paused")
	ErrSyncStopping       = errors.New("previous sync run is still stopping")
	ErrInvalidBatchSize   = errors.New("batch size must be between 1 and 1000")
	ErrInvalidMaxEmails   = errors.New("max emails must not be negative")

	// connection errors
	ErrPoolExhausted     = errors.New("imap connection pool exhausted")
	ErrConnectionTimeout = errors.New("connection timeout")

	// archive errors
	ErrArchiveDisabled    = errors.New("raw message archive is disabled")
	ErrRawMessageNotFound = errors.New("raw message not found")
)

// ConnectionError is returned when a session cannot be established or authenticated.
type ConnectionError struct {
	Identity string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error [%s]: %v", e.Identity, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

func NewConnectionError(identity string, err error) *ConnectionError {
	return &ConnectionError{Identity: identity, Err: err}
}

// FolderError fails a single folder of a run; the run moves on to the next folder.
type FolderError struct {
	Folder string
	Err    error
}

func (e *FolderError) Error() string {
	return fmt.Sprintf("folder %q: %v", e.Folder, e.Err)
}

func (e *FolderError) Unwrap() error {
	return e.Err
}

func NewFolderError(folder string, err error) *FolderError {
	return &FolderError{Folder: folder, Err: err}
}

type MessageParseError struct {
	Folder string
	SeqNum uint32
	Err    error
}

func (e *MessageParseError) Error() string {
	return fmt.Sprintf("parse message %d in %q: %v", e.SeqNum, e.Folder, e.Err)
}

func (e *MessageParseError) Unwrap() error {
	return e.Err
}

type AnalysisError struct {
	Step string
	Err  error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis step %s: %v", e.Step, e.Err)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

// SyncFatalError marks a run as ERROR.
type SyncFatalError struct {
	AccountID string
	Err       error
}

func (e *SyncFatalError) Error() string {
	return fmt.Sprintf("sync failed for account %s: %v", e.AccountID, e.Err)
}

func (e *SyncFatalError) Unwrap() error {
	return e.Err
}

func IsConnectionError(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}
