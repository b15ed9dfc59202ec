package main

// errors module defines stage error codes and the error shape
// returned by every pipeline stage
//

import (
	"errors"
	"fmt"
)

const (
	GenericError     = iota + 100 // generic server error
	DatabaseError                 // 101 database error
	BadRequest                    // 102 bad request
	StorageError                  // 103 blob store write/read error
	DownloadError                 // 104 remote fetch error
	ImageDecodeError              // 105 malformed image bytes
	ModelLoadError                // 106 model artifact missing or corrupt
	InferenceError                // 107 shape mismatch or numeric failure
	ResolutionError               // 108 class index / label table mismatch
	PersistenceError              // 109 history ledger write error
	SessionError                  // 110 invalid or missing session token
)

// helper function to return human error message for given error code
func errorMessage(code int) string {
	if code == 0 {
		return ""
	} else if code == 101 {
		return "database error"
	} else if code == 102 {
		return "bad request"
	} else if code == 103 {
		return "storage error"
	} else if code == 104 {
		return "download error"
	} else if code == 105 {
		return "image decode error"
	} else if code == 106 {
		return "model load error"
	} else if code == 107 {
		return "inference error"
	} else if code == 108 {
		return "resolution error"
	} else if code == 109 {
		return "persistence error"
	} else if code == 110 {
		return "session error"
	} else {
		return fmt.Sprintf("Not Implemented error for code %d", code)
	}
}

// hubError is the single failure shape every pipeline stage returns,
// it carries the stage name, the error code and the underlying cause
type hubError struct {
	Stage     string // pipeline stage which produced the error
	Code      int    // error code of the stage failure
	Err       error  // underlying cause
	UserFault bool   // true when the failure originates from user input
}

func (e *hubError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Stage, errorMessage(e.Code), e.Err)
}

func (e *hubError) Unwrap() error {
	return e.Err
}

// stageError wraps given cause as a system-fault stage error
func stageError(stage string, code int, err error) *hubError {
	return &hubError{Stage: stage, Code: code, Err: err}
}

// userError wraps given cause as a user-fault stage error
func userError(stage string, code int, err error) *hubError {
	return &hubError{Stage: stage, Code: code, Err: err, UserFault: true}
}

// errorCode extracts stage error code from given error
func errorCode(err error) int {
	var e *hubError
	if errors.As(err, &e) {
		return e.Code
	}
	return GenericError
}

// isUserFault tells if given error originates from user input
func isUserFault(err error) bool {
	var e *hubError
	if errors.As(err, &e) {
		return e.UserFault
	}
	return false
}
