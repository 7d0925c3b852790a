package xmodem

import (
	"io"
	"os"
	"time"
)

// Callbacks provides hooks for transfer events.
// All callbacks are optional - nil callbacks use default behavior.
type Callbacks struct {
	// OnFilePrompt is called when a batch receiver is offered a file.
	// Return true to accept the file, false to receive it into a discard
	// sink (YMODEM has no way to skip a file without cancelling the batch).
	// If an error is returned, the transfer is aborted.
	OnFilePrompt func(filename string, size int64, mode os.FileMode) (bool, error)

	// OnProgress is called periodically during file transfer.
	// filename: name of the file being transferred
	// transferred: bytes transferred so far
	// total: total bytes to transfer (0 if unknown)
	// rate: transfer rate in bytes per second
	OnProgress func(filename string, transferred, total int64, rate float64)

	// OnFileStart is called when a file transfer starts.
	OnFileStart func(filename string, size int64, mode os.FileMode)

	// OnFileComplete is called when a file transfer completes.
	// duration: time taken for the transfer
	OnFileComplete func(filename string, bytesTransferred int64, duration time.Duration)

	// OnError is called when an error occurs.
	// context: description of where the error occurred
	// For files that cannot be opened or created during a batch, return
	// true to skip the file and carry on, false to abort.
	OnError func(err error, context string) bool

	// OnFileOpen is called when opening a file for reading (sender).
	// If nil, uses default file opening.
	OnFileOpen func(filename string) (io.Reader, os.FileInfo, error)

	// OnFileCreate is called when creating a file for writing (receiver).
	// If nil, uses default file creation.
	OnFileCreate func(filename string, size int64, mode os.FileMode) (io.Writer, error)
}

// defaultCallbacks returns a set of callbacks with default implementations.
func defaultCallbacks() *Callbacks {
	return &Callbacks{
		OnFilePrompt: func(string, int64, os.FileMode) (bool, error) {
			return true, nil // Accept all files by default
		},
		OnProgress:     func(string, int64, int64, float64) {},
		OnFileStart:    func(string, int64, os.FileMode) {},
		OnFileComplete: func(string, int64, time.Duration) {},
		OnError: func(error, string) bool {
			return false // Abort by default
		},
		OnFileOpen:   nil, // Use default
		OnFileCreate: nil, // Use default
	}
}

// mergeCallbacks merges user callbacks with defaults.
// User callbacks override defaults, nil callbacks use defaults.
func mergeCallbacks(user *Callbacks) *Callbacks {
	if user == nil {
		return defaultCallbacks()
	}

	def := defaultCallbacks()

	result := &Callbacks{}

	if user.OnFilePrompt != nil {
		result.OnFilePrompt = user.OnFilePrompt
	} else {
		result.OnFilePrompt = def.OnFilePrompt
	}

	if user.OnProgress != nil {
		result.OnProgress = user.OnProgress
	} else {
		result.OnProgress = def.OnProgress
	}

	if user.OnFileStart != nil {
		result.OnFileStart = user.OnFileStart
	} else {
		result.OnFileStart = def.OnFileStart
	}

	if user.OnFileComplete != nil {
		result.OnFileComplete = user.OnFileComplete
	} else {
		result.OnFileComplete = def.OnFileComplete
	}

	if user.OnError != nil {
		result.OnError = user.OnError
	} else {
		result.OnError = def.OnError
	}

	// File operations (nil means use default)
	result.OnFileOpen = user.OnFileOpen
	result.OnFileCreate = user.OnFileCreate

	return result
}
