package main

// Exit codes
const (
	ExitSuccess     = 0 // Success
	ExitError       = 1 // General error (invalid arguments, runtime failure)
	ExitConfigError = 2 // Configuration error (unreadable config, store unavailable)
	ExitModelError  = 3 // Embedding server not available
	ExitNoMatch     = 4 // match: image unusable, no score
)
