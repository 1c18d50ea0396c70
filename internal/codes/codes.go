package codes

// ErrorCodes maps conventional process exit codes to their descriptions
var ErrorCodes = map[int]string{
	0:   "Success",
	1:   "General failure",
	2:   "Misuse of command or invalid arguments",
	126: "Command found but not executable",
	127: "Command not found",
	130: "Interrupted (SIGINT)",
	137: "Killed (SIGKILL)",
	139: "Segmentation fault (SIGSEGV)",
	143: "Terminated (SIGTERM)",
}

// IsSuccess returns true if the exit code indicates success
func IsSuccess(code int) bool {
	return code == 0
}

// GetErrorMessage returns the error message for a given exit code, or a generic message if unknown
func GetErrorMessage(code int) string {
	if msg, ok := ErrorCodes[code]; ok {
		return msg
	}

	return "Unknown error"
}
