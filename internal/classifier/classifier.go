package classifier

import (
	"strings"

	"github.com/john/leakwatch/internal/message"
)

// Verdict is the outcome of classifying an attachment
type Verdict string

const (
	// NotClassified means there was no filename to judge.
	NotClassified Verdict = "not_classified"
	NotSuspicious Verdict = "not_suspicious"
	Suspicious    Verdict = "suspicious"
)

// suspiciousExtensions are common dump and combo-list containers.
var suspiciousExtensions = map[string]bool{
	"txt":  true,
	"sql":  true,
	"csv":  true,
	"json": true,
	"rar":  true,
	"zip":  true,
}

// Extension returns the lowercase text after the last '.', or "" if there is none.
func Extension(filename string) string {
	i := strings.LastIndexByte(filename, '.')
	if i < 0 {
		return ""
	}
	return strings.ToLower(filename[i+1:])
}

// Classify judges an attachment by its filename extension only.
func Classify(att *message.Attachment) Verdict {
	if att == nil || att.FileName == "" {
		return NotClassified
	}
	if suspiciousExtensions[Extension(att.FileName)] {
		return Suspicious
	}
	return NotSuspicious
}
