package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// ErrorOutput receives ShowError reports.
var ErrorOutput io.Writer = os.Stderr

// ShowError is the unified error report for docmask commands.
// It prints a formatted error box; the caller decides whether to exit.
func ShowError(context string, err error) {
	fmt.Fprintf(ErrorOutput, "\n---------------------------------------------------------\n")
	fmt.Fprintf(ErrorOutput, "🚨 DOCMASK ERROR: %s\n", context)
	if err != nil {
		fmt.Fprintf(ErrorOutput, "DETAILS: %v\n", err)
	}
	fmt.Fprintf(ErrorOutput, "---------------------------------------------------------\n")
}

// GenerateDocumentID creates a deterministic hash for the document file
// based on its path, size, and modification time.
func GenerateDocumentID(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	input := fmt.Sprintf("%s-%d-%d", path, info.Size(), info.ModTime().UnixNano())
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:]), nil
}

// DocumentIDFromBytes identifies an uploaded document by its content.
func DocumentIDFromBytes(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
