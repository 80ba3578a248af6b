package utils

import (
	"crypto/md5"
	"fmt"
	"io"
	"os"
)

// FileHash returns the MD5 of a file as a hex string. MD5 is a content
// identity here, not a security boundary.
func FileHash(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := md5.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}

	return fmt.Sprintf("%x", hash.Sum(nil)), nil
}
