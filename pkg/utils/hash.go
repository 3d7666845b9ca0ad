package utils

import (
	"encoding/hex"
	"io"

	"github.com/spf13/afero"
	"github.com/zeebo/blake3"
)

// HashBytes computes the hex-encoded BLAKE3 hash of data.
func HashBytes(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashFile computes the hex-encoded BLAKE3 hash of a file's content on fs.
func HashFile(fs afero.Fs, filePath string) (string, error) {
	file, err := fs.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := blake3.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
