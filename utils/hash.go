package utils

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"
)

// BytesMD5 returns the hex encoded MD5 digest of data.
func BytesMD5(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// FileMD5 returns the hex encoded MD5 digest of the file content. The file
// is streamed, so large photos are not held in memory.
func FileMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
