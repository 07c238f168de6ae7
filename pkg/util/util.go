// Package util holds small filesystem helpers. Only FileExists is called
// elsewhere in the module (by pkg/capture).
package util

import (
	"io"
	"log"
	"os"
)

func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

func IsFileEmpty(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return true // File doesn't exist, consider it "empty" for practical purposes
	}
	if err != nil {
		log.Printf("Error stating file %s: %v", path, err)
		return true // On error, treat as empty to prevent issues
	}
	return info.Size() == 0
}
