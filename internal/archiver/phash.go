package archiver

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/corona10/goimagehash"
)

// PerceptualHash computes the 64-bit dHash of an image file and returns it
// as 16 lowercase hex characters. Exact string equality is the dedup
// criterion; similarity search is not needed at this layer.
func PerceptualHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}

	hash, err := goimagehash.DifferenceHash(img)
	if err != nil {
		return "", fmt.Errorf("failed to hash image: %w", err)
	}

	return fmt.Sprintf("%016x", hash.GetHash()), nil
}
