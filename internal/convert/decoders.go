package convert

// Register a decoder for every extension the dispatcher whitelists, so
// imaging.Open can read any page it is handed. WebP decoding is registered
// by the encoder package already imported in worker.go.
import (
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)
