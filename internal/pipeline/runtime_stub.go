//go:build !govips || !cgo

package pipeline

func Startup() error {
	return nil
}

func Shutdown() {}

// NewSourceProcessor loads the source image on the buffer backend.
func NewSourceProcessor(path string, opts Options) (Processor, error) {
	return LoadBufferProcessor(path, opts)
}
