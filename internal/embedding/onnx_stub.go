//go:build !cgo
// +build !cgo

package embedding

import "errors"

func loadONNXSession(LocalConfig) (session, error) {
	return nil, errors.New("local embedding requires CGO; build with CGO_ENABLED=1 and onnxruntime")
}
