package auth

import (
	"bytes"
	"context"
	"io"
	"net/http"
)

// cloneRequest returns a deep copy of r whose body can be read independently.
// When r has a body it is buffered once and r.Body is replaced by a fresh
// reader over the same bytes, so the caller still sees the full body. If the
// read fails, r.Body replays the bytes read so far and then the same error.
func cloneRequest(ctx context.Context, r *http.Request) (*http.Request, error) {
	clone := r.Clone(ctx)
	if r.Body == nil || r.Body == http.NoBody {
		return clone, nil
	}

	data, err := io.ReadAll(r.Body)
	_ = r.Body.Close()
	if err != nil {
		r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(data), errReader{err}))
		return nil, err
	}

	getBody := func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	r.Body, _ = getBody()
	r.GetBody = getBody
	clone.Body, _ = getBody()
	clone.GetBody = getBody
	return clone, nil
}

type errReader struct{ err error }

func (e errReader) Read([]byte) (int, error) { return 0, e.err }
