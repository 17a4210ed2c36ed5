// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package std

import (
	"github.com/golang/snappy"
	"github.com/pkg/errors"
)

// Compress snappy-encodes a single datagram payload. Unlike the source
// tool's CompStream, this operates on whole, already-bounded messages
// rather than a continuous byte stream — a UDP Data frame's payload has no
// further framing to preserve.
func Compress(payload []byte) []byte {
	return snappy.Encode(nil, payload)
}

// Decompress reverses Compress. A corrupt or non-snappy payload yields an
// error and no output, never a partially-decoded payload.
func Decompress(payload []byte) ([]byte, error) {
	out, err := snappy.Decode(nil, payload)
	if err != nil {
		return nil, errors.Wrap(err, "std: snappy decompress failed")
	}
	return out, nil
}
