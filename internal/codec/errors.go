package codec

import "errors"

var (
	// ErrFormat indicates the container bytes cannot be interpreted at all,
	// for example a length that is not a multiple of the AES block size.
	ErrFormat = errors.New("container format invalid")

	// ErrIntegrity indicates the container decrypted but no padding
	// hypothesis produced a payload whose checksum and declared length match.
	ErrIntegrity = errors.New("container integrity check failed")

	// ErrDecompression indicates the candidate bytes ahead of the trailer
	// are not a valid zlib stream. Decode folds this into ErrIntegrity after
	// both hypotheses have been tried.
	ErrDecompression = errors.New("container decompression failed")
)
