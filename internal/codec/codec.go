// Package codec implements the encrypted save-container format:
//
//	AES-256-ECB( PKCS7pad( zlib(payload) || checksumBE(4) || lengthLE(4) ) )
//
// Containers are always a whole number of AES blocks. The 8-byte trailer
// carries an Adler-32 checksum (big-endian) and the uncompressed payload
// length (little-endian, signed 32-bit). Because the padding detector is a
// heuristic, Decode evaluates up to two candidate interpretations of the
// decrypted bytes before giving up.
package codec

import (
	"bytes"
	"crypto/aes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

const (
	// KeySize is the AES-256 key length consumed by the codec.
	KeySize = 32

	// trailerSize is the checksum+length record appended to the compressed
	// payload before padding and encryption.
	trailerSize = 8
)

// Codec encodes and decodes encrypted save containers. Implementations are
// stateless and safe for concurrent use.
type Codec interface {
	// Encode compresses, seals and encrypts payload under key.
	Encode(payload []byte, key [KeySize]byte) ([]byte, error)

	// Decode decrypts container under key and recovers the payload.
	// It returns ErrFormat when the container length is not block-aligned
	// and ErrIntegrity when no padding hypothesis validates.
	Decode(container []byte, key [KeySize]byte) ([]byte, error)
}

type containerCodec struct {
	level int
}

// New creates a codec with the default (best) compression level.
func New() Codec {
	return &containerCodec{level: zlib.BestCompression}
}

// NewWithLevel creates a codec with an explicit zlib compression level.
func NewWithLevel(level int) (Codec, error) {
	if level < zlib.HuffmanOnly || level > zlib.BestCompression {
		return nil, fmt.Errorf("invalid compression level %d", level)
	}
	return &containerCodec{level: level}, nil
}

// Encode compresses, seals and encrypts payload under key.
func (c *containerCodec) Encode(payload []byte, key [KeySize]byte) ([]byte, error) {
	checksum := Checksum(payload)
	length := int32(len(payload))

	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, c.level)
	if err != nil {
		return nil, fmt.Errorf("failed to create zlib writer: %w", err)
	}
	if _, err := zw.Write(payload); err != nil {
		zw.Close()
		return nil, fmt.Errorf("failed to compress payload: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to flush zlib stream: %w", err)
	}

	trailered := buf.Bytes()
	trailered = binary.BigEndian.AppendUint32(trailered, checksum)
	trailered = binary.LittleEndian.AppendUint32(trailered, uint32(length))

	padded := addPKCS7Padding(trailered)

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	ciphertext := make([]byte, len(padded))
	for off := 0; off < len(padded); off += aes.BlockSize {
		block.Encrypt(ciphertext[off:off+aes.BlockSize], padded[off:off+aes.BlockSize])
	}
	return ciphertext, nil
}

// Decode decrypts container under key and recovers the payload.
func (c *containerCodec) Decode(container []byte, key [KeySize]byte) ([]byte, error) {
	if len(container)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("container length %d is not a multiple of %d: %w",
			len(container), aes.BlockSize, ErrFormat)
	}

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	decrypted := make([]byte, len(container))
	for off := 0; off < len(container); off += aes.BlockSize {
		block.Decrypt(decrypted[off:off+aes.BlockSize], container[off:off+aes.BlockSize])
	}

	// Ordered hypothesis list: padding-stripped first when the heuristic
	// fires, then the unstripped bytes. The heuristic can misfire on
	// trailer bytes, which is exactly why the second candidate exists.
	candidates := make([][]byte, 0, 2)
	if padLen := detectPaddingLength(decrypted); padLen > 0 {
		candidates = append(candidates, decrypted[:len(decrypted)-padLen])
	}
	candidates = append(candidates, decrypted)

	var lastErr error
	for _, candidate := range candidates {
		payload, err := validate(candidate)
		if err == nil {
			return payload, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("no padding hypothesis validated (%v): %w", lastErr, ErrIntegrity)
}

// validate interprets candidate as zlib-stream||trailer, inflates the stream
// and accepts only when both the declared length and the checksum match the
// decompressed bytes.
func validate(candidate []byte) ([]byte, error) {
	if len(candidate) < trailerSize {
		return nil, fmt.Errorf("candidate shorter than trailer: %w", ErrIntegrity)
	}
	checksum := binary.BigEndian.Uint32(candidate[len(candidate)-trailerSize : len(candidate)-4])
	declared := int32(binary.LittleEndian.Uint32(candidate[len(candidate)-4:]))

	zr, err := zlib.NewReader(bytes.NewReader(candidate[:len(candidate)-trailerSize]))
	if err != nil {
		return nil, fmt.Errorf("invalid zlib stream: %w", ErrDecompression)
	}
	defer zr.Close()
	decompressed, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("truncated zlib stream: %w", ErrDecompression)
	}

	if int32(len(decompressed)) != declared {
		return nil, fmt.Errorf("declared length %d does not match %d: %w",
			declared, len(decompressed), ErrIntegrity)
	}
	if Checksum(decompressed) != checksum {
		return nil, fmt.Errorf("checksum mismatch: %w", ErrIntegrity)
	}
	return decompressed, nil
}
