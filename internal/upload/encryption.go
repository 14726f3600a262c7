package upload

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// EncryptionExtension is appended to the name of an encrypted package
const EncryptionExtension = ".enc"

// Encrypted packages are a header followed by AES-256-GCM sealed records:
//
//	header: magic "RSBE" | version | 16-byte salt
//	record: flag | uint32 sealed length | sealed chunk
//
// The flag marks the final record and is authenticated as additional data so
// a truncated package fails to decrypt.
const (
	encryptionMagic   = "RSBE"
	encryptionVersion = 1
	saltSize          = 16
	keySize           = 32
	keyIterations     = 100000
	chunkSize         = 64 * 1024

	recordIntermediate byte = 0
	recordFinal        byte = 1
)

var errTruncatedPackage = errors.New("encrypted package is truncated")

// DeriveKey derives the AES-256 key for passphrase and salt
func DeriveKey(passphrase, salt []byte) []byte {
	return pbkdf2.Key(passphrase, salt, keyIterations, keySize, sha256.New)
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM cipher: %w", err)
	}
	return gcm, nil
}

// Every package has its own random salt and therefore its own key, so a
// record counter is a sufficient nonce.
func recordNonce(aead cipher.AEAD, counter uint64) []byte {
	nonce := make([]byte, aead.NonceSize())
	binary.BigEndian.PutUint64(nonce[len(nonce)-8:], counter)
	return nonce
}

type encryptWriter struct {
	w       io.Writer
	aead    cipher.AEAD
	buf     []byte
	counter uint64
	closed  bool
}

// NewEncryptWriter returns a writer that encrypts everything written to it
// into w. Close must be called to emit the final record.
func NewEncryptWriter(w io.Writer, passphrase []byte) (io.WriteCloser, error) {
	if len(passphrase) == 0 {
		return nil, errors.New("encryption passphrase is empty")
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	aead, err := newAEAD(DeriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}

	header := append([]byte(encryptionMagic), encryptionVersion)
	header = append(header, salt...)
	if _, err := w.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write encryption header: %w", err)
	}

	return &encryptWriter{w: w, aead: aead, buf: make([]byte, 0, chunkSize)}, nil
}

func (e *encryptWriter) Write(p []byte) (int, error) {
	if e.closed {
		return 0, errors.New("write to closed encrypt writer")
	}
	n := 0
	for len(p) > 0 {
		if len(e.buf) == chunkSize {
			if err := e.flush(recordIntermediate); err != nil {
				return n, err
			}
		}
		take := min(chunkSize-len(e.buf), len(p))
		e.buf = append(e.buf, p[:take]...)
		p = p[take:]
		n += take
	}
	return n, nil
}

func (e *encryptWriter) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	return e.flush(recordFinal)
}

func (e *encryptWriter) flush(flag byte) error {
	sealed := e.aead.Seal(nil, recordNonce(e.aead, e.counter), e.buf, []byte{flag})
	e.counter++
	e.buf = e.buf[:0]

	header := make([]byte, 5)
	header[0] = flag
	binary.BigEndian.PutUint32(header[1:], uint32(len(sealed)))
	if _, err := e.w.Write(header); err != nil {
		return fmt.Errorf("failed to write record header: %w", err)
	}
	if _, err := e.w.Write(sealed); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}

type decryptReader struct {
	r       io.Reader
	aead    cipher.AEAD
	plain   []byte
	counter uint64
	done    bool
}

// NewDecryptReader returns a reader yielding the plaintext of an encrypted
// package read from r
func NewDecryptReader(r io.Reader, passphrase []byte) (io.Reader, error) {
	header := make([]byte, len(encryptionMagic)+1+saltSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("failed to read encryption header: %w", err)
	}
	if !bytes.Equal(header[:len(encryptionMagic)], []byte(encryptionMagic)) {
		return nil, errors.New("not an encrypted backup package")
	}
	if header[len(encryptionMagic)] != encryptionVersion {
		return nil, fmt.Errorf("unsupported encryption version %d", header[len(encryptionMagic)])
	}

	aead, err := newAEAD(DeriveKey(passphrase, header[len(encryptionMagic)+1:]))
	if err != nil {
		return nil, err
	}
	return &decryptReader{r: r, aead: aead}, nil
}

func (d *decryptReader) Read(p []byte) (int, error) {
	for len(d.plain) == 0 {
		if d.done {
			return 0, io.EOF
		}
		if err := d.next(); err != nil {
			return 0, err
		}
	}
	n := copy(p, d.plain)
	d.plain = d.plain[n:]
	return n, nil
}

func (d *decryptReader) next() error {
	header := make([]byte, 5)
	if _, err := io.ReadFull(d.r, header); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return errTruncatedPackage
		}
		return err
	}

	flag := header[0]
	length := binary.BigEndian.Uint32(header[1:])
	if flag > recordFinal || int(length) > chunkSize+d.aead.Overhead() {
		return errors.New("corrupt encrypted record")
	}

	sealed := make([]byte, length)
	if _, err := io.ReadFull(d.r, sealed); err != nil {
		return errTruncatedPackage
	}

	plain, err := d.aead.Open(nil, recordNonce(d.aead, d.counter), sealed, []byte{flag})
	if err != nil {
		return fmt.Errorf("failed to decrypt record: %w", err)
	}
	d.counter++
	d.plain = plain

	if flag == recordFinal {
		d.done = true
		var extra [1]byte
		if n, _ := d.r.Read(extra[:]); n > 0 {
			return errors.New("unexpected data after final record")
		}
	}
	return nil
}
