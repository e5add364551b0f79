package pescan

import (
	"io"

	"github.com/pkg/errors"
)

// A ReaderWrapper adapts a random access io.ReaderAt into the single
// sequential cursor the import walkers need. The cursor is shared
// mutable state within one parse: every side read (library name,
// hint/name resolution) must save the cursor with Tell() and restore it
// with Seek() so the main table scan resumes deterministically.
type ReaderWrapper struct {
	reader io.ReaderAt
	offset int64
}

func (self *ReaderWrapper) Read(p []byte) (n int, err error) {
	n, err = self.reader.ReadAt(p, self.offset)
	self.offset += int64(n)
	return n, err
}

// ReadFull fills buff completely or fails. A short read is always
// distinguishable - it surfaces as io.ErrUnexpectedEOF.
func (self *ReaderWrapper) ReadFull(buff []byte) error {
	n, err := self.reader.ReadAt(buff, self.offset)
	self.offset += int64(n)
	if n == len(buff) {
		return nil
	}

	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return err
}

// ReadTerminatedString reads a NULL terminated ASCII string at the
// current cursor, leaving the cursor just past the terminator. Strings
// longer than max_length are truncated. Running off the end of the file
// before a terminator is an error.
func (self *ReaderWrapper) ReadTerminatedString(max_length int) (string, error) {
	result := []byte{}
	buff := make([]byte, 64)

	for {
		n, err := self.reader.ReadAt(buff, self.offset)
		for i := 0; i < n; i++ {
			if buff[i] == 0 {
				self.offset += int64(i + 1)
				return string(result), nil
			}

			result = append(result, buff[i])
			if len(result) >= max_length {
				self.offset += int64(i + 1)
				return string(result), nil
			}
		}
		self.offset += int64(n)

		if n == 0 || err != nil {
			if err == nil || err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return "", errors.Wrap(err, "unterminated string")
		}
	}
}

func (self *ReaderWrapper) Seek(offset int64) {
	self.offset = offset
}

func (self *ReaderWrapper) Tell() int64 {
	return self.offset
}

func NewReaderWrapper(reader io.ReaderAt) *ReaderWrapper {
	return &ReaderWrapper{
		reader: reader,
	}
}

// An OffsetReader is a bounded window over another reader. It is used
// to hand out section data views without allowing reads to stray past
// the section's raw size.
type OffsetReader struct {
	reader io.ReaderAt
	offset int64
	length int64
}

func (self OffsetReader) ReadAt(buff []byte, off int64) (int, error) {
	to_read := int64(len(buff))
	if off+to_read > self.length {
		to_read = self.length - off
	}

	if to_read <= 0 {
		return 0, io.EOF
	}

	n, err := self.reader.ReadAt(buff[:to_read], off+self.offset)
	if err == nil && int64(n) == to_read && to_read < int64(len(buff)) {
		err = io.EOF
	}
	return n, err
}
