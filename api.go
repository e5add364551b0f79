package pescan

import (
	"fmt"
	"io"
)

// Exported API

type Section struct {
	Perm        string `json:"perm"`
	Name        string `json:"name"`
	FileOffset  int64  `json:"file_offset"`
	VMA         int64  `json:"vma"`
	Size        int64  `json:"size"`
	VirtualSize int64  `json:"virtual_size"`
}

// A PEFile owns everything parsed out of one image: the headers, the
// section map and the import table. It is built in a single parse pass
// and is immutable afterwards, so readers need no synchronization.
// Different images are fully independent - a batch tool may parse many
// in parallel with no shared state.
type PEFile struct {
	reader       *ReaderWrapper
	rva_resolver *RVAResolver

	FileHeader     FileHeader
	OptionalHeader OptionalHeader

	Machine  string     `json:"machine"`
	Is64Bit  bool       `json:"is_64bit"`
	Sections []*Section `json:"sections"`

	// Libraries in file order, one per accepted import descriptor.
	ImportTable []*Library `json:"import_table"`

	// Non fatal findings collected during the parse (truncated
	// descriptor lists, name RVA fallbacks, duplicate libraries).
	Warnings []string `json:"warnings,omitempty"`

	import_err error
}

// ImportError reports whether the import parse was aborted. A non nil
// result means ImportTable holds whatever was collected before the
// failure; the rest of the image parse is unaffected.
func (self *PEFile) ImportError() error {
	return self.import_err
}

// SectionData returns a bounded view over a section's raw bytes.
func (self *PEFile) SectionData(section *Section) io.ReaderAt {
	return OffsetReader{
		reader: self.reader.reader,
		offset: section.FileOffset,
		length: section.Size,
	}
}

func (self *PEFile) warn(format string, v ...interface{}) {
	message := fmt.Sprintf(format, v...)
	self.Warnings = append(self.Warnings, message)
	DebugPrint("WARN %s\n", message)
}

func NewPEFile(reader io.ReaderAt) (*PEFile, error) {
	self := &PEFile{
		reader: NewReaderWrapper(reader),
	}

	if err := self.parseHeaders(); err != nil {
		return nil, err
	}

	self.rva_resolver = NewRVAResolver(self.Sections,
		self.OptionalHeader.ImageBase, self.Is64Bit)

	// A failed import parse does not fail the image: the partial
	// import table and the error are both retained for the caller.
	self.import_err = self.parseImports()
	if self.import_err != nil {
		DebugPrint("Import parsing aborted: %v\n", self.import_err)
	}

	return self, nil
}
