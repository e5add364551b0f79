package pescan

import "github.com/pkg/errors"

var (
	ErrInvalidDosHeader      = errors.New("invalid IMAGE_DOS_HEADER")
	ErrInvalidNtHeader       = errors.New("invalid IMAGE_NT_HEADERS")
	ErrInvalidOptionalHeader = errors.New("invalid IMAGE_OPTIONAL_HEADER")
)

// Import parser failures. All of these abort the import parse but not
// the parse of the enclosing image - the partial import table stays on
// the PEFile and the error is available through ImportError().
var (
	ErrDescriptorUnreadable     = errors.New("could not read an IMAGE_IMPORT_DESCRIPTOR")
	ErrDescriptorNameUnreadable = errors.New("could not read an imported library's name")
	ErrLookupTableUnreachable   = errors.New("could not reach an import lookup table")
	ErrHintNameTableUnreachable = errors.New("could not reach the hint/name table")
	ErrHintNameUnreadable       = errors.New("could not read a hint/name entry")
	ErrImportTableTooLarge      = errors.New("import table exceeds size limits")
)
