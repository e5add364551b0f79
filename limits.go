package pescan

// A malicious file can easily arrange for any of the sentinel seeking
// loops in this parser to never terminate within the file, or to point
// a table back into itself. All parsing loops are therefore capped, and
// blowing a cap is reported as ErrImportTableTooLarge instead of being
// silently truncated.
const (
	MAX_NUMBER_OF_SECTIONS  = 96
	MAX_IMPORT_TABLE_LENGTH = 1000
	MAX_IMPORT_FUNCTIONS    = 10000

	MAX_DLL_NAME_LENGTH    = 1024
	MAX_SYMBOL_NAME_LENGTH = 4096
)
