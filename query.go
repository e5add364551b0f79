package pescan

import (
	"regexp"

	"github.com/Velocidex/ordereddict"
)

// Read only accessors over the finished import table. These are safe
// to call from any goroutine once NewPEFile returns.

// LibraryNames returns the imported library names in file order.
func (self *PEFile) LibraryNames() []string {
	result := make([]string, 0, len(self.ImportTable))
	for _, library := range self.ImportTable {
		result = append(result, library.Name)
	}
	return result
}

// Functions returns the symbols imported from dll (exact, case
// sensitive match) in file order. Imports by ordinal are synthesized
// as "#N". An unknown library yields an empty list, not an error.
func (self *PEFile) Functions(dll string) []string {
	result := []string{}

	for _, library := range self.ImportTable {
		if library.Name != dll {
			continue
		}

		for _, entry := range library.Entries {
			result = append(result, entry.Label())
		}
		break
	}

	return result
}

// Imports returns the flat "library!function" list over the whole
// import table, in file order.
func (self *PEFile) Imports() []string {
	result := []string{}

	for _, library := range self.ImportTable {
		for _, entry := range library.Entries {
			result = append(result, library.Name+"!"+entry.Label())
		}
	}

	return result
}

// ImportsDict renders the import table as an ordered library ->
// functions mapping, suitable for JSON output.
func (self *PEFile) ImportsDict() *ordereddict.Dict {
	result := ordereddict.NewDict()
	for _, library := range self.ImportTable {
		functions := []string{}
		for _, entry := range library.Entries {
			functions = append(functions, entry.Label())
		}
		result.Set(library.Name, functions)
	}
	return result
}

// SearchImports returns the names of imported functions whose library
// fully matches dll_pattern and whose own name fully matches
// function_pattern. Both patterns honor the same case sensitivity
// flag. Imports by ordinal have no name and are always skipped.
func (self *PEFile) SearchImports(
	function_pattern, dll_pattern string,
	case_sensitive bool) ([]string, error) {

	dll_regex, err := compileAnchored(dll_pattern, case_sensitive)
	if err != nil {
		return nil, err
	}

	function_regex, err := compileAnchored(function_pattern, case_sensitive)
	if err != nil {
		return nil, err
	}

	result := []string{}
	for _, library := range self.ImportTable {
		if !dll_regex.MatchString(library.Name) {
			continue
		}

		for _, entry := range library.Entries {
			if entry.ByOrdinal || entry.Name == "" {
				continue
			}
			if function_regex.MatchString(entry.Name) {
				result = append(result, entry.Name)
			}
		}
	}

	return result, nil
}

// compileAnchored builds a whole string matcher - partial matches must
// not count as hits.
func compileAnchored(pattern string, case_sensitive bool) (*regexp.Regexp, error) {
	expr := `\A(?:` + pattern + `)\z`
	if !case_sensitive {
		expr = "(?i)" + expr
	}
	return regexp.Compile(expr)
}
