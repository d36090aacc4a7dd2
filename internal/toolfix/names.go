package toolfix

// conversion describes how one deprecated tool tag maps to its canonical form.
// WrapKey, when set, nests the parameters one level deeper under that key inside
// <args>; otherwise parameters sit directly under <args>. The wrapping rule is a
// static per-tool property.
type conversion struct {
	Canonical string
	WrapKey   string
}

// deprecatedNames maps legacy tool tag names to their canonical replacements.
// Initialized once, never mutated, shared read-only across concurrent calls.
var deprecatedNames = map[string]conversion{
	"read_file":       {Canonical: "use_read_file", WrapKey: "file"},
	"write_to_file":   {Canonical: "use_write_file", WrapKey: "file"},
	"replace_in_file": {Canonical: "use_edit_file", WrapKey: "file"},
	"execute_command": {Canonical: "use_run_command"},
	"list_files":      {Canonical: "use_list_files"},
}

// Canonical shapes emitted for converted multi-tool envelope invocations. These
// names must stay out of deprecatedNames so that a second correction pass leaves
// already-converted markup untouched.
const (
	readToolName  = "use_read_file"
	writeToolName = "use_write_file"
	editToolName  = "use_edit_file"
)
