package ir

// Builtins is the whitelist of names callable in expression position.
// Both front-ends use it to distinguish builtin calls from tool steps;
// the interpreter implements each entry.
var Builtins = map[string]bool{
	"len": true, "str": true, "repr": true, "bool": true, "int": true,
	"float": true, "type": true, "list": true, "tuple": true, "set": true,
	"dict": true, "range": true, "enumerate": true, "zip": true,
	"reversed": true, "sorted": true, "sum": true, "min": true, "max": true,
	"abs": true, "divmod": true, "any": true, "all": true, "hash": true,
	"dir": true,
}

// IsBuiltin reports whether name is a whitelisted builtin.
func IsBuiltin(name string) bool { return Builtins[name] }
