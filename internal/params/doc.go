// Package params turns command line and file input into typed statement
// parameters.
//
// A parameter is written as name=value, optionally with a type:
//
//	--param city=Moscow
//	--param number:uint32=42
//
// Parameter files use the .env format (parsed with godotenv). Since godotenv
// reserves ':' as a YAML-style separator, files write the type after a dot:
//
//	city=Moscow
//	number.uint32=42
//
// Both separators are accepted in both places. The type names are those of
// tablekit.ParseKind; untyped parameters are strings.
//
// Later sources override earlier ones: files in the order given, then
// --param flags.
package params
